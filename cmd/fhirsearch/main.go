package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SanteonNL/fhirsearch/cmd/fhirsearch/api"
	"github.com/SanteonNL/fhirsearch/cmd/fhirsearch/client"
	"github.com/SanteonNL/fhirsearch/cmd/fhirsearch/config"
	"github.com/SanteonNL/fhirsearch/cmd/fhirsearch/fhir/bundle"
	"github.com/SanteonNL/fhirsearch/cmd/fhirsearch/fhir/fhirpathinfo"
	"github.com/SanteonNL/fhirsearch/cmd/fhirsearch/fhir/searchparameter"
	"github.com/SanteonNL/fhirsearch/cmd/fhirsearch/metrics"
	"github.com/SanteonNL/fhirsearch/cmd/fhirsearch/orchestrator"
	"github.com/SanteonNL/fhirsearch/cmd/fhirsearch/output"
	"github.com/SanteonNL/fhirsearch/cmd/fhirsearch/processor"
	"github.com/SanteonNL/fhirsearch/util"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "fhirsearch",
		Short:         "Search a FHIR server, applying locally the parameters it does not support",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().String("capability-url", "", "URL of the server's CapabilityStatement")
	rootCmd.PersistentFlags().String("capability-name", "", "Name of a preloaded CapabilityStatement")

	rootCmd.AddCommand(queryCmd())
	rootCmd.AddCommand(serveCmd())
	return rootCmd
}

func queryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query <ResourceType?param=value&...>",
		Short: "Run one query and print the resulting bundle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			headers := cfg.Headers()
			rawHeaders, _ := cmd.Flags().GetStringArray("header")
			for _, pair := range rawHeaders {
				if err := config.AddHeader(headers, pair); err != nil {
					return err
				}
			}
			if outputDir, _ := cmd.Flags().GetString("output-dir"); outputDir != "" {
				cfg.OutputDir = outputDir
			}

			log := newLogger(cfg.Debug)
			var outputManager *output.OutputManager
			if cfg.OutputDir != "" {
				dir, err := util.GetAbsolutePath(cfg.OutputDir)
				if err != nil {
					return err
				}
				if outputManager, err = output.NewOutputManager(dir, log.GetLevel()); err != nil {
					return err
				}
				defer outputManager.Close()
				log = outputManager.GetLogger()
				log.Debug().Str("dir", outputManager.GetBaseDir()).Msg("Writing output")
			}

			svc, err := newService(cfg, log)
			if err != nil {
				return err
			}

			startTime := time.Now()
			result, err := svc.Run(cmd.Context(), orchestrator.Request{Query: args[0], Headers: headers})
			if err != nil {
				return err
			}
			log.Debug().
				Str("outcome", string(result.Outcome)).
				Dur("duration", time.Since(startTime)).
				Msg("Query finished")

			if outputManager != nil {
				path, err := outputManager.WriteBundle(result.Bundle, args[0])
				if err != nil {
					return err
				}
				log.Info().Str("file", path).Msg("Bundle written")
			}

			data, err := bundle.Marshal(result.Bundle)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	cmd.Flags().StringArray("header", nil, "Header sent with every request, as Name=value (repeatable)")
	cmd.Flags().String("output-dir", "", "Directory to write the bundle and a log file to")
	return cmd
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve GET /r4/{resourceType} searches over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if port, _ := cmd.Flags().GetString("port"); port != "" {
				cfg.Port = port
			}

			log := newLogger(cfg.Debug)
			svc, err := newService(cfg, log)
			if err != nil {
				return err
			}
			metrics.Register()

			router := api.NewFHIRRouter(svc, log)
			server := &http.Server{
				Addr:              ":" + cfg.Port,
				Handler:           router.SetupRoutes(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				log.Info().Str("addr", server.Addr).Msg("Starting server")
				errCh <- server.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
			}

			log.Info().Msg("Shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().String("port", "", "Port to listen on (default from PORT)")
	return cmd
}

// loadConfig reads the environment and applies the flags shared by every command.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		cfg.Debug = true
	}
	if url, _ := cmd.Flags().GetString("capability-url"); url != "" {
		cfg.CapabilityURL = url
	}
	if name, _ := cmd.Flags().GetString("capability-name"); name != "" {
		cfg.CapabilityName = name
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(debug bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.NewConsoleWriter(func(w *zerolog.ConsoleWriter) { w.Out = os.Stderr })).
		Level(level).
		With().
		Timestamp().
		Caller().
		Logger()
}

// newService wires the services the way both commands use them.
func newService(cfg *config.Config, log zerolog.Logger) (*orchestrator.Service, error) {
	transport := client.NewFHIRClient(client.Config{Timeout: cfg.HTTPTimeout}, log)

	preloadedDir, err := util.GetAbsolutePath(cfg.PreloadedDir)
	if err != nil {
		return nil, err
	}
	repo := searchparameter.NewSearchParameterRepository(transport, preloadedDir, log)

	pathInfoSvc, err := fhirpathinfo.NewPathInfoService(log)
	if err != nil {
		return nil, err
	}
	if cfg.FieldMapFile != "" {
		if err := pathInfoSvc.LoadFromFile(cfg.FieldMapFile); err != nil {
			return nil, err
		}
	}

	processorSvc, err := processor.NewProcessorService(processor.ProcessorConfig{
		Log:         log,
		PathInfoSvc: pathInfoSvc,
	})
	if err != nil {
		return nil, err
	}

	return orchestrator.NewService(orchestrator.ServiceConfig{
		Log: log,
		Settings: orchestrator.Settings{
			BaseURL: cfg.FHIRBaseURL,
			Capability: searchparameter.Source{
				URL:  cfg.CapabilityURL,
				Name: cfg.CapabilityName,
			},
			Headers:               cfg.Headers(),
			AllowUnfilteredSearch: cfg.AllowUnfilteredSearch,
			ExpandBinaries:        cfg.ExpandBinaries,
			ExpandMedications:     cfg.ExpandMedications,
		},
		Transport:      transport,
		Repository:     repo,
		SearchParamSvc: searchparameter.NewSearchParameterService(log),
		ProcessorSvc:   processorSvc,
		BundleSvc:      bundle.NewBundleService(log),
	})
}
