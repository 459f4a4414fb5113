package output

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/SanteonNL/fhirsearch/cmd/fhirsearch/fhir/bundle"
	"github.com/SanteonNL/fhirsearch/models/fhir"
	"github.com/rs/zerolog"
)

// OutputManager writes result bundles and a copy of the log into a timestamped directory.
type OutputManager struct {
	baseDir   string
	timestamp string
	logFile   *os.File
	log       zerolog.Logger
}

// NewOutputManager creates <baseDir>/<timestamp>/ with a logs/app.log file. The returned
// manager's logger writes to the console and that file.
func NewOutputManager(baseDir string, level zerolog.Level) (*OutputManager, error) {
	timestamp := time.Now().Format("20060102_150405")

	outputPath := filepath.Join(baseDir, timestamp)
	logsDir := filepath.Join(outputPath, "logs")
	if err := os.MkdirAll(logsDir, os.ModePerm); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	logFile, err := os.Create(filepath.Join(logsDir, "app.log"))
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}

	consoleWriter := zerolog.NewConsoleWriter(func(w *zerolog.ConsoleWriter) {
		w.Out = os.Stderr
	})
	multiWriter := zerolog.MultiLevelWriter(consoleWriter, logFile)

	combinedLogger := zerolog.New(multiWriter).
		Level(level).
		With().
		Timestamp().
		Caller().
		Logger()

	return &OutputManager{
		baseDir:   outputPath,
		timestamp: timestamp,
		logFile:   logFile,
		log:       combinedLogger,
	}, nil
}

// WriteBundle writes b to <prefix>_<timestamp>.json and returns the file path.
func (om *OutputManager) WriteBundle(b *fhir.Bundle, prefix string) (string, error) {
	data, err := bundle.Marshal(b)
	if err != nil {
		return "", err
	}

	filename := fmt.Sprintf("%s_%s.json", sanitize(prefix), om.timestamp)
	outputPath := filepath.Join(om.baseDir, filename)
	if err := os.WriteFile(outputPath, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write output file: %w", err)
	}

	om.log.Debug().
		Str("file", outputPath).
		Str("prefix", prefix).
		Msg("Wrote bundle to JSON file")

	return outputPath, nil
}

// GetLogger returns the configured logger
func (om *OutputManager) GetLogger() zerolog.Logger {
	return om.log
}

// GetBaseDir returns the base output directory
func (om *OutputManager) GetBaseDir() string {
	return om.baseDir
}

func (om *OutputManager) Close() error {
	return om.logFile.Close()
}

var unsafeFileChars = strings.NewReplacer("/", "_", "\\", "_", "?", "_", "&", "_", ":", "_", "|", "_", "*", "_", "=", "-")

func sanitize(prefix string) string {
	if prefix == "" {
		return "result"
	}
	return unsafeFileChars.Replace(prefix)
}
