package processor

import (
	"context"
	"fmt"
	"strings"

	"github.com/SanteonNL/fhirsearch/cmd/fhirsearch/metrics"
	"github.com/SanteonNL/fhirsearch/cmd/fhirsearch/query"
	"github.com/SanteonNL/fhirsearch/cmd/fhirsearch/resource"
	"github.com/SanteonNL/fhirsearch/models/fhir"
)

// ParamTypes supplies the declared type of a search parameter when the field map has none.
type ParamTypes interface {
	ParamType(resourceType, name string) (fhir.SearchParamType, bool)
}

// NewProcessorService creates a new processor service with all required dependencies
func NewProcessorService(config ProcessorConfig) (*ProcessorService, error) {
	if config.PathInfoSvc == nil {
		return nil, fmt.Errorf("pathInfoSvc is required")
	}

	return &ProcessorService{
		log:         config.Log.With().Str("component", "ProcessorService").Logger(),
		pathInfoSvc: config.PathInfoSvc,
	}, nil
}

// Filter keeps the records that satisfy every parameter of spec, in their original order.
// OperationOutcome entries are removed and returned separately. Parameters that cannot be
// evaluated locally are logged and reject nothing. types may be nil.
//
// A record whose references were expanded is also checked as the server returned it.
func (p *ProcessorService) Filter(ctx context.Context, set resource.Set, spec query.Spec, types ParamTypes) (FilterResult, error) {
	criteria, skipped := p.compile(spec, types)

	result := FilterResult{Skipped: skipped}
	for _, record := range set {
		if err := ctx.Err(); err != nil {
			p.log.Warn().Err(err).Msg("Filtering interrupted")
			return FilterResult{}, fmt.Errorf("filtering interrupted: %w", err)
		}

		if record.IsOutcome() {
			p.logOutcome(record)
			metrics.FilterRecordsTotal.WithLabelValues("outcome").Inc()
			result.Outcomes = append(result.Outcomes, record)
			continue
		}

		if p.matches(record, criteria) {
			metrics.FilterRecordsTotal.WithLabelValues("kept").Inc()
			result.Records = append(result.Records, record)
		} else {
			metrics.FilterRecordsTotal.WithLabelValues("rejected").Inc()
		}
	}

	p.log.Debug().
		Str("resource_type", spec.ResourceType).
		Int("criteria", len(criteria)).
		Int("input", len(set)).
		Int("kept", len(result.Records)).
		Int("outcomes", len(result.Outcomes)).
		Msg("Filtered result set")

	return result, nil
}

func (p *ProcessorService) matches(record *resource.Record, criteria []criterion) bool {
	for _, c := range criteria {
		if !c.holds(record) {
			p.log.Debug().
				Str("resource", record.ResourceType()+"/"+record.ID()).
				Str("parameter", c.key).
				Msg("Resource did not pass filter")
			return false
		}
	}
	return true
}

// holds matches the criterion against the nodes of both forms of the record, so fields
// removed by expansion and fields added by it are all seen.
func (c criterion) holds(record *resource.Record) bool {
	var nodes []*resource.Node
	for _, path := range c.paths {
		nodes = append(nodes, record.Resolve(path)...)
		nodes = append(nodes, record.ResolveOriginal(path)...)
	}
	return c.match(nodes)
}

// compile turns each evaluable parameter into a criterion and returns the keys of the
// selecting parameters it had to leave out.
func (p *ProcessorService) compile(spec query.Spec, types ParamTypes) ([]criterion, []string) {
	var (
		criteria []criterion
		skipped  []string
	)

	for _, param := range spec.Params {
		if query.IsResultParameter(param.Name) {
			continue
		}

		info, ok := p.pathInfoSvc.Lookup(spec.ResourceType, param.Name)
		if !ok {
			p.log.Warn().
				Str("resource_type", spec.ResourceType).
				Str("parameter", param.Key()).
				Msg("No field mapping for search parameter, not applied locally")
			skipped = append(skipped, param.Key())
			continue
		}

		paramType := info.Type
		if paramType == "" && types != nil {
			paramType, _ = types.ParamType(spec.ResourceType, param.Name)
		}

		match, err := buildMatcher(paramType, param)
		if err != nil {
			p.log.Warn().
				Err(err).
				Str("parameter", param.Key()).
				Str("type", paramType.String()).
				Msg("Search parameter not applied locally")
			skipped = append(skipped, param.Key())
			continue
		}

		criteria = append(criteria, criterion{
			key:       param.Key(),
			paramType: paramType,
			paths:     info.Paths,
			match:     match,
		})
	}

	return criteria, skipped
}

func (p *ProcessorService) logOutcome(record *resource.Record) {
	var diagnostics []string
	for _, issue := range record.Resolve("issue") {
		text := issue.StringField("diagnostics")
		if text == "" {
			text = issue.Get("details").StringField("text")
		}
		if text != "" {
			diagnostics = append(diagnostics, issue.StringField("severity")+": "+text)
		}
	}
	p.log.Warn().
		Str("diagnostics", strings.Join(diagnostics, "; ")).
		Msg("OperationOutcome returned with search results")
}
