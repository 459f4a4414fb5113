package expand

import (
	"context"
	"strings"

	"github.com/SanteonNL/fhirsearch/cmd/fhirsearch/resource"
	"github.com/rs/zerolog"
)

const medicationScope = "Medication.read"

var medicationResourceTypes = map[string]bool{
	"MedicationRequest":        true,
	"MedicationStatement":      true,
	"MedicationDispense":       true,
	"MedicationAdministration": true,
}

// MedicationExpander replaces medicationReference with the referenced Medication's code.
type MedicationExpander struct {
	log zerolog.Logger
}

func NewMedicationExpander(log zerolog.Logger) *MedicationExpander {
	return &MedicationExpander{
		log: log.With().Str("component", "MedicationExpander").Logger(),
	}
}

func (e *MedicationExpander) Applies(resourceType string) bool {
	return medicationResourceTypes[resourceType]
}

// Expand resolves medicationReference on every medication record. Records whose
// Medication cannot be retrieved keep their reference and stay in the set.
func (e *MedicationExpander) Expand(ctx context.Context, set resource.Set, cache *Cache) Report {
	var report Report

	for _, record := range set {
		if ctx.Err() != nil {
			break
		}
		if record.IsOutcome() {
			logOutcome(e.log, record)
			continue
		}
		if !medicationResourceTypes[record.ResourceType()] || !record.Root.Has("medicationReference") {
			continue
		}

		ref, ok := record.Root.Get("medicationReference").Get("reference").Text()
		if !ok || ref == "" {
			continue
		}

		report.Attempted++
		code, ok := e.lookupCode(ctx, record, ref, cache)
		if !ok {
			report.Failed++
			continue
		}

		record.Preserve()
		record.Root.Replace("medicationReference", "medicationCodeableConcept", code)
		report.Expanded++
	}

	e.log.Debug().
		Int("attempted", report.Attempted).
		Int("expanded", report.Expanded).
		Int("failed", report.Failed).
		Msg("Medication expansion finished")

	return report
}

func (e *MedicationExpander) lookupCode(ctx context.Context, record *resource.Record, ref string, cache *Cache) (*resource.Node, bool) {
	if id, ok := strings.CutPrefix(ref, "#"); ok {
		var contained []*resource.Node
		if list := record.Root.Get("contained"); list != nil {
			contained = list.Items
		}
		for _, candidate := range contained {
			if candidate.StringField("resourceType") == "Medication" && candidate.StringField("id") == id {
				return medicationCode(e.log, candidate, ref)
			}
		}
		e.log.Warn().
			Str("resource", record.ResourceType()+"/"+record.ID()).
			Str("reference", ref).
			Msg("Contained Medication not found")
		return nil, false
	}

	resp, url, err := cache.Fetch(ctx, ref)
	if err != nil || !resp.OK() {
		logFetchFailure(e.log, url, medicationScope, resp, err)
		return nil, false
	}

	medication, err := resource.Parse(resp.Body)
	if err != nil || medication.StringField("resourceType") != "Medication" {
		e.log.Error().Str("url", url).Msg("Reference did not resolve to a Medication")
		return nil, false
	}
	return medicationCode(e.log, medication, url)
}

func medicationCode(log zerolog.Logger, medication *resource.Node, source string) (*resource.Node, bool) {
	code := medication.Get("code")
	if code == nil || code.Kind != resource.Object {
		log.Warn().Str("medication", source).Msg("Medication has no code")
		return nil, false
	}
	return code.Clone(), true
}
