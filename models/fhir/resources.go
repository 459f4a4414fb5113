package fhir

import (
	"encoding/json"
	"fmt"
)

// BundleType is the FHIR Bundle.type code
type BundleType string

const BundleTypeSearchset BundleType = "searchset"

// Bundle is the subset of the FHIR Bundle used for search results.
type Bundle struct {
	ResourceType string        `json:"resourceType"`
	Id           *string       `json:"id,omitempty"`
	Type         BundleType    `json:"type"`
	Timestamp    *string       `json:"timestamp,omitempty"`
	Total        *int          `json:"total,omitempty"`
	Link         []BundleLink  `json:"link,omitempty"`
	Entry        []BundleEntry `json:"entry,omitempty"`
}

type BundleLink struct {
	Relation string `json:"relation"`
	Url      string `json:"url"`
}

// BundleEntry keeps the resource as raw JSON; callers decide how to decode it.
type BundleEntry struct {
	FullUrl  *string            `json:"fullUrl,omitempty"`
	Resource json.RawMessage    `json:"resource,omitempty"`
	Search   *BundleEntrySearch `json:"search,omitempty"`
}

type BundleEntrySearch struct {
	Mode  *string      `json:"mode,omitempty"`
	Score *json.Number `json:"score,omitempty"`
}

// UnmarshalBundle unmarshals a Bundle and checks its resourceType.
func UnmarshalBundle(b []byte) (Bundle, error) {
	var bundle Bundle
	if err := json.Unmarshal(b, &bundle); err != nil {
		return bundle, err
	}
	if bundle.ResourceType != "Bundle" {
		return bundle, fmt.Errorf("expected resourceType Bundle, got %q", bundle.ResourceType)
	}
	return bundle, nil
}

type IssueSeverity string

const (
	IssueSeverityFatal       IssueSeverity = "fatal"
	IssueSeverityError       IssueSeverity = "error"
	IssueSeverityWarning     IssueSeverity = "warning"
	IssueSeverityInformation IssueSeverity = "information"
)

type IssueType string

const (
	IssueTypeInvalid       IssueType = "invalid"
	IssueTypeSecurity      IssueType = "security"
	IssueTypeForbidden     IssueType = "forbidden"
	IssueTypeProcessing    IssueType = "processing"
	IssueTypeNotSupported  IssueType = "not-supported"
	IssueTypeBusinessRule  IssueType = "business-rule"
	IssueTypeTooCostly     IssueType = "too-costly"
	IssueTypeNotFound      IssueType = "not-found"
	IssueTypeIncomplete    IssueType = "incomplete"
	IssueTypeInformational IssueType = "informational"
)

type OperationOutcome struct {
	ResourceType string                  `json:"resourceType"`
	Id           *string                 `json:"id,omitempty"`
	Issue        []OperationOutcomeIssue `json:"issue"`
}

type OperationOutcomeIssue struct {
	Severity    IssueSeverity    `json:"severity"`
	Code        IssueType        `json:"code"`
	Details     *CodeableConcept `json:"details,omitempty"`
	Diagnostics *string          `json:"diagnostics,omitempty"`
	Expression  []string         `json:"expression,omitempty"`
}

type CodeableConcept struct {
	Coding []Coding `json:"coding,omitempty"`
	Text   *string  `json:"text,omitempty"`
}

type Coding struct {
	System  *string `json:"system,omitempty"`
	Version *string `json:"version,omitempty"`
	Code    *string `json:"code,omitempty"`
	Display *string `json:"display,omitempty"`
}

// SearchParamType is the FHIR search-param-type code
type SearchParamType string

const (
	SearchParamTypeNumber    SearchParamType = "number"
	SearchParamTypeDate      SearchParamType = "date"
	SearchParamTypeString    SearchParamType = "string"
	SearchParamTypeToken     SearchParamType = "token"
	SearchParamTypeReference SearchParamType = "reference"
	SearchParamTypeComposite SearchParamType = "composite"
	SearchParamTypeQuantity  SearchParamType = "quantity"
	SearchParamTypeUri       SearchParamType = "uri"
	SearchParamTypeSpecial   SearchParamType = "special"
)

func (t SearchParamType) String() string {
	return string(t)
}

// Valid reports whether t is one of the codes defined by FHIR.
func (t SearchParamType) Valid() bool {
	switch t {
	case SearchParamTypeNumber, SearchParamTypeDate, SearchParamTypeString, SearchParamTypeToken,
		SearchParamTypeReference, SearchParamTypeComposite, SearchParamTypeQuantity,
		SearchParamTypeUri, SearchParamTypeSpecial:
		return true
	}
	return false
}

type RestfulCapabilityMode string

const (
	RestfulCapabilityModeClient RestfulCapabilityMode = "client"
	RestfulCapabilityModeServer RestfulCapabilityMode = "server"
)

// CapabilityStatement is the subset needed to learn which search parameters a server supports.
type CapabilityStatement struct {
	ResourceType string                    `json:"resourceType"`
	Url          *string                   `json:"url,omitempty"`
	Name         *string                   `json:"name,omitempty"`
	Status       string                    `json:"status,omitempty"`
	Kind         string                    `json:"kind,omitempty"`
	FhirVersion  string                    `json:"fhirVersion,omitempty"`
	Rest         []CapabilityStatementRest `json:"rest,omitempty"`
}

type CapabilityStatementRest struct {
	Mode        RestfulCapabilityMode                        `json:"mode"`
	Resource    []CapabilityStatementRestResource            `json:"resource,omitempty"`
	SearchParam []CapabilityStatementRestResourceSearchParam `json:"searchParam,omitempty"`
}

type CapabilityStatementRestResource struct {
	Type        string                                       `json:"type"`
	SearchParam []CapabilityStatementRestResourceSearchParam `json:"searchParam,omitempty"`
}

type CapabilityStatementRestResourceSearchParam struct {
	Name          string          `json:"name"`
	Definition    *string         `json:"definition,omitempty"`
	Type          SearchParamType `json:"type"`
	Documentation *string         `json:"documentation,omitempty"`
}

// UnmarshalCapabilityStatement unmarshals a CapabilityStatement and checks its resourceType.
func UnmarshalCapabilityStatement(b []byte) (CapabilityStatement, error) {
	var cs CapabilityStatement
	if err := json.Unmarshal(b, &cs); err != nil {
		return cs, err
	}
	if cs.ResourceType != "CapabilityStatement" {
		return cs, fmt.Errorf("expected resourceType CapabilityStatement, got %q", cs.ResourceType)
	}
	return cs, nil
}
