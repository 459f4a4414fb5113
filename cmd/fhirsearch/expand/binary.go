package expand

import (
	"context"
	"encoding/base64"
	"mime"
	"strings"

	"github.com/SanteonNL/fhirsearch/cmd/fhirsearch/client"
	"github.com/SanteonNL/fhirsearch/cmd/fhirsearch/resource"
	"github.com/rs/zerolog"
)

const (
	binaryScope     = "Binary.read"
	contentTypeHTML = "text/html"
	contentTypeText = "text/plain"
)

// BinaryExpander inlines attachments that point at a Binary through their url.
type BinaryExpander struct {
	log zerolog.Logger
}

func NewBinaryExpander(log zerolog.Logger) *BinaryExpander {
	return &BinaryExpander{
		log: log.With().Str("component", "BinaryExpander").Logger(),
	}
}

// Applies reports whether records of resourceType can carry Binary-backed attachments.
func (e *BinaryExpander) Applies(resourceType string) bool {
	return resourceType == "DocumentReference" || resourceType == "DiagnosticReport"
}

// Expand fetches every attachment url that has no inline data. A failed fetch leaves
// the attachment with empty data and no url. Expanded HTML attachments get a plain
// text sibling.
func (e *BinaryExpander) Expand(ctx context.Context, set resource.Set, cache *Cache) Report {
	var report Report

	for _, record := range set {
		if ctx.Err() != nil {
			break
		}
		if record.IsOutcome() {
			logOutcome(e.log, record)
			continue
		}

		var container *resource.Node
		var wrap func(attachment *resource.Node) *resource.Node

		switch record.ResourceType() {
		case "DocumentReference":
			container = record.Root.Get("content")
			wrap = func(attachment *resource.Node) *resource.Node {
				item := resource.NewObject()
				item.Set("attachment", attachment)
				return item
			}
		case "DiagnosticReport":
			container = record.Root.Get("presentedForm")
			wrap = func(attachment *resource.Node) *resource.Node { return attachment }
		default:
			continue
		}
		if container == nil || container.Kind != resource.Array {
			continue
		}

		var siblings []*resource.Node
		for _, item := range container.Items {
			attachment := item
			if record.ResourceType() == "DocumentReference" {
				attachment = item.Get("attachment")
			}
			if attachment == nil || attachment.Kind != resource.Object {
				continue
			}

			if !e.expandAttachment(ctx, record, attachment, cache, &report) {
				continue
			}
			if text, ok := e.plainTextSibling(attachment); ok {
				siblings = append(siblings, wrap(text))
			}
		}
		for _, sibling := range siblings {
			container.Append(sibling)
		}
	}

	e.log.Debug().
		Int("attempted", report.Attempted).
		Int("expanded", report.Expanded).
		Int("failed", report.Failed).
		Msg("Binary expansion finished")

	return report
}

// expandAttachment reports whether the attachment now carries fetched data.
func (e *BinaryExpander) expandAttachment(ctx context.Context, record *resource.Record, attachment *resource.Node, cache *Cache, report *Report) bool {
	ref, ok := attachment.Get("url").Text()
	if !ok || ref == "" {
		return false
	}
	if data, ok := attachment.Get("data").Text(); ok && data != "" {
		return false
	}

	report.Attempted++
	resp, url, err := cache.Fetch(ctx, ref)
	if err != nil && ctx.Err() != nil {
		e.log.Warn().Err(err).Str("url", url).Msg("Binary expansion interrupted")
		return false
	}

	record.Preserve()
	if err != nil || !resp.OK() {
		logFetchFailure(e.log, url, binaryScope, resp, err)
		e.log.Debug().
			Str("resource", record.ResourceType()+"/"+record.ID()).
			Msg("Setting attachment data to empty since Binary could not be retrieved")
		attachment.Set("data", resource.NewString(""))
		attachment.Delete("url")
		report.Failed++
		return false
	}

	data, contentType := binaryPayload(resp)
	attachment.Set("data", resource.NewString(data))
	if contentType != "" && attachment.StringField("contentType") == "" {
		attachment.Set("contentType", resource.NewString(contentType))
	}
	attachment.Delete("url")
	report.Expanded++
	return true
}

// binaryPayload returns base64 content and, when known, its content type. A FHIR Binary
// already carries base64 data; any other body is encoded as is.
func binaryPayload(resp *client.Response) (string, string) {
	if resp.IsJSON() {
		if node, err := resource.Parse(resp.Body); err == nil && node.StringField("resourceType") == "Binary" {
			return node.StringField("data"), node.StringField("contentType")
		}
	}
	return base64.StdEncoding.EncodeToString(resp.Body), resp.ContentType()
}

func (e *BinaryExpander) plainTextSibling(attachment *resource.Node) (*resource.Node, bool) {
	if mediaType(attachment.StringField("contentType")) != contentTypeHTML {
		return nil, false
	}

	data := attachment.StringField("data")
	markup, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		markup = []byte(data)
	}

	text, err := htmlToText(string(markup))
	if err != nil {
		e.log.Warn().Err(err).Msg("Failed to convert HTML attachment to plain text")
		return nil, false
	}

	sibling := resource.NewObject()
	sibling.Set("contentType", resource.NewString(contentTypeText))
	sibling.Set("data", resource.NewString(base64.StdEncoding.EncodeToString([]byte(text))))
	return sibling, true
}

func mediaType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt, _, _ = strings.Cut(contentType, ";")
	}
	return strings.ToLower(strings.TrimSpace(mt))
}
