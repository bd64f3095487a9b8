// Package arbiter decides the shape of a final response from a generated
// answer and the evidence it was generated from.
//
// The answer generator is asked to end its answer with a tag of the form
// [RESPONSE_TYPE: TEXT_ONLY|FULL_FILE|MIXED]. The tag is a soft signal: a
// missing or unknown tag yields a lower-confidence text-only decision, and
// an unresolvable artifact degrades FULL_FILE to text with a note. Decide
// never returns an error.
package arbiter

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/bull/docrag-mcp-server/internal/artifact"
	"github.com/bull/docrag-mcp-server/internal/metrics"
	"github.com/bull/docrag-mcp-server/internal/storage"
)

// Classification is the shape of the final response.
type Classification string

const (
	TextOnly     Classification = "TEXT_ONLY"
	FullArtifact Classification = "FULL_ARTIFACT"
	Mixed        Classification = "MIXED"
)

// Tags understood in the RESPONSE_TYPE protocol.
const (
	TagTextOnly = "TEXT_ONLY"
	TagFullFile = "FULL_FILE"
	TagMixed    = "MIXED"
)

// Confidence per decision branch.
const (
	ConfidenceTextOnly   = 0.8
	ConfidenceFullFile   = 0.9
	ConfidenceDegraded   = 0.5
	ConfidenceMixed      = 0.7
	ConfidenceTagMissing = 0.6
)

// UnavailableNote is appended when a FULL_FILE answer has no artifact.
const UnavailableNote = "The original artifact is not available locally."

var tagPattern = regexp.MustCompile(`(?i)\[RESPONSE_TYPE:\s*(\w+)\s*\]`)

// Decision is the arbiter's output.
type Decision struct {
	Classification Classification     `json:"classification"`
	Text           string             `json:"text"`
	Document       *storage.Document  `json:"document,omitempty"`
	Artifact       *artifact.Artifact `json:"artifact,omitempty"`
	Confidence     float64            `json:"confidence"`
}

// Arbiter applies the decision table, resolving artifacts through a Resolver.
type Arbiter struct {
	resolver artifact.Resolver
	logger   *slog.Logger
}

// New creates an Arbiter. A nil resolver never resolves artifacts.
func New(resolver artifact.Resolver, logger *slog.Logger) *Arbiter {
	if resolver == nil {
		resolver = artifact.None{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Arbiter{resolver: resolver, logger: logger}
}

// ParseTag returns the first RESPONSE_TYPE tag value, upper-cased, and
// whether one was present.
func ParseTag(answer string) (string, bool) {
	m := tagPattern.FindStringSubmatch(answer)
	if m == nil {
		return "", false
	}
	return strings.ToUpper(m[1]), true
}

// StripTags removes every RESPONSE_TYPE tag and trims the result.
func StripTags(answer string) string {
	return strings.TrimSpace(tagPattern.ReplaceAllString(answer, ""))
}

// Decide classifies answer given evidence ordered by descending score.
// typeHint, when non-empty, picks the FULL_FILE document by a
// case-insensitive substring match on name or description.
func (a *Arbiter) Decide(ctx context.Context, answer string, evidence []storage.SimilarityResult, typeHint string) Decision {
	tag, found := ParseTag(answer)
	d := Decision{Text: StripTags(answer)}

	switch {
	case found && tag == TagTextOnly:
		d.Classification = TextOnly
		d.Confidence = ConfidenceTextOnly

	case found && tag == TagFullFile:
		doc := selectDocument(evidence, typeHint)
		if art := a.resolve(ctx, doc); art != nil {
			d.Classification = FullArtifact
			d.Confidence = ConfidenceFullFile
			d.Document = doc
			d.Artifact = art
		} else {
			d.Classification = TextOnly
			d.Confidence = ConfidenceDegraded
			d.Document = doc
			d.Text = appendNote(d.Text, UnavailableNote)
		}

	case found && tag == TagMixed:
		d.Classification = Mixed
		d.Confidence = ConfidenceMixed
		if doc := topDocument(evidence); doc != nil {
			d.Document = doc
			d.Artifact = a.resolve(ctx, doc)
		}

	default:
		if found {
			a.logger.Debug("unknown response type tag", "tag", tag)
		}
		d.Classification = TextOnly
		d.Confidence = ConfidenceTagMissing
	}

	metrics.ArbiterDecisions.WithLabelValues(string(d.Classification)).Inc()
	return d
}

func (a *Arbiter) resolve(ctx context.Context, doc *storage.Document) *artifact.Artifact {
	if doc == nil {
		return nil
	}
	art, err := a.resolver.Resolve(ctx, doc)
	if err != nil {
		a.logger.Debug("artifact not resolved", "document_id", doc.ID, "error", err)
		return nil
	}
	return art
}

// selectDocument prefers the first evidence item whose document name or
// description contains hint, else the top-scoring item.
func selectDocument(evidence []storage.SimilarityResult, hint string) *storage.Document {
	hint = strings.ToLower(strings.TrimSpace(hint))
	if hint != "" {
		for _, e := range evidence {
			if e.Document == nil {
				continue
			}
			if strings.Contains(strings.ToLower(e.Document.Name), hint) ||
				strings.Contains(strings.ToLower(e.Document.Description), hint) {
				return e.Document
			}
		}
	}
	return topDocument(evidence)
}

func topDocument(evidence []storage.SimilarityResult) *storage.Document {
	for _, e := range evidence {
		if e.Document != nil {
			return e.Document
		}
	}
	return nil
}

func appendNote(text, note string) string {
	if text == "" {
		return note
	}
	return text + "\n\n" + note
}
