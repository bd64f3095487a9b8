// Package answer turns a query and retrieved evidence into an answer string
// ending in a [RESPONSE_TYPE: ...] tag.
package answer

import (
	"context"
	"fmt"
	"strings"

	"github.com/bull/docrag-mcp-server/internal/storage"
)

// Generator produces an answer for query from assembled evidence text.
// The answer should, but is not guaranteed to, carry a RESPONSE_TYPE tag.
type Generator interface {
	Generate(ctx context.Context, query, evidence string) (string, error)
}

// BuildEvidence formats results into the evidence block passed to a Generator.
// Each item is numbered and labelled with its document name and score.
func BuildEvidence(results []storage.SimilarityResult) string {
	var b strings.Builder
	for i, r := range results {
		name := ""
		if r.Document != nil {
			name = r.Document.Name
		}
		fmt.Fprintf(&b, "[%d] %s (chunk %d, score %.3f)\n", i+1, name, r.Chunk.Index, r.Score)
		b.WriteString(strings.TrimSpace(r.Chunk.Text))
		b.WriteString("\n\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
