package answer

import (
	"context"
	"regexp"
	"strings"
)

// noEvidence is the extractive answer when nothing was retrieved.
const noEvidence = "No relevant information was found in the indexed documents."

// fullFileVerbs mark queries asking for the document itself.
var fullFileVerbs = []string{"show", "open", "send", "share", "download", "original", "file", "copy of"}

// Extractive answers offline by quoting the top evidence item. It tags
// requests for a document as FULL_FILE and everything else as TEXT_ONLY.
type Extractive struct{}

func (Extractive) Generate(ctx context.Context, query, evidence string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	tag := "[RESPONSE_TYPE: TEXT_ONLY]"
	if asksForFile(query) {
		tag = "[RESPONSE_TYPE: FULL_FILE]"
	}

	text := firstItem(evidence)
	if text == "" {
		return noEvidence + "\n" + tag, nil
	}
	return text + "\n" + tag, nil
}

func asksForFile(query string) bool {
	q := strings.ToLower(query)
	for _, v := range fullFileVerbs {
		if strings.Contains(q, v) {
			return true
		}
	}
	return false
}

var itemHeader = regexp.MustCompile(`(?m)^\[\d+\] .*$`)

// firstItem returns the body of the first evidence item built by BuildEvidence.
func firstItem(evidence string) string {
	headers := itemHeader.FindAllStringIndex(evidence, 2)
	if len(headers) == 0 {
		return strings.TrimSpace(evidence)
	}
	end := len(evidence)
	if len(headers) == 2 {
		end = headers[1][0]
	}
	return strings.TrimSpace(evidence[headers[0][1]:end])
}
