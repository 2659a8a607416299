// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package completion wraps a text-completion service used for two optional
// refinements: rephrasing search queries between iterations and writing
// short narratives onto cache entries. The research loop must run
// unattended without it, so every caller falls back to deterministic
// behavior when the service is absent or failing.
// Implements: prd002-queries (R4), prd007-orchestration (R5).
package completion

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"text/template"

	"github.com/pdiddy/feasibility-engine/pkg/types"
)

// Client produces plain text for a prompt. Implementations must honor ctx.
// The concrete client is ClaudeClient; tests supply stubs.
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// refinePromptTmpl asks for a sharper phrasing of one search query. The
// reply must be a bare query string; everything past the first line is
// discarded defensively in RefineQuery.
var refinePromptTmpl = template.Must(template.New("refine").Parse(`Given the original search query: "{{.Query}}"
Research context: evaluating a partnership with a {{.PartnerType}} in the {{.Industry}} industry in {{.Location}}.
The previous round of research fell short because of: {{.Reason}}.

Provide an improved, more specific search query that would surface better numeric market data for this context.

Return only the improved query, no explanation.`))

// narrativePromptTmpl asks for a short narrative over one category's
// benchmarks, written back onto the category's most recent cache entry.
var narrativePromptTmpl = template.Must(template.New("narrative").Parse(`Based on the following market benchmarks gathered for the "{{.Category}}" research category:

{{range .Benchmarks}}- {{.FieldName}}: {{.Value}} {{.Unit}} (confidence {{printf "%.2f" .Confidence}}, source {{.SourceURL}})
{{end}}
Synthesize a coherent two-to-three sentence market analysis narrative for partnership evaluation. Focus on what the numbers imply for a prospective business partnership.

Return only the narrative text.`))

// RefineQuery asks the service for an improved phrasing of query, given the
// gap reason that triggered the refinement. The reply is reduced to its
// first non-empty line with surrounding quotes stripped; an empty reply is
// an error so the caller falls back to its template query.
func RefineQuery(ctx context.Context, c Client, query string, reason types.GapReason, biz types.BusinessContext) (string, error) {
	var buf bytes.Buffer
	err := refinePromptTmpl.Execute(&buf, struct {
		Query, PartnerType, Industry, Location string
		Reason                                 types.GapReason
	}{query, biz.PartnerType, biz.Industry, biz.Location, reason})
	if err != nil {
		return "", fmt.Errorf("rendering refine prompt: %w", err)
	}

	reply, err := c.Complete(ctx, buf.String())
	if err != nil {
		return "", err
	}

	refined := firstLine(reply)
	if refined == "" {
		return "", fmt.Errorf("completion returned no usable query text")
	}
	return refined, nil
}

// Narrative asks the service for a short synthesis of a category's
// benchmarks. Callers log-and-ignore failures: the narrative is cache
// garnish, never pipeline input.
func Narrative(ctx context.Context, c Client, category string, benchmarks []types.ExtractedBenchmark) (string, error) {
	var buf bytes.Buffer
	err := narrativePromptTmpl.Execute(&buf, struct {
		Category   string
		Benchmarks []types.ExtractedBenchmark
	}{category, benchmarks})
	if err != nil {
		return "", fmt.Errorf("rendering narrative prompt: %w", err)
	}

	reply, err := c.Complete(ctx, buf.String())
	if err != nil {
		return "", err
	}

	narrative := strings.TrimSpace(reply)
	if narrative == "" {
		return "", fmt.Errorf("completion returned empty narrative")
	}
	return narrative, nil
}

// firstLine returns the first non-empty line, unquoted and trimmed.
func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		line = strings.Trim(line, `"'`)
		line = strings.TrimSpace(line)
		if line != "" {
			return line
		}
	}
	return ""
}
