package ects

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"cloud.google.com/go/vertexai/genai"
)

const layoutPrompt = `The attached PDF is an academic transcript. List every course or module row that carries credits.
Return a JSON array of objects with exactly two keys:
  - "module": the module name exactly as printed
  - "credits": the ECTS / LP / CP value of that row as printed, for example "7,5"
Skip rows without a credit value, totals and grade averages.`

// ContentGenerator is the part of *genai.GenerativeModel the extractor needs.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// VertexExtractor asks a Gemini model to read credit rows from the PDF and
// maps the returned module names through the catalogue.
type VertexExtractor struct {
	model ContentGenerator
}

func NewVertexExtractor(model ContentGenerator) *VertexExtractor {
	return &VertexExtractor{model: model}
}

// creditRow is one row reported by the model. Credits may come back as a
// JSON number or a string.
type creditRow struct {
	Module  string      `json:"module"`
	Credits creditValue `json:"credits"`
}

type creditValue string

func (c *creditValue) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*c = creditValue(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("credits must be a number or string: %w", err)
	}
	*c = creditValue(n.String())
	return nil
}

// ExtractLayout implements LayoutExtractor.
func (v *VertexExtractor) ExtractLayout(ctx context.Context, path string, modules ModuleMap, categories []string) (Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Result{}, fmt.Errorf("failed to read document: %w", err)
	}

	resp, err := v.model.GenerateContent(ctx,
		genai.Blob{MIMEType: "application/pdf", Data: data},
		genai.Text(layoutPrompt),
	)
	if err != nil {
		return Result{}, fmt.Errorf("vertex AI API call failed: %w", err)
	}

	rows, err := parseCreditRows(responseText(resp))
	if err != nil {
		return Result{}, err
	}
	return rowsToResult(rows, modules, categories), nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	return b.String()
}

func parseCreditRows(body string) ([]creditRow, error) {
	body = strings.TrimSpace(body)
	body = strings.TrimPrefix(body, "```json")
	body = strings.TrimPrefix(body, "```")
	body = strings.TrimSuffix(body, "```")
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, fmt.Errorf("model returned no content")
	}
	var rows []creditRow
	if err := json.Unmarshal([]byte(body), &rows); err != nil {
		return nil, fmt.Errorf("failed to unmarshal credit rows: %w", err)
	}
	return rows, nil
}

func rowsToResult(rows []creditRow, modules ModuleMap, categories []string) Result {
	res := newResult(categories, MethodVertexLayout)
	for _, row := range rows {
		line := strings.TrimSpace(row.Module + " " + string(row.Credits))
		mod, ok := modules.Match(strings.ToLower(row.Module))
		if !ok {
			res.Unrecognized = append(res.Unrecognized, line)
			continue
		}
		credits, err := ParseCredit(string(row.Credits))
		if err != nil {
			res.Unrecognized = append(res.Unrecognized, line)
			continue
		}
		res.add(mod, credits, line)
	}
	return res
}
