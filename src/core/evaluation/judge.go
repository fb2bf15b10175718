package evaluation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/tmc/langchaingo/prompts"

	"ragtune/src/core/rag"
)

var ErrMalformedJudgement = errors.New("judge returned malformed JSON")

// Judge asks a generator for JSON verdicts at temperature 0.
type Judge struct {
	generator rag.Generator
}

func NewJudge(generator rag.Generator) *Judge {
	return &Judge{generator: generator}
}

// Ask renders tmpl with values, sends it and decodes the JSON reply into out.
func (j *Judge) Ask(ctx context.Context, tmpl string, values map[string]any, out any) error {
	names := make([]string, 0, len(values))
	for k := range values {
		names = append(names, k)
	}
	prompt, err := prompts.NewPromptTemplate(tmpl, names).Format(values)
	if err != nil {
		return fmt.Errorf("failed to format judge prompt: %w", err)
	}

	reply, err := j.generator.Generate(ctx, prompt, rag.GenerateOptions{Temperature: 0, JSON: true})
	if err != nil {
		return fmt.Errorf("judge request failed: %w", err)
	}

	if err := json.Unmarshal([]byte(extractJSON(reply)), out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedJudgement, err)
	}
	return nil
}

// extractJSON strips markdown fences and surrounding prose from a model reply.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}

	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return s
	}
	end := strings.LastIndexAny(s, "}]")
	if end < start {
		return s[start:]
	}
	return s[start : end+1]
}

// binary is a 0/1 judgement that also accepts booleans and quoted digits.
type binary int

func (b *binary) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(strings.TrimSpace(string(data)), `"`)
	switch strings.ToLower(raw) {
	case "true", "yes":
		*b = 1
		return nil
	case "false", "no", "", "null":
		*b = 0
		return nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("invalid verdict %q", raw)
	}
	if f >= 1 {
		*b = 1
	} else {
		*b = 0
	}
	return nil
}
