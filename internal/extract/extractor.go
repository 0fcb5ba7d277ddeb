// Package extract turns fetched page content into typed field entries
// using an LLM. Field vocabulary arrives as descriptors from
// configuration; the extractor has no product knowledge of its own.
package extract

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/cellarworks/enrich-cli/internal/model"
	"github.com/cellarworks/enrich-cli/pkg/anthropic"
)

// Entry is one extracted product from a page. A detail page yields one
// entry; a list or comparison page may yield several.
type Entry struct {
	Fields     map[string]model.Value
	Confidence map[string]float64
}

// Extractor extracts field entries from page content.
type Extractor interface {
	Extract(ctx context.Context, content string, category model.Category, descriptors []model.FieldDescriptor) ([]Entry, error)
}

const (
	defaultModel     = "claude-haiku-4-5-20251001"
	defaultMaxTokens = 2048
	// Pages longer than this are truncated before prompting; attribute
	// sections sit near the top after boilerplate stripping.
	maxContentRunes = 24000
)

// LLMExtractor implements Extractor over the Anthropic messages API.
type LLMExtractor struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

type Option func(*LLMExtractor)

func WithModel(m string) Option {
	return func(e *LLMExtractor) { e.model = m }
}

func WithMaxTokens(n int64) Option {
	return func(e *LLMExtractor) { e.maxTokens = n }
}

func NewLLMExtractor(client anthropic.Client, opts ...Option) *LLMExtractor {
	e := &LLMExtractor{
		client:    client,
		model:     defaultModel,
		maxTokens: defaultMaxTokens,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *LLMExtractor) Extract(ctx context.Context, content string, category model.Category, descriptors []model.FieldDescriptor) ([]Entry, error) {
	if len(descriptors) == 0 {
		return nil, eris.New("extract: no field descriptors")
	}
	runes := []rune(content)
	if len(runes) > maxContentRunes {
		content = string(runes[:maxContentRunes])
	}

	temp := 0.0
	resp, err := e.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       e.model,
		MaxTokens:   e.maxTokens,
		System:      BuildSystem(category),
		Messages:    []anthropic.Message{{Role: "user", Content: BuildUserMessage(content, descriptors)}},
		Temperature: &temp,
	})
	if err != nil {
		return nil, eris.Wrap(err, "extract: create message")
	}

	entries, err := parseEntries(resp.Text(), descriptors)
	if err != nil {
		return nil, err
	}
	zap.L().Debug("extraction complete",
		zap.Int("entries", len(entries)),
		zap.Int64("input_tokens", resp.Usage.InputTokens),
		zap.Int64("output_tokens", resp.Usage.OutputTokens))
	return entries, nil
}

// parseEntries decodes the LLM response and filters to the requested
// field names. Fields without a confidence value get a conservative
// default, clamped to [0,1].
func parseEntries(text string, descriptors []model.FieldDescriptor) ([]Entry, error) {
	var raw struct {
		Entries []struct {
			Fields     map[string]any     `json:"fields"`
			Confidence map[string]float64 `json:"confidence"`
		} `json:"entries"`
	}
	cleaned := cleanJSON(text)
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		return nil, eris.Wrap(err, "extract: parse response")
	}

	known := make(map[string]bool, len(descriptors))
	for _, d := range descriptors {
		known[d.Name] = true
	}

	entries := make([]Entry, 0, len(raw.Entries))
	for _, re := range raw.Entries {
		entry := Entry{
			Fields:     map[string]model.Value{},
			Confidence: map[string]float64{},
		}
		for name, v := range re.Fields {
			if !known[name] || v == nil {
				continue
			}
			val := model.FromAny(v)
			if val.Empty() {
				continue
			}
			entry.Fields[name] = val
			conf, ok := re.Confidence[name]
			if !ok {
				conf = 0.5
			}
			if conf < 0 {
				conf = 0
			} else if conf > 1 {
				conf = 1
			}
			entry.Confidence[name] = conf
		}
		if len(entry.Fields) > 0 {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}
