package extract

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cellarworks/enrich-cli/internal/model"
	"github.com/cellarworks/enrich-cli/pkg/anthropic"
)

type stubClient struct {
	reply string
	err   error
	req   anthropic.MessageRequest
}

func (s *stubClient) CreateMessage(_ context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	s.req = req
	if s.err != nil {
		return nil, s.err
	}
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: s.reply}},
	}, nil
}

var testDescriptors = []model.FieldDescriptor{
	{Name: "name", Type: "string", Description: "full product name"},
	{Name: "abv", Type: "number", Description: "alcohol by volume percentage"},
	{Name: "cask_types", Type: "list", Description: "cask types used for maturation"},
}

func TestExtractSingleEntry(t *testing.T) {
	stub := &stubClient{reply: `{
		"entries": [{
			"fields": {"name": "Glen Moray 12", "abv": 40, "cask_types": ["bourbon", "sherry"]},
			"confidence": {"name": 0.95, "abv": 0.9, "cask_types": 0.8}
		}]
	}`}
	ex := NewLLMExtractor(stub, WithModel("test-model"), WithMaxTokens(512))

	entries, err := ex.Extract(context.Background(), "page body", model.CategoryWhiskey, testDescriptors)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	e := entries[0]
	assert.Equal(t, "Glen Moray 12", e.Fields["name"].Text())
	assert.Equal(t, 40.0, e.Fields["abv"].Num)
	assert.Equal(t, model.KindList, e.Fields["cask_types"].Kind)
	assert.Equal(t, 0.95, e.Confidence["name"])

	assert.Equal(t, "test-model", stub.req.Model)
	assert.Equal(t, int64(512), stub.req.MaxTokens)
	assert.Contains(t, stub.req.System, "Product type: whiskey")
	require.Len(t, stub.req.Messages, 1)
	assert.Contains(t, stub.req.Messages[0].Content, "alcohol by volume percentage")
}

func TestExtractMultipleEntries(t *testing.T) {
	stub := &stubClient{reply: "```json\n" + `{
		"entries": [
			{"fields": {"name": "Taylor's 10 Year Tawny"}, "confidence": {"name": 0.9}},
			{"fields": {"name": "Taylor's 20 Year Tawny"}, "confidence": {"name": 0.9}}
		]
	}` + "\n```"}
	ex := NewLLMExtractor(stub)

	entries, err := ex.Extract(context.Background(), "comparison page", model.CategoryPort, testDescriptors)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestExtractFiltersUnknownAndEmpty(t *testing.T) {
	stub := &stubClient{reply: `{
		"entries": [{
			"fields": {"name": "Oban 14", "price_usd": 89.99, "abv": null},
			"confidence": {"name": 1.4, "price_usd": 0.9}
		}]
	}`}
	ex := NewLLMExtractor(stub)

	entries, err := ex.Extract(context.Background(), "body", model.CategoryWhiskey, testDescriptors)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	e := entries[0]
	assert.NotContains(t, e.Fields, "price_usd", "undescribed fields are dropped")
	assert.NotContains(t, e.Fields, "abv", "null values are dropped")
	assert.Equal(t, 1.0, e.Confidence["name"], "confidence clamps to [0,1]")
}

func TestExtractDefaultConfidence(t *testing.T) {
	stub := &stubClient{reply: `{"entries": [{"fields": {"name": "Dow's LBV 2017"}}]}`}
	ex := NewLLMExtractor(stub)

	entries, err := ex.Extract(context.Background(), "body", model.CategoryPort, testDescriptors)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 0.5, entries[0].Confidence["name"])
}

func TestExtractBadJSON(t *testing.T) {
	stub := &stubClient{reply: "The page describes a whiskey."}
	ex := NewLLMExtractor(stub)

	_, err := ex.Extract(context.Background(), "body", model.CategoryWhiskey, testDescriptors)
	assert.Error(t, err)
}

func TestExtractNoDescriptors(t *testing.T) {
	ex := NewLLMExtractor(&stubClient{})
	_, err := ex.Extract(context.Background(), "body", model.CategoryWhiskey, nil)
	assert.Error(t, err)
}

func TestCleanJSON(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`{"a":1}`, `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":1}\n```", `{"a":1}`},
		{"Here you go:\n{\"a\":1}\nHope that helps.", `{"a":1}`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, cleanJSON(tt.in))
	}
}
