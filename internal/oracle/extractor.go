// Package oracle classifies job application emails with a generative model,
// constrained to the closed status vocabulary.
package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jkoval/apptrack/internal/gemini"
	"github.com/jkoval/apptrack/internal/status"
)

const (
	extractionTimeout = 20 * time.Second
	defaultMaxBodyLen = 4000
)

// ErrUnavailable signals that the oracle could not produce a trustworthy
// result (transport failure, malformed payload, schema violation). It is
// distinct from a usable result with sentinel fields: the caller must fall
// back to deterministic extraction.
var ErrUnavailable = errors.New("oracle unavailable")

// Generator is the interface for structured content generation.
type Generator interface {
	Generate(ctx context.Context, model, system, user string, jsonSchema *gemini.Schema) (string, error)
}

// Extraction is the validated classification result for one email.
type Extraction struct {
	Company  string `json:"company_name"`
	JobTitle string `json:"job_title"`
	Status   string `json:"status"`
}

// Extractor classifies emails via a Generator.
type Extractor struct {
	client     Generator
	model      string
	maxBodyLen int
	logger     *slog.Logger
}

// NewExtractor creates an Extractor using the given client and model name.
// If maxBodyLen is <= 0, it defaults to 4000 bytes.
func NewExtractor(client Generator, model string, maxBodyLen int) *Extractor {
	if maxBodyLen <= 0 {
		maxBodyLen = defaultMaxBodyLen
	}
	return &Extractor{
		client:     client,
		model:      model,
		maxBodyLen: maxBodyLen,
		logger:     slog.Default(),
	}
}

// Extract classifies one email. On any failure it returns ErrUnavailable
// (wrapping the cause) so the caller falls back; a safety block is logged
// with its reason but surfaces the same way. Missing fields in an otherwise
// valid payload are never guessed — they resolve to the sentinel.
func (e *Extractor) Extract(ctx context.Context, subject, body string) (Extraction, error) {
	ctx, cancel := context.WithTimeout(ctx, extractionTimeout)
	defer cancel()

	raw, err := e.client.Generate(ctx, e.model,
		BuildSystemPrompt(),
		BuildUserPrompt(subject, body, e.maxBodyLen),
		extractionSchema(),
	)
	if err != nil {
		if gemini.IsSafetyBlocked(err) {
			e.logger.Warn("extraction blocked by safety filter", "subject", subject, "error", err)
		} else {
			e.logger.Warn("extraction request failed", "error", err)
		}
		return Extraction{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	ext, err := parseExtraction(raw)
	if err != nil {
		e.logger.Warn("extraction payload rejected", "error", err, "response", raw)
		return Extraction{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return ext, nil
}

// parseExtraction validates the model payload against the strict schema:
// parseable JSON object, all three keys present, string values. Any
// deviation rejects the whole payload — loosely-typed external JSON is
// never partially trusted.
func parseExtraction(raw string) (Extraction, error) {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return Extraction{}, fmt.Errorf("unmarshaling payload: %w", err)
	}

	fields := make(map[string]string, 3)
	for _, key := range []string{"company_name", "job_title", "status"} {
		rawVal, ok := payload[key]
		if !ok {
			return Extraction{}, fmt.Errorf("missing required key %q", key)
		}
		var s string
		if err := json.Unmarshal(rawVal, &s); err != nil {
			return Extraction{}, fmt.Errorf("key %q is not a string", key)
		}
		if s == "" {
			s = status.ManualReview
		}
		fields[key] = s
	}

	ext := Extraction{
		Company:  fields["company_name"],
		JobTitle: fields["job_title"],
		Status:   fields["status"],
	}
	// A status outside the vocabulary means the model drifted despite the
	// constrained prompt; the payload is not trustworthy.
	if !status.Known(ext.Status) {
		return Extraction{}, fmt.Errorf("status %q is not in the vocabulary", ext.Status)
	}
	return ext, nil
}

// extractionSchema returns the JSON schema for structured classifier output.
func extractionSchema() *gemini.Schema {
	return &gemini.Schema{
		Type: "object",
		Properties: map[string]gemini.SchemaProperty{
			"company_name": {Type: "string", Description: "Hiring company name"},
			"job_title":    {Type: "string", Description: "Position title"},
			"status":       {Type: "string", Description: "Application lifecycle status"},
		},
		Required: []string{"company_name", "job_title", "status"},
	}
}
