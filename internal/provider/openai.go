package provider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/freightflow/extractd/constants"
	"github.com/freightflow/extractd/internal/normalize"
	"github.com/freightflow/extractd/internal/schema"
)

// OpenAIConfig configures the OpenAI chat-completions adapter.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string // default https://api.openai.com/v1
	Model       string
	Temperature float32
	Timeout     time.Duration
	// MaxImages bounds how many rendered pages ride along for scanned
	// documents.
	MaxImages int
}

type OpenAI struct {
	cfg  OpenAIConfig
	http *http.Client
	log  *slog.Logger
}

func NewOpenAI(cfg OpenAIConfig, logger *slog.Logger) *OpenAI {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.MaxImages <= 0 {
		cfg.MaxImages = 3
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAI{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}, log: logger}
}

func (c *OpenAI) Name() string { return "openai" }

func (c *OpenAI) Extract(ctx context.Context, doc *normalize.Document, sch *schema.Schema) Result {
	start := time.Now()

	c.log.Info("provider.extract.start",
		"provider", c.Name(),
		"model", c.cfg.Model,
		"text_len", len(doc.Text),
		"scanned", doc.Scanned,
	)

	user := []map[string]any{
		{"type": "text", "text": buildUserPrompt(doc, sch)},
	}
	if doc.Scanned {
		for i, img := range doc.Images {
			if i >= c.cfg.MaxImages {
				break
			}
			user = append(user, map[string]any{
				"type": "image_url",
				"image_url": map[string]any{
					"url": "data:image/png;base64," + base64.StdEncoding.EncodeToString(img),
				},
			})
		}
	}

	body := map[string]any{
		"model":           c.cfg.Model,
		"temperature":     c.cfg.Temperature,
		"max_tokens":      2048,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": buildSystemPrompt(sch)},
			{"role": "user", "content": user},
		},
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	raw, _, err := sendJSON(ctx, c.http, endpoint, body, map[string]string{
		"Authorization": "Bearer " + c.cfg.APIKey,
	}, c.log)
	if err != nil {
		outcome := classify(ctx, err)
		c.log.Error("provider.extract.http_error",
			"provider", c.Name(), "outcome", outcome, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds())
		return failure(c.Name(), outcome, err.Error(), start, raw)
	}

	content, err := parseChatCompletion(raw)
	if err != nil {
		c.log.Error("provider.extract.decode_error",
			"provider", c.Name(), "error", err,
			"elapsed_ms", time.Since(start).Milliseconds())
		return failure(c.Name(), constants.OutcomeMalformed, err.Error(), start, raw)
	}

	return finishExtract(c.Name(), content, sch, start, raw, c.log)
}

// parseChatCompletion pulls the assistant message out of an
// OpenAI-compatible chat/completions response.
func parseChatCompletion(raw []byte) (string, error) {
	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		return "", fmt.Errorf("decode completion: %w", err)
	}
	if len(cc.Choices) == 0 {
		return "", fmt.Errorf("no choices in completion")
	}
	return strings.TrimSpace(cc.Choices[0].Message.Content), nil
}

// finishExtract is the shared tail of every chat-style adapter: parse the
// field map, fill missing confidence, log and build the success result.
func finishExtract(name, content string, sch *schema.Schema, start time.Time, raw []byte, log *slog.Logger) Result {
	fields, confidence, dropped, err := parseFields(content, sch)
	if err != nil {
		log.Error("provider.extract.malformed",
			"provider", name, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds())
		return failure(name, constants.OutcomeMalformed, err.Error(), start, raw)
	}
	if len(dropped) > 0 {
		log.Warn("provider.extract.sanitized", "provider", name, "dropped", strings.Join(dropped, ","))
	}
	if len(confidence) == 0 {
		confidence = heuristicConfidence(fields, sch)
	}

	// strict pass: full JSON-Schema validation is informational only;
	// rule scoring downstream decides what the mismatch costs
	if compiled, cerr := sch.Compiled(); cerr == nil {
		if encoded, merr := json.Marshal(fields); merr == nil {
			if verr := schema.ValidateDocument(compiled, encoded); verr != nil {
				log.Warn("provider.extract.schema_mismatch", "provider", name, "error", verr)
			}
		}
	}

	log.Info("provider.extract.ok",
		"provider", name,
		"fields", len(fields),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return Result{
		Provider:   name,
		Outcome:    constants.OutcomeSuccess,
		Fields:     fields,
		Confidence: confidence,
		Latency:    time.Since(start),
		Raw:        raw,
		At:         time.Now().UTC(),
	}
}
