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

const anthropicVersion = "2023-06-01"

// AnthropicConfig configures the Anthropic messages adapter.
type AnthropicConfig struct {
	APIKey      string
	BaseURL     string // default https://api.anthropic.com
	Model       string
	Temperature float32
	Timeout     time.Duration
	MaxImages   int
}

type Anthropic struct {
	cfg  AnthropicConfig
	http *http.Client
	log  *slog.Logger
}

func NewAnthropic(cfg AnthropicConfig, logger *slog.Logger) *Anthropic {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.anthropic.com"
	}
	if cfg.Model == "" {
		cfg.Model = "claude-3-5-sonnet-20241022"
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
	return &Anthropic{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}, log: logger}
}

func (c *Anthropic) Name() string { return "anthropic" }

func (c *Anthropic) Extract(ctx context.Context, doc *normalize.Document, sch *schema.Schema) Result {
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
				"type": "image",
				"source": map[string]any{
					"type":       "base64",
					"media_type": "image/png",
					"data":       base64.StdEncoding.EncodeToString(img),
				},
			})
		}
	}

	body := map[string]any{
		"model":       c.cfg.Model,
		"max_tokens":  2048,
		"temperature": c.cfg.Temperature,
		"system":      buildSystemPrompt(sch),
		"messages": []map[string]any{
			{"role": "user", "content": user},
		},
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/v1/messages"
	raw, _, err := sendJSON(ctx, c.http, endpoint, body, map[string]string{
		"x-api-key":         c.cfg.APIKey,
		"anthropic-version": anthropicVersion,
	}, c.log)
	if err != nil {
		outcome := classify(ctx, err)
		c.log.Error("provider.extract.http_error",
			"provider", c.Name(), "outcome", outcome, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds())
		return failure(c.Name(), outcome, err.Error(), start, raw)
	}

	content, err := parseMessagesResponse(raw)
	if err != nil {
		c.log.Error("provider.extract.decode_error",
			"provider", c.Name(), "error", err,
			"elapsed_ms", time.Since(start).Milliseconds())
		return failure(c.Name(), constants.OutcomeMalformed, err.Error(), start, raw)
	}

	return finishExtract(c.Name(), content, sch, start, raw, c.log)
}

// parseMessagesResponse pulls the text block out of an Anthropic messages
// response. Claude tends to wrap JSON in markdown fences; extractJSON
// downstream handles that.
func parseMessagesResponse(raw []byte) (string, error) {
	var mr struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(raw, &mr); err != nil {
		return "", fmt.Errorf("decode messages response: %w", err)
	}
	for _, block := range mr.Content {
		if block.Type == "text" && strings.TrimSpace(block.Text) != "" {
			return strings.TrimSpace(block.Text), nil
		}
	}
	return "", fmt.Errorf("no text content in messages response")
}
