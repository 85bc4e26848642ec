package provider

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/freightflow/extractd/constants"
	"github.com/freightflow/extractd/internal/normalize"
	"github.com/freightflow/extractd/internal/schema"
)

const azureAPIVersion = "2024-06-01"

// AzureOpenAIConfig configures the Azure OpenAI adapter. Azure routes by
// deployment name rather than model and authenticates with an api-key
// header, but the completion payload is OpenAI-shaped.
type AzureOpenAIConfig struct {
	APIKey      string
	Endpoint    string // https://<resource>.openai.azure.com
	Deployment  string
	APIVersion  string
	Temperature float32
	Timeout     time.Duration
}

type AzureOpenAI struct {
	cfg  AzureOpenAIConfig
	http *http.Client
	log  *slog.Logger
}

func NewAzureOpenAI(cfg AzureOpenAIConfig, logger *slog.Logger) *AzureOpenAI {
	if cfg.APIVersion == "" {
		cfg.APIVersion = azureAPIVersion
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AzureOpenAI{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}, log: logger}
}

func (c *AzureOpenAI) Name() string { return "azure" }

func (c *AzureOpenAI) Extract(ctx context.Context, doc *normalize.Document, sch *schema.Schema) Result {
	start := time.Now()

	c.log.Info("provider.extract.start",
		"provider", c.Name(),
		"deployment", c.cfg.Deployment,
		"text_len", len(doc.Text),
	)

	body := map[string]any{
		"temperature":     c.cfg.Temperature,
		"max_tokens":      2048,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": buildSystemPrompt(sch)},
			{"role": "user", "content": buildUserPrompt(doc, sch)},
		},
	}

	endpoint := fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
		strings.TrimRight(c.cfg.Endpoint, "/"), c.cfg.Deployment, c.cfg.APIVersion)
	raw, _, err := sendJSON(ctx, c.http, endpoint, body, map[string]string{
		"api-key": c.cfg.APIKey,
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
