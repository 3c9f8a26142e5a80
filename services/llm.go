package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"choraid-server/config"
)

// LLM generates text from a prompt. In JSON mode the provider is asked to
// answer with a single JSON object.
type LLM interface {
	Generate(ctx context.Context, prompt string, jsonMode bool) (string, error)
	Name() string
}

// package-level logger for the LLM clients; can be replaced by callers
var llmLogger = slog.New(slog.NewTextHandler(os.Stdout, nil))

// SetLogger sets the logger used by the LLM clients. Passing nil is a no-op.
func SetLogger(l *slog.Logger) {
	if l != nil {
		llmLogger = l
	}
}

var tracer = otel.Tracer("choraid-server/services")

// NewLLM builds the configured provider; it returns nil when the provider is none
func NewLLM(cfg config.LLMConfig) (LLM, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	switch cfg.Provider {
	case "", "none":
		return nil, nil
	case "gemini":
		return NewGeminiClient(cfg.GeminiAPIKey, cfg.Model, &http.Client{Timeout: timeout}), nil
	case "ollama":
		return NewOllamaClient(cfg.OllamaURL, cfg.Model, &http.Client{Timeout: timeout})
	default:
		return nil, fmt.Errorf("unsupported LLM provider %q", cfg.Provider)
	}
}

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text,omitempty"`
}

type geminiGenerationConfig struct {
	Temperature      float64 `json:"temperature"`
	TopK             int     `json:"topK"`
	TopP             float64 `json:"topP"`
	MaxOutputTokens  int     `json:"maxOutputTokens"`
	ResponseMimeType string  `json:"responseMimeType,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

// GeminiClient calls the Gemini generateContent endpoint
type GeminiClient struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

func NewGeminiClient(apiKey, model string, httpClient *http.Client) *GeminiClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if model == "" {
		model = "gemini-1.5-flash"
	}
	return &GeminiClient{
		apiKey:  apiKey,
		model:   model,
		baseURL: "https://generativelanguage.googleapis.com/v1beta",
		client:  httpClient,
	}
}

func (g *GeminiClient) Name() string { return "gemini" }

func (g *GeminiClient) Generate(ctx context.Context, prompt string, jsonMode bool) (string, error) {
	ctx, span := tracer.Start(ctx, "gemini.generateContent")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", g.model), attribute.Bool("llm.json_mode", jsonMode))

	request := geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}},
		GenerationConfig: geminiGenerationConfig{
			Temperature:     0.4,
			TopK:            40,
			TopP:            0.95,
			MaxOutputTokens: 1024,
		},
	}
	if jsonMode {
		request.GenerationConfig.ResponseMimeType = "application/json"
	}

	jsonData, err := json.Marshal(request)
	if err != nil {
		return "", err
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", g.baseURL, g.model, url.QueryEscape(g.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return "", fmt.Errorf("gemini request: %v: %w", err, ErrUpstream)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		span.SetStatus(codes.Error, resp.Status)
		llmLogger.Warn("gemini: non-200 response", slog.Int("status", resp.StatusCode))
		return "", fmt.Errorf("gemini API returned %d: %w", resp.StatusCode, ErrUpstream)
	}

	var geminiResp geminiResponse
	if err := json.Unmarshal(body, &geminiResp); err != nil {
		return "", fmt.Errorf("decode gemini response: %v: %w", err, ErrUpstream)
	}
	if len(geminiResp.Candidates) == 0 || len(geminiResp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no response from gemini: %w", ErrUpstream)
	}

	var out strings.Builder
	for _, p := range geminiResp.Candidates[0].Content.Parts {
		out.WriteString(p.Text)
	}
	llmLogger.Info("gemini: generated", slog.String("model", g.model), slog.Duration("latency", time.Since(start)))
	return out.String(), nil
}

// OllamaClient talks to a local Ollama server through its Go API client
type OllamaClient struct {
	api   *api.Client
	model string
}

func NewOllamaClient(baseURL, model string, httpClient *http.Client) (*OllamaClient, error) {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	u, err := url.ParseRequestURI(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama url: %w", err)
	}
	if model == "" {
		model = "llama3.1"
	}
	llmLogger.Info("ollama: client created", slog.String("base_url", baseURL), slog.String("model", model))
	return &OllamaClient{api: api.NewClient(u, httpClient), model: model}, nil
}

func (o *OllamaClient) Name() string { return "ollama" }

func (o *OllamaClient) Generate(ctx context.Context, prompt string, jsonMode bool) (string, error) {
	ctx, span := tracer.Start(ctx, "ollama.generate")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", o.model), attribute.Bool("llm.json_mode", jsonMode))

	stream := false
	req := &api.GenerateRequest{Model: o.model, Prompt: prompt, Stream: &stream}
	if jsonMode {
		req.Format = json.RawMessage(`"json"`)
	}

	var out strings.Builder
	start := time.Now()
	err := o.api.Generate(ctx, req, func(r api.GenerateResponse) error {
		out.WriteString(r.Response)
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generate failed")
		return "", fmt.Errorf("ollama generate: %v: %w", err, ErrUpstream)
	}

	llmLogger.Info("ollama: generated", slog.String("model", o.model), slog.Duration("latency", time.Since(start)))
	return out.String(), nil
}
