package providers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	einoclaude "github.com/cloudwego/eino-ext/components/model/claude"
	einogemini "github.com/cloudwego/eino-ext/components/model/gemini"
	einoollama "github.com/cloudwego/eino-ext/components/model/ollama"
	einoopenai "github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"google.golang.org/genai"

	"github.com/tbaudier/overseer/internal/config"
	"github.com/tbaudier/overseer/internal/secrets"
)

const defaultOllamaBaseURL = "http://localhost:11434"

// ModelFactory builds the chat model backing a provider. Injected so tests
// can supply fakes instead of real SDK clients.
type ModelFactory func(ctx context.Context, name string, cfg config.ProviderConfig) (model.ToolCallingChatModel, error)

// CreateChatModel creates a model.ToolCallingChatModel from a provider config.
func CreateChatModel(ctx context.Context, name string, cfg config.ProviderConfig) (model.ToolCallingChatModel, error) {
	switch strings.ToLower(cfg.Driver) {
	case "anthropic":
		return newAnthropic(ctx, cfg)
	case "openai":
		return newOpenAI(ctx, cfg)
	case "ollama":
		return newOllama(ctx, name, cfg)
	case "gemini":
		return newGemini(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown driver: %s", cfg.Driver)
	}
}

func newAnthropic(ctx context.Context, cfg config.ProviderConfig) (model.ToolCallingChatModel, error) {
	key, err := secrets.ResolveCredential(cfg.CredentialRef, cfg.Driver)
	if err != nil {
		return nil, fmt.Errorf("resolve credential: %w", err)
	}

	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	modelConfig := &einoclaude.Config{
		APIKey:    key,
		Model:     cfg.Model,
		MaxTokens: maxTokens,
	}
	if cfg.BaseURL != "" {
		baseURL := cfg.BaseURL
		modelConfig.BaseURL = &baseURL
	}

	return einoclaude.NewChatModel(ctx, modelConfig)
}

func newOpenAI(ctx context.Context, cfg config.ProviderConfig) (model.ToolCallingChatModel, error) {
	key, err := secrets.ResolveCredential(cfg.CredentialRef, cfg.Driver)
	if err != nil {
		return nil, fmt.Errorf("resolve credential: %w", err)
	}

	modelConfig := &einoopenai.ChatModelConfig{
		APIKey: key,
		Model:  cfg.Model,
	}

	if cfg.BaseURL != "" {
		modelConfig.BaseURL = cfg.BaseURL
	}

	if cfg.MaxTokens > 0 {
		maxTokens := cfg.MaxTokens
		modelConfig.MaxCompletionTokens = &maxTokens
	}

	if cfg.Timeout.Duration() > 0 {
		modelConfig.Timeout = cfg.Timeout.Duration()
	} else {
		modelConfig.Timeout = 60 * time.Second
	}

	return einoopenai.NewChatModel(ctx, modelConfig)
}

func newGemini(ctx context.Context, cfg config.ProviderConfig) (model.ToolCallingChatModel, error) {
	key, err := secrets.ResolveCredential(cfg.CredentialRef, cfg.Driver)
	if err != nil {
		return nil, fmt.Errorf("resolve credential: %w", err)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  key,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	modelConfig := &einogemini.Config{
		Client: client,
		Model:  cfg.Model,
	}
	if cfg.MaxTokens > 0 {
		maxTokens := cfg.MaxTokens
		modelConfig.MaxTokens = &maxTokens
	}

	return einogemini.NewChatModel(ctx, modelConfig)
}

func newOllama(ctx context.Context, name string, cfg config.ProviderConfig) (model.ToolCallingChatModel, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultOllamaBaseURL
	}

	modelConfig := &einoollama.ChatModelConfig{
		BaseURL: baseURL,
		Model:   cfg.Model,
	}

	if cfg.Timeout.Duration() > 0 {
		modelConfig.Timeout = cfg.Timeout.Duration()
	} else {
		modelConfig.Timeout = 300 * time.Second
	}

	opts := &einoollama.Options{}

	if cfg.MaxTokens > 0 {
		opts.NumPredict = cfg.MaxTokens
	}

	if len(cfg.Options) > 0 {
		if temp, ok := cfg.Options["temperature"].(float64); ok {
			opts.Temperature = float32(temp)
		}
		if numCtx, ok := cfg.Options["num_ctx"].(float64); ok {
			opts.NumCtx = int(numCtx)
		}
		if topP, ok := cfg.Options["top_p"].(float64); ok {
			opts.TopP = float32(topP)
		}
	}

	modelConfig.Options = opts

	// Validating transport: reverse proxies in front of Ollama answer plain
	// text ("no available server") that would otherwise surface as a JSON
	// parse error deep inside the SDK.
	modelConfig.HTTPClient = &http.Client{
		Timeout:   modelConfig.Timeout,
		Transport: &validatingTransport{inner: http.DefaultTransport, provider: name},
	}

	return einoollama.NewChatModel(ctx, modelConfig)
}

// validatingTransport wraps an http.RoundTripper to detect non-JSON error
// responses from Ollama backends.
type validatingTransport struct {
	inner    http.RoundTripper
	provider string
}

func (t *validatingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.inner.RoundTrip(req)
	if err != nil {
		return nil, &ErrProviderUnavailable{Provider: t.provider, Cause: err}
	}

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, &ErrProviderUnavailable{
			Provider: t.provider,
			Body:     strings.TrimSpace(string(body)),
		}
	}

	// Ollama sends application/x-ndjson for streaming, application/json
	// otherwise. Anything else is a proxy error page.
	ct := resp.Header.Get("Content-Type")
	if ct != "" && !strings.Contains(ct, "json") && !strings.Contains(ct, "ndjson") {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, &ErrProviderUnavailable{
			Provider: t.provider,
			Body:     strings.TrimSpace(string(body)),
		}
	}

	return resp, nil
}
