package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/faulander/zib/internal/config"
)

// Provider turns text into embedding vectors.
type Provider interface {
	// Fingerprint identifies the provider and model; vectors from
	// different fingerprints are not comparable.
	Fingerprint() string
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// NewProvider builds the configured provider.
func NewProvider(cfg config.EmbeddingConfig) (Provider, error) {
	switch cfg.Provider {
	case "local":
		return NewLocal(cfg.BaseURL, cfg.Model), nil
	case "openai":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("openai embedding provider needs an API key")
		}
		return NewOpenAI(cfg.APIKey, cfg.Model, cfg.RatePerMinute), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}

// Local calls an Ollama-style single-text embedding endpoint. Local
// inference has no quota, so requests are not artificially delayed.
type Local struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewLocal creates a provider against a local embedding server.
func NewLocal(baseURL, model string) *Local {
	return &Local{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (l *Local) Fingerprint() string { return "local/" + l.model }

func (l *Local) Embed(ctx context.Context, text string) ([]float32, error) {
	payload, err := json.Marshal(map[string]string{
		"model":  l.model,
		"prompt": text,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		l.baseURL+"/api/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call embedding endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("embedding endpoint status %d: %s", resp.StatusCode, body)
	}

	var out struct {
		Embedding []float32 `json:"embedding"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode embedding response: %w", err)
	}
	if len(out.Embedding) == 0 {
		return nil, fmt.Errorf("embedding endpoint returned an empty vector")
	}
	return out.Embedding, nil
}

// EmbedBatch loops over texts; the local endpoint has no batch call.
func (l *Local) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := l.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed text %d: %w", i, err)
		}
		vectors[i] = v
	}
	return vectors, nil
}

// OpenAI calls the hosted embedding API, throttled to the configured
// requests/minute.
type OpenAI struct {
	client  *openai.Client
	model   string
	limiter *rate.Limiter
}

// NewOpenAI creates a hosted provider. ratePerMinute <= 0 disables
// throttling.
func NewOpenAI(apiKey, model string, ratePerMinute int) *OpenAI {
	var limiter *rate.Limiter
	if ratePerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(ratePerMinute)/60), 1)
	}
	return &OpenAI{
		client:  openai.NewClient(apiKey),
		model:   model,
		limiter: limiter,
	}
}

func (o *OpenAI) Fingerprint() string { return "openai/" + o.model }

func (o *OpenAI) wait(ctx context.Context) error {
	if o.limiter == nil {
		return nil
	}
	return o.limiter.Wait(ctx)
}

func (o *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := o.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (o *OpenAI) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := o.wait(ctx); err != nil {
		return nil, err
	}

	resp, err := o.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input: texts,
		Model: openai.EmbeddingModel(o.model),
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai returned %d vectors for %d texts", len(resp.Data), len(texts))
	}

	vectors := make([][]float32, len(texts))
	for _, d := range resp.Data {
		vectors[d.Index] = d.Embedding
	}
	return vectors, nil
}
