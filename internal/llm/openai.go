// Package llm checks OpenRouter API keys before they are stored on the backend.
// Generation itself happens on the backend; this client only tries the key.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// ErrInvalidKey is returned when OpenRouter rejects the key outright.
var ErrInvalidKey = errors.New("api key rejected by provider")

type headerTransport struct {
	rt      http.RoundTripper
	headers http.Header
}

func (t headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Clone request to avoid mutating the original
	cl := req.Clone(req.Context())
	for k, vs := range t.headers {
		for _, v := range vs {
			cl.Header.Add(k, v)
		}
	}
	return t.rt.RoundTrip(cl)
}

// KeyVerifier sends a one-token completion with the candidate key.
type KeyVerifier struct {
	baseURL string
	model   string
	headers http.Header
	log     *zap.Logger
}

func NewKeyVerifier(baseURL, model, title string, log *zap.Logger) *KeyVerifier {
	if log == nil {
		log = zap.NewNop()
	}
	h := http.Header{}
	if title != "" {
		h.Set("X-Title", title)
	}
	return &KeyVerifier{baseURL: baseURL, model: model, headers: h, log: log}
}

func (v *KeyVerifier) client(key string) *openai.Client {
	config := openai.DefaultConfig(key)
	if v.baseURL != "" {
		config.BaseURL = v.baseURL
	}
	if len(v.headers) > 0 {
		config.HTTPClient = &http.Client{Transport: headerTransport{rt: http.DefaultTransport, headers: v.headers}}
	}
	return openai.NewClientWithConfig(config)
}

// Verify fails only when the provider refuses the key itself. Rate limits,
// unknown models and network errors say nothing about the key, so they are
// logged and the key is let through.
func (v *KeyVerifier) Verify(ctx context.Context, key string) error {
	_, err := v.client(key).CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     v.model,
		MaxTokens: 1,
		Messages:  []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleUser, Content: "ping"}},
	})
	if err == nil {
		return nil
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && (apiErr.HTTPStatusCode == http.StatusUnauthorized || apiErr.HTTPStatusCode == http.StatusForbidden) {
		return fmt.Errorf("%w: %s", ErrInvalidKey, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && (reqErr.HTTPStatusCode == http.StatusUnauthorized || reqErr.HTTPStatusCode == http.StatusForbidden) {
		return ErrInvalidKey
	}
	v.log.Warn("api key check inconclusive", zap.String("model", v.model), zap.Error(err))
	return nil
}
