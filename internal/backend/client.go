// Package backend is the HTTP client of the retrieval-augmented chat service:
// sources, transcripts, questions, ingestion and the user profile.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"ragchat/internal/chat"
)

// requestIDTransport tags every outgoing request with a fresh X-Request-ID.
type requestIDTransport struct {
	rt http.RoundTripper
}

func (t requestIDTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	cl := req.Clone(req.Context())
	cl.Header.Set("X-Request-ID", uuid.NewString())
	return t.rt.RoundTrip(cl)
}

// Service talks to the unauthenticated part of the backend and hands out
// per-user clients.
type Service struct {
	base     string
	timeout  time.Duration
	anon     *http.Client
	log      *zap.Logger
	validate *validator.Validate
}

// New returns a Service for baseURL. A zero timeout means requests are bounded
// only by their context.
func New(baseURL string, timeout time.Duration, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		base:     strings.TrimRight(baseURL, "/"),
		timeout:  timeout,
		anon:     &http.Client{Timeout: timeout, Transport: requestIDTransport{rt: http.DefaultTransport}},
		log:      log,
		validate: validator.New(),
	}
}

// ForUser returns a client that authenticates as the owner of token.
func (s *Service) ForUser(token string) *Client {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
	hc := &http.Client{
		Timeout: s.timeout,
		Transport: &oauth2.Transport{
			Source: ts,
			Base:   requestIDTransport{rt: http.DefaultTransport},
		},
	}
	return &Client{svc: s, token: token, http: hc}
}

func (s *Service) ListModels(ctx context.Context) ([]string, error) {
	var out modelsResponse
	if err := s.do(ctx, s.anon, http.MethodGet, "/api/models", nil, "", &out); err != nil {
		return nil, err
	}
	return out.Models, nil
}

// Register creates an account after validating the input locally.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (RegisterResponse, error) {
	req.Email = strings.TrimSpace(req.Email)
	req.Username = strings.TrimSpace(req.Username)
	if err := s.validate.Struct(req); err != nil {
		return RegisterResponse{}, fmt.Errorf("invalid registration: %w", err)
	}
	var out RegisterResponse
	if err := s.doJSON(ctx, s.anon, http.MethodPost, "/api/auth/register", req, &out); err != nil {
		return RegisterResponse{}, err
	}
	return out, nil
}

func (s *Service) doJSON(ctx context.Context, hc *http.Client, method, path string, in, out any) error {
	b, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode %s %s: %w", method, path, err)
	}
	return s.do(ctx, hc, method, path, bytes.NewReader(b), "application/json", out)
}

func (s *Service) do(ctx context.Context, hc *http.Client, method, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, s.base+path, body)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	s.log.Debug("backend call",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// Client is the backend as seen by one authenticated user.
type Client struct {
	svc   *Service
	token string
	http  *http.Client
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.svc.do(ctx, c.http, http.MethodGet, path, nil, "", out)
}

func (c *Client) send(ctx context.Context, method, path string, in, out any) error {
	if in == nil {
		return c.svc.do(ctx, c.http, method, path, nil, "", out)
	}
	return c.svc.doJSON(ctx, c.http, method, path, in, out)
}

func (c *Client) ListSources(ctx context.Context) ([]chat.Source, error) {
	var out filesResponse
	if err := c.get(ctx, "/api/files", &out); err != nil {
		return nil, err
	}
	sources := make([]chat.Source, 0, len(out.Files))
	for _, f := range out.Files {
		sources = append(sources, chat.Source{
			ID:        f.FileName,
			Kind:      chat.ParseKind(f.ContentType),
			CreatedAt: parseTimestamp(f.CreatedAt),
		})
	}
	return sources, nil
}

func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	return c.svc.ListModels(ctx)
}

func (c *Client) Profile(ctx context.Context) (chat.Profile, error) {
	var out profileResponse
	if err := c.get(ctx, "/api/profile", &out); err != nil {
		return chat.Profile{}, err
	}
	p := chat.Profile{
		UserID:        out.UID,
		Email:         out.Email,
		DisplayName:   out.Username,
		HasCredential: out.HasAPIKey,
	}
	if out.APIKeyHint != nil {
		p.CredentialHint = *out.APIKeyHint
	}
	return p, nil
}

func (c *Client) Credential(ctx context.Context) (string, error) {
	var out apiKeyBody
	if err := c.get(ctx, "/api/profile/api-key", &out); err != nil {
		return "", err
	}
	return out.APIKey, nil
}

func (c *Client) SetCredential(ctx context.Context, key string) error {
	return c.send(ctx, http.MethodPut, "/api/profile/api-key", apiKeyBody{APIKey: key}, nil)
}

func (c *Client) SetDisplayName(ctx context.Context, name string) error {
	return c.send(ctx, http.MethodPut, "/api/profile/username", usernameBody{Username: name}, nil)
}

func historyPath(sourceID string) string {
	return "/api/chat/" + url.PathEscape(sourceID) + "/history"
}

func (c *Client) Transcript(ctx context.Context, sourceID string) ([]chat.Message, error) {
	var out historyResponse
	if err := c.get(ctx, historyPath(sourceID), &out); err != nil {
		return nil, err
	}
	msgs := make([]chat.Message, 0, len(out.Messages))
	for _, m := range out.Messages {
		msgs = append(msgs, chat.Message{Role: chat.Role(m.Role), Content: m.Content})
	}
	return msgs, nil
}

func (c *Client) ClearTranscript(ctx context.Context, sourceID string) error {
	return c.send(ctx, http.MethodDelete, historyPath(sourceID), nil, nil)
}

func (c *Client) Ask(ctx context.Context, q chat.Question) (chat.Answer, error) {
	var out chatResponse
	in := chatRequest{FileName: q.SourceID, Question: q.Text, APIKey: q.Credential, Model: q.Model}
	if err := c.send(ctx, http.MethodPost, "/api/chat/message", in, &out); err != nil {
		return chat.Answer{}, err
	}
	ans := chat.Answer{Text: out.Answer}
	for _, s := range out.Sources {
		ans.Evidence = append(ans.Evidence, chat.EvidenceChunk{Text: s.Text, Page: s.Page, Source: s.Source})
	}
	return ans, nil
}

func (c *Client) DeleteSource(ctx context.Context, sourceID string) error {
	return c.send(ctx, http.MethodDelete, "/api/files/"+url.PathEscape(sourceID), nil, nil)
}

func (c *Client) IngestDocument(ctx context.Context, name string, data []byte) (string, error) {
	return c.upload(ctx, "/api/upload/pdf", name, data)
}

func (c *Client) IngestTable(ctx context.Context, name string, data []byte) (string, error) {
	return c.upload(ctx, "/api/upload/csv", name, data)
}

func (c *Client) IngestTranscript(ctx context.Context, videoURL string) (string, error) {
	var out uploadResponse
	if err := c.send(ctx, http.MethodPost, "/api/upload/youtube", youtubeRequest{URL: videoURL}, &out); err != nil {
		return "", err
	}
	return out.FileName, nil
}

func (c *Client) upload(ctx context.Context, path, name string, data []byte) (string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", name)
	if err != nil {
		return "", fmt.Errorf("build upload: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("build upload: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("build upload: %w", err)
	}

	var out uploadResponse
	if err := c.svc.do(ctx, c.http, http.MethodPost, path, &buf, w.FormDataContentType(), &out); err != nil {
		return "", err
	}
	if out.FileName == "" {
		out.FileName = name
	}
	return out.FileName, nil
}

// PreviewLocator builds the address of the stored PDF. The token travels in the
// query because the address is opened outside this client.
func (c *Client) PreviewLocator(_ context.Context, sourceID string) (string, error) {
	return fmt.Sprintf("%s/api/files/%s/pdf?token=%s", c.svc.base, url.PathEscape(sourceID), url.QueryEscape(c.token)), nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
}

// parseTimestamp accepts the backend's stringified timestamps; anything else
// yields the zero time.
func parseTimestamp(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
