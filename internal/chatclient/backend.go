package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Backend is the remote side of a conversation.
type Backend interface {
	History(ctx context.Context, sessionID string) ([]Message, error)
	Chat(ctx context.Context, sessionID, message string) (string, error)
	RefreshIndex(ctx context.Context) error
}

// StatusError is returned for any non-2xx answer.
type StatusError struct {
	Op     string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.Status, e.Body)
}

// HTTPBackend talks to the chat server over HTTP. No client-side timeout is
// set; callers bound requests through ctx if they want one.
type HTTPBackend struct {
	BaseURL        string
	HistoryBaseURL string // empty means BaseURL
	Client         *http.Client
}

func NewHTTPBackend(baseURL, historyBaseURL string) *HTTPBackend {
	return &HTTPBackend{
		BaseURL:        strings.TrimRight(baseURL, "/"),
		HistoryBaseURL: strings.TrimRight(historyBaseURL, "/"),
		Client:         &http.Client{},
	}
}

type chatReq struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
}

type chatResp struct {
	Response string `json:"response"`
}

func (b *HTTPBackend) History(ctx context.Context, sessionID string) ([]Message, error) {
	base := b.HistoryBaseURL
	if base == "" {
		base = b.BaseURL
	}
	u := fmt.Sprintf("%s/api/get-history?session_id=%s", base, url.QueryEscape(sessionID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := b.do(req, "get history")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var entries []historyEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	out := make([]Message, len(entries))
	for i, e := range entries {
		out[i] = Message(e)
	}
	return out, nil
}

func (b *HTTPBackend) Chat(ctx context.Context, sessionID, message string) (string, error) {
	body, err := json.Marshal(chatReq{Message: message, SessionID: sessionID})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.BaseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.do(req, "chat")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var decoded chatResp
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	return decoded.Response, nil
}

func (b *HTTPBackend) RefreshIndex(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.BaseURL+"/api/refresh-index", nil)
	if err != nil {
		return err
	}
	resp, err := b.do(req, "refresh index")
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.Body.Close()
}

func (b *HTTPBackend) do(req *http.Request, op string) (*http.Response, error) {
	client := b.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		return nil, &StatusError{Op: op, Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return resp, nil
}
