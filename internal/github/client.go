// Package github is a minimal client for the GitHub contents API, used as the
// application's only persistence backend. Every blob is addressed by path and
// versioned by its content SHA; updates and deletes are compare-and-swap
// operations against that SHA.
package github

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type Config struct {
	APIBase    string
	Owner      string
	Repo       string
	Branch     string
	Token      string
	APIVersion string
}

type Client struct {
	cfg   Config
	http  *http.Client
	retry retryPolicy
}

// File is the result of a Get. A missing blob is a normal outcome, reported
// through Exists rather than an error.
type File struct {
	Exists  bool
	SHA     string
	Content []byte
}

var (
	// ErrConflict is returned when the backing store rejected the supplied SHA
	// as stale, after the one automatic retry.
	ErrConflict = errors.New("contents: sha conflict")
	// ErrNotFound is returned by Delete when the blob does not exist.
	ErrNotFound = errors.New("contents: not found")
)

// UpstreamError reports a failed or malformed response from the contents API.
type UpstreamError struct {
	Status  int
	Message string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("contents: upstream %d: %s", e.Status, e.Message)
}

func New(cfg Config) *Client {
	if cfg.APIBase == "" {
		cfg.APIBase = "https://api.github.com"
	}
	if cfg.Branch == "" {
		cfg.Branch = "main"
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = "2022-11-28"
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: 15 * time.Second},
		retry: retryPolicy{
			extraAttempts: 1,
			retryable:     func(err error) bool { return errors.Is(err, ErrConflict) },
		},
	}
}

// Get fetches one blob. A 404 means the blob does not exist.
func (c *Client) Get(ctx context.Context, path string) (File, error) {
	endpoint := c.contentsURL(path) + "?ref=" + url.QueryEscape(c.cfg.Branch)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return File{}, err
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return File{}, &UpstreamError{Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return File{Exists: false}, nil
	}

	var body struct {
		SHA      string `json:"sha"`
		Content  string `json:"content"`
		Encoding string `json:"encoding"`
		Message  string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return File{}, &UpstreamError{Status: resp.StatusCode, Message: "malformed response"}
	}
	if resp.StatusCode != http.StatusOK {
		return File{}, &UpstreamError{Status: resp.StatusCode, Message: body.Message}
	}

	content, err := decodeContent(body.Content, body.Encoding)
	if err != nil {
		return File{}, &UpstreamError{Status: resp.StatusCode, Message: "invalid content encoding"}
	}
	return File{Exists: true, SHA: body.SHA, Content: content}, nil
}

// Put writes one blob and returns its new SHA. An empty sha on an existing
// blob triggers a Get first: the API refuses to replace a file without its
// last-known SHA. A stale SHA is refreshed and retried exactly once before
// ErrConflict is surfaced.
func (c *Client) Put(ctx context.Context, path string, content []byte, message, sha string) (string, error) {
	currentSHA := sha
	if currentSHA == "" {
		existing, err := c.Get(ctx, path)
		if err != nil {
			return "", err
		}
		if existing.Exists {
			currentSHA = existing.SHA
		}
	}

	var newSHA string
	err := c.retry.do(func() error {
		var err error
		newSHA, err = c.putOnce(ctx, path, content, message, currentSHA)
		if errors.Is(err, ErrConflict) {
			refreshed, getErr := c.Get(ctx, path)
			if getErr != nil {
				return getErr
			}
			currentSHA = ""
			if refreshed.Exists {
				currentSHA = refreshed.SHA
			}
		}
		return err
	})
	if err != nil {
		return "", err
	}
	return newSHA, nil
}

func (c *Client) putOnce(ctx context.Context, path string, content []byte, message, sha string) (string, error) {
	payload := map[string]any{
		"message": message,
		"content": base64.StdEncoding.EncodeToString(content),
		"branch":  c.cfg.Branch,
	}
	if sha != "" {
		payload["sha"] = sha
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.contentsURL(path), bytes.NewReader(raw))
	if err != nil {
		return "", err
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &UpstreamError{Message: err.Error()}
	}
	defer resp.Body.Close()

	var body struct {
		Message string `json:"message"`
		Content struct {
			SHA string `json:"sha"`
		} `json:"content"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", &UpstreamError{Status: resp.StatusCode, Message: "malformed response"}
	}
	if isConflict(resp.StatusCode, body.Message) {
		return "", fmt.Errorf("%w: %s", ErrConflict, body.Message)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", &UpstreamError{Status: resp.StatusCode, Message: body.Message}
	}
	return body.Content.SHA, nil
}

// Delete removes one blob. The SHA is required by the API.
func (c *Client) Delete(ctx context.Context, path, message, sha string) error {
	payload := map[string]any{
		"message": message,
		"sha":     sha,
		"branch":  c.cfg.Branch,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.contentsURL(path), bytes.NewReader(raw))
	if err != nil {
		return err
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &UpstreamError{Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	var body struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return &UpstreamError{Status: resp.StatusCode, Message: "malformed response"}
	}
	if isConflict(resp.StatusCode, body.Message) {
		return fmt.Errorf("%w: %s", ErrConflict, body.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return &UpstreamError{Status: resp.StatusCode, Message: body.Message}
	}
	return nil
}

func (c *Client) contentsURL(path string) string {
	return fmt.Sprintf("%s/repos/%s/%s/contents/%s", c.cfg.APIBase, c.cfg.Owner, c.cfg.Repo, encodePath(path))
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	req.Header.Set("X-GitHub-Api-Version", c.cfg.APIVersion)
}

// encodePath escapes each path segment while keeping the separators.
func encodePath(path string) string {
	segments := strings.Split(path, "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return strings.Join(segments, "/")
}

func decodeContent(content, encoding string) ([]byte, error) {
	if content == "" {
		return nil, nil
	}
	if encoding != "base64" {
		return []byte(content), nil
	}
	// The API wraps base64 payloads with newlines.
	compact := strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' {
			return -1
		}
		return r
	}, content)
	return base64.StdEncoding.DecodeString(compact)
}

// The API signals a stale SHA as 409, or as 422 when the SHA was missing or
// wrong for an existing file.
func isConflict(status int, message string) bool {
	if status == http.StatusConflict {
		return true
	}
	return status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(message), "sha")
}
