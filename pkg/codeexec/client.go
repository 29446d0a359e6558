// Package codeexec is a client for the sandboxed code execution service.
package codeexec

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrUnknownLanguage is returned for aliases no language answers to.
var ErrUnknownLanguage = errors.New("unknown language")

// MaxFileSize is the largest upload the service accepts.
const MaxFileSize = 10 << 20

// languages maps every accepted alias to the language name the service
// routes on.
var languages = map[string]string{
	"python":     "python",
	"bash":       "bash",
	"javascript": "javascript",
	"js":         "javascript",
	"node":       "javascript",
	"typescript": "typescript",
	"ts":         "typescript",
	"php":        "php",
	"ruby":       "ruby",
	"rb":         "ruby",
	"lua":        "lua",
	"go":         "go",
	"rust":       "rust",
	"rs":         "rust",
	"c":          "c",
	"cpp":        "cpp",
	"c++":        "cpp",
	"csharp":     "csharp",
	"cs":         "csharp",
	"c#":         "csharp",
	"zig":        "zig",
	"java":       "java",
	"kt":         "kotlin",
}

// Canonical resolves an alias such as "js" to its language.
func Canonical(alias string) (string, error) {
	lang, ok := languages[strings.ToLower(strings.TrimSpace(alias))]
	if !ok {
		return "", fmt.Errorf("%w '%s'", ErrUnknownLanguage, alias)
	}
	return lang, nil
}

// Aliases returns every accepted alias, sorted.
func Aliases() []string {
	out := make([]string, 0, len(languages))
	for a := range languages {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// File is an input or output file.
type File struct {
	Name string
	Data []byte
}

// Result is the outcome of one execution.
type Result struct {
	Output      string
	ExecutionID string
	Files       []File

	// Failed reports that the program itself failed; Output then holds
	// its error output.
	Failed bool
}

type executeResponse struct {
	Output      string   `json:"output"`
	Files       []string `json:"files"`
	ExecutionID string   `json:"execution_id"`
	Error       bool     `json:"error"`
}

// Client talks to the sandbox service.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// WithTimeout bounds each request.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithRateLimit allows rps requests per second with the given burst.
// A non-positive rps disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithLogger sets the client logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient returns a client for the service at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(2, 4),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Execute runs code in language (any alias) with files available in the
// working directory, then fetches every file the program produced.
func (c *Client) Execute(ctx context.Context, language, code string, files []File) (*Result, error) {
	lang, err := Canonical(language)
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		if len(f.Data) > MaxFileSize {
			return nil, fmt.Errorf("file %s exceeds %d bytes", f.Name, MaxFileSize)
		}
	}
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	body, contentType, err := encodeForm(code, files)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+lang+"/execute", body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sandbox request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}

	var er executeResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return nil, fmt.Errorf("invalid sandbox response: %w", err)
	}
	c.logger.Debug("sandbox execution",
		zap.String("language", lang),
		zap.String("execution_id", er.ExecutionID),
		zap.Bool("error", er.Error),
		zap.Int("files", len(er.Files)),
		zap.Duration("elapsed", time.Since(start)))

	res := &Result{Output: er.Output, ExecutionID: er.ExecutionID, Failed: er.Error}
	for _, name := range er.Files {
		data, err := c.fetch(ctx, er.ExecutionID, name)
		if err != nil {
			return nil, err
		}
		res.Files = append(res.Files, File{Name: name, Data: data})
	}
	return res, nil
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limited: %w", err)
	}
	return nil
}

// fetch downloads one produced file.
func (c *Client) fetch(ctx context.Context, executionID, name string) ([]byte, error) {
	u := c.baseURL + "/files/" + url.PathEscape(executionID) + "/" + url.PathEscape(path.Base(name))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch %s: %w", name, statusError(resp))
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	if len(data) > MaxFileSize {
		return nil, fmt.Errorf("file %s exceeds %d bytes", name, MaxFileSize)
	}
	return data, nil
}

func encodeForm(code string, files []File) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("code", code); err != nil {
		return nil, "", err
	}
	for _, f := range files {
		part, err := w.CreateFormFile("files", path.Base(f.Name))
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(f.Data); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

// statusError reads the service's error detail from a non-200 response.
func statusError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var detail struct {
		Error  string `json:"error"`
		Detail string `json:"detail"`
	}
	msg := strings.TrimSpace(string(data))
	if json.Unmarshal(data, &detail) == nil {
		switch {
		case detail.Detail != "":
			msg = detail.Detail
		case detail.Error != "":
			msg = detail.Error
		}
	}
	if msg == "" {
		return fmt.Errorf("sandbox returned status %d", resp.StatusCode)
	}
	return fmt.Errorf("sandbox returned status %d: %s", resp.StatusCode, msg)
}
