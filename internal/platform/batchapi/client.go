package batchapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/phrazzld/batchrelay/internal/config"
	"github.com/phrazzld/batchrelay/internal/platform/logger"
)

const (
	// PurposeBatch is the file purpose used for batch input uploads.
	PurposeBatch = "batch"

	// maxErrorBody bounds how much of an error response is read.
	maxErrorBody = 64 << 10
)

// Client talks to an OpenAI-compatible files and batches API.
type Client struct {
	baseURL          string
	apiKey           string
	endpoint         string
	completionWindow string
	http             *http.Client
	logger           *slog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// NewClient creates a Client from the batch configuration.
func NewClient(cfg config.BatchConfig, logger *slog.Logger, opts ...Option) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: base URL cannot be empty", ErrInvalidConfig)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: API key cannot be empty", ErrInvalidConfig)
	}
	if logger == nil {
		logger = slog.Default()
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	c := &Client{
		baseURL:          strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:           cfg.APIKey,
		endpoint:         cfg.Endpoint,
		completionWindow: cfg.CompletionWindow,
		http:             &http.Client{Timeout: timeout},
		logger:           logger.With(slog.String("component", "batch_client")),
	}
	if c.endpoint == "" {
		c.endpoint = "/v1/chat/completions"
	}
	if c.completionWindow == "" {
		c.completionWindow = "24h"
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("batchapi: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	return req, nil
}

// do sends req and returns the response when it is 2xx. Other statuses are
// turned into *APIError and the body is closed.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	log := logger.FromContextOrDefault(req.Context(), c.logger)
	start := time.Now()

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("batchapi: http: %w", err)
	}

	log.Debug("batch API call",
		slog.String("method", req.Method),
		slog.String("path", req.URL.Path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", time.Since(start)))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer func() { _ = resp.Body.Close() }()
	return nil, decodeAPIError(resp)
}

func decodeAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	apiErr := &APIError{StatusCode: resp.StatusCode}

	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err == nil && env.Error != nil {
		apiErr.Message = env.Error.Message
		apiErr.Type = env.Error.Type
		if env.Error.Code != nil {
			apiErr.Code = fmt.Sprint(env.Error.Code)
		}
	} else {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("batchapi: marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("batchapi: decode response: %w", err)
	}
	return nil
}

// UploadFile uploads the file at localPath with purpose "batch" and returns
// the remote file ID. The ID may be empty if the API returns none.
func (c *Client) UploadFile(ctx context.Context, localPath string) (string, error) {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return "", fmt.Errorf("batchapi: read upload file: %w", err)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("purpose", PurposeBatch); err != nil {
		return "", fmt.Errorf("batchapi: build upload: %w", err)
	}
	part, err := mw.CreateFormFile("file", filepath.Base(localPath))
	if err != nil {
		return "", fmt.Errorf("batchapi: build upload: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("batchapi: build upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("batchapi: build upload: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/files", &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	var file File
	if err := json.NewDecoder(resp.Body).Decode(&file); err != nil {
		return "", fmt.Errorf("batchapi: decode response: %w", err)
	}
	return file.ID, nil
}

// CreateJob starts a batch job over an uploaded input file.
func (c *Client) CreateJob(ctx context.Context, inputFileID string) (*Job, error) {
	in := createJobRequest{
		InputFileID:      inputFileID,
		Endpoint:         c.endpoint,
		CompletionWindow: c.completionWindow,
	}
	var job Job
	if err := c.doJSON(ctx, http.MethodPost, "/batches", in, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// GetJob retrieves a batch job.
func (c *Client) GetJob(ctx context.Context, jobID string) (*Job, error) {
	var job Job
	if err := c.doJSON(ctx, http.MethodGet, "/batches/"+url.PathEscape(jobID), nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// CancelJob requests cancellation of a batch job.
func (c *Client) CancelJob(ctx context.Context, jobID string) (*Job, error) {
	var job Job
	if err := c.doJSON(ctx, http.MethodPost, "/batches/"+url.PathEscape(jobID)+"/cancel", nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// ListJobs lists batch jobs after the given job ID. A limit <= 0 uses the API default.
func (c *Client) ListJobs(ctx context.Context, after string, limit int) (*JobPage, error) {
	q := url.Values{}
	if after != "" {
		q.Set("after", after)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/batches"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var page JobPage
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// ListFiles lists remote files.
func (c *Client) ListFiles(ctx context.Context) (*FilePage, error) {
	var page FilePage
	if err := c.doJSON(ctx, http.MethodGet, "/files", nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// RetrieveFile returns a remote file's metadata.
func (c *Client) RetrieveFile(ctx context.Context, fileID string) (*File, error) {
	var file File
	if err := c.doJSON(ctx, http.MethodGet, "/files/"+url.PathEscape(fileID), nil, &file); err != nil {
		return nil, err
	}
	return &file, nil
}

// DeleteFile deletes a remote file.
func (c *Client) DeleteFile(ctx context.Context, fileID string) (*FileDeleted, error) {
	var res FileDeleted
	if err := c.doJSON(ctx, http.MethodDelete, "/files/"+url.PathEscape(fileID), nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// DownloadFile writes a remote file's content to localPath and returns it.
// The write goes through a temp file in the same directory and a rename, so
// localPath never holds a partial download. HTTP 406 yields ErrFileNotReady.
func (c *Client) DownloadFile(ctx context.Context, fileID, localPath string) (string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/files/"+url.PathEscape(fileID)+"/content", nil)
	if err != nil {
		return "", err
	}

	resp, err := c.do(req)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotAcceptable {
			return "", fmt.Errorf("%w: %w", ErrFileNotReady, apiErr)
		}
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	dir := filepath.Dir(localPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("batchapi: create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(localPath)+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("batchapi: create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("batchapi: write download: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("batchapi: write download: %w", err)
	}
	if err := os.Rename(tmpName, localPath); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("batchapi: finalize download: %w", err)
	}

	return localPath, nil
}
