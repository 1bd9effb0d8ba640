/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package api is the HTTP client for the background-replacement service.
//
// Every call attaches the client token as a request header. Passive asset
// loads (cutouts, background thumbnails) cannot carry headers, so their URLs
// get the token as a query parameter instead; ResolveAsset and DownloadURL
// produce such URLs.
package api

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
	"strconv"
	"strings"
	"time"

	"showroom/internal/domain"
	"showroom/internal/resilience"
)

const tokenHeader = "X-Client-Token"

// Error is a failed API call. Detail carries the server's {detail} body when
// one was present, otherwise the raw response text.
type Error struct {
	StatusCode int
	Detail     string
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("server returned %d", e.StatusCode)
}

// Retryable marks server-side failures as safe to retry under an opt-in
// retry policy. Client errors (4xx) are never retried.
func (e *Error) Retryable() bool { return e.StatusCode >= 500 }

// transportError wraps a network-level failure; always retryable.
type transportError struct{ err error }

func (t *transportError) Error() string   { return t.err.Error() }
func (t *transportError) Unwrap() error   { return t.err }
func (t *transportError) Retryable() bool { return true }

// Client talks to the backend API. All methods are safe for sequential use
// from the single logical UI thread; the zero value is not usable.
type Client struct {
	BaseURL string
	Token   string

	hc   *http.Client
	exec *resilience.Executor
}

// New creates a client. baseURL may include a trailing slash; it is
// normalized. exec may be nil, in which case the default policy applies.
func New(baseURL, token string, timeout time.Duration, exec *resilience.Executor) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if exec == nil {
		exec = resilience.NewExecutor(resilience.DefaultConfig())
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		hc:      &http.Client{Timeout: timeout},
		exec:    exec,
	}
}

// Register establishes (or refreshes) the client identity server-side.
// Idempotent by token.
func (c *Client) Register(ctx context.Context) error {
	body := map[string]string{"token": c.Token}
	return c.exec.Execute(ctx, "client.register", func(ctx context.Context) error {
		return c.doJSON(ctx, http.MethodPost, "/api/client/register", body, nil)
	})
}

// Me fetches the account/feature state for this token.
func (c *Client) Me(ctx context.Context) (domain.AccountStatus, error) {
	var st domain.AccountStatus
	err := c.exec.Execute(ctx, "me", func(ctx context.Context) error {
		return c.doJSON(ctx, http.MethodGet, "/api/me", nil, &st)
	})
	return st, err
}

// Backgrounds fetches the showroom catalog. Thumb URLs are returned as
// served (relative); resolve them with ResolveAsset before loading.
func (c *Client) Backgrounds(ctx context.Context) ([]domain.Background, error) {
	var envelope struct {
		Backgrounds []domain.Background `json:"backgrounds"`
	}
	err := c.exec.Execute(ctx, "backgrounds.list", func(ctx context.Context) error {
		return c.doJSON(ctx, http.MethodGet, "/api/backgrounds", nil, &envelope)
	})
	return envelope.Backgrounds, err
}

// Upload is one file in an upload batch. Data is held as bytes so a failed
// submission can be resubmitted with the same batch.
type Upload struct {
	Filename string
	Data     []byte
}

// CreateJob submits an upload batch and returns the created job with its
// initial (queued) image records.
func (c *Client) CreateJob(ctx context.Context, files []Upload) (domain.Job, error) {
	var job domain.Job
	if len(files) == 0 {
		return job, errors.New("no files to upload")
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, f := range files {
		part, err := mw.CreateFormFile("files", f.Filename)
		if err != nil {
			return job, fmt.Errorf("build multipart: %w", err)
		}
		if _, err := part.Write(f.Data); err != nil {
			return job, fmt.Errorf("write upload %s: %w", f.Filename, err)
		}
	}
	if err := mw.Close(); err != nil {
		return job, fmt.Errorf("finish multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/jobs", &buf)
	if err != nil {
		return job, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(tokenHeader, c.Token)

	resp, err := c.hc.Do(req)
	if err != nil {
		return job, &transportError{err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return job, decodeError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
		return job, fmt.Errorf("decode job: %w", err)
	}
	return job, nil
}

// JobStatus fetches the current server-side state of a job's images.
func (c *Client) JobStatus(ctx context.Context, jobID string) (domain.Job, error) {
	var job domain.Job
	err := c.exec.Execute(ctx, "jobs.status", func(ctx context.Context) error {
		return c.doJSON(ctx, http.MethodGet, "/api/jobs/"+url.PathEscape(jobID), nil, &job)
	})
	return job, err
}

// RenderPreview requests a low-cost authoritative preview render and returns
// the raster bytes.
func (c *Client) RenderPreview(ctx context.Context, spec domain.RenderSpec, format string) ([]byte, error) {
	var data []byte
	err := c.exec.Execute(ctx, "render.preview", func(ctx context.Context) error {
		var err error
		data, err = c.doBytes(ctx, "/api/render/preview?"+renderQuery(spec, format).Encode())
		return err
	})
	return data, err
}

// RenderZip posts the full batch specification and returns the archive bytes.
func (c *Client) RenderZip(ctx context.Context, items []domain.RenderSpec, format string) ([]byte, error) {
	if len(items) == 0 {
		return nil, errors.New("no items to export")
	}
	body := map[string]any{"items": items, "fmt": domain.NormalizeFormat(format)}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal zip request: %w", err)
	}

	var data []byte
	err = c.exec.Execute(ctx, "render.zip", func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/render/zip", bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(tokenHeader, c.Token)
		resp, err := c.hc.Do(req)
		if err != nil {
			return &transportError{err}
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return decodeError(resp)
		}
		data, err = io.ReadAll(resp.Body)
		return err
	})
	return data, err
}

// CreateCheckout obtains the external payment redirect URL.
func (c *Client) CreateCheckout(ctx context.Context) (string, error) {
	var out struct {
		URL string `json:"url"`
	}
	err := c.exec.Execute(ctx, "stripe.checkout", func(ctx context.Context) error {
		return c.doJSON(ctx, http.MethodPost, "/api/stripe/create-checkout", nil, &out)
	})
	return out.URL, err
}

// CheckoutStatus confirms a completed payment after the redirect returns.
// The paid flag only flips from this server response.
func (c *Client) CheckoutStatus(ctx context.Context, sessionID string) (bool, error) {
	var out struct {
		Paid bool   `json:"paid"`
		Note string `json:"note"`
	}
	q := url.Values{"session_id": {sessionID}}
	err := c.exec.Execute(ctx, "stripe.status", func(ctx context.Context) error {
		return c.doJSON(ctx, http.MethodGet, "/api/stripe/checkout-status?"+q.Encode(), nil, &out)
	})
	return out.Paid, err
}

// ResolveAsset turns a server-relative asset path into an absolute URL with
// the token attached as a query parameter, suitable for passive image loads.
func (c *Client) ResolveAsset(path string) string {
	if path == "" {
		return ""
	}
	if !strings.HasPrefix(path, "/") {
		return path // already absolute (cross-origin hosting)
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return c.BaseURL + path + sep + "token=" + url.QueryEscape(c.Token)
}

// DownloadURL builds the authoritative single-export URL. The download is
// triggered via navigation, not a programmatic fetch, so auth travels as a
// query parameter.
func (c *Client) DownloadURL(spec domain.RenderSpec, format string) string {
	q := renderQuery(spec, format)
	q.Set("token", c.Token)
	return c.BaseURL + "/api/render/download?" + q.Encode()
}

func renderQuery(spec domain.RenderSpec, format string) url.Values {
	q := url.Values{}
	q.Set("image_id", spec.ImageID)
	q.Set("bg_id", spec.BackgroundID)
	q.Set("rotate", formatFloat(spec.Rotate))
	q.Set("scale", formatFloat(spec.Scale))
	q.Set("x", formatFloat(spec.X))
	q.Set("y", formatFloat(spec.Y))
	q.Set("shadow", strconv.FormatBool(spec.Shadow))
	q.Set("snap", strconv.FormatBool(spec.Snap))
	q.Set("fmt", domain.NormalizeFormat(format))
	return q
}

func formatFloat(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }

func (c *Client) doJSON(ctx context.Context, method, path string, body, dest any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(tokenHeader, c.Token)

	resp, err := c.hc.Do(req)
	if err != nil {
		return &transportError{err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if dest == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(dest)
}

func (c *Client) doBytes(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set(tokenHeader, c.Token)
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, &transportError{err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, decodeError(resp)
	}
	return io.ReadAll(resp.Body)
}

// decodeError extracts the server's error detail from a non-2xx response.
func decodeError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var body struct {
		Detail string `json:"detail"`
	}
	detail := strings.TrimSpace(string(data))
	if err := json.Unmarshal(data, &body); err == nil && body.Detail != "" {
		detail = body.Detail
	}
	return &Error{StatusCode: resp.StatusCode, Detail: detail}
}
