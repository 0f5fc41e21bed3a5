// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

// Package github is a thin typed client for the GitHub Contents API,
// covering the four calls the proxy needs: raw file reads, metadata
// lookups, create-or-update, and delete.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/go-core-stack/gh-content-proxy/pkg/auth"
)

const (
	acceptRaw  = "application/vnd.github.raw+json"
	acceptJSON = "application/vnd.github+json"
)

// Client issues Contents API calls against a single configured repository.
type Client struct {
	// base is the API root, normally https://api.github.com.
	base *url.URL
	// repo is the owner/name pair all calls target.
	repo string
	// cred attaches the server-held token to outbound requests.
	cred auth.Credential
	// client performs outbound HTTP requests with tuned transport settings.
	client *http.Client
	logger zerolog.Logger
}

// Options configures a Client. HTTPClient may be nil, in which case a
// client with pooled transport defaults is built.
type Options struct {
	BaseURL        string
	Repo           string
	Credential     auth.Credential
	RequestTimeout time.Duration
	HTTPClient     *http.Client
}

// New constructs a Client for the given repository and API base.
func New(opts Options) (*Client, error) {
	base, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API base URL: %w", err)
	}
	if !base.IsAbs() {
		return nil, fmt.Errorf("API base URL must be absolute, got %q", opts.BaseURL)
	}

	client := opts.HTTPClient
	if client == nil {
		transport := &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           (&net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		}
		client = &http.Client{
			Timeout:   opts.RequestTimeout,
			Transport: transport,
		}
	}

	return &Client{
		base:   base,
		repo:   opts.Repo,
		cred:   opts.Credential,
		client: client,
		logger: log.With().Str("component", "github").Logger(),
	}, nil
}

// Credential exposes the configured credential so callers can check
// whether authenticated operations are possible.
func (c *Client) Credential() auth.Credential {
	return c.cred
}

// Response carries an upstream reply back to the handler. The status and
// body are forwarded verbatim; the header is retained for rate-limit
// passthrough.
type Response struct {
	Status int
	Body   []byte
	Header http.Header
}

// MetaLookup is the outcome of a file metadata read. Found is true only
// when the upstream answered 200; every other status is a normal variant
// carried in Status/Body rather than an error.
type MetaLookup struct {
	Found  bool
	SHA    string
	Status int
	Body   []byte
}

// PutRequest describes a create-or-update call. SHA empty means "create".
type PutRequest struct {
	Path          string
	Branch        string
	Message       string
	ContentBase64 string
	SHA           string
}

// DeleteRequest describes a file deletion; SHA is mandatory upstream.
type DeleteRequest struct {
	Path    string
	Branch  string
	Message string
	SHA     string
}

// RawContent fetches the raw bytes of a file on the default branch. The
// upstream status is returned as-is, including failures.
func (c *Client) RawContent(ctx context.Context, path string) (*Response, error) {
	return c.do(ctx, http.MethodGet, c.contentsURL(path, ""), acceptRaw, nil)
}

// LookupMeta reads the file metadata at path on ref to obtain the current
// revision marker (the blob sha).
func (c *Client) LookupMeta(ctx context.Context, path, ref string) (MetaLookup, error) {
	resp, err := c.do(ctx, http.MethodGet, c.contentsURL(path, ref), acceptJSON, nil)
	if err != nil {
		return MetaLookup{}, err
	}

	lookup := MetaLookup{Status: resp.Status, Body: resp.Body}
	if resp.Status != http.StatusOK {
		return lookup, nil
	}

	var meta struct {
		SHA string `json:"sha"`
	}
	// A 200 with an unparseable body still counts as Found; the missing
	// marker is the caller's signal to handle.
	_ = json.Unmarshal(resp.Body, &meta)
	lookup.Found = true
	lookup.SHA = meta.SHA
	return lookup, nil
}

// PutFile creates or updates a file. An empty SHA omits the marker from
// the payload, which the upstream treats as a create.
func (c *Client) PutFile(ctx context.Context, put PutRequest) (*Response, error) {
	payload := struct {
		Message string `json:"message"`
		Branch  string `json:"branch"`
		Content string `json:"content"`
		SHA     string `json:"sha,omitempty"`
	}{
		Message: put.Message,
		Branch:  put.Branch,
		Content: put.ContentBase64,
		SHA:     put.SHA,
	}
	return c.do(ctx, http.MethodPut, c.contentsURL(put.Path, ""), acceptJSON, payload)
}

// DeleteFile removes a file; the revision marker must match upstream.
func (c *Client) DeleteFile(ctx context.Context, del DeleteRequest) (*Response, error) {
	payload := struct {
		Message string `json:"message"`
		SHA     string `json:"sha"`
		Branch  string `json:"branch"`
	}{
		Message: del.Message,
		SHA:     del.SHA,
		Branch:  del.Branch,
	}
	return c.do(ctx, http.MethodDelete, c.contentsURL(del.Path, ""), acceptJSON, payload)
}

// contentsURL resolves /repos/{owner}/{name}/contents/{path}[?ref=].
func (c *Client) contentsURL(path, ref string) *url.URL {
	target := c.base.JoinPath("repos", c.repo, "contents", path)
	if ref != "" {
		q := target.Query()
		q.Set("ref", ref)
		target.RawQuery = q.Encode()
	}
	return target
}

// do builds, authenticates, and executes one upstream call and drains the
// response body so the caller gets a self-contained Response.
func (c *Client) do(ctx context.Context, method string, target *url.URL, accept string, payload any) (*Response, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode upstream payload: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	req.Header.Set("Accept", accept)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.cred.Attach(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("perform upstream request: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Error().Err(closeErr).Msg("close upstream response body failed")
		}
	}()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read upstream response: %w", err)
	}

	c.logger.Debug().
		Str("method", method).
		Str("url", target.String()).
		Int("status", resp.StatusCode).
		Msg("upstream call completed")

	return &Response{
		Status: resp.StatusCode,
		Body:   raw,
		Header: resp.Header,
	}, nil
}
