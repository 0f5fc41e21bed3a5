// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package proxy

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/go-core-stack/gh-content-proxy/pkg/auth"
	"github.com/go-core-stack/gh-content-proxy/pkg/config"
	"github.com/go-core-stack/gh-content-proxy/pkg/github"
	"github.com/go-core-stack/gh-content-proxy/pkg/metrics"
)

// Operation names used for routing, metrics labels, and log fields.
const (
	opRaw       = "raw"
	opPut       = "put"
	opDelete    = "delete"
	opPreflight = "preflight"
	opNotFound  = "not_found"
)

// maxBodyBytes caps inbound JSON bodies; base64 content for an admin UI
// stays far below this.
const maxBodyBytes = 16 << 20

// rateLimitHeaders are forwarded from upstream responses so the admin UI
// can surface remaining quota.
var rateLimitHeaders = []string{
	"X-RateLimit-Limit",
	"X-RateLimit-Remaining",
	"X-RateLimit-Reset",
	"X-RateLimit-Used",
	"Retry-After",
}

// Proxy translates admin-UI file operations into GitHub Contents API
// calls, injecting the server-held credential and normalizing every
// response into the uniform envelope.
type Proxy struct {
	// cfg keeps runtime knobs such as the target repository and origins.
	cfg config.Config
	// gh performs the upstream Contents API calls.
	gh *github.Client
	// metrics tracks request counts and upstream latency.
	metrics *metrics.Metrics
	// logger emits structured logs for observability.
	logger zerolog.Logger
}

// New constructs a Proxy with an upstream client built from the
// configuration. A nil Metrics gets a fresh registry.
func New(cfg config.Config, m *metrics.Metrics) (http.Handler, error) {
	gh, err := github.New(github.Options{
		BaseURL:        cfg.APIBaseURL,
		Repo:           cfg.Repo,
		Credential:     auth.NewCredential(cfg.Token),
		RequestTimeout: cfg.RequestTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("build upstream client: %w", err)
	}

	if m == nil {
		m = metrics.New()
	}

	return &Proxy{
		cfg:     cfg,
		gh:      gh,
		metrics: m,
		logger:  log.With().Str("component", "proxy").Logger(),
	}, nil
}

// envelope is the uniform response shape for every operation. Exactly one
// of Content, Result, ResultText, or Error carries the payload.
type envelope struct {
	Status     int             `json:"status"`
	ElapsedMS  int64           `json:"elapsed_ms"`
	Content    *string         `json:"content,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
	ResultText string          `json:"result_text,omitempty"`
	Error      string          `json:"error,omitempty"`
	Detail     string          `json:"detail,omitempty"`
}

// putBody is the inbound JSON for the put operation.
type putBody struct {
	Path          string `json:"path"`
	ContentBase64 string `json:"contentBase64"`
	Message       string `json:"message"`
	Branch        string `json:"branch"`
}

// deleteBody is the inbound JSON for the delete operation.
type deleteBody struct {
	Path    string `json:"path"`
	Message string `json:"message"`
	Branch  string `json:"branch"`
}

// ServeHTTP applies the CORS preflight shortcut and otherwise dispatches
// on path suffix and method. Panics anywhere below are converted into the
// Internal-Error envelope so a hostile request can never crash the
// process.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := uuid.NewString()

	event := p.logger.With().
		Str("request_id", requestID).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Str("remote_addr", r.RemoteAddr).
		Logger()

	w.Header().Set("X-Request-Id", requestID)
	p.applyCORS(w, r)

	operation := classify(r)

	defer func() {
		if rec := recover(); rec != nil {
			event.Error().
				Interface("panic", rec).
				Dur("duration", time.Since(start)).
				Msg("request handler panicked")
			p.writeEnvelope(w, event, operation, http.StatusInternalServerError, envelope{
				Status: http.StatusInternalServerError,
				Error:  fmt.Sprintf("internal error: %v", rec),
			}, nil)
		}
	}()

	switch operation {
	case opPreflight:
		w.WriteHeader(http.StatusNoContent)
		p.metrics.RecordRequest(opPreflight, http.StatusNoContent)
		event.Debug().Msg("preflight handled")
	case opRaw:
		p.handleRaw(w, r, event)
	case opPut:
		p.handlePut(w, r, event)
	case opDelete:
		p.handleDelete(w, r, event)
	default:
		p.writeEnvelope(w, event, opNotFound, http.StatusNotFound, envelope{
			Status: http.StatusNotFound,
			Error:  "not found",
		}, nil)
	}
}

// classify picks the operation from the method and path suffix. Preflight
// wins over everything else.
func classify(r *http.Request) string {
	if r.Method == http.MethodOptions {
		return opPreflight
	}
	switch {
	case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/raw"):
		return opRaw
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/put"):
		return opPut
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/delete"):
		return opDelete
	default:
		return opNotFound
	}
}

// handleRaw proxies a raw file read. The credential is optional here; the
// upstream status is mirrored whatever it is.
func (p *Proxy) handleRaw(w http.ResponseWriter, r *http.Request, event zerolog.Logger) {
	path := r.URL.Query().Get("path")
	if path == "" {
		p.writeEnvelope(w, event, opRaw, http.StatusBadRequest, envelope{
			Status: http.StatusBadRequest,
			Error:  "missing required query parameter: path",
		}, nil)
		return
	}
	if p.cfg.Repo == "" {
		p.writeEnvelope(w, event, opRaw, http.StatusInternalServerError, envelope{
			Status: http.StatusInternalServerError,
			Error:  "target repository is not configured",
		}, nil)
		return
	}

	start := time.Now()
	resp, err := p.gh.RawContent(r.Context(), path)
	elapsed := time.Since(start)
	if err != nil {
		p.writeEnvelope(w, event, opRaw, http.StatusInternalServerError, envelope{
			Status:    http.StatusInternalServerError,
			ElapsedMS: elapsed.Milliseconds(),
			Error:     err.Error(),
		}, nil)
		return
	}
	p.metrics.ObserveUpstream(opRaw, elapsed)

	content := string(resp.Body)
	p.writeEnvelope(w, event, opRaw, resp.Status, envelope{
		Status:    resp.Status,
		ElapsedMS: elapsed.Milliseconds(),
		Content:   &content,
	}, resp.Header)
}

// handlePut performs the two-step optimistic update: look up the current
// revision marker, then submit the create-or-update call with the marker
// iff one was found. Lookup failures of any kind mean "no marker", never
// an error.
func (p *Proxy) handlePut(w http.ResponseWriter, r *http.Request, event zerolog.Logger) {
	var body putBody
	decodeBody(r, &body)

	if body.Path == "" || body.ContentBase64 == "" {
		p.writeEnvelope(w, event, opPut, http.StatusBadRequest, envelope{
			Status: http.StatusBadRequest,
			Error:  "missing required fields: path and contentBase64",
		}, nil)
		return
	}
	if p.cfg.Repo == "" || !p.gh.Credential().Configured() {
		p.writeEnvelope(w, event, opPut, http.StatusInternalServerError, envelope{
			Status: http.StatusInternalServerError,
			Error:  "repository or write credential is not configured",
		}, nil)
		return
	}

	branch := body.Branch
	if branch == "" {
		branch = p.cfg.DefaultBranch
	}
	message := body.Message
	if message == "" {
		message = "update " + body.Path
	}

	var sha string
	lookup, err := p.gh.LookupMeta(r.Context(), body.Path, branch)
	if err != nil {
		event.Warn().Err(err).Msg("metadata lookup failed; treating as new file")
	} else if lookup.Found {
		sha = lookup.SHA
	}

	start := time.Now()
	resp, err := p.gh.PutFile(r.Context(), github.PutRequest{
		Path:          body.Path,
		Branch:        branch,
		Message:       message,
		ContentBase64: body.ContentBase64,
		SHA:           sha,
	})
	elapsed := time.Since(start)
	if err != nil {
		p.writeEnvelope(w, event, opPut, http.StatusInternalServerError, envelope{
			Status:    http.StatusInternalServerError,
			ElapsedMS: elapsed.Milliseconds(),
			Error:     err.Error(),
		}, nil)
		return
	}
	p.metrics.ObserveUpstream(opPut, elapsed)

	p.writeEnvelope(w, event, opPut, resp.Status, resultEnvelope(resp, elapsed), resp.Header)
}

// handleDelete requires the revision marker: the metadata lookup must
// succeed and carry a sha before the deletion is attempted.
func (p *Proxy) handleDelete(w http.ResponseWriter, r *http.Request, event zerolog.Logger) {
	var body deleteBody
	decodeBody(r, &body)

	if body.Path == "" {
		p.writeEnvelope(w, event, opDelete, http.StatusBadRequest, envelope{
			Status: http.StatusBadRequest,
			Error:  "missing required field: path",
		}, nil)
		return
	}
	if p.cfg.Repo == "" || !p.gh.Credential().Configured() {
		p.writeEnvelope(w, event, opDelete, http.StatusInternalServerError, envelope{
			Status: http.StatusInternalServerError,
			Error:  "repository or write credential is not configured",
		}, nil)
		return
	}

	branch := body.Branch
	if branch == "" {
		branch = p.cfg.DefaultBranch
	}
	message := body.Message
	if message == "" {
		message = "delete " + body.Path
	}

	lookup, err := p.gh.LookupMeta(r.Context(), body.Path, branch)
	if err != nil {
		p.writeEnvelope(w, event, opDelete, http.StatusInternalServerError, envelope{
			Status: http.StatusInternalServerError,
			Error:  err.Error(),
		}, nil)
		return
	}
	if !lookup.Found {
		p.writeEnvelope(w, event, opDelete, lookup.Status, envelope{
			Status: lookup.Status,
			Error:  "meta fetch failed",
			Detail: string(lookup.Body),
		}, nil)
		return
	}
	if lookup.SHA == "" {
		p.writeEnvelope(w, event, opDelete, http.StatusInternalServerError, envelope{
			Status: http.StatusInternalServerError,
			Error:  "file exists but revision marker is missing; refusing delete",
		}, nil)
		return
	}

	start := time.Now()
	resp, err := p.gh.DeleteFile(r.Context(), github.DeleteRequest{
		Path:    body.Path,
		Branch:  branch,
		Message: message,
		SHA:     lookup.SHA,
	})
	elapsed := time.Since(start)
	if err != nil {
		p.writeEnvelope(w, event, opDelete, http.StatusInternalServerError, envelope{
			Status:    http.StatusInternalServerError,
			ElapsedMS: elapsed.Milliseconds(),
			Error:     err.Error(),
		}, nil)
		return
	}
	p.metrics.ObserveUpstream(opDelete, elapsed)

	p.writeEnvelope(w, event, opDelete, resp.Status, resultEnvelope(resp, elapsed), resp.Header)
}

// resultEnvelope embeds the upstream body verbatim when it is valid JSON
// and falls back to a plain string field otherwise.
func resultEnvelope(resp *github.Response, elapsed time.Duration) envelope {
	env := envelope{
		Status:    resp.Status,
		ElapsedMS: elapsed.Milliseconds(),
	}
	if json.Valid(resp.Body) {
		env.Result = json.RawMessage(resp.Body)
	} else {
		env.ResultText = string(resp.Body)
	}
	return env
}

// decodeBody parses the inbound JSON body. Malformed or absent bodies
// leave dst at its zero value so validation reports the missing fields.
func decodeBody(r *http.Request, dst any) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return
	}
	_ = json.Unmarshal(raw, dst)
}

// writeEnvelope emits the envelope with the given HTTP status, forwarding
// rate-limit headers when the upstream supplied them, and records the
// request metric and log line.
func (p *Proxy) writeEnvelope(w http.ResponseWriter, event zerolog.Logger, operation string, status int, env envelope, upstream http.Header) {
	if upstream != nil {
		for _, name := range rateLimitHeaders {
			if val := upstream.Get(name); val != "" {
				w.Header().Set(name, val)
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(env); err != nil {
		event.Error().Err(err).Msg("write response envelope failed")
	}

	p.metrics.RecordRequest(operation, status)

	var logEvent *zerolog.Event
	if env.Error != "" {
		logEvent = event.Warn().Str("error", env.Error)
	} else {
		logEvent = event.Info()
	}
	logEvent.
		Str("operation", operation).
		Int("status", status).
		Int64("upstream_elapsed_ms", env.ElapsedMS).
		Msg("request handled")
}

// applyCORS sets the response CORS headers for the configured origins. A
// disallowed origin gets no Allow-Origin header at all.
func (p *Proxy) applyCORS(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")

	allowAll := len(p.cfg.AllowedOrigins) == 0
	for _, o := range p.cfg.AllowedOrigins {
		if o == "*" {
			allowAll = true
			break
		}
	}

	switch {
	case allowAll:
		w.Header().Set("Access-Control-Allow-Origin", "*")
	case origin != "" && p.cfg.OriginAllowed(origin):
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Add("Vary", "Origin")
	}

	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "86400")
}
