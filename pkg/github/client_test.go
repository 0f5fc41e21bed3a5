// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package github

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/go-core-stack/gh-content-proxy/pkg/auth"
)

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func newTestClient(t *testing.T, rt http.RoundTripper) *Client {
	t.Helper()
	client, err := New(Options{
		BaseURL:    "https://api.github.example.com",
		Repo:       "acme/site",
		Credential: auth.NewCredential("tkn"),
		HTTPClient: &http.Client{Transport: rt},
	})
	if err != nil {
		t.Fatalf("create client: %v", err)
	}
	return client
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     make(http.Header),
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestLookupMetaFound(t *testing.T) {
	var captured *http.Request
	client := newTestClient(t, roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		captured = req
		return jsonResponse(http.StatusOK, `{"sha":"abc123","size":42}`), nil
	}))

	lookup, err := client.LookupMeta(context.Background(), "static/ads.json", "main")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if !lookup.Found {
		t.Fatal("expected lookup to report found")
	}
	if lookup.SHA != "abc123" {
		t.Fatalf("unexpected sha: %q", lookup.SHA)
	}
	if lookup.Status != http.StatusOK {
		t.Fatalf("unexpected status: %d", lookup.Status)
	}

	if captured.Method != http.MethodGet {
		t.Fatalf("expected GET, got %s", captured.Method)
	}
	if got := captured.URL.Path; got != "/repos/acme/site/contents/static/ads.json" {
		t.Fatalf("unexpected path: %s", got)
	}
	if got := captured.URL.Query().Get("ref"); got != "main" {
		t.Fatalf("expected ref=main, got %q", got)
	}
	if got := captured.Header.Get("Authorization"); got != "Bearer tkn" {
		t.Fatalf("missing bearer token, got %q", got)
	}
	if got := captured.Header.Get("Accept"); got != acceptJSON {
		t.Fatalf("unexpected accept header: %q", got)
	}
}

func TestLookupMetaNotFoundIsNormalVariant(t *testing.T) {
	client := newTestClient(t, roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusNotFound, `{"message":"Not Found"}`), nil
	}))

	lookup, err := client.LookupMeta(context.Background(), "missing.json", "main")
	if err != nil {
		t.Fatalf("lookup must not error on non-200: %v", err)
	}
	if lookup.Found {
		t.Fatal("404 lookup must not report found")
	}
	if lookup.Status != http.StatusNotFound {
		t.Fatalf("unexpected status: %d", lookup.Status)
	}
	if !strings.Contains(string(lookup.Body), "Not Found") {
		t.Fatalf("lookup body not retained: %s", lookup.Body)
	}
}

func TestLookupMetaFoundWithoutSHA(t *testing.T) {
	client := newTestClient(t, roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{"size":1}`), nil
	}))

	lookup, err := client.LookupMeta(context.Background(), "odd.json", "main")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if !lookup.Found {
		t.Fatal("200 lookup must report found even without a sha")
	}
	if lookup.SHA != "" {
		t.Fatalf("expected empty sha, got %q", lookup.SHA)
	}
}

func TestPutFileOmitsEmptySHA(t *testing.T) {
	var payload map[string]any
	client := newTestClient(t, roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		raw, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &payload); err != nil {
			return nil, err
		}
		if req.Method != http.MethodPut {
			t.Errorf("expected PUT, got %s", req.Method)
		}
		return jsonResponse(http.StatusCreated, `{"content":{"sha":"new"}}`), nil
	}))

	resp, err := client.PutFile(context.Background(), PutRequest{
		Path:          "docs/a.md",
		Branch:        "main",
		Message:       "update docs/a.md",
		ContentBase64: "aGVsbG8=",
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if resp.Status != http.StatusCreated {
		t.Fatalf("unexpected status: %d", resp.Status)
	}
	if _, present := payload["sha"]; present {
		t.Fatalf("sha key must be omitted on create, payload: %v", payload)
	}
	if payload["content"] != "aGVsbG8=" {
		t.Fatalf("unexpected content field: %v", payload["content"])
	}
	if payload["branch"] != "main" {
		t.Fatalf("unexpected branch field: %v", payload["branch"])
	}
}

func TestPutFileForwardsSHA(t *testing.T) {
	var payload map[string]any
	client := newTestClient(t, roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		raw, _ := io.ReadAll(req.Body)
		_ = json.Unmarshal(raw, &payload)
		return jsonResponse(http.StatusOK, `{"content":{"sha":"next"}}`), nil
	}))

	if _, err := client.PutFile(context.Background(), PutRequest{
		Path:          "docs/a.md",
		Branch:        "main",
		Message:       "update docs/a.md",
		ContentBase64: "aGVsbG8=",
		SHA:           "abc123",
	}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if payload["sha"] != "abc123" {
		t.Fatalf("expected sha forwarded, payload: %v", payload)
	}
}

func TestDeleteFilePayload(t *testing.T) {
	var captured *http.Request
	var payload map[string]any
	client := newTestClient(t, roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		captured = req
		raw, _ := io.ReadAll(req.Body)
		_ = json.Unmarshal(raw, &payload)
		return jsonResponse(http.StatusOK, `{"commit":{"sha":"c1"}}`), nil
	}))

	resp, err := client.DeleteFile(context.Background(), DeleteRequest{
		Path:    "x.json",
		Branch:  "main",
		Message: "delete x.json",
		SHA:     "abc123",
	})
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if resp.Status != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.Status)
	}
	if captured.Method != http.MethodDelete {
		t.Fatalf("expected DELETE, got %s", captured.Method)
	}
	if payload["sha"] != "abc123" || payload["branch"] != "main" || payload["message"] != "delete x.json" {
		t.Fatalf("unexpected delete payload: %v", payload)
	}
}

func TestRawContentUsesRawAcceptAndMirrorsFailures(t *testing.T) {
	client := newTestClient(t, roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		if got := req.Header.Get("Accept"); got != acceptRaw {
			t.Errorf("unexpected accept header: %q", got)
		}
		return jsonResponse(http.StatusForbidden, "rate limited"), nil
	}))

	resp, err := client.RawContent(context.Background(), "static/ads.json")
	if err != nil {
		t.Fatalf("raw content must not error on upstream failure status: %v", err)
	}
	if resp.Status != http.StatusForbidden {
		t.Fatalf("unexpected status: %d", resp.Status)
	}
	if string(resp.Body) != "rate limited" {
		t.Fatalf("unexpected body: %s", resp.Body)
	}
}

func TestNewRejectsRelativeBaseURL(t *testing.T) {
	if _, err := New(Options{BaseURL: "api.github.com", Repo: "a/b"}); err == nil {
		t.Fatal("expected error for relative base URL")
	}
}
