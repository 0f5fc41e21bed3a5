// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package auth

import (
	"net/http"
	"testing"
)

func TestAttachSetsBearerToken(t *testing.T) {
	cred := NewCredential("ghp_example")
	req, err := http.NewRequest(http.MethodGet, "https://api.github.com/repos/o/r/contents/x", nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}

	cred.Attach(req)

	if got := req.Header.Get("Authorization"); got != "Bearer ghp_example" {
		t.Fatalf("unexpected authorization header: %q", got)
	}
	if got := req.Header.Get(headerAPIVersion); got != apiVersion {
		t.Fatalf("unexpected api version header: %q", got)
	}
	if !cred.Configured() {
		t.Fatal("expected credential to report configured")
	}
}

func TestAttachAnonymousOmitsAuthorization(t *testing.T) {
	var cred Credential
	req, err := http.NewRequest(http.MethodGet, "https://api.github.com/repos/o/r/contents/x", nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}

	cred.Attach(req)

	if got := req.Header.Get("Authorization"); got != "" {
		t.Fatalf("expected no authorization header, got %q", got)
	}
	if got := req.Header.Get(headerAPIVersion); got != apiVersion {
		t.Fatalf("api version header should always be set, got %q", got)
	}
	if cred.Configured() {
		t.Fatal("zero credential must not report configured")
	}
}
