// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package auth

import "net/http"

const (
	// apiVersion pins the GitHub REST API revision the proxy speaks.
	apiVersion       = "2022-11-28"
	headerAPIVersion = "X-GitHub-Api-Version"
)

// Credential holds the server-side token used for upstream GitHub calls.
// The zero value is a valid "anonymous" credential: it still pins the API
// version but attaches no Authorization header.
type Credential struct {
	Token string
}

// NewCredential wraps a personal access token (possibly empty).
func NewCredential(token string) Credential {
	return Credential{Token: token}
}

// Configured reports whether a token is available for authenticated calls.
func (c Credential) Configured() bool {
	return c.Token != ""
}

// Attach injects the auth headers into an outbound upstream request.
func (c Credential) Attach(req *http.Request) {
	req.Header.Set(headerAPIVersion, apiVersion)
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
}
