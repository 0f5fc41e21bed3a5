// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

// Package proxy contains the HTTP handler that fronts a browser admin UI
// and proxies its file operations (raw read, create-or-update, delete) to
// the GitHub Contents API with server-held credentials injected.
package proxy
