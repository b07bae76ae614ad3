// Package auth provides the pluggable token validation strategy used by the
// connection workers.
package auth

import "sync/atomic"

// Result is the outcome of validating one token.
type Result struct {
	OK     bool
	UserID string
	Reason string
}

// Provider validates an opaque token.
type Provider interface {
	Validate(token string) Result
}

// disabledProvider accepts any token and derives a synthetic user id.
type disabledProvider struct{}

func (disabledProvider) Validate(token string) Result {
	if token == "" {
		return Result{OK: true, UserID: "anon"}
	}
	if len(token) > 8 {
		token = token[:8]
	}
	return Result{OK: true, UserID: token}
}

// stubProvider rejects empty tokens and prefixes the rest.
type stubProvider struct {
	prefix string
}

func (p stubProvider) Validate(token string) Result {
	if token == "" {
		return Result{Reason: "empty_token"}
	}
	if len(token) > 10 {
		token = token[:10]
	}
	return Result{OK: true, UserID: p.prefix + token}
}

// NewProvider selects a strategy by mode ("disabled" or "stub"). Unknown
// modes fall back to disabled.
func NewProvider(mode, stubPrefix string) Provider {
	if mode == "stub" {
		return stubProvider{prefix: stubPrefix}
	}
	return disabledProvider{}
}

// The active provider is stored once at startup and read on every auth.
var active atomic.Pointer[Provider]

// SetActive installs the process-wide provider.
func SetActive(p Provider) {
	active.Store(&p)
}

// Active returns the installed provider, defaulting to disabled if none was
// set.
func Active() Provider {
	if p := active.Load(); p != nil {
		return *p
	}
	return disabledProvider{}
}
