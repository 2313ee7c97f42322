// Package auth resolves the CivitAI session token from an ordered chain of
// sources: cache, environment, automated login and static config.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	apperrors "civharvest/pkg/errors"
	"civharvest/pkg/logger"
)

// MinTokenLength is the shortest value trusted as a session token. Shorter
// cookie values are usually CSRF or callback tokens.
const MinTokenLength = 100

// Origin names where a credential came from.
type Origin string

const (
	OriginCache      Origin = "cache"
	OriginEnv        Origin = "environment"
	OriginAutomation Origin = "automation"
	OriginConfig     Origin = "config"
)

// Credential is a resolved session token.
type Credential struct {
	Token  string
	Origin Origin
	// BelowThreshold is set when an acquired token is shorter than
	// MinTokenLength. It is still used.
	BelowThreshold bool
}

// Masked returns the token with all but its ends hidden.
func (c *Credential) Masked() string {
	return Mask(c.Token)
}

// Attempt is the outcome of asking one source for a credential.
type Attempt struct {
	Source     string
	Credential *Credential
	// Reason says why the source had nothing.
	Reason string
	Err    error
}

// OK reports whether the attempt produced a credential.
func (a Attempt) OK() bool {
	return a.Credential != nil
}

func (a Attempt) String() string {
	if a.OK() {
		return fmt.Sprintf("%s: ok (%s)", a.Source, Mask(a.Credential.Token))
	}
	if a.Err != nil {
		return fmt.Sprintf("%s: %s: %v", a.Source, a.Reason, a.Err)
	}
	return fmt.Sprintf("%s: %s", a.Source, a.Reason)
}

func succeed(source string, cred *Credential) Attempt {
	return Attempt{Source: source, Credential: cred}
}

func fail(source, reason string, err error) Attempt {
	return Attempt{Source: source, Reason: reason, Err: err}
}

// Source is one place a credential may come from.
type Source interface {
	Name() string
	Attempt(ctx context.Context) Attempt
}

type sourceFunc struct {
	name string
	fn   func(ctx context.Context) Attempt
}

func (s sourceFunc) Name() string                        { return s.name }
func (s sourceFunc) Attempt(ctx context.Context) Attempt { return s.fn(ctx) }

// NewSource wraps fn as a Source.
func NewSource(name string, fn func(ctx context.Context) Attempt) Source {
	return sourceFunc{name: name, fn: fn}
}

// FirstSuccess tries sources in order and stops at the first credential.
// All attempts made are returned, the successful one last.
func FirstSuccess(ctx context.Context, sources ...Source) (*Credential, []Attempt) {
	attempts := make([]Attempt, 0, len(sources))
	for _, src := range sources {
		if ctx.Err() != nil {
			attempts = append(attempts, fail(src.Name(), "cancelled", ctx.Err()))
			break
		}
		a := src.Attempt(ctx)
		if a.Source == "" {
			a.Source = src.Name()
		}
		attempts = append(attempts, a)
		if a.OK() {
			return a.Credential, attempts
		}
	}
	return nil, attempts
}

// Resolver produces the session token for a run. The first successful
// resolution is kept until Invalidate is called.
type Resolver struct {
	sources []Source
	logger  logger.Logger

	mu     sync.Mutex
	cached *Credential
}

// NewResolver creates a Resolver over sources, tried in the given order.
func NewResolver(log logger.Logger, sources ...Source) *Resolver {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Resolver{
		sources: sources,
		logger:  log.WithField("component", "auth"),
	}
}

// Resolve returns a credential or an authentication error listing what
// every source reported.
func (r *Resolver) Resolve(ctx context.Context) (*Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cached != nil {
		return r.cached, nil
	}

	cred, attempts := FirstSuccess(ctx, r.sources...)
	for _, a := range attempts {
		if !a.OK() {
			r.logger.WithField("source", a.Source).Debug(a.String())
		}
	}
	if cred == nil {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, noCredentialError(attempts)
	}

	fields := map[string]interface{}{
		"source": string(cred.Origin),
		"length": len(cred.Token),
		"token":  Mask(cred.Token),
	}
	if cred.BelowThreshold {
		r.logger.WarnWithFields("session token is shorter than expected and may be a CSRF token; re-authenticate if requests fail", fields)
	} else {
		r.logger.InfoWithFields("session token resolved", fields)
	}

	r.cached = cred
	return cred, nil
}

// Invalidate forgets the resolved credential so the next Resolve walks the
// sources again.
func (r *Resolver) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cached = nil
}

func noCredentialError(attempts []Attempt) error {
	var b strings.Builder
	b.WriteString("no session token available")
	for _, a := range attempts {
		b.WriteString("\n  - ")
		b.WriteString(a.String())
	}
	b.WriteString("\n\n")
	b.WriteString(Remediation)
	return apperrors.NewAuthenticationError(b.String(), 0)
}

// Mask hides all but the first and last 4 characters of a token.
func Mask(s string) string {
	if len(s) <= 8 {
		return "********"
	}
	return s[:4] + "..." + s[len(s)-4:]
}

// Errors
var (
	ErrTokenNotFound    = errors.New("session token not found")
	ErrInvalidToken     = errors.New("invalid session token")
	ErrStoreUnavailable = errors.New("token store unavailable")
)
