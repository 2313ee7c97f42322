package auth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"civharvest/pkg/logger"
)

// Environment variables read by EnvSource, in order.
const (
	EnvSessionCookie = "CIVITAI_SESSION_COOKIE"
	EnvSessionToken  = "CIVITAI_SESSION_TOKEN"
	// EnvSessionCache overrides the path of the file cache.
	EnvSessionCache = "CIVITAI_SESSION_CACHE"
)

// CacheSource reads a previously stored token.
func CacheSource(store TokenStore) Source {
	name := "cache"
	if store != nil {
		name = "cache:" + store.Name()
	}
	return NewSource(name, func(ctx context.Context) Attempt {
		if store == nil {
			return fail(name, "no token store configured", nil)
		}
		token, err := store.Load()
		if errors.Is(err, ErrTokenNotFound) {
			return fail(name, "nothing cached", nil)
		}
		if err != nil {
			return fail(name, "cache unreadable", err)
		}
		return trusted(name, OriginCache, token)
	})
}

// EnvSource reads CIVITAI_SESSION_COOKIE, then CIVITAI_SESSION_TOKEN.
// A nil lookup uses os.LookupEnv.
func EnvSource(lookup func(string) (string, bool)) Source {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	const name = "environment"
	return NewSource(name, func(ctx context.Context) Attempt {
		var reasons []string
		for _, key := range []string{EnvSessionCookie, EnvSessionToken} {
			value, ok := lookup(key)
			value = strings.TrimSpace(value)
			if !ok || value == "" {
				reasons = append(reasons, key+" unset")
				continue
			}
			if len(value) < MinTokenLength {
				reasons = append(reasons, fmt.Sprintf("%s too short (%d chars)", key, len(value)))
				continue
			}
			return succeed(name, &Credential{Token: value, Origin: OriginEnv})
		}
		return fail(name, strings.Join(reasons, ", "), nil)
	})
}

// StaticSource offers a token from the config file.
func StaticSource(token string) Source {
	const name = "config"
	return NewSource(name, func(ctx context.Context) Attempt {
		if strings.TrimSpace(token) == "" {
			return fail(name, "auth.session_cookie not set", nil)
		}
		return trusted(name, OriginConfig, strings.TrimSpace(token))
	})
}

// AutomationOptions configure AutomationSource.
type AutomationOptions struct {
	// Store receives the acquired token. Optional.
	Store TokenStore
	// EnvFile gets CIVITAI_SESSION_COOKIE written into it. Optional.
	EnvFile string
	Logger  logger.Logger
}

// AutomationSource obtains a fresh token from acq and persists it. Short
// tokens are accepted and flagged. Persistence failures are logged only.
func AutomationSource(acq Acquirer, opts AutomationOptions) Source {
	const name = "automation"
	log := opts.Logger
	if log == nil {
		log = logger.GetLogger()
	}
	return NewSource(name, func(ctx context.Context) Attempt {
		if acq == nil {
			return fail(name, "no acquirer configured", nil)
		}
		token, err := acq.Acquire(ctx)
		if err != nil {
			return fail(name, "acquisition failed", err)
		}
		token = strings.TrimSpace(token)
		if token == "" {
			return fail(name, "acquirer returned nothing", nil)
		}

		cred := &Credential{
			Token:          token,
			Origin:         OriginAutomation,
			BelowThreshold: len(token) < MinTokenLength,
		}
		persist(log, token, opts)
		return succeed(name, cred)
	})
}

func persist(log logger.Logger, token string, opts AutomationOptions) {
	if opts.Store != nil {
		if err := opts.Store.Save(token); err != nil {
			log.WithError(err).WithField("store", opts.Store.Name()).Warn("could not cache session token")
		} else {
			log.WithField("store", opts.Store.Name()).Info("session token cached")
		}
	}
	if opts.EnvFile != "" {
		if err := WriteEnvFile(opts.EnvFile, EnvSessionCookie, token); err != nil {
			log.WithError(err).WithField("path", opts.EnvFile).Warn("could not write session token to env file")
		} else {
			log.WithField("path", opts.EnvFile).Info("session token saved to env file")
		}
	}
}

func trusted(source string, origin Origin, token string) Attempt {
	if len(token) < MinTokenLength {
		return fail(source, fmt.Sprintf("token too short (%d chars, want %d)", len(token), MinTokenLength), nil)
	}
	return succeed(source, &Credential{Token: token, Origin: origin})
}
