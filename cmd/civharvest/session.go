package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"civharvest/pkg/auth"
	"civharvest/pkg/civitai"
	"civharvest/pkg/config"
	"civharvest/pkg/logger"
)

// loadConfig loads configuration with the global flags applied on top.
func loadConfig(flags map[string]interface{}) (*config.Config, error) {
	if flags == nil {
		flags = make(map[string]interface{})
	}
	if logLevel != "" {
		flags["log-level"] = logLevel
	}
	cfg, err := config.Load(configFile, flags)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// setupLogger installs the global logger. Silent mode keeps the console
// clear for the dashboard and only logs to the configured file.
func setupLogger(cfg *config.Config, silent bool) (logger.Logger, error) {
	newLogger := logger.New
	if silent {
		newLogger = logger.NewFileOnly
	}
	l, err := newLogger(&cfg.Logging)
	if err != nil {
		return nil, err
	}
	logger.SetLogger(l)
	return l, nil
}

// session is an authenticated view of the API.
type session struct {
	client   *civitai.Client
	api      *civitai.API
	resolver *auth.Resolver
	store    auth.TokenStore
	cred     *auth.Credential
}

// connect builds the tRPC client and resolves the session token. Without
// requireAuth a missing token only produces a warning, which is enough for
// public collections and images.
func connect(ctx context.Context, cfg *config.Config, log logger.Logger, requireAuth bool) (*session, error) {
	opts := civitai.OptionsFromConfig(cfg.API)
	opts.Logger = log
	client := civitai.NewClient(opts)

	resolver, store := auth.NewChain(auth.ChainOptions{
		Config: cfg.Auth,
		Logger: log,
	})

	s := &session{
		client:   client,
		api:      civitai.NewAPI(client),
		resolver: resolver,
		store:    store,
	}

	cred, err := resolver.Resolve(ctx)
	if err != nil {
		if requireAuth || ctx.Err() != nil {
			return nil, err
		}
		log.WithError(err).Warn("continuing without a session token")
		return s, nil
	}
	client.SetToken(cred.Token)
	s.cred = cred
	return s, nil
}

// parseID reads a positive numeric id argument. A civitai URL ending in the
// id is accepted too.
func parseID(arg, what string) (int64, error) {
	arg = strings.TrimSpace(arg)
	arg = strings.TrimRight(arg, "/")
	if i := strings.LastIndex(arg, "/"); i >= 0 {
		arg = arg[i+1:]
	}
	if i := strings.IndexAny(arg, "?#"); i >= 0 {
		arg = arg[:i]
	}
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s id %q", what, arg)
	}
	return id, nil
}
