package auth

import (
	"civharvest/pkg/config"
	"civharvest/pkg/logger"
)

// ChainOptions assemble the standard credential chain.
type ChainOptions struct {
	Config config.AuthConfig
	// Store overrides the backend chosen by Config.CacheBackend.
	Store TokenStore
	// Acquirer overrides the command acquirer built from
	// Config.AcquireCommand. Nil with no command skips automation.
	Acquirer Acquirer
	// Lookup reads environment variables; nil means os.LookupEnv.
	Lookup func(string) (string, bool)
	Logger logger.Logger
}

// NewChain builds a Resolver trying cache, environment, automation and the
// static config token, in that order. The returned store is the cache
// backend actually in use.
func NewChain(opts ChainOptions) (*Resolver, TokenStore) {
	log := opts.Logger
	if log == nil {
		log = logger.GetLogger()
	}

	store := opts.Store
	if store == nil {
		s, err := NewStore(opts.Config)
		if err != nil {
			// keychains are often missing on headless hosts
			log.WithError(err).WithField("backend", opts.Config.CacheBackend).Warn("token store unavailable, using the cache file")
			s = NewFileStore(CachePath(opts.Config))
		}
		store = s
	}

	acq := opts.Acquirer
	if acq == nil && opts.Config.AcquireCommand != "" {
		acq = &CommandAcquirer{
			Command: opts.Config.AcquireCommand,
			Timeout: opts.Config.AcquireTimeout,
		}
	}

	sources := []Source{
		CacheSource(store),
		EnvSource(opts.Lookup),
	}
	if acq != nil {
		sources = append(sources, AutomationSource(acq, AutomationOptions{
			Store:   store,
			EnvFile: opts.Config.EnvFile,
			Logger:  log,
		}))
	}
	sources = append(sources, StaticSource(opts.Config.SessionCookie))

	return NewResolver(log, sources...), store
}
