package auth

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"civharvest/pkg/config"
	apperrors "civharvest/pkg/errors"
	"civharvest/pkg/logger"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func longToken(prefix string) string {
	return prefix + strings.Repeat("x", MinTokenLength)
}

func noEnv(string) (string, bool) { return "", false }

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestResolveShortAcquiredToken(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(filepath.Join(dir, ".civitai_session"))
	envFile := filepath.Join(dir, ".env")
	short := strings.Repeat("a", 40)
	log := logger.NewTestLogger()

	r := NewResolver(log,
		CacheSource(store),
		EnvSource(noEnv),
		AutomationSource(&MockAcquirer{Token: short}, AutomationOptions{Store: store, EnvFile: envFile, Logger: log}),
		StaticSource(""),
	)

	cred, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, short, cred.Token)
	assert.True(t, cred.BelowThreshold)
	assert.Equal(t, OriginAutomation, cred.Origin)
	assert.NotEmpty(t, log.GetMessagesByLevel("WARN"))

	// written back to both the cache and the env file
	cached, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, short, cached)

	env, err := godotenv.Read(envFile)
	require.NoError(t, err)
	assert.Equal(t, short, env[EnvSessionCookie])
}

func TestResolveSourceOrder(t *testing.T) {
	cacheTok := longToken("cache")
	envTok := longToken("env")
	cfgTok := longToken("cfg")

	tests := []struct {
		name       string
		cache      string
		env        map[string]string
		acquired   string
		static     string
		want       string
		wantOrigin Origin
		acqCalls   int
	}{
		{"cache first", cacheTok, map[string]string{EnvSessionCookie: envTok}, longToken("acq"), cfgTok, cacheTok, OriginCache, 0},
		{"short cache ignored", "short", map[string]string{EnvSessionCookie: envTok}, "", cfgTok, envTok, OriginEnv, 0},
		{"token var after cookie var", "", map[string]string{EnvSessionCookie: "tiny", EnvSessionToken: envTok}, "", "", envTok, OriginEnv, 0},
		{"automation before config", "", nil, longToken("acq"), cfgTok, longToken("acq"), OriginAutomation, 1},
		{"config last", "", nil, "", cfgTok, cfgTok, OriginConfig, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acq := &MockAcquirer{Token: tt.acquired}
			if tt.acquired == "" {
				acq.Err = errors.New("browser closed")
			}
			r := NewResolver(logger.NewNopLogger(),
				CacheSource(NewMockStore(tt.cache)),
				EnvSource(envMap(tt.env)),
				AutomationSource(acq, AutomationOptions{Logger: logger.NewNopLogger()}),
				StaticSource(tt.static),
			)

			cred, err := r.Resolve(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, cred.Token)
			assert.Equal(t, tt.wantOrigin, cred.Origin)
			assert.False(t, cred.BelowThreshold)
			assert.Equal(t, tt.acqCalls, acq.Calls())
		})
	}
}

func TestResolveAllSourcesFail(t *testing.T) {
	r := NewResolver(logger.NewNopLogger(),
		CacheSource(NewMockStore("")),
		EnvSource(noEnv),
		AutomationSource(&MockAcquirer{Err: errors.New("timed out")}, AutomationOptions{Logger: logger.NewNopLogger()}),
		StaticSource(""),
	)

	cred, err := r.Resolve(context.Background())
	assert.Nil(t, cred)
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeAuth))
	assert.Contains(t, err.Error(), "timed out")
	assert.Contains(t, err.Error(), "civharvest auth login")
}

func TestResolveMemoizesUntilInvalidated(t *testing.T) {
	store := NewMockStore(longToken("first"))
	r := NewResolver(logger.NewNopLogger(), CacheSource(store))

	cred, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, longToken("first"), cred.Token)

	require.NoError(t, store.Save(longToken("second")))
	cred, err = r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, longToken("first"), cred.Token)

	r.Invalidate()
	cred, err = r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, longToken("second"), cred.Token)
}

func TestResolveCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	acq := &MockAcquirer{Token: longToken("x")}
	r := NewResolver(logger.NewNopLogger(), AutomationSource(acq, AutomationOptions{}))
	_, err := r.Resolve(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, acq.Calls())
}

func TestPersistFailureDoesNotFailResolution(t *testing.T) {
	store := NewMockStore("")
	store.SaveError = errors.New("read-only")
	log := logger.NewTestLogger()

	r := NewResolver(log, AutomationSource(&MockAcquirer{Token: longToken("acq")}, AutomationOptions{Store: store, Logger: log}))
	cred, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, longToken("acq"), cred.Token)
	assert.True(t, log.HasMessage("could not cache session token"))
}

func TestFirstSuccessStopsEarly(t *testing.T) {
	var called []string
	src := func(name string, ok bool) Source {
		return NewSource(name, func(ctx context.Context) Attempt {
			called = append(called, name)
			if ok {
				return succeed(name, &Credential{Token: name})
			}
			return fail(name, "nothing", nil)
		})
	}

	cred, attempts := FirstSuccess(context.Background(), src("a", false), src("b", true), src("c", true))
	require.NotNil(t, cred)
	assert.Equal(t, "b", cred.Token)
	assert.Equal(t, []string{"a", "b"}, called)
	require.Len(t, attempts, 2)
	assert.False(t, attempts[0].OK())
	assert.True(t, attempts[1].OK())
}

func TestSelectSessionCookie(t *testing.T) {
	session := longToken("sess")

	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{"bare token", "  " + session + "\n", session, false},
		{"json array", `[{"name":"__Host-next-auth.csrf-token","value":"abc"},{"name":"__Secure-civitai-token","value":"` + session + `"},{"name":"theme","value":"` + session + `x"}]`, session, false},
		{"cookie header", "Cookie: theme=dark; __Secure-civitai-token=" + session + "; ref_landing_page=%2F", session, false},
		{"lines", "__Host-next-auth.csrf-token=abc\n__Secure-civitai-token=\"" + session + "\"\n", session, false},
		{"value with equals", "civitai-session=ab=cd", "ab=cd", false},
		{"no auth cookie", "theme=dark\nlocale=en", "", true},
		{"empty", "   ", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SelectSessionCookie(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMask(t *testing.T) {
	assert.Equal(t, "********", Mask("short"))
	assert.Equal(t, "abcd...wxyz", Mask("abcdefghijklmnopqrstuvwxyz"))
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", ".civitai_session")
	store := NewFileStore(path)

	_, err := store.Load()
	assert.ErrorIs(t, err, ErrTokenNotFound)

	require.NoError(t, store.Save("token-value"))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "token-value", got)

	require.NoError(t, store.Delete())
	assert.ErrorIs(t, store.Delete(), ErrTokenNotFound)
}

func TestEncryptedFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.enc")

	store, err := NewEncryptedFileStore(path, "correct horse")
	require.NoError(t, err)
	require.NoError(t, store.Save("secret-token"))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "secret-token")

	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "secret-token", got)

	wrong, err := NewEncryptedFileStore(path, "battery staple")
	require.NoError(t, err)
	_, err = wrong.Load()
	assert.Error(t, err)
}

func TestEncryptedFileStoreGeneratesPassphrase(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.enc")

	store, err := NewEncryptedFileStore(path, "")
	require.NoError(t, err)
	require.NoError(t, store.Save("tok"))

	_, err = os.Stat(filepath.Join(dir, ".passphrase"))
	require.NoError(t, err)

	again, err := NewEncryptedFileStore(path, "")
	require.NoError(t, err)
	got, err := again.Load()
	require.NoError(t, err)
	assert.Equal(t, "tok", got)
}

func TestWriteEnvFileKeepsOtherKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("OTHER=1\nCIVITAI_SESSION_COOKIE=old\n"), 0600))

	require.NoError(t, WriteEnvFile(path, EnvSessionCookie, "new-value"))

	env, err := godotenv.Read(path)
	require.NoError(t, err)
	assert.Equal(t, "1", env["OTHER"])
	assert.Equal(t, "new-value", env[EnvSessionCookie])

	require.NoError(t, RemoveEnvKey(path, EnvSessionCookie))
	env, err = godotenv.Read(path)
	require.NoError(t, err)
	_, ok := env[EnvSessionCookie]
	assert.False(t, ok)
	assert.NoError(t, RemoveEnvKey(filepath.Join(t.TempDir(), "missing.env"), "X"))
}

func TestCachePathEnvOverride(t *testing.T) {
	cfg := config.AuthConfig{CacheFile: "/tmp/from-config"}
	assert.Equal(t, "/tmp/from-config", CachePath(cfg))

	t.Setenv(EnvSessionCache, "/tmp/from-env")
	assert.Equal(t, "/tmp/from-env", CachePath(cfg))
}

func TestNewChainFromConfig(t *testing.T) {
	dir := t.TempDir()
	cfg := config.DefaultConfig().Auth
	cfg.CacheFile = filepath.Join(dir, ".civitai_session")
	cfg.EnvFile = filepath.Join(dir, ".env")
	cfg.SessionCookie = longToken("cfg")

	r, store := NewChain(ChainOptions{Config: cfg, Lookup: noEnv, Logger: logger.NewNopLogger()})
	assert.Equal(t, BackendFile, store.Name())

	cred, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OriginConfig, cred.Origin)
}

func TestCommandAcquirer(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("no /bin/sh")
	}
	session := longToken("cmd")
	acq := &CommandAcquirer{Command: "printf 'theme=dark\\n__Secure-civitai-token=" + session + "\\n'"}

	got, err := acq.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, session, got)

	_, err = (&CommandAcquirer{Command: "exit 3"}).Acquire(context.Background())
	assert.Error(t, err)
}
