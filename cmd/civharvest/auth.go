package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"civharvest/pkg/auth"
	"civharvest/pkg/civitai"
	"civharvest/pkg/config"
	"civharvest/pkg/logger"
	"civharvest/pkg/ui"

	"github.com/spf13/cobra"
)

var (
	writeEnvFile bool
	checkToken   bool
	showGuide    bool
)

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage the CivitAI session token",
	Long: `Manage the cached CivitAI session token.

The token is cached using the backend set in auth.cache_backend:
  - file: a plain file readable only by you (default)
  - keyring: the system keychain
  - encrypted: an AES-GCM encrypted file keyed with PBKDF2

Never share your session cookie or the cache file!`,
}

// loginCmd represents the auth login command
var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Paste and cache a session cookie",
	Long: `Prompt for the __Secure-civitai-token cookie and store it in the token cache.

A whole Cookie header, or a JSON cookie export, can be pasted instead; the
session cookie is picked out of it.`,
	Example: `  # Interactive login with the browser guide
  civharvest auth login --guide

  # Also write CIVITAI_SESSION_COOKIE to the configured .env file
  civharvest auth login --env`,
	Args: cobra.NoArgs,
	RunE: runLogin,
}

// statusCmd represents the auth status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show which source provides the session token",
	Args:  cobra.NoArgs,
	RunE:  runAuthStatus,
}

// logoutCmd represents the auth logout command
var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the cached session token",
	Args:  cobra.NoArgs,
	RunE:  runLogout,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(loginCmd)
	authCmd.AddCommand(statusCmd)
	authCmd.AddCommand(logoutCmd)

	loginCmd.Flags().BoolVar(&writeEnvFile, "env", false, "also write the token to auth.env_file")
	loginCmd.Flags().BoolVar(&showGuide, "guide", false, "print step-by-step browser instructions first")
	statusCmd.Flags().BoolVar(&checkToken, "check", false, "verify the token with an authenticated request")
}

func authSetup() (*config.Config, logger.Logger, auth.TokenStore, error) {
	cfg, err := loadConfig(nil)
	if err != nil {
		return nil, nil, nil, err
	}
	log, err := setupLogger(cfg, false)
	if err != nil {
		return nil, nil, nil, err
	}
	store, err := auth.NewStore(cfg.Auth)
	if err != nil {
		log.WithError(err).Warn("token store unavailable, using the cache file")
		store = auth.NewFileStore(auth.CachePath(cfg.Auth))
	}
	return cfg, log, store, nil
}

func runLogin(cmd *cobra.Command, args []string) error {
	cfg, _, store, err := authSetup()
	if err != nil {
		return err
	}

	if showGuide {
		auth.WriteCookieExtractionGuide(os.Stdout)
	}

	acq := &auth.PromptAcquirer{In: os.Stdin, Out: os.Stderr}
	token, err := acq.Acquire(cmd.Context())
	if err != nil {
		return fmt.Errorf("no session cookie read: %w", err)
	}

	if len(token) < auth.MinTokenLength {
		ui.PrintWarning(fmt.Sprintf("that value is only %d characters; session tokens are usually over %d", len(token), auth.MinTokenLength))
		fmt.Fprint(os.Stderr, "Store it anyway? (y/N): ")
		answer, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(answer)), "y") {
			return nil
		}
	}

	if err := store.Save(token); err != nil {
		return fmt.Errorf("failed to store token: %w", err)
	}
	ui.PrintSuccess(fmt.Sprintf("Session token stored (%s backend): %s", store.Name(), auth.Mask(token)))

	if writeEnvFile {
		if err := auth.WriteEnvFile(cfg.Auth.EnvFile, auth.EnvSessionCookie, token); err != nil {
			return err
		}
		ui.PrintInfo("Written to", cfg.Auth.EnvFile)
	}

	fmt.Println("\nStart harvesting with:")
	fmt.Println("  $ civharvest harvest <collection-id>")
	return nil
}

func runAuthStatus(cmd *cobra.Command, args []string) error {
	cfg, log, store, err := authSetup()
	if err != nil {
		return err
	}

	// the acquire command is not run here; it may open a browser
	cred, attempts := auth.FirstSuccess(cmd.Context(),
		auth.CacheSource(store),
		auth.EnvSource(nil),
		auth.StaticSource(cfg.Auth.SessionCookie),
	)

	ui.PrintHighlight("Session token sources")
	for _, a := range attempts {
		mark := ui.Dim("•")
		if a.OK() {
			mark = ui.Green("✓")
		}
		fmt.Printf("  %s %s\n", mark, a.String())
	}
	if cfg.Auth.AcquireCommand != "" {
		fmt.Printf("  %s automation: %s\n", ui.Dim("•"), cfg.Auth.AcquireCommand)
	}

	if cred == nil {
		ui.PrintWarning("no session token available")
		fmt.Println()
		fmt.Println(auth.Remediation)
		return nil
	}
	if cred.BelowThreshold {
		ui.PrintWarning("the token is shorter than expected and may be a CSRF token")
	}

	if !checkToken {
		return nil
	}

	opts := civitai.OptionsFromConfig(cfg.API)
	opts.Logger = log
	client := civitai.NewClient(opts)
	client.SetToken(cred.Token)
	presets, err := civitai.NewAPI(client).BrowsingPresets(cmd.Context())
	if err != nil {
		return fmt.Errorf("token check failed: %w", err)
	}
	ui.PrintSuccess(fmt.Sprintf("Token accepted (%d browsing presets visible)", len(presets)))
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	cfg, _, store, err := authSetup()
	if err != nil {
		return err
	}

	switch err := store.Delete(); {
	case err == nil:
		ui.PrintSuccess("Cached session token removed (" + store.Name() + ")")
	case errors.Is(err, auth.ErrTokenNotFound):
		ui.PrintInfo("Token cache", "nothing cached")
	default:
		return fmt.Errorf("failed to remove cached token: %w", err)
	}

	if err := auth.RemoveEnvKey(cfg.Auth.EnvFile, auth.EnvSessionCookie); err != nil {
		return err
	}
	if _, set := os.LookupEnv(auth.EnvSessionCookie); set {
		ui.PrintWarning(auth.EnvSessionCookie + " is still set in this shell")
	}
	return nil
}
