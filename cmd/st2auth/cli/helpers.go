package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/pimguilherme/st2/internal/rbac"
	"github.com/pimguilherme/st2/internal/service"
	"github.com/pimguilherme/st2/internal/store"
)

// dataDir holds the --data-dir persistent flag value (set on root command).
var dataDir string

// resolveDataDir returns the data directory from --data-dir flag,
// ST2AUTH_DATA_DIR env var, or ~/.st2auth as fallback.
func resolveDataDir() string {
	if dataDir != "" {
		return dataDir
	}
	if envDir := os.Getenv("ST2AUTH_DATA_DIR"); envDir != "" {
		return envDir
	}
	home, _ := os.UserHomeDir()
	return home + "/.st2auth"
}

// openStore opens the system store per the active configuration: an explicit
// driver/DSN when configured, the data-dir SQLite store otherwise.
func openStore() (*store.Store, error) {
	driver := viper.GetString("database.driver")
	dsn := viper.GetString("database.dsn")
	if driver != "" && driver != "sqlite" {
		return store.Open(driver, dsn)
	}
	if driver == "sqlite" && dsn != "" {
		return store.Open("sqlite", dsn)
	}
	return store.NewStore(resolveDataDir())
}

// openAuth wires the store, the configured RBAC backend, and the auth
// service. The caller owns closing the returned store.
func openAuth() (*service.AuthService, *store.Store, error) {
	st, err := openStore()
	if err != nil {
		return nil, nil, fmt.Errorf("open system store: %w", err)
	}

	backend := viper.GetString("rbac.backend")
	if backend == "" {
		backend = "store"
	}
	resolver, err := rbac.Open(backend, st)
	if err != nil {
		st.Close()
		return nil, nil, fmt.Errorf("open rbac backend: %w", err)
	}

	auth := service.NewAuthService(st, resolver, service.Config{
		TokenTTL:    durationSetting("auth.token_ttl", 24*time.Hour),
		MaxTokenTTL: durationSetting("auth.max_token_ttl", 0),
		SSOTTL:      durationSetting("auth.sso_ttl", 2*time.Minute),
		JWTSecret:   viper.GetString("auth.jwt_secret"),
		Issuer:      viper.GetString("auth.issuer"),
	})
	return auth, st, nil
}

// durationSetting parses a duration from the active configuration, falling
// back to def when unset or malformed.
func durationSetting(key string, def time.Duration) time.Duration {
	raw := viper.GetString(key)
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

// --- PID file management ---

func pidFilePath() string {
	return filepath.Join(resolveDataDir(), "st2auth.pid")
}

func writePID(pid int) error {
	dir := resolveDataDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	return os.WriteFile(pidFilePath(), []byte(strconv.Itoa(pid)), 0644)
}

func removePID() {
	os.Remove(pidFilePath())
}

// versionString returns a display version string.
func versionString() string {
	if appVersion == "" || appVersion == "dev" {
		return "dev"
	}
	if strings.HasPrefix(appVersion, "v") {
		return appVersion
	}
	return "v" + appVersion
}
