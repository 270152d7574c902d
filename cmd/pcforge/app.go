package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/pcforge/storefront/internal/client"
	"github.com/pcforge/storefront/internal/localcart"
	"github.com/pcforge/storefront/internal/logger"
)

const (
	homeEnv     = "PCFORGE_HOME"
	apiEnv      = "PCFORGE_API"
	defaultAPI  = "http://localhost:8080"
	cartFile    = "cart.db"
	sessionFile = "session.json"
)

// session is the login persisted between invocations.
type session struct {
	Token     string    `json:"token"`
	Phone     string    `json:"phone"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (s *session) expired(now time.Time) bool {
	return s == nil || s.Token == "" || (!s.ExpiresAt.IsZero() && now.After(s.ExpiresAt))
}

// app holds what every command needs. It is built lazily in
// PersistentPreRunE so --help works without a writable home.
type app struct {
	home    string
	apiURL  string
	timeout time.Duration
	verbose bool
	out     io.Writer

	log     *slog.Logger
	backend *localcart.SQLiteBackend
	local   *localcart.Store
	session *session
	api     *client.Client
}

func homeDir() (string, error) {
	if dir := os.Getenv(homeEnv); dir != "" {
		return dir, nil
	}
	userHome, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(userHome, ".pcforge"), nil
}

func (a *app) open() error {
	level := slog.LevelWarn
	if a.verbose {
		level = slog.LevelDebug
	}
	a.log = logger.New(os.Stderr, "text", level)

	if a.home == "" {
		dir, err := homeDir()
		if err != nil {
			return err
		}
		a.home = dir
	}
	if err := os.MkdirAll(a.home, 0o700); err != nil {
		return fmt.Errorf("failed to create %s: %w", a.home, err)
	}

	backend, err := localcart.OpenSQLite(filepath.Join(a.home, cartFile))
	if err != nil {
		return err
	}
	a.backend = backend
	a.local = localcart.NewStore(backend, a.log)

	s, err := loadSession(a.home)
	if err != nil {
		a.log.Warn("ignoring unreadable session file", "error", err)
	}
	token := ""
	if !s.expired(time.Now()) {
		a.session = s
		token = s.Token
	}
	a.api = client.New(a.apiURL, token, a.timeout)
	return nil
}

func (a *app) close() {
	if a.backend != nil {
		_ = a.backend.Close()
	}
}

func (a *app) loggedIn() bool {
	return a.session != nil
}

func loadSession(home string) (*session, error) {
	data, err := os.ReadFile(filepath.Join(home, sessionFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var s session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("corrupt session file: %w", err)
	}
	return &s, nil
}

func saveSession(home string, s *session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(home, sessionFile), data, 0o600)
}

func clearSession(home string) error {
	err := os.Remove(filepath.Join(home, sessionFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
