package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pcforge/storefront/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStorefront serves the handful of endpoints the CLI uses.
type fakeStorefront struct {
	mu    sync.Mutex
	lines []domain.CartLine
}

func (f *fakeStorefront) handler(t *testing.T) http.Handler {
	product := &domain.Product{ID: 7, Slug: "rtx-4070", Name: "RTX 4070", Category: domain.CategoryGPU, RegularPrice: decimal.NewFromInt(55000)}
	write := func(w http.ResponseWriter, status int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(v)
	}
	authed := func(r *http.Request) bool { return r.Header.Get("Authorization") == "Bearer tok-cli" }

	mux := http.NewServeMux()
	mux.HandleFunc("GET /products/{ref}", func(w http.ResponseWriter, r *http.Request) {
		if ref := r.PathValue("ref"); ref != "7" && ref != "rtx-4070" {
			write(w, http.StatusNotFound, map[string]string{"error": "product not found", "code": "not_found"})
			return
		}
		write(w, http.StatusOK, product)
	})
	mux.HandleFunc("POST /auth/otp/verify", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req["code"] != "123456" {
			write(w, http.StatusBadRequest, map[string]string{"error": "invalid verification code", "code": "invalid_code"})
			return
		}
		write(w, http.StatusOK, map[string]any{"token": "tok-cli", "expiresAt": time.Now().Add(time.Hour)})
	})
	mux.HandleFunc("/cart", func(w http.ResponseWriter, r *http.Request) {
		if !authed(r) {
			write(w, http.StatusUnauthorized, map[string]string{"error": "no session", "code": "no_session"})
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		if r.Method == http.MethodPost {
			var body struct {
				Items []domain.NewLine `json:"items"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			for _, l := range body.Items {
				f.lines = append(f.lines, domain.CartLine{ID: "line-1", ProductID: l.ProductID, Product: product.Snapshot(), Quantity: l.Quantity})
			}
		}
		write(w, http.StatusOK, domain.NewCartView(append([]domain.CartLine(nil), f.lines...)))
	})
	return mux
}

func run(t *testing.T, home, api string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(""))
	cmd.SetArgs(append([]string{"--home", home, "--api", api}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestGuestCartThenLoginMerges(t *testing.T) {
	fake := &fakeStorefront{}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()
	home := t.TempDir()

	out, err := run(t, home, srv.URL, "cart", "add", "rtx-4070", "-n", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "guest cart")

	out, err = run(t, home, srv.URL, "cart", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "RTX 4070")
	assert.Contains(t, out, "3 item(s)")

	_, err = run(t, home, srv.URL, "login", "--phone", "9876543210", "--code", "000000")
	require.Error(t, err)

	out, err = run(t, home, srv.URL, "login", "--phone", "9876543210", "--code", "123456")
	require.NoError(t, err)
	assert.Contains(t, out, "logged in as 9876543210")

	fake.mu.Lock()
	require.Len(t, fake.lines, 1)
	assert.Equal(t, 1, fake.lines[0].Quantity, "guest lines are pushed with quantity 1")
	fake.mu.Unlock()

	// the local cart was emptied, so showing again does not push twice
	_, err = run(t, home, srv.URL, "cart", "show")
	require.NoError(t, err)
	fake.mu.Lock()
	assert.Len(t, fake.lines, 1)
	fake.mu.Unlock()

	out, err = run(t, home, srv.URL, "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "logged out")

	out, err = run(t, home, srv.URL, "cart", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "cart is empty")
}

func TestCheckoutRequiresLogin(t *testing.T) {
	srv := httptest.NewServer((&fakeStorefront{}).handler(t))
	defer srv.Close()

	_, err := run(t, t.TempDir(), srv.URL, "checkout", "--payment", "cod")
	assert.ErrorIs(t, err, errLoginRequired)
}

func TestGuestUpdateNeedsProductID(t *testing.T) {
	srv := httptest.NewServer((&fakeStorefront{}).handler(t))
	defer srv.Close()

	_, err := run(t, t.TempDir(), srv.URL, "cart", "update", "line-abc", "2")
	assert.ErrorContains(t, err, "product id")
}

func TestSessionFile(t *testing.T) {
	home := t.TempDir()

	s, err := loadSession(home)
	require.NoError(t, err)
	assert.Nil(t, s)
	assert.True(t, s.expired(time.Now()))

	want := &session{Token: "tok", Phone: "9876543210", ExpiresAt: time.Now().Add(time.Hour).UTC().Truncate(time.Second)}
	require.NoError(t, saveSession(home, want))

	got, err := loadSession(home)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.False(t, got.expired(time.Now()))
	assert.True(t, got.expired(time.Now().Add(2*time.Hour)))

	require.NoError(t, clearSession(home))
	require.NoError(t, clearSession(home))
}

func TestHomeDirOverride(t *testing.T) {
	t.Setenv(homeEnv, "/tmp/pcforge-test")
	dir, err := homeDir()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/pcforge-test", dir)
}
