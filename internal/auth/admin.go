package auth

import (
	"errors"
	"net/http"

	"github.com/gorilla/sessions"
	"golang.org/x/crypto/bcrypt"
)

const AdminSessionName = "pcforge_admin"

// AdminAuth guards the back office with one shared password whose bcrypt
// hash comes from configuration.
type AdminAuth struct {
	store sessions.Store
	hash  []byte
}

func NewAdminAuth(store sessions.Store, passwordHash string) *AdminAuth {
	return &AdminAuth{store: store, hash: []byte(passwordHash)}
}

func (a *AdminAuth) Login(w http.ResponseWriter, r *http.Request, password string) error {
	if len(a.hash) == 0 {
		return ErrAdminDisabled
	}
	if err := bcrypt.CompareHashAndPassword(a.hash, []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrInvalidCredentials
		}
		return err
	}

	// a stale or tampered cookie still yields a usable new session
	session, _ := a.store.Get(r, AdminSessionName)
	session.Values["authenticated"] = true
	session.Options.Path = "/"
	return session.Save(r, w)
}

func (a *AdminAuth) Logout(w http.ResponseWriter, r *http.Request) error {
	session, _ := a.store.Get(r, AdminSessionName)
	session.Values["authenticated"] = false
	session.Options.MaxAge = -1
	return session.Save(r, w)
}

func (a *AdminAuth) IsAdmin(r *http.Request) bool {
	session, err := a.store.Get(r, AdminSessionName)
	if err != nil {
		return false
	}
	ok, _ := session.Values["authenticated"].(bool)
	return ok
}

// NewCookieStore builds the admin session store.
func NewCookieStore(key []byte, secure bool) *sessions.CookieStore {
	store := sessions.NewCookieStore(key)
	store.Options.HttpOnly = true
	store.Options.Secure = secure
	store.Options.SameSite = http.SameSiteLaxMode
	store.Options.Path = "/"
	store.Options.MaxAge = 12 * 60 * 60
	return store
}
