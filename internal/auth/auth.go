// Package auth owns the signed-in identity. The identity travels as an
// immutable Context value; only Login and Logout produce a new one.
package auth

import (
	"context"
	"errors"
	"io"
	"net/mail"
	"strings"

	"github.com/sirupsen/logrus"

	"supportdesk/internal/domain"
)

// ErrInvalidCredentials is the only login failure shown to users; the
// server's reason is logged but never surfaced.
var ErrInvalidCredentials = errors.New("invalid email or passcode")

// Context is the current identity, passed explicitly to whatever needs it.
type Context struct {
	identity domain.Identity
	signedIn bool
}

func Anonymous() Context {
	return Context{}
}

func NewContext(identity domain.Identity) Context {
	if strings.TrimSpace(identity.Email) == "" {
		return Context{}
	}
	return Context{identity: identity, signedIn: true}
}

func (c Context) Authenticated() bool {
	return c.signedIn
}

func (c Context) Identity() (domain.Identity, bool) {
	return c.identity, c.signedIn
}

// UserID is empty when nobody is signed in.
func (c Context) UserID() string {
	if !c.signedIn {
		return ""
	}
	return c.identity.ID()
}

func (c Context) IsAgent() bool {
	return c.signedIn && c.identity.IsAgent()
}

func (c Context) DisplayName() string {
	if !c.signedIn {
		return "signed out"
	}
	name := strings.TrimSpace(c.identity.FirstName + " " + c.identity.LastName)
	if name == "" {
		return c.identity.Email
	}
	return name
}

// LoginAPI is the slice of the support API needed to authenticate.
type LoginAPI interface {
	Login(ctx context.Context, email, passcode string) (domain.Identity, error)
}

// Cache keeps the last authenticated identity across restarts.
type Cache interface {
	Load(ctx context.Context) (domain.Identity, bool, error)
	Save(ctx context.Context, identity domain.Identity) error
	Clear(ctx context.Context) error
}

type Authenticator struct {
	api   LoginAPI
	cache Cache
	log   *logrus.Logger
}

func NewAuthenticator(api LoginAPI, cache Cache, log *logrus.Logger) *Authenticator {
	if cache == nil {
		cache = nopCache{}
	}
	if log == nil {
		log = logrus.New()
		log.SetOutput(io.Discard)
	}
	return &Authenticator{api: api, cache: cache, log: log}
}

// Restore returns the cached identity, or Anonymous when there is none or
// the cache cannot be read.
func (a *Authenticator) Restore(ctx context.Context) Context {
	identity, ok, err := a.cache.Load(ctx)
	if err != nil {
		a.log.WithError(err).Warn("identity cache unreadable, starting signed out")
		return Anonymous()
	}
	if !ok {
		return Anonymous()
	}
	return NewContext(identity)
}

// Login validates input locally, then authenticates against the server.
// Validation failures come back as *domain.ValidationError; anything the
// server or transport does wrong comes back as ErrInvalidCredentials.
func (a *Authenticator) Login(ctx context.Context, email, passcode string) (Context, error) {
	email = strings.TrimSpace(email)
	if err := Validate(email, passcode); err != nil {
		return Anonymous(), err
	}
	identity, err := a.api.Login(ctx, email, passcode)
	if err != nil {
		a.log.WithError(err).WithField("email", email).Info("login failed")
		return Anonymous(), ErrInvalidCredentials
	}
	if err := a.cache.Save(ctx, identity); err != nil {
		a.log.WithError(err).Warn("identity cache write failed")
	}
	a.log.WithFields(logrus.Fields{"user_id": identity.ID(), "role": identity.Role}).Info("signed in")
	return NewContext(identity), nil
}

// Logout clears the cache and returns the anonymous context.
func (a *Authenticator) Logout(ctx context.Context, current Context) Context {
	if err := a.cache.Clear(ctx); err != nil {
		a.log.WithError(err).Warn("identity cache clear failed")
	}
	if current.Authenticated() {
		a.log.WithField("user_id", current.UserID()).Info("signed out")
	}
	return Anonymous()
}

// Validate checks the login form before anything goes over the wire.
func Validate(email, passcode string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return &domain.ValidationError{Field: "email", Reason: "email is required"}
	}
	parsed, err := mail.ParseAddress(email)
	if err != nil || parsed.Address != email {
		return &domain.ValidationError{Field: "email", Reason: "invalid email address"}
	}
	at := strings.LastIndex(email, "@")
	if at <= 0 || !strings.Contains(email[at+1:], ".") || strings.HasSuffix(email, ".") {
		return &domain.ValidationError{Field: "email", Reason: "invalid email address"}
	}
	if passcode == "" {
		return &domain.ValidationError{Field: "passcode", Reason: "passcode is required"}
	}
	return nil
}

type nopCache struct{}

func (nopCache) Load(context.Context) (domain.Identity, bool, error) {
	return domain.Identity{}, false, nil
}

func (nopCache) Save(context.Context, domain.Identity) error { return nil }

func (nopCache) Clear(context.Context) error { return nil }
