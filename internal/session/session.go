// Package session owns the authentication lifecycle: restore at startup,
// login, signup and logout. The Store is the single owner of the active
// credential and hands it to the transport through the CredentialSource
// contract at request dispatch time.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"github.com/tonimelisma/clouddrive-go/internal/tokenfile"
)

// ErrDecode is returned when a credential's identity claim cannot be read.
var ErrDecode = errors.New("session: credential cannot be decoded")

// ErrNotLoggedIn is returned by callers that require an active session.
var ErrNotLoggedIn = errors.New("session: not logged in")

// Identity is the decoded subject of a credential.
type Identity struct {
	Subject string
}

// Session is an active, decoded credential.
type Session struct {
	Credential string
	Identity   Identity
	ExpiresAt  time.Time // zero when the credential has no exp claim
}

// Authenticator exchanges user credentials for an access token.
// Implemented by *api.Client.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (string, error)
	Signup(ctx context.Context, username, password string) (string, error)
}

// Store holds the active session and its persisted copy.
type Store struct {
	path   string
	server string
	logger *slog.Logger

	mu      sync.RWMutex
	current *Session

	// nowFunc is overridable for testing expiry handling.
	nowFunc func() time.Time
}

// NewStore creates a Store persisting to path. server is recorded in the
// credential file's metadata. The store starts with no session; call Restore.
func NewStore(path, server string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}

	return &Store{
		path:    path,
		server:  server,
		logger:  logger,
		nowFunc: time.Now,
	}
}

// Path returns the credential file location.
func (s *Store) Path() string {
	return s.path
}

// Decode reads the identity and expiry claims of a credential without
// verifying its signature; only the server can do that. Credentials with no
// subject, or whose exp lies before now, fail with ErrDecode.
func Decode(credential string, now time.Time) (*Session, error) {
	var claims jwt.RegisteredClaims

	if _, _, err := jwt.NewParser().ParseUnverified(credential, &claims); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: no subject claim", ErrDecode)
	}

	sess := &Session{
		Credential: credential,
		Identity:   Identity{Subject: claims.Subject},
	}

	if claims.ExpiresAt != nil {
		sess.ExpiresAt = claims.ExpiresAt.UTC()

		if !sess.ExpiresAt.After(now) {
			return nil, fmt.Errorf("%w: expired at %s", ErrDecode, sess.ExpiresAt.Format(time.RFC3339))
		}
	}

	return sess, nil
}

// Restore loads the persisted credential and activates it. A missing file
// means no session. An unreadable or undecodable credential is cleared and
// logged; Restore never fails. Returns the restored session or nil.
func (s *Store) Restore() *Session {
	tok, _, err := tokenfile.Load(s.path)
	if err != nil {
		s.logger.Warn("discarding unreadable credential",
			slog.String("path", s.path),
			slog.String("error", err.Error()),
		)
		s.discard()

		return nil
	}

	if tok == nil {
		s.logger.Debug("no persisted credential", slog.String("path", s.path))
		return nil
	}

	sess, err := Decode(tok.AccessToken, s.nowFunc())
	if err != nil {
		s.logger.Warn("discarding persisted credential",
			slog.String("path", s.path),
			slog.String("error", err.Error()),
		)
		s.discard()

		return nil
	}

	s.install(sess)

	s.logger.Debug("session restored", slog.String("subject", sess.Identity.Subject))

	return copySession(sess)
}

// Login authenticates through auth and installs the returned credential.
// On any failure the active session and the persisted credential are left
// as they were.
func (s *Store) Login(ctx context.Context, auth Authenticator, username, password string) (*Session, error) {
	tok, err := auth.Login(ctx, username, password)
	if err != nil {
		return nil, fmt.Errorf("session: login: %w", err)
	}

	return s.activate(tok, "login")
}

// Signup creates an account through auth and installs its credential, with
// the same failure contract as Login.
func (s *Store) Signup(ctx context.Context, auth Authenticator, username, password string) (*Session, error) {
	tok, err := auth.Signup(ctx, username, password)
	if err != nil {
		return nil, fmt.Errorf("session: signup: %w", err)
	}

	return s.activate(tok, "signup")
}

// activate decodes a fresh credential, persists it, then makes it current.
func (s *Store) activate(credential, op string) (*Session, error) {
	sess, err := Decode(credential, s.nowFunc())
	if err != nil {
		return nil, fmt.Errorf("session: %s: %w", op, err)
	}

	meta := map[string]string{
		tokenfile.MetaSubject: sess.Identity.Subject,
		tokenfile.MetaServer:  s.server,
	}

	tok := &oauth2.Token{AccessToken: credential, TokenType: "bearer", Expiry: sess.ExpiresAt}
	if err := tokenfile.Save(s.path, tok, meta); err != nil {
		return nil, fmt.Errorf("session: %s: persisting credential: %w", op, err)
	}

	s.install(sess)

	s.logger.Info("session started",
		slog.String("op", op),
		slog.String("subject", sess.Identity.Subject),
	)

	return copySession(sess), nil
}

// Logout clears the active session and the persisted credential. Requests
// already in flight keep the credential they were dispatched with.
// Calling Logout without a session is a no-op.
func (s *Store) Logout() error {
	s.mu.Lock()
	had := s.current != nil
	s.current = nil
	s.mu.Unlock()

	if err := tokenfile.Delete(s.path); err != nil {
		return fmt.Errorf("session: logout: %w", err)
	}

	if had {
		s.logger.Info("session ended")
	}

	return nil
}

// Current returns a snapshot of the active session.
func (s *Store) Current() (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.current == nil {
		return nil, false
	}

	return copySession(s.current), true
}

// Credential implements api.CredentialSource.
func (s *Store) Credential() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.current == nil {
		return "", false
	}

	return s.current.Credential, true
}

// Require returns the active session or ErrNotLoggedIn.
func (s *Store) Require() (*Session, error) {
	sess, ok := s.Current()
	if !ok {
		return nil, ErrNotLoggedIn
	}

	return sess, nil
}

func (s *Store) install(sess *Session) {
	s.mu.Lock()
	s.current = sess
	s.mu.Unlock()
}

func (s *Store) discard() {
	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()

	if err := tokenfile.Delete(s.path); err != nil {
		s.logger.Warn("clearing credential file failed", slog.String("error", err.Error()))
	}
}

func copySession(sess *Session) *Session {
	c := *sess
	return &c
}
