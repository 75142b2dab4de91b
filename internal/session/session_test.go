package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/tonimelisma/clouddrive-go/internal/api"
	"github.com/tonimelisma/clouddrive-go/internal/fakedrive"
	"github.com/tonimelisma/clouddrive-go/internal/tokenfile"
)

func issue(t *testing.T, claims jwt.RegisteredClaims) string {
	t.Helper()

	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-key"))
	require.NoError(t, err)

	return tok
}

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "credential.json")

	return NewStore(path, "http://test", nil), path
}

// fakeAuth is an Authenticator returning canned results.
type fakeAuth struct {
	token string
	err   error
}

func (f fakeAuth) Login(context.Context, string, string) (string, error)  { return f.token, f.err }
func (f fakeAuth) Signup(context.Context, string, string) (string, error) { return f.token, f.err }

func TestDecode_RoundTrip(t *testing.T) {
	for _, subject := range []string{"alice", "bob@example.com", "user with spaces", "üñí"} {
		t.Run(subject, func(t *testing.T) {
			tok := issue(t, jwt.RegisteredClaims{Subject: subject})

			sess, err := Decode(tok, time.Now())
			require.NoError(t, err)
			assert.Equal(t, Identity{Subject: subject}, sess.Identity)
			assert.Equal(t, tok, sess.Credential)
			assert.True(t, sess.ExpiresAt.IsZero())
		})
	}
}

func TestDecode_Expiry(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	valid := issue(t, jwt.RegisteredClaims{Subject: "alice", ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour))})
	sess, err := Decode(valid, now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Hour), sess.ExpiresAt)

	expired := issue(t, jwt.RegisteredClaims{Subject: "alice", ExpiresAt: jwt.NewNumericDate(now.Add(-time.Minute))})
	_, err = Decode(expired, now)
	require.ErrorIs(t, err, ErrDecode)
	assert.Contains(t, err.Error(), "expired")
}

func TestDecode_Invalid(t *testing.T) {
	tests := []struct {
		name string
		tok  string
	}{
		{"garbage", "not-a-jwt"},
		{"empty", ""},
		{"bad payload", "eyJhbGciOiJIUzI1NiJ9.!!!.sig"},
		{"no subject", issue(t, jwt.RegisteredClaims{Issuer: "x"})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.tok, time.Now())
			assert.ErrorIs(t, err, ErrDecode)
		})
	}
}

func TestRestore_NoFile(t *testing.T) {
	store, _ := newTestStore(t)

	assert.Nil(t, store.Restore())

	_, ok := store.Credential()
	assert.False(t, ok)
}

func TestRestore_Valid(t *testing.T) {
	store, path := newTestStore(t)
	tok := issue(t, jwt.RegisteredClaims{Subject: "alice"})
	require.NoError(t, tokenfile.Save(path, &oauth2.Token{AccessToken: tok}, nil))

	sess := store.Restore()
	require.NotNil(t, sess)
	assert.Equal(t, "alice", sess.Identity.Subject)

	cred, ok := store.Credential()
	assert.True(t, ok)
	assert.Equal(t, tok, cred)
}

func TestRestore_UndecodableClearsFile(t *testing.T) {
	store, path := newTestStore(t)
	require.NoError(t, tokenfile.Save(path, &oauth2.Token{AccessToken: "corrupt"}, nil))

	assert.Nil(t, store.Restore())

	_, ok := store.Current()
	assert.False(t, ok)

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestRestore_ExpiredClearsFile(t *testing.T) {
	store, path := newTestStore(t)
	tok := issue(t, jwt.RegisteredClaims{
		Subject:   "alice",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	})
	require.NoError(t, tokenfile.Save(path, &oauth2.Token{AccessToken: tok}, nil))

	assert.Nil(t, store.Restore())

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestRestore_CorruptFileClears(t *testing.T) {
	store, path := newTestStore(t)
	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0o600))

	assert.Nil(t, store.Restore())

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestLogin_PersistsAndInstalls(t *testing.T) {
	store, path := newTestStore(t)
	tok := issue(t, jwt.RegisteredClaims{Subject: "alice"})

	sess, err := store.Login(context.Background(), fakeAuth{token: tok}, "alice", "pw")
	require.NoError(t, err)
	assert.Equal(t, "alice", sess.Identity.Subject)

	saved, meta, err := tokenfile.Load(path)
	require.NoError(t, err)
	assert.Equal(t, tok, saved.AccessToken)
	assert.Equal(t, "alice", meta[tokenfile.MetaSubject])
	assert.Equal(t, "http://test", meta[tokenfile.MetaServer])

	// A fresh store restores the same identity.
	other := NewStore(path, "http://test", nil)
	restored := other.Restore()
	require.NotNil(t, restored)
	assert.Equal(t, sess.Identity, restored.Identity)
}

func TestLogin_UndecodableCredential(t *testing.T) {
	store, path := newTestStore(t)

	_, err := store.Login(context.Background(), fakeAuth{token: "opaque"}, "alice", "pw")
	require.ErrorIs(t, err, ErrDecode)

	_, ok := store.Current()
	assert.False(t, ok)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestLogin_BadPasswordLeavesStateUntouched(t *testing.T) {
	srv := fakedrive.New(t)
	srv.AddUser("alice", "correct-horse")

	store, path := newTestStore(t)
	client := api.NewClient(srv.URL, nil, store, nil, "")

	// An earlier session for a different account is on disk and active.
	previous := issue(t, jwt.RegisteredClaims{Subject: "carol"})
	require.NoError(t, tokenfile.Save(path, &oauth2.Token{AccessToken: previous}, nil))
	require.NotNil(t, store.Restore())

	before, err := os.ReadFile(path)
	require.NoError(t, err)

	_, err = store.Login(context.Background(), client, "alice", "wrong")
	require.ErrorIs(t, err, api.ErrAuth)

	sess, ok := store.Current()
	require.True(t, ok)
	assert.Equal(t, "carol", sess.Identity.Subject)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestLogin_AgainstFakeDrive(t *testing.T) {
	srv := fakedrive.New(t)
	srv.AddUser("alice", "correct-horse")

	store, _ := newTestStore(t)
	client := api.NewClient(srv.URL, nil, store, nil, "")

	sess, err := store.Login(context.Background(), client, "alice", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, "alice", sess.Identity.Subject)
	assert.WithinDuration(t, time.Now().Add(fakedrive.TokenTTL), sess.ExpiresAt, time.Minute)

	_, err = client.ListFiles(context.Background())
	require.NoError(t, err)
}

func TestSignup_Conflict(t *testing.T) {
	srv := fakedrive.New(t)
	srv.AddUser("alice", "correct-horse")

	store, _ := newTestStore(t)
	client := api.NewClient(srv.URL, nil, store, nil, "")

	_, err := store.Signup(context.Background(), client, "alice", "another-pw")
	require.ErrorIs(t, err, api.ErrValidation)

	_, ok := store.Current()
	assert.False(t, ok)
}

func TestSignup_InstallsSession(t *testing.T) {
	srv := fakedrive.New(t)

	store, _ := newTestStore(t)
	client := api.NewClient(srv.URL, nil, store, nil, "")

	sess, err := store.Signup(context.Background(), client, "dave", "long-password")
	require.NoError(t, err)
	assert.Equal(t, "dave", sess.Identity.Subject)
}

func TestLogout_RemovesAuthorization(t *testing.T) {
	srv := fakedrive.New(t)
	srv.AddUser("alice", "correct-horse")

	store, path := newTestStore(t)
	client := api.NewClient(srv.URL, nil, store, nil, "")

	_, err := store.Login(context.Background(), client, "alice", "correct-horse")
	require.NoError(t, err)

	require.NoError(t, store.Logout())

	_, err = client.ListFiles(context.Background())
	require.ErrorIs(t, err, api.ErrAuth)

	reqs := srv.Requests()
	last := reqs[len(reqs)-1]
	assert.Equal(t, fakedrive.RouteList, last.Route)
	assert.Empty(t, last.Authorization)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))

	// Idempotent.
	require.NoError(t, store.Logout())
}

func TestRequire(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.Require()
	assert.True(t, errors.Is(err, ErrNotLoggedIn))

	_, err = store.Login(context.Background(), fakeAuth{token: issue(t, jwt.RegisteredClaims{Subject: "x"})}, "x", "y")
	require.NoError(t, err)

	sess, err := store.Require()
	require.NoError(t, err)
	assert.Equal(t, "x", sess.Identity.Subject)
}
