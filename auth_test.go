package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogin_PasswordStdinPersistsSession(t *testing.T) {
	env := newCLIEnv(t, "")
	env.srv.AddUser("alice", "secret1")

	_, stderr, err := env.run("secret1\n", "login", "alice", "--password-stdin")
	require.NoError(t, err)
	assert.Contains(t, stderr, "Logged in as alice.")

	_, err = os.Stat(filepath.Join(env.dataDir, "credential.json"))
	require.NoError(t, err)

	out := env.mustRun("", "whoami", "--json")

	var who whoamiOutput
	require.NoError(t, json.Unmarshal([]byte(out), &who))
	assert.Equal(t, "alice", who.Username)
	assert.Equal(t, env.srv.URL, who.Server)
	require.NotNil(t, who.ExpiresAt)
}

func TestLogin_PromptsForUsername(t *testing.T) {
	env := newCLIEnv(t, "")
	env.srv.AddUser("alice", "secret1")

	_, stderr, err := env.run("alice\nsecret1\n", "login")
	require.NoError(t, err)
	assert.Contains(t, stderr, "Username: ")

	assert.Contains(t, env.mustRun("", "whoami"), "User:    alice")
}

func TestLogin_BadPassword(t *testing.T) {
	env := newCLIEnv(t, "")
	env.srv.AddUser("alice", "secret1")

	_, _, err := env.run("wrong-password\n", "login", "alice", "--password-stdin")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Incorrect username or password")

	_, _, err = env.run("", "whoami")
	assert.ErrorIs(t, err, errNotLoggedIn)
}

func TestLogin_PasswordStdinNeedsUsername(t *testing.T) {
	env := newCLIEnv(t, "")

	_, _, err := env.run("secret1\n", "login", "--password-stdin")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires the username")
}

func TestLogin_EmptyInput(t *testing.T) {
	env := newCLIEnv(t, "")

	_, _, err := env.run("", "login")
	assert.Error(t, err)
}

func TestSignup_CreatesAccountAndLogsIn(t *testing.T) {
	env := newCLIEnv(t, "")

	_, stderr, err := env.run("secret1\n", "signup", "bob", "--password-stdin")
	require.NoError(t, err)
	assert.Contains(t, stderr, "Signed up and logged in as bob.")

	assert.Contains(t, env.mustRun("", "whoami"), "bob")
}

func TestSignup_UsernameTaken(t *testing.T) {
	env := newCLIEnv(t, "")
	env.srv.AddUser("bob", "secret1")

	_, _, err := env.run("secret2\n", "signup", "bob", "--password-stdin")
	require.Error(t, err)

	_, _, err = env.run("", "whoami")
	assert.ErrorIs(t, err, errNotLoggedIn)
}

func TestLogout(t *testing.T) {
	env := newCLIEnv(t, "")
	env.login("alice", "secret1")

	_, stderr, err := env.run("", "logout")
	require.NoError(t, err)
	assert.Contains(t, stderr, "Logged out.")

	_, err = os.Stat(filepath.Join(env.dataDir, "credential.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, stderr, err = env.run("", "logout")
	require.NoError(t, err)
	assert.Contains(t, stderr, "Not logged in.")
}

func TestWhoami_NotLoggedIn(t *testing.T) {
	env := newCLIEnv(t, "")

	_, _, err := env.run("", "whoami")
	assert.ErrorIs(t, err, errNotLoggedIn)
}

func TestWhoami_CorruptCredentialIsDiscarded(t *testing.T) {
	env := newCLIEnv(t, "")
	require.NoError(t, os.MkdirAll(env.dataDir, 0o700))

	credPath := filepath.Join(env.dataDir, "credential.json")
	require.NoError(t, os.WriteFile(credPath, []byte(`{"token":{"access_token":"not-a-jwt"}}`), 0o600))

	_, _, err := env.run("", "whoami")
	assert.ErrorIs(t, err, errNotLoggedIn)

	_, err = os.Stat(credPath)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
