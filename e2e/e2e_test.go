//go:build e2e

package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/clouddrive-go/internal/fakedrive"
)

// envServer points the suite at a running service instead of the in-process
// fake. Accounts are created with signup, so the server must allow it.
const envServer = "CLOUDDRIVE_E2E_SERVER"

const testPassword = "e2e-password"

var binaryPath string

func TestMain(m *testing.M) {
	tmpDir, err := os.MkdirTemp("", "clouddrive-e2e-*")
	if err != nil {
		fmt.Fprintf(os.Stderr, "creating temp dir: %v\n", err)
		os.Exit(1)
	}

	binaryPath = filepath.Join(tmpDir, "clouddrive-go")

	cmd := exec.Command("go", "build", "-o", binaryPath, ".")
	cmd.Dir = findModuleRoot()
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "building binary: %v\n", err)
		os.RemoveAll(tmpDir)
		os.Exit(1)
	}

	code := m.Run()

	os.RemoveAll(tmpDir)
	os.Exit(code)
}

// findModuleRoot walks up from the current dir to find go.mod.
func findModuleRoot() string {
	dir, _ := os.Getwd()
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ".."
		}

		dir = parent
	}
}

// testEnv is one isolated client: its own config, data dir and account.
type testEnv struct {
	t   *testing.T
	env []string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	server := os.Getenv(envServer)
	if server == "" {
		server = fakedrive.New(t).URL
	}

	root := t.TempDir()
	cfgPath := filepath.Join(root, "config.toml")
	cfg := "[transfers]\nsync_download_delay = \"10ms\"\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o600))

	return &testEnv{
		t: t,
		env: append(os.Environ(),
			"CLOUDDRIVE_CONFIG="+cfgPath,
			"CLOUDDRIVE_DATA_DIR="+filepath.Join(root, "data"),
			"CLOUDDRIVE_SERVER="+server,
		),
	}
}

// run executes the binary and returns stdout, stderr and the exit error.
func (e *testEnv) run(stdin string, args ...string) (string, string, error) {
	e.t.Helper()

	cmd := exec.Command(binaryPath, args...)
	cmd.Env = e.env
	cmd.Stdin = strings.NewReader(stdin)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	return stdout.String(), stderr.String(), err
}

func (e *testEnv) mustRun(stdin string, args ...string) string {
	e.t.Helper()

	out, stderr, err := e.run(stdin, args...)
	require.NoError(e.t, err, "clouddrive-go %s\nstderr: %s", strings.Join(args, " "), stderr)

	return out
}

// signup creates a fresh account and leaves it logged in.
func (e *testEnv) signup() string {
	e.t.Helper()

	user := "e2e-" + uuid.NewString()[:8]
	e.mustRun(testPassword+"\n", "signup", user, "--password-stdin")

	return user
}

func (e *testEnv) names() []string {
	e.t.Helper()

	var items []struct {
		Name string `json:"name"`
	}

	require.NoError(e.t, json.Unmarshal([]byte(e.mustRun("", "ls", "--json")), &items))

	names := make([]string, 0, len(items))
	for _, it := range items {
		names = append(names, it.Name)
	}

	return names
}

// uniqueName returns a file name that will not collide on a shared server.
func uniqueName(base, ext string) string {
	return base + "-" + uuid.NewString()[:8] + ext
}

func TestE2E_SessionLifecycle(t *testing.T) {
	e := newTestEnv(t)
	user := e.signup()

	assert.Contains(t, e.mustRun("", "whoami"), user)

	assert.Contains(t, e.mustRun("", "logout"), "Logged out.")

	_, stderr, err := e.run("", "whoami")
	require.Error(t, err)
	assert.Contains(t, stderr, "not logged in")

	e.mustRun(testPassword+"\n", "login", user, "--password-stdin")
	assert.Contains(t, e.mustRun("", "whoami"), user)
}

func TestE2E_WrongPassword(t *testing.T) {
	e := newTestEnv(t)
	user := e.signup()
	e.mustRun("", "logout")

	_, _, err := e.run("not-the-password\n", "login", user, "--password-stdin")
	require.Error(t, err)

	_, _, err = e.run("", "whoami")
	assert.Error(t, err)
}

func TestE2E_FileRoundTrip(t *testing.T) {
	e := newTestEnv(t)
	e.signup()

	src := t.TempDir()
	textName := uniqueName("notes", ".txt")
	binName := uniqueName("blob", ".bin")
	payload := []byte{0, 1, 2, 0xfe, 0xff}

	require.NoError(t, os.WriteFile(filepath.Join(src, textName), []byte("first draft\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(src, binName), payload, 0o600))

	e.mustRun("", "put", filepath.Join(src, textName), filepath.Join(src, binName))
	names := e.names()
	assert.Contains(t, names, textName)
	assert.Contains(t, names, binName)

	dst := t.TempDir()
	e.mustRun("", "get", binName, dst)

	got, err := os.ReadFile(filepath.Join(dst, binName))
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	e.mustRun("second draft\n", "write", textName)
	assert.Equal(t, "second draft\n", e.mustRun("", "cat", textName))

	_, _, err = e.run("text over binary\n", "write", binName)
	assert.Error(t, err, "writing text over a binary file should fail")

	newBase := uniqueName("final", "")
	e.mustRun("", "mv", textName, newBase)
	e.mustRun("", "rm", binName)

	names = e.names()
	assert.Contains(t, names, newBase+".txt")
	assert.NotContains(t, names, textName)
	assert.NotContains(t, names, binName)

	e.mustRun("", "rm", newBase+".txt")
}

func TestE2E_SyncFolder(t *testing.T) {
	e := newTestEnv(t)
	e.signup()

	src := t.TempDir()
	files := make([]string, 3)

	for i := range files {
		files[i] = uniqueName(fmt.Sprintf("file-%d", i), ".txt")
		require.NoError(t, os.WriteFile(filepath.Join(src, files[i]), []byte(files[i]), 0o600))
	}

	e.mustRun("", "sync", "up", src)

	names := e.names()
	for _, name := range files {
		assert.Contains(t, names, name)
	}

	dst := filepath.Join(t.TempDir(), "mirror")
	e.mustRun("", "sync", "down", dst)

	for _, name := range files {
		got, err := os.ReadFile(filepath.Join(dst, name))
		require.NoError(t, err)
		assert.Equal(t, name, string(got))
	}

	var entries []struct {
		Kind   string `json:"kind"`
		Status string `json:"status"`
	}

	out := e.mustRun("", "history", "--json", "--limit", "100")
	require.NoError(t, json.Unmarshal([]byte(out), &entries))

	uploads := 0
	for _, h := range entries {
		assert.Equal(t, "succeeded", h.Status)

		if h.Kind == "upload" {
			uploads++
		}
	}

	assert.Equal(t, len(files), uploads)
	assert.GreaterOrEqual(t, len(entries)-uploads, len(files))

	for _, name := range files {
		e.mustRun("", "rm", name)
	}
}
