package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/profilesync/internal/app"
	"github.com/roach88/profilesync/internal/profile"
	"github.com/roach88/profilesync/internal/testutil"
)

var created = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

// testEnv points every command at a fresh SQLite file and a memory remote.
func testEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("PROFILESYNC_CONFIG", "")
	t.Setenv("PROFILESYNC_LOCAL_BACKEND", "sqlite")
	t.Setenv("PROFILESYNC_SQLITE_PATH", filepath.Join(dir, "profiles.db"))
	t.Setenv("PROFILESYNC_REMOTE_BACKEND", "memory")
	t.Setenv("PROFILESYNC_LOCAL_KEY", "")
	t.Setenv("PROFILESYNC_AVATARS", "")
	t.Setenv("PROFILESYNC_READY_TIMEOUT", "5s")
	t.Setenv("APP_ENV", "test")
	return dir
}

type result struct {
	out    string
	errOut string
	err    error
}

func run(t *testing.T, ids []string, args ...string) result {
	t.Helper()
	opts := &RootOptions{App: app.Options{
		Clock: testutil.NewFixedClock(created),
		IDs:   testutil.NewFixedIDGenerator(ids...),
	}}
	cmd := newRootCommand(opts)
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return result{out: out.String(), errOut: errOut.String(), err: err}
}

func decode(t *testing.T, out string) CLIResponse {
	t.Helper()
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	return resp
}

func profileData(t *testing.T, resp CLIResponse) (map[string]any, map[string]any) {
	t.Helper()
	data, ok := resp.Data.(map[string]any)
	require.True(t, ok, "data: %v", resp.Data)
	p, ok := data["profile"].(map[string]any)
	require.True(t, ok, "profile: %v", data["profile"])
	return data, p
}

func TestGuestCommand_Text(t *testing.T) {
	testEnv(t)

	res := run(t, nil, "guest", "abc12xyz")
	require.NoError(t, res.err, res.errOut)

	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"), goldie.WithNameSuffix(".golden"))
	g.Assert(t, "guest_text", []byte(res.out))
}

func TestGuestCommand_JSON(t *testing.T) {
	testEnv(t)

	res := run(t, nil, "--format", "json", "guest", "abc12xyz")
	require.NoError(t, res.err, res.errOut)

	resp := decode(t, res.out)
	assert.Equal(t, "ok", resp.Status)
	data, p := profileData(t, resp)
	assert.Equal(t, "ready", data["state"])
	assert.Equal(t, "guest", data["kind"])
	assert.Equal(t, "abc12xyz", data["identityId"])
	assert.Equal(t, "Guest abc12", p["displayName"])
	assert.Equal(t, "2024-01-15T10:30:00Z", p["createdAt"])
	assert.Equal(t, []any{}, p["journalEntries"])
}

func TestGuestCommand_GeneratesID(t *testing.T) {
	testEnv(t)

	res := run(t, []string{"gen00001"}, "--format", "json", "guest")
	require.NoError(t, res.err, res.errOut)

	data, _ := profileData(t, decode(t, res.out))
	assert.Equal(t, "gen00001", data["identityId"])
}

func TestSessionLifecycle(t *testing.T) {
	testEnv(t)

	res := run(t, nil, "guest", "abc12xyz")
	require.NoError(t, res.err, res.errOut)

	// a second process picks the session and snapshot back up
	res = run(t, nil, "--format", "json", "show")
	require.NoError(t, res.err, res.errOut)
	_, p := profileData(t, decode(t, res.out))
	assert.Equal(t, "abc12xyz", p["id"])

	res = run(t, nil, "signout")
	require.NoError(t, res.err, res.errOut)
	assert.Equal(t, "signed out of guest abc12xyz\n", res.out)

	res = run(t, nil, "show")
	require.Error(t, res.err)
	assert.Equal(t, ExitFailure, GetExitCode(res.err))
	assert.Contains(t, res.out, "Error [E004]: no active session")
}

func TestSignOut_NoSession(t *testing.T) {
	testEnv(t)

	res := run(t, nil, "--format", "json", "signout")

	require.Error(t, res.err)
	assert.Equal(t, ExitFailure, GetExitCode(res.err))
	resp := decode(t, res.out)
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, CodeNoSession, resp.Error.Code)
}

func TestSignInCommand(t *testing.T) {
	testEnv(t)

	res := run(t, nil, "--format", "json", "signin", "bob-42", "--name", "Bob", "--email", "bob@example.com")
	require.NoError(t, res.err, res.errOut)

	data, p := profileData(t, decode(t, res.out))
	assert.Equal(t, "account", data["kind"])
	assert.Equal(t, "Bob", p["displayName"])
	assert.Equal(t, "bob@example.com", p["email"])
	assert.Equal(t, profile.DefaultAvatars[2], p["photoURL"])
}

func TestSignInCommand_InvalidIdentity(t *testing.T) {
	testEnv(t)

	res := run(t, nil, "signin", "bob-42", "--email", "not-an-email")

	require.Error(t, res.err)
	assert.Equal(t, ExitCommandError, GetExitCode(res.err))
	assert.Contains(t, res.out, "Error [E003]: invalid identity")
}

func TestCommand_BadConfigFile(t *testing.T) {
	dir := testEnv(t)
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("local_backend: floppy\n"), 0o644))

	res := run(t, nil, "--config", path, "guest", "abc12xyz")

	require.Error(t, res.err)
	assert.Equal(t, ExitCommandError, GetExitCode(res.err))
	assert.Contains(t, res.out, "Error [E001]")
}

func TestAvatarCommand(t *testing.T) {
	res := run(t, nil, "avatar", "bob-42")
	require.NoError(t, res.err)
	assert.Equal(t, "bob-42 -> [2] "+profile.DefaultAvatars[2]+"\n", res.out)

	res = run(t, nil, "--format", "json", "avatar", "bob-42", "--candidates", "https://a.example/1.png,https://a.example/2.png")
	require.NoError(t, res.err)
	resp := decode(t, res.out)
	assert.Equal(t, map[string]any{
		"identityId": "bob-42",
		"index":      float64(0),
		"photoURL":   "https://a.example/1.png",
	}, resp.Data)
}
