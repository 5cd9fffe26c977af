package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/profilesync/internal/app"
	"github.com/roach88/profilesync/internal/codec"
	"github.com/roach88/profilesync/internal/config"
	"github.com/roach88/profilesync/internal/localstore"
	"github.com/roach88/profilesync/internal/profile"
	"github.com/roach88/profilesync/internal/remote"
	"github.com/roach88/profilesync/internal/testutil"
)

var created = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

type envelope struct {
	Status    int            `json:"status"`
	RequestID string         `json:"request_id"`
	Success   bool           `json:"success"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data"`
	Error     any            `json:"error"`
}

type fixture struct {
	t      *testing.T
	app    *app.App
	local  *localstore.Memory
	router *gin.Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger, _ := logtest.NewNullLogger()

	local := localstore.NewMemory()
	cfg := &config.Config{
		LocalBackend:  config.BackendMemory,
		RemoteBackend: config.BackendMemory,
		LocalKey:      localstore.DefaultKey,
		ReadyTimeout:  5 * time.Second,
	}
	a, err := app.New(context.Background(), cfg, logger, app.Options{
		Local:  local,
		Remote: remote.NewMemory(func() time.Time { return created }),
		Clock:  testutil.NewFixedClock(created),
		IDs:    testutil.NewFixedIDGenerator("gen00001"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	a.Start(context.Background())
	_, _, err = a.Ready(context.Background(), "")
	require.NoError(t, err)

	return &fixture{t: t, app: a, local: local, router: NewRouter(a, logger)}
}

func (f *fixture) do(method, path, body string) (int, envelope) {
	f.t.Helper()
	var rdr *bytes.Reader
	if body == "" {
		rdr = bytes.NewReader(nil)
	} else {
		rdr = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	var env envelope
	require.NoError(f.t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func profileOf(t *testing.T, env envelope) map[string]any {
	t.Helper()
	p, ok := env.Data["profile"].(map[string]any)
	require.True(t, ok, "response carries no profile: %v", env.Data)
	return p
}

func TestHealth(t *testing.T) {
	f := newFixture(t)

	code, env := f.do(http.MethodGet, "/healthz", "")

	assert.Equal(t, http.StatusOK, code)
	assert.True(t, env.Success)
	assert.Equal(t, "ok", env.Data["status"])
	assert.NotEmpty(t, env.RequestID)
}

func TestGetProfile_NoSession(t *testing.T) {
	f := newFixture(t)

	code, env := f.do(http.MethodGet, "/profile", "")

	assert.Equal(t, http.StatusNotFound, code)
	assert.False(t, env.Success)
	assert.Equal(t, "no profile", env.Message)
}

func TestGuestSessionLifecycle(t *testing.T) {
	f := newFixture(t)

	code, env := f.do(http.MethodPost, "/session/guest", `{"identityId":"abc12xyz"}`)
	require.Equal(t, http.StatusCreated, code, env.Message)
	assert.Equal(t, "ready", env.Data["state"])
	assert.Equal(t, false, env.Data["loading"])
	p := profileOf(t, env)
	assert.Equal(t, "Guest abc12", p["displayName"])
	assert.Equal(t, "2024-01-15T10:30:00Z", p["createdAt"])

	code, env = f.do(http.MethodPut, "/profile", `{"displayName":"Sam","startDate":"2024-02-01T00:00:00Z"}`)
	require.Equal(t, http.StatusOK, code, env.Message)
	assert.Equal(t, "Sam", profileOf(t, env)["displayName"])

	text, ok := f.local.Get(localstore.DefaultKey)
	require.True(t, ok)
	obj, err := codec.Default().Decode(text)
	require.NoError(t, err)
	stored := profile.FromObject(obj)
	assert.Equal(t, "Sam", stored.DisplayName)
	require.NotNil(t, stored.StartDate)
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), *stored.StartDate)

	code, env = f.do(http.MethodDelete, "/session", "")
	require.Equal(t, http.StatusOK, code, env.Message)
	_, ok = f.local.Get(localstore.DefaultKey)
	assert.False(t, ok, "guest snapshot purged on sign-out")

	code, _ = f.do(http.MethodGet, "/profile", "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestGuestSession_GeneratesID(t *testing.T) {
	f := newFixture(t)

	code, env := f.do(http.MethodPost, "/session/guest", "")

	require.Equal(t, http.StatusCreated, code, env.Message)
	assert.Equal(t, "gen00001", profileOf(t, env)["id"])
}

func TestGuestSession_ChunkedEmptyBody(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodPost, "/session/guest", strings.NewReader(""))
	req.ContentLength = -1
	req.TransferEncoding = []string{"chunked"}
	w := httptest.NewRecorder()

	f.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Equal(t, "gen00001", profileOf(t, env)["id"])
}

func TestGuestSession_MalformedBody(t *testing.T) {
	f := newFixture(t)

	code, env := f.do(http.MethodPost, "/session/guest", `{"id":`)

	assert.Equal(t, http.StatusBadRequest, code)
	assert.False(t, env.Success)
}

func TestAccountSession(t *testing.T) {
	f := newFixture(t)

	code, env := f.do(http.MethodPost, "/session/account", `{"identityId":"bob-42","displayName":"Bob","email":"bob@example.com"}`)

	require.Equal(t, http.StatusCreated, code, env.Message)
	p := profileOf(t, env)
	assert.Equal(t, "Bob", p["displayName"])
	assert.Equal(t, "bob@example.com", p["email"])
	assert.Equal(t, profile.DefaultAvatars[2], p["photoURL"])

	code, env = f.do(http.MethodGet, "/profile", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "bob-42", profileOf(t, env)["id"])
}

func TestAccountSession_Validation(t *testing.T) {
	f := newFixture(t)

	code, env := f.do(http.MethodPost, "/session/account", `{"email":"not-an-email"}`)

	assert.Equal(t, http.StatusBadRequest, code)
	details, ok := env.Error.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "is required", details["identityId"])
	assert.Equal(t, "must be a valid email", details["email"])
}

func TestUpdateProfile_Errors(t *testing.T) {
	f := newFixture(t)

	t.Run("no session", func(t *testing.T) {
		code, _ := f.do(http.MethodPut, "/profile", `{"displayName":"Sam"}`)
		assert.Equal(t, http.StatusNotFound, code)
	})

	t.Run("bad photo url", func(t *testing.T) {
		code, env := f.do(http.MethodPut, "/profile", `{"photoURL":"nope"}`)
		assert.Equal(t, http.StatusBadRequest, code)
		assert.Equal(t, map[string]any{"photoURL": "must be a valid URL"}, env.Error)
	})

	t.Run("malformed json", func(t *testing.T) {
		code, env := f.do(http.MethodPut, "/profile", `{"displayName":`)
		assert.Equal(t, http.StatusBadRequest, code)
		assert.Equal(t, map[string]any{"payload": "invalid json"}, env.Error)
	})
}

func TestAvatar(t *testing.T) {
	f := newFixture(t)

	code, env := f.do(http.MethodGet, "/avatars/bob-42", "")

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(2), env.Data["index"])
	assert.Equal(t, profile.DefaultAvatars[2], env.Data["photoURL"])
}
