package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/divinus-go/camerad/internal/channel"
	"github.com/divinus-go/camerad/internal/config"
	"github.com/divinus-go/camerad/internal/fanout"
	"github.com/divinus-go/camerad/internal/hal/software"
)

func testServer(t *testing.T) (*Server, *config.Config) {
	t.Helper()
	cfg := config.Default()
	dev := software.New()
	deps := Deps{
		Config:   cfg,
		Device:   dev,
		Channels: channel.New(4),
		Fanout:   fanout.NewTable(4),
	}
	return NewServer(deps, nil), cfg
}

func TestAuthMiddlewareRejectsWithoutCredentials(t *testing.T) {
	s, cfg := testServer(t)
	cfg.System.WebEnableAuth = true
	cfg.System.WebAuthUser = "admin"
	cfg.System.WebAuthPass = "secret"

	handler := s.withAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.RemoteAddr = "203.0.113.5:1234"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthMiddlewareAcceptsCorrectPlaintextCredentials(t *testing.T) {
	s, cfg := testServer(t)
	cfg.System.WebEnableAuth = true
	cfg.System.WebAuthUser = "admin"
	cfg.System.WebAuthPass = "secret"

	handler := s.withAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.RemoteAddr = "203.0.113.5:1234"
	req.SetBasicAuth("admin", "secret")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthMiddlewareAcceptsBcryptHash(t *testing.T) {
	s, cfg := testServer(t)
	hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	require.NoError(t, err)

	cfg.System.WebEnableAuth = true
	cfg.System.WebAuthUser = "admin"
	cfg.System.WebAuthPass = string(hash)

	handler := s.withAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.RemoteAddr = "203.0.113.5:1234"
	req.SetBasicAuth("admin", "secret")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthMiddlewareSkipsLocalWhenConfigured(t *testing.T) {
	s, cfg := testServer(t)
	cfg.System.WebEnableAuth = true
	cfg.System.WebAuthSkipLocal = true
	cfg.System.WebAuthUser = "admin"
	cfg.System.WebAuthPass = "secret"

	handler := s.withAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.RemoteAddr = "127.0.0.1:5555"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWhitelistMiddlewareRejectsOutsideCIDR(t *testing.T) {
	s, cfg := testServer(t)
	cfg.System.WebWhitelist = []string{"10.0.0.0/8"}

	handler := s.withWhitelist(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.RemoteAddr = "203.0.113.5:1234"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestWhitelistMiddlewareAllowsMatchingCIDR(t *testing.T) {
	s, cfg := testServer(t)
	cfg.System.WebWhitelist = []string{"10.0.0.0/8"}

	handler := s.withWhitelist(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.RemoteAddr = "10.1.2.3:1234"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWhitelistMiddlewareNoopWhenEmpty(t *testing.T) {
	s, _ := testServer(t)

	handler := s.withWhitelist(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.RemoteAddr = "203.0.113.5:1234"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleAPIStatusReturnsChannelsAndClientCount(t *testing.T) {
	s, _ := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	rec := httptest.NewRecorder()
	s.handleAPIStatus(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "client_count")
	assert.Contains(t, rec.Body.String(), "channels")
}

func TestHandleAPITimeReportsConfiguredFormat(t *testing.T) {
	s, cfg := testServer(t)
	cfg.System.TimeFormat = "%Y/%m/%d"

	req := httptest.NewRequest(http.MethodGet, "/api/time", nil)
	rec := httptest.NewRecorder()
	s.handleAPITime(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "%Y/%m/%d")
}

func TestHandleAPICmdSaveWritesConfigFile(t *testing.T) {
	s, _ := testServer(t)
	s.deps.ConfigPath = t.TempDir() + "/divinus.yaml"

	req := httptest.NewRequest(http.MethodPost, "/api/cmd?save=1", nil)
	rec := httptest.NewRecorder()
	s.handleAPICmd(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	_, err := config.Load(s.deps.ConfigPath)
	require.NoError(t, err)
}

func TestHandleAPIOSDNotFoundWithoutCompositor(t *testing.T) {
	// OSD is nil in this test's Deps, so the handler must 404 rather than
	// panic when the compositor hasn't been wired up.
	s, _ := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/osd/0", nil)
	rec := httptest.NewRecorder()
	s.handleAPIOSD(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestResolveChannelFallsBackToFirstEnabled(t *testing.T) {
	reg := channel.New(4)
	idx, ok := reg.TakeNextFree(true)
	require.True(t, ok)
	require.Equal(t, 0, idx)

	req := httptest.NewRequest(http.MethodGet, "/video.264", nil)
	got, ok := resolveChannel(req, reg)
	assert.True(t, ok)
	assert.Equal(t, 0, got)
}

func TestResolveChannelHonorsExplicitQueryParam(t *testing.T) {
	reg := channel.New(4)
	reg.TakeNextFree(true)
	reg.TakeNextFree(false)

	req := httptest.NewRequest(http.MethodGet, "/video.264?channel=1", nil)
	got, ok := resolveChannel(req, reg)
	assert.True(t, ok)
	assert.Equal(t, 1, got)
}

func TestResolveChannelRejectsDisabledExplicitChannel(t *testing.T) {
	reg := channel.New(4)
	reg.TakeNextFree(true)

	req := httptest.NewRequest(http.MethodGet, "/video.264?channel=3", nil)
	_, ok := resolveChannel(req, reg)
	assert.False(t, ok)
}
