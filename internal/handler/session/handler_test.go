package session

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ItsSitanshu/dhyan.ai/backend/internal/auth"
	"github.com/ItsSitanshu/dhyan.ai/backend/internal/middleware"
	sessionService "github.com/ItsSitanshu/dhyan.ai/backend/internal/service/session"
	"github.com/ItsSitanshu/dhyan.ai/backend/internal/storage"
)

func setupRouter() *chi.Mux {
	provider := auth.NewMemoryProvider()
	repo := storage.NewMemoryRepository()
	gate := sessionService.NewGate(provider, repo, zap.NewNop())

	r := chi.NewRouter()
	r.Use(middleware.ResolveSession(gate))
	New(provider, repo, gate, zap.NewNop()).RegisterRoutes(r)
	return r
}

func post(t *testing.T, r http.Handler, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func getSession(t *testing.T, r http.Handler, token string) sessionService.Result {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/session", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	require.Equal(t, http.StatusOK, resp.Code)

	var result sessionService.Result
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &result))
	return result
}

func TestOnboardingFlow(t *testing.T) {
	r := setupRouter()

	assert.Equal(t, sessionService.StateUnauthenticated, getSession(t, r, "").State)

	resp := post(t, r, "/auth/signup", "", map[string]string{"email": "mira@example.com", "password": "orbit$42go"})
	require.Equal(t, http.StatusCreated, resp.Code)

	var session auth.Session
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &session))
	require.NotEmpty(t, session.Token)

	assert.Equal(t, sessionService.StateNoProfile, getSession(t, r, session.Token).State)

	resp = post(t, r, "/profile", session.Token, map[string]string{"name": "Mira", "level": "high school"})
	require.Equal(t, http.StatusCreated, resp.Code)
	assert.Contains(t, resp.Body.String(), `"state":"authenticated-with-profile"`)

	resp = post(t, r, "/profile", session.Token, map[string]string{"name": "Mira"})
	assert.Equal(t, http.StatusConflict, resp.Code)

	result := getSession(t, r, session.Token)
	assert.True(t, result.Ready())
	require.NotNil(t, result.Profile)
	assert.Equal(t, "Mira", result.Profile.Name)

	resp = post(t, r, "/auth/signout", session.Token, map[string]string{})
	require.Equal(t, http.StatusNoContent, resp.Code)
	assert.Equal(t, sessionService.StateUnauthenticated, getSession(t, r, session.Token).State)
}

func TestAuthErrors(t *testing.T) {
	r := setupRouter()

	resp := post(t, r, "/auth/signup", "", map[string]string{"email": "weak@example.com", "password": "short"})
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Contains(t, resp.Body.String(), "Password must be")

	resp = post(t, r, "/auth/signin", "", map[string]string{"email": "nobody@example.com", "password": "whatever1!"})
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
	assert.Contains(t, resp.Body.String(), "Invalid login credentials")

	resp = post(t, r, "/profile", "", map[string]string{"name": "Ghost"})
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}
