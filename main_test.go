package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// Escrita de conexões do Facebook exige JWT; a rejeição vem do middleware,
// antes do handler tocar no banco.
func TestFacebookConnectionsRequireAuth(t *testing.T) {
	h := (&App{}).routes()

	req := httptest.NewRequest(http.MethodPost, "/api/facebook/connections", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodDelete, "/api/facebook/connections/1", nil)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/facebook/connections", nil)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

// O handshake de verificação continua aberto: sem parâmetros o handler
// responde 400, não 401.
func TestWebhookVerifyRouteStaysOpen(t *testing.T) {
	h := (&App{}).routes()

	req := httptest.NewRequest(http.MethodGet, "/api/webhooks/facebook", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthz(t *testing.T) {
	h := (&App{}).routes()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}
