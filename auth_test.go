package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reqWithAuth(header string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/leads", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	return req
}

func TestTokenRoundTrip(t *testing.T) {
	token, err := generateToken(42, "admin")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	uid, role, err := extractUserFromToken(reqWithAuth("Bearer " + token))
	require.NoError(t, err)
	assert.Equal(t, int64(42), uid)
	assert.Equal(t, "admin", role)
}

func TestExtractUserNoHeader(t *testing.T) {
	_, _, err := extractUserFromToken(reqWithAuth(""))
	assert.Error(t, err)
}

func TestExtractUserMalformedHeader(t *testing.T) {
	_, _, err := extractUserFromToken(reqWithAuth("Token abc"))
	assert.Error(t, err)

	_, _, err = extractUserFromToken(reqWithAuth("Bearer"))
	assert.Error(t, err)
}

func TestExtractUserGarbageToken(t *testing.T) {
	_, _, err := extractUserFromToken(reqWithAuth("Bearer not.a.jwt"))
	assert.Error(t, err)
}

// O esquema da palavra Bearer não diferencia maiúsculas.
func TestExtractUserBearerCaseInsensitive(t *testing.T) {
	token, err := generateToken(7, "agent")
	require.NoError(t, err)

	uid, role, err := extractUserFromToken(reqWithAuth("bearer " + token))
	require.NoError(t, err)
	assert.Equal(t, int64(7), uid)
	assert.Equal(t, "agent", role)
}

func TestRequireAuthRejectsAnonymous(t *testing.T) {
	app := &App{}
	called := false
	h := app.requireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, reqWithAuth(""))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.False(t, called)
}

func TestRequireAuthInjectsUserID(t *testing.T) {
	token, err := generateToken(99, "agent")
	require.NoError(t, err)

	app := &App{}
	var gotUID int64
	h := app.requireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUID = currentUserID(r)
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, reqWithAuth("Bearer "+token))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(99), gotUID)
}

func TestToInt64(t *testing.T) {
	assert.Equal(t, int64(5), toInt64(float64(5)))
	assert.Equal(t, int64(5), toInt64(int64(5)))
	assert.Equal(t, int64(5), toInt64(5))
	assert.Equal(t, int64(0), toInt64("5"))
	assert.Equal(t, int64(0), toInt64(nil))
}
