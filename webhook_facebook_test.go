package main

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func doVerify(t *testing.T, q url.Values) *httptest.ResponseRecorder {
	t.Helper()
	app := &App{}
	req := httptest.NewRequest(http.MethodGet, "/api/webhooks/facebook?"+q.Encode(), nil)
	w := httptest.NewRecorder()
	app.facebookWebhookVerify(w, req)
	return w
}

func TestFacebookVerifyEchoesChallenge(t *testing.T) {
	t.Setenv("FACEBOOK_VERIFY_TOKEN", "test_secret")

	q := url.Values{}
	q.Set("hub.mode", "subscribe")
	q.Set("hub.verify_token", "test_secret")
	q.Set("hub.challenge", "1158201444")

	w := doVerify(t, q)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1158201444", w.Body.String())
}

func TestFacebookVerifyWrongTokenForbidden(t *testing.T) {
	t.Setenv("FACEBOOK_VERIFY_TOKEN", "test_secret")

	q := url.Values{}
	q.Set("hub.mode", "subscribe")
	q.Set("hub.verify_token", "wrong")
	q.Set("hub.challenge", "1158201444")

	w := doVerify(t, q)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestFacebookVerifyWrongModeForbidden(t *testing.T) {
	t.Setenv("FACEBOOK_VERIFY_TOKEN", "test_secret")

	q := url.Values{}
	q.Set("hub.mode", "unsubscribe")
	q.Set("hub.verify_token", "test_secret")
	q.Set("hub.challenge", "x")

	w := doVerify(t, q)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestFacebookVerifyMissingParamsBadRequest(t *testing.T) {
	w := doVerify(t, url.Values{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// Qualquer resposta != 200 faz o provedor reentregar; corpo inválido ainda
// recebe a confirmação.
func TestFacebookEventInvalidBodyStillAcked(t *testing.T) {
	app := &App{}
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/facebook", strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	app.facebookWebhookEvent(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "EVENT_RECEIVED", w.Body.String())
}

func TestNormalizeLeadFieldsFullNameWins(t *testing.T) {
	cand := normalizeLeadFields([]fbLeadField{
		{Name: "full_name", Values: []string{"Maria Souza"}},
		{Name: "first_name", Values: []string{"Outro"}},
		{Name: "last_name", Values: []string{"Nome"}},
		{Name: "email", Values: []string{"maria@example.com"}},
		{Name: "phone_number", Values: []string{"+55 11 99999-0000"}},
	})
	assert.Equal(t, "Maria Souza", cand.Name)
	assert.Equal(t, "maria@example.com", cand.Email)
	assert.Equal(t, "+55 11 99999-0000", cand.Phone)
}

func TestNormalizeLeadFieldsConcatenatesFirstLast(t *testing.T) {
	cand := normalizeLeadFields([]fbLeadField{
		{Name: "first_name", Values: []string{"João"}},
		{Name: "last_name", Values: []string{"Silva"}},
	})
	assert.Equal(t, "João Silva", cand.Name)
}

func TestNormalizeLeadFieldsFirstNameOnly(t *testing.T) {
	cand := normalizeLeadFields([]fbLeadField{
		{Name: "first_name", Values: []string{"Ana"}},
	})
	assert.Equal(t, "Ana", cand.Name)
}

func TestNormalizeLeadFieldsDefaultName(t *testing.T) {
	cand := normalizeLeadFields([]fbLeadField{
		{Name: "email", Values: []string{"a@b.com"}},
	})
	assert.Equal(t, "Facebook Lead", cand.Name)
	assert.Equal(t, "a@b.com", cand.Email)
}

func TestNormalizeLeadFieldsPhoneAlias(t *testing.T) {
	cand := normalizeLeadFields([]fbLeadField{
		{Name: "phone", Values: []string{"11999990000"}},
	})
	assert.Equal(t, "11999990000", cand.Phone)
}

func TestNormalizeLeadFieldsKeepsRawValues(t *testing.T) {
	cand := normalizeLeadFields([]fbLeadField{
		{Name: "city", Values: []string{"Santo Domingo", "DN"}},
	})
	assert.Equal(t, "Santo Domingo, DN", cand.RawFields["city"])
}
