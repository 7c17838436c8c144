package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func doSendText(body string) *httptest.ResponseRecorder {
	app := &App{}
	req := httptest.NewRequest(http.MethodPost, "/api/evolution/text/send", strings.NewReader(body))
	w := httptest.NewRecorder()
	app.evolutionSendText(w, req)
	return w
}

// A validação roda antes de qualquer chamada de rede ou acesso ao banco:
// o App de teste não tem pool nem gateway configurado e mesmo assim o
// handler responde 400.
func TestSendTextEmptyTextRejected(t *testing.T) {
	w := doSendText(`{"instanceName":"inst1","number":"5511999990000","text":""}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "instanceName, number, text")
}

func TestSendTextMissingInstanceRejected(t *testing.T) {
	w := doSendText(`{"number":"5511999990000","text":"oi"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSendTextMissingNumberRejected(t *testing.T) {
	w := doSendText(`{"instanceName":"inst1","text":"oi"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSendTextWhitespaceOnlyTextRejected(t *testing.T) {
	w := doSendText(`{"instanceName":"inst1","number":"5511999990000","text":"   "}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSendTextInvalidJSONRejected(t *testing.T) {
	w := doSendText(`{not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
