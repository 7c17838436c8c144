package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractMessageContentConversation(t *testing.T) {
	content, mediaType := extractMessageContent(&evoMessageContent{
		Conversation: "olá, tenho interesse no imóvel",
	})
	assert.Equal(t, "olá, tenho interesse no imóvel", content)
	assert.Equal(t, "text", mediaType)
}

func TestExtractMessageContentExtendedText(t *testing.T) {
	content, mediaType := extractMessageContent(&evoMessageContent{
		ExtendedTextMessage: &struct {
			Text string `json:"text"`
		}{Text: "segue o link"},
	})
	assert.Equal(t, "segue o link", content)
	assert.Equal(t, "text", mediaType)
}

func TestExtractMessageContentImageCaption(t *testing.T) {
	content, mediaType := extractMessageContent(&evoMessageContent{
		ImageMessage: &struct {
			Caption string `json:"caption"`
			URL     string `json:"url"`
		}{Caption: "foto da fachada"},
	})
	assert.Equal(t, "foto da fachada", content)
	assert.Equal(t, "image", mediaType)
}

func TestExtractMessageContentImageWithoutCaption(t *testing.T) {
	content, mediaType := extractMessageContent(&evoMessageContent{
		ImageMessage: &struct {
			Caption string `json:"caption"`
			URL     string `json:"url"`
		}{},
	})
	assert.Equal(t, "[Image]", content)
	assert.Equal(t, "image", mediaType)
}

func TestExtractMessageContentFirstMatchWins(t *testing.T) {
	content, mediaType := extractMessageContent(&evoMessageContent{
		Conversation: "texto simples",
		ImageMessage: &struct {
			Caption string `json:"caption"`
			URL     string `json:"url"`
		}{Caption: "legenda"},
	})
	assert.Equal(t, "texto simples", content)
	assert.Equal(t, "text", mediaType)
}

func TestExtractMessageContentNil(t *testing.T) {
	content, mediaType := extractMessageContent(nil)
	assert.Equal(t, "", content)
	assert.Equal(t, "text", mediaType)
}

func TestDigitsFromJID(t *testing.T) {
	assert.Equal(t, "18095551234", digitsFromJID("18095551234@s.whatsapp.net"))
	assert.Equal(t, "5511999990000", digitsFromJID("5511999990000@c.us"))
	assert.Equal(t, "123", digitsFromJID("123"))
}

// O número do gateway e o telefone formatado do cadastro convergem para a
// mesma string de dígitos, então a resolução por igualdade encontra o lead.
func TestJIDMatchesFormattedStoredPhone(t *testing.T) {
	fromGateway := digitsFromJID("18095551234@s.whatsapp.net")
	stored := onlyDigits("+1 809-555-1234")
	assert.Equal(t, stored, fromGateway)
}

func TestOnlyDigits(t *testing.T) {
	assert.Equal(t, "5511999990000", onlyDigits("+55 (11) 99999-0000"))
	assert.Equal(t, "", onlyDigits("sem números"))
}
