package main

// Webhook da Evolution API: ingestão de mensagens recebidas. O id da
// mensagem do provedor (data.key.id) é a chave de dedup — reentregas do
// mesmo evento caem no ON CONFLICT DO NOTHING e não duplicam linhas.

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strings"
)

type evoMessageKey struct {
	RemoteJID string `json:"remoteJid"`
	FromMe    bool   `json:"fromMe"`
	ID        string `json:"id"`
}

type evoMessageContent struct {
	Conversation        string `json:"conversation"`
	ExtendedTextMessage *struct {
		Text string `json:"text"`
	} `json:"extendedTextMessage"`
	ImageMessage *struct {
		Caption string `json:"caption"`
		URL     string `json:"url"`
	} `json:"imageMessage"`
}

type evoWebhookPayload struct {
	Type     string `json:"type"`
	Event    string `json:"event"`
	Instance string `json:"instance"`
	Data     struct {
		Key      evoMessageKey      `json:"key"`
		Message  *evoMessageContent `json:"message"`
		PushName string             `json:"pushName"`
	} `json:"data"`
}

// extractMessageContent escolhe o texto da mensagem entre os formatos
// possíveis, na ordem: texto simples, texto estendido, legenda de imagem.
// Primeiro formato preenchido ganha; tipo não suportado vira "[Image]".
func extractMessageContent(m *evoMessageContent) (content, mediaType string) {
	if m == nil {
		return "", "text"
	}
	if m.Conversation != "" {
		return m.Conversation, "text"
	}
	if m.ExtendedTextMessage != nil && m.ExtendedTextMessage.Text != "" {
		return m.ExtendedTextMessage.Text, "text"
	}
	if m.ImageMessage != nil {
		if m.ImageMessage.Caption != "" {
			return m.ImageMessage.Caption, "image"
		}
		return "[Image]", "image"
	}
	return "", "text"
}

// POST /evolution/webhook
func (a *App) evolutionWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read error", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var payload evoWebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	// auditoria do payload bruto
	event := payload.Type
	if event == "" {
		event = payload.Event
	}
	_, _ = a.DB.Exec(r.Context(),
		`INSERT INTO webhooks_log (source, event, payload) VALUES ($1, $2, $3)`,
		"evolution", event, json.RawMessage(body))

	if !strings.EqualFold(event, "messages.upsert") {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
		return
	}

	ctx := r.Context()
	content, mediaType := extractMessageContent(payload.Data.Message)
	digits := digitsFromJID(payload.Data.Key.RemoteJID)

	leadID, err := a.findLeadIDByPhone(ctx, digits)
	if err != nil {
		log.Printf("evolution webhook: lead lookup: %v", err)
	}

	tag, err := a.DB.Exec(ctx,
		`INSERT INTO messages (provider_message_id, instance_id, lead_id, remote_jid,
		                       from_me, content, media_type, status)
		 VALUES (NULLIF($1,''), $2, $3, $4, $5, $6, $7, 'received')
		 ON CONFLICT (provider_message_id) WHERE provider_message_id IS NOT NULL
		 DO NOTHING`,
		payload.Data.Key.ID, payload.Instance, leadIDValue(leadID), digits,
		payload.Data.Key.FromMe, nilIfEmpty(content), mediaType)
	if err != nil {
		log.Printf("evolution webhook: persist message: %v", err)
		http.Error(w, "error", http.StatusInternalServerError)
		return
	}
	if tag.RowsAffected() == 0 {
		log.Printf("evolution webhook: duplicate message %s ignored", payload.Data.Key.ID)
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
