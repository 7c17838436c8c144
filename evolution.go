package main

// Integração com a Evolution API (gateway de WhatsApp): ciclo de vida da
// instância por usuário, registro de webhook e envio de mensagens. Uma
// mensagem enviada com sucesso no gateway é gravada localmente com
// from_me = true; gravação é best-effort, não transacional com o envio.

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type evoClient struct {
	base string
	key  string
	http *http.Client
}

func newEvoClient() (*evoClient, error) {
	base := strings.TrimRight(os.Getenv("EVOLUTION_API_URL"), "/")
	// erro comum: colar a URL do painel com /manager no fim
	base = strings.TrimSuffix(base, "/manager")
	key := os.Getenv("EVOLUTION_API_TOKEN")
	if base == "" || key == "" {
		return nil, errors.New("evolution api not configured (EVOLUTION_API_URL/EVOLUTION_API_TOKEN)")
	}
	return &evoClient{
		base: base,
		key:  key,
		http: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// doJSON chama o gateway com o header apikey; erro HTTP vira error com o
// corpo da resposta.
func (c *evoClient) doJSON(ctx context.Context, method, path string, body any, vout any) error {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rdr)
	if err != nil {
		return err
	}
	req.Header.Set("apikey", c.key)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("evolution %s: http %d: %s", path, resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if vout != nil {
		return json.NewDecoder(resp.Body).Decode(vout)
	}
	return nil
}

func (a *App) mountEvolution(r chi.Router) {
	r.Route("/evolution", func(r chi.Router) {
		r.Post("/instance", a.evolutionCreateInstance)
		r.Get("/instance/{instanceName}/qr", a.evolutionQR)
		r.Get("/instance/{instanceName}/status", a.evolutionStatus)
		r.Delete("/instance/{instanceName}/logout", a.evolutionLogout)
		r.Post("/webhook/configure/{instanceName}", a.evolutionConfigureWebhook)
		r.Post("/text/send", a.evolutionSendText)
		r.Get("/messages/{instanceName}/{phone}", a.evolutionMessages)
	})
}

// POST /evolution/instance
// Cada usuário tem no máximo uma instância; o nome fica em
// users.whatsapp_instance_id e a criação no gateway tolera "already exists".
func (a *App) evolutionCreateInstance(w http.ResponseWriter, r *http.Request) {
	evo, err := newEvoClient()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	userID := currentUserID(r)
	ctx := r.Context()

	var instanceName *string
	if err := a.DB.QueryRow(ctx,
		`SELECT whatsapp_instance_id FROM users WHERE id = $1`, userID).Scan(&instanceName); err != nil {
		http.Error(w, "user not found", http.StatusNotFound)
		return
	}
	name := ""
	if instanceName != nil {
		name = *instanceName
	}
	if name == "" {
		name = fmt.Sprintf("user_%d_wa", userID)
		if _, err := a.DB.Exec(ctx,
			`UPDATE users SET whatsapp_instance_id = $1, updated_at = NOW() WHERE id = $2`,
			name, userID); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}

	var out map[string]any
	err = evo.doJSON(ctx, http.MethodPost, "/instance/create", map[string]any{
		"instanceName": name,
		"token":        "",
		"qrcode":       true,
		"integration":  "WHATSAPP-BAILEYS",
	}, &out)
	if err != nil {
		// instância já criada no gateway conta como sucesso
		if strings.Contains(err.Error(), "already") || strings.Contains(err.Error(), "403") {
			writeJSON(w, http.StatusOK, map[string]any{"instanceName": name, "alreadyExists": true})
			return
		}
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	if out == nil {
		out = map[string]any{}
	}
	out["instanceName"] = name
	writeJSON(w, http.StatusOK, out)
}

// GET /evolution/instance/{instanceName}/qr
func (a *App) evolutionQR(w http.ResponseWriter, r *http.Request) {
	evo, err := newEvoClient()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	name := chi.URLParam(r, "instanceName")
	var out map[string]any
	if err := evo.doJSON(r.Context(), http.MethodGet, "/instance/connect/"+url.PathEscape(name), nil, &out); err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// GET /evolution/instance/{instanceName}/status
func (a *App) evolutionStatus(w http.ResponseWriter, r *http.Request) {
	evo, err := newEvoClient()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	name := chi.URLParam(r, "instanceName")
	var out map[string]any
	if err := evo.doJSON(r.Context(), http.MethodGet, "/instance/connectionState/"+url.PathEscape(name), nil, &out); err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// DELETE /evolution/instance/{instanceName}/logout
func (a *App) evolutionLogout(w http.ResponseWriter, r *http.Request) {
	evo, err := newEvoClient()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	name := chi.URLParam(r, "instanceName")
	if err := evo.doJSON(r.Context(), http.MethodDelete, "/instance/logout/"+url.PathEscape(name), nil, nil); err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "logged out"})
}

// POST /evolution/webhook/configure/{instanceName}
// Aponta o webhook da instância de volta para este servidor.
func (a *App) evolutionConfigureWebhook(w http.ResponseWriter, r *http.Request) {
	evo, err := newEvoClient()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	name := chi.URLParam(r, "instanceName")

	var in struct {
		WebhookURL string   `json:"webhookUrl"`
		Events     []string `json:"events"`
	}
	_ = json.NewDecoder(r.Body).Decode(&in)
	if in.WebhookURL == "" {
		in.WebhookURL = strings.TrimRight(getenv("SERVER_URL", ""), "/") + "/api/evolution/webhook"
	}
	if len(in.Events) == 0 {
		in.Events = []string{"MESSAGES_UPSERT"}
	}

	var out map[string]any
	err = evo.doJSON(r.Context(), http.MethodPost, "/webhook/set/"+url.PathEscape(name), map[string]any{
		"enabled":           true,
		"url":               in.WebhookURL,
		"webhook_by_events": false,
		"events":            in.Events,
	}, &out)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// POST /evolution/text/send
// Validação antes de qualquer chamada de rede; o insert local acontece só
// depois do gateway aceitar o envio.
func (a *App) evolutionSendText(w http.ResponseWriter, r *http.Request) {
	var in struct {
		InstanceName string `json:"instanceName"`
		Number       string `json:"number"`
		Text         string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return
	}
	in.InstanceName = strings.TrimSpace(in.InstanceName)
	in.Number = strings.TrimSpace(in.Number)
	in.Text = strings.TrimSpace(in.Text)
	if in.InstanceName == "" || in.Number == "" || in.Text == "" {
		http.Error(w, "missing required fields: instanceName, number, text", http.StatusBadRequest)
		return
	}

	evo, err := newEvoClient()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	ctx := r.Context()
	var out map[string]any
	err = evo.doJSON(ctx, http.MethodPost, "/message/sendText/"+url.PathEscape(in.InstanceName), map[string]any{
		"number": in.Number,
		"options": map[string]any{
			"delay":       1200,
			"presence":    "composing",
			"linkPreview": false,
		},
		"textMessage": map[string]any{"text": in.Text},
	}, &out)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	// registro local do envio (best-effort)
	digits := onlyDigits(in.Number)
	leadID, lerr := a.findLeadIDByPhone(ctx, digits)
	if lerr != nil {
		log.Printf("send text: lead lookup: %v", lerr)
	}
	if _, err := a.DB.Exec(ctx,
		`INSERT INTO messages (instance_id, lead_id, remote_jid, from_me, content, status)
		 VALUES ($1, $2, $3, TRUE, $4, 'sent')`,
		in.InstanceName, leadIDValue(leadID), digits, in.Text); err != nil {
		log.Printf("send text: persist message: %v", err)
	}

	writeJSON(w, http.StatusOK, out)
}

func leadIDValue(id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	return *id
}

type Message struct {
	ID                int64      `json:"id"`
	ProviderMessageID *string    `json:"provider_message_id,omitempty"`
	InstanceID        string     `json:"instance_id"`
	LeadID            *uuid.UUID `json:"lead_id"`
	RemoteJID         string     `json:"remote_jid"`
	FromMe            bool       `json:"from_me"`
	Content           *string    `json:"content"`
	MediaURL          *string    `json:"media_url,omitempty"`
	MediaType         string     `json:"media_type"`
	Timestamp         time.Time  `json:"timestamp"`
	Status            string     `json:"status"`
}

// GET /evolution/messages/{instanceName}/{phone} — conversa com um contato.
func (a *App) evolutionMessages(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "instanceName")
	digits := onlyDigits(chi.URLParam(r, "phone"))
	if digits == "" {
		http.Error(w, "invalid phone", http.StatusBadRequest)
		return
	}

	rows, err := a.DB.Query(r.Context(),
		`SELECT id, provider_message_id, instance_id, lead_id, remote_jid, from_me,
		        content, media_url, media_type, timestamp, status
		   FROM messages
		  WHERE instance_id = $1 AND remote_jid = $2
		  ORDER BY timestamp ASC`, name, digits)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer rows.Close()
	out := []Message{}
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ProviderMessageID, &m.InstanceID, &m.LeadID,
			&m.RemoteJID, &m.FromMe, &m.Content, &m.MediaURL, &m.MediaType,
			&m.Timestamp, &m.Status); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		out = append(out, m)
	}
	writeJSON(w, http.StatusOK, out)
}
