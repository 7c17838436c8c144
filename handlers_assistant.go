package main

// Assistente: rascunho de resposta para a caixa de entrada do WhatsApp.
// Monta o histórico recente da conversa do lead e pede uma sugestão curta
// ao modelo.

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"
)

func (a *App) mountAssistant(r chi.Router) {
	r.Post("/assistant/suggest-reply", a.suggestReply)
}

const suggestSystemPrompt = `Você é um assistente de um CRM imobiliário.
Escreva uma resposta curta e cordial em nome do corretor para a última
mensagem do lead, no mesmo idioma da conversa. Responda apenas com o texto
da mensagem, sem aspas nem explicações.`

// POST /assistant/suggest-reply
func (a *App) suggestReply(w http.ResponseWriter, r *http.Request) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		http.Error(w, "OPENAI_API_KEY not set", http.StatusInternalServerError)
		return
	}
	model := getenv("TEXT_MODEL", "gpt-4o-mini")

	var in struct {
		LeadID string `json:"lead_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return
	}
	leadID, err := uuid.Parse(in.LeadID)
	if err != nil {
		http.Error(w, "invalid lead_id", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	lead, err := scanLead(a.DB.QueryRow(ctx,
		`SELECT `+leadCols+` FROM leads WHERE id = $1`, leadID))
	if err != nil {
		http.Error(w, "lead not found", http.StatusNotFound)
		return
	}

	rows, err := a.DB.Query(ctx,
		`SELECT from_me, COALESCE(content, '')
		   FROM messages WHERE lead_id = $1
		  ORDER BY timestamp DESC LIMIT 20`, leadID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	type histMsg struct {
		fromMe  bool
		content string
	}
	var hist []histMsg
	for rows.Next() {
		var m histMsg
		if err := rows.Scan(&m.fromMe, &m.content); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		hist = append(hist, m)
	}
	if len(hist) == 0 {
		http.Error(w, "lead has no conversation yet", http.StatusBadRequest)
		return
	}

	msgs := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: suggestSystemPrompt},
		{Role: openai.ChatMessageRoleSystem, Content: fmt.Sprintf("Lead: %s (status: %s)", lead.Name, lead.Status)},
	}
	// histórico veio em ordem inversa
	for i := len(hist) - 1; i >= 0; i-- {
		role := openai.ChatMessageRoleUser
		if hist[i].fromMe {
			role = openai.ChatMessageRoleAssistant
		}
		if hist[i].content == "" {
			continue
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: hist[i].content})
	}

	client := openai.NewClient(apiKey)
	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    model,
		Messages: msgs,
	})
	if err != nil {
		http.Error(w, "openai error: "+err.Error(), http.StatusBadGateway)
		return
	}
	if len(resp.Choices) == 0 {
		http.Error(w, "openai error: empty response", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"suggestion": strings.TrimSpace(resp.Choices[0].Message.Content),
	})
}
