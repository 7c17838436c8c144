package main

// Integrations: uma configuração ativa por tipo (meta/google/twilio/...).
// O config é um blob JSON opaco com as credenciais do provedor; a ingestão
// do Facebook lê page_access_token daqui quando não há conexão por página.

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
)

type Integration struct {
	ID        int64           `json:"id"`
	Type      string          `json:"type"`
	Config    json.RawMessage `json:"config"`
	Status    string          `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (a *App) mountIntegrations(r chi.Router) {
	r.Get("/integrations", a.listIntegrations)
	r.Post("/integrations", a.upsertIntegration)
}

// GET /integrations
func (a *App) listIntegrations(w http.ResponseWriter, r *http.Request) {
	rows, err := a.DB.Query(r.Context(),
		`SELECT id, type, config, status, created_at, updated_at
		   FROM integrations ORDER BY type ASC`)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer rows.Close()
	out := []Integration{}
	for rows.Next() {
		var it Integration
		if err := rows.Scan(&it.ID, &it.Type, &it.Config, &it.Status, &it.CreatedAt, &it.UpdatedAt); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		out = append(out, it)
	}
	writeJSON(w, http.StatusOK, out)
}

// POST /integrations — upsert por tipo.
func (a *App) upsertIntegration(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Type   string          `json:"type"`
		Config json.RawMessage `json:"config"`
		Status string          `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return
	}
	in.Type = strings.TrimSpace(strings.ToLower(in.Type))
	if in.Type == "" {
		http.Error(w, "type is required", http.StatusBadRequest)
		return
	}
	if len(in.Config) == 0 {
		in.Config = json.RawMessage(`{}`)
	}
	if in.Status == "" {
		in.Status = "active"
	}

	var it Integration
	err := a.DB.QueryRow(r.Context(),
		`INSERT INTO integrations (type, config, status)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (type) DO UPDATE
		 SET config = EXCLUDED.config, status = EXCLUDED.status, updated_at = NOW()
		 RETURNING id, type, config, status, created_at, updated_at`,
		in.Type, in.Config, in.Status).
		Scan(&it.ID, &it.Type, &it.Config, &it.Status, &it.CreatedAt, &it.UpdatedAt)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, it)
}
