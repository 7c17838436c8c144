package main

// n8n: provisionamento da conta owner e proxy reverso para a instância,
// que o front embute em iframe.

import (
	"bytes"
	"encoding/json"
	"log"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
)

func n8nBaseURL() string {
	return strings.TrimRight(getenv("N8N_BASE_URL", "http://localhost:5678"), "/")
}

func (a *App) mountN8N(r chi.Router) {
	r.Post("/n8n/provision", a.n8nProvision)

	// proxy reverso: /api/n8n/* -> instância n8n
	target, err := url.Parse(n8nBaseURL())
	if err != nil {
		log.Printf("n8n proxy disabled: %v", err)
		return
	}
	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		log.Printf("n8n proxy: %v", err)
		http.Error(w, "n8n unavailable", http.StatusBadGateway)
	}
	r.Handle("/n8n/*", http.StripPrefix("/api/n8n", proxy))
}

func postN8N(path string, body any) (*http.Response, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	client := &http.Client{Timeout: 10 * time.Second}
	return client.Post(n8nBaseURL()+path, "application/json", bytes.NewReader(b))
}

// POST /n8n/provision
// Garante que a conta owner exista: tenta login; se falhar, roda o setup de
// owner. As credenciais voltam para o front fazer o auto-login no iframe.
func (a *App) n8nProvision(w http.ResponseWriter, r *http.Request) {
	adminEmail := getenv("N8N_ADMIN_EMAIL", "admin@flowestate.com")
	adminPassword := getenv("N8N_ADMIN_PASSWORD", "password123")

	resp, err := postN8N("/rest/login", map[string]string{
		"email":    adminEmail,
		"password": adminPassword,
	})
	if err != nil {
		http.Error(w, "n8n unavailable: "+err.Error(), http.StatusBadGateway)
		return
	}
	_ = resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		// primeira subida: cria a conta owner
		setupResp, err := postN8N("/rest/owner/setup", map[string]string{
			"email":     adminEmail,
			"password":  adminPassword,
			"firstName": "Admin",
			"lastName":  "FlowEstate",
		})
		if err != nil {
			http.Error(w, "n8n unavailable: "+err.Error(), http.StatusBadGateway)
			return
		}
		_ = setupResp.Body.Close()
		if setupResp.StatusCode >= http.StatusBadRequest {
			// pode já estar configurada com outra senha; segue mesmo assim
			log.Printf("n8n owner setup returned %d", setupResp.StatusCode)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"email":      adminEmail,
		"password":   adminPassword,
		"shouldInit": true,
	})
}
