package main

// Webhook de Lead Ads do Facebook: handshake de verificação + ingestão de
// eventos leadgen. O evento só carrega um id opaco; o detalhe do lead é
// buscado na Graph API com o token resolvido por página/formulário, e o
// resultado entra pelo upsert idempotente do repositório de leads.
//
// O Facebook exige um 200 rápido e reentrega em caso de timeout, então a
// resposta é enviada antes do processamento; falhas internas são apenas
// logadas (a reentrega do provedor + dedup por external_id cobrem o resto).

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// GET /webhooks/facebook — handshake de subscrição.
func (a *App) facebookWebhookVerify(w http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("hub.mode")
	token := r.URL.Query().Get("hub.verify_token")
	challenge := r.URL.Query().Get("hub.challenge")

	if mode == "" || token == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	verifyToken := getenv("FACEBOOK_VERIFY_TOKEN", "flow_estate_secret")
	if mode == "subscribe" && token == verifyToken {
		log.Printf("facebook webhook verified")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(challenge))
		return
	}
	w.WriteHeader(http.StatusForbidden)
}

type fbWebhookPayload struct {
	Object string `json:"object"`
	Entry  []struct {
		ID      string `json:"id"`
		Changes []struct {
			Field string         `json:"field"`
			Value map[string]any `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// POST /webhooks/facebook — evento leadgen.
func (a *App) facebookWebhookEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read error", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	// o provedor reentrega qualquer resposta != 200, então a confirmação
	// não depende do corpo ser válido nem do objeto ser "page"
	var payload fbWebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		log.Printf("facebook webhook: invalid payload: %v", err)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("EVENT_RECEIVED"))
		return
	}

	// auditoria do payload bruto
	_, _ = a.DB.Exec(r.Context(),
		`INSERT INTO webhooks_log (source, event, payload) VALUES ($1, $2, $3)`,
		"facebook", "leadgen", json.RawMessage(body))

	// confirma antes de processar; o request não fica bloqueado em chamadas
	// à Graph API
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("EVENT_RECEIVED"))

	if payload.Object != "page" {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		for _, entry := range payload.Entry {
			for _, change := range entry.Changes {
				if change.Field != "leadgen" {
					continue
				}
				leadgenID := pickStr(change.Value, "leadgen_id")
				pageID := pickStr(change.Value, "page_id")
				if pageID == "" {
					pageID = entry.ID
				}
				formID := pickStr(change.Value, "form_id")
				if leadgenID == "" {
					continue
				}
				if err := a.ingestFacebookLead(ctx, leadgenID, pageID, formID); err != nil {
					log.Printf("facebook leadgen %s: %v", leadgenID, err)
				}
			}
		}
	}()
}

// resolveFacebookToken procura a credencial da página: primeiro a conexão
// específica (página + formulário, formulário nulo casa com qualquer um),
// depois a integração global 'meta'.
func (a *App) resolveFacebookToken(ctx context.Context, pageID, formID string) (string, bool) {
	var token string
	err := a.DB.QueryRow(ctx,
		`SELECT access_token FROM facebook_connections
		  WHERE page_id = $1 AND status = 'active'
		    AND (form_id = $2 OR form_id IS NULL)
		  ORDER BY form_id NULLS LAST
		  LIMIT 1`, pageID, nilIfEmpty(formID)).Scan(&token)
	if err == nil && token != "" {
		return token, true
	}

	var config map[string]any
	err = a.DB.QueryRow(ctx,
		`SELECT config FROM integrations WHERE type = 'meta' LIMIT 1`).Scan(&config)
	if err != nil {
		return "", false
	}
	if t := pickStr(config, "page_access_token", "access_token"); t != "" {
		return t, true
	}
	return "", false
}

type fbLeadField struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

type fbLeadDetail struct {
	ID          string        `json:"id"`
	CreatedTime string        `json:"created_time"`
	FieldData   []fbLeadField `json:"field_data"`
}

// normalizeLeadFields mapeia a lista flexível de campos do formulário para
// os campos internos. Prioridade de nome: full_name/name ganha; senão
// first_name + last_name concatenados.
func normalizeLeadFields(fields []fbLeadField) leadCandidate {
	cand := leadCandidate{Name: "Facebook Lead", RawFields: map[string]string{}}
	var firstName, lastName string

	first := func(f fbLeadField) string {
		if len(f.Values) == 0 {
			return ""
		}
		return strings.TrimSpace(f.Values[0])
	}

	for _, f := range fields {
		cand.RawFields[f.Name] = strings.Join(f.Values, ", ")
		switch f.Name {
		case "full_name", "name":
			if v := first(f); v != "" {
				cand.Name = v
			}
		case "first_name":
			firstName = first(f)
		case "last_name":
			lastName = first(f)
		case "email":
			cand.Email = first(f)
		case "phone_number", "phone":
			cand.Phone = first(f)
		}
	}

	if _, explicit := cand.RawFields["full_name"]; !explicit {
		if _, explicit = cand.RawFields["name"]; !explicit && (firstName != "" || lastName != "") {
			cand.Name = strings.TrimSpace(firstName + " " + lastName)
		}
	}
	return cand
}

// ingestFacebookLead busca o detalhe do lead na Graph API e faz o upsert.
func (a *App) ingestFacebookLead(ctx context.Context, leadgenID, pageID, formID string) error {
	token, ok := a.resolveFacebookToken(ctx, pageID, formID)
	if !ok {
		// sem credencial não há o que buscar; o evento é descartado
		log.Printf("no credential for page %s form %s, skipping leadgen %s", pageID, formID, leadgenID)
		return nil
	}

	q := url.Values{}
	q.Set("access_token", token)
	q.Set("fields", "id,created_time,field_data")
	var detail fbLeadDetail
	if err := newGraphClient().getJSON(ctx, "/"+url.PathEscape(leadgenID), q, &detail); err != nil {
		return err
	}

	cand := normalizeLeadFields(detail.FieldData)
	cand.Source = "meta"
	cand.PageID = pageID
	cand.FormID = formID

	lead, err := a.upsertLeadFromExternalSource(ctx, leadgenID, cand)
	if err != nil {
		return err
	}
	log.Printf("leadgen %s ingested as lead %s", leadgenID, lead.ID)
	return nil
}
