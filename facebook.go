package main

// Integração Facebook: consentimento OAuth, troca de código por token,
// listagem de ativos (páginas, contas de anúncio) e formulários de Lead Ads,
// e o cadastro de conexões página/formulário usados pela ingestão de
// webhooks.

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
)

const graphVersion = "v19.0"

// graphClient encapsula as chamadas à Graph API.
type graphClient struct {
	base string
	http *http.Client
}

func newGraphClient() *graphClient {
	base := strings.TrimRight(getenv("FACEBOOK_GRAPH_BASE", "https://graph.facebook.com"), "/")
	return &graphClient{
		base: base + "/" + graphVersion,
		http: &http.Client{Timeout: 20 * time.Second},
	}
}

// getJSON faz GET autenticado por access_token na querystring; respostas
// de erro da Graph API viram error com o corpo incluído.
func (c *graphClient) getJSON(ctx context.Context, path string, q url.Values, vout any) error {
	u := c.base + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("graph %s: http %d: %s", path, resp.StatusCode, string(b))
	}
	if vout != nil {
		return json.NewDecoder(resp.Body).Decode(vout)
	}
	return nil
}

// Rotas abertas: o popup de OAuth não carrega JWT, e assets/forms
// autenticam pelo access token do Facebook no header Authorization.
func (a *App) mountFacebook(r chi.Router) {
	r.Get("/facebook", a.facebookAuthRedirect)
	r.Get("/facebook/callback", a.facebookAuthCallback)
	r.Get("/facebook/assets", a.facebookAssets)
	r.Get("/facebook/forms/{pageID}", a.facebookForms)
}

// O CRUD de conexões grava credenciais; fica atrás do requireAuth.
func (a *App) mountFacebookConnections(r chi.Router) {
	r.Post("/facebook/connections", a.createFacebookConnection)
	r.Get("/facebook/connections", a.listFacebookConnections)
	r.Delete("/facebook/connections/{id}", a.deleteFacebookConnection)
}

var facebookScopes = []string{
	"leads_retrieval",
	"pages_show_list",
	"pages_read_engagement",
	"pages_manage_metadata",
	"ads_management",
	"ads_read",
	"business_management",
}

// GET /facebook — redireciona para a tela de consentimento.
func (a *App) facebookAuthRedirect(w http.ResponseWriter, r *http.Request) {
	appID := os.Getenv("FACEBOOK_APP_ID")
	redirectURI := os.Getenv("FACEBOOK_REDIRECT_URI")
	if appID == "" || redirectURI == "" {
		http.Error(w, "facebook app id or redirect uri not configured", http.StatusInternalServerError)
		return
	}
	q := url.Values{}
	q.Set("client_id", appID)
	q.Set("redirect_uri", redirectURI)
	q.Set("scope", strings.Join(facebookScopes, ","))
	q.Set("response_type", "code")
	http.Redirect(w, r,
		"https://www.facebook.com/"+graphVersion+"/dialog/oauth?"+q.Encode(),
		http.StatusFound)
}

// O callback roda num popup: devolve um HTML mínimo que entrega o token à
// janela que o abriu via postMessage e se fecha.
var callbackTmpl = template.Must(template.New("cb").Parse(`<html>
<head><title>Authentication</title></head>
<body>
<script>
if (window.opener) {
  window.opener.postMessage({ type: 'facebook-token', token: {{.Token}} }, {{.Origin}});
  setTimeout(function () { window.close(); }, 1000);
} else {
  document.body.innerHTML = 'Authentication successful. You can close this window.';
}
</script>
<p>Authentication successful. Please wait...</p>
</body>
</html>`))

// GET /facebook/callback — troca o code por um access token.
func (a *App) facebookAuthCallback(w http.ResponseWriter, r *http.Request) {
	if e := r.URL.Query().Get("error"); e != "" {
		http.Error(w, "facebook error: "+e, http.StatusBadRequest)
		return
	}
	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "no authorization code provided", http.StatusBadRequest)
		return
	}

	c := newGraphClient()
	q := url.Values{}
	q.Set("client_id", os.Getenv("FACEBOOK_APP_ID"))
	q.Set("client_secret", os.Getenv("FACEBOOK_APP_SECRET"))
	q.Set("redirect_uri", os.Getenv("FACEBOOK_REDIRECT_URI"))
	q.Set("code", code)

	var out struct {
		AccessToken string `json:"access_token"`
	}
	if err := c.getJSON(r.Context(), "/oauth/access_token", q, &out); err != nil {
		http.Error(w, "token exchange failed: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cross-Origin-Opener-Policy", "unsafe-none")
	_ = callbackTmpl.Execute(w, map[string]string{
		"Token":  out.AccessToken,
		"Origin": getenv("FRONTEND_ORIGIN", "*"),
	})
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

type graphList struct {
	Data []map[string]any `json:"data"`
}

// GET /facebook/assets — negócios, contas de anúncio e páginas do usuário.
// Permissões opcionais que falharem viram lista vazia, não erro.
func (a *App) facebookAssets(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		http.Error(w, "no access token provided", http.StatusUnauthorized)
		return
	}
	c := newGraphClient()
	ctx := r.Context()

	fetch := func(path, fields string) []map[string]any {
		q := url.Values{}
		q.Set("access_token", token)
		if fields != "" {
			q.Set("fields", fields)
		}
		var out graphList
		if err := c.getJSON(ctx, path, q, &out); err != nil {
			return []map[string]any{}
		}
		return out.Data
	}

	businesses := fetch("/me/businesses", "")
	adAccounts := fetch("/me/adaccounts", "id,name,account_id")

	q := url.Values{}
	q.Set("access_token", token)
	q.Set("fields", "id,name,access_token,picture")
	var pages graphList
	if err := c.getJSON(ctx, "/me/accounts", q, &pages); err != nil {
		http.Error(w, "failed to fetch assets: "+err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"businesses": businesses,
		"adAccounts": adAccounts,
		"pages":      pages.Data,
	})
}

// GET /facebook/forms/{pageID} — formulários de Lead Ads da página.
// Falha vira lista vazia para o fluxo de conexão poder continuar.
func (a *App) facebookForms(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		http.Error(w, "no access token provided", http.StatusUnauthorized)
		return
	}
	pageID := chi.URLParam(r, "pageID")

	q := url.Values{}
	q.Set("access_token", token)
	q.Set("fields", "id,name,status,leads_count,created_time")
	var out graphList
	if err := newGraphClient().getJSON(r.Context(), "/"+url.PathEscape(pageID)+"/leadgen_forms", q, &out); err != nil {
		writeJSON(w, http.StatusOK, []map[string]any{})
		return
	}
	if out.Data == nil {
		out.Data = []map[string]any{}
	}
	writeJSON(w, http.StatusOK, out.Data)
}

type FacebookConnection struct {
	ID             int64     `json:"id"`
	Name           *string   `json:"name"`
	BusinessID     *string   `json:"business_id"`
	BusinessName   *string   `json:"business_name"`
	AdAccountID    *string   `json:"ad_account_id"`
	AdAccountName  *string   `json:"ad_account_name"`
	PageID         string    `json:"page_id"`
	PageName       *string   `json:"page_name"`
	PagePictureURL *string   `json:"page_picture_url"`
	FormID         *string   `json:"form_id"`
	FormName       *string   `json:"form_name"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
}

const fbConnCols = `id, name, business_id, business_name, ad_account_id, ad_account_name,
	page_id, page_name, page_picture_url, form_id, form_name, status, created_at`

func scanFacebookConnection(row rowScanner) (*FacebookConnection, error) {
	var c FacebookConnection
	err := row.Scan(&c.ID, &c.Name, &c.BusinessID, &c.BusinessName, &c.AdAccountID,
		&c.AdAccountName, &c.PageID, &c.PageName, &c.PagePictureURL, &c.FormID,
		&c.FormName, &c.Status, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// POST /facebook/connections — salva a credencial por página/formulário.
// O access_token nunca volta na resposta.
func (a *App) createFacebookConnection(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Name           string `json:"name"`
		AccessToken    string `json:"accessToken"`
		BusinessID     string `json:"businessId"`
		BusinessName   string `json:"businessName"`
		AdAccountID    string `json:"adAccountId"`
		AdAccountName  string `json:"adAccountName"`
		PageID         string `json:"pageId"`
		PageName       string `json:"pageName"`
		PagePictureURL string `json:"pagePictureUrl"`
		FormID         string `json:"formId"`
		FormName       string `json:"formName"`
		UserID         int64  `json:"userId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(in.AccessToken) == "" || strings.TrimSpace(in.PageID) == "" {
		http.Error(w, "accessToken and pageId are required", http.StatusBadRequest)
		return
	}

	c, err := scanFacebookConnection(a.DB.QueryRow(r.Context(),
		`INSERT INTO facebook_connections (
			user_id, name, access_token, business_id, business_name,
			ad_account_id, ad_account_name, page_id, page_name, page_picture_url,
			form_id, form_name, status
		 ) VALUES (NULLIF($1,0),$2,$3,NULLIF($4,''),NULLIF($5,''),NULLIF($6,''),NULLIF($7,''),
			$8,NULLIF($9,''),NULLIF($10,''),NULLIF($11,''),NULLIF($12,''),'active')
		 RETURNING `+fbConnCols,
		in.UserID, nilIfEmpty(in.Name), in.AccessToken, in.BusinessID, in.BusinessName,
		in.AdAccountID, in.AdAccountName, in.PageID, in.PageName, in.PagePictureURL,
		in.FormID, in.FormName))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// GET /facebook/connections
func (a *App) listFacebookConnections(w http.ResponseWriter, r *http.Request) {
	rows, err := a.DB.Query(r.Context(),
		`SELECT `+fbConnCols+` FROM facebook_connections ORDER BY created_at DESC`)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer rows.Close()
	out := []FacebookConnection{}
	for rows.Next() {
		c, err := scanFacebookConnection(rows)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		out = append(out, *c)
	}
	writeJSON(w, http.StatusOK, out)
}

// DELETE /facebook/connections/{id}
func (a *App) deleteFacebookConnection(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid connection id", http.StatusBadRequest)
		return
	}
	if _, err := a.DB.Exec(r.Context(),
		`DELETE FROM facebook_connections WHERE id = $1`, id); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
