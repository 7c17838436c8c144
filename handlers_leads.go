package main

// Leads: CRUD da API interna + repositório usado pela ingestão de webhooks.
// phone_digits guarda o telefone normalizado (só dígitos) em toda escrita,
// para que a resolução por número seja comparação exata e não LIKE.

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type Lead struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	Email      *string   `json:"email"`
	Phone      *string   `json:"phone"`
	Source     string    `json:"source"`
	Status     string    `json:"status"`
	ExternalID *string   `json:"external_id"`
	AssignedTo *int64    `json:"assigned_to"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

const leadCols = `id, name, email, phone, source, status, external_id, assigned_to, created_at, updated_at`

type rowScanner interface{ Scan(dest ...any) error }

func scanLead(row rowScanner) (*Lead, error) {
	var l Lead
	err := row.Scan(&l.ID, &l.Name, &l.Email, &l.Phone, &l.Source, &l.Status,
		&l.ExternalID, &l.AssignedTo, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (a *App) mountLeads(r chi.Router) {
	r.Get("/leads", a.listLeads)
	r.Post("/leads", a.createLead)
	r.Get("/leads/{id}", a.getLead)
	r.Put("/leads/{id}", a.updateLead)
	r.Delete("/leads/{id}", a.deleteLead)
}

// GET /leads
func (a *App) listLeads(w http.ResponseWriter, r *http.Request) {
	rows, err := a.DB.Query(r.Context(),
		`SELECT `+leadCols+` FROM leads ORDER BY created_at DESC`)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer rows.Close()
	out := []Lead{}
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		out = append(out, *l)
	}
	writeJSON(w, http.StatusOK, out)
}

// GET /leads/{id}
func (a *App) getLead(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid lead id", http.StatusBadRequest)
		return
	}
	l, err := scanLead(a.DB.QueryRow(r.Context(),
		`SELECT `+leadCols+` FROM leads WHERE id = $1`, id))
	if err != nil {
		http.Error(w, "lead not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

type leadInput struct {
	Name   string `json:"name"`
	Email  string `json:"email"`
	Phone  string `json:"phone"`
	Source string `json:"source"`
	Status string `json:"status"`
}

// POST /leads
// A escolha do responsável (round-robin ou o próprio criador) roda na mesma
// transação do INSERT; ver nextAssignee.
func (a *App) createLead(w http.ResponseWriter, r *http.Request) {
	var in leadInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return
	}
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}
	if in.Source == "" {
		in.Source = "manual"
	}
	if in.Status == "" {
		in.Status = "new"
	}

	ctx := r.Context()
	tx, err := a.DB.Begin(ctx)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer tx.Rollback(ctx)

	assignee, err := a.nextAssignee(ctx, tx, currentUserID(r))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	l, err := scanLead(tx.QueryRow(ctx,
		`INSERT INTO leads (id, name, email, phone, phone_digits, source, status, assigned_to)
		 VALUES ($1,$2,$3,$4,NULLIF($5,''),$6,$7,NULLIF($8,0))
		 RETURNING `+leadCols,
		uuid.New(), in.Name, nilIfEmpty(in.Email), nilIfEmpty(in.Phone),
		onlyDigits(in.Phone), in.Source, in.Status, assignee))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if err := tx.Commit(ctx); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, l)
}

// PUT /leads/{id}
func (a *App) updateLead(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid lead id", http.StatusBadRequest)
		return
	}
	var in leadInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return
	}
	l, err := scanLead(a.DB.QueryRow(r.Context(),
		`UPDATE leads
		    SET name = $1, email = $2, phone = $3, phone_digits = NULLIF($4,''),
		        source = $5, status = $6, updated_at = NOW()
		  WHERE id = $7
		 RETURNING `+leadCols,
		in.Name, nilIfEmpty(in.Email), nilIfEmpty(in.Phone), onlyDigits(in.Phone),
		in.Source, in.Status, id))
	if err != nil {
		http.Error(w, "lead not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

// DELETE /leads/{id}
func (a *App) deleteLead(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid lead id", http.StatusBadRequest)
		return
	}
	tag, err := a.DB.Exec(r.Context(), `DELETE FROM leads WHERE id = $1`, id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if tag.RowsAffected() == 0 {
		http.Error(w, "lead not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "lead deleted"})
}

// ---------------------------------------------------------------
// Repositório usado pela ingestão
// ---------------------------------------------------------------

func (a *App) findLeadByExternalID(ctx context.Context, externalID string) (*Lead, error) {
	l, err := scanLead(a.DB.QueryRow(ctx,
		`SELECT `+leadCols+` FROM leads WHERE external_id = $1`, externalID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return l, nil
}

// findLeadIDByPhone resolve um lead pelo número normalizado. Primeiro
// igualdade exata; depois os últimos 10 dígitos, para tolerar presença ou
// ausência de código de país entre o gateway e o cadastro.
func (a *App) findLeadIDByPhone(ctx context.Context, digits string) (*uuid.UUID, error) {
	if digits == "" {
		return nil, nil
	}
	var id uuid.UUID
	err := a.DB.QueryRow(ctx,
		`SELECT id FROM leads WHERE phone_digits = $1 LIMIT 1`, digits).Scan(&id)
	if err == nil {
		return &id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if len(digits) <= 10 {
		return nil, nil
	}
	tail := digits[len(digits)-10:]
	err = a.DB.QueryRow(ctx,
		`SELECT id FROM leads WHERE RIGHT(phone_digits, 10) = $1 LIMIT 1`, tail).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &id, nil
}

// findLeadByEmail devolve o lead mais antigo com o email dado e ainda sem
// external_id — o alvo do merge entre canais. Sem correspondência devolve
// nil, nil. q aceita tanto o pool quanto uma transação.
func findLeadByEmail(ctx context.Context, q querier, email string) (*Lead, error) {
	if strings.TrimSpace(email) == "" {
		return nil, nil
	}
	l, err := scanLead(q.QueryRow(ctx,
		`SELECT `+leadCols+` FROM leads
		  WHERE LOWER(email) = LOWER($1) AND external_id IS NULL
		  ORDER BY created_at LIMIT 1`, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return l, nil
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// leadCandidate são os campos normalizados vindos do provedor.
type leadCandidate struct {
	Name      string
	Email     string
	Phone     string
	Source    string
	PageID    string
	FormID    string
	RawFields map[string]string
}

type upsertAction int

const (
	upsertNoop upsertAction = iota
	upsertAttach
	upsertInsert
)

// planLeadUpsert decide o caminho da ingestão a partir do que já existe no
// banco: external_id conhecido é entrega repetida (no-op); email do
// candidato já cadastrado sem external_id recebe o anexo; o resto vira lead
// novo.
func planLeadUpsert(existsByExternalID bool, cand leadCandidate, existsByEmail bool) upsertAction {
	if existsByExternalID {
		return upsertNoop
	}
	if cand.Email != "" && existsByEmail {
		return upsertAttach
	}
	return upsertInsert
}

// upsertLeadFromExternalSource é o caminho idempotente da ingestão:
//  1. external_id já conhecido -> devolve o lead existente (entrega duplicada);
//  2. email já cadastrado sem external_id -> anexa o external_id àquele lead;
//  3. caso contrário insere um lead novo com status "new".
//
// A constraint UNIQUE de external_id é o backstop: se duas entregas
// concorrentes passarem pelo passo 1 ao mesmo tempo, o segundo INSERT cai em
// 23505 e é rebaixado a uma releitura, nunca a erro.
func (a *App) upsertLeadFromExternalSource(ctx context.Context, externalID string, cand leadCandidate) (*Lead, error) {
	if externalID == "" {
		return nil, errors.New("external id required")
	}

	tx, err := a.DB.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	existing, err := scanLead(tx.QueryRow(ctx,
		`SELECT `+leadCols+` FROM leads WHERE external_id = $1`, externalID))
	existsByExternal := err == nil
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	emailMatch, err := findLeadByEmail(ctx, tx, cand.Email)
	if err != nil {
		return nil, err
	}

	switch planLeadUpsert(existsByExternal, cand, emailMatch != nil) {
	case upsertNoop:
		// entrega repetida
		_ = tx.Commit(ctx)
		return existing, nil

	case upsertAttach:
		// merge entre canais pelo email
		l, err := scanLead(tx.QueryRow(ctx,
			`UPDATE leads
			    SET external_id = $1, updated_at = NOW(),
			        phone = COALESCE(phone, NULLIF($2,'')),
			        phone_digits = COALESCE(phone_digits, NULLIF($3,''))
			  WHERE id = $4
			 RETURNING `+leadCols,
			externalID, cand.Phone, onlyDigits(cand.Phone), emailMatch.ID))
		if err != nil {
			if isUniqueViolation(err) {
				// outra entrega anexou o mesmo external_id primeiro
				_ = tx.Rollback(ctx)
				return a.findLeadByExternalID(ctx, externalID)
			}
			return nil, err
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, err
		}
		return l, nil
	}

	// lead novo; atribuição segue o round-robin quando ativo
	assignee, err := a.nextAssignee(ctx, tx, 0)
	if err != nil {
		return nil, err
	}
	raw, _ := json.Marshal(cand.RawFields)
	l, err := scanLead(tx.QueryRow(ctx,
		`INSERT INTO leads (id, name, email, phone, phone_digits, source, status,
		                    external_id, page_id, form_id, raw_fields, assigned_to)
		 VALUES ($1,$2,$3,$4,NULLIF($5,''),$6,'new',$7,NULLIF($8,''),NULLIF($9,''),$10,NULLIF($11,0))
		 RETURNING `+leadCols,
		uuid.New(), cand.Name, nilIfEmpty(cand.Email), nilIfEmpty(cand.Phone),
		onlyDigits(cand.Phone), cand.Source, externalID, cand.PageID, cand.FormID,
		raw, assignee))
	if err != nil {
		if isUniqueViolation(err) {
			// corrida entre duas entregas do mesmo evento
			_ = tx.Rollback(ctx)
			return a.findLeadByExternalID(ctx, externalID)
		}
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return l, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
