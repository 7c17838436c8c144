package main

// Round-robin de atribuição de leads. O cursor (last_assigned_user_id) vive
// numa linha única e toda leitura-modificação-escrita acontece sob
// SELECT ... FOR UPDATE, na mesma transação que insere o lead.

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
)

type RoundRobinSettings struct {
	ID                 int       `json:"id"`
	IsActive           bool      `json:"is_active"`
	IncludedUserIDs    []int64   `json:"included_user_ids"`
	LastAssignedUserID *int64    `json:"last_assigned_user_id"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func (a *App) mountRoundRobin(r chi.Router) {
	r.Get("/round-robin", a.getRoundRobin)
	r.Put("/round-robin", a.putRoundRobin)
}

// GET /round-robin
func (a *App) getRoundRobin(w http.ResponseWriter, r *http.Request) {
	var s RoundRobinSettings
	err := a.DB.QueryRow(r.Context(),
		`SELECT id, is_active, included_user_ids, last_assigned_user_id, updated_at
		   FROM round_robin_settings WHERE id = 1`).
		Scan(&s.ID, &s.IsActive, &s.IncludedUserIDs, &s.LastAssignedUserID, &s.UpdatedAt)
	if err != nil {
		// inicializa a linha única se ainda não existir
		err = a.DB.QueryRow(r.Context(),
			`INSERT INTO round_robin_settings (id, is_active) VALUES (1, FALSE)
			 ON CONFLICT (id) DO UPDATE SET id = EXCLUDED.id
			 RETURNING id, is_active, included_user_ids, last_assigned_user_id, updated_at`).
			Scan(&s.ID, &s.IsActive, &s.IncludedUserIDs, &s.LastAssignedUserID, &s.UpdatedAt)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}
	if s.IncludedUserIDs == nil {
		s.IncludedUserIDs = []int64{}
	}
	writeJSON(w, http.StatusOK, s)
}

// PUT /round-robin
func (a *App) putRoundRobin(w http.ResponseWriter, r *http.Request) {
	var in struct {
		IsActive        bool    `json:"is_active"`
		IncludedUserIDs []int64 `json:"included_user_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return
	}
	if in.IncludedUserIDs == nil {
		in.IncludedUserIDs = []int64{}
	}

	var s RoundRobinSettings
	err := a.DB.QueryRow(r.Context(),
		`UPDATE round_robin_settings
		    SET is_active = $1, included_user_ids = $2, updated_at = NOW()
		  WHERE id = 1
		 RETURNING id, is_active, included_user_ids, last_assigned_user_id, updated_at`,
		in.IsActive, in.IncludedUserIDs).
		Scan(&s.ID, &s.IsActive, &s.IncludedUserIDs, &s.LastAssignedUserID, &s.UpdatedAt)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// pickNextUser avança o cursor sobre a lista ordenada. Cursor ausente da
// lista (usuário removido) reinicia no índice 0.
func pickNextUser(included []int64, last *int64) (int64, bool) {
	if len(included) == 0 {
		return 0, false
	}
	if last == nil {
		return included[0], true
	}
	for i, id := range included {
		if id == *last {
			if i < len(included)-1 {
				return included[i+1], true
			}
			return included[0], true
		}
	}
	return included[0], true
}

// nextAssignee devolve o usuário que deve receber o próximo lead. Deve rodar
// dentro da transação que insere o lead: a linha de settings fica travada
// até o commit, impedindo que duas criações concorrentes leiam o mesmo
// cursor. Inativo ou lista vazia cai no usuário criador.
func (a *App) nextAssignee(ctx context.Context, tx pgx.Tx, creatorID int64) (int64, error) {
	var active bool
	var included []int64
	var last *int64
	err := tx.QueryRow(ctx,
		`SELECT is_active, included_user_ids, last_assigned_user_id
		   FROM round_robin_settings WHERE id = 1 FOR UPDATE`).
		Scan(&active, &included, &last)
	if err != nil {
		if err == pgx.ErrNoRows {
			return creatorID, nil
		}
		return 0, err
	}
	if !active {
		return creatorID, nil
	}
	next, ok := pickNextUser(included, last)
	if !ok {
		return creatorID, nil
	}
	if _, err := tx.Exec(ctx,
		`UPDATE round_robin_settings
		    SET last_assigned_user_id = $1, updated_at = NOW()
		  WHERE id = 1`, next); err != nil {
		return 0, err
	}
	return next, nil
}
