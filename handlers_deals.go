package main

// Deals: CRUD simples referenciando leads. Fora do núcleo de ingestão.

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type Deal struct {
	ID                int64      `json:"id"`
	LeadID            uuid.UUID  `json:"lead_id"`
	LeadName          *string    `json:"lead_name,omitempty"`
	Stage             string     `json:"stage"`
	Value             *float64   `json:"value"`
	Probability       *int       `json:"probability"`
	ExpectedCloseDate *time.Time `json:"expected_close_date"`
	AssignedTo        *int64     `json:"assigned_to"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

func (a *App) mountDeals(r chi.Router) {
	r.Get("/deals", a.listDeals)
	r.Post("/deals", a.createDeal)
	r.Get("/deals/{id}", a.getDeal)
	r.Put("/deals/{id}", a.updateDeal)
	r.Delete("/deals/{id}", a.deleteDeal)
}

const dealCols = `d.id, d.lead_id, l.name, d.stage, d.value, d.probability,
	d.expected_close_date, d.assigned_to, d.created_at, d.updated_at`

func scanDeal(row rowScanner) (*Deal, error) {
	var d Deal
	err := row.Scan(&d.ID, &d.LeadID, &d.LeadName, &d.Stage, &d.Value,
		&d.Probability, &d.ExpectedCloseDate, &d.AssignedTo, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// GET /deals
func (a *App) listDeals(w http.ResponseWriter, r *http.Request) {
	rows, err := a.DB.Query(r.Context(),
		`SELECT `+dealCols+`
		   FROM deals d LEFT JOIN leads l ON l.id = d.lead_id
		  ORDER BY d.created_at DESC`)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer rows.Close()
	out := []Deal{}
	for rows.Next() {
		d, err := scanDeal(rows)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		out = append(out, *d)
	}
	writeJSON(w, http.StatusOK, out)
}

// GET /deals/{id}
func (a *App) getDeal(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid deal id", http.StatusBadRequest)
		return
	}
	d, err := scanDeal(a.DB.QueryRow(r.Context(),
		`SELECT `+dealCols+`
		   FROM deals d LEFT JOIN leads l ON l.id = d.lead_id
		  WHERE d.id = $1`, id))
	if err != nil {
		http.Error(w, "deal not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

type dealInput struct {
	LeadID            *uuid.UUID `json:"lead_id"`
	Stage             *string    `json:"stage"`
	Value             *float64   `json:"value"`
	Probability       *int       `json:"probability"`
	ExpectedCloseDate *string    `json:"expected_close_date"`
}

// POST /deals
func (a *App) createDeal(w http.ResponseWriter, r *http.Request) {
	var in dealInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return
	}
	if in.LeadID == nil {
		http.Error(w, "lead_id is required", http.StatusBadRequest)
		return
	}
	stage := "prospecting"
	if in.Stage != nil && *in.Stage != "" {
		stage = *in.Stage
	}

	var id int64
	var created, updated time.Time
	err := a.DB.QueryRow(r.Context(),
		`INSERT INTO deals (lead_id, stage, value, probability, expected_close_date, assigned_to)
		 VALUES ($1,$2,$3,$4,$5,NULLIF($6,0))
		 RETURNING id, created_at, updated_at`,
		in.LeadID, stage, in.Value, in.Probability, in.ExpectedCloseDate, currentUserID(r)).
		Scan(&id, &created, &updated)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	d, err := scanDeal(a.DB.QueryRow(r.Context(),
		`SELECT `+dealCols+`
		   FROM deals d LEFT JOIN leads l ON l.id = d.lead_id
		  WHERE d.id = $1`, id))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

// buildDealUpdate monta o UPDATE parcial: só os campos presentes no corpo
// entram no SET. Devolve query e args prontos, com o id como último
// placeholder.
func buildDealUpdate(in dealInput, id int64) (string, []any) {
	query := `UPDATE deals SET updated_at = NOW()`
	args := []any{}
	idx := 1
	if in.Stage != nil {
		query += fmt.Sprintf(", stage = $%d", idx)
		args = append(args, *in.Stage)
		idx++
	}
	if in.Value != nil {
		query += fmt.Sprintf(", value = $%d", idx)
		args = append(args, *in.Value)
		idx++
	}
	if in.Probability != nil {
		query += fmt.Sprintf(", probability = $%d", idx)
		args = append(args, *in.Probability)
		idx++
	}
	if in.ExpectedCloseDate != nil {
		query += fmt.Sprintf(", expected_close_date = $%d", idx)
		args = append(args, *in.ExpectedCloseDate)
		idx++
	}
	query += fmt.Sprintf(" WHERE id = $%d RETURNING id", idx)
	args = append(args, id)
	return query, args
}

// PUT /deals/{id}
func (a *App) updateDeal(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid deal id", http.StatusBadRequest)
		return
	}
	var in dealInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return
	}

	query, args := buildDealUpdate(in, id)
	var updatedID int64
	if err := a.DB.QueryRow(r.Context(), query, args...).Scan(&updatedID); err != nil {
		http.Error(w, "deal not found", http.StatusNotFound)
		return
	}
	d, err := scanDeal(a.DB.QueryRow(r.Context(),
		`SELECT `+dealCols+`
		   FROM deals d LEFT JOIN leads l ON l.id = d.lead_id
		  WHERE d.id = $1`, updatedID))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// DELETE /deals/{id}
func (a *App) deleteDeal(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid deal id", http.StatusBadRequest)
		return
	}
	tag, err := a.DB.Exec(r.Context(), `DELETE FROM deals WHERE id = $1`, id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if tag.RowsAffected() == 0 {
		http.Error(w, "deal not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "deal deleted"})
}
