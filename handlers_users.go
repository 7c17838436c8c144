package main

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
)

type User struct {
	ID                 int64     `json:"id"`
	Email              string    `json:"email"`
	FullName           string    `json:"full_name"`
	Role               string    `json:"role"`
	Phone              *string   `json:"phone,omitempty"`
	ProfilePicture     *string   `json:"profile_picture,omitempty"`
	WhatsAppInstanceID *string   `json:"whatsapp_instance_id,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
}

func (a *App) mountUsers(r chi.Router) {
	r.Get("/users", a.listUsers)
	r.Get("/users/profile", a.getProfile)
	r.Put("/users/profile", a.updateProfile)
}

// GET /users — lista enxuta para os seletores de atribuição no front.
func (a *App) listUsers(w http.ResponseWriter, r *http.Request) {
	rows, err := a.DB.Query(r.Context(),
		`SELECT id, email, full_name, role, profile_picture, created_at
		   FROM users ORDER BY full_name ASC`)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer rows.Close()
	out := []User{}
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Email, &u.FullName, &u.Role, &u.ProfilePicture, &u.CreatedAt); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		out = append(out, u)
	}
	writeJSON(w, http.StatusOK, out)
}

// GET /users/profile
func (a *App) getProfile(w http.ResponseWriter, r *http.Request) {
	var u User
	err := a.DB.QueryRow(r.Context(),
		`SELECT id, email, full_name, role, phone, profile_picture, whatsapp_instance_id, created_at
		   FROM users WHERE id = $1`, currentUserID(r)).
		Scan(&u.ID, &u.Email, &u.FullName, &u.Role, &u.Phone, &u.ProfilePicture,
			&u.WhatsAppInstanceID, &u.CreatedAt)
	if err != nil {
		http.Error(w, "user not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// PUT /users/profile
func (a *App) updateProfile(w http.ResponseWriter, r *http.Request) {
	var in struct {
		FullName string `json:"full_name"`
		Phone    string `json:"phone"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return
	}
	in.FullName = strings.TrimSpace(in.FullName)
	if in.FullName == "" {
		http.Error(w, "full_name is required", http.StatusBadRequest)
		return
	}

	var u User
	err := a.DB.QueryRow(r.Context(),
		`UPDATE users SET full_name = $1, phone = NULLIF($2,''), updated_at = NOW()
		  WHERE id = $3
		 RETURNING id, email, full_name, role, phone, profile_picture, whatsapp_instance_id, created_at`,
		in.FullName, strings.TrimSpace(in.Phone), currentUserID(r)).
		Scan(&u.ID, &u.Email, &u.FullName, &u.Role, &u.Phone, &u.ProfilePicture,
			&u.WhatsAppInstanceID, &u.CreatedAt)
	if err != nil {
		http.Error(w, "user not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, u)
}
