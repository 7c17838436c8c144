package main

// Auth: registro, login, login Google e perfil com JWT + bcrypt.
// Tokens carregam user_id/role; rotas de aplicação passam por requireAuth.

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth/v5"
	"github.com/lestrrat-go/jwx/v2/jwk"
	jwxjwt "github.com/lestrrat-go/jwx/v2/jwt"
	"golang.org/x/crypto/bcrypt"
)

// signer/verifier global
var tokenAuth *jwtauth.JWTAuth

func init() {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		secret = "secret"
	}
	tokenAuth = jwtauth.New("HS256", []byte(secret), nil)
}

type ctxKey string

const (
	ctxUserID ctxKey = "user_id"
	ctxRole   ctxKey = "role"
)

// rotas
func (a *App) mountAuth(r chi.Router) {
	r.Post("/auth/register", a.register)
	r.Post("/auth/login", a.login)
	r.Post("/auth/google", a.googleLogin)
	r.Get("/auth/me", a.me)
}

// requireAuth valida o Bearer token e injeta user_id/role no contexto.
func (a *App) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uid, role, err := extractUserFromToken(r)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), ctxUserID, uid)
		ctx = context.WithValue(ctx, ctxRole, role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// currentUserID lê o id do usuário autenticado do contexto.
func currentUserID(r *http.Request) int64 {
	if v, ok := r.Context().Value(ctxUserID).(int64); ok {
		return v
	}
	return 0
}

// POST /auth/register
func (a *App) register(w http.ResponseWriter, r *http.Request) {
	var in struct {
		FullName string `json:"fullName"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return
	}
	in.Email = strings.TrimSpace(strings.ToLower(in.Email))
	in.FullName = strings.TrimSpace(in.FullName)
	if in.Email == "" || in.Password == "" || in.FullName == "" {
		http.Error(w, "fullName, email and password are required", http.StatusBadRequest)
		return
	}

	// já existe?
	var exists bool
	if err := a.DB.QueryRow(r.Context(),
		`SELECT EXISTS(SELECT 1 FROM users WHERE LOWER(email)=LOWER($1))`, in.Email).Scan(&exists); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if exists {
		http.Error(w, "user already exists", http.StatusConflict)
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var userID int64
	var role string
	if err := a.DB.QueryRow(r.Context(),
		`INSERT INTO users(email, password_hash, full_name, role)
		 VALUES($1,$2,$3,'agent') RETURNING id, role`,
		in.Email, string(hashed), in.FullName).Scan(&userID, &role); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	token, err := generateToken(userID, role)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"token": token,
		"user":  map[string]any{"id": userID, "email": in.Email, "full_name": in.FullName, "role": role},
	})
}

// POST /auth/login
func (a *App) login(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return
	}
	in.Email = strings.TrimSpace(strings.ToLower(in.Email))
	if in.Email == "" || in.Password == "" {
		http.Error(w, "email and password required", http.StatusBadRequest)
		return
	}

	var userID int64
	var hashed, fullName, role string
	if err := a.DB.QueryRow(r.Context(),
		`SELECT id, password_hash, full_name, role FROM users WHERE LOWER(email)=LOWER($1)`,
		in.Email).Scan(&userID, &hashed, &fullName, &role); err != nil {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(hashed), []byte(in.Password)) != nil {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	token, err := generateToken(userID, role)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token": token,
		"user":  map[string]any{"id": userID, "email": in.Email, "full_name": fullName, "role": role},
	})
}

const googleJWKSURL = "https://www.googleapis.com/oauth2/v3/certs"

// POST /auth/google
// Valida o ID token do Google contra o JWKS público e cria o usuário na
// primeira entrada (senha aleatória, nunca usada para login por senha).
func (a *App) googleLogin(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || strings.TrimSpace(in.Token) == "" {
		http.Error(w, "token required", http.StatusBadRequest)
		return
	}

	email, name, err := verifyGoogleIDToken(r.Context(), in.Token)
	if err != nil {
		http.Error(w, "invalid google token", http.StatusUnauthorized)
		return
	}

	var userID int64
	var fullName, role string
	err = a.DB.QueryRow(r.Context(),
		`SELECT id, full_name, role FROM users WHERE LOWER(email)=LOWER($1)`, email).
		Scan(&userID, &fullName, &role)
	if err != nil {
		// primeiro login: cria a conta
		hashed, herr := bcrypt.GenerateFromPassword([]byte(randomPassword()), bcrypt.DefaultCost)
		if herr != nil {
			http.Error(w, herr.Error(), http.StatusInternalServerError)
			return
		}
		if err := a.DB.QueryRow(r.Context(),
			`INSERT INTO users(email, password_hash, full_name, role)
			 VALUES($1,$2,$3,'agent') RETURNING id, full_name, role`,
			email, string(hashed), name).Scan(&userID, &fullName, &role); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}

	token, err := generateToken(userID, role)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token": token,
		"user":  map[string]any{"id": userID, "email": email, "full_name": fullName, "role": role},
	})
}

// verifyGoogleIDToken confere assinatura, emissor e audiência do ID token.
func verifyGoogleIDToken(ctx context.Context, raw string) (email, name string, err error) {
	set, err := jwk.Fetch(ctx, googleJWKSURL)
	if err != nil {
		return "", "", err
	}
	opts := []jwxjwt.ParseOption{
		jwxjwt.WithKeySet(set),
		jwxjwt.WithValidate(true),
	}
	if aud := strings.TrimSpace(os.Getenv("GOOGLE_CLIENT_ID")); aud != "" {
		opts = append(opts, jwxjwt.WithAudience(aud))
	}
	tok, err := jwxjwt.Parse([]byte(raw), opts...)
	if err != nil {
		return "", "", err
	}
	iss := tok.Issuer()
	if iss != "https://accounts.google.com" && iss != "accounts.google.com" {
		return "", "", errors.New("unexpected issuer")
	}
	if v, ok := tok.Get("email"); ok {
		email, _ = v.(string)
	}
	if v, ok := tok.Get("name"); ok {
		name, _ = v.(string)
	}
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return "", "", errors.New("token has no email claim")
	}
	if name == "" {
		name = email
	}
	return email, name, nil
}

// GET /auth/me
func (a *App) me(w http.ResponseWriter, r *http.Request) {
	uid, role, err := extractUserFromToken(r)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}
	var email, fullName string
	if err := a.DB.QueryRow(r.Context(),
		`SELECT email, full_name FROM users WHERE id=$1`, uid).Scan(&email, &fullName); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id": uid, "email": email, "full_name": fullName, "role": role,
	})
}

// gera JWT
func generateToken(userID int64, role string) (string, error) {
	claims := map[string]any{
		"user_id": userID,
		"role":    role,
		"exp":     time.Now().Add(24 * time.Hour).Unix(),
		"iat":     time.Now().Unix(),
	}
	_, tokenString, err := tokenAuth.Encode(claims)
	return tokenString, err
}

// extrai claims do Authorization: Bearer <token>
func extractUserFromToken(r *http.Request) (int64, string, error) {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return 0, "", errors.New("no authorization header")
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return 0, "", errors.New("invalid authorization header")
	}
	raw := parts[1]

	tok, err := tokenAuth.Decode(raw)
	if err != nil || tok == nil {
		return 0, "", errors.New("invalid token")
	}
	if err := jwxjwt.Validate(tok); err != nil {
		return 0, "", errors.New("expired or invalid token")
	}

	uid := toInt64(getClaim(tok, "user_id"))
	role, _ := getClaim(tok, "role").(string)
	if uid == 0 {
		return 0, "", errors.New("missing claims")
	}
	return uid, role, nil
}

func getClaim(tok jwxjwt.Token, key string) any {
	v, _ := tok.Get(key)
	return v
}

// conversão genérica p/ int64
func toInt64(v any) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int32:
		return int64(t)
	case int:
		return int64(t)
	case float64:
		return int64(t)
	case float32:
		return int64(t)
	default:
		return 0
	}
}

func randomPassword() string {
	b := make([]byte, 24)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
