package authapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

// Handler serves l over HTTP with the backend's routes and error envelope.
func (l *Local) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+DefaultBasePath+"/login", func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		tok, err := l.Login(r.Context(), req.Email, req.Password)
		respond(w, tok, err)
	})
	mux.HandleFunc("POST "+DefaultBasePath+"/register", func(w http.ResponseWriter, r *http.Request) {
		var req registerRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		p, err := l.Register(r.Context(), req.Name, req.Email, req.Password)
		respond(w, p, err)
	})
	mux.HandleFunc("GET "+DefaultBasePath+"/me", func(w http.ResponseWriter, r *http.Request) {
		bearer, ok := bearerToken(r)
		if !ok {
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeDetail(w, http.StatusUnauthorized, "Not authenticated")
			return
		}
		p, err := l.CurrentUser(r.Context(), bearer)
		respond(w, p, err)
	})
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		respond(w, health{Status: "ok"}, nil)
	})
	return mux
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, tok, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(tok) == "" {
		return "", false
	}
	return strings.TrimSpace(tok), true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid request body")
		return false
	}
	return true
}

func respond(w http.ResponseWriter, body interface{}, err error) {
	if err != nil {
		var apiErr *Error
		if errors.As(err, &apiErr) {
			if apiErr.Status == http.StatusUnauthorized {
				w.Header().Set("WWW-Authenticate", "Bearer")
			}
			writeDetail(w, apiErr.Status, apiErr.Detail)
			return
		}
		writeDetail(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"detail": detail})
}
