//go:build e2e
// +build e2e

// Package e2e provides end-to-end tests for the chamber agent. A fake
// chamber platform is served in-process; the full agent stack (API client,
// session manager, tracker, file store) runs against it.
package e2e

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"chamber-agent/internal/api"
	"chamber-agent/internal/domain"
)

// fakePlatform is a minimal chamber platform: one account, token issuance
// with rotation, and an experiment list.
type fakePlatform struct {
	mu sync.Mutex

	username string
	password string
	user     domain.User

	accessToken  string
	refreshToken string
	tokenSerial  int

	experiments []domain.Experiment

	refreshCalls int
	listCalls    int
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		username: "agent",
		password: "secret",
		user: domain.User{
			ID:       "u-1",
			Username: "agent",
			Name:     "Chamber Agent",
			Role:     domain.RoleUser,
			IsActive: true,
		},
	}
}

func (p *fakePlatform) issueTokens() (string, string) {
	p.tokenSerial++
	p.accessToken = fmt.Sprintf("access-%d", p.tokenSerial)
	p.refreshToken = fmt.Sprintf("refresh-%d", p.tokenSerial)
	return p.accessToken, p.refreshToken
}

// expireAccessToken invalidates the current access token while keeping the
// refresh token valid, simulating server-side token expiry.
func (p *fakePlatform) expireAccessToken() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.accessToken = "expired"
}

func (p *fakePlatform) setExperiments(experiments []domain.Experiment) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.experiments = experiments
}

func writeEnvelope(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{"success": true, "data": data})
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{"success": false, "error": message})
}

func (p *fakePlatform) authorized(r *http.Request) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return r.Header.Get("Authorization") == "Bearer "+p.accessToken && p.accessToken != "expired"
}

func (p *fakePlatform) server() *httptest.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		var req api.LoginRequest
		json.NewDecoder(r.Body).Decode(&req)

		p.mu.Lock()
		defer p.mu.Unlock()
		if req.Username != p.username || req.Password != p.password {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		access, refresh := p.issueTokens()
		writeEnvelope(w, http.StatusOK, api.AuthResponse{
			User: p.user, Token: access, RefreshToken: refresh, ExpiresIn: 900,
		})
	})

	mux.HandleFunc("POST /auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)

		p.mu.Lock()
		defer p.mu.Unlock()
		p.refreshCalls++
		if body["refresh_token"] != p.refreshToken {
			writeError(w, http.StatusUnauthorized, "refresh token revoked")
			return
		}
		access, refresh := p.issueTokens()
		writeEnvelope(w, http.StatusOK, api.AuthResponse{
			User: p.user, Token: access, RefreshToken: refresh, ExpiresIn: 900,
		})
	})

	mux.HandleFunc("GET /auth/me", func(w http.ResponseWriter, r *http.Request) {
		if !p.authorized(r) {
			writeError(w, http.StatusUnauthorized, "token expired")
			return
		}
		p.mu.Lock()
		defer p.mu.Unlock()
		writeEnvelope(w, http.StatusOK, p.user)
	})

	mux.HandleFunc("POST /auth/logout", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusOK, nil)
	})

	mux.HandleFunc("GET /experiments", func(w http.ResponseWriter, r *http.Request) {
		if !p.authorized(r) {
			writeError(w, http.StatusUnauthorized, "token expired")
			return
		}
		p.mu.Lock()
		defer p.mu.Unlock()
		p.listCalls++
		writeEnvelope(w, http.StatusOK, p.experiments)
	})

	mux.HandleFunc("PATCH /experiments/", func(w http.ResponseWriter, r *http.Request) {
		if !p.authorized(r) {
			writeError(w, http.StatusUnauthorized, "token expired")
			return
		}

		id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/experiments/"), "/status")
		var body map[string]domain.ExperimentStatus
		json.NewDecoder(r.Body).Decode(&body)

		p.mu.Lock()
		defer p.mu.Unlock()
		for i := range p.experiments {
			if p.experiments[i].ID == id {
				p.experiments[i].Status = body["status"]
				p.experiments[i].UpdatedAt = time.Now()
				writeEnvelope(w, http.StatusOK, p.experiments[i])
				return
			}
		}
		writeError(w, http.StatusNotFound, "no such experiment")
	})

	return httptest.NewServer(mux)
}
