package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/benaskins/xsession/internal/notify"
	"github.com/benaskins/xsession/internal/vault"
)

// maxBodyBytes bounds request bodies; session blobs are small.
const maxBodyBytes = 1 << 20

// Server serves the account vault over a Unix socket.
type Server struct {
	vault    *vault.Vault
	hub      *notify.Hub
	listener net.Listener
	server   *http.Server
	logger   *slog.Logger
	uid      int

	done     chan struct{}
	doneOnce sync.Once
}

// NewServer creates an API server backed by the given vault. Events
// published on hub are streamed to /v1/events clients.
func NewServer(v *vault.Vault, hub *notify.Hub) *Server {
	s := &Server{
		vault:  v,
		hub:    hub,
		logger: slog.With("component", "api"),
		uid:    os.Getuid(),
		done:   make(chan struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/accounts", s.listAccounts)
	mux.HandleFunc("POST /v1/accounts", s.addAccount)
	mux.HandleFunc("GET /v1/accounts/active", s.getActive)
	mux.HandleFunc("PUT /v1/accounts/active", s.setActive)
	mux.HandleFunc("DELETE /v1/accounts/{username}", s.removeAccount)
	mux.HandleFunc("PATCH /v1/accounts/{username}", s.updateProfile)
	mux.HandleFunc("GET /v1/accounts/{username}/credentials", s.getCredentials)
	mux.HandleFunc("POST /v1/migrate", s.migrate)
	mux.HandleFunc("GET /v1/events", s.events)
	mux.HandleFunc("GET /v1/health", s.health)

	s.server = &http.Server{
		Handler:           s.requireOwner(mux),
		ConnContext:       withPeer,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// ListenUnix starts the server on a Unix socket readable only by the
// current user. A stale socket left by a crashed server is replaced.
func (s *Server) ListenUnix(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	if err := removeStaleSocket(path); err != nil {
		return err
	}

	ln, err := net.Listen("unix", path)
	if err != nil {
		return err
	}
	if err := os.Chmod(path, 0600); err != nil {
		ln.Close()
		return err
	}
	s.listener = ln
	s.logger.Info("API listening", "socket", path)
	return s.server.Serve(ln)
}

func removeStaleSocket(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if conn, err := net.DialTimeout("unix", path, time.Second); err == nil {
		conn.Close()
		return fmt.Errorf("socket %s is in use (is xsession serve already running?)", path)
	}
	return os.Remove(path)
}

// Shutdown ends event streams and gracefully shuts down the API server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.doneOnce.Do(func() { close(s.done) })
	return s.server.Shutdown(ctx)
}

type usernameRequest struct {
	Username string `json:"username"`
}

type addRequest struct {
	Username    string `json:"username"`
	Token       string `json:"token,omitempty"`
	SessionData string `json:"session_data,omitempty"`
}

// ActiveResponse is the body of GET /v1/accounts/active.
type ActiveResponse struct {
	Username string `json:"username,omitempty"`
	Active   bool   `json:"active"`
}

func (s *Server) listAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.vault.List()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, accounts)
}

func (s *Server) getActive(w http.ResponseWriter, r *http.Request) {
	name, ok, err := s.vault.Active()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ActiveResponse{Username: name, Active: ok})
}

func (s *Server) setActive(w http.ResponseWriter, r *http.Request) {
	var req usernameRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.vault.SetActive(req.Username); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ActiveResponse{Username: req.Username, Active: true})
}

func (s *Server) addAccount(w http.ResponseWriter, r *http.Request) {
	var req addRequest
	if !decodeBody(w, r, &req) {
		return
	}
	id, err := s.vault.Add(req.Username, vault.Secret{Token: req.Token, SessionData: req.SessionData})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"uuid": id})
}

func (s *Server) removeAccount(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("username")
	if err := s.vault.Remove(name); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

func (s *Server) updateProfile(w http.ResponseWriter, r *http.Request) {
	var p vault.Profile
	if !decodeBody(w, r, &p) {
		return
	}
	if err := s.vault.UpdateProfile(r.PathValue("username"), p); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (s *Server) getCredentials(w http.ResponseWriter, r *http.Request) {
	rec, err := s.vault.Credentials(r.PathValue("username"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) migrate(w http.ResponseWriter, r *http.Request) {
	m, err := s.vault.MigrateLegacy()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// HealthResponse reports that the bridge is serving and how many event
// streams are attached.
type HealthResponse struct {
	Status      string `json:"status"`
	Subscribers int    `json:"subscribers"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Subscribers: s.hub.Subscribers()})
}

// StatusFor maps a vault error to an HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, vault.ErrAccountNotFound), errors.Is(err, vault.ErrNoCredentials):
		return http.StatusNotFound
	case errors.Is(err, vault.ErrInvalidUsername):
		return http.StatusBadRequest
	case errors.Is(err, vault.ErrRecordTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, vault.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	if status >= 500 {
		s.logger.Error("request failed", "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body: " + err.Error()})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
