package suite

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"finvault/internal/http/handlers"
	"finvault/internal/lib/jwt"
	"finvault/internal/services/auth"
	"finvault/internal/services/portfolio"
	"finvault/internal/storage/sqlite"
)

const (
	accessSecret  = "test-access-secret"
	refreshSecret = "test-refresh-secret"
)

type Suite struct {
	*testing.T
	Server  *httptest.Server
	Storage *sqlite.Storage
	Codec   *jwt.Codec
}

// New starts the full HTTP stack against a fresh sqlite file. Every suite
// gets its own database and server, so tests run in parallel.
func New(t *testing.T) *Suite {
	t.Helper()
	t.Parallel()

	storage, err := sqlite.New(filepath.Join(t.TempDir(), "finvault.db"))
	if err != nil {
		t.Fatalf("failed to open storage: %v", err)
	}

	schema, err := os.ReadFile("../migrations/000001_init.up.sql")
	if err != nil {
		t.Fatalf("failed to read schema: %v", err)
	}
	if _, err := storage.DB().Exec(string(schema)); err != nil {
		t.Fatalf("failed to apply schema: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	codec := jwt.NewCodec(accessSecret, refreshSecret, 15*time.Minute, 720*time.Hour)

	authService := auth.New(logger, storage, storage, storage, codec)
	relay := portfolio.New(logger, storage)

	router := handlers.NewRouter(
		logger,
		codec,
		handlers.NewAuthHandler(logger, authService),
		handlers.NewPortfolioHandler(logger, relay),
	)

	server := httptest.NewServer(router)

	t.Cleanup(func() {
		server.Close()
		_ = storage.Close()
	})

	return &Suite{
		T:       t,
		Server:  server,
		Storage: storage,
		Codec:   codec,
	}
}

// Do sends a JSON request and decodes the JSON response body into a map.
// An empty token leaves the Authorization header off entirely.
func (s *Suite) Do(method, path, token string, body any) (int, map[string]any) {
	s.Helper()

	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			s.Fatalf("failed to marshal request body: %v", err)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, s.Server.URL+path, reqBody)
	if err != nil {
		s.Fatalf("failed to build request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.Server.Client().Do(req)
	if err != nil {
		s.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	var decoded map[string]any
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		s.Fatalf("failed to read response body: %v", err)
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &decoded); err != nil {
			s.Fatalf("response is not JSON: %v (body: %s)", err, raw)
		}
	}

	return resp.StatusCode, decoded
}

// RegisterUser registers a random-ish user and returns the token pair.
func (s *Suite) RegisterUser(name, email, password string) (accessToken, refreshToken string) {
	s.Helper()

	status, body := s.Do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"name":     name,
		"email":    email,
		"password": password,
	})
	if status != http.StatusCreated {
		s.Fatalf("register returned %d: %v", status, body)
	}

	return body["accessToken"].(string), body["refreshToken"].(string)
}
