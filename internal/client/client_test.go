package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"kidcheck/internal/apperr"
	"kidcheck/internal/envelope"
	"kidcheck/internal/roster"
)

const testKey = "client-test-key"

// sealedHandler decorates a plaintext handler with the server side of the
// envelope protocol: open the request, seal the JSON response.
func sealedHandler(t *testing.T, status int, respond func(body []byte) any) http.HandlerFunc {
	t.Helper()
	codec, err := envelope.New(testKey)
	if err != nil {
		t.Fatal(err)
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var plain []byte
		raw, _ := io.ReadAll(r.Body)
		if len(raw) > 0 {
			plain, err = codec.Open(string(raw))
			if err != nil {
				t.Errorf("request body was not a valid envelope: %v", err)
				w.WriteHeader(http.StatusBadRequest)
				return
			}
		}
		out, err := json.Marshal(respond(plain))
		if err != nil {
			t.Fatal(err)
		}
		sealed, err := codec.Seal(out)
		if err != nil {
			t.Fatal(err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, sealed)
	}
}

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	kv, err := NewFileKV(filepath.Join(t.TempDir(), "session.json"))
	if err != nil {
		t.Fatal(err)
	}
	c, err := New(url, testKey, kv)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestLoginStoresSession(t *testing.T) {
	srv := httptest.NewServer(sealedHandler(t, http.StatusOK, func(body []byte) any {
		var req map[string]string
		if err := json.Unmarshal(body, &req); err != nil {
			t.Fatalf("login body not JSON after opening: %v", err)
		}
		if req["email"] != "jane@example.com" {
			t.Errorf("email = %q", req["email"])
		}
		return LoginResult{
			Token: "tok-123",
			User:  roster.Staff{ID: "staff-1", FirstName: "Jane", Email: "jane@example.com"},
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	staff, err := c.Login(context.Background(), "jane@example.com", "pw")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if staff.ID != "staff-1" {
		t.Errorf("staff.ID = %q", staff.ID)
	}
	token, ok := c.Tokens().Token()
	if !ok || token != "tok-123" {
		t.Errorf("stored token = %q, %v", token, ok)
	}
}

func TestSessionSurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")

	kv, err := NewFileKV(path)
	if err != nil {
		t.Fatal(err)
	}
	store := NewTokenStore(kv)
	if err := store.Set("tok-abc", roster.Staff{ID: "staff-9", FirstName: "Ada"}); err != nil {
		t.Fatal(err)
	}

	// A fresh store over the same file restores both entries.
	kv2, err := NewFileKV(path)
	if err != nil {
		t.Fatal(err)
	}
	restored := NewTokenStore(kv2)
	token, ok := restored.Token()
	if !ok || token != "tok-abc" {
		t.Fatalf("restored token = %q, %v", token, ok)
	}
	staff, ok := restored.Staff()
	if !ok || staff.ID != "staff-9" {
		t.Fatalf("restored staff = %+v, %v", staff, ok)
	}

	if err := restored.Clear(); err != nil {
		t.Fatal(err)
	}
	if _, ok := restored.Token(); ok {
		t.Error("token survived Clear")
	}
	if _, ok := restored.Staff(); ok {
		t.Error("staff identity survived Clear")
	}
}

func TestBearerAttachedWhenPresent(t *testing.T) {
	var gotAuthz string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuthz = r.Header.Get("Authorization")
		sealedHandler(t, http.StatusOK, func([]byte) any {
			return []any{}
		})(w, r)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	if err := c.tokens.Set("tok-55", roster.Staff{ID: "s"}); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Records(context.Background()); err != nil {
		t.Fatalf("Records failed: %v", err)
	}
	if gotAuthz != "Bearer tok-55" {
		t.Errorf("Authorization = %q, want Bearer tok-55", gotAuthz)
	}
}

func TestHealthBypassesEncryption(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Bypass-Encryption") != "true" {
			t.Error("health probe missing bypass header")
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"status":"ok"}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	if !c.Health(context.Background()) {
		t.Error("Health = false against a healthy server")
	}
}

func TestHealthReportsDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	if c.Health(context.Background()) {
		t.Error("Health = true against a 503 server")
	}
}

func TestScanRejectsGarbageLocally(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("network call made for locally invalid payload")
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.Scan(context.Background(), `{"family":"f1"}`)
	var validation *apperr.ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("Scan error = %v, want ValidationError", err)
	}
}

func TestScanSubmitsValidPayload(t *testing.T) {
	srv := httptest.NewServer(sealedHandler(t, http.StatusOK, func(body []byte) any {
		var req map[string]string
		if err := json.Unmarshal(body, &req); err != nil {
			t.Fatal(err)
		}
		if req["qrData"] != `{"family":"f1","s":"abc"}` {
			t.Errorf("qrData = %q", req["qrData"])
		}
		return map[string]any{
			"parent":   roster.Parent{ID: "f1", FirstName: "John"},
			"children": []roster.Child{{ID: "c1", FirstName: "Emma"}},
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	res, err := c.Scan(context.Background(), `{"family":"f1","s":"abc"}`)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if res.Parent.ID != "f1" || len(res.Children) != 1 {
		t.Errorf("resolved = %+v", res)
	}
}

func TestUnauthorizedClearsSession(t *testing.T) {
	srv := httptest.NewServer(sealedHandler(t, http.StatusUnauthorized, func([]byte) any {
		return map[string]string{"error": "token revoked"}
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	if err := c.tokens.Set("stale", roster.Staff{ID: "s"}); err != nil {
		t.Fatal(err)
	}
	_, err := c.Records(context.Background())
	var authErr *apperr.AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("error = %v, want AuthError", err)
	}
	if _, ok := c.tokens.Token(); ok {
		t.Error("stale token not cleared after 401")
	}
}

func TestConflictMapped(t *testing.T) {
	srv := httptest.NewServer(sealedHandler(t, http.StatusConflict, func([]byte) any {
		return map[string]string{"error": "conflict: child emma-1: already checked in"}
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.CheckIn(context.Background(), "emma-1", "")
	var conflict *apperr.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("error = %v, want ConflictError", err)
	}
}

func TestCorruptedResponseIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		// A body the codec cannot open: simulates key desync.
		io.WriteString(w, "AAAA%%%%not-an-envelope")
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.Records(context.Background())
	var transport *apperr.TransportError
	if !errors.As(err, &transport) {
		t.Fatalf("error = %v, want TransportError", err)
	}
}
