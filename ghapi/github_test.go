package ghapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRegistrationToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/orgs/acme/actions/runners/registration-token" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer fake-pat" {
			t.Fatalf("Authorization header = %q", got)
		}
		if got := r.Header.Get("X-GitHub-Api-Version"); got != "2022-11-28" {
			t.Fatalf("X-GitHub-Api-Version = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"token":      "AABBCC",
			"expires_at": "2026-01-01T00:00:00Z",
		})
	}))
	defer srv.Close()

	c := New("acme", "fake-pat")
	c.BaseURL = srv.URL

	token, err := c.RegistrationToken(context.Background())
	if err != nil {
		t.Fatalf("RegistrationToken: %v", err)
	}
	if token != "AABBCC" {
		t.Fatalf("token = %q, want %q", token, "AABBCC")
	}
}

func TestRemoveToken(t *testing.T) {
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := New("acme", "fake-pat")
	c.BaseURL = srv.URL

	if err := c.RemoveToken(context.Background(), "default-1-ab12"); err != nil {
		t.Fatalf("RemoveToken: %v", err)
	}
	if gotBody["runner_name"] != "default-1-ab12" {
		t.Fatalf("runner_name = %q", gotBody["runner_name"])
	}
}
