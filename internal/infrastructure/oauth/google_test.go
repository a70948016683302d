package oauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func newFakeGoogle(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.Form.Get("code") != "good-code" || r.Form.Get("client_id") != "cid" {
			http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "tok",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"sub":   "g-123",
			"email": "ann@campus.edu",
			"name":  "Ann",
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestProvider(srv *httptest.Server) *GoogleProvider {
	return NewGoogleProvider(Config{
		ClientID:     "cid",
		ClientSecret: "secret",
		RedirectURL:  "http://localhost/callback",
		AuthURL:      srv.URL + "/auth",
		TokenURL:     srv.URL + "/token",
		UserInfoURL:  srv.URL + "/userinfo",
	})
}

func TestIdentify(t *testing.T) {
	p := newTestProvider(newFakeGoogle(t))

	id, err := p.Identify(context.Background(), "good-code")
	if err != nil {
		t.Fatalf("identify: %v", err)
	}
	if id.Subject != "g-123" || id.Email != "ann@campus.edu" || id.Name != "Ann" || id.Provider != "google" {
		t.Fatalf("unexpected identity %+v", id)
	}
}

func TestIdentifyRejectsBadCode(t *testing.T) {
	p := newTestProvider(newFakeGoogle(t))
	if _, err := p.Identify(context.Background(), "bad-code"); err == nil {
		t.Fatalf("expected exchange error")
	}
}

func TestAuthCodeURL(t *testing.T) {
	p := newTestProvider(newFakeGoogle(t))
	raw := p.AuthCodeURL("xyz")
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	q := u.Query()
	if q.Get("state") != "xyz" || q.Get("client_id") != "cid" || !strings.Contains(q.Get("scope"), "email") {
		t.Fatalf("unexpected auth url %s", raw)
	}
}
