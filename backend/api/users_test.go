package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"momsvpn/backend/domain"
)

func TestGETRoot(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil, false)
	rec := env.do(httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" || body["service"] != "VPN SaaS Core API" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestUsers_CreateGetSubscription(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil, true)

	req := httptest.NewRequest(http.MethodPost, "/users/", strings.NewReader(`{"telegram_id":42,"username":"@anna","full_name":"Anna"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := env.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var created domain.User
	_ = json.Unmarshal(rec.Body.Bytes(), &created)
	if created.TelegramID != 42 || created.Username != "anna" {
		t.Fatalf("unexpected user %+v", created)
	}
	if len(env.panel.creates) != 1 {
		t.Fatalf("expected panel account created, got %d", len(env.panel.creates))
	}

	rec = env.do(httptest.NewRequest(http.MethodGet, "/users/42", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = env.do(httptest.NewRequest(http.MethodGet, "/users/42/subscription", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var info domain.SubscriptionInfo
	_ = json.Unmarshal(rec.Body.Bytes(), &info)
	if info.SubscriptionURL != "https://vpn.example/sub/TOK" {
		t.Fatalf("unexpected subscription url %q", info.SubscriptionURL)
	}
}

func TestUsers_Errors(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil, false)

	cases := []struct {
		method, path, body string
		want               int
	}{
		{http.MethodGet, "/users/404", "", http.StatusNotFound},
		{http.MethodGet, "/users/abc", "", http.StatusBadRequest},
		{http.MethodPost, "/users/", `{"username":"x"}`, http.StatusBadRequest},
		{http.MethodPost, "/users/", `not json`, http.StatusBadRequest},
		{http.MethodGet, "/users/1/subscription", "", http.StatusInternalServerError},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(tc.method, tc.path, strings.NewReader(tc.body))
		req.Header.Set("Content-Type", "application/json")
		rec := env.do(req)
		if rec.Code != tc.want {
			t.Fatalf("%s %s: expected %d, got %d: %s", tc.method, tc.path, tc.want, rec.Code, rec.Body.String())
		}
	}
}

func TestGETServerStatus(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil, true)
	env.panel.status = domain.ServerStatus{Online: true, OnlineUsers: 3, CPUUsage: 1.5, MemUsage: 20}

	rec := env.do(httptest.NewRequest(http.MethodGet, "/server/status", nil))
	var st domain.ServerStatus
	_ = json.Unmarshal(rec.Body.Bytes(), &st)
	if !st.Online || st.OnlineUsers != 3 {
		t.Fatalf("unexpected status %+v", st)
	}
}
