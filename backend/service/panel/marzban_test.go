package panel

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

type fakeMarzban struct {
	mu       sync.Mutex
	logins   atomic.Int32
	tokenSeq atomic.Int32
	valid    string
	users    map[string]map[string]any
	created  []map[string]any
	statuses map[string]string
}

func newFakeMarzban() *fakeMarzban {
	return &fakeMarzban{users: map[string]map[string]any{}, statuses: map[string]string{}}
}

func (f *fakeMarzban) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/admin/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil || r.PostForm.Get("username") != "admin" || r.PostForm.Get("password") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		f.logins.Add(1)
		token := "tok-" + string(rune('a'+f.tokenSeq.Add(1)))
		f.mu.Lock()
		f.valid = token
		f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]string{"access_token": token, "token_type": "bearer"})
	})

	authed := func(h http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			f.mu.Lock()
			ok := r.Header.Get("Authorization") == "Bearer "+f.valid
			f.mu.Unlock()
			if !ok {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			h(w, r)
		}
	}

	mux.HandleFunc("/api/users", authed(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		list := []map[string]any{}
		for _, u := range f.users {
			list = append(list, u)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"users": list, "total": len(list)})
	}))
	mux.HandleFunc("/api/user", authed(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		_ = json.NewDecoder(r.Body).Decode(&payload)
		f.mu.Lock()
		defer f.mu.Unlock()
		f.created = append(f.created, payload)
		user := map[string]any{
			"username":         payload["username"],
			"status":           "active",
			"data_limit":       payload["data_limit"],
			"used_traffic":     0,
			"subscription_url": "/sub/abc",
		}
		f.users[payload["username"].(string)] = user
		_ = json.NewEncoder(w).Encode(user)
	}))
	mux.HandleFunc("/api/user/", authed(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		rest := strings.TrimPrefix(r.URL.Path, "/api/user/")
		name := strings.TrimSuffix(rest, "/revoke_sub")
		user, ok := f.users[name]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"detail":"User not found"}`))
			return
		}
		switch {
		case r.Method == http.MethodGet:
			_ = json.NewEncoder(w).Encode(user)
		case r.Method == http.MethodPut:
			var payload map[string]string
			_ = json.NewDecoder(r.Body).Decode(&payload)
			f.statuses[name] = payload["status"]
			user["status"] = payload["status"]
			_ = json.NewEncoder(w).Encode(user)
		case r.Method == http.MethodDelete:
			delete(f.users, name)
			_, _ = w.Write([]byte(`{}`))
		case r.Method == http.MethodPost && strings.HasSuffix(rest, "/revoke_sub"):
			user["subscription_url"] = "/sub/rotated"
			_ = json.NewEncoder(w).Encode(user)
		}
	}))
	mux.HandleFunc("/api/system", authed(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"online_users":3,"cpu_usage":20.5,"mem_used":1000,"mem_total":3000}`))
	}))
	return mux
}

func newTestMarzban(t *testing.T, f *fakeMarzban) *Marzban {
	t.Helper()
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	return NewMarzban(srv.URL, "admin", "secret", srv.Client(), nil)
}

func TestMarzban_CreateUserPayload(t *testing.T) {
	t.Parallel()

	f := newFakeMarzban()
	m := newTestMarzban(t, f)

	u, err := m.CreateUser(context.Background(), CreateUserRequest{TelegramID: 77, Username: "anna"})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if u.Username != "user_77" || u.TelegramID == nil || *u.TelegramID != 77 {
		t.Fatalf("unexpected user %+v", u)
	}
	p := f.created[0]
	if p["note"] != "TG ID: 77 (anna)" || p["status"] != "active" || p["expire"] != float64(0) {
		t.Fatalf("unexpected payload %v", p)
	}
	if p["data_limit"] != float64(300<<30) {
		t.Fatalf("expected 300 GiB data limit, got %v", p["data_limit"])
	}
	inbounds := p["inbounds"].(map[string]any)
	if len(inbounds["vless"].([]any)) != 3 || inbounds["trojan"].([]any)[0] != "TROJAN_WS_TLS" {
		t.Fatalf("unexpected inbounds %v", inbounds)
	}

	// 已存在时不重复创建
	if _, err := m.CreateUser(context.Background(), CreateUserRequest{TelegramID: 77}); err != nil {
		t.Fatalf("second create: %v", err)
	}
	if len(f.created) != 1 {
		t.Fatalf("expected single create call, got %d", len(f.created))
	}
	if got := f.logins.Load(); got != 1 {
		t.Fatalf("expected one login, got %d", got)
	}
}

func TestMarzban_ReauthenticatesOn401(t *testing.T) {
	t.Parallel()

	f := newFakeMarzban()
	f.users["user_1"] = map[string]any{"username": "user_1", "status": "active"}
	m := newTestMarzban(t, f)
	ctx := context.Background()

	if _, err := m.GetUser(ctx, "user_1"); err != nil {
		t.Fatalf("get user: %v", err)
	}
	// 服务端轮换 token，缓存中的 token 失效
	f.mu.Lock()
	f.valid = "rotated"
	f.mu.Unlock()

	if _, err := m.GetUser(ctx, "user_1"); err != nil {
		t.Fatalf("get user after rotation: %v", err)
	}
	if got := f.logins.Load(); got != 2 {
		t.Fatalf("expected re-login, got %d logins", got)
	}
}

func TestMarzban_UserLifecycle(t *testing.T) {
	t.Parallel()

	f := newFakeMarzban()
	f.users["user_1"] = map[string]any{"username": "user_1", "status": "active", "subscription_url": "/sub/x"}
	m := newTestMarzban(t, f)
	ctx := context.Background()

	if _, err := m.GetUser(ctx, "user_2"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if err := m.DisableUser(ctx, "user_1"); err != nil {
		t.Fatalf("disable: %v", err)
	}
	if f.statuses["user_1"] != "disabled" {
		t.Fatalf("expected disabled, got %q", f.statuses["user_1"])
	}
	if err := m.EnableUser(ctx, "user_2"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound for missing user, got %v", err)
	}

	u, err := m.RevokeSubscription(ctx, "user_1")
	if err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if u.SubscriptionURL != "/sub/rotated" {
		t.Fatalf("unexpected url %q", u.SubscriptionURL)
	}

	users, err := m.ListUsers(ctx)
	if err != nil || len(users) != 1 {
		t.Fatalf("expected one user, got %d (%v)", len(users), err)
	}

	if err := m.DeleteUser(ctx, "user_1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := m.DeleteUser(ctx, "user_1"); err != nil {
		t.Fatalf("expected deleting missing user to succeed, got %v", err)
	}
}

func TestMarzban_SystemStatus(t *testing.T) {
	t.Parallel()

	m := newTestMarzban(t, newFakeMarzban())
	st := m.SystemStatus(context.Background())
	if !st.Online || st.OnlineUsers != 3 || st.CPUUsage != 20.5 {
		t.Fatalf("unexpected status %+v", st)
	}
	if st.MemUsage != 33.3 {
		t.Fatalf("expected 33.3%% memory, got %v", st.MemUsage)
	}
}

func TestMarzban_BadCredentials(t *testing.T) {
	t.Parallel()

	f := newFakeMarzban()
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	m := NewMarzban(srv.URL, "admin", "wrong", srv.Client(), nil)

	_, err := m.ListUsers(context.Background())
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 StatusError, got %v", err)
	}
}
