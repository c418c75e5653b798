package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"momsvpn/backend/domain"
	"momsvpn/backend/repository/sqlstore"
	"momsvpn/backend/service"
	"momsvpn/backend/service/accounts"
	"momsvpn/backend/service/device"
	"momsvpn/backend/service/panel"
	"momsvpn/backend/service/subscription"
	"momsvpn/backend/service/syncer"
)

const (
	testAdminUser = "admin"
	testAdminPass = "s3cret"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type memPanel struct {
	mu      sync.Mutex
	users   map[string]domain.PanelUser
	creates []panel.CreateUserRequest
	status  domain.ServerStatus
}

func newMemPanel() *memPanel {
	return &memPanel{users: map[string]domain.PanelUser{}}
}

func (p *memPanel) ListUsers(context.Context) ([]domain.PanelUser, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.PanelUser, 0, len(p.users))
	for _, u := range p.users {
		out = append(out, u)
	}
	return out, nil
}

func (p *memPanel) GetUser(_ context.Context, username string) (domain.PanelUser, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.users[username]
	if !ok {
		return domain.PanelUser{}, panel.ErrUserNotFound
	}
	return u, nil
}

func (p *memPanel) CreateUser(_ context.Context, req panel.CreateUserRequest) (domain.PanelUser, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.creates = append(p.creates, req)
	u := domain.PanelUser{
		UUID:            "uuid",
		Username:        domain.PanelUsername(req.TelegramID),
		Status:          domain.PanelStatusActive,
		SubscriptionURL: "https://panel/sub/TOK",
	}
	p.users[u.Username] = u
	return u, nil
}

func (p *memPanel) setStatus(username string, status domain.PanelStatus) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.users[username]
	if !ok {
		return panel.ErrUserNotFound
	}
	u.Status = status
	p.users[username] = u
	return nil
}

func (p *memPanel) EnableUser(_ context.Context, username string) error {
	return p.setStatus(username, domain.PanelStatusActive)
}

func (p *memPanel) DisableUser(_ context.Context, username string) error {
	return p.setStatus(username, domain.PanelStatusDisabled)
}

func (p *memPanel) DeleteUser(_ context.Context, username string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.users, username)
	return nil
}

func (p *memPanel) RevokeSubscription(ctx context.Context, username string) (domain.PanelUser, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.users[username]
	if !ok {
		return domain.PanelUser{}, panel.ErrUserNotFound
	}
	u.SubscriptionURL = "https://panel/sub/ROTATED"
	p.users[username] = u
	return u, nil
}

func (p *memPanel) SystemStatus(context.Context) domain.ServerStatus { return p.status }

type testEnv struct {
	router *gin.Engine
	facade *service.Facade
	panel  *memPanel
}

// newTestEnv 组装完整的路由；upstream 为 nil 时使用不可达地址
func newTestEnv(t *testing.T, upstream http.Handler, withPanel bool) *testEnv {
	t.Helper()
	upstreamURL := "http://127.0.0.1:1"
	if upstream != nil {
		srv := httptest.NewServer(upstream)
		t.Cleanup(srv.Close)
		upstreamURL = srv.URL
	}

	store, err := sqlstore.Open(sqlstore.DriverSQLite, filepath.Join(t.TempDir(), "users.db"), nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	repos := store.Repositories()

	var (
		client  panel.Client
		mem     *memPanel
		syncSvc *syncer.Syncer
	)
	accSvc := accounts.NewService(accounts.Options{Repos: repos, PublicBaseURL: "https://vpn.example"})
	if withPanel {
		mem = newMemPanel()
		client = mem
		accSvc = accounts.NewService(accounts.Options{Repos: repos, Panel: client, PublicBaseURL: "https://vpn.example"})
		syncSvc = syncer.New(accSvc, nil, client, nil, 0)
	}

	facade := service.NewFacade(
		subscription.NewService(subscription.Options{BaseURL: upstreamURL, Fallback: subscription.DefaultFallback()}),
		device.NewService(repos.Devices(), nil),
		accSvc,
		client,
		syncSvc,
	)
	t.Cleanup(facade.Close)

	hash, err := bcrypt.GenerateFromPassword([]byte(testAdminPass), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	router := NewRouter(facade, Options{AdminUsername: testAdminUser, AdminPasswordHash: hash})
	return &testEnv{router: router, facade: facade, panel: mem}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) admin(req *http.Request) *httptest.ResponseRecorder {
	req.SetBasicAuth(testAdminUser, testAdminPass)
	return e.do(req)
}
