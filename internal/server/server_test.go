package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"

	"taskdeck/internal/app"
	"taskdeck/internal/audit"
	"taskdeck/internal/config"
	"taskdeck/internal/db"
	"taskdeck/internal/domain"
	"taskdeck/internal/migrate"
	"taskdeck/internal/registry"
	"taskdeck/internal/repo"
)

type testServer struct {
	URL    string
	client *http.Client
	users  map[string]domain.User
	repo   repo.Repo
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	cfg := config.Default()
	cfg.Auth.JWTSecret = "test-secret"
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	r := repo.Repo{DB: conn}
	seeded, err := app.Seed(context.Background(), r, cfg)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	users := map[string]domain.User{}
	for _, u := range seeded {
		users[u.Role] = u
	}
	reg := registry.New(r, r, audit.NewRecorder(r))
	handler, err := New(Config{
		Registry: reg,
		Repo:     r,
		BasePath: "/v0",
		Auth: AuthConfig{
			JWTSecret:    cfg.Auth.JWTSecret,
			TokenTTL:     cfg.TokenTTL(),
			AllowAPIKeys: cfg.Auth.AllowAPIKeys,
		},
		AuditListLimit: cfg.Audit.ListLimit,
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		users:  users,
		repo:   r,
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func login(t *testing.T, srv *testServer, email string) string {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/auth/login", map[string]any{
		"email":    email,
		"password": "Passw0rd!",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("login %s: %d %s", email, res.StatusCode, string(data))
	}
	var out LoginResponse
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal login: %v", err)
	}
	return out.Token
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func TestLoginAndMe(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	token := login(t, srv, "owner@example.com")
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/me", nil, bearer(token))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me: %d %s", res.StatusCode, string(data))
	}
	var me UserResponse
	if err := json.Unmarshal(data, &me); err != nil {
		t.Fatalf("unmarshal me: %v", err)
	}
	if me.Role != "owner" || me.Email != "owner@example.com" {
		t.Fatalf("unexpected principal: %+v", me)
	}
}

func TestLoginBadPassword(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/auth/login", map[string]any{
		"email":    "owner@example.com",
		"password": "wrong",
	}, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d %s", res.StatusCode, string(data))
	}
}

func TestUnauthenticatedRejected(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, _ := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/tasks", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.StatusCode)
	}
}

func TestTaskLifecycle(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	token := login(t, srv, "admin@example.com")

	var ids []string
	for i, title := range []string{"First", "Second", "Third"} {
		res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks", map[string]any{
			"title": title,
		}, bearer(token))
		if res.StatusCode != http.StatusCreated {
			t.Fatalf("create %q: %d %s", title, res.StatusCode, string(data))
		}
		var created TaskResponse
		if err := json.Unmarshal(data, &created); err != nil {
			t.Fatalf("unmarshal task: %v", err)
		}
		if created.Position != i {
			t.Fatalf("expected position %d, got %d", i, created.Position)
		}
		if created.Category != "General" {
			t.Fatalf("expected default category General, got %q", created.Category)
		}
		ids = append(ids, created.ID)
	}

	status := "in-progress"
	res, data := doJSON(t, client, http.MethodPatch, srv.URL+"/v0/tasks/"+ids[0], map[string]any{
		"status": status,
	}, bearer(token))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("update: %d %s", res.StatusCode, string(data))
	}
	var updated TaskResponse
	if err := json.Unmarshal(data, &updated); err != nil {
		t.Fatalf("unmarshal updated: %v", err)
	}
	if updated.Status != status {
		t.Fatalf("expected status %s, got %s", status, updated.Status)
	}
	if updated.Position != 0 {
		t.Fatalf("expected tail position 0 in empty column, got %d", updated.Position)
	}

	delRes, delBody := doJSON(t, client, http.MethodDelete, srv.URL+"/v0/tasks/"+ids[2], nil, bearer(token))
	if delRes.StatusCode != http.StatusNoContent {
		t.Fatalf("delete: %d %s", delRes.StatusCode, string(delBody))
	}

	listRes, listBody := doJSON(t, client, http.MethodGet, srv.URL+"/v0/tasks", nil, bearer(token))
	if listRes.StatusCode != http.StatusOK {
		t.Fatalf("list: %d %s", listRes.StatusCode, string(listBody))
	}
	var items []TaskResponse
	if err := json.Unmarshal(listBody, &items); err != nil {
		t.Fatalf("unmarshal list: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(items))
	}
	// todo before in-progress in display order; here Second (todo) then First.
	if items[0].ID != ids[1] || items[1].ID != ids[0] {
		t.Fatalf("unexpected display order: %+v", items)
	}
}

func TestViewerCannotCreate(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	token := login(t, srv, "viewer@example.com")
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/tasks", map[string]any{
		"title": "Nope",
	}, bearer(token))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d %s", res.StatusCode, string(data))
	}
}

func TestViewerListsOnlyOwnTasks(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	adminToken := login(t, srv, "admin@example.com")
	viewer := srv.users["viewer"]

	for _, req := range []map[string]any{
		{"title": "Admin task"},
		{"title": "Viewer task", "owner_id": viewer.ID},
	} {
		res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks", req, bearer(adminToken))
		if res.StatusCode != http.StatusCreated {
			t.Fatalf("create: %d %s", res.StatusCode, string(data))
		}
	}

	viewerToken := login(t, srv, "viewer@example.com")
	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/tasks", nil, bearer(viewerToken))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("viewer list: %d %s", res.StatusCode, string(data))
	}
	var items []TaskResponse
	if err := json.Unmarshal(data, &items); err != nil {
		t.Fatalf("unmarshal list: %v", err)
	}
	if len(items) != 1 || items[0].Title != "Viewer task" {
		t.Fatalf("expected only the viewer's task, got %+v", items)
	}

	adminRes, adminBody := doJSON(t, client, http.MethodGet, srv.URL+"/v0/tasks", nil, bearer(adminToken))
	if adminRes.StatusCode != http.StatusOK {
		t.Fatalf("admin list: %d %s", adminRes.StatusCode, string(adminBody))
	}
	var adminItems []TaskResponse
	_ = json.Unmarshal(adminBody, &adminItems)
	if len(adminItems) != 2 {
		t.Fatalf("expected admin to see both tasks, got %d", len(adminItems))
	}
}

func TestReorderAndAuditTrail(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	token := login(t, srv, "admin@example.com")

	var ids []string
	for _, title := range []string{"A", "B", "C"} {
		res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks", map[string]any{
			"title": title,
		}, bearer(token))
		if res.StatusCode != http.StatusCreated {
			t.Fatalf("create %q: %d %s", title, res.StatusCode, string(data))
		}
		var created TaskResponse
		_ = json.Unmarshal(data, &created)
		ids = append(ids, created.ID)
	}

	order := []string{ids[2], ids[0], ids[1]}
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks/reorder", map[string]any{
		"status": "todo",
		"order":  order,
	}, bearer(token))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("reorder: %d %s", res.StatusCode, string(data))
	}
	var items []TaskResponse
	if err := json.Unmarshal(data, &items); err != nil {
		t.Fatalf("unmarshal reorder: %v", err)
	}
	for i, id := range order {
		if items[i].ID != id || items[i].Position != i {
			t.Fatalf("expected %s at position %d, got %+v", id, i, items[i])
		}
	}

	auditRes, auditBody := doJSON(t, client, http.MethodGet, srv.URL+"/v0/audit-log", nil, bearer(token))
	if auditRes.StatusCode != http.StatusOK {
		t.Fatalf("audit list: %d %s", auditRes.StatusCode, string(auditBody))
	}
	var entries []AuditEntryResponse
	if err := json.Unmarshal(auditBody, &entries); err != nil {
		t.Fatalf("unmarshal audit: %v", err)
	}
	reorders := 0
	for _, e := range entries {
		if e.Action == "TASK_REORDER" {
			reorders++
			if e.Decision != "ALLOW" {
				t.Fatalf("expected ALLOW reorder entry, got %s", e.Decision)
			}
		}
	}
	if reorders != 1 {
		t.Fatalf("expected exactly one reorder entry, got %d", reorders)
	}

	viewerToken := login(t, srv, "viewer@example.com")
	forbRes, forbBody := doJSON(t, client, http.MethodGet, srv.URL+"/v0/audit-log", nil, bearer(viewerToken))
	if forbRes.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for viewer audit read, got %d %s", forbRes.StatusCode, string(forbBody))
	}
}

func TestReorderUnknownTask(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	token := login(t, srv, "admin@example.com")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks", map[string]any{
		"title": "Only",
	}, bearer(token))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create: %d %s", res.StatusCode, string(data))
	}
	var created TaskResponse
	_ = json.Unmarshal(data, &created)

	reorderRes, reorderBody := doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks/reorder", map[string]any{
		"status": "todo",
		"order":  []string{created.ID, "missing-id"},
	}, bearer(token))
	if reorderRes.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d %s", reorderRes.StatusCode, string(reorderBody))
	}

	// The surviving task must be untouched.
	listRes, listBody := doJSON(t, client, http.MethodGet, srv.URL+"/v0/tasks", nil, bearer(token))
	if listRes.StatusCode != http.StatusOK {
		t.Fatalf("list: %d %s", listRes.StatusCode, string(listBody))
	}
	var items []TaskResponse
	_ = json.Unmarshal(listBody, &items)
	if len(items) != 1 || items[0].Position != 0 {
		t.Fatalf("expected untouched task at position 0, got %+v", items)
	}
}

func TestAPIKeyAuth(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	admin := srv.users["admin"]

	// API keys are issued out of band; insert one directly.
	key := domain.APIKey{
		ID:        "key-1",
		UserID:    admin.ID,
		Name:      "ci",
		KeyHash:   repo.HashSecret("s3cret"),
		CreatedAt: "2026-01-01T00:00:00Z",
	}
	if err := srv.repo.InsertAPIKey(context.Background(), key); err != nil {
		t.Fatalf("insert api key: %v", err)
	}

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/tasks", nil, map[string]string{"X-Api-Key": "s3cret"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("api key list: %d %s", res.StatusCode, string(data))
	}

	badRes, _ := doJSON(t, client, http.MethodGet, srv.URL+"/v0/tasks", nil, map[string]string{"X-Api-Key": "wrong"})
	if badRes.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad key, got %d", badRes.StatusCode)
	}
}
