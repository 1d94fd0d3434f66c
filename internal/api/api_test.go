package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MJE43/idleforge/internal/bignum"
	"github.com/MJE43/idleforge/internal/config"
	"github.com/MJE43/idleforge/internal/export"
	"github.com/MJE43/idleforge/internal/store"
)

const testToken = "s3cret"

func newTestServer(t *testing.T, token string, withDB bool) *Server {
	t.Helper()
	opts := Options{
		Token:       token,
		Logger:      log.New(io.Discard, "", 0),
		AuditOutput: io.Discard,
	}
	if withDB {
		db, err := store.NewSQLiteDB(filepath.Join(t.TempDir(), "api.db"))
		if err != nil {
			t.Fatalf("NewSQLiteDB failed: %v", err)
		}
		if err := db.Migrate(); err != nil {
			t.Fatalf("Migrate failed: %v", err)
		}
		t.Cleanup(func() { db.Close() })
		opts.DB = db
	}
	s, err := NewServer(opts)
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+testToken)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

// seed installs a one-resource, one-generator blueprint in the editor.
func seed(t *testing.T, h http.Handler) {
	t.Helper()
	steps := []struct{ path, body string }{
		{"/api/v1/resources", `{"id":"gold","name":"Gold","initialAmount":10}`},
		{"/api/v1/generators", `{"id":"farm","name":"Farm","outputResource":"gold","baseProduction":1,"baseCosts":[{"resourceId":"gold","amount":10}]}`},
	}
	for _, st := range steps {
		if rec := do(t, h, http.MethodPost, st.path, st.body); rec.Code != http.StatusCreated {
			t.Fatalf("POST %s = %d: %s", st.path, rec.Code, rec.Body.String())
		}
	}
}

func TestNewFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Token = testToken
	cfg.AuthDisabled = true
	cfg.RedisAddr = "127.0.0.1:1"

	s, err := NewFromConfig(cfg, nil)
	if err != nil {
		t.Fatalf("NewFromConfig failed: %v", err)
	}
	defer s.Close()
	if s.token != "" {
		t.Error("token kept although auth is disabled")
	}
	if s.timeout != cfg.RequestTimeout() || s.autosave != cfg.Autosave() {
		t.Errorf("durations not applied: %v %v", s.timeout, s.autosave)
	}
}

func TestHealthEndpoints(t *testing.T) {
	h := newTestServer(t, "", false).Routes()

	rec := do(t, h, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("/health = %d", rec.Code)
	}
	var health HealthCheckResponse
	decode(t, rec, &health)
	if health.Status != HealthStatusDegraded {
		t.Errorf("status without storage = %s, want degraded", health.Status)
	}
	for _, name := range []string{"database", "editor", "exporter", "sessions"} {
		if _, ok := health.Checks[name]; !ok {
			t.Errorf("missing %s check", name)
		}
	}

	for _, path := range []string{"/health/live", "/health/ready", "/version"} {
		if rec := do(t, h, http.MethodGet, path, ""); rec.Code != http.StatusOK {
			t.Errorf("%s = %d", path, rec.Code)
		}
	}

	rec = do(t, h, http.MethodGet, "/nowhere", "")
	if rec.Code != http.StatusNotFound || rec.Header().Get("X-Error-Type") != ErrTypeNotFound {
		t.Errorf("unknown route = %d %s", rec.Code, rec.Header().Get("X-Error-Type"))
	}
}

func TestEditorErrors(t *testing.T) {
	h := newTestServer(t, "", false).Routes()
	seed(t, h)

	tests := []struct {
		name    string
		method  string
		path    string
		body    string
		status  int
		errType string
	}{
		{"duplicate resource", http.MethodPost, "/api/v1/resources", `{"id":"gold","name":"Again"}`, http.StatusConflict, ErrTypeDuplicateID},
		{"blank id", http.MethodPost, "/api/v1/resources", `{"id":" "}`, http.StatusBadRequest, ErrTypeInvalidID},
		{"unknown output", http.MethodPost, "/api/v1/generators", `{"id":"mine","outputResource":"ore"}`, http.StatusUnprocessableEntity, ErrTypeUnknownReference},
		{"resource in use", http.MethodDelete, "/api/v1/resources/gold", "", http.StatusConflict, ErrTypeInUse},
		{"missing generator", http.MethodDelete, "/api/v1/generators/ghost", "", http.StatusNotFound, ErrTypeNotFound},
		{"bad upgrade type", http.MethodPost, "/api/v1/upgrades", `{"id":"u","type":"weird"}`, http.StatusBadRequest, ErrTypeInvalidValue},
		{"malformed body", http.MethodPost, "/api/v1/tiers", `{`, http.StatusBadRequest, ErrTypeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, tt.method, tt.path, tt.body)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.status, rec.Body.String())
			}
			var apiErr APIError
			decode(t, rec, &apiErr)
			if apiErr.Type != tt.errType {
				t.Errorf("type = %s, want %s", apiErr.Type, tt.errType)
			}
		})
	}
}

func TestEditorWorkflow(t *testing.T) {
	h := newTestServer(t, "", false).Routes()
	seed(t, h)

	rec := do(t, h, http.MethodPut, "/api/v1/generators/farm", `{"id":"ignored","name":"Big Farm","outputResource":"gold","baseProduction":5}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("update = %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"name":"Big Farm"`) {
		t.Error("path id did not win over body id")
	}

	if rec := do(t, h, http.MethodPost, "/api/v1/tiers", `{"id":"t1","name":"Tier 1"}`); rec.Code != http.StatusCreated {
		t.Fatalf("add tier = %d", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/api/v1/tiers/t1/items", `{"kind":"generators","itemId":"farm"}`); rec.Code != http.StatusCreated && rec.Code != http.StatusOK {
		t.Fatalf("add tier item = %d: %s", rec.Code, rec.Body.String())
	}
	if rec := do(t, h, http.MethodDelete, "/api/v1/tiers/t1/items/generators/farm", ""); rec.Code != http.StatusOK {
		t.Fatalf("remove tier item = %d: %s", rec.Code, rec.Body.String())
	}

	if rec := do(t, h, http.MethodPut, "/api/v1/blueprint/title", `{"title":"Gold Rush"}`); rec.Code != http.StatusOK {
		t.Fatalf("set title = %d", rec.Code)
	}
	rec = do(t, h, http.MethodGet, "/api/v1/resources/names", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"Gold"`) {
		t.Errorf("resource names = %d %s", rec.Code, rec.Body.String())
	}

	// Round-trip the whole document through PUT.
	doc := do(t, h, http.MethodGet, "/api/v1/blueprint", "").Body.String()
	if rec := do(t, h, http.MethodDelete, "/api/v1/blueprint", ""); rec.Code != http.StatusOK {
		t.Fatalf("reset = %d", rec.Code)
	}
	if rec := do(t, h, http.MethodPut, "/api/v1/blueprint", doc); rec.Code != http.StatusOK {
		t.Fatalf("load = %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(do(t, h, http.MethodGet, "/api/v1/blueprint", "").Body.String(), `"gameTitle":"Gold Rush"`) {
		t.Error("loaded blueprint lost its title")
	}

	if rec := do(t, h, http.MethodGet, "/api/v1/blueprint/schema", ""); rec.Code != http.StatusOK {
		t.Errorf("schema = %d", rec.Code)
	}
}

func TestBearerAuth(t *testing.T) {
	h := newTestServer(t, testToken, false).Routes()

	tests := []struct {
		name   string
		method string
		auth   string
		status int
	}{
		{"read without token", http.MethodGet, "", http.StatusOK},
		{"write without token", http.MethodPost, "", http.StatusUnauthorized},
		{"write with wrong token", http.MethodPost, "Bearer nope", http.StatusUnauthorized},
		{"write with wrong scheme", http.MethodPost, "Basic " + testToken, http.StatusUnauthorized},
		{"write with token", http.MethodPost, "Bearer " + testToken, http.StatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body io.Reader
			path := "/api/v1/blueprint"
			if tt.method == http.MethodPost {
				path = "/api/v1/resources"
				body = strings.NewReader(`{"id":"r_` + strings.ReplaceAll(tt.name, " ", "_") + `","name":"R"}`)
			}
			req := httptest.NewRequest(tt.method, path, body)
			if tt.auth != "" {
				req.Header.Set("Authorization", tt.auth)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.status, rec.Body.String())
			}
			if tt.status == http.StatusUnauthorized && rec.Header().Get("WWW-Authenticate") == "" {
				t.Error("missing WWW-Authenticate header")
			}
		})
	}
}

func TestFormulaEndpoints(t *testing.T) {
	h := newTestServer(t, "", false).Routes()
	seed(t, h)

	rec := do(t, h, http.MethodPost, "/api/v1/formula/evaluate", `{
		"formula": {"steps": [
			{"type": "constant", "value": "2", "operation": "set"},
			{"type": "generator_level", "value": "", "operation": "power"}
		]},
		"level": 10
	}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("evaluate = %d: %s", rec.Code, rec.Body.String())
	}
	var eval EvaluateResponse
	decode(t, rec, &eval)
	if !eval.Value.Equal(bignum.FromInt(1024)) {
		t.Errorf("2^10 = %s", eval.Value.String())
	}

	rec = do(t, h, http.MethodPost, "/api/v1/formula/check", `{"formula": {"steps": [
		{"type": "resource_amount", "value": "silver", "operation": "add"}
	]}}`)
	var check CheckResponse
	decode(t, rec, &check)
	if check.Valid || len(check.Issues) == 0 {
		t.Errorf("unknown resource reference not reported: %+v", check)
	}

	rec = do(t, h, http.MethodPost, "/api/v1/formula/check", `{"formula": {"steps": [
		{"type": "resource_amount", "value": "gold", "operation": "add"}
	]}}`)
	check = CheckResponse{}
	decode(t, rec, &check)
	if !check.Valid || check.Issues == nil {
		t.Errorf("valid formula rejected: %s", rec.Body.String())
	}

	var reg FormulaRegistryResponse
	decode(t, do(t, h, http.MethodGet, "/api/v1/formula/registry", ""), &reg)
	if len(reg.Sources) == 0 || len(reg.Operations) == 0 {
		t.Errorf("empty registry: %+v", reg)
	}
}

func TestExport(t *testing.T) {
	h := newTestServer(t, "", false).Routes()
	seed(t, h)

	rec := do(t, h, http.MethodGet, "/api/v1/export", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("export = %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Header().Get("Content-Disposition"), ".html") {
		t.Errorf("Content-Disposition = %q", rec.Header().Get("Content-Disposition"))
	}
	plain := rec.Body.Bytes()
	if !bytes.Contains(plain, []byte("<html")) {
		t.Fatal("export is not an HTML document")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/export", nil)
	req.Header.Set("Accept-Encoding", "gzip, br")
	br := httptest.NewRecorder()
	h.ServeHTTP(br, req)
	if br.Header().Get("Content-Encoding") != "br" {
		t.Fatalf("Content-Encoding = %q", br.Header().Get("Content-Encoding"))
	}
	unpacked, err := export.Decompress(br.Body.Bytes())
	if err != nil {
		t.Fatalf("Decompress failed: %v", err)
	}
	if !bytes.Equal(unpacked, plain) {
		t.Error("compressed export differs from plain export")
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/export", nil)
	req.Header.Set("If-None-Match", rec.Header().Get("ETag"))
	cached := httptest.NewRecorder()
	h.ServeHTTP(cached, req)
	if cached.Code != http.StatusNotModified {
		t.Errorf("conditional export = %d", cached.Code)
	}
}

func TestAcceptsBrotli(t *testing.T) {
	tests := []struct {
		header string
		want   bool
	}{
		{"", false},
		{"gzip", false},
		{"gzip, br", true},
		{"br;q=0.5", true},
		{"br; q=0", false},
		{"brotli", false},
	}
	for _, tt := range tests {
		if got := acceptsBrotli(tt.header); got != tt.want {
			t.Errorf("acceptsBrotli(%q) = %v, want %v", tt.header, got, tt.want)
		}
	}
}

func TestProjects(t *testing.T) {
	h := newTestServer(t, "", true).Routes()
	seed(t, h)

	rec := do(t, h, http.MethodPost, "/api/v1/projects", `{"title":"Gold Rush"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("save = %d: %s", rec.Code, rec.Body.String())
	}
	var p store.Project
	decode(t, rec, &p)
	if p.ID == "" || p.Title != "Gold Rush" {
		t.Fatalf("saved project = %+v", p)
	}

	var list store.ProjectsList
	decode(t, do(t, h, http.MethodGet, "/api/v1/projects?title=gold&perPage=10", ""), &list)
	if list.TotalCount != 1 || len(list.Projects) != 1 {
		t.Fatalf("list = %+v", list)
	}
	if rec := do(t, h, http.MethodGet, "/api/v1/projects?page=-1", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("negative page = %d", rec.Code)
	}

	do(t, h, http.MethodDelete, "/api/v1/blueprint", "")
	if rec := do(t, h, http.MethodPost, "/api/v1/projects/"+p.ID+"/load", ""); rec.Code != http.StatusOK {
		t.Fatalf("load = %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(do(t, h, http.MethodGet, "/api/v1/blueprint", "").Body.String(), `"farm"`) {
		t.Error("project blueprint not loaded into the editor")
	}

	if rec := do(t, h, http.MethodGet, "/api/v1/export?project="+p.ID, ""); rec.Code != http.StatusOK {
		t.Errorf("project export = %d", rec.Code)
	}
	if rec := do(t, h, http.MethodDelete, "/api/v1/projects/"+p.ID, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("delete = %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/api/v1/projects/"+p.ID, ""); rec.Code != http.StatusNotFound {
		t.Errorf("deleted project = %d", rec.Code)
	}
}

func TestProjectsWithoutStorage(t *testing.T) {
	h := newTestServer(t, "", false).Routes()
	rec := do(t, h, http.MethodGet, "/api/v1/projects", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestSessionLifecycle(t *testing.T) {
	h := newTestServer(t, "", false).Routes()
	seed(t, h)

	rec := do(t, h, http.MethodPost, "/api/v1/sessions", "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("create = %d: %s", rec.Code, rec.Body.String())
	}
	var created SessionResponse
	decode(t, rec, &created)
	id := created.Snapshot.SessionID
	base := "/api/v1/sessions/" + id

	var bought PurchaseResponse
	decode(t, do(t, h, http.MethodPost, base+"/generators/farm/purchase", ""), &bought)
	if !bought.Purchased {
		t.Fatalf("purchase with exact funds failed: %+v", bought.Snapshot.Resources)
	}

	if rec := do(t, h, http.MethodPost, base+"/generators/ghost/purchase", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown generator = %d", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, base+"/advance", `{"ticks":0}`); rec.Code != http.StatusBadRequest {
		t.Errorf("zero ticks = %d", rec.Code)
	}

	if rec := do(t, h, http.MethodPost, base+"/stop", ""); rec.Code != http.StatusOK {
		t.Fatalf("stop = %d: %s", rec.Code, rec.Body.String())
	}
	if rec := do(t, h, http.MethodPost, base+"/stop", ""); rec.Code != http.StatusConflict {
		t.Errorf("second stop = %d, want 409", rec.Code)
	}

	before := created.Snapshot.Ticks
	var advanced SessionResponse
	decode(t, do(t, h, http.MethodPost, base+"/advance", `{"ticks":5}`), &advanced)
	if advanced.Snapshot.Ticks < before+5 {
		t.Errorf("ticks = %d after advancing from %d", advanced.Snapshot.Ticks, before)
	}

	var sessions []SessionResponse
	decode(t, do(t, h, http.MethodGet, "/api/v1/sessions", ""), &sessions)
	if len(sessions) != 1 {
		t.Errorf("listed %d sessions", len(sessions))
	}

	if rec := do(t, h, http.MethodDelete, base, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("delete = %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, base, ""); rec.Code != http.StatusNotFound {
		t.Errorf("deleted session = %d", rec.Code)
	}
}

func TestSessionFromProjectSaves(t *testing.T) {
	s := newTestServer(t, "", true)
	h := s.Routes()
	seed(t, h)

	var p store.Project
	decode(t, do(t, h, http.MethodPost, "/api/v1/projects", `{"title":"Saved"}`), &p)

	var created SessionResponse
	decode(t, do(t, h, http.MethodPost, "/api/v1/sessions", `{"projectId":"`+p.ID+`"}`), &created)
	if created.ProjectID != p.ID {
		t.Fatalf("projectId = %q", created.ProjectID)
	}
	base := "/api/v1/sessions/" + created.Snapshot.SessionID
	do(t, h, http.MethodPost, base+"/generators/farm/purchase", "")
	if rec := do(t, h, http.MethodPost, base+"/stop", ""); rec.Code != http.StatusOK {
		t.Fatalf("stop = %d", rec.Code)
	}

	save, err := s.db.LatestState(p.ID)
	if err != nil {
		t.Fatalf("LatestState failed: %v", err)
	}
	if !save.State.GeneratorLevel("farm").Equal(bignum.One) {
		t.Errorf("saved farm level = %s", save.State.GeneratorLevel("farm").String())
	}

	var resumed SessionResponse
	decode(t, do(t, h, http.MethodPost, "/api/v1/sessions", `{"projectId":"`+p.ID+`","resume":true}`), &resumed)
	if len(resumed.Snapshot.Generators) != 1 || !resumed.Snapshot.Generators[0].Level.Equal(bignum.One) {
		t.Errorf("resumed generators = %+v", resumed.Snapshot.Generators)
	}

	if rec := do(t, h, http.MethodPost, "/api/v1/sessions", `{"resume":true}`); rec.Code != http.StatusBadRequest {
		t.Errorf("resume without project = %d", rec.Code)
	}
}

func TestSessionStream(t *testing.T) {
	s := newTestServer(t, "", false)
	srv := httptest.NewServer(s.Routes())
	defer srv.Close()
	seed(t, s.Routes())

	rec := do(t, s.Routes(), http.MethodPost, "/api/v1/sessions", "")
	var created SessionResponse
	decode(t, rec, &created)
	id := created.Snapshot.SessionID

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/sessions/" + id + "/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if msg.Type != "snapshot" || !strings.Contains(string(msg.Payload), id) {
		t.Fatalf("first message = %s %s", msg.Type, msg.Payload)
	}

	if rec := do(t, s.Routes(), http.MethodDelete, "/api/v1/sessions/"+id, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("delete = %d", rec.Code)
	}
	// The hub closes the stream once its session is gone.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	if _, resp, err := websocket.DefaultDialer.Dial(url, nil); err == nil || resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Errorf("stream of removed session: err=%v", err)
	}
}
