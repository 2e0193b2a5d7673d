package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"pkt.systems/fmusd/api"
	"pkt.systems/fmusd/internal/clock"
	"pkt.systems/fmusd/internal/dirlock"
	"pkt.systems/fmusd/internal/fmuconfig"
	"pkt.systems/fmusd/internal/rms"
	"pkt.systems/fmusd/internal/session"
	"pkt.systems/fmusd/internal/smda"
)

var testStart = time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)

type testEnv struct {
	t       *testing.T
	handler *Handler
	server  *httptest.Server
	clock   *clock.Manual
	manager *session.Manager
	opener  *rms.StubOpener
	home    string
	token   string
}

func newTestEnv(t *testing.T, opts ...func(*Config)) *testEnv {
	t.Helper()
	clk := clock.NewManual(testStart)
	manager := session.NewManager(session.WithClock(clk), session.WithTTL(10*time.Minute))
	opener := &rms.StubOpener{Projects: map[string]*rms.StubProject{}}
	home := t.TempDir()

	cfg := Config{
		Manager:  manager,
		Opener:   opener,
		Clock:    clk,
		UserHome: home,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	h, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	mux := http.NewServeMux()
	h.Register(mux)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	t.Cleanup(func() {
		if err := manager.Shutdown(context.Background()); err != nil {
			t.Errorf("Shutdown: %v", err)
		}
	})
	return &testEnv{
		t:       t,
		handler: h,
		server:  server,
		clock:   clk,
		manager: manager,
		opener:  opener,
		home:    home,
		token:   cfg.APIToken,
	}
}

func (e *testEnv) do(method, path, sid string, body any) *http.Response {
	e.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			e.t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, e.server.URL+path, reader)
	if err != nil {
		e.t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if sid != "" {
		req.Header.Set(SessionHeaderName, sid)
	}
	if e.token != "" {
		req.Header.Set(APITokenHeaderName, e.token)
	}
	resp, err := e.server.Client().Do(req)
	if err != nil {
		e.t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func (e *testEnv) createSession() string {
	e.t.Helper()
	resp := e.do(http.MethodPost, "/v1/session", "", nil)
	if resp.StatusCode != http.StatusCreated {
		e.t.Fatalf("create session status = %d want %d", resp.StatusCode, http.StatusCreated)
	}
	sr := decodeBody[api.SessionResponse](e.t, resp)
	if sr.ID == "" {
		e.t.Fatal("create session returned empty id")
	}
	return sr.ID
}

func (e *testEnv) newProject(name string) (*fmuconfig.ProjectDir, string) {
	e.t.Helper()
	base := filepath.Join(e.t.TempDir(), name)
	if err := os.MkdirAll(base, 0o755); err != nil {
		e.t.Fatalf("mkdir %s: %v", base, err)
	}
	pd, err := fmuconfig.InitProjectDir(base, "tester", testStart)
	if err != nil {
		e.t.Fatalf("InitProjectDir: %v", err)
	}
	return pd, base
}

func wantError(t *testing.T, resp *http.Response, status int, code string) api.Error {
	t.Helper()
	if resp.StatusCode != status {
		t.Fatalf("status = %d want %d", resp.StatusCode, status)
	}
	apiErr := decodeBody[api.Error](t, resp)
	if apiErr.Code != code {
		t.Fatalf("error code = %q want %q", apiErr.Code, code)
	}
	return apiErr
}

func TestCreateSession(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	resp := env.do(http.MethodPost, "/v1/session", "", api.CreateSessionRequest{UserHome: env.home})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d want %d", resp.StatusCode, http.StatusCreated)
	}
	var cookie string
	for _, c := range resp.Cookies() {
		if c.Name == SessionCookieName {
			cookie = c.Value
		}
	}
	sr := decodeBody[api.SessionResponse](t, resp)
	if cookie == "" || cookie != sr.ID {
		t.Fatalf("cookie = %q want session id %q", cookie, sr.ID)
	}
	if got, want := sr.ExpiresAt, testStart.Add(10*time.Minute); !got.Equal(want) {
		t.Fatalf("expires_at = %v want %v", got, want)
	}
	if _, err := os.Stat(filepath.Join(env.home, fmuconfig.DirName, fmuconfig.ConfigFileName)); err != nil {
		t.Fatalf("user config not initialized: %v", err)
	}
}

func TestSessionLifecycle(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	sid := env.createSession()

	resp := env.do(http.MethodGet, "/v1/session", sid, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d want %d", resp.StatusCode, http.StatusOK)
	}
	sr := decodeBody[api.SessionResponse](t, resp)
	if sr.ID != sid {
		t.Fatalf("id = %q want %q", sr.ID, sid)
	}

	resp = env.do(http.MethodDelete, "/v1/session", sid, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete status = %d want %d", resp.StatusCode, http.StatusOK)
	}
	resp.Body.Close()

	resp = env.do(http.MethodGet, "/v1/session", sid, nil)
	apiErr := wantError(t, resp, http.StatusUnauthorized, "session_not_found")
	if apiErr.Detail != "No active session found" {
		t.Fatalf("detail = %q", apiErr.Detail)
	}
}

func TestSessionExpires(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	sid := env.createSession()

	env.clock.Advance(11 * time.Minute)

	resp := env.do(http.MethodGet, "/v1/session", sid, nil)
	apiErr := wantError(t, resp, http.StatusUnauthorized, "session_not_found")
	if apiErr.Detail != "Invalid or expired session" {
		t.Fatalf("detail = %q", apiErr.Detail)
	}
}

func TestMissingSessionRejected(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	resp := env.do(http.MethodGet, "/v1/session", "", nil)
	apiErr := wantError(t, resp, http.StatusUnauthorized, "session_not_found")
	if apiErr.Detail != "No active session found" {
		t.Fatalf("detail = %q", apiErr.Detail)
	}
}

func TestAPITokenEnforced(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, func(cfg *Config) { cfg.APIToken = "local-secret" })

	req, err := http.NewRequest(http.MethodPost, env.server.URL+"/v1/session", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := env.server.Client().Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	wantError(t, resp, http.StatusUnauthorized, "not_authorized")

	// Health probes bypass token auth.
	resp, err = env.server.Client().Get(env.server.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status = %d want %d", resp.StatusCode, http.StatusOK)
	}
	resp.Body.Close()

	// With the token the same call succeeds.
	if sid := env.createSession(); sid == "" {
		t.Fatal("authorized create returned empty id")
	}
}

func TestAttachProject(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	sid := env.createSession()
	_, base := env.newProject("drogon")

	resp := env.do(http.MethodPost, "/v1/project", sid, api.ProjectPathRequest{Path: base})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("attach status = %d want %d", resp.StatusCode, http.StatusOK)
	}
	pr := decodeBody[api.ProjectResponse](t, resp)
	if pr.Path != base {
		t.Fatalf("path = %q want %q", pr.Path, base)
	}
	if pr.ProjectDirName != "drogon" {
		t.Fatalf("project_dir_name = %q want %q", pr.ProjectDirName, "drogon")
	}
	if pr.ReadOnly {
		t.Fatal("uncontended attach reported read_only")
	}
	lockPath := filepath.Join(base, fmuconfig.DirName, dirlock.LockFileName)
	if _, err := os.Stat(lockPath); err != nil {
		t.Fatalf("lock file missing after attach: %v", err)
	}

	// The project lands in the user's recent list.
	ud, err := fmuconfig.OpenUserDir(env.home)
	if err != nil {
		t.Fatalf("OpenUserDir: %v", err)
	}
	ucfg, err := ud.Config()
	if err != nil {
		t.Fatalf("user config: %v", err)
	}
	if len(ucfg.RecentProjects) != 1 || ucfg.RecentProjects[0] != base {
		t.Fatalf("recent projects = %v want [%s]", ucfg.RecentProjects, base)
	}

	resp = env.do(http.MethodGet, "/v1/project", sid, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get project status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = env.do(http.MethodDelete, "/v1/project", sid, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("detach status = %d", resp.StatusCode)
	}
	resp.Body.Close()
	if _, err := os.Stat(lockPath); !os.IsNotExist(err) {
		t.Fatalf("lock file still present after detach: %v", err)
	}
}

func TestAttachProjectNotFound(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	sid := env.createSession()

	resp := env.do(http.MethodPost, "/v1/project", sid, api.ProjectPathRequest{Path: t.TempDir()})
	wantError(t, resp, http.StatusNotFound, "project_not_found")
}

func TestGetProjectWithoutAttach(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	sid := env.createSession()

	resp := env.do(http.MethodGet, "/v1/project", sid, nil)
	wantError(t, resp, http.StatusUnauthorized, "no_project")
}

func TestProjectInit(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	sid := env.createSession()
	base := filepath.Join(t.TempDir(), "fresh")
	if err := os.MkdirAll(base, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	resp := env.do(http.MethodPost, "/v1/project/init", sid, api.ProjectPathRequest{Path: base})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("init status = %d want %d", resp.StatusCode, http.StatusCreated)
	}
	pr := decodeBody[api.ProjectResponse](t, resp)
	if pr.Config.Version == "" || pr.Config.CreatedBy == "" {
		t.Fatalf("config not seeded: %+v", pr.Config)
	}

	resp = env.do(http.MethodPost, "/v1/project/init", sid, api.ProjectPathRequest{Path: base})
	wantError(t, resp, http.StatusConflict, "project_exists")
}

func TestProjectLockContention(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	sid := env.createSession()
	pd, base := env.newProject("contended")

	external := dirlock.New(pd.Path())
	held, err := external.Acquire("other-session")
	if err != nil || !held {
		t.Fatalf("external Acquire = %v, %v", held, err)
	}
	defer external.Release()

	resp := env.do(http.MethodPost, "/v1/project", sid, api.ProjectPathRequest{Path: base})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("attach status = %d want %d", resp.StatusCode, http.StatusOK)
	}
	pr := decodeBody[api.ProjectResponse](t, resp)
	if !pr.ReadOnly {
		t.Fatal("contended attach not reported read_only")
	}

	resp = env.do(http.MethodGet, "/v1/project/lock_status", sid, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("lock_status status = %d", resp.StatusCode)
	}
	ls := decodeBody[api.LockStatusResponse](t, resp)
	if ls.Acquired || !ls.Held || !ls.FileExists {
		t.Fatalf("lock status = %+v want held by other", ls)
	}
	if ls.Info == nil || ls.Info.SessionID != "other-session" {
		t.Fatalf("lock info = %+v want holder other-session", ls.Info)
	}

	// Retrying while contended stays read-only.
	resp = env.do(http.MethodPost, "/v1/project/lock", sid, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("lock retry status = %d", resp.StatusCode)
	}
	ls = decodeBody[api.LockStatusResponse](t, resp)
	if ls.Acquired {
		t.Fatal("lock acquired while externally held")
	}

	if err := external.Release(); err != nil {
		t.Fatalf("external Release: %v", err)
	}

	resp = env.do(http.MethodPost, "/v1/project/lock", sid, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("lock status = %d", resp.StatusCode)
	}
	ls = decodeBody[api.LockStatusResponse](t, resp)
	if !ls.Acquired {
		t.Fatal("lock not acquired after external release")
	}
}

func TestRMSFlow(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	sid := env.createSession()
	pd, base := env.newProject("withrms")

	rmsPath := "/rms/projects/withrms.rms14.2.2"
	if err := pd.SetValue("rms_project_path", rmsPath); err != nil {
		t.Fatalf("SetValue: %v", err)
	}
	stub := &rms.StubProject{
		ZoneList:    []rms.Zone{{Name: "Valysar", Top: "TopValysar", Base: "TopTherys"}},
		HorizonList: []string{"TopValysar", "TopTherys"},
		WellList:    []string{"55_33-1", "55_33-2"},
	}
	env.opener.Projects[rmsPath] = stub

	resp := env.do(http.MethodPost, "/v1/project", sid, api.ProjectPathRequest{Path: base})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("attach status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = env.do(http.MethodPost, "/v1/rms/open", sid, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("rms open status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = env.do(http.MethodGet, "/v1/rms/stratigraphic_column", sid, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("strat column status = %d", resp.StatusCode)
	}
	col := decodeBody[api.StratigraphicColumn](t, resp)
	if len(col.Zones) != 1 || col.Zones[0].Name != "Valysar" {
		t.Fatalf("zones = %+v", col.Zones)
	}

	resp = env.do(http.MethodGet, "/v1/rms/horizons", sid, nil)
	hl := decodeBody[api.HorizonList](t, resp)
	if len(hl.Horizons) != 2 {
		t.Fatalf("horizons = %v", hl.Horizons)
	}

	resp = env.do(http.MethodGet, "/v1/rms/wells", sid, nil)
	wl := decodeBody[api.WellList](t, resp)
	if len(wl.Wells) != 2 {
		t.Fatalf("wells = %v", wl.Wells)
	}

	resp = env.do(http.MethodDelete, "/v1/rms/close", sid, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("rms close status = %d", resp.StatusCode)
	}
	resp.Body.Close()
	if !stub.Closed() {
		t.Fatal("stub project not closed")
	}

	resp = env.do(http.MethodGet, "/v1/rms/horizons", sid, nil)
	apiErr := wantError(t, resp, http.StatusBadRequest, "no_rms_project")
	if apiErr.Detail != "No RMS project is currently open. Please open an RMS project first." {
		t.Fatalf("detail = %q", apiErr.Detail)
	}
}

func TestRMSOpenWithoutConfiguredPath(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	sid := env.createSession()
	_, base := env.newProject("nopath")

	resp := env.do(http.MethodPost, "/v1/project", sid, api.ProjectPathRequest{Path: base})
	resp.Body.Close()

	resp = env.do(http.MethodPost, "/v1/rms/open", sid, nil)
	wantError(t, resp, http.StatusBadRequest, "no_rms_path")
}

func TestRMSOpenFailure(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.opener.Err = fmt.Errorf("license server unreachable")
	sid := env.createSession()
	pd, base := env.newProject("broken")
	if err := pd.SetValue("rms_project_path", "/rms/broken"); err != nil {
		t.Fatalf("SetValue: %v", err)
	}

	resp := env.do(http.MethodPost, "/v1/project", sid, api.ProjectPathRequest{Path: base})
	resp.Body.Close()

	resp = env.do(http.MethodPost, "/v1/rms/open", sid, nil)
	wantError(t, resp, http.StatusBadGateway, "rms_open_failed")
}

func TestAccessTokens(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	sid := env.createSession()

	resp := env.do(http.MethodPost, "/v1/session/access_token", sid,
		api.AccessTokenRequest{ID: "smda_api", Key: "super-secret"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("token status = %d want %d", resp.StatusCode, http.StatusOK)
	}
	resp.Body.Close()

	resp = env.do(http.MethodPost, "/v1/session/access_token", sid,
		api.AccessTokenRequest{ID: "bogus", Key: "x"})
	wantError(t, resp, http.StatusBadRequest, "invalid_token_id")
}

func TestSMDAFlow(t *testing.T) {
	t.Parallel()
	stub := &smda.StubClient{
		Fields:            []smda.Field{{Identifier: "DROGON", UUID: "uuid-drogon"}},
		Countries:         []smda.Country{{Identifier: "Norway", UUID: "uuid-no"}},
		CoordinateSystems: []smda.CoordinateSystem{{Identifier: "ST_WGS84_UTM37N_P32637", UUID: "uuid-crs"}},
	}
	conn := &smda.StubConnector{Client: stub}
	env := newTestEnv(t, func(cfg *Config) { cfg.SMDA = conn })
	sid := env.createSession()

	// Without an access token the routes refuse to query upstream.
	resp := env.do(http.MethodGet, "/v1/smda/health", sid, nil)
	apiErr := wantError(t, resp, http.StatusUnauthorized, "smda_token_missing")
	if apiErr.Detail != "SMDA access token is not set" {
		t.Fatalf("detail = %q", apiErr.Detail)
	}

	for _, tok := range []api.AccessTokenRequest{
		{ID: "smda_api", Key: "raw-token"},
		{ID: "smda_subscription", Key: "raw-sub"},
	} {
		resp = env.do(http.MethodPost, "/v1/session/access_token", sid, tok)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("store token %s status = %d", tok.ID, resp.StatusCode)
		}
		resp.Body.Close()
	}

	resp = env.do(http.MethodGet, "/v1/smda/health", sid, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d", resp.StatusCode)
	}
	if got := resp.Header.Get(UpstreamSourceHeaderName); got != "SMDA" {
		t.Fatalf("upstream source header = %q want SMDA", got)
	}
	resp.Body.Close()
	if tok, sub := conn.Credentials(); tok != "raw-token" || sub != "raw-sub" {
		t.Fatalf("connector credentials = %q %q, masking leaked into upstream call", tok, sub)
	}

	resp = env.do(http.MethodPost, "/v1/smda/field", sid, api.SMDAField{Identifier: "DROGON"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("field status = %d", resp.StatusCode)
	}
	sr := decodeBody[api.SMDAFieldSearchResult](t, resp)
	if sr.Hits != 1 || len(sr.Results) != 1 || sr.Results[0].UUID != "uuid-drogon" {
		t.Fatalf("search result = %+v", sr)
	}

	resp = env.do(http.MethodPost, "/v1/smda/masterdata", sid, api.SMDAMasterdataRequest{})
	apiErr = wantError(t, resp, http.StatusBadRequest, "invalid_request")
	if apiErr.Detail != "At least one SMDA field must be provided" {
		t.Fatalf("detail = %q", apiErr.Detail)
	}

	resp = env.do(http.MethodPost, "/v1/smda/masterdata", sid,
		api.SMDAMasterdataRequest{Fields: []api.SMDAField{{Identifier: "NOSUCH"}}})
	wantError(t, resp, http.StatusUnprocessableEntity, "smda_no_fields")

	resp = env.do(http.MethodPost, "/v1/smda/masterdata", sid,
		api.SMDAMasterdataRequest{Fields: []api.SMDAField{{Identifier: "DROGON"}}})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("masterdata status = %d", resp.StatusCode)
	}
	md := decodeBody[api.SMDAMasterdataResult](t, resp)
	if len(md.Field) != 1 || md.Field[0].UUID != "uuid-drogon" {
		t.Fatalf("masterdata fields = %+v", md.Field)
	}
	if md.FieldCoordinateSystem.UUID != "uuid-crs" {
		t.Fatalf("field crs = %+v", md.FieldCoordinateSystem)
	}
}

func TestSMDAUnavailable(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	sid := env.createSession()

	resp := env.do(http.MethodGet, "/v1/smda/health", sid, nil)
	wantError(t, resp, http.StatusServiceUnavailable, "smda_unavailable")
}

func TestConcurrentRequestsSameSession(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	sid := env.createSession()
	_, base := env.newProject("busy")

	resp := env.do(http.MethodPost, "/v1/project", sid, api.ProjectPathRequest{Path: base})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("attach status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	requests := []struct {
		method string
		path   string
		body   any
	}{
		{http.MethodGet, "/v1/session", nil},
		{http.MethodGet, "/v1/project", nil},
		{http.MethodGet, "/v1/project/lock_status", nil},
		{http.MethodPost, "/v1/project/lock", nil},
		{http.MethodPost, "/v1/project", api.ProjectPathRequest{Path: base}},
	}

	var wg sync.WaitGroup
	for _, req := range requests {
		for i := 0; i < 6; i++ {
			wg.Add(1)
			go func(method, path string, body any) {
				defer wg.Done()
				resp := env.do(method, path, sid, body)
				if resp.StatusCode != http.StatusOK {
					t.Errorf("%s %s status = %d", method, path, resp.StatusCode)
				}
				resp.Body.Close()
			}(req.method, req.path, req.body)
		}
	}
	wg.Wait()
}

func TestCorrelationIDEchoed(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	resp := env.do(http.MethodGet, "/healthz", "", nil)
	if resp.Header.Get(CorrelationHeaderName) == "" {
		t.Fatal("no correlation id generated")
	}
	resp.Body.Close()

	req, err := http.NewRequest(http.MethodGet, env.server.URL+"/healthz", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set(CorrelationHeaderName, "abc-123")
	resp, err = env.server.Client().Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if got := resp.Header.Get(CorrelationHeaderName); got != "abc-123" {
		t.Fatalf("correlation id = %q want %q", got, "abc-123")
	}
	resp.Body.Close()
}

func TestMethodNotAllowed(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	sid := env.createSession()

	resp := env.do(http.MethodPut, "/v1/session", sid, nil)
	wantError(t, resp, http.StatusMethodNotAllowed, "method_not_allowed")
}

func TestMalformedBodyRejected(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	sid := env.createSession()

	req, err := http.NewRequest(http.MethodPost, env.server.URL+"/v1/session/access_token",
		bytes.NewReader([]byte("{not json")))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set(SessionHeaderName, sid)
	resp, err := env.server.Client().Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	wantError(t, resp, http.StatusBadRequest, "invalid_request")
}
