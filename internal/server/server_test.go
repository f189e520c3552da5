package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"

	"guildline/internal/config"
	"guildline/internal/db"
	"guildline/internal/domain"
	"guildline/internal/engine"
	"guildline/internal/migrate"
)

const testGuild = "guild-1"

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T, defaultActor string) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if _, err := migrate.Migrate(context.Background(), conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, config.Default(testGuild), nil)
	handler, err := New(Config{Engine: e, BasePath: "/v0", DefaultActor: defaultActor})
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
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
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

func as(actor string) map[string]string { return map[string]string{actorHeader: actor} }

type errorEnvelope struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func decodeError(t *testing.T, data []byte) errorEnvelope {
	t.Helper()
	var env errorEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal error envelope: %v (%s)", err, string(data))
	}
	return env
}

func TestJobContractLifecycle(t *testing.T) {
	srv, cleanup := newTestServer(t, "")
	defer cleanup()
	client := srv.Client()
	base := srv.URL + "/v0/guilds/" + testGuild

	res, data := doJSON(t, client, http.MethodPost, base+"/jobs", map[string]any{
		"title":       "Landing page",
		"totalBudget": 5000,
	}, as("gm"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create job status %d: %s", res.StatusCode, string(data))
	}
	var job domain.GuildJob
	if err := json.Unmarshal(data, &job); err != nil {
		t.Fatalf("unmarshal job: %v", err)
	}
	if job.Status != domain.JobDraft || job.CreatedBy != "gm" {
		t.Fatalf("unexpected job: %+v", job)
	}

	res, data = doJSON(t, client, http.MethodPost, base+"/jobs/"+job.ID+"/assign", map[string]any{
		"memberIds": []string{"m1", "m2", "m3"},
	}, as("gm"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("assign status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, base+"/contracts", map[string]any{"jobId": job.ID}, as("gm"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create contract status %d: %s", res.StatusCode, string(data))
	}
	var contract domain.GuildContract
	if err := json.Unmarshal(data, &contract); err != nil {
		t.Fatalf("unmarshal contract: %v", err)
	}
	if contract.RequiredApprovals != 2 || len(contract.Milestones) == 0 {
		t.Fatalf("unexpected contract: %+v", contract)
	}

	for _, member := range []string{"m1", "m2", "m3"} {
		res, data = doJSON(t, client, http.MethodPost, base+"/contracts/"+contract.ID+"/votes", map[string]any{"vote": "accept"}, as(member))
		if res.StatusCode != http.StatusOK {
			t.Fatalf("vote %s status %d: %s", member, res.StatusCode, string(data))
		}
	}
	if err := json.Unmarshal(data, &contract); err != nil {
		t.Fatalf("unmarshal voted contract: %v", err)
	}
	if contract.Status != domain.ContractApproved || contract.CurrentApprovals != 3 {
		t.Fatalf("unexpected contract after votes: status=%s approvals=%d", contract.Status, contract.CurrentApprovals)
	}

	res, data = doJSON(t, client, http.MethodPost, base+"/contracts/"+contract.ID+"/preview", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("preview status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, base+"/contracts/"+contract.ID+"/complete", map[string]any{"actualEarnings": 5000}, as("gm"))
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 before the vault exists, got %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, base+"/vault/init", nil, as("gm"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("init vault status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, base+"/contracts/"+contract.ID+"/complete", map[string]any{"actualEarnings": 5000}, as("gm"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("complete status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, base+"/vault", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get vault status %d: %s", res.StatusCode, string(data))
	}
	var vault domain.GuildVault
	if err := json.Unmarshal(data, &vault); err != nil {
		t.Fatalf("unmarshal vault: %v", err)
	}
	if vault.Balance != 25500 {
		t.Fatalf("vault balance = %v, want 25500", vault.Balance)
	}

	res, data = doJSON(t, client, http.MethodGet, base+"/vault/audit", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("audit status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, base+"/events?limit=2", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events status %d: %s", res.StatusCode, string(data))
	}
	var page paginatedEvents
	if err := json.Unmarshal(data, &page); err != nil {
		t.Fatalf("unmarshal events: %v", err)
	}
	if len(page.Items) != 2 || page.NextCursor == "" {
		t.Fatalf("expected a full page with a cursor, got %+v", page)
	}
}

func TestInsufficientFunds(t *testing.T) {
	srv, cleanup := newTestServer(t, "gm")
	defer cleanup()
	client := srv.Client()
	base := srv.URL + "/v0/guilds/" + testGuild

	res, data := doJSON(t, client, http.MethodPost, base+"/vault/init", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("init vault status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, base+"/vault/withdrawals", map[string]any{"amount": 30000}, nil)
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d %s", res.StatusCode, string(data))
	}
	env := decodeError(t, data)
	if env.Error.Code != "insufficient_funds" || env.Error.Details["available"] != float64(25000) {
		t.Fatalf("unexpected error body: %+v", env)
	}

	res, data = doJSON(t, client, http.MethodPost, base+"/workshops", map[string]any{
		"title": "Rust deep dive",
		"cost":  30000,
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create workshop status %d: %s", res.StatusCode, string(data))
	}
	var w domain.GuildWorkshop
	if err := json.Unmarshal(data, &w); err != nil {
		t.Fatalf("unmarshal workshop: %v", err)
	}
	res, data = doJSON(t, client, http.MethodPost, base+"/workshops/"+w.ID+"/fund", nil, nil)
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 funding, got %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, base+"/vault", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get vault status %d: %s", res.StatusCode, string(data))
	}
	var vault domain.GuildVault
	_ = json.Unmarshal(data, &vault)
	if vault.Balance != 25000 {
		t.Fatalf("failed debits changed the balance: %v", vault.Balance)
	}
}

func TestWorkshopFlow(t *testing.T) {
	srv, cleanup := newTestServer(t, "gm")
	defer cleanup()
	client := srv.Client()
	base := srv.URL + "/v0/guilds/" + testGuild

	res, data := doJSON(t, client, http.MethodPost, base+"/workshops", map[string]any{
		"title":          "Go basics",
		"cost":           5000,
		"skillsImproved": []string{"go"},
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create workshop status %d: %s", res.StatusCode, string(data))
	}
	var w domain.GuildWorkshop
	_ = json.Unmarshal(data, &w)

	res, data = doJSON(t, client, http.MethodPost, base+"/workshops/"+w.ID+"/fund", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("fund status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, base+"/workshops/"+w.ID+"/register", nil, as("m1"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("register status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, base+"/workshops/"+w.ID+"/complete", map[string]any{"rating": 4}, as("m1"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("complete status %d: %s", res.StatusCode, string(data))
	}
	var done engine.WorkshopCompletion
	if err := json.Unmarshal(data, &done); err != nil {
		t.Fatalf("unmarshal completion: %v", err)
	}
	if !done.Awarded || done.Workshop.AverageRating == nil || *done.Workshop.AverageRating != 4 {
		t.Fatalf("unexpected completion: %+v", done)
	}

	res, data = doJSON(t, client, http.MethodGet, base+"/members/m1/skills", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("skills status %d: %s", res.StatusCode, string(data))
	}
	var progress domain.GuildMemberSkillProgress
	_ = json.Unmarshal(data, &progress)
	if _, ok := progress.Skills["go"]; !ok {
		t.Fatalf("expected go skill, got %+v", progress.Skills)
	}

	res, data = doJSON(t, client, http.MethodPost, base+"/workshops/"+w.ID+"/close", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("close status %d: %s", res.StatusCode, string(data))
	}
}

func TestApplyWithoutBody(t *testing.T) {
	srv, cleanup := newTestServer(t, "")
	defer cleanup()
	client := srv.Client()
	base := srv.URL + "/v0/guilds/" + testGuild

	res, data := doJSON(t, client, http.MethodPost, base+"/jobs", map[string]any{"title": "Audit", "totalBudget": 800}, as("gm"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create job status %d: %s", res.StatusCode, string(data))
	}
	var job domain.GuildJob
	if err := json.Unmarshal(data, &job); err != nil {
		t.Fatalf("unmarshal job: %v", err)
	}

	res, data = doJSON(t, client, http.MethodPost, base+"/jobs/"+job.ID+"/apply", nil, as("m1"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("apply without body status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, base+"/jobs/"+job.ID+"/apply", map[string]any{"userId": "m2"}, as("gm"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("apply for member status %d: %s", res.StatusCode, string(data))
	}
	if err := json.Unmarshal(data, &job); err != nil {
		t.Fatalf("unmarshal applied job: %v", err)
	}
	if len(job.Applicants) != 2 || job.Applicants[0] != "m1" || job.Applicants[1] != "m2" {
		t.Fatalf("unexpected applicants: %v", job.Applicants)
	}
}

func TestErrorStatuses(t *testing.T) {
	srv, cleanup := newTestServer(t, "")
	defer cleanup()
	client := srv.Client()
	base := srv.URL + "/v0/guilds/" + testGuild

	res, data := doJSON(t, client, http.MethodPost, base+"/jobs", map[string]any{"title": "No actor"}, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without actor, got %d %s", res.StatusCode, string(data))
	}
	if env := decodeError(t, data); env.Error.Code != "actor_required" {
		t.Fatalf("unexpected code %q", env.Error.Code)
	}

	res, data = doJSON(t, client, http.MethodPost, base+"/jobs", map[string]any{"title": ""}, as("gm"))
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty title, got %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, base+"/vault/deposits", map[string]any{"amount": -5}, as("gm"))
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for negative deposit, got %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, base+"/jobs/missing", nil, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d %s", res.StatusCode, string(data))
	}
	if env := decodeError(t, data); env.Error.Code != "not_found" {
		t.Fatalf("unexpected code %q", env.Error.Code)
	}

	res, data = doJSON(t, client, http.MethodGet, base+"/events?cursor=abc", nil, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad cursor, got %d %s", res.StatusCode, string(data))
	}
}

func TestOpenAPIDocument(t *testing.T) {
	srv, cleanup := newTestServer(t, "")
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/openapi.json", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("openapi status %d", res.StatusCode)
	}
	if !strings.Contains(string(data), "/guilds/{guild_id}/contracts/{contract_id}/votes") {
		t.Fatalf("openapi document is missing the votes route")
	}
	if !strings.Contains(string(data), actorHeader) {
		t.Fatalf("openapi document does not describe %s", actorHeader)
	}

	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d", res.StatusCode)
	}
}
