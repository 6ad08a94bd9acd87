package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	contractx "github.com/waritk/agentwidget/agent/contract"
	sessionx "github.com/waritk/agentwidget/agent/session"
	crmx "github.com/waritk/agentwidget/pkg/crm"
	storex "github.com/waritk/agentwidget/store"
)

type fakeDirectory struct {
	agents map[string]*storex.Agent // tenant+"/"+name
	leads  []storex.Lead

	upsertedAgents []*storex.Agent
	upsertedLeads  []*storex.Lead
	crmRefs        map[string]string
}

func (f *fakeDirectory) GetAgent(ctx context.Context, tenantID, agentName string) (*storex.Agent, error) {
	agent, ok := f.agents[tenantID+"/"+agentName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", contractx.ErrUnknownAgent, agentName)
	}
	return agent, nil
}

func (f *fakeDirectory) UpsertAgent(ctx context.Context, agent *storex.Agent) (*storex.Agent, error) {
	agent.ID = "agent-upserted"
	f.upsertedAgents = append(f.upsertedAgents, agent)
	return agent, nil
}

func (f *fakeDirectory) UpsertLead(ctx context.Context, lead *storex.Lead) (*storex.Lead, error) {
	lead.ID = "lead-1"
	f.upsertedLeads = append(f.upsertedLeads, lead)
	return lead, nil
}

func (f *fakeDirectory) UpdateLeadCRMRef(ctx context.Context, leadID, crmContactID string) error {
	if f.crmRefs == nil {
		f.crmRefs = make(map[string]string)
	}
	f.crmRefs[leadID] = crmContactID
	return nil
}

func (f *fakeDirectory) LeadsByTenant(ctx context.Context, tenantID string) ([]storex.Lead, error) {
	return f.leads, nil
}

type fakeRunner struct {
	result contractx.TurnResult
	err    error
	last   contractx.AgentContext
	calls  int
}

func (f *fakeRunner) Run(ctx context.Context, actx contractx.AgentContext) (contractx.TurnResult, error) {
	f.calls++
	f.last = actx
	if f.err != nil {
		return contractx.TurnResult{}, f.err
	}
	return f.result, nil
}

type fakePusher struct {
	contactID string
	err       error
	pushed    []crmx.Contact
}

func (f *fakePusher) PushContact(ctx context.Context, contact crmx.Contact) (string, error) {
	f.pushed = append(f.pushed, contact)
	if f.err != nil {
		return "", f.err
	}
	return f.contactID, nil
}

func newTestServer(directory *fakeDirectory, runner *fakeRunner, pusher ContactPusher, t *testing.T) *httptest.Server {
	t.Helper()
	srv := New(directory, runner, sessionx.NewStore(), pusher, Config{
		StoragePath: t.TempDir(),
	})
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHandleChatSuccess(t *testing.T) {
	t.Parallel()

	directory := &fakeDirectory{agents: map[string]*storex.Agent{
		"t1/helper": {
			ID:           "a1",
			TenantID:     "t1",
			Name:         "helper",
			SystemPrompt: "You are helpful.",
			MemoryMode:   storex.MemoryModePersistent,
		},
	}}
	runner := &fakeRunner{result: contractx.TurnResult{
		Reply:       "Hi there!",
		NotesForCRM: "User: Hello... Agent responded with assistance.",
		TenantID:    "t1",
		AgentID:     "a1",
		SessionID:   "s1",
	}}
	ts := newTestServer(directory, runner, nil, t)

	resp := postJSON(t, ts.URL+"/api/v1/chat", map[string]any{
		"tenant_id":  "t1",
		"agent_name": "helper",
		"session_id": "s1",
		"user_input": "Hello",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if out.Reply != "Hi there!" {
		t.Fatalf("reply = %q", out.Reply)
	}
	if out.AgentID != "a1" || out.SessionID != "s1" {
		t.Fatalf("identifier echo = %+v", out)
	}

	if runner.last.Key.String() != "t1:a1:s1" {
		t.Fatalf("session key = %q, want t1:a1:s1", runner.last.Key.String())
	}
	if !runner.last.PersistMemory {
		t.Fatal("persist_memory not derived from agent memory_mode")
	}
	if runner.last.SystemPrompt != "You are helpful." {
		t.Fatalf("system prompt = %q", runner.last.SystemPrompt)
	}
}

func TestHandleChatUnknownAgent(t *testing.T) {
	t.Parallel()

	ts := newTestServer(&fakeDirectory{agents: map[string]*storex.Agent{}}, &fakeRunner{}, nil, t)

	resp := postJSON(t, ts.URL+"/api/v1/chat", map[string]any{
		"tenant_id":  "t1",
		"agent_name": "ghost",
		"session_id": "s1",
		"user_input": "Hello",
	})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestHandleChatRejectsBadInput(t *testing.T) {
	t.Parallel()

	directory := &fakeDirectory{agents: map[string]*storex.Agent{
		"t1/helper": {ID: "a1", TenantID: "t1", Name: "helper", SystemPrompt: "p"},
	}}
	runner := &fakeRunner{}
	ts := newTestServer(directory, runner, nil, t)

	resp := postJSON(t, ts.URL+"/api/v1/chat", map[string]any{
		"tenant_id":  "t1",
		"agent_name": "helper",
		"session_id": "s1",
		"user_input": "",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty input: status = %d, want 400", resp.StatusCode)
	}

	long := make([]byte, maxUserInputLen+1)
	for i := range long {
		long[i] = 'x'
	}
	resp = postJSON(t, ts.URL+"/api/v1/chat", map[string]any{
		"tenant_id":  "t1",
		"agent_name": "helper",
		"session_id": "s1",
		"user_input": string(long),
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("oversized input: status = %d, want 400", resp.StatusCode)
	}

	// session id carrying the reserved delimiter never reaches the runner
	resp = postJSON(t, ts.URL+"/api/v1/chat", map[string]any{
		"tenant_id":  "t1",
		"agent_name": "helper",
		"session_id": "s:1",
		"user_input": "Hello",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad session id: status = %d, want 400", resp.StatusCode)
	}
	if runner.calls != 0 {
		t.Fatalf("runner called %d times on invalid requests, want 0", runner.calls)
	}
}

func TestHandleChatTurnErrorMapsToServerError(t *testing.T) {
	t.Parallel()

	directory := &fakeDirectory{agents: map[string]*storex.Agent{
		"t1/helper": {ID: "a1", TenantID: "t1", Name: "helper", SystemPrompt: "p"},
	}}
	runner := &fakeRunner{err: errors.New("internal wiring broken")}
	ts := newTestServer(directory, runner, nil, t)

	resp := postJSON(t, ts.URL+"/api/v1/chat", map[string]any{
		"tenant_id":  "t1",
		"agent_name": "helper",
		"session_id": "s1",
		"user_input": "Hello",
	})
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", resp.StatusCode)
	}
}

func TestHandleClearSession(t *testing.T) {
	t.Parallel()

	ts := newTestServer(&fakeDirectory{}, &fakeRunner{}, nil, t)

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/api/v1/chat/t1/a1/s1", nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}
}

func TestHandleUpsertLeadRequiresContactInfo(t *testing.T) {
	t.Parallel()

	ts := newTestServer(&fakeDirectory{}, &fakeRunner{}, nil, t)

	resp := postJSON(t, ts.URL+"/api/v1/leads", map[string]any{
		"tenant_id":  "t1",
		"first_name": "Ada",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestHandleUpsertLeadPushesToCRM(t *testing.T) {
	t.Parallel()

	directory := &fakeDirectory{}
	pusher := &fakePusher{contactID: "crm-9"}
	ts := newTestServer(directory, &fakeRunner{}, pusher, t)

	resp := postJSON(t, ts.URL+"/api/v1/leads", map[string]any{
		"tenant_id": "t1",
		"email":     "ada@example.com",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var lead storex.Lead
	if err := json.NewDecoder(resp.Body).Decode(&lead); err != nil {
		t.Fatalf("decode lead: %v", err)
	}
	if lead.CRMContactID != "crm-9" {
		t.Fatalf("crm_contact_id = %q, want crm-9", lead.CRMContactID)
	}
	if directory.crmRefs["lead-1"] != "crm-9" {
		t.Fatalf("crm ref not recorded: %+v", directory.crmRefs)
	}
	if len(pusher.pushed) != 1 || pusher.pushed[0].Email != "ada@example.com" {
		t.Fatalf("pushed contacts = %+v", pusher.pushed)
	}
}

func TestHandleUpsertLeadSurvivesCRMFailure(t *testing.T) {
	t.Parallel()

	pusher := &fakePusher{err: errors.New("crm down")}
	ts := newTestServer(&fakeDirectory{}, &fakeRunner{}, pusher, t)

	resp := postJSON(t, ts.URL+"/api/v1/leads", map[string]any{
		"tenant_id": "t1",
		"phone":     "+6612345678",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200 despite crm failure", resp.StatusCode)
	}
}

func TestHandleUpsertAgentValidation(t *testing.T) {
	t.Parallel()

	ts := newTestServer(&fakeDirectory{}, &fakeRunner{}, nil, t)

	resp := postJSON(t, ts.URL+"/api/v1/admin/agent", map[string]any{
		"tenant_id":     "t1",
		"name":          "bot",
		"system_prompt": "too short",
		"memory_mode":   "eternal",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestHandleUpsertAgentWritesDocuments(t *testing.T) {
	t.Parallel()

	directory := &fakeDirectory{}
	ts := newTestServer(directory, &fakeRunner{}, nil, t)

	resp := postJSON(t, ts.URL+"/api/v1/admin/agent", map[string]any{
		"tenant_id":     "t1",
		"name":          "bot",
		"system_prompt": "You are a helpful product advisor for t1.",
		"identity":      map[string]any{"persona": "advisor"},
		"mission":       map[string]any{"goal": "qualify leads"},
		"memory_mode":   "thread",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if out["agent_id"] != "agent-upserted" {
		t.Fatalf("agent_id = %v", out["agent_id"])
	}
	if out["storage_path"] == "" {
		t.Fatal("storage_path missing")
	}
	if len(directory.upsertedAgents) != 1 {
		t.Fatalf("upserted %d agents, want 1", len(directory.upsertedAgents))
	}
}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()

	ts := newTestServer(&fakeDirectory{}, &fakeRunner{}, nil, t)

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}
