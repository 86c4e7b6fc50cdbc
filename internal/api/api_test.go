package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/parley/internal/health"
	"github.com/MrWong99/parley/internal/knowledge"
	"github.com/MrWong99/parley/internal/resilience"
	"github.com/MrWong99/parley/internal/scene"
	"github.com/MrWong99/parley/internal/session"
	"github.com/MrWong99/parley/internal/world"
)

// ─── fakes ──────────────────────────────────────────────────────────────────

type fakeChat struct {
	mu    sync.Mutex
	calls []scene.ChatRequest
	err   error
	// block, when set, waits for the context to end.
	block bool
}

func (f *fakeChat) Chat(ctx context.Context, req scene.ChatRequest) (*scene.ChatResponse, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	if req.Sentence == "fail" {
		return nil, fmt.Errorf("%w: multiturn: boom", scene.ErrGeneration)
	}
	return &scene.ChatResponse{
		PlayerID:   req.PlayerID,
		NPCIDs:     "bob,ann",
		SceneID:    req.SceneID,
		Sentence:   "[CHAR(bob)] Hello, " + req.PlayerID + ".",
		InGameTime: req.InGameTime,
		SessionID:  "sess-1",
	}, nil
}

type fakeWorld struct{}

func (fakeWorld) NPC(_ context.Context, id string) (world.NPC, error) {
	if id != "bob" {
		return world.NPC{}, fmt.Errorf("world: npc %q: %w", id, world.ErrNotFound)
	}
	return world.NPC{ID: "bob", Name: "Bob", Background: "A smith.", LoreLevel: 2}, nil
}

func (fakeWorld) Scene(_ context.Context, id string) (world.Scene, error) {
	if id != "tavern" {
		return world.Scene{}, fmt.Errorf("world: scene %q: %w", id, world.ErrNotFound)
	}
	return world.Scene{ID: "tavern", Scene: "A smoky tavern.", NPCIDs: []string{"bob", "ann"}}, nil
}

type fakeConversations struct{ turns []session.ConversationTurn }

func (f fakeConversations) History(context.Context, string, string) ([]session.ConversationTurn, error) {
	return f.turns, nil
}

type fakeMemories struct {
	mu      sync.Mutex
	records []session.MemoryRecord
}

func (f *fakeMemories) GetMemory(context.Context, string, string) ([]session.MemoryRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]session.MemoryRecord{}, f.records...), nil
}

func (f *fakeMemories) AddMemory(_ context.Context, playerID, npcID string, records ...session.MemoryRecord) ([]session.MemoryRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range records {
		r.PlayerID, r.NPCID = playerID, npcID
		f.records = append(f.records, r)
	}
	return append([]session.MemoryRecord{}, f.records...), nil
}

type fakeSummariser struct {
	rec *session.MemoryRecord
	err error
}

func (f fakeSummariser) ConsolidatePair(context.Context, string, string) (*session.MemoryRecord, error) {
	return f.rec, f.err
}

type fakeKnowledge struct {
	mu  sync.Mutex
	got knowledge.SearchRequest
}

func (f *fakeKnowledge) Search(_ context.Context, req knowledge.SearchRequest) ([]knowledge.Result, error) {
	f.mu.Lock()
	f.got = req
	f.mu.Unlock()
	if strings.TrimSpace(req.Query) == "" {
		return nil, knowledge.ErrEmptyQuery
	}
	return []knowledge.Result{
		{Entry: knowledge.Entry{ID: 7, Knowledge: "The king is ill.", LoreLevel: 1}, Score: 0.9},
	}, nil
}

type testEnv struct {
	srv       *httptest.Server
	chat      *fakeChat
	memories  *fakeMemories
	knowledge *fakeKnowledge
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	env := &testEnv{
		chat:      &fakeChat{},
		memories:  &fakeMemories{},
		knowledge: &fakeKnowledge{},
	}
	deps := Deps{
		Chat:  env.chat,
		World: fakeWorld{},
		Conversations: fakeConversations{turns: []session.ConversationTurn{
			{Role: session.RolePlayer, Text: "[CHAR(Erika:bob)] Hi", Timestamp: time.Unix(0, 0).UTC()},
		}},
		Memories:   env.memories,
		Summariser: fakeSummariser{rec: &session.MemoryRecord{ID: "01H", Summary: "They met."}},
		Knowledge:  env.knowledge,
	}
	env.srv = httptest.NewServer(New(deps, opts...).Handler())
	t.Cleanup(env.srv.Close)
	return env
}

func (e *testEnv) do(t *testing.T, method, path, body string, header http.Header) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, e.srv.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := e.srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp, data
}

// ─── routes ─────────────────────────────────────────────────────────────────

func TestRoutes(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
		wantBody   string
	}{
		{"npc found", http.MethodGet, "/npcs/bob", "", http.StatusOK, `"npc_id":"bob"`},
		{"npc missing", http.MethodGet, "/npcs/zed", "", http.StatusNotFound, `"error"`},
		{"scene found", http.MethodGet, "/scenes/tavern", "", http.StatusOK, `"npc_ids":["bob","ann"]`},
		{"scene missing", http.MethodGet, "/scenes/nowhere", "", http.StatusNotFound, `not found`},
		{
			"chat", http.MethodPost, "/scenes/chat",
			`{"player_id":"p1","npc_id":"bob","sentence":"hi","in_game_time":"dusk","scene_id":"tavern"}`,
			http.StatusOK, `"in_game_time":"dusk"`,
		},
		{"chat bad json", http.MethodPost, "/scenes/chat", `{"player_id":`, http.StatusBadRequest, `decode body`},
		{
			"chat generation error", http.MethodPost, "/scenes/chat",
			`{"player_id":"p1","sentence":"fail","scene_id":"tavern"}`,
			http.StatusBadGateway, `multiturn`,
		},
		{"conversation", http.MethodGet, "/conversations/p1/bob", "", http.StatusOK, `"role":"player"`},
		{"summarise", http.MethodPost, "/memory/p1/bob/summarise", "", http.StatusOK, `"summary":"They met."`},
		{"knowledge", http.MethodPost, "/knowledge/search", `{"npc_lore_level":2,"query":"king"}`, http.StatusOK, `"knowledge":"The king is ill."`},
		{"knowledge empty query", http.MethodPost, "/knowledge/search", `{"npc_lore_level":2}`, http.StatusBadRequest, `query is empty`},
		{"wrong method", http.MethodDelete, "/npcs/bob", "", http.StatusMethodNotAllowed, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			resp, body := env.do(t, tt.method, tt.path, tt.body, nil)
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status: got %d, want %d (body %s)", resp.StatusCode, tt.wantStatus, body)
			}
			if tt.wantBody != "" && !strings.Contains(string(body), tt.wantBody) {
				t.Errorf("body %s should contain %s", body, tt.wantBody)
			}
		})
	}
}

func TestKnowledgeSearchPassesLoreLevel(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	resp, body := env.do(t, http.MethodPost, "/knowledge/search", `{"npc_lore_level":3,"query":"dragons","top_k":2}`, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", resp.StatusCode, body)
	}
	env.knowledge.mu.Lock()
	got := env.knowledge.got
	env.knowledge.mu.Unlock()
	if got.NPCLoreLevel != 3 || got.TopK != 2 {
		t.Errorf("request: got %+v", got)
	}
	if strings.Contains(string(body), `"ID"`) {
		t.Errorf("entry ids should not be exposed: %s", body)
	}
}

func TestMemoryRoundTrip(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodGet, "/memory/p1/bob", "", nil)
	if resp.StatusCode != http.StatusOK || strings.TrimSpace(string(body)) != "[]" {
		t.Fatalf("empty memory: %d %s", resp.StatusCode, body)
	}

	resp, body = env.do(t, http.MethodPost, "/memory/p1/bob", `{"summary":"first"}`, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("add single: %d %s", resp.StatusCode, body)
	}
	resp, body = env.do(t, http.MethodPost, "/memory/p1/bob", `[{"summary":"second"},{"summary":"third"}]`, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("add list: %d %s", resp.StatusCode, body)
	}

	var records []session.MemoryRecord
	if err := json.Unmarshal(body, &records); err != nil {
		t.Fatal(err)
	}
	if len(records) != 3 || records[2].Summary != "third" || records[0].NPCID != "bob" {
		t.Errorf("records: %+v", records)
	}

	for _, bad := range []string{`[]`, `"nope"`} {
		if resp, _ := env.do(t, http.MethodPost, "/memory/p1/bob", bad, nil); resp.StatusCode != http.StatusBadRequest {
			t.Errorf("body %s: got status %d, want 400", bad, resp.StatusCode)
		}
	}
}

func TestSummariseNothingNew(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(New(Deps{Summariser: fakeSummariser{}}).Handler())
	defer srv.Close()

	resp, err := srv.Client().Post(srv.URL+"/memory/p1/bob/summarise", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status: got %d, want 204", resp.StatusCode)
	}
}

func TestUnregisteredRoutes(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(New(Deps{}).Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + "/npcs/bob")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status: got %d, want 404", resp.StatusCode)
	}
}

// ─── middleware ─────────────────────────────────────────────────────────────

func TestAPIKey(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t,
		WithAPIKey("s3cret"),
		WithHealth(health.New()),
		WithMetricsHandler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("# metrics"))
		})),
	)

	tests := []struct {
		name       string
		path       string
		key        string
		wantStatus int
	}{
		{"missing key", "/npcs/bob", "", http.StatusUnauthorized},
		{"wrong key", "/npcs/bob", "s3cres", http.StatusUnauthorized},
		{"prefix of key", "/npcs/bob", "s3c", http.StatusUnauthorized},
		{"valid key", "/npcs/bob", "s3cret", http.StatusOK},
		{"healthz exempt", "/healthz", "", http.StatusOK},
		{"readyz exempt", "/readyz", "", http.StatusOK},
		{"metrics exempt", "/metrics", "", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := http.Header{}
			if tt.key != "" {
				h.Set(apiKeyHeader, tt.key)
			}
			resp, body := env.do(t, http.MethodGet, tt.path, "", h)
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status: got %d, want %d (%s)", resp.StatusCode, tt.wantStatus, body)
			}
		})
	}
}

func TestRequestTimeout(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, WithRequestTimeout(20*time.Millisecond))
	env.chat.block = true

	resp, body := env.do(t, http.MethodPost, "/scenes/chat", `{"player_id":"p","sentence":"hi","scene_id":"tavern"}`, nil)
	if resp.StatusCode != http.StatusGatewayTimeout {
		t.Errorf("status: got %d, want 504 (%s)", resp.StatusCode, body)
	}
}

func TestStatusFor(t *testing.T) {
	t.Parallel()
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("x: %w", scene.ErrInvalidRequest), http.StatusBadRequest},
		{fmt.Errorf("x: %w", scene.ErrSceneNotFound), http.StatusNotFound},
		{fmt.Errorf("x: %w", scene.ErrNPCNotFound), http.StatusNotFound},
		{fmt.Errorf("%w: %w", scene.ErrGeneration, resilience.ErrAllFailed), http.StatusBadGateway},
		{fmt.Errorf("x: %w", resilience.ErrCircuitOpen), http.StatusServiceUnavailable},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

// ─── websocket ──────────────────────────────────────────────────────────────

func TestChatStream(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, WithAPIKey("k"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/scenes/chat/ws"
	if _, _, err := websocket.Dial(ctx, wsURL, nil); err == nil {
		t.Fatal("dial without API key should fail")
	}

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{apiKeyHeader: []string{"k"}},
	})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	type frame struct {
		scene.ChatResponse
		Error  string `json:"error"`
		Status int    `json:"status"`
	}
	exchange := func(payload string) frame {
		t.Helper()
		if err := conn.Write(ctx, websocket.MessageText, []byte(payload)); err != nil {
			t.Fatalf("write: %v", err)
		}
		var f frame
		if err := wsjson.Read(ctx, conn, &f); err != nil {
			t.Fatalf("read: %v", err)
		}
		return f
	}

	f := exchange(`{"player_id":"p1","sentence":"hi","scene_id":"tavern","in_game_time":"noon"}`)
	if f.Error != "" || f.SessionID != "sess-1" || f.InGameTime != "noon" {
		t.Errorf("first frame: %+v", f)
	}

	f = exchange(`not json`)
	if f.Status != http.StatusBadRequest || f.Error == "" {
		t.Errorf("malformed frame: %+v", f)
	}

	f = exchange(`{"player_id":"p1","sentence":"fail","scene_id":"tavern"}`)
	if f.Status != http.StatusBadGateway {
		t.Errorf("generation error frame: %+v", f)
	}

	f = exchange(`{"player_id":"p2","sentence":"again","scene_id":"tavern"}`)
	if f.PlayerID != "p2" {
		t.Errorf("connection should survive errors: %+v", f)
	}

	conn.Close(websocket.StatusNormalClosure, "")

	env.chat.mu.Lock()
	defer env.chat.mu.Unlock()
	if len(env.chat.calls) != 3 {
		t.Errorf("chat calls: got %d, want 3", len(env.chat.calls))
	}
}
