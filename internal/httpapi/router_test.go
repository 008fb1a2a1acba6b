package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/support-chat/internal/auth"
	"github.com/suPer8Hu/support-chat/internal/chat"
	"github.com/suPer8Hu/support-chat/internal/config"
	"github.com/suPer8Hu/support-chat/internal/db"
	"github.com/suPer8Hu/support-chat/internal/httpapi/handlers"
	"github.com/suPer8Hu/support-chat/internal/responder"
	"github.com/suPer8Hu/support-chat/internal/store/rabbitmq"
)

const testSecret = "test-secret"

type fakeEvents struct {
	mu     sync.Mutex
	events []rabbitmq.ChatEvent
}

func (f *fakeEvents) Publish(_ context.Context, ev rabbitmq.ChatEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeEvents) types() []rabbitmq.EventType {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]rabbitmq.EventType, 0, len(f.events))
	for _, ev := range f.events {
		out = append(out, ev.Type)
	}
	return out
}

// denyAfter lets the first n calls through per key.
type denyAfter struct {
	mu   sync.Mutex
	n    int
	seen map[string]int
}

func (d *denyAfter) Allow(_ context.Context, key string, _ int, _ time.Duration) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen[key]++
	return d.seen[key] <= d.n, nil
}

type testEnv struct {
	router *gin.Engine
	events *fakeEvents
}

func newTestEnv(t *testing.T, limiter *denyAfter) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	gdb, err := db.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := gdb.AutoMigrate(chat.Models()...); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	sqlDB, _ := gdb.DB()
	t.Cleanup(func() { _ = sqlDB.Close() })

	cfg := config.Config{
		JWTSecret:      testSecret,
		AdminListLimit: 100,
		SendRateLimit:  2,
		SendRateWindow: time.Minute,
	}
	events := &fakeEvents{}
	h := handlers.NewHandler(gdb, cfg, responder.Default(), events)

	var r *gin.Engine
	if limiter != nil {
		r = NewRouter(cfg, h, limiter)
	} else {
		r = NewRouter(cfg, h, nil)
	}
	return &testEnv{router: r, events: events}
}

func token(t *testing.T, uid uint64, role string) string {
	t.Helper()
	tok, err := auth.SignJWT(uid, role, testSecret, time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tok
}

func (e *testEnv) do(t *testing.T, method, path, tok string, body any) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("%s %s: bad json %q: %v", method, path, w.Body.String(), err)
	}
	return w.Code, out
}

func (e *testEnv) open(t *testing.T, tok string, body any) string {
	t.Helper()
	code, out := e.do(t, http.MethodPost, "/chat/open", tok, body)
	if code != http.StatusOK {
		t.Fatalf("open: status=%d body=%v", code, out)
	}
	conv := out["conversation"].(map[string]any)
	return conv["conversationId"].(string)
}

func messagesOf(t *testing.T, out map[string]any) []map[string]any {
	t.Helper()
	raw, ok := out["messages"].([]any)
	if !ok {
		t.Fatalf("messages missing: %v", out)
	}
	msgs := make([]map[string]any, 0, len(raw))
	for _, m := range raw {
		msgs = append(msgs, m.(map[string]any))
	}
	return msgs
}

func TestPing(t *testing.T) {
	env := newTestEnv(t, nil)
	code, out := env.do(t, http.MethodGet, "/ping", "", nil)
	if code != http.StatusOK || out["success"] != true || out["message"] != "pong" {
		t.Fatalf("ping: status=%d body=%v", code, out)
	}
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t, nil)

	code, out := env.do(t, http.MethodPost, "/chat/open", "", nil)
	if code != http.StatusUnauthorized || out["success"] != false {
		t.Fatalf("no token: status=%d body=%v", code, out)
	}

	code, _ = env.do(t, http.MethodGet, "/chat/mine", "not-a-jwt", nil)
	if code != http.StatusUnauthorized {
		t.Fatalf("bad token: status=%d", code)
	}

	wrong, err := auth.SignJWT(1, auth.RoleCustomer, "other-secret", time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	code, _ = env.do(t, http.MethodGet, "/chat/mine", wrong, nil)
	if code != http.StatusUnauthorized {
		t.Fatalf("wrong secret: status=%d", code)
	}
}

func TestAdminRoutesRejectCustomers(t *testing.T) {
	env := newTestEnv(t, nil)
	code, out := env.do(t, http.MethodGet, "/admin/chat/conversations", token(t, 1, auth.RoleCustomer), nil)
	if code != http.StatusForbidden || out["success"] != false {
		t.Fatalf("status=%d body=%v", code, out)
	}
	if _, ok := out["code"]; !ok {
		t.Fatalf("error envelope missing code: %v", out)
	}
}

func TestCustomerRoutesRejectAdmins(t *testing.T) {
	env := newTestEnv(t, nil)
	cust := token(t, 1, auth.RoleCustomer)
	id := env.open(t, cust, nil)

	for _, role := range []string{auth.RoleAdmin, auth.RoleSuperAdmin} {
		admin := token(t, 1, role)
		code, out := env.do(t, http.MethodPost, "/chat/open", admin, nil)
		if code != http.StatusForbidden || out["success"] != false {
			t.Fatalf("%s open: status=%d body=%v", role, code, out)
		}
		code, _ = env.do(t, http.MethodPost, "/chat/"+id+"/messages", admin, map[string]any{"text": "hi"})
		if code != http.StatusForbidden {
			t.Fatalf("%s send as customer: status=%d", role, code)
		}
	}
}

func TestCustomerFlow(t *testing.T) {
	env := newTestEnv(t, nil)
	cust := token(t, 7, auth.RoleCustomer)

	id := env.open(t, cust, map[string]any{"orderId": "ORD-1"})
	if again := env.open(t, cust, map[string]any{"orderId": "ORD-1"}); again != id {
		t.Fatalf("open should resume %s, got %s", id, again)
	}

	code, out := env.do(t, http.MethodPost, "/chat/"+id+"/messages", cust, map[string]any{"text": "hi"})
	if code != http.StatusOK {
		t.Fatalf("send: status=%d body=%v", code, out)
	}
	msg := out["message"].(map[string]any)
	if msg["senderRole"] != string(chat.RoleCustomer) || msg["text"] != "hi" {
		t.Fatalf("unexpected message: %v", msg)
	}

	code, out = env.do(t, http.MethodGet, "/chat/"+id+"/messages", cust, nil)
	if code != http.StatusOK {
		t.Fatalf("list: status=%d body=%v", code, out)
	}
	msgs := messagesOf(t, out)
	if len(msgs) != 3 {
		t.Fatalf("want welcome, customer, bot; got %d: %v", len(msgs), msgs)
	}
	if msgs[0]["senderRole"] != string(chat.RoleSystem) ||
		msgs[1]["senderRole"] != string(chat.RoleCustomer) ||
		msgs[2]["senderRole"] != string(chat.RoleBot) {
		t.Fatalf("unexpected order: %v", msgs)
	}

	code, out = env.do(t, http.MethodGet, "/chat/mine", cust, nil)
	if code != http.StatusOK {
		t.Fatalf("mine: status=%d", code)
	}
	if convs := out["conversations"].([]any); len(convs) != 1 {
		t.Fatalf("want 1 conversation, got %d", len(convs))
	}

	code, out = env.do(t, http.MethodPatch, "/chat/"+id+"/end", cust, nil)
	if code != http.StatusOK {
		t.Fatalf("end: status=%d body=%v", code, out)
	}
	conv := out["conversation"].(map[string]any)
	if conv["status"] != string(chat.StatusEnded) || conv["endedBy"] != string(chat.SideCustomer) {
		t.Fatalf("unexpected end state: %v", conv)
	}

	code, out = env.do(t, http.MethodPost, "/chat/"+id+"/messages", cust, map[string]any{"text": "still there?"})
	if code != http.StatusConflict || out["success"] != false {
		t.Fatalf("send after end: status=%d body=%v", code, out)
	}

	// ending twice is a no-op
	code, _ = env.do(t, http.MethodPatch, "/chat/"+id+"/end", cust, nil)
	if code != http.StatusOK {
		t.Fatalf("second end: status=%d", code)
	}

	got := env.events.types()
	want := []rabbitmq.EventType{rabbitmq.EventConversationOpened, rabbitmq.EventConversationEnded}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("events=%v want %v", got, want)
	}
}

func TestOpenWithEmptyBody(t *testing.T) {
	env := newTestEnv(t, nil)
	cust := token(t, 3, auth.RoleCustomer)

	req := httptest.NewRequest(http.MethodPost, "/chat/open", nil)
	req.Header.Set("Authorization", "Bearer "+cust)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
}

func TestCustomerCannotTouchOthersConversation(t *testing.T) {
	env := newTestEnv(t, nil)
	owner := token(t, 1, auth.RoleCustomer)
	other := token(t, 2, auth.RoleCustomer)

	id := env.open(t, owner, nil)

	checks := []struct {
		method string
		path   string
		body   any
	}{
		{http.MethodGet, "/chat/" + id + "/messages", nil},
		{http.MethodPost, "/chat/" + id + "/messages", map[string]any{"text": "hello"}},
		{http.MethodPatch, "/chat/" + id + "/end", nil},
	}
	for _, c := range checks {
		code, out := env.do(t, c.method, c.path, other, c.body)
		if code != http.StatusForbidden || out["success"] != false {
			t.Fatalf("%s %s: status=%d body=%v", c.method, c.path, code, out)
		}
	}
}

func TestUnknownConversation(t *testing.T) {
	env := newTestEnv(t, nil)
	cust := token(t, 1, auth.RoleCustomer)
	admin := token(t, 99, auth.RoleAdmin)

	code, _ := env.do(t, http.MethodGet, "/chat/01HZZZZZZZZZZZZZZZZZZZZZZZ/messages", cust, nil)
	if code != http.StatusNotFound {
		t.Fatalf("customer list: status=%d", code)
	}
	code, _ = env.do(t, http.MethodPost, "/admin/chat/conversations/nope/messages", admin, map[string]any{"text": "hi"})
	if code != http.StatusNotFound {
		t.Fatalf("admin send: status=%d", code)
	}
	code, _ = env.do(t, http.MethodPatch, "/admin/chat/conversations/nope/end", admin, nil)
	if code != http.StatusNotFound {
		t.Fatalf("admin end: status=%d", code)
	}
}

func TestSendValidation(t *testing.T) {
	env := newTestEnv(t, nil)
	cust := token(t, 1, auth.RoleCustomer)
	id := env.open(t, cust, nil)

	code, out := env.do(t, http.MethodPost, "/chat/"+id+"/messages", cust, map[string]any{"text": ""})
	if code != http.StatusBadRequest || out["success"] != false {
		t.Fatalf("empty: status=%d body=%v", code, out)
	}
	code, _ = env.do(t, http.MethodPost, "/chat/"+id+"/messages", cust, map[string]any{"text": "   "})
	if code != http.StatusBadRequest {
		t.Fatalf("blank: status=%d", code)
	}
	code, _ = env.do(t, http.MethodGet, "/chat/"+id+"/messages?limit=-1", cust, nil)
	if code != http.StatusBadRequest {
		t.Fatalf("negative limit: status=%d", code)
	}
}

func TestAdminTakeOverFlow(t *testing.T) {
	env := newTestEnv(t, nil)
	cust := token(t, 5, auth.RoleCustomer)
	admin := token(t, 42, auth.RoleAdmin)

	id := env.open(t, cust, nil)

	code, out := env.do(t, http.MethodGet, "/admin/chat/conversations?status=open", admin, nil)
	if code != http.StatusOK {
		t.Fatalf("admin list: status=%d body=%v", code, out)
	}
	if convs := out["conversations"].([]any); len(convs) != 1 {
		t.Fatalf("want 1 open conversation, got %d", len(convs))
	}

	code, out = env.do(t, http.MethodGet, "/admin/chat/conversations?status=bogus", admin, nil)
	if code != http.StatusBadRequest {
		t.Fatalf("bad status filter: status=%d body=%v", code, out)
	}

	code, out = env.do(t, http.MethodPost, "/admin/chat/conversations/"+id+"/messages", admin, map[string]any{"text": "Hello, I'm here"})
	if code != http.StatusOK {
		t.Fatalf("admin send: status=%d body=%v", code, out)
	}
	if msg := out["message"].(map[string]any); msg["senderRole"] != string(chat.RoleAgent) {
		t.Fatalf("unexpected message: %v", msg)
	}

	// bot stays quiet once an agent is bound
	code, _ = env.do(t, http.MethodPost, "/chat/"+id+"/messages", cust, map[string]any{"text": "thanks"})
	if code != http.StatusOK {
		t.Fatalf("customer send: status=%d", code)
	}
	code, out = env.do(t, http.MethodGet, "/admin/chat/conversations/"+id+"/messages", admin, nil)
	if code != http.StatusOK {
		t.Fatalf("admin messages: status=%d", code)
	}
	msgs := messagesOf(t, out)
	last := msgs[len(msgs)-1]
	if last["senderRole"] != string(chat.RoleCustomer) || last["text"] != "thanks" {
		t.Fatalf("last message should be the customer's, got %v", last)
	}

	// the previous read marked everything read for the agent side
	_, out = env.do(t, http.MethodGet, "/admin/chat/conversations/"+id+"/messages", admin, nil)
	for _, m := range messagesOf(t, out) {
		if m["readByAgent"] != true {
			t.Fatalf("admin read should mark messages read: %v", m)
		}
	}

	code, out = env.do(t, http.MethodPatch, "/admin/chat/conversations/"+id+"/end", admin, nil)
	if code != http.StatusOK {
		t.Fatalf("admin end: status=%d", code)
	}
	if conv := out["conversation"].(map[string]any); conv["endedBy"] != string(chat.SideAgent) {
		t.Fatalf("unexpected end state: %v", conv)
	}

	code, _ = env.do(t, http.MethodPost, "/admin/chat/conversations/"+id+"/messages", admin, map[string]any{"text": "bye"})
	if code != http.StatusConflict {
		t.Fatalf("admin send after end: status=%d", code)
	}

	got := env.events.types()
	want := []rabbitmq.EventType{
		rabbitmq.EventConversationOpened,
		rabbitmq.EventConversationAssigned,
		rabbitmq.EventConversationEnded,
	}
	if len(got) != len(want) {
		t.Fatalf("events=%v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events=%v want %v", got, want)
		}
	}
}

func TestSendRateLimit(t *testing.T) {
	env := newTestEnv(t, &denyAfter{n: 2, seen: map[string]int{}})
	cust := token(t, 1, auth.RoleCustomer)
	id := env.open(t, cust, nil)

	for i := 0; i < 2; i++ {
		code, _ := env.do(t, http.MethodPost, "/chat/"+id+"/messages", cust, map[string]any{"text": "hi"})
		if code != http.StatusOK {
			t.Fatalf("send %d: status=%d", i, code)
		}
	}
	code, out := env.do(t, http.MethodPost, "/chat/"+id+"/messages", cust, map[string]any{"text": "hi"})
	if code != http.StatusTooManyRequests || out["success"] != false {
		t.Fatalf("third send: status=%d body=%v", code, out)
	}

	// reads are not limited
	code, _ = env.do(t, http.MethodGet, "/chat/"+id+"/messages", cust, nil)
	if code != http.StatusOK {
		t.Fatalf("list: status=%d", code)
	}
}

func TestUnknownRoute(t *testing.T) {
	env := newTestEnv(t, nil)
	code, out := env.do(t, http.MethodGet, "/nope", "", nil)
	if code != http.StatusNotFound || out["success"] != false {
		t.Fatalf("status=%d body=%v", code, out)
	}
}
