package gateway

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/DrayChou/personal-ai-assistant/internal/agent"
	"github.com/DrayChou/personal-ai-assistant/internal/auth"
	"github.com/DrayChou/personal-ai-assistant/internal/llm"
	"github.com/DrayChou/personal-ai-assistant/internal/sessions"
	"github.com/DrayChou/personal-ai-assistant/internal/tools"
	"github.com/DrayChou/personal-ai-assistant/pkg/models"
)

type scriptedAdapter struct {
	text string
}

func (a *scriptedAdapter) Generate(ctx context.Context, messages []models.Message, toolSpecs []llm.ToolSpec, choice llm.ToolChoice) (llm.Completion, error) {
	return llm.Completion{Text: a.text, FinishReason: "stop"}, nil
}

func newTestServer(t *testing.T, authToken string) (*httptest.Server, *websocket.Conn) {
	t.Helper()
	store := sessions.NewMemoryStore()
	loop := agent.NewLoop(&scriptedAdapter{text: "hello back"}, tools.NewRegistry(), store, nil, agent.DefaultOptions(), nil, nil)
	var authSvc *auth.Service
	if authToken != "" {
		authSvc = auth.NewService(authToken)
	}
	server := NewServer(store, loop, authSvc, nil, nil, 1000)

	httpServer := httptest.NewServer(server)
	wsURL := "ws" + strings.TrimPrefix(httpServer.URL, "http")

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() {
		conn.Close()
		httpServer.Close()
	})
	return httpServer, conn
}

func sendAndRecv(t *testing.T, conn *websocket.Conn, req map[string]any) map[string]any {
	t.Helper()
	data, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, resp, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(resp, &out); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	return out
}

func TestHealthRequiresNoAuth(t *testing.T) {
	_, conn := newTestServer(t, "secret-token")
	resp := sendAndRecv(t, conn, map[string]any{"jsonrpc": "2.0", "id": "h", "method": "health"})
	result, ok := resp["result"].(map[string]any)
	if !ok {
		t.Fatalf("expected a result, got %+v", resp)
	}
	if result["status"] != "ok" {
		t.Fatalf("unexpected health status: %+v", result)
	}
}

func TestChatSendWithoutTokenIsUnauthorized(t *testing.T) {
	_, conn := newTestServer(t, "secret-token")
	resp := sendAndRecv(t, conn, map[string]any{
		"jsonrpc": "2.0", "id": "1", "method": "chat.send",
		"params": map[string]any{"text": "hi", "session_key": "agent:a1:main"},
	})
	errObj, ok := resp["error"].(map[string]any)
	if !ok {
		t.Fatalf("expected an error, got %+v", resp)
	}
	if int(errObj["code"].(float64)) != CodeUnauthorized {
		t.Fatalf("expected -32001, got %v", errObj["code"])
	}
}

func TestChatSendSucceedsWithValidToken(t *testing.T) {
	_, conn := newTestServer(t, "secret-token")
	resp := sendAndRecv(t, conn, map[string]any{
		"jsonrpc": "2.0", "id": "1", "method": "chat.send",
		"params": map[string]any{"text": "hi", "session_key": "agent:a1:main", "token": "secret-token"},
	})
	result, ok := resp["result"].(map[string]any)
	if !ok {
		t.Fatalf("expected a result, got %+v", resp)
	}
	if result["text"] != "hello back" {
		t.Fatalf("unexpected text: %+v", result)
	}
}

func TestChatSendOversizedTextIsRejected(t *testing.T) {
	_, conn := newTestServer(t, "")
	oversized := strings.Repeat("a", 10001)
	resp := sendAndRecv(t, conn, map[string]any{
		"jsonrpc": "2.0", "id": "1", "method": "chat.send",
		"params": map[string]any{"text": oversized, "session_key": "agent:a1:main"},
	})
	errObj, ok := resp["error"].(map[string]any)
	if !ok {
		t.Fatalf("expected an error, got %+v", resp)
	}
	if int(errObj["code"].(float64)) != CodeInvalidParams {
		t.Fatalf("expected -32602, got %v", errObj["code"])
	}
}

func TestUnknownMethodReturnsMethodNotFound(t *testing.T) {
	_, conn := newTestServer(t, "")
	resp := sendAndRecv(t, conn, map[string]any{"jsonrpc": "2.0", "id": "1", "method": "nope"})
	errObj, ok := resp["error"].(map[string]any)
	if !ok {
		t.Fatalf("expected an error, got %+v", resp)
	}
	if int(errObj["code"].(float64)) != CodeMethodNotFound {
		t.Fatalf("expected -32601, got %v", errObj["code"])
	}
}

func TestSessionsDeleteIsIdempotent(t *testing.T) {
	_, conn := newTestServer(t, "")
	for i := 0; i < 2; i++ {
		resp := sendAndRecv(t, conn, map[string]any{
			"jsonrpc": "2.0", "id": "1", "method": "sessions.delete",
			"params": map[string]any{"session_key": "agent:a1:main"},
		})
		result, ok := resp["result"].(map[string]any)
		if !ok {
			t.Fatalf("expected a result, got %+v", resp)
		}
		if result["deleted"] != true {
			t.Fatalf("expected deleted:true, got %+v", result)
		}
	}
}

func TestChatSendStreamEmitsStartDeltaEnd(t *testing.T) {
	_, conn := newTestServer(t, "")
	data, _ := json.Marshal(map[string]any{
		"jsonrpc": "2.0", "id": "1", "method": "chat.send_stream",
		"params": map[string]any{"text": "hi", "session_key": "agent:a1:main"},
	})
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("write: %v", err)
	}

	var types []string
	for i := 0; i < 4; i++ {
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var frame map[string]any
		if err := json.Unmarshal(raw, &frame); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if frame["method"] == "event" {
			params := frame["params"].(map[string]any)
			types = append(types, params["type"].(string))
		} else {
			break
		}
	}
	if len(types) != 3 || types[0] != "chat.start" || types[1] != "chat.delta" || types[2] != "chat.end" {
		t.Fatalf("unexpected event sequence: %v", types)
	}
}
