package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"cards-server/internal/game"
)

type stubContent struct {
	prompts   []game.PromptCard
	responses []string
}

func (c stubContent) Prompts() []game.PromptCard { return c.prompts }
func (c stubContent) Responses() []string        { return c.responses }

// testContent is a small fixed card collection so tests never depend on the
// embedded deck.
func testContent() game.ContentProvider {
	prompts := make([]game.PromptCard, 0, 8)
	for i := 0; i < 8; i++ {
		prompts = append(prompts, game.PromptCard{Text: fmt.Sprintf("Prompt %d: ____?", i), Blanks: 1})
	}
	responses := make([]string, 0, 40)
	for i := 0; i < 40; i++ {
		responses = append(responses, fmt.Sprintf("Response %02d", i))
	}
	return stubContent{prompts: prompts, responses: responses}
}

// newTestServerStruct builds a Server without binding a port, for tests that
// exercise internals directly.
func newTestServerStruct() *Server {
	return &Server{
		connectionManager: NewConnectionManager(),
		registry:          NewRegistry(),
		rooms:             NewRoomDirectory(),
		deck:              testContent(),
		shutdown:          make(chan struct{}),
	}
}

// setupTestServer starts the full HTTP+websocket stack on an ephemeral port
// and returns the websocket URL.
func setupTestServer() (*Server, string, func()) {
	s := newTestServerStruct()
	ts := httptest.NewServer(s.RegisterRoutes())
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/websocket"
	cleanup := func() {
		s.Shutdown(context.Background())
		ts.Close()
	}
	return s, url, cleanup
}

func mustMarshal(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}

func sendClientMessage(t *testing.T, ctx context.Context, conn *websocket.Conn, msgType string, payload interface{}) {
	t.Helper()
	msg := ClientMessage{Type: msgType}
	if payload != nil {
		msg.Payload = mustMarshal(payload)
	}
	if err := conn.Write(ctx, websocket.MessageText, mustMarshal(msg)); err != nil {
		t.Fatalf("failed to send %s: %v", msgType, err)
	}
}

// readMessageOfType reads server messages until one of the wanted type
// arrives, skipping unrelated broadcasts (timer_sync, public_games_list and
// friends arrive interleaved with direct replies).
func readMessageOfType(t *testing.T, ctx context.Context, conn *websocket.Conn, msgType string) ServerMessage {
	t.Helper()
	deadline, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	for {
		_, data, err := conn.Read(deadline)
		if err != nil {
			t.Fatalf("waiting for %s: %v", msgType, err)
		}
		var msg ServerMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("invalid server message while waiting for %s: %v", msgType, err)
		}
		if msg.Type == msgType {
			return msg
		}
	}
}

// decodePayload re-marshals a ServerMessage payload into a typed struct.
func decodePayload(t *testing.T, msg ServerMessage, out interface{}) {
	t.Helper()
	data, err := json.Marshal(msg.Payload)
	if err != nil {
		t.Fatalf("failed to re-marshal payload: %v", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		t.Fatalf("failed to decode %s payload: %v", msg.Type, err)
	}
}

// dialAs connects a websocket client and registers a username on it.
func dialAs(t *testing.T, ctx context.Context, url, username string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	sendClientMessage(t, ctx, conn, "set_username", SetUsernameRequest{Username: username})
	readMessageOfType(t, ctx, conn, "username_set")
	return conn
}
