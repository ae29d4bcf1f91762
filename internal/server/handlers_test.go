package server

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"

	"cards-server/internal/game"
)

// ============================================================================
// CONNECTION BASICS
// ============================================================================

func TestWebSocketPingPong(t *testing.T) {
	ctx := context.Background()
	_, url, cleanup := setupTestServer()
	defer cleanup()

	conn, _, err := websocket.Dial(ctx, url, nil)
	assert.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	sendClientMessage(t, ctx, conn, "ping", PingRequest{StartTime: 123.5, PingID: 7})

	msg := readMessageOfType(t, ctx, conn, "pong")
	var pong PongResponse
	decodePayload(t, msg, &pong)
	assert.Equal(t, 123.5, pong.StartTime)
	assert.Equal(t, 7, pong.PingID)
	assert.Greater(t, pong.ServerTime, 0.0)
}

func TestWebSocketInvalidJSON(t *testing.T) {
	ctx := context.Background()
	_, url, cleanup := setupTestServer()
	defer cleanup()

	conn, _, err := websocket.Dial(ctx, url, nil)
	assert.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	err = conn.Write(ctx, websocket.MessageText, []byte("junk"))
	assert.NoError(t, err)
	readMessageOfType(t, ctx, conn, "error")

	// The connection survives bad input.
	sendClientMessage(t, ctx, conn, "ping", nil)
	readMessageOfType(t, ctx, conn, "pong")
}

func TestUnknownMessageType(t *testing.T) {
	ctx := context.Background()
	_, url, cleanup := setupTestServer()
	defer cleanup()

	conn, _, err := websocket.Dial(ctx, url, nil)
	assert.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	sendClientMessage(t, ctx, conn, "do_a_barrel_roll", nil)

	msg := readMessageOfType(t, ctx, conn, "error")
	var errMsg ErrorMessage
	decodePayload(t, msg, &errMsg)
	assert.Contains(t, errMsg.Message, "Unknown message type")
}

// ============================================================================
// USERNAME REGISTRATION
// ============================================================================

func TestSetUsername_Success(t *testing.T) {
	ctx := context.Background()
	s, url, cleanup := setupTestServer()
	defer cleanup()

	conn := dialAs(t, ctx, url, "Alice")
	defer conn.Close(websocket.StatusNormalClosure, "")

	assert.Equal(t, 1, s.registry.Count())
}

func TestSetUsername_TooShort(t *testing.T) {
	ctx := context.Background()
	_, url, cleanup := setupTestServer()
	defer cleanup()

	conn, _, err := websocket.Dial(ctx, url, nil)
	assert.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	sendClientMessage(t, ctx, conn, "set_username", SetUsernameRequest{Username: "a"})

	msg := readMessageOfType(t, ctx, conn, "username_error")
	var errMsg ErrorMessage
	decodePayload(t, msg, &errMsg)
	assert.Contains(t, errMsg.Message, "VALIDATION")
}

func TestSetUsername_NameTaken(t *testing.T) {
	ctx := context.Background()
	_, url, cleanup := setupTestServer()
	defer cleanup()

	alice := dialAs(t, ctx, url, "Alice")
	defer alice.Close(websocket.StatusNormalClosure, "")

	impostor, _, err := websocket.Dial(ctx, url, nil)
	assert.NoError(t, err)
	defer impostor.Close(websocket.StatusNormalClosure, "")

	sendClientMessage(t, ctx, impostor, "set_username", SetUsernameRequest{Username: "Alice"})

	msg := readMessageOfType(t, ctx, impostor, "username_error")
	var errMsg ErrorMessage
	decodePayload(t, msg, &errMsg)
	assert.Contains(t, errMsg.Message, "NAME_TAKEN")
}

func TestFunnyNameUsed(t *testing.T) {
	ctx := context.Background()
	_, url, cleanup := setupTestServer()
	defer cleanup()

	alice := dialAs(t, ctx, url, "Silly Goose")
	defer alice.Close(websocket.StatusNormalClosure, "")

	probe, _, err := websocket.Dial(ctx, url, nil)
	assert.NoError(t, err)
	defer probe.Close(websocket.StatusNormalClosure, "")

	sendClientMessage(t, ctx, probe, "funny_name_used",
		NameSuggestionRequest{Names: []string{"Silly Goose", "Brave Toaster"}})

	msg := readMessageOfType(t, ctx, probe, "funny_name_used_response")
	var suggestion NameSuggestionResponse
	decodePayload(t, msg, &suggestion)
	assert.True(t, suggestion.Available)
	assert.Equal(t, "Brave Toaster", suggestion.Name)
}

// ============================================================================
// GAME CREATION / JOINING
// ============================================================================

func TestCreateGame_RequiresUsername(t *testing.T) {
	ctx := context.Background()
	_, url, cleanup := setupTestServer()
	defer cleanup()

	conn, _, err := websocket.Dial(ctx, url, nil)
	assert.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	sendClientMessage(t, ctx, conn, "create_game", CreateGameRequest{Name: "No Name Yet"})

	msg := readMessageOfType(t, ctx, conn, "error")
	var errMsg ErrorMessage
	decodePayload(t, msg, &errMsg)
	assert.Contains(t, errMsg.Message, "NOT_AUTHENTICATED")
}

func TestCreateGame_Success(t *testing.T) {
	ctx := context.Background()
	s, url, cleanup := setupTestServer()
	defer cleanup()

	conn := dialAs(t, ctx, url, "Alice")
	defer conn.Close(websocket.StatusNormalClosure, "")

	sendClientMessage(t, ctx, conn, "create_game", CreateGameRequest{Name: "Friday Night"})

	msg := readMessageOfType(t, ctx, conn, "game_created")
	var snap game.Snapshot
	decodePayload(t, msg, &snap)

	assert.NotEmpty(t, snap.ID)
	assert.Equal(t, "Alice", snap.Owner)
	assert.Equal(t, game.PhaseLobby, snap.Phase)
	assert.Equal(t, []string{"Alice"}, snap.ActivePlayers)
	assert.Equal(t, "Friday Night", snap.Settings.Name)
	assert.Equal(t, 1, s.rooms.Count())
}

func TestCreateGame_RejectsInvalidSettings(t *testing.T) {
	ctx := context.Background()
	s, url, cleanup := setupTestServer()
	defer cleanup()

	conn := dialAs(t, ctx, url, "Alice")
	defer conn.Close(websocket.StatusNormalClosure, "")

	longName := strings.Repeat("x", 51)
	sendClientMessage(t, ctx, conn, "create_game", CreateGameRequest{Name: longName})

	msg := readMessageOfType(t, ctx, conn, "error")
	var errMsg ErrorMessage
	decodePayload(t, msg, &errMsg)
	assert.Contains(t, errMsg.Message, "VALIDATION")
	assert.Equal(t, 0, s.rooms.Count())
}

func createGame(t *testing.T, ctx context.Context, conn *websocket.Conn, req CreateGameRequest) game.Snapshot {
	t.Helper()
	sendClientMessage(t, ctx, conn, "create_game", req)
	msg := readMessageOfType(t, ctx, conn, "game_created")
	var snap game.Snapshot
	decodePayload(t, msg, &snap)
	return snap
}

func TestJoinGame_Flow(t *testing.T) {
	ctx := context.Background()
	_, url, cleanup := setupTestServer()
	defer cleanup()

	alice := dialAs(t, ctx, url, "Alice")
	defer alice.Close(websocket.StatusNormalClosure, "")
	created := createGame(t, ctx, alice, CreateGameRequest{})

	bob := dialAs(t, ctx, url, "Bob")
	defer bob.Close(websocket.StatusNormalClosure, "")
	sendClientMessage(t, ctx, bob, "join_game", JoinGameRequest{GameID: created.ID})

	msg := readMessageOfType(t, ctx, bob, "game_joined")
	var snap game.Snapshot
	decodePayload(t, msg, &snap)
	assert.Equal(t, []string{"Alice", "Bob"}, snap.ActivePlayers)

	// The owner is notified about the newcomer.
	msg = readMessageOfType(t, ctx, alice, "player_joined")
	var joined PlayerJoinedNotification
	decodePayload(t, msg, &joined)
	assert.Equal(t, "Bob", joined.Username)
	assert.False(t, joined.IsSpectator)
}

func TestJoinGame_WrongPassword(t *testing.T) {
	ctx := context.Background()
	_, url, cleanup := setupTestServer()
	defer cleanup()

	alice := dialAs(t, ctx, url, "Alice")
	defer alice.Close(websocket.StatusNormalClosure, "")
	created := createGame(t, ctx, alice, CreateGameRequest{Password: "secret"})

	bob := dialAs(t, ctx, url, "Bob")
	defer bob.Close(websocket.StatusNormalClosure, "")
	sendClientMessage(t, ctx, bob, "join_game", JoinGameRequest{GameID: created.ID, Password: "wrong"})

	msg := readMessageOfType(t, ctx, bob, "error")
	var errMsg ErrorMessage
	decodePayload(t, msg, &errMsg)
	assert.Contains(t, errMsg.Message, "NOT_AUTHORIZED")
}

func TestJoinGame_UnknownRoom(t *testing.T) {
	ctx := context.Background()
	_, url, cleanup := setupTestServer()
	defer cleanup()

	bob := dialAs(t, ctx, url, "Bob")
	defer bob.Close(websocket.StatusNormalClosure, "")
	sendClientMessage(t, ctx, bob, "join_game", JoinGameRequest{GameID: "nope"})

	msg := readMessageOfType(t, ctx, bob, "error")
	var errMsg ErrorMessage
	decodePayload(t, msg, &errMsg)
	assert.Contains(t, errMsg.Message, "ROOM_NOT_FOUND")
}

func TestLeaveGame(t *testing.T) {
	ctx := context.Background()
	_, url, cleanup := setupTestServer()
	defer cleanup()

	alice := dialAs(t, ctx, url, "Alice")
	defer alice.Close(websocket.StatusNormalClosure, "")
	created := createGame(t, ctx, alice, CreateGameRequest{})

	bob := dialAs(t, ctx, url, "Bob")
	defer bob.Close(websocket.StatusNormalClosure, "")
	sendClientMessage(t, ctx, bob, "join_game", JoinGameRequest{GameID: created.ID})
	readMessageOfType(t, ctx, bob, "game_joined")

	sendClientMessage(t, ctx, bob, "leave_game", nil)
	readMessageOfType(t, ctx, bob, "left_game")

	msg := readMessageOfType(t, ctx, alice, "player_left")
	var left PlayerLeftNotification
	decodePayload(t, msg, &left)
	assert.Equal(t, "Bob", left.Username)
	assert.Equal(t, []string{"Alice"}, left.Game.ActivePlayers)
}

func TestKickPlayer(t *testing.T) {
	ctx := context.Background()
	_, url, cleanup := setupTestServer()
	defer cleanup()

	alice := dialAs(t, ctx, url, "Alice")
	defer alice.Close(websocket.StatusNormalClosure, "")
	created := createGame(t, ctx, alice, CreateGameRequest{})

	bob := dialAs(t, ctx, url, "Bob")
	defer bob.Close(websocket.StatusNormalClosure, "")
	sendClientMessage(t, ctx, bob, "join_game", JoinGameRequest{GameID: created.ID})
	readMessageOfType(t, ctx, bob, "game_joined")

	// Only the owner may kick.
	sendClientMessage(t, ctx, bob, "kick_player", KickPlayerRequest{Username: "Alice"})
	msg := readMessageOfType(t, ctx, bob, "error")
	var errMsg ErrorMessage
	decodePayload(t, msg, &errMsg)
	assert.Contains(t, errMsg.Message, "NOT_AUTHORIZED")

	sendClientMessage(t, ctx, alice, "kick_player", KickPlayerRequest{Username: "Bob"})

	msg = readMessageOfType(t, ctx, bob, "kicked_from_game")
	var kicked KickedNotification
	decodePayload(t, msg, &kicked)
	assert.Contains(t, kicked.Message, "Alice")

	msg = readMessageOfType(t, ctx, alice, "player_left")
	var left PlayerLeftNotification
	decodePayload(t, msg, &left)
	assert.Equal(t, "Bob", left.Username)
}

// ============================================================================
// SETTINGS / ROLES
// ============================================================================

func TestUpdateSettings(t *testing.T) {
	ctx := context.Background()
	_, url, cleanup := setupTestServer()
	defer cleanup()

	alice := dialAs(t, ctx, url, "Alice")
	defer alice.Close(websocket.StatusNormalClosure, "")
	createGame(t, ctx, alice, CreateGameRequest{})

	sendClientMessage(t, ctx, alice, "update_settings",
		map[string]interface{}{"gameName": "Renamed", "maxPointsToWin": 3})

	msg := readMessageOfType(t, ctx, alice, "settings_updated")
	var snap game.Snapshot
	decodePayload(t, msg, &snap)
	assert.Equal(t, "Renamed", snap.Settings.Name)
	assert.Equal(t, 3, snap.Settings.PointsToWin)
}

func TestUpdateSettings_OwnerOnly(t *testing.T) {
	ctx := context.Background()
	_, url, cleanup := setupTestServer()
	defer cleanup()

	alice := dialAs(t, ctx, url, "Alice")
	defer alice.Close(websocket.StatusNormalClosure, "")
	created := createGame(t, ctx, alice, CreateGameRequest{})

	bob := dialAs(t, ctx, url, "Bob")
	defer bob.Close(websocket.StatusNormalClosure, "")
	sendClientMessage(t, ctx, bob, "join_game", JoinGameRequest{GameID: created.ID})
	readMessageOfType(t, ctx, bob, "game_joined")

	sendClientMessage(t, ctx, bob, "update_settings", map[string]interface{}{"gameName": "Hijacked"})

	msg := readMessageOfType(t, ctx, bob, "error")
	var errMsg ErrorMessage
	decodePayload(t, msg, &errMsg)
	assert.Contains(t, errMsg.Message, "NOT_AUTHORIZED")
}

func TestToggleRole(t *testing.T) {
	ctx := context.Background()
	_, url, cleanup := setupTestServer()
	defer cleanup()

	alice := dialAs(t, ctx, url, "Alice")
	defer alice.Close(websocket.StatusNormalClosure, "")
	createGame(t, ctx, alice, CreateGameRequest{})

	sendClientMessage(t, ctx, alice, "toggle_role", nil)

	msg := readMessageOfType(t, ctx, alice, "role_changed")
	var changed RoleChangedNotification
	decodePayload(t, msg, &changed)
	assert.Equal(t, "Alice", changed.Username)
	assert.Equal(t, "spectator", changed.Role)
	assert.Empty(t, changed.ForcedBy)
	assert.Equal(t, []string{"Alice"}, changed.Game.Spectators)
}

// ============================================================================
// GAMEPLAY OVER THE WIRE
// ============================================================================

func TestStartGame_Flow(t *testing.T) {
	ctx := context.Background()
	_, url, cleanup := setupTestServer()
	defer cleanup()

	alice := dialAs(t, ctx, url, "Alice")
	defer alice.Close(websocket.StatusNormalClosure, "")
	created := createGame(t, ctx, alice, CreateGameRequest{})

	conns := []*websocket.Conn{alice}
	for _, name := range []string{"Bob", "Cleo"} {
		conn := dialAs(t, ctx, url, name)
		defer conn.Close(websocket.StatusNormalClosure, "")
		sendClientMessage(t, ctx, conn, "join_game", JoinGameRequest{GameID: created.ID})
		readMessageOfType(t, ctx, conn, "game_joined")
		conns = append(conns, conn)
	}

	sendClientMessage(t, ctx, alice, "start_game", nil)

	for _, conn := range conns {
		msg := readMessageOfType(t, ctx, conn, "game_started")
		var snap game.Snapshot
		decodePayload(t, msg, &snap)
		assert.Equal(t, game.PhaseChoosing, snap.Phase)
		assert.NotEmpty(t, snap.Judge)
		assert.NotNil(t, snap.Prompt)
		assert.Len(t, snap.Hand, snap.Settings.HandSize)
	}
}

func TestStartGame_TooFewPlayers(t *testing.T) {
	ctx := context.Background()
	_, url, cleanup := setupTestServer()
	defer cleanup()

	alice := dialAs(t, ctx, url, "Alice")
	defer alice.Close(websocket.StatusNormalClosure, "")
	createGame(t, ctx, alice, CreateGameRequest{})

	sendClientMessage(t, ctx, alice, "start_game", nil)

	msg := readMessageOfType(t, ctx, alice, "error")
	var errMsg ErrorMessage
	decodePayload(t, msg, &errMsg)
	assert.Contains(t, errMsg.Message, "VALIDATION")
}

func TestSubmitAnswers_WrongPhase(t *testing.T) {
	ctx := context.Background()
	_, url, cleanup := setupTestServer()
	defer cleanup()

	alice := dialAs(t, ctx, url, "Alice")
	defer alice.Close(websocket.StatusNormalClosure, "")
	createGame(t, ctx, alice, CreateGameRequest{})

	sendClientMessage(t, ctx, alice, "submit_answers", SubmitAnswersRequest{AnswerIndices: []int{0}})

	msg := readMessageOfType(t, ctx, alice, "error")
	var errMsg ErrorMessage
	decodePayload(t, msg, &errMsg)
	assert.Contains(t, errMsg.Message, "INVALID_PHASE")
}

// ============================================================================
// RECONNECTION
// ============================================================================

func TestReconnect_Flow(t *testing.T) {
	ctx := context.Background()
	s, url, cleanup := setupTestServer()
	defer cleanup()

	alice := dialAs(t, ctx, url, "Alice")
	created := createGame(t, ctx, alice, CreateGameRequest{})

	alice.Close(websocket.StatusNormalClosure, "")

	// Wait for the server side to notice the close and open the grace window.
	assert.Eventually(t, func() bool {
		ident, ok := s.registry.Lookup("Alice")
		return ok && ident.Status == game.StatusDisconnecting
	}, 2*time.Second, 10*time.Millisecond)

	fresh, _, err := websocket.Dial(ctx, url, nil)
	assert.NoError(t, err)
	defer fresh.Close(websocket.StatusNormalClosure, "")

	sendClientMessage(t, ctx, fresh, "reconnect_user", ReconnectRequest{Username: "Alice"})

	msg := readMessageOfType(t, ctx, fresh, "username_set")
	var set UsernameSetResponse
	decodePayload(t, msg, &set)
	assert.Equal(t, "Alice", set.Username)
	assert.True(t, set.HasGame)

	msg = readMessageOfType(t, ctx, fresh, "reconnected")
	var rec ReconnectedResponse
	decodePayload(t, msg, &rec)
	assert.True(t, rec.Success)
	assert.NotNil(t, rec.Game)
	assert.Equal(t, created.ID, rec.Game.ID)
}

func TestReconnect_UnknownName(t *testing.T) {
	ctx := context.Background()
	_, url, cleanup := setupTestServer()
	defer cleanup()

	conn, _, err := websocket.Dial(ctx, url, nil)
	assert.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	sendClientMessage(t, ctx, conn, "reconnect_user", ReconnectRequest{Username: "Ghost"})

	msg := readMessageOfType(t, ctx, conn, "reconnected")
	var rec ReconnectedResponse
	decodePayload(t, msg, &rec)
	assert.False(t, rec.Success)
	assert.True(t, rec.Reload)
}

// ============================================================================
// PUBLIC LISTING
// ============================================================================

func TestGetPublicGames(t *testing.T) {
	ctx := context.Background()
	_, url, cleanup := setupTestServer()
	defer cleanup()

	alice := dialAs(t, ctx, url, "Alice")
	defer alice.Close(websocket.StatusNormalClosure, "")
	created := createGame(t, ctx, alice, CreateGameRequest{Name: "Open Table"})

	bob := dialAs(t, ctx, url, "Bob")
	defer bob.Close(websocket.StatusNormalClosure, "")
	sendClientMessage(t, ctx, bob, "get_public_games", nil)

	msg := readMessageOfType(t, ctx, bob, "public_games_list")
	var list PublicGamesList
	decodePayload(t, msg, &list)
	assert.Len(t, list.Games, 1)
	assert.Equal(t, created.ID, list.Games[0].ID)
	assert.Equal(t, "Open Table", list.Games[0].Name)
}

func TestGetGameInfo(t *testing.T) {
	ctx := context.Background()
	_, url, cleanup := setupTestServer()
	defer cleanup()

	alice := dialAs(t, ctx, url, "Alice")
	defer alice.Close(websocket.StatusNormalClosure, "")
	created := createGame(t, ctx, alice, CreateGameRequest{Name: "Linked", Password: "pw"})

	bob := dialAs(t, ctx, url, "Bob")
	defer bob.Close(websocket.StatusNormalClosure, "")
	sendClientMessage(t, ctx, bob, "get_game_info_link_join", GameInfoRequest{GameID: created.ID})

	msg := readMessageOfType(t, ctx, bob, "game_info_link_join")
	var info GameInfoResponse
	decodePayload(t, msg, &info)
	assert.Equal(t, created.ID, info.ID)
	assert.Equal(t, "Linked", info.Name)
	assert.True(t, info.HasPassword)
	assert.False(t, info.Started)
}
