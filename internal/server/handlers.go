package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/coder/websocket"

	"cards-server/internal/game"
)

// ============================================================================
// Helpers
// ============================================================================

// currentUser resolves the identity bound to a connection. Every
// non-registration intent goes through here and fails fast when the
// connection never set a username.
func (s *Server) currentUser(socket *websocket.Conn, ctx context.Context, connectionID string) (string, bool) {
	name := s.registry.NameByConn(connectionID)
	if name == "" {
		s.sendError(socket, ctx, "NOT_AUTHENTICATED: please set a username first")
		return "", false
	}
	return name, true
}

// currentRoom resolves the room an identity is bound to.
func (s *Server) currentRoom(socket *websocket.Conn, ctx context.Context, name string) (*game.Room, bool) {
	roomID := s.registry.RoomOf(name)
	if roomID == "" {
		s.sendError(socket, ctx, "NOT_IN_ROOM: you are not in a game")
		return nil, false
	}
	room, err := s.rooms.Get(roomID)
	if err != nil {
		// Room vanished underneath the binding; normalize to a safe state.
		s.registry.BindRoom(name, "")
		s.sendError(socket, ctx, "NOT_IN_ROOM: you are not in a game")
		return nil, false
	}
	return room, true
}

// detachFromRoom removes an identity from its bound room, handling the
// empty-room deletion and the departure broadcast. Returns the room the
// identity left, or nil.
func (s *Server) detachFromRoom(name string) *game.Room {
	roomID := s.registry.RoomOf(name)
	if roomID == "" {
		return nil
	}
	s.registry.BindRoom(name, "")

	room, err := s.rooms.Get(roomID)
	if err != nil {
		return nil
	}

	removed, empty := room.RemovePlayer(name)
	if empty {
		s.rooms.Delete(room.ID())
		return room
	}
	if removed {
		s.broadcastToRoom(room, "player_left", PlayerLeftNotification{
			Username: name,
			Game:     room.Snapshot("", true),
		})
		s.broadcastGameState(room, "game_state_update", false)
	}
	return room
}

// bindDeferredBroadcast wires the room's deferred-transition hook (winner
// confirmation firing outside any handler) to a state broadcast.
func (s *Server) bindDeferredBroadcast(room *game.Room) {
	room.SetDeferredChangeFunc(func() {
		s.broadcastGameState(room, "game_state_update", true)
	})
}

// ============================================================================
// Connection / identity intents
// ============================================================================

func (s *Server) handlePing(socket *websocket.Conn, ctx context.Context, connectionID string, payload json.RawMessage) {
	var req PingRequest
	req.StartTime = -1
	req.PingID = -1
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &req); err != nil {
			s.sendError(socket, ctx, "Invalid ping payload")
			return
		}
	}

	response := ServerMessage{
		Type: "pong",
		Payload: PongResponse{
			ServerTime: float64(time.Now().UnixMilli()) / 1000.0,
			StartTime:  req.StartTime,
			PingID:     req.PingID,
		},
	}
	if err := s.sendMessage(socket, ctx, response); err != nil {
		log.Printf("Failed to send pong to %s: %v", connectionID, err)
	}

	// A ping proves the transport is alive: refresh last-seen and flip the
	// identity (and its room shadow status) back to connected.
	if name, roomID, ok := s.registry.Touch(connectionID); ok && roomID != "" {
		if room, err := s.rooms.Get(roomID); err == nil {
			room.MarkConnectionStatus(name, game.StatusConnected)
		}
	}
}

func (s *Server) handleSetUsername(socket *websocket.Conn, ctx context.Context, connectionID string, payload json.RawMessage) {
	var req SetUsernameRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		s.sendError(socket, ctx, "Invalid set_username payload")
		return
	}

	name, err := s.registry.Register(req.Username, connectionID)
	if err != nil {
		response := ServerMessage{
			Type:    "username_error",
			Payload: ErrorMessage{Message: err.Error()},
		}
		if sendErr := s.sendMessage(socket, ctx, response); sendErr != nil {
			log.Printf("Failed to send username_error: %v", sendErr)
		}
		return
	}

	response := ServerMessage{
		Type:    "username_set",
		Payload: UsernameSetResponse{Username: name},
	}
	if err := s.sendMessage(socket, ctx, response); err != nil {
		log.Printf("Failed to send username_set: %v", err)
	}
}

// handleFunnyNameUsed serves the client's name-suggestion probe: given a
// list of candidates, answer with the first one nobody connected is using.
func (s *Server) handleFunnyNameUsed(socket *websocket.Conn, ctx context.Context, connectionID string, payload json.RawMessage) {
	var req NameSuggestionRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		s.sendError(socket, ctx, "Invalid funny_name_used payload")
		return
	}

	name, available := s.registry.FirstAvailableName(req.Names)
	if err := s.sendMessage(socket, ctx, ServerMessage{
		Type:    "funny_name_used_response",
		Payload: NameSuggestionResponse{Name: name, Available: available},
	}); err != nil {
		log.Printf("Failed to send funny_name_used_response to %s: %v", connectionID, err)
	}
}

func (s *Server) handleReconnect(socket *websocket.Conn, ctx context.Context, connectionID string, payload json.RawMessage) {
	var req ReconnectRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		s.sendError(socket, ctx, "Invalid reconnect payload")
		return
	}

	name, roomID, err := s.registry.Reconnect(req.Username, connectionID)
	if err != nil {
		// Both "name is live elsewhere" and "grace window expired" mean the
		// client's local state is stale and it should reload.
		s.sendMessage(socket, ctx, ServerMessage{
			Type: "reconnected",
			Payload: ReconnectedResponse{
				Success: false,
				Reload:  true,
				Message: err.Error(),
			},
		})
		return
	}

	var room *game.Room
	if roomID != "" {
		room, _ = s.rooms.Get(roomID)
	}

	s.sendMessage(socket, ctx, ServerMessage{
		Type:    "username_set",
		Payload: UsernameSetResponse{Username: name, HasGame: room != nil},
	})

	if room == nil {
		s.registry.BindRoom(name, "")
		s.sendMessage(socket, ctx, ServerMessage{
			Type:    "reconnected",
			Payload: ReconnectedResponse{Success: false},
		})
		return
	}

	room.MarkConnectionStatus(name, game.StatusConnected)

	snapshot := room.Snapshot(name, true)
	s.sendMessage(socket, ctx, ServerMessage{
		Type: "reconnected",
		Payload: ReconnectedResponse{
			Success: true,
			Game:    &snapshot,
		},
	})

	// Everyone else sees the member flip back to connected.
	s.broadcastGameState(room, "game_state_update", false)
}

// ============================================================================
// Room lifecycle intents
// ============================================================================

func (s *Server) handleCreateGame(socket *websocket.Conn, ctx context.Context, connectionID string, payload json.RawMessage) {
	name, ok := s.currentUser(socket, ctx, connectionID)
	if !ok {
		return
	}

	var req CreateGameRequest
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &req); err != nil {
			s.sendError(socket, ctx, "Invalid create_game payload")
			return
		}
	}

	// Route the overrides through the settings patch path so they get the
	// same trimming and range validation as a later update_settings.
	settings := game.DefaultSettings(name)
	patch := struct {
		Name     *string `json:"gameName,omitempty"`
		Public   *bool   `json:"publicVisible,omitempty"`
		Password *string `json:"password,omitempty"`
	}{Public: req.IsPublic}
	if req.Name != "" {
		patch.Name = &req.Name
	}
	if req.Password != "" {
		patch.Password = &req.Password
	}
	raw, err := json.Marshal(patch)
	if err == nil {
		err = settings.ApplyUpdate(raw)
	}
	if err != nil {
		s.sendError(socket, ctx, err.Error())
		return
	}

	// Creating a room while in another one implies leaving the old one.
	s.detachFromRoom(name)

	room := s.rooms.Create(name, s.deck, settings)
	s.bindDeferredBroadcast(room)
	s.registry.BindRoom(name, room.ID())

	s.sendMessage(socket, ctx, ServerMessage{
		Type:    "game_created",
		Payload: room.Snapshot(name, false),
	})
	s.broadcastPublicGames()
}

func (s *Server) handleGetPublicGames(socket *websocket.Conn, ctx context.Context, connectionID string) {
	if _, ok := s.currentUser(socket, ctx, connectionID); !ok {
		return
	}
	s.sendMessage(socket, ctx, ServerMessage{
		Type:    "public_games_list",
		Payload: PublicGamesList{Games: s.rooms.PublicList()},
	})
}

// handleGetGameInfo serves the join-by-link probe: enough metadata to render
// a join dialog without being in the room.
func (s *Server) handleGetGameInfo(socket *websocket.Conn, ctx context.Context, connectionID string, payload json.RawMessage) {
	if _, ok := s.currentUser(socket, ctx, connectionID); !ok {
		return
	}

	var req GameInfoRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		s.sendError(socket, ctx, "Invalid game info payload")
		return
	}

	room, err := s.rooms.Get(req.GameID)
	if err != nil {
		s.sendMessage(socket, ctx, ServerMessage{
			Type:    "game_info_link_join_error",
			Payload: ErrorMessage{Message: err.Error()},
		})
		return
	}

	settings := room.SettingsCopy()
	s.sendMessage(socket, ctx, ServerMessage{
		Type: "game_info_link_join",
		Payload: GameInfoResponse{
			ID:          room.ID(),
			Name:        settings.Name,
			HasPassword: settings.Password != "",
			Started:     room.Started(),
		},
	})
}

func (s *Server) handleGetGameState(socket *websocket.Conn, ctx context.Context, connectionID string) {
	name, ok := s.currentUser(socket, ctx, connectionID)
	if !ok {
		return
	}
	room, ok := s.currentRoom(socket, ctx, name)
	if !ok {
		return
	}
	s.sendMessage(socket, ctx, ServerMessage{
		Type:    "game_state_update",
		Payload: room.Snapshot(name, true),
	})
}

func (s *Server) handleJoinGame(socket *websocket.Conn, ctx context.Context, connectionID string, payload json.RawMessage) {
	name, ok := s.currentUser(socket, ctx, connectionID)
	if !ok {
		return
	}

	var req JoinGameRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		s.sendError(socket, ctx, "Invalid join_game payload")
		return
	}

	room, err := s.rooms.Get(req.GameID)
	if err != nil {
		s.sendError(socket, ctx, err.Error())
		return
	}
	if !room.CheckPassword(req.Password) {
		s.sendError(socket, ctx, "NOT_AUTHORIZED: wrong password")
		return
	}

	if err := room.AddPlayer(name, req.IsSpectator); err != nil {
		s.sendError(socket, ctx, err.Error())
		return
	}
	s.registry.BindRoom(name, room.ID())

	s.sendMessage(socket, ctx, ServerMessage{
		Type:    "game_joined",
		Payload: room.Snapshot(name, true),
	})
	s.broadcastToRoomExcept(room, name, "player_joined", PlayerJoinedNotification{
		Username:    name,
		IsSpectator: req.IsSpectator,
		Game:        room.Snapshot("", true),
	})
	s.broadcastPublicGames()
}

func (s *Server) handleLeaveGame(socket *websocket.Conn, ctx context.Context, connectionID string) {
	name, ok := s.currentUser(socket, ctx, connectionID)
	if !ok {
		return
	}
	if _, ok := s.currentRoom(socket, ctx, name); !ok {
		return
	}

	s.detachFromRoom(name)

	s.sendMessage(socket, ctx, ServerMessage{Type: "left_game", Payload: struct{}{}})
	s.broadcastPublicGames()
}

func (s *Server) handleKickPlayer(socket *websocket.Conn, ctx context.Context, connectionID string, payload json.RawMessage) {
	kicker, ok := s.currentUser(socket, ctx, connectionID)
	if !ok {
		return
	}
	room, ok := s.currentRoom(socket, ctx, kicker)
	if !ok {
		return
	}

	var req KickPlayerRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		s.sendError(socket, ctx, "Invalid kick_player payload")
		return
	}

	if room.Owner() != kicker {
		s.sendError(socket, ctx, "NOT_AUTHORIZED: only the owner can kick players")
		return
	}
	if room.Started() {
		s.sendError(socket, ctx, "INVALID_PHASE: players cannot be kicked during a game")
		return
	}
	if req.Username == kicker {
		s.sendError(socket, ctx, "VALIDATION: you cannot kick yourself")
		return
	}
	if !room.IsMember(req.Username) {
		s.sendError(socket, ctx, "NOT_FOUND: no such player in this game")
		return
	}

	removed, empty := room.RemovePlayer(req.Username)
	if !removed {
		s.sendError(socket, ctx, "NOT_FOUND: no such player in this game")
		return
	}
	s.registry.BindRoom(req.Username, "")

	s.sendToName(req.Username, "kicked_from_game", KickedNotification{
		Message: fmt.Sprintf("You were removed from the game by %s", kicker),
	})

	if empty {
		s.rooms.Delete(room.ID())
	} else {
		s.broadcastToRoom(room, "player_left", PlayerLeftNotification{
			Username: req.Username,
			Game:     room.Snapshot("", true),
		})
	}
	s.broadcastPublicGames()
}

// ============================================================================
// Role / settings intents
// ============================================================================

func (s *Server) handleToggleRole(socket *websocket.Conn, ctx context.Context, connectionID string) {
	name, ok := s.currentUser(socket, ctx, connectionID)
	if !ok {
		return
	}
	room, ok := s.currentRoom(socket, ctx, name)
	if !ok {
		return
	}

	role, err := room.ToggleRole(name)
	if err != nil {
		s.sendError(socket, ctx, err.Error())
		return
	}

	s.broadcastToRoom(room, "role_changed", RoleChangedNotification{
		Username: name,
		Role:     role,
		Game:     room.Snapshot("", false),
	})
}

func (s *Server) handleForceRole(socket *websocket.Conn, ctx context.Context, connectionID string, payload json.RawMessage) {
	owner, ok := s.currentUser(socket, ctx, connectionID)
	if !ok {
		return
	}
	room, ok := s.currentRoom(socket, ctx, owner)
	if !ok {
		return
	}

	var req ForceRoleRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		s.sendError(socket, ctx, "Invalid force_role payload")
		return
	}

	if room.Owner() != owner {
		s.sendError(socket, ctx, "NOT_AUTHORIZED: only the owner can change roles")
		return
	}
	if req.Username == owner {
		s.sendError(socket, ctx, "VALIDATION: use toggle_role to change your own role")
		return
	}

	role, err := room.ToggleRole(req.Username)
	if err != nil {
		s.sendError(socket, ctx, err.Error())
		return
	}

	s.broadcastToRoom(room, "role_changed", RoleChangedNotification{
		Username: req.Username,
		Role:     role,
		ForcedBy: owner,
		Game:     room.Snapshot("", false),
	})
}

func (s *Server) handleUpdateSettings(socket *websocket.Conn, ctx context.Context, connectionID string, payload json.RawMessage) {
	name, ok := s.currentUser(socket, ctx, connectionID)
	if !ok {
		return
	}
	room, ok := s.currentRoom(socket, ctx, name)
	if !ok {
		return
	}

	if room.Owner() != name {
		s.sendError(socket, ctx, "NOT_AUTHORIZED: only the owner can change settings")
		return
	}

	if err := room.UpdateSettings(payload); err != nil {
		s.sendError(socket, ctx, err.Error())
		return
	}

	s.broadcastGameState(room, "settings_updated", false)
	s.broadcastPublicGames()
}

// ============================================================================
// Gameplay intents
// ============================================================================

func (s *Server) handleStartGame(socket *websocket.Conn, ctx context.Context, connectionID string) {
	name, ok := s.currentUser(socket, ctx, connectionID)
	if !ok {
		return
	}
	room, ok := s.currentRoom(socket, ctx, name)
	if !ok {
		return
	}

	if room.Owner() != name {
		s.sendError(socket, ctx, "NOT_AUTHORIZED: only the owner can start the game")
		return
	}

	if err := room.StartGame(); err != nil {
		s.sendError(socket, ctx, err.Error())
		return
	}

	s.broadcastToRoom(room, "info", InfoMessage{Message: "Game started"})
	s.broadcastGameState(room, "game_started", false)
	s.broadcastPublicGames()
}

func (s *Server) handleSubmitAnswers(socket *websocket.Conn, ctx context.Context, connectionID string, payload json.RawMessage) {
	name, ok := s.currentUser(socket, ctx, connectionID)
	if !ok {
		return
	}
	room, ok := s.currentRoom(socket, ctx, name)
	if !ok {
		return
	}

	var req SubmitAnswersRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		s.sendError(socket, ctx, "Invalid submit_answers payload")
		return
	}

	submitted, total, err := room.SubmitResponse(name, req.AnswerIndices)
	if err != nil {
		s.sendError(socket, ctx, err.Error())
		return
	}

	s.broadcastToRoom(room, "player_submitted", PlayerSubmittedNotification{
		Username:       name,
		SubmittedCount: submitted,
		TotalPlayers:   total,
	})
	s.broadcastGameState(room, "game_state_update", true)
}

func (s *Server) handleVoteWinner(socket *websocket.Conn, ctx context.Context, connectionID string, payload json.RawMessage) {
	name, ok := s.currentUser(socket, ctx, connectionID)
	if !ok {
		return
	}
	room, ok := s.currentRoom(socket, ctx, name)
	if !ok {
		return
	}

	var req VoteWinnerRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		s.sendError(socket, ctx, "Invalid vote_winner payload")
		return
	}
	if req.WinnerIndex == nil {
		s.sendError(socket, ctx, "VALIDATION: no winner index given")
		return
	}

	if err := room.VoteWinner(name, *req.WinnerIndex); err != nil {
		s.sendError(socket, ctx, err.Error())
		return
	}

	// With a confirmation window configured the vote is only tentative here;
	// the snapshot shows the pending pick to the judge alone.
	s.broadcastGameState(room, "game_state_update", true)
}

func (s *Server) handlePauseGame(socket *websocket.Conn, ctx context.Context, connectionID string) {
	name, ok := s.currentUser(socket, ctx, connectionID)
	if !ok {
		return
	}
	room, ok := s.currentRoom(socket, ctx, name)
	if !ok {
		return
	}

	if room.Owner() != name {
		s.sendError(socket, ctx, "NOT_AUTHORIZED: only the owner can pause the game")
		return
	}

	timeLeft, err := room.Pause()
	if err != nil {
		s.sendError(socket, ctx, err.Error())
		return
	}

	s.broadcastToRoom(room, "game_paused", PauseStateNotification{TimeLeft: timeLeft})
}

func (s *Server) handleResumeGame(socket *websocket.Conn, ctx context.Context, connectionID string) {
	name, ok := s.currentUser(socket, ctx, connectionID)
	if !ok {
		return
	}
	room, ok := s.currentRoom(socket, ctx, name)
	if !ok {
		return
	}

	if room.Owner() != name {
		s.sendError(socket, ctx, "NOT_AUTHORIZED: only the owner can resume the game")
		return
	}

	timeLeft, err := room.Resume()
	if err != nil {
		s.sendError(socket, ctx, err.Error())
		return
	}

	s.broadcastToRoom(room, "game_resumed", PauseStateNotification{TimeLeft: timeLeft})
}

func (s *Server) handleResetToLobby(socket *websocket.Conn, ctx context.Context, connectionID string) {
	name, ok := s.currentUser(socket, ctx, connectionID)
	if !ok {
		return
	}
	room, ok := s.currentRoom(socket, ctx, name)
	if !ok {
		return
	}

	if room.Owner() != name {
		s.sendError(socket, ctx, "NOT_AUTHORIZED: only the owner can reset the game")
		return
	}

	if err := room.ResetToLobby(); err != nil {
		s.sendError(socket, ctx, err.Error())
		return
	}

	s.broadcastGameState(room, "game_reset_to_lobby", true)
	s.broadcastPublicGames()
}
