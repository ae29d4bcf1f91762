package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"cards-server/internal/game"
)

func (s *Server) RegisterRoutes() http.Handler {
	r := chi.NewRouter()

	r.Get("/", s.indexHandler)
	r.Get("/health", s.healthHandler)
	r.Get("/websocket", s.websocketHandler)

	// Wrap the router with CORS middleware
	return s.corsMiddleware(r)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type")

		// Handle preflight OPTIONS requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) indexHandler(w http.ResponseWriter, r *http.Request) {
	resp := map[string]string{"message": "cards-server"}
	jsonResp, err := json.Marshal(resp)
	if err != nil {
		http.Error(w, "Failed to marshal response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(jsonResp); err != nil {
		log.Printf("Failed to write response: %v", err)
	}
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	resp, err := json.Marshal(map[string]interface{}{
		"status":      "up",
		"rooms":       s.rooms.Count(),
		"identities":  s.registry.Count(),
		"connections": s.connectionManager.Count(),
	})
	if err != nil {
		http.Error(w, "Failed to marshal health check response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(resp); err != nil {
		log.Printf("Failed to write response: %v", err)
	}
}

func (s *Server) websocketHandler(w http.ResponseWriter, r *http.Request) {
	socket, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"}, // TODO: make environment-specific
	})
	if err != nil {
		http.Error(w, "Failed to open websocket", http.StatusInternalServerError)
		return
	}
	defer socket.Close(websocket.StatusGoingAway, "Server closing")

	ctx := r.Context()

	connectionID := uuid.New().String()
	log.Printf("New connection: %s", connectionID)
	s.connectionManager.AddConnection(connectionID, socket)

	// The scheduler starts with the first connection and runs for the
	// lifetime of the process.
	s.startTickLoop()

	defer func() {
		s.connectionManager.RemoveConnection(connectionID)
		log.Printf("Connection closed: %s", connectionID)

		// The identity is not removed yet: it enters the reconnect grace
		// window and the scheduler sweeps it if nobody comes back.
		name, roomID, ok := s.registry.MarkDisconnecting(connectionID)
		if !ok {
			return
		}
		log.Printf("User %s disconnecting, grace window opened", name)

		if roomID != "" {
			if room, err := s.rooms.Get(roomID); err == nil {
				room.MarkConnectionStatus(name, game.StatusDisconnecting)
				s.broadcastGameState(room, "game_state_update", false)
			}
		}
	}()

	for {
		msgType, data, err := socket.Read(ctx)
		if err != nil {
			log.Printf("Connection %s read error: %v", connectionID, err)
			return
		}

		if msgType != websocket.MessageText {
			log.Printf("Non-text input from %s", connectionID)
			continue
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("Invalid JSON from %s: %v", connectionID, err)
			s.sendError(socket, ctx, "Invalid JSON")
			continue
		}

		s.routeMessage(socket, r.Context(), connectionID, msg)
	}
}

func (s *Server) routeMessage(socket *websocket.Conn, ctx context.Context, connectionID string, msg ClientMessage) {
	switch msg.Type {
	case "ping":
		s.handlePing(socket, ctx, connectionID, msg.Payload)
	case "set_username":
		s.handleSetUsername(socket, ctx, connectionID, msg.Payload)
	case "funny_name_used":
		s.handleFunnyNameUsed(socket, ctx, connectionID, msg.Payload)
	case "reconnect_user":
		s.handleReconnect(socket, ctx, connectionID, msg.Payload)
	case "create_game":
		s.handleCreateGame(socket, ctx, connectionID, msg.Payload)
	case "get_public_games":
		s.handleGetPublicGames(socket, ctx, connectionID)
	case "get_game_info_link_join":
		s.handleGetGameInfo(socket, ctx, connectionID, msg.Payload)
	case "get_game_state":
		s.handleGetGameState(socket, ctx, connectionID)
	case "join_game":
		s.handleJoinGame(socket, ctx, connectionID, msg.Payload)
	case "leave_game":
		s.handleLeaveGame(socket, ctx, connectionID)
	case "kick_player":
		s.handleKickPlayer(socket, ctx, connectionID, msg.Payload)
	case "toggle_role":
		s.handleToggleRole(socket, ctx, connectionID)
	case "force_role":
		s.handleForceRole(socket, ctx, connectionID, msg.Payload)
	case "update_settings":
		s.handleUpdateSettings(socket, ctx, connectionID, msg.Payload)
	case "start_game":
		s.handleStartGame(socket, ctx, connectionID)
	case "submit_answers":
		s.handleSubmitAnswers(socket, ctx, connectionID, msg.Payload)
	case "vote_winner":
		s.handleVoteWinner(socket, ctx, connectionID, msg.Payload)
	case "pause_game":
		s.handlePauseGame(socket, ctx, connectionID)
	case "resume_game":
		s.handleResumeGame(socket, ctx, connectionID)
	case "reset_to_lobby":
		s.handleResetToLobby(socket, ctx, connectionID)
	default:
		log.Printf("Unknown message type '%s' from %s", msg.Type, connectionID)
		s.sendError(socket, ctx, fmt.Sprintf("Unknown message type: %s", msg.Type))
	}
}
