package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/coder/websocket"

	"cards-server/internal/game"
)

func (s *Server) sendMessage(conn *websocket.Conn, ctx context.Context, msg ServerMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

func (s *Server) sendError(conn *websocket.Conn, ctx context.Context, message string) {
	response := ServerMessage{
		Type:    "error",
		Payload: ErrorMessage{Message: message},
	}
	if err := s.sendMessage(conn, ctx, response); err != nil {
		log.Printf("Failed to send error message: %v", err)
	}
}

// sendToName delivers one message to a connected identity; silently skipped
// when the identity is gone or disconnected.
func (s *Server) sendToName(name, messageType string, payload interface{}) {
	connID := s.registry.ConnIDOf(name)
	if connID == "" {
		return
	}
	conn := s.connectionManager.GetConnection(connID)
	if conn == nil {
		return
	}
	msg := ServerMessage{Type: messageType, Payload: payload}
	// Use background context for broadcasts
	if err := s.sendMessage(conn, context.Background(), msg); err != nil {
		log.Printf("Failed to send %s to %s: %v", messageType, name, err)
	}
}

// broadcastToRoom sends the same payload to every connected room member.
func (s *Server) broadcastToRoom(room *game.Room, messageType string, payload interface{}) {
	for _, name := range room.MemberNames() {
		s.sendToName(name, messageType, payload)
	}
}

func (s *Server) broadcastToRoomExcept(room *game.Room, exceptName, messageType string, payload interface{}) {
	for _, name := range room.MemberNames() {
		if name == exceptName {
			continue
		}
		s.sendToName(name, messageType, payload)
	}
}

// broadcastGameState sends a personalized snapshot to every connected room
// member. Each player only ever sees their own hand; during judging the
// submissions are anonymized in display order.
func (s *Server) broadcastGameState(room *game.Room, channel string, includeHistory bool) {
	for _, name := range room.MemberNames() {
		s.sendToName(name, channel, room.Snapshot(name, includeHistory))
	}
}

// broadcastPublicGames refreshes the public room listing for every connected
// identity.
func (s *Server) broadcastPublicGames() {
	payload := PublicGamesList{Games: s.rooms.PublicList()}
	for _, connID := range s.registry.ConnectedConns() {
		conn := s.connectionManager.GetConnection(connID)
		if conn == nil {
			continue
		}
		msg := ServerMessage{Type: "public_games_list", Payload: payload}
		if err := s.sendMessage(conn, context.Background(), msg); err != nil {
			log.Printf("Failed to broadcast public games list: %v", err)
		}
	}
}
