package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	_ "github.com/joho/godotenv/autoload"

	"cards-server/internal/deck"
	"cards-server/internal/game"
)

type Server struct {
	port              int
	connectionManager *ConnectionManager
	registry          *Registry
	rooms             *RoomDirectory
	deck              game.ContentProvider

	tickOnce     sync.Once
	shutdown     chan struct{}
	shutdownOnce sync.Once
}

func NewServer() (*Server, *http.Server) {
	port, _ := strconv.Atoi(os.Getenv("PORT"))
	if port == 0 {
		port = 5000
	}

	provider, err := deck.Load()
	if err != nil {
		log.Fatalf("Failed to load card content: %v", err)
	}

	newServer := &Server{
		port:              port,
		connectionManager: NewConnectionManager(),
		registry:          NewRegistry(),
		rooms:             NewRoomDirectory(),
		deck:              provider,
		shutdown:          make(chan struct{}),
	}

	// Declare Server config
	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", newServer.port),
		Handler:      newServer.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return newServer, httpServer
}

// Shutdown stops the tick loop and tells every connected client the server
// is going away. All game state is in-memory by design, so there is nothing
// to save.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() {
		close(s.shutdown)
	})

	payload := InfoMessage{Message: "Server is shutting down"}
	for _, connID := range s.registry.ConnectedConns() {
		conn := s.connectionManager.GetConnection(connID)
		if conn == nil {
			continue
		}
		if err := s.sendMessage(conn, ctx, ServerMessage{Type: "info", Payload: payload}); err != nil {
			log.Printf("Failed to notify connection during shutdown: %v", err)
		}
	}
	return nil
}
