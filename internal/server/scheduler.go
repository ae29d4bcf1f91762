package server

import (
	"log"
	"time"

	"cards-server/internal/game"
)

// startTickLoop launches the global tick scheduler. Safe to call on every
// incoming connection; the sync.Once guard makes sure exactly one loop runs
// for the lifetime of the process.
func (s *Server) startTickLoop() {
	s.tickOnce.Do(func() {
		log.Println("Starting global tick scheduler")
		go s.runTickLoop()
	})
}

// runTickLoop is the single driver of automatic phase transitions and
// disconnect cleanup: once per second it expires stale identities and
// advances every running room's timer. One room's fault never blocks the
// others; failures are logged and that room is skipped for the tick.
func (s *Server) runTickLoop() {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.shutdown:
			return
		case <-ticker.C:
			s.expireStaleIdentities(time.Now())
			for _, room := range s.rooms.List() {
				s.tickRoom(room)
			}
		}
	}
}

// tickRoom advances one room by one second, guarded against panics so the
// scheduler survives any single room's fault.
func (s *Server) tickRoom(room *game.Room) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Tick failed for room %s: %v", room.ID(), r)
		}
	}()

	if !room.Started() || room.CurrentPhase() == game.PhaseEnded {
		return
	}

	phaseChanged := room.Tick()

	left, total := room.TimerState()
	s.broadcastToRoom(room, "timer_sync", TimerSync{TimeLeft: left, MaxTime: total})

	if phaseChanged {
		s.broadcastGameState(room, "game_state_update", true)
		// Phase changes can flip a room's public visibility
		// (lobby/in-game/ended have different listing rules).
		s.broadcastPublicGames()
	}
}

// expireStaleIdentities removes identities whose reconnect grace window has
// elapsed and cascades the removal into their rooms.
func (s *Server) expireStaleIdentities(now time.Time) {
	expired := s.registry.ExpireStale(now)
	if len(expired) == 0 {
		return
	}

	for _, e := range expired {
		log.Printf("Removing user after grace period: %s", e.Name)
		if e.RoomID == "" {
			continue
		}
		room, err := s.rooms.Get(e.RoomID)
		if err != nil {
			continue
		}
		removed, empty := room.RemovePlayer(e.Name)
		if empty {
			s.rooms.Delete(room.ID())
			continue
		}
		if removed {
			s.broadcastToRoom(room, "player_left", PlayerLeftNotification{
				Username: e.Name,
				Game:     room.Snapshot("", true),
			})
			s.broadcastGameState(room, "game_state_update", true)
		}
	}
	s.broadcastPublicGames()
}
