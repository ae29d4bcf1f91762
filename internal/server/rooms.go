package server

import (
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"

	"cards-server/internal/game"
)

// RoomDirectory maps room ids to live rooms. Rooms are independent; the
// directory lock only guards the map itself.
type RoomDirectory struct {
	rooms map[string]*game.Room
	mu    sync.RWMutex
}

func NewRoomDirectory() *RoomDirectory {
	return &RoomDirectory{
		rooms: make(map[string]*game.Room),
	}
}

// Create builds a new room with a fresh id and registers it.
func (rd *RoomDirectory) Create(ownerName string, provider game.ContentProvider, settings game.Settings) *game.Room {
	room := game.NewRoom(uuid.New().String(), ownerName, provider, settings)

	rd.mu.Lock()
	rd.rooms[room.ID()] = room
	rd.mu.Unlock()

	return room
}

func (rd *RoomDirectory) Get(id string) (*game.Room, error) {
	rd.mu.RLock()
	defer rd.mu.RUnlock()

	room, ok := rd.rooms[id]
	if !ok {
		return nil, errors.New("ROOM_NOT_FOUND: game not found")
	}
	return room, nil
}

func (rd *RoomDirectory) Delete(id string) {
	rd.mu.Lock()
	defer rd.mu.Unlock()
	delete(rd.rooms, id)
}

// List returns a point-in-time copy of all rooms.
func (rd *RoomDirectory) List() []*game.Room {
	rd.mu.RLock()
	defer rd.mu.RUnlock()

	rooms := make([]*game.Room, 0, len(rd.rooms))
	for _, room := range rd.rooms {
		rooms = append(rooms, room)
	}
	return rooms
}

// PublicList returns the directory entries of all publicly visible rooms,
// sorted by name for a stable client display.
func (rd *RoomDirectory) PublicList() []game.ListingInfo {
	listings := make([]game.ListingInfo, 0)
	for _, room := range rd.List() {
		if info, visible := room.Listing(); visible {
			listings = append(listings, info)
		}
	}
	sort.Slice(listings, func(i, j int) bool {
		if listings[i].Name != listings[j].Name {
			return listings[i].Name < listings[j].Name
		}
		return listings[i].ID < listings[j].ID
	})
	return listings
}

func (rd *RoomDirectory) Count() int {
	rd.mu.RLock()
	defer rd.mu.RUnlock()
	return len(rd.rooms)
}
