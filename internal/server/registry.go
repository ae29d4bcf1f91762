package server

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"cards-server/internal/game"
)

// disconnectGrace is how long a dropped identity may stay reclaimable before
// the scheduler sweeps it away.
const disconnectGrace = 30 * time.Second

const (
	minNameLength = 2
	maxNameLength = 30
)

// Identity is one human participant, tracked across reconnects by display
// name.
type Identity struct {
	Name     string
	ConnID   string
	LastSeen time.Time
	Status   game.ConnStatus
	RoomID   string
}

// ExpiredIdentity is returned by ExpireStale so the caller can cascade the
// room removal.
type ExpiredIdentity struct {
	Name   string
	RoomID string
}

// Registry enforces display-name uniqueness among connected identities and
// owns the reconnect grace window. Expiry is driven by recorded disconnect
// timestamps swept once per tick, not by one timer per identity.
type Registry struct {
	identities     map[string]*Identity // name -> identity
	names          map[string]string    // connection id -> name
	disconnectedAt map[string]time.Time // name -> when the grace window opened
	mu             sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{
		identities:     make(map[string]*Identity),
		names:          make(map[string]string),
		disconnectedAt: make(map[string]time.Time),
	}
}

// NormalizeName collapses runs of whitespace and validates length.
func NormalizeName(raw string) (string, error) {
	name := strings.Join(strings.Fields(raw), " ")
	if name == "" {
		return "", errors.New("VALIDATION: please enter a name")
	}
	n := utf8.RuneCountInString(name)
	if n < minNameLength {
		return "", fmt.Errorf("VALIDATION: the name must be at least %d characters long", minNameLength)
	}
	if n > maxNameLength {
		return "", fmt.Errorf("VALIDATION: the name must be at most %d characters long (currently: %d)", maxNameLength, n)
	}
	return name, nil
}

// Register claims a display name for a connection. Re-registering the same
// name from the same connection is idempotent; a name held by a connected
// identity is rejected; a name inside its grace window is taken over.
func (rg *Registry) Register(rawName, connID string) (string, error) {
	name, err := NormalizeName(rawName)
	if err != nil {
		return "", err
	}

	rg.mu.Lock()
	defer rg.mu.Unlock()

	if existing, ok := rg.identities[name]; ok {
		if existing.ConnID == connID {
			existing.Status = game.StatusConnected
			existing.LastSeen = time.Now()
			delete(rg.disconnectedAt, name)
			return name, nil
		}
		if existing.Status == game.StatusConnected {
			return "", errors.New("NAME_TAKEN: this name is already in use")
		}
	}

	rg.releaseConnLocked(connID)

	rg.identities[name] = &Identity{
		Name:     name,
		ConnID:   connID,
		LastSeen: time.Now(),
		Status:   game.StatusConnected,
	}
	rg.names[connID] = name
	delete(rg.disconnectedAt, name)
	return name, nil
}

// releaseConnLocked detaches any identity previously bound to this
// connection, pushing it into the grace window instead of leaving it
// "connected" on a handle it no longer owns.
func (rg *Registry) releaseConnLocked(connID string) {
	old, ok := rg.names[connID]
	if !ok {
		return
	}
	if ident, ok := rg.identities[old]; ok && ident.ConnID == connID {
		ident.Status = game.StatusDisconnecting
		rg.disconnectedAt[old] = time.Now()
	}
	delete(rg.names, connID)
}

// Reconnect rebinds an existing identity to a new connection handle. Fails
// with ALREADY_CONNECTED when the identity is live elsewhere (the client
// should reload) and NOT_FOUND when the grace window already expired.
func (rg *Registry) Reconnect(rawName, connID string) (name, roomID string, err error) {
	name = strings.Join(strings.Fields(rawName), " ")

	rg.mu.Lock()
	defer rg.mu.Unlock()

	ident, ok := rg.identities[name]
	if !ok {
		return "", "", errors.New("NOT_FOUND: username not found")
	}
	if ident.Status == game.StatusConnected {
		return "", "", errors.New("ALREADY_CONNECTED: this name is connected elsewhere")
	}

	delete(rg.names, ident.ConnID)
	ident.ConnID = connID
	ident.Status = game.StatusConnected
	ident.LastSeen = time.Now()
	rg.names[connID] = name
	delete(rg.disconnectedAt, name)
	return name, ident.RoomID, nil
}

// FirstAvailableName returns the first candidate not currently held by a
// connected identity, normalized the way Register would grant it. Names in
// their grace window count as available; claiming one takes it over.
func (rg *Registry) FirstAvailableName(candidates []string) (string, bool) {
	rg.mu.RLock()
	defer rg.mu.RUnlock()

	for _, raw := range candidates {
		name, err := NormalizeName(raw)
		if err != nil {
			continue
		}
		if ident, ok := rg.identities[name]; ok && ident.Status == game.StatusConnected {
			continue
		}
		return name, true
	}
	return "", false
}

// NameByConn resolves the identity bound to a connection, or "".
func (rg *Registry) NameByConn(connID string) string {
	rg.mu.RLock()
	defer rg.mu.RUnlock()
	return rg.names[connID]
}

// Lookup returns a copy of the identity record.
func (rg *Registry) Lookup(name string) (Identity, bool) {
	rg.mu.RLock()
	defer rg.mu.RUnlock()
	ident, ok := rg.identities[name]
	if !ok {
		return Identity{}, false
	}
	return *ident, true
}

// BindRoom attaches (or with "" detaches) an identity to a room.
func (rg *Registry) BindRoom(name, roomID string) {
	rg.mu.Lock()
	defer rg.mu.Unlock()
	if ident, ok := rg.identities[name]; ok {
		ident.RoomID = roomID
	}
}

func (rg *Registry) RoomOf(name string) string {
	rg.mu.RLock()
	defer rg.mu.RUnlock()
	if ident, ok := rg.identities[name]; ok {
		return ident.RoomID
	}
	return ""
}

func (rg *Registry) ConnIDOf(name string) string {
	rg.mu.RLock()
	defer rg.mu.RUnlock()
	if ident, ok := rg.identities[name]; ok && ident.Status == game.StatusConnected {
		return ident.ConnID
	}
	return ""
}

// Touch refreshes an identity on a ping: last-seen bumped and status forced
// back to connected (a ping proves the transport is alive).
func (rg *Registry) Touch(connID string) (name, roomID string, ok bool) {
	rg.mu.Lock()
	defer rg.mu.Unlock()

	name, ok = rg.names[connID]
	if !ok {
		return "", "", false
	}
	ident := rg.identities[name]
	ident.Status = game.StatusConnected
	ident.LastSeen = time.Now()
	delete(rg.disconnectedAt, name)
	return name, ident.RoomID, true
}

// MarkDisconnecting opens the grace window for the identity bound to a
// closing connection.
func (rg *Registry) MarkDisconnecting(connID string) (name, roomID string, ok bool) {
	rg.mu.Lock()
	defer rg.mu.Unlock()

	name, ok = rg.names[connID]
	delete(rg.names, connID)
	if !ok {
		return "", "", false
	}
	ident := rg.identities[name]
	ident.Status = game.StatusDisconnecting
	rg.disconnectedAt[name] = time.Now()
	return name, ident.RoomID, true
}

// ExpireStale removes every identity whose grace window has elapsed and
// returns them for cascade (room removal, broadcasts).
func (rg *Registry) ExpireStale(now time.Time) []ExpiredIdentity {
	rg.mu.Lock()
	defer rg.mu.Unlock()

	var expired []ExpiredIdentity
	for name, since := range rg.disconnectedAt {
		if now.Sub(since) < disconnectGrace {
			continue
		}
		ident := rg.identities[name]
		expired = append(expired, ExpiredIdentity{Name: name, RoomID: ident.RoomID})
		// The connection may have re-registered under a new name since; only
		// drop the binding if it still belongs to the expiring identity.
		if rg.names[ident.ConnID] == name {
			delete(rg.names, ident.ConnID)
		}
		delete(rg.identities, name)
		delete(rg.disconnectedAt, name)
	}
	return expired
}

// ConnectedConns returns the connection ids of all connected identities,
// for broadcasts addressed to everyone with a name.
func (rg *Registry) ConnectedConns() []string {
	rg.mu.RLock()
	defer rg.mu.RUnlock()

	conns := make([]string, 0, len(rg.identities))
	for _, ident := range rg.identities {
		if ident.Status == game.StatusConnected {
			conns = append(conns, ident.ConnID)
		}
	}
	return conns
}

func (rg *Registry) Count() int {
	rg.mu.RLock()
	defer rg.mu.RUnlock()
	return len(rg.identities)
}
