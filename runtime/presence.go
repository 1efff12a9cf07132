// Package runtime owns the live state of the messaging core: presence,
// channel registry and event fan-out. It orchestrates the system without
// containing business logic or domain rules.
package runtime

import (
	"sort"
	"sync"

	"mentorlink/contract"
)

// Presence tracks which user identifiers currently hold at least one open
// channel. State is in-memory and scoped to one server process; a restart
// silently drops it, which is acceptable since presence is advisory.
//
// Two tabs of the same user collapse to one logical online state. Each
// connect bumps a per-user generation and registers one handle; a
// disconnect removes exactly the handle it was given, so an out-of-order
// disconnect of an already-replaced handle can never mark a still
// connected user offline.
type Presence struct {
	mu         sync.RWMutex
	byHandle   map[contract.ChannelID]string
	byUser     map[string]map[contract.ChannelID]struct{}
	generation map[string]uint64
}

func NewPresence() *Presence {
	return &Presence{
		byHandle:   make(map[contract.ChannelID]string),
		byUser:     make(map[string]map[contract.ChannelID]struct{}),
		generation: make(map[string]uint64),
	}
}

// Connect registers the channel under the user. Returns true when this is
// the user's first active channel, i.e. the caller must broadcast an
// online transition. Idempotent per channel handle.
func (p *Presence) Connect(userID string, handle contract.ChannelID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, known := p.byHandle[handle]; known {
		return false
	}
	p.byHandle[handle] = userID
	p.generation[userID]++

	handles, ok := p.byUser[userID]
	if !ok {
		handles = make(map[contract.ChannelID]struct{})
		p.byUser[userID] = handles
	}
	handles[handle] = struct{}{}
	return len(handles) == 1
}

// Disconnect removes the channel. Returns the owning user and true when it
// was the user's last active channel, i.e. the caller must broadcast an
// offline transition. Unknown handles are a no-op; this makes the abnormal
// termination path safe to invoke more than once.
func (p *Presence) Disconnect(handle contract.ChannelID) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	userID, known := p.byHandle[handle]
	if !known {
		return "", false
	}
	delete(p.byHandle, handle)

	handles := p.byUser[userID]
	delete(handles, handle)
	if len(handles) > 0 {
		return userID, false
	}
	delete(p.byUser, userID)
	delete(p.generation, userID)
	return userID, true
}

// Snapshot returns the current set of online user identifiers, sorted for
// deterministic seeding of newly connected clients.
func (p *Presence) Snapshot() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	users := make([]string, 0, len(p.byUser))
	for userID := range p.byUser {
		users = append(users, userID)
	}
	sort.Strings(users)
	return users
}
