package rooms

import "sync"

// Tracker keeps the ordered roster of connection ids for each call room.
// A roster exists only while it has at least one member.
type Tracker struct {
	mu      sync.Mutex
	rosters map[string][]string
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{rosters: make(map[string][]string)}
}

// Join appends connID to the room roster. It returns the members other than
// connID as they were before the join, and the full roster after it.
// Joining twice does not duplicate the entry.
func (t *Tracker) Join(roomID, connID string) (others, roster []string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	current := t.rosters[roomID]
	others = without(current, connID)
	if len(others) == len(current) {
		current = append(current, connID)
		t.rosters[roomID] = current
	}
	return others, clone(current)
}

// Leave removes connID from one room. ok is false when connID was not a member.
func (t *Tracker) Leave(roomID, connID string) (remaining []string, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	current, exists := t.rosters[roomID]
	if !exists {
		return []string{}, false
	}
	remaining = without(current, connID)
	if len(remaining) == len(current) {
		return clone(current), false
	}
	t.store(roomID, remaining)
	return clone(remaining), true
}

// RemoveEverywhere drops connID from every roster it appears in and returns the
// remaining members per affected room. Rooms that became empty map to an empty slice.
func (t *Tracker) RemoveEverywhere(connID string) map[string][]string {
	t.mu.Lock()
	defer t.mu.Unlock()

	affected := make(map[string][]string)
	for roomID, current := range t.rosters {
		remaining := without(current, connID)
		if len(remaining) == len(current) {
			continue
		}
		t.store(roomID, remaining)
		affected[roomID] = clone(remaining)
	}
	return affected
}

// Members returns a copy of the roster and whether the room exists.
func (t *Tracker) Members(roomID string) ([]string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	current, ok := t.rosters[roomID]
	if !ok {
		return []string{}, false
	}
	return clone(current), true
}

// Len returns the number of active call rooms.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.rosters)
}

func (t *Tracker) store(roomID string, roster []string) {
	if len(roster) == 0 {
		delete(t.rosters, roomID)
		return
	}
	t.rosters[roomID] = roster
}

func without(list []string, id string) []string {
	out := make([]string, 0, len(list))
	for _, v := range list {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func clone(list []string) []string {
	out := make([]string, len(list))
	copy(out, list)
	return out
}
