package service

import (
	"sync"
)

type emitted struct {
	Target string
	Event  string
	Data   any
}

// recordingEmitter keeps real room membership and records every emit.
type recordingEmitter struct {
	mu        sync.Mutex
	rooms     map[string]map[string]bool
	roomEmits []emitted
	connEmits []emitted
}

func newRecordingEmitter() *recordingEmitter {
	return &recordingEmitter{rooms: make(map[string]map[string]bool)}
}

func (r *recordingEmitter) Join(connID, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rooms[room] == nil {
		r.rooms[room] = make(map[string]bool)
	}
	r.rooms[room][connID] = true
}

func (r *recordingEmitter) Leave(connID, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rooms[room], connID)
}

func (r *recordingEmitter) InRoom(connID, room string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rooms[room][connID]
}

func (r *recordingEmitter) RoomSize(room string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms[room])
}

func (r *recordingEmitter) EmitToRoom(room, event string, data any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.roomEmits = append(r.roomEmits, emitted{Target: room, Event: event, Data: data})
}

func (r *recordingEmitter) EmitToConn(connID, event string, data any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connEmits = append(r.connEmits, emitted{Target: connID, Event: event, Data: data})
}

func (r *recordingEmitter) toRoom(room, event string) []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return filter(r.roomEmits, room, event)
}

func (r *recordingEmitter) toConn(connID, event string) []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return filter(r.connEmits, connID, event)
}

func (r *recordingEmitter) roomEvents(event string) []emitted {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []emitted
	for _, e := range r.roomEmits {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

func (r *recordingEmitter) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.roomEmits = nil
	r.connEmits = nil
}

func filter(list []emitted, target, event string) []any {
	var out []any
	for _, e := range list {
		if e.Target == target && e.Event == event {
			out = append(out, e.Data)
		}
	}
	return out
}
