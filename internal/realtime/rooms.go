package realtime

import (
	"cmp"
	"slices"
	"sync"
)

// RoomTracker maps each chat to the connections currently joined to it.
//
// It keeps a reverse index per connection so a disconnect removes the connection from
// every room it joined. Empty rooms are deleted.
type RoomTracker struct {
	mu     sync.RWMutex
	rooms  map[ChatID]map[ConnID]Conn
	joined map[ConnID]map[ChatID]struct{}
}

// NewRoomTracker returns an empty tracker.
func NewRoomTracker() *RoomTracker {
	return &RoomTracker{
		rooms:  make(map[ChatID]map[ConnID]Conn),
		joined: make(map[ConnID]map[ChatID]struct{}),
	}
}

// Join adds conn to the chat's room. Joining twice is harmless.
func (t *RoomTracker) Join(chat ChatID, conn Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()

	members, ok := t.rooms[chat]
	if !ok {
		members = make(map[ConnID]Conn)
		t.rooms[chat] = members
	}
	members[conn.ID()] = conn

	chats, ok := t.joined[conn.ID()]
	if !ok {
		chats = make(map[ChatID]struct{})
		t.joined[conn.ID()] = chats
	}
	chats[chat] = struct{}{}
}

// Leave removes the connection from the chat's room and reports whether it was a member.
func (t *RoomTracker) Leave(chat ChatID, id ConnID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.leaveLocked(chat, id)
}

func (t *RoomTracker) leaveLocked(chat ChatID, id ConnID) bool {
	members, ok := t.rooms[chat]
	if !ok {
		return false
	}
	if _, ok := members[id]; !ok {
		return false
	}

	delete(members, id)
	if len(members) == 0 {
		delete(t.rooms, chat)
	}

	if chats, ok := t.joined[id]; ok {
		delete(chats, chat)
		if len(chats) == 0 {
			delete(t.joined, id)
		}
	}
	return true
}

// RemoveConn drops the connection from every room and returns the rooms it left.
func (t *RoomTracker) RemoveConn(id ConnID) []ChatID {
	t.mu.Lock()
	defer t.mu.Unlock()

	chats := t.joined[id]
	left := make([]ChatID, 0, len(chats))
	for chat := range chats {
		left = append(left, chat)
	}
	for _, chat := range left {
		t.leaveLocked(chat, id)
	}

	slices.Sort(left)
	return left
}

// Members returns the connections joined to chat, ordered by connection id.
func (t *RoomTracker) Members(chat ChatID) []Conn {
	t.mu.RLock()
	members := make([]Conn, 0, len(t.rooms[chat]))
	for _, c := range t.rooms[chat] {
		members = append(members, c)
	}
	t.mu.RUnlock()

	slices.SortFunc(members, func(a, b Conn) int { return cmp.Compare(a.ID(), b.ID()) })
	return members
}

// IsMember reports whether the connection has joined chat.
func (t *RoomTracker) IsMember(chat ChatID, id ConnID) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	_, ok := t.rooms[chat][id]
	return ok
}

// RoomsOf returns the chats the connection has joined, ascending.
func (t *RoomTracker) RoomsOf(id ConnID) []ChatID {
	t.mu.RLock()
	chats := make([]ChatID, 0, len(t.joined[id]))
	for chat := range t.joined[id] {
		chats = append(chats, chat)
	}
	t.mu.RUnlock()

	slices.Sort(chats)
	return chats
}
