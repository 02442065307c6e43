// Package registry holds the shared server state: registered nicknames and
// room membership. It never touches the network; callers take snapshots
// under the lock and perform their own writes after releasing it.
package registry

import (
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
)

// Outcomes reported by registry operations. Handlers map these to wire
// error codes.
var (
	ErrNicknameCollision = errors.New("nickname already registered")
	ErrServerFull        = errors.New("server is at capacity")
	ErrAlreadyInRoom     = errors.New("already a member of the room")
	ErrNotInRoom         = errors.New("not a member of the room")
	ErrInvalidRoom       = errors.New("no such room")
	ErrUnknownUser       = errors.New("no such user")
)

// UserConn pairs a nickname with its writable connection handle. Snapshots
// of these stay valid after the registry lock is released; a handle whose
// underlying connection has gone away simply reports a write error.
type UserConn struct {
	Nick string
	W    io.Writer
}

// Registry is the authoritative users/rooms state, guarded by one mutex.
// Critical sections are short: mutate or snapshot, never write to a peer.
type Registry struct {
	mu       sync.Mutex
	users    map[string]io.Writer
	rooms    map[string][]string // member nicknames in join order
	maxUsers int                 // 0 = unlimited

	// Fan-out accounting, drained by Stats.
	totalMessages atomic.Uint64
	totalBytes    atomic.Uint64
}

// New returns an empty registry. maxUsers caps concurrent registrations;
// 0 means unlimited.
func New(maxUsers int) *Registry {
	return &Registry{
		users:    make(map[string]io.Writer),
		rooms:    make(map[string][]string),
		maxUsers: maxUsers,
	}
}

// Register claims nick and stores its connection handle. Returns
// ErrNicknameCollision if the nick is taken, ErrServerFull past the cap.
func (r *Registry) Register(nick string, w io.Writer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.users[nick]; taken {
		return ErrNicknameCollision
	}
	if r.maxUsers > 0 && len(r.users) >= r.maxUsers {
		return ErrServerFull
	}
	r.users[nick] = w
	slog.Debug("user registered", "nick", nick, "total_users", len(r.users))
	return nil
}

// Unregister removes nick from the user table and from every room,
// deleting rooms that become empty. Idempotent.
func (r *Registry) Unregister(nick string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[nick]; !ok {
		return
	}
	delete(r.users, nick)
	for room, members := range r.rooms {
		kept := members[:0]
		for _, m := range members {
			if m != nick {
				kept = append(kept, m)
			}
		}
		if len(kept) == 0 {
			delete(r.rooms, room)
		} else {
			r.rooms[room] = kept
		}
	}
	slog.Debug("user unregistered", "nick", nick, "remaining_users", len(r.users))
}

// Join adds nick to room, creating the room on first join. Membership keeps
// join order and rejects duplicates.
func (r *Registry) Join(nick, room string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[nick]; !ok {
		return ErrUnknownUser
	}
	for _, m := range r.rooms[room] {
		if m == nick {
			return ErrAlreadyInRoom
		}
	}
	r.rooms[room] = append(r.rooms[room], nick)
	return nil
}

// Leave removes nick from room, deleting the room when the last member
// leaves.
func (r *Registry) Leave(nick, room string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[room]
	if !ok {
		return ErrInvalidRoom
	}
	kept := members[:0]
	for _, m := range members {
		if m != nick {
			kept = append(kept, m)
		}
	}
	if len(kept) == len(members) {
		return ErrNotInRoom
	}
	if len(kept) == 0 {
		delete(r.rooms, room)
	} else {
		r.rooms[room] = kept
	}
	return nil
}

// RoomsOf returns the rooms nick belongs to, sorted.
func (r *Registry) RoomsOf(nick string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []string
	for room, members := range r.rooms {
		for _, m := range members {
			if m == nick {
				out = append(out, room)
				break
			}
		}
	}
	sort.Strings(out)
	return out
}

// ListRooms returns all room names, sorted.
func (r *Registry) ListRooms() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.rooms))
	for room := range r.rooms {
		out = append(out, room)
	}
	sort.Strings(out)
	return out
}

// ListUsers returns all registered nicknames, sorted.
func (r *Registry) ListUsers() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.users))
	for nick := range r.users {
		out = append(out, nick)
	}
	sort.Strings(out)
	return out
}

// Members returns a copy of room's member list in join order. ok is false
// when the room does not exist.
func (r *Registry) Members(room string) (members []string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	list, ok := r.rooms[room]
	if !ok {
		return nil, false
	}
	out := make([]string, len(list))
	copy(out, list)
	return out, true
}

// Writer returns nick's connection handle.
func (r *Registry) Writer(nick string) (io.Writer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.users[nick]
	return w, ok
}

// RoomWriters snapshots room's members with their connection handles, in
// join order, for fan-out after the lock is released. A member missing from
// the user table breaks invariant 1; it is logged and skipped.
func (r *Registry) RoomWriters(room string) (members []UserConn, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	list, ok := r.rooms[room]
	if !ok {
		return nil, false
	}
	out := make([]UserConn, 0, len(list))
	for _, nick := range list {
		w, found := r.users[nick]
		if !found {
			slog.Error("room member missing from user table", "room", room, "nick", nick)
			continue
		}
		out = append(out, UserConn{Nick: nick, W: w})
	}
	return out, true
}

// WritersSnapshot returns every registered user with its connection handle,
// sorted by nickname. Used for global broadcast and shutdown.
func (r *Registry) WritersSnapshot() []UserConn {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]UserConn, 0, len(r.users))
	for nick, w := range r.users {
		out = append(out, UserConn{Nick: nick, W: w})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Nick < out[j].Nick })
	return out
}

// Counts returns the current user and room counts.
func (r *Registry) Counts() (users, rooms int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users), len(r.rooms)
}

// RecordDelivery accounts one fanned-out frame of n bytes.
func (r *Registry) RecordDelivery(n int) {
	r.totalMessages.Add(1)
	r.totalBytes.Add(uint64(n))
}

// Stats returns accumulated delivery counts since the last call and resets
// them.
func (r *Registry) Stats() (messages, bytes uint64) {
	return r.totalMessages.Swap(0), r.totalBytes.Swap(0)
}
