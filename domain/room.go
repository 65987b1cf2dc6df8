package domain

import (
	"slices"
	"time"

	"github.com/samber/lo"
)

type Set map[UserID]struct{}

// Room is a group conversation. A user appears at most once in its member set.
// Rooms are never deleted: with no members left they become inactive and their history stays addressable.
type Room struct {
	ID        ConversationID
	CreatedBy UserID
	CreatedAt time.Time
	Active    bool
	members   Set
	former    Set
}

func NewRoom(creatorID UserID, now time.Time) *Room {
	r := &Room{
		ID:        NewConversationID(KindRoom),
		CreatedBy: creatorID,
		CreatedAt: now,
		members:   make(Set),
		former:    make(Set),
	}
	r.Join(creatorID)
	return r
}

// Join returns false when the user was already a member.
func (r *Room) Join(userID UserID) bool {
	if _, ok := r.members[userID]; ok {
		return false
	}
	r.members[userID] = struct{}{}
	delete(r.former, userID)
	r.Active = true
	return true
}

// Leave returns false when the user was not a member.
func (r *Room) Leave(userID UserID) bool {
	if _, ok := r.members[userID]; !ok {
		return false
	}
	delete(r.members, userID)
	r.former[userID] = struct{}{}
	if len(r.members) == 0 {
		r.Active = false
	}
	return true
}

func (r *Room) HasMember(userID UserID) bool {
	_, ok := r.members[userID]
	return ok
}

func (r *Room) WasMember(userID UserID) bool {
	_, ok := r.former[userID]
	return ok
}

// Members returns the member ids sorted, as a fresh slice.
func (r *Room) Members() []UserID {
	members := lo.Keys(r.members)
	slices.Sort(members)
	return members
}

// Others returns every member except the given user.
func (r *Room) Others(userID UserID) []UserID {
	return lo.Filter(r.Members(), func(m UserID, _ int) bool { return m != userID })
}

func (r *Room) Snapshot() Room {
	cp := *r
	cp.members = make(Set, len(r.members))
	for m := range r.members {
		cp.members[m] = struct{}{}
	}
	cp.former = make(Set, len(r.former))
	for m := range r.former {
		cp.former[m] = struct{}{}
	}
	return cp
}
