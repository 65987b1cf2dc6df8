package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRoom_JoinIsIdempotent(t *testing.T) {
	req := require.New(t)

	// Given a room created by u1
	room := NewRoom("u1", time.Now())
	req.True(room.Active)
	req.Equal([]UserID{"u1"}, room.Members())

	// When u2 joins twice
	req.True(room.Join("u2"))
	req.False(room.Join("u2"))

	// Then u2 appears once
	req.Equal([]UserID{"u1", "u2"}, room.Members())
}

func TestRoom_LeaveDeactivates(t *testing.T) {
	req := require.New(t)
	room := NewRoom("u1", time.Now())
	room.Join("u2")

	req.True(room.Leave("u1"))
	req.False(room.Leave("u1"))
	req.True(room.Active)
	req.True(room.WasMember("u1"))

	// When the last member leaves the room goes inactive
	req.True(room.Leave("u2"))
	req.False(room.Active)
	req.Empty(room.Members())

	// And joining again reactivates it
	req.True(room.Join("u1"))
	req.True(room.Active)
	req.False(room.WasMember("u1"))
}

func TestRoom_Others(t *testing.T) {
	req := require.New(t)
	room := NewRoom("u1", time.Now())
	room.Join("u2")
	room.Join("u3")

	req.Equal([]UserID{"u2", "u3"}, room.Others("u1"))

	// Snapshot is independent from the original
	snap := room.Snapshot()
	room.Leave("u3")
	req.True(snap.HasMember("u3"))
}
