// Package domain contains core concepts of the chat system.
// This file defines Participant entities and related invariants.
// No runtime, network, or UI logic should be added here.
package domain

import "time"

type UserID string

type Role string

const (
	RoleCustomer Role = "customer"
	RoleAgent    Role = "agent"
)

func (r Role) Valid() bool {
	return r == RoleCustomer || r == RoleAgent
}

// User is owned by the identity collaborator; the engine only keeps weak references to it.
type User struct {
	ID          UserID
	Role        Role
	DisplayName string
}

type ConnectionID string

// Connection is a read-only view of a live connection held by the registry.
type Connection struct {
	ID           ConnectionID
	UserID       UserID
	ConnectedAt  time.Time
	LastActivity time.Time
}

type PresenceStatus string

const (
	Online  PresenceStatus = "online"
	Away    PresenceStatus = "away"
	Offline PresenceStatus = "offline"
)
