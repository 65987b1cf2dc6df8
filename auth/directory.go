package auth

import (
	"fmt"
	"support-chat/contract"
	"support-chat/domain"
	"support-chat/errors"
	"sync"
)

var _ contract.IdentityResolver = (*Directory)(nil)

// Directory remembers the users seen in validated tokens.
// The token issuer is the identity authority, so roles are taken from claims as is.
type Directory struct {
	mu    sync.RWMutex
	users map[domain.UserID]domain.User
}

func NewDirectory() *Directory {
	return &Directory{users: make(map[domain.UserID]domain.User)}
}

func (d *Directory) Remember(user domain.User) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[user.ID] = user
}

func (d *Directory) User(userID domain.UserID) (domain.User, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	user, ok := d.users[userID]
	return user, ok
}

func (d *Directory) ResolveRole(userID domain.UserID) (domain.Role, error) {
	user, ok := d.User(userID)
	if !ok {
		return "", fmt.Errorf("%w: unknown user %s", errors.ErrNotAuthorized, userID)
	}
	return user.Role, nil
}
