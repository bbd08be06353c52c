// Package friends manages friend requests. A request is stored on the
// receiving user; accepting it makes the friendship symmetric.
package friends

import (
	"fmt"
	"slices"

	"veranda/internal/models"
)

type Store interface {
	UpdateUserPair(id1, id2 string, fn func(u1, u2 *models.User) error) error
}

type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// Request sends a friend request from one user to another. A request
// towards someone who already asked us is accepted right away.
func (s *Service) Request(fromID, toID string) error {
	return s.store.UpdateUserPair(fromID, toID, func(from, to *models.User) error {
		if slices.Contains(from.Friends, toID) {
			return fmt.Errorf("%w: already friends", models.ErrInvalidArgument)
		}
		if slices.Contains(from.FriendRequests, toID) {
			befriend(from, to)
			return nil
		}
		if !slices.Contains(to.FriendRequests, fromID) {
			to.FriendRequests = append(to.FriendRequests, fromID)
		}
		return nil
	})
}

// Accept turns the pending request of requesterID into a friendship.
func (s *Service) Accept(userID, requesterID string) error {
	return s.store.UpdateUserPair(userID, requesterID, func(me, requester *models.User) error {
		if !slices.Contains(me.FriendRequests, requesterID) {
			return fmt.Errorf("friend request from %s: %w", requesterID, models.ErrNotFound)
		}
		befriend(me, requester)
		return nil
	})
}

// Reject drops the pending request of requesterID.
func (s *Service) Reject(userID, requesterID string) error {
	return s.store.UpdateUserPair(userID, requesterID, func(me, _ *models.User) error {
		if !slices.Contains(me.FriendRequests, requesterID) {
			return fmt.Errorf("friend request from %s: %w", requesterID, models.ErrNotFound)
		}
		me.FriendRequests = remove(me.FriendRequests, requesterID)
		return nil
	})
}

func befriend(a, b *models.User) {
	a.FriendRequests = remove(a.FriendRequests, b.ID)
	b.FriendRequests = remove(b.FriendRequests, a.ID)
	if !slices.Contains(a.Friends, b.ID) {
		a.Friends = append(a.Friends, b.ID)
	}
	if !slices.Contains(b.Friends, a.ID) {
		b.Friends = append(b.Friends, a.ID)
	}
}

func remove(ids []string, id string) []string {
	return slices.DeleteFunc(ids, func(x string) bool { return x == id })
}
