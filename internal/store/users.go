package store

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/ushadow-io/ushadow/internal/auth"
)

const usersCollection = "users"

// UserStore persists auth.User records for local-mode login.
type UserStore struct {
	client *Client
}

// NewUserStore builds a UserStore over client.
func NewUserStore(client *Client) *UserStore {
	return &UserStore{client: client}
}

// Insert creates a new User document. auth.LocalBroker.Setup/Signup
// already check for a pre-existing email, so a duplicate-key error
// here only fires on a genuine race.
func (s *UserStore) Insert(u auth.User) error {
	ctx := context.Background()
	_, err := s.client.collection(usersCollection).InsertOne(ctx, u)
	if err != nil {
		return fmt.Errorf("inserting user %s: %w", u.Email, err)
	}
	return nil
}

// GetByEmail fetches one User by email.
func (s *UserStore) GetByEmail(email string) (auth.User, bool) {
	ctx := context.Background()
	var u auth.User
	err := s.client.collection(usersCollection).FindOne(ctx, bson.M{"_id": email}).Decode(&u)
	if err != nil {
		return auth.User{}, false
	}
	return u, true
}

// Count returns the total number of registered users, used to decide
// whether /setup is still available.
func (s *UserStore) Count() (int, error) {
	ctx := context.Background()
	n, err := s.client.collection(usersCollection).CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("counting users: %w", err)
	}
	return int(n), nil
}
