package store

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ushadow-io/ushadow/internal/node"
)

const (
	nodesCollection      = "nodes"
	joinTokensCollection = "join_tokens"
)

// NodeStore persists node.UNode records with the same per-document
// optimistic concurrency contract as DeploymentStore.
type NodeStore struct {
	client *Client
}

// NewNodeStore builds a NodeStore over client.
func NewNodeStore(client *Client) *NodeStore {
	return &NodeStore{client: client}
}

// Insert creates a new UNode document at version 1.
func (s *NodeStore) Insert(ctx context.Context, n node.UNode) error {
	n.Version = 1
	_, err := s.client.collection(nodesCollection).InsertOne(ctx, n)
	if err != nil {
		return fmt.Errorf("inserting u-node %s: %w", n.ID, err)
	}
	return nil
}

// Get fetches one UNode by id.
func (s *NodeStore) Get(ctx context.Context, id string) (node.UNode, error) {
	var n node.UNode
	err := s.client.collection(nodesCollection).FindOne(ctx, bson.M{"_id": id}).Decode(&n)
	if err != nil {
		return node.UNode{}, fmt.Errorf("fetching u-node %s: %w", id, err)
	}
	return n, nil
}

// List returns every UNode.
func (s *NodeStore) List(ctx context.Context) ([]node.UNode, error) {
	cursor, err := s.client.collection(nodesCollection).Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("listing u-nodes: %w", err)
	}
	defer cursor.Close(ctx)

	var out []node.UNode
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decoding u-nodes: %w", err)
	}
	return out, nil
}

// Update performs a compare-and-swap write identical in shape to
// DeploymentStore.Update.
func (s *NodeStore) Update(ctx context.Context, n node.UNode, mutate func(*node.UNode)) (node.UNode, error) {
	mutate(&n)
	currentVersion := n.Version
	n.Version = currentVersion + 1

	result, err := s.client.collection(nodesCollection).ReplaceOne(
		ctx,
		bson.M{"_id": n.ID, "version": currentVersion},
		n,
	)
	if err != nil {
		return node.UNode{}, fmt.Errorf("updating u-node %s: %w", n.ID, err)
	}
	if result.MatchedCount == 0 {
		return node.UNode{}, ErrConflict
	}
	return n, nil
}

// Delete removes a UNode document.
func (s *NodeStore) Delete(ctx context.Context, id string) error {
	_, err := s.client.collection(nodesCollection).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("deleting u-node %s: %w", id, err)
	}
	return nil
}

// JoinTokenStore persists node.JoinToken records.
type JoinTokenStore struct {
	client *Client
}

// NewJoinTokenStore builds a JoinTokenStore over client.
func NewJoinTokenStore(client *Client) *JoinTokenStore {
	return &JoinTokenStore{client: client}
}

// Insert creates a new JoinToken document.
func (s *JoinTokenStore) Insert(ctx context.Context, t node.JoinToken) error {
	_, err := s.client.collection(joinTokensCollection).InsertOne(ctx, t)
	if err != nil {
		return fmt.Errorf("inserting join token: %w", err)
	}
	return nil
}

// Get fetches one JoinToken by its token value.
func (s *JoinTokenStore) Get(ctx context.Context, token string) (node.JoinToken, error) {
	var t node.JoinToken
	err := s.client.collection(joinTokensCollection).FindOne(ctx, bson.M{"_id": token}).Decode(&t)
	if err != nil {
		return node.JoinToken{}, fmt.Errorf("fetching join token: %w", err)
	}
	return t, nil
}

// IncrementUses atomically bumps a JoinToken's redemption count.
func (s *JoinTokenStore) IncrementUses(ctx context.Context, token string) error {
	_, err := s.client.collection(joinTokensCollection).UpdateOne(
		ctx,
		bson.M{"_id": token},
		bson.M{"$inc": bson.M{"uses": 1}},
		options.Update(),
	)
	if err != nil {
		return fmt.Errorf("incrementing join token uses: %w", err)
	}
	return nil
}
