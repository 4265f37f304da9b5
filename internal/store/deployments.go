package store

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/ushadow-io/ushadow/internal/deployment"
)

const deploymentsCollection = "deployments"

// DeploymentStore persists deployment.Deployment records with
// per-document optimistic concurrency (spec §5): Update fails with
// ErrConflict if the document's version moved since the caller last
// read it.
type DeploymentStore struct {
	client *Client
}

// NewDeploymentStore builds a DeploymentStore over client.
func NewDeploymentStore(client *Client) *DeploymentStore {
	return &DeploymentStore{client: client}
}

// Insert creates a new Deployment document at version 1.
func (s *DeploymentStore) Insert(ctx context.Context, d deployment.Deployment) error {
	d.Version = 1
	_, err := s.client.collection(deploymentsCollection).InsertOne(ctx, d)
	if err != nil {
		return fmt.Errorf("inserting deployment %s: %w", d.ID, err)
	}
	return nil
}

// Get fetches one Deployment by id.
func (s *DeploymentStore) Get(ctx context.Context, id string) (deployment.Deployment, error) {
	var d deployment.Deployment
	err := s.client.collection(deploymentsCollection).FindOne(ctx, bson.M{"_id": id}).Decode(&d)
	if err != nil {
		return deployment.Deployment{}, fmt.Errorf("fetching deployment %s: %w", id, err)
	}
	return d, nil
}

// List returns every Deployment, optionally filtered by state.
func (s *DeploymentStore) List(ctx context.Context, state deployment.State) ([]deployment.Deployment, error) {
	filter := bson.M{}
	if state != "" {
		filter["state"] = state
	}
	cursor, err := s.client.collection(deploymentsCollection).Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("listing deployments: %w", err)
	}
	defer cursor.Close(ctx)

	var out []deployment.Deployment
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decoding deployments: %w", err)
	}
	return out, nil
}

// Update performs a compare-and-swap write: it only applies mutate's
// changes, and bumps Version, if the stored document's version still
// equals d.Version — the optimistic concurrency contract spec §5
// requires for the deployments collection.
func (s *DeploymentStore) Update(ctx context.Context, d deployment.Deployment, mutate func(*deployment.Deployment)) (deployment.Deployment, error) {
	mutate(&d)
	currentVersion := d.Version
	d.Version = currentVersion + 1

	result, err := s.client.collection(deploymentsCollection).ReplaceOne(
		ctx,
		bson.M{"_id": d.ID, "version": currentVersion},
		d,
	)
	if err != nil {
		return deployment.Deployment{}, fmt.Errorf("updating deployment %s: %w", d.ID, err)
	}
	if result.MatchedCount == 0 {
		return deployment.Deployment{}, ErrConflict
	}
	return d, nil
}

// Delete removes a Deployment document outright (used once it has
// reached the removed state and its record is no longer needed).
func (s *DeploymentStore) Delete(ctx context.Context, id string) error {
	_, err := s.client.collection(deploymentsCollection).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("deleting deployment %s: %w", id, err)
	}
	return nil
}
