package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/stash/internal/inventory"
)

// ErrContainerNotFound is returned when a container lookup yields no results.
var ErrContainerNotFound = errors.New("container not found")

// StoredContainer is a persisted container snapshot with its bookkeeping columns.
type StoredContainer struct {
	Snapshot  inventory.ContainerSnapshot
	UpdatedAt time.Time
}

// ContainerRepository persists container snapshots as JSONB documents.
type ContainerRepository struct {
	db *pgxpool.Pool
}

// NewContainerRepository creates a ContainerRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewContainerRepository(db *pgxpool.Pool) *ContainerRepository {
	return &ContainerRepository{db: db}
}

// Save inserts snap or replaces the stored copy with the same ID.
//
// Precondition: snap.ID must be non-empty.
// Postcondition: Load(snap.ID) returns snap.
func (r *ContainerRepository) Save(ctx context.Context, snap inventory.ContainerSnapshot) error {
	if snap.ID == "" {
		return errors.New("saving container: snapshot has no ID")
	}
	doc, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encoding container %q: %w", snap.ID, err)
	}
	_, err = r.db.Exec(ctx,
		`INSERT INTO containers (id, kind, snapshot, updated_at)
		 VALUES ($1, $2, $3, NOW())
		 ON CONFLICT (id) DO UPDATE
		 SET kind = EXCLUDED.kind, snapshot = EXCLUDED.snapshot, updated_at = NOW()`,
		string(snap.ID), snap.Kind, doc,
	)
	if err != nil {
		return fmt.Errorf("upserting container %q: %w", snap.ID, err)
	}
	return nil
}

// Load retrieves the snapshot stored under id.
//
// Postcondition: Returns the stored container or ErrContainerNotFound.
func (r *ContainerRepository) Load(ctx context.Context, id inventory.ContainerID) (StoredContainer, error) {
	var (
		doc []byte
		out StoredContainer
	)
	err := r.db.QueryRow(ctx,
		`SELECT snapshot, updated_at FROM containers WHERE id = $1`,
		string(id),
	).Scan(&doc, &out.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StoredContainer{}, ErrContainerNotFound
		}
		return StoredContainer{}, fmt.Errorf("querying container %q: %w", id, err)
	}
	if err := json.Unmarshal(doc, &out.Snapshot); err != nil {
		return StoredContainer{}, fmt.Errorf("decoding container %q: %w", id, err)
	}
	return out, nil
}

// Delete removes the container stored under id. Deleting an absent container
// is not an error.
//
// Postcondition: Load(id) returns ErrContainerNotFound.
func (r *ContainerRepository) Delete(ctx context.Context, id inventory.ContainerID) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM containers WHERE id = $1`, string(id)); err != nil {
		return fmt.Errorf("deleting container %q: %w", id, err)
	}
	return nil
}

// List returns the IDs of all stored containers in ascending order.
func (r *ContainerRepository) List(ctx context.Context) ([]inventory.ContainerID, error) {
	rows, err := r.db.Query(ctx, `SELECT id FROM containers ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing containers: %w", err)
	}
	ids, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (inventory.ContainerID, error) {
		var id string
		err := row.Scan(&id)
		return inventory.ContainerID(id), err
	})
	if err != nil {
		return nil, fmt.Errorf("scanning container ids: %w", err)
	}
	return ids, nil
}

// LoadAll returns every stored snapshot ordered by ID.
func (r *ContainerRepository) LoadAll(ctx context.Context) ([]inventory.ContainerSnapshot, error) {
	rows, err := r.db.Query(ctx, `SELECT snapshot FROM containers ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("loading containers: %w", err)
	}
	snaps, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (inventory.ContainerSnapshot, error) {
		var (
			doc  []byte
			snap inventory.ContainerSnapshot
		)
		if err := row.Scan(&doc); err != nil {
			return snap, err
		}
		return snap, json.Unmarshal(doc, &snap)
	})
	if err != nil {
		return nil, fmt.Errorf("scanning containers: %w", err)
	}
	return snaps, nil
}
