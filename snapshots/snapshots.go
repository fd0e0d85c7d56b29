// Package snapshots persists saved analyses, so they can be restored later by ID.
package snapshots

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"hermannm.dev/cubes/navigation"
	"hermannm.dev/wrap"
)

// Snapshot is a saved analysis state.
type Snapshot struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	CreatedAt time.Time        `json:"createdAt"`
	State     navigation.State `json:"state"`
}

// Summary lists a snapshot without its state.
type Summary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

type Store interface {
	Save(ctx context.Context, snapshot Snapshot) error
	// Returns NotFoundError if no snapshot has the given ID.
	Load(ctx context.Context, id string) (Snapshot, error)
	// Returns NotFoundError if no snapshot has the given ID.
	Delete(ctx context.Context, id string) error
	// Newest first.
	List(ctx context.Context) ([]Summary, error)
}

// NewSnapshot validates the state, and gives it a new unique ID.
func NewSnapshot(name string, state navigation.State) (Snapshot, error) {
	if err := state.Validate(); err != nil {
		return Snapshot{}, wrap.Error(err, "invalid analysis state")
	}

	id, err := uuid.NewRandom()
	if err != nil {
		return Snapshot{}, wrap.Error(err, "failed to generate snapshot ID")
	}

	if name == "" {
		name = state.Cube
	}

	return Snapshot{
		ID:        id.String(),
		Name:      name,
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
		State:     state,
	}, nil
}

func (snapshot Snapshot) Summary() Summary {
	return Summary{ID: snapshot.ID, Name: snapshot.Name, CreatedAt: snapshot.CreatedAt}
}

type NotFoundError struct {
	ID string
}

func (err NotFoundError) Error() string {
	return fmt.Sprintf("no snapshot found with ID '%s'", err.ID)
}

func sortNewestFirst(summaries []Summary) {
	slices.SortStableFunc(summaries, func(a Summary, b Summary) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
}
