package persist_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/stash/internal/inventory"
	"github.com/cory-johannsen/stash/internal/persist"
)

// memRepo is an in-memory Repository and Source.
type memRepo struct {
	saved   map[inventory.ContainerID]inventory.ContainerSnapshot
	failOn  inventory.ContainerID
	deletes []inventory.ContainerID
}

func newMemRepo() *memRepo {
	return &memRepo{saved: make(map[inventory.ContainerID]inventory.ContainerSnapshot)}
}

func (r *memRepo) Save(_ context.Context, snap inventory.ContainerSnapshot) error {
	if snap.ID == r.failOn {
		return errors.New("disk full")
	}
	r.saved[snap.ID] = snap
	return nil
}

func (r *memRepo) Delete(_ context.Context, id inventory.ContainerID) error {
	if id == r.failOn {
		return errors.New("disk full")
	}
	r.deletes = append(r.deletes, id)
	delete(r.saved, id)
	return nil
}

func (r *memRepo) LoadAll(_ context.Context) ([]inventory.ContainerSnapshot, error) {
	out := make([]inventory.ContainerSnapshot, 0, len(r.saved))
	for _, snap := range r.saved {
		out = append(out, snap)
	}
	return out, nil
}

func block(id string) *inventory.Item {
	return &inventory.Item{ID: inventory.ItemID(id), Width: 1, Height: 1, StackSize: inventory.NotStackable}
}

func TestTracker_RecordsAndFlushes(t *testing.T) {
	s := inventory.NewStore(nil)
	tr := persist.NewTracker(s)
	defer tr.Close()

	c, err := s.CreateGrid(2, 2, inventory.WithID("bag"))
	require.NoError(t, err)
	require.NoError(t, s.AddItem(c, block("a"), 0, 0))
	assert.Equal(t, 1, tr.Pending())

	repo := newMemRepo()
	n, err := tr.Flush(context.Background(), repo)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Zero(t, tr.Pending())
	assert.Equal(t, inventory.Export(c), repo.saved["bag"])

	n, err = tr.Flush(context.Background(), repo)
	require.NoError(t, err)
	assert.Zero(t, n, "nothing pending")
}

func TestTracker_DeleteSupersedesDirty(t *testing.T) {
	s := inventory.NewStore(nil)
	tr := persist.NewTracker(s)
	defer tr.Close()

	c, err := s.CreateGrid(2, 2, inventory.WithID("bag"))
	require.NoError(t, err)
	require.NoError(t, s.AddItem(c, block("a"), 0, 0))
	require.True(t, s.DeleteContainer("bag"))

	assert.Empty(t, tr.Dirty())
	assert.Equal(t, []inventory.ContainerID{"bag"}, tr.Deleted())

	repo := newMemRepo()
	_, err = tr.Flush(context.Background(), repo)
	require.NoError(t, err)
	assert.Equal(t, []inventory.ContainerID{"bag"}, repo.deletes)
}

func TestTracker_TemporaryContainerBecomesDelete(t *testing.T) {
	s := inventory.NewStore(nil)
	tr := persist.NewTracker(s)
	defer tr.Close()

	c, err := s.CreateSocket(inventory.WithID("ground"), inventory.Temporary())
	require.NoError(t, err)
	require.NoError(t, s.AddItem(c, block("a"), 0, 0))
	_, ok := s.RemoveItem(c, "a")
	require.True(t, ok)

	assert.Equal(t, []inventory.ContainerID{"ground"}, tr.Deleted())
}

func TestTracker_Exclude(t *testing.T) {
	s := inventory.NewStore(nil)
	tr := persist.NewTracker(s, persist.Exclude(inventory.CursorID))
	defer tr.Close()

	_, err := inventory.NewCursor(s)
	require.NoError(t, err)
	assert.Zero(t, tr.Pending())
}

func TestTracker_FlushStopsAtFirstError(t *testing.T) {
	s := inventory.NewStore(nil)
	tr := persist.NewTracker(s)
	defer tr.Close()

	for _, id := range []inventory.ContainerID{"a", "b", "c"} {
		_, err := s.CreateGrid(1, 1, inventory.WithID(id))
		require.NoError(t, err)
	}
	repo := newMemRepo()
	repo.failOn = "b"

	n, err := tr.Flush(context.Background(), repo)
	require.Error(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []inventory.ContainerID{"b", "c"}, tr.Dirty())

	repo.failOn = ""
	n, err = tr.Flush(context.Background(), repo)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, repo.saved, 3)
}

func TestTracker_MarkDirty(t *testing.T) {
	s := inventory.NewStore(nil)
	_, err := s.CreateGrid(1, 1, inventory.WithID("old"))
	require.NoError(t, err)

	tr := persist.NewTracker(s)
	defer tr.Close()
	assert.Zero(t, tr.Pending(), "containers created before the tracker are not pending")

	tr.MarkDirty(s.Containers()...)
	assert.Equal(t, []inventory.ContainerID{"old"}, tr.Dirty())
}

func TestTracker_CloseStopsRecording(t *testing.T) {
	s := inventory.NewStore(nil)
	tr := persist.NewTracker(s)
	tr.Close()
	_, err := s.CreateGrid(1, 1)
	require.NoError(t, err)
	assert.Zero(t, tr.Pending())
}

func TestRestore(t *testing.T) {
	src := inventory.NewStore(nil)
	c, err := src.CreateGrid(3, 3, inventory.WithID("chest"))
	require.NoError(t, err)
	require.NoError(t, src.AddItem(c, block("a"), 1, 1))

	repo := newMemRepo()
	require.NoError(t, repo.Save(context.Background(), inventory.Export(c)))

	dst := inventory.NewStore(nil)
	n, err := persist.Restore(context.Background(), repo, dst)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	got, ok := dst.Container("chest")
	require.True(t, ok)
	assert.Equal(t, inventory.Export(c), inventory.Export(got))

	_, err = persist.Restore(context.Background(), repo, dst)
	assert.ErrorIs(t, err, inventory.ErrDuplicateContainer)
}

func TestProperty_FlushMirrorsStore(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := inventory.NewStore(nil)
		tr := persist.NewTracker(s)
		repo := newMemRepo()
		ids := []inventory.ContainerID{"a", "b", "c", "d"}

		ops := rapid.IntRange(1, 40).Draw(t, "ops")
		for i := 0; i < ops; i++ {
			id := ids[rapid.IntRange(0, len(ids)-1).Draw(t, "id")]
			switch rapid.IntRange(0, 3).Draw(t, "op") {
			case 0:
				_, _ = s.CreateGrid(2, 2, inventory.WithID(id))
			case 1:
				s.DeleteContainer(id)
			case 2:
				if c, ok := s.Container(id); ok {
					_ = s.AddItem(c, inventory.NewItem(1, 1), rapid.IntRange(0, 1).Draw(t, "x"), rapid.IntRange(0, 1).Draw(t, "y"))
				}
			case 3:
				if _, err := tr.Flush(context.Background(), repo); err != nil {
					t.Fatal(err)
				}
			}
		}
		if _, err := tr.Flush(context.Background(), repo); err != nil {
			t.Fatal(err)
		}
		if len(repo.saved) != len(s.Containers()) {
			t.Fatalf("repo has %d containers, store has %d", len(repo.saved), len(s.Containers()))
		}
		for _, id := range s.Containers() {
			c, _ := s.Container(id)
			got, ok := repo.saved[id]
			if !ok {
				t.Fatalf("container %q not saved", id)
			}
			if len(got.Items) != c.Len() {
				t.Fatalf("container %q: saved %d items, store has %d", id, len(got.Items), c.Len())
			}
		}
	})
}
