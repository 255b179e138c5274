package script

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/cory-johannsen/stash/internal/inventory"
)

// StepError reports the step a script failed at.
type StepError struct {
	Index int
	Op    string
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (%s): %v", e.Index, e.Op, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Runner executes scripts against a Store, its Cursor and an optional
// template registry.
type Runner struct {
	store     *inventory.Store
	cursor    *inventory.Cursor
	templates *inventory.TemplateRegistry
	logger    *zap.Logger
}

// NewRunner creates a Runner.
//
// Precondition: store and cursor are non-nil and cursor belongs to store.
// templates may be nil when scripts only use inline items.
func NewRunner(store *inventory.Store, cursor *inventory.Cursor, templates *inventory.TemplateRegistry, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{store: store, cursor: cursor, templates: templates, logger: logger}
}

// Run executes the steps of sc in order, checking every container's
// occupancy invariants after each step.
//
// Postcondition: returns a *StepError for the first failing step; later
// steps are not run.
func (r *Runner) Run(ctx context.Context, sc *Script) error {
	for i, st := range sc.Steps {
		if err := ctx.Err(); err != nil {
			return &StepError{Index: i, Op: st.Op, Err: err}
		}
		if err := r.step(st); err != nil {
			return &StepError{Index: i, Op: st.Op, Err: err}
		}
		if err := r.checkInvariants(); err != nil {
			return &StepError{Index: i, Op: st.Op, Err: err}
		}
		r.logger.Debug("script step done",
			zap.String("script", sc.Name),
			zap.Int("step", i),
			zap.String("op", st.Op),
		)
	}
	r.logger.Info("script finished", zap.String("script", sc.Name), zap.Int("steps", len(sc.Steps)))
	return nil
}

func (r *Runner) step(st Step) error {
	switch st.Op {
	case OpCreateGrid:
		_, err := r.store.CreateGrid(st.Width, st.Height, r.containerOptions(st)...)
		return err
	case OpCreateSocket:
		_, err := r.store.CreateSocket(r.containerOptions(st)...)
		return err
	case OpDelete:
		if _, err := r.mutable(st.Container); err != nil {
			return err
		}
		if !r.store.DeleteContainer(st.Container) {
			return fmt.Errorf("container %q not found", st.Container)
		}
		return nil
	case OpAdd:
		c, err := r.mutable(st.Container)
		if err != nil {
			return err
		}
		it, err := r.buildItem(st)
		if err != nil {
			return err
		}
		return r.store.AddItem(c, it, st.X, st.Y)
	case OpRemove:
		c, err := r.mutable(st.Container)
		if err != nil {
			return err
		}
		if _, ok := r.store.RemoveItem(c, st.ID); !ok {
			return fmt.Errorf("item %q not in %q: %w", st.ID, st.Container, inventory.ErrItemNotFound)
		}
		return nil
	case OpClear:
		c, err := r.mutable(st.Container)
		if err != nil {
			return err
		}
		r.store.ClearAll(c)
		return nil
	case OpPickUp:
		c, err := r.container(st.Container)
		if err != nil {
			return err
		}
		return r.cursor.PickUp(c, st.ID, st.X, st.Y)
	case OpMove:
		r.cursor.MoveTo(st.PX, st.PY)
		return nil
	case OpPutDown:
		c, err := r.container(st.Container)
		if err != nil {
			return err
		}
		res, err := r.cursor.PutDown(c, st.X, st.Y, inventory.PlaceOptions{Swap: st.Swap, Merge: st.Merge, Partial: st.Partial})
		if err != nil {
			return err
		}
		if res.Ignored {
			r.logger.Debug("put down swallowed by debounce", zap.String("container", string(st.Container)))
		} else {
			r.logger.Debug("put down",
				zap.String("container", string(st.Container)),
				zap.Stringer("outcome", res.Outcome),
				zap.Int("x", res.X),
				zap.Int("y", res.Y),
			)
		}
		return nil
	case OpDrop:
		_, err := r.cursor.DropOnGround()
		return err
	case OpExpect:
		return r.expect(st)
	}
	return fmt.Errorf("unknown op %q", st.Op)
}

func (r *Runner) containerOptions(st Step) []inventory.ContainerOption {
	var opts []inventory.ContainerOption
	if st.Container != "" {
		opts = append(opts, inventory.WithID(st.Container))
	}
	if st.Name != "" {
		opts = append(opts, inventory.WithName(st.Name))
	}
	if st.Temporary {
		opts = append(opts, inventory.Temporary())
	}
	return opts
}

func (r *Runner) container(id inventory.ContainerID) (*inventory.Container, error) {
	c, ok := r.store.Container(id)
	if !ok {
		return nil, fmt.Errorf("container %q not found", id)
	}
	return c, nil
}

// mutable returns a container that add, remove, clear and delete steps may
// change directly. The cursor's socket only changes through the Cursor.
func (r *Runner) mutable(id inventory.ContainerID) (*inventory.Container, error) {
	c, err := r.container(id)
	if err != nil {
		return nil, err
	}
	if c == r.cursor.Container() {
		return nil, fmt.Errorf("%q: %w", id, inventory.ErrCursorContainer)
	}
	return c, nil
}

func (r *Runner) buildItem(st Step) (*inventory.Item, error) {
	var it *inventory.Item
	switch {
	case st.Item != nil:
		it = st.Item.Copy()
	case st.Template != "":
		if r.templates == nil {
			return nil, fmt.Errorf("template %q requested but no templates are loaded", st.Template)
		}
		built, err := r.templates.Build(st.Template)
		if err != nil {
			return nil, err
		}
		it = built
	default:
		return nil, fmt.Errorf("add needs a template or an inline item")
	}
	if st.ID != "" {
		it.ID = st.ID
	}
	return it, nil
}

func (r *Runner) expect(st Step) error {
	e := st.Expect
	if e.Exists != nil && r.store.Has(st.Container) != *e.Exists {
		return fmt.Errorf("container %q exists=%v, want %v", st.Container, !*e.Exists, *e.Exists)
	}
	if e.Occupant != nil || e.Stack != nil || e.Items != nil {
		c, err := r.container(st.Container)
		if err != nil {
			return err
		}
		if e.Occupant != nil {
			if got := c.OccupantAt(st.X, st.Y); got != *e.Occupant {
				return fmt.Errorf("%q (%d,%d) holds %q, want %q", st.Container, st.X, st.Y, got, *e.Occupant)
			}
		}
		if e.Stack != nil {
			it, ok := c.Item(st.ID)
			if !ok {
				return fmt.Errorf("item %q not in %q: %w", st.ID, st.Container, inventory.ErrItemNotFound)
			}
			if it.StackSize != *e.Stack {
				return fmt.Errorf("item %q stack %d, want %d", st.ID, it.StackSize, *e.Stack)
			}
		}
		if e.Items != nil && c.Len() != *e.Items {
			return fmt.Errorf("%q holds %d items, want %d", st.Container, c.Len(), *e.Items)
		}
	}
	if e.Held != nil {
		var got inventory.ItemID
		if h := r.cursor.Held(); h != nil {
			got = h.ID
		}
		if got != *e.Held {
			return fmt.Errorf("cursor holds %q, want %q", got, *e.Held)
		}
	}
	if e.Offset != nil {
		x, y := r.cursor.Offset()
		if x != e.Offset[0] || y != e.Offset[1] {
			return fmt.Errorf("cursor offset (%d,%d), want (%d,%d)", x, y, e.Offset[0], e.Offset[1])
		}
	}
	return nil
}

func (r *Runner) checkInvariants() error {
	for _, id := range r.store.Containers() {
		c, _ := r.store.Container(id)
		if err := c.CheckInvariants(); err != nil {
			return err
		}
	}
	return nil
}
