package inventory

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/cory-johannsen/stash/internal/gridsearch"
)

var (
	// ErrTooLarge is returned when an item's footprint exceeds the target grid.
	ErrTooLarge = errors.New("item larger than container")
	// ErrBlocked is returned when the target region is blocked and no free
	// region large enough exists.
	ErrBlocked = errors.New("no free region")
	// ErrSwapDenied is returned when a socket is occupied and swapping is not permitted.
	ErrSwapDenied = errors.New("socket occupied and swap not permitted")
)

// PlaceOptions selects which placement gestures are permitted.
type PlaceOptions struct {
	// Swap allows exchanging places with a single occupant.
	Swap bool
	// Merge allows stacking onto a single mergeable occupant.
	Merge bool
	// Partial moves one unit instead of the whole stack.
	Partial bool
}

// Outcome names what a successful placement did.
type Outcome int

const (
	// OutcomeInserted means the incoming item was inserted wholesale.
	OutcomeInserted Outcome = iota + 1
	// OutcomeSplit means one unit was split off the incoming item and inserted.
	OutcomeSplit
	// OutcomeMerged means the incoming stack was folded into the occupant.
	OutcomeMerged
	// OutcomeTransferredOne means one unit moved from the incoming item onto the occupant.
	OutcomeTransferredOne
	// OutcomeSwapped means the incoming item replaced the occupant, which is displaced.
	OutcomeSwapped
	// OutcomeRelocated means the target was blocked and the nearest free region was used.
	OutcomeRelocated
)

var outcomeNames = map[Outcome]string{
	OutcomeInserted:       "inserted",
	OutcomeSplit:          "split",
	OutcomeMerged:         "merged",
	OutcomeTransferredOne: "transferred_one",
	OutcomeSwapped:        "swapped",
	OutcomeRelocated:      "relocated",
}

func (o Outcome) String() string {
	if s, ok := outcomeNames[o]; ok {
		return s
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Displaced is an occupant evicted by a swap. The caller becomes responsible
// for it. OffsetX and OffsetY are never positive: they bias the item back
// toward where it used to sit relative to the placement target.
type Displaced struct {
	Item    *Item
	OffsetX int
	OffsetY int
}

// PlaceResult describes a successful placement.
type PlaceResult struct {
	Outcome Outcome
	// Placed is the item in the target that received the incoming units: the
	// incoming item itself, a split-off unit, or the merge target.
	Placed *Item
	// X and Y are the top-left cell of Placed in the target.
	X, Y int
	// Consumed is true when the incoming item no longer belongs to the caller.
	// Otherwise the caller keeps it, possibly with a reduced StackSize.
	Consumed  bool
	Displaced *Displaced
}

// Place puts the caller-owned item n into target. For grids (x, y) is the
// requested top-left cell; sockets ignore it.
//
// Precondition: target is registered in s; n is not owned by any container.
// Postcondition: on success listeners of target are notified; on error no
// container and no item is modified.
func (s *Store) Place(target *Container, n *Item, x, y int, opts PlaceOptions) (PlaceResult, error) {
	s.own(target)
	res, err := s.place(target, n, x, y, opts)
	if err != nil {
		return PlaceResult{}, err
	}
	s.commit(target)
	return res, nil
}

// place performs the placement without notifying.
func (s *Store) place(target *Container, n *Item, x, y int, opts PlaceOptions) (PlaceResult, error) {
	if !n.valid() {
		return PlaceResult{}, fmt.Errorf("inventory: place into %q: %w", target.id, ErrInvalidItem)
	}
	if target.Has(n.ID) {
		return PlaceResult{}, fmt.Errorf("inventory: place %q into %q: %w", n.ID, target.id, ErrDuplicateItem)
	}

	var (
		res PlaceResult
		err error
	)
	switch target.kind {
	case KindGrid:
		res, err = s.placeInGrid(target, n, x, y, opts)
	case KindSocket:
		res, err = s.placeInSocket(target, n, opts)
	default:
		panic(fmt.Sprintf("inventory: container %q has unknown kind %d", target.id, int(target.kind)))
	}

	if err != nil {
		s.logger.Debug("placement failed",
			zap.String("container", string(target.id)),
			zap.String("item", string(n.ID)),
			zap.Int("x", x),
			zap.Int("y", y),
			zap.Error(err),
		)
		return PlaceResult{}, err
	}
	s.logger.Debug("item placed",
		zap.String("container", string(target.id)),
		zap.String("item", string(n.ID)),
		zap.Stringer("outcome", res.Outcome),
		zap.Int("x", res.X),
		zap.Int("y", res.Y),
	)
	return res, nil
}

func (s *Store) placeInSocket(c *Container, n *Item, opts PlaceOptions) (PlaceResult, error) {
	p := c.socketItem()
	if p == nil {
		return insertAt(c, n, 0, 0, opts.Partial, OutcomeInserted), nil
	}
	if res, ok := mergeOnto(p, n, 0, 0, opts); ok {
		return res, nil
	}
	if !opts.Swap {
		return PlaceResult{}, fmt.Errorf("inventory: place %q into %q: %w", n.ID, c.id, ErrSwapDenied)
	}
	return swap(c, p, n, 0, 0), nil
}

func (s *Store) placeInGrid(c *Container, n *Item, x, y int, opts PlaceOptions) (PlaceResult, error) {
	w, h := n.Width, n.Height
	if w > c.width || h > c.height {
		return PlaceResult{}, fmt.Errorf("inventory: place %dx%d item into %dx%d %q: %w",
			w, h, c.width, c.height, c.id, ErrTooLarge)
	}
	tx := clamp(x, 0, c.width-w)
	ty := clamp(y, 0, c.height-h)

	occupants := c.regionOccupants(tx, ty, w, h)
	switch {
	case len(occupants) == 0:
		return insertAt(c, n, tx, ty, opts.Partial, OutcomeInserted), nil
	case len(occupants) == 1:
		p := c.items[occupants[0]]
		if res, ok := mergeOnto(p, n, tx, ty, opts); ok {
			px, py, _ := c.ItemPosition(p.ID)
			res.X, res.Y = px, py
			return res, nil
		}
		if opts.Swap {
			return swap(c, p, n, tx, ty), nil
		}
	}

	bounds := gridsearch.Bounds{MaxX: c.width - w, MaxY: c.height - h}
	free, ok := gridsearch.Nearest(gridsearch.Point{X: tx, Y: ty}, bounds, func(pt gridsearch.Point) bool {
		return c.regionEmpty(pt.X, pt.Y, w, h)
	})
	if !ok {
		return PlaceResult{}, fmt.Errorf("inventory: place %q into %q near (%d,%d): %w", n.ID, c.id, tx, ty, ErrBlocked)
	}
	return insertAt(c, n, free.X, free.Y, opts.Partial, OutcomeRelocated), nil
}

// insertAt inserts n, or a single unit split off n when partial applies.
//
// Precondition: n's footprint fits at (x, y).
func insertAt(c *Container, n *Item, x, y int, partial bool, outcome Outcome) PlaceResult {
	if partial && n.Stackable() && n.StackSize > 1 {
		unit := splitOne(n)
		mustInsert(c, unit, x, y)
		if outcome == OutcomeInserted {
			outcome = OutcomeSplit
		}
		return PlaceResult{Outcome: outcome, Placed: unit, X: x, Y: y}
	}
	mustInsert(c, n, x, y)
	return PlaceResult{Outcome: outcome, Placed: n, X: x, Y: y, Consumed: true}
}

// mergeOnto stacks n onto occupant p when merging is requested and allowed.
func mergeOnto(p, n *Item, x, y int, opts PlaceOptions) (PlaceResult, bool) {
	if !opts.Merge || !Mergeable(p, n) {
		return PlaceResult{}, false
	}
	if opts.Partial {
		if n.StackSize < 1 {
			return PlaceResult{}, false
		}
		transferOne(p, n)
		return PlaceResult{Outcome: OutcomeTransferredOne, Placed: p, X: x, Y: y}, true
	}
	mergeInto(p, n)
	return PlaceResult{Outcome: OutcomeMerged, Placed: p, X: x, Y: y, Consumed: true}, true
}

// swap detaches occupant p, inserts n at (x, y) and hands p back with an offset
// relative to (x, y).
func swap(c *Container, p, n *Item, x, y int) PlaceResult {
	_, px, py, _ := c.detach(p.ID)
	mustInsert(c, n, x, y)
	return PlaceResult{
		Outcome:  OutcomeSwapped,
		Placed:   n,
		X:        x,
		Y:        y,
		Consumed: true,
		Displaced: &Displaced{
			Item:    p,
			OffsetX: min(0, px-x),
			OffsetY: min(0, py-y),
		},
	}
}

func mustInsert(c *Container, it *Item, x, y int) {
	if err := c.insert(it, x, y); err != nil {
		panic(fmt.Sprintf("inventory: verified insert failed: %v", err))
	}
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
