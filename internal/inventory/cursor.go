package inventory

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// CursorID is the well-known ID of the cursor's socket container.
const CursorID ContainerID = "cursor"

// DefaultDragThreshold is the squared pointer distance, in cells, past which a
// pick-up turns into a drag and the debounce window closes.
const DefaultDragThreshold = 0.25

var (
	// ErrAlreadyHolding is returned by PickUp while an item is held.
	ErrAlreadyHolding = errors.New("cursor already holds an item")
	// ErrNothingHeld is returned by PutDown and DropOnGround when nothing is held.
	ErrNothingHeld = errors.New("cursor holds nothing")
	// ErrItemNotFound is returned by PickUp when the source lacks the item.
	ErrItemNotFound = errors.New("item not found")
	// ErrCursorContainer is returned when the cursor's own socket is used as source or target.
	ErrCursorContainer = errors.New("cursor container cannot be a transfer endpoint")
	// ErrNoGround is returned by DropOnGround when no Ground is attached.
	ErrNoGround = errors.New("no ground attached")
)

// Ground receives items dropped off the cursor and wraps each in a new container.
type Ground interface {
	Drop(it *Item) (*Container, error)
}

// CursorOption configures a Cursor.
type CursorOption func(*Cursor)

// WithDragThreshold overrides DefaultDragThreshold.
func WithDragThreshold(squared float64) CursorOption {
	return func(c *Cursor) { c.threshold = squared }
}

// WithGround attaches the Ground used by DropOnGround.
func WithGround(g Ground) CursorOption {
	return func(c *Cursor) { c.ground = g }
}

// Cursor is the hold session: a socket container holding the item currently
// being moved, the offset from the item's top-left cell to the point it was
// grabbed by, and a one-shot debounce that swallows the put-down immediately
// following a pick-up.
type Cursor struct {
	store  *Store
	socket *Container
	ground Ground

	offsetX, offsetY int

	debounce     bool
	pickX, pickY float64
	threshold    float64
}

// NewCursor registers the cursor socket under CursorID in s.
//
// Postcondition: returns an error if CursorID is already registered.
func NewCursor(s *Store, opts ...CursorOption) (*Cursor, error) {
	socket, err := s.CreateSocket(WithID(CursorID), WithName("cursor"))
	if err != nil {
		return nil, fmt.Errorf("creating cursor: %w", err)
	}
	c := &Cursor{
		store:     s,
		socket:    socket,
		threshold: DefaultDragThreshold,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// Container returns the cursor's socket container.
func (c *Cursor) Container() *Container { return c.socket }

// SetGround replaces the Ground used by DropOnGround.
func (c *Cursor) SetGround(g Ground) { c.ground = g }

// HasHeld reports whether an item is held.
func (c *Cursor) HasHeld() bool { return !c.socket.IsEmpty() }

// Held returns the held item, or nil.
func (c *Cursor) Held() *Item { return c.socket.socketItem() }

// Offset returns the hold offset. Both components are <= 0.
func (c *Cursor) Offset() (x, y int) { return c.offsetX, c.offsetY }

// SetOffset records the hold offset, clamping each component to <= 0.
func (c *Cursor) SetOffset(x, y int) {
	c.offsetX, c.offsetY = min(0, x), min(0, y)
}

// Debouncing reports whether the next put-down will be swallowed.
func (c *Cursor) Debouncing() bool { return c.debounce }

// PickUp moves item id from src onto the cursor. (x, y) is the cell the item
// was grabbed at; the hold offset becomes the item's top-left minus (x, y).
//
// Postcondition: on success the debounce window is open and listeners of src
// and the cursor are notified; on error nothing changes.
func (c *Cursor) PickUp(src *Container, id ItemID, x, y int) error {
	if c.HasHeld() {
		return ErrAlreadyHolding
	}
	if src == c.socket {
		return ErrCursorContainer
	}
	c.store.own(src)
	it, ix, iy, ok := src.detach(id)
	if !ok {
		return fmt.Errorf("inventory: pick up %q from %q: %w", id, src.id, ErrItemNotFound)
	}
	mustInsert(c.socket, it, 0, 0)
	c.SetOffset(ix-x, iy-y)
	c.debounce = true
	c.pickX, c.pickY = float64(x), float64(y)

	c.store.logger.Debug("item picked up",
		zap.String("container", string(src.id)),
		zap.String("item", string(id)),
		zap.Int("offset_x", c.offsetX),
		zap.Int("offset_y", c.offsetY),
	)
	c.store.commit(src, c.socket)
	return nil
}

// MoveTo reports the pointer position in cell coordinates. Moving farther than
// the drag threshold from the pick-up point closes the debounce window.
func (c *Cursor) MoveTo(x, y float64) {
	if !c.debounce {
		return
	}
	dx, dy := x-c.pickX, y-c.pickY
	if dx*dx+dy*dy > c.threshold {
		c.debounce = false
	}
}

// PutDownResult describes a put-down. Ignored is true when the call was
// swallowed by the debounce window; PlaceResult is then zero.
type PutDownResult struct {
	PlaceResult
	Ignored bool
}

// PutDown places the held item into target. For grids the requested cell is
// (x, y) shifted by the hold offset. A displaced occupant becomes the held
// item with its own offset; a partial gesture keeps the remainder held.
//
// Postcondition: on error every container is unchanged and the item stays
// held. A remainder whose stack reaches zero is discarded.
func (c *Cursor) PutDown(target *Container, x, y int, opts PlaceOptions) (PutDownResult, error) {
	n := c.Held()
	if n == nil {
		return PutDownResult{}, ErrNothingHeld
	}
	if c.debounce {
		c.debounce = false
		return PutDownResult{Ignored: true}, nil
	}
	if target == c.socket {
		return PutDownResult{}, ErrCursorContainer
	}
	c.store.own(target)

	c.socket.detach(n.ID)
	res, err := c.store.place(target, n, x+c.offsetX, y+c.offsetY, opts)
	if err != nil {
		mustInsert(c.socket, n, 0, 0)
		return PutDownResult{}, err
	}

	switch {
	case res.Displaced != nil:
		mustInsert(c.socket, res.Displaced.Item, 0, 0)
		c.SetOffset(res.Displaced.OffsetX, res.Displaced.OffsetY)
	case !res.Consumed && n.StackSize > 0:
		mustInsert(c.socket, n, 0, 0)
	default:
		c.SetOffset(0, 0)
	}

	c.store.commit(target, c.socket)
	return PutDownResult{PlaceResult: res}, nil
}

// DropOnGround hands the held item to the attached Ground, which wraps it in a
// new container. It closes the debounce window without being swallowed.
func (c *Cursor) DropOnGround() (*Container, error) {
	n := c.Held()
	if n == nil {
		return nil, ErrNothingHeld
	}
	if c.ground == nil {
		return nil, ErrNoGround
	}
	c.debounce = false

	c.socket.detach(n.ID)
	g, err := c.ground.Drop(n)
	if err != nil {
		mustInsert(c.socket, n, 0, 0)
		return nil, fmt.Errorf("inventory: drop %q: %w", n.ID, err)
	}
	c.SetOffset(0, 0)
	c.store.commit(c.socket)
	return g, nil
}

// ClearHeld discards the held item.
//
// Postcondition: returns false iff nothing was held.
func (c *Cursor) ClearHeld() (*Item, bool) {
	n := c.Held()
	if n == nil {
		return nil, false
	}
	c.socket.detach(n.ID)
	c.SetOffset(0, 0)
	c.debounce = false
	c.store.commit(c.socket)
	return n, true
}
