package inventory

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/google/uuid"
)

// ContainerID identifies a container within a Store.
type ContainerID string

// MaxDimension is the largest width or height a grid container may have. The
// nearest-free-region search packs each axis into 16 bits.
const MaxDimension = 0xFFFF

// Kind distinguishes multi-cell grids from single-slot sockets.
type Kind int

const (
	// KindGrid is a W x H grid of slots.
	KindGrid Kind = iota + 1
	// KindSocket holds exactly one item of any footprint in a single slot.
	KindSocket
)

// String returns the lower-case name of the kind.
func (k Kind) String() string {
	switch k {
	case KindGrid:
		return "grid"
	case KindSocket:
		return "socket"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind maps "grid" and "socket" to their Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "grid":
		return KindGrid, nil
	case "socket":
		return KindSocket, nil
	default:
		return 0, fmt.Errorf("inventory: unknown container kind %q", s)
	}
}

var (
	// ErrDuplicateItem is returned when adding an item whose ID the container already holds.
	ErrDuplicateItem = errors.New("item already in container")
	// ErrOutOfBounds is returned when a footprint does not fit inside the container.
	ErrOutOfBounds = errors.New("footprint out of bounds")
	// ErrOccupied is returned when a target region holds another item.
	ErrOccupied = errors.New("region occupied")
	// ErrInvalidItem is returned for items with an empty ID or a footprint outside
	// 1..MaxDimension.
	ErrInvalidItem = errors.New("invalid item")
)

// Container owns a set of items and a slot array mapping each cell to the ID of
// the item covering it.
type Container struct {
	id        ContainerID
	kind      Kind
	width     int
	height    int
	name      string
	metadata  map[string]string
	temporary bool

	items map[ItemID]*Item
	slots []ItemID
}

// ContainerOption configures container construction.
type ContainerOption func(*Container)

// WithID sets the container ID instead of generating one.
func WithID(id ContainerID) ContainerOption {
	return func(c *Container) { c.id = id }
}

// WithName sets the display name.
func WithName(name string) ContainerOption {
	return func(c *Container) { c.name = name }
}

// WithMetadata sets the container's metadata bag.
func WithMetadata(md map[string]string) ContainerOption {
	return func(c *Container) { c.metadata = maps.Clone(md) }
}

// Temporary marks the container for deletion as soon as a mutation leaves it empty.
func Temporary() ContainerOption {
	return func(c *Container) { c.temporary = true }
}

func newContainer(kind Kind, width, height int, opts ...ContainerOption) *Container {
	c := &Container{
		kind:   kind,
		width:  width,
		height: height,
		items:  make(map[ItemID]*Item),
		slots:  make([]ItemID, width*height),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	if c.id == "" {
		c.id = ContainerID(uuid.New().String())
	}
	return c
}

func (c *Container) String() string {
	if c == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s(%s)", c.kind, c.id)
}

// ID returns the container identifier.
func (c *Container) ID() ContainerID { return c.id }

// Kind returns whether c is a grid or a socket.
func (c *Container) Kind() Kind { return c.kind }

// Name returns the display name.
func (c *Container) Name() string { return c.name }

// Metadata returns a copy of the metadata bag.
func (c *Container) Metadata() map[string]string { return maps.Clone(c.metadata) }

// IsTemporary reports whether the container is deleted once emptied.
func (c *Container) IsTemporary() bool { return c.temporary }

// Width returns the container width in cells. A socket mirrors the width of the
// item it holds, or 1 when empty.
func (c *Container) Width() int {
	if c.kind == KindSocket {
		if it := c.socketItem(); it != nil {
			return it.Width
		}
	}
	return c.width
}

// Height returns the container height in cells. A socket mirrors the height of
// the item it holds, or 1 when empty.
func (c *Container) Height() int {
	if c.kind == KindSocket {
		if it := c.socketItem(); it != nil {
			return it.Height
		}
	}
	return c.height
}

// SlotCount returns the length of the slot array.
func (c *Container) SlotCount() int { return len(c.slots) }

// Item returns the item with the given ID.
func (c *Container) Item(id ItemID) (*Item, bool) {
	it, ok := c.items[id]
	return it, ok
}

// Has reports whether the container owns an item with the given ID.
func (c *Container) Has(id ItemID) bool {
	_, ok := c.items[id]
	return ok
}

// ItemIDs returns the IDs of all contained items in sorted order.
func (c *Container) ItemIDs() []ItemID {
	return slices.Sorted(maps.Keys(c.items))
}

// Len returns the number of items in the container.
func (c *Container) Len() int { return len(c.items) }

// IsEmpty reports whether the container holds no items.
func (c *Container) IsEmpty() bool { return len(c.items) == 0 }

// ItemPosition returns the top-left cell of the item's footprint.
//
// Postcondition: ok is false iff the item is not in the container.
func (c *Container) ItemPosition(id ItemID) (x, y int, ok bool) {
	if !c.Has(id) {
		return -1, -1, false
	}
	idx := slices.Index(c.slots, id)
	if idx < 0 {
		panic(fmt.Sprintf("inventory: item %q in container %q occupies no slot", id, c.id))
	}
	x, y = c.SlotCoords(idx)
	return x, y, true
}

// footprint returns the number of slot cells an item covers in c. Sockets map
// any item onto their single slot.
func (c *Container) footprint(it *Item) (w, h int) {
	if c.kind == KindSocket {
		return 1, 1
	}
	return it.Width, it.Height
}

func (c *Container) socketItem() *Item {
	if len(c.slots) == 0 || c.slots[0] == "" {
		return nil
	}
	return c.items[c.slots[0]]
}

// Fits reports whether item could be inserted with its top-left at (x, y)
// without displacing anything.
func (c *Container) Fits(it *Item, x, y int) bool {
	w, h := c.footprint(it)
	return c.inBounds(x, y, w, h) && c.regionEmpty(x, y, w, h)
}

// insert attaches it at (x, y) without notifying anyone.
func (c *Container) insert(it *Item, x, y int) error {
	if !it.valid() {
		return fmt.Errorf("inventory: add to %q: %w", c.id, ErrInvalidItem)
	}
	if c.Has(it.ID) {
		return fmt.Errorf("inventory: add %q to %q: %w", it.ID, c.id, ErrDuplicateItem)
	}
	w, h := c.footprint(it)
	if !c.inBounds(x, y, w, h) {
		return fmt.Errorf("inventory: add %q to %q at (%d,%d): %w", it.ID, c.id, x, y, ErrOutOfBounds)
	}
	if !c.regionEmpty(x, y, w, h) {
		return fmt.Errorf("inventory: add %q to %q at (%d,%d): %w", it.ID, c.id, x, y, ErrOccupied)
	}
	c.items[it.ID] = it
	c.reserve(x, y, x+w-1, y+h-1, it.ID)
	return nil
}

// detach removes the item and clears its footprint without notifying anyone.
func (c *Container) detach(id ItemID) (*Item, int, int, bool) {
	it, ok := c.items[id]
	if !ok {
		return nil, -1, -1, false
	}
	x, y, _ := c.ItemPosition(id)
	w, h := c.footprint(it)
	c.clearRegion(x, y, x+w-1, y+h-1)
	delete(c.items, id)
	return it, x, y, true
}

func (c *Container) clearAll() {
	clear(c.slots)
	clear(c.items)
}

// CheckInvariants verifies the occupancy invariant: every non-empty slot names
// an owned item, and every owned item covers exactly one footprint rectangle.
func (c *Container) CheckInvariants() error {
	counts := make(map[ItemID]int, len(c.items))
	for i, id := range c.slots {
		if id == "" {
			continue
		}
		if _, ok := c.items[id]; !ok {
			return fmt.Errorf("container %q: slot %d references unknown item %q", c.id, i, id)
		}
		counts[id]++
	}
	for id, it := range c.items {
		x, y := c.SlotCoords(slices.Index(c.slots, id))
		if x < 0 {
			return fmt.Errorf("container %q: item %q occupies no slot", c.id, id)
		}
		w, h := c.footprint(it)
		if counts[id] != w*h {
			return fmt.Errorf("container %q: item %q covers %d cells, want %d", c.id, id, counts[id], w*h)
		}
		if !c.inBounds(x, y, w, h) {
			return fmt.Errorf("container %q: item %q footprint at (%d,%d) leaves the grid", c.id, id, x, y)
		}
		for cy := y; cy < y+h; cy++ {
			for cx := x; cx < x+w; cx++ {
				if occ := c.OccupantAt(cx, cy); occ != id {
					return fmt.Errorf("container %q: item %q footprint cell (%d,%d) holds %q", c.id, id, cx, cy, occ)
				}
			}
		}
	}
	return nil
}
