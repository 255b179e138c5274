package inventory

import (
	"maps"

	"github.com/google/uuid"
)

// ItemID identifies an item within the container that owns it.
type ItemID string

// NotStackable is the StackSize of an item that cannot be stacked.
const NotStackable = -1

// Item is a value entity occupying a Width x Height footprint of grid cells.
// Placement logic only reads ID, Width, Height and StackSize; every other field
// is cosmetic.
type Item struct {
	ID          ItemID            `json:"id" yaml:"id"`
	Width       int               `json:"width" yaml:"width"`
	Height      int               `json:"height" yaml:"height"`
	StackSize   int               `json:"stack_size" yaml:"stack_size"`
	Name        string            `json:"name,omitempty" yaml:"name,omitempty"`
	Description string            `json:"description,omitempty" yaml:"description,omitempty"`
	Image       string            `json:"image,omitempty" yaml:"image,omitempty"`
	Background  string            `json:"background,omitempty" yaml:"background,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// NewItemID returns a fresh random item identifier.
func NewItemID() ItemID {
	return ItemID(uuid.New().String())
}

// NewItem returns a non-stackable item with a fresh ID and the given footprint.
//
// Precondition: width >= 1 and height >= 1.
func NewItem(width, height int) *Item {
	return &Item{
		ID:        NewItemID(),
		Width:     width,
		Height:    height,
		StackSize: NotStackable,
	}
}

// Stackable reports whether the item carries a stack count.
func (it *Item) Stackable() bool {
	return it.StackSize >= 0
}

// Copy returns an independent deep copy sharing the item's ID.
//
// Postcondition: the copy is field-for-field equal to it; mutating either does
// not affect the other.
func (it *Item) Copy() *Item {
	out := *it
	if it.Metadata != nil {
		out.Metadata = maps.Clone(it.Metadata)
	}
	return &out
}

// Clone returns an independent deep copy carrying a fresh ID.
func (it *Item) Clone() *Item {
	out := it.Copy()
	out.ID = NewItemID()
	return out
}

func (it *Item) valid() bool {
	return it != nil && it.ID != "" &&
		it.Width >= 1 && it.Height >= 1 &&
		it.Width <= MaxDimension && it.Height <= MaxDimension &&
		it.StackSize >= NotStackable
}
