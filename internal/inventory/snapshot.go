package inventory

import (
	"errors"
	"fmt"
	"maps"

	"gopkg.in/yaml.v3"
)

// PlacedItem is an item together with the top-left cell it occupies.
type PlacedItem struct {
	Item `yaml:",inline"`
	X    int `json:"x" yaml:"x"`
	Y    int `json:"y" yaml:"y"`
}

// ContainerSnapshot is a lossless, self-contained copy of a container.
type ContainerSnapshot struct {
	ID        ContainerID       `json:"id" yaml:"id"`
	Kind      string            `json:"kind" yaml:"kind"`
	Width     int               `json:"width" yaml:"width"`
	Height    int               `json:"height" yaml:"height"`
	Name      string            `json:"name,omitempty" yaml:"name,omitempty"`
	Temporary bool              `json:"temporary,omitempty" yaml:"temporary,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	Items     []PlacedItem      `json:"items" yaml:"items"`
}

// Export returns a deep copy of c. Items are listed in ID order.
func Export(c *Container) ContainerSnapshot {
	snap := ContainerSnapshot{
		ID:        c.id,
		Kind:      c.kind.String(),
		Width:     c.width,
		Height:    c.height,
		Name:      c.name,
		Temporary: c.temporary,
		Metadata:  maps.Clone(c.metadata),
		Items:     make([]PlacedItem, 0, len(c.items)),
	}
	for _, id := range c.ItemIDs() {
		x, y, _ := c.ItemPosition(id)
		snap.Items = append(snap.Items, PlacedItem{Item: *c.items[id].Copy(), X: x, Y: y})
	}
	return snap
}

// Import registers a container rebuilt from snap. Items go through the normal
// insertion checks, so a snapshot with overlapping items is rejected.
//
// Postcondition: on error the Store is unchanged.
func (s *Store) Import(snap ContainerSnapshot) (*Container, error) {
	kind, err := ParseKind(snap.Kind)
	if err != nil {
		return nil, err
	}
	if snap.ID == "" {
		return nil, errors.New("inventory: import: snapshot has no ID")
	}
	if s.Has(snap.ID) {
		return nil, fmt.Errorf("inventory: import %q: %w", snap.ID, ErrDuplicateContainer)
	}

	opts := []ContainerOption{WithID(snap.ID), WithName(snap.Name)}
	if snap.Metadata != nil {
		opts = append(opts, WithMetadata(snap.Metadata))
	}
	if snap.Temporary {
		opts = append(opts, Temporary())
	}

	var c *Container
	switch kind {
	case KindGrid:
		if snap.Width < 1 || snap.Height < 1 || snap.Width > MaxDimension || snap.Height > MaxDimension {
			return nil, fmt.Errorf("inventory: import %q: grid %dx%d: %w", snap.ID, snap.Width, snap.Height, ErrInvalidDimensions)
		}
		c = newContainer(KindGrid, snap.Width, snap.Height, opts...)
	case KindSocket:
		if len(snap.Items) > 1 {
			return nil, fmt.Errorf("inventory: import %q: socket holds %d items", snap.ID, len(snap.Items))
		}
		c = newContainer(KindSocket, 1, 1, opts...)
	}

	for _, p := range snap.Items {
		if err := c.insert(p.Item.Copy(), p.X, p.Y); err != nil {
			return nil, fmt.Errorf("inventory: import %q: %w", snap.ID, err)
		}
	}
	return s.register(c)
}

// EncodeYAML renders snap as YAML.
func (snap ContainerSnapshot) EncodeYAML() ([]byte, error) {
	return yaml.Marshal(snap)
}

// DecodeSnapshotYAML parses a ContainerSnapshot from YAML.
func DecodeSnapshotYAML(data []byte) (ContainerSnapshot, error) {
	var snap ContainerSnapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return ContainerSnapshot{}, fmt.Errorf("inventory: decoding snapshot: %w", err)
	}
	return snap, nil
}
