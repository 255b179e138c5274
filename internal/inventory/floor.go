package inventory

import (
	"fmt"
	"slices"
)

// MetadataArea is the container metadata key recording which area a ground
// container lies in.
const MetadataArea = "area"

// Floor tracks the ground containers of each area. Every dropped item gets its
// own temporary socket; the Store deletes it once the item is picked up, and
// the Floor forgets it when notified of the deletion.
type Floor struct {
	store *Store
	areas map[string][]ContainerID
	sub   Subscription
}

// NewFloor creates a Floor over s. Ground containers already in s, such as
// those restored from storage, are adopted in container ID order.
//
// Postcondition: the Floor is subscribed to s until Close is called.
func NewFloor(s *Store) *Floor {
	f := &Floor{
		store: s,
		areas: make(map[string][]ContainerID),
	}
	for _, id := range s.Containers() {
		c, _ := s.Container(id)
		if area, ok := groundArea(c); ok {
			f.areas[area] = append(f.areas[area], id)
		}
	}
	f.sub = s.SubscribeAll(f.onChange)
	return f
}

// groundArea reports the area of a ground container: a temporary socket
// carrying MetadataArea.
func groundArea(c *Container) (string, bool) {
	if c.kind != KindSocket || !c.temporary {
		return "", false
	}
	area := c.metadata[MetadataArea]
	return area, area != ""
}

// Close unsubscribes the Floor from its Store.
func (f *Floor) Close() {
	f.store.Unsubscribe(f.sub)
}

func (f *Floor) onChange(s *Store, id ContainerID) {
	if s.Has(id) {
		return
	}
	for area, ids := range f.areas {
		if i := slices.Index(ids, id); i >= 0 {
			ids = slices.Delete(ids, i, i+1)
			if len(ids) == 0 {
				delete(f.areas, area)
			} else {
				f.areas[area] = ids
			}
			return
		}
	}
}

// Drop wraps it in a new temporary socket in the given area.
//
// Precondition: area is non-empty; it is not owned by any container.
// Postcondition: on error no container is left behind.
func (f *Floor) Drop(area string, it *Item) (*Container, error) {
	c, err := f.store.CreateSocket(
		Temporary(),
		WithName(fmt.Sprintf("ground:%s", area)),
		WithMetadata(map[string]string{MetadataArea: area}),
	)
	if err != nil {
		return nil, err
	}
	f.areas[area] = append(f.areas[area], c.id)
	if err := f.store.AddItem(c, it, 0, 0); err != nil {
		f.store.DeleteContainer(c.id)
		return nil, err
	}
	return c, nil
}

// Area returns a Ground that drops into the named area.
func (f *Floor) Area(area string) Ground {
	return areaGround{floor: f, area: area}
}

// ContainersInArea returns the ground containers of an area in drop order.
//
// Postcondition: returned slice is a copy.
func (f *Floor) ContainersInArea(area string) []ContainerID {
	return slices.Clone(f.areas[area])
}

// Pickup removes and returns the item lying in ground container id. The
// emptied container is deleted.
//
// Postcondition: returns false iff id is not a ground container of area.
func (f *Floor) Pickup(area string, id ContainerID) (*Item, bool) {
	if !slices.Contains(f.areas[area], id) {
		return nil, false
	}
	c, ok := f.store.Container(id)
	if !ok {
		return nil, false
	}
	it := c.socketItem()
	if it == nil {
		return nil, false
	}
	return f.store.RemoveItem(c, it.ID)
}

type areaGround struct {
	floor *Floor
	area  string
}

func (g areaGround) Drop(it *Item) (*Container, error) {
	return g.floor.Drop(g.area, it)
}
