package inventory

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"go.uber.org/zap"
)

var (
	// ErrDuplicateContainer is returned when creating a container whose ID is already registered.
	ErrDuplicateContainer = errors.New("container already exists")
	// ErrInvalidDimensions is returned for grid sizes outside 1..MaxDimension.
	ErrInvalidDimensions = errors.New("invalid container dimensions")
)

// ChangeFunc is invoked after every successful mutation of a container. It is
// also invoked once when the container is deleted, after which Has(id) is false.
type ChangeFunc func(s *Store, id ContainerID)

// Subscription is the handle returned by Subscribe and SubscribeAll.
type Subscription uint64

// Store is the registry of containers. Items are owned by their container;
// there is no cross-container item index.
//
// A Store is not safe for concurrent use. Every operation runs to completion,
// including its change notifications, before returning.
type Store struct {
	containers map[ContainerID]*Container
	listeners  map[ContainerID]map[Subscription]ChangeFunc
	global     map[Subscription]ChangeFunc
	nextSub    Subscription
	logger     *zap.Logger
}

// NewStore returns an empty Store. A nil logger is replaced with a no-op logger.
func NewStore(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		containers: make(map[ContainerID]*Container),
		listeners:  make(map[ContainerID]map[Subscription]ChangeFunc),
		global:     make(map[Subscription]ChangeFunc),
		logger:     logger,
	}
}

// CreateGrid registers an empty width x height grid container.
//
// Precondition: 1 <= width, height <= MaxDimension.
// Postcondition: the container is registered and listeners are notified; on
// error the Store is unchanged.
func (s *Store) CreateGrid(width, height int, opts ...ContainerOption) (*Container, error) {
	if width < 1 || height < 1 || width > MaxDimension || height > MaxDimension {
		return nil, fmt.Errorf("inventory: grid %dx%d: %w", width, height, ErrInvalidDimensions)
	}
	return s.register(newContainer(KindGrid, width, height, opts...))
}

// CreateSocket registers an empty single-slot container.
func (s *Store) CreateSocket(opts ...ContainerOption) (*Container, error) {
	return s.register(newContainer(KindSocket, 1, 1, opts...))
}

func (s *Store) register(c *Container) (*Container, error) {
	if _, exists := s.containers[c.id]; exists {
		return nil, fmt.Errorf("inventory: create %q: %w", c.id, ErrDuplicateContainer)
	}
	s.containers[c.id] = c
	s.logger.Debug("container created",
		zap.String("container", string(c.id)),
		zap.Stringer("kind", c.kind),
		zap.Int("width", c.width),
		zap.Int("height", c.height),
	)
	s.notify(c.id)
	return c, nil
}

// DeleteContainer removes the container and discards every item inside it.
//
// Postcondition: returns false iff no container with id was registered.
func (s *Store) DeleteContainer(id ContainerID) bool {
	if _, ok := s.containers[id]; !ok {
		return false
	}
	delete(s.containers, id)
	s.logger.Debug("container deleted", zap.String("container", string(id)))
	s.notify(id)
	delete(s.listeners, id)
	return true
}

// Container returns the container registered under id.
func (s *Store) Container(id ContainerID) (*Container, bool) {
	c, ok := s.containers[id]
	return c, ok
}

// Has reports whether a container is registered under id.
func (s *Store) Has(id ContainerID) bool {
	_, ok := s.containers[id]
	return ok
}

// Containers returns all registered container IDs in sorted order.
func (s *Store) Containers() []ContainerID {
	return slices.Sorted(maps.Keys(s.containers))
}

// Subscribe registers fn for change notifications on container id.
func (s *Store) Subscribe(id ContainerID, fn ChangeFunc) Subscription {
	s.nextSub++
	if s.listeners[id] == nil {
		s.listeners[id] = make(map[Subscription]ChangeFunc)
	}
	s.listeners[id][s.nextSub] = fn
	return s.nextSub
}

// SubscribeAll registers fn for change notifications on every container.
func (s *Store) SubscribeAll(fn ChangeFunc) Subscription {
	s.nextSub++
	s.global[s.nextSub] = fn
	return s.nextSub
}

// Unsubscribe removes a subscription.
//
// Postcondition: returns false iff sub was not registered.
func (s *Store) Unsubscribe(sub Subscription) bool {
	if _, ok := s.global[sub]; ok {
		delete(s.global, sub)
		return true
	}
	for id, subs := range s.listeners {
		if _, ok := subs[sub]; ok {
			delete(subs, sub)
			if len(subs) == 0 {
				delete(s.listeners, id)
			}
			return true
		}
	}
	return false
}

func (s *Store) notify(id ContainerID) {
	// Listeners may unsubscribe while being notified.
	subs := s.listeners[id]
	for _, sub := range slices.Sorted(maps.Keys(subs)) {
		if fn, ok := subs[sub]; ok {
			fn(s, id)
		}
	}
	for _, sub := range slices.Sorted(maps.Keys(s.global)) {
		if fn, ok := s.global[sub]; ok {
			fn(s, id)
		}
	}
}

// commit notifies listeners of each distinct touched container and deletes
// temporary containers left empty.
func (s *Store) commit(touched ...*Container) {
	var seen []ContainerID
	for _, c := range touched {
		if c == nil || slices.Contains(seen, c.id) {
			continue
		}
		seen = append(seen, c.id)
		s.notify(c.id)
	}
	for _, c := range touched {
		if c != nil && c.temporary && c.IsEmpty() && s.containers[c.id] == c {
			s.DeleteContainer(c.id)
		}
	}
}

// own panics unless c is the container registered under its ID.
func (s *Store) own(c *Container) {
	if c == nil || s.containers[c.id] != c {
		panic(fmt.Sprintf("inventory: container %v is not registered in this store", c))
	}
}

// AddItem inserts it into c with its top-left cell at (x, y).
//
// Precondition: c is registered in s.
// Postcondition: on success the footprint is reserved and listeners of c are
// notified; on error c is unchanged and nobody is notified.
func (s *Store) AddItem(c *Container, it *Item, x, y int) error {
	s.own(c)
	if err := c.insert(it, x, y); err != nil {
		return err
	}
	s.logger.Debug("item added",
		zap.String("container", string(c.id)),
		zap.String("item", string(it.ID)),
		zap.Int("x", x),
		zap.Int("y", y),
	)
	s.commit(c)
	return nil
}

// RemoveItem detaches the item with the given ID from c and returns it.
//
// Postcondition: returns false, with no change and no notification, iff the
// item was not in c.
func (s *Store) RemoveItem(c *Container, id ItemID) (*Item, bool) {
	s.own(c)
	it, _, _, ok := c.detach(id)
	if !ok {
		return nil, false
	}
	s.logger.Debug("item removed",
		zap.String("container", string(c.id)),
		zap.String("item", string(id)),
	)
	s.commit(c)
	return it, true
}

// ClearAll empties every slot and discards every item of c in one notification.
//
// Postcondition: returns false iff c was already empty.
func (s *Store) ClearAll(c *Container) bool {
	s.own(c)
	if c.IsEmpty() {
		return false
	}
	c.clearAll()
	s.logger.Debug("container cleared", zap.String("container", string(c.id)))
	s.commit(c)
	return true
}
