package topic

// Store exposes topic retrieval for handlers and services.
type Store interface {
	List() []Topic
	FindByID(id string) (Topic, bool)
}

// MemoryStore implements Store over a fixed slice.
type MemoryStore struct {
	items []Topic
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied topics.
func NewMemoryStore(items []Topic) *MemoryStore {
	return &MemoryStore{items: append([]Topic(nil), items...)}
}

// List returns the topics in catalogue order.
func (s *MemoryStore) List() []Topic {
	return append([]Topic(nil), s.items...)
}

// FindByID looks up a topic by identifier.
func (s *MemoryStore) FindByID(id string) (Topic, bool) {
	for _, item := range s.items {
		if item.ID == id {
			return item, true
		}
	}
	return Topic{}, false
}
