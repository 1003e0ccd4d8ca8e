package books

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"bookshelf/internal/types"
)

// NewMemoryRepository returns a process-local Repository enforcing the same title
// uniqueness as the postgres schema. Contents are lost on restart.
func NewMemoryRepository() Repository {
	return &memoryRepo{byId: make(map[string]types.Book)}
}

type memoryRepo struct {
	mu   sync.RWMutex
	byId map[string]types.Book
}

func (m *memoryRepo) GetAll(_ context.Context) ([]*types.Book, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ret := make([]*types.Book, 0, len(m.byId))
	for _, b := range m.byId {
		ret = append(ret, &b)
	}

	sort.Slice(ret, func(i, j int) bool {
		return ret[i].Title < ret[j].Title
	})

	return ret, nil
}

func (m *memoryRepo) GetByTitle(_ context.Context, title string) (*types.Book, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if b, ok := m.findByTitle(title); ok {
		return &b, nil
	}

	return nil, nil
}

func (m *memoryRepo) Insert(_ context.Context, book *types.Book) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.findByTitle(book.Title); ok {
		return ErrDuplicateTitle
	}

	book.Id = uuid.NewString()
	m.byId[book.Id] = *book
	return nil
}

func (m *memoryRepo) Update(_ context.Context, book *types.Book) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byId[book.Id]; !ok {
		return ErrNotFound
	}

	if other, ok := m.findByTitle(book.Title); ok && other.Id != book.Id {
		return ErrDuplicateTitle
	}

	m.byId[book.Id] = *book
	return nil
}

func (m *memoryRepo) DeleteByTitle(_ context.Context, title string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for id, b := range m.byId {
		if b.Title == title {
			delete(m.byId, id)
			n++
		}
	}

	return n, nil
}

func (m *memoryRepo) Ping(_ context.Context) error {
	return nil
}

// must hold m.mu
func (m *memoryRepo) findByTitle(title string) (types.Book, bool) {
	for _, b := range m.byId {
		if b.Title == title {
			return b, true
		}
	}

	return types.Book{}, false
}
