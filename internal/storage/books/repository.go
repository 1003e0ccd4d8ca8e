package books

import (
	"context"
	"errors"

	"bookshelf/internal/types"
)

var (
	// ErrDuplicateTitle is returned by writes rejected by the store's title uniqueness constraint
	ErrDuplicateTitle = errors.New("book with this title already exists")
	// ErrNotFound is returned by Update when no book has the given Id
	ErrNotFound = errors.New("book not found")
)

//go:generate mockgen -destination=mocks/mock_repository.go -package=mocks bookshelf/internal/storage/books Repository

type Repository interface {
	// GetAll returns every book ordered by title
	GetAll(ctx context.Context) ([]*types.Book, error)
	// GetByTitle returns nil book (and nil error) when no book has exactly this title
	GetByTitle(ctx context.Context, title string) (*types.Book, error)

	// Insert assigns book.Id
	Insert(ctx context.Context, book *types.Book) error
	// Update overwrites every field except Id of the book identified by book.Id
	Update(ctx context.Context, book *types.Book) error
	// DeleteByTitle returns the number of deleted books, zero is not an error
	DeleteByTitle(ctx context.Context, title string) (int64, error)

	Ping(ctx context.Context) error
}
