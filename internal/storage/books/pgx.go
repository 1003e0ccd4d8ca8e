package books

import (
	"context"
	"errors"
	"log/slog"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"bookshelf/internal/types"
)

const (
	table = "book"

	// https://www.postgresql.org/docs/current/errcodes-appendix.html
	codeUniqueViolation = "23505"
)

const schema = `
CREATE TABLE IF NOT EXISTS book (
	id             uuid PRIMARY KEY,
	judul          text NOT NULL,
	penulis        text NOT NULL,
	tahun_terbit   text NOT NULL,
	jumlah_halaman text NOT NULL,
	ringkasan      text NOT NULL DEFAULT '',
	CONSTRAINT book_judul_key UNIQUE (judul)
)`

func NewPGXRepository(pg *pgxpool.Pool, l *slog.Logger) Repository {
	return &pgxRepo{pg: pg, g: goqu.Dialect("postgres"), l: l}
}

// EnsureSchema creates the book table when it is missing. The unique constraint on
// judul is what actually keeps titles unique when two writers race past validation.
func EnsureSchema(ctx context.Context, pg *pgxpool.Pool) error {
	_, err := pg.Exec(ctx, schema)
	return err
}

type pgxRepo struct {
	pg *pgxpool.Pool
	g  goqu.DialectWrapper
	l  *slog.Logger
}

type pgxBook struct {
	Id            string `db:"id"`
	Title         string `db:"judul"`
	Author        string `db:"penulis"`
	YearPublished string `db:"tahun_terbit"`
	PageCount     string `db:"jumlah_halaman"`
	Summary       string `db:"ringkasan"`
}

func fromCommon(b *types.Book) pgxBook {
	return pgxBook{
		Id:            b.Id,
		Title:         b.Title,
		Author:        b.Author,
		YearPublished: b.YearPublished,
		PageCount:     b.PageCount,
		Summary:       b.Summary,
	}
}

func (b *pgxBook) intoCommon() *types.Book {
	return &types.Book{
		Id:            b.Id,
		Title:         b.Title,
		Author:        b.Author,
		YearPublished: b.YearPublished,
		PageCount:     b.PageCount,
		Summary:       b.Summary,
	}
}

func (p *pgxRepo) GetAll(ctx context.Context) ([]*types.Book, error) {
	sql, params, err := p.g.From(table).
		Order(goqu.C("judul").Asc()).
		ToSQL()
	if err != nil {
		return nil, err
	}

	var rows []pgxBook

	err = pgxscan.Select(ctx, p.pg, &rows, sql, params...)
	if err != nil {
		return nil, err
	}

	ret := make([]*types.Book, 0, len(rows))
	for _, row := range rows {
		ret = append(ret, row.intoCommon())
	}

	return ret, nil
}

func (p *pgxRepo) GetByTitle(ctx context.Context, title string) (*types.Book, error) {
	sql, params, err := p.g.From(table).
		Where(goqu.C("judul").Eq(title)).
		ToSQL()
	if err != nil {
		return nil, err
	}

	var row pgxBook

	err = pgxscan.Get(ctx, p.pg, &row, sql, params...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = nil
		}
		return nil, err
	}

	return row.intoCommon(), nil
}

func (p *pgxRepo) Insert(ctx context.Context, book *types.Book) error {
	row := fromCommon(book)
	row.Id = uuid.NewString()

	sql, params, err := p.g.Insert(table).
		Rows(row).
		ToSQL()
	if err != nil {
		return err
	}

	_, err = p.pg.Exec(ctx, sql, params...)
	if err != nil {
		return p.mapWriteError(ctx, book.Title, err)
	}

	book.Id = row.Id
	return nil
}

func (p *pgxRepo) Update(ctx context.Context, book *types.Book) error {
	// Anything not shaped like a uuid cannot match and would only make postgres complain
	if _, err := uuid.Parse(book.Id); err != nil {
		return ErrNotFound
	}

	sql, params, err := p.g.Update(table).
		Set(goqu.Record{
			"judul":          book.Title,
			"penulis":        book.Author,
			"tahun_terbit":   book.YearPublished,
			"jumlah_halaman": book.PageCount,
			"ringkasan":      book.Summary,
		}).
		Where(goqu.C("id").Eq(book.Id)).
		ToSQL()
	if err != nil {
		return err
	}

	tag, err := p.pg.Exec(ctx, sql, params...)
	if err != nil {
		return p.mapWriteError(ctx, book.Title, err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

func (p *pgxRepo) DeleteByTitle(ctx context.Context, title string) (int64, error) {
	sql, params, err := p.g.Delete(table).
		Where(goqu.C("judul").Eq(title)).
		ToSQL()
	if err != nil {
		return 0, err
	}

	tag, err := p.pg.Exec(ctx, sql, params...)
	if err != nil {
		return 0, err
	}

	return tag.RowsAffected(), nil
}

func (p *pgxRepo) Ping(ctx context.Context) error {
	return p.pg.Ping(ctx)
}

func (p *pgxRepo) mapWriteError(ctx context.Context, title string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
		p.l.DebugContext(ctx, "Title rejected by "+pgErr.ConstraintName+": "+title)
		return ErrDuplicateTitle
	}

	return err
}
