package validation

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"

	"bookshelf/internal/storage/books"
	"bookshelf/internal/types"
)

const (
	FieldTitle     = "judul"
	FieldAuthor    = "penulis"
	FieldYear      = "tahunTerbit"
	FieldPageCount = "jumlahHalaman"

	MsgTitleRequired    = "Title is required"
	MsgTitleExists      = "Title already exists"
	MsgAuthorRequired   = "Author is required"
	MsgYearNumeric      = "Year must be numeric"
	MsgPageCountNumeric = "Page count must be numeric"
)

var validate = validator.New()

type FieldError struct {
	Field   string
	Message string
}

// Outcome is either Valid or Invalid.
type Outcome interface {
	isOutcome()
}

type Valid struct{}

// Invalid lists every violated rule in rule order together with the form as submitted.
type Invalid struct {
	Errors []FieldError
	Form   *types.BookForm
}

func (Valid) isOutcome()   {}
func (Invalid) isOutcome() {}

// HasError reports whether field has the given message among the errors.
func (i Invalid) HasError(field, message string) bool {
	for _, fe := range i.Errors {
		if fe.Field == field && fe.Message == message {
			return true
		}
	}

	return false
}

// rule produces at most one error for its field. A non-nil error means the rule
// could not be evaluated at all.
type rule struct {
	name  string
	check func(ctx context.Context, form *types.BookForm) (*FieldError, error)
}

func ValidateForCreate(ctx context.Context, repo books.Repository, form *types.BookForm) (Outcome, error) {
	return run(ctx, form, []rule{
		uniqueTitle(repo, nil),
		required(FieldAuthor, MsgAuthorRequired, func(f *types.BookForm) string { return f.Author }),
		numeric(FieldYear, MsgYearNumeric, func(f *types.BookForm) string { return f.YearPublished }),
		numeric(FieldPageCount, MsgPageCountNumeric, func(f *types.BookForm) string { return f.PageCount }),
	})
}

// ValidateForUpdate differs from ValidateForCreate only in the title rule: keeping
// previousTitle is always allowed, taking a title held by another book is not.
func ValidateForUpdate(ctx context.Context, repo books.Repository, form *types.BookForm, previousTitle string) (Outcome, error) {
	return run(ctx, form, []rule{
		uniqueTitle(repo, &previousTitle),
		required(FieldAuthor, MsgAuthorRequired, func(f *types.BookForm) string { return f.Author }),
		numeric(FieldYear, MsgYearNumeric, func(f *types.BookForm) string { return f.YearPublished }),
		numeric(FieldPageCount, MsgPageCountNumeric, func(f *types.BookForm) string { return f.PageCount }),
	})
}

func run(ctx context.Context, form *types.BookForm, rules []rule) (Outcome, error) {
	results := make([]*FieldError, len(rules))

	g, ctx := errgroup.WithContext(ctx)
	for ix, r := range rules {
		g.Go(func() error {
			fe, err := r.check(ctx, form)
			if err != nil {
				return fmt.Errorf("validating %s: %w", r.name, err)
			}

			results[ix] = fe
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	var errs []FieldError
	for _, fe := range results {
		if fe != nil {
			errs = append(errs, *fe)
		}
	}

	if len(errs) == 0 {
		return Valid{}, nil
	}

	return Invalid{Errors: errs, Form: form}, nil
}

// uniqueTitle checks the title against the store. With previousTitle set, the rule
// is skipped when the title is unchanged, and a match on the book being edited is ignored.
func uniqueTitle(repo books.Repository, previousTitle *string) rule {
	return rule{
		name: "unique title",
		check: func(ctx context.Context, form *types.BookForm) (*FieldError, error) {
			if validate.Var(strings.TrimSpace(form.Title), "required") != nil {
				return &FieldError{Field: FieldTitle, Message: MsgTitleRequired}, nil
			}

			if previousTitle != nil && form.Title == *previousTitle {
				return nil, nil
			}

			existing, err := repo.GetByTitle(ctx, form.Title)
			if err != nil {
				return nil, err
			}

			if existing == nil || (previousTitle != nil && form.Id != "" && existing.Id == form.Id) {
				return nil, nil
			}

			return &FieldError{Field: FieldTitle, Message: MsgTitleExists}, nil
		},
	}
}

func required(field, message string, value func(*types.BookForm) string) rule {
	return rule{
		name: field + " required",
		check: func(_ context.Context, form *types.BookForm) (*FieldError, error) {
			if validate.Var(strings.TrimSpace(value(form)), "required") != nil {
				return &FieldError{Field: field, Message: message}, nil
			}

			return nil, nil
		},
	}
}

func numeric(field, message string, value func(*types.BookForm) string) rule {
	return rule{
		name: field + " numeric",
		check: func(_ context.Context, form *types.BookForm) (*FieldError, error) {
			if validate.Var(value(form), "numeric") != nil {
				return &FieldError{Field: field, Message: message}, nil
			}

			return nil, nil
		},
	}
}
