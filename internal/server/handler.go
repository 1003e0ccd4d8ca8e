package server

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"bookshelf/internal/flash"
	"bookshelf/internal/response"
	"bookshelf/internal/storage/books"
	"bookshelf/internal/types"
	"bookshelf/internal/validation"
	"bookshelf/internal/view"
)

const (
	titleHome   = "Bookshelf Apps"
	titleList   = "Book List"
	titleAdd    = "Add Book"
	titleEdit   = "Edit Book"
	titleDetail = "Book Detail"

	MsgAdded   = "Book added successfully"
	MsgUpdated = "Book updated successfully"
	MsgDeleted = "Book deleted successfully"

	listPath = "/book"
)

// Handler serves the catalog pages. Writes redirect to the list with a flash notice;
// rejected forms are rendered again with status 200.
func Handler(br books.Repository, notices *flash.Notices, rr *response.Responder, m *Metrics) http.Handler {
	r := chi.NewRouter()

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		rr.Render(w, r.Context(), view.PageIndex, &view.Data{Title: titleHome})
	})

	r.Get("/book", func(w http.ResponseWriter, r *http.Request) {
		rows, err := br.GetAll(r.Context())
		if err != nil {
			rr.RespondAndLogError(w, r.Context(), err)
			return
		}

		rr.Render(w, r.Context(), view.PageBooks, &view.Data{
			Title: titleList,
			Books: rows,
			Msg:   notices.Take(w, r),
		})
	})

	r.Get("/book/add", func(w http.ResponseWriter, r *http.Request) {
		rr.Render(w, r.Context(), view.PageAddBook, &view.Data{
			Title: titleAdd,
			Form:  &types.BookForm{},
		})
	})

	r.Post("/book", func(w http.ResponseWriter, r *http.Request) {
		form, err := formFrom(r)
		if err != nil {
			rr.RespondAndLogCustom(w, r.Context(), err, slog.LevelInfo, http.StatusBadRequest)
			return
		}

		outcome, err := validation.ValidateForCreate(r.Context(), br, form)
		if err != nil {
			rr.RespondAndLogError(w, r.Context(), err)
			return
		}

		if invalid, ok := outcome.(validation.Invalid); ok {
			m.rejected(invalid)
			rr.Render(w, r.Context(), view.PageAddBook, &view.Data{
				Title:  titleAdd,
				Form:   invalid.Form,
				Errors: invalid.Errors,
			})
			return
		}

		book := form.IntoBook()
		err = br.Insert(r.Context(), book)
		if errors.Is(err, books.ErrDuplicateTitle) {
			// lost the race against a concurrent insert of the same title
			invalid := duplicateTitle(form)
			m.rejected(invalid)
			rr.Render(w, r.Context(), view.PageAddBook, &view.Data{
				Title:  titleAdd,
				Form:   invalid.Form,
				Errors: invalid.Errors,
			})
			return
		}
		if err != nil {
			rr.RespondAndLogError(w, r.Context(), err)
			return
		}

		slog.DebugContext(r.Context(), "Added book "+book.Id+" ("+book.Title+")")
		redirectWithNotice(w, r, notices, rr, MsgAdded)
	})

	r.Put("/book", func(w http.ResponseWriter, r *http.Request) {
		form, err := formFrom(r)
		if err != nil {
			rr.RespondAndLogCustom(w, r.Context(), err, slog.LevelInfo, http.StatusBadRequest)
			return
		}

		outcome, err := validation.ValidateForUpdate(r.Context(), br, form, form.OldTitle)
		if err != nil {
			rr.RespondAndLogError(w, r.Context(), err)
			return
		}

		if invalid, ok := outcome.(validation.Invalid); ok {
			m.rejected(invalid)
			rr.Render(w, r.Context(), view.PageEditBook, &view.Data{
				Title:  titleEdit,
				Form:   invalid.Form,
				Errors: invalid.Errors,
			})
			return
		}

		err = br.Update(r.Context(), form.IntoBook())
		switch {
		case errors.Is(err, books.ErrNotFound):
			rr.NotFound(w, r.Context(), form.OldTitle)
			return
		case errors.Is(err, books.ErrDuplicateTitle):
			invalid := duplicateTitle(form)
			m.rejected(invalid)
			rr.Render(w, r.Context(), view.PageEditBook, &view.Data{
				Title:  titleEdit,
				Form:   invalid.Form,
				Errors: invalid.Errors,
			})
			return
		case err != nil:
			rr.RespondAndLogError(w, r.Context(), err)
			return
		}

		slog.DebugContext(r.Context(), "Updated book "+form.Id+" ("+form.Title+")")
		redirectWithNotice(w, r, notices, rr, MsgUpdated)
	})

	r.Delete("/book", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			rr.RespondAndLogCustom(w, r.Context(), err, slog.LevelInfo, http.StatusBadRequest)
			return
		}

		title := r.PostForm.Get("judul")
		n, err := br.DeleteByTitle(r.Context(), title)
		if err != nil {
			rr.RespondAndLogError(w, r.Context(), err)
			return
		}

		if n == 0 {
			slog.DebugContext(r.Context(), "Nothing to delete for title "+title)
		}

		redirectWithNotice(w, r, notices, rr, MsgDeleted)
	})

	r.Get("/book/edit/{judul}", func(w http.ResponseWriter, r *http.Request) {
		title := titleParam(r)

		book, err := br.GetByTitle(r.Context(), title)
		if err != nil {
			rr.RespondAndLogError(w, r.Context(), err)
			return
		}

		if book == nil {
			rr.NotFound(w, r.Context(), title)
			return
		}

		rr.Render(w, r.Context(), view.PageEditBook, &view.Data{
			Title: titleEdit,
			Form:  types.FormOf(book),
		})
	})

	r.Get("/book/{judul}", func(w http.ResponseWriter, r *http.Request) {
		title := titleParam(r)

		book, err := br.GetByTitle(r.Context(), title)
		if err != nil {
			rr.RespondAndLogError(w, r.Context(), err)
			return
		}

		if book == nil {
			rr.NotFound(w, r.Context(), title)
			return
		}

		rr.Render(w, r.Context(), view.PageDetail, &view.Data{
			Title: titleDetail,
			Book:  book,
		})
	})

	return r
}

func formFrom(r *http.Request) (*types.BookForm, error) {
	if err := r.ParseForm(); err != nil {
		return nil, err
	}

	f := r.PostForm
	return &types.BookForm{
		Id:            f.Get("_id"),
		OldTitle:      f.Get("oldJudul"),
		Title:         f.Get("judul"),
		Author:        f.Get("penulis"),
		YearPublished: f.Get("tahunTerbit"),
		PageCount:     f.Get("jumlahHalaman"),
		Summary:       f.Get("ringkasan"),
	}, nil
}

func duplicateTitle(form *types.BookForm) validation.Invalid {
	return validation.Invalid{
		Errors: []validation.FieldError{{Field: validation.FieldTitle, Message: validation.MsgTitleExists}},
		Form:   form,
	}
}

func redirectWithNotice(w http.ResponseWriter, r *http.Request, notices *flash.Notices, rr *response.Responder, msg string) {
	if err := notices.Set(w, msg); err != nil {
		// the write already happened, losing the notice is not worth a 500
		slog.ErrorContext(r.Context(), "failed to set flash notice: "+err.Error())
	}

	rr.SeeOther(w, r, listPath)
}

// titleParam decodes the {judul} segment. chi routes on RawPath when the request
// path needed it (a title containing "/"), leaving the segment escaped.
func titleParam(r *http.Request) string {
	title := chi.URLParam(r, "judul")
	if r.URL.RawPath == "" {
		return title
	}

	if unescaped, err := url.PathUnescape(title); err == nil {
		return unescaped
	}

	return title
}
