package response

import (
	"context"
	"log/slog"
	"net/http"
	"runtime"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"

	"bookshelf/internal/view"
)

type Responder struct {
	DebugMode bool
	Views     view.Renderer
}

// RespondAndLogError will respond with generic error code (500) and log with slog.LevelError level
func (rr *Responder) RespondAndLogError(w http.ResponseWriter, ctx context.Context, err error) {
	errId := uuid.NewString()
	log(ctx, slog.LevelError, err.Error(), slog.String("err_id", errId))
	rr.renderError(w, ctx, http.StatusInternalServerError, err.Error(), errId)
}

func (rr *Responder) RespondAndLogCustom(w http.ResponseWriter, ctx context.Context, err error, lvl slog.Level, status int) {
	errId := uuid.NewString()
	log(ctx, lvl, err.Error(), slog.String("err_id", errId))
	rr.renderError(w, ctx, status, err.Error(), errId)
}

// Render writes the page with status 200
func (rr *Responder) Render(w http.ResponseWriter, ctx context.Context, page string, data *view.Data) {
	rr.RenderStatus(w, ctx, http.StatusOK, page, data)
}

func (rr *Responder) RenderStatus(w http.ResponseWriter, ctx context.Context, status int, page string, data *view.Data) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")

	rw := &deferredWriter{w: w, status: status}
	err := rr.Views.Render(rw, page, data)
	if err != nil && !rw.written {
		rr.RespondAndLogError(w, ctx, err)
		return
	}

	if err != nil {
		log(ctx, slog.LevelError, "failed writing page "+page+": "+err.Error())
	}
}

// NotFound renders the not-found page for a title-keyed lookup that came back empty
func (rr *Responder) NotFound(w http.ResponseWriter, ctx context.Context, title string) {
	log(ctx, slog.LevelInfo, "Book not found: "+title)
	rr.RenderStatus(w, ctx, http.StatusNotFound, view.PageNotFound, &view.Data{
		Title:   "Book Not Found",
		Missing: title,
	})
}

// SeeOther redirects a form submission to a page fetched with GET
func (rr *Responder) SeeOther(w http.ResponseWriter, r *http.Request, location string) {
	http.Redirect(w, r, location, http.StatusSeeOther)
}

func (rr *Responder) renderError(w http.ResponseWriter, ctx context.Context, status int, message, errId string) {
	if rr.DebugMode {
		r, s := utf8.DecodeRuneInString(message)
		message = string(unicode.ToUpper(r)) + message[s:]
	} else {
		message = "Unknown error occurred while processing your request. Error ID: " + errId
	}

	w.Header().Set("X-Content-Type-Options", "nosniff")

	if rr.Views != nil {
		rw := &deferredWriter{w: w, status: status}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		err := rr.Views.Render(rw, view.PageError, &view.Data{Title: http.StatusText(status), ErrorMessage: message})
		if err == nil || rw.written {
			return
		}

		log(ctx, slog.LevelError, "cannot render error page: "+err.Error())
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(message))
}

// deferredWriter holds the status code back until the renderer produces output,
// so a failing template can still be answered with a 500
type deferredWriter struct {
	w       http.ResponseWriter
	status  int
	written bool
}

func (d *deferredWriter) Write(p []byte) (int, error) {
	if !d.written {
		d.written = true
		d.w.WriteHeader(d.status)
	}

	return d.w.Write(p)
}

// Needed because it skips one more frame item than the slog.Log
func log(ctx context.Context, level slog.Level, msg string, attrs ...slog.Attr) {
	l := slog.Default()

	if !l.Enabled(ctx, level) {
		return
	}

	var pc uintptr
	var pcs [1]uintptr
	// skip [runtime.Callers, this function, this function's caller]
	runtime.Callers(3, pcs[:])
	pc = pcs[0]

	r := slog.NewRecord(time.Now(), level, msg, pc)
	r.AddAttrs(attrs...)
	_ = l.Handler().Handle(ctx, r)
}
