package view

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"net/url"

	"bookshelf/internal/types"
	"bookshelf/internal/validation"
)

const (
	PageIndex    = "index"
	PageBooks    = "book"
	PageAddBook  = "add-book"
	PageEditBook = "edit-book"
	PageDetail   = "detail"
	PageNotFound = "not-found"
	PageError    = "error"

	layoutMain = "main-layout"
	layoutForm = "form-layout"
)

//go:embed templates
var templatesFS embed.FS

var layouts = map[string]string{
	PageIndex:    layoutMain,
	PageBooks:    layoutMain,
	PageAddBook:  layoutForm,
	PageEditBook: layoutForm,
	PageDetail:   layoutMain,
	PageNotFound: layoutMain,
	PageError:    layoutMain,
}

var funcs = template.FuncMap{
	"inc":        func(i int) int { return i + 1 },
	"pathEscape": url.PathEscape,
}

// Data is the bag handed to every page. Pages read only the fields they need.
type Data struct {
	Title string
	Msg   string

	Books []*types.Book
	Book  *types.Book

	Form   *types.BookForm
	Errors []validation.FieldError

	Missing      string
	ErrorMessage string
}

type Renderer interface {
	Render(w io.Writer, page string, data *Data) error
}

type Templates struct {
	pages map[string]*template.Template
}

// New parses every page together with its layout and the shared form fields.
func New() (*Templates, error) {
	pages := make(map[string]*template.Template, len(layouts))

	for page, layout := range layouts {
		t, err := template.New(page).Funcs(funcs).ParseFS(templatesFS,
			"templates/layouts/"+layout+".html",
			"templates/fields.html",
			"templates/"+page+".html",
		)
		if err != nil {
			return nil, fmt.Errorf("parsing page %s: %w", page, err)
		}

		pages[page] = t
	}

	return &Templates{pages: pages}, nil
}

// Render writes nothing to w unless the page executed successfully.
func (t *Templates) Render(w io.Writer, page string, data *Data) error {
	tpl, ok := t.pages[page]
	if !ok {
		return fmt.Errorf("unknown page %s", page)
	}

	var buf bytes.Buffer
	if err := tpl.ExecuteTemplate(&buf, layouts[page], data); err != nil {
		return fmt.Errorf("rendering page %s: %w", page, err)
	}

	_, err := io.Copy(w, &buf)
	return err
}
