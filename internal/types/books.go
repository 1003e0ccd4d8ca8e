package types

type Book struct {
	Id            string `json:"id"`
	Title         string `json:"judul"`
	Author        string `json:"penulis"`
	YearPublished string `json:"tahunTerbit"`
	PageCount     string `json:"jumlahHalaman"`
	Summary       string `json:"ringkasan"`
}

// BookForm is the payload submitted by the add and edit forms. Field names follow
// the form inputs so a rejected submission can be rendered back as is.
type BookForm struct {
	Id            string
	OldTitle      string
	Title         string
	Author        string
	YearPublished string
	PageCount     string
	Summary       string
}

// IntoBook copies the mutable fields of the form into a Book carrying the form's Id.
func (f *BookForm) IntoBook() *Book {
	return &Book{
		Id:            f.Id,
		Title:         f.Title,
		Author:        f.Author,
		YearPublished: f.YearPublished,
		PageCount:     f.PageCount,
		Summary:       f.Summary,
	}
}

// FormOf fills a form from a stored book, as the edit page expects.
func FormOf(b *Book) *BookForm {
	return &BookForm{
		Id:            b.Id,
		OldTitle:      b.Title,
		Title:         b.Title,
		Author:        b.Author,
		YearPublished: b.YearPublished,
		PageCount:     b.PageCount,
		Summary:       b.Summary,
	}
}
