// Package importer seeds the catalog from an OPDS 1 acquisition feed. Entries go through
// the same validation as the add form, so a feed can never break title uniqueness.
package importer

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/opds-community/libopds2-go/opds1"

	"bookshelf/internal/storage/books"
	"bookshelf/internal/types"
	"bookshelf/internal/validation"
)

const (
	linkRelNext = "next"

	// OPDS entries carry no page count; the form requires a numeric one
	unknownPageCount = "0"

	DefaultMaxPages = 50
)

// dc:issued is W3CDTF: a bare year, a date or a full timestamp
var issuedYear = regexp.MustCompile(`^(\d{4})(?:$|-)`)

type Importer struct {
	Client   *http.Client
	Logger   *slog.Logger
	Books    books.Repository
	MaxPages int
}

type Report struct {
	Pages    int
	Added    int
	Rejected int
}

// Import walks the feed and its "next" pages, inserting every acceptable entry.
// Rejected entries are logged and counted; only transport and store failures abort.
func (im *Importer) Import(ctx context.Context, feed *url.URL) (Report, error) {
	var rep Report

	maxPages := im.MaxPages
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}

	seen := make(map[string]struct{})

	for next := feed; next != nil && rep.Pages < maxPages; {
		if _, ok := seen[next.String()]; ok {
			im.Logger.WarnContext(ctx, "Feed pages loop back to "+next.String())
			break
		}
		seen[next.String()] = struct{}{}

		page, err := im.fetch(ctx, next)
		if err != nil {
			return rep, err
		}
		rep.Pages++

		l := im.Logger.With(slog.String("feed", next.Path))

		for _, entry := range page.Entries {
			added, err := im.consume(ctx, l, &entry)
			if err != nil {
				return rep, err
			}

			if added {
				rep.Added++
			} else {
				rep.Rejected++
			}
		}

		next = nextPage(next, page, l)
	}

	return rep, nil
}

func (im *Importer) fetch(ctx context.Context, feed *url.URL) (*opds1.Feed, error) {
	im.Logger.DebugContext(ctx, "Begin processing feed "+feed.String())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feed.String(), nil)
	if err != nil {
		return nil, err
	}

	res, err := im.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching feed: %w", err)
	}

	var bs []byte
	func() {
		defer res.Body.Close()
		bs, err = io.ReadAll(res.Body)
	}()

	if err != nil {
		return nil, fmt.Errorf("fetching feed (reading response): %w", err)
	}

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching feed: unexpected status %s", res.Status)
	}

	var page opds1.Feed
	err = xml.Unmarshal(removeDisallowedCodepoints(bs, im.Logger), &page)
	if err != nil {
		return nil, fmt.Errorf("unmarshalling feed: %w", err)
	}

	return &page, nil
}

func (im *Importer) consume(ctx context.Context, l *slog.Logger, entry *opds1.Entry) (bool, error) {
	form := formOf(entry)
	l = l.With(slog.String("entry", strings.TrimSpace(entry.ID)))

	outcome, err := validation.ValidateForCreate(ctx, im.Books, form)
	if err != nil {
		return false, err
	}

	if invalid, ok := outcome.(validation.Invalid); ok {
		msgs := make([]string, 0, len(invalid.Errors))
		for _, fe := range invalid.Errors {
			msgs = append(msgs, fe.Field+": "+fe.Message)
		}
		l.InfoContext(ctx, "Skip entry "+form.Title+": "+strings.Join(msgs, "; "))
		return false, nil
	}

	err = im.Books.Insert(ctx, form.IntoBook())
	if errors.Is(err, books.ErrDuplicateTitle) {
		l.InfoContext(ctx, "Skip entry "+form.Title+": inserted concurrently")
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("inserting %s: %w", form.Title, err)
	}

	l.DebugContext(ctx, "Imported "+form.Title)
	return true, nil
}

func formOf(entry *opds1.Entry) *types.BookForm {
	authors := make([]string, 0, len(entry.Author))
	for _, a := range entry.Author {
		if name := strings.TrimSpace(a.Name); name != "" {
			authors = append(authors, name)
		}
	}

	return &types.BookForm{
		Title:         strings.TrimSpace(entry.Title),
		Author:        strings.Join(authors, ", "),
		YearPublished: yearOf(entry.Issued),
		PageCount:     unknownPageCount,
		Summary:       strings.TrimSpace(entry.Content.Content),
	}
}

// yearOf keeps only the year of a W3CDTF date. Anything else is passed through
// unchanged and left to the year rule to reject.
func yearOf(issued string) string {
	issued = strings.TrimSpace(issued)
	if m := issuedYear.FindStringSubmatch(issued); m != nil {
		return m[1]
	}

	return issued
}

func nextPage(current *url.URL, page *opds1.Feed, l *slog.Logger) *url.URL {
	var href string
	for _, link := range page.Links {
		if strings.TrimSpace(link.Rel) != linkRelNext {
			continue
		}

		if href != "" {
			l.Warn("Skip duplicate next page link: " + link.Href)
			continue
		}

		href = strings.TrimSpace(link.Href)
	}

	if href == "" {
		return nil
	}

	u, err := url.Parse(href)
	if err != nil {
		l.Error("Failed to parse next page link " + href + ": " + err.Error())
		return nil
	}

	return current.ResolveReference(u)
}

// removeDisallowedCodepoints drops runes encoding/xml refuses, some catalogs emit them
func removeDisallowedCodepoints(bs []byte, l *slog.Logger) []byte {
	ret := make([]byte, 0, len(bs))
	buf := bs

	for len(buf) > 0 {
		r, size := utf8.DecodeRune(buf)
		if r == utf8.RuneError && size == 1 {
			l.Warn("Going to fail XML parsing because the bytes do not represent valid UTF8")
			return bs
		}

		if isInCharacterRange(r) {
			ret = append(ret, buf[:size]...)
		} else {
			l.Warn("Removed invalid rune from XML")
		}

		buf = buf[size:]
	}

	return ret
}

// Char production of https://www.w3.org/TR/xml/#charsets
func isInCharacterRange(r rune) bool {
	return r == 0x09 ||
		r == 0x0A ||
		r == 0x0D ||
		r >= 0x20 && r <= 0xD7FF ||
		r >= 0xE000 && r <= 0xFFFD ||
		r >= 0x10000 && r <= 0x10FFFF
}
