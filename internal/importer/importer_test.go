package importer

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookshelf/internal/storage/books"
	"bookshelf/internal/types"
)

const pageOne = `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom" xmlns:dc="http://purl.org/dc/terms/">
  <id>tag:catalog:new</id>
  <title>New books</title>
  <link rel="next" href="/opds/new?page=2" type="application/atom+xml;profile=opds-catalog"/>
  <entry>
    <id>tag:book:1</id>
    <title>Dune</title>
    <author><name>Frank Herbert</name><uri>/a/1</uri></author>
    <dc:issued>1965</dc:issued>
    <content type="text">Desert planet.` + "\x01" + `</content>
  </entry>
  <entry>
    <id>tag:book:2</id>
    <title>Emma</title>
    <author><name>Jane Austen</name></author>
    <dc:issued>eighteen fifteen</dc:issued>
  </entry>
  <entry>
    <id>tag:book:3</id>
    <title>Existing</title>
    <author><name>Someone</name></author>
    <dc:issued>2001</dc:issued>
  </entry>
</feed>`

const pageTwo = `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom" xmlns:dc="http://purl.org/dc/terms/">
  <id>tag:catalog:new:2</id>
  <title>New books</title>
  <link rel="next" href="/opds/new" type="application/atom+xml;profile=opds-catalog"/>
  <entry>
    <id>tag:book:4</id>
    <title>Good Omens</title>
    <author><name>Terry Pratchett</name></author>
    <author><name>Neil Gaiman</name></author>
    <dc:issued>1990</dc:issued>
  </entry>
</feed>`

func feedServer(t *testing.T) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/atom+xml")
		if r.URL.Query().Get("page") == "2" {
			_, _ = w.Write([]byte(pageTwo))
			return
		}
		_, _ = w.Write([]byte(pageOne))
	}))
	t.Cleanup(srv.Close)

	return srv
}

func TestImport(t *testing.T) {
	ctx := context.Background()
	srv := feedServer(t)

	repo := books.NewMemoryRepository()
	require.NoError(t, repo.Insert(ctx, &types.Book{Title: "Existing", Author: "Someone", YearPublished: "2001", PageCount: "10"}))

	im := &Importer{Client: srv.Client(), Logger: slog.Default(), Books: repo}

	feed, err := url.Parse(srv.URL + "/opds/new")
	require.NoError(t, err)

	rep, err := im.Import(ctx, feed)
	require.NoError(t, err)
	assert.Equal(t, Report{Pages: 2, Added: 2, Rejected: 2}, rep)

	dune, err := repo.GetByTitle(ctx, "Dune")
	require.NoError(t, err)
	require.NotNil(t, dune)
	assert.Equal(t, "Frank Herbert", dune.Author)
	assert.Equal(t, "1965", dune.YearPublished)
	assert.Equal(t, unknownPageCount, dune.PageCount)
	assert.Equal(t, "Desert planet.", dune.Summary)

	omens, err := repo.GetByTitle(ctx, "Good Omens")
	require.NoError(t, err)
	require.NotNil(t, omens)
	assert.Equal(t, "Terry Pratchett, Neil Gaiman", omens.Author)

	emma, err := repo.GetByTitle(ctx, "Emma")
	require.NoError(t, err)
	assert.Nil(t, emma)
}

func TestImportTwiceAddsNothing(t *testing.T) {
	ctx := context.Background()
	srv := feedServer(t)
	repo := books.NewMemoryRepository()
	im := &Importer{Client: srv.Client(), Logger: slog.Default(), Books: repo, MaxPages: 1}

	feed, err := url.Parse(srv.URL + "/opds/new")
	require.NoError(t, err)

	first, err := im.Import(ctx, feed)
	require.NoError(t, err)
	assert.Equal(t, Report{Pages: 1, Added: 2, Rejected: 1}, first)

	second, err := im.Import(ctx, feed)
	require.NoError(t, err)
	assert.Equal(t, Report{Pages: 1, Added: 0, Rejected: 3}, second)
}

func TestImportFailsOnBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)

	im := &Importer{Client: srv.Client(), Logger: slog.Default(), Books: books.NewMemoryRepository()}
	feed, err := url.Parse(srv.URL)
	require.NoError(t, err)

	_, err = im.Import(context.Background(), feed)
	assert.Error(t, err)
}

const datedPage = `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom" xmlns:dc="http://purl.org/dc/terms/">
  <id>tag:catalog:dated</id>
  <title>Dated books</title>
  <entry>
    <id>tag:book:10</id>
    <title>Dune</title>
    <author><name>Frank Herbert</name></author>
    <dc:issued>1965-08-01</dc:issued>
  </entry>
  <entry>
    <id>tag:book:11</id>
    <title>Neuromancer</title>
    <author><name>William Gibson</name></author>
    <dc:issued>1984-07-01T00:00:00Z</dc:issued>
  </entry>
  <entry>
    <id>tag:book:12</id>
    <title>Emma</title>
    <author><name>Jane Austen</name></author>
    <dc:issued>18150-01-01</dc:issued>
  </entry>
</feed>`

func TestImportTakesYearFromIssuedDate(t *testing.T) {
	ctx := context.Background()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/atom+xml")
		_, _ = w.Write([]byte(datedPage))
	}))
	t.Cleanup(srv.Close)

	repo := books.NewMemoryRepository()
	im := &Importer{Client: srv.Client(), Logger: slog.Default(), Books: repo}

	feed, err := url.Parse(srv.URL)
	require.NoError(t, err)

	rep, err := im.Import(ctx, feed)
	require.NoError(t, err)
	assert.Equal(t, Report{Pages: 1, Added: 2, Rejected: 1}, rep)

	for title, year := range map[string]string{"Dune": "1965", "Neuromancer": "1984"} {
		b, err := repo.GetByTitle(ctx, title)
		require.NoError(t, err)
		require.NotNil(t, b, title)
		assert.Equal(t, year, b.YearPublished, title)
	}
}

func TestYearOf(t *testing.T) {
	tests := map[string]string{
		"1965":                 "1965",
		" 1965-08 ":            "1965",
		"1965-08-01":           "1965",
		"1984-07-01T10:00:00Z": "1984",
		"eighteen fifteen":     "eighteen fifteen",
		"18150-01-01":          "18150-01-01",
		"":                     "",
	}

	for in, want := range tests {
		assert.Equal(t, want, yearOf(in), in)
	}
}
