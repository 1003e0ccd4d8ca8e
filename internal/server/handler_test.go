package server

import (
	"errors"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookshelf/internal/flash"
	"bookshelf/internal/response"
	"bookshelf/internal/storage/books"
	"bookshelf/internal/storage/books/mocks"
	"bookshelf/internal/types"
	"bookshelf/internal/validation"
	"bookshelf/internal/view"
)

type app struct {
	srv    *httptest.Server
	client *http.Client
	repo   books.Repository
	reg    *prometheus.Registry
}

func newApp(t *testing.T, repo books.Repository) *app {
	t.Helper()

	views, err := view.New()
	require.NoError(t, err)

	notices, err := flash.New([]byte("test-secret"), 0, false)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	srv := httptest.NewServer(Router(Config{
		Books:     repo,
		Notices:   notices,
		Responder: &response.Responder{Views: views},
		Metrics:   NewMetrics(reg),
		Gatherer:  reg,
	}))
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	return &app{srv: srv, client: &http.Client{Jar: jar}, repo: repo, reg: reg}
}

func (a *app) get(t *testing.T, path string) (int, string) {
	t.Helper()

	res, err := a.client.Get(a.srv.URL + path)
	require.NoError(t, err)
	return read(t, res)
}

func (a *app) post(t *testing.T, path string, form url.Values) (int, string) {
	t.Helper()

	res, err := a.client.PostForm(a.srv.URL+path, form)
	require.NoError(t, err)
	return read(t, res)
}

func read(t *testing.T, res *http.Response) (int, string) {
	t.Helper()
	defer res.Body.Close()

	bs, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res.StatusCode, string(bs)
}

func duneForm() url.Values {
	return url.Values{
		"judul":         {"Dune"},
		"penulis":       {"Herbert"},
		"tahunTerbit":   {"1965"},
		"jumlahHalaman": {"412"},
	}
}

func TestBookLifecycle(t *testing.T) {
	a := newApp(t, books.NewMemoryRepository())

	status, body := a.post(t, "/book", duneForm())
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, MsgAdded)
	assert.Contains(t, body, "Dune")

	// notice is one-shot
	status, body = a.get(t, "/book")
	require.Equal(t, http.StatusOK, status)
	assert.NotContains(t, body, MsgAdded)
	assert.Contains(t, body, "Herbert")

	status, body = a.post(t, "/book", duneForm())
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, validation.MsgTitleExists)

	original, err := a.repo.GetByTitle(t.Context(), "Dune")
	require.NoError(t, err)
	require.NotNil(t, original)

	update := duneForm()
	update.Set("_id", original.Id)
	update.Set("oldJudul", "Dune")
	update.Set("jumlahHalaman", "500")

	status, body = a.post(t, "/book?_method=PUT", update)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, MsgUpdated)

	updated, err := a.repo.GetByTitle(t.Context(), "Dune")
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, "500", updated.PageCount)
	assert.Equal(t, original.Id, updated.Id)

	status, body = a.get(t, "/book/Dune")
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "500")

	status, body = a.post(t, "/book", url.Values{"_method": {"DELETE"}, "judul": {"Dune"}})
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, MsgDeleted)

	all, err := a.repo.GetAll(t.Context())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestCreateRejectedFormKeepsValues(t *testing.T) {
	a := newApp(t, books.NewMemoryRepository())

	form := duneForm()
	form.Set("tahunTerbit", "sixty-five")
	form.Set("jumlahHalaman", "lots")

	status, body := a.post(t, "/book", form)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, validation.MsgYearNumeric)
	assert.Contains(t, body, validation.MsgPageCountNumeric)
	assert.Contains(t, body, `value="sixty-five"`)
	assert.Contains(t, body, `value="Herbert"`)

	all, err := a.repo.GetAll(t.Context())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestUpdateRejectsTakenTitle(t *testing.T) {
	a := newApp(t, books.NewMemoryRepository())

	emma := &types.Book{Title: "Emma", Author: "Austen", YearPublished: "1815", PageCount: "474"}
	require.NoError(t, a.repo.Insert(t.Context(), emma))
	dune := &types.Book{Title: "Dune", Author: "Herbert", YearPublished: "1965", PageCount: "412"}
	require.NoError(t, a.repo.Insert(t.Context(), dune))

	form := duneForm()
	form.Set("_id", dune.Id)
	form.Set("oldJudul", "Dune")
	form.Set("judul", "Emma")

	status, body := a.post(t, "/book?_method=PUT", form)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, validation.MsgTitleExists)
	assert.Contains(t, body, `name="oldJudul" value="Dune"`)

	got, err := a.repo.GetByTitle(t.Context(), "Dune")
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestUpdateUnknownId(t *testing.T) {
	a := newApp(t, books.NewMemoryRepository())

	form := duneForm()
	form.Set("_id", "missing")
	form.Set("oldJudul", "Dune")

	status, body := a.post(t, "/book?_method=PUT", form)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Contains(t, body, "Dune")
}

func TestMissingTitlePages(t *testing.T) {
	a := newApp(t, books.NewMemoryRepository())

	for _, path := range []string{"/book/Nope", "/book/edit/Nope"} {
		status, body := a.get(t, path)
		assert.Equal(t, http.StatusNotFound, status, path)
		assert.Contains(t, body, "Nope", path)
	}
}

func TestTitlesWithSpecialCharacters(t *testing.T) {
	a := newApp(t, books.NewMemoryRepository())

	b := &types.Book{Title: "AC/DC: 100% Live", Author: "Someone", YearPublished: "2001", PageCount: "90"}
	require.NoError(t, a.repo.Insert(t.Context(), b))

	status, body := a.get(t, "/book/"+url.PathEscape(b.Title))
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "Someone")

	status, body = a.get(t, "/book/edit/"+url.PathEscape(b.Title))
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, `value="90"`)
}

func TestBookTitledAdd(t *testing.T) {
	a := newApp(t, books.NewMemoryRepository())
	require.NoError(t, a.repo.Insert(t.Context(), &types.Book{Title: "add", Author: "Someone", YearPublished: "2001", PageCount: "90"}))

	// the add form owns /book/add
	status, body := a.get(t, "/book/add")
	assert.Equal(t, http.StatusOK, status)
	assert.NotContains(t, body, "Someone")

	status, body = a.get(t, "/book/edit/add")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, `value="Someone"`)

	status, _ = a.post(t, "/book?_method=DELETE", url.Values{"judul": {"add"}})
	assert.Equal(t, http.StatusOK, status)

	all, err := a.repo.GetAll(t.Context())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestDeleteTwice(t *testing.T) {
	a := newApp(t, books.NewMemoryRepository())
	require.NoError(t, a.repo.Insert(t.Context(), &types.Book{Title: "Dune", Author: "Herbert", YearPublished: "1965", PageCount: "412"}))

	for range 2 {
		status, body := a.post(t, "/book?_method=DELETE", url.Values{"judul": {"Dune"}})
		assert.Equal(t, http.StatusOK, status)
		assert.Contains(t, body, MsgDeleted)
	}
}

func TestPagesRender(t *testing.T) {
	a := newApp(t, books.NewMemoryRepository())

	status, body := a.get(t, "/")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, titleHome)

	status, body = a.get(t, "/book/add")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, `action="/book"`)

	status, body = a.get(t, "/book")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "No books yet")
}

func TestStoreFailureIs500(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := mocks.NewMockRepository(ctrl)
	repo.EXPECT().GetAll(gomock.Any()).Return(nil, errors.New("dial tcp: connection refused"))

	a := newApp(t, repo)

	status, body := a.get(t, "/book")
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Contains(t, body, "Error ID")
	assert.NotContains(t, body, "connection refused")
}

func TestInsertLosingRaceReportsDuplicate(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := mocks.NewMockRepository(ctrl)
	repo.EXPECT().GetByTitle(gomock.Any(), "Dune").Return(nil, nil)
	repo.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(books.ErrDuplicateTitle)

	a := newApp(t, repo)

	status, body := a.post(t, "/book", duneForm())
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, validation.MsgTitleExists)
}

func TestUpdateLosingRaceKeepsHiddenFields(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := mocks.NewMockRepository(ctrl)
	repo.EXPECT().GetByTitle(gomock.Any(), "Emma").Return(nil, nil)
	repo.EXPECT().Update(gomock.Any(), gomock.Any()).Return(books.ErrDuplicateTitle)

	a := newApp(t, repo)

	form := duneForm()
	form.Set("_id", "7d2f4a10-3c1e-4b8a-9f21-0e6b5c4d3a21")
	form.Set("oldJudul", "Dune")
	form.Set("judul", "Emma")

	status, body := a.post(t, "/book?_method=PUT", form)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, validation.MsgTitleExists)
	assert.Contains(t, body, `name="_id" value="7d2f4a10-3c1e-4b8a-9f21-0e6b5c4d3a21"`)
	assert.Contains(t, body, `name="oldJudul" value="Dune"`)
	assert.Contains(t, body, `value="Emma"`)
}

func TestReadiness(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := mocks.NewMockRepository(ctrl)
	gomock.InOrder(
		repo.EXPECT().Ping(gomock.Any()).Return(nil),
		repo.EXPECT().Ping(gomock.Any()).Return(errors.New("down")),
	)

	a := newApp(t, repo)

	status, _ := a.get(t, "/readyz")
	assert.Equal(t, http.StatusOK, status)

	status, _ = a.get(t, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, status)

	status, body := a.get(t, "/healthz")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body)
}

func TestMetricsExposed(t *testing.T) {
	a := newApp(t, books.NewMemoryRepository())

	form := duneForm()
	form.Set("jumlahHalaman", "x")
	a.post(t, "/book", form)

	status, body := a.get(t, "/metrics")
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, `bookshelf_validation_rejects_total{field="jumlahHalaman"} 1`)
	assert.True(t, strings.Contains(body, `route="/book"`), body)
}
