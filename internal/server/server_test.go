package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/TobiSchelling/labeldesk/internal/annotate"
	"github.com/TobiSchelling/labeldesk/internal/database"
	"github.com/TobiSchelling/labeldesk/internal/dataset"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(database.DriverSQLite, filepath.Join(t.TempDir(), "test.db"), zaptest.NewLogger(t))
	require.NoError(t, err, "failed to open test db")
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestServer(t *testing.T, store annotate.Store, texts ...string) *Server {
	t.Helper()
	label := "hate"
	labels := []*string{&label}
	ctrl := annotate.New(store, dataset.New(texts, labels), annotate.Options{}, zaptest.NewLogger(t))
	srv, err := New(ctrl, Options{Guidelines: "Pick **one** category."}, zaptest.NewLogger(t))
	require.NoError(t, err, "failed to create server")
	return srv
}

func do(srv *Server, method, target string, form url.Values) *httptest.ResponseRecorder {
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func doJSON(srv *Server, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestIndexShowsCurrentItem(t *testing.T) {
	srv := newTestServer(t, openTestDB(t), "first <post>", "second")

	rec := do(srv, "GET", "/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	for _, want := range []string{
		"first &lt;post&gt;",
		"Original label: <strong>hate</strong>",
		`action="/classify/language_caste"`,
		"Language/Caste",
		`name="row" value="0"`,
		"<strong>one</strong>",
	} {
		assert.Contains(t, body, want)
	}
}

func TestClassifyFormRoute(t *testing.T) {
	db := openTestDB(t)
	srv := newTestServer(t, db, "first", "second")
	ctx := context.Background()

	rec := do(srv, "POST", "/classify/religion", url.Values{"row": {"0"}})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Contains(t, rec.Header().Get("Location"), "notice=")

	p, err := db.LoadProgress(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, p.CurrentRow)
	assert.Equal(t, 1, p.TotalProcessed)

	// A double submit for row 0 is rejected as stale and changes nothing.
	rec = do(srv, "POST", "/classify/religion", url.Values{"row": {"0"}})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	n, err := db.CountSubmissions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rec = do(srv, "GET", "/", nil)
	assert.Contains(t, rec.Body.String(), "second")
}

func TestClassifyFormInvalidCategory(t *testing.T) {
	db := openTestDB(t)
	srv := newTestServer(t, db, "first")

	rec := do(srv, "POST", "/classify/spam", url.Values{"row": {"0"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	n, err := db.CountSubmissions(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSkipResetJumpFormRoutes(t *testing.T) {
	db := openTestDB(t)
	srv := newTestServer(t, db, "a", "b", "c")
	ctx := context.Background()

	do(srv, "POST", "/skip", url.Values{"row": {"0"}})
	p, err := db.LoadProgress(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, p.CurrentRow)
	assert.Equal(t, 1, p.TotalSkipped)

	// Jump takes a 1-based row number.
	do(srv, "POST", "/jump", url.Values{"row": {"3"}})
	p, err = db.LoadProgress(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, p.CurrentRow)

	rec := do(srv, "POST", "/jump", url.Values{"row": {"9"}})
	assert.Equal(t, http.StatusSeeOther, rec.Code, "out-of-range jump redirects with an error notice")
	p, err = db.LoadProgress(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, p.CurrentRow, "cursor unchanged")

	do(srv, "POST", "/reset", url.Values{})
	p, err = db.LoadProgress(ctx)
	require.NoError(t, err)
	assert.Zero(t, p.CurrentRow)
	assert.Zero(t, p.TotalSkipped)
}

func TestCompletePage(t *testing.T) {
	srv := newTestServer(t, openTestDB(t), "only")
	do(srv, "POST", "/classify/normal", url.Values{"row": {"0"}})

	rec := do(srv, "GET", "/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "All rows processed")
	assert.Contains(t, body, "/api/v1/export/csv")
}

func TestStatsListEveryCategory(t *testing.T) {
	srv := newTestServer(t, openTestDB(t), "only")
	do(srv, "POST", "/classify/normal", url.Values{"row": {"0"}})

	rec := do(srv, "GET", "/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()

	// Categories with no submissions still get a zero row.
	for _, c := range database.Categories {
		assert.Contains(t, body, `class="count-`+string(c)+`"`)
		assert.Contains(t, body, c.Title())
	}
	assert.Contains(t, body, `<tr class="count-religion"><td>Religion</td><td>0</td><td>0</td></tr>`)
	assert.Contains(t, body, `<tr class="count-normal"><td>Normal</td><td>1</td><td>1</td></tr>`)
}

func TestAPIFlow(t *testing.T) {
	srv := newTestServer(t, openTestDB(t), "a", "b", "c")

	rec := doJSON(srv, "GET", "/api/v1/current", "")
	var cur struct {
		Done  bool `json:"done"`
		Total int  `json:"total_rows"`
		Item  struct {
			Row           int     `json:"row"`
			Text          string  `json:"text"`
			OriginalLabel *string `json:"original_label"`
		} `json:"item"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cur))
	assert.False(t, cur.Done)
	assert.Equal(t, 3, cur.Total)
	assert.Equal(t, "a", cur.Item.Text)
	assert.NotNil(t, cur.Item.OriginalLabel)

	rec = doJSON(srv, "POST", "/api/v1/classify", `{"category":"normal","row":0}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res struct {
		Progress     database.Progress `json:"progress"`
		SubmissionID int64             `json:"submission_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, 1, res.Progress.CurrentRow)
	assert.NotZero(t, res.SubmissionID)

	rec = doJSON(srv, "POST", "/api/v1/classify", `{"category":"normal","row":0}`)
	assert.Equal(t, http.StatusConflict, rec.Code, "stale row")

	rec = doJSON(srv, "POST", "/api/v1/classify", `{"category":"spam"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "invalid category")

	rec = doJSON(srv, "POST", "/api/v1/skip", "")
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(srv, "POST", "/api/v1/jump", `{"row":3}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "out-of-range jump")
	rec = doJSON(srv, "POST", "/api/v1/jump", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "missing row")

	rec = doJSON(srv, "GET", "/api/v1/stats", "")
	var stats annotate.Statistics
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.CountsByCategory[database.CategoryNormal])
	assert.Equal(t, 1, stats.Progress.TotalSkipped)
	assert.Equal(t, 1, stats.Remaining)

	rec = doJSON(srv, "POST", "/api/v1/skip", `{"row":2}`)
	require.Equal(t, http.StatusOK, rec.Code, "last skip")
	rec = doJSON(srv, "POST", "/api/v1/skip", "")
	assert.Equal(t, http.StatusConflict, rec.Code, "complete")

	rec = doJSON(srv, "POST", "/api/v1/reset", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestExportRoutes(t *testing.T) {
	srv := newTestServer(t, openTestDB(t), "a, b", "c")
	doJSON(srv, "POST", "/api/v1/classify", `{"category":"gender"}`)

	rec := do(srv, "GET", "/api/v1/export/csv", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/csv"))
	assert.Contains(t, rec.Body.String(), `"a, b",gender,Reddit,pending,0`)

	rec = do(srv, "GET", "/api/v1/export/json", nil)
	var subs []database.Submission
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &subs))
	require.Len(t, subs, 1)
	assert.Equal(t, database.CategoryGender, subs[0].Category)
}

// downStore simulates a database that cannot be reached.
type downStore struct {
	*database.DB
}

var errDown = errors.New("connection refused")

func (downStore) LoadProgress(context.Context) (*database.Progress, error) { return nil, errDown }

func (downStore) InTx(context.Context, func(database.Queries) error) error { return errDown }

func TestStoreFailureMapsTo503(t *testing.T) {
	srv := newTestServer(t, downStore{openTestDB(t)}, "a")

	assert.Equal(t, http.StatusServiceUnavailable, do(srv, "GET", "/", nil).Code, "page")
	assert.Equal(t, http.StatusServiceUnavailable,
		do(srv, "POST", "/classify/normal", url.Values{"row": {"0"}}).Code, "classify form")
	assert.Equal(t, http.StatusServiceUnavailable,
		doJSON(srv, "POST", "/api/v1/classify", `{"category":"normal"}`).Code, "classify api")
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errDown }

func TestHealthRoute(t *testing.T) {
	db := openTestDB(t)
	ctrl := annotate.New(db, dataset.New(nil, nil), annotate.Options{}, zaptest.NewLogger(t))

	srv, err := New(ctrl, Options{Health: db}, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, do(srv, "GET", "/health", nil).Code)

	srv, err = New(ctrl, Options{Health: failingPinger{}}, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, do(srv, "GET", "/health", nil).Code)
}

func TestStaticRoute(t *testing.T) {
	srv := newTestServer(t, openTestDB(t), "a")

	rec := do(srv, "GET", "/static/style.css", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "--accent")
}
