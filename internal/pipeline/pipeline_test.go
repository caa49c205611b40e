package pipeline

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/engager-cli/internal/config"
	"github.com/sells-group/engager-cli/internal/delivery"
	"github.com/sells-group/engager-cli/internal/export"
	"github.com/sells-group/engager-cli/internal/model"
	"github.com/sells-group/engager-cli/internal/tracker"
)

type fakeSource struct {
	urls []string
	err  error
}

func (f fakeSource) FetchPostURLs(context.Context, string, string) ([]string, error) {
	return f.urls, f.err
}

type fakeCollector struct {
	records []model.EngagementRecord
	gotIDs  []string
	calls   int
}

func (f *fakeCollector) CollectAll(_ context.Context, ids []string) ([]model.EngagementRecord, error) {
	f.calls++
	f.gotIDs = ids
	return f.records, nil
}

// profileEnricher enriches every record with a personal profile URL.
type profileEnricher struct{}

func (profileEnricher) Enrich(_ context.Context, recs []model.MergedRecord) []model.EnrichedRecord {
	out := make([]model.EnrichedRecord, 0, len(recs))
	for _, r := range recs {
		e := model.EnrichedRecord{MergedRecord: r}
		if strings.Contains(r.ProfileURL, "/in/") {
			e.Enriched = true
			e.Profile = &model.Profile{FirstName: r.PersonName}
		}
		out = append(out, e)
	}
	return out
}

type brokenStore struct{ tracker.Store }

func (brokenStore) Load(context.Context) (tracker.IDSet, error) {
	return nil, errors.New("disk on fire")
}

func rec(id, url string, kind model.EngagementType, post string) model.EngagementRecord {
	return model.EngagementRecord{PersonID: id, PersonName: "n-" + id, ProfileURL: url, EngagementType: kind, SourcePostID: post}
}

var postURLs = []string{
	"https://www.linkedin.com/feed/update/urn:li:activity:111/",
	"https://www.linkedin.com/feed/update/urn:li:activity:111/",
	"https://www.linkedin.com/posts/x-activity-222-abc",
	"https://www.linkedin.com/feed/update/urn:li:ugcPost:333/",
}

// clay is an httptest webhook that records delivered person ids.
type clay struct {
	mu     sync.Mutex
	ids    []string
	status int
}

func (c *clay) server(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var batch []map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&batch))
		c.mu.Lock()
		for _, b := range batch {
			c.ids = append(c.ids, b["authorId"].(string))
		}
		c.mu.Unlock()
		if c.status != 0 {
			w.WriteHeader(c.status)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(dir string) *config.Config {
	return &config.Config{
		Sheet: config.SheetConfig{SpreadsheetID: "sheet", GID: "0"},
		Output: config.OutputConfig{
			Format:   "csv",
			CSVPath:  filepath.Join(dir, "engagers.csv"),
			XLSXPath: filepath.Join(dir, "engagers.xlsx"),
		},
	}
}

func csvRows(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestRun_FullFlow(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := tracker.NewJSONStore(filepath.Join(dir, "sent_leads.json"))
	require.NoError(t, store.Save(ctx, tracker.NewIDSet(), tracker.NewIDSet("C")))

	col := &fakeCollector{records: []model.EngagementRecord{
		rec("A", "", model.EngagementReaction, "111"),
		rec("A", "https://www.linkedin.com/in/a", model.EngagementComment, "111"),
		rec("B", "https://www.linkedin.com/company/b", model.EngagementRepost, "222"),
		rec("C", "https://www.linkedin.com/in/c", model.EngagementReaction, "222"),
		rec("", "", model.EngagementReaction, "222"),
	}}
	hook := &clay{}
	srv := hook.server(t)

	p := New(testConfig(dir), fakeSource{urls: postURLs}, col, store, profileEnricher{}, delivery.NewWebhook(srv.URL))
	sum, err := p.Run(ctx, 2)
	require.NoError(t, err)

	assert.Equal(t, []string{"111", "222"}, col.gotIDs)
	assert.NotEmpty(t, sum.RunID)
	assert.Equal(t, 2, sum.Posts)
	assert.Equal(t, 5, sum.Engagements)
	assert.Equal(t, 3, sum.Unique)
	assert.Equal(t, 1, sum.PreviouslySent)
	assert.Equal(t, 2, sum.NewLeads)
	assert.Equal(t, 1, sum.Enriched)
	assert.Equal(t, delivery.Report{Batches: 1, Sent: 2}, sum.Delivery)
	assert.Equal(t, 2, sum.TrackerAdded)
	assert.ElementsMatch(t, []string{"A", "B"}, hook.ids)

	sent, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, sent.Sorted())

	rows := csvRows(t, sum.SnapshotPaths[0])
	require.Len(t, rows, 3)
	assert.Equal(t, export.Columns, rows[0])
	byID := map[string][]string{rows[1][0]: rows[1], rows[2][0]: rows[2]}
	assert.Equal(t, "reaction+comment", byID["A"][3])
	assert.Equal(t, "https://www.linkedin.com/in/a", byID["A"][2])
	assert.Equal(t, "true", byID["A"][7])
	assert.Equal(t, "false", byID["B"][7])

	var names []string
	for _, ph := range sum.Phases {
		names = append(names, ph.Name)
	}
	assert.Equal(t, []string{"posts", "collect", "dedup", "enrich", "deliver", "track", "snapshot"}, names)
}

func TestRun_SecondRunSendsNothing(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := tracker.NewJSONStore(filepath.Join(dir, "sent_leads.json"))
	col := &fakeCollector{records: []model.EngagementRecord{
		rec("A", "https://www.linkedin.com/in/a", model.EngagementReaction, "111"),
	}}
	hook := &clay{}
	srv := hook.server(t)
	p := New(testConfig(dir), fakeSource{urls: postURLs}, col, store, profileEnricher{}, delivery.NewWebhook(srv.URL))

	_, err := p.Run(ctx, 0)
	require.NoError(t, err)
	first, err := store.Status(ctx)
	require.NoError(t, err)

	sum, err := p.Run(ctx, 0)
	require.NoError(t, err)

	assert.Equal(t, 3, sum.Posts)
	assert.Equal(t, 0, sum.NewLeads)
	assert.Equal(t, 0, sum.TrackerAdded)
	assert.Equal(t, []string{"A"}, hook.ids, "second run delivers nothing")

	second, err := store.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.LastUpdated, second.LastUpdated, "tracker untouched without new ids")

	rows := csvRows(t, sum.SnapshotPaths[0])
	assert.Len(t, rows, 1, "header-only snapshot")
}

// A failed webhook batch does not keep its people out of the tracker.
func TestRun_WebhookFailureStillMarksSent(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := tracker.NewJSONStore(filepath.Join(dir, "sent_leads.json"))
	col := &fakeCollector{records: []model.EngagementRecord{
		rec("A", "https://www.linkedin.com/in/a", model.EngagementReaction, "111"),
		rec("B", "", model.EngagementComment, "111"),
	}}
	hook := &clay{status: http.StatusInternalServerError}
	srv := hook.server(t)

	p := New(testConfig(dir), fakeSource{urls: postURLs}, col, store, profileEnricher{}, delivery.NewWebhook(srv.URL))
	sum, err := p.Run(ctx, 0)
	require.NoError(t, err)

	assert.Equal(t, delivery.Report{Batches: 1, FailedBatches: 1, Failed: 2}, sum.Delivery)
	sent, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, sent.Sorted())
}

func TestRun_SheetFailureIsFatal(t *testing.T) {
	dir := t.TempDir()
	col := &fakeCollector{}
	p := New(testConfig(dir), fakeSource{err: errors.New("403")}, col,
		tracker.NewJSONStore(filepath.Join(dir, "t.json")), profileEnricher{}, delivery.NewWebhook("http://127.0.0.1:1"))

	_, err := p.Run(context.Background(), 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetch post urls")
	assert.Zero(t, col.calls)
	assert.NoFileExists(t, filepath.Join(dir, "engagers.csv"))
}

func TestRun_TrackerLoadFailureIsFatal(t *testing.T) {
	dir := t.TempDir()
	col := &fakeCollector{records: []model.EngagementRecord{rec("A", "", model.EngagementReaction, "111")}}
	p := New(testConfig(dir), fakeSource{urls: postURLs}, col, brokenStore{}, profileEnricher{}, delivery.NewWebhook("http://127.0.0.1:1"))

	_, err := p.Run(context.Background(), 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load tracker")
}

func TestWriteSnapshot_Both(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir).Output
	cfg.Format = "both"

	paths, err := WriteSnapshot(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{cfg.CSVPath, cfg.XLSXPath}, paths)
	assert.FileExists(t, cfg.CSVPath)
	assert.FileExists(t, cfg.XLSXPath)
}

func TestWriteSnapshot_XLSXOnly(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir).Output
	cfg.Format = "xlsx"

	paths, err := WriteSnapshot(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{cfg.XLSXPath}, paths)
	assert.NoFileExists(t, cfg.CSVPath)
}
