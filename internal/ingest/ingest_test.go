package ingest

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/jinwoohan/appgrader/internal/confluence"
	"github.com/jinwoohan/appgrader/internal/errs"
	"github.com/jinwoohan/appgrader/internal/extract"
	"github.com/jinwoohan/appgrader/internal/store"
)

type fakeSource struct {
	pages    map[string]*confluence.Page
	children []confluence.PageSummary
	listErr  error
	pageErrs map[string]error
	fetches  int
}

func (f *fakeSource) ListChildren(_ context.Context, _ string) ([]confluence.PageSummary, error) {
	return f.children, f.listErr
}

func (f *fakeSource) GetPage(_ context.Context, pageID string) (*confluence.Page, error) {
	f.fetches++
	if err := f.pageErrs[pageID]; err != nil {
		return nil, err
	}
	page, ok := f.pages[pageID]
	if !ok {
		return nil, errs.FromStatus("wiki", 404)
	}
	return page, nil
}

func pageBody(subject string) string {
	return fmt.Sprintf(`<table><tbody>
		<tr><td>과제명</td><td>%s</td></tr>
		<tr><td>소속/사업부</td><td>제조본부 생산기술팀</td></tr>
	</tbody></table>`, subject)
}

func testSyncer(t *testing.T, source *fakeSource) (*Syncer, *store.DB) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	extractor := extract.New(nil, "", 0, zap.NewNop())
	return New(source, extractor, db, "https://wiki.example.com", zap.NewNop()), db
}

func TestSyncContinuesPastFailures(t *testing.T) {
	source := &fakeSource{
		children: []confluence.PageSummary{{ID: "1"}, {ID: "2"}, {ID: "3"}},
		pages: map[string]*confluence.Page{
			"1": {ID: "1", Title: "지원서 1", Body: pageBody("과제 하나"), WebUI: "/pages/1"},
			"3": {ID: "3", Title: "지원서 3", Body: pageBody("과제 셋"), WebUI: "/pages/3"},
		},
		pageErrs: map[string]error{"2": errs.FromStatus("wiki", 500)},
	}
	syncer, db := testSyncer(t, source)

	report, err := syncer.Sync(context.Background(), "root", false)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if report.Fetched != 3 || report.Created != 2 || report.Failed != 1 {
		t.Errorf("failed fetch must still count as an attempt: %+v", report)
	}
	if len(report.Failures) != 1 || report.Failures[0].PageID != "2" {
		t.Errorf("failure not recorded: %+v", report.Failures)
	}
	if !strings.Contains(report.Failures[0].Reason, "500") {
		t.Errorf("failure reason missing status: %q", report.Failures[0].Reason)
	}

	app, err := db.GetApplicationByPageID("1")
	if err != nil {
		t.Fatalf("GetApplicationByPageID: %v", err)
	}
	if app.Subject == nil || *app.Subject != "과제 하나" {
		t.Errorf("record not extracted: %+v", app)
	}
	if app.PageURL == nil || *app.PageURL != "https://wiki.example.com/pages/1" {
		t.Errorf("page url: %v", app.PageURL)
	}
}

func TestSyncSkipsExistingWithoutForce(t *testing.T) {
	source := &fakeSource{
		children: []confluence.PageSummary{{ID: "1"}},
		pages: map[string]*confluence.Page{
			"1": {ID: "1", Body: pageBody("원본 과제")},
		},
	}
	syncer, db := testSyncer(t, source)

	if _, err := syncer.Sync(context.Background(), "root", false); err != nil {
		t.Fatalf("first sync: %v", err)
	}
	source.pages["1"].Body = pageBody("수정된 과제")

	report, err := syncer.Sync(context.Background(), "root", false)
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if report.Skipped != 1 || report.Fetched != 0 {
		t.Errorf("existing page not skipped: %+v", report)
	}

	app, _ := db.GetApplicationByPageID("1")
	if *app.Subject != "원본 과제" {
		t.Errorf("skipped page was overwritten: %q", *app.Subject)
	}
}

func TestSyncForceUpdates(t *testing.T) {
	source := &fakeSource{
		children: []confluence.PageSummary{{ID: "1"}},
		pages: map[string]*confluence.Page{
			"1": {ID: "1", Body: pageBody("원본 과제")},
		},
	}
	syncer, db := testSyncer(t, source)

	if _, err := syncer.Sync(context.Background(), "root", false); err != nil {
		t.Fatalf("first sync: %v", err)
	}
	source.pages["1"].Body = pageBody("수정된 과제")

	report, err := syncer.Sync(context.Background(), "root", true)
	if err != nil {
		t.Fatalf("force sync: %v", err)
	}
	if report.Updated != 1 || report.Created != 0 {
		t.Errorf("force did not update: %+v", report)
	}

	app, _ := db.GetApplicationByPageID("1")
	if *app.Subject != "수정된 과제" {
		t.Errorf("record not refreshed: %q", *app.Subject)
	}
}

func TestSyncResolvesDepartment(t *testing.T) {
	source := &fakeSource{
		children: []confluence.PageSummary{{ID: "1"}},
		pages: map[string]*confluence.Page{
			"1": {ID: "1", Body: pageBody("과제")},
		},
	}
	syncer, db := testSyncer(t, source)

	deptID, err := db.EnsureDepartment("생산기술팀")
	if err != nil {
		t.Fatalf("EnsureDepartment: %v", err)
	}

	if _, err := syncer.Sync(context.Background(), "root", false); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	app, _ := db.GetApplicationByPageID("1")
	if app.DepartmentID == nil || *app.DepartmentID != deptID {
		t.Errorf("department not resolved: %v", app.DepartmentID)
	}
}

func TestSyncOne(t *testing.T) {
	source := &fakeSource{
		pages: map[string]*confluence.Page{
			"7": {ID: "7", Body: pageBody("단건 과제")},
		},
	}
	syncer, db := testSyncer(t, source)

	report, err := syncer.SyncOne(context.Background(), "7")
	if err != nil {
		t.Fatalf("SyncOne: %v", err)
	}
	if report.Created != 1 {
		t.Errorf("unexpected report: %+v", report)
	}
	if _, err := db.GetApplicationByPageID("7"); err != nil {
		t.Errorf("record missing: %v", err)
	}

	if _, err := syncer.SyncOne(context.Background(), "missing"); err == nil {
		t.Error("expected error for unknown page")
	}
}

func TestSyncCancellationStopsNewFetches(t *testing.T) {
	var children []confluence.PageSummary
	pages := map[string]*confluence.Page{}
	for i := 0; i < 10; i++ {
		id := fmt.Sprintf("%d", i)
		children = append(children, confluence.PageSummary{ID: id})
		pages[id] = &confluence.Page{ID: id, Body: pageBody("과제 " + id)}
	}
	source := &fakeSource{children: children, pages: pages}
	syncer, _ := testSyncer(t, source)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := syncer.Sync(ctx, "root", false)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if source.fetches != 0 {
		t.Errorf("cancelled sync still fetched %d pages", source.fetches)
	}
	if report.Fetched != 0 {
		t.Errorf("unexpected report: %+v", report)
	}
}

func TestSyncListFailureIsFatal(t *testing.T) {
	source := &fakeSource{listErr: errs.FromStatus("wiki", 401)}
	syncer, _ := testSyncer(t, source)

	if _, err := syncer.Sync(context.Background(), "root", false); err == nil {
		t.Fatal("expected error when listing fails")
	}
}
