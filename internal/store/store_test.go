package store

import (
	"path/filepath"
	"testing"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func str(s string) *string { return &s }

func TestMigrateSeedsReferenceData(t *testing.T) {
	db := testDB(t)

	cats, err := db.ListCategories()
	if err != nil {
		t.Fatalf("ListCategories: %v", err)
	}
	if len(cats) == 0 {
		t.Fatal("expected seeded categories")
	}
	var llm *Category
	for _, c := range cats {
		if c.Name == "LLM" {
			llm = c
		}
	}
	if llm == nil {
		t.Fatal("expected seeded LLM category")
	}
	found := false
	for _, kw := range llm.Keywords {
		if kw.Text == "챗봇" && kw.Weight > 1.0 {
			found = true
		}
	}
	if !found {
		t.Errorf("LLM category missing weighted 챗봇 keyword: %+v", llm.Keywords)
	}

	crits, err := db.ListCriteria()
	if err != nil {
		t.Fatalf("ListCriteria: %v", err)
	}
	if len(crits) != 4 {
		t.Errorf("expected 4 seeded criteria, got %d", len(crits))
	}
}

func TestMigrateIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.db")

	db, err := Open(path)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	db.Close()

	db, err = Open(path)
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	defer db.Close()

	cats, err := db.ListCategories()
	if err != nil {
		t.Fatalf("ListCategories: %v", err)
	}
	if len(cats) != 6 {
		t.Errorf("seed ran twice: %d categories", len(cats))
	}
}

func TestUpsertApplication(t *testing.T) {
	db := testDB(t)

	app := &Application{
		PageID:      "page-1",
		Subject:     str("불량 검출 자동화"),
		Division:    str("생산기술팀"),
		PainPoint:   str("수작업 검사"),
		ParseStatus: ParseOK,
		Survey:      []SurveyAnswer{{Question: "AI 활용 경험이 있습니까?", Answer: "예"}},
	}
	id, created, err := db.UpsertApplication(app)
	if err != nil {
		t.Fatalf("UpsertApplication: %v", err)
	}
	if !created {
		t.Error("expected created=true on first upsert")
	}

	got, err := db.GetApplicationByPageID("page-1")
	if err != nil {
		t.Fatalf("GetApplicationByPageID: %v", err)
	}
	if got.ID != id || *got.Subject != "불량 검출 자동화" {
		t.Errorf("unexpected record: %+v", got)
	}
	if got.Status != "pending" {
		t.Errorf("expected pending status, got %q", got.Status)
	}
	if len(got.Survey) != 1 || got.Survey[0].Answer != "예" {
		t.Errorf("survey round trip failed: %+v", got.Survey)
	}

	// Classification then re-sync: parsed fields overwritten, category kept.
	if err := db.UpdateApplicationClassification(id, str("분류"), []string{"분류"}); err != nil {
		t.Fatalf("UpdateApplicationClassification: %v", err)
	}

	app.Subject = str("불량 검출 자동화 v2")
	id2, created, err := db.UpsertApplication(app)
	if err != nil {
		t.Fatalf("re-upsert: %v", err)
	}
	if created || id2 != id {
		t.Errorf("expected update of row %d, got id=%d created=%v", id, id2, created)
	}

	got, err = db.GetApplication(id)
	if err != nil {
		t.Fatalf("GetApplication: %v", err)
	}
	if *got.Subject != "불량 검출 자동화 v2" {
		t.Errorf("subject not overwritten: %q", *got.Subject)
	}
	if got.PrimaryCategory == nil || *got.PrimaryCategory != "분류" {
		t.Error("classification did not survive re-sync")
	}
}

func TestGetApplicationNotFound(t *testing.T) {
	db := testDB(t)
	if _, err := db.GetApplication(999); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := db.UpdateApplicationClassification(999, nil, nil); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestEvaluationHistoryAppendOnly(t *testing.T) {
	db := testDB(t)

	app := &Application{PageID: "page-1", ParseStatus: ParseOK}
	id, _, err := db.UpsertApplication(app)
	if err != nil {
		t.Fatalf("UpsertApplication: %v", err)
	}

	first := &EvaluationResult{
		ApplicationID: id,
		Source:        SourceAI,
		OverallGrade:  "B",
		Grades:        []CriterionGrade{{CriterionID: 1, Name: "혁신성", Grade: "B", Rationale: "근거"}},
	}
	if _, err := db.AppendEvaluationResult(first); err != nil {
		t.Fatalf("AppendEvaluationResult: %v", err)
	}

	got, err := db.GetApplication(id)
	if err != nil {
		t.Fatalf("GetApplication: %v", err)
	}
	if got.Status != "ai_evaluated" {
		t.Errorf("expected ai_evaluated, got %q", got.Status)
	}

	second := &EvaluationResult{ApplicationID: id, Source: SourceAI, OverallGrade: "A"}
	if _, err := db.AppendEvaluationResult(second); err != nil {
		t.Fatalf("second append: %v", err)
	}

	history, err := db.ListEvaluationResults(id)
	if err != nil {
		t.Fatalf("ListEvaluationResults: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 history rows, got %d", len(history))
	}
	if history[0].OverallGrade != "B" || history[1].OverallGrade != "A" {
		t.Errorf("history order wrong: %q then %q", history[0].OverallGrade, history[1].OverallGrade)
	}

	latest, err := db.LatestEvaluationResult(id)
	if err != nil {
		t.Fatalf("LatestEvaluationResult: %v", err)
	}
	if latest.OverallGrade != "A" {
		t.Errorf("expected latest A, got %q", latest.OverallGrade)
	}
}

func TestHumanEvaluationNotDowngraded(t *testing.T) {
	db := testDB(t)

	app := &Application{PageID: "page-1", ParseStatus: ParseOK}
	id, _, _ := db.UpsertApplication(app)

	human := &EvaluationResult{ApplicationID: id, Source: SourceHuman, OverallGrade: "S"}
	if _, err := db.AppendEvaluationResult(human); err != nil {
		t.Fatalf("human append: %v", err)
	}
	ai := &EvaluationResult{ApplicationID: id, Source: SourceAI, OverallGrade: "C"}
	if _, err := db.AppendEvaluationResult(ai); err != nil {
		t.Fatalf("ai append: %v", err)
	}

	got, _ := db.GetApplication(id)
	if got.Status != "human_evaluated" {
		t.Errorf("AI run downgraded status to %q", got.Status)
	}
}

func TestFailedParseDoesNotFlipStatus(t *testing.T) {
	db := testDB(t)

	app := &Application{PageID: "page-1", ParseStatus: ParseOK}
	id, _, _ := db.UpsertApplication(app)

	raw := "not json at all"
	failed := &EvaluationResult{ApplicationID: id, Source: SourceAI, RawResponse: &raw, FailedParse: true}
	if _, err := db.AppendEvaluationResult(failed); err != nil {
		t.Fatalf("append: %v", err)
	}

	got, _ := db.GetApplication(id)
	if got.Status != "pending" {
		t.Errorf("failed parse flipped status to %q", got.Status)
	}
	latest, err := db.LatestEvaluationResult(id)
	if err != nil {
		t.Fatalf("LatestEvaluationResult: %v", err)
	}
	if !latest.FailedParse || latest.RawResponse == nil || *latest.RawResponse != raw {
		t.Errorf("raw response not retained: %+v", latest)
	}
}

func TestFindDepartmentByDivision(t *testing.T) {
	db := testDB(t)

	if _, err := db.EnsureDepartment("생산기술"); err != nil {
		t.Fatalf("EnsureDepartment: %v", err)
	}
	if _, err := db.EnsureDepartment("생산기술혁신팀"); err != nil {
		t.Fatalf("EnsureDepartment: %v", err)
	}

	d, err := db.FindDepartmentByDivision("제조본부 생산기술혁신팀")
	if err != nil {
		t.Fatalf("FindDepartmentByDivision: %v", err)
	}
	if d.Name != "생산기술혁신팀" {
		t.Errorf("expected longest match, got %q", d.Name)
	}

	if _, err := db.FindDepartmentByDivision("영업팀"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := db.FindDepartmentByDivision("  "); err != ErrNotFound {
		t.Errorf("expected ErrNotFound for blank division, got %v", err)
	}
}

func TestGetStats(t *testing.T) {
	db := testDB(t)

	ok := &Application{PageID: "p1", ParseStatus: ParseOK}
	partial := &Application{PageID: "p2", ParseStatus: ParsePartial}
	id, _, _ := db.UpsertApplication(ok)
	db.UpsertApplication(partial)
	db.AppendEvaluationResult(&EvaluationResult{ApplicationID: id, Source: SourceAI, OverallGrade: "B"})

	s, err := db.GetStats()
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if s.TotalApplications != 2 || s.ParseOK != 1 || s.ParsePartial != 1 {
		t.Errorf("unexpected parse counts: %+v", s)
	}
	if s.Evaluated != 1 || s.EvaluationRuns != 1 {
		t.Errorf("unexpected evaluation counts: %+v", s)
	}
	if s.Categories != 6 || s.Criteria != 4 {
		t.Errorf("unexpected reference counts: %+v", s)
	}
}
