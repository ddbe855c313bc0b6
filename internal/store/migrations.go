package store

import "database/sql"

// Migration represents a single schema migration step.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
var migrations = []Migration{
	{
		Version:     1,
		Description: "initial schema",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS departments (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT UNIQUE NOT NULL
);

CREATE TABLE IF NOT EXISTS applications (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    page_id TEXT UNIQUE NOT NULL,
    page_url TEXT,
    subject TEXT,
    division TEXT,
    department_id INTEGER REFERENCES departments(id),
    participant_count INTEGER,
    representative_name TEXT,
    representative_knox_id TEXT,
    survey TEXT,
    skills TEXT,
    current_work TEXT,
    pain_point TEXT,
    improvement_idea TEXT,
    expected_effect TEXT,
    data_readiness TEXT,
    images TEXT,
    primary_category TEXT,
    categories TEXT,
    parse_status TEXT NOT NULL DEFAULT 'failed',
    parse_diagnosis TEXT,
    status TEXT NOT NULL DEFAULT 'pending',
    created_at TEXT DEFAULT (datetime('now')),
    updated_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS ai_categories (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT UNIQUE NOT NULL,
    description TEXT,
    keywords TEXT,
    display_order INTEGER DEFAULT 0,
    is_active INTEGER DEFAULT 1
);

CREATE TABLE IF NOT EXISTS evaluation_criteria (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    description TEXT,
    guide TEXT,
    weight REAL DEFAULT 1.0,
    display_order INTEGER DEFAULT 0,
    is_active INTEGER DEFAULT 1
);

CREATE TABLE IF NOT EXISTS evaluation_history (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    application_id INTEGER NOT NULL REFERENCES applications(id),
    source TEXT NOT NULL CHECK(source IN ('ai', 'human')),
    overall_grade TEXT,
    grades TEXT,
    summary TEXT,
    raw_response TEXT,
    failed_parse INTEGER DEFAULT 0,
    created_at TEXT DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_applications_page ON applications(page_id);
CREATE INDEX IF NOT EXISTS idx_applications_status ON applications(status);
CREATE INDEX IF NOT EXISTS idx_history_application ON evaluation_history(application_id);
`)
			return err
		},
	},
	{
		Version:     2,
		Description: "seed default reference data",
		Up: func(tx *sql.Tx) error {
			var count int
			if err := tx.QueryRow("SELECT COUNT(*) FROM ai_categories").Scan(&count); err != nil {
				return err
			}
			if count == 0 {
				for _, c := range defaultCategories {
					if _, err := tx.Exec(
						"INSERT INTO ai_categories (name, description, keywords, display_order) VALUES (?, ?, ?, ?)",
						c.name, c.description, c.keywords, c.order,
					); err != nil {
						return err
					}
				}
			}

			if err := tx.QueryRow("SELECT COUNT(*) FROM evaluation_criteria").Scan(&count); err != nil {
				return err
			}
			if count == 0 {
				for _, c := range defaultCriteria {
					if _, err := tx.Exec(
						"INSERT INTO evaluation_criteria (name, description, guide, weight, display_order) VALUES (?, ?, ?, ?, ?)",
						c.name, c.description, c.guide, c.weight, c.order,
					); err != nil {
						return err
					}
				}
			}
			return nil
		},
	},
}

// Default technology categories with weighted keywords, mirroring the
// admin-seeded reference data. Keywords are stored as JSON.
var defaultCategories = []struct {
	name        string
	description string
	keywords    string
	order       int
}{
	{
		name:        "LLM",
		description: "대화형 언어모델 기반 과제",
		keywords:    `[{"text":"챗봇","weight":2.0},{"text":"대화형","weight":1.5},{"text":"LLM","weight":2.0},{"text":"GPT","weight":1.5},{"text":"질의응답","weight":1.0},{"text":"자동 응답","weight":1.0}]`,
		order:       1,
	},
	{
		name:        "RAG",
		description: "문서 검색 결합 생성",
		keywords:    `[{"text":"RAG","weight":2.0},{"text":"문서 검색","weight":1.5},{"text":"사내 문서","weight":1.0},{"text":"지식베이스","weight":1.5},{"text":"매뉴얼","weight":1.0}]`,
		order:       2,
	},
	{
		name:        "예측",
		description: "수요/값 예측, 트렌드 분석",
		keywords:    `[{"text":"예측","weight":2.0},{"text":"수요","weight":1.0},{"text":"시계열","weight":1.5},{"text":"트렌드","weight":1.0}]`,
		order:       3,
	},
	{
		name:        "분류",
		description: "이미지/텍스트 분류, 불량 검출",
		keywords:    `[{"text":"분류","weight":2.0},{"text":"불량","weight":1.5},{"text":"검출","weight":1.5},{"text":"이미지","weight":1.0}]`,
		order:       4,
	},
	{
		name:        "에이전트",
		description: "자율 의사결정, 워크플로우 자동화",
		keywords:    `[{"text":"에이전트","weight":2.0},{"text":"자동화","weight":1.0},{"text":"워크플로우","weight":1.5}]`,
		order:       5,
	},
	{
		name:        "최적화",
		description: "자원 최적화, 스케줄링",
		keywords:    `[{"text":"최적화","weight":2.0},{"text":"스케줄","weight":1.5},{"text":"배치","weight":1.0},{"text":"경로","weight":1.0}]`,
		order:       6,
	},
}

var defaultCriteria = []struct {
	name        string
	description string
	guide       string
	weight      float64
	order       int
}{
	{
		name:        "혁신성",
		description: "AI 기술의 창의성과 새로움",
		guide:       "기존 방식 대비 접근의 새로움, AI 적용의 창의성을 평가하세요. 지원서에 작성된 내용만 근거로 사용하세요.",
		weight:      1.0,
		order:       1,
	},
	{
		name:        "실현가능성",
		description: "기술적 구현 난이도와 팀 역량",
		guide:       "참여 인원, 기술 역량, 데이터 확보 계획을 바탕으로 구현 가능성을 평가하세요.",
		weight:      1.5,
		order:       2,
	},
	{
		name:        "효과성",
		description: "조직에 미치는 경영 효과",
		guide:       "기대 효과 절에 작성된 내용을 근거로 업무 개선 폭을 평가하세요. 추측 금지.",
		weight:      1.5,
		order:       3,
	},
	{
		name:        "명확성",
		description: "문제 정의와 해결 방안의 구체성",
		guide:       "Pain point와 개선 아이디어가 구체적이고 측정 가능한지 평가하세요.",
		weight:      1.0,
		order:       4,
	},
}

// latestVersion returns the highest migration version number.
func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}
