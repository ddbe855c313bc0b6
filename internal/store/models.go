package store

// Parse status values for an application record.
const (
	ParseOK      = "ok"
	ParsePartial = "partial"
	ParseFailed  = "failed"
)

// Evaluation sources.
const (
	SourceAI    = "ai"
	SourceHuman = "human"
)

// Application is one synced application record, keyed by its external
// page id. Re-syncing overwrites the parsed fields; nothing deletes it.
type Application struct {
	ID      int64
	PageID  string
	PageURL *string

	Subject              *string
	Division             *string
	DepartmentID         *int64
	ParticipantCount     *int
	RepresentativeName   *string
	RepresentativeKnoxID *string

	Survey []SurveyAnswer
	Skills []Skill

	CurrentWork     *string
	PainPoint       *string
	ImprovementIdea *string
	ExpectedEffect  *string
	DataReadiness   *string

	Images []ImageRef

	PrimaryCategory *string
	Categories      []string

	ParseStatus    string
	ParseDiagnosis *string
	Status         string // pending | ai_evaluated | human_evaluated
	CreatedAt      *string
	UpdatedAt      *string
}

// SurveyAnswer is one pre-survey question/answer pair, in document order.
type SurveyAnswer struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Skill is one participant-skill row from the capability table.
type Skill struct {
	Category string `json:"category"`
	Field    string `json:"field"`
	Skill    string `json:"skill"`
	Level    int    `json:"level"`
}

// ImageRef maps an embedded image's original remote URL to its locally
// cached path.
type ImageRef struct {
	SourceURL string `json:"source_url"`
	LocalPath string `json:"local_path"`
}

// WeightedKeyword is one classifier keyword with its score contribution.
type WeightedKeyword struct {
	Text   string  `json:"text"`
	Weight float64 `json:"weight"`
}

// Category is one technology category, owned by the admin side and
// read-only to the pipeline.
type Category struct {
	ID           int64
	Name         string
	Description  *string
	Keywords     []WeightedKeyword
	DisplayOrder int
	IsActive     bool
}

// Criterion is one evaluation criterion, read-only to the pipeline.
type Criterion struct {
	ID           int64
	Name         string
	Description  *string
	Guide        *string
	Weight       float64
	DisplayOrder int
	IsActive     bool
}

// Department is organisational reference data.
type Department struct {
	ID   int64
	Name string
}

// CriterionGrade is one per-criterion grade inside an evaluation result.
type CriterionGrade struct {
	CriterionID int64   `json:"criterion_id"`
	Name        string  `json:"name"`
	Grade       string  `json:"grade"` // S/A/B/C/D
	Rationale   string  `json:"rationale"`
	Confidence  float64 `json:"confidence"`
}

// EvaluationResult is one evaluation run. Rows are append-only: re-running
// an evaluation adds a new row and never mutates a prior one.
type EvaluationResult struct {
	ID            int64
	ApplicationID int64
	Source        string // ai | human
	OverallGrade  string
	Grades        []CriterionGrade
	Summary       *string
	RawResponse   *string
	FailedParse   bool
	CreatedAt     *string
}

// Stats contains aggregate database statistics.
type Stats struct {
	TotalApplications int
	ParseOK           int
	ParsePartial      int
	ParseFailed       int
	Evaluated         int
	EvaluationRuns    int
	Categories        int
	Criteria          int
}
