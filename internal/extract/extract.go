// Package extract turns the rendered markup of one application page into a
// structured record. Field labels are matched against a configurable alias
// table; malformed markup degrades to empty fields plus diagnostics, never
// a hard failure.
package extract

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/jinwoohan/appgrader/internal/store"
)

// placeholder is the template filler authors are supposed to overwrite.
const placeholder = "여기 파싱"

// Fetcher downloads one embedded image by URL, returning the raw bytes and
// the reported content type.
type Fetcher interface {
	Download(ctx context.Context, url string) ([]byte, string, error)
}

// Result is the extracted field mapping for one page.
type Result struct {
	Subject              *string
	Division             *string
	ParticipantCount     *int
	RepresentativeName   *string
	RepresentativeKnoxID *string

	Survey []store.SurveyAnswer
	Skills []store.Skill

	CurrentWork     *string
	PainPoint       *string
	ImprovementIdea *string
	ExpectedEffect  *string
	DataReadiness   *string

	Images []store.ImageRef

	Status      string
	Diagnostics []string
}

// fieldSpec maps a canonical field to its header label aliases. Rich
// fields keep block formatting as markdown; plain fields collapse to a
// single line.
type fieldSpec struct {
	name     string
	aliases  []string
	required bool
	rich     bool
	assign   func(r *Result, text string)
}

var fields = []fieldSpec{
	{
		name: "subject", aliases: []string{"과제명"}, required: true,
		assign: func(r *Result, text string) { r.Subject = &text },
	},
	{
		name: "division", aliases: []string{"소속", "사업부"}, required: true,
		assign: func(r *Result, text string) { r.Division = &text },
	},
	{
		name: "participant_count", aliases: []string{"참여인원", "참여 인원"}, required: false,
		assign: func(r *Result, text string) {
			if n, ok := firstInt(text); ok {
				r.ParticipantCount = &n
			}
		},
	},
	{
		name: "representative", aliases: []string{"과제 대표자", "대표자"}, required: false,
		assign: func(r *Result, text string) {
			name, knox := splitRepresentative(text)
			if name != "" {
				r.RepresentativeName = &name
			}
			if knox != "" {
				r.RepresentativeKnoxID = &knox
			}
		},
	},
	{
		name: "current_work", aliases: []string{"현재 업무"}, required: true, rich: true,
		assign: func(r *Result, text string) { r.CurrentWork = &text },
	},
	{
		name: "pain_point", aliases: []string{"pain point", "페인 포인트"}, required: true, rich: true,
		assign: func(r *Result, text string) { r.PainPoint = &text },
	},
	{
		name: "improvement_idea", aliases: []string{"개선 아이디어"}, required: true, rich: true,
		assign: func(r *Result, text string) { r.ImprovementIdea = &text },
	},
	{
		name: "expected_effect", aliases: []string{"기대 효과", "기대효과"}, required: true, rich: true,
		assign: func(r *Result, text string) { r.ExpectedEffect = &text },
	},
	{
		name: "data_readiness", aliases: []string{"데이터 보유", "데이터 준비", "데이터 확보"}, rich: true,
		assign: func(r *Result, text string) { r.DataReadiness = &text },
	},
}

// Extractor parses application pages.
type Extractor struct {
	fetcher   Fetcher
	imageDir  string
	threshold float64
	log       *zap.Logger
	newID     func() string
}

// New creates an extractor. threshold is the fraction of required fields
// that may be missing before the record is marked partial; 0 means any
// missing required field. fetcher may be nil to skip image handling.
func New(fetcher Fetcher, imageDir string, threshold float64, log *zap.Logger) *Extractor {
	return &Extractor{
		fetcher:   fetcher,
		imageDir:  imageDir,
		threshold: threshold,
		log:       log,
		newID:     newImageID,
	}
}

// Extract parses one page body. It always returns a Result; structural
// anomalies show up as empty fields and diagnostics, with Status set to
// failed only when nothing at all was extracted.
func (e *Extractor) Extract(ctx context.Context, html string) *Result {
	r := &Result{}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		r.Status = store.ParseFailed
		r.Diagnostics = append(r.Diagnostics, "unparseable markup: "+err.Error())
		return r
	}

	// Rewriting image references first lets the rich fields render local
	// paths directly.
	e.localizeImages(ctx, doc, r)

	missingRequired, totalRequired := 0, 0
	extracted := 0
	for _, f := range fields {
		text := e.extractField(doc, f)
		if f.required {
			totalRequired++
		}
		if text == "" {
			if f.required {
				missingRequired++
			}
			r.Diagnostics = append(r.Diagnostics, "no content for field "+f.name)
			continue
		}
		f.assign(r, text)
		extracted++
	}

	r.Survey = extractSurvey(doc)
	r.Skills = extractSkills(doc)

	switch {
	case extracted == 0 && len(r.Survey) == 0 && len(r.Skills) == 0:
		r.Status = store.ParseFailed
	case totalRequired > 0 && float64(missingRequired)/float64(totalRequired) > e.threshold:
		r.Status = store.ParsePartial
	default:
		r.Status = store.ParseOK
	}
	return r
}

// extractField finds a header cell matching one of the field's aliases
// and extracts content using, in order: the adjacent cell in the same
// row, the cell below in the same column, then all text in the table.
func (e *Extractor) extractField(doc *goquery.Document, f fieldSpec) string {
	var found string
	doc.Find("th, td").EachWithBreak(func(_ int, cell *goquery.Selection) bool {
		header := normalizeLabel(cell.Text())
		if header == "" || len([]rune(header)) > 60 {
			return true
		}
		if !matchesAlias(header, f.aliases) {
			return true
		}

		for _, candidate := range []*goquery.Selection{
			adjacentCell(cell),
			cellBelow(cell),
		} {
			if text := cellValue(candidate, f.rich); text != "" {
				found = text
				return false
			}
		}
		if table := cell.Closest("table"); table.Length() > 0 {
			if text := tableRemainder(table, cell); text != "" {
				found = text
				return false
			}
		}
		return true
	})
	return found
}

// adjacentCell returns the next cell in the same row.
func adjacentCell(cell *goquery.Selection) *goquery.Selection {
	return cell.NextFiltered("td, th").First()
}

// cellBelow returns the cell at the same column index in the next
// non-empty row of the same table.
func cellBelow(cell *goquery.Selection) *goquery.Selection {
	row := cell.Closest("tr")
	if row.Length() == 0 {
		return nil
	}
	idx := -1
	row.Find("td, th").Each(func(i int, c *goquery.Selection) {
		if idx == -1 && c.Get(0) == cell.Get(0) {
			idx = i
		}
	})
	if idx < 0 {
		return nil
	}

	for next := row.NextFiltered("tr"); next.Length() > 0; next = next.NextFiltered("tr") {
		if strings.TrimSpace(next.Text()) == "" {
			continue
		}
		cells := next.Find("td, th")
		if cells.Length() > idx {
			return cells.Eq(idx)
		}
		return cells.First()
	}
	return nil
}

// tableRemainder returns the table's text with the header cell's own text
// removed, as a last-resort candidate.
func tableRemainder(table, header *goquery.Selection) string {
	text := strings.TrimSpace(table.Text())
	text = strings.Replace(text, strings.TrimSpace(header.Text()), "", 1)
	return cleanValue(text)
}

func cellValue(cell *goquery.Selection, rich bool) string {
	if cell == nil || cell.Length() == 0 {
		return ""
	}
	if rich {
		return cleanValue(renderMarkdown(cell))
	}
	return cleanValue(collapseSpace(cell.Text()))
}

// cleanValue trims and rejects template placeholder text.
func cleanValue(text string) string {
	text = strings.TrimSpace(text)
	if text == "" || strings.Contains(text, placeholder) {
		return ""
	}
	return text
}

// normalizeLabel lowercases, collapses whitespace, and strips the
// required-field markers authors append to labels.
func normalizeLabel(s string) string {
	s = collapseSpace(strings.ToLower(s))
	s = strings.Trim(s, "*※ ")
	return s
}

func matchesAlias(header string, aliases []string) bool {
	for _, a := range aliases {
		if strings.Contains(header, normalizeLabel(a)) {
			return true
		}
	}
	return false
}

var spaceRe = regexp.MustCompile(`\s+`)

func collapseSpace(s string) string {
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}

var intRe = regexp.MustCompile(`\d+`)

func firstInt(s string) (int, bool) {
	m := intRe.FindString(s)
	if m == "" {
		return 0, false
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0, false
	}
	return n, true
}

var repParenRe = regexp.MustCompile(`^(.+?)\s*[\(（](.+?)[\)）]`)

// splitRepresentative parses "이름 (KnoxID)" or "이름 KnoxID".
func splitRepresentative(text string) (name, knox string) {
	if m := repParenRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1]), strings.TrimSpace(m[2])
	}
	parts := strings.Fields(text)
	switch {
	case len(parts) >= 2:
		return parts[0], parts[1]
	case len(parts) == 1:
		return parts[0], ""
	}
	return "", ""
}
