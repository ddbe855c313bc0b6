package extract

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/jinwoohan/appgrader/internal/store"
)

// surveyQuestions is the number of pre-survey items in the template.
const surveyQuestions = 6

// extractSurvey reads the pre-survey answers. The template marks each
// question's cells with classes q1..q6; the checked column decides the
// answer. Free-text check marks (O, ○, ✓) and filled cells both count.
func extractSurvey(doc *goquery.Document) []store.SurveyAnswer {
	var answers []store.SurveyAnswer
	for i := 1; i <= surveyQuestions; i++ {
		cell := doc.Find(fmt.Sprintf("td.q%d", i)).First()
		if cell.Length() == 0 {
			continue
		}
		row := cell.Closest("tr")
		if row.Length() == 0 {
			continue
		}

		question := fmt.Sprintf("q%d", i)
		if first := row.Find("td").First(); first.Length() > 0 && first.Get(0) != cell.Get(0) {
			if q := collapseSpace(first.Text()); q != "" {
				question = q
			}
		}

		yes := collapseSpace(cell.Text())
		no := collapseSpace(cell.NextFiltered("td").Text())

		answer := ""
		switch {
		case checked(yes):
			answer = "예"
		case checked(no):
			answer = "아니오"
		}
		if answer != "" {
			answers = append(answers, store.SurveyAnswer{Question: question, Answer: answer})
		}
	}
	return answers
}

func checked(text string) bool {
	if text == "" {
		return false
	}
	for _, mark := range []string{"O", "○", "✓", "✔", "V"} {
		if strings.Contains(text, mark) {
			return true
		}
	}
	// A non-empty cell that is not an unticked X counts as checked.
	return text != "X" && text != "x"
}

// extractSkills reads the participant-capability nested table. Category
// rows span the full width; detail rows carry field, skill, and a numeric
// level. Example rows (italicized or marked 작성 예시) are skipped.
func extractSkills(doc *goquery.Document) []store.Skill {
	header := findHeaderCell(doc, "기술 역량")
	if header == nil {
		return nil
	}
	table := header.Closest("table")
	if table.Length() == 0 {
		return nil
	}
	nested := table.Find("table").First()
	if nested.Length() == 0 {
		return nil
	}

	var skills []store.Skill
	category := ""
	nested.Find("tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() == 0 {
			return
		}
		first := collapseSpace(cells.First().Text())

		// Column header rows.
		if strings.Contains(first, "분야") || strings.Contains(first, "레벨") {
			return
		}

		// Category rows span the full table width.
		if cells.Length() == 1 {
			if _, wide := cells.First().Attr("colspan"); wide {
				if first != "" && !strings.Contains(first, "작성 예시") {
					category = first
				}
				return
			}
		}
		if cells.Length() < 3 {
			return
		}

		field := collapseSpace(cells.Eq(0).Text())
		skill := collapseSpace(cells.Eq(1).Text())
		levelText := collapseSpace(cells.Eq(2).Text())

		if field == "" || skill == "" || levelText == "" {
			return
		}
		if strings.Contains(field, "작성 예시") || strings.Contains(skill, "작성 예시") {
			return
		}
		if field == placeholder || skill == placeholder {
			return
		}
		// Italicized cells are template examples.
		if cells.Eq(0).Find("em").Length() > 0 || cells.Eq(1).Find("em").Length() > 0 {
			return
		}

		level, ok := firstInt(levelText)
		if !ok || level == 0 {
			return
		}

		cat := category
		if cat == "" {
			cat = field
		}
		skills = append(skills, store.Skill{Category: cat, Field: field, Skill: skill, Level: level})
	})
	return skills
}

// findHeaderCell returns the first cell whose text contains the given
// label, or nil.
func findHeaderCell(doc *goquery.Document, label string) *goquery.Selection {
	var found *goquery.Selection
	doc.Find("th, td").EachWithBreak(func(_ int, cell *goquery.Selection) bool {
		if strings.Contains(collapseSpace(cell.Text()), label) {
			found = cell
			return false
		}
		return true
	})
	return found
}
