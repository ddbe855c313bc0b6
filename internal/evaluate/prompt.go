package evaluate

import (
	"fmt"
	"strings"

	"github.com/jinwoohan/appgrader/internal/store"
)

// systemPrompt fixes the grader's role. The no-fabrication instruction is
// load-bearing: graders drift into inventing strengths when a section is
// thin unless told not to.
const systemPrompt = `당신은 사내 AI 과제 공모전의 심사위원입니다.

원칙:
- 지원서에 작성된 내용만을 근거로 평가합니다. 작성되지 않은 내용을 추측하거나 지어내지 마십시오.
- 각 평가 기준에 대해 등급(S/A/B/C/D)과 그 근거를 제시합니다. S가 최고, D가 최저 등급입니다.
- 근거가 부족한 항목은 낮은 등급을 부여하고 그 사실을 근거에 명시합니다.
- 반드시 지시된 JSON 형식으로만 응답합니다. JSON 외의 텍스트를 포함하지 마십시오.`

// BuildPrompt renders the user prompt: department context, the record's
// fields as labeled sections, each criterion with its guidance, and the
// required response shape.
func BuildPrompt(app *store.Application, criteria []*store.Criterion, dept *store.Department) string {
	var b strings.Builder

	b.WriteString("## 과제 정보\n\n")
	if dept != nil {
		fmt.Fprintf(&b, "- 소속 부서: %s\n", dept.Name)
	}
	writeLine(&b, "과제명", app.Subject)
	writeLine(&b, "소속/사업부", app.Division)
	if app.ParticipantCount != nil {
		fmt.Fprintf(&b, "- 참여 인원: %d명\n", *app.ParticipantCount)
	}
	if app.PrimaryCategory != nil {
		fmt.Fprintf(&b, "- 기술 분류: %s\n", *app.PrimaryCategory)
	}

	writeSection(&b, "현재 업무", app.CurrentWork)
	writeSection(&b, "Pain Point", app.PainPoint)
	writeSection(&b, "개선 아이디어", app.ImprovementIdea)
	writeSection(&b, "기대 효과", app.ExpectedEffect)
	writeSection(&b, "데이터 준비 현황", app.DataReadiness)

	if len(app.Skills) > 0 {
		b.WriteString("\n## 참여자 기술 역량\n\n")
		for _, s := range app.Skills {
			fmt.Fprintf(&b, "- [%s] %s / %s: 레벨 %d\n", s.Category, s.Field, s.Skill, s.Level)
		}
	}
	if len(app.Survey) > 0 {
		b.WriteString("\n## 사전 설문\n\n")
		for _, q := range app.Survey {
			fmt.Fprintf(&b, "- %s: %s\n", q.Question, q.Answer)
		}
	}

	b.WriteString("\n## 평가 기준\n\n")
	for _, c := range criteria {
		fmt.Fprintf(&b, "### %d. %s", c.ID, c.Name)
		if c.Description != nil {
			fmt.Fprintf(&b, ": %s", *c.Description)
		}
		b.WriteString("\n")
		if c.Guide != nil {
			fmt.Fprintf(&b, "%s\n", *c.Guide)
		}
		b.WriteString("\n")
	}

	b.WriteString("## 응답 형식\n\n")
	b.WriteString("다음 형식의 JSON 객체 하나로만 응답하십시오:\n\n")
	b.WriteString("{\n  \"grades\": {\n")
	for i, c := range criteria {
		fmt.Fprintf(&b, "    \"%d\": {\"grade\": \"S|A|B|C|D\", \"rationale\": \"근거\", \"confidence\": 0.0}", c.ID)
		if i < len(criteria)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString("  },\n  \"overall_grade\": \"S|A|B|C|D\",\n  \"summary\": \"5줄 이내 총평\"\n}\n")

	return b.String()
}

func writeLine(b *strings.Builder, label string, value *string) {
	if value != nil && *value != "" {
		fmt.Fprintf(b, "- %s: %s\n", label, *value)
	}
}

func writeSection(b *strings.Builder, label string, value *string) {
	if value == nil || *value == "" {
		return
	}
	fmt.Fprintf(b, "\n## %s\n\n%s\n", label, *value)
}
