package classify

import (
	"testing"

	"github.com/jinwoohan/appgrader/internal/store"
)

func str(s string) *string { return &s }

func testCategories() []*store.Category {
	return []*store.Category{
		{
			Name:         "LLM",
			DisplayOrder: 1,
			Keywords: []store.WeightedKeyword{
				{Text: "챗봇", Weight: 2.0},
				{Text: "LLM", Weight: 2.0},
				{Text: "질의응답", Weight: 1.0},
			},
		},
		{
			Name:         "RAG",
			DisplayOrder: 2,
			Keywords: []store.WeightedKeyword{
				{Text: "RAG", Weight: 2.0},
				{Text: "사내 문서", Weight: 1.0},
			},
		},
		{
			Name:         "예측",
			DisplayOrder: 3,
			Keywords: []store.WeightedKeyword{
				{Text: "예측", Weight: 2.0},
			},
		},
	}
}

func TestClassifyKeywordMatch(t *testing.T) {
	app := &store.Application{
		Subject:         str("설비 문의 챗봇 구축"),
		ImprovementIdea: str("사내 문서를 질의응답으로 제공"),
	}

	matches := Classify(app, testCategories(), 1.0)
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d: %+v", len(matches), matches)
	}
	if matches[0].Name != "LLM" {
		t.Errorf("expected LLM primary, got %s", matches[0].Name)
	}
	if matches[0].Score != 3.0 {
		t.Errorf("expected score 3.0 (챗봇 + 질의응답), got %v", matches[0].Score)
	}
}

func TestClassifyCaseInsensitive(t *testing.T) {
	app := &store.Application{Subject: str("rag 기반 검색 + llm 결합")}

	matches := Classify(app, testCategories(), 1.0)
	if len(matches) != 2 {
		t.Fatalf("expected case-insensitive matches, got %+v", matches)
	}
}

func TestClassifyThreshold(t *testing.T) {
	app := &store.Application{Subject: str("사내 문서 정리")}

	// 사내 문서 alone scores 1.0, which does not exceed the threshold.
	if matches := Classify(app, testCategories(), 1.0); len(matches) != 0 {
		t.Errorf("expected no matches at threshold, got %+v", matches)
	}
	if matches := Classify(app, testCategories(), 0.5); len(matches) != 1 {
		t.Errorf("expected 1 match below threshold, got %+v", matches)
	}
}

func TestClassifyTieBrokenByDisplayOrder(t *testing.T) {
	app := &store.Application{Subject: str("LLM과 RAG 결합 수요 예측")}

	matches := Classify(app, testCategories(), 1.0)
	if len(matches) != 3 {
		t.Fatalf("expected 3 matches, got %+v", matches)
	}
	// All score 2.0; display order decides.
	if matches[0].Name != "LLM" || matches[1].Name != "RAG" || matches[2].Name != "예측" {
		t.Errorf("tie order wrong: %+v", matches)
	}
}

func TestClassifyEmptyRecord(t *testing.T) {
	if matches := Classify(&store.Application{}, testCategories(), 1.0); matches != nil {
		t.Errorf("expected nil for empty record, got %+v", matches)
	}
}

func TestClassifySkillsContribute(t *testing.T) {
	app := &store.Application{
		Skills: []store.Skill{{Category: "코드 구현", Field: "프레임워크", Skill: "LLM 파인튜닝", Level: 2}},
	}
	matches := Classify(app, testCategories(), 1.0)
	if len(matches) != 1 || matches[0].Name != "LLM" {
		t.Errorf("skills text not scored: %+v", matches)
	}
}
