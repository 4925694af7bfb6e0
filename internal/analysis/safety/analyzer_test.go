package safety

import "testing"

func TestAnalyzeNeutralMessage(t *testing.T) {
	decision := Analyze("남편과 자주 다퉈요")
	if decision.Flagged() {
		t.Fatalf("expected no risk, got %+v", decision)
	}
	if decision.Level != LevelNone {
		t.Fatalf("expected level none, got %s", decision.Level)
	}
}

func TestAnalyzeSelfHarmIsUrgent(t *testing.T) {
	decision := Analyze("요즘은 정말 죽고 싶다는 생각만 들어요")
	if decision.Level != LevelUrgent {
		t.Fatalf("expected urgent, got %s", decision.Level)
	}
	if len(decision.Categories) != 1 || decision.Categories[0] != SelfHarm {
		t.Fatalf("unexpected categories: %v", decision.Categories)
	}
}

func TestAnalyzeViolenceIsCaution(t *testing.T) {
	decision := Analyze("어제 남편이 저를 밀쳤어요")
	if decision.Level != LevelCaution {
		t.Fatalf("expected caution, got %s", decision.Level)
	}
	if decision.Categories[0] != DomesticViolence {
		t.Fatalf("unexpected categories: %v", decision.Categories)
	}
}

func TestAnalyzeMultipleCategoriesSorted(t *testing.T) {
	decision := Analyze("남편이 아이를 때리고 저도 맞았어요. 자해까지 생각했어요")
	if decision.Level != LevelUrgent {
		t.Fatalf("expected urgent, got %s", decision.Level)
	}
	want := []Category{ChildAbuse, DomesticViolence, SelfHarm}
	if len(decision.Categories) != len(want) {
		t.Fatalf("unexpected categories: %v", decision.Categories)
	}
	for i := range want {
		if decision.Categories[i] != want[i] {
			t.Fatalf("categories[%d]=%s want %s", i, decision.Categories[i], want[i])
		}
	}
}

func TestAnalyzeIgnoresSpacing(t *testing.T) {
	if !Analyze("  살기    싫어요 ").Flagged() {
		t.Fatal("expected collapsed whitespace to match")
	}
}
