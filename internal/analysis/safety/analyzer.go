// Package safety screens user messages for signs of violence, abuse or
// self-harm so the transport can surface emergency contacts.
package safety

import (
	"sort"
	"strings"
)

// Category names a kind of risk.
type Category string

const (
	DomesticViolence Category = "domestic-violence"
	ChildAbuse       Category = "child-abuse"
	SelfHarm         Category = "self-harm"
)

// Level grades how urgently the client should be pointed to help.
type Level string

const (
	LevelNone    Level = "none"
	LevelCaution Level = "caution"
	LevelUrgent  Level = "urgent"
)

// Hotline is an emergency contact shown alongside a flagged turn.
type Hotline struct {
	Name   string `json:"name"`
	Number string `json:"number"`
}

// Hotlines are the contacts recommended by the counselor persona.
var Hotlines = []Hotline{
	{Name: "경찰", Number: "112"},
	{Name: "여성긴급전화", Number: "1366"},
	{Name: "자살예방 상담전화", Number: "109"},
}

// Decision is the screening result for one message.
type Decision struct {
	Level      Level      `json:"level"`
	Categories []Category `json:"categories"`
	Score      int        `json:"score"`
}

// Flagged reports whether any risk was found.
func (d Decision) Flagged() bool {
	return d.Level != LevelNone
}

// urgentScore is the score from which a decision is urgent rather than cautionary.
const urgentScore = 6

var keywordBuckets = map[Category][]string{
	DomesticViolence: {
		"때렸", "때려", "맞았", "맞고", "폭행", "폭력", "목을 졸", "위협", "협박", "밀쳤", "던졌",
		"칼을", "죽이겠다", "가정폭력",
	},
	ChildAbuse: {
		"아이를 때", "애를 때", "아이가 맞", "학대", "방치", "굶기", "아동학대", "체벌", "멍이 들",
	},
	SelfHarm: {
		"죽고 싶", "죽고싶", "자살", "자해", "살기 싫", "살고 싶지 않", "사라지고 싶", "끝내고 싶",
		"손목", "유서", "뛰어내리",
	},
}

// weights boost categories whose mere mention warrants urgency.
var weights = map[Category]int{
	DomesticViolence: 3,
	ChildAbuse:       3,
	SelfHarm:         6,
}

// Analyze screens a user message.
func Analyze(text string) Decision {
	normalized := strings.Join(strings.Fields(strings.ToLower(text)), " ")
	if normalized == "" {
		return Decision{Level: LevelNone}
	}

	scores := make(map[Category]int)
	for category, keywords := range keywordBuckets {
		for _, word := range keywords {
			if strings.Contains(normalized, word) {
				scores[category] += weights[category]
			}
		}
	}

	if len(scores) == 0 {
		return Decision{Level: LevelNone}
	}

	decision := Decision{Level: LevelCaution}
	for category, s := range scores {
		decision.Categories = append(decision.Categories, category)
		decision.Score += s
	}
	sort.Slice(decision.Categories, func(i, j int) bool {
		return decision.Categories[i] < decision.Categories[j]
	})
	if decision.Score >= urgentScore {
		decision.Level = LevelUrgent
	}
	return decision
}
