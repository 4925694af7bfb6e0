package topic

import "fmt"

// Topic describes one counseling subject a client can pick when opening a session.
type Topic struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Instruction string `json:"-"`
}

const (
	General     = "general"
	Spouse      = "spouse"
	ParentChild = "parent-child"
	Sibling     = "sibling"
	InLaws      = "in-laws"
	Divorce     = "divorce"
)

// Seed returns the closed set of counseling topics.
func Seed() []Topic {
	return []Topic{
		{
			ID:          General,
			Label:       "일반적인 고민",
			Title:       "일반적인 고민",
			Description: "가족 관계 전반에 대한 이야기",
			Instruction: "내담자의 이야기를 듣고 가장 적절한 가족 상담 주제를 찾아 대화를 이끌어주세요.",
		},
		{
			ID:          Spouse,
			Label:       "부부/배우자 갈등",
			Title:       "부부 갈등",
			Description: "배우자와의 소통 및 관계 문제",
			Instruction: "현재 내담자는 '부부/배우자 갈등'으로 힘들어하고 있습니다. 의사소통 단절, 성격 차이, 신뢰 문제 등을 깊이 있게 다뤄주세요.",
		},
		{
			ID:          ParentChild,
			Label:       "부모/자녀 관계",
			Title:       "자녀/육아",
			Description: "양육 스트레스 및 자녀와의 갈등",
			Instruction: "현재 내담자는 '부모/자녀 관계'로 고민 중입니다. 발달 단계에 따른 자녀의 특성이나 양육 스트레스, 세대 차이 등을 고려해주세요.",
		},
		{
			ID:          Sibling,
			Label:       "형제/자매 갈등",
			Title:       "형제/자매",
			Description: "형제간의 비교나 다툼",
			Instruction: "현재 내담자는 '형제/자매 갈등'을 겪고 있습니다. 비교, 경쟁, 소외감 등의 감정을 잘 살펴주세요.",
		},
		{
			ID:          InLaws,
			Label:       "고부/장서 갈등",
			Title:       "고부/장서",
			Description: "배우자의 가족과의 관계",
			Instruction: "현재 내담자는 '고부/장서 갈등'으로 힘들어합니다. 가족 간의 경계 설정과 문화적 차이 등을 고려해주세요.",
		},
		{
			ID:          Divorce,
			Label:       "이혼/재혼 상담",
			Title:       "이혼/재혼",
			Description: "가족 형태의 변화와 적응",
			Instruction: "현재 내담자는 '이혼/재혼' 문제로 고민합니다. 법률적 조언보다는 정서적 지지와 혼란스러운 감정을 정리하는 데 집중하세요.",
		},
	}
}

// Greeting is the opening model message shown when a session starts.
func Greeting(t Topic) string {
	return fmt.Sprintf("안녕하세요. 마음이음 상담소입니다. \n\n'%s' 문제로 찾아오셨군요. \n지금 느끼시는 감정이나 겪고 계신 상황을 편안하게 말씀해 주시겠어요? 제가 곁에서 귀 기울여 듣겠습니다.", t.Label)
}
