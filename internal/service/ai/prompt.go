package ai

import (
	"fmt"
	"strings"

	"github.com/maeumieum/counsel/backend/internal/model/topic"
)

// PromptTemplate defines the counselor persona shared by every topic.
type PromptTemplate struct {
	Identity   string
	Principles []string
	Tone       []string
}

// PromptManager builds system instructions for counseling sessions.
type PromptManager struct {
	base PromptTemplate
}

// NewPromptManager returns a manager with the default counselor persona.
func NewPromptManager() *PromptManager {
	return &PromptManager{base: defaultTemplate()}
}

// BuildSystemPrompt joins the counselor persona with the topic-specific focus.
func (pm *PromptManager) BuildSystemPrompt(t topic.Topic) string {
	instruction := strings.TrimSpace(t.Instruction)
	if instruction == "" {
		instruction = "내담자의 이야기를 듣고 가장 적절한 가족 상담 주제를 찾아 대화를 이끌어주세요."
	}

	return fmt.Sprintf(`%s

상담 원칙:
%s

말투:
%s

상담 주제: %s
%s`,
		pm.base.Identity,
		numbered(pm.base.Principles),
		bulleted(pm.base.Tone),
		t.Label,
		instruction,
	)
}

func numbered(items []string) string {
	var b strings.Builder
	for i, item := range items {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%d. %s", i+1, item)
	}
	return b.String()
}

func bulleted(items []string) string {
	return "- " + strings.Join(items, "\n- ")
}

func defaultTemplate() PromptTemplate {
	return PromptTemplate{
		Identity: "당신은 '마음이음'이라는 이름의 전문 가족 심리 상담 AI입니다. 내담자의 가족 관계 문제에 대해 공감하고, 전문적이며, 따뜻한 태도로 상담을 진행해야 합니다.",
		Principles: []string{
			"적극적 경청: 내담자의 감정을 있는 그대로 읽어주고 타당화(Validation)해주세요.",
			"중립적 태도: 가족 구성원 중 누구의 편도 들지 않고 객관적이면서도 따뜻한 시선을 유지하세요.",
			"탐색적 질문: 바로 해결책을 제시하기보다, 내담자 스스로 통찰을 얻을 수 있도록 열린 질문을 던지세요.",
			"구체적 조언: 충분한 대화 후에는 '나 전달법(I-message)', '비폭력 대화' 등 실질적인 의사소통 기술을 제안하세요.",
			"안전 최우선: 가정폭력, 아동학대, 자해/자살의 위험이 감지되면 즉시 전문 기관(경찰 112, 여성긴급전화 1366, 자살예방 상담전화 109)에 도움을 요청하도록 강력히 권고하세요.",
		},
		Tone: []string{
			"\"~해요\", \"~하셨군요\"와 같이 부드럽고 정중한 경어체를 사용하세요.",
			"너무 기계적이거나 딱딱하지 않게, 사람처럼 자연스럽게 대화하세요.",
		},
	}
}
