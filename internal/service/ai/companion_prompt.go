package ai

import (
	"fmt"
	"strings"

	"github.com/zhouzirui/mood-diary/backend/internal/model/diary"
)

// TurnStage is the behavior the companion is instructed to follow on a turn.
type TurnStage string

const (
	StageGreet       TurnStage = "greet"
	StageAcknowledge TurnStage = "acknowledge"
	StageEmpathize   TurnStage = "empathize"
)

// StageForTurn maps the 1-based turn counter onto the instructed behavior.
func StageForTurn(turn int) TurnStage {
	switch {
	case turn <= 1:
		return StageGreet
	case turn == 2:
		return StageAcknowledge
	default:
		return StageEmpathize
	}
}

var stageInstructions = map[TurnStage]string{
	StageGreet:       "첫 대화입니다. 반갑게 인사하고, 선택한 기분을 언급하며 오늘 있었던 일을 가볍게 물어보세요.",
	StageAcknowledge: "사용자의 이야기를 구체적으로 받아 주고, 그때 어떤 기분이었는지 한 가지만 되물어 주세요.",
	StageEmpathize:   "감정에 깊이 공감하고, 판단이나 충고보다 위로를 먼저 건네세요. 필요하면 작은 제안을 하나만 덧붙이세요.",
}

var moodInstructions = map[diary.Mood]string{
	diary.MoodGood:   "사용자는 오늘 기분이 좋다고 했습니다. 그 기쁨을 함께 나누세요.",
	diary.MoodNormal: "사용자는 오늘 기분이 보통이라고 했습니다. 평범한 하루 속 작은 순간을 찾아 주세요.",
	diary.MoodBad:    "사용자는 오늘 기분이 나쁘다고 했습니다. 조심스럽고 다정하게 다가가세요.",
}

// BuildCompanionPrompt assembles the system prompt of one chat turn.
func BuildCompanionPrompt(in ReplyInput) string {
	var b strings.Builder

	p := in.Persona
	if p == nil {
		b.WriteString("당신은 사용자의 하루 이야기를 들어 주는 감정 일기 친구입니다.\n")
	} else {
		fmt.Fprintf(&b, "당신은 %s, %s입니다. 말투: %s.\n", p.Name, p.Title, p.Tone)
		if p.PromptHint != "" {
			b.WriteString(p.PromptHint)
			b.WriteString("\n")
		}
	}

	b.WriteString("\n[오늘의 기분] ")
	b.WriteString(in.Mood.Label())
	if hint, ok := moodInstructions[in.Mood]; ok {
		b.WriteString("\n")
		b.WriteString(hint)
	}

	if len(in.Preferences) > 0 {
		fmt.Fprintf(&b, "\n[음악 취향] %s. 자연스러운 경우에만 가볍게 언급하세요.", strings.Join(in.Preferences, ", "))
	}

	if in.Emotion != "" {
		fmt.Fprintf(&b, "\n[감지된 감정] %s", in.Emotion)
	}

	fmt.Fprintf(&b, "\n\n[대화 %d번째 턴] %s", in.TurnNumber, stageInstructions[StageForTurn(in.TurnNumber)])
	b.WriteString("\n\n답변은 한국어로 2~3문장 이내로 짧게 하세요.")
	return b.String()
}
