// Package summary turns a diary conversation into a SummaryData record.
package summary

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/zhouzirui/mood-diary/backend/internal/model/chat"
	"github.com/zhouzirui/mood-diary/backend/internal/model/diary"
)

// Completer sends one system + user exchange to the chat-completion endpoint.
// *ai.Service implements it.
type Completer interface {
	Complete(ctx context.Context, system, query string) (string, error)
}

// Line prefixes the model is asked to answer with.
const (
	PrefixSummary     = "요약:"
	PrefixKeywords    = "감정키워드:"
	PrefixEmotions    = "추천감정:"
	PrefixActionItems = "액션아이템:"
	PrefixMusicPrompt = "음악프롬프트:"
	PrefixMusicStyle  = "음악스타일:"
	PrefixMusicTitle  = "음악제목:"
)

const systemPrompt = "당신은 사용자의 대화를 감정 일기로 정리하는 도우미입니다. 요청한 형식 외의 문장은 쓰지 마세요."

// Service extracts summaries. A nil completer always yields the default.
type Service struct {
	completer Completer
}

// NewService creates a summarizer.
func NewService(completer Completer) *Service {
	return &Service{completer: completer}
}

// Summarize asks the model for the seven labeled fields. A transcript without
// user turns never reaches the endpoint. Any endpoint failure yields the whole
// default rather than a partial record; there is no retry.
func (s *Service) Summarize(ctx context.Context, mood diary.Mood, transcript []chat.Message) diary.SummaryData {
	userTurns := chat.UserMessages(transcript)
	if len(userTurns) == 0 {
		return diary.DefaultSummary()
	}
	if s == nil || s.completer == nil {
		log.Info("summarizer not configured, using default summary")
		return diary.DefaultSummary()
	}

	raw, err := s.completer.Complete(ctx, systemPrompt, BuildPrompt(mood, userTurns))
	if err != nil {
		log.Warn("summary request failed, using default summary", "err", err)
		return diary.DefaultSummary()
	}
	return Parse(raw)
}

// BuildPrompt embeds the user-authored lines of the transcript and requests the fixed format.
func BuildPrompt(mood diary.Mood, transcript []chat.Message) string {
	var b strings.Builder

	fmt.Fprintf(&b, "오늘의 기분: %s\n\n", mood.Label())
	b.WriteString("아래는 사용자가 오늘 하루에 대해 이야기한 내용입니다.\n")
	for _, msg := range transcript {
		if msg.Role != chat.RoleUser {
			continue
		}
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}
		b.WriteString("- ")
		b.WriteString(content)
		b.WriteString("\n")
	}

	b.WriteString("\n다음 형식으로 정확히 일곱 줄만 답하세요. 목록은 쉼표로 구분하세요.\n")
	fmt.Fprintf(&b, "%s 오늘 하루를 2~3문장으로 요약\n", PrefixSummary)
	fmt.Fprintf(&b, "%s 감정 키워드 3~5개\n", PrefixKeywords)
	fmt.Fprintf(&b, "%s 사용자가 고를 만한 감정 단어 2~4개\n", PrefixEmotions)
	fmt.Fprintf(&b, "%s 내일을 위한 작은 실천 1~3개\n", PrefixActionItems)
	fmt.Fprintf(&b, "%s 오늘의 감정을 담은 영어 음악 생성 프롬프트 한 문장\n", PrefixMusicPrompt)
	fmt.Fprintf(&b, "%s 영어 음악 장르/스타일 태그 (예: lo-fi, acoustic, piano)\n", PrefixMusicStyle)
	fmt.Fprintf(&b, "%s 음악 제목 (한국어, 20자 이내)\n", PrefixMusicTitle)
	return b.String()
}

// Parse reads the line-prefixed answer. Fields that are missing or empty keep
// their default value.
func Parse(raw string) diary.SummaryData {
	out := diary.DefaultSummary()

	for _, line := range strings.Split(raw, "\n") {
		line = normalizeLine(line)
		if line == "" {
			continue
		}

		if v, ok := cut(line, PrefixSummary); ok {
			out.Summary = v
		} else if v, ok := cut(line, PrefixKeywords); ok {
			out.Keywords = splitList(v, out.Keywords)
		} else if v, ok := cut(line, PrefixEmotions); ok {
			out.RecommendedEmotions = splitList(v, out.RecommendedEmotions)
		} else if v, ok := cut(line, PrefixActionItems); ok {
			out.ActionItems = splitList(v, out.ActionItems)
		} else if v, ok := cut(line, PrefixMusicPrompt); ok {
			out.MusicPrompt = v
		} else if v, ok := cut(line, PrefixMusicStyle); ok {
			out.MusicStyle = v
		} else if v, ok := cut(line, PrefixMusicTitle); ok {
			out.MusicTitle = v
		}
	}
	return out
}

// normalizeLine drops list markers, markdown emphasis and full-width colons.
func normalizeLine(line string) string {
	line = strings.TrimSpace(line)
	line = strings.TrimLeft(line, "-*•· ")
	line = strings.ReplaceAll(line, "**", "")
	line = strings.Replace(line, "：", ":", 1)
	return strings.TrimSpace(line)
}

func cut(line, prefix string) (string, bool) {
	label := strings.TrimSuffix(prefix, ":")
	rest, ok := strings.CutPrefix(line, label)
	if !ok {
		return "", false
	}
	rest = strings.TrimSpace(rest)
	rest, ok = strings.CutPrefix(rest, ":")
	if !ok {
		return "", false
	}
	rest = strings.Trim(strings.TrimSpace(rest), `"`)
	return rest, rest != ""
}

func splitList(raw string, fallback []string) []string {
	parts := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == '，' || r == '、' || r == '/'
	})
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.Trim(strings.TrimSpace(p), "#\""); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
