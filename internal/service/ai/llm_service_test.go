package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/mood-diary/backend/internal/config"
	"github.com/zhouzirui/mood-diary/backend/internal/model/chat"
	"github.com/zhouzirui/mood-diary/backend/internal/model/diary"
	"github.com/zhouzirui/mood-diary/backend/internal/model/persona"
)

type fakeChatModel struct {
	reply string
	err   error
	input []*schema.Message
}

func (f *fakeChatModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	f.input = input
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(f.reply, nil), nil
}

func (f *fakeChatModel) Stream(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	f.input = input
	if f.err != nil {
		return nil, f.err
	}
	var chunks []*schema.Message
	for _, part := range strings.SplitAfter(f.reply, " ") {
		chunks = append(chunks, schema.AssistantMessage(part, nil))
	}
	return schema.StreamReaderFromArray(chunks), nil
}

func (f *fakeChatModel) BindTools(_ []*schema.ToolInfo) error { return nil }

func newTestService(t *testing.T, fake *fakeChatModel, stream bool) *Service {
	t.Helper()
	svc, err := NewServiceWithModel(context.Background(), fake, config.AIConfig{StreamResponse: stream})
	require.NoError(t, err)
	return svc
}

func transcript(n int) []chat.Message {
	msgs := make([]chat.Message, 0, n)
	for i := 0; i < n; i++ {
		role := chat.RoleUser
		if i%2 == 1 {
			role = chat.RoleAssistant
		}
		msgs = append(msgs, chat.Message{Role: role, Content: fmt.Sprintf("m%d", i)})
	}
	return msgs
}

func TestReplySendsLastFivePriorMessages(t *testing.T) {
	fake := &fakeChatModel{reply: "반가워!"}
	svc := newTestService(t, fake, false)
	p := persona.Seed()[0]

	got, err := svc.Reply(context.Background(), ReplyInput{
		Persona:    &p,
		Mood:       diary.MoodGood,
		TurnNumber: 4,
		History:    transcript(8),
		Message:    "오늘 좋았어",
	})
	require.NoError(t, err)
	assert.Equal(t, "반가워!", got)

	// system + 5 history + new user message
	require.Len(t, fake.input, 7)
	assert.Equal(t, schema.System, fake.input[0].Role)
	assert.Equal(t, "m3", fake.input[1].Content)
	assert.Equal(t, "m7", fake.input[5].Content)
	assert.Equal(t, schema.User, fake.input[6].Role)
	assert.Equal(t, "오늘 좋았어", fake.input[6].Content)
}

func TestReplyPropagatesModelError(t *testing.T) {
	fake := &fakeChatModel{err: errors.New("boom")}
	svc := newTestService(t, fake, false)

	_, err := svc.Reply(context.Background(), ReplyInput{Mood: diary.MoodBad, TurnNumber: 1, Message: "hi"})
	require.Error(t, err)
}

func TestReplyRejectsEmptyCompletion(t *testing.T) {
	svc := newTestService(t, &fakeChatModel{reply: "  "}, false)
	_, err := svc.Reply(context.Background(), ReplyInput{TurnNumber: 1, Message: "hi"})
	require.Error(t, err)
}

func TestCompleteHasNoHistory(t *testing.T) {
	fake := &fakeChatModel{reply: "요약: 좋은 하루"}
	svc := newTestService(t, fake, false)

	got, err := svc.Complete(context.Background(), "system", "query")
	require.NoError(t, err)
	assert.Equal(t, "요약: 좋은 하루", got)
	require.Len(t, fake.input, 2)
	assert.Equal(t, "query", fake.input[1].Content)
}

func TestStreamReply(t *testing.T) {
	fake := &fakeChatModel{reply: "오늘 정말 수고했어"}

	disabled := newTestService(t, fake, false)
	_, err := disabled.StreamReply(context.Background(), ReplyInput{TurnNumber: 1, Message: "hi"})
	require.Error(t, err)

	svc := newTestService(t, fake, true)
	stream, err := svc.StreamReply(context.Background(), ReplyInput{TurnNumber: 1, Message: "hi"})
	require.NoError(t, err)
	defer stream.Close()

	var b strings.Builder
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		b.WriteString(chunk.Content)
	}
	assert.Equal(t, "오늘 정말 수고했어", b.String())
}

func TestNewServiceWithModelRequiresModel(t *testing.T) {
	_, err := NewServiceWithModel(context.Background(), nil, config.AIConfig{})
	require.Error(t, err)
}
