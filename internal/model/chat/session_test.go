package chat

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/zhouzirui/mood-diary/backend/internal/model/diary"
)

func TestSelectEmotionKeepsAtMostTwo(t *testing.T) {
	s := NewSession("s", "maeum", time.Now())
	for i := 0; i < 10; i++ {
		s.SelectEmotion(fmt.Sprintf("e%d", i))
		assert.LessOrEqual(t, len(s.SelectedEmotions), MaxSelectedEmotions)
	}
	assert.Equal(t, []string{"e8", "e9"}, s.SelectedEmotions)
}

func TestSelectEmotionEvictsOldest(t *testing.T) {
	s := NewSession("s", "maeum", time.Now())
	s.SelectEmotion("기쁨")
	s.SelectEmotion("설렘")
	s.SelectEmotion("피곤")
	assert.Equal(t, []string{"설렘", "피곤"}, s.SelectedEmotions)

	s.SelectEmotion("피곤")
	assert.Equal(t, []string{"설렘", "피곤"}, s.SelectedEmotions)
}

func TestResetRestoresInitialState(t *testing.T) {
	s := NewSession("s", "maeum", time.Now())
	summary := diary.DefaultSummary()
	s.Mood = diary.MoodGood
	s.Stage = StageReady
	s.TurnCount = 3
	s.Messages = append(s.Messages, Message{Role: RoleUser, Content: "hi"})
	s.SelectEmotion("기쁨")
	s.Summary = &summary
	s.MusicTaskID = "task"

	s.Reset()

	fresh := NewSession("s", "maeum", s.CreatedAt)
	assert.Equal(t, fresh, s)
}

func TestCloneDoesNotShareSlices(t *testing.T) {
	s := NewSession("s", "maeum", time.Now())
	s.Messages = append(s.Messages, Message{Role: RoleUser, Content: "a"})
	c := s.Clone()
	c.Messages[0].Content = "b"
	assert.Equal(t, "a", s.Messages[0].Content)
}
