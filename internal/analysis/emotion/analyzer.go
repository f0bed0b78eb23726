package emotion

import (
	"strings"
)

// Label is the emotion category detected in a diary conversation.
type Label string

const (
	Neutral Label = "neutral"
	Joy     Label = "joy"
	Calm    Label = "calm"
	Sad     Label = "sad"
	Angry   Label = "angry"
	Anxious Label = "anxious"
	Tired   Label = "tired"
)

// Decision is the detected label and its score.
type Decision struct {
	Emotion Label
	Score   int
}

var keywordBuckets = map[Label][]string{
	Joy: {
		"기뻐", "기쁘", "행복", "신나", "좋았", "최고", "웃었", "뿌듯", "설레", "감사", "고마",
		"happy", "great", "awesome", "glad", "excited", "love",
	},
	Calm: {
		"평온", "편안", "여유", "차분", "느긋", "쉬었", "산책", "잔잔", "괜찮았",
		"calm", "relaxed", "peaceful", "chill",
	},
	Sad: {
		"슬퍼", "슬프", "우울", "눈물", "울었", "외로", "허전", "속상", "서운", "그리워",
		"sad", "lonely", "cry", "depressed", "upset",
	},
	Angry: {
		"화나", "화가", "짜증", "열받", "억울", "빡치", "분노", "싫어",
		"angry", "annoyed", "furious", "mad",
	},
	Anxious: {
		"불안", "걱정", "긴장", "무서", "초조", "떨려", "막막", "두려",
		"anxious", "worried", "nervous", "scared",
	},
	Tired: {
		"피곤", "지쳐", "지친", "힘들", "졸려", "녹초", "번아웃", "야근", "무기력",
		"tired", "exhausted", "sleepy", "burnout",
	},
}

// labelNames maps labels to the words used in prompts and diary entries.
var labelNames = map[Label]string{
	Neutral: "무난함",
	Joy:     "기쁨",
	Calm:    "평온",
	Sad:     "슬픔",
	Angry:   "분노",
	Anxious: "불안",
	Tired:   "피곤",
}

// Korean returns the display word of the label.
func (l Label) Korean() string {
	if name, ok := labelNames[l]; ok {
		return name
	}
	return labelNames[Neutral]
}

// Analyze infers the emotion of one user utterance.
func Analyze(utterance string) Decision {
	normalized := strings.TrimSpace(strings.ToLower(utterance))
	if normalized == "" {
		return Decision{Emotion: Neutral}
	}

	scores := make(map[Label]int)
	for label, keywords := range keywordBuckets {
		for _, word := range keywords {
			if strings.Contains(normalized, word) {
				scores[label] += 3
			}
		}
	}

	// Exclamation marks only boost joy when a positive signal is already present.
	if exclamations := strings.Count(utterance, "!"); exclamations > 0 && scores[Joy] > 0 {
		scores[Joy] += exclamations
	}

	best := Neutral
	bestScore := 0
	// Iterate in a fixed order so ties resolve deterministically.
	for _, label := range []Label{Sad, Angry, Anxious, Tired, Joy, Calm} {
		if s := scores[label]; s > bestScore {
			best = label
			bestScore = s
		}
	}

	return Decision{Emotion: best, Score: bestScore}
}
