package diary

// SummaryData is what the summarizer extracts from one session's transcript.
type SummaryData struct {
	Summary             string   `json:"summary"`
	Keywords            []string `json:"keywords"`
	RecommendedEmotions []string `json:"recommendedEmotions"`
	ActionItems         []string `json:"actionItems"`
	MusicPrompt         string   `json:"musicPrompt"`
	MusicStyle          string   `json:"musicStyle"`
	MusicTitle          string   `json:"musicTitle"`
}

// DefaultSummary is used field-by-field when the model omits a field, and as a
// whole when summarization is skipped or fails.
func DefaultSummary() SummaryData {
	return SummaryData{
		Summary:             "오늘 하루의 이야기를 나누었어요.",
		Keywords:            []string{"일상", "감정"},
		RecommendedEmotions: []string{"평온", "기대"},
		ActionItems:         []string{"충분히 쉬어 주세요"},
		MusicPrompt:         "A calm and warm instrumental piece reflecting an ordinary day",
		MusicStyle:          "ambient, lo-fi, piano",
		MusicTitle:          "오늘의 마음",
	}
}

// Clone returns a copy that shares no slices with s.
func (s SummaryData) Clone() SummaryData {
	out := s
	out.Keywords = append([]string{}, s.Keywords...)
	out.RecommendedEmotions = append([]string{}, s.RecommendedEmotions...)
	out.ActionItems = append([]string{}, s.ActionItems...)
	return out
}
