package music

import "strings"

// MapVendorStatus folds the vocabulary of the music vendor (and its callback
// payloads) onto the canonical states. Unknown values keep the task polling.
func MapVendorStatus(raw string) Status {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "SUCCESS", "FIRST_SUCCESS", "COMPLETE", "COMPLETED":
		return StatusCompleted
	case "PENDING", "QUEUED", "SUBMITTED", "":
		return StatusPending
	case "PROCESSING", "TEXT_SUCCESS", "RUNNING", "STREAMING", "TEXT", "FIRST":
		return StatusProcessing
	case "FAILED", "ERROR", "CREATE_TASK_FAILED", "GENERATE_AUDIO_FAILED",
		"CALLBACK_EXCEPTION", "SENSITIVE_WORD_ERROR":
		return StatusFailed
	default:
		return StatusProcessing
	}
}
