// Package errmsg provides consistent error formatting for user-facing messages.
package errmsg

import "fmt"

// Op represents an operation that can fail.
type Op string

const (
	// Playback control
	OpPlaybackStart  Op = "start playback"
	OpPlaybackPause  Op = "pause playback"
	OpPlaybackResume Op = "resume playback"
	OpPlaybackStop   Op = "stop playback"
	OpPlaybackSeek   Op = "seek"

	// Session outcome
	OpPlaybackFetch  Op = "fetch media"
	OpPlaybackDecode Op = "decode media"

	// History
	OpHistoryOpen   Op = "open playback history"
	OpHistoryRecord Op = "record playback"
	OpHistoryLoad   Op = "load playback history"
	OpHistoryClear  Op = "clear playback history"

	// Companion server
	OpServe     Op = "serve media"
	OpFileOpen  Op = "open media file"
	OpAudioInit Op = "initialize audio output"

	OpConfigLoad Op = "load configuration"
)

// Format creates a user-friendly error message.
func Format(op Op, err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf("Failed to %s: %v", op, err)
}

// FormatWith creates an error message naming the subject of the operation,
// typically a URL or a path.
func FormatWith(op Op, subject string, err error) string {
	if err == nil {
		return ""
	}
	if subject == "" {
		return Format(op, err)
	}
	return fmt.Sprintf("Failed to %s '%s': %v", op, subject, err)
}
