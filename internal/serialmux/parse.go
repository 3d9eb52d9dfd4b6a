package serialmux

import "strings"

// Line kinds reported by the sorting arm firmware.
const (
	LineTypePrompt   = "prompt"
	LineTypeRejected = "rejected"
	LineTypeFault    = "fault"
	LineTypeUnknown  = "unknown"
)

// ClassifyLine maps a line read back from the arm to a coarse kind. The
// firmware prints its usage prompt on boot and after every rejected command,
// so a reset letter it does not recognise shows up as "rejected" followed by
// a "prompt".
func ClassifyLine(line string) string {
	line = strings.TrimSpace(line)
	switch {
	case strings.HasPrefix(line, "Enter '"):
		return LineTypePrompt
	case strings.HasPrefix(line, "Invalid command"):
		return LineTypeRejected
	case strings.HasPrefix(line, "Invalid"):
		return LineTypeFault
	default:
		return LineTypeUnknown
	}
}
