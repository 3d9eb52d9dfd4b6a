package detection

import (
	"fmt"
	"sort"
	"strings"

	"github.com/banshee-data/sort.station/internal/security"
)

// DefaultResetCode is sent when no detection maps to an action.
const DefaultResetCode byte = 'R'

// Reserved outcome labels. NoneLabel is what the ledger reports after a
// capture that selected nothing; UnknownLabel names archive files and folders
// when there is no label at all. Neither may be an actionable label.
const (
	NoneLabel    = "None"
	UnknownLabel = "unknown"
)

// ActionMap maps a model label to the single-letter command the sorting arm
// understands. It is built once at startup and never mutated.
type ActionMap struct {
	codes map[string]byte
	order []string
	reset byte
}

// DefaultActionMap returns the stock waste-sorting table.
func DefaultActionMap() ActionMap {
	m, _ := NewActionMap(map[string]string{
		"plastic": "A",
		"glass":   "G",
		"metal":   "M",
		"paper":   "P",
	}, DefaultResetCode)
	return m
}

// NewActionMap validates raw label→code pairs. Codes must be one printable
// ASCII letter and must not collide with the reset code. Labels end up in
// archive file and folder names, so each must be a single path component and
// must not be one of the reserved outcome labels.
func NewActionMap(raw map[string]string, reset byte) (ActionMap, error) {
	if !isCommandLetter(reset) {
		return ActionMap{}, fmt.Errorf("reset code %q must be a single ASCII letter", reset)
	}
	if len(raw) == 0 {
		return ActionMap{}, fmt.Errorf("action map must contain at least one label")
	}

	m := ActionMap{codes: make(map[string]byte, len(raw)), reset: reset}
	for label, code := range raw {
		if label == "" {
			return ActionMap{}, fmt.Errorf("action map contains an empty label")
		}
		if err := security.ValidatePathComponent(label); err != nil {
			return ActionMap{}, fmt.Errorf("label %q cannot name archive files: %w", label, err)
		}
		if strings.EqualFold(label, NoneLabel) || strings.EqualFold(label, UnknownLabel) {
			return ActionMap{}, fmt.Errorf("label %q is reserved", label)
		}
		if len(code) != 1 || !isCommandLetter(code[0]) {
			return ActionMap{}, fmt.Errorf("code %q for label %q must be a single ASCII letter", code, label)
		}
		if code[0] == reset {
			return ActionMap{}, fmt.Errorf("code %q for label %q collides with the reset code", code, label)
		}
		m.codes[label] = code[0]
		m.order = append(m.order, label)
	}
	sort.Strings(m.order)
	return m, nil
}

func isCommandLetter(b byte) bool {
	return (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z')
}

// Code returns the command letter for label.
func (m ActionMap) Code(label string) (byte, bool) {
	c, ok := m.codes[label]
	return c, ok
}

// Has reports whether label is actionable.
func (m ActionMap) Has(label string) bool {
	_, ok := m.codes[label]
	return ok
}

// Labels returns the actionable labels in sorted order.
func (m ActionMap) Labels() []string {
	return append([]string(nil), m.order...)
}

// Reset returns the command letter sent when nothing is actionable.
func (m ActionMap) Reset() byte {
	if m.reset == 0 {
		return DefaultResetCode
	}
	return m.reset
}

// Len returns the number of actionable labels.
func (m ActionMap) Len() int {
	return len(m.codes)
}
