// Package tutoring models a single voice/text tutoring conversation as an
// explicit session object owned by its caller. Provider specifics sit behind
// the Transport interface; the session only tracks state, transcript and
// events.
package tutoring

import (
	"fmt"
	"strings"

	"github.com/notewise/notewise-backend/internal/domain/shared"
)

// Mode selects how the tutor uses the student's notes.
type Mode string

const (
	ModeQuestion    Mode = "question"
	ModeExplanation Mode = "explanation"
	ModeSummary     Mode = "summary"
	ModePractice    Mode = "practice"
)

// Modes lists the supported study modes.
func Modes() []Mode {
	return []Mode{ModeQuestion, ModeExplanation, ModeSummary, ModePractice}
}

// IsValid checks if the mode is supported.
func (m Mode) IsValid() bool {
	switch m {
	case ModeQuestion, ModeExplanation, ModeSummary, ModePractice:
		return true
	}
	return false
}

// ParseMode parses a mode name. An empty string selects ModeQuestion.
func ParseMode(s string) (Mode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ModeQuestion, nil
	}
	m := Mode(s)
	if !m.IsValid() {
		return "", shared.ErrInvalidMode
	}
	return m, nil
}

// Instructions returns the tutor behavior for the mode.
func (m Mode) Instructions() string {
	switch m {
	case ModeExplanation:
		return "Explain the concepts in the notes step by step, checking understanding after each step."
	case ModeSummary:
		return "Summarize the notes into the key points and ask which point the student wants to go deeper on."
	case ModePractice:
		return "Give the student practice problems based on the notes, one at a time, and give feedback on each answer."
	default:
		return "Answer the student's questions using the notes. Ask a short follow-up question to keep them engaged."
	}
}

// maxNotesChars bounds how much of the notes goes into the system prompt.
const maxNotesChars = 12000

// SystemPrompt builds the system prompt for a session over notes.
func SystemPrompt(mode Mode, notes string) string {
	notes = strings.TrimSpace(notes)
	if len(notes) > maxNotesChars {
		notes = strings.ToValidUTF8(notes[:maxNotesChars], "")
	}

	var b strings.Builder
	b.WriteString("You are NoteWise, a patient study tutor. Keep answers short enough to be spoken aloud.\n")
	fmt.Fprintf(&b, "Mode: %s. %s\n", mode, mode.Instructions())
	if notes != "" {
		b.WriteString("Student notes:\n")
		b.WriteString(notes)
	}
	return b.String()
}
