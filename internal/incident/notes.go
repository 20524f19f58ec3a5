package incident

import (
	"strings"
	"time"
)

const noteStampLayout = "2006-01-02 15:04"

// Note is one entry of the note_laser log.
type Note struct {
	At   time.Time `json:"at"`
	Text string    `json:"text"`
}

// EncodeNotes renders entries as "[YYYY-MM-DD HH:MM] text" lines. Entries
// without a timestamp are written bare.
func EncodeNotes(notes []Note) string {
	lines := make([]string, 0, len(notes))
	for _, n := range notes {
		text := strings.TrimSpace(n.Text)
		if text == "" {
			continue
		}
		if n.At.IsZero() {
			lines = append(lines, text)
			continue
		}
		lines = append(lines, "["+n.At.UTC().Format(noteStampLayout)+"] "+text)
	}
	return strings.Join(lines, "\n")
}

// DecodeNotes parses a stored log. A line without a stamp continues the
// previous entry; a leading unstamped line becomes an entry with zero time.
func DecodeNotes(blob string) []Note {
	if strings.TrimSpace(blob) == "" {
		return nil
	}
	var notes []Note
	for _, line := range strings.Split(blob, "\n") {
		if at, text, ok := parseNoteLine(line); ok {
			notes = append(notes, Note{At: at, Text: text})
			continue
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		if len(notes) == 0 {
			notes = append(notes, Note{Text: line})
			continue
		}
		last := &notes[len(notes)-1]
		last.Text += "\n" + line
	}
	return notes
}

// AppendNote adds one entry to the end of a stored log.
func AppendNote(blob string, at time.Time, text string) string {
	notes := DecodeNotes(blob)
	notes = append(notes, Note{At: at, Text: text})
	return EncodeNotes(notes)
}

func parseNoteLine(line string) (time.Time, string, bool) {
	if !strings.HasPrefix(line, "[") {
		return time.Time{}, "", false
	}
	end := strings.Index(line, "]")
	if end < 0 {
		return time.Time{}, "", false
	}
	at, err := time.Parse(noteStampLayout, line[1:end])
	if err != nil {
		return time.Time{}, "", false
	}
	return at, strings.TrimSpace(line[end+1:]), true
}
