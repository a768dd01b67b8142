package sheets

import (
	"slices"
	"strings"

	"github.com/rpgsheets/backend/internal/domain/generation"
)

// Placeholder is shown for missing text fields
const Placeholder = "—"

// DefaultName is used when the character has no name
const DefaultName = "Unnamed Character"

const (
	// minGenericTrack and maxTrack bound checkbox rows built from character data
	minGenericTrack = 5
	maxTrack        = 20
)

// Stat is one labelled numeric attribute
type Stat struct {
	Key   string
	Label string
	Value int
}

// Field is a labelled free-text value
type Field struct {
	Label string
	Value string
}

// Sheet is the view model every layout template renders.
type Sheet struct {
	Title        string
	DocumentType string
	SystemName   string
	Name         string
	Playbook     string
	Stats        []Stat
	Skills       []string
	Moves        []generation.Move
	Conditions   []string
	HarmLabel    string
	HarmTrack    []bool
	Harm         int
	XPTrack      []bool
	Experience   int
	Look         string
	Origin       string
	Notes        string
	Fields       []Field
}

// textOr returns s trimmed, or Placeholder when empty
func textOr(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return Placeholder
	}
	return s
}

// track builds a row of checkboxes with the first filled boxes ticked.
// Rows never exceed maxTrack boxes.
func track(size, filled int) []bool {
	if size <= 0 {
		return []bool{}
	}
	size = min(size, maxTrack)
	boxes := make([]bool, size)
	for i := 0; i < size && i < filled; i++ {
		boxes[i] = true
	}
	return boxes
}

// nonEmpty drops blank entries so templates never print empty bullets
func nonEmpty(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s := strings.TrimSpace(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func namedMoves(moves []generation.Move) []generation.Move {
	out := make([]generation.Move, 0, len(moves))
	for _, m := range moves {
		name := strings.TrimSpace(m.Name)
		if name == "" {
			continue
		}
		out = append(out, generation.Move{Name: name, Description: strings.TrimSpace(m.Description)})
	}
	return out
}

// extraFields returns the character's extra fields sorted by key, skipping
// keys already shown by the system layout.
func extraFields(extra map[string]string, skip ...string) []Field {
	keys := make([]string, 0, len(extra))
	for k := range extra {
		if !slices.Contains(skip, k) {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)

	fields := make([]Field, 0, len(keys))
	for _, k := range keys {
		fields = append(fields, Field{Label: labelFor(k), Value: textOr(extra[k])})
	}
	return fields
}
