package generation

import "github.com/google/uuid"

// SystemCode identifies the game system a character was built for
type SystemCode string

const (
	SystemMonsterhearts   SystemCode = "monsterhearts"
	SystemApocalypseWorld SystemCode = "apocalypse-world"
	SystemDungeonWorld    SystemCode = "dungeon-world"
	SystemMasks           SystemCode = "masks"
	SystemUrbanShadows    SystemCode = "urban-shadows"
)

// String returns the string representation of SystemCode
func (s SystemCode) String() string {
	return string(s)
}

// Move is a named playbook move
type Move struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Character is the read-only view of a character used for rendering.
// Any field may be zero-valued for draft characters.
type Character struct {
	ID         uuid.UUID
	OwnerID    uuid.UUID
	Name       string
	SystemCode SystemCode
	Playbook   string
	Attributes map[string]int
	Skills     []string
	Moves      []Move
	Conditions []string
	Harm       int
	Experience int
	Look       string
	Origin     string
	Notes      string
	Extra      map[string]string
}

// Attribute returns the named attribute, 0 when unset
func (c *Character) Attribute(name string) int {
	if c == nil || c.Attributes == nil {
		return 0
	}
	return c.Attributes[name]
}
