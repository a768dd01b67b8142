package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rpgsheets/backend/internal/domain/generation"
	"go.uber.org/zap"
)

// CharacterModel is the GORM model for the characters table. The table is
// owned by the character editor; this service only reads it.
type CharacterModel struct {
	ID             uuid.UUID `gorm:"type:uuid;primary_key"`
	OwnerID        uuid.UUID `gorm:"column:owner_id;type:uuid;not null;index"`
	Name           string    `gorm:"type:varchar(200)"`
	SystemCode     string    `gorm:"column:system_code;type:varchar(50)"`
	Playbook       string    `gorm:"type:varchar(100)"`
	AttributesJSON string    `gorm:"column:attributes;type:jsonb"`
	SkillsJSON     string    `gorm:"column:skills;type:jsonb"`
	MovesJSON      string    `gorm:"column:moves;type:jsonb"`
	ConditionsJSON string    `gorm:"column:conditions;type:jsonb"`
	ExtraJSON      string    `gorm:"column:extra;type:jsonb"`
	Harm           int       `gorm:"not null;default:0"`
	Experience     int       `gorm:"not null;default:0"`
	Look           string    `gorm:"type:text"`
	Origin         string    `gorm:"type:text"`
	Notes          string    `gorm:"type:text"`
	CreatedAt      time.Time `gorm:"not null"`
	UpdatedAt      time.Time `gorm:"not null"`
}

// TableName returns the table name for CharacterModel
func (CharacterModel) TableName() string {
	return "characters"
}

// ToDomain converts the model to the read-only domain Character. Malformed
// JSON columns are logged and treated as empty so rendering can proceed.
func (m *CharacterModel) ToDomain() *generation.Character {
	c := &generation.Character{
		ID:         m.ID,
		OwnerID:    m.OwnerID,
		Name:       m.Name,
		SystemCode: generation.SystemCode(m.SystemCode),
		Playbook:   m.Playbook,
		Attributes: map[string]int{},
		Skills:     []string{},
		Moves:      []generation.Move{},
		Conditions: []string{},
		Extra:      map[string]string{},
		Harm:       m.Harm,
		Experience: m.Experience,
		Look:       m.Look,
		Origin:     m.Origin,
		Notes:      m.Notes,
	}

	decode := func(column, raw string, dst any) {
		if raw == "" || raw == "null" {
			return
		}
		if err := json.Unmarshal([]byte(raw), dst); err != nil {
			modelLogger.Warn("failed to parse character column",
				zap.String("character_id", m.ID.String()),
				zap.String("column", column),
				zap.Error(err))
		}
	}
	decode("attributes", m.AttributesJSON, &c.Attributes)
	decode("skills", m.SkillsJSON, &c.Skills)
	decode("moves", m.MovesJSON, &c.Moves)
	decode("conditions", m.ConditionsJSON, &c.Conditions)
	decode("extra", m.ExtraJSON, &c.Extra)

	return c
}

// CharacterModelFromDomain creates a CharacterModel from a domain Character.
// Used by seeding and tests.
func CharacterModelFromDomain(c *generation.Character, now time.Time) *CharacterModel {
	encode := func(v any, empty string) string {
		b, err := json.Marshal(v)
		if err != nil || string(b) == "null" {
			return empty
		}
		return string(b)
	}
	return &CharacterModel{
		ID:             c.ID,
		OwnerID:        c.OwnerID,
		Name:           c.Name,
		SystemCode:     string(c.SystemCode),
		Playbook:       c.Playbook,
		AttributesJSON: encode(c.Attributes, "{}"),
		SkillsJSON:     encode(c.Skills, "[]"),
		MovesJSON:      encode(c.Moves, "[]"),
		ConditionsJSON: encode(c.Conditions, "[]"),
		ExtraJSON:      encode(c.Extra, "{}"),
		Harm:           c.Harm,
		Experience:     c.Experience,
		Look:           c.Look,
		Origin:         c.Origin,
		Notes:          c.Notes,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}
