package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rpgsheets/backend/internal/domain/generation"
	"github.com/rpgsheets/backend/internal/domain/shared"
	"github.com/rpgsheets/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormCharacterStore reads characters from the characters table
type GormCharacterStore struct {
	db *gorm.DB
}

// NewGormCharacterStore creates a new GormCharacterStore
func NewGormCharacterStore(db *gorm.DB) *GormCharacterStore {
	return &GormCharacterStore{db: db}
}

// FindByID finds a character by ID
func (s *GormCharacterStore) FindByID(ctx context.Context, id uuid.UUID) (*generation.Character, error) {
	var model models.CharacterModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.NewDomainError(shared.CodeNotFound, "Character not found")
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Save upserts a character. The editor owns this table in production; Save
// backs seeding and tests.
func (s *GormCharacterStore) Save(ctx context.Context, c *generation.Character) error {
	model := models.CharacterModelFromDomain(c, time.Now().UTC())
	return s.db.WithContext(ctx).Save(model).Error
}

var _ generation.CharacterStore = (*GormCharacterStore)(nil)
