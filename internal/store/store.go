// Package store persists characters, relationships, chunks, and run records
// to a relational database through gorm. sqlite backs development and tests,
// postgres backs deployments; both share one schema.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/rowanlight/dramatis/internal/characters"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Chunk is the storage-facing view of one preprocessed text segment.
type Chunk struct {
	Number      int
	Text        string
	StartOffset int
	EndOffset   int
	WordCount   int
}

// Store is the relational read/write contract consumed by the pipeline.
type Store interface {
	// CreateCharacter persists a new profile scoped to the book and returns
	// its assigned identifier.
	CreateCharacter(ctx context.Context, bookID string, p *characters.Profile) (string, error)

	// GetCharacter returns a profile by identifier.
	GetCharacter(ctx context.Context, id string) (*characters.Profile, error)

	// UpdateCharacter overwrites the stored profile for an existing id.
	UpdateCharacter(ctx context.Context, id string, p *characters.Profile) error

	// FindCandidatesByName returns a coarse pre-filtered candidate set for
	// fuzzy scoring: profiles in the book whose normalized key shares a
	// prefix with the query's key.
	FindCandidatesByName(ctx context.Context, bookID, name string) ([]*characters.Profile, error)

	// CreateRelationship records an edge between two characters in a book.
	// The pair is stored in canonical id order; re-inserting an existing
	// pair refreshes kind, strength, and description instead of erroring.
	CreateRelationship(ctx context.Context, bookID, id1, id2 string, kind characters.RelationKind, strength float64, description string) error

	// SaveChunks replaces the stored chunk sequence for a book.
	SaveChunks(ctx context.Context, bookID string, chunks []Chunk) error

	// ClearBook deletes all characters, relationships, and chunks stored for
	// a book. Used by clearExisting re-processing.
	ClearBook(ctx context.Context, bookID string) error

	// CreateRun and FinishRun persist run lifecycle records.
	CreateRun(ctx context.Context, runID, bookID string) error
	SetRunTitle(ctx context.Context, runID, title string) error
	FinishRun(ctx context.Context, runID, status, errMsg string) error
}

// DB implements Store on a gorm connection.
type DB struct {
	db     *gorm.DB
	norm   *characters.Normalizer
	logger *slog.Logger
}

// Config configures a store connection. Set exactly one of SQLitePath or
// PostgresDSN.
type Config struct {
	SQLitePath  string
	PostgresDSN string
	Normalizer  *characters.Normalizer
	Logger      *slog.Logger
}

// Open connects, migrates the schema, and returns the store.
func Open(cfg Config) (*DB, error) {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	norm := cfg.Normalizer
	if norm == nil {
		norm = characters.NewNormalizer(nil)
	}

	var dialector gorm.Dialector
	switch {
	case cfg.PostgresDSN != "":
		dialector = postgres.Open(cfg.PostgresDSN)
	case cfg.SQLitePath != "":
		dialector = sqlite.Open(cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("store: either SQLitePath or PostgresDSN is required")
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}

	if err := db.AutoMigrate(
		&CharacterRecord{},
		&RelationshipRecord{},
		&ChunkRecord{},
		&RunRecord{},
	); err != nil {
		return nil, fmt.Errorf("store: migrate schema: %w", err)
	}

	log.Info("store opened", "backend", dialector.Name())
	return &DB{db: db, norm: norm, logger: log}, nil
}

// CreateCharacter persists a new profile and returns its identifier.
func (s *DB) CreateCharacter(ctx context.Context, bookID string, p *characters.Profile) (string, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encode profile: %w", err)
	}
	rec := CharacterRecord{
		ID:       p.ID,
		BookID:   bookID,
		Name:     p.Name,
		NameKey:  s.norm.Key(p.Name),
		Mentions: p.Mentions,
		Profile:  string(raw),
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return "", fmt.Errorf("create character: %w", err)
	}
	return rec.ID, nil
}

// GetCharacter returns the decoded profile for an id.
func (s *DB) GetCharacter(ctx context.Context, id string) (*characters.Profile, error) {
	var rec CharacterRecord
	err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: character %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get character: %w", err)
	}
	return decodeProfile(&rec)
}

// UpdateCharacter overwrites the stored profile for an existing id.
func (s *DB) UpdateCharacter(ctx context.Context, id string, p *characters.Profile) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	res := s.db.WithContext(ctx).Model(&CharacterRecord{}).Where("id = ?", id).Updates(map[string]any{
		"name":     p.Name,
		"name_key": s.norm.Key(p.Name),
		"mentions": p.Mentions,
		"profile":  string(raw),
	})
	if res.Error != nil {
		return fmt.Errorf("update character: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: character %s", ErrNotFound, id)
	}
	return nil
}

// FindCandidatesByName is the coarse pre-filter before fuzzy scoring. It
// matches on a short prefix of the normalized key, which over-selects by
// design; the resolver does the precise work.
func (s *DB) FindCandidatesByName(ctx context.Context, bookID, name string) ([]*characters.Profile, error) {
	key := s.norm.Key(name)
	if key == "" {
		return nil, nil
	}
	prefix := key
	if r := []rune(key); len(r) > 3 {
		prefix = string(r[:3])
	}

	var recs []CharacterRecord
	err := s.db.WithContext(ctx).
		Where("book_id = ? AND name_key LIKE ?", bookID, prefix+"%").
		Order("mentions DESC").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("find candidates: %w", err)
	}

	out := make([]*characters.Profile, 0, len(recs))
	for i := range recs {
		p, err := decodeProfile(&recs[i])
		if err != nil {
			s.logger.Warn("skipping undecodable profile", "id", recs[i].ID, "error", err)
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// CreateRelationship stores the edge under the canonical pair ordering.
func (s *DB) CreateRelationship(ctx context.Context, bookID, id1, id2 string, kind characters.RelationKind, strength float64, description string) error {
	if id1 == "" || id2 == "" || id1 == id2 {
		return fmt.Errorf("create relationship: invalid pair (%q, %q)", id1, id2)
	}
	if id2 < id1 {
		id1, id2 = id2, id1
	}
	rec := RelationshipRecord{
		FromID:      id1,
		ToID:        id2,
		BookID:      bookID,
		Kind:        string(kind),
		Strength:    strength,
		Description: description,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "from_id"}, {Name: "to_id"}, {Name: "book_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"kind", "strength", "description", "updated_at"}),
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("create relationship: %w", err)
	}
	return nil
}

// SaveChunks replaces the stored chunk sequence for a book.
func (s *DB) SaveChunks(ctx context.Context, bookID string, chunks []Chunk) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("book_id = ?", bookID).Delete(&ChunkRecord{}).Error; err != nil {
			return fmt.Errorf("clear chunks: %w", err)
		}
		for _, c := range chunks {
			rec := ChunkRecord{
				BookID:      bookID,
				Number:      c.Number,
				Text:        c.Text,
				StartOffset: c.StartOffset,
				EndOffset:   c.EndOffset,
				WordCount:   c.WordCount,
			}
			if err := tx.Create(&rec).Error; err != nil {
				return fmt.Errorf("save chunk %d: %w", c.Number, err)
			}
		}
		return nil
	})
}

// ClearBook removes all analysis output stored for a book.
func (s *DB) ClearBook(ctx context.Context, bookID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, model := range []any{&RelationshipRecord{}, &CharacterRecord{}, &ChunkRecord{}} {
			if err := tx.Where("book_id = ?", bookID).Delete(model).Error; err != nil {
				return fmt.Errorf("clear book %s: %w", bookID, err)
			}
		}
		return nil
	})
}

// CreateRun inserts the lifecycle record for a newly registered run.
func (s *DB) CreateRun(ctx context.Context, runID, bookID string) error {
	rec := RunRecord{
		ID:        runID,
		BookID:    bookID,
		Status:    "running",
		StartedAt: time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

// SetRunTitle records the extracted book identity on the run.
func (s *DB) SetRunTitle(ctx context.Context, runID, title string) error {
	return s.db.WithContext(ctx).Model(&RunRecord{}).Where("id = ?", runID).
		Update("title", title).Error
}

// FinishRun stamps the terminal status onto the run record.
func (s *DB) FinishRun(ctx context.Context, runID, status, errMsg string) error {
	now := time.Now().UTC()
	err := s.db.WithContext(ctx).Model(&RunRecord{}).Where("id = ?", runID).Updates(map[string]any{
		"status":      status,
		"error":       errMsg,
		"finished_at": &now,
	}).Error
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// CountCharacters returns the number of characters stored for a book.
func (s *DB) CountCharacters(ctx context.Context, bookID string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&CharacterRecord{}).Where("book_id = ?", bookID).Count(&n).Error
	return n, err
}

// CountRelationships returns the number of relationship rows for a book.
func (s *DB) CountRelationships(ctx context.Context, bookID string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&RelationshipRecord{}).Where("book_id = ?", bookID).Count(&n).Error
	return n, err
}

func decodeProfile(rec *CharacterRecord) (*characters.Profile, error) {
	var p characters.Profile
	if err := json.Unmarshal([]byte(rec.Profile), &p); err != nil {
		return nil, fmt.Errorf("decode profile %s: %w", rec.ID, err)
	}
	p.ID = rec.ID
	p.Mentions = rec.Mentions
	return &p, nil
}
