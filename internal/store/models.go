package store

import "time"

// CharacterRecord is the persisted form of a character profile. The full
// profile travels as a JSON document; name, name_key, and mentions are
// lifted into columns so candidate lookup stays a cheap indexed query.
type CharacterRecord struct {
	ID        string `gorm:"primaryKey;size:36"`
	BookID    string `gorm:"size:36;index:idx_characters_book;index:idx_characters_book_key,priority:1"`
	Name      string `gorm:"size:255"`
	NameKey   string `gorm:"size:255;index:idx_characters_book_key,priority:2"`
	Mentions  int
	Profile   string `gorm:"type:text"` // JSON-encoded characters.Profile
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (CharacterRecord) TableName() string { return "characters" }

// RelationshipRecord is one relationship edge, stored once per unordered
// character pair per book. FromID < ToID always holds (canonical order), and
// the composite unique index enforces the one-row-per-pair contract.
type RelationshipRecord struct {
	ID          uint   `gorm:"primaryKey"`
	FromID      string `gorm:"size:36;uniqueIndex:idx_relationships_pair,priority:1"`
	ToID        string `gorm:"size:36;uniqueIndex:idx_relationships_pair,priority:2"`
	BookID      string `gorm:"size:36;uniqueIndex:idx_relationships_pair,priority:3;index:idx_relationships_book"`
	Kind        string `gorm:"size:32"`
	Strength    float64
	Description string `gorm:"type:text"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (RelationshipRecord) TableName() string { return "character_relationships" }

// ChunkRecord is one preprocessed text segment with position metadata.
type ChunkRecord struct {
	ID          uint   `gorm:"primaryKey"`
	BookID      string `gorm:"size:36;uniqueIndex:idx_chunks_book_number,priority:1"`
	Number      int    `gorm:"uniqueIndex:idx_chunks_book_number,priority:2"`
	Text        string `gorm:"type:text"`
	StartOffset int
	EndOffset   int
	WordCount   int
	CreatedAt   time.Time
}

func (ChunkRecord) TableName() string { return "chunks" }

// RunRecord mirrors the in-memory execution registry into durable storage so
// run history survives the process.
type RunRecord struct {
	ID         string `gorm:"primaryKey;size:36"`
	BookID     string `gorm:"size:36;index:idx_runs_book"`
	Status     string `gorm:"size:16"`
	Error      string `gorm:"type:text"`
	Title      string `gorm:"size:512"`
	StartedAt  time.Time
	FinishedAt *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (RunRecord) TableName() string { return "runs" }
