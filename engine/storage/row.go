// Package storage persists memory records with gorm, across whichever
// driver the deployment points at (sqlite for local/dev, postgres or mysql
// in production), tenant-scoped on every query and write-retried against
// lock contention the same way the rest of this codebase retries
// transactions.
package storage

import "time"

// Row is the gorm model backing the "memories" table.
type Row struct {
	MemoryID          string `gorm:"primaryKey;size:64"`
	TenantID          string `gorm:"size:128;index:idx_tenant_entity"`
	EventID           string `gorm:"size:64"`
	Content           string `gorm:"type:text"`
	Summary           string `gorm:"type:text"`
	Intent            string `gorm:"size:128;index"`
	EntitiesJSON      string `gorm:"type:text"`
	RelationshipsJSON string `gorm:"type:text"`
	RawEmbedding      string `gorm:"type:text"`
	SemanticEmbedding string `gorm:"type:text"`
	SemanticKey       string `gorm:"size:64;index"`
	RetrievalCount    int    `gorm:"default:0"`
	AvgOutcomeSignal  float64 `gorm:"default:0"`
	OutcomeCount      int    `gorm:"default:0"`
	StorageTier       string `gorm:"size:16"`
	LatestImportance  float64
	IsCompressed      bool `gorm:"default:false"`
	OriginalCount     int  `gorm:"default:1"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// TableName pins the gorm table name so migrations stay predictable across
// drivers.
func (Row) TableName() string { return "memories" }
