package models

import "time"

// InsightCacheEntry persists a cached advisory or report payload. One row per key.
type InsightCacheEntry struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	CacheKey        string    `gorm:"uniqueIndex;size:512;not null" json:"cache_key"`
	ActorID         uint      `gorm:"index" json:"actor_id"`
	QueryKind       string    `gorm:"size:50;index" json:"query_kind"` // advisory, report
	NormalizedQuery string    `gorm:"type:text" json:"normalized_query"`
	Payload         []byte    `json:"-"`
	ExpiresAt       time.Time `gorm:"index" json:"expires_at"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (InsightCacheEntry) TableName() string { return "insight_cache" }

// ReportArtifact records a rendered report file and its retention window
type ReportArtifact struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	OwnerID     uint      `gorm:"index;not null" json:"owner_id"`
	ProjectID   *uint     `gorm:"index" json:"project_id"`
	FilePath    string    `gorm:"size:500;not null" json:"-"`
	FileName    string    `gorm:"size:255" json:"file_name"`
	HealthScore int       `json:"health_score"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `gorm:"index" json:"expires_at"`
}

func (ReportArtifact) TableName() string { return "report_artifacts" }
