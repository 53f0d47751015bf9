package models

import "time"

// CacheGeneration is a named commit counter shared by every instance
type CacheGeneration struct {
	Name      string    `gorm:"primaryKey;size:100" json:"name"`
	Value     uint64    `gorm:"not null;default:0" json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (CacheGeneration) TableName() string { return "cache_generations" }
