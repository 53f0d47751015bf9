package models

import (
	"time"

	"gorm.io/gorm"
)

// Project owns an ordered list of work items
type Project struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	Name        string         `gorm:"size:200;not null" json:"name"`
	Description string         `gorm:"type:text" json:"description"`
	TeamID      *uint          `gorm:"index" json:"team_id"`
	Status      string         `gorm:"size:20;default:planning;index" json:"status"` // planning, active, completed
	StartDate   *time.Time     `json:"start_date"`
	EndDate     *time.Time     `json:"end_date"`
	Items       []WorkItem     `gorm:"foreignKey:ProjectID" json:"items,omitempty"`
	CreatedBy   uint           `json:"created_by"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Project) TableName() string { return "projects" }

// AfterDelete detaches teams that still point at the deleted project.
func (p *Project) AfterDelete(tx *gorm.DB) error {
	return tx.Model(&Team{}).Where("project_id = ?", p.ID).Update("project_id", nil).Error
}

// WorkItem is a task or module inside a project
type WorkItem struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	ProjectID   uint           `gorm:"index;not null" json:"project_id"`
	Position    int            `gorm:"default:0" json:"position"`
	Title       string         `gorm:"size:300;not null" json:"title"`
	Status      string         `gorm:"size:20;default:not-started;index" json:"status"` // not-started, in-progress, completed, blocked
	AssigneeID  *uint          `gorm:"index" json:"assignee_id"`
	DueDate     *time.Time     `json:"due_date"`
	CompletedAt *time.Time     `json:"completed_at"` // set iff status is completed
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

func (WorkItem) TableName() string { return "work_items" }
