// internal/models/models.go
package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// User roles. Doctors run predictions and generate reports, reviewers read
// and leave feedback, admins additionally manage users.
const (
	RoleDoctor   = "doctor"
	RoleReviewer = "reviewer"
	RoleAdmin    = "admin"
)

// Prediction statuses.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusReviewed  = "reviewed"
)

type User struct {
	ID           uint           `gorm:"primarykey" json:"id"`
	Username     string         `gorm:"uniqueIndex;size:50;not null" json:"username"`
	Email        string         `gorm:"uniqueIndex;size:100;not null" json:"email"`
	PasswordHash string         `gorm:"not null" json:"-"`
	FullName     string         `gorm:"size:100" json:"full_name"`
	Role         string         `gorm:"size:20;not null;default:'doctor'" json:"role"`
	IsActive     bool           `gorm:"default:true" json:"is_active"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`

	Predictions []Prediction `gorm:"foreignKey:UserID" json:"predictions,omitempty"`
	Feedback    []Feedback   `gorm:"foreignKey:UserID" json:"feedback,omitempty"`
}

type Image struct {
	ID               uint      `gorm:"primarykey" json:"id"`
	OwnerID          uint      `gorm:"not null" json:"owner_id"`
	Filename         string    `gorm:"size:255;not null" json:"filename"`
	OriginalFilename string    `gorm:"size:255;not null" json:"original_filename"`
	ObjectPath       string    `gorm:"size:255;uniqueIndex;not null" json:"object_path"`
	FileSize         int64     `gorm:"not null" json:"file_size"`
	MimeType         string    `gorm:"size:100;not null" json:"mime_type"`
	ImageType        string    `gorm:"size:50" json:"image_type"` // X-ray, CT, MRI, ...
	Width            int       `json:"width"`
	Height           int       `json:"height"`
	UploadedAt       time.Time `gorm:"autoCreateTime" json:"uploaded_at"`

	Predictions []Prediction `gorm:"foreignKey:ImageID" json:"predictions,omitempty"`
}

// ConfidenceMap stores per-label confidence scores as a JSON column.
type ConfidenceMap map[string]float64

func (m ConfidenceMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal confidence map: %w", err)
	}
	return string(b), nil
}

func (m *ConfidenceMap) Scan(value interface{}) error {
	if value == nil {
		*m = nil
		return nil
	}
	var b []byte
	switch v := value.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("unsupported confidence map column type %T", value)
	}
	return json.Unmarshal(b, m)
}

type Prediction struct {
	ID              uint           `gorm:"primarykey" json:"id"`
	ImageID         uint           `gorm:"not null;index" json:"image_id"`
	UserID          uint           `gorm:"not null" json:"user_id"`
	ModelName       string         `gorm:"size:100;not null" json:"model_name"`
	Predictions     ConfidenceMap  `gorm:"type:text" json:"predictions"`
	ConfidenceScore float64        `json:"confidence_score"`
	Status          string         `gorm:"size:20;default:'pending'" json:"status"` // pending, completed, reviewed
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`

	Image    Image     `gorm:"foreignKey:ImageID" json:"image,omitempty"`
	Heatmaps []Heatmap `gorm:"foreignKey:PredictionID" json:"heatmaps,omitempty"`
}

type Heatmap struct {
	ID           uint      `gorm:"primarykey" json:"id"`
	PredictionID uint      `gorm:"not null;index" json:"prediction_id"`
	ObjectPath   string    `gorm:"size:255;not null" json:"object_path"`
	Method       string    `gorm:"size:50;not null" json:"method"` // grad-cam, shap, ...
	Label        string    `gorm:"size:100;not null" json:"label"`
	CreatedAt    time.Time `json:"created_at"`
}

type Feedback struct {
	ID            uint      `gorm:"primarykey" json:"id"`
	PredictionID  uint      `gorm:"uniqueIndex;not null" json:"prediction_id"`
	UserID        uint      `gorm:"not null" json:"user_id"`
	Rating        int       `gorm:"not null" json:"rating"` // 1-5 rating of model accuracy
	OverrideLabel string    `gorm:"size:100" json:"override_label,omitempty"`
	Comment       string    `gorm:"type:text" json:"comment,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type Report struct {
	ID           uint      `gorm:"primarykey" json:"id"`
	PredictionID uint      `gorm:"not null;index" json:"prediction_id"`
	ObjectPath   string    `gorm:"size:255;not null" json:"object_path"`
	ReportType   string    `gorm:"size:10;not null" json:"report_type"` // pdf, txt
	GeneratedAt  time.Time `gorm:"autoCreateTime" json:"generated_at"`
}
