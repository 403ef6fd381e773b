package types

import (
	"time"

	"github.com/google/uuid"
)

type Company struct {
	ID                 uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	OrganizationID     uuid.UUID `gorm:"type:uuid;not null;index" json:"organization_id"`
	Name               string    `gorm:"column:name;not null" json:"name"`
	RegistrationNumber string    `gorm:"column:registration_number;index" json:"registration_number,omitempty"`
	Industry           string    `gorm:"column:industry" json:"industry,omitempty"`
	Description        string    `gorm:"column:description" json:"description,omitempty"`
	Website            string    `gorm:"column:website" json:"website,omitempty"`
	FoundedYear        int       `gorm:"column:founded_year" json:"founded_year,omitempty"`
	EmployeeCount      int       `gorm:"column:employee_count" json:"employee_count,omitempty"`
	CreatedAt          time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt          time.Time `gorm:"not null" json:"updated_at"`
}

func (Company) TableName() string { return "company" }

type CompanyDocument struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CompanyID        uuid.UUID `gorm:"type:uuid;not null;index" json:"company_id"`
	FileName         string    `gorm:"column:file_name;not null" json:"file_name"`
	StoragePath      string    `gorm:"column:storage_path;not null" json:"storage_path"`
	ContentType      string    `gorm:"column:content_type" json:"content_type,omitempty"`
	Category         string    `gorm:"column:category;index" json:"category,omitempty"`
	UploadedByUserID uuid.UUID `gorm:"type:uuid;column:uploaded_by_user_id" json:"uploaded_by_user_id"`
	CreatedAt        time.Time `gorm:"not null" json:"created_at"`
}

func (CompanyDocument) TableName() string { return "company_document" }
