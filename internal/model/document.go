package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type DocumentStatus string

const (
	StatusActive   DocumentStatus = "Active"
	StatusExpired  DocumentStatus = "Expired"
	StatusArchived DocumentStatus = "Archived"
)

func (s DocumentStatus) Valid() bool {
	switch s {
	case StatusActive, StatusExpired, StatusArchived:
		return true
	}
	return false
}

type RiskScore string

const (
	RiskLow    RiskScore = "Low"
	RiskMedium RiskScore = "Medium"
	RiskHigh   RiskScore = "High"
)

func (r RiskScore) Valid() bool {
	switch r {
	case RiskLow, RiskMedium, RiskHigh:
		return true
	}
	return false
}

// DefaultValidity is how long a contract stays valid when no expiry date is supplied.
const DefaultValidity = 365 * 24 * time.Hour

// Document is one uploaded contract. Its chunks reference it by ID and UserID.
type Document struct {
	ID           string         `gorm:"primaryKey;size:36" json:"doc_id"`
	UserID       uint           `gorm:"not null;index" json:"user_id"`
	Filename     string         `gorm:"size:256;not null" json:"filename"`
	ContractName string         `gorm:"size:256" json:"contract_name"`
	Parties      string         `gorm:"size:512" json:"parties"`
	Status       DocumentStatus `gorm:"size:16;not null" json:"status"`
	RiskScore    RiskScore      `gorm:"size:16;not null" json:"risk_score"`
	ExpiryDate   time.Time      `json:"expiry_date"`
	UploadedOn   time.Time      `gorm:"autoCreateTime" json:"uploaded_on"`
}

func (d *Document) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	return nil
}

// BeforeSave keeps Status and RiskScore inside their enums.
func (d *Document) BeforeSave(tx *gorm.DB) error {
	if !d.Status.Valid() {
		return fmt.Errorf("invalid document status %q", d.Status)
	}
	if !d.RiskScore.Valid() {
		return fmt.Errorf("invalid risk score %q", d.RiskScore)
	}
	return nil
}
