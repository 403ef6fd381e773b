package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ExtractedFinancialRecord holds the structured figures pulled out of one
// uploaded document. A failed extraction is still recorded, with confidence 0
// and the error payload, so the failure trail stays auditable.
type ExtractedFinancialRecord struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	JobID      uuid.UUID      `gorm:"type:uuid;not null;index;uniqueIndex:idx_extraction_job_document" json:"job_id"`
	DocumentID uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_extraction_job_document" json:"document_id"`
	Fields     datatypes.JSON `gorm:"column:fields;type:jsonb" json:"fields,omitempty"`
	Confidence float64        `gorm:"column:confidence;not null;default:0" json:"confidence"`
	Method     string         `gorm:"column:method" json:"method,omitempty"`
	Error      string         `gorm:"column:error" json:"error,omitempty"`
	CreatedAt  time.Time      `gorm:"not null" json:"created_at"`
}

func (ExtractedFinancialRecord) TableName() string { return "extracted_financial_record" }

const ExtractionMethodGeminiStructured = "gemini_structured_output"

// FinancialFields is the fixed extraction schema sent to the AI service.
type FinancialFields struct {
	Revenue           *float64 `json:"revenue"`
	NetProfit         *float64 `json:"net_profit"`
	EBITDA            *float64 `json:"ebitda"`
	TotalAssets       *float64 `json:"total_assets"`
	TotalLiabilities  *float64 `json:"total_liabilities"`
	Cash              *float64 `json:"cash"`
	Equity            *float64 `json:"equity"`
	OperatingExpenses *float64 `json:"operating_expenses"`
	GrossMargin       *float64 `json:"gross_margin"`
	Currency          string   `json:"currency,omitempty"`
	FiscalYear        int      `json:"fiscal_year,omitempty"`
}
