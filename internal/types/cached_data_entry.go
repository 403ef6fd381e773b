package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// CachedDataEntry is the audit/input trail of external-data fetches for a
// job. Rows are written once per (job, source, data_type); a re-run of data
// collection overwrites the payload rather than appending a duplicate.
type CachedDataEntry struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	JobID     uuid.UUID      `gorm:"type:uuid;not null;index;uniqueIndex:idx_cache_job_source_type" json:"job_id"`
	Source    string         `gorm:"column:source;not null;uniqueIndex:idx_cache_job_source_type" json:"source"`
	DataType  string         `gorm:"column:data_type;not null;uniqueIndex:idx_cache_job_source_type" json:"data_type"`
	Payload   datatypes.JSON `gorm:"column:payload;type:jsonb" json:"payload"`
	FetchedAt time.Time      `gorm:"column:fetched_at;not null" json:"fetched_at"`
	CreatedAt time.Time      `gorm:"not null" json:"created_at"`
}

func (CachedDataEntry) TableName() string { return "cached_data_entry" }

const (
	DataSourceRegistry  = "business_registry"
	DataSourceWebSearch = "web_search"

	DataTypeCompanyProfile = "company_profile"
	DataTypeMarketResearch = "market_research"
)
