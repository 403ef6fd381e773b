package repos

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dealforge/dealforge-backend/internal/platform/logger"
	"github.com/dealforge/dealforge-backend/internal/types"
)

type QuestionnaireCompleteness struct {
	Total    int64
	Required int64
	Answered int64
}

func (c QuestionnaireCompleteness) Complete() bool {
	return c.Total > 0 && c.Answered >= c.Required
}

type QuestionnaireRepo interface {
	// CreateQuestions inserts generated questions; on re-run existing rows
	// are left untouched so already-submitted answers survive.
	CreateQuestions(ctx context.Context, tx *gorm.DB, rows []*types.QuestionnaireResponse) error
	ListByJob(ctx context.Context, tx *gorm.DB, jobID uuid.UUID) ([]*types.QuestionnaireResponse, error)
	SubmitAnswer(ctx context.Context, tx *gorm.DB, jobID uuid.UUID, questionKey, answer string) (bool, error)
	Completeness(ctx context.Context, tx *gorm.DB, jobID uuid.UUID) (QuestionnaireCompleteness, error)
}

type questionnaireRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewQuestionnaireRepo(db *gorm.DB, baseLog *logger.Logger) QuestionnaireRepo {
	return &questionnaireRepo{
		db:  db,
		log: baseLog.With("repo", "QuestionnaireRepo"),
	}
}

func (r *questionnaireRepo) CreateQuestions(ctx context.Context, tx *gorm.DB, rows []*types.QuestionnaireResponse) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(rows) == 0 {
		return nil
	}
	now := time.Now()
	for _, row := range rows {
		if row.ID == uuid.Nil {
			row.ID = uuid.New()
		}
		if row.CreatedAt.IsZero() {
			row.CreatedAt = now
		}
		row.UpdatedAt = now
	}
	return transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "job_id"}, {Name: "question_key"}},
			DoNothing: true,
		}).
		Create(&rows).Error
}

func (r *questionnaireRepo) ListByJob(ctx context.Context, tx *gorm.DB, jobID uuid.UUID) ([]*types.QuestionnaireResponse, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.QuestionnaireResponse
	if jobID == uuid.Nil {
		return out, nil
	}
	err := transaction.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("display_order ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *questionnaireRepo) SubmitAnswer(ctx context.Context, tx *gorm.DB, jobID uuid.UUID, questionKey, answer string) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if jobID == uuid.Nil || strings.TrimSpace(questionKey) == "" {
		return false, nil
	}
	now := time.Now()
	res := transaction.WithContext(ctx).
		Model(&types.QuestionnaireResponse{}).
		Where("job_id = ? AND question_key = ?", jobID, questionKey).
		Updates(map[string]interface{}{
			"answer":      answer,
			"answered_at": now,
			"updated_at":  now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *questionnaireRepo) Completeness(ctx context.Context, tx *gorm.DB, jobID uuid.UUID) (QuestionnaireCompleteness, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out QuestionnaireCompleteness
	if jobID == uuid.Nil {
		return out, nil
	}
	base := transaction.WithContext(ctx).Model(&types.QuestionnaireResponse{}).Where("job_id = ?", jobID)
	if err := base.Session(&gorm.Session{}).Count(&out.Total).Error; err != nil {
		return out, err
	}
	if err := base.Session(&gorm.Session{}).Where("required = ?", true).Count(&out.Required).Error; err != nil {
		return out, err
	}
	if err := base.Session(&gorm.Session{}).Where("required = ? AND answer IS NOT NULL AND answer <> ''", true).Count(&out.Answered).Error; err != nil {
		return out, err
	}
	return out, nil
}
