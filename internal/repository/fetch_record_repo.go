package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/lazyimg/internal/domain"
	"gorm.io/gorm"
)

// FetchRecordRepository persists the prefetch ledger.
type FetchRecordRepository struct {
	db *gorm.DB
}

// NewFetchRecordRepository creates a new FetchRecordRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *FetchRecordRepository: repository instance bound to db.
func NewFetchRecordRepository(db *gorm.DB) *FetchRecordRepository {
	return &FetchRecordRepository{db: db}
}

// Record inserts one fetch attempt, filling ID and CreatedAt when empty.
func (r *FetchRecordRepository) Record(ctx context.Context, rec *domain.FetchRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	return r.db.WithContext(ctx).Create(rec).Error
}

// ListRecent returns the newest records first.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - limit: maximum number of rows.
// Returns:
//   - []domain.FetchRecord: records ordered by creation time, newest first.
//   - error: non-nil if the query fails.
func (r *FetchRecordRepository) ListRecent(ctx context.Context, limit int) ([]domain.FetchRecord, error) {
	var records []domain.FetchRecord
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&records).Error
	return records, err
}

// ListByURL returns every attempt recorded for url.
func (r *FetchRecordRepository) ListByURL(ctx context.Context, url string) ([]domain.FetchRecord, error) {
	var records []domain.FetchRecord
	err := r.db.WithContext(ctx).
		Where("url = ?", url).
		Order("created_at ASC").
		Find(&records).Error
	return records, err
}

// CountByStatus returns the number of records with the given status.
func (r *FetchRecordRepository) CountByStatus(ctx context.Context, status domain.FetchStatus) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.FetchRecord{}).
		Where("status = ?", status).
		Count(&count).Error
	return count, err
}
