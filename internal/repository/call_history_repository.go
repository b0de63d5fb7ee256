package repository

import (
	"signaling-service/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CallHistoryRepository struct {
	db *gorm.DB
}

func NewCallHistoryRepository(db *gorm.DB) *CallHistoryRepository {
	return &CallHistoryRepository{db: db}
}

func (r *CallHistoryRepository) Create(record *model.CallHistory) error {
	return r.db.Create(record).Error
}

// ListByUser returns a user's finished calls, newest first.
func (r *CallHistoryRepository) ListByUser(userID uuid.UUID, limit, offset int) ([]model.CallHistory, int64, error) {
	var records []model.CallHistory
	var total int64

	query := r.db.Model(&model.CallHistory{}).
		Where("caller_id = ? OR callee_id = ?", userID, userID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.Order("ended_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&records).Error

	return records, total, err
}

func (r *CallHistoryRepository) GetByID(id uuid.UUID) (*model.CallHistory, error) {
	var record model.CallHistory
	if err := r.db.First(&record, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &record, nil
}
