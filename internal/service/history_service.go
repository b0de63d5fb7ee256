package service

import (
	"errors"
	"sync"

	"signaling-service/internal/database"
	"signaling-service/internal/model"
	"signaling-service/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrHistoryUnavailable = errors.New("call history storage not available")

// HistoryService records finished calls and serves the history API.
// Writes are asynchronous and best-effort: signaling never waits on the
// database, and a down database only costs history rows. The repository
// is resolved lazily because the DB may connect after startup
// (InitPostgresAsync).
type HistoryService struct {
	mu     sync.Mutex
	repo   *repository.CallHistoryRepository
	logger *zap.Logger
}

func NewHistoryService(logger *zap.Logger) *HistoryService {
	return &HistoryService{logger: logger}
}

func (s *HistoryService) getRepo() *repository.CallHistoryRepository {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.repo == nil {
		if db := database.GetDB(); db != nil {
			s.repo = repository.NewCallHistoryRepository(db)
		}
	}
	return s.repo
}

// Record persists one finished call. Implements signaling.CallRecorder.
func (s *HistoryService) Record(record *model.CallHistory) {
	go func() {
		repo := s.getRepo()
		if repo == nil {
			s.logger.Debug("Skipping call history write, DB not ready",
				zap.String("roomId", record.RoomID))
			return
		}
		if err := repo.Create(record); err != nil {
			s.logger.Error("Failed to record call history",
				zap.String("roomId", record.RoomID),
				zap.Error(err))
			return
		}
		s.logger.Debug("Call history recorded",
			zap.String("roomId", record.RoomID),
			zap.String("status", string(record.Status)))
	}()
}

func (s *HistoryService) ListByUser(userID uuid.UUID, limit, offset int) ([]model.CallHistoryResponse, int64, error) {
	repo := s.getRepo()
	if repo == nil {
		return nil, 0, ErrHistoryUnavailable
	}

	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	records, total, err := repo.ListByUser(userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}

	responses := make([]model.CallHistoryResponse, len(records))
	for i := range records {
		responses[i] = records[i].ToResponse()
	}
	return responses, total, nil
}
