package audit

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"
)

type Service struct {
	store *Store
	log   *zap.Logger
}

func NewService(db *sql.DB, log *zap.Logger) *Service {
	return &Service{store: NewStore(db), log: log}
}

func (s *Service) List(ctx context.Context, f Filter, p Page) ([]Entry, int64, error) {
	return s.store.List(ctx, f, p)
}

func (s *Service) Get(ctx context.Context, auditID int64) (*Entry, error) {
	return s.store.GetByID(ctx, auditID)
}

// Purge は retentionDays より古い行を削除する。cron から呼ばれる。
func (s *Service) Purge(ctx context.Context, retentionDays int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
	n, err := s.store.PurgeOlderThan(ctx, cutoff)
	if err != nil {
		s.log.Error("audit purge failed", zap.Error(err))
		return 0, err
	}
	if n > 0 {
		s.log.Info("audit purge done", zap.Int64("deleted", n), zap.Time("cutoff", cutoff))
	}
	return n, nil
}
