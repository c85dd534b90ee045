// Package auditlog is an optional, non-cryptographic local persistence sink
// for completed requests. Spec.md's Non-goals explicitly exclude
// audit-log cryptographic chaining and a memory/provenance store — this is
// a plain append-only table an external dashboard can read, nothing more.
package auditlog

import (
	"context"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/aiorch/core/internal/llmtypes"
)

// Entry is one row: a flattened record of a completed (or failed)
// orchestrator request, sufficient for a dashboard to render a history view.
type Entry struct {
	ID                 uint `gorm:"primarykey"`
	RequestID          string
	Category           string
	Agent              string
	Provider           string
	Model              string
	InputTokens        int
	OutputTokens       int
	CachedInputTokens  int
	CacheWriteTokens   int
	CostUSD            float64
	DurationMS         int64
	Success            bool
	QualityScore       float64
	Escalated          bool
	GovernanceApproved bool
	CreatedAt          time.Time
}

// Sink writes completed-request records to a local sqlite database.
type Sink struct {
	db     *gorm.DB
	logger *zap.Logger
}

// Open opens (creating if necessary) a sqlite database at path and migrates
// the Entry schema.
func Open(path string, zapLogger *zap.Logger) (*Sink, error) {
	if zapLogger == nil {
		zapLogger = zap.NewNop()
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, err
	}
	return &Sink{db: db, logger: zapLogger}, nil
}

// Record writes one entry derived from a completed AIResponse. Failures are
// logged, not returned, since the audit sink is ambient observability and
// must never block or fail the pipeline it observes.
func (s *Sink) Record(ctx context.Context, category, agent string, resp *llmtypes.AIResponse, success bool) {
	entry := &Entry{
		RequestID: resp.RequestID, Category: category, Agent: agent,
		Provider: resp.Provider, Model: resp.Model,
		InputTokens: resp.InputTokens, OutputTokens: resp.OutputTokens,
		CachedInputTokens: resp.CachedInputTokens, CacheWriteTokens: resp.CacheWriteTokens,
		CostUSD: resp.Cost, DurationMS: resp.Duration.Milliseconds(), Success: success,
		QualityScore: resp.QualityScore, Escalated: resp.Escalated,
		GovernanceApproved: resp.GovernanceApproved,
	}
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		s.logger.Warn("auditlog: failed to persist entry", zap.Error(err), zap.String("request_id", resp.RequestID))
	}
}

// Recent returns the most recent n entries, newest first.
func (s *Sink) Recent(ctx context.Context, n int) ([]Entry, error) {
	var entries []Entry
	err := s.db.WithContext(ctx).Order("created_at desc").Limit(n).Find(&entries).Error
	return entries, err
}

// Close closes the underlying database connection.
func (s *Sink) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
