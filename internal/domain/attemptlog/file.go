package attemptlog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"
)

// FileSink writes one pretty-printed JSON file per request to a directory
type FileSink struct {
	dir    string
	logger *zap.Logger
	mu     sync.Mutex
}

// NewFileSink creates the directory if needed
func NewFileSink(dir string, logger *zap.Logger) (*FileSink, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create attempt log dir: %w", err)
	}
	return &FileSink{dir: dir, logger: logger}, nil
}

// Path returns the file a record is written to
func (s *FileSink) Path(rec Record) string {
	name := fmt.Sprintf("%s-%s.json", rec.StartedAt.UTC().Format("20060102T150405.000Z"), rec.RequestID)
	return filepath.Join(s.dir, name)
}

// Write implements Sink. Failures are logged and returned; callers treat
// them as non-fatal.
func (s *FileSink) Write(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil && rec.FinalResult != OutcomeAborted {
		return err
	}

	data, err := sonic.MarshalIndent(rec, "", "  ")
	if err != nil {
		s.logger.Warn("Failed to encode attempt log", zap.String("request_id", rec.RequestID), zap.Error(err))
		return fmt.Errorf("encode attempt log: %w", err)
	}

	path := s.Path(rec)

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		s.logger.Warn("Failed to write attempt log", zap.String("path", path), zap.Error(err))
		return fmt.Errorf("write attempt log: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		s.logger.Warn("Failed to commit attempt log", zap.String("path", path), zap.Error(err))
		return fmt.Errorf("commit attempt log: %w", err)
	}

	s.logger.Debug("Attempt log written",
		zap.String("request_id", rec.RequestID),
		zap.Int("attempts", len(rec.Attempts)),
		zap.String("outcome", string(rec.FinalResult)))
	return nil
}
