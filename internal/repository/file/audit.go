package file

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/Firasse123/FineVerse-AIXCYBER/internal/core/domain"
	"github.com/Firasse123/FineVerse-AIXCYBER/internal/core/port"
)

// AuditStore appends entries as JSON lines to a single file.
//
// Durability: with fsync enabled Append returns nil only after the line reached stable
// storage. Without fsync an entry survives a process crash but not a host crash.
type AuditStore struct {
	path   string
	fsync  bool
	logger *zap.Logger

	mu   sync.Mutex
	file *os.File
}

// OpenAuditStore opens (or creates) the trail file at path.
func OpenAuditStore(path string, fsync bool, logger *zap.Logger) (*AuditStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if path == "" {
		return nil, fmt.Errorf("audit file path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create audit directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open audit file: %w", err)
	}

	if err := repairTail(f, logger); err != nil {
		f.Close()
		return nil, err
	}

	logger.Info("audit file opened", zap.String("path", path), zap.Bool("fsync", fsync))
	return &AuditStore{path: path, fsync: fsync, logger: logger, file: f}, nil
}

// Path returns the trail file location.
func (s *AuditStore) Path() string {
	return s.path
}

func (s *AuditStore) Append(ctx context.Context, entry domain.AuditEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return fmt.Errorf("audit file is closed")
	}
	if err := WriteJSONLine(s.file, entry); err != nil {
		return err
	}
	if s.fsync {
		if err := s.file.Sync(); err != nil {
			return fmt.Errorf("fsync audit file: %w", err)
		}
	}
	return nil
}

// List skips lines that no longer decode; Scan reports them.
func (s *AuditStore) List(ctx context.Context, actor string) ([]domain.AuditEntry, error) {
	entries, issues, err := s.Scan(ctx)
	if err != nil {
		return nil, err
	}
	if len(issues) > 0 {
		s.logger.Warn("audit file has undecodable lines",
			zap.String("path", s.path),
			zap.Int("count", len(issues)),
			zap.String("first", issues[0].ID),
		)
	}
	if actor == "" {
		return entries, nil
	}

	out := make([]domain.AuditEntry, 0, len(entries))
	for _, entry := range entries {
		if entry.Actor == actor {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (s *AuditStore) Scan(_ context.Context) ([]domain.AuditEntry, []domain.IntegrityIssue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return ScanFile(s.path)
}

// Close syncs and releases the file.
func (s *AuditStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}
	syncErr := s.file.Sync()
	closeErr := s.file.Close()
	s.file = nil
	if syncErr != nil {
		return fmt.Errorf("fsync audit file: %w", syncErr)
	}
	return closeErr
}

// repairTail fixes a final line left without its newline by a crash mid-write, so the
// next append starts on a fresh line. A fragment that still decodes is kept and
// terminated; anything else is cut back to the last newline.
func repairTail(f *os.File, logger *zap.Logger) error {
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat audit file: %w", err)
	}
	size := info.Size()
	if size == 0 {
		return nil
	}

	last := make([]byte, 1)
	if _, err := f.ReadAt(last, size-1); err != nil {
		return fmt.Errorf("read audit file tail: %w", err)
	}
	if last[0] == '\n' {
		return nil
	}

	cut, err := lastLineStart(f, size)
	if err != nil {
		return err
	}

	fragment := make([]byte, size-cut)
	if _, err := f.ReadAt(fragment, cut); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read audit file tail: %w", err)
	}

	var entry domain.AuditEntry
	if json.Unmarshal(bytes.TrimSpace(fragment), &entry) == nil {
		if _, err := f.Write([]byte{'\n'}); err != nil {
			return fmt.Errorf("terminate audit file tail: %w", err)
		}
		logger.Warn("audit file ended without newline, terminated last entry", zap.String("id", entry.ID))
		return f.Sync()
	}

	if err := f.Truncate(cut); err != nil {
		return fmt.Errorf("truncate torn audit line: %w", err)
	}
	logger.Warn("dropped torn audit line left by an interrupted write",
		zap.Int64("offset", cut),
		zap.Int64("dropped_bytes", size-cut),
	)
	return f.Sync()
}

// lastLineStart returns the offset just past the last newline, or 0 when there is none.
func lastLineStart(f *os.File, size int64) (int64, error) {
	const chunk = 4096
	end := size
	for end > 0 {
		start := max(end-chunk, 0)
		buf := make([]byte, end-start)
		if _, err := f.ReadAt(buf, start); err != nil && !errors.Is(err, io.EOF) {
			return 0, fmt.Errorf("read audit file: %w", err)
		}
		if i := bytes.LastIndexByte(buf, '\n'); i >= 0 {
			return start + int64(i) + 1, nil
		}
		end = start
	}
	return 0, nil
}

var (
	_ port.AuditStore   = (*AuditStore)(nil)
	_ port.AuditScanner = (*AuditStore)(nil)
)
