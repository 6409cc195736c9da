package file

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/Firasse123/FineVerse-AIXCYBER/internal/core/domain"
)

// ArchiveSuffix marks zstd-compressed trail files.
const ArchiveSuffix = ".zst"

const maxLineBytes = 1 << 20

// ScanEntries decodes a JSON-lines trail. A final line without a newline is a torn
// write from a crash and is skipped. Any other line that fails to decode is returned
// as an integrity issue identified by its line number.
func ScanEntries(r io.Reader) ([]domain.AuditEntry, []domain.IntegrityIssue, error) {
	reader := bufio.NewReaderSize(r, 64*1024)
	entries := make([]domain.AuditEntry, 0)
	var issues []domain.IntegrityIssue

	for lineNo := 1; ; lineNo++ {
		line, err := reader.ReadBytes('\n')
		if len(line) > maxLineBytes {
			return nil, nil, fmt.Errorf("audit line %d exceeds %d bytes", lineNo, maxLineBytes)
		}

		complete := err == nil
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, nil, fmt.Errorf("read audit line %d: %w", lineNo, err)
		}

		trimmed := bytes.TrimSpace(line)
		if len(trimmed) > 0 {
			var entry domain.AuditEntry
			if decodeErr := json.Unmarshal(trimmed, &entry); decodeErr != nil {
				if !complete {
					break
				}
				issues = append(issues, domain.IntegrityIssue{
					ID:     "line:" + strconv.Itoa(lineNo),
					Reason: "undecodable entry: " + decodeErr.Error(),
				})
			} else {
				entries = append(entries, entry)
			}
		}

		if !complete {
			break
		}
	}
	return entries, issues, nil
}

// ReadEntries is ScanEntries for callers that need every line intact.
func ReadEntries(r io.Reader) ([]domain.AuditEntry, error) {
	entries, issues, err := ScanEntries(r)
	if err != nil {
		return nil, err
	}
	if len(issues) > 0 {
		return nil, fmt.Errorf("audit %s: %s", issues[0].ID, issues[0].Reason)
	}
	return entries, nil
}

// ScanFile reads a plain or zstd-compressed trail file. A missing file is an empty trail.
func ScanFile(path string) ([]domain.AuditEntry, []domain.IntegrityIssue, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []domain.AuditEntry{}, nil, nil
		}
		return nil, nil, fmt.Errorf("open audit file: %w", err)
	}
	defer f.Close()

	if !strings.HasSuffix(path, ArchiveSuffix) {
		return ScanEntries(f)
	}

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, nil, fmt.Errorf("create decoder: %w", err)
	}
	defer dec.Close()

	return ScanEntries(dec)
}

// ReadFile is ScanFile that fails on the first undecodable line.
func ReadFile(path string) ([]domain.AuditEntry, error) {
	entries, issues, err := ScanFile(path)
	if err != nil {
		return nil, err
	}
	if len(issues) > 0 {
		return nil, fmt.Errorf("audit %s: %s", issues[0].ID, issues[0].Reason)
	}
	return entries, nil
}

// WriteJSONLine writes the entry as a single newline-terminated JSON line in one write call.
func WriteJSONLine(w io.Writer, entry domain.AuditEntry) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode audit entry: %w", err)
	}
	if _, err := w.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write audit entry: %w", err)
	}
	return nil
}

// WriteArchive writes entries as a zstd-compressed JSON-lines stream.
func WriteArchive(w io.Writer, entries []domain.AuditEntry) error {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return fmt.Errorf("create encoder: %w", err)
	}

	jsonEnc := json.NewEncoder(enc)
	for _, entry := range entries {
		if err := jsonEnc.Encode(entry); err != nil {
			_ = enc.Close()
			return fmt.Errorf("encode audit entry %s: %w", entry.ID, err)
		}
	}

	if err := enc.Close(); err != nil {
		return fmt.Errorf("flush archive: %w", err)
	}
	return nil
}

// ArchiveFile compresses the trail at src into dst and returns the number of entries.
func ArchiveFile(src, dst string) (int, error) {
	entries, err := ReadFile(src)
	if err != nil {
		return 0, err
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return 0, fmt.Errorf("create archive: %w", err)
	}

	if err := WriteArchive(out, entries); err != nil {
		out.Close()
		os.Remove(dst)
		return 0, err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return 0, fmt.Errorf("fsync archive: %w", err)
	}
	if err := out.Close(); err != nil {
		return 0, fmt.Errorf("close archive: %w", err)
	}
	return len(entries), nil
}
