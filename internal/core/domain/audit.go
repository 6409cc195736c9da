package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// AuditEventType names a security-relevant transition recorded in the audit trail.
type AuditEventType string

const (
	EventLoginFailed    AuditEventType = "LOGIN_FAILED"
	EventIPBlocked      AuditEventType = "IP_BLOCKED"
	EventIPUnblocked    AuditEventType = "IP_UNBLOCKED"
	EventSessionCreated AuditEventType = "SESSION_CREATED"
	EventSessionExpired AuditEventType = "SESSION_EXPIRED"
	EventSessionLogout  AuditEventType = "SESSION_LOGOUT"
	EventMFAEnabled     AuditEventType = "MFA_ENABLED"
	EventMFADisabled    AuditEventType = "MFA_DISABLED"
	EventMFACodeSent    AuditEventType = "MFA_CODE_SENT"
	EventMFAVerified    AuditEventType = "MFA_VERIFIED"
	EventMFAFailed      AuditEventType = "MFA_FAILED"
	EventMFALocked      AuditEventType = "MFA_LOCKED"
	EventMFAExpired     AuditEventType = "MFA_EXPIRED"
)

// AuditEntry is an immutable record of a security event bound to its content hash.
type AuditEntry struct {
	ID          string            `json:"id"`
	Timestamp   time.Time         `json:"timestamp"`
	Actor       string            `json:"actor"`
	EventType   AuditEventType    `json:"event_type"`
	Description string            `json:"description"`
	Metadata    map[string]string `json:"metadata"`
	ContentHash string            `json:"content_hash"`
}

// AuditTimestampPrecision is the resolution every backend can store losslessly.
const AuditTimestampPrecision = time.Microsecond

type canonicalAuditEntry struct {
	Actor       string            `json:"actor"`
	Description string            `json:"description"`
	EventType   string            `json:"event_type"`
	ID          string            `json:"id"`
	Metadata    map[string]string `json:"metadata"`
	Timestamp   string            `json:"timestamp"`
}

// CanonicalBytes returns the deterministic serialisation covered by ContentHash.
// Keys are emitted in lexical order and metadata maps are key-sorted by encoding/json.
func (e AuditEntry) CanonicalBytes() ([]byte, error) {
	metadata := e.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	return json.Marshal(canonicalAuditEntry{
		Actor:       e.Actor,
		Description: e.Description,
		EventType:   string(e.EventType),
		ID:          e.ID,
		Metadata:    metadata,
		Timestamp:   e.Timestamp.UTC().Truncate(AuditTimestampPrecision).Format(time.RFC3339Nano),
	})
}

// ComputeHash returns the hex SHA-256 digest of the canonical form.
func (e AuditEntry) ComputeHash() (string, error) {
	payload, err := e.CanonicalBytes()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}

// Clone returns a deep copy so stored entries cannot be mutated through returned values.
func (e AuditEntry) Clone() AuditEntry {
	out := e
	if e.Metadata != nil {
		out.Metadata = make(map[string]string, len(e.Metadata))
		for k, v := range e.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

// IntegrityIssue flags a single entry whose recomputed hash differs from the stored one.
type IntegrityIssue struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// IntegrityReport is the outcome of re-verifying every stored entry.
type IntegrityReport struct {
	TotalLogs   int              `json:"total_logs"`
	IssuesFound int              `json:"issues_found"`
	IntegrityOK bool             `json:"integrity_ok"`
	Issues      []IntegrityIssue `json:"issues"`
}

// Err returns ErrIntegrityViolation when any entry failed verification.
func (r IntegrityReport) Err() error {
	if r.IntegrityOK {
		return nil
	}
	return fmt.Errorf("%w: %d of %d entries", ErrIntegrityViolation, r.IssuesFound, r.TotalLogs)
}

// VerifyEntries recomputes every entry hash and reports mismatches.
func VerifyEntries(entries []AuditEntry) IntegrityReport {
	report := IntegrityReport{TotalLogs: len(entries), Issues: make([]IntegrityIssue, 0)}
	for _, entry := range entries {
		recomputed, err := entry.ComputeHash()
		switch {
		case err != nil:
			report.Issues = append(report.Issues, IntegrityIssue{ID: entry.ID, Reason: "entry cannot be serialised: " + err.Error()})
		case recomputed != entry.ContentHash:
			report.Issues = append(report.Issues, IntegrityIssue{ID: entry.ID, Reason: "hash mismatch - entry may be tampered"})
		}
	}
	report.IssuesFound = len(report.Issues)
	report.IntegrityOK = report.IssuesFound == 0
	return report
}

// Flag adds issues found outside hash verification, such as records that no longer decode.
// Each one counts as a stored entry.
func (r *IntegrityReport) Flag(issues ...IntegrityIssue) {
	if len(issues) == 0 {
		return
	}
	r.Issues = append(r.Issues, issues...)
	r.TotalLogs += len(issues)
	r.IssuesFound = len(r.Issues)
	r.IntegrityOK = false
}

// AuditStatistics summarises the trail.
type AuditStatistics struct {
	TotalEvents  int                    `json:"total_events"`
	UniqueActors int                    `json:"unique_actors"`
	EventTypes   map[AuditEventType]int `json:"event_types"`
	GeneratedAt  time.Time              `json:"generated_at"`
}
