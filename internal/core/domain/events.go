package domain

import "time"

// SecurityEventKind names a non-authoritative observability signal.
type SecurityEventKind string

const (
	SignalLoginSucceeded   SecurityEventKind = "login.succeeded"
	SignalLoginFailed      SecurityEventKind = "login.failed"
	SignalIPBlocked        SecurityEventKind = "ip.blocked"
	SignalIPUnblocked      SecurityEventKind = "ip.unblocked"
	SignalSessionCreated   SecurityEventKind = "session.created"
	SignalSessionRejected  SecurityEventKind = "session.rejected"
	SignalSessionExpired   SecurityEventKind = "session.expired"
	SignalSessionLogout    SecurityEventKind = "session.logout"
	SignalMFAIssued        SecurityEventKind = "mfa.issued"
	SignalMFADelivery      SecurityEventKind = "mfa.delivery_failed"
	SignalMFAVerified      SecurityEventKind = "mfa.verified"
	SignalMFARejected      SecurityEventKind = "mfa.rejected"
	SignalAuditAppended    SecurityEventKind = "audit.appended"
	SignalAuditWriteFailed SecurityEventKind = "audit.write_failed"
	SignalLedgerPublished  SecurityEventKind = "ledger.published"
	SignalLedgerDropped    SecurityEventKind = "ledger.dropped"
	SignalIntegrityChecked SecurityEventKind = "audit.integrity_checked"
)

// SecurityEvent is a typed telemetry event. Fields must already be masked.
type SecurityEvent struct {
	Kind   SecurityEventKind
	Actor  string
	At     time.Time
	Reason string
	Fields map[string]string
}
