package usecase

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/Firasse123/FineVerse-AIXCYBER/internal/core/domain"
	"github.com/Firasse123/FineVerse-AIXCYBER/internal/repository/memory"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingObserver struct {
	mu     sync.Mutex
	events []domain.SecurityEvent
}

func (o *recordingObserver) Observe(_ context.Context, event domain.SecurityEvent) {
	o.mu.Lock()
	o.events = append(o.events, event)
	o.mu.Unlock()
}

func (o *recordingObserver) count(kind domain.SecurityEventKind) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, e := range o.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

type sentCode struct {
	Destination string
	Method      domain.TwoFactorMethod
	Code        string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentCode
	err  error
}

func (n *recordingNotifier) Send(_ context.Context, destination string, method domain.TwoFactorMethod, code string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, sentCode{Destination: destination, Method: method, Code: code})
	return nil
}

func (n *recordingNotifier) last() (sentCode, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.sent) == 0 {
		return sentCode{}, false
	}
	return n.sent[len(n.sent)-1], true
}

type failingAuditStore struct{}

func (failingAuditStore) Append(context.Context, domain.AuditEntry) error {
	return errors.New("disk full")
}

func (failingAuditStore) List(context.Context, string) ([]domain.AuditEntry, error) {
	return nil, nil
}

// tamperingAuditStore applies out-of-band edits to entries as they are read back, the
// way a modified backing file or table would present them.
type tamperingAuditStore struct {
	*memory.AuditStore

	mu          sync.Mutex
	edits       map[string]func(*domain.AuditEntry)
	undecodable []domain.IntegrityIssue
}

func newTamperingAuditStore() *tamperingAuditStore {
	return &tamperingAuditStore{AuditStore: memory.NewAuditStore(), edits: make(map[string]func(*domain.AuditEntry))}
}

func (s *tamperingAuditStore) tamper(id string, mutate func(*domain.AuditEntry)) {
	s.mu.Lock()
	s.edits[id] = mutate
	s.mu.Unlock()
}

func (s *tamperingAuditStore) corrupt(issue domain.IntegrityIssue) {
	s.mu.Lock()
	s.undecodable = append(s.undecodable, issue)
	s.mu.Unlock()
}

func (s *tamperingAuditStore) List(ctx context.Context, actor string) ([]domain.AuditEntry, error) {
	entries, err := s.AuditStore.List(ctx, actor)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range entries {
		if mutate, ok := s.edits[entries[i].ID]; ok {
			mutate(&entries[i])
		}
	}
	return entries, nil
}

func (s *tamperingAuditStore) Scan(ctx context.Context) ([]domain.AuditEntry, []domain.IntegrityIssue, error) {
	entries, err := s.List(ctx, "")
	if err != nil {
		return nil, nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return entries, append([]domain.IntegrityIssue(nil), s.undecodable...), nil
}

// sequentialCodes hands out 100001, 100002, ... so every issued code is known to the test.
func sequentialCodes() func(int) (string, error) {
	var mu sync.Mutex
	n := 100000
	return func(int) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		n++
		return strconv.Itoa(n), nil
	}
}

type fixture struct {
	clock       *fakeClock
	observer    *recordingObserver
	notifier    *recordingNotifier
	auditStore  *tamperingAuditStore
	attempts    *memory.AttemptStore
	sessionRepo *memory.SessionRepository
	challenges  *memory.ChallengeStore
	enrollments *memory.EnrollmentRepository

	trail     *AuditTrail
	guard     *LoginGuard
	twoFactor *TwoFactorService
	sessions  *SessionStore
	facade    *SecurityFacade
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	log := zaptest.NewLogger(t)
	f := &fixture{
		clock:       newFakeClock(),
		observer:    &recordingObserver{},
		notifier:    &recordingNotifier{},
		auditStore:  newTamperingAuditStore(),
		attempts:    memory.NewAttemptStore(),
		sessionRepo: memory.NewSessionRepository(),
		challenges:  memory.NewChallengeStore(),
		enrollments: memory.NewEnrollmentRepository(),
	}

	f.trail = NewAuditTrail(f.auditStore, log).WithClock(f.clock.Now).WithObserver(f.observer)
	f.guard = NewLoginGuard(f.attempts, f.trail, DefaultLoginGuardConfig(), log).
		WithClock(f.clock.Now).
		WithObserver(f.observer)
	f.twoFactor = NewTwoFactorService(f.challenges, f.enrollments, f.notifier, f.trail, DefaultTwoFactorConfig(), log).
		WithClock(f.clock.Now).
		WithCodeGenerator(sequentialCodes()).
		WithObserver(f.observer)
	f.sessions = NewSessionStore(f.sessionRepo, f.guard, f.trail, DefaultSessionConfig(), log).
		WithClock(f.clock.Now).
		WithObserver(f.observer)
	f.facade = NewSecurityFacade(f.trail, f.guard, f.twoFactor, f.sessions, log)

	t.Cleanup(f.twoFactor.Wait)
	return f
}

func (f *fixture) eventTypes(t *testing.T, actor string) []domain.AuditEventType {
	t.Helper()
	entries, err := f.trail.Trail(context.Background(), actor)
	if err != nil {
		t.Fatalf("Trail() error = %v", err)
	}
	out := make([]domain.AuditEventType, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.EventType)
	}
	return out
}
