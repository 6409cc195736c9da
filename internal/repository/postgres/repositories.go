package postgres

// Repositories groups the PostgreSQL-backed durable stores.
type Repositories struct {
	Sessions    *SessionRepository
	Enrollments *EnrollmentRepository
	Audit       *AuditRepository
}

// NewRepositories wires all repositories backed by the provided executor.
func NewRepositories(exec pgExecutor) *Repositories {
	return &Repositories{
		Sessions:    NewSessionRepository(exec),
		Enrollments: NewEnrollmentRepository(exec),
		Audit:       NewAuditRepository(exec),
	}
}
