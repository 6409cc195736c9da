package usecase

import (
	"fmt"
	"time"

	"github.com/Firasse123/FineVerse-AIXCYBER/internal/core/domain"
)

// InvalidCodeError reports a wrong two-factor code together with the attempts left.
type InvalidCodeError struct {
	Remaining int
}

func (e *InvalidCodeError) Error() string {
	return fmt.Sprintf("invalid verification code: %d attempts remaining", e.Remaining)
}

func (e *InvalidCodeError) Unwrap() error { return domain.ErrInvalidCode }

// BlockedError reports an IP block and the moment it lifts.
type BlockedError struct {
	Until time.Time
}

func (e *BlockedError) Error() string {
	return "ip address blocked until " + e.Until.UTC().Format(time.RFC3339)
}

func (e *BlockedError) Unwrap() error { return domain.ErrIPBlocked }

func invalidArgument(msg string) error {
	return fmt.Errorf("%w: %s", domain.ErrInvalidArgument, msg)
}
