package enums

import "fmt"

// EscrowStatus is the lifecycle state of a held finder's fee deposit.
type EscrowStatus string

const (
	EscrowStatusPending  EscrowStatus = "pending"
	EscrowStatusHeld     EscrowStatus = "held"
	EscrowStatusReleased EscrowStatus = "released"
	EscrowStatusRefunded EscrowStatus = "refunded"
	EscrowStatusExpired  EscrowStatus = "expired"
)

var validEscrowStatuses = []EscrowStatus{
	EscrowStatusPending,
	EscrowStatusHeld,
	EscrowStatusReleased,
	EscrowStatusRefunded,
	EscrowStatusExpired,
}

// String implements fmt.Stringer.
func (s EscrowStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is known.
func (s EscrowStatus) IsValid() bool {
	for _, candidate := range validEscrowStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the deposit can never transition again.
func (s EscrowStatus) IsTerminal() bool {
	switch s {
	case EscrowStatusReleased, EscrowStatusRefunded, EscrowStatusExpired:
		return true
	}
	return false
}

// ParseEscrowStatus converts raw input into an EscrowStatus.
func ParseEscrowStatus(value string) (EscrowStatus, error) {
	for _, candidate := range validEscrowStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid escrow status %q", value)
}
