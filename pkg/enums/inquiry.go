package enums

import "fmt"

// InquiryStatus is the lifecycle state of a buyer/owner contact thread.
type InquiryStatus string

const (
	InquiryStatusPending   InquiryStatus = "pending"
	InquiryStatusAccepted  InquiryStatus = "accepted"
	InquiryStatusDeclined  InquiryStatus = "declined"
	InquiryStatusCompleted InquiryStatus = "completed"
)

var validInquiryStatuses = []InquiryStatus{
	InquiryStatusPending,
	InquiryStatusAccepted,
	InquiryStatusDeclined,
	InquiryStatusCompleted,
}

func (s InquiryStatus) String() string {
	return string(s)
}

func (s InquiryStatus) IsValid() bool {
	for _, candidate := range validInquiryStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsResolved reports whether the thread has left the pending state.
func (s InquiryStatus) IsResolved() bool {
	return s != InquiryStatusPending
}

func ParseInquiryStatus(value string) (InquiryStatus, error) {
	for _, candidate := range validInquiryStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid inquiry status %q", value)
}

// InquiryInitiator records which side opened the thread; the counterpart is the
// side allowed to accept or decline it.
type InquiryInitiator string

const (
	InquiryInitiatorOwner InquiryInitiator = "owner"
	InquiryInitiatorBuyer InquiryInitiator = "buyer"
)

func (i InquiryInitiator) IsValid() bool {
	return i == InquiryInitiatorOwner || i == InquiryInitiatorBuyer
}

func ParseInquiryInitiator(value string) (InquiryInitiator, error) {
	switch InquiryInitiator(value) {
	case InquiryInitiatorOwner:
		return InquiryInitiatorOwner, nil
	case InquiryInitiatorBuyer:
		return InquiryInitiatorBuyer, nil
	}
	return "", fmt.Errorf("invalid inquiry initiator %q", value)
}
