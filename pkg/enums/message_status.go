package enums

import "fmt"

// MessageStatus is the queue row state machine. Pending is the only live
// state; sent, cancelled and failed are final.
type MessageStatus string

const (
	MessageStatusPending   MessageStatus = "pending"
	MessageStatusSent      MessageStatus = "sent"
	MessageStatusCancelled MessageStatus = "cancelled"
	MessageStatusFailed    MessageStatus = "failed"
)

var validMessageStatuses = []MessageStatus{
	MessageStatusPending,
	MessageStatusSent,
	MessageStatusCancelled,
	MessageStatusFailed,
}

// ActiveMessageStatuses are the states that count against the one-row-per-lead
// -and-type guarantee.
var ActiveMessageStatuses = []MessageStatus{
	MessageStatusPending,
	MessageStatusSent,
}

// String implements fmt.Stringer.
func (m MessageStatus) String() string {
	return string(m)
}

// IsValid reports whether the value is a known MessageStatus.
func (m MessageStatus) IsValid() bool {
	for _, candidate := range validMessageStatuses {
		if candidate == m {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is allowed.
func (m MessageStatus) IsTerminal() bool {
	return m == MessageStatusSent || m == MessageStatusCancelled || m == MessageStatusFailed
}

// CanTransitionTo enforces the monotonic state machine: pending may move to
// any terminal state, terminal states never move.
func (m MessageStatus) CanTransitionTo(next MessageStatus) bool {
	if m != MessageStatusPending {
		return false
	}
	switch next {
	case MessageStatusSent, MessageStatusCancelled, MessageStatusFailed:
		return true
	}
	return false
}

// ParseMessageStatus converts raw input into a MessageStatus.
func ParseMessageStatus(value string) (MessageStatus, error) {
	for _, candidate := range validMessageStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid message status %q", value)
}
