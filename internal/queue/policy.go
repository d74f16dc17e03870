package queue

import (
	"time"

	"github.com/jonathan/offer-ingest/internal/dispatch"
)

// RetryPolicy controls redelivery of transiently failed messages. The zero value
// requeues immediately and never gives up.
type RetryPolicy struct {
	// Delays are the NakWithDelay tiers by delivery attempt; the last tier repeats.
	Delays []time.Duration
	// MaxDeliver dead-letters a message once it has been delivered this many times.
	// Zero means unbounded.
	MaxDeliver int
}

// ActionKind is what the consumer does with a message after handling it.
type ActionKind string

const (
	ActionAck        ActionKind = "ack"
	ActionNak        ActionKind = "nak"
	ActionNakDelay   ActionKind = "nak_delay"
	ActionTerm       ActionKind = "term"
	ActionDeadLetter ActionKind = "dead_letter"
)

// Action is the acknowledgement decision for one delivery.
type Action struct {
	Kind  ActionKind
	Delay time.Duration
}

// decideAction maps a handler result and delivery count onto an acknowledgement.
func decideAction(res dispatch.Result, delivered uint64, policy RetryPolicy) Action {
	switch res.Outcome {
	case dispatch.Committed:
		return Action{Kind: ActionAck}
	case dispatch.Retried:
		if policy.MaxDeliver > 0 && delivered >= uint64(policy.MaxDeliver) {
			return Action{Kind: ActionDeadLetter}
		}
		if len(policy.Delays) == 0 {
			return Action{Kind: ActionNak}
		}
		tier := 0
		if delivered > 1 {
			tier = int(delivered - 1)
		}
		if tier >= len(policy.Delays) {
			tier = len(policy.Delays) - 1
		}
		return Action{Kind: ActionNakDelay, Delay: policy.Delays[tier]}
	default:
		return Action{Kind: ActionTerm}
	}
}
