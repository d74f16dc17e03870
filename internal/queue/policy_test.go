package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jonathan/offer-ingest/internal/dispatch"
)

func TestDecideAction(t *testing.T) {
	tiers := RetryPolicy{Delays: []time.Duration{time.Second, 30 * time.Second, 5 * time.Minute}, MaxDeliver: 6}
	retried := dispatch.Result{Outcome: dispatch.Retried, Class: dispatch.Transient}

	tests := []struct {
		name      string
		res       dispatch.Result
		delivered uint64
		policy    RetryPolicy
		want      Action
	}{
		{name: "committed acks", res: dispatch.Result{Outcome: dispatch.Committed}, delivered: 1, want: Action{Kind: ActionAck}},
		{name: "dropped terms", res: dispatch.Result{Outcome: dispatch.DroppedNonRetryable}, delivered: 1, want: Action{Kind: ActionTerm}},
		{name: "dropped terms under tiers", res: dispatch.Result{Outcome: dispatch.DroppedNonRetryable}, delivered: 1, policy: tiers, want: Action{Kind: ActionTerm}},
		{name: "default retries immediately", res: retried, delivered: 1, want: Action{Kind: ActionNak}},
		{name: "default never gives up", res: retried, delivered: 10000, want: Action{Kind: ActionNak}},
		{name: "first tier", res: retried, delivered: 1, policy: tiers, want: Action{Kind: ActionNakDelay, Delay: time.Second}},
		{name: "second tier", res: retried, delivered: 2, policy: tiers, want: Action{Kind: ActionNakDelay, Delay: 30 * time.Second}},
		{name: "last tier repeats", res: retried, delivered: 5, policy: tiers, want: Action{Kind: ActionNakDelay, Delay: 5 * time.Minute}},
		{name: "dead letter at max deliver", res: retried, delivered: 6, policy: tiers, want: Action{Kind: ActionDeadLetter}},
		{name: "dead letter past max deliver", res: retried, delivered: 9, policy: tiers, want: Action{Kind: ActionDeadLetter}},
		{name: "max deliver without delays", res: retried, delivered: 2, policy: RetryPolicy{MaxDeliver: 3}, want: Action{Kind: ActionNak}},
		{name: "missing metadata counts as first delivery", res: retried, delivered: 0, policy: tiers, want: Action{Kind: ActionNakDelay, Delay: time.Second}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, decideAction(tt.res, tt.delivered, tt.policy))
		})
	}
}
