package queue

import (
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeadLetterSubject(t *testing.T) {
	assert.Equal(t, "ingest.dead.url", DeadLetterSubject(SubjectURL))
	assert.Equal(t, "ingest.dead.offer", DeadLetterSubject(SubjectOffer))
	assert.Equal(t, "ingest.dead.offer_other", DeadLetterSubject("ingest.offer.other"))
}

func TestTopology(t *testing.T) {
	topo := Topology{AckWait: 3 * time.Minute, MaxAckPending: 16}

	streams := topo.streams()
	require.Len(t, streams, 2)
	assert.Equal(t, StreamName, streams[0].Name)
	assert.Equal(t, nats.WorkQueuePolicy, streams[0].Retention)
	assert.ElementsMatch(t, []string{SubjectURL, SubjectOffer}, streams[0].Subjects)
	assert.Equal(t, DuplicateWindow, streams[0].Duplicates)
	assert.Equal(t, DeadStreamName, streams[1].Name)
	assert.Equal(t, []string{"ingest.dead.>"}, streams[1].Subjects)

	consumer := topo.consumer()
	assert.Equal(t, ConsumerName, consumer.Durable)
	assert.Equal(t, nats.AckExplicitPolicy, consumer.AckPolicy)
	assert.Equal(t, 3*time.Minute, consumer.AckWait)
	assert.Equal(t, -1, consumer.MaxDeliver)
	assert.Equal(t, SubjectAll, consumer.FilterSubject)
}
