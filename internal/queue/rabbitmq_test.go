package queue

import (
	"context"
	"errors"
	"fmt"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
)

type recordingAcknowledger struct {
	acked   bool
	nacked  bool
	requeue bool
}

func (r *recordingAcknowledger) Ack(tag uint64, multiple bool) error {
	r.acked = true
	return nil
}

func (r *recordingAcknowledger) Nack(tag uint64, multiple, requeue bool) error {
	r.nacked = true
	r.requeue = requeue
	return nil
}

func (r *recordingAcknowledger) Reject(tag uint64, requeue bool) error {
	return nil
}

func TestDispatch_AcksOnSuccess(t *testing.T) {
	ack := &recordingAcknowledger{}
	msg := amqp.Delivery{Acknowledger: ack, Body: []byte(`{"analysis_id":"a1"}`)}

	var got []byte
	dispatch(context.Background(), msg, func(_ context.Context, body []byte) error {
		got = body
		return nil
	})

	assert.Equal(t, msg.Body, got)
	assert.True(t, ack.acked)
	assert.False(t, ack.nacked)
}

func TestDispatch_RequeuesOnError(t *testing.T) {
	ack := &recordingAcknowledger{}
	msg := amqp.Delivery{Acknowledger: ack, Body: []byte(`{}`)}

	dispatch(context.Background(), msg, func(context.Context, []byte) error {
		return errors.New("database unavailable")
	})

	assert.False(t, ack.acked)
	assert.True(t, ack.nacked)
	assert.True(t, ack.requeue)
}

func TestDispatch_DeadLettersRejected(t *testing.T) {
	ack := &recordingAcknowledger{}
	msg := amqp.Delivery{Acknowledger: ack, Body: []byte(`{not json`)}

	dispatch(context.Background(), msg, func(context.Context, []byte) error {
		return fmt.Errorf("%w: bad payload", ErrReject)
	})

	assert.False(t, ack.acked)
	assert.True(t, ack.nacked)
	assert.False(t, ack.requeue)
}

func TestTopology_AnalysisQueueDeadLetters(t *testing.T) {
	for _, b := range topology {
		if b.queue != QueueNameAnalysis {
			continue
		}
		assert.Equal(t, ExchangeName, b.exchange)
		assert.Equal(t, DeadLetterExchange, b.args["x-dead-letter-exchange"])
		assert.Equal(t, QueueNameDead, b.args["x-dead-letter-routing-key"])
		return
	}
	t.Fatal("analysis queue is not declared")
}

func TestPing_ClosedConnection(t *testing.T) {
	assert.Error(t, (&RabbitMQ{}).Ping(context.Background()))
}
