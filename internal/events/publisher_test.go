package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/models"
)

type fakeWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaPublisher_Publish(t *testing.T) {
	w := &fakeWriter{}
	p := newKafkaPublisher(w, "folio.ledger", common.NewSilentLogger())

	at := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	event := models.LedgerEvent{
		Type:       models.EventPositionConsolidated,
		Ticker:     "AAPL",
		Account:    "Brokerage",
		PositionID: "p-1",
		RemovedIDs: []string{"p-2"},
		Actor:      "alice",
		OccurredAt: at,
	}
	require.NoError(t, p.Publish(context.Background(), event))

	require.Len(t, w.messages, 1)
	msg := w.messages[0]
	assert.Equal(t, "AAPL|Brokerage", string(msg.Key))
	assert.Equal(t, at, msg.Time)
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "position.consolidated", string(msg.Headers[0].Value))

	var decoded models.LedgerEvent
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, event.Type, decoded.Type)
	assert.Equal(t, []string{"p-2"}, decoded.RemovedIDs)
	assert.Equal(t, "alice", decoded.Actor)
}

func TestKafkaPublisher_BulkEventKeyedByType(t *testing.T) {
	w := &fakeWriter{}
	p := newKafkaPublisher(w, "folio.ledger", common.NewSilentLogger())

	require.NoError(t, p.Publish(context.Background(), models.LedgerEvent{Type: models.EventPositionsCleared, Count: 3}))
	require.Len(t, w.messages, 1)
	assert.Equal(t, "positions.cleared", string(w.messages[0].Key))
	assert.False(t, w.messages[0].Time.IsZero(), "occurred_at defaulted")
}

func TestKafkaPublisher_WriteError(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker unavailable")}
	p := newKafkaPublisher(w, "folio.ledger", common.NewSilentLogger())

	err := p.Publish(context.Background(), models.LedgerEvent{Type: models.EventPositionAdded, Ticker: "AAPL", Account: "IRA"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker unavailable")
	assert.Contains(t, err.Error(), "folio.ledger")
}

func TestKafkaPublisher_Close(t *testing.T) {
	w := &fakeWriter{}
	p := newKafkaPublisher(w, "t", common.NewSilentLogger())
	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestNewPublisher(t *testing.T) {
	logger := common.NewSilentLogger()

	_, ok := NewPublisher(common.EventsConfig{}, logger).(NopPublisher)
	assert.True(t, ok, "disabled events use the no-op publisher")

	pub := NewPublisher(common.EventsConfig{Enabled: true, Brokers: []string{"localhost:9092"}, Topic: "folio.ledger"}, logger)
	kp, ok := pub.(*KafkaPublisher)
	require.True(t, ok)
	assert.Equal(t, "folio.ledger", kp.topic)
	require.NoError(t, kp.Close())
}
