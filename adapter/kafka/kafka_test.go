package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trickstertwo/xport"
	"github.com/trickstertwo/xport/adapter/memory"
	"github.com/trickstertwo/xport/library"
	"github.com/trickstertwo/xport/library/librarytest"
)

type fakeReader struct {
	msgs chan kafka.Message

	mu        sync.Mutex
	committed []kafka.Message
	closed    bool
}

func newFakeReader(msgs ...kafka.Message) *fakeReader {
	r := &fakeReader{msgs: make(chan kafka.Message, len(msgs))}
	for _, m := range msgs {
		r.msgs <- m
	}
	return r
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case m := <-r.msgs:
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	r.committed = append(r.committed, msgs...)
	r.mu.Unlock()
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return nil
}

func (r *fakeReader) commits() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.committed)
}

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func testConfig() Config {
	return ConfigFromMap(xport.Config{"brokers": "broker-1:9092, broker-2:9092"})
}

func TestInterface_DispatchesRecordsAndCommits(t *testing.T) {
	db := memory.NewDatabase(memory.Config{})
	bus, err := xport.NewBusBuilder().Build()
	require.NoError(t, err)
	require.NoError(t, library.Wire(bus, db, nil))
	bus.Seal()

	dune, err := json.Marshal(librarytest.Dune)
	require.NoError(t, err)
	foundation, err := json.Marshal(librarytest.Foundation)
	require.NoError(t, err)
	reader := newFakeReader(
		kafka.Message{Topic: "library.register", Value: dune},
		kafka.Message{Topic: "library.commands", Value: foundation, Headers: []kafka.Header{{Key: "command", Value: []byte("register")}}},
		kafka.Message{Topic: "library.unknown", Value: []byte("{}")},
	)

	in, err := NewInterface(testConfig())
	require.NoError(t, err)
	in.open = func(Config) messageReader { return reader }
	in.SetMessageBus(bus)
	in.SetView(db.View())
	require.NoError(t, in.Start(context.Background()))

	require.Eventually(t, func() bool { return reader.commits() == 3 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, in.Stop(context.Background()))
	assert.True(t, reader.closed)
	assert.Equal(t, 2, db.Len())
}

func TestInterface_StartNeedsBus(t *testing.T) {
	in, err := NewInterface(testConfig())
	require.NoError(t, err)
	assert.Error(t, in.Start(context.Background()))
	assert.NoError(t, in.Stop(context.Background()))
}

func TestNewInterface_Validates(t *testing.T) {
	cfg := testConfig()
	cfg.Topics = nil
	_, err := NewInterface(cfg)
	assert.Error(t, err)
}

func TestSender_WritesKeyedRecord(t *testing.T) {
	s, err := NewSender(testConfig())
	require.NoError(t, err)
	w := &fakeWriter{}
	s.writer = w

	require.NoError(t, s.Send(context.Background(), "registered"))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "registered", string(w.msgs[0].Value))
	assert.NotEmpty(t, w.msgs[0].Key)
	assert.Equal(t, string(w.msgs[0].Key), string(w.msgs[0].Headers[0].Value))

	w.err = errors.New("broker down")
	assert.ErrorContains(t, s.Send(context.Background(), "x"), "broker down")
}

func TestConfigFromMap_SplitsLists(t *testing.T) {
	cfg := testConfig()
	assert.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, cfg.Brokers)
	assert.Equal(t, []string{"library.register"}, cfg.Topics)
	assert.Equal(t, "library.notifications", cfg.NotifyTopic)
}
