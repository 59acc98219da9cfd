package relay

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xerrors "UnifiedMCP-Client/internal/errors"
)

func TestNewEvent(t *testing.T) {
	event, err := NewEvent("task_updated", map[string]any{"id": "t1"})
	require.NoError(t, err)
	assert.NotEmpty(t, event.ID)
	assert.Equal(t, "task_updated", event.Name)
	assert.JSONEq(t, `{"id":"t1"}`, string(event.Data))
	assert.WithinDuration(t, time.Now(), event.ReceivedAt, time.Second)

	other, err := NewEvent("task_updated", nil)
	require.NoError(t, err)
	assert.NotEqual(t, event.ID, other.ID)
	assert.Equal(t, "null", string(other.Data))

	_, err = NewEvent(" ", nil)
	assert.Equal(t, xerrors.CodeInvalidArgument, xerrors.CodeOf(err))
}

func TestMemorySink(t *testing.T) {
	sink := NewMemorySink(1)
	ctx := context.Background()

	require.NoError(t, sink.Publish(ctx, Event{ID: "e1"}))

	full, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, sink.Publish(full, Event{ID: "e2"}), context.DeadlineExceeded)

	got := <-sink.Events()
	assert.Equal(t, "e1", got.ID)

	require.NoError(t, sink.Close())
	require.NoError(t, sink.Close())
	_, open := <-sink.Events()
	assert.False(t, open)
	assert.Equal(t, xerrors.CodeSinkFailure, xerrors.CodeOf(sink.Publish(ctx, Event{ID: "e3"})))
}

type recordingSink struct {
	mu     sync.Mutex
	events []Event
	err    error
	closed bool
}

func (s *recordingSink) Publish(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return s.err
}

func (s *recordingSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func TestFanoutDeliversToEverySink(t *testing.T) {
	failing := &recordingSink{err: errors.New("broker down")}
	healthy := &recordingSink{}
	fanout := NewFanout(failing, nil, healthy)

	err := fanout.Publish(context.Background(), Event{ID: "e1", Name: "task_deleted"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
	assert.Len(t, failing.events, 1)
	assert.Len(t, healthy.events, 1)

	require.NoError(t, fanout.Close())
	assert.True(t, failing.closed)
	assert.True(t, healthy.closed)
}

func TestOpenWithoutDrivers(t *testing.T) {
	sink, err := Open(context.Background(), Config{})
	require.NoError(t, err)
	assert.Nil(t, sink)
}

func TestOpenSelectsDrivers(t *testing.T) {
	sink, err := Open(context.Background(), Config{Drivers: []string{"memory"}})
	require.NoError(t, err)
	assert.IsType(t, &MemorySink{}, sink)

	sink, err = Open(context.Background(), Config{Drivers: []string{"memory", " Memory "}})
	require.NoError(t, err)
	assert.IsType(t, &Fanout{}, sink)
	require.NoError(t, sink.Close())

	_, err = Open(context.Background(), Config{Drivers: []string{"memory", "kafka"}})
	assert.Equal(t, xerrors.CodeInvalidArgument, xerrors.CodeOf(err))
}

func TestOpenRejectsIncompleteDriverConfig(t *testing.T) {
	for _, driver := range []string{DriverRedis, DriverRabbitMQ, DriverMySQL} {
		_, err := Open(context.Background(), Config{Drivers: []string{driver}})
		assert.Equal(t, xerrors.CodeInvalidArgument, xerrors.CodeOf(err), driver)
	}
}

type fakeRedis struct {
	published map[string][]string
	lists     map[string][]string
	trimmed   []int64
	err       error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{published: map[string][]string{}, lists: map[string][]string{}}
}

func (f *fakeRedis) Publish(_ context.Context, channel string, message interface{}) *redis.IntCmd {
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	f.published[channel] = append(f.published[channel], string(message.([]byte)))
	return redis.NewIntResult(1, nil)
}

func (f *fakeRedis) LPush(_ context.Context, key string, values ...interface{}) *redis.IntCmd {
	for _, v := range values {
		f.lists[key] = append([]string{string(v.([]byte))}, f.lists[key]...)
	}
	return redis.NewIntResult(int64(len(f.lists[key])), nil)
}

func (f *fakeRedis) LTrim(_ context.Context, key string, start, stop int64) *redis.StatusCmd {
	f.trimmed = append(f.trimmed, stop)
	if int(stop)+1 < len(f.lists[key]) {
		f.lists[key] = f.lists[key][start : stop+1]
	}
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Close() error { return nil }

func TestRedisSinkPublishesToChannel(t *testing.T) {
	client := newFakeRedis()
	sink := newRedisSink(client, RedisConfig{})

	event := Event{ID: "e1", Name: "agent_updated", Data: json.RawMessage(`{"id":"a1"}`)}
	require.NoError(t, sink.Publish(context.Background(), event))

	require.Len(t, client.published["unifiedmcp:events"], 1)
	var decoded Event
	require.NoError(t, json.Unmarshal([]byte(client.published["unifiedmcp:events"][0]), &decoded))
	assert.Equal(t, "e1", decoded.ID)
	assert.Equal(t, "agent_updated", decoded.Name)
	assert.Empty(t, client.lists)
}

func TestRedisSinkKeepsBoundedList(t *testing.T) {
	client := newFakeRedis()
	sink := newRedisSink(client, RedisConfig{Channel: "events", List: "events:log", MaxLen: 2})

	for _, id := range []string{"e1", "e2", "e3"} {
		require.NoError(t, sink.Publish(context.Background(), Event{ID: id, Name: "task_updated"}))
	}

	assert.Len(t, client.published["events"], 3)
	assert.Len(t, client.lists["events:log"], 2)
	assert.Equal(t, []int64{1, 1, 1}, client.trimmed)
}

func TestRedisSinkWrapsErrors(t *testing.T) {
	client := newFakeRedis()
	client.err = errors.New("connection refused")
	sink := newRedisSink(client, RedisConfig{})

	err := sink.Publish(context.Background(), Event{ID: "e1"})
	require.Error(t, err)
	assert.Equal(t, xerrors.CodeSinkFailure, xerrors.CodeOf(err))
	assert.True(t, xerrors.IsTransient(err))
}

type fakeChannel struct {
	exchange string
	key      string
	msg      amqp.Publishing
	err      error
	closed   bool
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	f.exchange, f.key, f.msg = exchange, key, msg
	return f.err
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func TestRabbitMQSinkPublishesToDefaultQueue(t *testing.T) {
	ch := &fakeChannel{}
	sink := newRabbitMQSink(ch, RabbitMQConfig{Durable: true})

	received := time.Unix(1700000000, 0).UTC()
	require.NoError(t, sink.Publish(context.Background(), Event{ID: "e1", Name: "task_updated", ReceivedAt: received}))

	assert.Equal(t, "", ch.exchange)
	assert.Equal(t, "unifiedmcp.events", ch.key)
	assert.Equal(t, "application/json", ch.msg.ContentType)
	assert.Equal(t, "e1", ch.msg.MessageId)
	assert.Equal(t, "task_updated", ch.msg.Type)
	assert.Equal(t, amqp.Persistent, ch.msg.DeliveryMode)
	assert.True(t, ch.msg.Timestamp.Equal(received))

	require.NoError(t, sink.Close())
	assert.True(t, ch.closed)
}

func TestRabbitMQSinkRoutesByEventName(t *testing.T) {
	ch := &fakeChannel{}
	sink := newRabbitMQSink(ch, RabbitMQConfig{Exchange: "mcp"})

	require.NoError(t, sink.Publish(context.Background(), Event{ID: "e1", Name: "agent_updated"}))
	assert.Equal(t, "mcp", ch.exchange)
	assert.Equal(t, "agent_updated", ch.key)
	assert.Equal(t, uint8(0), ch.msg.DeliveryMode)

	sink = newRabbitMQSink(ch, RabbitMQConfig{Exchange: "mcp", RoutingKey: "mcp.push"})
	require.NoError(t, sink.Publish(context.Background(), Event{ID: "e2", Name: "agent_updated"}))
	assert.Equal(t, "mcp.push", ch.key)
}

func TestRabbitMQSinkWrapsErrors(t *testing.T) {
	ch := &fakeChannel{err: amqp.ErrClosed}
	sink := newRabbitMQSink(ch, RabbitMQConfig{})

	err := sink.Publish(context.Background(), Event{ID: "e1"})
	require.Error(t, err)
	assert.Equal(t, xerrors.CodeSinkFailure, xerrors.CodeOf(err))
	assert.ErrorIs(t, err, amqp.ErrClosed)
}
