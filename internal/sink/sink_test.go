package sink

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"firestige.xyz/tendium/internal/core"
)

type mockWriter struct {
	mock.Mock
}

func (m *mockWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	args := m.Called(ctx, msgs)
	return args.Error(0)
}

func (m *mockWriter) Close() error {
	return m.Called().Error(0)
}

type failingSink struct{ err error }

func (s failingSink) Send(context.Context, Record) error { return s.err }
func (s failingSink) Close() error                       { return s.err }

func TestConsole(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf)
	require.NoError(t, c.Send(context.Background(), Record{Interface: "eth0", Body: []byte("one\n")}))
	require.NoError(t, c.Send(context.Background(), Record{Interface: "eth0", Body: []byte("two\n")}))
	require.NoError(t, c.Close())
	assert.Equal(t, "one\ntwo\n", buf.String())
	assert.Equal(t, uint64(2), c.count.Load())
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		types   []string
		kafka   KafkaConfig
		wantErr bool
		check   func(t *testing.T, s Sink)
	}{
		{
			name:  "console only",
			types: []string{TypeConsole},
			check: func(t *testing.T, s Sink) {
				assert.IsType(t, &Console{}, s)
			},
		},
		{
			name:  "console and kafka",
			types: []string{TypeConsole, TypeKafka},
			kafka: KafkaConfig{Brokers: []string{"127.0.0.1:9092"}},
			check: func(t *testing.T, s Sink) {
				m, ok := s.(Multi)
				require.True(t, ok)
				assert.Len(t, m, 2)
			},
		},
		{name: "empty", wantErr: true},
		{name: "unknown type", types: []string{"loki"}, wantErr: true},
		{name: "kafka without brokers", types: []string{TypeConsole, TypeKafka}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := newWithStdout(tt.types, tt.kafka, &bytes.Buffer{})
			if tt.wantErr {
				assert.ErrorIs(t, err, core.ErrConfigInvalid)
				return
			}
			require.NoError(t, err)
			tt.check(t, s)
		})
	}
}

func TestMulti(t *testing.T) {
	var a, b bytes.Buffer
	m := Multi{NewConsole(&a), NewConsole(&b)}
	require.NoError(t, m.Send(context.Background(), Record{Body: []byte("x")}))
	assert.Equal(t, "x", a.String())
	assert.Equal(t, "x", b.String())

	boom := errors.New("boom")
	var c bytes.Buffer
	m = Multi{failingSink{err: boom}, NewConsole(&c)}
	err := m.Send(context.Background(), Record{Body: []byte("y")})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "y", c.String(), "a failing sink does not stop the others")
	assert.ErrorIs(t, m.Close(), boom)
}

func TestKafkaConfig(t *testing.T) {
	tests := []struct {
		name        string
		compression string
		wantErr     bool
	}{
		{name: "default", compression: ""},
		{name: "none", compression: "none"},
		{name: "gzip", compression: "gzip"},
		{name: "snappy", compression: "snappy"},
		{name: "lz4", compression: "lz4"},
		{name: "invalid", compression: "brotli", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k, err := NewKafka(KafkaConfig{Brokers: []string{"127.0.0.1:9092"}, Compression: tt.compression})
			if tt.wantErr {
				assert.ErrorIs(t, err, core.ErrConfigInvalid)
				return
			}
			require.NoError(t, err)
			defer k.Close()
			assert.Equal(t, DefaultKafkaTopic, k.cfg.Topic)
			assert.Equal(t, DefaultKafkaBatchSize, k.cfg.BatchSize)
			assert.Equal(t, DefaultKafkaBatchTimeout, k.cfg.BatchTimeout)
			assert.Equal(t, DefaultKafkaMaxAttempts, k.cfg.MaxAttempts)
		})
	}
}

func kafkaRecord(body string, ts time.Time) (Record, kafka.Message) {
	return Record{Interface: "eth0", Time: ts, Body: []byte(body)},
		kafka.Message{Key: []byte("eth0"), Value: []byte(body), Time: ts}
}

func TestKafkaBatchesOnSize(t *testing.T) {
	ts := time.Unix(1700000000, 0)
	r1, m1 := kafkaRecord("one", ts)
	r2, m2 := kafkaRecord("two", ts)
	r3, m3 := kafkaRecord("three", ts)

	written := make(chan int, 2)
	w := &mockWriter{}
	w.On("WriteMessages", mock.Anything, []kafka.Message{m1, m2}).
		Run(func(mock.Arguments) { written <- 2 }).Return(nil).Once()
	w.On("WriteMessages", mock.Anything, []kafka.Message{m3}).Return(nil).Once()
	w.On("Close").Return(nil)

	k := newKafka(KafkaConfig{Brokers: []string{"127.0.0.1:9092"}, BatchSize: 2, BatchTimeout: time.Hour}, w)
	ctx := context.Background()
	require.NoError(t, k.Send(ctx, r1))
	require.NoError(t, k.Send(ctx, r2))

	select {
	case <-written:
	case <-time.After(time.Second):
		t.Fatal("full batch was not written")
	}

	// the remainder is written on close
	require.NoError(t, k.Send(ctx, r3))
	require.NoError(t, k.Close())
	assert.Equal(t, uint64(3), k.reported.Load())
	assert.Equal(t, uint64(0), k.errors.Load())
	w.AssertExpectations(t)

	assert.ErrorIs(t, k.Send(ctx, r1), core.ErrSinkClosed)
	assert.NoError(t, k.Close())
}

func TestKafkaBatchesOnTimeout(t *testing.T) {
	r, m := kafkaRecord("frame", time.Unix(1700000000, 0))

	written := make(chan struct{})
	w := &mockWriter{}
	w.On("WriteMessages", mock.Anything, []kafka.Message{m}).
		Run(func(mock.Arguments) { close(written) }).Return(nil).Once()
	w.On("Close").Return(nil)

	k := newKafka(KafkaConfig{Brokers: []string{"127.0.0.1:9092"}, BatchSize: 100, BatchTimeout: 10 * time.Millisecond}, w)
	require.NoError(t, k.Send(context.Background(), r))

	select {
	case <-written:
	case <-time.After(time.Second):
		t.Fatal("partial batch was not written after the timeout")
	}
	require.NoError(t, k.Close())
	w.AssertExpectations(t)
}

func TestKafkaWriteFailure(t *testing.T) {
	w := &mockWriter{}
	w.On("WriteMessages", mock.Anything, mock.Anything).Return(errors.New("broker down")).Once()
	w.On("Close").Return(nil)

	k := newKafka(KafkaConfig{Brokers: []string{"127.0.0.1:9092"}, BatchSize: 10, BatchTimeout: time.Hour}, w)
	for _, body := range []string{"a", "b"} {
		r, _ := kafkaRecord(body, time.Time{})
		require.NoError(t, k.Send(context.Background(), r))
	}
	require.NoError(t, k.Close())

	assert.Equal(t, uint64(0), k.reported.Load())
	assert.Equal(t, uint64(2), k.errors.Load())
	w.AssertExpectations(t)
}
