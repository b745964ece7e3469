package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordJob struct {
	got []json.RawMessage
	err error
}

func (j *recordJob) Name() string { return "record" }
func (j *recordJob) Type() string { return "decide" }

func (j *recordJob) Handle(_ context.Context, payload json.RawMessage) error {
	j.got = append(j.got, payload)
	return j.err
}

// envelope matches a command whose last argument is a JSON Message
// satisfying check.
func envelope(key string, check func(Message) error) redismock.CustomMatch {
	return func(_, actual []interface{}) error {
		if len(actual) < 3 || actual[1] != key {
			return fmt.Errorf("unexpected args %v", actual)
		}
		raw, ok := actual[len(actual)-1].([]byte)
		if !ok {
			return fmt.Errorf("payload type %T", actual[len(actual)-1])
		}
		var m Message
		if err := json.Unmarshal(raw, &m); err != nil {
			return err
		}
		return check(m)
	}
}

func TestEnqueueWritesEnvelope(t *testing.T) {
	db, mock := redismock.NewClientMock()
	mock.CustomMatch(envelope("newssignal:queue:messages", func(m Message) error {
		if m.Type != "decide" || m.ID == "" || string(m.Payload) != `{"text":"Fed holds"}` {
			return fmt.Errorf("unexpected message %+v", m)
		}
		return nil
	})).ExpectLPush("newssignal:queue:messages", []byte("x")).SetVal(1)

	id, err := New(db, Config{}).Enqueue(context.Background(), "decide", map[string]string{"text": "Fed holds"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessDispatchesToJob(t *testing.T) {
	db, mock := redismock.NewClientMock()
	job := &recordJob{}
	q := New(db, Config{}, WithJobs(job))

	q.process(context.Background(), Message{ID: "1", Type: "decide", Payload: json.RawMessage(`{"a":1}`)})
	require.Len(t, job.got, 1)
	assert.JSONEq(t, `{"a":1}`, string(job.got[0]))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessSchedulesRetryWithError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	job := &recordJob{err: errors.New("engine busy")}
	q := New(db, Config{RetryLimit: 2, RetryDelay: time.Minute}, WithJobs(job), WithKeyPrefix("test:queue"))

	mock.CustomMatch(envelope("test:queue:retry", func(m Message) error {
		if m.Attempts != 1 || m.LastError != "engine busy" {
			return fmt.Errorf("unexpected retry %+v", m)
		}
		return nil
	})).ExpectZAdd("test:queue:retry", redis.Z{}).SetVal(1)

	q.process(context.Background(), Message{ID: "2", Type: "decide", Payload: json.RawMessage(`{}`)})
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessDeadLettersExhaustedAndUnknown(t *testing.T) {
	db, mock := redismock.NewClientMock()
	job := &recordJob{err: errors.New("engine busy")}
	q := New(db, Config{RetryLimit: 1}, WithJobs(job), WithKeyPrefix("test:queue"))

	mock.CustomMatch(envelope("test:queue:dlq", func(m Message) error {
		if m.ID != "3" || m.Attempts != 2 {
			return fmt.Errorf("unexpected dead letter %+v", m)
		}
		return nil
	})).ExpectLPush("test:queue:dlq", []byte("x")).SetVal(1)
	q.process(context.Background(), Message{ID: "3", Type: "decide", Attempts: 1})

	mock.CustomMatch(envelope("test:queue:dlq", func(m Message) error {
		if m.Type != "bogus" {
			return fmt.Errorf("unexpected dead letter %+v", m)
		}
		return nil
	})).ExpectLPush("test:queue:dlq", []byte("x")).SetVal(1)
	q.process(context.Background(), Message{ID: "4", Type: "bogus"})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPromoteDueSkipsMembersTakenElsewhere(t *testing.T) {
	db, mock := redismock.NewClientMock()
	q := New(db, Config{}, WithKeyPrefix("p"))
	now := time.Unix(1000, 0)

	mock.ExpectZRangeByScore("p:retry", &redis.ZRangeBy{Min: "-inf", Max: "1000"}).SetVal([]string{"a", "b"})
	mock.ExpectZRem("p:retry", "a").SetVal(1)
	mock.ExpectLPush("p:messages", "a").SetVal(1)
	mock.ExpectZRem("p:retry", "b").SetVal(0)

	moved, err := q.promoteDue(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, moved)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDepth(t *testing.T) {
	db, mock := redismock.NewClientMock()
	q := New(db, Config{}, WithKeyPrefix("p"))
	mock.ExpectLLen("p:messages").SetVal(4)
	mock.ExpectZCard("p:retry").SetVal(2)
	mock.ExpectLLen("p:dlq").SetVal(1)

	pending, retry, dead, err := q.Depth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{4, 2, 1}, []int64{pending, retry, dead})
}

func TestRetryDelayDoubles(t *testing.T) {
	cfg := Config{RetryDelay: time.Second}.withDefaults()
	now := time.Unix(0, 0)
	assert.Equal(t, now.Add(time.Second), cfg.retryAt(now, 1))
	assert.Equal(t, now.Add(4*time.Second), cfg.retryAt(now, 3))
}

func TestStartWithoutJobsIsNoop(t *testing.T) {
	db, mock := redismock.NewClientMock()
	q := New(db, Config{})
	require.NoError(t, q.Start(context.Background()))
	require.NoError(t, q.Stop(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
