package queue

import (
	"context"
	"errors"
	"testing"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/dkarali/urlmeta/internal/logging"
)

type capturingHandler struct {
	tasks []Task
}

func (h *capturingHandler) Handle(ctx context.Context, task Task) {
	h.tasks = append(h.tasks, task)
}

type recordingCommitter struct {
	calls [][]*kgo.Record
	err   error
}

func (r *recordingCommitter) CommitRecords(ctx context.Context, rs ...*kgo.Record) error {
	r.calls = append(r.calls, rs)
	return r.err
}

func newTestConsumer(h Handler, commits committer) *Consumer {
	cfg := Config{}
	return &Consumer{
		commits: commits,
		handler: h,
		cfg:     cfg.WithDefaults(),
		logger:  logging.NewTestLogger(false),
	}
}

func fetchesWith(records ...*kgo.Record) kgo.Fetches {
	return kgo.Fetches{{
		Topics: []kgo.FetchTopic{{
			Topic: "metadata-tasks",
			Partitions: []kgo.FetchPartition{{
				Partition: 0,
				Records:   records,
			}},
		}},
	}}
}

func taskRecord(offset int64, payload string) *kgo.Record {
	return &kgo.Record{
		Topic:  "metadata-tasks",
		Offset: offset,
		Value:  []byte(payload),
	}
}

func TestConsumeFetches_OneCommitPerHandledRecord(t *testing.T) {
	t.Parallel()

	h := &capturingHandler{}
	commits := &recordingCommitter{}
	c := newTestConsumer(h, commits)

	c.consumeFetches(context.Background(), fetchesWith(
		taskRecord(0, `{"url":"https://a.example/"}`),
		taskRecord(1, `{"url":"https://b.example/","retry_count":2}`),
	))

	if len(h.tasks) != 2 {
		t.Fatalf("handled tasks = %v, want two", h.tasks)
	}
	if h.tasks[1].RetryCount != 2 {
		t.Errorf("second task retry_count = %d, want 2", h.tasks[1].RetryCount)
	}
	if len(commits.calls) != 2 {
		t.Fatalf("commit calls = %d, want exactly one per handled record", len(commits.calls))
	}
	for i, call := range commits.calls {
		if len(call) != 1 || call[0].Offset != int64(i) {
			t.Errorf("commit %d = offsets %v, want the single record at offset %d", i, call, i)
		}
	}
}

func TestConsumeFetches_SkipsUndecodableWithoutCommit(t *testing.T) {
	t.Parallel()

	h := &capturingHandler{}
	commits := &recordingCommitter{}
	c := newTestConsumer(h, commits)

	c.consumeFetches(context.Background(), fetchesWith(
		taskRecord(0, `{"url": `),
		taskRecord(1, `{"retry_count":1}`),
	))

	if len(h.tasks) != 0 {
		t.Errorf("undecodable payloads must not reach the handler: %v", h.tasks)
	}
	if len(commits.calls) != 0 {
		t.Errorf("skipped payloads must not be committed: %v", commits.calls)
	}
}

func TestConsumeFetches_MixedBatchCommitsOnlyHandled(t *testing.T) {
	t.Parallel()

	h := &capturingHandler{}
	commits := &recordingCommitter{}
	c := newTestConsumer(h, commits)

	c.consumeFetches(context.Background(), fetchesWith(
		taskRecord(0, `{"url":"https://a.example/"}`),
		taskRecord(1, `not json`),
		taskRecord(2, `{"url":"https://b.example/"}`),
	))

	if len(h.tasks) != 2 {
		t.Fatalf("handled tasks = %v, want the two valid ones", h.tasks)
	}
	if len(commits.calls) != 2 {
		t.Fatalf("commit calls = %d, want 2", len(commits.calls))
	}
	if commits.calls[0][0].Offset != 0 || commits.calls[1][0].Offset != 2 {
		t.Errorf("committed offsets = [%d, %d], want [0, 2]",
			commits.calls[0][0].Offset, commits.calls[1][0].Offset)
	}
}

func TestConsumeFetches_CommitFailureDoesNotStopTheBatch(t *testing.T) {
	t.Parallel()

	h := &capturingHandler{}
	commits := &recordingCommitter{err: errors.New("broker away")}
	c := newTestConsumer(h, commits)

	c.consumeFetches(context.Background(), fetchesWith(
		taskRecord(0, `{"url":"https://a.example/"}`),
		taskRecord(1, `{"url":"https://b.example/"}`),
	))

	// Commits failed, but every record was still dispatched and a commit was
	// attempted for each.
	if len(h.tasks) != 2 {
		t.Errorf("handled tasks = %v, want two", h.tasks)
	}
	if len(commits.calls) != 2 {
		t.Errorf("commit attempts = %d, want 2", len(commits.calls))
	}
}
