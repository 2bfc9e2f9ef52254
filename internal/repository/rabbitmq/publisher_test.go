package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"docbatch/internal/batch"
)

type published struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

type fakeChannel struct {
	sent   []published
	err    error
	closed bool
}

func (c *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, published{exchange: exchange, key: key, msg: msg})
	return nil
}

func (c *fakeChannel) Close() error {
	c.closed = true
	return nil
}

func TestEmitRoutesByKind(t *testing.T) {
	ch := &fakeChannel{}
	p := newPublisher(ch, "docbatch", nil)

	p.Emit(batch.Event{Kind: batch.EventFileFailed, JobID: "j1", FileID: "f1", Err: "bad page"})
	if len(ch.sent) != 1 {
		t.Fatalf("sent = %d", len(ch.sent))
	}
	got := ch.sent[0]
	if got.exchange != "docbatch" || got.key != "batch.file-failed" || got.msg.ContentType != "application/json" {
		t.Fatalf("published = %+v", got)
	}
	var ev batch.Event
	if err := json.Unmarshal(got.msg.Body, &ev); err != nil {
		t.Fatal(err)
	}
	if ev.JobID != "j1" || ev.Err != "bad page" {
		t.Fatalf("body = %+v", ev)
	}
}

func TestJobFinished(t *testing.T) {
	ch := &fakeChannel{}
	p := newPublisher(ch, "docbatch", nil)

	job := batch.NewJob(batch.TypeCompress, "nightly", []*batch.BatchFile{batch.NewFile("a.pdf", 1), batch.NewFile("b.pdf", 1)},
		batch.JobOptions{Operation: &batch.CompressOptions{Quality: batch.QualityLow}}, batch.PriorityLow, time.Now())
	job.Status = batch.JobFailed
	job.Files[0].Status = batch.FileCompleted
	job.Files[1].Status = batch.FileFailed

	p.JobFinished(job, time.Now())
	if ch.sent[0].key != "batch.job.failed" {
		t.Fatalf("key = %q", ch.sent[0].key)
	}
	var msg JobMessage
	if err := json.Unmarshal(ch.sent[0].msg.Body, &msg); err != nil {
		t.Fatal(err)
	}
	if msg.Completed != 1 || msg.Failed != 1 || msg.Total != 2 {
		t.Fatalf("message = %+v", msg)
	}
}

func TestPublishFailureIsSwallowed(t *testing.T) {
	ch := &fakeChannel{err: errors.New("channel closed")}
	p := newPublisher(ch, "docbatch", nil)
	p.Emit(batch.Event{Kind: batch.EventFileStarted, JobID: "j"})
	if err := p.Close(); err != nil || !ch.closed {
		t.Fatalf("close: %v", err)
	}
}
