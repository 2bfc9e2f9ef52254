// Package rabbitmq publishes batch events to a topic exchange. File events
// go out under batch.<kind>, job outcomes under batch.job.<status>.
package rabbitmq

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"docbatch/internal/batch"
)

// channel is the part of *amqp.Channel the publisher uses.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type Publisher struct {
	channel  channel
	exchange string
	timeout  time.Duration
	log      logrus.FieldLogger
}

// JobMessage is the body published when a job settles.
type JobMessage struct {
	JobID     string          `json:"jobId"`
	Name      string          `json:"name"`
	Type      batch.JobType   `json:"type"`
	Status    batch.JobStatus `json:"status"`
	Completed int             `json:"completedFiles"`
	Failed    int             `json:"failedFiles"`
	Total     int             `json:"totalFiles"`
	Error     string          `json:"error,omitempty"`
	At        time.Time       `json:"at"`
}

func Dial(url string) (*amqp.Connection, error) {
	return amqp.Dial(url)
}

func NewPublisher(conn *amqp.Connection, exchange string, log logrus.FieldLogger) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}

	err = ch.ExchangeDeclare(
		exchange,
		"topic",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		return nil, err
	}
	return newPublisher(ch, exchange, log), nil
}

func newPublisher(ch channel, exchange string, log logrus.FieldLogger) *Publisher {
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		log = l
	}
	return &Publisher{channel: ch, exchange: exchange, timeout: 5 * time.Second, log: log}
}

func RoutingKey(kind batch.EventKind) string {
	return "batch." + string(kind)
}

func JobRoutingKey(status batch.JobStatus) string {
	return "batch.job." + string(status)
}

func (p *Publisher) Publish(ctx context.Context, key string, body json.RawMessage) error {
	return p.channel.PublishWithContext(ctx,
		p.exchange,
		key,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
}

// Emit publishes a file event. Failures are logged, not returned, so a
// broker outage never stops a run.
func (p *Publisher) Emit(ev batch.Event) {
	p.send(RoutingKey(ev.Kind), ev, logrus.Fields{"job_id": ev.JobID, "file_id": ev.FileID, "kind": ev.Kind})
}

// JobFinished publishes the settled state of job.
func (p *Publisher) JobFinished(job *batch.BatchJob, at time.Time) {
	msg := JobMessage{
		JobID:     job.ID,
		Name:      job.Name,
		Type:      job.Type,
		Status:    job.Status,
		Completed: batch.CountFiles(job, batch.FileCompleted),
		Failed:    batch.CountFiles(job, batch.FileFailed),
		Total:     len(job.Files),
		Error:     job.Error,
		At:        at,
	}
	p.send(JobRoutingKey(job.Status), msg, logrus.Fields{"job_id": job.ID, "status": job.Status})
}

func (p *Publisher) send(key string, v any, fields logrus.Fields) {
	body, err := json.Marshal(v)
	if err != nil {
		p.log.WithFields(fields).WithError(err).Warn("encode event")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	if err := p.Publish(ctx, key, body); err != nil {
		p.log.WithFields(fields).WithError(err).Warn("publish event")
	}
}

func (p *Publisher) Close() error {
	return p.channel.Close()
}
