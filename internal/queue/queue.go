// Package queue runs media-analysis jobs through NATS JetStream so they
// survive restarts and are retried on failure. When no NATS URL is
// configured the service falls back to in-process dispatch.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/danacepat/wa-flows/internal/pipeline"
)

// Queue publishes and consumes pipeline jobs over JetStream.
type Queue struct {
	conn    *nats.Conn
	js      jetstream.JetStream
	stream  string
	subject string
}

// Connect dials NATS and ensures the job stream exists.
func Connect(url, stream, subject string) (*Queue, error) {
	conn, err := nats.Connect(url,
		nats.Name("wa-flows"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      stream,
		Subjects:  []string{subject},
		Retention: jetstream.WorkQueuePolicy,
		Storage:   jetstream.FileStorage,
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ensure stream %s: %w", stream, err)
	}

	log.Printf("queue: connected to %s (stream=%s subject=%s)", url, stream, subject)
	return &Queue{conn: conn, js: js, stream: stream, subject: subject}, nil
}

// Dispatch publishes a job. The job ID doubles as the JetStream message
// ID, so a redelivered webhook cannot enqueue the same job twice.
func (q *Queue) Dispatch(job pipeline.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = q.js.Publish(ctx, q.subject, data, jetstream.WithMsgID(job.ID))
	if err != nil {
		return fmt.Errorf("publish job: %w", err)
	}
	return nil
}

// Consume runs the worker loop: each job is decoded and handed to the
// pipeline, acked on success and nacked for redelivery on decode failure.
// It blocks until ctx is cancelled.
func (q *Queue) Consume(ctx context.Context, p *pipeline.Pipeline) error {
	consumer, err := q.js.CreateOrUpdateConsumer(ctx, q.stream, jetstream.ConsumerConfig{
		Durable:       "wa-flows-worker",
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxDeliver:    5,
		FilterSubject: q.subject,
	})
	if err != nil {
		return fmt.Errorf("ensure consumer: %w", err)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		var job pipeline.Job
		if err := json.Unmarshal(msg.Data(), &job); err != nil {
			log.Printf("queue: dropping undecodable job: %v", err)
			msg.Term()
			return
		}
		p.Process(job)
		if err := msg.Ack(); err != nil {
			log.Printf("queue: ack job %s: %v", job.ID, err)
		}
	})
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}
	defer cc.Stop()

	<-ctx.Done()
	return nil
}

// Close drains the NATS connection.
func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}
