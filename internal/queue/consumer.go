package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// JobHandler processes one judge job. A returned error means the delivery
// is dropped without requeue: the task table owns retries, so a poisoned
// message must not loop through the broker.
type JobHandler func(ctx context.Context, job *JudgeJob) error

// Consumer consumes judge jobs from the queue
type Consumer struct {
	conn       *Connection
	handler    JobHandler
	workers    int
	prefetch   int
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// ConsumerConfig holds consumer configuration
type ConsumerConfig struct {
	Workers  int // Number of concurrent workers
	Prefetch int // Prefetch count per worker
}

// DefaultConsumerConfig returns sensible defaults
func DefaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		Workers:  3,
		Prefetch: 1, // Process one at a time per worker for fairness
	}
}

// NewConsumer creates a new queue consumer
func NewConsumer(conn *Connection, handler JobHandler, cfg ConsumerConfig) *Consumer {
	if cfg.Workers <= 0 {
		cfg.Workers = 3
	}
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 1
	}

	return &Consumer{
		conn:     conn,
		handler:  handler,
		workers:  cfg.Workers,
		prefetch: cfg.Prefetch,
	}
}

// Start begins consuming messages. The delivery channel dies with the
// underlying connection; after a reconnect the consumer subscribes again
// on the new channel, so a broker restart does not silence the workers.
func (c *Consumer) Start(ctx context.Context) error {
	ctx, c.cancelFunc = context.WithCancel(ctx)

	msgs, err := c.subscribe()
	if err != nil {
		return err
	}

	slog.Info("starting judge queue consumer", "workers", c.workers, "prefetch", c.prefetch)

	c.wg.Add(1)
	go c.run(ctx, msgs)

	return nil
}

// subscribe sets QoS and opens a delivery channel on the current connection
func (c *Consumer) subscribe() (<-chan amqp.Delivery, error) {
	ch := c.conn.Channel()
	if ch == nil {
		return nil, fmt.Errorf("no channel available")
	}

	// Set QoS (prefetch)
	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	msgs, err := ch.Consume(
		JudgeQueueName,
		"",    // consumer tag (auto-generated)
		false, // auto-ack (manual ack for reliability)
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	return msgs, nil
}

// run drives worker pools over successive delivery channels, subscribing
// again whenever a reconnect closes the current one.
func (c *Consumer) run(ctx context.Context, msgs <-chan amqp.Delivery) {
	defer c.wg.Done()

	for {
		var workers sync.WaitGroup
		for i := 0; i < c.workers; i++ {
			workers.Add(1)
			go func(id int) {
				defer workers.Done()
				c.worker(ctx, id, msgs)
			}(i)
		}
		workers.Wait()

		if ctx.Err() != nil {
			return
		}

		slog.Warn("delivery channel closed, resubscribing")
		var err error
		msgs, err = c.resubscribe(ctx)
		if err != nil {
			slog.Error("failed to resubscribe after reconnect", "error", err)
			return
		}
	}
}

// resubscribe waits for the connection to come back and opens a fresh
// delivery channel on it
func (c *Consumer) resubscribe(ctx context.Context) (<-chan amqp.Delivery, error) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			if !c.conn.IsConnected() {
				continue
			}
			msgs, err := c.subscribe()
			if err != nil {
				slog.Warn("resubscribe attempt failed", "error", err)
				continue
			}
			slog.Info("resubscribed to judge queue")
			return msgs, nil
		}
	}
}

// worker processes messages from the queue
func (c *Consumer) worker(ctx context.Context, id int, msgs <-chan amqp.Delivery) {
	slog.Info("worker started", "worker_id", id)

	for {
		select {
		case <-ctx.Done():
			slog.Info("worker stopping", "worker_id", id)
			return

		case msg, ok := <-msgs:
			if !ok {
				slog.Info("message channel closed", "worker_id", id)
				return
			}

			c.processMessage(ctx, id, msg)
		}
	}
}

// processMessage handles a single message
func (c *Consumer) processMessage(ctx context.Context, workerID int, msg amqp.Delivery) {
	start := time.Now()

	// Parse job
	var job JudgeJob
	if err := json.Unmarshal(msg.Body, &job); err != nil {
		slog.Error("failed to unmarshal job",
			"worker_id", workerID,
			"error", err,
		)
		// Reject without requeue for malformed messages
		_ = msg.Reject(false)
		return
	}

	slog.Info("processing judge job",
		"worker_id", workerID,
		"task_id", job.TaskID,
		"submission_id", job.SubmissionID,
		"attempt", job.Attempt,
	)

	err := c.handler(ctx, &job)
	duration := time.Since(start)

	if err != nil {
		slog.Error("judge job failed",
			"worker_id", workerID,
			"task_id", job.TaskID,
			"submission_id", job.SubmissionID,
			"error", err,
			"duration", duration,
		)
	} else {
		slog.Info("judge job completed",
			"worker_id", workerID,
			"task_id", job.TaskID,
			"submission_id", job.SubmissionID,
			"duration", duration,
		)
	}

	// Acknowledge either way; the repair loop re-dispatches tasks whose
	// submission never reached a terminal state.
	if err := msg.Ack(false); err != nil {
		slog.Error("failed to ack message",
			"worker_id", workerID,
			"task_id", job.TaskID,
			"error", err,
		)
	}
}

// Stop gracefully stops the consumer
func (c *Consumer) Stop() {
	if c.cancelFunc != nil {
		c.cancelFunc()
	}
	c.wg.Wait()
	slog.Info("consumer stopped")
}
