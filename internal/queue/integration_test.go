//go:build integration

package queue_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/codedrill/codedrill/internal/queue"
	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/rabbitmq"
)

// setupRabbitMQContainer creates a RabbitMQ container for testing and
// returns it for tests that need to restart the broker
func setupRabbitMQContainer(t *testing.T) (*rabbitmq.RabbitMQContainer, string, func()) {
	ctx := context.Background()

	container, err := rabbitmq.Run(ctx, "rabbitmq:3.12-management")
	if err != nil {
		t.Fatalf("failed to start RabbitMQ container: %v", err)
	}

	amqpURL, err := container.AmqpURL(ctx)
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("failed to get AMQP URL: %v", err)
	}

	cleanup := func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}

	return container, amqpURL, cleanup
}

func setupRabbitMQ(t *testing.T) (string, func()) {
	_, amqpURL, cleanup := setupRabbitMQContainer(t)
	return amqpURL, cleanup
}

func TestIntegration_Connection_ConnectAndClose(t *testing.T) {
	amqpURL, cleanup := setupRabbitMQ(t)
	defer cleanup()

	conn, err := queue.NewConnection(amqpURL)
	if err != nil {
		t.Fatalf("failed to create connection: %v", err)
	}

	if !conn.IsConnected() {
		t.Error("expected connection to be active")
	}

	if err := conn.Close(); err != nil {
		t.Errorf("failed to close connection: %v", err)
	}
}

func TestIntegration_Connection_InvalidURL(t *testing.T) {
	_, err := queue.NewConnection("amqp://invalid:5672")
	if err == nil {
		t.Error("expected error for invalid URL")
	}
}

func TestIntegration_Producer_PublishJudgeJob(t *testing.T) {
	amqpURL, cleanup := setupRabbitMQ(t)
	defer cleanup()

	conn, err := queue.NewConnection(amqpURL)
	if err != nil {
		t.Fatalf("failed to create connection: %v", err)
	}
	defer conn.Close()

	producer := queue.NewProducer(conn)

	job := &queue.JudgeJob{
		TaskID:       1,
		SubmissionID: uuid.New(),
		Attempt:      1,
	}

	ctx := context.Background()

	if err := producer.PublishJudgeJob(ctx, job); err != nil {
		t.Fatalf("failed to publish judge job: %v", err)
	}

	// Verify by checking queue has a message
	ch := conn.Channel()
	q, err := ch.QueueInspect(queue.JudgeQueueName)
	if err != nil {
		t.Fatalf("failed to inspect queue: %v", err)
	}

	if q.Messages != 1 {
		t.Errorf("expected 1 message in queue, got %d", q.Messages)
	}

	if job.EnqueuedAt.IsZero() {
		t.Error("expected EnqueuedAt to be stamped on publish")
	}
}

func TestIntegration_Consumer_ProcessJobs(t *testing.T) {
	amqpURL, cleanup := setupRabbitMQ(t)
	defer cleanup()

	conn, err := queue.NewConnection(amqpURL)
	if err != nil {
		t.Fatalf("failed to create connection: %v", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Track received jobs
	var receivedJobs []*queue.JudgeJob
	var mu sync.Mutex
	receivedCh := make(chan struct{}, 5)

	handler := func(ctx context.Context, job *queue.JudgeJob) error {
		mu.Lock()
		receivedJobs = append(receivedJobs, job)
		mu.Unlock()

		receivedCh <- struct{}{}
		return nil
	}

	consumer := queue.NewConsumer(conn, handler, queue.ConsumerConfig{
		Workers:  2,
		Prefetch: 1,
	})

	if err := consumer.Start(ctx); err != nil {
		t.Fatalf("failed to start consumer: %v", err)
	}
	defer consumer.Stop()

	producer := queue.NewProducer(conn)
	jobCount := 3
	sentJobs := make([]*queue.JudgeJob, jobCount)

	for i := 0; i < jobCount; i++ {
		sentJobs[i] = &queue.JudgeJob{
			TaskID:       int64(i + 1),
			SubmissionID: uuid.New(),
			Attempt:      1,
		}
		if err := producer.PublishJudgeJob(ctx, sentJobs[i]); err != nil {
			t.Fatalf("failed to publish job %d: %v", i, err)
		}
	}

	// Wait for all jobs to be processed
	for i := 0; i < jobCount; i++ {
		select {
		case <-receivedCh:
		case <-time.After(15 * time.Second):
			t.Fatalf("timed out waiting for job %d", i)
		}
	}

	mu.Lock()
	defer mu.Unlock()

	if len(receivedJobs) != jobCount {
		t.Fatalf("expected %d jobs, got %d", jobCount, len(receivedJobs))
	}

	seen := make(map[int64]bool)
	for _, job := range receivedJobs {
		seen[job.TaskID] = true
	}
	for _, sent := range sentJobs {
		if !seen[sent.TaskID] {
			t.Errorf("job with task id %d was never delivered", sent.TaskID)
		}
	}
}

func TestIntegration_Consumer_AcksFailedJobs(t *testing.T) {
	amqpURL, cleanup := setupRabbitMQ(t)
	defer cleanup()

	conn, err := queue.NewConnection(amqpURL)
	if err != nil {
		t.Fatalf("failed to create connection: %v", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	handled := make(chan struct{}, 1)
	handler := func(ctx context.Context, job *queue.JudgeJob) error {
		handled <- struct{}{}
		return context.DeadlineExceeded
	}

	consumer := queue.NewConsumer(conn, handler, queue.ConsumerConfig{Workers: 1, Prefetch: 1})
	if err := consumer.Start(ctx); err != nil {
		t.Fatalf("failed to start consumer: %v", err)
	}
	defer consumer.Stop()

	producer := queue.NewProducer(conn)
	if err := producer.PublishJudgeJob(ctx, &queue.JudgeJob{TaskID: 7, SubmissionID: uuid.New(), Attempt: 1}); err != nil {
		t.Fatalf("failed to publish job: %v", err)
	}

	select {
	case <-handled:
	case <-time.After(15 * time.Second):
		t.Fatal("timed out waiting for job")
	}

	// The failed job must be acked, not requeued; redelivery is the repair
	// loop's responsibility.
	time.Sleep(500 * time.Millisecond)
	q, err := conn.Channel().QueueInspect(queue.JudgeQueueName)
	if err != nil {
		t.Fatalf("failed to inspect queue: %v", err)
	}
	if q.Messages != 0 {
		t.Errorf("expected empty queue after failed job, got %d messages", q.Messages)
	}
}

func TestIntegration_Consumer_ResubscribesAfterBrokerRestart(t *testing.T) {
	container, amqpURL, cleanup := setupRabbitMQContainer(t)
	defer cleanup()

	conn, err := queue.NewConnection(amqpURL)
	if err != nil {
		t.Fatalf("failed to create connection: %v", err)
	}
	defer conn.Close()

	ctx := context.Background()

	var mu sync.Mutex
	seen := make(map[int64]bool)
	handler := func(ctx context.Context, job *queue.JudgeJob) error {
		mu.Lock()
		seen[job.TaskID] = true
		mu.Unlock()
		return nil
	}

	consumer := queue.NewConsumer(conn, handler, queue.ConsumerConfig{Workers: 1, Prefetch: 1})
	if err := consumer.Start(ctx); err != nil {
		t.Fatalf("failed to start consumer: %v", err)
	}
	defer consumer.Stop()

	producer := queue.NewProducer(conn)
	if err := producer.PublishJudgeJob(ctx, &queue.JudgeJob{TaskID: 1, SubmissionID: uuid.New(), Attempt: 1}); err != nil {
		t.Fatalf("failed to publish job: %v", err)
	}
	waitForTask(t, &mu, seen, 1, 15*time.Second)

	// Bounce the broker; the mapped port survives a stop/start of the
	// same container, so the client reconnects to the same URL.
	stopTimeout := 10 * time.Second
	if err := container.Stop(ctx, &stopTimeout); err != nil {
		t.Fatalf("failed to stop container: %v", err)
	}
	if err := container.Start(ctx); err != nil {
		t.Fatalf("failed to start container: %v", err)
	}

	deadline := time.Now().Add(90 * time.Second)
	for !conn.IsConnected() {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for reconnect")
		}
		time.Sleep(500 * time.Millisecond)
	}

	// The fresh channel may lag the connection by a moment
	job := &queue.JudgeJob{TaskID: 2, SubmissionID: uuid.New(), Attempt: 1}
	for {
		if err := producer.PublishJudgeJob(ctx, job); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out publishing after reconnect")
		}
		time.Sleep(500 * time.Millisecond)
	}

	waitForTask(t, &mu, seen, 2, 30*time.Second)
}

func waitForTask(t *testing.T, mu *sync.Mutex, seen map[int64]bool, taskID int64, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		mu.Lock()
		ok := seen[taskID]
		mu.Unlock()
		if ok {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for task %d", taskID)
		}
		time.Sleep(100 * time.Millisecond)
	}
}
