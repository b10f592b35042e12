package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/staylink/verification-service/internal/queue"
)

// ReviewWorker buffers review tasks and writes them to the review queue from
// one goroutine, so request handlers never wait on the broker.
type ReviewWorker struct {
	queue  queue.ReviewQueue
	tasks  chan queue.ReviewTask
	logger *zap.Logger
}

// NewReviewWorker builds a worker with a bounded buffer.
func NewReviewWorker(q queue.ReviewQueue, buffer int, logger *zap.Logger) *ReviewWorker {
	if buffer <= 0 {
		buffer = 64
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReviewWorker{queue: q, tasks: make(chan queue.ReviewTask, buffer), logger: logger}
}

// Submit enqueues task without blocking. It returns false when the buffer is full.
func (w *ReviewWorker) Submit(task queue.ReviewTask) bool {
	select {
	case w.tasks <- task:
		return true
	default:
		return false
	}
}

// Run drains tasks until ctx is cancelled, then flushes what is already buffered.
func (w *ReviewWorker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.flush()
			return
		case task := <-w.tasks:
			w.write(ctx, task)
		}
	}
}

func (w *ReviewWorker) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case task := <-w.tasks:
			w.write(ctx, task)
		default:
			return
		}
	}
}

func (w *ReviewWorker) write(ctx context.Context, task queue.ReviewTask) {
	if err := w.queue.Enqueue(ctx, task); err != nil {
		w.logger.Warn("review task not delivered",
			zap.String("subject_id", task.SubjectID),
			zap.String("type", task.Type),
			zap.Error(err))
	}
}
