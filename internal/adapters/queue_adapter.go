package adapters

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrQueueClosed is returned by Publish and StartConsuming after Close.
var ErrQueueClosed = errors.New("queue adapter closed")

// JobHandler processes one message taken from a queue.
type JobHandler func(ctx context.Context, data []byte) error

// QueueAdapter is the contract for publishing to and consuming from named queues.
type QueueAdapter interface {
	// Publish sends jobData to the named queue.
	Publish(ctx context.Context, queueName string, jobData []byte) error
	// StartConsuming starts a background consumer calling handler for each
	// message of the named queue. It does not block.
	StartConsuming(ctx context.Context, queueName string, handler JobHandler) error
	// StopConsuming stops the consumers of the named queue.
	StopConsuming(ctx context.Context, queueName string) error
	// Close stops every consumer and waits for in-flight handlers.
	Close() error
}

// InMemoryQueueOptions tunes the in-memory adapter.
type InMemoryQueueOptions struct {
	Buffer         int
	PublishTimeout time.Duration
}

// InMemoryQueueAdapter implements QueueAdapter with buffered channels.
type InMemoryQueueAdapter struct {
	queues      map[string]chan []byte
	stopChan    map[string]chan struct{}
	mu          sync.RWMutex
	logger      logrus.FieldLogger
	opts        InMemoryQueueOptions
	wg          sync.WaitGroup
	consumerCtx context.Context
	cancelFunc  context.CancelFunc
	closed      bool
}

// NewInMemoryQueueAdapter creates a new InMemoryQueueAdapter. Zero options
// select a buffer of 100 messages and a 2s publish timeout.
func NewInMemoryQueueAdapter(logger logrus.FieldLogger, opts InMemoryQueueOptions) *InMemoryQueueAdapter {
	if logger == nil {
		logger = logrus.New()
	}
	if opts.Buffer <= 0 {
		opts.Buffer = 100
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = 2 * time.Second
	}
	consumerCtx, cancelFunc := context.WithCancel(context.Background())
	return &InMemoryQueueAdapter{
		queues:      make(map[string]chan []byte),
		stopChan:    make(map[string]chan struct{}),
		logger:      logger,
		opts:        opts,
		consumerCtx: consumerCtx,
		cancelFunc:  cancelFunc,
	}
}

func (q *InMemoryQueueAdapter) getOrCreateQueue(queueName string) (chan []byte, chan struct{}, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, nil, ErrQueueClosed
	}
	if _, ok := q.queues[queueName]; !ok {
		q.queues[queueName] = make(chan []byte, q.opts.Buffer)
		q.logger.WithField("queue", queueName).Debug("in-memory queue created")
	}
	if _, ok := q.stopChan[queueName]; !ok {
		q.stopChan[queueName] = make(chan struct{})
	}
	return q.queues[queueName], q.stopChan[queueName], nil
}

func (q *InMemoryQueueAdapter) Publish(ctx context.Context, queueName string, jobData []byte) error {
	queue, _, err := q.getOrCreateQueue(queueName)
	if err != nil {
		return err
	}
	timer := time.NewTimer(q.opts.PublishTimeout)
	defer timer.Stop()
	select {
	case queue <- jobData:
		q.logger.WithFields(logrus.Fields{"queue": queueName, "depth": len(queue)}).Trace("message published")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		q.logger.WithField("queue", queueName).Warn("publish timed out, queue is full")
		return fmt.Errorf("timeout publishing to queue %s", queueName)
	}
}

func (q *InMemoryQueueAdapter) StartConsuming(ctx context.Context, queueName string, handler JobHandler) error {
	queue, stop, err := q.getOrCreateQueue(queueName)
	if err != nil {
		return err
	}
	logger := q.logger.WithField("queue", queueName)

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		logger.Debug("consumer started")
		for {
			select {
			case data := <-queue:
				if err := handler(q.consumerCtx, data); err != nil {
					logger.WithError(err).Error("message handler failed")
				}
			case <-stop:
				logger.Debug("consumer stopped")
				return
			case <-ctx.Done():
				logger.Debug("consumer context done")
				return
			case <-q.consumerCtx.Done():
				return
			}
		}
	}()
	return nil
}

// StopConsuming signals every consumer of queueName to stop. Messages still
// buffered stay in the queue for a later consumer.
func (q *InMemoryQueueAdapter) StopConsuming(ctx context.Context, queueName string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if stop, ok := q.stopChan[queueName]; ok {
		close(stop)
		delete(q.stopChan, queueName)
	}
	return nil
}

func (q *InMemoryQueueAdapter) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	q.mu.Unlock()

	q.cancelFunc()
	q.wg.Wait()
	return nil
}
