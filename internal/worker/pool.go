package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"fancify-backend/internal/models"
)

// ErrQueueFull is returned by Record when every worker is busy and the
// queue has no room left.
var ErrQueueFull = errors.New("transform log queue is full")

var ErrPoolStopped = errors.New("transform log pool is stopped")

// Store persists one transform record.
type Store interface {
	Record(ctx context.Context, rec *models.TransformRecord) error
}

// Pool writes transform records in the background so a finished transform
// never waits on the database. It implements session.Recorder.
type Pool struct {
	store       Store
	log         *zap.Logger
	queue       chan *models.TransformRecord
	workerCount int
	writeTO     time.Duration

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopChan chan struct{}
}

func NewPool(store Store, log *zap.Logger, workerCount, queueSize int) *Pool {
	if workerCount <= 0 {
		workerCount = 1
	}
	if queueSize <= 0 {
		queueSize = 100
	}
	return &Pool{
		store:       store,
		log:         log,
		queue:       make(chan *models.TransformRecord, queueSize),
		workerCount: workerCount,
		writeTO:     5 * time.Second,
		stopChan:    make(chan struct{}),
	}
}

func (p *Pool) Start() {
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	p.log.Info("transform log workers started", zap.Int("workers", p.workerCount))
}

// Stop lets the workers drain what is queued and waits for them.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() { close(p.stopChan) })
	p.wg.Wait()
}

// Record enqueues rec without blocking.
func (p *Pool) Record(ctx context.Context, rec *models.TransformRecord) error {
	select {
	case <-p.stopChan:
		return ErrPoolStopped
	default:
	}

	select {
	case p.queue <- rec:
		return nil
	default:
		return ErrQueueFull
	}
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for {
		select {
		case rec := <-p.queue:
			p.write(id, rec)
		case <-p.stopChan:
			// Drain
			for {
				select {
				case rec := <-p.queue:
					p.write(id, rec)
				default:
					p.log.Debug("transform log worker shutting down", zap.Int("worker", id))
					return
				}
			}
		}
	}
}

func (p *Pool) write(id int, rec *models.TransformRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), p.writeTO)
	defer cancel()

	if err := p.store.Record(ctx, rec); err != nil {
		p.log.Warn("write transform record",
			zap.Int("worker", id),
			zap.String("session_id", rec.SessionID.String()),
			zap.Error(err),
		)
	}
}
