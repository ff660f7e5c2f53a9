package database

import (
	"context"
	"github.com/life-stream-dev/life-stream-go-coedit/internal/logger"
	"sync"
	"time"
)

// Purger periodically removes documents that have not been updated within
// maxAge.
type Purger struct {
	store    DocumentStore
	interval time.Duration
	maxAge   time.Duration
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewPurger(store DocumentStore, interval, maxAge time.Duration) *Purger {
	return &Purger{
		store:    store,
		interval: interval,
		maxAge:   maxAge,
		stop:     make(chan struct{}),
	}
}

func (p *Purger) RunOnce(ctx context.Context) (int64, error) {
	n, err := p.store.PurgeDocumentsOlderThan(ctx, p.maxAge)
	if err != nil {
		logger.ErrorF("Could not delete old documents: %v", err)
		return 0, err
	}
	logger.InfoF("Purged %d documents not updated for %v", n, p.maxAge)
	return n, nil
}

// Start purges immediately and then once per interval until Invoke is called.
func (p *Purger) Start() {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			ctx, cancel := context.WithCancel(context.Background())
			go func() {
				select {
				case <-p.stop:
					cancel()
				case <-ctx.Done():
				}
			}()
			_, _ = p.RunOnce(ctx)
			cancel()

			select {
			case <-ticker.C:
			case <-p.stop:
				return
			}
		}
	}()
}

func (p *Purger) Invoke(ctx context.Context) error {
	p.stopOnce.Do(func() { close(p.stop) })
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
