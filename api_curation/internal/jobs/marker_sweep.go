package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/fortuneofweb3/blabz/pkg/logging"
)

type Sweeper interface {
	Sweep(ctx context.Context, olderThan time.Time) (int64, error)
}

// MarkerSweepJob deletes processed markers older than the retention period.
type MarkerSweepJob struct {
	sweeper    Sweeper
	logger     logging.Logger
	interval   time.Duration
	retention  time.Duration
	startDelay time.Duration
	timeout    time.Duration
	now        func() time.Time
	stopCh     chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup
}

type MarkerSweepConfig struct {
	Sweeper    Sweeper
	Logger     logging.Logger
	Interval   time.Duration // default: 1 hour
	Retention  time.Duration // default: 30 days
	StartDelay time.Duration // first sweep after startup; default: 1 minute
}

func NewMarkerSweepJob(cfg MarkerSweepConfig) *MarkerSweepJob {
	interval := cfg.Interval
	if interval == 0 {
		interval = time.Hour
	}
	retention := cfg.Retention
	if retention == 0 {
		retention = 30 * 24 * time.Hour
	}
	startDelay := cfg.StartDelay
	if startDelay == 0 {
		startDelay = time.Minute
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &MarkerSweepJob{
		sweeper:    cfg.Sweeper,
		logger:     logger,
		interval:   interval,
		retention:  retention,
		startDelay: startDelay,
		timeout:    5 * time.Minute,
		now:        time.Now,
		stopCh:     make(chan struct{}),
	}
}

func (j *MarkerSweepJob) Start() {
	j.wg.Add(1)
	go j.run()
	j.logger.WithField("retention", j.retention.String()).Info("Marker sweep job started")
}

// Stop is safe to call more than once.
func (j *MarkerSweepJob) Stop() {
	j.stopOnce.Do(func() {
		close(j.stopCh)
		j.wg.Wait()
		j.logger.Info("Marker sweep job stopped")
	})
}

func (j *MarkerSweepJob) run() {
	defer j.wg.Done()

	delay := time.NewTimer(j.startDelay)
	defer delay.Stop()
	select {
	case <-delay.C:
		j.sweep()
	case <-j.stopCh:
		return
	}

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			j.sweep()
		case <-j.stopCh:
			return
		}
	}
}

func (j *MarkerSweepJob) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()
	_, _ = j.SweepOnce(ctx)
}

// SweepOnce runs a single sweep and reports how many markers were removed.
func (j *MarkerSweepJob) SweepOnce(ctx context.Context) (int64, error) {
	cutoff := j.now().Add(-j.retention)
	deleted, err := j.sweeper.Sweep(ctx, cutoff)
	if err != nil {
		j.logger.WithError(err).Error("Failed to sweep processed markers")
		return 0, err
	}
	if deleted > 0 {
		j.logger.WithFields(logging.Fields{
			"deleted": deleted,
			"cutoff":  cutoff.Format(time.RFC3339),
		}).Info("Swept processed markers")
	}
	return deleted, nil
}
