package scheduler

import (
	"context"
	"time"

	"zonebreak/internal/logger"
)

// Poller drives the engine: it samples a price function on a fixed interval
// and hands each observation to the consumer. The consumer must never block;
// serialization and stale-tick dropping are its concern.
type Poller struct {
	Interval time.Duration

	ctx   context.Context
	nowFn func() time.Time
}

func NewPoller(ctx context.Context, interval time.Duration) *Poller {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Poller{
		Interval: interval,
		ctx:      ctx,
		nowFn:    time.Now,
	}
}

// Start blocks until the context is done.
func (p *Poller) Start(price func() float64, consume func(at time.Time, price float64)) {
	if p == nil || price == nil || consume == nil {
		logger.Warnf("Poller: missing price source or consumer, exit")
		return
	}
	if p.Interval <= 0 {
		logger.Warnf("Poller: invalid interval=%s, exit", p.Interval)
		return
	}
	if p.nowFn == nil {
		p.nowFn = time.Now
	}
	logger.Infof("Poller: started interval=%s", p.Interval)

	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-p.ctx.Done():
			logger.Infof("Poller: ctx done, exit")
			return
		case <-ticker.C:
			now := p.nowFn()
			consume(now, price())
		}
	}
}
