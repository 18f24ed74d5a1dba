package redemptions

import (
	"log"
	"time"

	"dumplinghouse-backend/models"
)

// Sweeper periodically settles expired redemptions server-side, so reserved
// points return to users even when their client never reopens.
type Sweeper struct {
	Service  *Service
	Interval time.Duration

	// Notify, when set, is called once per refunded redemption (used for
	// the "reward expired" email). Failures are the callback's problem.
	Notify func(models.Redemption)

	stop chan struct{}
}

func NewSweeper(svc *Service, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{Service: svc, Interval: interval, stop: make(chan struct{})}
}

// Start launches the sweep loop in its own goroutine.
func (s *Sweeper) Start() {
	go s.run()
}

func (s *Sweeper) run() {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stop:
			return
		}
	}
}

func (s *Sweeper) sweep() {
	settled, err := s.Service.ExpireDue()
	if err != nil {
		log.Printf("Redemption sweep failed: %v", err)
		return
	}
	if len(settled) > 0 {
		log.Printf("Redemption sweep refunded %d expired redemption(s)", len(settled))
	}
	if s.Notify != nil {
		for _, r := range settled {
			s.Notify(r)
		}
	}
}

// Stop terminates the sweep loop.
func (s *Sweeper) Stop() {
	close(s.stop)
}
