package jobs

import (
	"context"
	"log"
	"time"

	"tawsil-backend/internal/database"

	"github.com/robfig/cron/v3"
)

// StaleLocationJob clears tracked locations for in-transit orders whose
// driver stopped reporting. There is no heartbeat on the channel itself, so
// this sweep is what keeps a vanished driver from being rendered forever at
// their last fix.
type StaleLocationJob struct {
	orders     *database.OrderStore
	staleAfter time.Duration
}

func NewStaleLocationJob(orders *database.OrderStore, staleAfter time.Duration) *StaleLocationJob {
	return &StaleLocationJob{orders: orders, staleAfter: staleAfter}
}

// Register schedules the sweep on the given cron runner.
func (j *StaleLocationJob) Register(c *cron.Cron) error {
	_, err := c.AddFunc("@every 30s", j.run)
	return err
}

func (j *StaleLocationJob) run() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cleared, err := j.orders.ClearStaleLocations(ctx, j.staleAfter)
	if err != nil {
		log.Printf("⚠️  Stale location sweep failed: %v", err)
		return
	}
	if cleared > 0 {
		log.Printf("🧹 Cleared %d stale tracked location(s) older than %s", cleared, j.staleAfter)
	}
}
