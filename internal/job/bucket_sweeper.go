package job

import (
	"log"
	"time"

	"github.com/MaxTT-Billing/maxtt-referrals-api/internal/infrastructure/ratelimit"
)

// BucketSweeper 定期清理过期的限流桶，防止调用方 IP 越来越多导致内存持续增长
type BucketSweeper struct {
	limiter *ratelimit.Limiter
	grace   time.Duration
}

func NewBucketSweeper(limiter *ratelimit.Limiter, grace time.Duration) *BucketSweeper {
	return &BucketSweeper{limiter: limiter, grace: grace}
}

func (j *BucketSweeper) Run() int {
	removed := j.limiter.Sweep(j.grace)
	if removed > 0 {
		log.Printf("[BucketSweeper] 清理过期限流桶: removed=%d, remaining=%d", removed, j.limiter.Size())
	}
	return removed
}
