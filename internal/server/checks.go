package server

import (
	"context"
	"fmt"
	"time"

	"github.com/tinkerthinkerbytes/ico-guidance-navigator-llm/internal/indexer/index"
	"github.com/tinkerthinkerbytes/ico-guidance-navigator-llm/pkg/health"
	"github.com/tinkerthinkerbytes/ico-guidance-navigator-llm/pkg/resilience"
)

// CorpusCheck reports down when the index holds no documents.
func CorpusCheck(idx *index.Index) health.Check {
	return func(context.Context) health.ComponentHealth {
		if idx == nil || idx.DocCount() == 0 {
			return health.ComponentHealth{Status: health.StatusDown, Message: "no documents indexed"}
		}
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("%d documents, fingerprint %s", idx.DocCount(), shortFingerprint(idx.Fingerprint())),
		}
	}
}

// Pinger is satisfied by *redis.Client.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck probes an optional dependency. Failure degrades the service
// rather than taking it down; answers are still produced without it.
func PingCheck(p Pinger) health.Check {
	return func(ctx context.Context) health.ComponentHealth {
		start := time.Now()
		err := p.Ping(ctx)
		latency := time.Since(start).Round(time.Microsecond).String()
		if err != nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error(), Latency: latency}
		}
		return health.ComponentHealth{Status: health.StatusUp, Latency: latency}
	}
}

func shortFingerprint(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}

// BreakerCheck reports degraded while cb is not closed. The deterministic
// answer is still served, only the rewrite is skipped.
func BreakerCheck(cb *resilience.CircuitBreaker) health.Check {
	return func(context.Context) health.ComponentHealth {
		snap := cb.Snapshot()
		if snap.State == resilience.StateClosed {
			return health.ComponentHealth{Status: health.StatusUp}
		}
		return health.ComponentHealth{
			Status:  health.StatusDegraded,
			Message: fmt.Sprintf("circuit %s after %d consecutive failures", snap.State, snap.ConsecutiveFailures),
		}
	}
}
