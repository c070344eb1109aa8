package committee

import (
	"context"
	"sync"

	"binaryengine/internal/domain"
)

// timeOfDayMinSamples is the minimum number of resolved outcomes seen for
// an hour bucket before the agent will vote on it at all.
const timeOfDayMinSamples = 8

// timeOfDayEdgeThreshold is how far a bucket's win rate must sit from 0.5
// before it counts as a usable edge rather than noise.
const timeOfDayEdgeThreshold = 0.1

// TimeOfDay tracks, per hour-of-day bucket, the historical Up/Down split of
// resolved outcomes it has observed and votes with whichever direction has
// shown an edge at the current hour. It is a pure function of the snapshot
// plus the bounded per-bucket history it alone owns, seeded from
// RecentOutcomes on every call so a restart loses no more than the
// snapshot's own lookback window.
type TimeOfDay struct {
	mu      sync.Mutex
	buckets map[int]*bucketStats
}

type bucketStats struct {
	ups, downs int
}

func NewTimeOfDay() *TimeOfDay {
	return &TimeOfDay{buckets: make(map[int]*bucketStats)}
}

func (t *TimeOfDay) Name() string { return "time_of_day" }

func (t *TimeOfDay) Analyze(_ context.Context, snap domain.MarketSnapshot) (domain.Vote, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	hour := snap.BuiltAt.UTC().Hour()
	bucket, ok := t.buckets[hour]
	if !ok {
		bucket = &bucketStats{}
		t.buckets[hour] = bucket
	}
	for _, o := range snap.RecentOutcomes {
		switch o.Direction {
		case domain.Up:
			bucket.ups++
		case domain.Down:
			bucket.downs++
		}
	}

	total := bucket.ups + bucket.downs
	if total < timeOfDayMinSamples {
		return domain.Vote{Direction: domain.Skip}, nil
	}
	upRate := float64(bucket.ups) / float64(total)
	edge := upRate - 0.5
	if absf(edge) < timeOfDayEdgeThreshold {
		return domain.Vote{Direction: domain.Skip}, nil
	}
	direction := domain.Down
	if edge > 0 {
		direction = domain.Up
	}
	confidence := clamp(absf(edge)/0.5, 0, 1)
	return domain.Vote{
		Direction:  direction,
		Confidence: confidence,
		Quality:    0.5,
		Details:    map[string]any{"hour": hour, "up_rate": upRate, "samples": total},
	}, nil
}

var _ Agent = (*TimeOfDay)(nil)
