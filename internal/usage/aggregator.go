package usage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/covox/voicedash/internal/elevenlabs"
	"github.com/covox/voicedash/pkg/cache"
	"go.uber.org/zap"
)

const defaultMaxPages = 10

// Summary is the aggregate over call records in one time window. It is
// derived on every request and never persisted.
type Summary struct {
	TotalSeconds int            `json:"totalSeconds"`
	TotalCalls   int            `json:"totalCalls"`
	AvgSeconds   float64        `json:"avgSeconds"`
	Durations    []int          `json:"callDurations"`
	CallsPerDay  map[string]int `json:"callsPerDay"`
	// Incomplete is set when the provider had more pages than the
	// aggregator's hard cap; the aggregates then undercount the window.
	Incomplete bool `json:"incomplete"`
}

// DurationBuckets is the fixed histogram used by the dashboard.
type DurationBuckets struct {
	Short  int `json:"short"`  // < 60s
	Medium int `json:"medium"` // 60-120s
	Long   int `json:"long"`   // > 120s
}

// Buckets computes the duration histogram for the summary.
func (s *Summary) Buckets() DurationBuckets {
	var b DurationBuckets
	for _, d := range s.Durations {
		switch {
		case d < 60:
			b.Short++
		case d <= 120:
			b.Medium++
		default:
			b.Long++
		}
	}
	return b
}

// Comparison holds two windows aggregated side by side, with percent
// changes derived the way the dashboard trend widgets expect them.
type Comparison struct {
	Current          Summary `json:"current"`
	Previous         Summary `json:"previous"`
	CallsChangePct   float64 `json:"callsChangePct"`
	AvgSecsChangePct float64 `json:"avgSecsChangePct"`
}

// Lister fetches pages of conversations from the call-log provider.
type Lister interface {
	ListConversations(ctx context.Context, w elevenlabs.Window, cursor string) (*elevenlabs.ConversationsPage, error)
}

// Aggregator reduces windowed call records into dashboard metrics.
type Aggregator struct {
	provider Lister
	cache    *cache.Cache
	cacheTTL time.Duration
	maxPages int
	logger   *zap.Logger
}

// NewAggregator creates an aggregator. cache may be nil to disable caching.
func NewAggregator(provider Lister, c *cache.Cache, cacheTTL time.Duration, maxPages int, logger *zap.Logger) *Aggregator {
	if maxPages <= 0 {
		maxPages = defaultMaxPages
	}
	return &Aggregator{
		provider: provider,
		cache:    c,
		cacheTTL: cacheTTL,
		maxPages: maxPages,
		logger:   logger,
	}
}

// Aggregate fetches all call records in [startUnix, endUnix), restricts them
// to agentFilter (case-sensitive exact match) and reduces them into a
// Summary. An empty window yields a zero summary, not an error. Any provider
// failure is returned as a *elevenlabs.ProviderFetchError with no partial
// aggregates.
func (a *Aggregator) Aggregate(ctx context.Context, startUnix, endUnix int64, agentFilter string) (*Summary, error) {
	window := elevenlabs.Window{StartUnix: startUnix, EndUnix: endUnix}
	cacheKey := fmt.Sprintf("usage:%s:%d:%d", agentFilter, startUnix, endUnix)

	if cached := a.fromCache(ctx, cacheKey); cached != nil {
		return cached, nil
	}

	summary := &Summary{
		Durations:   []int{},
		CallsPerDay: map[string]int{},
	}

	cursor := ""
	for page := 0; ; page++ {
		if page >= a.maxPages {
			// Hard cap reached with more data on the provider side: surface
			// the undercount instead of truncating silently.
			summary.Incomplete = true
			a.logger.Warn("usage window exceeded page cap",
				zap.Int64("start_unix", startUnix),
				zap.Int64("end_unix", endUnix),
				zap.Int("max_pages", a.maxPages),
			)
			break
		}

		resp, err := a.provider.ListConversations(ctx, window, cursor)
		if err != nil {
			return nil, err
		}
		providerPagesFetched.Inc()

		for _, conv := range resp.Conversations {
			if conv.AgentName != agentFilter {
				continue
			}
			summary.TotalSeconds += conv.CallDurationSecs
			summary.TotalCalls++
			summary.Durations = append(summary.Durations, conv.CallDurationSecs)

			day := time.Unix(conv.StartUnix(), 0).UTC().Format("2006-01-02")
			summary.CallsPerDay[day]++
		}

		if !resp.HasMore || resp.NextCursor == "" {
			break
		}
		cursor = resp.NextCursor
	}

	if summary.TotalCalls > 0 {
		summary.AvgSeconds = float64(summary.TotalSeconds) / float64(summary.TotalCalls)
	}

	a.toCache(ctx, cacheKey, summary)
	return summary, nil
}

// Compare aggregates two windows concurrently. The lookups are read-only
// with no ordering dependency, so they are issued in parallel.
func (a *Aggregator) Compare(ctx context.Context, cur, prev elevenlabs.Window, agentFilter string) (*Comparison, error) {
	type result struct {
		summary *Summary
		err     error
	}

	curCh := make(chan result, 1)
	prevCh := make(chan result, 1)

	go func() {
		s, err := a.Aggregate(ctx, cur.StartUnix, cur.EndUnix, agentFilter)
		curCh <- result{s, err}
	}()
	go func() {
		s, err := a.Aggregate(ctx, prev.StartUnix, prev.EndUnix, agentFilter)
		prevCh <- result{s, err}
	}()

	curRes, prevRes := <-curCh, <-prevCh
	if curRes.err != nil {
		return nil, curRes.err
	}
	if prevRes.err != nil {
		return nil, prevRes.err
	}

	return &Comparison{
		Current:          *curRes.summary,
		Previous:         *prevRes.summary,
		CallsChangePct:   changePct(float64(curRes.summary.TotalCalls), float64(prevRes.summary.TotalCalls)),
		AvgSecsChangePct: changePct(curRes.summary.AvgSeconds, prevRes.summary.AvgSeconds),
	}, nil
}

// changePct mirrors the dashboard trend calculation: an empty previous
// window counts as a 100% increase.
func changePct(current, previous float64) float64 {
	if previous == 0 {
		return 100
	}
	return (current - previous) / previous * 100
}

func (a *Aggregator) fromCache(ctx context.Context, key string) *Summary {
	if a.cache == nil || a.cacheTTL <= 0 {
		return nil
	}
	raw, err := a.cache.Get(ctx, key)
	if err != nil {
		if err != cache.Nil {
			a.logger.Debug("usage cache read failed", zap.Error(err))
		}
		return nil
	}
	var s Summary
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil
	}
	usageCacheHits.Inc()
	return &s
}

func (a *Aggregator) toCache(ctx context.Context, key string, s *Summary) {
	if a.cache == nil || a.cacheTTL <= 0 {
		return
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return
	}
	if err := a.cache.Set(ctx, key, string(raw), a.cacheTTL); err != nil {
		a.logger.Debug("usage cache write failed", zap.Error(err))
	}
}
