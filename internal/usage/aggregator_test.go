package usage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/covox/voicedash/internal/config"
	"github.com/covox/voicedash/internal/elevenlabs"
	"github.com/covox/voicedash/pkg/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeProvider serves canned pages keyed by cursor.
type fakeProvider struct {
	pages map[string]*elevenlabs.ConversationsPage
	err   error
	calls int
}

func (f *fakeProvider) ListConversations(_ context.Context, w elevenlabs.Window, cursor string) (*elevenlabs.ConversationsPage, error) {
	f.calls++
	if f.err != nil {
		return nil, &elevenlabs.ProviderFetchError{Window: w, Cause: f.err}
	}
	page, ok := f.pages[cursor]
	if !ok {
		return &elevenlabs.ConversationsPage{Conversations: []elevenlabs.Conversation{}}, nil
	}
	return page, nil
}

func conv(agent string, startUnix int64, duration int) elevenlabs.Conversation {
	return elevenlabs.Conversation{
		ConversationID:    "conv-" + strconv.FormatInt(startUnix, 10),
		AgentName:         agent,
		StartTimeUnixSecs: startUnix,
		CallDurationSecs:  duration,
	}
}

func TestAggregateEmptyWindow(t *testing.T) {
	provider := &fakeProvider{pages: map[string]*elevenlabs.ConversationsPage{}}
	agg := NewAggregator(provider, nil, 0, 10, zap.NewNop())

	s, err := agg.Aggregate(context.Background(), 0, 1000, "Support agent")
	require.NoError(t, err)
	assert.Equal(t, 0, s.TotalSeconds)
	assert.Equal(t, 0, s.TotalCalls)
	assert.Equal(t, float64(0), s.AvgSeconds)
	assert.Empty(t, s.Durations)
	assert.Empty(t, s.CallsPerDay)
	assert.False(t, s.Incomplete)
}

func TestAggregateFiltersAndSums(t *testing.T) {
	// 2024-01-15 and 2024-01-16 UTC
	day1 := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC).Unix()
	day1b := time.Date(2024, 1, 15, 18, 30, 0, 0, time.UTC).Unix()
	day2 := time.Date(2024, 1, 16, 9, 0, 0, 0, time.UTC).Unix()

	provider := &fakeProvider{pages: map[string]*elevenlabs.ConversationsPage{
		"": {Conversations: []elevenlabs.Conversation{
			conv("Support agent", day1, 30),
			conv("Other agent", day1, 999),
			conv("Support agent", day1b, 90),
			conv("Support agent", day2, 130),
		}},
	}}
	agg := NewAggregator(provider, nil, 0, 10, zap.NewNop())

	s, err := agg.Aggregate(context.Background(), 0, day2+1000, "Support agent")
	require.NoError(t, err)

	assert.Equal(t, 250, s.TotalSeconds)
	assert.Equal(t, 3, s.TotalCalls)
	assert.InDelta(t, 250.0/3.0, s.AvgSeconds, 1e-9)
	assert.Equal(t, []int{30, 90, 130}, s.Durations)
	assert.Equal(t, map[string]int{"2024-01-15": 2, "2024-01-16": 1}, s.CallsPerDay)

	// callsPerDay values sum to totalCalls
	sum := 0
	for _, n := range s.CallsPerDay {
		sum += n
	}
	assert.Equal(t, s.TotalCalls, sum)
}

func TestAggregateDurationBuckets(t *testing.T) {
	provider := &fakeProvider{pages: map[string]*elevenlabs.ConversationsPage{
		"": {Conversations: []elevenlabs.Conversation{
			conv("a", 1000, 30),
			conv("a", 2000, 90),
			conv("a", 3000, 130),
		}},
	}}
	agg := NewAggregator(provider, nil, 0, 10, zap.NewNop())

	s, err := agg.Aggregate(context.Background(), 0, 10000, "a")
	require.NoError(t, err)

	b := s.Buckets()
	assert.Equal(t, 1, b.Short)
	assert.Equal(t, 1, b.Medium)
	assert.Equal(t, 1, b.Long)
}

func TestAggregateFollowsCursor(t *testing.T) {
	provider := &fakeProvider{pages: map[string]*elevenlabs.ConversationsPage{
		"": {
			Conversations: []elevenlabs.Conversation{conv("a", 1000, 10)},
			NextCursor:    "p2",
			HasMore:       true,
		},
		"p2": {
			Conversations: []elevenlabs.Conversation{conv("a", 2000, 20)},
		},
	}}
	agg := NewAggregator(provider, nil, 0, 10, zap.NewNop())

	s, err := agg.Aggregate(context.Background(), 0, 10000, "a")
	require.NoError(t, err)
	assert.Equal(t, 2, s.TotalCalls)
	assert.Equal(t, 30, s.TotalSeconds)
	assert.Equal(t, 2, provider.calls)
	assert.False(t, s.Incomplete)
}

func TestAggregatePageCapSetsIncomplete(t *testing.T) {
	// Every page points to the next; the cap must stop the loop and flag
	// the summary instead of erroring or truncating silently.
	pages := map[string]*elevenlabs.ConversationsPage{}
	cursor := ""
	for i := 0; i < 5; i++ {
		next := "p" + strconv.Itoa(i+1)
		pages[cursor] = &elevenlabs.ConversationsPage{
			Conversations: []elevenlabs.Conversation{conv("a", int64(1000+i), 10)},
			NextCursor:    next,
			HasMore:       true,
		}
		cursor = next
	}
	provider := &fakeProvider{pages: pages}
	agg := NewAggregator(provider, nil, 0, 3, zap.NewNop())

	s, err := agg.Aggregate(context.Background(), 0, 10000, "a")
	require.NoError(t, err)
	assert.True(t, s.Incomplete)
	assert.Equal(t, 3, s.TotalCalls)
	assert.Equal(t, 3, provider.calls)
}

func TestAggregateProviderFailureNoPartials(t *testing.T) {
	provider := &fakeProvider{err: errors.New("timeout")}
	agg := NewAggregator(provider, nil, 0, 10, zap.NewNop())

	s, err := agg.Aggregate(context.Background(), 100, 200, "a")
	require.Error(t, err)
	assert.Nil(t, s)

	var fetchErr *elevenlabs.ProviderFetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, int64(100), fetchErr.Window.StartUnix)
}

func TestAggregateCache(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	port, _ := strconv.Atoi(mr.Port())
	c, err := cache.NewCache(config.RedisConfig{Host: mr.Host(), Port: port})
	require.NoError(t, err)
	defer c.Close()

	provider := &fakeProvider{pages: map[string]*elevenlabs.ConversationsPage{
		"": {Conversations: []elevenlabs.Conversation{conv("a", 1000, 60)}},
	}}
	agg := NewAggregator(provider, c, time.Minute, 10, zap.NewNop())

	s1, err := agg.Aggregate(context.Background(), 0, 10000, "a")
	require.NoError(t, err)
	s2, err := agg.Aggregate(context.Background(), 0, 10000, "a")
	require.NoError(t, err)

	assert.Equal(t, s1, s2)
	assert.Equal(t, 1, provider.calls, "second aggregate should be served from cache")
}

func TestCompare(t *testing.T) {
	provider := &fakeProvider{pages: map[string]*elevenlabs.ConversationsPage{
		"": {Conversations: []elevenlabs.Conversation{
			conv("a", 1500, 60),
			conv("a", 1600, 120),
			conv("a", 5500, 30),
		}},
	}}
	// The fake returns the same page for both windows; the aggregator's
	// window filtering lives at the provider, so distinguish via agent
	// filter being constant and rely on identical summaries.
	agg := NewAggregator(provider, nil, 0, 10, zap.NewNop())

	cmp, err := agg.Compare(context.Background(),
		elevenlabs.Window{StartUnix: 1000, EndUnix: 2000},
		elevenlabs.Window{StartUnix: 5000, EndUnix: 6000},
		"a")
	require.NoError(t, err)
	assert.Equal(t, cmp.Current.TotalCalls, cmp.Previous.TotalCalls)
	assert.Equal(t, float64(0), cmp.CallsChangePct)
}

func TestChangePct(t *testing.T) {
	tests := []struct {
		name     string
		current  float64
		previous float64
		want     float64
	}{
		{"empty previous counts as full increase", 5, 0, 100},
		{"doubled", 10, 5, 100},
		{"halved", 5, 10, -50},
		{"flat", 7, 7, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, changePct(tt.current, tt.previous), 1e-9)
		})
	}
}

func TestCompareSurfacesError(t *testing.T) {
	provider := &fakeProvider{err: fmt.Errorf("boom")}
	agg := NewAggregator(provider, nil, 0, 10, zap.NewNop())

	_, err := agg.Compare(context.Background(),
		elevenlabs.Window{StartUnix: 1, EndUnix: 2},
		elevenlabs.Window{StartUnix: 3, EndUnix: 4},
		"a")
	require.Error(t, err)
}
