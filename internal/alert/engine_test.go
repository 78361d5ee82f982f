package alert_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/airwatch/airwatch/internal/airquality"
	"github.com/airwatch/airwatch/internal/alert"
)

// mockNotifier records raised alerts.
type mockNotifier struct {
	mu     sync.Mutex
	raised []*alert.Alert
	calls  atomic.Int32
	err    error
}

func (m *mockNotifier) AlertsRaised(_ context.Context, alerts []*alert.Alert) error {
	m.calls.Add(1)
	m.mu.Lock()
	m.raised = append(m.raised, alerts...)
	m.mu.Unlock()
	return m.err
}

// failingRepository rejects every batch.
type failingRepository struct {
	*alert.InMemoryRepository
}

func (f *failingRepository) ApplyTransitions(context.Context, []alert.Transition) (*alert.ApplyResult, error) {
	return nil, errors.New("connection reset")
}

func newEngine(repo alert.Repository, notifier alert.Notifier, now func() time.Time) *alert.Engine {
	return alert.NewEngine(alert.EngineConfig{
		Repository: repo,
		Notifier:   notifier,
		Logger:     zerolog.Nop(),
		Now:        now,
	})
}

func measurement(so2, nh3, pm25 float64) *airquality.Measurement {
	lat, lon := 33.8869, 10.0982
	return &airquality.Measurement{
		ID:         "m-1",
		SO2:        so2,
		NH3:        nh3,
		PM25:       pm25,
		Lat:        &lat,
		Lon:        &lon,
		RecordedAt: time.Now(),
	}
}

func activeFor(t *testing.T, repo alert.Repository, p airquality.Pollutant) []*alert.Alert {
	t.Helper()
	active, err := repo.Active(context.Background())
	require.NoError(t, err)

	var out []*alert.Alert
	for _, a := range active {
		if a.Pollutant == p {
			out = append(out, a)
		}
	}
	return out
}

func TestEvaluatePollutant_Boundaries(t *testing.T) {
	table := alert.DefaultThresholdTable()

	tests := []struct {
		pollutant airquality.Pollutant
		value     float64
		expected  alert.Level
	}{
		{airquality.PollutantSO2, 0, alert.LevelGreen},
		{airquality.PollutantSO2, 19.9, alert.LevelGreen},
		{airquality.PollutantSO2, 20, alert.LevelYellow},
		{airquality.PollutantSO2, 49.99, alert.LevelYellow},
		{airquality.PollutantSO2, 50, alert.LevelOrange},
		{airquality.PollutantSO2, 100, alert.LevelRed},
		{airquality.PollutantNH3, 29.9, alert.LevelGreen},
		{airquality.PollutantNH3, 60, alert.LevelOrange},
		{airquality.PollutantNH3, 120, alert.LevelRed},
		{airquality.PollutantPM25, 14.9, alert.LevelGreen},
		{airquality.PollutantPM25, 35, alert.LevelOrange},
		{airquality.PollutantPM25, 55, alert.LevelRed},
	}

	for _, tt := range tests {
		t.Run(string(tt.pollutant), func(t *testing.T) {
			assert.Equal(t, tt.expected, alert.EvaluatePollutant(tt.value, table[tt.pollutant]), "value %v", tt.value)
		})
	}
}

func TestEngine_Process_CreatesPerPollutantLevels(t *testing.T) {
	repo := alert.NewInMemoryRepository()
	notifier := &mockNotifier{}
	engine := newEngine(repo, notifier, nil)

	created, err := engine.Process(context.Background(), measurement(25, 70, 60))
	require.NoError(t, err)
	require.Len(t, created, 3)

	levels := map[airquality.Pollutant]alert.Level{}
	for _, a := range created {
		levels[a.Pollutant] = a.Level
		assert.True(t, a.Active)
		assert.NotEmpty(t, a.Message)
		require.NotNil(t, a.Lat)
		assert.Equal(t, 33.8869, *a.Lat)
	}
	assert.Equal(t, alert.LevelYellow, levels[airquality.PollutantSO2])
	assert.Equal(t, alert.LevelOrange, levels[airquality.PollutantNH3])
	assert.Equal(t, alert.LevelRed, levels[airquality.PollutantPM25])

	assert.Equal(t, int32(1), notifier.calls.Load())
	assert.Len(t, notifier.raised, 3)
}

func TestEngine_Process_ReplacesAndResolves(t *testing.T) {
	repo := alert.NewInMemoryRepository()
	engine := newEngine(repo, nil, nil)
	ctx := context.Background()

	// Yellow SO2.
	first, err := engine.Process(ctx, measurement(25, 0, 0))
	require.NoError(t, err)
	require.Len(t, first, 1)

	// Same level again: the active alert is replaced, not updated.
	second, err := engine.Process(ctx, measurement(26, 0, 0))
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.NotEqual(t, first[0].ID, second[0].ID)

	active := activeFor(t, repo, airquality.PollutantSO2)
	require.Len(t, active, 1)
	assert.Equal(t, second[0].ID, active[0].ID)

	all, err := repo.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	// Green resolves without creating.
	third, err := engine.Process(ctx, measurement(5, 0, 0))
	require.NoError(t, err)
	assert.Empty(t, third)
	assert.Empty(t, activeFor(t, repo, airquality.PollutantSO2))

	all, err = repo.All(ctx)
	require.NoError(t, err)
	for _, a := range all {
		assert.False(t, a.Active)
		assert.NotNil(t, a.ResolvedAt)
	}
}

func TestEngine_Process_ConcurrentSamePollutant(t *testing.T) {
	repo := alert.NewInMemoryRepository()
	engine := newEngine(repo, nil, nil)
	ctx := context.Background()

	const workers = 50
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := engine.Process(ctx, measurement(60+float64(i), 40, 20))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	for _, p := range airquality.Pollutants {
		assert.Len(t, activeFor(t, repo, p), 1, "pollutant %s", p)
	}

	all, err := repo.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, workers*3)
}

func TestEngine_Process_FailureAppliesNothing(t *testing.T) {
	repo := &failingRepository{InMemoryRepository: alert.NewInMemoryRepository()}
	notifier := &mockNotifier{}
	engine := newEngine(repo, notifier, nil)

	created, err := engine.Process(context.Background(), measurement(200, 200, 200))
	require.Error(t, err)
	assert.Nil(t, created)
	assert.Equal(t, int32(0), notifier.calls.Load())

	all, err := repo.All(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestEngine_Process_NotifierErrorIsNotFatal(t *testing.T) {
	repo := alert.NewInMemoryRepository()
	engine := newEngine(repo, &mockNotifier{err: errors.New("broker down")}, nil)

	n, err := engine.ProcessMeasurement(context.Background(), measurement(0, 0, 40))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestEngine_Simulate(t *testing.T) {
	repo := alert.NewInMemoryRepository()
	engine := newEngine(repo, nil, nil)
	ctx := context.Background()

	_, err := engine.Simulate(ctx, airquality.PollutantSO2, 19.9)
	assert.ErrorIs(t, err, alert.ErrBelowThreshold)

	_, err = engine.Simulate(ctx, airquality.Pollutant("CO"), 100)
	assert.ErrorIs(t, err, alert.ErrUnknownPollutant)

	a, err := engine.Simulate(ctx, airquality.PollutantSO2, 20)
	require.NoError(t, err)
	assert.Equal(t, alert.LevelYellow, a.Level)
	assert.Contains(t, a.Message, "20")

	b, err := engine.Simulate(ctx, airquality.PollutantSO2, 150)
	require.NoError(t, err)
	assert.Equal(t, alert.LevelRed, b.Level)

	active := activeFor(t, repo, airquality.PollutantSO2)
	require.Len(t, active, 1)
	assert.Equal(t, b.ID, active[0].ID)
}

func TestEngine_HistoryAndStatistics(t *testing.T) {
	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	clock := now.Add(-48 * time.Hour)

	repo := alert.NewInMemoryRepository()
	engine := newEngine(repo, nil, func() time.Time { return clock })
	ctx := context.Background()

	_, err := engine.Process(ctx, measurement(25, 0, 0))
	require.NoError(t, err)

	clock = now.Add(-time.Hour)
	_, err = engine.Process(ctx, measurement(150, 70, 0))
	require.NoError(t, err)

	clock = now
	stats, err := engine.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.Active)
	assert.Equal(t, 2, stats.Last24h)
	assert.Equal(t, 0, stats.ByLevel[alert.LevelGreen])
	assert.Equal(t, 1, stats.ByLevel[alert.LevelYellow])
	assert.Equal(t, 1, stats.ByLevel[alert.LevelOrange])
	assert.Equal(t, 1, stats.ByLevel[alert.LevelRed])
	assert.Equal(t, 2, stats.ByPollutant[airquality.PollutantSO2])
	assert.Equal(t, 1, stats.ByPollutant[airquality.PollutantNH3])

	from := now.Add(-2 * time.Hour)
	recent, err := engine.History(ctx, alert.HistoryFilter{From: &from})
	require.NoError(t, err)
	assert.Len(t, recent, 2)

	limited, err := engine.History(ctx, alert.HistoryFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, now.Add(-time.Hour), limited[0].CreatedAt)
}

func TestKeyedMutex_RespectsContext(t *testing.T) {
	locker := alert.NewKeyedMutex()

	unlock, err := locker.Lock(context.Background(), "SO2")
	require.NoError(t, err)

	// A different key is independent.
	unlockOther, err := locker.Lock(context.Background(), "NH3")
	require.NoError(t, err)
	unlockOther()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(ctx, "SO2")
	assert.ErrorIs(t, err, alert.ErrLockTimeout)

	unlock()
	unlock2, err := locker.Lock(context.Background(), "SO2")
	require.NoError(t, err)
	unlock2()
}
