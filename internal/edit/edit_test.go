package edit

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AdvantusAI/m8-collab/internal/domain"
	"github.com/AdvantusAI/m8-collab/internal/matrix"
	"github.com/AdvantusAI/m8-collab/internal/period"
	"github.com/AdvantusAI/m8-collab/internal/repository/memory"
)

// failingStore rejects upserts for the listed customers.
type failingStore struct {
	*memory.Store
	fail map[string]bool
}

func (s *failingStore) Upsert(ctx context.Context, key domain.UpsertKey, fields domain.UpsertFields) error {
	if s.fail[key.CustomerID] {
		return errors.New("write timeout")
	}
	return s.Store.Upsert(ctx, key, fields)
}

func twoEntityMatrix() *matrix.Matrix {
	return matrix.Build(domain.Sources{
		Forecast: []domain.ForecastRow{
			{CustomerID: "A", ProductID: "P1", LocationID: "L1", PostDate: "2025-03-01", StatisticalForecast: 300},
			{CustomerID: "B", ProductID: "P1", LocationID: "L2", PostDate: "2025-03-03", StatisticalForecast: 700},
		},
	}, domain.Filter{}, period.DefaultWindow(2025), 2025)
}

func TestAggregateEditIsProportional(t *testing.T) {
	store := memory.NewStore()
	m := twoEntityMatrix()

	res, err := NewEngine(store).ApplyEdit(context.Background(), m, Request{Target: Target{All: true}, Period: "Mar-25", Value: 1000})
	require.NoError(t, err)
	assert.True(t, res.Complete())
	assert.Equal(t, 2, res.Applied)

	a, _ := m.Entity(domain.NewEntityKey("A", "P1"))
	b, _ := m.Entity(domain.NewEntityKey("B", "P1"))
	assert.Equal(t, 300.0, a.Value("Mar-25", domain.MetricKAMAdjustment))
	assert.Equal(t, 700.0, b.Value("Mar-25", domain.MetricKAMAdjustment))

	got, err := store.Get(context.Background(), domain.UpsertKey{ProductID: "P1", CustomerID: "B", LocationID: "L2", SourceDate: "2025-03-03"})
	require.NoError(t, err)
	assert.Equal(t, 700.0, got.CommercialInput)
	assert.Equal(t, res.BatchID, got.BatchID)
}

func TestFairSharesConserveTotal(t *testing.T) {
	cases := []struct {
		name    string
		weights []float64
		total   float64
	}{
		{"proportional", []float64{300, 700}, 1000},
		{"uneven thirds", []float64{1, 1, 1}, 100},
		{"many small", []float64{3, 5, 7, 11, 13, 17, 19}, 12345},
		{"all zero splits evenly", []float64{0, 0, 0, 0}, 10},
		{"negative weights sum", []float64{-5, 2}, 50},
		{"decrease", []float64{120, 80}, 50},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			shares := FairShares(tc.weights, tc.total)
			require.Len(t, shares, len(tc.weights))
			var sum float64
			for _, s := range shares {
				sum += s
				assert.Equal(t, float64(int64(s)), s, "share %v is not an integer", s)
			}
			assert.InDelta(t, tc.total, sum, float64(len(tc.weights)))
		})
	}
}

func TestFairSharesZeroTotalSplitsEvenly(t *testing.T) {
	assert.Equal(t, []float64{3, 3, 3}, FairShares([]float64{0, 0, 0}, 9))
	assert.Equal(t, []float64{3, 3, 3}, FairShares([]float64{-1, 0, 1}, 9))
	assert.Empty(t, FairShares(nil, 9))
}

func TestIndividualEditIsIdempotent(t *testing.T) {
	store := memory.NewStore()
	eng := NewEngine(store)
	m := twoEntityMatrix()
	req := Request{Target: Target{Entity: domain.NewEntityKey("A", "P1")}, Period: "Mar-25", Value: 420}

	for i := 0; i < 2; i++ {
		res, err := eng.ApplyEdit(context.Background(), m, req)
		require.NoError(t, err)
		require.Len(t, res.Outcomes, 1)
		assert.Equal(t, StatusApplied, res.Outcomes[0].Status)
	}
	assert.Equal(t, 1, store.Len())

	a, _ := m.Entity(domain.NewEntityKey("A", "P1"))
	assert.Equal(t, 420.0, a.Value("Mar-25", domain.MetricKAMAdjustment))
	assert.Equal(t, 420.0, a.Value("Mar-25", domain.MetricEffectiveForecast))
}

func TestPlanDoesNotMutateMatrix(t *testing.T) {
	store := memory.NewStore()
	m := twoEntityMatrix()

	plan, err := NewEngine(store).Plan(context.Background(), m, Request{Target: Target{All: true}, Period: "Mar-25", Value: 2000})
	require.NoError(t, err)
	require.Len(t, plan.Mutations, 2)
	assert.Equal(t, 600.0, plan.Mutations[0].Value)
	assert.Equal(t, 1400.0, plan.Mutations[1].Value)

	for _, e := range m.Entities() {
		assert.Zero(t, e.Value("Mar-25", domain.MetricKAMAdjustment))
	}
	assert.Zero(t, store.Len())
}

func TestFailedWritesLeaveMatrixUntouched(t *testing.T) {
	store := &failingStore{Store: memory.NewStore(), fail: map[string]bool{"B": true}}
	m := twoEntityMatrix()

	res, err := NewEngine(store).ApplyEdit(context.Background(), m, Request{Target: Target{All: true}, Period: "Mar-25", Value: 2000})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Applied)
	assert.Equal(t, 1, res.Failed)
	assert.True(t, res.AnyApplied())
	assert.False(t, res.Complete())

	a, _ := m.Entity(domain.NewEntityKey("A", "P1"))
	b, _ := m.Entity(domain.NewEntityKey("B", "P1"))
	assert.Equal(t, 600.0, a.Value("Mar-25", domain.MetricKAMAdjustment))
	assert.Zero(t, b.Value("Mar-25", domain.MetricKAMAdjustment))
	assert.Equal(t, 700.0, b.Value("Mar-25", domain.MetricEffectiveForecast))

	failed := res.Outcomes[1]
	assert.Equal(t, StatusFailed, failed.Status)
	assert.Contains(t, failed.Message, "write timeout")
}

func TestAggregateEditSkipsEntitiesWithoutPeriodRecord(t *testing.T) {
	store := memory.NewStore()
	m := matrix.Build(domain.Sources{
		Forecast: []domain.ForecastRow{
			{CustomerID: "A", ProductID: "P1", LocationID: "L1", PostDate: "2025-03-01", StatisticalForecast: 300},
			{CustomerID: "B", ProductID: "P1", LocationID: "L2", PostDate: "2025-03-03", StatisticalForecast: 700},
			{CustomerID: "C", ProductID: "P1", LocationID: "L3", PostDate: "2025-04-01", StatisticalForecast: 90},
		},
	}, domain.Filter{}, period.DefaultWindow(2025), 2025)

	res, err := NewEngine(store).ApplyEdit(context.Background(), m, Request{Target: Target{All: true}, Period: "Mar-25", Value: 1000})
	require.NoError(t, err)
	assert.True(t, res.Complete())
	assert.Equal(t, 2, res.Applied)
	assert.Equal(t, 1, res.Skipped)
	assert.Zero(t, res.Rejected)

	for _, o := range res.Outcomes {
		if o.Entity.CustomerID == "C" {
			assert.Equal(t, StatusSkipped, o.Status)
			assert.Nil(t, o.Key)
			assert.Empty(t, o.Message)
		}
	}
	assert.Equal(t, 2, store.Len())

	c, _ := m.Entity(domain.NewEntityKey("C", "P1"))
	_, ok := c.Record("Mar-25")
	assert.False(t, ok)
}

func TestUnresolvedKeyIsRejected(t *testing.T) {
	store := memory.NewStore()
	m := matrix.Build(domain.Sources{
		Forecast: []domain.ForecastRow{
			{CustomerID: "A", ProductID: "P1", LocationID: "L1", PostDate: "2025-03-01", StatisticalForecast: 10},
			{CustomerID: "C", ProductID: "", LocationID: "", PostDate: "2025-03-01", StatisticalForecast: 10},
		},
	}, domain.Filter{}, period.DefaultWindow(2025), 2025)

	res, err := NewEngine(store).ApplyEdit(context.Background(), m, Request{Target: Target{All: true}, Period: "Mar-25", Value: 40})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Applied)
	assert.Equal(t, 1, res.Rejected)

	var rejected Outcome
	for _, o := range res.Outcomes {
		if o.Status == StatusRejected {
			rejected = o
		}
	}
	var keyErr *KeyError
	require.ErrorAs(t, rejected.Err, &keyErr)
	assert.ElementsMatch(t, []string{"product_id", "location_id"}, keyErr.Missing)
	assert.Equal(t, 1, store.Len())
}

func TestKeyFallsBackToPersistedInputs(t *testing.T) {
	store := memory.NewStore()
	store.Load(domain.Sources{KAM: []domain.KAMRow{
		{CustomerID: "A", ProductID: "P1", LocationID: "L9", PostDate: "2025-03-10"},
	}})

	m := matrix.Build(domain.Sources{
		SellIn: []domain.SellInRow{{CustomerID: "A", ProductID: "P1", PostDate: "2025-03-01", Quantity: 5}},
	}, domain.Filter{}, period.DefaultWindow(2025), 2025)

	res, err := NewEngine(store).ApplyEdit(context.Background(), m, Request{Target: Target{Entity: domain.NewEntityKey("A", "P1")}, Period: "Mar-25", Value: 12})
	require.NoError(t, err)
	require.Len(t, res.Outcomes, 1)
	out := res.Outcomes[0]
	require.Equal(t, StatusApplied, out.Status, out.Message)
	assert.Equal(t, "L9", out.Key.LocationID)
	assert.Equal(t, "2025-03-01", out.Key.SourceDate)
}

func TestEditUpdatesKAMRecordAtItsOwnLocation(t *testing.T) {
	adj := 50.0
	kam := []domain.KAMRow{
		{CustomerID: "A", ProductID: "P1", LocationID: "L9", PostDate: "2025-03-10", KAMAdjustment: &adj},
	}
	store := memory.NewStore()
	store.Load(domain.Sources{KAM: kam})
	require.Equal(t, 1, store.Len())

	m := matrix.Build(domain.Sources{
		Forecast: []domain.ForecastRow{
			{CustomerID: "A", ProductID: "P1", LocationID: "L1", PostDate: "2025-03-01", StatisticalForecast: 300},
		},
		KAM: kam,
	}, domain.Filter{}, period.DefaultWindow(2025), 2025)

	res, err := NewEngine(store).ApplyEdit(context.Background(), m, Request{Target: Target{Entity: domain.NewEntityKey("A", "P1")}, Period: "Mar-25", Value: 80})
	require.NoError(t, err)
	require.True(t, res.Complete())
	assert.Equal(t, domain.UpsertKey{ProductID: "P1", CustomerID: "A", LocationID: "L9", SourceDate: "2025-03-10"}, *res.Outcomes[0].Key)

	assert.Equal(t, 1, store.Len())
	got, err := store.Get(context.Background(), *res.Outcomes[0].Key)
	require.NoError(t, err)
	assert.Equal(t, 80.0, got.CommercialInput)
}

func TestPlanRejectsBadRequests(t *testing.T) {
	eng := NewEngine(memory.NewStore())
	m := twoEntityMatrix()
	ctx := context.Background()

	_, err := eng.Plan(ctx, m, Request{Target: Target{All: true}, Period: "Mar-30", Value: 1})
	assert.ErrorIs(t, err, ErrPeriodOutOfWindow)

	_, err = eng.Plan(ctx, m, Request{Target: Target{All: true}, Period: "March", Value: 1})
	assert.ErrorIs(t, err, ErrInvalidPeriod)

	_, err = eng.Plan(ctx, m, Request{Target: Target{Entity: domain.NewEntityKey("Z", "P1")}, Period: "Mar-25", Value: 1})
	assert.ErrorIs(t, err, ErrEntityNotFound)

	empty := matrix.Build(domain.Sources{}, domain.Filter{}, period.DefaultWindow(2025), 2025)
	_, err = eng.Plan(ctx, empty, Request{Target: Target{All: true}, Period: "Mar-25", Value: 1})
	assert.ErrorIs(t, err, ErrNoEntities)
}

func TestCancelledContextFailsWrites(t *testing.T) {
	store := memory.NewStore()
	m := twoEntityMatrix()
	eng := NewEngine(store)

	plan, err := eng.Plan(context.Background(), m, Request{Target: Target{All: true}, Period: "Mar-25", Value: 10})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := eng.Commit(ctx, m, plan)
	assert.Equal(t, 2, res.Failed)
	assert.False(t, res.AnyApplied())
	assert.Zero(t, store.Len())
}
