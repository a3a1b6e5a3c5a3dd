package metrics

import (
	"context"
	"time"

	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
)

var (
	PayInType, _  = tag.NewKey("pay_in_type")
	PayInState, _ = tag.NewKey("pay_in_state")
	Endpoint, _   = tag.NewKey("endpoint")
)

var (
	PayInTransitions   = stats.Int64("payin/transitions", "Number of PayIn state transitions", stats.UnitDimensionless)
	SettleLatency      = stats.Float64("payin/settle_latency_ms", "Time from PayIn creation to settlement", stats.UnitMilliseconds)
	APIRequestDuration = stats.Float64("api/request_duration_ms", "Duration of API requests", stats.UnitMilliseconds)
)

var defaultMillisecondsDistribution = view.Distribution(1, 5, 10, 50, 100, 500, 1000, 5000, 10000, 60000, 300000, 3600000)

var (
	PayInTransitionsView = &view.View{
		Name:        "payin/transitions",
		Measure:     PayInTransitions,
		Aggregation: view.Count(),
		TagKeys:     []tag.Key{PayInType, PayInState},
	}
	SettleLatencyView = &view.View{
		Name:        "payin/settle_latency_ms",
		Measure:     SettleLatency,
		Aggregation: defaultMillisecondsDistribution,
		TagKeys:     []tag.Key{PayInType},
	}
	APIRequestDurationView = &view.View{
		Name:        "api/request_duration_ms",
		Measure:     APIRequestDuration,
		Aggregation: defaultMillisecondsDistribution,
		TagKeys:     []tag.Key{Endpoint},
	}
)

var DefaultViews = []*view.View{
	PayInTransitionsView,
	SettleLatencyView,
	APIRequestDurationView,
}

func Register() error {
	return view.Register(DefaultViews...)
}

// RecordTransition counts a PayIn reaching state.
func RecordTransition(ctx context.Context, payInType, state string) {
	_ = stats.RecordWithTags(ctx, []tag.Mutator{
		tag.Upsert(PayInType, payInType),
		tag.Upsert(PayInState, state),
	}, PayInTransitions.M(1))
}

func RecordSettleLatency(ctx context.Context, payInType string, latency time.Duration) {
	_ = stats.RecordWithTags(ctx, []tag.Mutator{
		tag.Upsert(PayInType, payInType),
	}, SettleLatency.M(float64(latency.Nanoseconds())/1e6))
}

func SinceInMilliseconds(startTime time.Time) float64 {
	return float64(time.Since(startTime).Nanoseconds()) / 1e6
}

// Timer records the time elapsed between the call and the returned func into m.
func Timer(ctx context.Context, m *stats.Float64Measure) func() {
	start := time.Now()
	return func() {
		stats.Record(ctx, m.M(SinceInMilliseconds(start)))
	}
}
