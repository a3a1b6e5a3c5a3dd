package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opencensus.io/stats/view"
)

func TestRecordTransition(t *testing.T) {
	require.NoError(t, Register())
	t.Cleanup(func() { view.Unregister(DefaultViews...) })

	ctx := context.Background()
	RecordTransition(ctx, "ZAP", "PAID")
	RecordTransition(ctx, "ZAP", "PAID")
	RecordTransition(ctx, "BOOST", "FAILED")

	rows, err := view.RetrieveData(PayInTransitionsView.Name)
	require.NoError(t, err)

	counts := map[string]int64{}
	for _, row := range rows {
		var payInType, state string
		for _, tg := range row.Tags {
			switch tg.Key {
			case PayInType:
				payInType = tg.Value
			case PayInState:
				state = tg.Value
			}
		}
		counts[payInType+"/"+state] = row.Data.(*view.CountData).Value
	}
	assert.EqualValues(t, 2, counts["ZAP/PAID"])
	assert.EqualValues(t, 1, counts["BOOST/FAILED"])
}

func TestTimer(t *testing.T) {
	require.NoError(t, Register())
	t.Cleanup(func() { view.Unregister(DefaultViews...) })

	stop := Timer(context.Background(), APIRequestDuration)
	stop()

	rows, err := view.RetrieveData(APIRequestDurationView.Name)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.EqualValues(t, 1, rows[0].Data.(*view.DistributionData).Count)
}
