package kafka

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridfusion/internal/domain"
)

func TestSerializeRow(t *testing.T) {
	now := time.Date(2023, 7, 5, 9, 30, 0, 0, time.UTC)
	domain.SetClock(clockwork.NewFakeClockAt(now))
	t.Cleanup(func() { domain.SetClock(clockwork.NewRealClock()) })

	name := "West"
	ta := 21.5
	row := domain.DailyRow{
		RegionCode: "11",
		RegionName: &name,
		Values:     map[string]*float64{"ta": &ta, "rn_60m": nil},
	}

	msg, err := serializeRow("20230704", []string{"ta", "rn_60m"}, row)
	require.NoError(t, err)

	assert.Equal(t, []byte("11"), msg.Key)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &payload))
	assert.Equal(t, "20230704", payload["date"])
	assert.Equal(t, "11", payload["region_code"])
	assert.Equal(t, "West", payload["region_name"])
	assert.InDelta(t, 21.5, payload["ta"].(float64), 1e-9)
	assert.Nil(t, payload["rn_60m"], "missing aggregate serializes as null")

	require.Len(t, msg.Headers, 2)
	assert.Equal(t, "date", msg.Headers[0].Key)
	assert.Equal(t, []byte("20230704"), msg.Headers[0].Value)
	assert.Equal(t, "processed_at", msg.Headers[1].Key)
	assert.Equal(t, []byte(now.Format(time.RFC3339)), msg.Headers[1].Value)
}

func TestSerializeRowOmitsUnknownName(t *testing.T) {
	msg, err := serializeRow("20230704", []string{"ta"}, domain.DailyRow{
		RegionCode: "99",
		Values:     map[string]*float64{"ta": nil},
	})
	require.NoError(t, err)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &payload))
	_, present := payload["region_name"]
	assert.False(t, present)
}
