package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	d, err := ParseDate("20230704")
	require.NoError(t, err)
	assert.Equal(t, 2023, d.Year())
	assert.Equal(t, 7, d.Month())

	for _, bad := range []string{"2023-07-04", "202307", "20231340", "abc"} {
		_, err := ParseDate(bad)
		assert.Error(t, err, "input %q", bad)
	}
}

func TestDateRange(t *testing.T) {
	dates, err := DateRange("20230130", "20230202")
	require.NoError(t, err)
	assert.Equal(t, []Date{"20230130", "20230131", "20230201", "20230202"}, dates)
}

func TestDateRangeSingleDay(t *testing.T) {
	dates, err := DateRange("20230704", "20230704")
	require.NoError(t, err)
	assert.Equal(t, []Date{"20230704"}, dates)
}

func TestDateRangeReversed(t *testing.T) {
	_, err := DateRange("20230202", "20230201")
	assert.Error(t, err)
}
