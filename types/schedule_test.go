package types

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertToSeconds(t *testing.T) {
	tests := []struct {
		name    string
		value   int64
		unit    FrequencyUnit
		want    int64
		wantErr bool
	}{
		{name: "minutes", value: 15, unit: FrequencyMinutes, want: 900},
		{name: "hours", value: 2, unit: FrequencyHours, want: 7200},
		{name: "days", value: 7, unit: FrequencyDays, want: 604800},
		{name: "one year", value: 365, unit: FrequencyDays, want: MaxIntervalSeconds},
		{name: "over a year", value: 366, unit: FrequencyDays, wantErr: true},
		{name: "overflowing days", value: 1 << 60, unit: FrequencyDays, wantErr: true},
		{name: "overflowing minutes", value: math.MaxInt64, unit: FrequencyMinutes, wantErr: true},
		{name: "zero", value: 0, unit: FrequencyHours, wantErr: true},
		{name: "negative", value: -1, unit: FrequencyHours, wantErr: true},
		{name: "unknown unit", value: 1, unit: "weeks", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ConvertToSeconds(tc.value, tc.unit)
			if tc.wantErr {
				require.Error(t, err)
				assert.Zero(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}
