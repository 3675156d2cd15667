package timex

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDuration_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    time.Duration
		wantErr bool
	}{
		{name: "string", in: `"5m"`, want: 5 * time.Minute},
		{name: "compound string", in: `"1h30m"`, want: 90 * time.Minute},
		{name: "nanoseconds", in: `3000000000`, want: 3 * time.Second},
		{name: "bad string", in: `"soon"`, wantErr: true},
		{name: "bool", in: `true`, wantErr: true},
		{name: "broken json", in: `{`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d Duration
			err := json.Unmarshal([]byte(tt.in), &d)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Duration)
		})
	}
}

func TestDuration_MarshalJSON(t *testing.T) {
	b, err := json.Marshal(Duration{Duration: 60 * time.Minute})
	require.NoError(t, err)
	assert.Equal(t, `"1h0m0s"`, string(b))
}

func TestMillis_RoundTrip(t *testing.T) {
	now := time.UnixMilli(1_760_000_000_123)

	s := FormatMillis(now)
	assert.Equal(t, "1760000000123", s)

	got, ok := ParseMillis(s)
	require.True(t, ok)
	assert.True(t, now.Equal(got))
}

func TestParseMillis_Invalid(t *testing.T) {
	_, ok := ParseMillis("")
	assert.False(t, ok)

	_, ok = ParseMillis("tomorrow")
	assert.False(t, ok)
}
