package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIdentifier(t *testing.T) {
	tests := []struct {
		name        string
		identifier  string
		usagePoint  string
		series      string
		expectError bool
	}{
		{
			name:       "full identifier",
			identifier: "urn:dev:prm:30001444398081_consumption/power/active/raw",
			usagePoint: "30001444398081",
			series:     "consumption/power/active/raw",
		},
		{
			name:       "bare usage point",
			identifier: "urn:dev:prm:30001444398081",
			usagePoint: "30001444398081",
			series:     "",
		},
		{
			name:        "wrong prefix",
			identifier:  "urn:dev:foo:30001444398081",
			expectError: true,
		},
		{
			name:        "short usage point",
			identifier:  "urn:dev:prm:3000144439808",
			expectError: true,
		},
		{
			name:        "non numeric usage point",
			identifier:  "urn:dev:prm:3000144439808a",
			expectError: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			usagePoint, series, err := ParseIdentifier(tc.identifier)
			if tc.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.usagePoint, usagePoint)
			assert.Equal(t, tc.series, series)
		})
	}
}

func TestRecordNameRoundTrip(t *testing.T) {
	name := RecordName("30001444398081", "consumption/energy/active/index")
	assert.Equal(t, "urn:dev:prm:30001444398081_consumption/energy/active/index", name)

	usagePoint, series, err := ParseIdentifier(name)
	require.NoError(t, err)
	assert.Equal(t, "30001444398081", usagePoint)
	assert.Equal(t, "consumption/energy/active/index", series)
}

func TestSamplingIntervalForStep(t *testing.T) {
	interval, err := SamplingIntervalForStep(30)
	require.NoError(t, err)
	assert.Equal(t, "PT30M", interval)

	_, err = SamplingIntervalForStep(7)
	assert.Error(t, err)
}
