package publisher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/consometers/sge-tiers-proxy/internal/metadata"
)

func sampleRecord(name string, value float64) metadata.MetadataRecord {
	return metadata.MetadataRecord{
		Metadata: metadata.ConsumptionPowerActiveRaw("30001444398081", "PT30M"),
		Record: metadata.Record{
			Name:  name,
			Time:  time.Date(2023, 1, 15, 0, 0, 0, 0, time.UTC),
			Unit:  metadata.UnitWatt,
			Value: value,
		},
	}
}

func TestGroupRecordsKeepsEmissionOrder(t *testing.T) {
	raw := metadata.RecordName("30001444398081", "consumption/power/active/raw")
	pma := metadata.RecordName("30001444398081", "consumption/power/apparent/max")

	set, err := GroupRecords([]metadata.MetadataRecord{
		sampleRecord(raw, 100),
		sampleRecord(pma, 4000),
		sampleRecord(raw, 200),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, set.Len())

	groups := set.WithPrefix(raw)
	require.Len(t, groups, 1)
	require.Len(t, groups[0].Records, 2)
	assert.Equal(t, 100.0, groups[0].Records[0].Value)
	assert.Equal(t, 200.0, groups[0].Records[1].Value)
}

func TestGroupRecordsRejectsConflictingMetadata(t *testing.T) {
	name := metadata.RecordName("30001444398081", "consumption/power/active/raw")

	first := sampleRecord(name, 100)
	second := sampleRecord(name, 200)
	second.Metadata = metadata.ConsumptionPowerActiveRaw("30001444398081", "PT10M")

	_, err := GroupRecords([]metadata.MetadataRecord{first, second})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "conflicting metadata")
}

func TestWithPrefixSelectsSeriesAndSubSeries(t *testing.T) {
	idx := metadata.RecordName("30001444398081", "consumption/energy/active/index")
	hp := metadata.RecordName("30001444398081", "consumption/energy/active/index/distributor/hp")
	other := metadata.RecordName("30001444398082", "consumption/energy/active/index")

	set, err := GroupRecords([]metadata.MetadataRecord{
		sampleRecord(idx, 1500),
		sampleRecord(hp, 1000),
		sampleRecord(other, 900),
	})
	require.NoError(t, err)

	groups := set.WithPrefix(idx)
	require.Len(t, groups, 2)
	assert.Equal(t, idx, groups[0].Name)
	assert.Equal(t, hp, groups[1].Name)
}

func TestSubjectSanitizesJID(t *testing.T) {
	assert.Equal(t, "quoalise.data.alice_example_fr", Subject("alice@example.fr"))
	assert.Equal(t, "quoalise.data.bob_smith_example_fr", Subject("bob smith@example.fr"))
}
