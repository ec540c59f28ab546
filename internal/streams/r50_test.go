package streams

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/consometers/sge-tiers-proxy/internal/metadata"
)

const r50Fixture = `<?xml version="1.0" encoding="UTF-8"?>
<R50>
  <PRM>
    <Id_PRM>30001444398081</Id_PRM>
    <Donnees_Courbe>
      <Unite>kW</Unite>
      <PDC><H>2023-01-15T00:30:00+01:00</H><V>1.5</V></PDC>
      <PDC><H>2023-01-15T01:00:00+01:00</H><V>2</V></PDC>
      <PDC><H>2023-01-15T01:30:00+01:00</H><V></V></PDC>
      <PDC><H>2023-01-15T02:00:00+01:00</H><V>3</V><IV>1</IV></PDC>
    </Donnees_Courbe>
  </PRM>
</R50>`

func TestParseR50(t *testing.T) {
	path := writeTestFile(t, "ERDF_R50_test.xml", r50Fixture)

	records, err := ParseR50(path, testLogger())
	require.NoError(t, err)

	// missing value and flagged point are skipped
	require.Len(t, records, 2)

	for _, r := range records {
		assert.Equal(t, "urn:dev:prm:30001444398081_consumption/power/active/raw", r.Record.Name)
		assert.Equal(t, metadata.UnitWatt, r.Record.Unit)
		assert.Equal(t, "PT30M", r.Metadata.Measurement.SamplingInterval)
	}

	// stamps move from interval end to interval start, kW becomes W
	first := records[0].Record
	expected := time.Date(2023, 1, 15, 0, 0, 0, 0, parisTZ)
	assert.True(t, first.Time.Equal(expected), "got %s", first.Time)
	assert.Equal(t, 1500.0, first.Value)
	assert.Equal(t, 2000.0, records[1].Record.Value)
}

const r50BadStepFixture = `<?xml version="1.0" encoding="UTF-8"?>
<R50>
  <PRM>
    <Id_PRM>30001444398081</Id_PRM>
    <Donnees_Courbe>
      <Unite>W</Unite>
      <PDC><H>2023-01-15T01:00:00+01:00</H><V>100</V></PDC>
      <PDC><H>2023-01-15T02:00:00+01:00</H><V>200</V></PDC>
      <PDC><H>2023-01-15T03:00:00+01:00</H><V>300</V></PDC>
    </Donnees_Courbe>
  </PRM>
</R50>`

func TestParseR50RejectsUnexpectedStep(t *testing.T) {
	path := writeTestFile(t, "ERDF_R50_step.xml", r50BadStepFixture)

	_, err := ParseR50(path, testLogger())
	require.Error(t, err)
	var parseErr *ParseError
	assert.ErrorAs(t, err, &parseErr)
}
