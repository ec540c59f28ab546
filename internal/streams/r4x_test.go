package streams

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/consometers/sge-tiers-proxy/internal/metadata"
)

const r4xFixture = `<?xml version="1.0" encoding="UTF-8"?>
<R4x>
  <Courbe>
    <Identifiant_PRM>30001444398081</Identifiant_PRM>
    <Grandeur_Metier>CONS</Grandeur_Metier>
    <Grandeur_Physique>PA</Grandeur_Physique>
    <Unite>kW</Unite>
    <Point><Horodate>2023-01-15T00:00:00+01:00</Horodate><Valeur>1.2</Valeur><Statut>R</Statut></Point>
    <Point><Horodate>2023-01-15T00:10:00+01:00</Horodate><Valeur>9</Valeur><Statut>E</Statut></Point>
    <Point><Horodate>2023-01-15T00:20:00+01:00</Horodate><Valeur>1.4</Valeur><Statut>R</Statut></Point>
  </Courbe>
  <Courbe>
    <Identifiant_PRM>30001444398081</Identifiant_PRM>
    <Grandeur_Metier>CONS</Grandeur_Metier>
    <Grandeur_Physique>ERC</Grandeur_Physique>
    <Unite>kVAr</Unite>
    <Point><Horodate>2023-01-15T00:00:00+01:00</Horodate><Valeur>0.3</Valeur><Statut>R</Statut></Point>
    <Point><Horodate>2023-01-15T00:10:00+01:00</Horodate><Valeur>0.4</Valeur><Statut>R</Statut></Point>
  </Courbe>
  <Courbe>
    <Identifiant_PRM>30001444398081</Identifiant_PRM>
    <Grandeur_Metier>CONS</Grandeur_Metier>
    <Grandeur_Physique>TENSION</Grandeur_Physique>
    <Unite>V</Unite>
    <Point><Horodate>2023-01-15T00:00:00+01:00</Horodate><Valeur>231.5</Valeur><Statut>R</Statut></Point>
    <Point><Horodate>2023-01-15T00:10:00+01:00</Horodate><Valeur>229.8</Valeur><Statut>R</Statut></Point>
  </Courbe>
</R4x>`

func TestParseR4x(t *testing.T) {
	path := writeTestFile(t, "ENEDIS_AAAA_R4Q_CDC_test.xml", r4xFixture)

	records, err := ParseR4x(path, testLogger())
	require.NoError(t, err)

	// Only real points flow through, converted to canonical units.
	active := findRecords(records, "urn:dev:prm:30001444398081_consumption/power/active/raw")
	require.Len(t, active, 2)
	assert.Equal(t, 1200.0, active[0].Value)
	assert.Equal(t, 1400.0, active[1].Value)
	assert.Equal(t, metadata.UnitWatt, active[0].Unit)

	// Stamps are kept as is, no interval shift.
	expected := time.Date(2023, 1, 15, 0, 0, 0, 0, time.FixedZone("", 3600))
	assert.True(t, active[0].Time.Equal(expected), "got %s", active[0].Time)

	capacitive := findRecords(records, "urn:dev:prm:30001444398081_consumption/power/capacitive/raw")
	require.Len(t, capacitive, 2)
	assert.Equal(t, 300.0, capacitive[0].Value)
	assert.Equal(t, metadata.UnitWattReactive, capacitive[0].Unit)

	voltage := findRecords(records, "urn:dev:prm:30001444398081_consumption/voltage/raw")
	require.Len(t, voltage, 2)
	assert.Equal(t, 231.5, voltage[0].Value)
	assert.Equal(t, metadata.UnitVolt, voltage[0].Unit)

	// The sampling step is inferred from the point spacing.
	for _, r := range records {
		assert.Equal(t, "PT10M", r.Metadata.Measurement.SamplingInterval)
	}
}

const r4xUnknownQuantityFixture = `<?xml version="1.0" encoding="UTF-8"?>
<R4x>
  <Courbe>
    <Identifiant_PRM>30001444398081</Identifiant_PRM>
    <Grandeur_Physique>XX</Grandeur_Physique>
    <Point><Horodate>2023-01-15T00:00:00+01:00</Horodate><Valeur>1</Valeur><Statut>R</Statut></Point>
  </Courbe>
</R4x>`

func TestParseR4xRejectsUnknownQuantity(t *testing.T) {
	path := writeTestFile(t, "ENEDIS_AAAA_R4Q_CDC_unknown.xml", r4xUnknownQuantityFixture)

	_, err := ParseR4x(path, testLogger())
	require.Error(t, err)
	var parseErr *ParseError
	assert.ErrorAs(t, err, &parseErr)
}
