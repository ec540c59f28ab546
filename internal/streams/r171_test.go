package streams

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/consometers/sge-tiers-proxy/internal/metadata"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func writeTestFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func findRecords(records []metadata.MetadataRecord, name string) []metadata.Record {
	var found []metadata.Record
	for _, r := range records {
		if r.Record.Name == name {
			found = append(found, r.Record)
		}
	}
	return found
}

const r171Fixture = `<?xml version="1.0" encoding="UTF-8"?>
<fluxDonnees>
  <serieMesuresDatees>
    <prmId>30001444398081</prmId>
    <grandeurMetier>CONS</grandeurMetier>
    <grandeurPhysique>EA</grandeurPhysique>
    <unite>Wh</unite>
    <codeClasseTemporelle>HP</codeClasseTemporelle>
    <typeCalendrier>D</typeCalendrier>
    <mesureDatee><dateFin>2023-01-15T00:00:00</dateFin><valeur>100</valeur></mesureDatee>
  </serieMesuresDatees>
  <serieMesuresDatees>
    <prmId>30001444398081</prmId>
    <grandeurMetier>CONS</grandeurMetier>
    <grandeurPhysique>EA</grandeurPhysique>
    <unite>Wh</unite>
    <codeClasseTemporelle>HC</codeClasseTemporelle>
    <typeCalendrier>D</typeCalendrier>
    <mesureDatee><dateFin>2023-01-15T00:00:00</dateFin><valeur>200</valeur></mesureDatee>
  </serieMesuresDatees>
  <serieMesuresDatees>
    <prmId>30001444398081</prmId>
    <grandeurMetier>CONS</grandeurMetier>
    <grandeurPhysique>EA</grandeurPhysique>
    <unite>Wh</unite>
    <codeClasseTemporelle>POINTE</codeClasseTemporelle>
    <typeCalendrier>D</typeCalendrier>
    <mesureDatee><dateFin>2023-01-15T00:00:00</dateFin><valeur>300</valeur></mesureDatee>
  </serieMesuresDatees>
  <serieMesuresDatees>
    <prmId>30001444398081</prmId>
    <grandeurMetier>CONS</grandeurMetier>
    <grandeurPhysique>EA</grandeurPhysique>
    <unite>Wh</unite>
    <codeClasseTemporelle>BASE</codeClasseTemporelle>
    <typeCalendrier>F</typeCalendrier>
    <mesureDatee><dateFin>2023-01-15T00:00:00</dateFin><valeur>599</valeur></mesureDatee>
  </serieMesuresDatees>
  <serieMesuresDatees>
    <prmId>30001444398081</prmId>
    <grandeurMetier>CONS</grandeurMetier>
    <grandeurPhysique>PMA</grandeurPhysique>
    <unite>VA</unite>
    <codeClasseTemporelle>HP</codeClasseTemporelle>
    <typeCalendrier>D</typeCalendrier>
    <mesureDatee><dateFin>2023-01-15T00:00:00</dateFin><valeur>4000</valeur></mesureDatee>
  </serieMesuresDatees>
  <serieMesuresDatees>
    <prmId>30001444398081</prmId>
    <grandeurMetier>CONS</grandeurMetier>
    <grandeurPhysique>PMA</grandeurPhysique>
    <unite>VA</unite>
    <codeClasseTemporelle>HC</codeClasseTemporelle>
    <typeCalendrier>D</typeCalendrier>
    <mesureDatee><dateFin>2023-01-15T00:00:00</dateFin><valeur>3500</valeur></mesureDatee>
  </serieMesuresDatees>
</fluxDonnees>`

func TestParseR171DerivedTotals(t *testing.T) {
	path := writeTestFile(t, "ENEDIS_R171_test.xml", r171Fixture)

	records, err := ParseR171(path, testLogger())
	require.NoError(t, err)

	// The derived total is the sum of the distributor classes; the
	// provider class does not contribute.
	totals := findRecords(records, "urn:dev:prm:30001444398081_consumption/energy/active/index")
	require.Len(t, totals, 1)
	assert.Equal(t, 600.0, totals[0].Value)
	assert.Equal(t, metadata.UnitWattHour, totals[0].Unit)

	// The derived maximum is the max over the distributor classes.
	maxima := findRecords(records, "urn:dev:prm:30001444398081_consumption/power/apparent/max")
	require.Len(t, maxima, 1)
	assert.Equal(t, 4000.0, maxima[0].Value)
	assert.Equal(t, metadata.UnitVoltAmpere, maxima[0].Unit)

	perClass := findRecords(records, "urn:dev:prm:30001444398081_consumption/energy/active/index/distributor/hp")
	require.Len(t, perClass, 1)
	assert.Equal(t, 100.0, perClass[0].Value)

	provider := findRecords(records, "urn:dev:prm:30001444398081_consumption/energy/active/index/provider/base")
	require.Len(t, provider, 1)
	assert.Equal(t, 599.0, provider[0].Value)

	expectedTime := time.Date(2023, 1, 15, 0, 0, 0, 0, parisTZ)
	assert.True(t, totals[0].Time.Equal(expectedTime))
}

const r171WattPmaFixture = `<?xml version="1.0" encoding="UTF-8"?>
<fluxDonnees>
  <serieMesuresDatees>
    <prmId>30001444398081</prmId>
    <grandeurMetier>CONS</grandeurMetier>
    <grandeurPhysique>PMA</grandeurPhysique>
    <unite>W</unite>
    <codeClasseTemporelle>BASE</codeClasseTemporelle>
    <typeCalendrier>D</typeCalendrier>
    <mesureDatee><dateFin>2023-01-15T00:00:00</dateFin><valeur>3200</valeur></mesureDatee>
  </serieMesuresDatees>
</fluxDonnees>`

func TestParseR171ActivePowerMaxVariant(t *testing.T) {
	path := writeTestFile(t, "ENEDIS_R171_pma.xml", r171WattPmaFixture)

	records, err := ParseR171(path, testLogger())
	require.NoError(t, err)

	// Some meters report the maximum in watts; the derived series is
	// active power then, not apparent power.
	maxima := findRecords(records, "urn:dev:prm:30001444398081_consumption/power/active/max")
	require.Len(t, maxima, 1)
	assert.Equal(t, 3200.0, maxima[0].Value)
	assert.Equal(t, metadata.UnitWatt, maxima[0].Unit)

	assert.Empty(t, findRecords(records, "urn:dev:prm:30001444398081_consumption/power/apparent/max"))
}

const r171MixedUnitsFixture = `<?xml version="1.0" encoding="UTF-8"?>
<fluxDonnees>
  <serieMesuresDatees>
    <prmId>30001444398081</prmId>
    <grandeurMetier>CONS</grandeurMetier>
    <grandeurPhysique>PMA</grandeurPhysique>
    <unite>VA</unite>
    <codeClasseTemporelle>HP</codeClasseTemporelle>
    <typeCalendrier>D</typeCalendrier>
    <mesureDatee><dateFin>2023-01-15T00:00:00</dateFin><valeur>4000</valeur></mesureDatee>
  </serieMesuresDatees>
  <serieMesuresDatees>
    <prmId>30001444398081</prmId>
    <grandeurMetier>CONS</grandeurMetier>
    <grandeurPhysique>PMA</grandeurPhysique>
    <unite>W</unite>
    <codeClasseTemporelle>HC</codeClasseTemporelle>
    <typeCalendrier>D</typeCalendrier>
    <mesureDatee><dateFin>2023-01-15T00:00:00</dateFin><valeur>3500</valeur></mesureDatee>
  </serieMesuresDatees>
</fluxDonnees>`

func TestParseR171RejectsMixedMaximumUnits(t *testing.T) {
	path := writeTestFile(t, "ENEDIS_R171_mixed.xml", r171MixedUnitsFixture)

	_, err := ParseR171(path, testLogger())
	require.Error(t, err)
	var parseErr *ParseError
	assert.ErrorAs(t, err, &parseErr)
}
