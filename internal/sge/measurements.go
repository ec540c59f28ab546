package sge

import (
	"github.com/consometers/sge-tiers-proxy/internal/metadata"
)

// MeasurementSpec maps one client series name to the detailed
// measurement request parameters and the metadata of the returned
// records.
type MeasurementSpec struct {
	MesuresTypeCode  string
	GrandeurPhysique string
	Soutirage        bool
	Injection        bool
	MesuresCorrigees bool
	// market segments the series is available on
	Availability []string
	// Metadata builds the series description; samplingInterval comes
	// from the response for load curves, P1D for daily series.
	Metadata func(prm, samplingInterval string) metadata.Metadata
}

// Measurements is the catalog of series the history operation can
// serve, keyed by client series name.
var Measurements = map[string]MeasurementSpec{
	// Load curves at the meter recording step. At most 7 consecutive
	// days within the last 24 months, no earlier than the last
	// commissioning.
	"consumption/power/active/raw": {
		MesuresTypeCode:  "COURBE",
		GrandeurPhysique: "PA",
		Soutirage:        true,
		Availability:     []string{"C1", "C2", "C3", "C4", "C5"},
		Metadata:         metadata.ConsumptionPowerActiveRaw,
	},
	"consumption/power/active/corrected": {
		MesuresTypeCode:  "COURBE",
		GrandeurPhysique: "PA",
		Soutirage:        true,
		MesuresCorrigees: true,
		Availability:     []string{"C1", "C2", "C3", "C4"},
		Metadata:         metadata.ConsumptionPowerActiveRaw,
	},
	"production/power/active/raw": {
		MesuresTypeCode:  "COURBE",
		GrandeurPhysique: "PA",
		Injection:        true,
		Availability:     []string{"P1", "P2", "P3", "P4"},
		Metadata:         metadata.ProductionPowerActiveRaw,
	},
	"production/power/active/corrected": {
		MesuresTypeCode:  "COURBE",
		GrandeurPhysique: "PA",
		Injection:        true,
		MesuresCorrigees: true,
		Availability:     []string{"P1", "P2", "P3"},
		Metadata:         metadata.ProductionPowerActiveRaw,
	},
	// Daily energy totals.
	"consumption/energy/active/daily": {
		MesuresTypeCode:  "ENERGIE",
		GrandeurPhysique: "EA",
		Soutirage:        true,
		Availability:     []string{"C5"},
		Metadata: func(prm, _ string) metadata.Metadata {
			return metadata.ConsumptionEnergyActiveDaily(prm)
		},
	},
	"production/energy/active/daily": {
		MesuresTypeCode:  "ENERGIE",
		GrandeurPhysique: "EA",
		Injection:        true,
		Availability:     []string{"P4"},
		Metadata: func(prm, _ string) metadata.Metadata {
			return metadata.ProductionEnergyActiveDaily(prm)
		},
	},
}
