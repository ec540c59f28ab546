package metadata

import "fmt"

// DeviceType is the kind of device a record comes from.
type DeviceType string

const DeviceElectricityMeter DeviceType = "electricity-meter"

// DeviceIdentifier names a device within an authority namespace.
type DeviceIdentifier struct {
	Authority string
	Type      string
	Value     string
}

// EnedisUsagePoint builds the identifier of a metered delivery point
// in the DSO namespace.
func EnedisUsagePoint(prm string) DeviceIdentifier {
	return DeviceIdentifier{Authority: "enedis", Type: "prm", Value: prm}
}

// Device describes the measuring device of a record.
type Device struct {
	Type       DeviceType
	Identifier DeviceIdentifier
}

// Direction tells whether energy flows to or from the grid.
type Direction string

const (
	Consumption Direction = "consumption"
	Production  Direction = "production"
)

// Quantity is the measured physical quantity.
type Quantity string

const (
	QuantityPower   Quantity = "power"
	QuantityEnergy  Quantity = "energy"
	QuantityVoltage Quantity = "voltage"
)

// Unit is one of the canonical units used throughout the proxy.
// Source formats carrying kW or kVAr are converted before records are
// built.
type Unit string

const (
	UnitWatt         Unit = "W"
	UnitVoltAmpere   Unit = "VA"
	UnitWattReactive Unit = "Wr"
	UnitWattHour     Unit = "Wh"
	UnitVolt         Unit = "V"
)

// Aggregation tells how samples relate to the sampling interval.
type Aggregation string

const (
	AggregationMean Aggregation = "mean"
	AggregationSum  Aggregation = "sum"
	AggregationMax  Aggregation = "max"
)

// Measurement describes one series of records.
type Measurement struct {
	Name             string
	Direction        Direction
	Quantity         Quantity
	Type             string
	Unit             Unit
	Aggregation      Aggregation
	SamplingInterval string
}

// Metadata is the full description attached to a group of records.
type Metadata struct {
	Device      Device
	Measurement Measurement
}

// LoadCurveSamplingIntervals maps the known meter recording steps, in
// minutes, to their ISO-8601 duration form.
var LoadCurveSamplingIntervals = map[int]string{
	5:  "PT5M",
	10: "PT10M",
	15: "PT15M",
	30: "PT30M",
	60: "PT60M",
}

// SamplingIntervalForStep returns the ISO-8601 duration of a recording
// step in minutes.
func SamplingIntervalForStep(minutes int) (string, error) {
	interval, ok := LoadCurveSamplingIntervals[minutes]
	if !ok {
		return "", fmt.Errorf("unknown sampling step: %d minutes", minutes)
	}
	return interval, nil
}

func meter(prm string) Device {
	return Device{Type: DeviceElectricityMeter, Identifier: EnedisUsagePoint(prm)}
}

// ConsumptionPowerActiveRaw describes a raw active power load curve.
func ConsumptionPowerActiveRaw(prm, samplingInterval string) Metadata {
	return Metadata{
		Device: meter(prm),
		Measurement: Measurement{
			Name:             "active-power",
			Direction:        Consumption,
			Quantity:         QuantityPower,
			Type:             "electrical",
			Unit:             UnitWatt,
			Aggregation:      AggregationMean,
			SamplingInterval: samplingInterval,
		},
	}
}

// ConsumptionPowerCapacitiveRaw describes a capacitive reactive power
// load curve.
func ConsumptionPowerCapacitiveRaw(prm, samplingInterval string) Metadata {
	return Metadata{
		Device: meter(prm),
		Measurement: Measurement{
			Name:             "capacitive-power",
			Direction:        Consumption,
			Quantity:         QuantityPower,
			Type:             "electrical",
			Unit:             UnitWattReactive,
			Aggregation:      AggregationMean,
			SamplingInterval: samplingInterval,
		},
	}
}

// ConsumptionPowerInductiveRaw describes an inductive reactive power
// load curve.
func ConsumptionPowerInductiveRaw(prm, samplingInterval string) Metadata {
	return Metadata{
		Device: meter(prm),
		Measurement: Measurement{
			Name:             "inductive-power",
			Direction:        Consumption,
			Quantity:         QuantityPower,
			Type:             "electrical",
			Unit:             UnitWattReactive,
			Aggregation:      AggregationMean,
			SamplingInterval: samplingInterval,
		},
	}
}

// ConsumptionVoltageRaw describes a voltage curve.
func ConsumptionVoltageRaw(prm, samplingInterval string) Metadata {
	return Metadata{
		Device: meter(prm),
		Measurement: Measurement{
			Name:             "voltage",
			Direction:        Consumption,
			Quantity:         QuantityVoltage,
			Type:             "electrical",
			Unit:             UnitVolt,
			Aggregation:      AggregationMean,
			SamplingInterval: samplingInterval,
		},
	}
}

// ConsumptionPowerApparentMax describes the daily maximum apparent
// power.
func ConsumptionPowerApparentMax(prm string) Metadata {
	return Metadata{
		Device: meter(prm),
		Measurement: Measurement{
			Name:             "apparent-power",
			Direction:        Consumption,
			Quantity:         QuantityPower,
			Type:             "electrical",
			Unit:             UnitVoltAmpere,
			Aggregation:      AggregationMax,
			SamplingInterval: "P1D",
		},
	}
}

// ConsumptionPowerActiveMax describes the daily maximum active power,
// the variant some meters report in watts instead of volt-amperes.
func ConsumptionPowerActiveMax(prm string) Metadata {
	return Metadata{
		Device: meter(prm),
		Measurement: Measurement{
			Name:             "active-power",
			Direction:        Consumption,
			Quantity:         QuantityPower,
			Type:             "electrical",
			Unit:             UnitWatt,
			Aggregation:      AggregationMax,
			SamplingInterval: "P1D",
		},
	}
}

// ConsumptionEnergyActiveIndex describes a cumulative consumption
// energy counter.
func ConsumptionEnergyActiveIndex(prm string) Metadata {
	return Metadata{
		Device: meter(prm),
		Measurement: Measurement{
			Name:             "active-energy-index",
			Direction:        Consumption,
			Quantity:         QuantityEnergy,
			Type:             "electrical",
			Unit:             UnitWattHour,
			Aggregation:      AggregationSum,
			SamplingInterval: "P1D",
		},
	}
}

// ConsumptionEnergyActiveDaily describes daily consumed energy totals.
func ConsumptionEnergyActiveDaily(prm string) Metadata {
	return Metadata{
		Device: meter(prm),
		Measurement: Measurement{
			Name:             "active-energy",
			Direction:        Consumption,
			Quantity:         QuantityEnergy,
			Type:             "electrical",
			Unit:             UnitWattHour,
			Aggregation:      AggregationSum,
			SamplingInterval: "P1D",
		},
	}
}

// ProductionEnergyActiveDaily describes daily produced energy totals.
func ProductionEnergyActiveDaily(prm string) Metadata {
	return Metadata{
		Device: meter(prm),
		Measurement: Measurement{
			Name:             "active-energy",
			Direction:        Production,
			Quantity:         QuantityEnergy,
			Type:             "electrical",
			Unit:             UnitWattHour,
			Aggregation:      AggregationSum,
			SamplingInterval: "P1D",
		},
	}
}

// ProductionPowerActiveRaw describes a raw produced active power load
// curve.
func ProductionPowerActiveRaw(prm, samplingInterval string) Metadata {
	return Metadata{
		Device: meter(prm),
		Measurement: Measurement{
			Name:             "active-power",
			Direction:        Production,
			Quantity:         QuantityPower,
			Type:             "electrical",
			Unit:             UnitWatt,
			Aggregation:      AggregationMean,
			SamplingInterval: samplingInterval,
		},
	}
}

// ProductionEnergyActiveIndex describes a cumulative production
// energy counter.
func ProductionEnergyActiveIndex(prm string) Metadata {
	return Metadata{
		Device: meter(prm),
		Measurement: Measurement{
			Name:             "active-energy-index",
			Direction:        Production,
			Quantity:         QuantityEnergy,
			Type:             "electrical",
			Unit:             UnitWattHour,
			Aggregation:      AggregationSum,
			SamplingInterval: "P1D",
		},
	}
}
