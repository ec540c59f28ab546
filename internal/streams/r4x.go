package streams

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/consometers/sge-tiers-proxy/internal/metadata"
)

type r4xPoint struct {
	at     time.Time
	value  float64
	status string
}

type r4xCurve struct {
	prm       string
	direction metadata.Direction
	code      string
	unit      string
	points    []r4xPoint
}

// ParseR4x parses a detailed load curve publication: active power,
// capacitive and inductive reactive power and voltage at the meter
// recording step. Only points with the real status are emitted;
// estimated or corrected points are skipped with a warning. Wire units
// kW and kVAr are converted to the canonical W and Wr.
func ParseR4x(path string, logger *logrus.Logger) ([]metadata.MetadataRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := xml.NewDecoder(f)

	var curves []r4xCurve
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &ParseError{File: path, Err: err}
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "Courbe" {
			continue
		}
		curve, err := parseR4xCurve(dec, start)
		if err != nil {
			return nil, &ParseError{File: path, Err: err}
		}
		curves = append(curves, *curve)
	}

	var records []metadata.MetadataRecord
	for _, curve := range curves {
		series, meta, unit, scale, err := r4xSeries(&curve)
		if err != nil {
			return nil, &ParseError{File: path, Err: err}
		}

		interval, err := r4xSamplingInterval(curve.points)
		if err != nil {
			return nil, &ParseError{File: path, Err: err}
		}
		meta.Measurement.SamplingInterval = interval

		name := metadata.RecordName(curve.prm, string(curve.direction)+"/"+series)

		for _, point := range curve.points {
			if point.status != "R" {
				logger.WithFields(logrus.Fields{
					"usage_point": curve.prm,
					"time":        point.at,
					"status":      point.status,
				}).Warn("Skipping non-real curve point")
				continue
			}
			records = append(records, metadata.MetadataRecord{
				Metadata: meta,
				Record: metadata.Record{
					Name:  name,
					Time:  point.at,
					Unit:  unit,
					Value: point.value * scale,
				},
			})
		}
	}

	return records, nil
}

func r4xSeries(curve *r4xCurve) (string, metadata.Metadata, metadata.Unit, float64, error) {
	var (
		series string
		meta   metadata.Metadata
		unit   metadata.Unit
		scale  = 1.0
	)

	switch curve.code {
	case "PA":
		series = "power/active/raw"
		meta = metadata.ConsumptionPowerActiveRaw(curve.prm, "")
		unit = metadata.UnitWatt
		if curve.unit == "kW" {
			scale = 1000.0
		}
	case "ERC":
		series = "power/capacitive/raw"
		meta = metadata.ConsumptionPowerCapacitiveRaw(curve.prm, "")
		unit = metadata.UnitWattReactive
		if curve.unit == "kVAr" {
			scale = 1000.0
		}
	case "ERI":
		series = "power/inductive/raw"
		meta = metadata.ConsumptionPowerInductiveRaw(curve.prm, "")
		unit = metadata.UnitWattReactive
		if curve.unit == "kVAr" {
			scale = 1000.0
		}
	case "E", "TENSION":
		series = "voltage/raw"
		meta = metadata.ConsumptionVoltageRaw(curve.prm, "")
		unit = metadata.UnitVolt
	default:
		return "", meta, "", 0, fmt.Errorf("unexpected physical quantity %q", curve.code)
	}

	meta.Measurement.Direction = curve.direction
	return series, meta, unit, scale, nil
}

// r4xSamplingInterval infers the recording step from the first pair of
// consecutive points and checks it is one of the known meter steps.
func r4xSamplingInterval(points []r4xPoint) (string, error) {
	if len(points) < 2 {
		return "PT30M", nil
	}
	minutes := int(points[1].at.Sub(points[0].at) / time.Minute)
	return metadata.SamplingIntervalForStep(minutes)
}

func parseR4xCurve(dec *xml.Decoder, start xml.StartElement) (*r4xCurve, error) {
	curve := &r4xCurve{direction: metadata.Consumption}
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "Identifiant_PRM":
				if curve.prm, err = readText(dec, t); err != nil {
					return nil, err
				}
			case "Grandeur_Metier":
				text, err := readText(dec, t)
				if err != nil {
					return nil, err
				}
				switch text {
				case "", "CONS":
					// empty defaults to consumption
					curve.direction = metadata.Consumption
				case "PROD":
					curve.direction = metadata.Production
				default:
					return nil, fmt.Errorf("unexpected direction %q", text)
				}
			case "Grandeur_Physique":
				if curve.code, err = readText(dec, t); err != nil {
					return nil, err
				}
			case "Unite":
				if curve.unit, err = readText(dec, t); err != nil {
					return nil, err
				}
			case "Point":
				point, err := parseR4xPoint(dec, t)
				if err != nil {
					return nil, err
				}
				curve.points = append(curve.points, *point)
			}
		case xml.EndElement:
			if t.Name.Local == start.Name.Local {
				if curve.prm == "" {
					return nil, fmt.Errorf("Courbe element without Identifiant_PRM")
				}
				return curve, nil
			}
		}
	}
}

func parseR4xPoint(dec *xml.Decoder, start xml.StartElement) (*r4xPoint, error) {
	point := &r4xPoint{}
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "Horodate":
				text, err := readText(dec, t)
				if err != nil {
					return nil, err
				}
				if point.at, err = parseStreamTime(text); err != nil {
					return nil, err
				}
			case "Valeur":
				text, err := readText(dec, t)
				if err != nil {
					return nil, err
				}
				if point.value, err = strconv.ParseFloat(text, 64); err != nil {
					return nil, err
				}
			case "Statut":
				if point.status, err = readText(dec, t); err != nil {
					return nil, err
				}
			}
		case xml.EndElement:
			if t.Name.Local == start.Name.Local {
				return point, nil
			}
		}
	}
}
