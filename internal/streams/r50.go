package streams

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/consometers/sge-tiers-proxy/internal/metadata"
)

// r50Step is the recording step of the daily load curve stream.
const r50Step = 30 * time.Minute

type r50Point struct {
	at      time.Time
	value   string
	caution string
}

type r50Curve struct {
	prm    string
	unit   string
	points []r50Point
}

// ParseR50 parses a daily 30-minute consumption load curve. The
// stream stamps each point at the end of its interval; emitted records
// are shifted to the interval start. Points without a value or flagged
// with a caution code are logged and skipped.
func ParseR50(path string, logger *logrus.Logger) ([]metadata.MetadataRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := xml.NewDecoder(f)

	var curves []r50Curve
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &ParseError{File: path, Err: err}
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "PRM" {
			continue
		}
		curve, err := parseR50Curve(dec, start)
		if err != nil {
			return nil, &ParseError{File: path, Err: err}
		}
		curves = append(curves, *curve)
	}

	var records []metadata.MetadataRecord
	for _, curve := range curves {
		if err := checkR50Step(curve.points); err != nil {
			return nil, &ParseError{File: path, Err: err}
		}

		scale := 1.0
		switch curve.unit {
		case "kW":
			scale = 1000.0
		case "W", "":
		default:
			return nil, &ParseError{File: path, Err: fmt.Errorf("unexpected unit %q", curve.unit)}
		}

		meta := metadata.ConsumptionPowerActiveRaw(curve.prm, "PT30M")
		name := metadata.RecordName(curve.prm, "consumption/power/active/raw")

		for _, point := range curve.points {
			if point.value == "" {
				logger.WithFields(logrus.Fields{
					"usage_point": curve.prm,
					"time":        point.at,
				}).Warn("Missing load curve value")
				continue
			}
			if point.caution != "" {
				logger.WithFields(logrus.Fields{
					"usage_point": curve.prm,
					"time":        point.at,
					"caution":     point.caution,
				}).Warn("Load curve point flagged, skipping")
				continue
			}
			value, err := strconv.ParseFloat(point.value, 64)
			if err != nil {
				return nil, &ParseError{File: path, Err: err}
			}
			records = append(records, metadata.MetadataRecord{
				Metadata: meta,
				Record: metadata.Record{
					Name:  name,
					Time:  point.at.Add(-r50Step),
					Unit:  metadata.UnitWatt,
					Value: value * scale,
				},
			})
		}
	}

	return records, nil
}

// checkR50Step verifies that the median spacing of consecutive points
// matches the declared 30-minute step.
func checkR50Step(points []r50Point) error {
	if len(points) < 2 {
		return nil
	}
	deltas := make([]time.Duration, 0, len(points)-1)
	for i := 1; i < len(points); i++ {
		deltas = append(deltas, points[i].at.Sub(points[i-1].at))
	}
	sort.Slice(deltas, func(i, j int) bool { return deltas[i] < deltas[j] })
	if median := deltas[len(deltas)/2]; median != r50Step {
		return fmt.Errorf("median sampling step %s does not match declared %s", median, r50Step)
	}
	return nil
}

func parseR50Curve(dec *xml.Decoder, start xml.StartElement) (*r50Curve, error) {
	curve := &r50Curve{}
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "Id_PRM":
				if curve.prm, err = readText(dec, t); err != nil {
					return nil, err
				}
			case "Unite":
				if curve.unit, err = readText(dec, t); err != nil {
					return nil, err
				}
			case "PDC":
				point, err := parseR50Point(dec, t)
				if err != nil {
					return nil, err
				}
				curve.points = append(curve.points, *point)
			}
		case xml.EndElement:
			if t.Name.Local == start.Name.Local {
				if curve.prm == "" {
					return nil, fmt.Errorf("PRM element without Id_PRM")
				}
				return curve, nil
			}
		}
	}
}

func parseR50Point(dec *xml.Decoder, start xml.StartElement) (*r50Point, error) {
	point := &r50Point{}
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "H":
				text, err := readText(dec, t)
				if err != nil {
					return nil, err
				}
				if point.at, err = parseStreamTime(text); err != nil {
					return nil, err
				}
			case "V":
				if point.value, err = readText(dec, t); err != nil {
					return nil, err
				}
			case "IV":
				if point.caution, err = readText(dec, t); err != nil {
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
