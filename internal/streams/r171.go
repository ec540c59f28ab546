package streams

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/consometers/sge-tiers-proxy/internal/metadata"
)

// r171Series is one measurement series of an R171 file: indexes or
// maxima of one usage point, one physical quantity, one temporal
// class.
type r171Series struct {
	prm           string
	direction     metadata.Direction
	code          string
	unit          string
	temporalClass string
	calendarOwner string
	measures      []r171Measure
}

type r171Measure struct {
	at    time.Time
	value float64
}

// r171Derived accumulates the per-instant totals derived from the
// distributor calendar classes.
type r171Derived struct {
	indexValue float64
	indexUnit  metadata.Unit
	indexSet   bool
	pmaValue   float64
	pmaUnit    metadata.Unit
	pmaSet     bool
}

// ParseR171 parses a periodic index publication: per-class index and
// maximum records for distributor and provider calendars, plus derived
// per-instant totals computed from the distributor classes.
func ParseR171(path string, logger *logrus.Logger) ([]metadata.MetadataRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := xml.NewDecoder(f)

	var series []r171Series
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &ParseError{File: path, Err: err}
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "serieMesuresDatees" {
			continue
		}
		one, err := parseR171Series(dec, start)
		if err != nil {
			return nil, &ParseError{File: path, Err: err}
		}
		series = append(series, *one)
	}

	var records []metadata.MetadataRecord
	derived := make(map[string]map[time.Time]*r171Derived)
	pmaUnits := make(map[string]metadata.Unit)

	for _, sr := range series {
		var seriesName string
		switch sr.code {
		case "PMA":
			seriesName = fmt.Sprintf("power/apparent/max/%s/%s", sr.calendarOwner, sr.temporalClass)
		case "EA":
			seriesName = fmt.Sprintf("energy/active/index/%s/%s", sr.calendarOwner, sr.temporalClass)
		default:
			// other quantities (reactive energy, running time,
			// overrun figures) are not published
			continue
		}

		if sr.code == "PMA" {
			unit := metadata.Unit(sr.unit)
			if known, ok := pmaUnits[sr.prm]; ok && known != unit {
				return nil, &ParseError{File: path, Err: fmt.Errorf("usage point %s mixes PMA units %s and %s", sr.prm, known, unit)}
			}
			pmaUnits[sr.prm] = unit
		}

		name := metadata.RecordName(sr.prm, string(sr.direction)+"/"+seriesName)
		meta := r171Metadata(sr)

		for _, m := range sr.measures {
			records = append(records, metadata.MetadataRecord{
				Metadata: meta,
				Record: metadata.Record{
					Name:  name,
					Time:  m.at,
					Unit:  metadata.Unit(sr.unit),
					Value: m.value,
				},
			})

			// Totals only use distributor counters; provider classes
			// are not always present.
			if sr.calendarOwner != "distributor" || sr.direction != metadata.Consumption {
				continue
			}

			if derived[sr.prm] == nil {
				derived[sr.prm] = make(map[time.Time]*r171Derived)
			}
			acc := derived[sr.prm][m.at]
			if acc == nil {
				acc = &r171Derived{}
				derived[sr.prm][m.at] = acc
			}

			switch sr.code {
			case "PMA":
				if !acc.pmaSet || m.value > acc.pmaValue {
					acc.pmaValue = m.value
				}
				acc.pmaUnit = metadata.Unit(sr.unit)
				acc.pmaSet = true
			case "EA":
				acc.indexValue += m.value
				acc.indexUnit = metadata.Unit(sr.unit)
				acc.indexSet = true
			}
		}
	}

	records = append(records, r171DerivedRecords(derived)...)

	return records, nil
}

func r171Metadata(sr r171Series) metadata.Metadata {
	var meta metadata.Metadata
	switch sr.code {
	case "PMA":
		if metadata.Unit(sr.unit) == metadata.UnitWatt {
			meta = metadata.ConsumptionPowerActiveMax(sr.prm)
		} else {
			meta = metadata.ConsumptionPowerApparentMax(sr.prm)
		}
	default:
		meta = metadata.ConsumptionEnergyActiveIndex(sr.prm)
	}
	meta.Measurement.Direction = sr.direction
	return meta
}

func r171DerivedRecords(derived map[string]map[time.Time]*r171Derived) []metadata.MetadataRecord {
	var prms []string
	for prm := range derived {
		prms = append(prms, prm)
	}
	sort.Strings(prms)

	var records []metadata.MetadataRecord
	for _, prm := range prms {
		var times []time.Time
		for at := range derived[prm] {
			times = append(times, at)
		}
		sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })

		for _, at := range times {
			acc := derived[prm][at]
			if acc.indexSet {
				records = append(records, metadata.MetadataRecord{
					Metadata: metadata.ConsumptionEnergyActiveIndex(prm),
					Record: metadata.Record{
						Name:  metadata.RecordName(prm, "consumption/energy/active/index"),
						Time:  at,
						Unit:  acc.indexUnit,
						Value: acc.indexValue,
					},
				})
			}
			if acc.pmaSet {
				meta := metadata.ConsumptionPowerApparentMax(prm)
				series := "consumption/power/apparent/max"
				if acc.pmaUnit == metadata.UnitWatt {
					meta = metadata.ConsumptionPowerActiveMax(prm)
					series = "consumption/power/active/max"
				}
				records = append(records, metadata.MetadataRecord{
					Metadata: meta,
					Record: metadata.Record{
						Name:  metadata.RecordName(prm, series),
						Time:  at,
						Unit:  acc.pmaUnit,
						Value: acc.pmaValue,
					},
				})
			}
		}
	}

	return records
}

func parseR171Series(dec *xml.Decoder, start xml.StartElement) (*r171Series, error) {
	sr := &r171Series{}
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "prmId":
				if sr.prm, err = readText(dec, t); err != nil {
					return nil, err
				}
			case "grandeurMetier":
				text, err := readText(dec, t)
				if err != nil {
					return nil, err
				}
				switch text {
				case "CONS":
					sr.direction = metadata.Consumption
				case "PROD":
					sr.direction = metadata.Production
				default:
					return nil, fmt.Errorf("unexpected direction %q", text)
				}
			case "grandeurPhysique":
				if sr.code, err = readText(dec, t); err != nil {
					return nil, err
				}
			case "unite":
				if sr.unit, err = readText(dec, t); err != nil {
					return nil, err
				}
			case "codeClasseTemporelle":
				text, err := readText(dec, t)
				if err != nil {
					return nil, err
				}
				sr.temporalClass = strings.ToLower(text)
			case "typeCalendrier":
				text, err := readText(dec, t)
				if err != nil {
					return nil, err
				}
				if text == "D" {
					sr.calendarOwner = "distributor"
				} else {
					sr.calendarOwner = "provider"
				}
			case "mesureDatee":
				measure, err := parseR171Measure(dec, t)
				if err != nil {
					return nil, err
				}
				sr.measures = append(sr.measures, *measure)
			}
		case xml.EndElement:
			if t.Name.Local == start.Name.Local {
				return sr, nil
			}
		}
	}
}

func parseR171Measure(dec *xml.Decoder, start xml.StartElement) (*r171Measure, error) {
	m := &r171Measure{}
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "dateFin":
				text, err := readText(dec, t)
				if err != nil {
					return nil, err
				}
				// R171 carries no zone designator; stamps are local
				// civil time
				if m.at, err = parseStreamTime(text); err != nil {
					return nil, err
				}
			case "valeur":
				text, err := readText(dec, t)
				if err != nil {
					return nil, err
				}
				if m.value, err = strconv.ParseFloat(text, 64); err != nil {
					return nil, err
				}
			}
		case xml.EndElement:
			if t.Name.Local == start.Name.Local {
				return m, nil
			}
		}
	}
}
