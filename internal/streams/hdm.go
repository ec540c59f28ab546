package streams

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/consometers/sge-tiers-proxy/internal/metadata"
)

// hdmCalendarPeriod assigns temporal class ids to the fixed sub-index
// columns over [from, to). An empty id means the class does not exist
// in that period and its sub-index is zero.
type hdmCalendarPeriod struct {
	from        time.Time
	to          time.Time
	distributor []string
	provider    []string
}

func (p *hdmCalendarPeriod) covers(at time.Time) bool {
	return !at.Before(p.from) && at.Before(p.to)
}

const (
	hdmDistributorColumns = 4
	hdmProviderColumns    = 6
)

// ParseHdm parses a manually exported measurement history, a
// semicolon-separated CSV with a key/value preamble. Two sub-formats
// share the container, told apart by the declared data type: a load
// curve, or daily indexes with their calendar and a maximum power
// table.
func ParseHdm(path string, logger *logrus.Logger) ([]metadata.MetadataRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	// exports carry a UTF-8 byte order mark
	br := bufio.NewReader(f)
	if bom, err := br.Peek(3); err == nil && bom[0] == 0xEF && bom[1] == 0xBB && bom[2] == 0xBF {
		br.Discard(3)
	}

	reader := csv.NewReader(br)
	reader.Comma = ';'
	reader.FieldsPerRecord = -1

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, &ParseError{File: path, Err: err}
	}

	var (
		prm      string
		dataType string
		segment  string
	)

	i := 0
preamble:
	for ; i < len(rows); i++ {
		row := rows[i]
		if len(row) < 2 {
			continue
		}
		switch row[0] {
		case "Identifiant PRM":
			prm = row[1]
		case "Type de donnees":
			dataType = row[1]
		case "Segment":
			segment = row[1]
		case "Horodate", "Calendrier":
			break preamble
		}
	}

	if prm == "" || dataType == "" {
		return nil, &ParseError{File: path, Err: fmt.Errorf("missing PRM or data type in preamble")}
	}

	switch {
	case strings.HasPrefix(dataType, "Courbe"):
		records, err := parseHdmLoadCurve(prm, segment, rows[i:], logger)
		if err != nil {
			return nil, &ParseError{File: path, Err: err}
		}
		return records, nil
	case strings.HasPrefix(dataType, "Index"):
		records, err := parseHdmIndex(prm, rows[i:], logger)
		if err != nil {
			return nil, &ParseError{File: path, Err: err}
		}
		return records, nil
	default:
		return nil, &ParseError{File: path, Err: fmt.Errorf("unexpected data type %q", dataType)}
	}
}

// parseHdmLoadCurve reads Horodate;Valeur rows. The sampling step of
// each point is inferred from the spacing to its neighbor, so a file
// can change step when the meter configuration changed. On the C5
// segment stamps mark the interval end and are shifted back by the
// step; C4 curves are already stamped at the interval start.
func parseHdmLoadCurve(prm, segment string, rows [][]string, logger *logrus.Logger) ([]metadata.MetadataRecord, error) {
	if len(rows) == 0 || rows[0][0] != "Horodate" {
		return nil, fmt.Errorf("missing load curve header")
	}

	type point struct {
		at    time.Time
		value float64
	}
	var points []point
	for _, row := range rows[1:] {
		if len(row) < 2 || row[0] == "" {
			continue
		}
		at, err := parseStreamTime(row[0])
		if err != nil {
			return nil, err
		}
		if row[1] == "" {
			logger.WithFields(logrus.Fields{"usage_point": prm, "time": at}).Warn("Missing load curve value")
			continue
		}
		value, err := strconv.ParseFloat(row[1], 64)
		if err != nil {
			return nil, err
		}
		points = append(points, point{at: at, value: value})
	}

	shiftBack := segment == "C5"

	var records []metadata.MetadataRecord
	for i, p := range points {
		var delta time.Duration
		if i > 0 {
			delta = p.at.Sub(points[i-1].at)
		} else if len(points) > 1 {
			delta = points[1].at.Sub(p.at)
		}

		minutes := int(delta / time.Minute)
		interval, err := metadata.SamplingIntervalForStep(minutes)
		if err != nil {
			return nil, fmt.Errorf("cannot infer sampling step at %s: %w", p.at, err)
		}

		at := p.at
		if shiftBack {
			at = at.Add(-time.Duration(minutes) * time.Minute)
		}

		records = append(records, metadata.MetadataRecord{
			Metadata: metadata.ConsumptionPowerActiveRaw(prm, interval),
			Record: metadata.Record{
				Name:  metadata.RecordName(prm, "consumption/power/active/raw"),
				Time:  at,
				Unit:  metadata.UnitWatt,
				Value: p.value,
			},
		})
	}

	return records, nil
}

// parseHdmIndex reads the calendar table, the daily sub-index rows and
// the trailing maximum power table. Sub-indexes whose class is absent
// from the calendar period covering the row are zero. The emitted
// total is the distributor sum; provider and distributor totals are
// cross-checked day over day and a mismatch is only logged.
func parseHdmIndex(prm string, rows [][]string, logger *logrus.Logger) ([]metadata.MetadataRecord, error) {
	var calendar []hdmCalendarPeriod

	i := 0
	for ; i < len(rows); i++ {
		row := rows[i]
		if len(row) == 0 || row[0] != "Calendrier" {
			break
		}
		if len(row) < 3+hdmDistributorColumns+hdmProviderColumns {
			return nil, fmt.Errorf("short calendar row")
		}
		from, err := parseStreamTime(row[1])
		if err != nil {
			return nil, err
		}
		to, err := parseStreamTime(row[2])
		if err != nil {
			return nil, err
		}
		period := hdmCalendarPeriod{from: from, to: to}
		period.distributor = append(period.distributor, row[3:3+hdmDistributorColumns]...)
		period.provider = append(period.provider, row[3+hdmDistributorColumns:3+hdmDistributorColumns+hdmProviderColumns]...)
		calendar = append(calendar, period)
	}
	if len(calendar) == 0 {
		return nil, fmt.Errorf("missing calendar table")
	}

	if i >= len(rows) || rows[i][0] != "Horodate" {
		return nil, fmt.Errorf("missing index header")
	}
	i++

	indexMeta := metadata.ConsumptionEnergyActiveIndex(prm)

	var (
		records       []metadata.MetadataRecord
		prevDistTotal *float64
		prevProvTotal *float64
	)

	for ; i < len(rows); i++ {
		row := rows[i]
		if len(row) == 0 || row[0] == "" {
			continue
		}
		if row[0] == "Puissance maximale" {
			i++
			break
		}
		if len(row) < 1+hdmDistributorColumns+hdmProviderColumns {
			return nil, fmt.Errorf("short index row")
		}

		at, err := parseStreamTime(row[0])
		if err != nil {
			return nil, err
		}

		period := activePeriod(calendar, at)
		if period == nil {
			return nil, fmt.Errorf("no calendar period covers %s", at)
		}

		var distTotal, provTotal float64
		emit := func(owner string, ids []string, values []string) error {
			for col, id := range ids {
				if id == "" {
					// class absent in this period, sub-index is zero
					continue
				}
				var value float64
				if values[col] != "" {
					if value, err = strconv.ParseFloat(values[col], 64); err != nil {
						return err
					}
				}
				if owner == "distributor" {
					distTotal += value
				} else {
					provTotal += value
				}
				records = append(records, metadata.MetadataRecord{
					Metadata: indexMeta,
					Record: metadata.Record{
						Name:  metadata.RecordName(prm, fmt.Sprintf("consumption/energy/active/index/%s/%s", owner, strings.ToLower(id))),
						Time:  at,
						Unit:  metadata.UnitWattHour,
						Value: value,
					},
				})
			}
			return nil
		}

		distValues := row[1 : 1+hdmDistributorColumns]
		provValues := row[1+hdmDistributorColumns : 1+hdmDistributorColumns+hdmProviderColumns]
		if err := emit("distributor", period.distributor, distValues); err != nil {
			return nil, err
		}
		if err := emit("provider", period.provider, provValues); err != nil {
			return nil, err
		}

		records = append(records, metadata.MetadataRecord{
			Metadata: indexMeta,
			Record: metadata.Record{
				Name:  metadata.RecordName(prm, "consumption/energy/active/index"),
				Time:  at,
				Unit:  metadata.UnitWattHour,
				Value: distTotal,
			},
		})

		if prevDistTotal != nil && prevProvTotal != nil {
			if distTotal-*prevDistTotal != provTotal-*prevProvTotal {
				logger.WithFields(logrus.Fields{
					"usage_point":       prm,
					"time":              at,
					"distributor_delta": distTotal - *prevDistTotal,
					"provider_delta":    provTotal - *prevProvTotal,
				}).Warn("Provider and distributor index deltas disagree")
			}
		}
		d, p := distTotal, provTotal
		prevDistTotal, prevProvTotal = &d, &p
	}

	// trailing maximum power table
	pmaMeta := metadata.ConsumptionPowerApparentMax(prm)
	for ; i < len(rows); i++ {
		row := rows[i]
		if len(row) < 2 || row[0] == "" || row[0] == "Horodate" {
			continue
		}
		at, err := parseStreamTime(row[0])
		if err != nil {
			return nil, err
		}
		value, err := strconv.ParseFloat(row[1], 64)
		if err != nil {
			return nil, err
		}
		records = append(records, metadata.MetadataRecord{
			Metadata: pmaMeta,
			Record: metadata.Record{
				Name:  metadata.RecordName(prm, "consumption/power/apparent/max"),
				Time:  at,
				Unit:  metadata.UnitVoltAmpere,
				Value: value,
			},
		})
	}

	return records, nil
}

func activePeriod(calendar []hdmCalendarPeriod, at time.Time) *hdmCalendarPeriod {
	for i := range calendar {
		if calendar[i].covers(at) {
			return &calendar[i]
		}
	}
	return nil
}
