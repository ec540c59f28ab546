package streams

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/consometers/sge-tiers-proxy/internal/metadata"
)

type r151Reading struct {
	prm         string
	at          time.Time
	distributor []r151Class
	provider    []r151Class
	pma         *float64
}

type r151Class struct {
	id    string
	value float64
}

// ParseR151 parses a daily index snapshot: one reading per usage
// point with distributor and provider temporal classes and the daily
// maximum power. The derived total is the sum of the distributor
// classes, same rule as the periodic publication.
func ParseR151(path string, logger *logrus.Logger) ([]metadata.MetadataRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := xml.NewDecoder(f)

	var readings []r151Reading
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
		reading, err := parseR151Reading(dec, start)
		if err != nil {
			return nil, &ParseError{File: path, Err: err}
		}
		readings = append(readings, *reading)
	}

	var records []metadata.MetadataRecord
	for _, reading := range readings {
		// The stream carries consumption data only.
		base := "consumption"
		indexMeta := metadata.ConsumptionEnergyActiveIndex(reading.prm)

		var indexSum float64
		for _, class := range reading.distributor {
			records = append(records, metadata.MetadataRecord{
				Metadata: indexMeta,
				Record: metadata.Record{
					Name:  metadata.RecordName(reading.prm, fmt.Sprintf("%s/energy/active/index/distributor/%s", base, class.id)),
					Time:  reading.at,
					Unit:  metadata.UnitWattHour,
					Value: class.value,
				},
			})
			indexSum += class.value
		}

		records = append(records, metadata.MetadataRecord{
			Metadata: indexMeta,
			Record: metadata.Record{
				Name:  metadata.RecordName(reading.prm, base+"/energy/active/index"),
				Time:  reading.at,
				Unit:  metadata.UnitWattHour,
				Value: indexSum,
			},
		})

		for _, class := range reading.provider {
			records = append(records, metadata.MetadataRecord{
				Metadata: indexMeta,
				Record: metadata.Record{
					Name:  metadata.RecordName(reading.prm, fmt.Sprintf("%s/energy/active/index/provider/%s", base, class.id)),
					Time:  reading.at,
					Unit:  metadata.UnitWattHour,
					Value: class.value,
				},
			})
		}

		if reading.pma != nil {
			records = append(records, metadata.MetadataRecord{
				Metadata: metadata.ConsumptionPowerApparentMax(reading.prm),
				Record: metadata.Record{
					Name:  metadata.RecordName(reading.prm, base+"/power/apparent/max"),
					Time:  reading.at,
					Unit:  metadata.UnitVoltAmpere,
					Value: *reading.pma,
				},
			})
		}
	}

	return records, nil
}

func parseR151Reading(dec *xml.Decoder, start xml.StartElement) (*r151Reading, error) {
	reading := &r151Reading{}
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "Id_PRM":
				if reading.prm, err = readText(dec, t); err != nil {
					return nil, err
				}
			case "Date_Releve":
				text, err := readText(dec, t)
				if err != nil {
					return nil, err
				}
				if reading.at, err = parseStreamTime(text); err != nil {
					return nil, err
				}
			case "Classe_Temporelle_Distributeur":
				class, err := parseR151Class(dec, t)
				if err != nil {
					return nil, err
				}
				reading.distributor = append(reading.distributor, *class)
			case "Classe_Temporelle":
				class, err := parseR151Class(dec, t)
				if err != nil {
					return nil, err
				}
				reading.provider = append(reading.provider, *class)
			case "Puissance_Maximale":
				value, err := parseR151Value(dec, t)
				if err != nil {
					return nil, err
				}
				reading.pma = &value
			}
		case xml.EndElement:
			if t.Name.Local == start.Name.Local {
				if reading.prm == "" || reading.at.IsZero() {
					return nil, fmt.Errorf("incomplete PRM reading")
				}
				return reading, nil
			}
		}
	}
}

func parseR151Class(dec *xml.Decoder, start xml.StartElement) (*r151Class, error) {
	class := &r151Class{}
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "Id_Classe_Temporelle":
				text, err := readText(dec, t)
				if err != nil {
					return nil, err
				}
				class.id = strings.ToLower(text)
			case "Valeur":
				text, err := readText(dec, t)
				if err != nil {
					return nil, err
				}
				if class.value, err = strconv.ParseFloat(text, 64); err != nil {
					return nil, err
				}
			}
		case xml.EndElement:
			if t.Name.Local == start.Name.Local {
				return class, nil
			}
		}
	}
}

func parseR151Value(dec *xml.Decoder, start xml.StartElement) (float64, error) {
	for {
		tok, err := dec.Token()
		if err != nil {
			return 0, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "Valeur" {
				text, err := readText(dec, t)
				if err != nil {
					return 0, err
				}
				return strconv.ParseFloat(text, 64)
			}
		case xml.EndElement:
			if t.Name.Local == start.Name.Local {
				return 0, fmt.Errorf("missing Valeur in %s", start.Name.Local)
			}
		}
	}
}
