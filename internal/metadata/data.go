package metadata

import (
	"encoding/xml"
	"fmt"
	"strconv"
)

// Data is a group of records sharing one metadata, the payload shape
// of history results and stream deliveries.
type Data struct {
	Metadata *Metadata
	Records  []Record
}

type xmlIdentifier struct {
	Authority string `xml:"authority,attr"`
	Type      string `xml:"type,attr"`
	Value     string `xml:"value,attr"`
}

type xmlDevice struct {
	Type       string        `xml:"type,attr"`
	Identifier xmlIdentifier `xml:"identifier"`
}

type xmlMeasurement struct {
	Name             string `xml:"name,attr"`
	Direction        string `xml:"direction,attr"`
	Quantity         string `xml:"quantity,attr"`
	Type             string `xml:"type,attr"`
	Unit             string `xml:"unit,attr"`
	Aggregation      string `xml:"aggregation,attr,omitempty"`
	SamplingInterval string `xml:"sampling-interval,attr,omitempty"`
}

type xmlMeta struct {
	Device      xmlDevice      `xml:"device"`
	Measurement xmlMeasurement `xml:"measurement"`
}

type xmlSenml struct {
	BaseName string `xml:"bn,attr,omitempty"`
	BaseTime string `xml:"bt,attr,omitempty"`
	BaseUnit string `xml:"bu,attr,omitempty"`
	Time     string `xml:"t,attr"`
	Value    string `xml:"v,attr"`
}

type xmlSensml struct {
	Xmlns string     `xml:"xmlns,attr"`
	Senml []xmlSenml `xml:"senml"`
}

type xmlData struct {
	Meta   *xmlMeta  `xml:"meta,omitempty"`
	Sensml xmlSensml `xml:"sensml"`
}

type xmlQuoalise struct {
	XMLName xml.Name `xml:"urn:quoalise:0 quoalise"`
	Data    xmlData  `xml:"data"`
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// XML renders the group in the wire format: metadata attributes
// followed by a sensor-ML list where the first record carries the base
// name, time and unit and later records carry deltas.
func (d *Data) XML() ([]byte, error) {
	doc := xmlQuoalise{}

	if d.Metadata != nil {
		m := d.Metadata
		doc.Data.Meta = &xmlMeta{
			Device: xmlDevice{
				Type: string(m.Device.Type),
				Identifier: xmlIdentifier{
					Authority: m.Device.Identifier.Authority,
					Type:      m.Device.Identifier.Type,
					Value:     m.Device.Identifier.Value,
				},
			},
			Measurement: xmlMeasurement{
				Name:             m.Measurement.Name,
				Direction:        string(m.Measurement.Direction),
				Quantity:         string(m.Measurement.Quantity),
				Type:             m.Measurement.Type,
				Unit:             string(m.Measurement.Unit),
				Aggregation:      string(m.Measurement.Aggregation),
				SamplingInterval: m.Measurement.SamplingInterval,
			},
		}
	}

	doc.Data.Sensml.Xmlns = "urn:ietf:params:xml:ns:senml"

	var baseTime int64
	for i, record := range d.Records {
		t := record.Time.Unix()
		if i == 0 {
			baseTime = t
			doc.Data.Sensml.Senml = append(doc.Data.Sensml.Senml, xmlSenml{
				BaseName: record.Name,
				BaseTime: strconv.FormatInt(t, 10),
				BaseUnit: string(record.Unit),
				Time:     "0",
				Value:    formatValue(record.Value),
			})
			continue
		}
		doc.Data.Sensml.Senml = append(doc.Data.Sensml.Senml, xmlSenml{
			Time:  strconv.FormatInt(t-baseTime, 10),
			Value: formatValue(record.Value),
		})
	}

	out, err := xml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to render data: %w", err)
	}

	return out, nil
}
