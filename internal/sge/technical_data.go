package sge

import (
	"context"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
)

type technicalDataRequest struct {
	XMLName         xml.Name `xml:"http://www.enedis.fr/sge/b2b/services/consulterdonneestechniquescontractuelles/v1.0 consulterDonneesTechniquesContractuelles"`
	PointID         string   `xml:"pointId"`
	LoginUtilisateur string  `xml:"loginUtilisateur"`
	AutorisationClient bool  `xml:"autorisationClient"`
}

// TechnicalData is the subset of the contractual description the
// proxy needs: the market segment drives the load curve sampling step
// and the service level gates curve collection.
type TechnicalData struct {
	Segment      string
	ServiceLevel int
}

// GetTechnicalData fetches the segment and service level of a usage
// point. The full response is large; only the two fields of interest
// are scanned out.
func (c *Client) GetTechnicalData(ctx context.Context, usagePointID string) (*TechnicalData, error) {
	if len(usagePointID) != 14 {
		return nil, fmt.Errorf("usage point id %s must consist of 14 digits", usagePointID)
	}

	req := technicalDataRequest{
		PointID:            usagePointID,
		LoginUtilisateur:   c.login,
		AutorisationClient: true,
	}

	var raw rawPayload
	if err := c.call(ctx, pathTechnicalData, &req, &raw); err != nil {
		return nil, err
	}

	td := &TechnicalData{}

	dec := xml.NewDecoder(strings.NewReader(string(raw.Inner)))
	var current string
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			current = t.Name.Local
		case xml.CharData:
			switch current {
			case "segment":
				if td.Segment == "" {
					td.Segment = strings.TrimSpace(string(t))
				}
			case "niveauOuvertureServices":
				if td.ServiceLevel == 0 {
					if level, err := strconv.Atoi(strings.TrimSpace(string(t))); err == nil {
						td.ServiceLevel = level
					}
				}
			}
		case xml.EndElement:
			current = ""
		}
	}

	if td.Segment == "" {
		return nil, &Error{Message: fmt.Sprintf("no segment in technical data for %s", usagePointID)}
	}

	return td, nil
}

// rawPayload keeps the response body untouched for field scanning.
type rawPayload struct {
	Inner []byte `xml:",innerxml"`
}
