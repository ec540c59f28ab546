package sge

import (
	"context"
	"encoding/xml"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/consometers/sge-tiers-proxy/internal/metadata"
)

type consultMeasuresRequest struct {
	XMLName xml.Name `xml:"http://www.enedis.fr/sge/b2b/services/consultationmesuresdetaillees/v2.0 consulterMesuresDetaillees"`
	Demande struct {
		InitiateurLogin  string `xml:"initiateurLogin"`
		PointID          string `xml:"pointId"`
		MesuresTypeCode  string `xml:"mesuresTypeCode"`
		GrandeurPhysique string `xml:"grandeurPhysique"`
		Soutirage        bool   `xml:"soutirage"`
		Injection        bool   `xml:"injection"`
		DateDebut        string `xml:"dateDebut"`
		DateFin          string `xml:"dateFin"`
		MesuresCorrigees bool   `xml:"mesuresCorrigees"`
		AccordClient     bool   `xml:"accordClient"`
	} `xml:"demande"`
}

type consultMeasuresResponse struct {
	Grandeur []struct {
		GrandeurPhysique string `xml:"grandeurPhysique"`
		Unite            string `xml:"unite"`
		Mesure           []struct {
			Valeur string `xml:"v"`
			Date   string `xml:"d"`
			Pas    string `xml:"p"`
		} `xml:"mesure"`
	} `xml:"grandeur"`
}

var loadCurveStepPattern = regexp.MustCompile(`^PT(\d+)M$`)

// GetMeasurements fetches the history of one series over the given
// window, reduced to whole days in the DSO civil time zone, end day
// included. Load curve points, stamped by the DSO at the end of each
// interval, are shifted to the interval start.
func (c *Client) GetMeasurements(ctx context.Context, series, usagePointID string, start, end time.Time) (*metadata.Data, error) {
	spec, ok := Measurements[series]
	if !ok {
		return nil, fmt.Errorf("%s measurement is not known", series)
	}
	if len(usagePointID) != 14 {
		return nil, fmt.Errorf("usage point id %s must consist of 14 digits", usagePointID)
	}

	var req consultMeasuresRequest
	req.Demande.InitiateurLogin = c.login
	req.Demande.PointID = usagePointID
	req.Demande.MesuresTypeCode = spec.MesuresTypeCode
	req.Demande.GrandeurPhysique = spec.GrandeurPhysique
	req.Demande.Soutirage = spec.Soutirage
	req.Demande.Injection = spec.Injection
	req.Demande.DateDebut = localDate(start)
	req.Demande.DateFin = localDate(end)
	req.Demande.MesuresCorrigees = spec.MesuresCorrigees
	req.Demande.AccordClient = true

	c.logger.WithFields(logrus.Fields{
		"series":      series,
		"usage_point": usagePointID,
		"from":        req.Demande.DateDebut,
		"to":          req.Demande.DateFin,
	}).Info("Fetching measurement history")

	var resp consultMeasuresResponse
	if err := c.call(ctx, pathConsultMeasures, &req, &resp); err != nil {
		return nil, err
	}

	if len(resp.Grandeur) == 0 || len(resp.Grandeur[0].Mesure) == 0 {
		return nil, &Error{Message: "no measurements returned"}
	}
	grandeur := resp.Grandeur[0]

	samplingInterval := "P1D"
	if grandeur.Mesure[0].Pas != "" {
		samplingInterval = grandeur.Mesure[0].Pas
	}

	meta := spec.Metadata(usagePointID, samplingInterval)
	if metadata.Unit(grandeur.Unite) != meta.Measurement.Unit {
		return nil, &Error{Message: fmt.Sprintf("unexpected unit %s for %s", grandeur.Unite, series)}
	}

	// Load curves are stamped at the end of each interval; daily data
	// at the beginning of the day.
	var timeOffset time.Duration
	if m := loadCurveStepPattern.FindStringSubmatch(samplingInterval); m != nil {
		minutes, _ := strconv.Atoi(m[1])
		timeOffset = time.Duration(minutes) * time.Minute
	} else if samplingInterval != "P1D" {
		return nil, &Error{Message: "unexpected time period: " + samplingInterval}
	}

	name := metadata.RecordName(usagePointID, series)
	data := &metadata.Data{Metadata: &meta}

	for _, mesure := range grandeur.Mesure {
		if mesure.Pas != "" && mesure.Pas != samplingInterval {
			return nil, &Error{Message: fmt.Sprintf("inconsistent sampling interval %s", mesure.Pas)}
		}
		value, err := strconv.ParseFloat(mesure.Valeur, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse measurement value %q: %w", mesure.Valeur, err)
		}
		t, err := time.ParseInLocation("2006-01-02T15:04:05", mesure.Date, ParisTZ)
		if err != nil {
			// some endpoints return zone-qualified stamps
			t, err = time.Parse(time.RFC3339, mesure.Date)
			if err != nil {
				return nil, fmt.Errorf("failed to parse measurement date %q: %w", mesure.Date, err)
			}
		}

		data.Records = append(data.Records, metadata.Record{
			Name:  name,
			Time:  t.Add(-timeOffset).UTC(),
			Unit:  meta.Measurement.Unit,
			Value: value,
		})
	}

	return data, nil
}
