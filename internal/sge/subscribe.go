package sge

import (
	"context"
	"encoding/xml"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/consometers/sge-tiers-proxy/internal/models"
)

type subscribeRequest struct {
	XMLName xml.Name `xml:"http://www.enedis.fr/sge/b2b/services/commandecollectepublicationmesures/v3.0 commanderCollectePublicationMesures"`
	Demande struct {
		DonneesGenerales struct {
			ObjetCode       string `xml:"objetCode"`
			PointID         string `xml:"pointId"`
			InitiateurLogin string `xml:"initiateurLogin"`
			ContratID       string `xml:"contratId"`
		} `xml:"donneesGenerales"`
		AccesMesures struct {
			DateDebut               string              `xml:"dateDebut"`
			DateFin                 string              `xml:"dateFin"`
			DeclarationAccordClient clientAccord        `xml:"declarationAccordClient"`
			MesuresTypeCode         string              `xml:"mesuresTypeCode"`
			Soutirage               bool                `xml:"soutirage"`
			Injection               bool                `xml:"injection"`
			MesuresPas              string              `xml:"mesuresPas,omitempty"`
			MesuresCorrigees        bool                `xml:"mesuresCorrigees"`
			TransmissionRecurrente  bool                `xml:"transmissionRecurrente"`
			PeriodiciteTransmission string              `xml:"periodiciteTransmission,omitempty"`
		} `xml:"accesMesures"`
	} `xml:"demande"`
}

type clientAccord struct {
	Accord          bool             `xml:"accord"`
	PersonnePhysique *personnePhysique `xml:"personnePhysique,omitempty"`
	PersonneMorale   *personneMorale   `xml:"personneMorale,omitempty"`
}

type personnePhysique struct {
	Nom string `xml:"nom"`
}

type personneMorale struct {
	DenominationSociale string `xml:"denominationSociale"`
}

type subscribeResponse struct {
	ServiceSouscritID int `xml:"serviceSouscritId"`
}

// Subscribe places one recurring collection or transmission order
// with the DSO and returns its upstream identifier. The sampling step
// of load curve orders depends on the meter generation: PT30M on
// Linky segments, PT10M otherwise; index orders are daily.
func (c *Client) Subscribe(ctx context.Context, usagePointID string, callType models.CallType, expiresAt time.Time, isLinky, issuerIsCompany bool, issuerName string) (int, error) {
	if len(usagePointID) != 14 {
		return 0, fmt.Errorf("usage point id %s must consist of 14 digits", usagePointID)
	}

	var req subscribeRequest
	g := &req.Demande.DonneesGenerales
	g.ObjetCode = "AME"
	g.PointID = usagePointID
	g.InitiateurLogin = c.login
	g.ContratID = c.contractID

	a := &req.Demande.AccesMesures
	a.DateDebut = localDate(time.Now())
	a.DateFin = localDate(expiresAt)
	a.DeclarationAccordClient.Accord = true
	if issuerIsCompany {
		a.DeclarationAccordClient.PersonneMorale = &personneMorale{DenominationSociale: issuerName}
	} else {
		a.DeclarationAccordClient.PersonnePhysique = &personnePhysique{Nom: issuerName}
	}

	isProduction := callType == models.ProductionIdx ||
		callType == models.ProductionCdcRaw ||
		callType == models.ProductionCdcCorrected ||
		callType == models.ProductionCdcEnable
	a.Soutirage = !isProduction
	a.Injection = isProduction

	switch callType {
	case models.ConsumptionIdx, models.ProductionIdx:
		a.MesuresTypeCode = "IDX"
		a.MesuresPas = "P1D"
		a.TransmissionRecurrente = true
		a.PeriodiciteTransmission = "P1D"
	case models.ConsumptionCdcEnable, models.ProductionCdcEnable:
		// activates curve collection at the meter, no transmission
		a.MesuresTypeCode = "CDC"
		a.TransmissionRecurrente = false
	case models.ConsumptionCdcRaw, models.ProductionCdcRaw,
		models.ConsumptionCdcCorrected, models.ProductionCdcCorrected:
		a.MesuresTypeCode = "CDC"
		a.TransmissionRecurrente = true
		a.PeriodiciteTransmission = "P1D"
		if isLinky {
			a.MesuresPas = "PT30M"
		} else {
			a.MesuresPas = "PT10M"
		}
		a.MesuresCorrigees = callType == models.ConsumptionCdcCorrected ||
			callType == models.ProductionCdcCorrected
	default:
		return 0, fmt.Errorf("unknown call type %s", callType)
	}

	c.logger.WithFields(logrus.Fields{
		"usage_point": usagePointID,
		"call_type":   callType,
		"expires_at":  a.DateFin,
	}).Info("Placing collection order")

	var resp subscribeResponse
	if err := c.call(ctx, pathSubscribe, &req, &resp); err != nil {
		return 0, err
	}

	return resp.ServiceSouscritID, nil
}
