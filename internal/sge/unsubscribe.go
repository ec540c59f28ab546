package sge

import (
	"context"
	"encoding/xml"
	"fmt"

	"github.com/sirupsen/logrus"
)

type unsubscribeRequest struct {
	XMLName xml.Name `xml:"http://www.enedis.fr/sge/b2b/services/commandearretservicesouscritmesures/v1.0 commanderArretServiceSouscritMesures"`
	Demande struct {
		DonneesGenerales struct {
			ObjetCode       string `xml:"objetCode"`
			PointID         string `xml:"pointId"`
			InitiateurLogin string `xml:"initiateurLogin"`
			ContratID       string `xml:"contratId"`
		} `xml:"donneesGenerales"`
		Arret struct {
			ServiceSouscritID int `xml:"serviceSouscritId"`
		} `xml:"arret"`
	} `xml:"demande"`
}

// Unsubscribe cancels a recurring collection order previously placed
// with Subscribe.
func (c *Client) Unsubscribe(ctx context.Context, usagePointID string, callID int) error {
	if len(usagePointID) != 14 {
		return fmt.Errorf("usage point id %s must consist of 14 digits", usagePointID)
	}

	var req unsubscribeRequest
	g := &req.Demande.DonneesGenerales
	g.ObjetCode = "ASS"
	g.PointID = usagePointID
	g.InitiateurLogin = c.login
	g.ContratID = c.contractID
	req.Demande.Arret.ServiceSouscritID = callID

	c.logger.WithFields(logrus.Fields{
		"usage_point": usagePointID,
		"call_id":     callID,
	}).Info("Cancelling collection order")

	return c.call(ctx, pathUnsubscribe, &req, nil)
}
