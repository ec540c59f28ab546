package sge

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/consometers/sge-tiers-proxy/internal/config"
)

const (
	productionBaseURL   = "https://sge-b2b.enedis.fr"
	homologationBaseURL = "https://sge-homologation-b2b.enedis.fr"

	pathConsultMeasures = "/ConsultationMesuresDetaillees/v2.0"
	pathTechnicalData   = "/ConsulterDonneesTechniquesContractuelles/v1.0"
	pathSubscribe       = "/CommandeCollectePublicationMesures/v3.0"
	pathUnsubscribe     = "/CommandeArretServiceSouscritMesures/v1.0"
)

// ParisTZ is the DSO civil time zone. Dates in requests are whole
// local days in this zone.
var ParisTZ = mustLoadParis()

func mustLoadParis() *time.Location {
	loc, err := time.LoadLocation("Europe/Paris")
	if err != nil {
		panic(err)
	}
	return loc
}

// Client talks to the DSO web service bus over mutual TLS.
type Client struct {
	login      string
	contractID string
	baseURL    string
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewClient builds a client from the DSO credentials. Certificate and
// key paths must already be resolved to absolute paths.
func NewClient(cfg *config.SgeConfig, certPath, keyPath string, logger *logrus.Logger) (*Client, error) {
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load client certificate: %w", err)
	}

	baseURL := productionBaseURL
	if cfg.IsHomologation() {
		baseURL = homologationBaseURL
	}

	return &Client{
		login:      cfg.Login,
		contractID: cfg.ContractID,
		baseURL:    baseURL,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					Certificates: []tls.Certificate{cert},
					MinVersion:   tls.VersionTLS12,
				},
			},
		},
		logger: logger,
	}, nil
}

type soapFault struct {
	Faultstring string `xml:"faultstring"`
	Detail      struct {
		Erreur struct {
			Resultat struct {
				Code    string `xml:"code,attr"`
				Message string `xml:",chardata"`
			} `xml:"resultat"`
		} `xml:"erreur"`
	} `xml:"detail"`
}

type soapResponse struct {
	Body struct {
		Fault *soapFault `xml:"Fault"`
		Inner []byte     `xml:",innerxml"`
	} `xml:"Body"`
}

// call posts a SOAP 1.1 request and decodes the response body payload
// into out. SOAP faults and raw HTTP failures both come back as *Error.
func (c *Client) call(ctx context.Context, path string, payload interface{}, out interface{}) error {
	body, err := xml.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	envelope := fmt.Sprintf(
		`<soapenv:Envelope xmlns:soapenv="http://schemas.xmlsoap.org/soap/envelope/"><soapenv:Header/><soapenv:Body>%s</soapenv:Body></soapenv:Envelope>`,
		body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewBufferString(envelope))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Message: err.Error()}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{Code: fmt.Sprint(resp.StatusCode), Message: err.Error()}
	}

	var parsed soapResponse
	if err := xml.Unmarshal(data, &parsed); err != nil {
		if resp.StatusCode != http.StatusOK {
			return &Error{Code: fmt.Sprint(resp.StatusCode), Message: http.StatusText(resp.StatusCode)}
		}
		return fmt.Errorf("failed to parse response: %w", err)
	}

	if parsed.Body.Fault != nil {
		fault := parsed.Body.Fault
		if fault.Detail.Erreur.Resultat.Code != "" {
			return &Error{
				Code:    fault.Detail.Erreur.Resultat.Code,
				Message: fault.Detail.Erreur.Resultat.Message,
			}
		}
		return &Error{Message: fault.Faultstring}
	}

	if resp.StatusCode != http.StatusOK {
		return &Error{Code: fmt.Sprint(resp.StatusCode), Message: http.StatusText(resp.StatusCode)}
	}

	if out != nil {
		if err := xml.Unmarshal(parsed.Body.Inner, out); err != nil {
			return fmt.Errorf("failed to parse response payload: %w", err)
		}
	}

	return nil
}

// localDate formats an instant as a whole day in the DSO civil time
// zone.
func localDate(t time.Time) string {
	return t.In(ParisTZ).Format("2006-01-02")
}
