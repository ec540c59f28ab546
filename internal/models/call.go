package models

import (
	"time"
)

// CallStatus is the terminal state of a webservices call or of a
// subscription notification.
type CallStatus string

const (
	CallOK     CallStatus = "OK"
	CallFailed CallStatus = "FAILED"
)

// Names of the DSO operations recorded in the call ledger.
const (
	WebserviceConsultMeasures = "ConsultationMesuresDetaillees"
	WebserviceTechnicalData   = "ConsulterDonneesTechniquesContractuelles"
	WebserviceSubscribe       = "CommandeCollectePublicationMesures"
	WebserviceUnsubscribe     = "CommandeArretServiceSouscritMesures"
)

// WebservicesCall is the immutable audit record of an attempted DSO
// call. It is inserted with a null status before the call goes out and
// updated exactly once to OK or FAILED. The consent window is
// denormalized so the database can hold the composite foreign key into
// consents and veto calls outside the window.
type WebservicesCall struct {
	ID               int         `db:"id" json:"id"`
	Webservice       string      `db:"webservice" json:"webservice"`
	UsagePointID     string      `db:"usage_point_id" json:"usagePointId"`
	UserID           string      `db:"user_id" json:"userId"`
	ConsentID        int         `db:"consent_id" json:"consentId"`
	ConsentBeginsAt  time.Time   `db:"consent_begins_at" json:"consentBeginsAt"`
	ConsentExpiresAt time.Time   `db:"consent_expires_at" json:"consentExpiresAt"`
	CalledAt         time.Time   `db:"called_at" json:"calledAt"`
	Status           *CallStatus `db:"status" json:"status,omitempty"`
	Error            *string     `db:"error" json:"error,omitempty"`
}
