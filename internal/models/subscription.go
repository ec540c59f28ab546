package models

import (
	"time"
)

// CallType is one of the eight upstream recurring collection order
// kinds of CommandeCollectePublicationMesures.
type CallType string

const (
	ConsumptionIdx          CallType = "CONSUMPTION_IDX"
	ConsumptionCdcRaw       CallType = "CONSUMPTION_CDC_RAW"
	ConsumptionCdcCorrected CallType = "CONSUMPTION_CDC_CORRECTED"
	ConsumptionCdcEnable    CallType = "CONSUMPTION_CDC_ENABLE"
	ProductionIdx           CallType = "PRODUCTION_IDX"
	ProductionCdcRaw        CallType = "PRODUCTION_CDC_RAW"
	ProductionCdcCorrected  CallType = "PRODUCTION_CDC_CORRECTED"
	ProductionCdcEnable     CallType = "PRODUCTION_CDC_ENABLE"
)

// IsLoadCurve reports whether the order streams a load curve rather
// than daily index snapshots.
func (t CallType) IsLoadCurve() bool {
	switch t {
	case ConsumptionIdx, ProductionIdx:
		return false
	default:
		return true
	}
}

// Subscription is a client's standing request for one series of one
// usage point. The consent window is denormalized for the same reason
// as on WebservicesCall: the database re-validates notified_at against
// it on every notification.
type Subscription struct {
	ID               int         `db:"id" json:"id"`
	UserID           string      `db:"user_id" json:"userId"`
	UsagePointID     string      `db:"usage_point_id" json:"usagePointId"`
	SeriesName       string      `db:"series_name" json:"seriesName"`
	SubscribedAt     time.Time   `db:"subscribed_at" json:"subscribedAt"`
	NotifiedAt       *time.Time  `db:"notified_at" json:"notifiedAt,omitempty"`
	Status           *CallStatus `db:"status" json:"status,omitempty"`
	Error            *string     `db:"error" json:"error,omitempty"`
	ConsentID        int         `db:"consent_id" json:"consentId"`
	ConsentBeginsAt  time.Time   `db:"consent_begins_at" json:"consentBeginsAt"`
	ConsentExpiresAt time.Time   `db:"consent_expires_at" json:"consentExpiresAt"`
}

// WebservicesCallsSubscription is an upstream order: the result of one
// successful CommandeCollectePublicationMesures call, shared by every
// subscription needing the same (usage point, call type). CallID is
// the DSO-side identifier used to cancel the order later.
type WebservicesCallsSubscription struct {
	ID                 int       `db:"id" json:"id"`
	WebservicesCallID  int       `db:"webservices_call_id" json:"webservicesCallId"`
	ConsentExpiresAt   time.Time `db:"consent_expires_at" json:"consentExpiresAt"`
	UsagePointID       string    `db:"usage_point_id" json:"usagePointId"`
	CallType           CallType  `db:"call_type" json:"callType"`
	CallID             int       `db:"call_id" json:"callId"`
	ExpiresAt          time.Time `db:"expires_at" json:"expiresAt"`
}
