package models

import (
	"time"
)

// IssuerType identifies who granted a consent.
type IssuerType string

const (
	IssuerIndividual IssuerType = "INDIVIDUAL"
	IssuerCompany    IssuerType = "COMPANY"
)

// User is a client of the proxy, identified by its bare JID on the
// messaging transport.
type User struct {
	BareJID string `db:"bare_jid" json:"bareJid"`
}

// Segment is the DSO market segment of a usage point (C1..C5 for
// consumption, P1..P4 for production). C5 and P4 are the Linky
// segments.
type Segment string

// IsLinky reports whether the segment uses modern meters, which
// changes the default load curve sampling step (PT30M vs PT10M).
func (s Segment) IsLinky() bool {
	return s == "C5" || s == "P4"
}

// UsagePoint is a metered delivery location, identified by a 14-digit
// code. Segment and service level stay null until the first
// technical-data fetch.
type UsagePoint struct {
	ID           string   `db:"id" json:"id"`
	Segment      *Segment `db:"segment" json:"segment,omitempty"`
	ServiceLevel *int     `db:"service_level" json:"serviceLevel,omitempty"`
}

// Consent authorizes the cartesian product of its linked users and its
// linked usage points over [BeginsAt, ExpiresAt).
type Consent struct {
	ID         int        `db:"id" json:"id"`
	IssuerName string     `db:"issuer_name" json:"issuerName"`
	IssuerType IssuerType `db:"issuer_type" json:"issuerType"`
	IsOpen     bool       `db:"is_open" json:"isOpen"`
	BeginsAt   time.Time  `db:"begins_at" json:"beginsAt"`
	ExpiresAt  time.Time  `db:"expires_at" json:"expiresAt"`
	CreatedAt  time.Time  `db:"created_at" json:"createdAt"`
}

// Covers reports whether at falls inside the consent validity window,
// begin inclusive, end exclusive.
func (c *Consent) Covers(at time.Time) bool {
	return !at.Before(c.BeginsAt) && at.Before(c.ExpiresAt)
}

// ConsentUsagePoint is one scope link: the usage point is covered by
// the consent iff the pair exists.
type ConsentUsagePoint struct {
	ConsentID    int     `db:"consent_id" json:"consentId"`
	UsagePointID string  `db:"usage_point_id" json:"usagePointId"`
	Comment      *string `db:"comment" json:"comment,omitempty"`
}
