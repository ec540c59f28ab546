package models

import "time"

// ErrorResponse is the standard error body of the client API.
type ErrorResponse struct {
	Code     string         `json:"code"`
	Message  string         `json:"message"`
	Details  string         `json:"details,omitempty"`
	Upstream *UpstreamError `json:"upstream,omitempty"`
}

// UpstreamError surfaces a DSO refusal verbatim so clients can react
// to vendor codes without the proxy interpreting them.
type UpstreamError struct {
	Issuer string `json:"issuer"`
	Code   string `json:"code"`
}

// UpstreamIssuer names the DSO bus in upstream error bodies.
const UpstreamIssuer = "enedis-sge-tiers"

// Common error codes
const (
	ErrCodeBadRequest    = "BAD_REQUEST"
	ErrCodeNotAuthorized = "NOT_AUTHORIZED"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeUpstreamError = "UPSTREAM_ERROR"
	ErrCodeInternalError = "INTERNAL_ERROR"
)

// GetHistoryRequest asks for one-shot history of a record identifier
// over [StartTime, EndTime).
type GetHistoryRequest struct {
	User       string    `json:"user" binding:"required"`
	Identifier string    `json:"identifier" binding:"required"`
	StartTime  time.Time `json:"start_time" binding:"required"`
	EndTime    time.Time `json:"end_time" binding:"required"`
}

// GetHistoryResponse carries the fetched records rendered as a
// quoalise data document.
type GetHistoryResponse struct {
	Identifier string `json:"identifier"`
	Data       string `json:"data"`
}

// SubscribeRequest registers a standing request for one series of one
// usage point, named by the full record identifier.
type SubscribeRequest struct {
	User       string `json:"user" binding:"required"`
	Identifier string `json:"identifier" binding:"required"`
}

// SubscribeResponse reports the subscription the request mapped to.
type SubscribeResponse struct {
	SubscriptionID int    `json:"subscription_id"`
	Identifier     string `json:"identifier"`
}

// UnsubscribeRequest removes the user's subscriptions for a usage
// point. When the identifier carries a series, only that series is
// removed; a bare usage point identifier removes them all.
type UnsubscribeRequest struct {
	User       string `json:"user" binding:"required"`
	Identifier string `json:"identifier" binding:"required"`
}

// UnsubscribeResponse reports what was removed.
type UnsubscribeResponse struct {
	Removed []string `json:"removed"`
}

// RegisterUserRequest declares a messaging client to the proxy.
type RegisterUserRequest struct {
	BareJID string `json:"bare_jid" binding:"required"`
}

// CreateConsentRequest records a consent with its initial scope.
type CreateConsentRequest struct {
	IssuerName  string     `json:"issuer_name" binding:"required"`
	IssuerType  IssuerType `json:"issuer_type" binding:"required"`
	IsOpen      bool       `json:"is_open"`
	BeginsAt    time.Time  `json:"begins_at" binding:"required"`
	ExpiresAt   time.Time  `json:"expires_at" binding:"required"`
	Users       []string   `json:"users"`
	UsagePoints []string   `json:"usage_points"`
}

// CreateConsentResponse reports the ledger id of a recorded consent.
type CreateConsentResponse struct {
	ID int `json:"id"`
}

// AddUsagePointRequest extends a consent scope with one usage point.
type AddUsagePointRequest struct {
	UsagePointID string  `json:"usage_point_id" binding:"required"`
	Comment      *string `json:"comment,omitempty"`
}
