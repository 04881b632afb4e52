package domain

import "time"

// LeadStatus enumerates lifecycle states for leads.
type LeadStatus string

const (
	LeadStatusCreated     LeadStatus = "LEAD_CREATED"
	LeadStatusInvoiceSent LeadStatus = "INVOICE_SENT"
	LeadStatusBooked      LeadStatus = "EVENT_BOOKED"
	LeadStatusArchived    LeadStatus = "ARCHIVED"
)

// LeadOrigin captures how a lead entered the system.
type LeadOrigin string

const (
	LeadOriginForm         LeadOrigin = "WEB_FORM"
	LeadOriginTrackingCall LeadOrigin = "TRACKING_CALL"
)

// Lead is the aggregate for an incoming prospect. Status is nil until the
// first lifecycle transition; afterwards it always mirrors the newest
// lead_status_history row.
type Lead struct {
	ID          string
	FullName    string
	PhoneNumber string
	Email       string
	Message     string
	Origin      LeadOrigin
	Status      *LeadStatus
	// Marketing holds attribution metadata harvested at intake
	// (gclid, fbc, fbp, landing page params and the like).
	Marketing map[string]string
	// ExternalID ties the lead back to the visitor session that produced it.
	ExternalID *string
	// CallAssetCall marks leads created from Google Ads call-asset calls,
	// which must not be reported as conversions.
	CallAssetCall bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
