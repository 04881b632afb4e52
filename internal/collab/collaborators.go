// Package collab declares the outbound collaborator contracts invoked by
// lifecycle hooks. Collaborator calls are best-effort: failures are logged
// at the hook boundary and never roll back a committed transition.
package collab

import (
	"context"
	"time"

	"github.com/festivo/ops-service/internal/domain"
)

// Messenger sends a text message and returns the provider message id.
type Messenger interface {
	SendText(ctx context.Context, to, body string) (string, error)
}

// Emailer sends an HTML email.
type Emailer interface {
	SendHTML(ctx context.Context, to, subject, html string) error
}

// Conversion is a named business event reported to ad platforms with
// attribution metadata.
type Conversion struct {
	EventName   string
	LeadID      string
	PhoneNumber string
	Value       float64
	ExternalID  string
	Metadata    map[string]string
	OccurredAt  time.Time
}

// ConversionReporter reports conversions for attribution.
type ConversionReporter interface {
	Report(ctx context.Context, conv Conversion) error
}

// DocumentGenerator renders customer-facing documents and returns their URL.
type DocumentGenerator interface {
	OrderSummary(ctx context.Context, order *domain.Order, items []domain.OrderItem) (string, error)
	EventSummary(ctx context.Context, ev *domain.Event) (string, error)
}

// CopyComposer generates outreach copy from a prompt. Implementations wrap
// an AI text-generation backend; callers must fall back to a static template
// when composition fails or returns empty text.
type CopyComposer interface {
	Compose(ctx context.Context, prompt string) (string, error)
}
