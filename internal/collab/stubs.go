package collab

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/festivo/ops-service/internal/domain"
)

// LogMessenger logs outbound texts instead of sending them.
type LogMessenger struct {
	Logger *zap.Logger
}

// SendText implements Messenger.
func (m *LogMessenger) SendText(_ context.Context, to, body string) (string, error) {
	m.Logger.Info("send text", zap.String("to", to), zap.Int("body_len", len(body)))
	return uuid.NewString(), nil
}

// LogEmailer logs outbound email instead of sending it.
type LogEmailer struct {
	Logger *zap.Logger
}

// SendHTML implements Emailer.
func (e *LogEmailer) SendHTML(_ context.Context, to, subject, _ string) error {
	e.Logger.Info("send email", zap.String("to", to), zap.String("subject", subject))
	return nil
}

// LogConversionReporter logs conversion reports.
type LogConversionReporter struct {
	Logger *zap.Logger
}

// Report implements ConversionReporter.
func (r *LogConversionReporter) Report(_ context.Context, conv Conversion) error {
	r.Logger.Info("report conversion",
		zap.String("event", conv.EventName),
		zap.String("lead_id", conv.LeadID),
		zap.Float64("value", conv.Value))
	return nil
}

// LogDocumentGenerator fabricates document URLs without rendering.
type LogDocumentGenerator struct {
	Logger     *zap.Logger
	RootDomain string
}

// OrderSummary implements DocumentGenerator.
func (g *LogDocumentGenerator) OrderSummary(_ context.Context, order *domain.Order, items []domain.OrderItem) (string, error) {
	g.Logger.Info("generate order summary", zap.String("order_code", order.Code), zap.Int("lines", len(items)))
	return fmt.Sprintf("%s/documents/orders/%s.pdf", g.RootDomain, order.Code), nil
}

// EventSummary implements DocumentGenerator.
func (g *LogDocumentGenerator) EventSummary(_ context.Context, ev *domain.Event) (string, error) {
	g.Logger.Info("generate event summary", zap.String("event_id", ev.ID))
	return fmt.Sprintf("%s/documents/events/%s.pdf", g.RootDomain, ev.ID), nil
}

// StaticCopyComposer returns empty copy so callers always use their
// fallback template. Swap in a real AI-backed composer in production.
type StaticCopyComposer struct{}

// Compose implements CopyComposer.
func (StaticCopyComposer) Compose(context.Context, string) (string, error) {
	return "", nil
}
