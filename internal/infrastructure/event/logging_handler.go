package event

import (
	"context"

	"github.com/garage/billing/internal/domain/billing"
	"github.com/garage/billing/internal/domain/shared"
	"github.com/garage/billing/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// LoggingHandler writes one structured log entry per billing event. It is the
// audit trail of writes when no other consumer is attached.
type LoggingHandler struct {
	logger     *zap.Logger
	serializer *EventSerializer
	types      []string
}

// LoggingHandlerOption configures a LoggingHandler
type LoggingHandlerOption func(*LoggingHandler)

// WithPayloads attaches the serialized envelope to each entry at debug level
func WithPayloads(s *EventSerializer) LoggingHandlerOption {
	return func(h *LoggingHandler) {
		h.serializer = s
	}
}

// ForEventTypes limits the handler to the given event types
func ForEventTypes(types ...string) LoggingHandlerOption {
	return func(h *LoggingHandler) {
		h.types = types
	}
}

// NewLoggingHandler creates a handler that logs through log
func NewLoggingHandler(log *zap.Logger, opts ...LoggingHandlerOption) *LoggingHandler {
	if log == nil {
		log = zap.NewNop()
	}
	h := &LoggingHandler{logger: log.Named("billing_events")}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// EventTypes returns the subscribed types; empty means all
func (h *LoggingHandler) EventTypes() []string {
	return h.types
}

// Handle logs ev
func (h *LoggingHandler) Handle(ctx context.Context, ev shared.DomainEvent) error {
	log := logger.WithLogger(ctx, h.logger)
	fields := append([]zap.Field{
		zap.String("event_type", ev.EventType()),
		zap.String("event_id", ev.EventID().String()),
		zap.String("aggregate_type", ev.AggregateType()),
		zap.String("aggregate_id", ev.AggregateID()),
		zap.Time("occurred_at", ev.OccurredAt()),
	}, eventFields(ev)...)

	if changed, ok := ev.(*billing.InvoiceStatusChangedEvent); ok && changed.Warning != "" {
		log.Warn("Billing event", append(fields, zap.String("warning", changed.Warning))...)
	} else {
		log.Info("Billing event", fields...)
	}

	if h.serializer != nil {
		data, err := h.serializer.Serialize(ev)
		if err != nil {
			return err
		}
		log.Debug("Billing event payload", zap.String("event_id", ev.EventID().String()), zap.ByteString("envelope", data))
	}
	return nil
}

func eventFields(ev shared.DomainEvent) []zap.Field {
	switch e := ev.(type) {
	case *billing.InvoiceCreatedEvent:
		return []zap.Field{
			zap.String("invoice_number", e.InvoiceNumber),
			zap.String("customer_id", e.CustomerID),
			zap.String("service_id", e.ServiceID),
			zap.Stringer("total", e.Total),
		}
	case *billing.InvoiceStatusChangedEvent:
		return []zap.Field{
			zap.String("invoice_number", e.InvoiceNumber),
			zap.String("from", string(e.From)),
			zap.String("to", string(e.To)),
		}
	case *billing.InvoiceUpdatedEvent:
		return []zap.Field{
			zap.String("customer_id", e.CustomerID),
			zap.Stringer("total", e.Total),
			zap.Stringer("balance_due", e.BalanceDue),
		}
	case *billing.InvoicePaidEvent:
		return []zap.Field{
			zap.String("invoice_number", e.InvoiceNumber),
			zap.Stringer("total", e.Total),
		}
	case *billing.InvoiceDeletedEvent:
		return []zap.Field{
			zap.String("invoice_number", e.InvoiceNumber),
			zap.Strings("removed_payment_ids", e.RemovedPaymentIDs),
		}
	case *billing.PaymentRecordedEvent:
		return []zap.Field{
			zap.String("payment_id", e.PaymentID),
			zap.Stringer("amount", e.Amount),
			zap.String("method", string(e.Method)),
			zap.Stringer("balance_due", e.BalanceDue),
		}
	case *billing.PaymentVoidedEvent:
		return []zap.Field{
			zap.String("payment_id", e.PaymentID),
			zap.Stringer("amount", e.Amount),
			zap.Stringer("balance_due", e.BalanceDue),
		}
	}
	return nil
}

var _ shared.EventHandler = (*LoggingHandler)(nil)
