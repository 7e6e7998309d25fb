package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/garage/billing/internal/domain/billing"
	"github.com/garage/billing/internal/domain/shared"
	"github.com/garage/billing/internal/infrastructure/logger"
	"github.com/garage/billing/internal/infrastructure/telemetry"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DocumentArchive stores rendered billing documents under a key and hands out
// links to them
type DocumentArchive interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) error
	GenerateDownloadURL(ctx context.Context, key string, expiresIn time.Duration) (string, time.Time, error)
}

// ErrArchiveDisabled is returned when archiving is requested without a
// configured archive
var ErrArchiveDisabled = shared.NewValidationError("ARCHIVE_DISABLED", "document archive is not configured")

const archiveContentType = "application/json"

// WithArchive enables archiving of statements and reports
func WithArchive(a DocumentArchive) Option {
	return func(s *BillingService) {
		s.archive = a
	}
}

// ArchivedDocument describes one uploaded document
type ArchivedDocument struct {
	Key       string    `json:"key"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
	Size      int       `json:"size"`
}

// StatementDocument is the rendered form of a statement, as printed and as
// archived
type StatementDocument struct {
	Customer    billing.Customer  `json:"customer"`
	Vehicles    []billing.Vehicle `json:"vehicles"`
	Period      *billing.Period   `json:"period,omitempty"`
	TotalBilled decimal.Decimal   `json:"total_billed"`
	TotalPaid   decimal.Decimal   `json:"total_paid"`
	Balance     decimal.Decimal   `json:"balance"`
	Lines       []StatementLine   `json:"lines"`
	GeneratedAt time.Time         `json:"generated_at"`
}

// StatementDocument renders the lines of st with the service formatter
func (s *BillingService) StatementDocument(st *billing.Statement) *StatementDocument {
	return &StatementDocument{
		Customer:    st.Customer,
		Vehicles:    st.Vehicles,
		Period:      st.Period,
		TotalBilled: st.TotalBilled,
		TotalPaid:   st.TotalPaid,
		Balance:     st.Balance,
		Lines:       s.RenderStatement(st),
		GeneratedAt: s.now(),
	}
}

// ArchiveStatement renders st and uploads it under
// statements/<customer>/<timestamp>.json
func (s *BillingService) ArchiveStatement(ctx context.Context, st *billing.Statement) (*ArchivedDocument, error) {
	doc := s.StatementDocument(st)
	key := fmt.Sprintf("statements/%s/%s.json", st.Customer.ID, archiveStamp(doc.GeneratedAt))
	return s.archiveDocument(ctx, key, doc)
}

// ArchiveRevenueReport uploads report under
// reports/revenue/<start>_<end>/<timestamp>.json
func (s *BillingService) ArchiveRevenueReport(ctx context.Context, report billing.Report) (*ArchivedDocument, error) {
	key := fmt.Sprintf("reports/revenue/%s_%s/%s.json",
		report.Start.Format(time.DateOnly), report.End.Format(time.DateOnly), archiveStamp(s.now()))
	return s.archiveDocument(ctx, key, report)
}

func (s *BillingService) archiveDocument(ctx context.Context, key string, doc any) (*ArchivedDocument, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "billing", "archive_document")
	defer span.End()

	if s.archive == nil {
		return nil, ErrArchiveDisabled
	}
	telemetry.SetAttributes(span, telemetry.SpanAttrArchiveKey, key)

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to encode %s: %w", key, err)
	}
	if err := s.archive.Upload(ctx, key, data, archiveContentType); err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to archive %s: %w", key, err)
	}
	url, expiresAt, err := s.archive.GenerateDownloadURL(ctx, key, 0)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to link %s: %w", key, err)
	}

	logger.WithLogger(ctx, s.log).Info("Document archived",
		zap.String("key", key),
		zap.Int("size", len(data)),
	)
	return &ArchivedDocument{Key: key, URL: url, ExpiresAt: expiresAt, Size: len(data)}, nil
}

func archiveStamp(t time.Time) string {
	return t.UTC().Format("20060102T150405Z")
}
