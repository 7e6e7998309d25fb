package billing

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/garage/billing/internal/domain/billing"
	"github.com/garage/billing/internal/domain/shared"
	csvimport "github.com/garage/billing/internal/infrastructure/import"
	"github.com/garage/billing/internal/infrastructure/logger"
	"github.com/garage/billing/internal/infrastructure/telemetry"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ErrCodeInvalidImportFile is returned when a payment file cannot be read
const ErrCodeInvalidImportFile = "INVALID_IMPORT_FILE"

// ErrCodeImportRejected marks a row the billing rules refused
const ErrCodeImportRejected = "ERR_IMPORT_REJECTED"

// PaymentImportOptions controls a payment import
type PaymentImportOptions struct {
	// DryRun checks every row against the current data without storing anything
	DryRun    bool
	MaxRows   int
	MaxErrors int
	Delimiter rune
}

// ImportedPayment is one row that was (or, in a dry run, would be) applied
type ImportedPayment struct {
	Row           int             `json:"row"`
	PaymentID     string          `json:"payment_id,omitempty"`
	InvoiceID     string          `json:"invoice_id"`
	InvoiceNumber string          `json:"invoice_number"`
	Amount        decimal.Decimal `json:"amount"`
	Method        string          `json:"method"`
	Status        string          `json:"invoice_status"`
	BalanceDue    decimal.Decimal `json:"balance_due"`
}

// PaymentImportResult summarizes a payment import
type PaymentImportResult struct {
	DryRun       bool                 `json:"dry_run"`
	TotalRows    int                  `json:"total_rows"`
	ImportedRows int                  `json:"imported_rows"`
	ErrorRows    int                  `json:"error_rows"`
	Amount       decimal.Decimal      `json:"amount"`
	Payments     []ImportedPayment    `json:"payments"`
	Errors       []csvimport.RowError `json:"errors,omitempty"`
	IsTruncated  bool                 `json:"is_truncated,omitempty"`
	TotalErrors  int                  `json:"total_errors,omitempty"`
}

// PaymentImportRules returns the column rules of a payment file. The invoice
// column holds an invoice id or an invoice number.
func PaymentImportRules() []csvimport.FieldRule {
	methods := make([]string, len(billing.AllPaymentMethods))
	for i, m := range billing.AllPaymentMethods {
		methods[i] = m.String()
	}
	return []csvimport.FieldRule{
		csvimport.Field("invoice").Required().MaxLength(100).Build(),
		csvimport.Field("amount").Required().Decimal().MaxDecimals(2).Positive().Build(),
		csvimport.Field("method").OneOf(methods...).Build(),
		csvimport.Field("date").Date().Build(),
		csvimport.Field("reference").MaxLength(100).Unique().Build(),
		csvimport.Field("notes").MaxLength(500).Build(),
	}
}

// ImportPayments records one payment per CSV row. Rows are applied in file
// order and a rejected row does not stop the rows after it; a store failure
// does, returning the partial result with the error.
func (s *BillingService) ImportPayments(ctx context.Context, r io.Reader, opts PaymentImportOptions) (*PaymentImportResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "billing", "import_payments")
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrDryRun, opts.DryRun)

	parserOpts := []csvimport.ParserOption{csvimport.WithMaxRows(opts.MaxRows)}
	if opts.Delimiter != 0 {
		parserOpts = append(parserOpts, csvimport.WithDelimiter(opts.Delimiter))
	}
	parser, err := csvimport.NewCSVParser(r, parserOpts...)
	if err != nil {
		return nil, importFileError(span, err)
	}
	if err := parser.RequireHeaders("invoice", "amount"); err != nil {
		return nil, importFileError(span, err)
	}

	errs := csvimport.NewErrorCollection(opts.MaxErrors)
	rows, err := parser.ReadAllRows(errs)
	if err != nil {
		return nil, importFileError(span, err)
	}

	result := &PaymentImportResult{
		DryRun:    opts.DryRun,
		TotalRows: len(rows) + errs.RowCount(),
		Amount:    decimal.Zero,
		Payments:  []ImportedPayment{},
	}
	telemetry.SetAttributes(span, telemetry.SpanAttrImportRows, result.TotalRows)

	validator := csvimport.NewFieldValidator(PaymentImportRules(), errs)
	valid := make([]*csvimport.Row, 0, len(rows))
	for _, row := range rows {
		if validator.ValidateRow(row) {
			valid = append(valid, row)
		}
	}

	var sim *billing.Snapshot
	if opts.DryRun {
		if sim, err = s.Snapshot(ctx); err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}
	}

	for _, row := range valid {
		select {
		case <-ctx.Done():
			s.finishImport(ctx, result, errs)
			return result, ctx.Err()
		default:
		}

		req := paymentRequestFromRow(row)
		var imported *ImportedPayment
		if opts.DryRun {
			imported, sim, err = s.simulatePayment(sim, req)
		} else {
			imported, err = s.importPayment(ctx, req)
		}
		if err != nil {
			if shared.IsTransport(err) {
				telemetry.RecordError(span, err)
				s.finishImport(ctx, result, errs)
				return result, err
			}
			errs.Add(rowRejection(row.LineNumber, err))
			continue
		}
		imported.Row = row.LineNumber
		result.Payments = append(result.Payments, *imported)
		result.Amount = result.Amount.Add(imported.Amount)
	}

	s.finishImport(ctx, result, errs)
	return result, nil
}

func (s *BillingService) finishImport(ctx context.Context, result *PaymentImportResult, errs *csvimport.ErrorCollection) {
	result.ImportedRows = len(result.Payments)
	result.ErrorRows = errs.RowCount()
	result.Errors = errs.Errors()
	result.IsTruncated = errs.IsTruncated()
	result.TotalErrors = errs.TotalCount()
	s.metrics.RecordImport(ctx, result.DryRun, result.ImportedRows, result.ErrorRows)

	logger.WithLogger(ctx, s.log).Info("Payments imported",
		zap.Bool("dry_run", result.DryRun),
		zap.Int("total_rows", result.TotalRows),
		zap.Int("imported_rows", result.ImportedRows),
		zap.Int("error_rows", result.ErrorRows),
		zap.String("amount", result.Amount.String()),
	)
}

// importPayment resolves the invoice against the live snapshot and records
// the payment through RecordPayment
func (s *BillingService) importPayment(ctx context.Context, req RecordPaymentRequest) (*ImportedPayment, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	inv, err := resolveInvoice(snap, req.InvoiceID)
	if err != nil {
		return nil, err
	}
	req.InvoiceID = inv.ID

	res, err := s.RecordPayment(ctx, req)
	if err != nil {
		return nil, err
	}
	return importedPayment(res), nil
}

// simulatePayment applies the payment to sim only, returning the advanced
// snapshot so later rows see the earlier ones
func (s *BillingService) simulatePayment(sim *billing.Snapshot, req RecordPaymentRequest) (*ImportedPayment, *billing.Snapshot, error) {
	inv, err := resolveInvoice(sim, req.InvoiceID)
	if err != nil {
		return nil, sim, err
	}
	req.InvoiceID = inv.ID
	if err := s.validateRequest(req); err != nil {
		return nil, sim, err
	}

	res, err := billing.RecordPayment(sim, inv.ID, billing.PaymentInput{
		Amount:    req.Amount,
		Method:    billing.PaymentMethod(req.Method),
		Date:      req.Date,
		Reference: req.Reference,
		Notes:     req.Notes,
	}, s.now())
	if err != nil {
		return nil, sim, err
	}
	imported := importedPayment(res)
	imported.PaymentID = ""
	return imported, sim.WithPayment(res.Invoice, res.Payment), nil
}

func resolveInvoice(snap *billing.Snapshot, ref string) (*billing.Invoice, error) {
	if inv, ok := snap.Invoice(ref); ok {
		return inv, nil
	}
	if inv, ok := snap.InvoiceByNumber(ref); ok {
		return inv, nil
	}
	return nil, shared.NewNotFoundError("invoice", ref)
}

// paymentRequestFromRow builds a request from a row that passed
// PaymentImportRules. An empty method is cash.
func paymentRequestFromRow(row *csvimport.Row) RecordPaymentRequest {
	method := strings.ToLower(row.Get("method"))
	if method == "" {
		method = billing.PaymentMethodCash.String()
	}
	var date time.Time
	if v := row.Get("date"); v != "" {
		date, _ = csvimport.ParseDate(v)
	}
	return RecordPaymentRequest{
		InvoiceID: row.Get("invoice"),
		Amount:    decimal.RequireFromString(row.Get("amount")),
		Method:    method,
		Date:      date,
		Reference: row.Get("reference"),
		Notes:     row.Get("notes"),
	}
}

func importedPayment(res *billing.PaymentResult) *ImportedPayment {
	return &ImportedPayment{
		PaymentID:     res.Payment.ID,
		InvoiceID:     res.Invoice.ID,
		InvoiceNumber: res.Invoice.InvoiceNumber,
		Amount:        res.Payment.Amount,
		Method:        res.Payment.Method.String(),
		Status:        res.Invoice.Status.String(),
		BalanceDue:    res.Invoice.BalanceDue,
	}
}

func rowRejection(line int, err error) csvimport.RowError {
	rowErr := csvimport.RowError{Row: line, Code: shared.CodeOf(err), Message: err.Error()}
	if rowErr.Code == "" {
		rowErr.Code = ErrCodeImportRejected
	}
	if shared.IsNotFound(err) {
		rowErr.Column = "invoice"
	}
	return rowErr
}

func importFileError(span trace.Span, err error) error {
	fileErr := shared.NewValidationError(ErrCodeInvalidImportFile, err.Error()).WithCause(err)
	telemetry.RecordError(span, fileErr)
	return fileErr
}
