package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/garage/billing/internal/infrastructure/config"
	"github.com/garage/billing/internal/infrastructure/persistence/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		App: config.AppConfig{Name: "garage-billing", Env: "test"},
		Database: config.DatabaseConfig{
			Driver:       "sqlite",
			Path:         filepath.Join(t.TempDir(), "billing.db"),
			MaxOpenConns: 1,
			MaxIdleConns: 1,
		},
		Redis: config.RedisConfig{Enabled: false, ViewTTL: time.Minute},
		Log:   config.LogConfig{Level: "debug", Format: "json", Output: "stdout", GormLevel: "silent"},
		Telemetry: config.TelemetryConfig{
			ServiceName: "garage-billing",
		},
		Billing: config.BillingConfig{
			DefaultTaxRate: decimal.Zero,
			InvoicePrefix:  "INV",
			PaymentTerms:   "Net 30",
			Currency:       "LKR",
			Locale:         "en",
		},
	}
}

// seed writes one customer with one vehicle and a completed service with an
// advance of 200 against a cost of 1000
func seed(t *testing.T, cfg *config.Config) {
	t.Helper()
	ctx := context.Background()
	app, err := Bootstrap(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	defer func() { require.NoError(t, app.Close(ctx)) }()

	db := app.Database.DB
	require.NoError(t, db.Create(&models.CustomerModel{BaseModel: models.BaseModel{ID: "c1"}, Name: "Nimal Perera"}).Error)
	require.NoError(t, db.Create(&models.VehicleModel{
		BaseModel:   models.BaseModel{ID: "v1"},
		CustomerID:  "c1",
		Make:        "Toyota",
		Model:       "Corolla",
		PlateNumber: "CAB-1234",
	}).Error)
	require.NoError(t, db.Create(&models.ServiceModel{
		BaseModel:            models.BaseModel{ID: "s1"},
		VehicleID:            "v1",
		Type:                 "Full Service",
		Cost:                 decimal.NewFromInt(1000),
		Status:               "Completed",
		AdvancePayment:       decimal.NewFromInt(200),
		AdvancePaymentMethod: "cash",
	}).Error)
}

type result struct {
	stdout string
	stderr string
	err    error
}

func run(t *testing.T, cfg *config.Config, log *zap.Logger, args ...string) result {
	t.Helper()
	if log == nil {
		log = zap.NewNop()
	}
	var stdout, stderr bytes.Buffer
	c := New(WithConfig(cfg), WithBaseLogger(log), WithOutput(&stdout, &stderr))
	err := c.Execute(context.Background(), args)
	return result{stdout: stdout.String(), stderr: stderr.String(), err: err}
}

func decodeJSON(t *testing.T, r result, v any) {
	t.Helper()
	require.NoError(t, r.err, r.stderr)
	require.NoError(t, json.Unmarshal([]byte(r.stdout), v), r.stdout)
}

type invoiceJSON struct {
	ID            string `json:"id"`
	InvoiceNumber string `json:"invoice_number"`
	CustomerID    string `json:"customer_id"`
	Total         string `json:"total"`
	PaidAmount    string `json:"paid_amount"`
	BalanceDue    string `json:"balance_due"`
	Status        string `json:"status"`
}

func createInvoice(t *testing.T, cfg *config.Config) invoiceJSON {
	t.Helper()
	var creation struct {
		Invoice        invoiceJSON `json:"invoice"`
		AdvancePayment *struct {
			ID     string `json:"id"`
			Amount string `json:"amount"`
		} `json:"advance_payment"`
		Created bool `json:"created"`
	}
	decodeJSON(t, run(t, cfg, nil, "invoice", "create", "s1", "-o", "json"), &creation)
	require.True(t, creation.Created)
	require.NotNil(t, creation.AdvancePayment)
	assert.Equal(t, "200", creation.AdvancePayment.Amount)
	return creation.Invoice
}

func TestCLI_InvoiceAndPaymentFlow(t *testing.T) {
	cfg := testConfig(t)
	seed(t, cfg)

	inv := createInvoice(t, cfg)
	assert.Equal(t, "INV-0001", inv.InvoiceNumber)
	assert.Equal(t, "c1", inv.CustomerID)
	assert.Equal(t, "1000", inv.Total)
	assert.Equal(t, "200", inv.PaidAmount)
	assert.Equal(t, "800", inv.BalanceDue)

	// billing the same service again hands back the same invoice
	r := run(t, cfg, nil, "invoice", "create", "s1")
	require.NoError(t, r.err)
	assert.Contains(t, r.stdout, "Service s1 is already billed")
	assert.Contains(t, r.stdout, "INV-0001")

	var paid struct {
		Invoice invoiceJSON `json:"invoice"`
		Payment struct {
			ID     string `json:"id"`
			Method string `json:"method"`
		} `json:"payment"`
	}
	decodeJSON(t, run(t, cfg, nil, "payment", "record", inv.ID, "--amount", "800", "--method", "card", "-o", "json"), &paid)
	assert.Equal(t, "0", paid.Invoice.BalanceDue)
	assert.Equal(t, "paid", paid.Invoice.Status)
	assert.Equal(t, "card", paid.Payment.Method)

	r = run(t, cfg, nil, "payment", "list", inv.ID)
	require.NoError(t, r.err)
	assert.Contains(t, r.stdout, "PAYMENT")
	assert.Contains(t, r.stdout, "LKR 800.00")
	assert.Contains(t, r.stdout, "LKR 200.00")

	var voided struct {
		Invoice invoiceJSON `json:"invoice"`
	}
	decodeJSON(t, run(t, cfg, nil, "payment", "void", paid.Payment.ID, "-o", "json"), &voided)
	assert.Equal(t, "800", voided.Invoice.BalanceDue)
	assert.Equal(t, "sent", voided.Invoice.Status)

	r = run(t, cfg, nil, "customer", "balance", "c1")
	require.NoError(t, r.err)
	assert.Contains(t, r.stdout, "LKR 800.00")

	r = run(t, cfg, nil, "invoice", "outstanding")
	require.NoError(t, r.err)
	assert.Contains(t, r.stdout, "INV-0001")

	r = run(t, cfg, nil, "audit")
	require.NoError(t, r.err)
	assert.Contains(t, r.stdout, "No violations")
}

func TestCLI_Statement(t *testing.T) {
	cfg := testConfig(t)
	seed(t, cfg)
	createInvoice(t, cfg)

	r := run(t, cfg, nil, "customer", "statement", "c1")
	require.NoError(t, r.err, r.stderr)
	assert.Contains(t, r.stdout, "Nimal Perera")
	assert.Contains(t, r.stdout, "Toyota Corolla CAB-1234")
	assert.Contains(t, r.stdout, "DESCRIPTION")
	assert.Contains(t, r.stdout, "INV-0001")
	assert.Contains(t, r.stdout, "Total billed:")
	assert.Contains(t, r.stdout, "LKR 1,000.00")

	var st struct {
		Balance string `json:"balance"`
		Lines   []struct {
			Description string `json:"description"`
		} `json:"lines"`
	}
	decodeJSON(t, run(t, cfg, nil, "customer", "statement", "c1", "-o", "json"), &st)
	assert.Equal(t, "800", st.Balance)
	assert.Len(t, st.Lines, 2)

	r = run(t, cfg, nil, "customer", "statement", "c1", "--from", "2024-01-01")
	require.Error(t, r.err)
	assert.Contains(t, r.err.Error(), "--from and --to must be given together")

	r = run(t, cfg, nil, "customer", "statement", "nobody")
	require.Error(t, r.err)

	var history []struct {
		InvoiceNumber string `json:"invoice_number"`
		Amount        string `json:"amount"`
	}
	decodeJSON(t, run(t, cfg, nil, "customer", "history", "c1", "-o", "json"), &history)
	require.Len(t, history, 1)
	assert.Equal(t, "INV-0001", history[0].InvoiceNumber)
	assert.Equal(t, "200", history[0].Amount)
}

func TestCLI_ArchiveStatementAndReport(t *testing.T) {
	cfg := testConfig(t)
	root := filepath.Join(t.TempDir(), "archive")
	cfg.Storage = config.StorageConfig{Driver: "local", Path: root}
	seed(t, cfg)
	createInvoice(t, cfg)

	var out struct {
		Statement struct {
			Balance string `json:"balance"`
		} `json:"statement"`
		Archived struct {
			Key string `json:"key"`
			URL string `json:"url"`
		} `json:"archived"`
	}
	decodeJSON(t, run(t, cfg, nil, "customer", "statement", "c1", "--archive", "-o", "json"), &out)
	assert.Equal(t, "800", out.Statement.Balance)
	assert.True(t, strings.HasPrefix(out.Archived.Key, "statements/c1/"))
	assert.True(t, strings.HasPrefix(out.Archived.URL, "file://"))

	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(out.Archived.Key)))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"Nimal Perera"`)

	r := run(t, cfg, nil, "report", "revenue", "--from", "2020-01-01", "--to", "2030-12-31", "--archive")
	require.NoError(t, r.err, r.stderr)
	assert.Contains(t, r.stdout, "Archived:")
	assert.Contains(t, r.stdout, "reports/revenue/2020-01-01_2030-12-31/")
}

func TestCLI_ArchiveDisabled(t *testing.T) {
	cfg := testConfig(t)
	seed(t, cfg)

	r := run(t, cfg, nil, "customer", "statement", "c1", "--archive")
	require.Error(t, r.err)
	assert.Contains(t, r.err.Error(), "document archive is not configured")
}

func TestCLI_PaymentImport(t *testing.T) {
	cfg := testConfig(t)
	seed(t, cfg)
	inv := createInvoice(t, cfg)

	dir := t.TempDir()
	mixed := filepath.Join(dir, "mixed.csv")
	require.NoError(t, os.WriteFile(mixed, []byte("Invoice,Amount,Method,Reference\nINV-0001,300,card,SLIP-1\nINV-0404,10,cash,\n"), 0o600))

	r := run(t, cfg, nil, "payment", "import", mixed, "--dry-run")
	require.Error(t, r.err)
	assert.Contains(t, r.err.Error(), "1 of 2 rows rejected")
	assert.Contains(t, r.stdout, "Would record 1 of 2 payments")
	assert.Contains(t, r.stdout, `invoice "INV-0404" not found`)

	r = run(t, cfg, nil, "customer", "balance", "c1")
	require.NoError(t, r.err)
	assert.Contains(t, r.stdout, "LKR 800.00")

	clean := filepath.Join(dir, "clean.csv")
	require.NoError(t, os.WriteFile(clean, []byte("invoice,amount,method,reference\n"+inv.ID+",300,card,SLIP-1\n"), 0o600))

	var imported struct {
		ImportedRows int `json:"imported_rows"`
		Payments     []struct {
			InvoiceNumber string `json:"invoice_number"`
			BalanceDue    string `json:"balance_due"`
		} `json:"payments"`
	}
	decodeJSON(t, run(t, cfg, nil, "payment", "import", clean, "-o", "json"), &imported)
	assert.Equal(t, 1, imported.ImportedRows)
	require.Len(t, imported.Payments, 1)
	assert.Equal(t, "INV-0001", imported.Payments[0].InvoiceNumber)
	assert.Equal(t, "500", imported.Payments[0].BalanceDue)

	r = run(t, cfg, nil, "payment", "import", filepath.Join(dir, "missing.csv"))
	require.Error(t, r.err)
	assert.Contains(t, r.err.Error(), "failed to open")

	r = run(t, cfg, nil, "payment", "import", clean, "--delimiter", "")
	require.Error(t, r.err)
	assert.Contains(t, r.err.Error(), "invalid delimiter")
}

func TestCLI_StatusWarningGoesToStderr(t *testing.T) {
	cfg := testConfig(t)
	seed(t, cfg)
	inv := createInvoice(t, cfg)

	r := run(t, cfg, nil, "invoice", "status", inv.ID, "paid")
	require.NoError(t, r.err)
	assert.Contains(t, r.stdout, "INV-0001: draft -> paid")
	assert.Contains(t, r.stderr, "warning:")

	r = run(t, cfg, nil, "invoice", "status", inv.ID, "archived")
	require.Error(t, r.err)
}

func TestCLI_ItemsAndDelete(t *testing.T) {
	cfg := testConfig(t)
	seed(t, cfg)
	inv := createInvoice(t, cfg)

	var updated invoiceJSON
	decodeJSON(t, run(t, cfg, nil, "invoice", "items", inv.ID,
		"--item", "Oil filter|2|850|parts",
		"--item", "Labour|1|2500|labor",
		"-o", "json"), &updated)
	assert.Equal(t, "4200", updated.Total)
	assert.Equal(t, "4000", updated.BalanceDue)

	r := run(t, cfg, nil, "invoice", "items", inv.ID)
	require.Error(t, r.err)

	r = run(t, cfg, nil, "invoice", "delete", inv.ID)
	require.NoError(t, r.err)
	assert.Contains(t, r.stdout, "Deleted INV-0001 and 1 payment(s)")

	r = run(t, cfg, nil, "invoice", "show", inv.ID)
	require.Error(t, r.err)
}

func TestCLI_Settings(t *testing.T) {
	cfg := testConfig(t)
	seed(t, cfg)

	var settings struct {
		TaxRate       string `json:"tax_rate"`
		InvoicePrefix string `json:"invoice_prefix"`
		PaymentTerms  string `json:"payment_terms"`
		Company       struct {
			Name string `json:"name"`
		} `json:"company"`
	}
	decodeJSON(t, run(t, cfg, nil, "settings", "set", "--tax-rate", "0.08", "--company", "Lanka Motors", "-o", "json"), &settings)
	assert.Equal(t, "0.08", settings.TaxRate)
	assert.Equal(t, "INV", settings.InvoicePrefix)
	assert.Equal(t, "Net 30", settings.PaymentTerms)
	assert.Equal(t, "Lanka Motors", settings.Company.Name)

	r := run(t, cfg, nil, "settings", "show")
	require.NoError(t, r.err)
	assert.Contains(t, r.stdout, "Lanka Motors")
	assert.Contains(t, r.stdout, "0.08")

	r = run(t, cfg, nil, "settings", "set", "--tax-rate", "1.5")
	require.Error(t, r.err)

	r = run(t, cfg, nil, "settings", "set", "--tax-rate", "abc")
	require.Error(t, r.err)
	assert.Contains(t, r.err.Error(), "invalid tax rate")
}

func TestCLI_Reports(t *testing.T) {
	cfg := testConfig(t)
	seed(t, cfg)
	createInvoice(t, cfg)

	var summary struct {
		TotalInvoiced  string `json:"total_invoiced"`
		TotalCollected string `json:"total_collected"`
		DraftCount     int    `json:"draft_count"`
	}
	decodeJSON(t, run(t, cfg, nil, "report", "summary", "-o", "json"), &summary)
	assert.Equal(t, "1000", summary.TotalInvoiced)
	assert.Equal(t, "200", summary.TotalCollected)
	assert.Equal(t, 1, summary.DraftCount)

	var report struct {
		TotalRevenue string `json:"total_revenue"`
		PaymentCount int    `json:"payment_count"`
	}
	decodeJSON(t, run(t, cfg, nil, "report", "revenue", "-o", "json"), &report)
	assert.Equal(t, "200", report.TotalRevenue)
	assert.Equal(t, 1, report.PaymentCount)

	r := run(t, cfg, nil, "report", "revenue")
	require.NoError(t, r.err)
	assert.Contains(t, r.stdout, "METHOD")
	assert.Contains(t, r.stdout, "Full Service")

	decodeJSON(t, run(t, cfg, nil, "report", "revenue", "--from", "2000-01-01", "--to", "2000-01-31", "-o", "json"), &report)
	assert.Equal(t, 0, report.PaymentCount)
}

func TestCLI_LogsCarryOperationContext(t *testing.T) {
	cfg := testConfig(t)
	seed(t, cfg)

	core, logs := observer.New(zapcore.DebugLevel)
	r := run(t, cfg, zap.New(core), "invoice", "create", "s1", "--operator", "cashier")
	require.NoError(t, r.err, r.stderr)

	events := logs.FilterMessage("Billing event").All()
	require.NotEmpty(t, events)
	fields := events[0].ContextMap()
	assert.Equal(t, "cashier", fields["operator"])
	assert.NotEmpty(t, fields["operation_id"])
}

func TestCLI_WatchOnce(t *testing.T) {
	cfg := testConfig(t)
	seed(t, cfg)
	createInvoice(t, cfg)

	var sweep struct {
		Version      uint64 `json:"version"`
		Violations   []any  `json:"violations"`
		OverdueCount int    `json:"overdue_count"`
	}
	decodeJSON(t, run(t, cfg, nil, "watch", "--once", "-o", "json"), &sweep)
	assert.Positive(t, sweep.Version)
	assert.Empty(t, sweep.Violations)
	assert.Equal(t, 0, sweep.OverdueCount)
}

func TestCLI_WatchRunsUntilCanceled(t *testing.T) {
	cfg := testConfig(t)
	seed(t, cfg)
	cfg.Scheduler = config.SchedulerConfig{SweepInterval: 20 * time.Millisecond, Workers: 1}

	core, logs := observer.New(zapcore.InfoLevel)
	var stdout, stderr bytes.Buffer
	c := New(WithConfig(cfg), WithBaseLogger(zap.New(core)), WithOutput(&stdout, &stderr))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Execute(ctx, []string{"watch"}) }()

	require.Eventually(t, func() bool {
		return logs.FilterMessage("Billing sweep completed").Len() >= 2
	}, 5*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
	assert.Contains(t, stdout.String(), "sweep every 20ms")
	assert.Contains(t, stdout.String(), "Stopped after")

	// each job logs under its own operation id
	sweeps := logs.FilterMessage("Billing sweep completed").All()
	assert.NotEqual(t, sweeps[0].ContextMap()["operation_id"], sweeps[1].ContextMap()["operation_id"])
}

func TestSchedulerConfig(t *testing.T) {
	out := schedulerConfig(config.SchedulerConfig{Workers: 3})
	assert.Equal(t, 3, out.Workers)
	assert.NoError(t, out.Validate())
}

func TestCLI_UnknownOutputFormat(t *testing.T) {
	cfg := testConfig(t)
	r := run(t, cfg, nil, "report", "summary", "-o", "xml")
	require.Error(t, r.err)
	assert.Contains(t, r.err.Error(), "unknown output format")
}

func TestParseLineItems(t *testing.T) {
	items, err := parseLineItems([]string{"Oil filter | 2 | 850.50 | parts", "Labour|1|2500"})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Oil filter", items[0].Description)
	assert.True(t, items[0].Quantity.Equal(decimal.NewFromInt(2)))
	assert.True(t, items[0].UnitPrice.Equal(decimal.RequireFromString("850.50")))
	assert.Equal(t, "parts", items[0].Kind)
	assert.Empty(t, items[1].Kind)

	tests := []struct {
		value string
		want  string
	}{
		{"Labour|1", "invalid line item"},
		{"a|b|c|d|e", "invalid line item"},
		{"Labour|one|2500", "invalid quantity"},
		{"Labour|1|lots", "invalid unit price"},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			_, err := parseLineItems([]string{tt.value})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseDate(t *testing.T) {
	d, err := parseDate("2024-03-31")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 31, 0, 0, 0, 0, time.Local), d)
	assert.Equal(t, time.Date(2024, 3, 31, 23, 59, 59, 999999999, time.Local), endOfDay(d))

	d, err = parseDate("2024-03-31T10:30:00Z")
	require.NoError(t, err)
	assert.Equal(t, d, endOfDay(d))

	_, err = parseDate("31/03/2024")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "use YYYY-MM-DD")
}

func TestReportRange(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	start, end, err := reportRange("", "", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, now, end)

	_, _, err = reportRange("", "2024-06-30", now)
	require.Error(t, err)
}

func TestPrinter(t *testing.T) {
	var buf bytes.Buffer
	p, err := newPrinter(&buf, FormatTable)
	require.NoError(t, err)
	assert.False(t, p.json())

	require.NoError(t, p.table([]string{"A", "LONG HEADER"}, [][]string{{"value", "x"}}))
	assert.Equal(t, "A      LONG HEADER\nvalue  x\n", buf.String())

	buf.Reset()
	require.NoError(t, p.fields("Total", "10", "Balance due", "5"))
	assert.Equal(t, "Total:        10\nBalance due:  5\n", buf.String())

	_, err = newPrinter(&buf, "yaml")
	require.Error(t, err)
}
