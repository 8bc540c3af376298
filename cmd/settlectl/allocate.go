package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/erp/settlement/internal/application/openitem"
	settlementapp "github.com/erp/settlement/internal/application/settlement"
	"github.com/erp/settlement/internal/domain/settlement"
	"github.com/erp/settlement/internal/domain/shared"
	"github.com/erp/settlement/internal/domain/shared/valueobject"
	"github.com/erp/settlement/internal/infrastructure/cache"
	"github.com/erp/settlement/internal/infrastructure/logger"
	"github.com/erp/settlement/internal/infrastructure/strategy"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// localTenant owns everything loaded by one settlectl run
var localTenant = uuid.MustParse("00000000-0000-0000-0000-000000000001")

type allocateOptions struct {
	file            string
	settlementType  string
	counterparty    string
	amount          string
	method          string
	strategy        string
	scope           string
	date            string
	save            bool
	acceptRemainder bool
}

func newAllocateCmd(root *rootOptions) *cobra.Command {
	opts := &allocateOptions{}

	cmd := &cobra.Command{
		Use:   "allocate",
		Short: "Auto-allocate an amount over exported open items",
		Example: `  # Spread a 1,500.00 receipt over a customer's invoices, oldest first
  settlectl allocate --file open_items.csv --amount 1500 --strategy fifo

  # Pay a supplier and preview the saved settlement
  settlectl allocate --file payables.xlsx --type payment --amount 820.50 --save`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := logger.WithContext(cmd.Context(), root.log)
			return runAllocate(ctx, opts, cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.file, "file", "f", "", "CSV or XLSX export of open items")
	f.StringVarP(&opts.settlementType, "type", "t", "receipt", "Settlement type (receipt, credit_note, contra, payment, debit_note, ap_contra)")
	f.StringVar(&opts.counterparty, "counterparty", "", "Counterparty ID; optional when the file holds a single counterparty")
	f.StringVarP(&opts.amount, "amount", "a", "", "Amount tendered")
	f.StringVar(&opts.method, "method", "CASH", "Payment method of the tendered amount")
	f.StringVarP(&opts.strategy, "strategy", "s", "", "Allocation strategy (empty for the default)")
	f.StringVar(&opts.scope, "scope", "ALL", "Rows to fill: ALL or SELECTED")
	f.StringVar(&opts.date, "date", "", "Settlement date, YYYY-MM-DD (default today)")
	f.BoolVar(&opts.save, "save", false, "Save the settlement and print its number")
	f.BoolVar(&opts.acceptRemainder, "accept-remainder", false, "Allow saving with an unapplied remainder where the type permits it")
	_ = cmd.MarkFlagRequired("file")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func runAllocate(ctx context.Context, opts *allocateOptions, out io.Writer) error {
	settlementType := settlement.SettlementType(strings.ToUpper(opts.settlementType))
	if !settlementType.IsValid() {
		return fmt.Errorf("unknown settlement type %q", opts.settlementType)
	}
	amount := valueobject.ParseAmount(opts.amount)
	if !amount.IsPositive() {
		return fmt.Errorf("amount must be greater than zero")
	}
	var settlementDate time.Time
	if opts.date != "" {
		d, err := time.Parse("2006-01-02", opts.date)
		if err != nil {
			return fmt.Errorf("invalid date %q: use YYYY-MM-DD", opts.date)
		}
		settlementDate = d
	}

	ledger := newMemoryLedger()
	if err := loadFile(ctx, ledger, opts.file, out); err != nil {
		return err
	}

	counterpartyID, err := pickCounterparty(ledger, settlementType.Ledger(), opts.counterparty)
	if err != nil {
		return err
	}

	registry, err := strategy.NewRegistryWithDefaults("")
	if err != nil {
		return err
	}
	svc := settlementapp.NewService(ledger, ledger, cache.NewInMemoryDraftStore(), registry)

	view, err := svc.OpenSession(ctx, localTenant, settlementapp.OpenSessionRequest{
		Type:           settlementType,
		CounterpartyID: counterpartyID,
		SettlementDate: settlementDate,
		Methods: []settlement.MethodLine{{
			Method: settlement.PaymentMethod(strings.ToUpper(opts.method)),
			Amount: amount,
		}},
	})
	if err != nil {
		return err
	}
	view, err = svc.AutoAllocate(ctx, localTenant, view.ID, opts.scope, opts.strategy)
	if err != nil {
		return err
	}
	printSession(out, view)

	if !opts.save {
		return nil
	}
	saved, err := svc.Save(ctx, localTenant, view.ID, settlementapp.SaveRequest{AcceptRemainder: opts.acceptRemainder})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\nSaved %s: %s applied, %s unapplied\n",
		saved.SettlementNumber,
		valueobject.FormatAmount(saved.AppliedAmount),
		valueobject.FormatAmount(saved.UnappliedAmount),
	)
	return nil
}

func loadFile(ctx context.Context, ledger *memoryLedger, path string, out io.Writer) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	result, err := openitem.NewImportService(ledger).Import(ctx, localTenant, filepath.Base(path), file)
	if err != nil {
		return err
	}
	for _, e := range result.Errors {
		logger.L(ctx).Warn("Row skipped",
			zap.Int("row", e.Row),
			zap.String("column", e.Column),
			zap.String("reason", e.Message),
		)
	}
	fmt.Fprintf(out, "Loaded %d of %d rows from %s\n\n", result.ImportedRows, result.TotalRows, filepath.Base(path))
	return nil
}

func pickCounterparty(ledger *memoryLedger, l settlement.Ledger, raw string) (uuid.UUID, error) {
	if raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return uuid.Nil, fmt.Errorf("invalid counterparty %q: %w", raw, err)
		}
		return id, nil
	}
	ids := ledger.counterparties(l)
	switch len(ids) {
	case 0:
		return uuid.Nil, fmt.Errorf("file has no %s open items", strings.ToLower(string(l)))
	case 1:
		return ids[0], nil
	default:
		return uuid.Nil, fmt.Errorf("file holds %d counterparties; pass --counterparty", len(ids))
	}
}

func printSession(out io.Writer, view *settlementapp.SessionView) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "DOCUMENT\tDATE\tAMOUNT\tDISCOUNT\tAPPLIED\tOUTSTANDING\tSTATE\t")
	for _, d := range view.Documents {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t\n",
			d.DocumentNo,
			d.DocumentDate.Format("2006-01-02"),
			valueobject.FormatAmount(d.OriginalAmount),
			valueobject.FormatAmount(d.DiscountAmount),
			valueobject.FormatAmount(d.AppliedAmount),
			valueobject.FormatAmount(d.Outstanding),
			d.State,
		)
	}
	_ = w.Flush()

	fmt.Fprintf(out, "\nTotal %s  Applied %s  Discount %s  Remaining %s\n",
		valueobject.FormatAmount(view.Total),
		valueobject.FormatAmount(view.AppliedTotal),
		valueobject.FormatAmount(view.DiscountTotal),
		valueobject.FormatAmount(view.Remaining),
	)
}

// memoryLedger keeps open items and saved settlements for one run
type memoryLedger struct {
	mu      sync.Mutex
	items   map[string]*settlement.OpenItem
	records map[uuid.UUID]*settlement.SettlementRecord
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{
		items:   make(map[string]*settlement.OpenItem),
		records: make(map[uuid.UUID]*settlement.SettlementRecord),
	}
}

func itemKey(i *settlement.OpenItem) string {
	return string(i.Ledger) + "|" + i.CounterpartyID.String() + "|" + i.DocumentNo
}

func (m *memoryLedger) FindOpenItems(_ context.Context, tenantID uuid.UUID, l settlement.Ledger, counterpartyID uuid.UUID) ([]settlement.OpenItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []settlement.OpenItem
	for _, i := range m.items {
		if i.TenantID == tenantID && i.Ledger == l && i.CounterpartyID == counterpartyID && i.Balance.IsPositive() {
			out = append(out, *i)
		}
	}
	sort.Slice(out, func(a, b int) bool {
		if !out[a].DocumentDate.Equal(out[b].DocumentDate) {
			return out[a].DocumentDate.Before(out[b].DocumentDate)
		}
		return out[a].DocumentNo < out[b].DocumentNo
	})
	return out, nil
}

func (m *memoryLedger) Upsert(_ context.Context, items []*settlement.OpenItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, i := range items {
		m.items[itemKey(i)] = i
	}
	return nil
}

func (m *memoryLedger) counterparties(l settlement.Ledger) []uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[uuid.UUID]struct{})
	var ids []uuid.UUID
	for _, i := range m.items {
		if i.Ledger != l {
			continue
		}
		if _, ok := seen[i.CounterpartyID]; !ok {
			seen[i.CounterpartyID] = struct{}{}
			ids = append(ids, i.CounterpartyID)
		}
	}
	return ids
}

func (m *memoryLedger) Save(_ context.Context, record *settlement.SettlementRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[record.ID] = record
	return nil
}

func (m *memoryLedger) UpdateMethodFlags(_ context.Context, record *settlement.SettlementRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[record.ID]; !ok {
		return shared.ErrNotFound
	}
	m.records[record.ID] = record
	return nil
}

func (m *memoryLedger) FindByIDForTenant(_ context.Context, tenantID, id uuid.UUID) (*settlement.SettlementRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[id]
	if !ok || r.TenantID != tenantID {
		return nil, shared.ErrNotFound
	}
	return r, nil
}
