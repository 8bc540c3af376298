package openitem

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/erp/settlement/internal/domain/settlement"
	"github.com/erp/settlement/internal/domain/shared"
	fileimport "github.com/erp/settlement/internal/infrastructure/import"
	"github.com/erp/settlement/internal/infrastructure/logger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Import column names
const (
	ColumnLedger          = "ledger"
	ColumnCounterpartyID  = "counterparty_id"
	ColumnKind            = "kind"
	ColumnDocumentNo      = "document_no"
	ColumnDocumentDate    = "document_date"
	ColumnAmount          = "amount"
	ColumnBalance         = "balance"
	ColumnDiscountAmount  = "discount_amount"
	ColumnDiscountDueDate = "discount_due_date"
)

// DefaultMaxErrors caps the row errors reported by one import
const DefaultMaxErrors = 100

// OpenItemRules are the validation rules of an open item import file
var OpenItemRules = []fileimport.FieldRule{
	fileimport.Field(ColumnLedger).Required().OneOf(string(settlement.LedgerReceivable), string(settlement.LedgerPayable)).Build(),
	fileimport.Field(ColumnCounterpartyID).Required().UUID().Build(),
	fileimport.Field(ColumnKind).Required().OneOf(
		string(settlement.DocumentKindInvoice),
		string(settlement.DocumentKindDebitNote),
		string(settlement.DocumentKindCreditNote),
		string(settlement.DocumentKindContra),
	).Build(),
	fileimport.Field(ColumnDocumentNo).Required().MaxLength(50).Build(),
	fileimport.Field(ColumnDocumentDate).Required().Date().Build(),
	fileimport.Field(ColumnAmount).Required().Decimal().NonNegative().Build(),
	fileimport.Field(ColumnBalance).Decimal().NonNegative().Build(),
	fileimport.Field(ColumnDiscountAmount).Decimal().NonNegative().Build(),
	fileimport.Field(ColumnDiscountDueDate).Date().Build(),
}

// ImportResult summarizes an open item import
type ImportResult struct {
	TotalRows    int                   `json:"total_rows"`
	ImportedRows int                   `json:"imported_rows"`
	ErrorRows    int                   `json:"error_rows"`
	Errors       []fileimport.RowError `json:"errors,omitempty"`
	Truncated    bool                  `json:"truncated,omitempty"`
}

// OpenItemResponse represents an open item
type OpenItemResponse struct {
	ID              uuid.UUID       `json:"id"`
	Ledger          string          `json:"ledger"`
	CounterpartyID  uuid.UUID       `json:"counterparty_id"`
	Kind            string          `json:"kind"`
	DocumentNo      string          `json:"document_no"`
	DocumentDate    time.Time       `json:"document_date"`
	Amount          decimal.Decimal `json:"amount"`
	Balance         decimal.Decimal `json:"balance"`
	DiscountAmount  decimal.Decimal `json:"discount_amount"`
	DiscountDueDate *time.Time      `json:"discount_due_date,omitempty"`
	Version         int             `json:"version"`
}

// ImportService loads open items from CSV or XLSX files into the catalog
type ImportService struct {
	repo         settlement.OpenItemRepository
	maxErrors    int
	allOrNothing bool
}

// ImportServiceOption is a functional option for configuring ImportService
type ImportServiceOption func(*ImportService)

// WithMaxErrors caps the number of row errors reported
func WithMaxErrors(n int) ImportServiceOption {
	return func(s *ImportService) {
		if n > 0 {
			s.maxErrors = n
		}
	}
}

// WithAllOrNothing makes a file with any invalid row import nothing
func WithAllOrNothing(enabled bool) ImportServiceOption {
	return func(s *ImportService) {
		s.allOrNothing = enabled
	}
}

// NewImportService creates a new open item import service
func NewImportService(repo settlement.OpenItemRepository, opts ...ImportServiceOption) *ImportService {
	s := &ImportService{repo: repo, maxErrors: DefaultMaxErrors}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Import parses filename's content, validates every row and upserts the
// valid ones. Row problems are reported in the result; only unreadable files
// and storage failures return an error.
func (s *ImportService) Import(ctx context.Context, tenantID uuid.UUID, filename string, r io.Reader) (*ImportResult, error) {
	table, err := fileimport.Parse(filename, r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrInvalidInput, err)
	}

	validator := fileimport.NewFieldValidator(OpenItemRules, s.maxErrors)
	if missing := table.MissingHeaders(validator.Columns(true)); len(missing) > 0 {
		return nil, fmt.Errorf("%w: %w: %s", shared.ErrInvalidInput, fileimport.ErrMissingHeader, strings.Join(missing, ", "))
	}

	errs := validator.Errors()
	items := make([]*settlement.OpenItem, 0, len(table.Rows))
	seen := make(map[string]int, len(table.Rows))
	for _, row := range table.Rows {
		if !validator.ValidateRow(row) {
			continue
		}
		item, err := rowToOpenItem(tenantID, row)
		if err != nil {
			errs.Add(fileimport.RowError{
				Row:     row.LineNumber,
				Code:    fileimport.ErrCodeImportValidation,
				Message: err.Error(),
			})
			continue
		}
		key := string(item.Ledger) + "|" + item.CounterpartyID.String() + "|" + item.DocumentNo
		if first, dup := seen[key]; dup {
			errs.Add(fileimport.RowError{
				Row:     row.LineNumber,
				Column:  ColumnDocumentNo,
				Code:    fileimport.ErrCodeImportDuplicateInFile,
				Message: fmt.Sprintf("duplicate of row %d", first),
				Value:   item.DocumentNo,
			})
			continue
		}
		seen[key] = row.LineNumber
		items = append(items, item)
	}

	result := &ImportResult{
		TotalRows: len(table.Rows),
		ErrorRows: errs.ErrorRows(),
		Errors:    errs.Errors(),
		Truncated: errs.IsTruncated(),
	}
	if s.allOrNothing && errs.HasErrors() {
		items = nil
	}
	if len(items) > 0 {
		if err := s.repo.Upsert(ctx, items); err != nil {
			return nil, fmt.Errorf("upsert open items: %w", err)
		}
	}
	result.ImportedRows = len(items)

	logger.L(logger.WithTenantID(ctx, tenantID.String())).Info("Open items imported",
		zap.String("file", filename),
		zap.Int("total_rows", result.TotalRows),
		zap.Int("imported_rows", result.ImportedRows),
		zap.Int("error_rows", result.ErrorRows),
	)
	return result, nil
}

// List returns a counterparty's open items in one ledger, oldest first
func (s *ImportService) List(ctx context.Context, tenantID uuid.UUID, ledger string, counterpartyID uuid.UUID) ([]OpenItemResponse, error) {
	l := settlement.Ledger(strings.ToUpper(ledger))
	if !l.IsValid() {
		return nil, fmt.Errorf("%w: ledger must be RECEIVABLE or PAYABLE", shared.ErrInvalidInput)
	}
	if counterpartyID == uuid.Nil {
		return nil, fmt.Errorf("%w: counterparty_id is required", shared.ErrInvalidInput)
	}

	items, err := s.repo.FindOpenItems(ctx, tenantID, l, counterpartyID)
	if err != nil {
		return nil, err
	}
	out := make([]OpenItemResponse, 0, len(items))
	for i := range items {
		out = append(out, toOpenItemResponse(&items[i]))
	}
	return out, nil
}

// rowToOpenItem builds an open item from a row that passed field validation
func rowToOpenItem(tenantID uuid.UUID, row *fileimport.Row) (*settlement.OpenItem, error) {
	counterpartyID, _ := uuid.Parse(row.Get(ColumnCounterpartyID))
	documentDate, _ := fileimport.ParseDate(row.Get(ColumnDocumentDate))
	amount, _ := fileimport.ParseDecimal(row.Get(ColumnAmount))

	item, err := settlement.NewOpenItem(
		tenantID,
		settlement.Ledger(strings.ToUpper(row.Get(ColumnLedger))),
		counterpartyID,
		settlement.DocumentKind(strings.ToUpper(row.Get(ColumnKind))),
		row.Get(ColumnDocumentNo),
		documentDate,
		amount,
	)
	if err != nil {
		return nil, err
	}

	if v := row.Get(ColumnBalance); v != "" {
		balance, _ := fileimport.ParseDecimal(v)
		if err := item.SetBalance(balance); err != nil {
			return nil, err
		}
	}

	if v := row.Get(ColumnDiscountAmount); v != "" {
		discount, _ := fileimport.ParseDecimal(v)
		var due *time.Time
		if dv := row.Get(ColumnDiscountDueDate); dv != "" {
			d, _ := fileimport.ParseDate(dv)
			due = &d
		}
		if err := item.OfferDiscount(discount, due); err != nil {
			return nil, err
		}
	}
	return item, nil
}

func toOpenItemResponse(i *settlement.OpenItem) OpenItemResponse {
	return OpenItemResponse{
		ID:              i.ID,
		Ledger:          string(i.Ledger),
		CounterpartyID:  i.CounterpartyID,
		Kind:            string(i.Kind),
		DocumentNo:      i.DocumentNo,
		DocumentDate:    i.DocumentDate,
		Amount:          i.Amount,
		Balance:         i.Balance,
		DiscountAmount:  i.DiscountAmount,
		DiscountDueDate: i.DiscountDueDate,
		Version:         i.Version,
	}
}
