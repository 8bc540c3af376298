package settlement

import (
	"fmt"

	"github.com/erp/settlement/internal/domain/shared"
	"github.com/erp/settlement/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// Settlement error codes
const (
	CodeDocumentNotFound  = "DOCUMENT_NOT_FOUND"
	CodeDuplicateDocument = "DUPLICATE_DOCUMENT"
	CodeUnbalanced        = "UNBALANCED_SETTLEMENT"
	CodeSettlementLocked  = "SETTLEMENT_LOCKED"
)

var (
	ErrDocumentNotFound  = shared.NewDomainError(CodeDocumentNotFound, "Document is not part of this settlement")
	ErrDuplicateDocument = shared.NewDomainError(CodeDuplicateDocument, "Document number appears more than once")
	ErrUnbalanced        = shared.NewDomainError(CodeUnbalanced, "Settlement amount is not fully allocated")
	ErrSettlementLocked  = shared.NewDomainError(CodeSettlementLocked, "Settlement cannot be changed in its current mode")
	ErrInvalidScope      = shared.NewDomainError("INVALID_INPUT", "Allocation scope must be ALL or SELECTED")
	ErrInvalidSort       = shared.NewDomainError("INVALID_INPUT", "Unsupported sort key or direction")
)

func documentNotFound(documentNo string) error {
	return shared.NewDomainError(CodeDocumentNotFound, fmt.Sprintf("Document %s is not part of this settlement", documentNo))
}

func duplicateDocument(documentNo string) error {
	return shared.NewDomainError(CodeDuplicateDocument, fmt.Sprintf("Document %s appears more than once", documentNo))
}

func unbalanced(remaining decimal.Decimal) error {
	return shared.NewDomainError(CodeUnbalanced,
		fmt.Sprintf("Settlement is not fully allocated: %s remains unapplied", valueobject.FormatAmount(remaining)))
}

// ErrInvalidSnapshot is returned when a stored batch cannot be restored
var ErrInvalidSnapshot = shared.NewDomainError("INVALID_SNAPSHOT", "Stored settlement session is corrupt")
