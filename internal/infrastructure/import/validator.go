package fileimport

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/erp/settlement/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// FieldType represents the expected type of a field
type FieldType string

const (
	TypeString  FieldType = "string"
	TypeDecimal FieldType = "decimal"
	TypeDate    FieldType = "date"
	TypeUUID    FieldType = "uuid"
)

// DateLayouts are the accepted date cell formats
var DateLayouts = []string{"2006-01-02", "2006/01/02", "02.01.2006", time.RFC3339}

// FieldRule defines validation rules for a field
type FieldRule struct {
	Column    string
	Type      FieldType
	Required  bool
	MaxLength int
	MinValue  *decimal.Decimal
	OneOf     []string
}

// FieldRuleBuilder helps build field rules fluently
type FieldRuleBuilder struct {
	rule FieldRule
}

// Field creates a new field rule builder
func Field(column string) *FieldRuleBuilder {
	return &FieldRuleBuilder{rule: FieldRule{Column: column, Type: TypeString}}
}

// Required marks the field as required
func (b *FieldRuleBuilder) Required() *FieldRuleBuilder {
	b.rule.Required = true
	return b
}

// Decimal sets the field type to decimal
func (b *FieldRuleBuilder) Decimal() *FieldRuleBuilder {
	b.rule.Type = TypeDecimal
	return b
}

// Date sets the field type to date
func (b *FieldRuleBuilder) Date() *FieldRuleBuilder {
	b.rule.Type = TypeDate
	return b
}

// UUID sets the field type to UUID
func (b *FieldRuleBuilder) UUID() *FieldRuleBuilder {
	b.rule.Type = TypeUUID
	return b
}

// MaxLength sets the maximum length
func (b *FieldRuleBuilder) MaxLength(n int) *FieldRuleBuilder {
	b.rule.MaxLength = n
	return b
}

// NonNegative rejects values below zero
func (b *FieldRuleBuilder) NonNegative() *FieldRuleBuilder {
	zero := decimal.Zero
	b.rule.MinValue = &zero
	return b
}

// OneOf restricts the value to the given options, compared case-insensitively
func (b *FieldRuleBuilder) OneOf(options ...string) *FieldRuleBuilder {
	b.rule.OneOf = options
	return b
}

// Build returns the built field rule
func (b *FieldRuleBuilder) Build() FieldRule {
	return b.rule
}

// FieldValidator validates rows against field rules and collects errors
type FieldValidator struct {
	rules  []FieldRule
	errors *ErrorCollection
}

// NewFieldValidator creates a new field validator
func NewFieldValidator(rules []FieldRule, maxErrors int) *FieldValidator {
	return &FieldValidator{rules: rules, errors: NewErrorCollection(maxErrors)}
}

// Columns returns the columns the rules name, required ones only when
// requiredOnly is set
func (v *FieldValidator) Columns(requiredOnly bool) []string {
	cols := make([]string, 0, len(v.rules))
	for _, r := range v.rules {
		if !requiredOnly || r.Required {
			cols = append(cols, r.Column)
		}
	}
	return cols
}

// ValidateRow checks every rule against row; it returns false when any failed
func (v *FieldValidator) ValidateRow(row *Row) bool {
	ok := true
	for _, rule := range v.rules {
		value := row.Get(rule.Column)

		if value == "" {
			if rule.Required {
				v.errors.AddRequiredError(row.LineNumber, rule.Column)
				ok = false
			}
			continue
		}

		if err := validateType(value, rule.Type); err != nil {
			v.errors.AddTypeError(row.LineNumber, rule.Column, string(rule.Type), value)
			ok = false
			continue
		}

		if rule.MaxLength > 0 && len(value) > rule.MaxLength {
			v.errors.Add(RowError{Row: row.LineNumber, Column: rule.Column, Code: ErrCodeImportInvalidLength,
				Message: fmt.Sprintf("length must be at most %d", rule.MaxLength)})
			ok = false
		}

		if rule.MinValue != nil {
			if d, _ := ParseDecimal(value); d.LessThan(*rule.MinValue) {
				v.errors.Add(RowError{Row: row.LineNumber, Column: rule.Column, Code: ErrCodeImportInvalidRange,
					Message: "value must be at least " + rule.MinValue.String(), Value: value})
				ok = false
			}
		}

		if len(rule.OneOf) > 0 && !slices.ContainsFunc(rule.OneOf, func(o string) bool {
			return strings.EqualFold(o, value)
		}) {
			v.errors.Add(RowError{Row: row.LineNumber, Column: rule.Column, Code: ErrCodeImportInvalidValue,
				Message: "must be one of " + strings.Join(rule.OneOf, ", "), Value: value})
			ok = false
		}
	}
	return ok
}

// Errors returns the error collection
func (v *FieldValidator) Errors() *ErrorCollection {
	return v.errors
}

func validateType(value string, fieldType FieldType) error {
	switch fieldType {
	case TypeDecimal:
		_, err := ParseDecimal(value)
		return err
	case TypeDate:
		_, err := ParseDate(value)
		return err
	case TypeUUID:
		_, err := uuid.Parse(value)
		return err
	}
	return nil
}

// ParseDecimal parses an amount cell, tolerating thousands separators and the
// exponent form raw XLSX numbers take. Length and exponent are bounded by
// valueobject.MaxAmountDigits.
func ParseDecimal(value string) (decimal.Decimal, error) {
	cleaned := valueobject.StripAmountText(value)
	if len(cleaned) > 2*valueobject.MaxAmountDigits {
		return decimal.Zero, fmt.Errorf("amount too long: %d characters", len(cleaned))
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, err
	}
	if exp := d.Exponent(); exp > valueobject.MaxAmountDigits || exp < -valueobject.MaxAmountDigits {
		return decimal.Zero, fmt.Errorf("amount out of range: %q", value)
	}
	return d, nil
}

// ParseDate parses a date cell in one of DateLayouts, or an Excel serial
// date as found in raw XLSX cells
func ParseDate(value string) (time.Time, error) {
	for _, layout := range DateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	if serial, err := strconv.ParseFloat(value, 64); err == nil && serial > 0 {
		t, err := excelize.ExcelDateToTime(serial, false)
		if err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", value)
}
