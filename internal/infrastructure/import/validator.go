package csvimport

import (
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// FieldType is the expected type of a cell
type FieldType string

const (
	TypeString  FieldType = "string"
	TypeDecimal FieldType = "decimal"
	TypeDate    FieldType = "date"
)

// DefaultDateFormats are tried in order for TypeDate cells
var DefaultDateFormats = []string{time.DateOnly, time.RFC3339, "2006-01-02 15:04:05", "02/01/2006"}

// FieldRule defines validation rules for a column
type FieldRule struct {
	Column       string
	Type         FieldType
	Required     bool
	MaxLength    int
	MinValue     *decimal.Decimal
	ExclusiveMin bool
	MaxDecimals  int
	OneOf        []string
	DateFormats  []string
	Unique       bool
}

// FieldRuleBuilder builds a FieldRule fluently
type FieldRuleBuilder struct {
	rule FieldRule
}

// Field starts a rule for column
func Field(column string) *FieldRuleBuilder {
	return &FieldRuleBuilder{rule: FieldRule{Column: column, Type: TypeString}}
}

// Required rejects empty cells
func (b *FieldRuleBuilder) Required() *FieldRuleBuilder {
	b.rule.Required = true
	return b
}

// Decimal expects a decimal number
func (b *FieldRuleBuilder) Decimal() *FieldRuleBuilder {
	b.rule.Type = TypeDecimal
	return b
}

// Date expects a date in one of formats, or DefaultDateFormats
func (b *FieldRuleBuilder) Date(formats ...string) *FieldRuleBuilder {
	b.rule.Type = TypeDate
	b.rule.DateFormats = formats
	return b
}

// MaxLength limits the cell length in characters
func (b *FieldRuleBuilder) MaxLength(n int) *FieldRuleBuilder {
	b.rule.MaxLength = n
	return b
}

// Positive requires a decimal greater than zero
func (b *FieldRuleBuilder) Positive() *FieldRuleBuilder {
	zero := decimal.Zero
	b.rule.MinValue = &zero
	b.rule.ExclusiveMin = true
	return b
}

// MaxDecimals rejects decimals with more than n significant fraction digits
func (b *FieldRuleBuilder) MaxDecimals(n int) *FieldRuleBuilder {
	b.rule.MaxDecimals = n
	return b
}

// OneOf limits the cell to values, compared case insensitively
func (b *FieldRuleBuilder) OneOf(values ...string) *FieldRuleBuilder {
	b.rule.OneOf = values
	return b
}

// Unique rejects a value already seen in an earlier row
func (b *FieldRuleBuilder) Unique() *FieldRuleBuilder {
	b.rule.Unique = true
	return b
}

// Build returns the rule
func (b *FieldRuleBuilder) Build() FieldRule {
	return b.rule
}

// FieldValidator checks rows against rules and collects the failures
type FieldValidator struct {
	rules  []FieldRule
	seen   map[string]map[string]int // column -> value -> first row
	errors *ErrorCollection
}

// NewFieldValidator creates a validator that reports into errs
func NewFieldValidator(rules []FieldRule, errs *ErrorCollection) *FieldValidator {
	return &FieldValidator{
		rules:  rules,
		seen:   make(map[string]map[string]int),
		errors: errs,
	}
}

// ValidateRow checks every rule against row and reports whether all passed
func (v *FieldValidator) ValidateRow(row *Row) bool {
	ok := true
	for _, rule := range v.rules {
		if !v.validateField(row.LineNumber, rule, row.Get(rule.Column)) {
			ok = false
		}
	}
	return ok
}

func (v *FieldValidator) validateField(line int, rule FieldRule, value string) bool {
	if value == "" {
		if rule.Required {
			v.errors.addRequired(line, rule.Column)
			return false
		}
		return true
	}

	switch rule.Type {
	case TypeDecimal:
		d, err := decimal.NewFromString(value)
		if err != nil {
			v.errors.addType(line, rule.Column, rule.Type, value)
			return false
		}
		if rule.MaxDecimals > 0 && !d.Equal(d.Round(int32(rule.MaxDecimals))) {
			v.errors.Add(RowError{
				Row:     line,
				Column:  rule.Column,
				Code:    ErrCodeImportInvalidValue,
				Message: fmt.Sprintf("more than %d decimal places", rule.MaxDecimals),
				Value:   value,
			})
			return false
		}
		if rule.MinValue != nil && (d.LessThan(*rule.MinValue) || (rule.ExclusiveMin && d.Equal(*rule.MinValue))) {
			op := "at least"
			if rule.ExclusiveMin {
				op = "greater than"
			}
			v.errors.Add(RowError{
				Row:     line,
				Column:  rule.Column,
				Code:    ErrCodeImportInvalidRange,
				Message: fmt.Sprintf("must be %s %s", op, rule.MinValue),
				Value:   value,
			})
			return false
		}
	case TypeDate:
		if _, err := ParseDate(value, rule.DateFormats...); err != nil {
			v.errors.addType(line, rule.Column, rule.Type, value)
			return false
		}
	}

	if rule.MaxLength > 0 && utf8.RuneCountInString(value) > rule.MaxLength {
		v.errors.Add(RowError{
			Row:     line,
			Column:  rule.Column,
			Code:    ErrCodeImportInvalidLength,
			Message: fmt.Sprintf("longer than %d characters", rule.MaxLength),
		})
		return false
	}

	if len(rule.OneOf) > 0 && !slices.ContainsFunc(rule.OneOf, func(s string) bool { return strings.EqualFold(s, value) }) {
		v.errors.Add(RowError{
			Row:     line,
			Column:  rule.Column,
			Code:    ErrCodeImportInvalidValue,
			Message: "must be one of " + strings.Join(rule.OneOf, ", "),
			Value:   value,
		})
		return false
	}

	if rule.Unique {
		if v.seen[rule.Column] == nil {
			v.seen[rule.Column] = make(map[string]int)
		}
		if first, dup := v.seen[rule.Column][value]; dup {
			v.errors.Add(RowError{
				Row:     line,
				Column:  rule.Column,
				Code:    ErrCodeImportDuplicateInFile,
				Message: fmt.Sprintf("duplicate value (first seen in row %d)", first),
				Value:   value,
			})
			return false
		}
		v.seen[rule.Column][value] = line
	}
	return true
}

// ParseDate parses value with the first matching format. Without formats
// DefaultDateFormats are tried. Date-only values are local midnight.
func ParseDate(value string, formats ...string) (time.Time, error) {
	if len(formats) == 0 {
		formats = DefaultDateFormats
	}
	for _, layout := range formats {
		if t, err := time.ParseInLocation(layout, value, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", value)
}
