package core

import (
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

// SignConvention says how a layout represents inflow and outflow.
type SignConvention string

const (
	// SignSingle is one signed amount column.
	SignSingle SignConvention = "single"
	// SignDebitCredit is a pair of unsigned debit and credit columns.
	SignDebitCredit SignConvention = "debit_credit"
)

// ColumnPattern binds header texts to a field role.
//
// A pattern matches a header cell after both are normalized (case folded,
// punctuation dropped, whitespace collapsed). A trailing "*" makes it a
// prefix match and a leading "*" a substring match ("*сумм*" accepts
// "Сумма в тенге"). With Fuzzy set, headers within the mapper's similarity
// threshold also match.
type ColumnPattern struct {
	Field    Field    `yaml:"field"`
	Patterns []string `yaml:"patterns"`
	Fuzzy    bool     `yaml:"fuzzy,omitempty"`
	Required bool     `yaml:"required,omitempty"`
}

// LayoutRule is a declarative description of one bank export layout.
// Lower Priority values are evaluated first.
type LayoutRule struct {
	Name               string          `yaml:"name"`
	Priority           int             `yaml:"priority"`
	Sign               SignConvention  `yaml:"sign"`
	DateFormat         string          `yaml:"date_format,omitempty"`
	DecimalSeparator   string          `yaml:"decimal_separator,omitempty"`
	ThousandsSeparator string          `yaml:"thousands_separator,omitempty"`
	InvertSign         bool            `yaml:"invert_sign,omitempty"`
	ZeroIsBlank        bool            `yaml:"zero_is_blank,omitempty"`
	Currency           string          `yaml:"currency,omitempty"`
	Columns            []ColumnPattern `yaml:"columns"`
}

// Validate checks that the rule can satisfy the required-field invariant.
func (r LayoutRule) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("layout rule has no name")
	}

	required := make(map[Field]bool)
	seen := make(map[Field]bool)
	for _, c := range r.Columns {
		if !knownField(c.Field) {
			return fmt.Errorf("layout %q: unknown field %q", r.Name, c.Field)
		}
		if seen[c.Field] {
			return fmt.Errorf("layout %q: field %q listed twice", r.Name, c.Field)
		}
		seen[c.Field] = true
		if len(c.Patterns) == 0 {
			return fmt.Errorf("layout %q: field %q has no patterns", r.Name, c.Field)
		}
		if c.Required {
			required[c.Field] = true
		}
	}

	if !required[FieldTransactionDate] || !required[FieldDescription] {
		return fmt.Errorf("layout %q: transaction_date and description must be required", r.Name)
	}

	switch r.Sign {
	case SignSingle, "":
		if !required[FieldAmount] {
			return fmt.Errorf("layout %q: amount must be required for single sign convention", r.Name)
		}
		if seen[FieldDebit] || seen[FieldCredit] {
			return fmt.Errorf("layout %q: debit/credit columns need sign %q", r.Name, SignDebitCredit)
		}
	case SignDebitCredit:
		if !required[FieldDebit] || !required[FieldCredit] {
			return fmt.Errorf("layout %q: debit and credit must be required for %s", r.Name, SignDebitCredit)
		}
		if seen[FieldAmount] {
			return fmt.Errorf("layout %q: amount column conflicts with debit/credit", r.Name)
		}
	default:
		return fmt.Errorf("layout %q: unknown sign convention %q", r.Name, r.Sign)
	}

	if _, err := r.decimalSep(); err != nil {
		return err
	}
	if r.Currency != "" {
		if _, ok := NormalizeCurrency(r.Currency); !ok {
			return fmt.Errorf("layout %q: invalid currency %q", r.Name, r.Currency)
		}
	}
	return nil
}

// decimalSep returns the hinted decimal separator, or 0 when the rule leaves
// it to inference.
func (r LayoutRule) decimalSep() (rune, error) {
	switch r.DecimalSeparator {
	case "":
		switch r.ThousandsSeparator {
		case ",":
			return '.', nil
		case ".":
			return ',', nil
		}
		return 0, nil
	case ".", ",":
		sep, _ := utf8.DecodeRuneInString(r.DecimalSeparator)
		return sep, nil
	}
	return 0, fmt.Errorf("layout %q: decimal separator must be \".\" or \",\", got %q", r.Name, r.DecimalSeparator)
}

func knownField(f Field) bool {
	switch f {
	case FieldTransactionDate, FieldValueDate, FieldDescription, FieldAmount, FieldCurrency,
		FieldBalanceAfter, FieldReferenceID, FieldDebit, FieldCredit,
		FieldPayer, FieldPayerTaxID, FieldReceiver:
		return true
	}
	return false
}

type layoutFile struct {
	Layouts []LayoutRule `yaml:"layouts"`
}

// LoadRulesYAML parses a layout library document:
//
//	layouts:
//	  - name: acme-bank
//	    priority: 10
//	    sign: debit_credit
//	    date_format: DD.MM.YYYY
//	    columns:
//	      - {field: transaction_date, patterns: ["posting date"], required: true}
//
// Every rule is validated; the first invalid rule fails the whole document.
func LoadRulesYAML(data []byte) ([]LayoutRule, error) {
	var doc layoutFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse layouts: %w", err)
	}
	for i := range doc.Layouts {
		if doc.Layouts[i].Sign == "" {
			doc.Layouts[i].Sign = SignSingle
		}
		if err := doc.Layouts[i].Validate(); err != nil {
			return nil, err
		}
	}
	return doc.Layouts, nil
}

// LoadRulesFile reads a YAML layout library from disk.
func LoadRulesFile(path string) ([]LayoutRule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read layouts file: %w", err)
	}
	return LoadRulesYAML(data)
}
