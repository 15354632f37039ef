package layouts

import (
	"testing"

	"github.com/JonMunkholm/stmtnorm/internal/core"
)

var builtinNames = []string{
	"cgd-cartao", "cgd-extrato", "cgd-conta",
	"kz-debit-credit", "kz-signed-amount",
	"ru-debit-credit", "ru-signed-amount",
	"generic-debit-credit", "generic-signed-amount",
}

func TestBuiltinRulesRegistered(t *testing.T) {
	for _, name := range builtinNames {
		rule, ok := core.Get(name)
		if !ok {
			t.Errorf("rule %q not registered", name)
			continue
		}
		if err := rule.Validate(); err != nil {
			t.Errorf("rule %q invalid: %v", name, err)
		}
	}

	rules := core.Rules()
	if len(rules) < len(builtinNames) {
		t.Fatalf("expected at least %d rules, got %d", len(builtinNames), len(rules))
	}
	for i := 1; i < len(rules); i++ {
		if rules[i-1].Priority > rules[i].Priority {
			t.Errorf("rules out of priority order at %d: %s(%d) before %s(%d)",
				i, rules[i-1].Name, rules[i-1].Priority, rules[i].Name, rules[i].Priority)
		}
	}
}

func TestBuiltinMapping(t *testing.T) {
	tests := []struct {
		name     string
		rows     [][]string
		wantRule string
		wantCols map[core.Field]int
	}{
		{
			name: "english debit credit",
			rows: [][]string{
				{"Date", "Operation", "Debit", "Credit", "Balance"},
				{"2024-01-05", "Shop", "100.00", "", "500.00"},
			},
			wantRule: "generic-debit-credit",
			wantCols: map[core.Field]int{
				core.FieldTransactionDate: 0, core.FieldDescription: 1,
				core.FieldDebit: 2, core.FieldCredit: 3, core.FieldBalanceAfter: 4,
			},
		},
		{
			name: "english signed amount",
			rows: [][]string{
				{"Posting Date", "Transaction Details", "Amount", "Currency"},
				{"01/15/2024", "Coffee", "-3.50", "USD"},
			},
			wantRule: "generic-signed-amount",
			wantCols: map[core.Field]int{
				core.FieldTransactionDate: 0, core.FieldDescription: 1,
				core.FieldAmount: 2, core.FieldCurrency: 3,
			},
		},
		{
			name: "russian signed amount",
			rows: [][]string{
				{"Дата", "Описание", "Сумма"},
				{"05.01.2024", "Оплата", "-100,00"},
			},
			wantRule: "ru-signed-amount",
			wantCols: map[core.Field]int{
				core.FieldTransactionDate: 0, core.FieldDescription: 1, core.FieldAmount: 2,
			},
		},
		{
			name: "russian debit credit",
			rows: [][]string{
				{"Дата операции", "Назначение платежа", "Дебет", "Кредит", "Остаток"},
				{"05.01.2024", "Оплата", "100,00", "", "900,00"},
			},
			wantRule: "ru-debit-credit",
			wantCols: map[core.Field]int{
				core.FieldTransactionDate: 0, core.FieldDescription: 1,
				core.FieldDebit: 2, core.FieldCredit: 3, core.FieldBalanceAfter: 4,
			},
		},
		{
			name: "russian headers matched by substring",
			rows: [][]string{
				{"Дата документа", "Краткое описание", "Сумма в тенге", "Плательщик", "ИНН плательщика", "Получатель"},
				{"05.01.2024", "Оплата", "-100,00", "ООО Ромашка", "7707083893", "ИП Иванов"},
			},
			wantRule: "ru-signed-amount",
			wantCols: map[core.Field]int{
				core.FieldTransactionDate: 0, core.FieldDescription: 1, core.FieldAmount: 2,
				core.FieldPayer: 3, core.FieldPayerTaxID: 4, core.FieldReceiver: 5,
			},
		},
		{
			name: "kazakh bilingual signed amount",
			rows: [][]string{
				{"Күні / Дата", "Төлем мақсаты / Назначение", "Сомасы / Сумма", "Жөнелтуші", "ЖСН / БСН", "Алушы"},
				{"05.01.2024", "Коммунальные услуги", "-12500,00", "ТОО Ромашка", "123456789012", "ИП Касымов"},
			},
			wantRule: "kz-signed-amount",
			wantCols: map[core.Field]int{
				core.FieldTransactionDate: 0, core.FieldDescription: 1, core.FieldAmount: 2,
				core.FieldPayer: 3, core.FieldPayerTaxID: 4, core.FieldReceiver: 5,
			},
		},
		{
			name: "kazakh debit credit",
			rows: [][]string{
				{"Операция күні", "Сипаттама", "Шығыс", "Кіріс", "Қалдық"},
				{"05.01.2024", "Дүкен", "1500,00", "", "98500,00"},
			},
			wantRule: "kz-debit-credit",
			wantCols: map[core.Field]int{
				core.FieldTransactionDate: 0, core.FieldDescription: 1,
				core.FieldDebit: 2, core.FieldCredit: 3, core.FieldBalanceAfter: 4,
			},
		},
		{
			name: "english incoming outgoing with sender",
			rows: [][]string{
				{"Date", "Payment purpose", "Outgoing", "Incoming", "Sender", "TIN"},
				{"2024-01-05", "Invoice 12", "", "250.00", "Acme Ltd", "GB-123 456"},
			},
			wantRule: "generic-debit-credit",
			wantCols: map[core.Field]int{
				core.FieldTransactionDate: 0, core.FieldDescription: 1,
				core.FieldDebit: 2, core.FieldCredit: 3,
				core.FieldPayer: 4, core.FieldPayerTaxID: 5,
			},
		},
		{
			name: "cgd account",
			rows: [][]string{
				{"Data mov.", "Data valor", "Descrição", "Montante", "Saldo contabilístico"},
				{"15-01-2024", "15-01-2024", "Compra", "-10,50", "100,00"},
			},
			wantRule: "cgd-conta",
			wantCols: map[core.Field]int{
				core.FieldTransactionDate: 0, core.FieldValueDate: 1, core.FieldDescription: 2,
				core.FieldAmount: 3, core.FieldBalanceAfter: 4,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := &core.RawGrid{Rows: tt.rows}
			m, err := core.MapSchema(g, core.Rules(), core.MapOptions{})
			if err != nil {
				t.Fatalf("MapSchema() error: %v", err)
			}
			if m.Rule != tt.wantRule {
				t.Errorf("Rule = %q, want %q", m.Rule, tt.wantRule)
			}
			for f, col := range tt.wantCols {
				if got, ok := m.Column(f); !ok || got != col {
					t.Errorf("%s column = %d (%v), want %d", f, got, ok, col)
				}
			}
		})
	}
}

func TestRussianDebitCredit_ZeroSideIsBlank(t *testing.T) {
	g := &core.RawGrid{Rows: [][]string{
		{"Дата операции", "Назначение платежа", "Дебет", "Кредит"},
		{"05.01.2024", "Оплата", "100,00", "0,00"},
		{"06.01.2024", "Зарплата", "0,00", "2500,00"},
	}}
	m, err := core.MapSchema(g, core.Rules(), core.MapOptions{})
	if err != nil {
		t.Fatalf("MapSchema() error: %v", err)
	}
	if !m.ZeroIsBlank {
		t.Fatalf("mapping from %s should treat zero as blank", m.Rule)
	}

	a := core.AssembleRecords(g, m, core.AssembleOptions{BaseCurrency: "RUB"})
	if len(a.RowErrors) != 0 {
		t.Fatalf("unexpected row errors: %v", a.RowErrors)
	}
	want := []string{"-100.00", "2500.00"}
	for i, rec := range a.Records {
		if got := core.FormatAmount(rec.Amount); got != want[i] {
			t.Errorf("record %d amount = %s, want %s", i, got, want[i])
		}
	}
}

func TestRussianSignedAmount_DotDecimals(t *testing.T) {
	g := &core.RawGrid{Rows: [][]string{
		{"Дата", "Описание", "Сумма"},
		{"05.01.2024", "Оплата", "-100.00"},
		{"06.01.2024", "Кафе", "-50.25"},
	}}
	m, err := core.MapSchema(g, core.Rules(), core.MapOptions{})
	if err != nil {
		t.Fatalf("MapSchema() error: %v", err)
	}
	if m.Rule != "ru-signed-amount" || m.DecimalSep != '.' {
		t.Fatalf("mapping = %s", m)
	}

	a := core.AssembleRecords(g, m, core.AssembleOptions{BaseCurrency: "RUB"})
	want := []string{"-100.00", "-50.25"}
	if len(a.Records) != len(want) {
		t.Fatalf("records=%d rowErrors=%v", len(a.Records), a.RowErrors)
	}
	for i, rec := range a.Records {
		if got := core.FormatAmount(rec.Amount); got != want[i] {
			t.Errorf("record %d amount = %s, want %s", i, got, want[i])
		}
	}
}

func TestKazakhSignedAmount_Counterparties(t *testing.T) {
	g := &core.RawGrid{Rows: [][]string{
		{"Күні / Дата", "Төлем мақсаты / Назначение", "Сомасы / Сумма", "Жөнелтуші", "ЖСН / БСН", "Алушы"},
		{"05.01.2024", "Коммунальные услуги", "-12500,00", "ТОО Ромашка", "1234-5678-9012", "ИП Касымов"},
		{"06.01.2024", "", "3000,00", "ТОО Ромашка", "", "ИП Касымов"},
	}}
	m, err := core.MapSchema(g, core.Rules(), core.MapOptions{})
	if err != nil {
		t.Fatalf("MapSchema() error: %v", err)
	}
	if m.Currency != "KZT" {
		t.Errorf("Currency = %q, want KZT", m.Currency)
	}

	a := core.AssembleRecords(g, m, core.AssembleOptions{BaseCurrency: "EUR"})
	if len(a.Records) != 2 {
		t.Fatalf("records=%d rowErrors=%v", len(a.Records), a.RowErrors)
	}

	first, second := a.Records[0], a.Records[1]
	if first.Currency != "KZT" || core.FormatAmount(first.Amount) != "-12500.00" {
		t.Errorf("first record = %s %s", core.FormatAmount(first.Amount), first.Currency)
	}
	if first.Payer != "ТОО Ромашка" || first.PayerTaxID != "123456789012" || first.Receiver != "ИП Касымов" {
		t.Errorf("first counterparties = %q %q %q", first.Payer, first.PayerTaxID, first.Receiver)
	}
	if second.Description != "ТОО Ромашка -> ИП Касымов" {
		t.Errorf("blank description fallback = %q", second.Description)
	}
}
