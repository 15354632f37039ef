package layouts

import "github.com/JonMunkholm/stmtnorm/internal/core"

// Kazakhstan bank exports head their columns in Kazakh, often with the
// Russian word alongside ("Күні / Дата"). Amounts are in tenge unless a
// currency column says otherwise.

func init() {
	for _, rule := range kazakhRules() {
		core.Register(rule)
	}
}

var (
	kazakhDate = []string{"күні", "операция күні", "төлем күні", "*күні*"}
	kazakhDesc = []string{
		"төлем", "төлем мақсаты", "сипаттама", "түсініктеме",
		"*мақсат*", "*сипаттам*", "*назнач*", "*описан*",
	}
	kazakhCounterparty = []core.ColumnPattern{
		col(core.FieldPayerTaxID, false, false, "жсн", "бсн", "иин", "бин", "жсн*", "бсн*", "иин*", "бин*", "инн*"),
		col(core.FieldPayer, false, false, "жөнелтуші", "төлеуші", "*жөнелтуш*", "*төлеуш*", "*плательщ*", "*отправител*"),
		col(core.FieldReceiver, false, false, "алушы", "*алушы*", "*получател*"),
	}
)

func kazakhRules() []core.LayoutRule {
	base := func(name string, priority int, sign core.SignConvention, cols ...core.ColumnPattern) core.LayoutRule {
		columns := append([]core.ColumnPattern{
			col(core.FieldTransactionDate, true, false, kazakhDate...),
			col(core.FieldDescription, true, false, kazakhDesc...),
		}, cols...)
		columns = append(columns,
			col(core.FieldBalanceAfter, false, false, "қалдық", "*қалдық*", "*остаток*"),
			col(core.FieldCurrency, false, false, "валюта", "валютасы", "*валюта*"),
			col(core.FieldReferenceID, false, false, "құжат нөмірі", "нөмір", "*нөмір*"),
		)
		return core.LayoutRule{
			Name:             name,
			Priority:         priority,
			Sign:             sign,
			ZeroIsBlank:      sign == core.SignDebitCredit,
			DateFormat:       "DD.MM.YYYY",
			DecimalSeparator: ",",
			Currency:         "KZT",
			Columns:          append(columns, kazakhCounterparty...),
		}
	}

	return []core.LayoutRule{
		base("kz-debit-credit", PriorityRegional-10, core.SignDebitCredit,
			col(core.FieldDebit, true, false, "шығыс", "дебет", "*шығыс*", "*дебет*"),
			col(core.FieldCredit, true, false, "кіріс", "кредит", "*кіріс*", "*кредит*"),
		),
		base("kz-signed-amount", PriorityRegional-5, core.SignSingle,
			col(core.FieldAmount, true, false, "сомасы", "сома", "*сомас*", "*сумм*"),
		),
	}
}
