package layouts

import "github.com/JonMunkholm/stmtnorm/internal/core"

// Caixa Geral de Depósitos CSV exports. The card statement splits debit and
// credit; the account statements carry one signed movement column.

func init() {
	for _, rule := range cgdRules() {
		core.Register(rule)
	}
}

func cgdRules() []core.LayoutRule {
	base := func(name string, priority int, sign core.SignConvention, dateCol string, cols ...core.ColumnPattern) core.LayoutRule {
		return core.LayoutRule{
			Name:             name,
			Priority:         priority,
			Sign:             sign,
			ZeroIsBlank:      sign == core.SignDebitCredit,
			DateFormat:       "DD-MM-YYYY",
			DecimalSeparator: ",",
			Currency:         "EUR",
			Columns: append([]core.ColumnPattern{
				col(core.FieldTransactionDate, true, false, dateCol),
				col(core.FieldDescription, true, false, "descrição"),
				col(core.FieldValueDate, false, false, "data valor"),
				col(core.FieldBalanceAfter, false, false, "saldo contabilístico", "saldo disponível", "saldo"),
			}, cols...),
		}
	}

	return []core.LayoutRule{
		base("cgd-cartao", PriorityBank, core.SignDebitCredit, "data",
			col(core.FieldDebit, true, false, "débito"),
			col(core.FieldCredit, true, false, "crédito"),
		),
		base("cgd-extrato", PriorityBank+1, core.SignSingle, "data mov",
			col(core.FieldAmount, true, false, "movimento"),
		),
		base("cgd-conta", PriorityBank+2, core.SignSingle, "data mov",
			col(core.FieldAmount, true, false, "montante"),
		),
	}
}
