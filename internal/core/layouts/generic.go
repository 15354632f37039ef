package layouts

import "github.com/JonMunkholm/stmtnorm/internal/core"

func init() {
	registerGenericDebitCredit()
	registerGenericSignedAmount()
}

var (
	englishDate = []string{
		"date", "transaction date", "trans date", "posting date", "posted date",
		"booking date", "operation date", "txn date",
	}
	englishValueDate = []string{"value date", "settlement date", "effective date"}
	englishDesc      = []string{
		"description", "operation", "details", "transaction details", "narrative",
		"memo", "payee", "particulars", "transaction description", "reference text",
		"purpose", "payment purpose", "comment", "comments", "*purpose*",
	}
	englishBalance   = []string{"balance", "running balance", "balance after", "closing balance", "available balance"}
	englishCurrency  = []string{"currency", "ccy", "curr"}
	englishReference = []string{"reference", "ref", "ref no", "reference number", "transaction id", "check number", "cheque number"}

	englishCounterparty = []core.ColumnPattern{
		col(core.FieldPayerTaxID, false, false, "tin", "tax id", "vat", "vat number", "iin", "payer tin", "payer tax id"),
		col(core.FieldPayer, false, false, "payer", "payer name", "sender", "sender name", "counterparty"),
		col(core.FieldReceiver, false, false, "receiver", "recipient", "beneficiary*", "account name"),
	}
)

// registerGenericDebitCredit covers English exports with unsigned money-out
// and money-in columns.
func registerGenericDebitCredit() {
	core.Register(core.LayoutRule{
		Name:     "generic-debit-credit",
		Priority: PriorityGenericSplit,
		Sign:     core.SignDebitCredit,
		Columns: append([]core.ColumnPattern{
			col(core.FieldTransactionDate, true, true, englishDate...),
			col(core.FieldDescription, true, true, englishDesc...),
			col(core.FieldDebit, true, true, "debit", "debits", "withdrawal*", "money out", "paid out", "debit amount", "outflow", "outgoing*"),
			col(core.FieldCredit, true, true, "credit", "credits", "deposit*", "money in", "paid in", "credit amount", "inflow", "incoming*"),
			col(core.FieldValueDate, false, false, englishValueDate...),
			col(core.FieldBalanceAfter, false, true, englishBalance...),
			col(core.FieldCurrency, false, false, englishCurrency...),
			col(core.FieldReferenceID, false, false, englishReference...),
		}, englishCounterparty...),
	})
}

// registerGenericSignedAmount covers English exports with one signed amount.
func registerGenericSignedAmount() {
	core.Register(core.LayoutRule{
		Name:     "generic-signed-amount",
		Priority: PriorityGenericAmt,
		Sign:     core.SignSingle,
		Columns: append([]core.ColumnPattern{
			col(core.FieldTransactionDate, true, true, englishDate...),
			col(core.FieldDescription, true, true, englishDesc...),
			col(core.FieldAmount, true, true, "amount", "transaction amount", "amount*", "sum", "value", "net amount"),
			col(core.FieldValueDate, false, false, englishValueDate...),
			col(core.FieldBalanceAfter, false, true, englishBalance...),
			col(core.FieldCurrency, false, false, englishCurrency...),
			col(core.FieldReferenceID, false, false, englishReference...),
		}, englishCounterparty...),
	})
}
