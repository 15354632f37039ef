package layouts

import "github.com/JonMunkholm/stmtnorm/internal/core"

// Russian-language exports write dates day-first with dots and use a
// decimal comma.

func init() {
	registerRussianDebitCredit()
	registerRussianSignedAmount()
}

var (
	russianDate = []string{
		"дата", "дата операции", "дата проводки", "дата совершения операции",
		"дата документа", "дата транзакции", "дата*",
	}
	russianValueDate = []string{"дата валютирования", "дата списания", "дата обработки"}
	russianDesc      = []string{
		"описание", "назначение платежа", "назначение", "описание операции",
		"содержание операции", "операция", "комментарий", "основание",
		"*назнач*", "*описан*", "*коммент*",
	}
	russianBalance   = []string{"остаток", "баланс", "исходящий остаток", "остаток после операции"}
	russianCurrency  = []string{"валюта", "валюта операции", "валюта счета"}
	russianReference = []string{"номер документа", "№ документа", "номер", "№", "номер операции"}

	// Tax ID comes before payer so "ИНН плательщика" is not taken as a name.
	russianCounterparty = []core.ColumnPattern{
		col(core.FieldPayerTaxID, false, false, "инн", "инн*", "бин", "бин*", "иин", "иин*"),
		col(core.FieldPayer, false, false, "плательщик", "*плательщ*", "*отправител*", "*контрагент*"),
		col(core.FieldReceiver, false, false, "получатель", "*получател*", "наш счет"),
	}
)

func registerRussianDebitCredit() {
	core.Register(core.LayoutRule{
		Name:             "ru-debit-credit",
		Priority:         PriorityRegional,
		Sign:             core.SignDebitCredit,
		ZeroIsBlank:      true,
		DateFormat:       "DD.MM.YYYY",
		DecimalSeparator: ",",
		Columns: append([]core.ColumnPattern{
			col(core.FieldTransactionDate, true, true, russianDate...),
			col(core.FieldDescription, true, true, russianDesc...),
			col(core.FieldDebit, true, true, "дебет", "расход", "списание", "сумма по дебету", "сумма списания"),
			col(core.FieldCredit, true, true, "кредит", "приход", "зачисление", "поступление", "сумма по кредиту", "сумма зачисления"),
			col(core.FieldValueDate, false, false, russianValueDate...),
			col(core.FieldBalanceAfter, false, true, russianBalance...),
			col(core.FieldCurrency, false, false, russianCurrency...),
			col(core.FieldReferenceID, false, false, russianReference...),
		}, russianCounterparty...),
	})
}

func registerRussianSignedAmount() {
	core.Register(core.LayoutRule{
		Name:             "ru-signed-amount",
		Priority:         PriorityRegional + 10,
		Sign:             core.SignSingle,
		DateFormat:       "DD.MM.YYYY",
		DecimalSeparator: ",",
		Columns: append([]core.ColumnPattern{
			col(core.FieldTransactionDate, true, true, russianDate...),
			col(core.FieldDescription, true, true, russianDesc...),
			col(core.FieldAmount, true, true, "сумма", "сумма операции", "сумма в валюте счета", "сумма в валюте операции", "сумма*", "*сумм*"),
			col(core.FieldValueDate, false, false, russianValueDate...),
			col(core.FieldBalanceAfter, false, true, russianBalance...),
			col(core.FieldCurrency, false, false, russianCurrency...),
			col(core.FieldReferenceID, false, false, russianReference...),
		}, russianCounterparty...),
	})
}
