package core

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteCanonical(t *testing.T) {
	vd := civil.Date{Year: 2024, Month: 1, Day: 6}
	bal := dec("96.5")
	recs := []CanonicalRecord{
		{
			TransactionDate: civil.Date{Year: 2024, Month: 1, Day: 5},
			ValueDate:       &vd,
			Description:     `Shop "A", Main St`,
			Amount:          dec("-3.5"),
			Currency:        "EUR",
			BalanceAfter:    &bal,
			ReferenceID:     "TX-1",
			SourceFile:      "jan.csv",
			SourceRowIndex:  1,
		},
		{
			TransactionDate: civil.Date{Year: 2024, Month: 1, Day: 7},
			Description:     "Interest",
			Amount:          dec("0.0125"),
			Currency:        "EUR",
			SourceFile:      "jan.csv",
			SourceRowIndex:  3,
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteCanonical(&buf, recs))

	want := "transaction_date,value_date,description,amount,currency,balance_after,reference_id,source_file,source_row_index\n" +
		"2024-01-05,2024-01-06,\"Shop \"\"A\"\", Main St\",-3.50,EUR,96.50,TX-1,jan.csv,1\n" +
		"2024-01-07,,Interest,0.0125,EUR,,,jan.csv,3\n"
	assert.Equal(t, want, buf.String())

	got, err := ReadCanonical(&buf)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, recs[0].Description, got[0].Description)
	assert.True(t, got[0].Amount.Equal(recs[0].Amount))
	assert.Equal(t, vd, *got[0].ValueDate)
	assert.Nil(t, got[1].ValueDate)
	assert.Nil(t, got[1].BalanceAfter)
	assert.Equal(t, 3, got[1].SourceRowIndex)
}

func TestWriteCanonical_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCanonical(&buf, nil))
	assert.Equal(t, strings.Join(CanonicalColumns, ",")+"\n", buf.String())
}

func TestReadCanonical_Errors(t *testing.T) {
	header := strings.Join(CanonicalColumns, ",")
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"wrong header", strings.Replace(header, "amount", "sum", 1) + "\n"},
		{"bad date", header + "\n2024-13-01,,x,1.00,USD,,,f,1\n"},
		{"bad amount", header + "\n2024-01-01,,x,one,USD,,,f,1\n"},
		{"short row", header + "\n2024-01-01,,x\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadCanonical(strings.NewReader(tt.input))
			assert.Error(t, err)
		})
	}
}

func TestOutputName(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"statement.csv", "normalized_statement.csv"},
		{"statement.xlsx", "normalized_statement.csv"},
		{"jan.2024.txt", "normalized_jan.2024.csv"},
		{"no_extension", "normalized_no_extension.csv"},
		{"sub/dir/file.xls", "normalized_file.csv"},
		{`C:\exports\file.csv`, "normalized_file.csv"},
		{".csv", "normalized_.csv.csv"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, OutputName(tt.input))
		})
	}
}

func TestArchiveName(t *testing.T) {
	at := time.Date(2024, 1, 15, 13, 30, 0, 5, time.FixedZone("CET", 3600))

	assert.Equal(t, "processed/20240115T123000.000000005Z_jan.csv",
		ArchiveName(ArchiveProcessed, at, "jan.csv"))
	assert.Equal(t, "quarantined/20240115T123000.000000005Z_jan.csv",
		ArchiveName(ArchiveQuarantined, at, "in/jan.csv"))
	assert.Equal(t, "duplicate/20240115T123000.000000005Z_jan.csv.json",
		NoteName(ArchiveName(ArchiveDuplicate, at, "jan.csv")))
}

func TestArchiveNote_Marshal(t *testing.T) {
	note := ArchiveNote{
		FileName:    "junk.csv",
		Fingerprint: Fingerprint([]byte("junk")),
		Status:      StatusQuarantined,
		ArchivedAt:  time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		Reason:      KindUnmappableSchema,
		Delimiter:   delimiterName(';'),
	}
	data, err := note.Marshal()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "quarantined", decoded["status"])
	assert.Equal(t, string(KindUnmappableSchema), decoded["reason"])
	assert.Equal(t, "semicolon", decoded["delimiter"])
	assert.NotContains(t, decoded, "output_path")
}

func TestCounterparties(t *testing.T) {
	recs := []CanonicalRecord{
		{Amount: dec("-100"), Payer: "Acme", PayerTaxID: "123", Receiver: "Us"},
		{Amount: dec("-50"), Payer: "Acme", PayerTaxID: "123", Receiver: "Us"},
		{Amount: dec("20"), Payer: "Acme", Receiver: "Us"},
		{Amount: dec("5"), Payer: "Beta"},
		{Amount: dec("1")},
	}

	got := Counterparties(recs, 0)
	require.Len(t, got, 4)
	assert.Equal(t, "Us", got[0].Name)
	assert.Equal(t, FieldReceiver, got[0].Role)
	assert.Equal(t, 3, got[0].Records)
	assert.True(t, got[0].Net.Equal(dec("-130")))

	assert.Equal(t, "Acme", got[1].Name)
	assert.Equal(t, "123", got[1].TaxID)
	assert.Equal(t, FieldPayer, got[1].Role)
	assert.Equal(t, 2, got[1].Records)
	assert.True(t, got[1].Net.Equal(dec("-150")))

	// Same name without a tax ID is a separate counterparty.
	assert.Equal(t, "Acme", got[2].Name)
	assert.Empty(t, got[2].TaxID)
	assert.Equal(t, "Beta", got[3].Name)

	assert.Len(t, Counterparties(recs, 2), 2)
	assert.Empty(t, Counterparties([]CanonicalRecord{{Amount: dec("1")}}, 0))
}

func TestFingerprint(t *testing.T) {
	// sha256("")
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", Fingerprint(nil))
	assert.Equal(t, Fingerprint([]byte("a,b\n")), Fingerprint([]byte("a,b\n")))
	assert.NotEqual(t, Fingerprint([]byte("a,b\n")), Fingerprint([]byte("a,b\r\n")))
	assert.Equal(t, "e3b0c44298fc", shortFingerprint(Fingerprint(nil)))
}

func TestDelimiterName(t *testing.T) {
	assert.Equal(t, "", delimiterName(0))
	assert.Equal(t, "tab", delimiterName('\t'))
	assert.Equal(t, "comma", delimiterName(','))
	assert.Equal(t, "|", delimiterName('|'))
}
