package web

import (
	"context"
	"fmt"
	"io"

	"github.com/a-h/templ"

	"github.com/JonMunkholm/stmtnorm/internal/core"
)

const pageHead = `<!DOCTYPE html>
<html lang="en"><head><meta charset="utf-8"><title>Statement ledger</title>
<style>
body{font-family:system-ui,sans-serif;margin:2rem;color:#222}
table{border-collapse:collapse;width:100%}
th,td{border-bottom:1px solid #ddd;padding:.4rem .6rem;text-align:left;font-size:.9rem}
td.fp{font-family:monospace}
.normalized{color:#1a7f37}.quarantined{color:#b35900}
</style></head><body>
`

// ledgerPage renders every ledger entry, newest first.
func ledgerPage(entries []core.LedgerEntry, runs core.RunLimiterStatus) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, pageHead); err != nil {
			return err
		}
		fmt.Fprintf(w, "<h1>Statement ledger</h1>\n<p>%d processed inputs, %d of %d run slots busy.</p>\n",
			len(entries), runs.Active, runs.MaxConcurrent)
		for _, run := range runs.Runs {
			fmt.Fprintf(w, "<p>Running: %s trigger since %s.</p>\n",
				templ.EscapeString(run.Trigger), run.StartedAt.UTC().Format("15:04:05"))
		}

		if len(entries) == 0 {
			_, err := io.WriteString(w, "<p>Nothing processed yet.</p>\n</body></html>\n")
			return err
		}

		io.WriteString(w, "<table>\n<tr><th>Processed</th><th>File</th><th>Status</th><th>Reason</th><th>Output</th><th>Fingerprint</th></tr>\n")
		for i := len(entries) - 1; i >= 0; i-- {
			e := entries[i]
			fmt.Fprintf(w, "<tr><td>%s</td><td>%s</td><td class=%q>%s</td><td>%s</td><td>%s</td><td class=\"fp\" title=%q>%s</td></tr>\n",
				e.ProcessedAt.UTC().Format("2006-01-02 15:04:05"),
				templ.EscapeString(e.OriginalFileName),
				string(e.Status),
				templ.EscapeString(string(e.Status)),
				templ.EscapeString(string(e.Reason)),
				templ.EscapeString(e.OutputPath),
				e.Fingerprint,
				shortFP(e.Fingerprint),
			)
		}
		_, err := io.WriteString(w, "</table>\n</body></html>\n")
		return err
	})
}

func shortFP(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}
