package journal

import (
	"bytes"
	"fmt"
	"os"
	"text/template"
	"time"
)

// RunSummary describes one simulation or sensitivity run for the Org mode
// run log.
type RunSummary struct {
	RunID   string
	Kind    string // "exposure" or "sensitivity"
	Created time.Time
	Asof    time.Time
	Grid    string

	Trades    int
	Dates     int
	Samples   int
	Depth     int
	Precision string
	Elapsed   time.Duration

	CubePath    string
	JournalPath string

	NettingSets []NettingSetSummary
	Notes       []string
}

type NettingSetSummary struct {
	ID       string
	PeakDate time.Time
	PeakPFE  float64
	PeakEPE  float64
	Paths    int
}

var summaryFuncs = template.FuncMap{
	"orTime": func(t time.Time) time.Time {
		if t.IsZero() {
			return time.Now()
		}
		return t
	},
	"date": func(t time.Time) string { return t.Format(time.DateOnly) },
}

var summaryTemplate = template.Must(template.New("run").Funcs(summaryFuncs).Parse(SummaryOrgTemplate))

// Org renders the summary as an Org mode entry.
func (s *RunSummary) Org() (string, error) {
	buf := new(bytes.Buffer)
	if err := summaryTemplate.Execute(buf, s); err != nil {
		return "", fmt.Errorf("journal: render summary: %w", err)
	}
	return buf.String(), nil
}

// AppendOrg appends the rendered summary to the file at path.
func (s *RunSummary) AppendOrg(path string) error {
	out, err := s.Org()
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("journal: open %s: %w", path, err)
	}
	if _, err := f.WriteString(out); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

const SummaryOrgTemplate = `
* RUN: {{.Kind}} {{date .Asof}}
:PROPERTIES:
:RUN_ID:      {{if .RunID}}{{.RunID}}{{else}}(run-id?){{end}}
:KIND:        {{.Kind}}
:ASOF:        {{date .Asof}}
:GRID:        {{if .Grid}}{{.Grid}}{{else}}(grid?){{end}}
:TRADES:      {{.Trades}}
:DATES:       {{.Dates}}
:SAMPLES:     {{.Samples}}
:DEPTH:       {{.Depth}}
:PRECISION:   {{.Precision}}
:ELAPSED:     {{.Elapsed}}
:CREATED:     [{{(orTime .Created).Format "2006-01-02 Mon 15:04"}}]
:END:
{{- if or .CubePath .JournalPath }}

** Outputs
{{- if .CubePath }}
- Cube:    [[file:{{.CubePath}}]]
{{- end }}
{{- if .JournalPath }}
- Journal: [[file:{{.JournalPath}}]]
{{- end }}
{{- end }}
{{- if .NettingSets }}

** Netting Sets
| Netting set | Paths | Peak date | Peak EPE | Peak PFE |
|-------------+-------+-----------+----------+----------|
{{- range .NettingSets }}
| {{.ID}} | {{.Paths}} | {{date .PeakDate}} | {{printf "%.2f" .PeakEPE}} | {{printf "%.2f" .PeakPFE}} |
{{- end }}
{{- end }}
{{- if .Notes }}

** Observations
{{- range .Notes }}
- {{.}}
{{- end }}
{{- end }}
`
