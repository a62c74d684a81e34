package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"git.uuxo.net/uuxo/maxdiskusage/internal/utils"
)

// Thresholds for color coding
const (
	HighUsage   = 80.0
	MediumUsage = 50.0
)

func usageColor(pct float64) tcell.Color {
	switch {
	case pct > HighUsage:
		return tcell.ColorRed
	case pct > MediumUsage:
		return tcell.ColorYellow
	default:
		return tcell.ColorGreen
	}
}

func header(t *tview.Table, cols ...string) {
	t.Clear()
	for i, c := range cols {
		t.SetCell(0, i, tview.NewTableCell(c).SetAttributes(tcell.AttrBold))
	}
}

func newTable(title string) *tview.Table {
	t := tview.NewTable().SetBorders(false)
	t.SetTitle(" [::b]" + title + " ").SetBorder(true)
	return t
}

// guardPage shows the daemon's view of the monitored filesystem.
type guardPage struct {
	root    *tview.Flex
	summary *tview.Table
	series  *tview.Table
}

func newGuardPage() *guardPage {
	p := &guardPage{summary: newTable("Guard"), series: newTable("Guard Metrics")}
	p.root = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(p.summary, 8, 0, false).
		AddItem(p.series, 0, 1, false)
	return p
}

func (p *guardPage) update(cfg *monitorConfig, metrics map[string]float64, scrapeErr error) {
	header(p.summary, "Property", "Value")
	p.summary.SetCell(1, 0, tview.NewTableCell("Monitored path"))
	p.summary.SetCell(1, 1, tview.NewTableCell(cfg.monitoredPath))
	p.summary.SetCell(2, 0, tview.NewTableCell("Metrics URL"))
	p.summary.SetCell(2, 1, tview.NewTableCell(cfg.metricsURL))

	if scrapeErr != nil {
		p.summary.SetCell(3, 0, tview.NewTableCell("Status"))
		p.summary.SetCell(3, 1, tview.NewTableCell(scrapeErr.Error()).SetTextColor(tcell.ColorRed))
		p.series.Clear()
		return
	}

	used := metrics[metricPrefix+"used_percent"]
	p.summary.SetCell(3, 0, tview.NewTableCell("Free"))
	p.summary.SetCell(3, 1, tview.NewTableCell(fmt.Sprintf("%.0f MB", metrics[metricPrefix+"free_megabytes"])))
	p.summary.SetCell(4, 0, tview.NewTableCell("Used"))
	p.summary.SetCell(4, 1, tview.NewTableCell(fmt.Sprintf("%.0f%%", used)).SetTextColor(usageColor(used)))
	p.summary.SetCell(5, 0, tview.NewTableCell("Blocked"))
	p.summary.SetCell(5, 1, tview.NewTableCell(fmt.Sprintf("%.0f", sumOutcome(metrics, "block"))))
	p.summary.SetCell(6, 0, tview.NewTableCell("Warned"))
	p.summary.SetCell(6, 1, tview.NewTableCell(fmt.Sprintf("%.0f", sumOutcome(metrics, "warn"))))

	header(p.series, "Series", "Value")
	for i, s := range sortedSamples(metrics) {
		p.series.SetCell(i+1, 0, tview.NewTableCell(s.key))
		p.series.SetCell(i+1, 1, tview.NewTableCell(fmt.Sprintf("%.2f", s.value)))
	}
}

// sumOutcome adds up decisions_total over all reasons for outcome.
func sumOutcome(metrics map[string]float64, outcome string) float64 {
	var total float64
	needle := fmt.Sprintf("outcome=%q", outcome)
	for k, v := range metrics {
		if strings.HasPrefix(k, metricPrefix+"decisions_total{") && strings.Contains(k, needle) {
			total += v
		}
	}
	return total
}

func updateDiskTable(t *tview.Table, rows []diskRow) {
	header(t, "Mount", "Type", "Size", "Free", "Used%", "")
	for i, r := range rows {
		t.SetCell(i+1, 0, tview.NewTableCell(r.mountpoint))
		t.SetCell(i+1, 1, tview.NewTableCell(r.fstype))
		t.SetCell(i+1, 2, tview.NewTableCell(utils.FormatBytes(r.total)))
		t.SetCell(i+1, 3, tview.NewTableCell(utils.FormatBytes(r.free)))
		t.SetCell(i+1, 4, tview.NewTableCell(fmt.Sprintf("%.1f", r.usedPercent)).SetTextColor(usageColor(r.usedPercent)))
		if r.monitored {
			t.SetCell(i+1, 5, tview.NewTableCell("guarded").SetTextColor(tcell.ColorAqua))
		}
	}
}

func updateSystemTable(t *tview.Table, sd systemData) {
	header(t, "Metric", "Value")
	t.SetCell(1, 0, tview.NewTableCell("CPU Usage"))
	t.SetCell(1, 1, tview.NewTableCell(fmt.Sprintf("%.2f%%", sd.cpuUsage)).SetTextColor(usageColor(sd.cpuUsage)))
	t.SetCell(2, 0, tview.NewTableCell("Memory Usage"))
	t.SetCell(2, 1, tview.NewTableCell(fmt.Sprintf("%.2f%%", sd.memUsage)).SetTextColor(usageColor(sd.memUsage)))
	t.SetCell(3, 0, tview.NewTableCell("CPU Cores"))
	t.SetCell(3, 1, tview.NewTableCell(fmt.Sprintf("%d", sd.cores)))
}

// colorizeLog highlights logrus levels and blocked statements.
func colorizeLog(content string) string {
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		switch {
		case strings.Contains(line, "BLOCKING QUERY"), strings.Contains(line, "statement_blocked"),
			strings.Contains(line, "level=error"):
			lines[i] = "[red]" + tview.Escape(line) + "[white]"
		case strings.Contains(line, "level=warn"), strings.Contains(line, "statement_warn"):
			lines[i] = "[yellow]" + tview.Escape(line) + "[white]"
		default:
			lines[i] = tview.Escape(line)
		}
	}
	return strings.Join(lines, "\n")
}

// readLastNLines returns up to n trailing lines of the file, reading at
// most the final 1 MiB.
func readLastNLines(filePath string, n int) (string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return "", err
	}
	const window = 1024 * 1024
	if st.Size() > window {
		if _, err := f.Seek(-window, io.SeekEnd); err != nil {
			return "", err
		}
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return "", err
	}

	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n"), nil
}
