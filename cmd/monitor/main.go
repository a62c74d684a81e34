package main

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

const logLines = 50

// snapshot is the latest data collected in the background.
type snapshot struct {
	mu        sync.RWMutex
	metrics   map[string]float64
	scrapeErr error
	system    systemData
	disks     []diskRow
	diskErr   error
}

func (s *snapshot) refresh(cfg *monitorConfig) {
	var (
		metrics   map[string]float64
		scrapeErr error
	)
	if cfg.metricsEnabled {
		metrics, scrapeErr = fetchMetrics(cfg.metricsURL)
	} else {
		scrapeErr = fmt.Errorf("metrics disabled in %s", cfg.file)
	}
	sys, err := fetchSystemData()
	if err != nil {
		log.Printf("Error fetching system data: %v", err)
	}
	disks, diskErr := fetchDisks(cfg.monitoredPath)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics, s.scrapeErr = metrics, scrapeErr
	s.system = sys
	s.disks, s.diskErr = disks, diskErr
}

func collect(ctx context.Context, cfg *monitorConfig, snap *snapshot) {
	snap.refresh(cfg)
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap.refresh(cfg)
		}
	}
}

func main() {
	cfg, err := findConfig(configPaths)
	if err != nil {
		log.Fatalf("Error loading config file: %v\nPlease create a config.toml in one of the following locations:\n%v", err, configPaths)
	}
	log.Printf("Using config file: %s (metrics at %s)", cfg.file, cfg.metricsURL)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app := tview.NewApplication()
	pages := tview.NewPages()

	guard := newGuardPage()
	disks := newTable("Filesystems")
	system := newTable("System Data")
	logs := tview.NewTextView().SetDynamicColors(true).SetWordWrap(true)
	logs.SetTitle(" [::b]Audit Log ").SetBorder(true)

	pages.AddPage("guard", guard.root, true, true)
	pages.AddPage("disks", disks, true, false)
	pages.AddPage("system", system, true, false)
	pages.AddPage("logs", logs, true, false)

	app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() != tcell.KeyRune {
			return event
		}
		switch event.Rune() {
		case 'q', 'Q':
			cancel()
			app.Stop()
			return nil
		case 'g', 'G':
			pages.SwitchToPage("guard")
		case 'd', 'D':
			pages.SwitchToPage("disks")
		case 's', 'S':
			pages.SwitchToPage("system")
		case 'l', 'L':
			pages.SwitchToPage("logs")
		}
		return event
	})

	snap := &snapshot{}
	go collect(ctx, cfg, snap)

	go func() {
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			auditText, auditErr := readLastNLines(cfg.auditFile, logLines)
			app.QueueUpdateDraw(func() {
				snap.mu.RLock()
				defer snap.mu.RUnlock()

				guard.update(cfg, snap.metrics, snap.scrapeErr)
				updateSystemTable(system, snap.system)
				if snap.diskErr != nil {
					disks.Clear()
					disks.SetCell(0, 0, tview.NewTableCell(snap.diskErr.Error()).SetTextColor(tcell.ColorRed))
				} else {
					updateDiskTable(disks, snap.disks)
				}
				if auditErr != nil {
					logs.SetText(fmt.Sprintf("[red]Error reading %s: %v[white]", cfg.auditFile, auditErr))
				} else {
					logs.SetText(colorizeLog(auditText))
				}
			})
		}
	}()

	if err := app.SetRoot(pages, true).EnableMouse(true).Run(); err != nil {
		log.Fatalf("Error running application: %v", err)
	}
}
