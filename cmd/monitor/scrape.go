package main

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/common/expfmt"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

const metricPrefix = "maxdiskusage_"

var httpClient = &http.Client{
	Timeout: 5 * time.Second,
	Transport: &http.Transport{
		MaxIdleConns:    10,
		IdleConnTimeout: 30 * time.Second,
	},
}

// sample is one scraped series, keyed by name plus rendered labels.
type sample struct {
	key   string
	value float64
}

func fetchMetrics(url string) (map[string]float64, error) {
	resp, err := httpClient.Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch metrics: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("metrics endpoint returned %s", resp.Status)
	}
	return parseMetrics(io.LimitReader(resp.Body, 1024*1024))
}

// parseMetrics keeps the guard's own series from a text exposition.
func parseMetrics(r io.Reader) (map[string]float64, error) {
	parser := &expfmt.TextParser{}
	families, err := parser.TextToMetricFamilies(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse metrics: %w", err)
	}

	out := make(map[string]float64)
	for name, mf := range families {
		if !strings.HasPrefix(name, metricPrefix) {
			continue
		}
		for _, m := range mf.GetMetric() {
			var value float64
			switch {
			case m.GetGauge() != nil:
				value = m.GetGauge().GetValue()
			case m.GetCounter() != nil:
				value = m.GetCounter().GetValue()
			case m.GetHistogram() != nil:
				h := m.GetHistogram()
				if h.GetSampleCount() == 0 {
					continue
				}
				out[name+"_avg_ms"] = h.GetSampleSum() / float64(h.GetSampleCount()) * 1000
				continue
			default:
				continue
			}

			key := name
			if len(m.GetLabel()) > 0 {
				labels := make([]string, 0, len(m.GetLabel()))
				for _, l := range m.GetLabel() {
					labels = append(labels, fmt.Sprintf("%s=%q", l.GetName(), l.GetValue()))
				}
				key = fmt.Sprintf("%s{%s}", name, strings.Join(labels, ","))
			}
			out[key] = value
		}
	}
	return out, nil
}

// sortedSamples returns m ordered by key with the common prefix removed.
func sortedSamples(m map[string]float64) []sample {
	out := make([]sample, 0, len(m))
	for k, v := range m {
		out = append(out, sample{key: strings.TrimPrefix(k, metricPrefix), value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].key < out[j].key })
	return out
}

type systemData struct {
	memUsage float64
	cpuUsage float64
	cores    int
}

func fetchSystemData() (systemData, error) {
	v, err := mem.VirtualMemory()
	if err != nil {
		return systemData{}, fmt.Errorf("failed to fetch memory data: %w", err)
	}
	c, err := cpu.Percent(0, false)
	if err != nil {
		return systemData{}, fmt.Errorf("failed to fetch CPU data: %w", err)
	}
	cores, err := cpu.Counts(true)
	if err != nil {
		return systemData{}, fmt.Errorf("failed to fetch CPU cores: %w", err)
	}
	sd := systemData{memUsage: v.UsedPercent, cores: cores}
	if len(c) > 0 {
		sd.cpuUsage = c[0]
	}
	return sd, nil
}

// diskRow is one mounted filesystem.
type diskRow struct {
	mountpoint  string
	fstype      string
	total       uint64
	free        uint64
	usedPercent float64
	monitored   bool
}

func fetchDisks(monitoredPath string) ([]diskRow, error) {
	parts, err := disk.Partitions(false)
	if err != nil {
		return nil, fmt.Errorf("failed to list partitions: %w", err)
	}

	monitoredMount := longestMount(parts, monitoredPath)

	rows := make([]diskRow, 0, len(parts))
	for _, p := range parts {
		u, err := disk.Usage(p.Mountpoint)
		if err != nil || u.Total == 0 {
			continue
		}
		rows = append(rows, diskRow{
			mountpoint:  p.Mountpoint,
			fstype:      p.Fstype,
			total:       u.Total,
			free:        u.Free,
			usedPercent: u.UsedPercent,
			monitored:   p.Mountpoint == monitoredMount,
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].mountpoint < rows[j].mountpoint })
	return rows, nil
}

// longestMount returns the mountpoint that contains path.
func longestMount(parts []disk.PartitionStat, path string) string {
	best := ""
	for _, p := range parts {
		mp := p.Mountpoint
		if !strings.HasPrefix(path, mp) {
			continue
		}
		if len(path) > len(mp) && mp != "/" && path[len(mp)] != '/' {
			continue
		}
		if len(mp) > len(best) {
			best = mp
		}
	}
	return best
}
