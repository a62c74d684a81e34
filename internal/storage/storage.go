// Package storage reads filesystem statistics for the monitored path.
package storage

import (
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/sirupsen/logrus"

	"git.uuxo.net/uuxo/maxdiskusage/internal/policy"
)

var log = logrus.New()

// SetLogger replaces the package-level logger.
func SetLogger(l *logrus.Logger) { log = l }

// Probe returns a snapshot of the filesystem holding path.
type Probe interface {
	Stat(path string) (policy.Snapshot, error)
}

// StatError reports that filesystem statistics could not be read.
type StatError struct {
	Path string
	Err  error
}

func (e *StatError) Error() string {
	return fmt.Sprintf("statfs %s: %v", e.Path, e.Err)
}

func (e *StatError) Unwrap() error { return e.Err }

// ProbeFunc adapts a function to the Probe interface.
type ProbeFunc func(path string) (policy.Snapshot, error)

// Stat calls f(path).
func (f ProbeFunc) Stat(path string) (policy.Snapshot, error) { return f(path) }

// CachedProbe serves repeated Stat calls for the same path from memory for
// up to ttl. Failures are never cached.
type CachedProbe struct {
	next  Probe
	cache *cache.Cache
	ttl   time.Duration
}

// NewCachedProbe wraps next. A ttl of zero or less returns next unchanged.
func NewCachedProbe(next Probe, ttl time.Duration) Probe {
	if ttl <= 0 {
		return next
	}
	return &CachedProbe{
		next:  next,
		cache: cache.New(ttl, 2*ttl),
		ttl:   ttl,
	}
}

// Stat returns the cached snapshot for path or reads a fresh one.
func (c *CachedProbe) Stat(path string) (policy.Snapshot, error) {
	if v, ok := c.cache.Get(path); ok {
		return v.(policy.Snapshot), nil
	}
	snap, err := c.next.Stat(path)
	if err != nil {
		log.Debugf("Filesystem probe for %s failed, not caching: %v", path, err)
		return snap, err
	}
	c.cache.Set(path, snap, c.ttl)
	return snap, nil
}

// Invalidate drops the cached snapshot for path.
func (c *CachedProbe) Invalidate(path string) {
	c.cache.Delete(path)
}

// Usage is a human-oriented summary of a filesystem for status pages.
type Usage struct {
	Path        string  `json:"path"`
	Fstype      string  `json:"fstype"`
	TotalBytes  uint64  `json:"total_bytes"`
	FreeBytes   uint64  `json:"free_bytes"`
	UsedBytes   uint64  `json:"used_bytes"`
	UsedPercent float64 `json:"used_percent"`
}

// DiskUsage reports usage of the filesystem holding path.
func DiskUsage(path string) (*Usage, error) {
	u, err := disk.Usage(path)
	if err != nil {
		return nil, &StatError{Path: path, Err: err}
	}
	return &Usage{
		Path:        u.Path,
		Fstype:      u.Fstype,
		TotalBytes:  u.Total,
		FreeBytes:   u.Free,
		UsedBytes:   u.Used,
		UsedPercent: u.UsedPercent,
	}, nil
}
