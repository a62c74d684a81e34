//go:build windows

package storage

import (
	"github.com/shirou/gopsutil/v3/disk"

	"git.uuxo.net/uuxo/maxdiskusage/internal/policy"
)

// Statfs reads filesystem statistics through GetDiskFreeSpaceEx. Windows
// has no block counts, so the snapshot uses one-byte blocks.
type Statfs struct{}

// Stat implements Probe.
func (Statfs) Stat(path string) (policy.Snapshot, error) {
	u, err := disk.Usage(path)
	if err != nil {
		return policy.Snapshot{}, &StatError{Path: path, Err: err}
	}
	return policy.Snapshot{BlockSize: 1, Available: u.Free, Total: u.Total}, nil
}
