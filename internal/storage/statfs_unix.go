//go:build !windows

package storage

import (
	"fmt"

	"golang.org/x/sys/unix"

	"git.uuxo.net/uuxo/maxdiskusage/internal/policy"
)

// Statfs reads filesystem statistics with statfs(2).
type Statfs struct{}

// Stat implements Probe.
func (Statfs) Stat(path string) (policy.Snapshot, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return policy.Snapshot{}, &StatError{Path: path, Err: err}
	}
	if stat.Bsize <= 0 {
		return policy.Snapshot{}, &StatError{Path: path, Err: fmt.Errorf("invalid block size %d", stat.Bsize)}
	}
	return policy.Snapshot{
		BlockSize: uint64(stat.Bsize),
		Available: uint64(stat.Bavail),
		Total:     uint64(stat.Blocks),
	}, nil
}
