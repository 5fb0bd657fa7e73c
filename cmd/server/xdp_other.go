//go:build !linux

package main

import (
	"github.com/erigontech/erigon-lib/log/v3"

	"github.com/biryukovmaxim/ddos-protection-task/internal/xdpmap"
)

// attachXDP is a no-op on non-Linux platforms: XDP is a Linux kernel
// facility. Development and the userspace-only test suite run here with
// the whitelist maintained but never consulted by a kernel filter.
func attachXDP(_ string, _ uint16, _ *xdpmap.EbpfMap, logger log.Logger) (func(), error) {
	logger.Warn("xdp filtering unavailable on this platform, running userspace-only")
	return func() {}, nil
}
