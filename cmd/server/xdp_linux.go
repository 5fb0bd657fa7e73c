//go:build linux

package main

import (
	"fmt"
	"net"
	"os"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/link"

	"github.com/erigontech/erigon-lib/log/v3"

	"github.com/biryukovmaxim/ddos-protection-task/internal/xdpmap"
)

func interfaceByName(name string) (int, error) {
	ifc, err := net.InterfaceByName(name)
	if err != nil {
		return 0, fmt.Errorf("lookup interface %s: %w", name, err)
	}
	return ifc.Index, nil
}

// xdpObjectPathEnv names the compiled XDP object file (bpf/xdp_filter.c,
// built out-of-band with clang -target bpf per spec.md's toolchain
// scope note). When unset, attachXDP runs the server without a kernel
// filter: the whitelist is still maintained in userspace, but nothing
// drops unsolicited SYNs at the NIC.
const xdpObjectPathEnv = "DDOS_XDP_OBJECT"

const xdpProgramName = "ddos_protection_task"
const xdpMapName = "WHITELIST"

// attachXDP loads bpf/xdp_filter.c's compiled program onto iface, handing
// it the already-created whitelist map so kernel reads and userspace
// writes share one underlying ebpf.Map. It returns a detach func.
func attachXDP(iface string, _ uint16, whitelist *xdpmap.EbpfMap, logger log.Logger) (func(), error) {
	objPath := os.Getenv(xdpObjectPathEnv)
	if objPath == "" {
		logger.Warn("DDOS_XDP_OBJECT not set, running without kernel-level SYN filtering")
		return func() {}, nil
	}

	spec, err := ebpf.LoadCollectionSpec(objPath)
	if err != nil {
		return nil, fmt.Errorf("load xdp object %s: %w", objPath, err)
	}

	// Replace the spec's own WHITELIST map with the one this process
	// already created, so userspace Insert/Remove calls are visible to
	// the attached program immediately.
	coll, err := ebpf.NewCollectionWithOptions(spec, ebpf.CollectionOptions{
		MapReplacements: map[string]*ebpf.Map{
			xdpMapName: whitelist.Underlying(),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("instantiate xdp collection: %w", err)
	}

	prog := coll.Programs[xdpProgramName]
	if prog == nil {
		coll.Close()
		return nil, fmt.Errorf("program %q not found in %s", xdpProgramName, objPath)
	}

	ifc, err := interfaceByName(iface)
	if err != nil {
		coll.Close()
		return nil, err
	}

	lnk, err := link.AttachXDP(link.XDPOptions{
		Program:   prog,
		Interface: ifc,
	})
	if err != nil {
		coll.Close()
		return nil, fmt.Errorf("attach xdp to %s: %w", iface, err)
	}

	logger.Info("attached xdp filter", "iface", iface, "object", objPath)
	return func() {
		_ = lnk.Close()
		coll.Close()
	}, nil
}
