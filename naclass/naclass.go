// Package naclass is the substrate-selection entry point: a sealed set
// of transport backends behind the common na.Class interface, chosen by
// configuration rather than runtime plugin loading.
package naclass

import (
	"fmt"

	"na-rpc/na"
	"na-rpc/shmna"
	"na-rpc/tcpna"
)

// Backend selects which substrate New dispatches to.
type Backend int

const (
	// BackendTCP is the emulated-RMA-over-TCP substrate (tcpna), suitable
	// for peers on different hosts.
	BackendTCP Backend = iota
	// BackendSHM is the native-RMA substrate backed by shared memory
	// (shmna), suitable only for peers sharing a filesystem.
	BackendSHM
)

// Config parameterizes New. Only the fields relevant to the selected
// Backend need be set.
type Config struct {
	Backend Backend

	// Listen, when non-empty, puts this process in the server role:
	// tcpna listens on Listen (a "host:port" string, ":0" for an
	// ephemeral port); shmna listens on a Unix socket at Listen and
	// registers memory under Dir.
	Listen string

	// Dir is shmna's shared-memory directory (BackendSHM only). Ignored
	// for BackendTCP.
	Dir string
}

// New constructs an na.Class backed by cfg.Backend. Servers that need
// the resolved listen address for port.cfg publication type-assert to
// the concrete *tcpna.Class or *shmna.Class.
func New(cfg Config) (na.Class, error) {
	switch cfg.Backend {
	case BackendTCP:
		return newTCP(cfg)
	case BackendSHM:
		return newSHM(cfg)
	default:
		return nil, na.NewError(na.ErrInitFailure, fmt.Sprintf("naclass: unknown backend %d", cfg.Backend), nil)
	}
}

func newTCP(cfg Config) (na.Class, error) {
	if cfg.Listen == "" {
		return tcpna.New(tcpna.NewClient()), nil
	}
	state, err := tcpna.NewServer(cfg.Listen)
	if err != nil {
		return nil, err
	}
	return tcpna.New(state), nil
}

func newSHM(cfg Config) (na.Class, error) {
	dir := cfg.Dir
	if dir == "" {
		dir = "na-shm-regions"
	}
	if cfg.Listen == "" {
		state, err := shmna.NewClient(dir)
		if err != nil {
			return nil, err
		}
		return shmna.New(state), nil
	}
	state, err := shmna.NewServer(dir, cfg.Listen)
	if err != nil {
		return nil, err
	}
	return shmna.New(state), nil
}
