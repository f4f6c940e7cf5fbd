package shmna

import (
	"fmt"
	"log"
	"net"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"

	"na-rpc/matchbox"
	"na-rpc/na"
)

// State is shmna's process-wide NA state: a Unix-socket listener for
// two-sided messaging and a directory of mmap'd files for registered
// memory. Like tcpna.State, it is an explicit value the caller owns
// rather than a package global.
type State struct {
	dir        string
	socketPath string

	listener   net.Listener
	unexpected *matchbox.AnyBox

	addrsMu sync.Mutex
	addrs   []*addr
	byConn  map[*addr]bool

	handles *handleRegistry

	acceptStop chan struct{}
	closeOnce  sync.Once
}

// NewServer listens on a Unix socket at socketPath and registers memory
// under dir (created if absent). Both must be visible to every peer that
// will AddrLookup this server — that visibility requirement is exactly
// what makes shmna a same-host (or shared-volume) substrate rather than a
// general-purpose network one.
func NewServer(dir, socketPath string) (*State, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, na.NewError(na.ErrInitFailure, fmt.Sprintf("shmna: mkdir %s: %v", dir, err), err)
	}
	os.Remove(socketPath)
	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, na.NewError(na.ErrInitFailure, fmt.Sprintf("shmna: listen %s: %v", socketPath, err), err)
	}
	s := newState(dir, socketPath)
	s.listener = ln
	s.acceptStop = make(chan struct{})
	go s.acceptLoop()
	return s, nil
}

// NewClient builds State for a process that only dials out.
func NewClient(dir string) (*State, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, na.NewError(na.ErrInitFailure, fmt.Sprintf("shmna: mkdir %s: %v", dir, err), err)
	}
	return newState(dir, ""), nil
}

func newState(dir, socketPath string) *State {
	return &State{
		dir:        dir,
		socketPath: socketPath,
		unexpected: matchbox.NewAnyBox(),
		byConn:     make(map[*addr]bool),
		handles:    newHandleRegistry(dir),
	}
}

func (s *State) SocketPath() string { return s.socketPath }

func (s *State) acceptLoop() {
	for {
		nc, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.acceptStop:
				return
			default:
				log.Printf("shmna: accept: %v", err)
				return
			}
		}
		a := newAddr(s, nc)
		a.any = s.unexpected

		s.addrsMu.Lock()
		s.addrs = append(s.addrs, a)
		s.byConn[a] = true
		s.addrsMu.Unlock()
	}
}

func (s *State) addrLookup(name string) (na.Addr, error) {
	nc, err := net.Dial("unix", name)
	if err != nil {
		return nil, na.NewError(na.ErrConnect, err.Error(), err)
	}
	a := newAddr(s, nc)
	a.setBox(matchbox.New())

	s.addrsMu.Lock()
	s.addrs = append(s.addrs, a)
	s.addrsMu.Unlock()
	return a, nil
}

func (s *State) finalize() error {
	var outerErr error
	s.closeOnce.Do(func() {
		if s.listener != nil {
			close(s.acceptStop)
			s.listener.Close()
		}

		s.addrsMu.Lock()
		addrs := make([]*addr, len(s.addrs))
		copy(addrs, s.addrs)
		s.addrsMu.Unlock()

		var g errgroup.Group
		for _, a := range addrs {
			a := a
			g.Go(func() error {
				a.freed.Store(true)
				a.nc.Close()
				return nil
			})
		}
		outerErr = g.Wait()

		s.handles.closeAll()
		if s.socketPath != "" {
			os.Remove(s.socketPath)
		}
	})
	return outerErr
}

// bindUnbound mints the reference address for a connection first observed
// through recv_unexpected, mirroring tcpna.State.bindUnbound.
func (s *State) bindUnbound(a *addr) na.Addr {
	if a == nil {
		return nil
	}
	if a.isReference.CompareAndSwap(false, true) {
		a.bindBox(matchbox.New())
	}
	return a
}
