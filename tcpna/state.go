package tcpna

import (
	"fmt"
	"log"
	"net"
	"sync"

	"github.com/rs/xid"
	"golang.org/x/sync/errgroup"

	"na-rpc/matchbox"
	"na-rpc/na"
)

// Role splits processes into those that accept connections and those
// that only dial out.
type Role int

const (
	RoleClient Role = iota
	RoleServer
)

// State is tcpna's process-wide NA state, carried as an explicit struct
// the caller owns rather than a package global, so two independent
// State values (a server and a client in one test process, say) never
// share handle registries or accept loops.
type State struct {
	role Role

	listener net.Listener
	portName string

	unexpected *matchbox.AnyBox

	pairMu  sync.Mutex
	pairing map[[12]byte]*pairEntry

	addrsMu  sync.Mutex
	addrs    []*addr
	byConn   map[*conn]*addr
	nextRank int

	handles *handleRegistry

	metrics *metricsCollector

	acceptGroup *errgroup.Group
	acceptStop  chan struct{}

	closeOnce sync.Once
}

type pairEntry struct {
	primary net.Conn
	side    net.Conn
}

// NewClient builds State for a process that will only dial out (RPC
// clients). No peer name is resolved here; AddrLookup resolves each
// name independently per call.
func NewClient() *State {
	return newState(RoleClient)
}

// NewServer builds State for a process that accepts connections on
// listenAddr (e.g. ":7777") and begins pairing primary/side channels
// immediately. The resolved listen address is exposed via State.PortName
// for port.cfg publication.
func NewServer(listenAddr string) (*State, error) {
	ln, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return nil, na.NewError(na.ErrInitFailure, fmt.Sprintf("tcpna: listen %s: %v", listenAddr, err), err)
	}
	s := newState(RoleServer)
	s.listener = ln
	s.portName = ln.Addr().String()
	s.acceptStop = make(chan struct{})
	go s.acceptLoop()
	return s, nil
}

func newState(role Role) *State {
	return &State{
		role:       role,
		unexpected: matchbox.NewAnyBox(),
		pairing:    make(map[[12]byte]*pairEntry),
		byConn:     make(map[*conn]*addr),
		handles:    newHandleRegistry(),
		metrics:    newMetricsCollector(),
	}
}

// PortName returns the listen address a client should resolve via
// port.cfg (server role only).
func (s *State) PortName() string { return s.portName }

func (s *State) acceptLoop() {
	for {
		nc, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.acceptStop:
				return
			default:
				log.Printf("tcpna: accept: %v", err)
				return
			}
		}
		go s.handleAccepted(nc)
	}
}

func (s *State) handleAccepted(nc net.Conn) {
	token, marker, err := readHandshake(nc)
	if err != nil {
		log.Printf("tcpna: handshake read failed: %v", err)
		nc.Close()
		return
	}

	s.pairMu.Lock()
	e, ok := s.pairing[token]
	if !ok {
		e = &pairEntry{}
		s.pairing[token] = e
	}
	switch marker {
	case markerPrimary:
		e.primary = nc
	case markerSide:
		e.side = nc
	default:
		s.pairMu.Unlock()
		log.Printf("tcpna: handshake: unknown marker %d", marker)
		nc.Close()
		return
	}
	complete := e.primary != nil && e.side != nil
	if complete {
		delete(s.pairing, token)
	}
	s.pairMu.Unlock()

	if !complete {
		return
	}

	s.addrsMu.Lock()
	rank := s.nextRank
	s.nextRank++
	s.addrsMu.Unlock()

	a := newAddr(s, e.primary, e.side, rank)
	a.primary.any = s.unexpected

	s.addrsMu.Lock()
	s.addrs = append(s.addrs, a)
	s.byConn[a.primary] = a
	s.addrsMu.Unlock()

	s.metrics.peersConnected.Inc()
}

// addrLookup dials a peer and pairs primary/side channels on its end via
// the same handshake the server's accept loop expects.
func (s *State) addrLookup(name string) (na.Addr, error) {
	primary, err := net.Dial("tcp", name)
	if err != nil {
		return nil, na.NewError(na.ErrConnect, err.Error(), err)
	}
	side, err := net.Dial("tcp", name)
	if err != nil {
		primary.Close()
		return nil, na.NewError(na.ErrConnect, err.Error(), err)
	}

	var token [12]byte
	copy(token[:], xid.New().Bytes())
	if err := writeHandshake(primary, token, markerPrimary); err != nil {
		primary.Close()
		side.Close()
		return nil, na.NewError(na.ErrConnect, err.Error(), err)
	}
	if err := writeHandshake(side, token, markerSide); err != nil {
		primary.Close()
		side.Close()
		return nil, na.NewError(na.ErrConnect, err.Error(), err)
	}

	a := newAddr(s, primary, side, 0)
	a.primary.setBox(matchbox.New()) // lookup-obtained addrs always match by tag, never via AnyBox

	s.addrsMu.Lock()
	s.addrs = append(s.addrs, a)
	s.addrsMu.Unlock()

	s.metrics.peersConnected.Inc()
	return a, nil
}

// finalize tears down every address this process knows about and stops
// accepting new ones, fanning the per-address teardown out with
// errgroup so one slow peer doesn't serialize the rest.
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
				a.sendEnd()
				a.rmaCancel()
				a.primary.close()
				a.side.close()
				<-a.rmaDone
				return nil
			})
		}
		outerErr = g.Wait()
	})
	return outerErr
}
