// Package server implements the RPC server: service registration,
// middleware chain, parallel request handling, graceful shutdown.
//
// Request pipeline:
//
//	Class.RecvUnexpected (discover peer) → handleConn (one reader per peer)
//	  → for each frame: go handleRequest
//	    → Codec.Decode → middleware chain → reflective dispatch
//	    → Codec.Encode → write response
//
// Connections are not raw net.Conn: every peer is an na.Addr reached
// through an na.Class (tcpna by default), and handleConn reads and
// writes through transport.NAConn, the adapter that makes an addr/tag
// pair look like the io.ReadWriteCloser this package always assumed.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"na-rpc/codec"
	"na-rpc/message"
	"na-rpc/middleware"
	"na-rpc/na"
	"na-rpc/naclass"
	"na-rpc/protocol"
	"na-rpc/registry"
	"na-rpc/transport"
)

// probeIdle is how long Serve sleeps between unsuccessful
// RecvUnexpected probes. RecvUnexpected is non-blocking, so discovering
// new peers is a poll loop, not a blocking accept.
const probeIdle = 2 * time.Millisecond

// Server registers services and handles incoming requests.
type Server struct {
	serviceMap  map[string]*service
	class       na.Class
	middlewares []middleware.Middleware
	handler     middleware.HandlerFunc

	// wg tracks in-flight requests so Shutdown can drain them;
	// shutdown suppresses the probe loop's error once Finalize starts
	// tearing the class down underneath it.
	wg       sync.WaitGroup
	shutdown atomic.Bool

	registry registry.Registry
	// advertiseAddr is what gets registered for discovery. It differs
	// from the listen address because ":8080" is not routable — peers
	// need a concrete host.
	advertiseAddr string
}

// NewServer creates a server with an empty service map.
func NewServer() *Server {
	s := new(Server)
	s.serviceMap = make(map[string]*service)
	return s
}

// Register exposes rcvr's RPC-compatible exported methods (see
// service.go for the accepted shapes) under the struct's type name.
func (svr *Server) Register(rcvr any) error {
	svc, err := NewService(rcvr)
	if err != nil {
		return err
	}
	svr.serviceMap[svc.name] = svc
	return nil
}

// Serve opens an NA listening endpoint at address, optionally registers
// every service with reg under advertiseAddr, and enters the
// RecvUnexpected probe loop, handing each newly discovered peer to its
// own handleConn goroutine. Pass reg == nil to skip discovery.
func (svr *Server) Serve(address string, advertiseAddr string, reg registry.Registry) error {
	class, err := naclass.New(naclass.Config{Backend: naclass.BackendTCP, Listen: address})
	if err != nil {
		return err
	}
	svr.class = class

	// The chain is composed once at startup, not per request.
	svr.handler = middleware.Chain(svr.middlewares...)(svr.businessHandler)

	svr.advertiseAddr = advertiseAddr
	if reg != nil {
		svr.registry = reg
		for serviceName := range svr.serviceMap {
			// 10s TTL; the registry's keep-alive renews it until
			// Shutdown deregisters or the process dies.
			svr.registry.Register(serviceName, registry.ServiceInstance{
				Addr: advertiseAddr,
			}, 10)
		}
	}

	probeBuf := make([]byte, svr.class.UnexpectedSize())
	for {
		if svr.shutdown.Load() {
			return nil
		}

		req, addr, _, err := svr.class.RecvUnexpected(probeBuf)
		if err != nil {
			if svr.shutdown.Load() {
				return nil
			}
			return err
		}
		if req == nil {
			time.Sleep(probeIdle)
			continue
		}
		status, err := req.Wait(transport.WaitForever)
		if err != nil {
			continue
		}

		// The probe consumed this peer's first frame bytes; seed the
		// connection's read buffer with them so protocol.Decode sees a
		// whole stream.
		primed := make([]byte, status.Count)
		copy(primed, probeBuf[:status.Count])

		nc := transport.NewNAConn(svr.class, addr)
		nc.PrimeRead(primed)
		go svr.handleConn(nc)
	}
}

// Use appends a middleware; they wrap the handler in registration order.
func (svr *Server) Use(mw middleware.Middleware) {
	svr.middlewares = append(svr.middlewares, mw)
}

// Class returns the server-role na.Class, letting a bulk-argument
// handler registered via Register issue its own Put/Get against a
// caller's memory (see RMAFromContext).
func (svr *Server) Class() na.Class { return svr.class }

// rmaContextKey is the unexported key under which withRMA stashes the
// per-request RMA context.
type rmaContextKey struct{}

// rmaContext carries the substrate and the calling peer's address into
// a business handler, so a bulk-argument method (caller registers
// memory, serializes the handle into the RPC payload, callee GETs
// against it) can reach Class.Get/Put without the reflection-based
// dispatch in service.go needing to know about na at all.
type rmaContext struct {
	class na.Class
	addr  na.Addr
}

func withRMA(ctx context.Context, class na.Class, addr na.Addr) context.Context {
	return context.WithValue(ctx, rmaContextKey{}, rmaContext{class: class, addr: addr})
}

// RMAFromContext extracts the na.Class and the calling peer's na.Addr
// from a handler's context. ok is false for a handler invoked outside
// Server.Serve's request pipeline (e.g. a unit test calling the method
// directly).
func RMAFromContext(ctx context.Context) (class na.Class, addr na.Addr, ok bool) {
	v, ok := ctx.Value(rmaContextKey{}).(rmaContext)
	if !ok {
		return nil, nil, false
	}
	return v.class, v.addr, true
}

// handleConn owns one logical connection. Reads stay in this goroutine
// (frame boundaries on a stream need a single sequential reader); each
// decoded request runs in its own goroutine so a slow handler never
// blocks the requests queued behind it. All those goroutines share one
// write mutex, or their response frames would interleave.
func (svr *Server) handleConn(conn *transport.NAConn) {
	defer conn.Close()
	writeMu := &sync.Mutex{}
	for {
		header, body, err := protocol.Decode(conn)
		if err != nil {
			break
		}

		// Heartbeats only exist to keep the connection warm.
		if header.MsgType == protocol.MsgTypeHeartbeat {
			continue
		}

		go svr.handleRequest(header, body, conn, writeMu)
	}
}

// handleRequest runs one RPC: decode → middleware → dispatch → encode →
// write, tracked by wg for graceful shutdown.
func (svr *Server) handleRequest(header *protocol.Header, body []byte, conn *transport.NAConn, writeMu *sync.Mutex) {
	svr.wg.Add(1)
	defer svr.wg.Done()

	c := codec.GetCodec(codec.CodecType(header.CodecType))
	msg := message.RPCMessage{}
	c.Decode(body, &msg)

	// The context carries this connection's na.Class/na.Addr so a
	// bulk-argument handler can GET/PUT against the caller directly.
	ctx := withRMA(context.Background(), svr.class, conn.Addr())
	rpcMessage := svr.handler(ctx, &msg)

	writeMu.Lock()
	defer writeMu.Unlock()

	result, err := c.Encode(rpcMessage)
	if err != nil {
		log.Println("Failed to encode method result")
		return
	}

	// Echo the request's Seq — that is how the client's recvLoop routes
	// this response to its caller.
	replyHeader := protocol.Header{
		CodecType: header.CodecType,
		MsgType:   protocol.MsgTypeResponse,
		Seq:       header.Seq,
		BodyLen:   uint32(len(result)),
	}
	if err := protocol.Encode(conn, &replyHeader, result); err != nil {
		log.Println("Failed to encode reply message")
	}
}

// Shutdown drains the server: deregister from discovery first (so
// clients stop routing here), flag the probe loop down, finalize the NA
// class, then wait out in-flight requests up to timeout.
func (svr *Server) Shutdown(timeout time.Duration) error {
	for serviceName := range svr.serviceMap {
		if svr.registry != nil {
			svr.registry.Deregister(serviceName, svr.advertiseAddr)
		}
	}

	// Flag before Finalize: otherwise the probe loop sees Finalize's
	// error first and Serve returns it as a real failure.
	svr.shutdown.Store(true)
	svr.class.Finalize()

	done := make(chan struct{})
	go func() {
		svr.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("timeout waiting for ongoing requests to finish")
	}
}

// businessHandler is the innermost handler: parse "Service.Method",
// build args/reply values reflectively, invoke, marshal the reply. The
// middleware chain wraps it.
func (svr *Server) businessHandler(ctx context.Context, req *message.RPCMessage) *message.RPCMessage {
	split := strings.Split(req.ServiceMethod, ".")
	if len(split) != 2 {
		return &message.RPCMessage{Error: "invalid service method format"}
	}
	serviceName := split[0]
	methodName := split[1]

	svc, ok := svr.serviceMap[serviceName]
	if !ok {
		return &message.RPCMessage{Error: "service not found: " + serviceName}
	}
	method, ok := svc.method[methodName]
	if !ok {
		return &message.RPCMessage{Error: "method not found: " + req.ServiceMethod}
	}

	argv := reflect.New(method.ArgType)
	replyv := reflect.New(method.ReplyType)

	if err := json.Unmarshal(req.Payload, argv.Interface()); err != nil {
		return &message.RPCMessage{Error: err.Error()}
	}

	// ctx only reaches methods declared with a leading context.Context
	// parameter; ordinary handlers never see it.
	methodErr := svc.Call(ctx, method, argv, replyv)

	replyMessage, err := json.Marshal(replyv.Interface())
	if err != nil {
		log.Println("Failed to marshal method result")
	}

	rpcMessage := &message.RPCMessage{
		ServiceMethod: req.ServiceMethod,
		Payload:       replyMessage,
	}
	if methodErr != nil {
		rpcMessage.Error = methodErr.Error()
	}
	return rpcMessage
}
