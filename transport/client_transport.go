// Package transport is the client-side transport: one multiplexed
// connection per peer, plus the NAConn adapter that lets the framing and
// multiplexing below run over an na.Class instead of a raw socket.
//
// Multiplexing works by sequence number. Each in-flight call parks on
// its own channel; a single recvLoop goroutine reads response frames and
// wakes whichever caller the frame's Seq names:
//
//	goroutine-1 ──Send(seq=1)──┐
//	goroutine-2 ──Send(seq=2)──┼──→ one connection ──→ server
//	goroutine-3 ──Send(seq=3)──┘
//
//	recvLoop: response(seq=2) → pending[2] → goroutine-2 wakes
package transport

import (
	"encoding/json"
	"io"
	"sync"
	"time"

	"na-rpc/codec"
	"na-rpc/message"
	"na-rpc/protocol"
)

// ClientTransport drives one connection. The conn field is an NAConn in
// production; tests substitute any io.ReadWriteCloser, since nothing
// below this struct knows the bytes cross an NA substrate.
type ClientTransport struct {
	conn  io.ReadWriteCloser
	codec codec.CodecType

	// seq and all writes are guarded by sending: frames from concurrent
	// callers must not interleave on the shared stream.
	seq     uint32
	sending sync.Mutex

	// pending maps seq → the buffered channel its caller waits on.
	pending sync.Map
}

// NewClientTransport wraps conn and starts the two background loops:
// recvLoop routing responses, heartbeatLoop keeping the peer from
// idling the connection out.
func NewClientTransport(conn io.ReadWriteCloser, codec codec.CodecType) *ClientTransport {
	transport := &ClientTransport{
		conn:  conn,
		codec: codec,
	}
	go transport.recvLoop()
	go transport.heartbeatLoop(30 * time.Second)
	return transport
}

// Send writes one request frame and returns the channel its response
// will arrive on. The response channel is registered before the frame
// goes out, so a fast server cannot answer a seq recvLoop has never
// heard of.
func (t *ClientTransport) Send(serviceMethod string, args any) (uint32, <-chan *message.RPCMessage, error) {
	t.sending.Lock()
	defer t.sending.Unlock()

	t.seq++
	seq := t.seq

	payload, err := json.Marshal(args)
	if err != nil {
		return 0, nil, err
	}

	rpcMessage := message.RPCMessage{
		ServiceMethod: serviceMethod,
		Payload:       payload,
	}
	body, err := codec.GetCodec(t.codec).Encode(&rpcMessage)
	if err != nil {
		return 0, nil, err
	}

	header := protocol.Header{
		CodecType: byte(t.codec),
		MsgType:   protocol.MsgTypeRequest,
		Seq:       seq,
		BodyLen:   uint32(len(body)),
	}

	// Buffered so recvLoop never blocks delivering to a caller that
	// hasn't reached its receive yet.
	respChan := make(chan *message.RPCMessage, 1)
	t.pending.Store(seq, respChan)

	if err := protocol.Encode(t.conn, &header, body); err != nil {
		t.pending.Delete(seq)
		return 0, nil, err
	}

	return seq, respChan, nil
}

// recvLoop is the connection's only reader — frame boundaries on a byte
// stream require sequential reads. Each decoded response is routed to
// the pending channel its Seq names; responses may arrive in any order.
func (t *ClientTransport) recvLoop() {
	for {
		header, body, err := protocol.Decode(t.conn)
		if err != nil {
			t.closeAllPending(err)
			return
		}

		responseRPC := message.RPCMessage{}
		codec.GetCodec(codec.CodecType(header.CodecType)).Decode(body, &responseRPC)

		if channel, ok := t.pending.LoadAndDelete(header.Seq); ok {
			channel.(chan *message.RPCMessage) <- &responseRPC
		}
	}
}

// closeAllPending delivers the connection error to every parked caller,
// so a broken peer fails calls instead of hanging them.
func (t *ClientTransport) closeAllPending(err error) {
	t.pending.Range(func(key, value any) bool {
		channel := value.(chan *message.RPCMessage)
		channel <- &message.RPCMessage{Error: err.Error()}
		return true
	})
	t.pending.Clear()
}

// Conn returns the underlying connection.
func (t *ClientTransport) Conn() io.ReadWriteCloser {
	return t.conn
}

// heartbeatLoop writes a bodyless heartbeat frame every interval, under
// the same sending lock as real requests. It exits when a write fails —
// recvLoop will observe the same broken connection.
func (t *ClientTransport) heartbeatLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		header := &protocol.Header{
			MsgType: protocol.MsgTypeHeartbeat,
		}
		t.sending.Lock()
		err := protocol.Encode(t.conn, header, nil)
		t.sending.Unlock()
		if err != nil {
			return
		}
	}
}
