package tcpna

import (
	"testing"
	"time"

	"na-rpc/na"
)

func pairClasses(t *testing.T) (*Class, *Class, func()) {
	t.Helper()

	srv, err := NewServer("127.0.0.1:0")
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	serverClass := New(srv)
	clientClass := New(NewClient())

	cleanup := func() {
		serverClass.Finalize()
		clientClass.Finalize()
	}
	return clientClass, serverClass, cleanup
}

// TestUnexpectedSendThenRecvUnexpected: a client sends an unprompted
// tagged message and the server discovers it via RecvUnexpected,
// minting a reference address.
func TestUnexpectedSendThenRecvUnexpected(t *testing.T) {
	client, server, cleanup := pairClasses(t)
	defer cleanup()

	clientAddr, err := client.AddrLookup(server.state.PortName())
	if err != nil {
		t.Fatalf("AddrLookup: %v", err)
	}

	req, err := client.SendUnexpected([]byte("hello"), clientAddr, na.Tag(7))
	if err != nil {
		t.Fatalf("SendUnexpected: %v", err)
	}
	if _, err := req.Wait(time.Second); err != nil {
		t.Fatalf("send wait: %v", err)
	}

	buf := make([]byte, 64)
	var (
		recvReq *na.Request
		source  na.Addr
		tag     na.Tag
	)
	for i := 0; i < 50; i++ {
		recvReq, source, tag, err = server.RecvUnexpected(buf)
		if err != nil {
			t.Fatalf("RecvUnexpected: %v", err)
		}
		if recvReq != nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if recvReq == nil {
		t.Fatal("recv_unexpected never observed the message")
	}
	if !source.IsReference() {
		t.Fatal("expected a reference address from recv_unexpected")
	}
	if tag != na.Tag(7) {
		t.Fatalf("tag mismatch: got %d want 7", tag)
	}

	status, err := recvReq.Wait(time.Second)
	if err != nil {
		t.Fatalf("recv wait: %v", err)
	}
	if status.Count != len("hello") {
		t.Fatalf("count mismatch: got %d want %d", status.Count, len("hello"))
	}
	if string(buf[:status.Count]) != "hello" {
		t.Fatalf("payload mismatch: got %q", buf[:status.Count])
	}
}

// TestRecvUnexpectedBufferTooSmallDoesNotConsume: a too-small buffer
// fails the probe without losing the message.
func TestRecvUnexpectedBufferTooSmallDoesNotConsume(t *testing.T) {
	client, server, cleanup := pairClasses(t)
	defer cleanup()

	clientAddr, err := client.AddrLookup(server.state.PortName())
	if err != nil {
		t.Fatalf("AddrLookup: %v", err)
	}

	req, err := client.SendUnexpected([]byte("0123456789"), clientAddr, na.Tag(1))
	if err != nil {
		t.Fatalf("SendUnexpected: %v", err)
	}
	if _, err := req.Wait(time.Second); err != nil {
		t.Fatalf("send wait: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	small := make([]byte, 4)
	if _, _, _, err := server.RecvUnexpected(small); !na.IsKind(err, na.ErrBufferTooSmall) {
		t.Fatalf("expected ErrBufferTooSmall, got %v", err)
	}

	big := make([]byte, 64)
	var status na.Status
	for i := 0; i < 50; i++ {
		recvReq, _, _, err := server.RecvUnexpected(big)
		if err != nil {
			t.Fatalf("RecvUnexpected: %v", err)
		}
		if recvReq != nil {
			status, err = recvReq.Wait(time.Second)
			if err != nil {
				t.Fatalf("recv wait: %v", err)
			}
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if string(big[:status.Count]) != "0123456789" {
		t.Fatalf("message lost after buffer-too-small probe: got %q", big[:status.Count])
	}
}

// TestPutGetRoundTrip puts data into the server's registered region,
// then gets it back into a different local buffer.
func TestPutGetRoundTrip(t *testing.T) {
	client, server, cleanup := pairClasses(t)
	defer cleanup()

	clientAddr, err := client.AddrLookup(server.state.PortName())
	if err != nil {
		t.Fatalf("AddrLookup: %v", err)
	}
	// Let the server-side pairing settle before issuing RMA.
	time.Sleep(50 * time.Millisecond)

	remoteBuf := make([]byte, 16)
	remoteHandle, err := server.MemRegister(remoteBuf, na.ReadWrite)
	if err != nil {
		t.Fatalf("MemRegister: %v", err)
	}

	descBuf := make([]byte, 64)
	n, err := server.MemHandleSerialize(descBuf, remoteHandle)
	if err != nil {
		t.Fatalf("MemHandleSerialize: %v", err)
	}
	deserialized, err := client.MemHandleDeserialize(descBuf[:n])
	if err != nil {
		t.Fatalf("MemHandleDeserialize: %v", err)
	}

	payload := make([]byte, 16)
	for i := range payload {
		payload[i] = byte(i + 1)
	}
	localHandle, err := client.MemRegister(payload, na.ReadOnly)
	if err != nil {
		t.Fatalf("MemRegister (local): %v", err)
	}

	putReq, err := client.Put(localHandle, 0, deserialized, 0, 16, clientAddr)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, err := putReq.Wait(time.Second); err != nil {
		t.Fatalf("put wait: %v", err)
	}
	for i, b := range remoteBuf {
		if b != byte(i+1) {
			t.Fatalf("remote buffer mismatch at %d: got %d", i, b)
		}
	}

	readBack := make([]byte, 16)
	readHandle, err := client.MemRegister(readBack, na.ReadWrite)
	if err != nil {
		t.Fatalf("MemRegister (readback): %v", err)
	}
	getReq, err := client.Get(readHandle, 0, deserialized, 0, 16, clientAddr)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if _, err := getReq.Wait(time.Second); err != nil {
		t.Fatalf("get wait: %v", err)
	}
	for i, b := range readBack {
		if b != byte(i+1) {
			t.Fatalf("readback mismatch at %d: got %d", i, b)
		}
	}
}

// TestPutRejectsReadOnlyRemote: a PUT against a read-only remote handle
// fails with ErrPermission and never touches the wire.
func TestPutRejectsReadOnlyRemote(t *testing.T) {
	client, server, cleanup := pairClasses(t)
	defer cleanup()

	clientAddr, err := client.AddrLookup(server.state.PortName())
	if err != nil {
		t.Fatalf("AddrLookup: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	remoteBuf := make([]byte, 8)
	remoteHandle, err := server.MemRegister(remoteBuf, na.ReadOnly)
	if err != nil {
		t.Fatalf("MemRegister: %v", err)
	}
	descBuf := make([]byte, 64)
	n, err := server.MemHandleSerialize(descBuf, remoteHandle)
	if err != nil {
		t.Fatalf("MemHandleSerialize: %v", err)
	}
	deserialized, err := client.MemHandleDeserialize(descBuf[:n])
	if err != nil {
		t.Fatalf("MemHandleDeserialize: %v", err)
	}

	local := make([]byte, 8)
	localHandle, err := client.MemRegister(local, na.ReadOnly)
	if err != nil {
		t.Fatalf("MemRegister (local): %v", err)
	}

	if _, err := client.Put(localHandle, 0, deserialized, 0, 8, clientAddr); !na.IsKind(err, na.ErrPermission) {
		t.Fatalf("expected ErrPermission, got %v", err)
	}
}

// TestAddrFreeDoubleFree: freeing an address twice returns ErrDoubleFree
// on the second call.
func TestAddrFreeDoubleFree(t *testing.T) {
	client, server, cleanup := pairClasses(t)
	defer cleanup()

	clientAddr, err := client.AddrLookup(server.state.PortName())
	if err != nil {
		t.Fatalf("AddrLookup: %v", err)
	}

	if err := client.AddrFree(clientAddr); err != nil {
		t.Fatalf("first AddrFree: %v", err)
	}
	if err := client.AddrFree(clientAddr); !na.IsKind(err, na.ErrDoubleFree) {
		t.Fatalf("expected ErrDoubleFree, got %v", err)
	}
}

// TestSendRecvExpected exercises a plain expected Send/Recv pair once both
// sides know each other's Addr.
func TestSendRecvExpected(t *testing.T) {
	client, server, cleanup := pairClasses(t)
	defer cleanup()

	clientAddr, err := client.AddrLookup(server.state.PortName())
	if err != nil {
		t.Fatalf("AddrLookup: %v", err)
	}

	// Prime discovery so the server has a bound reference address before
	// posting an expected Recv against it.
	firstReq, err := client.Send([]byte("x"), clientAddr, na.Tag(99))
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if _, err := firstReq.Wait(time.Second); err != nil {
		t.Fatalf("send wait: %v", err)
	}

	var serverAddr na.Addr
	probe := make([]byte, 8)
	for i := 0; i < 50; i++ {
		req, src, _, err := server.RecvUnexpected(probe)
		if err != nil {
			t.Fatalf("RecvUnexpected: %v", err)
		}
		if req != nil {
			if _, err := req.Wait(time.Second); err != nil {
				t.Fatalf("recv wait: %v", err)
			}
			serverAddr = src
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if serverAddr == nil {
		t.Fatal("server never discovered the client")
	}

	sendReq, err := client.Send([]byte("expected"), clientAddr, na.Tag(42))
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	buf := make([]byte, 16)
	recvReq, err := server.Recv(buf, serverAddr, na.Tag(42))
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}

	if _, err := sendReq.Wait(time.Second); err != nil {
		t.Fatalf("send wait: %v", err)
	}
	status, err := recvReq.Wait(time.Second)
	if err != nil {
		t.Fatalf("recv wait: %v", err)
	}
	if string(buf[:status.Count]) != "expected" {
		t.Fatalf("payload mismatch: got %q", buf[:status.Count])
	}
}
