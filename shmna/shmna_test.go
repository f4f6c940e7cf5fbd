package shmna

import (
	"path/filepath"
	"testing"
	"time"

	"na-rpc/na"
)

func pairClasses(t *testing.T) (*Class, *Class, func()) {
	t.Helper()

	base := t.TempDir()
	srv, err := NewServer(filepath.Join(base, "regions"), filepath.Join(base, "server.sock"))
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	cli, err := NewClient(filepath.Join(base, "client-regions"))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	serverClass := New(srv)
	clientClass := New(cli)
	cleanup := func() {
		serverClass.Finalize()
		clientClass.Finalize()
	}
	return clientClass, serverClass, cleanup
}

func TestShmnaPutGetRoundTrip(t *testing.T) {
	client, server, cleanup := pairClasses(t)
	defer cleanup()

	remoteHandle, err := server.MemRegister(make([]byte, 16), na.ReadWrite)
	if err != nil {
		t.Fatalf("MemRegister: %v", err)
	}
	descBuf := make([]byte, descriptorSize)
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

	putReq, err := client.Put(localHandle, 0, deserialized, 0, 16, nil)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	status, err := putReq.Wait(time.Second)
	if err != nil {
		t.Fatalf("put wait: %v", err)
	}
	if !status.Completed {
		t.Fatal("expected Put to complete synchronously")
	}

	readBack := make([]byte, 16)
	readHandle, err := client.MemRegister(readBack, na.ReadWrite)
	if err != nil {
		t.Fatalf("MemRegister (readback): %v", err)
	}
	getReq, err := client.Get(readHandle, 0, deserialized, 0, 16, nil)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	getStatus, err := getReq.Wait(time.Second)
	if err != nil {
		t.Fatalf("get wait: %v", err)
	}
	if getStatus.Count != 16 {
		t.Fatalf("expected count 16, got %d", getStatus.Count)
	}
}

func TestShmnaPutRejectsReadOnlyRemote(t *testing.T) {
	client, server, cleanup := pairClasses(t)
	defer cleanup()

	remoteHandle, err := server.MemRegister(make([]byte, 8), na.ReadOnly)
	if err != nil {
		t.Fatalf("MemRegister: %v", err)
	}
	descBuf := make([]byte, descriptorSize)
	n, err := server.MemHandleSerialize(descBuf, remoteHandle)
	if err != nil {
		t.Fatalf("MemHandleSerialize: %v", err)
	}
	deserialized, err := client.MemHandleDeserialize(descBuf[:n])
	if err != nil {
		t.Fatalf("MemHandleDeserialize: %v", err)
	}
	localHandle, err := client.MemRegister(make([]byte, 8), na.ReadOnly)
	if err != nil {
		t.Fatalf("MemRegister (local): %v", err)
	}

	if _, err := client.Put(localHandle, 0, deserialized, 0, 8, nil); !na.IsKind(err, na.ErrPermission) {
		t.Fatalf("expected ErrPermission, got %v", err)
	}
}

func TestShmnaMessagingUnexpected(t *testing.T) {
	client, server, cleanup := pairClasses(t)
	defer cleanup()

	clientAddr, err := client.AddrLookup(server.state.SocketPath())
	if err != nil {
		t.Fatalf("AddrLookup: %v", err)
	}

	req, err := client.SendUnexpected([]byte("ping"), clientAddr, na.Tag(3))
	if err != nil {
		t.Fatalf("SendUnexpected: %v", err)
	}
	if _, err := req.Wait(time.Second); err != nil {
		t.Fatalf("send wait: %v", err)
	}

	buf := make([]byte, 32)
	var recvReq *na.Request
	for i := 0; i < 50; i++ {
		recvReq, _, _, err = server.RecvUnexpected(buf)
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
	status, err := recvReq.Wait(time.Second)
	if err != nil {
		t.Fatalf("recv wait: %v", err)
	}
	if string(buf[:status.Count]) != "ping" {
		t.Fatalf("payload mismatch: got %q", buf[:status.Count])
	}
}
