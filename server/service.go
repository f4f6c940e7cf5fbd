package server

import (
	"context"
	"fmt"
	"reflect"
)

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// methodType is the reflection metadata for one dispatchable method.
type methodType struct {
	method     reflect.Method
	ArgType    reflect.Type // element type of the *Args parameter
	ReplyType  reflect.Type // element type of the *Reply parameter
	hasContext bool         // method takes a leading context.Context
}

// service wraps a user-defined struct (e.g., &BulkStore{}) and its
// RPC-compatible methods. It maps method names to their reflection
// metadata for dynamic dispatch. A handler's Args struct is free to
// embed a serialized na.MemHandle field for bulk-argument calls;
// service dispatch itself is agnostic to that.
type service struct {
	name   string // derived from the struct name, e.g. "Arith"
	rcvr   reflect.Value
	typ    reflect.Type
	method map[string]*methodType
}

// NewService validates rcvr (must be a pointer to a struct — value
// receivers would hide pointer-receiver methods) and scans its exported
// methods for dispatchable signatures.
func NewService(rcvr any) (*service, error) {
	typ := reflect.TypeOf(rcvr)

	if typ.Kind() != reflect.Ptr {
		return nil, fmt.Errorf("rpc: rcvr must be a pointer, got %s", typ.Kind())
	}
	if typ.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("rpc: rcvr must point to a struct, got %s", typ.Elem().Kind())
	}

	srv := &service{
		name:   typ.Elem().Name(),
		rcvr:   reflect.ValueOf(rcvr),
		typ:    typ,
		method: make(map[string]*methodType),
	}
	srv.RegisterMethods()
	return srv, nil
}

// RegisterMethods collects every exported method matching one of two
// shapes:
//
//	func (recv) Name(args *Args, reply *Reply) error
//	func (recv) Name(ctx context.Context, args *Args, reply *Reply) error
//
// The second shape is for a bulk-argument handler that needs
// RMAFromContext to reach the caller's na.Class/na.Addr and GET/PUT
// against memory described by a handle carried in Args; ordinary
// handlers use the first shape. Args and Reply must both be pointers,
// the single return must be error. Non-matching methods are skipped
// silently.
func (s *service) RegisterMethods() {
	for i := 0; i < s.typ.NumMethod(); i++ {
		method := s.typ.Method(i)

		if method.Type.NumOut() != 1 || method.Type.Out(0) != errorType {
			continue
		}

		var argIdx, replyIdx int
		var hasContext bool
		switch method.Type.NumIn() {
		case 3:
			argIdx, replyIdx = 1, 2
		case 4:
			if method.Type.In(1) != contextType {
				continue
			}
			hasContext = true
			argIdx, replyIdx = 2, 3
		default:
			continue
		}
		if method.Type.In(argIdx).Kind() != reflect.Ptr || method.Type.In(replyIdx).Kind() != reflect.Ptr {
			continue
		}

		// Store the element types so dispatch can reflect.New fresh
		// instances per request.
		s.method[method.Name] = &methodType{
			method:     method,
			ArgType:    method.Type.In(argIdx).Elem(),
			ReplyType:  method.Type.In(replyIdx).Elem(),
			hasContext: hasContext,
		}
	}
}

// Call invokes mType on this service's receiver. argv and replyv must
// be pointer values built with reflect.New; ctx is only threaded
// through when the method's signature asked for it.
func (s *service) Call(ctx context.Context, mType *methodType, argv, replyv reflect.Value) error {
	var args []reflect.Value
	if mType.hasContext {
		args = []reflect.Value{s.rcvr, reflect.ValueOf(ctx), argv, replyv}
	} else {
		args = []reflect.Value{s.rcvr, argv, replyv}
	}
	results := mType.method.Func.Call(args)

	if !results[0].IsNil() {
		return results[0].Interface().(error)
	}
	return nil
}
