package rpc

import (
	"context"
	"testing"

	"github.com/hamidra/a2alite/internal/protocol"
)

func TestDispatcher_MethodNotFound(t *testing.T) {
	d := NewDispatcher()

	result := d.Dispatch(context.Background(), &protocol.Request{
		JSONRPC: "2.0",
		ID:      float64(1),
		Method:  "tasks/unknown",
	})

	if result.Response == nil || result.Response.Error == nil {
		t.Fatalf("Dispatch() = %+v, want error response", result)
	}
	if result.Response.Error.Code != protocol.CodeMethodNotFound {
		t.Errorf("error code = %v, want %v", result.Response.Error.Code, protocol.CodeMethodNotFound)
	}
	if result.Response.ID != float64(1) {
		t.Errorf("response id = %v, want echoed request id", result.Response.ID)
	}
}

func TestDispatcher_RoutesToHandler(t *testing.T) {
	d := NewDispatcher()
	d.Register("ping", func(ctx context.Context, req *protocol.Request) *Result {
		return &Result{Response: protocol.NewResponse(req.ID, "pong")}
	})

	result := d.Dispatch(context.Background(), &protocol.Request{JSONRPC: "2.0", ID: "a", Method: "ping"})
	if result.Response == nil || result.Response.Result != "pong" {
		t.Errorf("Dispatch() = %+v, want pong", result.Response)
	}
}

func TestDispatcher_HandlerPanicBecomesInternalError(t *testing.T) {
	d := NewDispatcher()
	d.Register("boom", func(ctx context.Context, req *protocol.Request) *Result {
		panic("kaboom")
	})

	result := d.Dispatch(context.Background(), &protocol.Request{JSONRPC: "2.0", ID: 7, Method: "boom"})
	if result.Response == nil || result.Response.Error == nil {
		t.Fatal("Dispatch() after panic returned no error response")
	}
	if result.Response.Error.Code != protocol.CodeInternalError {
		t.Errorf("error code = %v, want %v", result.Response.Error.Code, protocol.CodeInternalError)
	}
}
