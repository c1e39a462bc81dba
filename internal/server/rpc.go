package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/hamidra/a2alite/internal/logger"
	"github.com/hamidra/a2alite/internal/metrics"
	"github.com/hamidra/a2alite/internal/protocol"
	"github.com/hamidra/a2alite/internal/validation"
)

// handleRPC parses and validates the JSON-RPC envelope, dispatches, and
// renders the outcome as a single JSON object or an SSE stream of frames.
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)

	var req protocol.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeResponse(w, protocol.NewErrorResponse(nil, protocol.ErrParse()))
		return
	}

	if req.JSONRPC != "2.0" || req.Method == "" {
		writeResponse(w, protocol.NewErrorResponse(req.ID, protocol.ErrInvalidRequest("jsonrpc must be \"2.0\" and method must be set")))
		return
	}

	if err := validation.CheckParams(req.Method, req.Params); err != nil {
		metrics.RecordRPCCall(req.Method, "invalid")
		writeResponse(w, protocol.NewErrorResponse(req.ID, protocol.ErrInvalidParams(err.Error())))
		return
	}

	result := s.dispatcher.Dispatch(r.Context(), &req)

	if result.Stream != nil {
		metrics.RecordRPCCall(req.Method, "stream")
		s.streamResponses(w, r, result.Stream)
		return
	}

	status := "ok"
	if result.Response != nil && result.Response.Error != nil {
		status = "error"
	}
	metrics.RecordRPCCall(req.Method, status)
	writeResponse(w, result.Response)
}

// streamResponses writes each response frame as one SSE data event. The
// channel is always drained so the producing handler never blocks, even
// after the client goes away.
func (s *Server) streamResponses(w http.ResponseWriter, r *http.Request, frames <-chan *protocol.Response) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeResponse(w, protocol.NewErrorResponse(nil, protocol.ErrInternal("streaming not supported")))
		for range frames {
		}
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	clientGone := false
	for frame := range frames {
		if clientGone {
			continue
		}
		data, err := json.Marshal(frame)
		if err != nil {
			logger.InfoContext(r.Context(), "failed to encode stream frame", "error", err)
			continue
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			clientGone = true
			continue
		}
		flusher.Flush()
	}
}

// writeResponse writes a single JSON-RPC response.
func writeResponse(w http.ResponseWriter, resp *protocol.Response) {
	if resp == nil {
		resp = protocol.NewErrorResponse(nil, protocol.ErrInternal("empty response"))
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
