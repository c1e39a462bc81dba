package rpc

import (
	"strings"

	"github.com/hamidra/a2alite/internal/logger"
	"github.com/hamidra/a2alite/internal/protocol"
)

// internalErrorPatterns contains substrings that indicate internal failures
// whose detail should not reach clients.
var internalErrorPatterns = []string{
	"connection refused",
	"no such file",
	"permission denied",
	"database",
	"sql",
}

// sanitizeError maps an arbitrary handler error to a protocol error. Values
// that already carry a JSON-RPC shape pass through verbatim. An error whose
// text matches internalErrorPatterns is logged and replaced with a generic
// "<operation> failed" message; any other error is logged and returned as an
// internal error carrying its own text.
func sanitizeError(err error, operation string) *protocol.Error {
	if err == nil {
		return nil
	}

	if rpcErr, ok := err.(*protocol.Error); ok {
		return rpcErr
	}

	errStr := strings.ToLower(err.Error())
	for _, pattern := range internalErrorPatterns {
		if strings.Contains(errStr, pattern) {
			logger.Slog().Error("internal failure", "operation", operation, "error", err)
			return protocol.ErrInternal(operation + " failed")
		}
	}

	logger.Slog().Error("operation failed", "operation", operation, "error", err)
	return protocol.ErrInternal(err.Error())
}

// agentError maps an error produced by the agent executor: protocol errors
// pass through, anything else is an invalid agent response.
func agentError(err error) *protocol.Error {
	if rpcErr, ok := err.(*protocol.Error); ok {
		return rpcErr
	}
	return protocol.ErrInvalidAgentResponse(err.Error())
}
