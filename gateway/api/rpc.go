package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/xssnick/celer-pay-gateway/gateway"
	"github.com/xssnick/celer-pay-gateway/pkg/log"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB

	codeParseError     = -32700
	codeInvalidRequest = -32600
)

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      json.RawMessage   `json:"id,omitempty"`
}

type RPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeRPCError(w, status, nil, &RPCError{Code: codeInvalidRequest, Message: message, Data: err.Error()})
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeRPCError(w, http.StatusBadRequest, nil, &RPCError{Code: codeInvalidRequest, Message: "request body required"})
		return
	}

	var req RPCRequest
	if err = json.Unmarshal(body, &req); err != nil {
		writeRPCError(w, http.StatusBadRequest, nil, &RPCError{Code: codeParseError, Message: "invalid JSON payload", Data: err.Error()})
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeRPCError(w, http.StatusBadRequest, req.ID, &RPCError{Code: codeInvalidRequest, Message: "unsupported jsonrpc version", Data: req.JSONRPC})
		return
	}
	if req.Method == "" {
		writeRPCError(w, http.StatusBadRequest, req.ID, &RPCError{Code: codeInvalidRequest, Message: "method required"})
		return
	}

	res, err := s.q.Call(r.Context(), req.Method, req.Params)
	if err != nil {
		status, rpcErr := toRPCError(err)
		writeRPCError(w, status, req.ID, rpcErr)
		return
	}

	data, err := json.Marshal(res)
	if err != nil {
		log.Error().Err(err).Str("method", req.Method).Msg("failed to encode query result")
		writeRPCError(w, http.StatusInternalServerError, req.ID, &RPCError{Code: gateway.CodeInternalError, Message: "failed to encode result", Data: err.Error()})
		return
	}
	writeRPC(w, http.StatusOK, RPCResponse{JSONRPC: jsonRPCVersion, ID: req.ID, Result: data})
}

// toRPCError keeps the envelope of failed queries, request errors get
// a non-200 status.
func toRPCError(err error) (int, *RPCError) {
	env := gateway.AsEnvelope(err)

	status := http.StatusOK
	switch env.Code {
	case gateway.CodeInvalidParams:
		status = http.StatusBadRequest
	case gateway.CodeMethodNotFound:
		status = http.StatusNotFound
	case gateway.CodeInternalError:
		status = http.StatusInternalServerError
	}
	return status, &RPCError{Code: env.Code, Message: env.Message, Data: env.Diagnostic}
}

func writeRPCError(w http.ResponseWriter, status int, id json.RawMessage, e *RPCError) {
	writeRPC(w, status, RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: e})
}

func writeRPC(w http.ResponseWriter, status int, resp RPCResponse) {
	if len(resp.ID) == 0 {
		resp.ID = json.RawMessage("null")
	}

	data, _ := json.Marshal(resp)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
