// Package server provides the thin transport shells around the
// storage core: an HTTP mux exposing /health and /v1/stats plus a
// generic /v1/request endpoint, and a native-messaging framed
// stdin/stdout loop — both fronting the same Dispatcher so the
// routing logic is written once. Everything beyond health/stats/
// storage-op routing (chat completions, model management, WebRTC
// signaling) belongs to the inference-serving collaborators, not to
// this substrate.
package server

import (
	"bufio"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"

	"github.com/tabagent/nornicsubstrate/pkg/dberr"
	"github.com/tabagent/nornicsubstrate/pkg/model"
	"github.com/tabagent/nornicsubstrate/pkg/query"
	"github.com/tabagent/nornicsubstrate/pkg/scheduler"
	"github.com/tabagent/nornicsubstrate/pkg/substrate"
	"github.com/tabagent/nornicsubstrate/pkg/tiered"
	"github.com/tabagent/nornicsubstrate/pkg/transport"
	"github.com/tabagent/nornicsubstrate/pkg/weaver"
)

// Dispatcher routes a transport.RequestValue to the storage core and
// returns a transport.ResponseValue, independent of which transport
// produced the request.
type Dispatcher struct {
	Engine    *substrate.Engine
	Planner   *query.Planner
	Weaver    *weaver.Weaver
	Scheduler *scheduler.Scheduler
}

// Dispatch handles one request. Request kinds this core cannot serve
// (the Chat/Generate/Embeddings ML-inference surface belonging to the
// model-serving collaborator) return a BackendError(unavailable):
// recognized, never silently dropped.
func (d *Dispatcher) Dispatch(ctx context.Context, req transport.RequestValue) transport.ResponseValue {
	switch req.Kind {
	case transport.KindHealth:
		return transport.OK(req.RequestID, map[string]bool{"ok": true})

	case transport.KindSystemInfo:
		return transport.OK(req.RequestID, map[string]string{"name": "nornicsubstrate"})

	case transport.KindGetStats:
		stats := map[string]interface{}{"vector_cache": d.Engine.VectorCacheStats()}
		if d.Weaver != nil {
			stats["weaver"] = d.Weaver.Stats()
		}
		if d.Scheduler != nil {
			stats["scheduler"] = d.Scheduler.Stats()
		}
		return transport.OK(req.RequestID, stats)

	case transport.KindInsertNode:
		var n model.Node
		if err := json.Unmarshal(req.Payload, &n); err != nil {
			return transport.Failed(req.RequestID, "validation", err.Error())
		}
		if err := d.Engine.InsertNode(&n); err != nil {
			return errResponse(req.RequestID, err)
		}
		if d.Weaver != nil {
			d.Weaver.OnNodeCreated(n.ID)
		}
		return transport.OK(req.RequestID, n)

	case transport.KindGetNode:
		var body struct {
			ID model.NodeID `json:"id"`
		}
		if err := json.Unmarshal(req.Payload, &body); err != nil {
			return transport.Failed(req.RequestID, "validation", err.Error())
		}
		n, err := d.Engine.GetNode(body.ID)
		if err != nil {
			return errResponse(req.RequestID, err)
		}
		return transport.OK(req.RequestID, n)

	case transport.KindAddEdge:
		var body struct {
			From, To model.NodeID
			EdgeType string
			Metadata string
		}
		if err := json.Unmarshal(req.Payload, &body); err != nil {
			return transport.Failed(req.RequestID, "validation", err.Error())
		}
		edge, err := d.Engine.AddEdge(body.From, body.To, body.EdgeType, body.Metadata)
		if err != nil {
			return errResponse(req.RequestID, err)
		}
		return transport.OK(req.RequestID, edge)

	case transport.KindPromoteNode:
		var body struct {
			ID      model.NodeID
			Tier    string
			Quarter string
		}
		if err := json.Unmarshal(req.Payload, &body); err != nil {
			return transport.Failed(req.RequestID, "validation", err.Error())
		}
		if err := d.Engine.Promote(body.ID, tiered.Tier(body.Tier), body.Quarter); err != nil {
			return errResponse(req.RequestID, err)
		}
		return transport.OK(req.RequestID, map[string]bool{"promoted": true})

	case transport.KindQuery:
		var q query.ConvergedQuery
		if err := json.Unmarshal(req.Payload, &q); err != nil {
			return transport.Failed(req.RequestID, "validation", err.Error())
		}
		results, err := d.Planner.Execute(ctx, q)
		if err != nil {
			return errResponse(req.RequestID, err)
		}
		return transport.OK(req.RequestID, results)

	default:
		return transport.Failed(req.RequestID, "unavailable", "request kind not served by the storage core: "+string(req.Kind))
	}
}

func errResponse(requestID string, err error) transport.ResponseValue {
	return transport.Failed(requestID, dberr.Code(err), err.Error())
}

// httpStatus maps a stable error code to an HTTP status.
func httpStatus(code string) int {
	switch code {
	case "validation":
		return http.StatusBadRequest
	case "not_found":
		return http.StatusNotFound
	case "conflict", "invalid_operation":
		return http.StatusConflict
	case "rate_limited":
		return http.StatusTooManyRequests
	case "timeout":
		return http.StatusGatewayTimeout
	case "unavailable", "model_not_loaded", "out_of_memory", "session_not_found":
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Server is the HTTP thin shell: /health, /v1/stats, and /v1/request
// as the generic RequestValue/ResponseValue passthrough.
type Server struct {
	dispatcher   *Dispatcher
	maxBodyBytes int64
}

// New builds a Server fronting d, capping request bodies at
// maxBodyBytes (0 disables the cap).
func New(d *Dispatcher, maxBodyBytes int64) *Server {
	return &Server{dispatcher: d, maxBodyBytes: maxBodyBytes}
}

// Mux builds the http.Handler exposing this server's routes.
func (s *Server) Mux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/v1/stats", s.handleStats)
	mux.HandleFunc("/v1/request", s.handleRequest)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	resp := s.dispatcher.Dispatch(r.Context(), transport.RequestValue{Kind: transport.KindGetStats})
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body := r.Body
	if s.maxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, body, s.maxBodyBytes)
	}
	var req transport.RequestValue
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, transport.Failed("", "validation", err.Error()))
		return
	}
	resp := s.dispatcher.Dispatch(r.Context(), req)
	status := http.StatusOK
	if !resp.Success && resp.Error != nil {
		status = httpStatus(resp.Error.Code)
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("server: encode response: %v", err)
	}
}

// ServeNativeMessaging runs the native-messaging framed stdin/stdout
// loop until stdin closes or ctx is cancelled, answering each
// transport.ReadFrame request with a dispatched transport.WriteFrame
// response.
func ServeNativeMessaging(ctx context.Context, d *Dispatcher) error {
	in := bufio.NewReader(os.Stdin)
	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		req, err := transport.ReadFrame(in)
		if err != nil {
			return err
		}
		resp := d.Dispatch(ctx, req)
		if err := transport.WriteFrame(out, resp); err != nil {
			return err
		}
		if err := out.Flush(); err != nil {
			return err
		}
	}
}
