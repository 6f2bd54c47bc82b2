package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"

	"EstabloLedger/internal/ingestion"
	"EstabloLedger/internal/projection"
)

const maxRequestBody = 1 << 20 // 1 MiB

// newAPIMux wires the HTTP/JSON routes. Commands are accepted with 202 and
// published onto the request stream; queries read the projection tables.
func (s *Server) newAPIMux() (*runtime.ServeMux, error) {
	mux := runtime.NewServeMux()

	routes := []struct {
		method  string
		pattern string
		handler runtime.HandlerFunc
	}{
		{"POST", "/v1/requests/{type}", s.handleSubmitRequest},
		{"GET", "/v1/ledger/status", s.handleLedgerStatus},
		{"GET", "/v1/assets", s.handleListAssets},
		{"GET", "/v1/assets/{asset_mint_ref}", s.handleGetAsset},
		{"GET", "/v1/assets/{asset_mint_ref}/valuations", s.handleValuationHistory},
		{"GET", "/v1/admin/integrity", s.handleVerifyIntegrity},
		{"GET", "/v1/admin/outcome-log", s.handleOutcomeLogInfo},
		{"POST", "/v1/admin/projections/rebuild", s.handleRebuildProjections},
	}
	for _, r := range routes {
		if err := mux.HandlePath(r.method, r.pattern, r.handler); err != nil {
			return nil, err
		}
	}
	return mux, nil
}

func (s *Server) handleSubmitRequest(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	typeParam := pathParams["type"]
	requestType, err := ingestion.SubjectRequestType(ingestion.RequestSubjectPrefix + typeParam)
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown request type: "+typeParam)
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}

	req, err := s.deps.Submitter.Submit(r.Context(), requestType, payload)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Accepted, not applied: the core picks it up from the stream.
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"accepted":        true,
		"request_type":    requestType,
		"request_id":      req.Ref().String(),
		"idempotency_key": req.IdempotencyKey(),
	})
}

func (s *Server) handleLedgerStatus(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	resp, err := s.deps.Query.GetLedgerStatus(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetAsset(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	ref := pathParams["asset_mint_ref"]
	asset, err := s.deps.Query.GetAsset(r.Context(), ref)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if asset == nil {
		writeError(w, http.StatusNotFound, "unknown asset: "+ref)
		return
	}
	writeJSON(w, http.StatusOK, asset)
}

func (s *Server) handleListAssets(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	q := r.URL.Query()

	var status, owner, afterRef *string
	if v := q.Get("status"); v != "" {
		status = &v
	}
	if v := q.Get("owner"); v != "" {
		owner = &v
	}
	if v := q.Get("after"); v != "" {
		afterRef = &v
	}

	assets, err := s.deps.Query.ListAssets(r.Context(), status, owner, pageSize(q.Get("limit"), 100), afterRef)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := map[string]interface{}{"assets": assets}
	if len(assets) > 0 {
		resp["as_of_sequence"] = assets[0].AsOfSequence
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleValuationHistory(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	ref := pathParams["asset_mint_ref"]
	q := r.URL.Query()

	var beforeSeq *int64
	if v := q.Get("before"); v != "" {
		seq, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid before cursor")
			return
		}
		beforeSeq = &seq
	}

	history, err := s.deps.Query.GetValuationHistory(r.Context(), ref, pageSize(q.Get("limit"), 50), beforeSeq)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := map[string]interface{}{"valuations": history}
	if len(history) > 0 {
		resp["as_of_sequence"] = history[0].AsOfSequence
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleVerifyIntegrity(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	report, err := s.deps.Query.VerifyIntegrity(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleOutcomeLogInfo(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	latestSeq, err := s.deps.SnapshotStore.GetLatestSequence(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"last_sequence": latestSeq,
		"uptime_s":      int64(time.Since(s.deps.StartTime).Seconds()),
	})
}

func (s *Server) handleRebuildProjections(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	if err := projection.Rebuild(r.Context(), s.deps.DB, s.deps.Metrics); err != nil {
		writeError(w, http.StatusInternalServerError, "rebuild failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"rebuilt": true})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func pageSize(raw string, def int) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 || n > 500 {
		return def
	}
	return n
}
