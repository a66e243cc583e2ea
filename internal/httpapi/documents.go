package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hybscloud/spiral/pkg/canon"
	"github.com/hybscloud/spiral/pkg/efflog"
	"github.com/hybscloud/spiral/pkg/env"
	"github.com/hybscloud/spiral/pkg/ir"
	"github.com/hybscloud/spiral/pkg/orchestrator"
	"github.com/hybscloud/spiral/pkg/registry"
	"github.com/hybscloud/spiral/pkg/registry/exprops"
	"github.com/hybscloud/spiral/pkg/scheduler"
	"github.com/hybscloud/spiral/pkg/stepbudget"
	"github.com/hybscloud/spiral/pkg/value"
)

// evaluationResponse is POST /v1/documents/evaluate's body: the
// result Value rendered as JSON, the ordered effect log, and the
// document's canonical content digest (so a caller can immediately
// GET /v1/documents/{digest}/result on a later cache hit).
type evaluationResponse struct {
	Result          any            `json:"result"`
	EffectLog       []effectRecord `json:"effect_log"`
	CanonicalDigest string         `json:"canonical_digest"`
}

type effectRecord struct {
	Seq    uint64 `json:"seq"`
	TaskID string `json:"task_id"`
	Op     string `json:"op"`
}

// HandleEvaluate implements POST /v1/documents/evaluate: decode the
// request body as a Document, run it to completion on a fresh
// orchestrator, and return its result alongside the observed effect
// log and the document's canonical digest.
func (s *Server) HandleEvaluate(c *gin.Context) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrInvalidJSON)
		return
	}
	if len(raw) == 0 {
		c.JSON(ErrMissingDocument.HTTPStatus, ErrMissingDocument)
		return
	}

	digest, err := s.canonicalDigest(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, NewAPIError("INVALID_DOCUMENT", err.Error(), http.StatusBadRequest))
		return
	}

	doc, err := ir.DecodeDocument(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, NewAPIError("INVALID_DOCUMENT", err.Error(), http.StatusBadRequest))
		return
	}

	rendered, effects, err := s.evaluateDocument(c.Request.Context(), doc)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, NewAPIError("EVALUATION_FAILED", err.Error(), http.StatusUnprocessableEntity))
		return
	}

	if s.resultCache != nil {
		_ = s.resultCache.Set(c.Request.Context(), digest, rendered)
	}

	resp := evaluationResponse{Result: rendered, CanonicalDigest: digest}
	for _, e := range effects.Ordered() {
		resp.EffectLog = append(resp.EffectLog, effectRecord{Seq: e.SeqNum, TaskID: e.TaskID, Op: e.Op})
	}
	c.JSON(http.StatusOK, resp)
}

// evaluateDocument runs doc on a fresh, request-scoped registry/step
// budget/scheduler and renders the result to a JSON-safe tree.
func (s *Server) evaluateDocument(ctx context.Context, doc *ir.Document) (any, *efflog.Log, error) {
	reg := s.newRegistry()
	budget := stepbudget.New(s.cfg.Eval.MaxSteps)
	effects := efflog.New()
	maxInFlight := s.cfg.Scheduler.MaxParallelism
	if s.cfg.Eval.Concurrency == "sequential" {
		maxInFlight = 1
	}
	sched := scheduler.New(budget, maxInFlight).WithLogger(s.logger)

	orch := orchestrator.New(doc, reg, env.NewCellStore(), budget, effects, sched)
	orch.Logger = s.logger
	orch.WithTracer(s.tracer)

	v, err := orch.Execute(ctx)
	if err != nil {
		return nil, effects, err
	}
	rendered, err := value.ToAny(v)
	if err != nil {
		return nil, effects, err
	}
	return rendered, effects, nil
}

func (s *Server) newRegistry() *registry.Registry {
	reg := registry.New()
	exprops.RegisterDefaults(reg)
	return reg
}

func (s *Server) canonicalDigest(raw []byte) (string, error) {
	var parsed any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", err
	}
	if m, ok := parsed.(map[string]any); ok {
		parsed = canon.StripUnknownTopLevel(m, map[string]bool{
			"version": true, "capabilities": true, "functionSigs": true,
			"airDefs": true, "nodes": true, "result": true,
		})
	}
	return canon.Digest(parsed)
}

// HandleGetResult implements GET /v1/documents/{digest}/result: a
// cache-only lookup by canonical digest. A miss is reported as 404
// rather than silently re-evaluating, since the server has no document
// body to re-evaluate from a digest alone.
func (s *Server) HandleGetResult(c *gin.Context) {
	digest := c.Param("digest")
	if s.resultCache == nil {
		c.JSON(ErrNotFound.HTTPStatus, ErrNotFound)
		return
	}
	var result any
	found, err := s.resultCache.Get(c.Request.Context(), digest, &result)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrInternalServer)
		return
	}
	if !found {
		c.JSON(ErrNotFound.HTTPStatus, ErrNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": result, "canonical_digest": digest})
}

type scheduleRequest struct {
	Cron     string          `json:"cron"`
	Document json.RawMessage `json:"document"`
}

// HandleSchedule implements POST /v1/documents/{id}/schedule.
func (s *Server) HandleSchedule(c *gin.Context) {
	id := c.Param("id")
	var req scheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(ErrInvalidJSON.HTTPStatus, ErrInvalidJSON)
		return
	}
	doc, err := ir.DecodeDocument(req.Document)
	if err != nil {
		c.JSON(http.StatusBadRequest, NewAPIError("INVALID_DOCUMENT", err.Error(), http.StatusBadRequest))
		return
	}
	if err := doc.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, NewAPIError("INVALID_DOCUMENT", err.Error(), http.StatusBadRequest))
		return
	}
	if err := s.cron.Schedule(id, req.Cron, doc); err != nil {
		c.JSON(http.StatusBadRequest, NewAPIError("SCHEDULE_FAILED", err.Error(), http.StatusBadRequest))
		return
	}
	c.JSON(http.StatusCreated, gin.H{"document_id": id, "cron": req.Cron})
}

// HandleUnschedule implements DELETE /v1/documents/{id}/schedule.
func (s *Server) HandleUnschedule(c *gin.Context) {
	id := c.Param("id")
	if !s.cron.Unschedule(id) {
		c.JSON(ErrNotFound.HTTPStatus, ErrNotFound)
		return
	}
	c.Status(http.StatusNoContent)
}

// HandleExecutionStream implements GET /v1/ws/executions/{execution_id}.
func (s *Server) HandleExecutionStream(c *gin.Context) {
	executionID := c.Param("execution_id")
	if err := s.hub.ServeExecutionStream(c.Writer, c.Request, executionID); err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
	}
}
