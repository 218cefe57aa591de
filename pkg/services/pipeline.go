package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/snowquery/engine/pkg/logging"
	"github.com/snowquery/engine/pkg/models"
	"github.com/snowquery/engine/pkg/store"
)

// queryLogTimeout bounds the detached best-effort query-log write.
const queryLogTimeout = 10 * time.Second

// PipelineRequest is one question for the pipeline.
type PipelineRequest struct {
	Question string
	TenantID string
	UserID   string // empty in unauthenticated mode
	Execute  bool
	History  []models.ConversationTurn
}

// Pipeline orchestrates translate → validate → execute and maps every
// outcome, success or failure, into the same response envelope. It never
// lets an error propagate past Run.
type Pipeline struct {
	translator *Translator
	executor   *Executor
	store      store.Store
	logger     *zap.Logger
}

// NewPipeline creates the pipeline.
func NewPipeline(translator *Translator, executor *Executor, st store.Store, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		translator: translator,
		executor:   executor,
		store:      st,
		logger:     logger.Named("pipeline"),
	}
}

// Run processes one question end to end. The returned envelope is always
// complete: at least one of SQL / Error is present, result fields are never
// nil, and a failure after SQL exists still carries that SQL so the caller
// can show what was attempted.
func (p *Pipeline) Run(ctx context.Context, req PipelineRequest) *models.QueryResponse {
	started := time.Now()

	resp := &models.QueryResponse{
		Question:    req.Question,
		Assumptions: []string{},
		Columns:     []string{},
		Data:        []map[string]any{},
	}

	result, err := p.translator.Translate(ctx, req.Question, req.TenantID, req.History)
	if err != nil {
		p.logger.Warn("translation aborted",
			zap.String("tenant_id", req.TenantID),
			zap.String("error", logging.SanitizeError(err)),
		)
		withError(resp, logging.SanitizeError(err))
		return p.finish(req, resp)
	}

	resp.SQL = result.SQL
	resp.Explanation = result.Explanation
	if result.Assumptions != nil {
		resp.Assumptions = result.Assumptions
	}

	if result.Error != nil || result.SQL == nil {
		errText := "No SQL generated"
		if result.Error != nil {
			errText = *result.Error
		}
		withError(resp, errText)
		return p.finish(req, resp)
	}

	if !req.Execute {
		return p.finish(req, resp)
	}

	queryResult, err := p.executor.Execute(ctx, req.TenantID, *result.SQL)
	if err != nil {
		// SQL exists at this point; keep it in the envelope alongside the
		// error so the caller can show what was attempted.
		withError(resp, logging.SanitizeError(err))
		return p.finish(req, resp)
	}

	resp.Columns = queryResult.Columns
	resp.Data = queryResult.Data
	resp.RowCount = queryResult.RowCount
	resp.Truncated = queryResult.Truncated
	elapsed := time.Since(started).Milliseconds()
	resp.ExecutionTimeMs = &elapsed

	return p.finish(req, resp)
}

// withError sets the error text on the envelope and clears result fields.
func withError(resp *models.QueryResponse, errText string) {
	resp.Error = &errText
	resp.Columns = []string{}
	resp.Data = []map[string]any{}
	resp.RowCount = 0
	resp.Truncated = false
}

// finish enforces the envelope invariant and emits the query-log record
// before returning the response.
func (p *Pipeline) finish(req PipelineRequest, resp *models.QueryResponse) *models.QueryResponse {
	if resp.SQL == nil && resp.Error == nil {
		errText := "No SQL generated"
		resp.Error = &errText
	}

	p.recordQuery(req, resp)
	return resp
}

// recordQuery writes one query-log entry on a detached context. The write
// is best-effort: a slow or failing store never blocks or fails the
// response it describes.
func (p *Pipeline) recordQuery(req PipelineRequest, resp *models.QueryResponse) {
	record := &models.QueryRecord{
		TenantID:        req.TenantID,
		Question:        req.Question,
		SQL:             resp.SQL,
		Explanation:     resp.Explanation,
		Success:         resp.Error == nil,
		Error:           resp.Error,
		RowCount:        resp.RowCount,
		ExecutionTimeMs: resp.ExecutionTimeMs,
	}
	if req.UserID != "" {
		record.UserID = &req.UserID
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), queryLogTimeout)
		defer cancel()

		if err := p.store.RecordQuery(ctx, record); err != nil {
			p.logger.Warn("query log write failed",
				zap.String("tenant_id", req.TenantID),
				zap.String("error", logging.SanitizeError(err)),
			)
		}
	}()
}
