package guardian

import (
	"context"
	"fmt"

	apperrors "codeaudit/internal/errors"
	"codeaudit/internal/events"
	"codeaudit/types"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// AnalyzeMany runs the single-unit pipeline for each request with at most
// BatchConcurrency units in flight. Results keep request order; a failing
// unit carries an error string and never affects its siblings.
func (e *Engine) AnalyzeMany(ctx context.Context, reqs []types.AnalysisRequest) ([]types.BatchResult, error) {
	if len(reqs) == 0 {
		return nil, apperrors.NewValidationError("No files provided", nil)
	}
	if len(reqs) > e.limits.BatchMaxUnits {
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("Maximum %d files allowed per batch request", e.limits.BatchMaxUnits),
			map[string]interface{}{"submitted": len(reqs)})
	}

	results := make([]types.BatchResult, len(reqs))
	var g errgroup.Group
	g.SetLimit(e.limits.BatchConcurrency)

	for i, req := range reqs {
		g.Go(func() error {
			results[i] = e.analyzeUnit(ctx, i, req)
			return nil
		})
	}
	_ = g.Wait()

	e.publish(ctx, events.NewBatchEvent(results))
	return results, nil
}

func (e *Engine) analyzeUnit(ctx context.Context, i int, req types.AnalysisRequest) (result types.BatchResult) {
	name := req.FileName
	if name == "" {
		name = fmt.Sprintf("file_%d", i+1)
	}
	result.FileName = name

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("batch unit panicked", zap.String("file", name), zap.Any("panic", r))
			result.Report = nil
			result.Error = fmt.Sprintf("internal error: %v", r)
		}
	}()

	report, err := e.AnalyzeRequest(ctx, req)
	if err != nil {
		result.Error = apperrors.AsAppError(err).Message
		return result
	}
	result.Report = report
	return result
}
