package integration

import (
	"context"
	"math"
	"time"

	"github.com/vyrodovalexey/integrationgw/internal/cache"
	"github.com/vyrodovalexey/integrationgw/internal/observability"
)

// Async operation states.
const (
	StatusReadyToStart = "READY_TO_START"
	StatusProcessing   = "PROCESSING"
	StatusSuccess      = "SUCCESS"
	StatusTimeout      = "TIMEOUT"
)

// APIStatus is the observed state of an async operation. RemainingTime is
// in milliseconds.
type APIStatus struct {
	Status        string `json:"status"`
	RemainingTime int64  `json:"remainingTime"`
}

// AsyncResult is returned by ConsumeAsyncAPI. Response is nil when the
// operation had already been started.
type AsyncResult struct {
	Response *APIResponse `json:"response,omitempty"`
	Status   *APIStatus   `json:"status"`
}

// asyncRecord is the shared cache value of an operation.
type asyncRecord struct {
	Context        any   `json:"context"`
	EndTime        int64 `json:"endTime"`
	CallbackResult any   `json:"callbackResult,omitempty"`
}

// AsyncClient starts gateway calls that complete through a callback.
type AsyncClient struct {
	*GatewayClient

	now func() time.Time
}

// NewAsyncClient wraps gateway. A nil now uses time.Now.
func NewAsyncClient(gateway *GatewayClient, now func() time.Time) *AsyncClient {
	if now == nil {
		now = time.Now
	}
	return &AsyncClient{GatewayClient: gateway, now: now}
}

// ConsumeAsyncAPI starts operation id unless it already exists, in which
// case only its state is returned. The deadline is taken before the call.
// The returned status is the one observed before starting.
func (a *AsyncClient) ConsumeAsyncAPI(
	ctx context.Context,
	id string,
	in APIConsume,
	timeoutMs int64,
	opContext any,
) (*AsyncResult, error) {
	current, err := a.GetContext(ctx, id, timeoutMs)
	if err != nil {
		return nil, err
	}
	if current.Status != StatusReadyToStart {
		a.metrics.RecordAsyncOperation("start", current.Status)
		return &AsyncResult{Status: current}, nil
	}

	record := asyncRecord{
		Context: opContext,
		EndTime: a.now().UnixMilli() + timeoutMs,
	}

	resp, err := a.ConsumeAPIGatewayService(ctx, in)
	if err != nil {
		return nil, err
	}

	if err := a.cache.SetObject(ctx, id, record, cache.Hour); err != nil {
		return nil, err
	}
	a.metrics.RecordAsyncOperation("start", current.Status)
	a.logger.Info("async operation started",
		observability.String("id", id),
		observability.Int64("timeoutMs", timeoutMs))

	return &AsyncResult{Response: resp, Status: current}, nil
}

// GetContext returns the state of operation id. timeoutMs is reported as
// the remaining time when the operation does not exist.
func (a *AsyncClient) GetContext(ctx context.Context, id string, timeoutMs int64) (*APIStatus, error) {
	var record asyncRecord
	found, err := a.cache.GetObject(ctx, id, &record)
	if err != nil {
		return nil, err
	}
	if !found {
		return &APIStatus{Status: StatusReadyToStart, RemainingTime: timeoutMs}, nil
	}

	remaining := record.EndTime - a.now().UnixMilli()
	if remaining < 0 {
		remaining = 0
	}
	return &APIStatus{
		Status:        statusOf(remaining, hasCallbackResult(record.CallbackResult)),
		RemainingTime: remaining,
	}, nil
}

// End stores the callback result of a PROCESSING operation, keeping the
// record's TTL. Two concurrent callbacks for the same id may both succeed,
// the later write winning.
func (a *AsyncClient) End(ctx context.Context, id string, result any) (map[string]any, error) {
	current, err := a.GetContext(ctx, id, 0)
	if err != nil {
		return nil, err
	}
	a.metrics.RecordAsyncOperation("end", current.Status)

	if current.Status != StatusProcessing {
		return nil, &AsyncCallbackError{ID: id, Status: current.Status}
	}

	updated, err := a.cache.UpdateObject(ctx, id, map[string]any{"callbackResult": result})
	if err != nil {
		return nil, err
	}
	a.logger.Info("async operation callback stored",
		observability.String("id", id))
	return updated, nil
}

// hasCallbackResult reports whether a stored callback result counts as
// delivered. false, zero, NaN and the empty string count as absent.
func hasCallbackResult(v any) bool {
	switch r := v.(type) {
	case nil:
		return false
	case bool:
		return r
	case float64:
		return r != 0 && !math.IsNaN(r)
	case string:
		return r != ""
	default:
		return true
	}
}

func statusOf(remainingMs int64, hasResult bool) string {
	finished := remainingMs <= 0
	switch {
	case hasResult && finished:
		return StatusSuccess
	case !hasResult && finished:
		return StatusTimeout
	default:
		return StatusProcessing
	}
}
