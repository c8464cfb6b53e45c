// Command lambda triggers one run per invocation, for scheduled EventBridge
// rules or manual invokes.
package main

import (
	"context"
	"errors"
	"sync"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/deusflow/shorts-hunter/internal/app"
	"github.com/deusflow/shorts-hunter/internal/config"
	"github.com/deusflow/shorts-hunter/internal/logger"
	"github.com/deusflow/shorts-hunter/internal/storage"
)

// Event mirrors the HTTP run request. Every field is optional.
type Event struct {
	Mode        string `json:"mode"`
	WindowHours int    `json:"windowHours"`
	PresetID    string `json:"presetId"`
}

// Response is returned on success only. Failures come back as the
// invocation error so Lambda retries and alarms see them; a failed run's id
// is part of that error text.
type Response struct {
	StatusCode int                     `json:"statusCode"`
	RunID      string                  `json:"runId"`
	Status     string                  `json:"status"`
	Totals     *storage.Totals         `json:"totals,omitempty"`
	Top10      []storage.TrendingEntry `json:"trendingTop10,omitempty"`
	Sources    []storage.SourceOutcome `json:"sources,omitempty"`
}

type trigger interface {
	Trigger(ctx context.Context, req app.RunRequest) (*storage.Run, error)
}

var (
	mu sync.Mutex
	rt *app.Runtime
)

// service wires the runtime on first use and keeps it for warm invocations.
// A failed bootstrap is not cached; the next invocation tries again.
func service(ctx context.Context) (trigger, error) {
	mu.Lock()
	defer mu.Unlock()
	if rt != nil {
		return rt.Service, nil
	}

	logger.Init()
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	built, err := app.Bootstrap(ctx, cfg, logger.Logger)
	if err != nil {
		return nil, err
	}
	rt = built
	return rt.Service, nil
}

func Handler(ctx context.Context, ev Event) (Response, error) {
	svc, err := service(ctx)
	if err != nil {
		logger.Error("lambda bootstrap failed", "error", err)
		return Response{}, err
	}
	return handle(ctx, svc, ev)
}

func handle(ctx context.Context, svc trigger, ev Event) (Response, error) {
	logger.Info("lambda run requested", "mode", ev.Mode, "window_hours", ev.WindowHours, "preset_id", ev.PresetID)

	run, err := svc.Trigger(ctx, app.RunRequest{Mode: ev.Mode, WindowHours: ev.WindowHours, PresetID: ev.PresetID})
	if err != nil {
		var runErr *app.RunError
		if errors.As(err, &runErr) {
			logger.Error("lambda run failed", "run_id", runErr.RunID, "error", runErr.Err)
		}
		return Response{}, err
	}

	resp := Response{StatusCode: 200, RunID: run.ID, Status: run.Status}
	if run.Summary != nil {
		resp.Totals = &run.Summary.Totals
		resp.Top10 = run.Summary.TrendingTop10
		resp.Sources = run.Summary.Sources
	}
	return resp, nil
}

func main() {
	lambda.Start(Handler)
}
