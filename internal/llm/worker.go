package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/modsentry/modsentry/internal/bus"
)

// TaskBus is the slice of the stream bus the pool needs. *bus.Bus satisfies
// it; tests substitute an in-memory fake.
type TaskBus interface {
	EnsureGroup(ctx context.Context, stream, group string) error
	Consume(ctx context.Context, stream, group, consumer string, count int64, block time.Duration, tick *uint64) ([]bus.Entry, error)
	Append(ctx context.Context, stream string, fields map[string]any, maxLen int64) (string, error)
	Finalize(ctx context.Context, stream, group, id string) error
}

// Pool is a fleet of workers, each bound to its own consumer name, draining
// the task stream via the bus and calling Client.OneShot.
type Pool struct {
	Bus           TaskBus
	Client        *Client
	TasksStream   string
	ResultsStream string
	Group         string
	Workers       int
	ReadCount     int64
	BlockFor      time.Duration
	ResultsMaxLen int64
}

// Run starts p.Workers goroutines and blocks until ctx is cancelled, then
// waits for every worker to finish its in-flight item before returning.
func (p *Pool) Run(ctx context.Context) error {
	if err := p.Bus.EnsureGroup(ctx, p.TasksStream, p.Group); err != nil {
		return fmt.Errorf("ensure task group: %w", err)
	}
	if err := p.Bus.EnsureGroup(ctx, p.ResultsStream, "result-readers"); err != nil {
		slog.Warn("ensure results group failed (non-fatal)", "error", err)
	}

	workers := p.Workers
	if workers <= 0 {
		workers = 4
	}

	var wg sync.WaitGroup
	for i := 1; i <= workers; i++ {
		wg.Add(1)
		consumer := fmt.Sprintf("worker-%d", i)
		go func() {
			defer wg.Done()
			p.workerLoop(ctx, consumer)
		}()
	}
	wg.Wait()
	return nil
}

func (p *Pool) workerLoop(ctx context.Context, consumer string) {
	slog.Info("llm worker started", "consumer", consumer)
	var tick uint64

	count := p.ReadCount
	if count <= 0 {
		count = 5
	}
	block := p.BlockFor
	if block <= 0 {
		block = time.Second
	}

	for {
		select {
		case <-ctx.Done():
			slog.Info("llm worker stopping", "consumer", consumer)
			return
		default:
		}

		entries, err := p.Bus.Consume(ctx, p.TasksStream, p.Group, consumer, count, block, &tick)
		if err != nil {
			slog.Error("llm worker consume failed", "consumer", consumer, "error", err)
			continue
		}

		for _, e := range entries {
			p.handle(ctx, consumer, e)
		}
	}
}

func (p *Pool) handle(ctx context.Context, consumer string, e bus.Entry) {
	jobID := e.Fields["job_id"]
	payload := e.Fields["payload"]
	extraRaw := e.Fields["extra_json"]

	if jobID == "" {
		slog.Error("llm task missing job_id, finalizing without model call", "consumer", consumer, "entry_id", e.ID)
		p.finalize(ctx, e.ID)
		return
	}

	var extra map[string]any
	if extraRaw != "" {
		if err := json.Unmarshal([]byte(extraRaw), &extra); err != nil {
			slog.Warn("llm task has unparsable extra_json, ignoring overlay", "job_id", jobID, "error", err)
			extra = nil
		}
	}

	started := time.Now()
	output, err := p.Client.OneShot(ctx, payload, extra)
	elapsed := time.Since(started).Milliseconds()

	result := Result{TaskID: jobID, ElapsedMS: elapsed, CompletedAt: time.Now().UTC()}
	if err != nil {
		result.Ok = false
		result.Error = err.Error()
		slog.Error("llm task failed", "consumer", consumer, "job_id", jobID, "error", err)
	} else {
		result.Ok = true
		result.Output = output
		slog.Info("llm task done", "consumer", consumer, "job_id", jobID, "elapsed_ms", elapsed)
	}

	if writeErr := p.writeResult(ctx, result); writeErr != nil {
		slog.Error("llm result append failed", "job_id", jobID, "error", writeErr)
	}

	p.finalize(ctx, e.ID)
}

func (p *Pool) writeResult(ctx context.Context, r Result) error {
	fields := map[string]any{
		"job_id":     r.TaskID,
		"ok":         boolString(r.Ok),
		"elapsed_ms": r.ElapsedMS,
	}
	if r.Output != "" {
		fields["output"] = r.Output
	}
	if r.Error != "" {
		fields["error"] = r.Error
	}
	_, err := p.Bus.Append(ctx, p.ResultsStream, fields, p.ResultsMaxLen)
	return err
}

func (p *Pool) finalize(ctx context.Context, entryID string) {
	if err := p.Bus.Finalize(ctx, p.TasksStream, p.Group, entryID); err != nil {
		slog.Error("llm task finalize failed", "entry_id", entryID, "error", err)
	}
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
