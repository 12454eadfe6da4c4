package moderation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/modsentry/modsentry/internal/llm"
	"github.com/modsentry/modsentry/internal/policycache"
	"github.com/modsentry/modsentry/internal/store"
	"github.com/modsentry/modsentry/internal/telemetry"
	"github.com/modsentry/modsentry/internal/tracing"
)

var tracer = tracing.Tracer("modsentry/moderation")

// deletionStreamTTL is the fixed lifetime of a per-chat deletion stream.
const deletionStreamTTL = 24 * time.Hour

// Deleter is the narrow chat-platform capability the engine needs to act on
// a trigger hit; internal/telegram implements it over the Bot API.
type Deleter interface {
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
}

// StreamBus is the slice of the bus the engine appends to: LM tasks on the
// task stream, deletion records on the per-chat TTL streams. *bus.Bus
// satisfies it; tests substitute an in-memory fake.
type StreamBus interface {
	Append(ctx context.Context, stream string, fields map[string]any, maxLen int64) (string, error)
	AppendWithTTL(ctx context.Context, stream string, fields map[string]any, ttl time.Duration) (string, error)
}

// Config bundles the engine's tunables.
type Config struct {
	Workers              int
	QueueCapacity        int
	TasksStream          string
	DeletionStreamPrefix string
}

// Engine owns the bounded intake channel and the worker pool draining it.
type Engine struct {
	cfg       Config
	cache     *policycache.Cache
	dao       store.DAO
	bus       StreamBus
	deleter   Deleter
	telemetry *telemetry.Sink

	queue chan WorkItem
}

// SetTelemetry wires the engine's tracing subsystem to the async telemetry
// pipe: trigger hits are enqueued as structured log events alongside the
// span already started in process. Nil is a valid value
// and disables this best-effort channel entirely.
func (e *Engine) SetTelemetry(sink *telemetry.Sink) {
	e.telemetry = sink
}

// NewEngine wires the engine's dependencies and allocates the intake channel.
// Its capacity is Config.QueueCapacity, or 10000 when that is not positive;
// a positive value is used as given, including values below 10000.
func NewEngine(cfg Config, cache *policycache.Cache, dao store.DAO, b StreamBus, deleter Deleter) *Engine {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = 10000
	}
	return &Engine{
		cfg:     cfg,
		cache:   cache,
		dao:     dao,
		bus:     b,
		deleter: deleter,
		queue:   make(chan WorkItem, cfg.QueueCapacity),
	}
}

// Submit is the producer side: a synchronous, non-blocking enqueue. On a
// full channel the item is dropped. Returns false when the item was dropped.
func (e *Engine) Submit(item WorkItem) bool {
	select {
	case e.queue <- item:
		return true
	default:
		slog.Warn("moderation intake queue full, dropping message", "chat_id", item.ChatID, "message_id", item.MessageID)
		return false
	}
}

// Run starts cfg.Workers goroutines competing for items on the shared
// intake channel and blocks until ctx is cancelled. Each worker finishes its
// current item before observing cancellation.
func (e *Engine) Run(ctx context.Context) {
	done := make(chan struct{}, e.cfg.Workers)
	for i := 0; i < e.cfg.Workers; i++ {
		go func(id int) {
			e.workerLoop(ctx, id)
			done <- struct{}{}
		}(i)
	}
	for i := 0; i < e.cfg.Workers; i++ {
		<-done
	}
}

func (e *Engine) workerLoop(ctx context.Context, id int) {
	slog.Info("moderation worker started", "worker", id)
	for {
		select {
		case <-ctx.Done():
			slog.Info("moderation worker stopping", "worker", id)
			return
		case item := <-e.queue:
			e.process(ctx, item)
		}
	}
}

// process runs the per-item moderation pipeline. It never propagates an
// error across the work-item boundary: every failure is logged, a panic is
// recovered and logged, and the worker moves to the next item.
func (e *Engine) process(ctx context.Context, item WorkItem) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("moderation item panicked", "chat_id", item.ChatID, "message_id", item.MessageID, "panic", r)
		}
	}()

	ctx, span := tracer.Start(ctx, "moderation.process_item", trace.WithAttributes(
		attribute.Int64("chat_id", item.ChatID),
		attribute.Int("message_id", item.MessageID),
	))
	defer span.End()

	policy, err := e.cache.Get(ctx, item.ChatID)
	if errors.Is(err, store.ErrChatNotFound) {
		slog.Warn("chat not registered, skipping", "chat_id", item.ChatID)
		return
	}
	if err != nil {
		slog.Error("policy lookup failed", "chat_id", item.ChatID, "error", err)
		return
	}

	if item.IsTrustedOrOwner {
		e.countProcessed(ctx, item, policy, !policy.AIEnabled)
		return
	}

	trigger := DetectTrigger(item.Text, item.Entities, policy)
	if trigger != TriggerNone {
		e.handleHit(ctx, item, policy, trigger)
		return
	}

	if policy.AIEnabled {
		e.enqueueLM(ctx, item, policy)
		e.countProcessed(ctx, item, policy, false)
		return
	}

	e.countProcessed(ctx, item, policy, true)
}

// countProcessed increments the chat's processed counter and, when
// markValid is true, the user's valid_messages counter. Both failures are
// logged and non-fatal.
func (e *Engine) countProcessed(ctx context.Context, item WorkItem, policy *store.ChatPolicy, markValid bool) {
	if err := e.dao.IncrementProcessed(ctx, item.ChatID); err != nil {
		slog.Error("increment processed failed", "chat_id", item.ChatID, "error", err)
	} else {
		policy.Processed++
		e.cache.Set(item.ChatID, *policy)
	}

	if !markValid {
		return
	}

	state, err := e.dao.EnsureUserState(ctx, item.UserID, item.ChatID)
	if err != nil {
		slog.Error("ensure user state failed", "chat_id", item.ChatID, "user_id", item.UserID, "error", err)
		return
	}
	if err := e.dao.IncrementValid(ctx, state.ID); err != nil {
		slog.Error("increment valid failed", "user_state_id", state.ID, "error", err)
	}
}

func (e *Engine) handleHit(ctx context.Context, item WorkItem, policy *store.ChatPolicy, trigger Trigger) {
	slog.Info("moderation trigger hit", "chat_id", item.ChatID, "message_id", item.MessageID, "trigger", string(trigger))

	if err := e.persistDeletion(ctx, item, policy); err != nil {
		slog.Warn("persist deletion record failed (non-fatal)", "chat_id", item.ChatID, "message_id", item.MessageID, "error", err)
	}

	if err := e.deleter.DeleteMessage(ctx, item.ChatID, item.MessageID); err != nil {
		slog.Warn("delete message failed (non-fatal)", "chat_id", item.ChatID, "message_id", item.MessageID, "error", err)
	}

	if err := e.dao.IncrementProcessed(ctx, item.ChatID); err != nil {
		slog.Error("increment processed failed", "chat_id", item.ChatID, "error", err)
	}
	if err := e.dao.IncrementSpam(ctx, item.ChatID); err != nil {
		slog.Error("increment spam failed", "chat_id", item.ChatID, "error", err)
	}
	if err := e.dao.IncrementMessagesDeleted(ctx, item.ChatID); err != nil {
		slog.Error("increment messages deleted failed", "chat_id", item.ChatID, "error", err)
	}

	policy.Processed++
	policy.SpamDetected++
	policy.MessagesDeleted++
	e.cache.Set(item.ChatID, *policy)

	if e.telemetry != nil {
		e.telemetry.Enqueue(telemetry.Event{
			Timestamp: time.Now().UTC(),
			Service:   "telegram-bot",
			Level:     telemetry.LevelInfo,
			Message:   "moderation trigger hit",
			Fields: map[string]any{
				"chat_id":    item.ChatID,
				"message_id": item.MessageID,
				"trigger":    string(trigger),
			},
		})
	}
}

// deletionRecord is serialized verbatim as the per-chat deletion stream's
// payload field.
type deletionRecord struct {
	JobID         string `json:"job_id"`
	ChatID        int64  `json:"chat_id"`
	ChatUUID      string `json:"chat_uuid"`
	UserID        int64  `json:"user_id"`
	UserStateUUID string `json:"user_state_uuid,omitempty"`
	Nickname      string `json:"nickname,omitempty"`
	MessageText   string `json:"message_text"`
	Timestamp     int64  `json:"timestamp"`
}

func (e *Engine) persistDeletion(ctx context.Context, item WorkItem, policy *store.ChatPolicy) error {
	jobID := uuid.Must(uuid.NewRandom()).String()

	userStateUUID := ""
	if state, err := e.dao.EnsureUserState(ctx, item.UserID, item.ChatID); err == nil {
		userStateUUID = state.ID.String()
	}

	record := deletionRecord{
		JobID:         jobID,
		ChatID:        item.ChatID,
		ChatUUID:      policy.ChatUUID.String(),
		UserID:        item.UserID,
		UserStateUUID: userStateUUID,
		Nickname:      item.Nickname,
		MessageText:   messageWithLinks(item),
		Timestamp:     time.Now().Unix(),
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal deletion record: %w", err)
	}

	stream := fmt.Sprintf("%s:%s", e.cfg.DeletionStreamPrefix, policy.ChatUUID.String())
	_, err = e.bus.AppendWithTTL(ctx, stream, map[string]any{
		"job_id":  jobID,
		"payload": string(payload),
	}, deletionStreamTTL)
	return err
}

// messageWithLinks appends the URL of every link-bearing entity to the
// message text,
// so the deletion record's audit trail retains links Telegram's entity
// offsets would otherwise strip once the message itself is deleted.
func messageWithLinks(item WorkItem) string {
	var links []string
	for _, e := range item.Entities {
		if url, ok := extractEntityURL(item.Text, e); ok {
			links = append(links, url)
		}
	}
	if len(links) == 0 {
		return item.Text
	}
	return item.Text + " [Links: " + strings.Join(links, ", ") + "]"
}

func (e *Engine) enqueueLM(ctx context.Context, item WorkItem, policy *store.ChatPolicy) {
	task := llm.Task{
		TaskID:      uuid.Must(uuid.NewRandom()).String(),
		ChatID:      item.ChatID,
		MessageID:   item.MessageID,
		UserID:      item.UserID,
		MessageText: item.Text,
		Thresholds:  []float64{policy.PromptsThreshold, policy.CustomPromptThreshold},
		CreatedAt:   time.Now().UTC(),
	}

	extra, err := task.Extra()
	if err != nil {
		slog.Error("marshal lm task extra failed", "chat_id", item.ChatID, "message_id", item.MessageID, "error", err)
		return
	}

	_, err = e.bus.Append(ctx, e.cfg.TasksStream, map[string]any{
		"job_id":     task.TaskID,
		"payload":    task.MessageText,
		"extra_json": extra,
	}, 0)
	if err != nil {
		slog.Error("enqueue lm task failed", "chat_id", item.ChatID, "message_id", item.MessageID, "error", err)
	}
}
