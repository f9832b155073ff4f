package worker

import (
	"context"
	"fmt"
	"log/slog"

	"tally/internal/amqp"
	"tally/internal/core"
	"tally/internal/sheets"
	"tally/internal/storage"
)

// MirrorWorker exports transaction instances from SQLite to the ledger
// mirror (Google Sheets in production).
type MirrorWorker struct {
	storage   *storage.SQLiteRepository
	mirror    sheets.InstanceWriter
	batchSize int
}

func NewMirrorWorker(storage *storage.SQLiteRepository, mirror sheets.InstanceWriter, batchSize int) *MirrorWorker {
	return &MirrorWorker{
		storage:   storage,
		mirror:    mirror,
		batchSize: batchSize,
	}
}

// HandleSyncMessage processes a single instance sync message from AMQP.
func (w *MirrorWorker) HandleSyncMessage(ctx context.Context, msg *amqp.InstanceSyncMessage) error {
	slog.InfoContext(ctx, "Processing sync message", "id", msg.ID)

	instance, err := w.storage.GetInstance(ctx, msg.ID)
	if err != nil {
		return fmt.Errorf("get instance from storage: %w", err)
	}

	if err := w.mirrorInstance(ctx, instance); err != nil {
		return fmt.Errorf("mirror instance: %w", err)
	}

	return nil
}

// ProcessPendingInstances exports any instances that haven't been mirrored
// yet. This is a backup mechanism in case AMQP messages are lost.
func (w *MirrorWorker) ProcessPendingInstances(ctx context.Context) error {
	pending, err := w.storage.GetPendingSyncInstances(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("get pending instances: %w", err)
	}

	if len(pending) == 0 {
		return nil
	}

	slog.InfoContext(ctx, "Processing pending instances", "count", len(pending))

	for _, instance := range pending {
		if err := w.mirrorInstance(ctx, instance); err != nil {
			slog.ErrorContext(ctx, "Failed to mirror instance", "id", instance.ID, "error", err)
			continue
		}
	}

	return nil
}

// StartupSyncCheck mirrors any pending instances at worker startup. Useful
// to recover from missed AMQP messages or worker downtime.
func (w *MirrorWorker) StartupSyncCheck(ctx context.Context) error {
	// Larger batch for the startup sweep
	pending, err := w.storage.GetPendingSyncInstances(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("get pending instances for startup check: %w", err)
	}

	if len(pending) == 0 {
		slog.InfoContext(ctx, "No pending instances found on startup")
		return nil
	}

	slog.InfoContext(ctx, "Found pending instances on startup, processing...",
		"count", len(pending))

	successCount := 0
	errorCount := 0

	for _, instance := range pending {
		if err := w.mirrorInstance(ctx, instance); err != nil {
			slog.ErrorContext(ctx, "Failed to mirror instance during startup",
				"id", instance.ID, "error", err)
			errorCount++
			continue
		}
		successCount++
	}

	slog.InfoContext(ctx, "Startup sync completed",
		"total", len(pending),
		"mirrored", successCount,
		"errors", errorCount)

	return nil
}

func (w *MirrorWorker) mirrorInstance(ctx context.Context, instance core.TransactionInstance) error {
	ref, err := w.mirror.Append(ctx, instance)
	if err != nil {
		if markErr := w.storage.MarkSyncError(ctx, instance.ID); markErr != nil {
			slog.ErrorContext(ctx, "Failed to mark sync error", "id", instance.ID, "error", markErr)
		}
		return fmt.Errorf("append to mirror: %w", err)
	}

	if err := w.storage.MarkSynced(ctx, instance.ID); err != nil {
		slog.ErrorContext(ctx, "Failed to mark as synced", "id", instance.ID, "error", err)
		// Don't return error here - the mirror write actually worked
	}

	slog.InfoContext(ctx, "Mirrored instance",
		"id", instance.ID,
		"mirror_ref", ref,
		"date", instance.Date.String(),
		"amount_cents", instance.Amount.Cents)

	return nil
}
