package services

import (
	"context"
	"fmt"
	"log/slog"

	"tally/internal/core"
	"tally/internal/schedule"
)

// ReconcileMode selects which past/future decision table applies when a
// template is bulk-edited or deleted.
type ReconcileMode string

const (
	// ReconcileEditFuture deletes the template's future machine-generated
	// instances so the next run recreates them with the updated values.
	// Past and present-dated instances are left untouched.
	ReconcileEditFuture ReconcileMode = "edit-future"

	// ReconcileDeleteTemplate unlinks past/present instances (preserving the
	// historical ledger) and deletes every future linked instance outright.
	ReconcileDeleteTemplate ReconcileMode = "delete-template"
)

// TemplateService owns the externally-triggered template mutations whose
// ordering the generator's invariants depend on.
type TemplateService struct {
	templates TemplateStore
	instances InstanceStore
}

func NewTemplateService(templates TemplateStore, instances InstanceStore) *TemplateService {
	return &TemplateService{
		templates: templates,
		instances: instances,
	}
}

// ReconcileInstancesOnTemplateChange applies the past-versus-future decision
// table keyed on (instance date <= today) for the given mode. "Future" is
// strictly after today; a present-dated instance counts as history.
func (s *TemplateService) ReconcileInstancesOnTemplateChange(ctx context.Context, templateID int64, today core.Date, mode ReconcileMode) error {
	switch mode {
	case ReconcileEditFuture:
		deleted, err := s.instances.DeleteFutureGenerated(ctx, templateID, today)
		if err != nil {
			return fmt.Errorf("delete future generated instances: %w", err)
		}
		slog.InfoContext(ctx, "Removed future generated instances for regeneration",
			"template_id", templateID,
			"deleted", deleted)
		return nil

	case ReconcileDeleteTemplate:
		unlinked, err := s.instances.UnlinkThrough(ctx, templateID, today)
		if err != nil {
			return fmt.Errorf("unlink past instances: %w", err)
		}
		deleted, err := s.instances.DeleteFutureLinked(ctx, templateID, today)
		if err != nil {
			return fmt.Errorf("delete future instances: %w", err)
		}
		slog.InfoContext(ctx, "Reconciled instances for template deletion",
			"template_id", templateID,
			"unlinked", unlinked,
			"deleted", deleted)
		return nil

	default:
		return fmt.Errorf("unknown reconcile mode: %s", mode)
	}
}

// ApplyEdit updates the template's fields ("edit all future instances"),
// then removes its future generated instances so the next generation run
// recreates them with the new values.
//
// The bookmark is rewound to the latest generated instance that survived the
// deletion. Without the rewind the generator would resume past the deleted
// dates and never re-candidate them; the per-date existence check only helps
// for dates that are candidates at all.
func (s *TemplateService) ApplyEdit(ctx context.Context, t core.RecurringTemplate, today core.Date) error {
	if err := s.templates.UpdateTemplate(ctx, t); err != nil {
		return fmt.Errorf("update template: %w", err)
	}
	if err := s.ReconcileInstancesOnTemplateChange(ctx, t.ID, today, ReconcileEditFuture); err != nil {
		return err
	}

	latest, err := s.instances.LatestGeneratedDate(ctx, t.ID)
	if err != nil {
		return fmt.Errorf("latest generated date: %w", err)
	}
	var next core.Date
	if !latest.IsZero() {
		next = schedule.NextDate(latest, t.Frequency)
	}
	if err := s.templates.UpdateBookmark(ctx, t.ID, latest, next); err != nil {
		return fmt.Errorf("rewind bookmark: %w", err)
	}
	return nil
}

// DeleteTemplate removes a template. Instance reconciliation must complete
// before the row is removed, or a partial failure could leave instances
// pointing at a nonexistent template.
func (s *TemplateService) DeleteTemplate(ctx context.Context, id int64, today core.Date) error {
	if err := s.ReconcileInstancesOnTemplateChange(ctx, id, today, ReconcileDeleteTemplate); err != nil {
		return err
	}
	if err := s.templates.DeleteTemplateRow(ctx, id); err != nil {
		return fmt.Errorf("delete template row: %w", err)
	}
	return nil
}

// Pause suppresses generation for the template. The bookmark is frozen; no
// instances are touched.
func (s *TemplateService) Pause(ctx context.Context, id int64) error {
	return s.templates.SetActive(ctx, id, false)
}

// Resume re-enables generation. The frozen bookmark means the next run
// backfills the paused gap up to the current window rather than skipping it.
func (s *TemplateService) Resume(ctx context.Context, id int64) error {
	return s.templates.SetActive(ctx, id, true)
}

// DetachInstance unlinks a single instance from its series ("edit this
// instance only"). No generator state changes.
func (s *TemplateService) DetachInstance(ctx context.Context, instanceID int64) error {
	return s.instances.Detach(ctx, instanceID)
}
