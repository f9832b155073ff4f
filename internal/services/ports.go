package services

import (
	"context"

	"tally/internal/core"
)

// Ports consumed by the generation and template services. The SQLite
// repository satisfies all of them.
type (
	// TemplateStore reads templates due for generation and advances their
	// bookmark.
	TemplateStore interface {
		// ListActiveDueBefore pre-filters active templates whose advisory
		// next_generation_date is unset or on/before windowEnd.
		ListActiveDueBefore(ctx context.Context, windowEnd core.Date) ([]core.RecurringTemplate, error)
		UpdateBookmark(ctx context.Context, id int64, lastGenerated, nextGeneration core.Date) error
		UpdateTemplate(ctx context.Context, t core.RecurringTemplate) error
		SetActive(ctx context.Context, id int64, active bool) error
		DeleteTemplateRow(ctx context.Context, id int64) error
	}

	// InstanceStore reads and writes the dated instances stamped from
	// templates.
	InstanceStore interface {
		ExistsForTemplateOnDate(ctx context.Context, templateID int64, date core.Date) (bool, error)
		// BatchInsert creates the staged instances, silently skipping rows
		// that lose the (template, date) uniqueness race, and returns the
		// ids of the rows actually created.
		BatchInsert(ctx context.Context, instances []core.TransactionInstance) ([]int64, error)
		// LatestGeneratedDate returns the date of the template's most recent
		// generated instance, zero when none remain.
		LatestGeneratedDate(ctx context.Context, templateID int64) (core.Date, error)
		DeleteFutureGenerated(ctx context.Context, templateID int64, after core.Date) (int64, error)
		DeleteFutureLinked(ctx context.Context, templateID int64, after core.Date) (int64, error)
		UnlinkThrough(ctx context.Context, templateID int64, through core.Date) (int64, error)
		Detach(ctx context.Context, instanceID int64) error
	}

	// SyncPublisher announces freshly created instances so the mirror worker
	// can export them. A nil publisher disables announcements.
	SyncPublisher interface {
		PublishInstanceSync(ctx context.Context, id int64) error
	}
)
