package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"tally/internal/core"
	"tally/internal/schedule"
)

// DefaultHorizonMonths is how far ahead a run pre-generates instances when
// the caller does not override the horizon.
const DefaultHorizonMonths = 3

const defaultMaxParallel = 4

// Generator is the batch engine that expands recurring templates into
// concrete dated transaction instances within a rolling future window.
type Generator struct {
	templates   TemplateStore
	instances   InstanceStore
	publisher   SyncPublisher // optional
	maxParallel int
}

// NewGenerator creates a generator. publisher may be nil; instances are then
// created without mirror announcements.
func NewGenerator(templates TemplateStore, instances InstanceStore, publisher SyncPublisher) *Generator {
	return &Generator{
		templates:   templates,
		instances:   instances,
		publisher:   publisher,
		maxParallel: defaultMaxParallel,
	}
}

// RunGeneration performs one idempotent generation pass as of the given day.
//
// Re-running with the same asOf leaves the database unchanged: the per-date
// existence check skips everything already stamped, and the storage-level
// uniqueness constraint covers the window where two overlapping runs race.
//
// A failure to list templates is fatal to the run. Failures inside a single
// template are isolated: logged, counted in TemplatesSkipped, and the run
// continues with the next template.
func (g *Generator) RunGeneration(ctx context.Context, asOf core.Date, horizonMonths int) (core.GenerationSummary, error) {
	if g.templates == nil || g.instances == nil {
		return core.GenerationSummary{AsOf: asOf}, fmt.Errorf("generator not properly initialized")
	}
	if horizonMonths <= 0 {
		horizonMonths = DefaultHorizonMonths
	}
	windowEnd := core.Date{Time: asOf.AddDate(0, horizonMonths, 0)}

	templates, err := g.templates.ListActiveDueBefore(ctx, windowEnd)
	if err != nil {
		return core.GenerationSummary{AsOf: asOf}, fmt.Errorf("list templates due for generation: %w", err)
	}

	slog.InfoContext(ctx, "Processing recurring templates",
		"total_due", len(templates),
		"as_of", asOf.String(),
		"window_end", windowEnd.String())

	var processed, generated, skipped atomic.Int64

	// Templates are independent; process them in parallel with a bounded
	// group. Worker funcs never return an error so one bad template cannot
	// cancel the others.
	grp, gctx := errgroup.WithContext(ctx)
	grp.SetLimit(g.maxParallel)
	for _, tpl := range templates {
		grp.Go(func() error {
			created, err := g.processTemplate(gctx, tpl, windowEnd)
			if err != nil {
				slog.ErrorContext(gctx, "Failed to process recurring template",
					"template_id", tpl.ID,
					"error", err)
				skipped.Add(1)
				return nil
			}
			processed.Add(1)
			generated.Add(int64(created))
			return nil
		})
	}
	_ = grp.Wait()

	summary := core.GenerationSummary{
		TemplatesProcessed: int(processed.Load()),
		InstancesGenerated: int(generated.Load()),
		TemplatesSkipped:   int(skipped.Load()),
		AsOf:               asOf,
	}

	slog.InfoContext(ctx, "Recurring generation complete",
		"templates_processed", summary.TemplatesProcessed,
		"instances_generated", summary.InstancesGenerated,
		"templates_skipped", summary.TemplatesSkipped)

	return summary, nil
}

// processTemplate expands one template into its missing instances inside the
// window and advances the bookmark. Returns the number of instances created.
func (g *Generator) processTemplate(ctx context.Context, tpl core.RecurringTemplate, windowEnd core.Date) (int, error) {
	seq, err := schedule.ExpandWindow(tpl.StartDate, tpl.Frequency, windowEnd, tpl.LastGenerated)
	if err != nil {
		return 0, fmt.Errorf("expand window: %w", err)
	}

	var (
		staged []core.TransactionInstance
		latest core.Date
	)
	for date := range seq {
		// Dates are monotonic, so the end date is a cutoff, not a filter.
		if !tpl.EndDate.IsZero() && date.After(tpl.EndDate) {
			break
		}
		exists, err := g.instances.ExistsForTemplateOnDate(ctx, tpl.ID, date)
		if err != nil {
			return 0, fmt.Errorf("check instance on %s: %w", date, err)
		}
		latest = date
		if exists {
			continue
		}
		staged = append(staged, core.InstanceFromTemplate(tpl, date))
	}

	if len(staged) == 0 {
		// Nothing new inside the window; the bookmark stays put.
		return 0, nil
	}

	insertedIDs, err := g.instances.BatchInsert(ctx, staged)
	if err != nil {
		return 0, fmt.Errorf("batch insert: %w", err)
	}

	// The bookmark reflects "generation caught up to here": the latest
	// candidate processed, whether newly inserted or found pre-existing.
	next := schedule.NextDate(latest, tpl.Frequency)
	if err := g.templates.UpdateBookmark(ctx, tpl.ID, latest, next); err != nil {
		// Instances were created; the next run re-checks existence anyway.
		slog.ErrorContext(ctx, "Failed to advance generation bookmark",
			"template_id", tpl.ID,
			"error", err)
	}

	g.announce(ctx, tpl.ID, insertedIDs)

	slog.InfoContext(ctx, "Generated instances from recurring template",
		"template_id", tpl.ID,
		"description", tpl.Description,
		"frequency", tpl.Frequency,
		"created", len(insertedIDs),
		"bookmark", latest.String())

	return len(insertedIDs), nil
}

func (g *Generator) announce(ctx context.Context, templateID int64, instanceIDs []int64) {
	if g.publisher == nil {
		return
	}
	for _, id := range instanceIDs {
		if err := g.publisher.PublishInstanceSync(ctx, id); err != nil {
			// The mirror worker's periodic pending scan picks these up.
			slog.ErrorContext(ctx, "Failed to publish instance sync message",
				"template_id", templateID,
				"instance_id", id,
				"error", err)
		}
	}
}
