// Package extraction applies a coordinate template to every page of a
// document, batch by batch, and checkpoints the accumulated records after
// each page.
package extraction

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"gradecard/internal/checkpoint"
	"gradecard/internal/render"
	"gradecard/pkg/models"
)

// DefaultBatchSize is the number of pages rendered at once.
const DefaultBatchSize = 3

// State is the lifecycle position of a batch run.
type State int

const (
	Idle State = iota
	Rendering
	PerPageExtraction
	Checkpoint
	Completed
	Failed
)

var stateNames = [...]string{"idle", "rendering", "per_page_extraction", "checkpoint", "completed", "failed"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// PageProcessor extracts one page. *PageExtractor is the production
// implementation.
type PageProcessor interface {
	Extract(ctx context.Context, page image.Image, debug DebugSink) (PageOutcome, error)
}

// Summary describes a finished or aborted run.
type Summary struct {
	RunID     string
	Pages     int // pages in the document
	Rendered  int
	Extracted int // pages with a record
	Failed    int // pages with an error entry
	State     State
	Duration  time.Duration
}

// Entries is the number of checkpointed entries.
func (s *Summary) Entries() int { return s.Extracted + s.Failed }

// BatchExtractor drives rendering, per-page extraction and checkpointing.
type BatchExtractor struct {
	Rasterizer render.Rasterizer
	Pages      PageProcessor
	Checkpoint *checkpoint.Writer
	BatchSize  int
	Debug      Debug
	Log        zerolog.Logger

	// RunID tags the run's log lines. Empty means a fresh UUID is used and
	// added to Log.
	RunID string

	// OnState, when set, observes every state transition.
	OnState func(State)

	state State
}

// State returns the current state.
func (b *BatchExtractor) State() State { return b.state }

func (b *BatchExtractor) setState(s State) {
	b.state = s
	if b.OnState != nil {
		b.OnState(s)
	}
}

// Run processes pages 1..pageCount of doc. A batch render failure stops the
// run after flushing everything accumulated; the returned error then wraps
// models.ErrBatchRender. Cancellation flushes the same way and returns the
// context's error. Errors on a single page are recorded as error entries and
// the run continues.
func (b *BatchExtractor) Run(ctx context.Context, doc string, pageCount int) (*Summary, error) {
	const op = "Run"

	if pageCount <= 0 {
		return nil, models.NewExtractionError(models.KindInput, op, nil, fmt.Sprintf("page count %d", pageCount))
	}
	size := b.BatchSize
	if size <= 0 {
		return nil, models.NewExtractionError(models.KindInput, op, nil, fmt.Sprintf("batch size %d", size))
	}

	started := time.Now()
	summary := &Summary{RunID: b.RunID, Pages: pageCount}
	log := b.Log
	if summary.RunID == "" {
		summary.RunID = uuid.NewString()
		log = log.With().Str("run_id", summary.RunID).Logger()
	}
	// Checkpoints outlive cancellation so the last processed page is kept.
	persistCtx := context.WithoutCancel(ctx)

	finish := func(s State, err error) (*Summary, error) {
		b.setState(s)
		summary.State = s
		summary.Duration = time.Since(started)
		return summary, err
	}
	abort := func(err error) (*Summary, error) {
		if ferr := b.Checkpoint.Flush(persistCtx); ferr != nil {
			err = errors.Join(err, fmt.Errorf("flush checkpoint: %w", ferr))
		}
		return finish(Failed, err)
	}

	b.setState(Idle)
	log.Info().Int("pages", pageCount).Int("batch_size", size).Str("document", doc).Msg("Batch extraction started")

	for start := 1; start <= pageCount; {
		if err := ctx.Err(); err != nil {
			log.Warn().Err(err).Int("next_page", start).Msg("Batch extraction canceled")
			return abort(err)
		}

		end := min(start+size-1, pageCount)
		b.setState(Rendering)
		log.Info().Int("first", start).Int("last", end).Msg("Rendering batch")

		images, err := b.Rasterizer.Render(ctx, doc, start, end)
		if err == nil && len(images) == 0 {
			err = errors.New("rasterizer returned no pages")
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				log.Warn().Err(err).Int("next_page", start).Msg("Batch extraction canceled during rendering")
				return abort(ctxErr)
			}
			renderErr := models.NewExtractionError(models.KindBatchRender, op, err, fmt.Sprintf("pages %d-%d", start, end))
			log.Error().Err(renderErr).Int("entries", b.Checkpoint.Len()).Msg("Batch rendering failed, saving progress")
			return abort(renderErr)
		}
		if len(images) > end-start+1 {
			images = images[:end-start+1]
		}
		summary.Rendered += len(images)

		for i := range images {
			pageNum := start + i
			pageLog := log.With().Int("page", pageNum).Logger()

			b.setState(PerPageExtraction)
			entry, err := b.processPage(ctx, pageNum, images[i], pageLog)
			images[i] = nil
			if err != nil {
				pageLog.Warn().Err(err).Msg("Batch extraction canceled")
				return abort(err)
			}

			b.setState(Checkpoint)
			if err := b.Checkpoint.Append(persistCtx, entry); err != nil {
				pageLog.Error().Err(err).Msg("Checkpoint write failed")
				return finish(Failed, fmt.Errorf("checkpoint page %d: %w", pageNum, err))
			}

			if entry.Failed() {
				summary.Failed++
				pageLog.Error().Str("error", entry.Error).Msg("Page recorded as error")
			} else {
				summary.Extracted++
				pageLog.Info().Str("student", entry.Record.StudentName).Msg("Page extracted")
			}
		}
		start += len(images)
	}

	log.Info().
		Int("extracted", summary.Extracted).
		Int("failed", summary.Failed).
		Dur("duration", time.Since(started)).
		Msg("Batch extraction completed")
	return finish(Completed, nil)
}

// processPage extracts one page inside a recover boundary. The returned error
// is only set when ctx was canceled; every other failure becomes an error
// entry.
func (b *BatchExtractor) processPage(ctx context.Context, pageNum int, img image.Image, log zerolog.Logger) (entry models.PageEntry, err error) {
	const op = "ExtractPage"

	defer func() {
		if r := recover(); r != nil {
			pageErr := models.NewExtractionError(models.KindPage, op, fmt.Errorf("panic: %v", r), fmt.Sprintf("page %d", pageNum))
			entry = models.PageEntry{Page: pageNum, Error: pageErr.Error()}
			err = nil
		}
	}()

	sink := b.sinkFor(pageNum, log)
	if sink.Enabled() {
		if err := sink.Save("full_page", img); err != nil {
			log.Warn().Err(err).Msg("Failed to write debug image")
		}
	}

	outcome, err := b.Pages.Extract(ctx, img, sink)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return models.PageEntry{}, ctxErr
		}
		pageErr := models.NewExtractionError(models.KindPage, op, err, fmt.Sprintf("page %d", pageNum))
		return models.PageEntry{Page: pageNum, Error: pageErr.Error()}, nil
	}
	if outcome.Record == nil {
		pageErr := models.NewExtractionError(models.KindPage, op, nil, fmt.Sprintf("page %d: no record", pageNum))
		return models.PageEntry{Page: pageNum, Error: pageErr.Error()}, nil
	}
	return models.PageEntry{Page: pageNum, Record: outcome.Record}, nil
}

func (b *BatchExtractor) sinkFor(pageNum int, log zerolog.Logger) DebugSink {
	if b.Debug == nil {
		return NopSink{}
	}
	sink, err := b.Debug.ForPage(pageNum)
	if err != nil {
		log.Warn().Err(err).Msg("Debug output disabled for page")
		return NopSink{}
	}
	return sink
}
