// Package pipeline drives the chunked log processing run: raw chunks are
// classified, classified chunks are segmented into sessions and navigation
// events, and the per-chunk session outputs are collated into one dataset.
// Chunks are independent, so each stage fans out under an errgroup.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/dhlab/gallicanav/internal/botfilter"
	"github.com/dhlab/gallicanav/internal/classify"
	"github.com/dhlab/gallicanav/internal/ledger"
	"github.com/dhlab/gallicanav/internal/model"
	"github.com/dhlab/gallicanav/internal/motif"
	"github.com/dhlab/gallicanav/internal/parser"
	"github.com/dhlab/gallicanav/internal/session"
	"github.com/dhlab/gallicanav/internal/storage"
)

// Options tunes a pipeline run.
type Options struct {
	Session session.Config

	// ProcessBots selects the bot side of the traffic for session
	// construction instead of the human side.
	ProcessBots bool

	// StrictParse turns unparseable raw lines into a chunk failure instead
	// of a counted drop.
	StrictParse bool

	// Workers caps concurrent chunks per stage. Zero means one.
	Workers int

	// CrawlerToken is a substring of the user-agent that marks first-party
	// harvester traffic as bot, on top of signature matching.
	CrawlerToken string
}

// Pipeline runs the processing stages against a chunk store, recording
// completion in a ledger so interrupted runs resume where they stopped.
type Pipeline struct {
	store  storage.ChunkStore
	ledger ledger.Ledger
	bots   *botfilter.Filter
	opts   Options
	log    zerolog.Logger
	runID  string
}

// New builds a Pipeline. Every run gets a fresh run id so interleaved log
// output from concurrent chunks stays attributable.
func New(store storage.ChunkStore, ld ledger.Ledger, opts Options, log zerolog.Logger) *Pipeline {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.CrawlerToken == "" {
		opts.CrawlerToken = botfilter.CrawlerToken
	}
	runID := uuid.NewString()
	return &Pipeline{
		store:  store,
		ledger: ld,
		bots:   botfilter.New(opts.CrawlerToken),
		opts:   opts,
		log:    log.With().Str("run_id", runID).Logger(),
		runID:  runID,
	}
}

// RawChunks lists the chunk numbers present under the raw prefix.
func (p *Pipeline) RawChunks(ctx context.Context) ([]int, error) {
	keys, err := p.store.List(ctx, storage.RawPrefix)
	if err != nil {
		return nil, fmt.Errorf("list raw chunks: %w", err)
	}
	return storage.ChunkNumbers(keys), nil
}

// Classify runs the classification stage over the given chunks.
func (p *Pipeline) Classify(ctx context.Context, chunks []int) error {
	return p.runChunks(ctx, ledger.StageClassify, chunks, p.classifyChunk)
}

// Sessions runs session segmentation and motif detection over the given
// chunks. Each chunk must already have a classified output.
func (p *Pipeline) Sessions(ctx context.Context, chunks []int) error {
	return p.runChunks(ctx, ledger.StageSessions, chunks, p.sessionsChunk)
}

// runChunks fans fn out over chunks, skipping any chunk the ledger already
// records as complete for the stage. A chunk whose output exists without a
// ledger entry is adopted as done rather than recomputed.
func (p *Pipeline) runChunks(ctx context.Context, stage ledger.Stage, chunks []int, fn func(context.Context, int) error) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Workers)
	for _, chunk := range chunks {
		chunk := chunk
		g.Go(func() error {
			log := p.log.With().Str("stage", string(stage)).Int("chunk", chunk).Logger()
			done, err := p.ledger.IsDone(ctx, stage, chunk)
			if err != nil {
				return fmt.Errorf("ledger check %s chunk %d: %w", stage, chunk, err)
			}
			if done {
				log.Debug().Msg("chunk already complete, skipping")
				return nil
			}
			if exists, err := p.store.Exists(ctx, p.outputKey(stage, chunk)); err == nil && exists {
				log.Warn().Msg("output exists without ledger entry, adopting as complete")
				return p.ledger.MarkDone(ctx, stage, chunk)
			}
			if err := fn(ctx, chunk); err != nil {
				log.Error().Err(err).Msg("chunk failed")
				return fmt.Errorf("%s chunk %d: %w", stage, chunk, err)
			}
			if err := p.ledger.MarkDone(ctx, stage, chunk); err != nil {
				return fmt.Errorf("ledger mark %s chunk %d: %w", stage, chunk, err)
			}
			log.Info().Msg("chunk complete")
			return nil
		})
	}
	return g.Wait()
}

func (p *Pipeline) outputKey(stage ledger.Stage, chunk int) string {
	if stage == ledger.StageSessions {
		return storage.SessionsKey(chunk)
	}
	return storage.ProcessedKey(chunk)
}

// classifyChunk lifts one raw chunk into classified, de-duplicated,
// navigation-relevant records.
func (p *Pipeline) classifyChunk(ctx context.Context, chunk int) error {
	data, err := p.store.Read(ctx, storage.RawKey(chunk))
	if err != nil {
		return err
	}
	lines, err := storage.DecodeLines(data)
	if err != nil {
		return fmt.Errorf("decode raw chunk: %w", err)
	}

	parsed := make([]model.ParsedRequest, 0, len(lines))
	unparsed := 0
	for _, line := range lines {
		req, ok := parser.ParseLine(line)
		if !ok {
			unparsed++
			continue
		}
		parsed = append(parsed, req)
	}
	if unparsed > 0 {
		if p.opts.StrictParse {
			return fmt.Errorf("%d of %d lines unparseable", unparsed, len(lines))
		}
		p.log.Warn().Int("chunk", chunk).Int("unparsed", unparsed).Int("total", len(lines)).
			Msg("dropped unparseable lines")
	}
	parsed = dedupe(parsed)

	records := make([]model.ClassifiedRequest, 0, len(parsed))
	var violations []string
	noise := 0
	for _, req := range parsed {
		rec, err := classify.Classify(req)
		if err != nil {
			violations = append(violations, err.Error())
			continue
		}
		if !rec.Category.Retained() {
			continue
		}
		if classify.IsNoise(rec) {
			noise++
			continue
		}
		rec.DocTokens = classify.CanonicalTokens(rec.DocTokens)
		rec.IsBot = p.bots.IsBot(rec.UserAgent)
		records = append(records, rec)
	}
	// Classification is meant to partition the endpoint space; a violation
	// is a rule bug, not bad data, so the whole chunk fails loudly.
	if len(violations) > 0 {
		return fmt.Errorf("%d exclusivity violations: %s", len(violations), sample(violations, 3))
	}
	if noise > 0 {
		p.log.Debug().Int("chunk", chunk).Int("noise", noise).Msg("dropped off-vocabulary document requests")
	}

	out, err := storage.EncodeBatch(records)
	if err != nil {
		return fmt.Errorf("encode classified chunk: %w", err)
	}
	if err := p.store.Write(ctx, storage.ProcessedKey(chunk), out); err != nil {
		return err
	}
	p.log.Info().Int("chunk", chunk).Int("lines", len(lines)).Int("records", len(records)).
		Msg("classified chunk written")
	return nil
}

// sessionsChunk reconstructs sessions for one classified chunk and derives
// its navigation events.
func (p *Pipeline) sessionsChunk(ctx context.Context, chunk int) error {
	data, err := p.store.Read(ctx, storage.ProcessedKey(chunk))
	if err != nil {
		return err
	}
	records, err := storage.DecodeBatch[model.ClassifiedRequest](data)
	if err != nil {
		return fmt.Errorf("decode classified chunk: %w", err)
	}

	kept := records[:0]
	for _, rec := range records {
		if rec.IsBot == p.opts.ProcessBots {
			kept = append(kept, rec)
		}
	}

	sessions := session.Segment(kept, chunk, p.opts.Session)
	events, err := motif.Detect(sessions)
	if err != nil {
		return fmt.Errorf("detect navigation events: %w", err)
	}

	out, err := storage.EncodeBatch(events)
	if err != nil {
		return fmt.Errorf("encode session chunk: %w", err)
	}
	if err := p.store.Write(ctx, storage.SessionsKey(chunk), out); err != nil {
		return err
	}
	p.log.Info().Int("chunk", chunk).Int("records", len(kept)).
		Int("sessions", countSessions(sessions)).Int("events", len(events)).
		Msg("session chunk written")
	return nil
}

// Collate concatenates every session chunk, in chunk order, into the unified
// dataset. Session ids embed their chunk number, so concatenation cannot
// collide.
func (p *Pipeline) Collate(ctx context.Context) error {
	keys, err := p.store.List(ctx, storage.SessionsPrefix)
	if err != nil {
		return fmt.Errorf("list session chunks: %w", err)
	}
	chunks := storage.ChunkNumbers(keys)
	if len(chunks) == 0 {
		return fmt.Errorf("no session chunks to collate")
	}

	var all []model.NavigationEvent
	for _, chunk := range chunks {
		data, err := p.store.Read(ctx, storage.SessionsKey(chunk))
		if err != nil {
			return err
		}
		events, err := storage.DecodeBatch[model.NavigationEvent](data)
		if err != nil {
			return fmt.Errorf("decode session chunk %d: %w", chunk, err)
		}
		all = append(all, events...)
	}

	out, err := storage.EncodeBatch(all)
	if err != nil {
		return fmt.Errorf("encode collated dataset: %w", err)
	}
	if err := p.store.Write(ctx, storage.CollatedKey(), out); err != nil {
		return err
	}
	p.log.Info().Int("chunks", len(chunks)).Int("events", len(all)).Msg("collated dataset written")
	return nil
}

// dedupe keeps the first occurrence of each (timestamp, endpoint) pair.
// Mirrored log lines show up once per upstream cache node; the pair is the
// stable identity of the underlying request.
func dedupe(reqs []model.ParsedRequest) []model.ParsedRequest {
	seen := make(map[string]bool, len(reqs))
	out := reqs[:0]
	for _, req := range reqs {
		key := req.Timestamp.Format(time.RFC3339Nano) + "|" + req.Endpoint
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, req)
	}
	return out
}

func countSessions(recs []model.SessionRecord) int {
	seen := make(map[string]bool)
	for _, rec := range recs {
		seen[rec.SessionID] = true
	}
	return len(seen)
}

func sample(msgs []string, n int) string {
	if len(msgs) > n {
		msgs = msgs[:n]
	}
	return strings.Join(msgs, "; ")
}
