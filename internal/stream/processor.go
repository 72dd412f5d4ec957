package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/nnaka2992/kql-extract/internal/extractor"
)

// DefaultMaxLineSize bounds a single input record unless Options says
// otherwise
const DefaultMaxLineSize = 16 * 1024 * 1024

// ResultWriter receives every successful extraction. Write is only ever
// called from one goroutine at a time.
type ResultWriter interface {
	Write(result *extractor.Result) error
}

// Extractor is the part of extractor.Extractor the processor needs
type Extractor interface {
	Extract(ctx context.Context, q extractor.Query) (*extractor.Result, error)
}

// Options configures a Processor
type Options struct {
	// Workers is the number of records extracted concurrently. Values
	// below 2 process records one at a time in input order.
	Workers int

	// CacheSize is the number of results memoized by query text. Zero
	// disables the cache.
	CacheSize int

	// MaxLineSize is the longest line accepted, in bytes. Longer lines are
	// skipped. Zero means DefaultMaxLineSize.
	MaxLineSize int

	// Logger receives one error record per failed input line
	Logger *slog.Logger
}

// Stats counts what happened to the input lines of one run
type Stats struct {
	Records   int64
	Skipped   int64
	Emitted   int64
	Failed    int64
	CacheHits int64
}

// Processor reads framed records and writes one result per good record
type Processor struct {
	extractor   Extractor
	workers     int
	maxLineSize int
	logger      *slog.Logger
	cache     *lru.Cache[uint64, *extractor.Result]

	records   atomic.Int64
	skipped   atomic.Int64
	emitted   atomic.Int64
	failed    atomic.Int64
	cacheHits atomic.Int64
}

// NewProcessor creates a processor around ex
func NewProcessor(ex Extractor, opts Options) (*Processor, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	p := &Processor{
		extractor:   ex,
		workers:     max(opts.Workers, 1),
		maxLineSize: opts.MaxLineSize,
		logger:      logger,
	}
	if p.maxLineSize <= 0 {
		p.maxLineSize = DefaultMaxLineSize
	}

	if opts.CacheSize < 0 {
		return nil, fmt.Errorf("cache size must not be negative, got %d", opts.CacheSize)
	}
	if opts.CacheSize > 0 {
		cache, err := lru.New[uint64, *extractor.Result](opts.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("creating result cache: %w", err)
		}
		p.cache = cache
	}
	return p, nil
}

// Stats returns the counters accumulated so far
func (p *Processor) Stats() Stats {
	return Stats{
		Records:   p.records.Load(),
		Skipped:   p.skipped.Load(),
		Emitted:   p.emitted.Load(),
		Failed:    p.failed.Load(),
		CacheHits: p.cacheHits.Load(),
	}
}

// Run processes r line by line until it is exhausted. Per-record failures
// are logged and skipped; only read, write and context errors end the run.
func (p *Processor) Run(ctx context.Context, r io.Reader, w ResultWriter) error {
	lines := newLineReader(r, p.maxLineSize)

	if p.workers == 1 {
		return p.runSequential(ctx, lines, w)
	}
	return p.runParallel(ctx, lines, w)
}

func (p *Processor) runSequential(ctx context.Context, lines *lineReader, w ResultWriter) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, ok, err := p.next(lines)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if !ok {
			continue
		}

		result := p.process(ctx, rec)
		if result == nil {
			continue
		}
		if err := w.Write(result); err != nil {
			return fmt.Errorf("writing result %q: %w", result.ID, err)
		}
		p.emitted.Add(1)
	}
}

// runParallel fans records out to a bounded worker pool. Results reach w
// through a single writer goroutine, in completion order.
func (p *Processor) runParallel(ctx context.Context, lines *lineReader, w ResultWriter) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan *extractor.Result, p.workers)
	var writeErr error
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for result := range results {
			if writeErr != nil {
				continue
			}
			if err := w.Write(result); err != nil {
				writeErr = fmt.Errorf("writing result %q: %w", result.ID, err)
				cancel()
				continue
			}
			p.emitted.Add(1)
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	var readErr error
	for gctx.Err() == nil {
		rec, ok, err := p.next(lines)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				readErr = err
			}
			break
		}
		if !ok {
			continue
		}
		g.Go(func() error {
			result := p.process(gctx, rec)
			if result == nil {
				return nil
			}
			select {
			case results <- result:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	}

	waitErr := g.Wait()
	close(results)
	<-writerDone

	switch {
	case writeErr != nil:
		return writeErr
	case readErr != nil:
		return readErr
	case waitErr != nil && !errors.Is(waitErr, context.Canceled):
		return waitErr
	}
	return ctx.Err()
}

// next reads and frames the next line. ok is false for lines that are
// skipped; err is io.EOF at the end of input.
func (p *Processor) next(lines *lineReader) (rec Record, ok bool, err error) {
	line, tooLong, err := lines.next()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Record{}, false, err
		}
		return Record{}, false, fmt.Errorf("reading input: %w", err)
	}
	if tooLong {
		p.skipped.Add(1)
		p.logger.Error("line too long", "line", lines.lineNo, "limit", p.maxLineSize)
		return Record{}, false, nil
	}
	rec, ok = p.frame(lines.lineNo, line)
	return rec, ok, nil
}

// frame parses one line, counting it as skipped when it is malformed
func (p *Processor) frame(lineNo int, line string) (Record, bool) {
	rec, ok := ParseLine(lineNo, line)
	if !ok {
		p.skipped.Add(1)
		return Record{}, false
	}
	p.records.Add(1)
	return rec, true
}

// process decodes and extracts one record. It returns nil after logging
// when the record fails.
func (p *Processor) process(ctx context.Context, rec Record) *extractor.Result {
	q, err := Decode(rec)
	if err != nil {
		p.fail(rec, err)
		return nil
	}

	var key uint64
	if p.cache != nil {
		key = xxhash.Sum64String(q.Text)
		if cached, ok := p.cache.Get(key); ok {
			p.cacheHits.Add(1)
			return cached.WithID(q.ID)
		}
	}

	result, err := p.extractor.Extract(ctx, q)
	if err != nil {
		p.fail(rec, err)
		return nil
	}

	if p.cache != nil {
		p.cache.Add(key, result.WithID(""))
	}
	return result
}

func (p *Processor) fail(rec Record, err error) {
	p.failed.Add(1)

	var syntaxErr *extractor.SyntaxError
	if errors.As(err, &syntaxErr) {
		for _, d := range syntaxErr.Diagnostics {
			p.logger.Error("syntax error", "id", rec.ID, "line", rec.Line, "err", d.Error())
		}
		return
	}
	p.logger.Error("extraction failed", "id", rec.ID, "line", rec.Line, "err", err)
}
