// Package pipeline extracts records from fetched pages, de-duplicates them
// and hands them to an output writer in batches.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aluiziolira/go-scrape-audiobooks/config"
	"github.com/aluiziolira/go-scrape-audiobooks/models"
	"github.com/aluiziolira/go-scrape-audiobooks/parser"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/samber/lo"
)

var (
	// ErrPipelineClosed is returned when Process is called after shutdown.
	ErrPipelineClosed = errors.New("pipeline: closed")
	// ErrPipelineCloseTimeout is returned when workers do not drain in time.
	ErrPipelineCloseTimeout = errors.New("pipeline: close timed out")
)

// drainTimeout bounds how long Close waits for workers.
var drainTimeout = 30 * time.Second

// OutputWriter defines the interface for data output.
type OutputWriter interface {
	Write(records []models.Record) error
	Close() error
	Validate() error
}

// RecordObserver is told how many records each page yielded and how many
// items it skipped for lacking a sample-audio control.
type RecordObserver interface {
	ObserveRecords(extracted, skipped int)
}

// Option customises a Pipeline.
type Option func(*Pipeline)

// WithObserver reports per-page extraction counts to o.
func WithObserver(o RecordObserver) Option {
	return func(p *Pipeline) {
		p.observer = o
	}
}

// WithValidator replaces parser.ValidateRecord as the check every record
// must pass before it is written.
func WithValidator(validate func(*models.Record) error) Option {
	return func(p *Pipeline) {
		if validate != nil {
			p.validate = validate
		}
	}
}

// WithLogger sets the logger; slog.Default is used otherwise.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// Pipeline coordinates extraction, validation, de-duplication and output
// writing. With a single worker records are written in crawl order.
type Pipeline struct {
	ctx       context.Context
	writer    OutputWriter
	pageCh    chan *parser.PageResult
	batchSize int
	observer  RecordObserver
	validate  func(*models.Record) error
	logger    *slog.Logger

	wg sync.WaitGroup

	// seen is nil when de-duplication is disabled.
	seen *lru.Cache[string, struct{}]

	metrics metrics

	mu     sync.Mutex // guards closed/err
	closed bool
	err    error

	closeOnce    sync.Once
	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// NewPipeline builds a pipeline sized from cfg. A DedupeMaxSize of zero
// disables de-duplication.
func NewPipeline(ctx context.Context, writer OutputWriter, cfg *config.Config, opts ...Option) *Pipeline {
	if ctx == nil {
		ctx = context.Background()
	}
	defaults := config.DefaultConfig()
	if cfg == nil {
		cfg = defaults
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaults.BatchSize
	}
	bufferSize := cfg.PipelineBufferSize
	if bufferSize < 0 {
		bufferSize = defaults.PipelineBufferSize
	}
	dedupeSize := cfg.DedupeMaxSize
	if dedupeSize < 0 {
		dedupeSize = defaults.DedupeMaxSize
	}

	p := &Pipeline{
		ctx:       ctx,
		writer:    writer,
		pageCh:    make(chan *parser.PageResult, bufferSize),
		batchSize: batchSize,
		validate:  parser.ValidateRecord,
		logger:    slog.Default(),
		metrics:   newMetrics(),
		shutdown:  make(chan struct{}),
	}
	if dedupeSize > 0 {
		p.seen = lo.Must(lru.New[string, struct{}](dedupeSize))
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches worker goroutines.
func (p *Pipeline) Start(workers int) {
	if workers <= 0 {
		workers = 1
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

// Process enqueues pages for record extraction. It returns the first
// processing error once one has occurred.
func (p *Pipeline) Process(pages ...*parser.PageResult) error {
	for _, page := range pages {
		if page == nil {
			continue
		}

		closed, err := p.state()
		if err != nil {
			return err
		}
		if closed {
			return ErrPipelineClosed
		}

		if err := p.enqueue(page); err != nil {
			if perr := p.Err(); perr != nil {
				return perr
			}
			return err
		}
	}
	return nil
}

// Close waits for workers to finish and prevents more submissions.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
	}
	p.mu.Unlock()

	p.signalShutdown()
	p.closeOnce.Do(func() {
		close(p.pageCh)
	})

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(drainTimeout):
		return fmt.Errorf("%w after %v", ErrPipelineCloseTimeout, drainTimeout)
	}
	return p.Err()
}

// Err returns the first error encountered during processing.
func (p *Pipeline) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// GetMetrics returns a snapshot of the internal counters.
func (p *Pipeline) GetMetrics() map[string]interface{} {
	return p.metrics.snapshot()
}

// StartMetricsReporting emits periodic progress logs.
func (p *Pipeline) StartMetricsReporting(interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				metrics := p.GetMetrics()
				p.logger.Info("pipeline progress",
					slog.Int64("pages", metrics["pages"].(int64)),
					slog.Int64("processed", metrics["processed_records"].(int64)),
					slog.Int64("skipped", metrics["skipped_items"].(int64)),
					slog.Int("validation_errors", len(metrics["validation_errors"].(map[string]int))),
				)
			case <-p.shutdown:
				return
			}
		}
	}()
}

func (p *Pipeline) worker() {
	defer p.wg.Done()

	batch := make([]models.Record, 0, p.batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := p.writer.Write(batch); err != nil {
			return err
		}
		batch = batch[:0]
		return nil
	}

	for page := range p.pageCh {
		if p.Err() != nil {
			continue
		}

		records, err := p.extract(page)
		if err != nil {
			p.setErr(err)
			continue
		}
		if err := p.validateAll(records); err != nil {
			p.setErr(fmt.Errorf("validate %s: %w", page.URL(), err))
			continue
		}

		for i := range records {
			if p.isDuplicate(&records[i]) {
				continue
			}
			batch = append(batch, records[i])
			if len(batch) >= p.batchSize {
				if err := flush(); err != nil {
					p.setErr(fmt.Errorf("write batch: %w", err))
					return
				}
			}
		}
	}

	if p.Err() != nil {
		return
	}
	if err := flush(); err != nil {
		p.setErr(fmt.Errorf("write batch: %w", err))
	}
}

func (p *Pipeline) extract(page *parser.PageResult) ([]models.Record, error) {
	records, stats, err := page.RecordsWithStats()
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", page.URL(), err)
	}

	p.metrics.addPage(stats.Skipped)
	if p.observer != nil {
		p.observer.ObserveRecords(len(records), stats.Skipped)
	}
	if stats.Skipped > 0 {
		p.logger.Debug("skipped items without sample audio",
			slog.Int("page", page.Page()),
			slog.Int("skipped", stats.Skipped),
			slog.Int("items", stats.Items),
		)
	}
	return records, nil
}

// validateAll fails on the first invalid record so a page is written
// entirely or not at all.
func (p *Pipeline) validateAll(records []models.Record) error {
	for i := range records {
		if err := p.validate(&records[i]); err != nil {
			p.metrics.addValidation("invalid_record")
			return err
		}
	}
	return nil
}

func (p *Pipeline) isDuplicate(record *models.Record) bool {
	if p.seen != nil {
		key := parser.SampleKey(record)
		if found, _ := p.seen.ContainsOrAdd(key, struct{}{}); found {
			p.metrics.addValidation("duplicate_sample_url")
			p.logger.Warn("dropped duplicate record",
				slog.String("title", record.Title),
				slog.String("sample_key", key),
			)
			return true
		}
	}

	p.metrics.incrementProcessed()
	return false
}

func (p *Pipeline) enqueue(page *parser.PageResult) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = ErrPipelineClosed
		}
	}()

	select {
	case <-p.ctx.Done():
		return p.ctx.Err()
	case <-p.shutdown:
		return ErrPipelineClosed
	case p.pageCh <- page:
		return nil
	}
}

func (p *Pipeline) setErr(err error) {
	if err == nil {
		return
	}

	p.mu.Lock()
	if p.err != nil {
		p.mu.Unlock()
		return
	}
	p.err = err
	p.closed = true
	p.mu.Unlock()

	p.signalShutdown()
}

func (p *Pipeline) state() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed, p.err
}

func (p *Pipeline) signalShutdown() {
	p.shutdownOnce.Do(func() {
		close(p.shutdown)
	})
}

type metrics struct {
	mu         sync.Mutex
	pages      int64
	processed  int64
	skipped    int64
	validation map[string]int
}

func newMetrics() metrics {
	return metrics{
		validation: make(map[string]int),
	}
}

func (m *metrics) addPage(skipped int) {
	m.mu.Lock()
	m.pages++
	m.skipped += int64(skipped)
	m.mu.Unlock()
}

func (m *metrics) incrementProcessed() {
	m.mu.Lock()
	m.processed++
	m.mu.Unlock()
}

func (m *metrics) addValidation(kind string) {
	m.mu.Lock()
	m.validation[kind]++
	m.mu.Unlock()
}

func (m *metrics) snapshot() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	copyValidation := make(map[string]int, len(m.validation))
	for k, v := range m.validation {
		copyValidation[k] = v
	}

	return map[string]interface{}{
		"pages":             m.pages,
		"processed_records": m.processed,
		"skipped_items":     m.skipped,
		"validation_errors": copyValidation,
	}
}
