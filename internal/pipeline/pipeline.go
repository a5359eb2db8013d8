// Package pipeline orchestrates the log analysis flow: discovery, parsing,
// aggregation and report delivery.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/GabrielNunesIT/go-libs/logger"
	"golang.org/x/sync/errgroup"

	"github.com/GabrielNunesIT/log-analyzer/internal/aggregator"
	"github.com/GabrielNunesIT/log-analyzer/internal/config"
	"github.com/GabrielNunesIT/log-analyzer/internal/decoder"
	"github.com/GabrielNunesIT/log-analyzer/internal/model"
	"github.com/GabrielNunesIT/log-analyzer/internal/parser"
	"github.com/GabrielNunesIT/log-analyzer/internal/report"
	"github.com/GabrielNunesIT/log-analyzer/internal/sink"
	"github.com/GabrielNunesIT/log-analyzer/internal/source"
)

// lineBuffer is the capacity of the channel between decoder and aggregator.
const lineBuffer = 1024

// shutdownTimeout bounds how long sinks get to flush on stop.
const shutdownTimeout = 30 * time.Second

// ErrTooManyParseErrors is returned for a file whose share of unparsable
// lines exceeds analysis.max_error_ratio.
var ErrTooManyParseErrors = errors.New("parse error ratio exceeds threshold")

// SinkFactory builds the sinks for a configuration.
type SinkFactory func(cfg *config.Config, log logger.ILogger) ([]sink.Sink, error)

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithSinkFactory replaces sink.FromConfig.
func WithSinkFactory(f SinkFactory) Option {
	return func(p *Pipeline) {
		p.sinkFactory = f
	}
}

// WithNotifier replaces the systemd notifier used in watch mode.
func WithNotifier(n Notifier) Option {
	return func(p *Pipeline) {
		p.notifier = n
	}
}

// WithWatcherOptions passes options to the directory watcher.
func WithWatcherOptions(opts ...source.WatcherOption) Option {
	return func(p *Pipeline) {
		p.watchOpts = append(p.watchOpts, opts...)
	}
}

// sinkSet is one generation of sinks. inFlight counts the files still
// writing to it, so a replaced set is stopped only once they finish.
type sinkSet struct {
	sinks    []sink.Sink
	inFlight sync.WaitGroup
}

// Pipeline analyses log files and hands the reports to sinks.
type Pipeline struct {
	cfg    *config.Config
	log    logger.ILogger
	logger logger.ILogger
	mu     sync.RWMutex

	sinks       *sinkSet
	sinkFactory SinkFactory
	notifier    Notifier
	watchOpts   []source.WatcherOption

	// runCtx is the context sinks are started with.
	runCtx context.Context
	// retiring tracks replaced sink sets that are waiting to be stopped.
	retiring sync.WaitGroup
}

// New creates a new pipeline from configuration.
func New(cfg *config.Config, log logger.ILogger, opts ...Option) (*Pipeline, error) {
	p := &Pipeline{
		cfg:         cfg,
		log:         log,
		logger:      log.SubLogger("Pipeline"),
		sinkFactory: sink.FromConfig,
		notifier:    systemdNotifier{},
	}
	for _, opt := range opts {
		opt(p)
	}

	sinks, err := p.sinkFactory(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("building sinks: %w", err)
	}
	p.sinks = &sinkSet{sinks: sinks}
	p.logger.Debugf("built %d sinks", len(sinks))
	return p, nil
}

// Run analyses input, or the discovered logs when input is empty, and then
// keeps watching the log directory if source.watch is set. It blocks until
// the work is done or ctx is cancelled in watch mode.
func (p *Pipeline) Run(ctx context.Context, input string) error {
	p.mu.Lock()
	p.runCtx = ctx
	p.mu.Unlock()

	// Sinks tolerate Stop without a successful Start.
	defer p.shutdown()
	if err := p.startSinks(ctx); err != nil {
		return err
	}

	cfg := p.config()

	finder, err := source.NewFinder(cfg.Source, p.logger)
	if err != nil {
		return err
	}

	var files []source.LogFile
	if input != "" {
		files = []source.LogFile{inputFile(finder, input)}
	} else {
		files, err = finder.Find()
		if errors.Is(err, source.ErrNoLogs) {
			p.logger.Infof("no logs to analyse: dir=%s", cfg.Source.Dir)
		} else if err != nil {
			return err
		}
	}

	if len(files) > 0 {
		if err := p.RunFiles(ctx, files); err != nil && !cfg.Source.Watch {
			return err
		}
	}

	if !cfg.Source.Watch || input != "" {
		return nil
	}
	return p.watch(ctx, finder)
}

// RunFiles analyses files with up to source.workers files in flight.
// Failures are logged per file; an error is returned only when no file
// produced or already had a report.
func (p *Pipeline) RunFiles(ctx context.Context, files []source.LogFile) error {
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(p.config().Source.Workers)

	var (
		mu      sync.Mutex
		errs    []error
		done    int
		skipped int
	)

	for _, f := range files {
		g.Go(func() error {
			err := p.Process(gCtx, f)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				done++
			case errors.Is(err, sink.ErrReportExists):
				skipped++
				p.logger.Infof("report already exists, skipping: file=%s", f.Path)
			default:
				errs = append(errs, err)
				p.logger.Errorf("analysis failed: file=%s error=%v", f.Path, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	p.logger.Infof("run finished: files=%d analysed=%d skipped=%d failed=%d", len(files), done, skipped, len(errs))
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(errs) == len(files) {
		return errors.Join(errs...)
	}
	return nil
}

// Process analyses one file and writes its report to every sink. The file is
// handled with the configuration and sinks active when it started.
func (p *Pipeline) Process(ctx context.Context, f source.LogFile) error {
	p.mu.RLock()
	cfg, set := p.cfg, p.sinks
	set.inFlight.Add(1)
	p.mu.RUnlock()
	defer set.inFlight.Done()

	if !f.Date.IsZero() && !cfg.Report.Overwrite && reportExists(set.sinks, model.ReportName(f.Date)) {
		return fmt.Errorf("%s: %w", f.Path, sink.ErrReportExists)
	}

	res, err := p.analyse(ctx, cfg, f)
	if err != nil {
		return err
	}

	p.logger.Infof("analysed: file=%s lines=%d records=%d parse_errors=%d error_ratio=%.4f urls=%d",
		f.Path, res.Lines, res.Records, res.ParseErrors, res.ErrorRatio(), len(res.Order))

	if limit := cfg.Analysis.MaxErrorRatio; limit > 0 && res.ErrorRatio() > limit {
		return fmt.Errorf("%s: %.4f > %.4f: %w", f.Path, res.ErrorRatio(), limit, ErrTooManyParseErrors)
	}

	rows := report.Format(res, report.FormatOptions{Order: cfg.Report.Order, Limit: cfg.Report.Size})
	rep := report.Build(f.Path, f.Date, res, rows, cfg.Report.Precision)

	return p.emitToAll(ctx, set.sinks, rep)
}

// analyse runs the decoder and the aggregator over f.
func (p *Pipeline) analyse(ctx context.Context, cfg *config.Config, f source.LogFile) (*aggregator.Result, error) {
	rc, err := source.Open(f.Path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	prs := parser.New(parser.WithTimeLayout(cfg.Parser.TimeLayout))
	agg := aggregator.New(prs, p.logger, aggregator.WithTrueMax(cfg.Analysis.TrueMax))
	dec := decoder.New(f.Name(), rc, p.logger)

	lines := make(chan model.Line, lineBuffer)
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return dec.Start(gCtx, lines)
	})

	var res *aggregator.Result
	g.Go(func() error {
		var err error
		res, err = agg.Consume(gCtx, lines)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("analysing %s: %w", f.Path, err)
	}
	return res, nil
}

// emitToAll writes rep to every sink.
func (p *Pipeline) emitToAll(ctx context.Context, sinks []sink.Sink, rep *model.Report) error {
	var errs []error
	for _, s := range sinks {
		if err := s.Write(ctx, rep); err != nil {
			if errors.Is(err, sink.ErrReportExists) {
				p.logger.Infof("sink kept existing report: sink=%s report=%s", s.Name(), rep.Name())
				continue
			}
			errs = append(errs, fmt.Errorf("sink %s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// reportExists asks sinks that can tell.
func reportExists(sinks []sink.Sink, name string) bool {
	for _, s := range sinks {
		if c, ok := s.(sink.Checker); ok && c.Exists(name) {
			return true
		}
	}
	return false
}

func (p *Pipeline) startSinks(ctx context.Context) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, s := range p.sinks.sinks {
		if err := s.Start(ctx); err != nil {
			return fmt.Errorf("starting sink %s: %w", s.Name(), err)
		}
		p.logger.Debugf("started sink: %s", s.Name())
	}
	return nil
}

// shutdown stops all sinks, including replaced ones still draining. Later
// reconfigurations only swap sinks without starting them.
func (p *Pipeline) shutdown() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.retiring.Wait()
	p.sinks.inFlight.Wait()
	p.stopSinks(p.sinks.sinks)
	p.runCtx = nil
}

func (p *Pipeline) stopSinks(sinks []sink.Sink) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	for _, s := range sinks {
		if err := s.Stop(ctx); err != nil {
			p.logger.Warningf("sink stop error: name=%s, error=%v", s.Name(), err)
		}
	}
	p.logger.Debug("all sinks stopped")
}

func (p *Pipeline) config() *config.Config {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cfg
}

// Reconfigure applies a new configuration. Sinks are rebuilt and, when the
// pipeline is running, started before the old ones are stopped. Files in
// flight finish with the previous configuration and sinks; the old sinks are
// stopped in the background once those files are done. While running, the
// source section cannot change and the active one is kept.
func (p *Pipeline) Reconfigure(newCfg *config.Config) error {
	_, _ = p.notifier.Notify(notifyReloading)
	defer func() { _, _ = p.notifier.Notify(notifyReady) }()

	sinks, err := p.sinkFactory(newCfg, p.log)
	if err != nil {
		return fmt.Errorf("building sinks: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.runCtx != nil {
		for _, s := range sinks {
			if err := s.Start(p.runCtx); err != nil {
				p.stopSinks(sinks)
				return fmt.Errorf("starting sink %s: %w", s.Name(), err)
			}
		}
	}

	if p.runCtx != nil && !reflect.DeepEqual(newCfg.Source, p.cfg.Source) {
		p.logger.Warningf("source settings cannot change while running, restart to apply: dir=%s pattern=%s workers=%d",
			newCfg.Source.Dir, newCfg.Source.Pattern, newCfg.Source.Workers)
		applied := *newCfg
		applied.Source = p.cfg.Source
		newCfg = &applied
	}

	old := p.sinks
	p.sinks = &sinkSet{sinks: sinks}
	p.cfg = newCfg
	if p.runCtx != nil {
		p.retiring.Add(1)
		go func() {
			defer p.retiring.Done()
			old.inFlight.Wait()
			p.stopSinks(old.sinks)
		}()
	}

	p.logger.Infof("configuration applied: sinks=%d", len(sinks))
	return nil
}

// SinkCount returns the number of active sinks.
func (p *Pipeline) SinkCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.sinks.sinks)
}

// inputFile describes an explicitly requested input. Dated log names keep
// their date; anything else, including stdin, is reported by run date.
func inputFile(finder *source.Finder, path string) source.LogFile {
	if path == source.Stdin {
		return source.LogFile{Path: path}
	}
	date, _ := finder.Match(path)
	return source.LogFile{Path: path, Date: date}
}
