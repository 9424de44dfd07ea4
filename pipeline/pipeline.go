// Package pipeline connects a capture source, a detector and a sink. A producer goroutine reads
// frames into a bounded FrameQueue and a consumer goroutine detects, annotates and writes them, so
// a slow detector makes the pipeline drop the oldest frames instead of falling behind.
package pipeline

import (
	"context"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/multierr"

	"github.com/trip2/videodetect/components/camera"
	"github.com/trip2/videodetect/components/sink"
	"github.com/trip2/videodetect/config"
	"github.com/trip2/videodetect/logging"
	"github.com/trip2/videodetect/rimage"
	"github.com/trip2/videodetect/utils"
	"github.com/trip2/videodetect/vision/detector"
	"github.com/trip2/videodetect/vision/objectdetection"
)

// DefaultPollInterval is how long the consumer waits before looking at an empty queue again.
const DefaultPollInterval = 10 * time.Millisecond

// ErrInit is wrapped by every error that prevents a pipeline from being created.
var ErrInit = errors.New("cannot initialize pipeline")

// initError matches ErrInit and unwraps to the component error that caused it.
type initError struct {
	err error
}

func wrapInit(err error) error {
	return &initError{err: err}
}

func (e *initError) Error() string {
	return ErrInit.Error() + ": " + e.err.Error()
}

func (e *initError) Is(target error) bool {
	return target == ErrInit
}

func (e *initError) Unwrap() error {
	return e.err
}

// FrameDetector annotates frames in place. *detector.Detector implements it.
type FrameDetector interface {
	Detect(ctx context.Context, frame *rimage.Frame) ([]objectdetection.Detection, error)
	Close() error
}

// Options tune a pipeline. Zero values select the defaults.
type Options struct {
	MaxQueueDepth int
	// OutputSize is the size frames are written at when detection fails. Zero leaves them as is.
	OutputSize    image.Point
	MaxReadErrors int
	StatsInterval time.Duration
	PollInterval  time.Duration
	Clock         clock.Clock
	Metrics       *Metrics
}

func (o *Options) setDefaults() {
	if o.MaxQueueDepth <= 0 {
		o.MaxQueueDepth = config.DefaultMaxQueueDepth
	}
	if o.MaxReadErrors <= 0 {
		o.MaxReadErrors = config.DefaultMaxReadErrors
	}
	if o.StatsInterval <= 0 {
		o.StatsInterval = config.DefaultStatsInterval
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.Clock == nil {
		o.Clock = clock.New()
	}
	if o.Metrics == nil {
		o.Metrics = NewMetrics()
	}
}

// OptionsFromConfig extracts the pipeline's options from its config.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		MaxQueueDepth: cfg.MaxQueueDepth,
		OutputSize:    cfg.OutputSize.Point(),
		MaxReadErrors: cfg.MaxReadErrors,
		StatsInterval: cfg.StatsIntervalDuration(),
	}
}

// Pipeline is a running detection pipeline.
type Pipeline struct {
	id       uuid.UUID
	source   camera.Source
	sink     sink.Sink
	detector FrameDetector
	queue    *FrameQueue
	opts     Options
	metrics  *Metrics
	latency  *latencyWindow
	logger   logging.Logger

	mu            sync.Mutex
	started       bool
	stopRequested bool
	cancel        context.CancelFunc

	closeOnce sync.Once
	closeErr  error

	seq      uint64
	fatalErr atomic.Value
}

// New opens the configured capture source, sink and detector. If any of them fails, the ones
// already opened are closed and the error wraps ErrInit.
func New(ctx context.Context, cfg *config.Config, logger logging.Logger) (p *Pipeline, err error) {
	var closers []func() error
	defer func() {
		if err == nil {
			return
		}
		for i := len(closers) - 1; i >= 0; i-- {
			err = multierr.Append(err, closers[i]())
		}
	}()

	src, err := camera.Open(ctx, cfg.Capture, logger.Sublogger("capture"))
	if err != nil {
		return nil, wrapInit(err)
	}
	closers = append(closers, func() error { return src.Close(ctx) })

	out, err := sink.Open(ctx, cfg.Sink, sink.Params{Size: cfg.OutputSize.Point()}, logger.Sublogger("sink"))
	if err != nil {
		return nil, wrapInit(err)
	}
	closers = append(closers, func() error { return out.Close(ctx) })

	det, err := detector.New(ctx, detector.ConfigFromPipeline(cfg), logger.Sublogger("detector"))
	if err != nil {
		return nil, wrapInit(err)
	}

	return NewFromParts(src, out, det, OptionsFromConfig(cfg), logger), nil
}

// NewFromParts builds a pipeline from already open parts. The pipeline takes ownership of them.
func NewFromParts(src camera.Source, out sink.Sink, det FrameDetector, opts Options, logger logging.Logger) *Pipeline {
	opts.setDefaults()
	id := uuid.New()
	return &Pipeline{
		id:       id,
		source:   src,
		sink:     out,
		detector: det,
		queue:    NewFrameQueue(opts.MaxQueueDepth),
		opts:     opts,
		metrics:  opts.Metrics,
		latency:  newLatencyWindow(),
		logger:   logger.WithFields("run", id.String()),
	}
}

// ID identifies this run in logs.
func (p *Pipeline) ID() uuid.UUID {
	return p.id
}

// Metrics returns the pipeline's counters.
func (p *Pipeline) Metrics() *Metrics {
	return p.metrics
}

// Start runs the producer and consumer and blocks until both have finished: the capture stream
// ended or Stop was called, and every queued frame was written. It returns an error only if the
// capture source failed too many times in a row.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return errors.New("pipeline already started")
	}
	p.started = true
	if p.stopRequested {
		p.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.mu.Unlock()
	defer cancel()

	p.logger.Infow("pipeline starting", "max_queue_depth", p.opts.MaxQueueDepth)
	captureDone := make(chan struct{})
	var running sync.WaitGroup
	running.Add(2)
	workers := utils.NewStoppableWorkersWithContext(runCtx,
		func(ctx context.Context) {
			defer running.Done()
			defer close(captureDone)
			p.produce(ctx)
		},
		func(ctx context.Context) {
			defer running.Done()
			p.consume(ctx, captureDone)
		},
		p.logStats,
	)
	running.Wait()
	workers.Stop()

	p.logger.Infow("pipeline finished", p.Stats().keysAndValues()...)
	if err, ok := p.fatalErr.Load().(error); ok {
		return err
	}
	return nil
}

// Stop asks the pipeline to finish. Capture stops immediately; frames already queued are still
// detected and written. Stop does not wait and is safe to call more than once.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopRequested {
		return
	}
	p.stopRequested = true
	if p.cancel != nil {
		p.cancel()
	}
	p.logger.Info("pipeline stop requested")
}

// Close releases the detector, source and sink. It must be called after Start returns.
func (p *Pipeline) Close(ctx context.Context) error {
	p.closeOnce.Do(func() {
		p.closeErr = multierr.Combine(
			p.detector.Close(),
			p.source.Close(ctx),
			p.sink.Close(ctx),
		)
	})
	return p.closeErr
}

// Stats returns a snapshot of the pipeline's progress.
func (p *Pipeline) Stats() Stats {
	mean, p50, p95 := p.latency.summary()
	return Stats{
		FramesRead:        p.metrics.FramesRead.Load(),
		FramesProcessed:   p.metrics.FramesProcessed.Load(),
		FramesWritten:     p.metrics.FramesWritten.Load(),
		FramesDropped:     p.metrics.FramesDropped.Load(),
		Detections:        p.metrics.Detections.Load(),
		ReadErrors:        p.metrics.ReadErrors.Load(),
		DetectFailures:    p.metrics.DetectFailures.Load(),
		SinkFailures:      p.metrics.SinkFailures.Load(),
		QueueDepth:        p.queue.Len(),
		MaxQueueDepth:     p.queue.HighWaterMark(),
		DetectLatencyMean: mean,
		DetectLatencyP50:  p50,
		DetectLatencyP95:  p95,
	}
}

// produce reads frames until the stream ends, the context is cancelled, or reads fail
// MaxReadErrors times in a row.
func (p *Pipeline) produce(ctx context.Context) {
	consecutiveErrors := 0
	for ctx.Err() == nil {
		frame, err := p.source.ReadFrame(ctx)
		if err != nil {
			if errors.Is(err, camera.ErrEndOfStream) {
				p.logger.Info("capture stream ended")
				return
			}
			if ctx.Err() != nil {
				return
			}
			consecutiveErrors++
			p.metrics.ReadErrors.Add(1)
			p.logger.Warnw("capture read failed", "error", err, "consecutive", consecutiveErrors)
			if consecutiveErrors >= p.opts.MaxReadErrors {
				p.fatalErr.Store(errors.Wrapf(err, "capture failed %d times in a row", consecutiveErrors))
				p.logger.Errorw("giving up on capture", "error", err)
				return
			}
			continue
		}
		consecutiveErrors = 0

		p.seq++
		frame.Seq = p.seq
		if frame.CapturedAt.IsZero() {
			frame.CapturedAt = p.opts.Clock.Now()
		}
		p.metrics.FramesRead.Add(1)

		dropped := p.queue.Push(frame)
		if len(dropped) > 0 {
			p.metrics.FramesDropped.Add(uint64(len(dropped)))
			p.logger.Debugw("queue full, dropped oldest frames",
				"dropped", lo.Map(dropped, func(f *rimage.Frame, _ int) uint64 { return f.Seq }))
		}
		p.metrics.QueueDepth.Store(int64(p.queue.Len()))
	}
}

// consume detects and writes queued frames until capture is done and the queue is empty.
func (p *Pipeline) consume(ctx context.Context, captureDone <-chan struct{}) {
	// A frame being detected or written is finished even after Stop.
	frameCtx := context.WithoutCancel(ctx)
	for {
		finished := false
		select {
		case <-captureDone:
			finished = true
		default:
		}

		frame, ok := p.queue.Pop()
		if ok {
			p.metrics.QueueDepth.Store(int64(p.queue.Len()))
			p.process(frameCtx, frame)
			continue
		}
		if finished {
			return
		}
		select {
		case <-captureDone:
		case <-p.opts.Clock.After(p.opts.PollInterval):
		}
	}
}

func (p *Pipeline) process(ctx context.Context, frame *rimage.Frame) {
	start := p.opts.Clock.Now()
	dets, err := p.detector.Detect(ctx, frame)
	elapsed := p.opts.Clock.Since(start)
	if err != nil {
		p.metrics.DetectFailures.Add(1)
		stage := "unknown"
		var stageErr *detector.StageError
		if errors.As(err, &stageErr) {
			stage = string(stageErr.Stage)
		}
		p.logger.Warnw("detection failed, writing frame unannotated", "seq", frame.Seq, "stage", stage, "error", err)
		if p.opts.OutputSize != (image.Point{}) {
			frame.ResizeInPlace(p.opts.OutputSize)
		}
	} else {
		p.metrics.FramesProcessed.Add(1)
		p.metrics.Detections.Add(uint64(len(dets)))
		p.metrics.ObserveDetectLatency(elapsed)
		p.latency.add(elapsed)
	}

	if err := p.sink.WriteFrame(ctx, frame); err != nil {
		p.metrics.SinkFailures.Add(1)
		p.logger.Warnw("sink write failed", "seq", frame.Seq, "error", err)
		return
	}
	p.metrics.FramesWritten.Add(1)
}

func (p *Pipeline) logStats(ctx context.Context) {
	ticker := p.opts.Clock.Ticker(p.opts.StatsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.logger.Infow("pipeline stats", p.Stats().keysAndValues()...)
		}
	}
}
