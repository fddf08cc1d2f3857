package trigger

// TriggerDetector: the stateful per-stream pipeline.
//
// A dedicated worker goroutine pulls chunks from the configured source and is
// the single writer of the session state (window accumulator, ring buffer,
// cooldown expiry). Per chunk it:
//
//  1. computes the RMS level (min(1, rms*10)) and reports it to the level
//     subscriber regardless of gating, for the host's VU meter;
//  2. applies the loudness gate: below threshold/2 the pending window is
//     discarded and the classifier never runs;
//  3. accumulates chunks until a full classification window is held, then
//     extracts features and classifies the concatenated window;
//  4. fires when confidence >= 0.45, level >= threshold and the cooldown from
//     the previous trigger has expired, then persists a training snippet from
//     the ~1 s audio ring and arms a 3 s cooldown against reverberation.
//
// Threshold and source changes come from another goroutine (the host UI), so
// both sides take the mutex; feature extraction and classification stay
// inline in the loop to preserve strict chunk ordering. Stop is cooperative
// and blocks until the worker has released the source.

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"swing-trigger/utils"
)

const (
	// classifyThreshold is the fixed confidence floor for firing.
	classifyThreshold = 0.45
	// cooldownDuration suppresses re-triggers on echo of the same impact.
	cooldownDuration = 3 * time.Second
	// ringSeconds of audio are kept for training snippets.
	ringSeconds = 1
)

// LevelFunc receives the normalized level of every chunk (0..1, chunk rate).
type LevelFunc func(level float64)

// TriggerFunc receives each fired trigger event.
type TriggerFunc func(event TriggerEvent)

// Detector consumes a chunk stream and emits trigger events.
type Detector struct {
	cfg        Config
	extractor  *FeatureExtractor
	classifier *Classifier
	store      *TrainingStore

	onLevel   LevelFunc
	onTrigger TriggerFunc

	mu        sync.Mutex
	threshold float64
	open      SourceOpener
	running   bool

	wg sync.WaitGroup
}

// NewDetector wires the pipeline stages together. The source opener selects
// the audio input; replace it with SetSource to change devices.
func NewDetector(cfg Config, extractor *FeatureExtractor, classifier *Classifier, store *TrainingStore, open SourceOpener) *Detector {
	return &Detector{
		cfg:        cfg,
		extractor:  extractor,
		classifier: classifier,
		store:      store,
		threshold:  cfg.Threshold,
		open:       open,
	}
}

// OnLevel registers the level subscriber. Must be called before Start; the
// callback runs on the worker goroutine and should return quickly.
func (d *Detector) OnLevel(fn LevelFunc) { d.onLevel = fn }

// OnTrigger registers the trigger subscriber. Must be called before Start.
func (d *Detector) OnTrigger(fn TriggerFunc) { d.onTrigger = fn }

// SetThreshold updates the trigger level threshold. Safe to call while
// listening; the next classification decision reads the new value.
func (d *Detector) SetThreshold(value float64) {
	d.mu.Lock()
	d.threshold = value
	d.mu.Unlock()
}

// Threshold returns the current trigger threshold.
func (d *Detector) Threshold() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.threshold
}

// SetSource replaces the source opener. Takes effect at the next Start; a
// running session keeps its current source.
func (d *Detector) SetSource(open SourceOpener) {
	d.mu.Lock()
	d.open = open
	d.mu.Unlock()
}

// Running reports whether a listening session is active.
func (d *Detector) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// Start opens the configured source and launches the worker. If the source is
// unavailable the detector logs and stays idle; the returned error is
// informational and never fatal to the host.
func (d *Detector) Start() error {
	logger := utils.GetLogger()
	ctx := context.Background()

	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return errors.New("detector already running")
	}
	open := d.open
	d.mu.Unlock()

	if open == nil {
		logger.WarnContext(ctx, "no audio source configured, detector staying idle")
		return errors.New("no audio source configured")
	}

	source, err := open()
	if err != nil {
		logger.ErrorContext(ctx, "audio source unavailable, detector staying idle",
			slog.Any("error", err))
		return err
	}

	d.mu.Lock()
	d.running = true
	d.mu.Unlock()

	d.wg.Add(1)
	go d.loop(source)
	return nil
}

// Stop requests a cooperative shutdown and blocks until the worker has exited
// and the source handle is released.
func (d *Detector) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	d.mu.Unlock()

	d.wg.Wait()
}

func (d *Detector) loop(source ChunkSource) {
	defer d.wg.Done()
	// running must flip only after the source handle is released, so a caller
	// observing an idle detector can immediately reopen the device
	defer func() {
		d.mu.Lock()
		d.running = false
		d.mu.Unlock()
	}()
	defer source.Close()

	logger := utils.GetLogger()
	ctx := context.Background()

	ringChunks := d.cfg.SampleRate * ringSeconds / d.cfg.ChunkSize
	if ringChunks < 1 {
		ringChunks = 1
	}
	ring := make([][]float64, 0, ringChunks)

	accumulator := make([][]float64, 0, d.cfg.WindowChunks)
	var cooldownUntil time.Time

	for {
		d.mu.Lock()
		running := d.running
		threshold := d.threshold
		d.mu.Unlock()
		if !running {
			return
		}

		chunk, err := source.ReadChunk()
		if err != nil {
			if errors.Is(err, io.EOF) {
				logger.InfoContext(ctx, "audio source drained, stopping detection")
				return
			}
			// transient read failure: skip this chunk, keep listening
			logger.ErrorContext(ctx, "audio read error", slog.Any("error", err))
			continue
		}
		if len(chunk) == 0 {
			continue
		}

		rms := rootMeanSquare(chunk)
		level := rms * 10
		if level > 1.0 {
			level = 1.0
		}
		if d.onLevel != nil {
			d.onLevel(level)
		}

		if len(ring) == ringChunks {
			ring = append(ring[1:], chunk)
		} else {
			ring = append(ring, chunk)
		}

		// cheap rejection of silence without running the classifier
		if level < threshold*0.5 {
			accumulator = accumulator[:0]
			continue
		}

		accumulator = append(accumulator, chunk)
		if len(accumulator) < d.cfg.WindowChunks {
			continue
		}

		window := concatChunks(accumulator)
		accumulator = accumulator[:0]

		features := d.extractor.Extract(window)
		confidence := d.classifier.Classify(features)

		now := time.Now()
		if confidence >= classifyThreshold && level >= threshold && now.After(cooldownUntil) {
			logger.InfoContext(ctx, "audio trigger",
				slog.Float64("confidence", confidence),
				slog.Float64("rms", rms))

			event := TriggerEvent{
				Timestamp:  now,
				Confidence: confidence,
				Level:      level,
				Threshold:  threshold,
				Features:   features,
			}
			if d.onTrigger != nil {
				d.onTrigger(event)
			}
			if d.store != nil {
				d.store.PersistSample(concatChunks(ring), features, confidence, threshold, now)
			}
			cooldownUntil = now.Add(cooldownDuration)
		}
	}
}

func concatChunks(chunks [][]float64) []float64 {
	total := 0
	for _, c := range chunks {
		total += len(c)
	}
	out := make([]float64, 0, total)
	for _, c := range chunks {
		out = append(out, c...)
	}
	return out
}
