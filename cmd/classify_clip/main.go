package main

// Classification explain tool: runs the trigger pipeline's feature extraction
// and classifier over each window of a WAV file and prints the per-window
// scores, which is the quickest way to see why a clip did or did not fire.

import (
	"flag"
	"fmt"
	"io"
	"log"
	"path/filepath"

	"swing-trigger/trigger"
)

func main() {
	chunkSize := flag.Int("chunk", 1024, "Samples per chunk")
	windowChunks := flag.Int("window", 4, "Chunks per classification window")
	trainingDir := flag.String("training-dir", "training_data", "Training directory (for a learned model, if present)")
	verbose := flag.Bool("v", false, "Print the full feature vector per window")
	flag.Parse()

	if flag.NArg() != 1 {
		log.Fatal("usage: classify_clip [flags] <clip.wav>")
	}
	path := flag.Arg(0)

	source, err := trigger.NewWAVSource(path, *chunkSize)
	if err != nil {
		log.Fatalf("failed to open clip: %v", err)
	}
	defer source.Close()

	cfg := trigger.DefaultConfig()
	cfg.SampleRate = source.SampleRate()
	cfg.ChunkSize = *chunkSize
	cfg.WindowChunks = *windowChunks
	cfg.TrainingDir = *trainingDir
	cfg.ModelPath = filepath.Join(*trainingDir, "audio_classifier.json")

	store := trigger.NewTrainingStore(cfg.TrainingDir, cfg.SampleRate)
	classifier := trigger.NewClassifier(cfg, store)
	extractor := trigger.NewFeatureExtractor(cfg.SampleRate)

	fmt.Printf("clip: %s (%d Hz), window = %d x %d samples, classifier mode: %s\n",
		path, cfg.SampleRate, cfg.WindowChunks, cfg.ChunkSize, classifier.Mode())

	var window []float64
	windowIndex := 0
	chunksInWindow := 0
	for {
		chunk, err := source.ReadChunk()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Fatalf("read error: %v", err)
		}
		window = append(window, chunk...)
		chunksInWindow++
		if chunksInWindow < cfg.WindowChunks {
			continue
		}

		features := extractor.Extract(window)
		confidence := classifier.Classify(features)

		start := float64(windowIndex*cfg.WindowChunks*cfg.ChunkSize) / float64(cfg.SampleRate)
		marker := " "
		if confidence >= 0.45 {
			marker = "*"
		}
		fmt.Printf("%s window %3d @ %6.3fs  confidence=%.3f  crest=%.2f impact=%.3f rise=%.0f centroid=%.0f\n",
			marker, windowIndex, start, confidence,
			features.CrestFactor, features.ImpactRatio, features.RiseTime, features.SpectralCentroid)
		if *verbose {
			for i, v := range features.Slice() {
				fmt.Printf("    %-18s %g\n", trigger.FeatureKeys[i], v)
			}
		}

		window = window[:0]
		chunksInWindow = 0
		windowIndex++
	}
}
