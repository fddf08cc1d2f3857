package main

// Offline retrain tool: rebuilds the classifier model from the training
// directory and reports the outcome, without starting the server.

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"swing-trigger/trigger"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	trainingDir := flag.String("training-dir", "training_data", "Directory of labeled training samples")
	modelPath := flag.String("model", "", "Model bundle output path (default <training-dir>/audio_classifier.json)")
	sampleRate := flag.Int("rate", 44100, "Sample rate the snippets were captured at")
	flag.Parse()

	if *modelPath == "" {
		*modelPath = filepath.Join(*trainingDir, "audio_classifier.json")
	}

	cfg := trigger.DefaultConfig()
	cfg.TrainingDir = *trainingDir
	cfg.ModelPath = *modelPath
	cfg.SampleRate = *sampleRate

	store := trigger.NewTrainingStore(cfg.TrainingDir, cfg.SampleRate)
	classifier := trigger.NewClassifier(cfg, store)

	count := classifier.TrainingSampleCount()
	log.Printf("found %d training samples in %s (mode: %s)", count, cfg.TrainingDir, classifier.Mode())

	if !classifier.Retrain() {
		fmt.Println("retrain failed: need at least 10 samples with both labels represented")
		os.Exit(1)
	}

	fmt.Printf("retrained from %d samples, model written to %s (mode: %s)\n",
		classifier.TrainingSampleCount(), cfg.ModelPath, classifier.Mode())
}
