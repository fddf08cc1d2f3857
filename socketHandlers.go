package main

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"swing-trigger/db"
	"swing-trigger/models"
	"swing-trigger/trigger"
	"swing-trigger/utils"

	socketio "github.com/googollee/go-socket.io"
	"github.com/mdobak/go-xerrors"
)

// socketController fans detector events out to connected UI clients and
// handles inbound correction/retrain requests.
type socketController struct {
	cfg        trigger.Config
	detector   *trigger.Detector
	classifier *trigger.Classifier
	store      *trigger.TrainingStore
	dbClient   *db.SQLiteClient
	server     *socketio.Server

	levelMu       sync.Mutex
	lastLevelSent time.Time
}

// levelBroadcastInterval caps VU-meter fan-out at 20 updates/s; the wire does
// not need the full chunk rate.
const levelBroadcastInterval = 50 * time.Millisecond

type markNotShotRequest struct {
	Timestamp int64 `json:"timestamp"`
}

func newSocketController(cfg trigger.Config, detector *trigger.Detector, classifier *trigger.Classifier, store *trigger.TrainingStore, dbClient *db.SQLiteClient) *socketController {
	return &socketController{
		cfg:        cfg,
		detector:   detector,
		classifier: classifier,
		store:      store,
		dbClient:   dbClient,
	}
}

func (c *socketController) status() models.StatusReport {
	totalTriggers := 0
	if c.dbClient != nil {
		if n, err := c.dbClient.TotalTriggers(); err == nil {
			totalTriggers = n
		}
	}
	return models.StatusReport{
		Listening:           c.detector.Running(),
		ClassifierMode:      c.classifier.Mode(),
		TrainingSampleCount: c.classifier.TrainingSampleCount(),
		TotalTriggers:       totalTriggers,
		Threshold:           c.detector.Threshold(),
		SampleRate:          c.cfg.SampleRate,
		ChunkSize:           c.cfg.ChunkSize,
		WindowChunks:        c.cfg.WindowChunks,
	}
}

func (c *socketController) emitStatus(socket socketio.Conn) {
	socket.Emit("statusInfo", c.status())
}

// publishLevel forwards detector level updates, throttled. Runs on the
// detector worker goroutine, so it must stay cheap.
func (c *socketController) publishLevel(level float64) {
	if c.server == nil {
		return
	}
	c.levelMu.Lock()
	now := time.Now()
	if now.Sub(c.lastLevelSent) < levelBroadcastInterval {
		c.levelMu.Unlock()
		return
	}
	c.lastLevelSent = now
	c.levelMu.Unlock()

	c.server.BroadcastToNamespace("/", "levelUpdate", level)
}

// publishTrigger records the event and forwards it to clients.
func (c *socketController) publishTrigger(event trigger.TriggerEvent) {
	logger := utils.GetLogger()
	ctx := context.Background()

	if c.dbClient != nil {
		features, err := json.Marshal(event.Features)
		if err != nil {
			features = []byte("{}")
		}
		record := models.TriggerRecord{
			Timestamp:  event.Timestamp,
			Confidence: event.Confidence,
			Level:      event.Level,
			Threshold:  event.Threshold,
			Features:   features,
			SampleBase: sampleBaseName(event.Timestamp),
		}
		if err := c.dbClient.StoreTrigger(&record); err != nil {
			err := xerrors.New(err)
			logger.ErrorContext(ctx, "failed to store trigger event", slog.Any("error", err))
		}
	}

	if c.server != nil {
		c.server.BroadcastToNamespace("/", "triggerDetected", event)
	}
}

// handleMarkNotShot relabels the training sample identified by the trigger
// timestamp and kicks off a retrain. Unknown identities are a no-op by
// contract, so the client always gets an updated status back.
func (c *socketController) handleMarkNotShot(socket socketio.Conn, payload string) {
	logger := utils.GetLogger()
	ctx := context.Background()

	var req markNotShotRequest
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		err := xerrors.New(err)
		logger.ErrorContext(ctx, "invalid markNotShot payload", slog.Any("error", err))
		socket.Emit("correctionError", map[string]string{"message": "invalid payload"})
		return
	}

	c.store.Relabel(req.Timestamp, 0)
	logger.InfoContext(ctx, "clip marked as not a shot",
		slog.Int64("timestamp", req.Timestamp))

	retrained := c.classifier.Retrain()
	socket.Emit("retrainResult", map[string]any{
		"retrained":   retrained,
		"mode":        c.classifier.Mode(),
		"sampleCount": c.classifier.TrainingSampleCount(),
	})
	c.emitStatus(socket)
}

func (c *socketController) handleRetrain(socket socketio.Conn) {
	retrained := c.classifier.Retrain()
	socket.Emit("retrainResult", map[string]any{
		"retrained":   retrained,
		"mode":        c.classifier.Mode(),
		"sampleCount": c.classifier.TrainingSampleCount(),
	})
	c.emitStatus(socket)
}

func (c *socketController) handleSetThreshold(socket socketio.Conn, payload string) {
	var value float64
	if err := json.Unmarshal([]byte(payload), &value); err != nil {
		socket.Emit("correctionError", map[string]string{"message": "invalid threshold"})
		return
	}
	if value < 0.01 {
		value = 0.01
	} else if value > 1.0 {
		value = 1.0
	}
	c.detector.SetThreshold(value)
	log.Printf("threshold updated to %.2f by %s", value, socket.ID())
	c.emitStatus(socket)
}

func sampleBaseName(ts time.Time) string {
	return "trigger_" + strconv.FormatInt(ts.UnixMilli(), 10)
}
