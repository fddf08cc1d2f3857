package main

import (
	"crypto/tls"
	"encoding/json"
	"log"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"swing-trigger/db"
	"swing-trigger/trigger"
	"swing-trigger/utils"

	socketio "github.com/googollee/go-socket.io"
	"github.com/googollee/go-socket.io/engineio"
	"github.com/googollee/go-socket.io/engineio/transport"
	"github.com/googollee/go-socket.io/engineio/transport/polling"
	"github.com/googollee/go-socket.io/engineio/transport/websocket"
)

type apiError struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	if w.Header().Get("Access-Control-Allow-Origin") == "" {
		w.Header().Set("Access-Control-Allow-Origin", "*")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("failed to encode JSON response: %v", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, apiError{Message: message})
}

// loadPipelineConfig assembles the trigger configuration from the
// environment, falling back to the reference capture defaults.
func loadPipelineConfig() trigger.Config {
	cfg := trigger.DefaultConfig()
	cfg.TrainingDir = utils.GetEnv("TRIGGER_TRAINING_DIR", cfg.TrainingDir)
	cfg.ModelPath = utils.GetEnv("TRIGGER_MODEL_PATH", filepath.Join(cfg.TrainingDir, "audio_classifier.json"))

	if v, err := strconv.Atoi(utils.GetEnv("TRIGGER_SAMPLE_RATE", "44100")); err == nil && v > 0 {
		cfg.SampleRate = v
	}
	if v, err := strconv.Atoi(utils.GetEnv("TRIGGER_CHUNK_SIZE", "1024")); err == nil && v > 0 {
		cfg.ChunkSize = v
	}
	if v, err := strconv.Atoi(utils.GetEnv("TRIGGER_WINDOW_CHUNKS", "4")); err == nil && v > 0 {
		cfg.WindowChunks = v
	}
	if v, err := strconv.ParseFloat(utils.GetEnv("TRIGGER_THRESHOLD", "0.3"), 64); err == nil {
		cfg.Threshold = v
	}
	return cfg
}

// sourceOpener builds the chunk source opener for the configured input: a
// .wav path replays a recording, anything else is read as a raw PCM16 stream
// (named pipe fed by a capture process).
func sourceOpener(path string, chunkSize int) trigger.SourceOpener {
	if strings.HasSuffix(strings.ToLower(path), ".wav") {
		return func() (trigger.ChunkSource, error) {
			return trigger.NewWAVSource(path, chunkSize)
		}
	}
	return func() (trigger.ChunkSource, error) {
		return trigger.NewPipeSource(path, chunkSize)
	}
}

func serve(protocol, port string) {
	protocol = strings.ToLower(protocol)
	allowOriginFunc := func(r *http.Request) bool {
		return true
	}

	cfg := loadPipelineConfig()

	store := trigger.NewTrainingStore(cfg.TrainingDir, cfg.SampleRate)
	classifier := trigger.NewClassifier(cfg, store)
	extractor := trigger.NewFeatureExtractor(cfg.SampleRate)

	dbPath := utils.GetEnv("TRIGGER_DB_PATH", "triggers.db")
	dbClient, err := db.NewSQLiteClient(dbPath)
	if err != nil {
		log.Fatalf("failed to open trigger log: %v", err)
	}
	defer dbClient.Close()

	sourcePath := utils.GetEnv("TRIGGER_SOURCE", "")
	var opener trigger.SourceOpener
	if sourcePath != "" {
		opener = sourceOpener(sourcePath, cfg.ChunkSize)
	}

	detector := trigger.NewDetector(cfg, extractor, classifier, store, opener)
	controller := newSocketController(cfg, detector, classifier, store, dbClient)

	detector.OnLevel(controller.publishLevel)
	detector.OnTrigger(controller.publishTrigger)

	if sourcePath != "" {
		// open failure is non-fatal: the detector stays idle, the API stays up
		if err := detector.Start(); err != nil {
			log.Printf("detector idle: %v", err)
		}
	} else {
		log.Println("TRIGGER_SOURCE not set; detector idle until configured")
	}
	defer detector.Stop()

	server := socketio.NewServer(&engineio.Options{
		PingTimeout:  60 * time.Second,
		PingInterval: 25 * time.Second,
		Transports: []transport.Transport{
			&websocket.Transport{
				CheckOrigin: allowOriginFunc,
			},
			&polling.Transport{
				CheckOrigin: allowOriginFunc,
			},
		},
	})
	controller.server = server

	server.OnConnect("/", func(socket socketio.Conn) error {
		socket.SetContext("")
		log.Printf("CONNECTED: %s, remote addr: %s\n", socket.ID(), socket.RemoteAddr())
		controller.emitStatus(socket)
		return nil
	})

	server.OnEvent("/", "requestStatus", func(socket socketio.Conn) {
		controller.emitStatus(socket)
	})

	server.OnEvent("/", "markNotShot", func(socket socketio.Conn, msg string) {
		go func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("panic in handleMarkNotShot for socket %s: %v\n", socket.ID(), r)
					socket.Emit("correctionError", map[string]string{"message": "internal error during relabel"})
				}
			}()
			controller.handleMarkNotShot(socket, msg)
		}()
	})

	server.OnEvent("/", "retrain", func(socket socketio.Conn) {
		go controller.handleRetrain(socket)
	})

	server.OnEvent("/", "setThreshold", func(socket socketio.Conn, msg string) {
		controller.handleSetThreshold(socket, msg)
	})

	server.OnError("/", func(s socketio.Conn, e error) {
		log.Println("socket error:", e)
	})

	server.OnDisconnect("/", func(s socketio.Conn, reason string) {
		log.Printf("socket disconnected - ID: %s, reason: %s\n", s.ID(), reason)
	})

	go func() {
		if err := server.Serve(); err != nil {
			log.Fatalf("socketio listen error: %s\n", err)
		}
	}()
	defer server.Close()

	mux := http.NewServeMux()
	mux.Handle("/socket.io/", server)
	mux.HandleFunc("/api/status", newStatusHandler(controller))
	mux.HandleFunc("/api/retrain", newRetrainHandler(controller))
	mux.HandleFunc("/api/triggers", newTriggersHandler(dbClient))
	mux.Handle("/", http.FileServer(http.Dir("static")))

	serveHTTP(serveHTTPS(protocol), port, mux)
}

func newStatusHandler(controller *socketController) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		writeJSON(w, http.StatusOK, controller.status())
	}
}

func newRetrainHandler(controller *socketController) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		retrained := controller.classifier.Retrain()
		writeJSON(w, http.StatusOK, map[string]any{
			"retrained":   retrained,
			"mode":        controller.classifier.Mode(),
			"sampleCount": controller.classifier.TrainingSampleCount(),
		})
	}
}

func newTriggersHandler(dbClient *db.SQLiteClient) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		limit := 50
		if v := r.URL.Query().Get("limit"); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
				limit = parsed
			}
		}
		records, err := dbClient.RecentTriggers(limit)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, "failed to load triggers")
			return
		}
		writeJSON(w, http.StatusOK, records)
	}
}

func serveHTTPS(protocol string) bool {
	return protocol == "https"
}

func serveHTTP(useHTTPS bool, port string, handler http.Handler) {
	if useHTTPS {
		httpsServer := &http.Server{
			Addr: ":" + port,
			TLSConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
			Handler: handler,
		}

		certKey := utils.GetEnv("CERT_KEY", "")
		certFile := utils.GetEnv("CERT_FILE", "")
		if certKey == "" || certFile == "" {
			log.Fatal("Missing cert")
		}

		log.Printf("Starting HTTPS server on :%s\n", port)
		if err := httpsServer.ListenAndServeTLS(certFile, certKey); err != nil {
			log.Fatalf("HTTPS server ListenAndServeTLS: %v", err)
		}
		return
	}

	log.Printf("Starting HTTP server on port %v", port)
	if err := http.ListenAndServe(":"+port, handler); err != nil {
		log.Fatalf("HTTP server ListenAndServe: %v", err)
	}
}
