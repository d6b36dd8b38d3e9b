// Package server exposes the scrape engine over HTTP: postcode resolution,
// baseline upload, job start/cancel, live progress via server-sent events,
// and export download.
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"gmaps-scraper/config"
	"gmaps-scraper/geo"
	"gmaps-scraper/models"
	"gmaps-scraper/progress"
	"gmaps-scraper/scraper"
	"gmaps-scraper/scraper/gmaps"
	"gmaps-scraper/services"
	"gmaps-scraper/storage"
	"gmaps-scraper/utils"
)

const maxUploadBytes = 50 << 20

// Server wires the engine's collaborators behind the HTTP API. Jobs and
// uploaded baselines live in memory for the lifetime of the process.
type Server struct {
	cfg     *config.Config
	logger  *utils.Logger
	geo     *geo.Client
	excel   *storage.ExcelWriter
	archive storage.ArchiveWriter // nil when postgres is disabled

	mu      sync.Mutex
	jobs    map[string]*job
	uploads map[string]*upload
}

type job struct {
	ID         string
	Status     string // running, complete, error
	Err        string
	OutputFile string
	StartedAt  time.Time
	Stream     *progress.Stream
	Cancel     context.CancelFunc
	Done       chan struct{}
}

type upload struct {
	Filename string
	Path     string
	Listings []models.RawListing
}

// New creates a Server. archive may be nil.
func New(cfg *config.Config, logger *utils.Logger, geoClient *geo.Client, archive storage.ArchiveWriter) *Server {
	return &Server{
		cfg:     cfg,
		logger:  logger,
		geo:     geoClient,
		excel:   storage.NewExcelWriter(logger),
		archive: archive,
		jobs:    make(map[string]*job),
		uploads: make(map[string]*upload),
	}
}

// Router builds the API routes.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/postcodes", s.handlePostcodes).Methods(http.MethodPost)
	api.HandleFunc("/upload", s.handleUpload).Methods(http.MethodPost)
	api.HandleFunc("/upload/remove", s.handleUploadRemove).Methods(http.MethodPost)
	api.HandleFunc("/scrape", s.handleScrape).Methods(http.MethodPost)
	api.HandleFunc("/cancel/{jobID}", s.handleCancel).Methods(http.MethodPost)
	api.HandleFunc("/progress/{jobID}", s.handleProgress).Methods(http.MethodGet)
	api.HandleFunc("/download/{filename}", s.handleDownload).Methods(http.MethodGet)
	api.HandleFunc("/archive", s.handleArchive).Methods(http.MethodGet)
	api.HandleFunc("/cleanup", s.handleCleanup).Methods(http.MethodPost)
	api.HandleFunc("/cleanup/info", s.handleCleanupInfo).Methods(http.MethodGet)

	return r
}

// ListenAndServe blocks serving the API.
func (s *Server) ListenAndServe() error {
	for _, dir := range []string{s.cfg.OutputDir, s.cfg.UploadDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("server: create dir %q: %w", dir, err)
		}
	}

	addr := ":" + s.cfg.Port
	s.logger.Info("[server] listening on %s", addr)
	return http.ListenAndServe(addr, s.Router())
}

// startJob registers a job and launches the run in the background.
func (s *Server) startJob(req scraper.Request) *job {
	ctx, cancel := context.WithCancel(context.Background())

	j := &job{
		ID:        fmt.Sprintf("job_%d", time.Now().UnixMilli()),
		Status:    "running",
		StartedAt: time.Now(),
		Stream:    progress.NewStream(s.cfg.EventBufferSize),
		Cancel:    cancel,
		Done:      make(chan struct{}),
	}

	s.mu.Lock()
	s.jobs[j.ID] = j
	s.mu.Unlock()

	go s.runJob(ctx, j, req)
	return j
}

// runJob owns the full run lifecycle: browser, orchestrator, export,
// archive. Infrastructure failures surface on the stream before it closes.
func (s *Server) runJob(ctx context.Context, j *job, req scraper.Request) {
	defer close(j.Done)
	defer j.Cancel()

	browser := gmaps.NewBrowser(s.cfg, s.logger)
	defer browser.Close()

	if err := browser.Start(); err != nil {
		s.failJob(j, err)
		return
	}

	store := services.NewAggregateStore(services.FillMissing)
	session := gmaps.NewSession(browser, s.cfg, s.logger)
	orch := scraper.New(session, store, j.Stream, s.logger, s.cfg.MaxConcurrency)

	bundle, err := orch.Run(ctx, req)
	if err != nil {
		s.failJob(j, err)
		return
	}

	// The export file is written even when nothing new was found: baseline
	// rows still belong in the output.
	outputFile := j.ID + ".xlsx"
	outputPath := filepath.Join(s.cfg.OutputDir, outputFile)
	if err := s.excel.Write(bundle, outputPath); err != nil {
		s.failJob(j, err)
		return
	}

	if s.archive != nil {
		if err := s.archive.Write(bundle.Rows); err != nil {
			s.logger.Error("[server] archive write failed: %v", err)
		}
	}

	s.mu.Lock()
	j.OutputFile = outputFile
	j.Status = "complete"
	s.mu.Unlock()
}

func (s *Server) failJob(j *job, err error) {
	s.logger.Error("[server] job %s failed: %v", j.ID, err)

	j.Stream.Publish(progress.Event{Type: progress.EventError, Message: err.Error()})
	j.Stream.Close()

	s.mu.Lock()
	j.Status = "error"
	j.Err = err.Error()
	s.mu.Unlock()
}

func (s *Server) job(id string) *job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}
