package web

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	"github.com/On-Jun9/PixelPipe/internal/config"
	"github.com/On-Jun9/PixelPipe/internal/pipeline"
)

//go:embed static
var staticFS embed.FS

func staticFiles() fs.FS {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return sub
}

func notAPI(r *http.Request, _ *mux.RouteMatch) bool {
	return !strings.HasPrefix(r.URL.Path, "/api/")
}

// DefaultItemRate caps item_completed broadcasts per second.
const DefaultItemRate = rate.Limit(20)

type Server struct {
	router  *mux.Router
	hub     *Hub
	version string

	itemRate    rate.Limit
	newPipeline func(cfg *config.Config) (*pipeline.Pipeline, error)

	runMu  sync.Mutex
	mu     sync.Mutex
	active *pipeline.Pipeline
	// runDone is closed when the current run's goroutine exits.
	runDone chan struct{}
}

func NewServer() *Server {
	s := &Server{
		router:      mux.NewRouter(),
		hub:         NewHub(),
		version:     "unknown",
		itemRate:    DefaultItemRate,
		newPipeline: pipeline.New,
	}

	go s.hub.Run()

	s.setupRoutes()
	return s
}

func (s *Server) SetVersion(v string) {
	s.version = v
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/version", s.handleVersion).Methods("GET")
	api.HandleFunc("/browse", s.handleBrowse).Methods("GET")
	api.HandleFunc("/formats", s.handleFormats).Methods("GET")
	api.HandleFunc("/config", s.handleGetConfig).Methods("GET")
	api.HandleFunc("/run", s.handleRun).Methods("POST")
	api.HandleFunc("/cancel", s.handleCancel).Methods("POST")
	api.HandleFunc("/history", s.handleGetHistory).Methods("GET")
	api.HandleFunc("/ws", s.handleWebSocket)

	api.HandleFunc("/settings", s.handleGetSettings).Methods("GET")
	api.HandleFunc("/settings", s.handleSaveSettings).Methods("POST")

	// Kept off /api/ so method mismatches there still answer 405.
	s.router.PathPrefix("/").MatcherFunc(notAPI).Handler(http.FileServer(http.FS(staticFiles())))
}

func (s *Server) userData() (*config.UserDataManager, error) {
	return config.NewUserDataManager()
}

// Wait blocks until the current run, if any, has finished.
func (s *Server) Wait(ctx context.Context) error {
	s.mu.Lock()
	done := s.runDone
	s.mu.Unlock()

	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) Start(addr string) error {
	fmt.Printf("Starting PixelPipe Web UI at http://%s\n", addr)
	return http.ListenAndServe(addr, s.router)
}
