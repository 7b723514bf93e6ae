package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/time/rate"

	"github.com/On-Jun9/PixelPipe/internal/codec"
	"github.com/On-Jun9/PixelPipe/internal/config"
	"github.com/On-Jun9/PixelPipe/internal/errors"
	"github.com/On-Jun9/PixelPipe/internal/scanner"
	"github.com/On-Jun9/PixelPipe/pkg/types"
)

// ValidationError represents a field validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type APIErrorResponse struct {
	Message string `json:"message"`
}

// messageSummary is the websocket message sent after finished, carrying the
// run summary.
const messageSummary types.EventType = "summary"

// ProgressMessage is the websocket payload: an engine event, or a summary.
type ProgressMessage struct {
	types.ProgressEvent
	Summary *types.RunSummary `json:"summary,omitempty"`
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeAPIError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(APIErrorResponse{Message: message})
}

func writeValidationError(w http.ResponseWriter, field, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	json.NewEncoder(w).Encode(ValidationError{
		Field:   field,
		Message: message,
	})
}

// writeError maps config validation errors to 400 and everything else to 500.
func writeError(w http.ResponseWriter, err error) {
	var validationErr *config.ValidationError
	if errors.As(err, &validationErr) {
		writeValidationError(w, validationErr.Field, validationErr.Message)
		return
	}
	writeAPIError(w, http.StatusInternalServerError, err.Error())
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"version": s.version})
}

func (s *Server) handleFormats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"formats":         codec.FormatNames(),
		"default":         string(codec.PNG),
		"default_quality": codec.DefaultQuality,
	})
}

// DirEntry is one sub-directory offered by the source picker.
type DirEntry struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// BrowseResponse lists the sub-directories of Path and how many images in
// Path itself would be converted.
type BrowseResponse struct {
	Path    string     `json:"path"`
	Parent  string     `json:"parent,omitempty"`
	Entries []DirEntry `json:"entries"`
	Images  int        `json:"images"`
}

func (s *Server) handleBrowse(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		homeDir, _ := os.UserHomeDir()
		path = homeDir
	}
	path = filepath.Clean(path)

	entries, err := os.ReadDir(path)
	if err != nil {
		if os.IsNotExist(err) {
			writeAPIError(w, http.StatusNotFound, err.Error())
			return
		}
		if os.IsPermission(err) {
			writeAPIError(w, http.StatusForbidden, err.Error())
			return
		}
		writeAPIError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := BrowseResponse{Path: path, Entries: []DirEntry{}}
	if parent := filepath.Dir(path); parent != path {
		resp.Parent = parent
	}
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		resp.Entries = append(resp.Entries, DirEntry{
			Name: entry.Name(),
			Path: filepath.Join(path, entry.Name()),
		})
	}
	if images, err := scanner.New(nil).Scan(path); err == nil {
		resp.Images = len(images)
	}

	writeJSON(w, resp)
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, config.DefaultConfig())
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if !s.runMu.TryLock() {
		writeAPIError(w, http.StatusConflict, "conversion already running")
		return
	}

	cfg := config.DefaultConfig()
	if err := json.NewDecoder(r.Body).Decode(cfg); err != nil {
		s.runMu.Unlock()
		writeAPIError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := cfg.Validate(); err != nil {
		s.runMu.Unlock()
		writeError(w, err)
		return
	}

	p, err := s.newPipeline(cfg)
	if err != nil {
		s.runMu.Unlock()
		writeAPIError(w, http.StatusInternalServerError, err.Error())
		return
	}

	done := make(chan struct{})
	s.mu.Lock()
	s.active = p
	s.runDone = done
	s.mu.Unlock()

	writeJSON(w, map[string]string{"status": "started"})

	go func() {
		defer close(done)
		defer s.runMu.Unlock()
		defer func() {
			s.mu.Lock()
			s.active = nil
			s.mu.Unlock()
			p.Close()
		}()
		defer func() {
			if r := recover(); r != nil {
				s.broadcastProgress(ProgressMessage{ProgressEvent: types.ProgressEvent{
					Type:  types.EventFatalError,
					Error: fmt.Sprintf("internal server error: %v", r),
				}})
			}
		}()

		p.SetProgressCallback(s.progressSink(s.itemRate))

		summary, _ := p.Run(context.Background())
		s.broadcastProgress(ProgressMessage{
			ProgressEvent: types.ProgressEvent{Type: messageSummary},
			Summary:       summary,
		})
	}()
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	p := s.active
	s.mu.Unlock()

	if p == nil || p.State().Terminal() {
		writeJSON(w, map[string]string{"status": "idle"})
		return
	}

	p.Cancel()
	writeJSON(w, map[string]string{"status": "cancelling"})
}

// progressSink forwards engine events to the hub. item_completed events are
// rate limited; every other event and the final item always go out.
func (s *Server) progressSink(limit rate.Limit) func(types.ProgressEvent) {
	limiter := rate.NewLimiter(limit, 1)
	return func(ev types.ProgressEvent) {
		if ev.Type == types.EventItemCompleted && ev.Completed < ev.Total && !limiter.Allow() {
			return
		}
		s.broadcastProgress(ProgressMessage{ProgressEvent: ev})
	}
}

func (s *Server) broadcastJSON(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	s.hub.broadcast <- data
}

func (s *Server) broadcastProgress(msg ProgressMessage) {
	s.broadcastJSON(msg)
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	// Default 20, max 100.
	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil {
			limit = parsedLimit
			if limit > config.MaxHistoryEntries {
				limit = config.MaxHistoryEntries
			} else if limit < 1 {
				limit = 20
			}
		}
	}

	m, err := s.userData()
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, err.Error())
		return
	}

	history, err := m.LoadRunHistory()
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if len(history.Entries) > limit {
		history.Entries = history.Entries[:limit]
	}
	writeJSON(w, history)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	m, err := s.userData()
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, err.Error())
		return
	}

	settings, err := m.LoadSettings()
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, settings)
}

func (s *Server) handleSaveSettings(w http.ResponseWriter, r *http.Request) {
	var settings types.UserSettings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		writeAPIError(w, http.StatusBadRequest, err.Error())
		return
	}

	m, err := s.userData()
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := m.SaveSettings(&settings); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}
