package dummy

import (
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const Version = "1.0.0"

type ServerConfig struct {
	Port int
	// APIKey, when set, must match the key of every request.
	APIKey   string
	MinDelay time.Duration
	MaxDelay time.Duration
	// FailRate is the share of valid requests answered with 500.
	FailRate float64
}

type scriptRequest struct {
	Script string `json:"script"`
	Key    string `json:"key"`
}

type job struct {
	ID        string    `json:"jobId"`
	Script    string    `json:"scriptName"`
	State     string    `json:"state"`
	CreatedAt time.Time `json:"createdAt"`
}

// Server is an in-memory stand-in for the webhook shell API.
type Server struct {
	cfg ServerConfig

	mu   sync.RWMutex
	jobs map[string]job
}

func NewServer(cfg ServerConfig) *Server {
	return &Server{cfg: cfg, jobs: make(map[string]job)}
}

// Handler returns the routes of the webhook, jobs and health endpoints.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /webhook/v1", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		s.runScript(w, scriptRequest{Script: q.Get("script"), Key: q.Get("key")})
	})

	mux.HandleFunc("POST /webhook/v1", func(w http.ResponseWriter, r *http.Request) {
		var req scriptRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, []string{"Script information cannot be null"})
			return
		}
		s.runScript(w, req)
	})

	mux.HandleFunc("POST /jobs/v1/enqueue", func(w http.ResponseWriter, r *http.Request) {
		var req scriptRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, []string{"Script information cannot be null"})
			return
		}
		s.enqueue(w, req)
	})

	mux.HandleFunc("GET /jobs/v1/status/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")

		s.mu.RLock()
		j, ok := s.jobs[id]
		s.mu.RUnlock()

		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"message": fmt.Sprintf("Job with ID %s not found", id)})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"jobId":     j.ID,
			"state":     j.State,
			"createdAt": j.CreatedAt,
			"status":    friendlyStatus(j.State),
		})
	})

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":    "Healthy",
			"timestamp": time.Now().UTC(),
			"version":   Version,
		})
	})

	return mux
}

func (s *Server) runScript(w http.ResponseWriter, req scriptRequest) {
	if errs := s.validate(req); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, errs)
		return
	}
	if s.simulate() {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "script execution failed"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"scriptName": req.Script,
		"message":    "Script executed successfully",
		"output":     "OK",
	})
}

func (s *Server) enqueue(w http.ResponseWriter, req scriptRequest) {
	if errs := s.validate(req); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, errs)
		return
	}
	if s.simulate() {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "job storage unavailable"})
		return
	}

	j := job{ID: uuid.NewString(), Script: req.Script, State: "Enqueued", CreatedAt: time.Now().UTC()}

	s.mu.Lock()
	s.jobs[j.ID] = j
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{
		"jobId":   j.ID,
		"message": "Script enqueued for background execution",
	})
}

var allowedExtensions = []string{".ps1", ".py"}

func (s *Server) validate(req scriptRequest) []string {
	var errs []string

	script := strings.TrimSpace(req.Script)
	if script == "" {
		errs = append(errs, "Script name is required")
	} else {
		if strings.Contains(script, "..") || strings.ContainsAny(script, `\/`) {
			errs = append(errs, "Script name contains invalid characters. Only alphanumeric characters, hyphens, and file extensions are allowed.")
		}
		valid := false
		for _, ext := range allowedExtensions {
			if strings.HasSuffix(strings.ToLower(script), ext) {
				valid = true
				break
			}
		}
		if !valid {
			errs = append(errs, "Script must have one of the following extensions: "+strings.Join(allowedExtensions, ", "))
		}
	}

	switch {
	case strings.TrimSpace(req.Key) == "":
		errs = append(errs, "Security key is required")
	case s.cfg.APIKey != "" && req.Key != s.cfg.APIKey:
		errs = append(errs, "Invalid security key")
	}

	return errs
}

// simulate sleeps for the configured jitter and reports whether to fail.
func (s *Server) simulate() bool {
	if s.cfg.MaxDelay > 0 {
		delay := s.cfg.MinDelay
		if span := s.cfg.MaxDelay - s.cfg.MinDelay; span > 0 {
			delay += time.Duration(rand.Int63n(int64(span)))
		}
		time.Sleep(delay)
	}
	return s.cfg.FailRate > 0 && rand.Float64() < s.cfg.FailRate
}

func friendlyStatus(state string) string {
	switch state {
	case "Succeeded":
		return "Completed successfully"
	case "Processing":
		return "Running"
	case "Enqueued":
		return "Waiting to run"
	default:
		return state
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// Start serves the mock API on cfg.Port in the background.
func Start(cfg ServerConfig) *http.Server {
	addr := fmt.Sprintf(":%d", cfg.Port)
	fmt.Printf("👻 Mock webhook API running on http://localhost%s\n", addr)
	fmt.Println("   Endpoints: /webhook/v1, /jobs/v1/enqueue, /jobs/v1/status/{id}, /health")

	server := &http.Server{
		Addr:              addr,
		Handler:           NewServer(cfg).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Printf("Server failed: %v\n", err)
		}
	}()

	return server
}
