package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"selfie-capture-kiosk/internal/gate"
	"selfie-capture-kiosk/internal/session"
	"selfie-capture-kiosk/internal/transport/ws"
	"selfie-capture-kiosk/models"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// ============================================================
// COLLABORATORS
// ============================================================

// Session is the command surface of the capture session.
type Session interface {
	StartAsync(ctx context.Context)
	Stop()
	Capture() (*models.CaptureRecord, error)
	Proceed() error
	Back()
	ClearLog()
	State() session.SessionState
	LastCapture() *models.CaptureRecord
}

// Validity exposes the gate's current verdict.
type Validity interface {
	State() gate.ValidityState
}

// Overlay renders the current overlay surface.
type Overlay interface {
	PNG() ([]byte, error)
}

type Options struct {
	Config   models.ServerConfig
	Session  Session
	Validity Validity
	Board    ws.StateSource
	Log      ws.LogSource
	Overlay  Overlay
	// WS serves GET /ws when set.
	WS http.Handler
	// BaseContext bounds sessions started over HTTP.
	BaseContext context.Context
	Verbose     bool
}

// ============================================================
// SERVER
// ============================================================

type Server struct {
	opts   Options
	engine *gin.Engine
	srv    *http.Server
}

func NewServer(opts Options) (*Server, error) {
	if opts.Session == nil {
		return nil, fmt.Errorf("api server requires a session")
	}
	if opts.BaseContext == nil {
		opts.BaseContext = context.Background()
	}

	if opts.Verbose {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(loggingMiddleware(opts.Verbose))
	engine.Use(cors.New(corsConfig(opts.Config.AllowOrigins)))

	s := &Server{opts: opts, engine: engine}
	s.routes()
	return s, nil
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	return cfg
}

func loggingMiddleware(verbose bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		if verbose || status >= http.StatusInternalServerError {
			log.Printf("🌐 %s %s -> %d (%s)", c.Request.Method, c.Request.URL.Path, status, time.Since(start))
		}
	}
}

// Handler exposes the router, e.g. for httptest.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.srv = &http.Server{
		Addr:              s.opts.Config.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("⚠️  HTTP shutdown: %v", err)
		}
	}()

	log.Printf("🌐 Listening on %s", s.opts.Config.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// ============================================================
// ROUTES
// ============================================================

func (s *Server) routes() {
	r := s.engine

	r.GET("/healthz", s.health)
	if s.opts.WS != nil {
		r.GET("/ws", gin.WrapH(s.opts.WS))
	}

	api := r.Group("/api")
	{
		api.POST("/session/start", s.startSession)
		api.POST("/session/stop", s.stopSession)
		api.POST("/capture", s.capture)
		api.POST("/proceed", s.proceed)
		api.POST("/back", s.back)

		api.GET("/state", s.state)
		api.GET("/log", s.logEntries)
		api.DELETE("/log", s.clearLog)
		api.GET("/capture/latest", s.latestCapture)
		api.GET("/overlay.png", s.overlay)
	}
}

// ============================================================
// HANDLERS
// ============================================================

// GET /healthz
func (s *Server) health(c *gin.Context) {
	st := s.opts.Session.State()
	c.JSON(http.StatusOK, gin.H{
		"status":       "ok",
		"active":       st.Active,
		"modelsLoaded": st.ModelsLoaded,
	})
}

// POST /api/session/start
func (s *Server) startSession(c *gin.Context) {
	if s.opts.Session.State().Active {
		writeError(c, models.ErrSessionActive)
		return
	}
	s.opts.Session.StartAsync(s.opts.BaseContext)
	c.JSON(http.StatusAccepted, gin.H{"status": "starting"})
}

// POST /api/session/stop
func (s *Server) stopSession(c *gin.Context) {
	s.opts.Session.Stop()
	c.JSON(http.StatusOK, gin.H{"status": "stopped"})
}

// POST /api/capture
func (s *Server) capture(c *gin.Context) {
	record, err := s.opts.Session.Capture()
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ws.NewCaptureEvent(record))
}

// POST /api/proceed
func (s *Server) proceed(c *gin.Context) {
	if err := s.opts.Session.Proceed(); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "continued"})
}

// POST /api/back
func (s *Server) back(c *gin.Context) {
	s.opts.Session.Back()
	c.JSON(http.StatusOK, gin.H{"status": "back"})
}

type validityView struct {
	Valid            bool                    `json:"valid"`
	LastAcceptedFace *models.FaceObservation `json:"lastAcceptedFace,omitempty"`
}

// GET /api/state
func (s *Server) state(c *gin.Context) {
	body := gin.H{"session": s.opts.Session.State()}
	if s.opts.Board != nil {
		body["ui"] = s.opts.Board.State()
	}
	if s.opts.Validity != nil {
		v := s.opts.Validity.State()
		body["validity"] = validityView{Valid: v.IsValid, LastAcceptedFace: v.LastAcceptedFace}
	}
	c.JSON(http.StatusOK, body)
}

// GET /api/log
func (s *Server) logEntries(c *gin.Context) {
	if s.opts.Log == nil {
		c.JSON(http.StatusOK, []models.LogEntry{})
		return
	}
	c.JSON(http.StatusOK, s.opts.Log.Entries())
}

// DELETE /api/log
func (s *Server) clearLog(c *gin.Context) {
	s.opts.Session.ClearLog()
	s.logEntries(c)
}

// GET /api/capture/latest[?format=jpeg]
func (s *Server) latestCapture(c *gin.Context) {
	record := s.opts.Session.LastCapture()
	if record == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no capture yet"})
		return
	}
	if c.Query("format") == "jpeg" {
		c.Data(http.StatusOK, models.JPEGMimeType, record.Image)
		return
	}
	c.JSON(http.StatusOK, ws.NewCaptureEvent(record))
}

// GET /api/overlay.png
func (s *Server) overlay(c *gin.Context) {
	if s.opts.Overlay == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "overlay not available"})
		return
	}
	png, err := s.opts.Overlay.PNG()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

// ============================================================
// ERRORS
// ============================================================

func statusFor(err error) int {
	switch {
	case models.IsKind(err, models.KindNoValidFace), models.IsKind(err, models.KindSession):
		return http.StatusConflict
	case models.IsKind(err, models.KindCameraAccess), models.IsKind(err, models.KindModelLoad):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	body := gin.H{"error": models.UserMessage(err)}
	var me *models.Error
	if errors.As(err, &me) {
		body["kind"] = me.Kind
	}
	c.JSON(statusFor(err), body)
}
