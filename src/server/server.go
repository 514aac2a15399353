package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"token-observer/src/interfaces"
	"token-observer/src/logger"
	"token-observer/src/models"
)

// -----------------------------------------------------------------------------
// TokenServer
// -----------------------------------------------------------------------------

type TokenServer struct {
	Config     *models.MConfig
	Logger     *logger.Logger
	Aggregator interfaces.IAggregator
	Tracker    interfaces.ITokenTracker
	Scheduler  interfaces.IJobScheduler // optional, nil disables the jobs API
	engine     *gin.Engine
	httpServer *http.Server

	// WebSocket clients
	clients    map[*Client]struct{}
	broadcast  chan *models.MUpdateEvent // Strongly typed and Buffered Queue
	register   chan *Client
	unregister chan *Client

	// Latest bundle per tracked token, served as the connect snapshot
	snapshot   map[string]*models.MAggregationResponse
	stateMutex sync.RWMutex

	stopOnce sync.Once
	stopped  chan struct{}
}

// -----------------------------------------------------------------------------
// Constructor
// -----------------------------------------------------------------------------

func NewTokenServer(cfg *models.MConfig, agg interfaces.IAggregator, tracker interfaces.ITokenTracker, log *logger.Logger) *TokenServer {
	// Set Gin mode
	if !strings.EqualFold(cfg.LogLevel, "debug") {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &TokenServer{
		Config:     cfg,
		Logger:     log,
		Aggregator: agg,
		Tracker:    tracker,
		engine:     gin.Default(),
		clients:    make(map[*Client]struct{}),
		// Buffered channel to prevent lock/blocking on update bursts
		broadcast:  make(chan *models.MUpdateEvent, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		snapshot:   make(map[string]*models.MAggregationResponse),
		stopped:    make(chan struct{}),
	}

	// CORS Middleware
	s.engine.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if strings.HasPrefix(origin, "http://127.0.0.1:") || strings.HasPrefix(origin, "http://localhost:") {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	s.setupRoutes()
	return s
}

// -----------------------------------------------------------------------------
// Route Setup
// -----------------------------------------------------------------------------

func (s *TokenServer) setupRoutes() {
	// REST API endpoints
	s.engine.GET("/api/health", s.getHealth)
	s.engine.GET("/api/stats", s.getStats)
	s.engine.GET("/api/metrics/:mint", s.getTokenMetrics)
	s.engine.POST("/api/track", s.postTrack)
	s.engine.DELETE("/api/track/:mint", s.deleteTrack)

	// Recurring job management
	s.engine.GET("/api/jobs", s.getJobs)
	s.engine.POST("/api/jobs", s.postJob)
	s.engine.DELETE("/api/jobs/:id", s.deleteJob)

	// WebSocket endpoint
	s.engine.GET("/ws", s.handleWebSocket)
}

// -----------------------------------------------------------------------------

// SetScheduler wires the recurring-jobs API.
func (s *TokenServer) SetScheduler(sched interfaces.IJobScheduler) {
	s.Scheduler = sched
}

// -----------------------------------------------------------------------------

// SetTracker wires the live-subscription tracker. The tracker broadcasts
// through this server, so the two are built before being joined.
func (s *TokenServer) SetTracker(tracker interfaces.ITokenTracker) {
	s.Tracker = tracker
}

// -----------------------------------------------------------------------------
// Server Lifecycle
// -----------------------------------------------------------------------------

func (s *TokenServer) Start() error {
	addr := fmt.Sprintf("%s:%d", s.Config.Host, s.Config.Port)
	s.Logger.Info("Starting server on %s", addr)

	go s.handleWebsockets()

	s.httpServer = &http.Server{Addr: addr, Handler: s.engine}
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// -----------------------------------------------------------------------------

func (s *TokenServer) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		close(s.stopped)
		if s.httpServer != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			err = s.httpServer.Shutdown(ctx)
		}
	})
	return err
}

// -----------------------------------------------------------------------------
// Route Handlers
// -----------------------------------------------------------------------------

func (s *TokenServer) getHealth(c *gin.Context) {
	s.stateMutex.RLock()
	connections := len(s.clients)
	tracked := len(s.snapshot)
	s.stateMutex.RUnlock()

	c.JSON(200, gin.H{
		"status":         "ok",
		"connections":    connections,
		"tracked_tokens": tracked,
	})
}

// -----------------------------------------------------------------------------

func (s *TokenServer) getStats(c *gin.Context) {
	s.stateMutex.RLock()
	connections := len(s.clients)
	s.stateMutex.RUnlock()

	c.JSON(200, gin.H{
		"connections":    connections,
		"tracked_tokens": s.Tracker.TrackedTokens(),
	})
}

// -----------------------------------------------------------------------------

// getTokenMetrics computes (or serves from cache) the full bundle for one
// token on demand.
func (s *TokenServer) getTokenMetrics(c *gin.Context) {
	mint := c.Param("mint")

	resp := s.Aggregator.Compute(c.Request.Context(), mint)
	if resp.Error != "" && resp.SuccessRate == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": resp.Error})
		return
	}
	c.JSON(200, resp)
}

// -----------------------------------------------------------------------------

func (s *TokenServer) postTrack(c *gin.Context) {
	var cmd models.MTrackCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if cmd.MaxAccounts == 0 {
		cmd.MaxAccounts = s.Config.Tracking.MaxAccountsDefault
	}
	if err := validateTrackCommand(&cmd); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.Tracker.TrackToken(c.Request.Context(), cmd.Mint, cmd.MaxAccounts); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(200, models.MTrackConfirmation{Type: "TRACKING", Mint: cmd.Mint, MaxAccounts: cmd.MaxAccounts})
}

// -----------------------------------------------------------------------------

func (s *TokenServer) deleteTrack(c *gin.Context) {
	mint := c.Param("mint")
	s.Tracker.UntrackToken(mint)

	s.stateMutex.Lock()
	delete(s.snapshot, mint)
	s.stateMutex.Unlock()

	c.JSON(200, gin.H{"status": "untracked", "mint": mint})
}

// -----------------------------------------------------------------------------
// Job Handlers
// -----------------------------------------------------------------------------

func (s *TokenServer) getJobs(c *gin.Context) {
	if s.Scheduler == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "job scheduling disabled"})
		return
	}
	c.JSON(200, gin.H{"jobs": s.Scheduler.Jobs()})
}

// -----------------------------------------------------------------------------

func (s *TokenServer) postJob(c *gin.Context) {
	if s.Scheduler == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "job scheduling disabled"})
		return
	}

	var req struct {
		Mints           []string `json:"mints"`
		IntervalSeconds int      `json:"interval_seconds"`
		MaxAccounts     int      `json:"max_accounts"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Mints) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "mints list is required"})
		return
	}

	id := s.Scheduler.AddJob(req.Mints, req.IntervalSeconds, req.MaxAccounts)
	c.JSON(200, gin.H{"job_id": id})
}

// -----------------------------------------------------------------------------

func (s *TokenServer) deleteJob(c *gin.Context) {
	if s.Scheduler == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "job scheduling disabled"})
		return
	}

	id := c.Param("id")
	if !s.Scheduler.RemoveJob(id) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown job id"})
		return
	}
	c.JSON(200, gin.H{"status": "removed", "job_id": id})
}
