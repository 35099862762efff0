// Package api provides the status, metrics and ingress HTTP server.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/pprof"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tos-network/tos-reporter/internal/config"
	"github.com/tos-network/tos-reporter/internal/queue"
	"github.com/tos-network/tos-reporter/internal/reporter"
	"github.com/tos-network/tos-reporter/internal/storage"
	"github.com/tos-network/tos-reporter/internal/util"
)

// Reporter is the ingress and status surface the server exposes
type Reporter interface {
	Status() reporter.Status
	LogShare(client reporter.Client, diff float64, typ reporter.ShareType, params []string, job reporter.Job, headerHash, header []byte)
	AgentSend(address, worker, typ string, data interface{}, stamp int64)
	AddBlock(args queue.BlockArgs)
}

// BlockReader looks up solved block records
type BlockReader interface {
	GetSolvedBlock(ctx context.Context, hash string) (*storage.SolvedBlock, error)
}

// Guard scores ingress clients by IP
type Guard interface {
	ApplyRequestScore(ip string) bool
	ApplyMalformedScore(ip string) bool
}

// Server is the API server
type Server struct {
	cfg      *config.APIConfig
	reporter Reporter
	blocks   BlockReader
	guard    Guard
	gatherer prometheus.Gatherer
	router   *gin.Engine
	server   *http.Server
	upgrader websocket.Upgrader

	wsMu    sync.Mutex
	wsConns map[*websocket.Conn]struct{}
	done    chan struct{}
}

// ShareRequest is the body of POST /ingress/share
type ShareRequest struct {
	Address    string   `json:"address" binding:"required"`
	Worker     string   `json:"worker"`
	Difficulty float64  `json:"difficulty" binding:"gt=0"`
	Type       string   `json:"type"`
	Algo       string   `json:"algo" binding:"required"`
	Currency   string   `json:"currency" binding:"required"`
	Merged     []string `json:"merged"`
}

// AgentRequest is the body of POST /ingress/agent
type AgentRequest struct {
	Address string          `json:"address" binding:"required"`
	Worker  string          `json:"worker"`
	Type    string          `json:"type" binding:"required"`
	Data    json.RawMessage `json:"data"`
	Stamp   int64           `json:"stamp"`
}

// NewServer creates a new API server
func NewServer(cfg *config.APIConfig, rep Reporter, blocks BlockReader, gatherer prometheus.Gatherer) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		cfg:      cfg,
		reporter: rep,
		blocks:   blocks,
		gatherer: gatherer,
		router:   router,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		wsConns: make(map[*websocket.Conn]struct{}),
		done:    make(chan struct{}),
	}

	s.setupRoutes()
	return s
}

// SetGuard installs the ingress policy, nil disables it
func (s *Server) SetGuard(g Guard) {
	s.guard = g
}

// Handler returns the HTTP handler, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

// guardMiddleware rejects banned clients and charges malformed requests
func (s *Server) guardMiddleware(c *gin.Context) {
	if s.guard == nil {
		c.Next()
		return
	}

	ip := c.ClientIP()
	if !s.guard.ApplyRequestScore(ip) {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
		return
	}

	c.Next()

	if c.Writer.Status() == http.StatusBadRequest {
		if !s.guard.ApplyMalformedScore(ip) {
			util.Warnf("Ingress client %s banned after malformed requests", ip)
		}
	}
}

// setupRoutes configures API endpoints
func (s *Server) setupRoutes() {
	// CORS middleware
	s.router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	s.router.GET("/status", s.handleStatus)
	s.router.GET("/ws/status", s.handleStatusStream)
	s.router.GET("/blocks/:hash", s.handleBlock)

	if s.gatherer != nil {
		s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{
			ErrorHandling: promhttp.ContinueOnError,
		})))
	}

	if s.cfg.IngressEnabled {
		ingress := s.router.Group("/ingress")
		ingress.Use(s.guardMiddleware)
		{
			ingress.POST("/share", s.handleShare)
			ingress.POST("/agent", s.handleAgent)
			ingress.POST("/block", s.handleAddBlock)
		}
	}

	if s.cfg.Pprof {
		debug := s.router.Group("/debug/pprof")
		{
			debug.GET("/", gin.WrapF(pprof.Index))
			debug.GET("/cmdline", gin.WrapF(pprof.Cmdline))
			debug.GET("/profile", gin.WrapF(pprof.Profile))
			debug.GET("/symbol", gin.WrapF(pprof.Symbol))
			debug.GET("/trace", gin.WrapF(pprof.Trace))
			debug.GET("/:profile", func(c *gin.Context) {
				pprof.Handler(c.Param("profile")).ServeHTTP(c.Writer, c.Request)
			})
		}
	}
}

// Start begins the API server
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.cfg.Bind,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	util.Infof("API server listening on %s", s.cfg.Bind)
	if s.cfg.Pprof {
		util.Infof("pprof endpoints available at http://%s/debug/pprof/", s.cfg.Bind)
	}

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			util.Errorf("API server error: %v", err)
		}
	}()

	return nil
}

// Stop shuts down the API server and closes status streams
func (s *Server) Stop() error {
	close(s.done)

	s.wsMu.Lock()
	for conn := range s.wsConns {
		conn.Close()
	}
	s.wsMu.Unlock()

	if s.server != nil {
		return s.server.Close()
	}
	return nil
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.reporter.Status())
}

// handleStatusStream pushes the status every push interval until the client
// goes away
func (s *Server) handleStatusStream(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		util.Warnf("Status stream upgrade failed: %v", err)
		return
	}

	s.wsMu.Lock()
	s.wsConns[conn] = struct{}{}
	s.wsMu.Unlock()

	defer func() {
		s.wsMu.Lock()
		delete(s.wsConns, conn)
		s.wsMu.Unlock()
		conn.Close()
	}()

	// Drain client frames so close messages are processed
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	interval := s.cfg.StatusPushInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(s.reporter.Status()); err != nil {
			return
		}

		select {
		case <-s.done:
			return
		case <-closed:
			return
		case <-ticker.C:
		}
	}
}

func (s *Server) handleBlock(c *gin.Context) {
	hash := c.Param("hash")
	if !util.IsValidHex(hash) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid block hash"})
		return
	}

	if s.blocks == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "block lookup unavailable"})
		return
	}

	block, err := s.blocks.GetSolvedBlock(c.Request.Context(), hash)
	if errors.Is(err, storage.ErrBlockNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "block not found"})
		return
	}
	if err != nil {
		util.Errorf("Block lookup %s failed: %v", hash, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, block)
}

func (s *Server) handleShare(c *gin.Context) {
	var req ShareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	typ := reporter.ShareValid
	if req.Type != "" {
		parsed, err := reporter.ParseShareType(req.Type)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		typ = parsed
	}

	s.reporter.LogShare(
		reporter.Miner{Addr: req.Address, Name: req.Worker},
		req.Difficulty, typ, nil,
		reporter.StaticJob{Algo: req.Algo, Coin: req.Currency, Merged: req.Merged},
		nil, nil,
	)
	c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}

func (s *Server) handleAgent(c *gin.Context) {
	var req AgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	stamp := req.Stamp
	if stamp == 0 {
		stamp = time.Now().Unix()
	}
	s.reporter.AgentSend(req.Address, req.Worker, req.Type, req.Data, stamp)
	c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}

func (s *Server) handleAddBlock(c *gin.Context) {
	var req queue.BlockArgs
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !util.IsValidHex(req.HexHash) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "hex_hash must be a hex string"})
		return
	}
	if req.HexBits != "" {
		if _, err := util.ParseCompactBits(req.HexBits); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if req.Currency == "" || req.Algo == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "currency and algo are required"})
		return
	}

	s.reporter.AddBlock(req)
	c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}
