package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/blood8879/turtle-canslim/internal/events"
	"github.com/blood8879/turtle-canslim/internal/portfolio"
	"github.com/blood8879/turtle-canslim/internal/store"
	"github.com/blood8879/turtle-canslim/pkg/types"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

// Server exposes a read-only HTTP/WebSocket view over the running trading
// core: /status, /portfolio, /performance, /stream, /metrics. It never
// writes to the repository — all mutation happens inside the orchestrator.
type Server struct {
	logger     *zap.Logger
	repo       *store.Repository
	portfolios map[types.Market]*portfolio.Manager
	hub        *Hub
	router     *mux.Router
	httpServer *http.Server
	upgrader   websocket.Upgrader
}

// Config configures the HTTP listener.
type Config struct {
	Addr string
}

// DefaultConfig mirrors the original project's default bind address.
func DefaultConfig() Config {
	return Config{Addr: ":8090"}
}

// New builds a Server; portfolios maps each registered market to its
// portfolio.Manager so /portfolio and /performance can report per-market.
func New(logger *zap.Logger, cfg Config, repo *store.Repository, portfolios map[types.Market]*portfolio.Manager, bus *events.EventBus) *Server {
	s := &Server{
		logger:     logger.Named("api"),
		repo:       repo,
		portfolios: portfolios,
		hub:        NewHub(logger, bus),
		router:     mux.NewRouter(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	s.routes()
	handler := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}).Handler(s.router)
	s.httpServer = &http.Server{
		Addr:    cfg.Addr,
		Handler: handler,
	}
	return s
}

func (s *Server) routes() {
	s.router.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	s.router.HandleFunc("/portfolio", s.handlePortfolio).Methods(http.MethodGet)
	s.router.HandleFunc("/performance", s.handlePerformance).Methods(http.MethodGet)
	s.router.HandleFunc("/stream", s.handleStream)
	s.router.Handle("/metrics", promhttp.Handler())
}

// Start runs the WebSocket hub loop and begins serving HTTP in the
// background; returns once the listener goroutine has been launched.
func (s *Server) Start(ctx context.Context) error {
	go s.hub.Run()
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("api_server_failed", zap.Error(err))
		}
	}()
	s.logger.Info("api_server_started", zap.String("addr", s.httpServer.Addr))
	return nil
}

// Stop gracefully shuts the HTTP server down.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("response_encode_failed", zap.Error(err))
	}
}

func marketFromQuery(r *http.Request) types.Market {
	return types.Market(r.URL.Query().Get("market"))
}

// handleStatus reports the trading-state toggle for the requested market
// (or every registered market if none is given).
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	market := marketFromQuery(r)
	markets := s.marketsToReport(market)

	out := make(map[string]types.TradingState, len(markets))
	for _, m := range markets {
		state, err := s.repo.GetTradingState(r.Context(), m)
		if err != nil {
			s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		out[string(m)] = state
	}
	s.writeJSON(w, http.StatusOK, out)
}

// handlePortfolio reports the current Summary for the requested market.
func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	market := marketFromQuery(r)
	mgr, ok := s.portfolios[market]
	if !ok {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown or unregistered market"})
		return
	}
	summary, err := mgr.GetSummary(r.Context(), market)
	if err != nil {
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if f, ok := summary.TotalValue.Float64(); ok {
		portfolioValue.WithLabelValues(string(market)).Set(f)
	}
	openPositions.WithLabelValues(string(market)).Set(float64(summary.PositionCount))
	s.writeJSON(w, http.StatusOK, summary)
}

// handlePerformance reports realized + open-position statistics for the
// requested market.
func (s *Server) handlePerformance(w http.ResponseWriter, r *http.Request) {
	market := marketFromQuery(r)
	closed, err := s.repo.ListClosedPositions(r.Context(), market)
	if err != nil {
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	open, err := s.repo.ListOpenPositions(r.Context(), market)
	if err != nil {
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, portfolio.Calculate(closed, open))
}

// handleStream upgrades the connection and registers it with the hub; every
// event published on the bus from then on is forwarded to this client.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws_upgrade_failed", zap.Error(err))
		return
	}
	client := NewClient(uuid.NewString(), s.hub, conn)
	go client.WritePump()
	go client.ReadPump()
}

func (s *Server) marketsToReport(market types.Market) []types.Market {
	if market != "" {
		return []types.Market{market}
	}
	markets := make([]types.Market, 0, len(s.portfolios))
	for m := range s.portfolios {
		markets = append(markets, m)
	}
	return markets
}
