package server

import (
	"context"
	"math/big"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/Layr-Labs/usdf-signer/pkg/types"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// MaxRequestBodyBytes caps every request body.
const MaxRequestBodyBytes = 1 << 20

// IAttestationService is the core the HTTP surface exposes.
type IAttestationService interface {
	SignRequest(ctx context.Context, req *types.SigningRequest) (*types.SignedAttestation, error)
	Estimate(ctx context.Context, req *types.EstimationRequest) (*big.Int, error)
	Whitelist(ctx context.Context) ([]*types.WhitelistEntry, error)
	PublicKey() string
}

type Config struct {
	ListenAddress string
	AllowedOrigin string
	// SignatureRateLimit is the sustained /get_signature rate in requests per second. Zero disables limiting.
	SignatureRateLimit float64
	SignatureBurst     int
	ReadHeaderTimeout  time.Duration
}

// Server handles HTTP requests for the signing service
type Server struct {
	config     *Config
	service    IAttestationService
	logger     *zap.Logger
	handler    http.Handler
	httpServer *http.Server

	mu       sync.Mutex
	listener net.Listener
}

func NewServer(cfg *Config, service IAttestationService, logger *zap.Logger) *Server {
	if cfg == nil {
		cfg = &Config{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		config:  cfg,
		service: service,
		logger:  logger,
	}
	s.handler = s.routes()

	readHeaderTimeout := cfg.ReadHeaderTimeout
	if readHeaderTimeout <= 0 {
		readHeaderTimeout = 10 * time.Second
	}
	s.httpServer = &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           s.handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(
		s.requestID,
		s.accessLog,
		s.recoverer,
		corsHandler(s.config.AllowedOrigin),
		limitBody(MaxRequestBodyBytes),
	)

	r.Get("/health", s.handleHealth)
	r.Get("/get_whitelist", s.handleGetWhitelist)
	r.Get("/public_key", s.handlePublicKey)
	r.Post("/get_estimation", s.handleGetEstimation)

	if s.config.SignatureRateLimit > 0 {
		limiter := rate.NewLimiter(rate.Limit(s.config.SignatureRateLimit), max(s.config.SignatureBurst, 1))
		r.With(s.rateLimit(limiter)).Post("/get_signature", s.handleGetSignature)
	} else {
		r.Post("/get_signature", s.handleGetSignature)
	}
	return r
}

// Start binds the listen address and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", s.httpServer.Addr)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	go func() {
		s.logger.Sugar().Infow("Starting HTTP server", "address", ln.Addr().String())
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Sugar().Errorw("HTTP server error", "error", err)
		}
	}()
	return nil
}

// Addr is the bound address once Start has returned.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return s.httpServer.Addr
	}
	return s.listener.Addr().String()
}

// Shutdown stops accepting connections and waits for in-flight requests until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Sugar().Infow("Shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the HTTP handler (for testing)
func (s *Server) Handler() http.Handler {
	return s.handler
}
