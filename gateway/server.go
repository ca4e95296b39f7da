package gateway

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	pubsub "github.com/coregx/pubsub-broker"
	"github.com/coregx/pubsub-broker/broker"
)

// DefaultExchange is the broker exchange every published message is
// relayed to; the topic name becomes the routing key.
const DefaultExchange = "pubsubapi"

// DefaultFetchWait bounds how long one pull request waits for the first
// message to arrive from the backend queue.
const DefaultFetchWait = 250 * time.Millisecond

// Server is the REST gateway. It authenticates callers, authorizes them
// against the pattern matcher, validates payloads and hands the work to
// the publish pipeline (publish path) or the connection pool and message
// store (pull path).
type Server struct {
	echo     *echo.Echo
	security SecurityProvider
	matcher  *pubsub.PatternMatcher
	registry *pubsub.SubscriptionRegistry
	pipeline *pubsub.Pipeline
	store    pubsub.MessageStore
	catalog  pubsub.SubscriptionCatalog
	topics   pubsub.TopicRepository
	pool     *broker.Pool
	logger   pubsub.Logger

	exchange  string
	fetchWait time.Duration
}

// Option configures a Server.
type Option func(*Server) error

// WithSecurity sets the credential resolver.
func WithSecurity(security SecurityProvider) Option {
	return func(s *Server) error {
		s.security = security
		return nil
	}
}

// WithMatcher sets the pattern matcher used for authorization.
func WithMatcher(matcher *pubsub.PatternMatcher) Option {
	return func(s *Server) error {
		s.matcher = matcher
		return nil
	}
}

// WithRegistry sets the in-memory subscription registry.
func WithRegistry(registry *pubsub.SubscriptionRegistry) Option {
	return func(s *Server) error {
		s.registry = registry
		return nil
	}
}

// WithPipeline sets the publish pipeline.
func WithPipeline(pipeline *pubsub.Pipeline) Option {
	return func(s *Server) error {
		s.pipeline = pipeline
		return nil
	}
}

// WithStore sets the message store serving the pull path when no broker
// pool is configured.
func WithStore(store pubsub.MessageStore) Option {
	return func(s *Server) error {
		s.store = store
		return nil
	}
}

// WithCatalog sets the durable subscription catalog. Optional; when
// present, subscribe and unsubscribe calls are mirrored to it.
func WithCatalog(catalog pubsub.SubscriptionCatalog) Option {
	return func(s *Server) error {
		s.catalog = catalog
		return nil
	}
}

// WithTopics sets the durable topic repository. Optional; when present,
// topics created on demand are persisted and carry durable IDs.
func WithTopics(topics pubsub.TopicRepository) Option {
	return func(s *Server) error {
		s.topics = topics
		return nil
	}
}

// WithPool sets the broker connection pool. Optional; without it the
// pull path reads from the message store and publishes are not relayed.
func WithPool(pool *broker.Pool) Option {
	return func(s *Server) error {
		s.pool = pool
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger pubsub.Logger) Option {
	return func(s *Server) error {
		s.logger = logger
		return nil
	}
}

// WithExchange overrides the broker exchange messages are relayed to.
func WithExchange(exchange string) Option {
	return func(s *Server) error {
		if exchange == "" {
			return pubsub.NewError(pubsub.ErrCodeConfiguration, "exchange must not be empty")
		}
		s.exchange = exchange
		return nil
	}
}

// WithFetchWait overrides how long a pull request waits for the first
// backend message.
func WithFetchWait(wait time.Duration) Option {
	return func(s *Server) error {
		if wait <= 0 {
			return pubsub.NewError(pubsub.ErrCodeConfiguration, "fetch wait must be positive")
		}
		s.fetchWait = wait
		return nil
	}
}

// NewServer creates a gateway server with the provided options.
//
// Required options:
//   - WithSecurity: credential resolver
//   - WithMatcher: pattern matcher
//   - WithRegistry: subscription registry
//   - WithPipeline: publish pipeline
//   - WithStore: message store
//   - WithLogger: logger instance
func NewServer(opts ...Option) (*Server, error) {
	s := &Server{
		exchange:  DefaultExchange,
		fetchWait: DefaultFetchWait,
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, pubsub.NewErrorWithCause(pubsub.ErrCodeConfiguration, "failed to apply gateway option", err)
		}
	}

	if s.security == nil {
		return nil, pubsub.NewError(pubsub.ErrCodeConfiguration, "SecurityProvider is required (use WithSecurity)")
	}
	if s.matcher == nil {
		return nil, pubsub.NewError(pubsub.ErrCodeConfiguration, "PatternMatcher is required (use WithMatcher)")
	}
	if s.registry == nil {
		return nil, pubsub.NewError(pubsub.ErrCodeConfiguration, "SubscriptionRegistry is required (use WithRegistry)")
	}
	if s.pipeline == nil {
		return nil, pubsub.NewError(pubsub.ErrCodeConfiguration, "Pipeline is required (use WithPipeline)")
	}
	if s.store == nil {
		return nil, pubsub.NewError(pubsub.ErrCodeConfiguration, "MessageStore is required (use WithStore)")
	}
	if s.logger == nil {
		return nil, pubsub.NewError(pubsub.ErrCodeConfiguration, "Logger is required (use WithLogger)")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	api := e.Group("/api/v1/pubsub")
	api.POST("/publish/:topic", s.handlePublish)
	api.GET("/messages/get", s.handleMessagesGet)
	api.POST("/subscribe/:topic", s.handleSubscribe)
	api.DELETE("/unsubscribe/:topic", s.handleUnsubscribe)
	api.GET("/health", s.handleHealth)

	s.echo = e
	return s, nil
}

// Handler exposes the underlying HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves requests on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.logger.Infof("gateway: listening on %s", addr)
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return pubsub.NewErrorWithCause(pubsub.ErrCodeInternal, "gateway server failed", err)
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// writeError maps a coded error to its HTTP status and response body.
// Internal causes are logged, never sent to the caller.
func (s *Server) writeError(c echo.Context, cid string, err error) error {
	code := pubsub.ErrCodeInternal
	details := "Internal error"

	var perr *pubsub.Error
	if errors.As(err, &perr) {
		code = perr.Code
		details = perr.Message
		if perr.Err != nil {
			s.logger.Errorf("[%s] %s: %v", cid, perr.Message, perr.Err)
		} else {
			s.logger.Warnf("[%s] %s", cid, perr.Message)
		}
	} else {
		s.logger.Errorf("[%s] unexpected error: %v", cid, err)
	}

	return c.JSON(statusFor(code), errorResponse(cid, details))
}

func statusFor(code string) int {
	switch code {
	case pubsub.ErrCodeAuthentication:
		return http.StatusUnauthorized
	case pubsub.ErrCodeAuthorization:
		return http.StatusForbidden
	case pubsub.ErrCodeValidation:
		return http.StatusBadRequest
	case pubsub.ErrCodeConflict:
		return http.StatusConflict
	case pubsub.ErrCodeBackend:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
