package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/trickstertwo/xlog"
	"github.com/trickstertwo/xport"
	"github.com/trickstertwo/xport/library"
	"github.com/trickstertwo/xport/metrics"
	"golang.org/x/time/rate"
)

var _ library.Interface = (*Interface)(nil)

// Interface is the REST driver adapter. Reads are answered from the view directly;
// registration and content reads go through the bus.
type Interface struct {
	cfg      Config
	logger   *xlog.Logger
	gatherer prometheus.Gatherer

	bus  xport.Dispatcher
	view library.BookView

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	done     chan struct{}
}

func NewInterface(cfg Config) (*Interface, error) {
	if cfg.Addr == "" {
		return nil, errors.New("http interface requires an address")
	}
	if cfg.RateLimitRPS < 0 || cfg.RateLimitBurst < 0 {
		return nil, fmt.Errorf("http interface: invalid rate limit %v/%d", cfg.RateLimitRPS, cfg.RateLimitBurst)
	}
	return &Interface{cfg: cfg, logger: xlog.Default()}, nil
}

func (i *Interface) WithLogger(l *xlog.Logger) *Interface {
	if l != nil {
		i.logger = l
	}
	return i
}

// WithGatherer sets what GET /metrics exposes. Defaults to the Prometheus default gatherer.
func (i *Interface) WithGatherer(g prometheus.Gatherer) *Interface {
	i.gatherer = g
	return i
}

func (i *Interface) SetMessageBus(bus xport.Dispatcher) { i.bus = bus }

func (i *Interface) SetView(view library.BookView) { i.view = view }

// Handler returns the router. It is what Start serves.
func (i *Interface) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(recoverMiddleware(i.logger))
	r.Use(loggingMiddleware(i.logger))
	if i.cfg.RateLimitRPS > 0 {
		burst := i.cfg.RateLimitBurst
		if burst == 0 {
			burst = 1
		}
		r.Use(rateLimitMiddleware(rate.NewLimiter(rate.Limit(i.cfg.RateLimitRPS), burst)))
	}

	r.Get("/healthz", i.health)
	if i.cfg.Metrics {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(i.gatherer))
	}
	r.Route("/books", func(r chi.Router) {
		r.Get("/", i.listBooks)
		r.Post("/", i.registerBook)
		r.Get("/{isbn}", i.bookByISBN)
		r.Get("/{isbn}/content", i.bookContent)
	})
	return r
}

// Start binds the listener and serves in the background.
func (i *Interface) Start(context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.server != nil {
		return nil
	}
	if i.bus == nil {
		return errors.New("http interface: message bus not set")
	}
	if i.view == nil {
		return errors.New("http interface: view not set")
	}

	ln, err := net.Listen("tcp", i.cfg.Addr)
	if err != nil {
		return fmt.Errorf("http interface: listen %s: %w", i.cfg.Addr, err)
	}
	srv := &http.Server{
		Handler:      i.Handler(),
		ReadTimeout:  i.cfg.ReadTimeout,
		WriteTimeout: i.cfg.WriteTimeout,
		IdleTimeout:  i.cfg.IdleTimeout,
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			i.logger.Error().Err(err).Msg("http interface stopped")
		}
	}()
	i.server, i.listener, i.done = srv, ln, done
	i.logger.Info().Str("addr", ln.Addr().String()).Msg("http interface started")
	return nil
}

// Addr is the bound address once started, which matters when Addr ends in ":0".
func (i *Interface) Addr() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.listener == nil {
		return i.cfg.Addr
	}
	return i.listener.Addr().String()
}

func (i *Interface) Stop(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.server == nil {
		return nil
	}
	if i.cfg.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.cfg.ShutdownTimeout)
		defer cancel()
	}
	err := i.server.Shutdown(ctx)
	<-i.done
	i.server, i.listener, i.done = nil, nil, nil
	return err
}

func (i *Interface) health(w http.ResponseWriter, r *http.Request) {
	if hc, ok := i.bus.(xport.HealthChecker); ok {
		writeJSON(w, http.StatusOK, hc.Health(r.Context()))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (i *Interface) listBooks(w http.ResponseWriter, r *http.Request) {
	var (
		books []library.Book
		err   error
	)
	q := r.URL.Query()
	switch {
	case q.Get("name") != "":
		books, err = i.view.ByName(r.Context(), q.Get("name"))
	case q.Get("author") != "":
		books, err = i.view.ByAuthor(r.Context(), q.Get("author"))
	default:
		books, err = i.view.All(r.Context())
	}
	if err != nil {
		i.fail(w, r, err)
		return
	}
	if books == nil {
		books = []library.Book{}
	}
	writeSuccess(w, http.StatusOK, books)
}

func (i *Interface) bookByISBN(w http.ResponseWriter, r *http.Request) {
	book, err := i.view.ByISBN(r.Context(), chi.URLParam(r, "isbn"))
	if err != nil {
		i.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, book)
}

func (i *Interface) bookContent(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := i.dispatchContext(r)
	defer cancel()
	content, err := xport.Execute[string](ctx, i.bus, library.ReadBookCommand{ISBN: chi.URLParam(r, "isbn")})
	if err != nil {
		i.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]string{"content": content})
}

func (i *Interface) registerBook(w http.ResponseWriter, r *http.Request) {
	var cmd library.RegisterBookCommand
	if err := decodeBody(r, &cmd); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	ctx, cancel := i.dispatchContext(r)
	defer cancel()
	book, err := xport.Execute[library.Book](ctx, i.bus, cmd)
	if err != nil {
		i.fail(w, r, err)
		return
	}
	w.Header().Set("Location", "/books/"+book.ISBN)
	writeSuccess(w, http.StatusCreated, book)
}

// dispatchContext bounds a bus call by RequestTimeout. The handler runs on this
// goroutine, so the response always reflects what it actually did.
func (i *Interface) dispatchContext(r *http.Request) (context.Context, context.CancelFunc) {
	if i.cfg.RequestTimeout <= 0 {
		return r.Context(), func() {}
	}
	return context.WithTimeout(r.Context(), i.cfg.RequestTimeout)
}

// fail maps domain errors onto status codes.
func (i *Interface) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, library.ErrBookNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, library.ErrBookAlreadyExists):
		writeError(w, http.StatusConflict, "ALREADY_EXISTS", err.Error())
	case errors.Is(err, library.ErrInvalidBook):
		writeError(w, http.StatusBadRequest, "INVALID_BOOK", err.Error())
	default:
		i.logger.Error().Err(err).Str("request_id", requestIDFromContext(r.Context())).Msg("http request failed")
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
}
