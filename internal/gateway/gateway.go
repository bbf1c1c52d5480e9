package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BusaSaiTeja/campus-lost-and-found/internal/bus"
	"github.com/BusaSaiTeja/campus-lost-and-found/internal/metrics"
)

const (
	DefaultRefreshPath = "/api/refresh"
	maxBodySize        = 8 << 20
)

// State of the refresh coordinator.
type State string

const (
	Idle       State = "IDLE"
	Refreshing State = "REFRESHING"
)

// RefreshError is returned to every request that waited on a failed refresh.
type RefreshError struct {
	StatusCode int
	Err        error
}

func (e *RefreshError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("session refresh failed: %v", e.Err)
	}
	return fmt.Sprintf("session refresh failed: status %d", e.StatusCode)
}

func (e *RefreshError) Unwrap() error { return e.Err }

// Options configures a Gateway.
type Options struct {
	BaseURL string
	// Client carries the cookie jar that holds the session. Refresh renews
	// the cookies in that jar; requests never attach tokens themselves.
	Client      *http.Client
	RefreshPath string
	Logger      *zap.Logger
	Bus         *bus.Bus
}

// Gateway sends backend requests and recovers from an expired session with
// one shared refresh. While a refresh is in flight every other request that
// hits 401 waits for it, and all of them get the same outcome.
type Gateway struct {
	base        *url.URL
	client      *http.Client
	refreshPath string
	log         *zap.Logger
	bus         *bus.Bus

	mu      sync.Mutex
	state   State
	waiters []chan error
	// epoch counts completed refreshes and lastErr holds the outcome of
	// the latest one. A 401 for a request sent before that refresh takes
	// its outcome instead of refreshing again.
	epoch   uint64
	lastErr error
}

// New creates a gateway for the backend at opts.BaseURL.
func New(opts Options) (*Gateway, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base url %q: scheme must be http or https", opts.BaseURL)
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.RefreshPath == "" {
		opts.RefreshPath = DefaultRefreshPath
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Gateway{
		base:        base,
		client:      opts.Client,
		refreshPath: opts.RefreshPath,
		log:         opts.Logger.Named("gateway"),
		bus:         opts.Bus,
		state:       Idle,
	}, nil
}

// State returns the coordinator state.
func (g *Gateway) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Client returns the HTTP client, whose jar holds the session cookies.
func (g *Gateway) Client() *http.Client { return g.client }

// BaseURL returns the backend root.
func (g *Gateway) BaseURL() *url.URL {
	u := *g.base
	return &u
}

// Do sends req. On a 401 for a request that has not been retried yet, it
// refreshes the session once (or joins the refresh in flight) and replays
// req. A replay that is rejected again is returned as is; it never starts
// another refresh. When the refresh fails, Do returns *RefreshError, and so
// does every request sent before that refresh whose 401 arrives late.
func (g *Gateway) Do(ctx context.Context, req *Request) (*Response, error) {
	start := time.Now()
	defer func() {
		metrics.GatewayRequestDuration.WithLabelValues(req.Method).Observe(time.Since(start).Seconds())
	}()

	epoch := g.currentEpoch()
	resp, err := g.send(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized || req.retried || req.Path == g.refreshPath {
		return resp, nil
	}

	req.retried = true
	if err := g.awaitRefresh(ctx, epoch); err != nil {
		return nil, err
	}
	g.log.Debug("replaying after refresh", zap.String("method", req.Method), zap.String("path", req.Path))
	return g.send(ctx, req)
}

// awaitRefresh blocks until a refresh that completed after epoch has an
// outcome. The first caller to find the gateway idle starts the refresh;
// later callers queue behind it.
func (g *Gateway) awaitRefresh(ctx context.Context, epoch uint64) error {
	wait := make(chan error, 1)

	g.mu.Lock()
	switch {
	case g.state == Idle && g.epoch != epoch:
		err := g.lastErr
		g.mu.Unlock()
		return err
	case g.state == Refreshing:
		g.waiters = append(g.waiters, wait)
		g.mu.Unlock()
		metrics.GatewayQueued.Inc()
	default:
		g.state = Refreshing
		g.waiters = append(g.waiters, wait)
		g.mu.Unlock()
		// The refresh belongs to every waiter, so no single caller's
		// cancellation may abort it.
		go g.refresh(context.WithoutCancel(ctx))
	}

	select {
	case err := <-wait:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *Gateway) refresh(ctx context.Context) {
	g.log.Info("session expired, refreshing")
	var outcome error
	resp, err := g.send(ctx, &Request{
		Method:  http.MethodPost,
		Path:    g.refreshPath,
		Header:  http.Header{"Content-Type": {"application/json"}},
		Body:    []byte("{}"),
		retried: true,
	})
	switch {
	case err != nil:
		outcome = &RefreshError{Err: err}
	case !resp.OK():
		outcome = &RefreshError{StatusCode: resp.StatusCode}
	}

	g.mu.Lock()
	waiters := g.waiters
	g.waiters = nil
	g.state = Idle
	g.epoch++
	g.lastErr = outcome
	g.mu.Unlock()

	if outcome != nil {
		metrics.GatewayRefreshes.WithLabelValues("failed").Inc()
		g.log.Warn("session refresh failed", zap.Int("waiters", len(waiters)), zap.Error(outcome))
		g.bus.Publish(bus.NewEvent(bus.KindRefreshFailed, "", outcome.Error()))
	} else {
		metrics.GatewayRefreshes.WithLabelValues("ok").Inc()
		g.log.Info("session refreshed", zap.Int("waiters", len(waiters)))
	}
	for _, w := range waiters {
		w <- outcome
	}
}

func (g *Gateway) currentEpoch() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.epoch
}

func (g *Gateway) send(ctx context.Context, req *Request) (*Response, error) {
	u := g.base.JoinPath(req.Path)
	if len(req.Query) > 0 {
		u.RawQuery = req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build %s %s: %w", req.Method, req.Path, err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	httpReq.Header.Set("Accept", "application/json")

	httpResp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.Path, err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("%s %s: read body: %w", req.Method, req.Path, err)
	}
	return &Response{StatusCode: httpResp.StatusCode, Header: httpResp.Header, Body: data}, nil
}

// IsRefreshError reports whether err came from a failed session refresh.
func IsRefreshError(err error) bool {
	var re *RefreshError
	return errors.As(err, &re)
}
