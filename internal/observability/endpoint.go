package observability

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/voicerec/internal/logger"
	metricspkg "github.com/tphakala/voicerec/internal/observability/metrics"
)

// Status is the health snapshot served on /healthz.
type Status struct {
	Session       string `json:"session"`
	Mode          string `json:"mode"`
	Source        string `json:"source"`
	State         string `json:"state"`
	Healthy       bool   `json:"healthy"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Segments      uint64 `json:"segments"`
	FramesDropped uint64 `json:"frames_dropped"`
	QueueDepth    int    `json:"queue_depth"`
	EncodePending int    `json:"encode_pending"`
	DiskSpaceLow  bool   `json:"disk_space_low"`
	WriteFailures int    `json:"consecutive_write_failures"`
}

// StatusProvider supplies the health snapshot.
type StatusProvider interface {
	Status() Status
}

// Endpoint serves /metrics and /healthz over HTTP.
type Endpoint struct {
	listenAddress string
	metrics       *Metrics
	status        StatusProvider
	echo          *echo.Echo
	listener      net.Listener
	wg            sync.WaitGroup
}

// NewEndpoint creates an endpoint listening on listenAddress.
func NewEndpoint(listenAddress string, metrics *Metrics, status StatusProvider) *Endpoint {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	ep := &Endpoint{
		listenAddress: listenAddress,
		metrics:       metrics,
		status:        status,
		echo:          e,
	}
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))
	e.GET("/healthz", ep.handleHealth)
	return ep
}

func (e *Endpoint) handleHealth(c echo.Context) error {
	if e.status == nil {
		return c.JSON(http.StatusOK, Status{Healthy: true})
	}
	st := e.status.Status()
	code := http.StatusOK
	if !st.Healthy {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, st)
}

// Start binds the listen address and serves in the background.
func (e *Endpoint) Start() error {
	ln, err := net.Listen("tcp", e.listenAddress)
	if err != nil {
		return err
	}
	e.listener = ln
	e.echo.Listener = ln

	e.wg.Go(func() {
		log().Info("telemetry endpoint starting", logger.String("address", ln.Addr().String()))
		if err := e.echo.Start(""); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log().Error("telemetry HTTP server error", logger.Error(err))
		}
	})
	return nil
}

// Addr returns the bound address, useful when listening on port 0.
func (e *Endpoint) Addr() string {
	if e.listener == nil {
		return e.listenAddress
	}
	return e.listener.Addr().String()
}

// Shutdown stops the server and waits for it to exit.
func (e *Endpoint) Shutdown(ctx context.Context) error {
	if e.listener == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, metricspkg.ShutdownTimeout)
	defer cancel()
	log().Info("stopping telemetry server")
	err := e.echo.Shutdown(ctx)
	e.wg.Wait()
	return err
}

// GetMetrics returns the Metrics instance associated with this Endpoint.
func (e *Endpoint) GetMetrics() *Metrics {
	return e.metrics
}
