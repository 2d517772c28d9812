package web

import (
	"context"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"time"

	"github.com/XANi/homebrainz2prom/device"
	"github.com/XANi/homebrainz2prom/sensors"
	"github.com/XANi/homebrainz2prom/store"
	"github.com/efigence/go-mon"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Commander is the slice of device.Client the control endpoints proxy to.
type Commander interface {
	SetBrightness(ctx context.Context, level int) error
	SetScreens(ctx context.Context, screens []string) error
	StartOTAUpdate(ctx context.Context, url string) error
	OTA(ctx context.Context) (*device.OTAStatus, error)
}

// History is implemented by the readings store. Nil disables the history
// API.
type History interface {
	Recent(sensor string, since time.Time, limit int) ([]store.Reading, error)
}

type Config struct {
	Logger     *zap.SugaredLogger
	ListenAddr string
	// Prefix for metric names on /metrics
	Prefix      string
	ExtraLabels map[string]string
	Commander   Commander
	History     History
	Debug       bool
}

type Web struct {
	l          *zap.SugaredLogger
	engine     *gin.Engine
	listenAddr string
	collector  *collector
	cfg        Config
}

func New(cfg Config, webFS fs.FS) (*Web, error) {
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	w := &Web{
		l:          cfg.Logger,
		listenAddr: cfg.ListenAddr,
		collector:  newCollector(),
		cfg:        cfg,
	}
	r := gin.New()
	r.Use(ginzap.Ginzap(cfg.Logger.Desugar(), time.RFC3339, true))
	r.Use(ginzap.RecoveryWithZap(cfg.Logger.Desugar(), true))

	templates, err := template.ParseFS(webFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("cannot parse templates: %w", err)
	}
	r.SetHTMLTemplate(templates)
	staticFS, err := fs.Sub(webFS, "static")
	if err != nil {
		return nil, fmt.Errorf("cannot open static dir: %w", err)
	}
	r.StaticFS("/static", http.FS(staticFS))

	r.GET("/", w.handleIndex)
	r.GET("/metrics", w.handleMetrics)
	r.GET("/_status/health", gin.WrapF(mon.HandleHealthcheck))
	r.GET("/_status/metrics", gin.WrapF(mon.HandleMetrics))

	api := r.Group("/api/v1")
	api.GET("/snapshot", w.handleSnapshot)
	api.GET("/history/:sensor", w.handleHistory)
	api.POST("/brightness", w.handleBrightness)
	api.POST("/screens", w.handleScreens)
	api.POST("/ota/update", w.handleOTAUpdate)

	w.engine = r
	return w, nil
}

// Collect consumes the metric stream into the latest-value registry.
// Blocks until the channel closes.
func (w *Web) Collect(in <-chan sensors.Metric) {
	w.collector.Run(in)
}

// SetSnapshot feeds the latest poll result to the JSON API and the status
// page.
func (w *Web) SetSnapshot(snap *device.Snapshot) {
	w.collector.SetSnapshot(snap)
}

func (w *Web) Run() error {
	w.l.Infof("listening on %s", w.listenAddr)
	return w.engine.Run(w.listenAddr)
}

func (w *Web) handleIndex(c *gin.Context) {
	snap := w.collector.Snapshot()
	name := "HomeBrainz Clock"
	if snap != nil {
		name = snap.Name()
	}
	c.HTML(http.StatusOK, "index.html", gin.H{
		"DeviceName": name,
		"Snapshot":   snap,
		"Metrics":    w.collector.Metrics(),
	})
}

func (w *Web) handleMetrics(c *gin.Context) {
	c.Header("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	c.String(http.StatusOK, w.collector.renderPrometheus(w.cfg.Prefix, w.cfg.ExtraLabels))
}

func (w *Web) handleSnapshot(c *gin.Context) {
	snap := w.collector.Snapshot()
	if snap == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no successful poll yet"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (w *Web) handleHistory(c *gin.Context) {
	if w.cfg.History == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "readings history is disabled"})
		return
	}
	sensor := c.Param("sensor")
	since := time.Now().Add(-24 * time.Hour)
	if raw := c.Query("since"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("bad since duration: %s", err)})
			return
		}
		since = time.Now().Add(-d)
	}
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		if _, err := fmt.Sscanf(raw, "%d", &limit); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bad limit"})
			return
		}
	}
	readings, err := w.cfg.History.Recent(sensor, since, limit)
	if err != nil {
		w.l.Warnf("history query failed: %s", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "history query failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sensor": sensor, "readings": readings})
}

func (w *Web) handleBrightness(c *gin.Context) {
	var req struct {
		Level *int `json:"level" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := w.cfg.Commander.SetBrightness(c.Request.Context(), *req.Level); err != nil {
		w.l.Warnf("set_brightness failed: %s", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"level": *req.Level})
}

func (w *Web) handleScreens(c *gin.Context) {
	var req struct {
		Screens []string `json:"screens" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.Screens) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "at least one screen must remain enabled"})
		return
	}
	if err := w.cfg.Commander.SetScreens(c.Request.Context(), req.Screens); err != nil {
		w.l.Warnf("screen update failed: %s", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"screens": req.Screens})
}

func (w *Web) handleOTAUpdate(c *gin.Context) {
	var req struct {
		URL string `json:"url"`
	}
	// body is optional, empty means use the last known download url
	_ = c.ShouldBindJSON(&req)
	url := req.URL
	if url == "" {
		if snap := w.collector.Snapshot(); snap != nil && snap.OTA != nil {
			url = snap.OTA.DownloadURL
		}
	}
	if url == "" {
		c.JSON(http.StatusConflict, gin.H{"error": "no firmware download url known"})
		return
	}
	if err := w.cfg.Commander.StartOTAUpdate(c.Request.Context(), url); err != nil {
		w.l.Warnf("firmware update failed: %s", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}
