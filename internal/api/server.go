// Package api exposes the engine's query and control surface over HTTP:
// point-in-time indicator snapshots, depth metrics, and instrument
// subscription management.
package api

import (
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"indicator-enginev1/internal/dispatch"
	"indicator-enginev1/internal/indicator"
	"indicator-enginev1/internal/model"
)

// Bias labels derived from the latest RSI and EMA values. Presentation
// only; the engine core never looks at these.
const (
	BiasOverbought = "OVERBOUGHT"
	BiasOversold   = "OVERSOLD"
	BiasBullish    = "BULLISH"
	BiasBearish    = "BEARISH"
	BiasNeutral    = "NEUTRAL"
)

// Server wires the dispatcher and the history store into HTTP handlers.
type Server struct {
	disp    *dispatch.Dispatcher
	history model.HistoryReader // optional; nil disables pre-warm on subscribe
	prewarm int
	stream  *Hub // optional; nil disables the /stream endpoint
	log     *slog.Logger
}

// New creates an API server. prewarm is the number of historical closes
// fetched to bootstrap indicators on subscribe (0 disables).
func New(disp *dispatch.Dispatcher, history model.HistoryReader, prewarm int, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{disp: disp, history: history, prewarm: prewarm, log: log}
}

// AttachStream enables the live result WebSocket endpoint, fed from hub.
func (s *Server) AttachStream(hub *Hub) { s.stream = hub }

// Router builds the gin engine with all routes mounted under /api/v1.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	v1 := r.Group("/api/v1")
	v1.GET("/health", s.handleHealth)
	v1.GET("/instruments", s.handleInstruments)
	v1.GET("/snapshot/:exchange/:symbol", s.handleSnapshot)
	v1.GET("/depth/:exchange/:symbol", s.handleDepth)
	v1.POST("/subscribe", s.handleSubscribe)
	v1.DELETE("/subscribe/:exchange/:symbol", s.handleUnsubscribe)
	if s.stream != nil {
		v1.GET("/stream", s.handleStream)
	}

	return r
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleInstruments(c *gin.Context) {
	insts := s.disp.Instruments()
	keys := make([]string, 0, len(insts))
	for _, inst := range insts {
		keys = append(keys, inst.Key())
	}
	c.JSON(http.StatusOK, gin.H{"instruments": keys})
}

// snapshotResponse is the wire shape of one instrument snapshot. Indicator
// values are nullable: null means the indicator is still warming up.
type snapshotResponse struct {
	Exchange   string              `json:"exchange"`
	Symbol     string              `json:"symbol"`
	LTP        *float64            `json:"ltp"`
	Indicators map[string]*float64 `json:"indicators"`
	Bias       string              `json:"bias"`
}

func (s *Server) handleSnapshot(c *gin.Context) {
	inst := pathInstrument(c)
	snap, err := s.disp.Snapshot(inst)
	if err != nil {
		s.renderError(c, err)
		return
	}

	values := make(map[string]*float64, len(snap))
	for name, v := range snap {
		values[name] = jsonFloat(v)
	}

	var ltp float64 = math.NaN()
	if closes, err := s.disp.History(inst); err == nil && len(closes) > 0 {
		ltp = closes[len(closes)-1]
	}

	c.JSON(http.StatusOK, snapshotResponse{
		Exchange:   inst.Exchange,
		Symbol:     inst.Symbol,
		LTP:        jsonFloat(ltp),
		Indicators: values,
		Bias:       classifyBias(snap, ltp),
	})
}

func (s *Server) handleDepth(c *gin.Context) {
	inst := pathInstrument(c)
	m, err := s.disp.DepthMetrics(inst)
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"exchange":        inst.Exchange,
		"symbol":          inst.Symbol,
		"spread":          jsonFloat(m.Spread),
		"mid_price":       jsonFloat(m.MidPrice),
		"imbalance_ratio": jsonFloat(m.ImbalanceRatio),
	})
}

type subscribeRequest struct {
	Exchange   string           `json:"exchange" binding:"required"`
	Symbol     string           `json:"symbol" binding:"required"`
	Indicators []indicator.Spec `json:"indicators"`
}

func (s *Server) handleSubscribe(c *gin.Context) {
	var req subscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	inst := model.NewInstrument(req.Exchange, req.Symbol)

	var history []float64
	if s.history != nil && s.prewarm > 0 {
		h, err := s.history.ReadCloses(c.Request.Context(), inst, s.prewarm)
		if err != nil {
			s.log.Warn("history pre-warm failed", slog.String("instrument", inst.Key()), slog.Any("error", err))
		} else {
			history = h
		}
	}

	if err := s.disp.Subscribe(c.Request.Context(), inst, req.Indicators, history); err != nil {
		s.renderError(c, err)
		return
	}
	s.log.Info("instrument subscribed", slog.String("instrument", inst.Key()), slog.Int("indicators", len(req.Indicators)))
	c.JSON(http.StatusCreated, gin.H{"instrument": inst.Key(), "prewarmed": len(history)})
}

func (s *Server) handleUnsubscribe(c *gin.Context) {
	inst := pathInstrument(c)
	if err := s.disp.Unsubscribe(inst); err != nil {
		s.renderError(c, err)
		return
	}
	s.log.Info("instrument unsubscribed", slog.String("instrument", inst.Key()))
	c.JSON(http.StatusOK, gin.H{"instrument": inst.Key()})
}

// renderError maps engine errors onto HTTP statuses. Nothing here ever
// terminates the process.
func (s *Server) renderError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, dispatch.ErrUnknownInstrument),
		errors.Is(err, dispatch.ErrNoDepthSnapshot):
		status = http.StatusNotFound
	case errors.Is(err, dispatch.ErrAlreadySubscribed):
		status = http.StatusConflict
	case errors.Is(err, indicator.ErrPeriodExceedsCapacity),
		errors.Is(err, indicator.ErrInvalidPeriod),
		errors.Is(err, indicator.ErrUnknownType):
		status = http.StatusBadRequest
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// pathInstrument builds the instrument identity from URL path params.
func pathInstrument(c *gin.Context) model.Instrument {
	return model.NewInstrument(c.Param("exchange"), c.Param("symbol"))
}

// jsonFloat converts NaN (warm-up / no data) to null; encoding/json rejects
// NaN outright.
func jsonFloat(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// classifyBias derives a trading bias from the freshest RSI and EMA in the
// snapshot: RSI extremes win, otherwise LTP relative to EMA decides.
func classifyBias(snap map[string]float64, ltp float64) string {
	rsi, ema := math.NaN(), math.NaN()
	for name, v := range snap {
		switch {
		case strings.HasPrefix(name, "RSI_"):
			rsi = v
		case strings.HasPrefix(name, "EMA_"):
			ema = v
		}
	}
	switch {
	case rsi >= 70:
		return BiasOverbought
	case !math.IsNaN(rsi) && rsi <= 30:
		return BiasOversold
	case !math.IsNaN(ema) && !math.IsNaN(ltp) && ltp > ema:
		return BiasBullish
	case !math.IsNaN(ema) && !math.IsNaN(ltp) && ltp < ema:
		return BiasBearish
	default:
		return BiasNeutral
	}
}
