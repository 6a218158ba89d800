package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/spa-controller/internal/controller"
	"github.com/thatsimonsguy/spa-controller/internal/controllers/chemicalcycle"
	"github.com/thatsimonsguy/spa-controller/internal/decoder"
	"github.com/thatsimonsguy/spa-controller/internal/exporter"
	"github.com/thatsimonsguy/spa-controller/internal/hottub"
	"github.com/thatsimonsguy/spa-controller/internal/model"
	"github.com/thatsimonsguy/spa-controller/internal/relay"
)

const (
	// readWait bounds how long a request waits for the first poll after startup.
	readWait          = 30 * time.Second
	readHeaderTimeout = 10 * time.Second
	idleTimeout       = 60 * time.Second
)

type Spa interface {
	DeviceID() string
	Status(ctx context.Context) (model.Status, error)
	Snapshot() (model.Status, bool)
	Temperatures(ctx context.Context) (model.Temperatures, error)
	SetTargetTemperature(ctx context.Context, value int) error
	LED(ctx context.Context) (model.LEDState, error)
	SetLED(ctx context.Context, desired model.LEDState) error
	ToggleLED(ctx context.Context) (model.LEDState, error)
	Jets(ctx context.Context) (model.JetReading, error)
	SetJet1(ctx context.Context, desired model.JetSpeed) error
	SetJet2(ctx context.Context, desired model.JetSpeed) error
	StartChemicalCycle(ctx context.Context) (string, error)
	ChemicalCycleRunning() bool
	LastChemicalCycle() (chemicalcycle.Run, bool)
}

type Server struct {
	spa        Spa
	router     *gin.Engine
	httpServer *http.Server
}

type TargetTemperatureRequest struct {
	Target *int `json:"target"`
}

type LEDRequest struct {
	State model.LEDState `json:"state"`
}

type LEDResponse struct {
	State model.LEDState `json:"state"`
}

type JetRequest struct {
	Speed *model.JetSpeed `json:"speed"`
}

type JetResponse struct {
	Jet   int    `json:"jet"`
	Speed string `json:"speed"`
	Code  string `json:"code,omitempty"`
}

type ChemicalCycleResponse struct {
	Running bool               `json:"running"`
	Last    *chemicalcycle.Run `json:"last,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func NewServer(spa Spa) *Server {
	s := &Server{spa: spa}
	s.router = s.initRoutes()
	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       idleTimeout,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) initRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(), cors())

	router.GET("/health", s.health)
	router.GET("/metrics", gin.WrapH(exporter.Handler(s.spa)))
	router.GET("/ws/status", s.wsStatus)

	api := router.Group("/api")
	{
		api.GET("/status", s.getStatus)

		api.GET("/temperature", s.getTemperature)
		api.PUT("/temperature/target", s.setTargetTemperature)

		api.GET("/led", s.getLED)
		api.PUT("/led", s.setLED)
		api.POST("/led/toggle", s.toggleLED)

		api.GET("/jets/:jet", s.getJet)
		api.PUT("/jets/:jet", s.setJet)

		api.GET("/chemical-cycle", s.getChemicalCycle)
		api.POST("/chemical-cycle", s.startChemicalCycle)
	}
	return router
}

// Start serves on addr until Shutdown is called. Calling Shutdown first makes
// Start return immediately.
func (s *Server) Start(addr string) error {
	s.httpServer.Addr = addr
	log.Info().Str("address", addr).Msg("Starting REST API server")

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) health(c *gin.Context) {
	_, ready := s.spa.Snapshot()
	c.JSON(http.StatusOK, gin.H{"status": "ok", "device_id": s.spa.DeviceID(), "ready": ready})
}

func (s *Server) getStatus(c *gin.Context) {
	ctx, cancel := readContext(c)
	defer cancel()

	status, err := s.spa.Status(ctx)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) getTemperature(c *gin.Context) {
	ctx, cancel := readContext(c)
	defer cancel()

	temps, err := s.spa.Temperatures(ctx)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, temps)
}

func (s *Server) setTargetTemperature(c *gin.Context) {
	var req TargetTemperatureRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Target == nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid JSON payload, expected {\"target\": <degrees>}"})
		return
	}

	ctx, cancel := readContext(c)
	defer cancel()

	if err := s.spa.SetTargetTemperature(ctx, *req.Target); err != nil {
		writeError(c, err)
		return
	}
	log.Info().Int("target", *req.Target).Msg("Target temperature updated via API")
	c.Status(http.StatusNoContent)
}

func (s *Server) getLED(c *gin.Context) {
	ctx, cancel := readContext(c)
	defer cancel()

	state, err := s.spa.LED(ctx)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, LEDResponse{State: state})
}

func (s *Server) setLED(c *gin.Context) {
	var req LEDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	ctx, cancel := readContext(c)
	defer cancel()

	if err := s.spa.SetLED(ctx, req.State); err != nil {
		writeError(c, err)
		return
	}
	log.Info().Str("led", req.State.String()).Msg("LED updated via API")
	c.JSON(http.StatusOK, LEDResponse{State: req.State})
}

func (s *Server) toggleLED(c *gin.Context) {
	ctx, cancel := readContext(c)
	defer cancel()

	state, err := s.spa.ToggleLED(ctx)
	if err != nil {
		writeError(c, err)
		return
	}
	log.Info().Str("led", state.String()).Msg("LED toggled via API")
	c.JSON(http.StatusOK, LEDResponse{State: state})
}

func jetNumber(c *gin.Context) (int, bool) {
	switch c.Param("jet") {
	case "1":
		return 1, true
	case "2":
		return 2, true
	default:
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Unknown jet, expected 1 or 2"})
		return 0, false
	}
}

func (s *Server) getJet(c *gin.Context) {
	jet, ok := jetNumber(c)
	if !ok {
		return
	}

	ctx, cancel := readContext(c)
	defer cancel()

	reading, err := s.spa.Jets(ctx)
	if err != nil {
		writeError(c, err)
		return
	}

	resp := JetResponse{Jet: jet, Speed: "unknown", Code: reading.Code}
	if reading.Recognized {
		speed := reading.Jet1
		if jet == 2 {
			speed = reading.Jet2
		}
		resp.Speed = speed.String()
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) setJet(c *gin.Context) {
	jet, ok := jetNumber(c)
	if !ok {
		return
	}

	var req JetRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Speed == nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid JSON payload, expected {\"speed\": \"off|low|high\"}"})
		return
	}
	speed := *req.Speed

	ctx, cancel := readContext(c)
	defer cancel()

	var err error
	if jet == 1 {
		err = s.spa.SetJet1(ctx, speed)
	} else {
		err = s.spa.SetJet2(ctx, speed)
	}
	if err != nil {
		writeError(c, err)
		return
	}
	log.Info().Int("jet", jet).Str("speed", speed.String()).Msg("Jet updated via API")
	c.JSON(http.StatusOK, JetResponse{Jet: jet, Speed: speed.String()})
}

func (s *Server) getChemicalCycle(c *gin.Context) {
	resp := ChemicalCycleResponse{Running: s.spa.ChemicalCycleRunning()}
	if last, ok := s.spa.LastChemicalCycle(); ok {
		resp.Last = &last
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) startChemicalCycle(c *gin.Context) {
	id, err := s.spa.StartChemicalCycle(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	log.Info().Str("run_id", id).Msg("Chemical cycle started via API")
	c.JSON(http.StatusAccepted, gin.H{"run_id": id})
}

func readContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), readWait)
}

// statusFor maps engine errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrInvalidJetSpeed),
		errors.Is(err, model.ErrInvalidLEDState),
		errors.Is(err, controller.ErrJet2HighUnsupported),
		errors.Is(err, hottub.ErrTargetOutOfRange):
		return http.StatusBadRequest
	case errors.Is(err, chemicalcycle.ErrAlreadyRunning):
		return http.StatusConflict
	case errors.Is(err, decoder.ErrUnknownLEDCode),
		errors.Is(err, decoder.ErrShortBuffer),
		errors.Is(err, decoder.ErrBadTemperature),
		errors.Is(err, controller.ErrUnrecognizedJetCode),
		errors.Is(err, relay.ErrMalformedReply):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.FullPath()).Int("status", status).Msg("Request failed")
	}
	c.JSON(status, ErrorResponse{Error: fmt.Sprint(err)})
}
