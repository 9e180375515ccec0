package server

import (
	"errors"
	"net/http"

	"taskhost/internal/pkg/host"
	"taskhost/internal/pkg/logger"
	"taskhost/internal/pkg/processor"
	"taskhost/internal/pkg/telemetry"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// InstanceView is one processor instance as served by the API
type InstanceView struct {
	processor.Stats
	Counters map[telemetry.Counter]int64 `json:"counters,omitempty"`
}

// GroupView is the set of instances built from one definition
type GroupView struct {
	Name      string         `json:"name"`
	Instances []InstanceView `json:"instances"`
}

type handlers struct {
	host   *host.Host
	store  *telemetry.Store
	logger *logger.Logger
}

func (h *handlers) register(e *echo.Echo) {
	e.GET("/processors", h.listGroups)
	e.GET("/processors/:name", h.getGroup)
	e.POST("/processors/:name/stop", h.stopGroup)

	g := e.Group("/host")
	g.GET("/config", h.configuration)
	g.GET("/plan", h.plan)
	g.POST("/start", h.start)
	g.POST("/stop", h.stop)
}

func (h *handlers) view(name string, group []*processor.Processor) GroupView {
	v := GroupView{Name: name, Instances: make([]InstanceView, 0, len(group))}
	for _, p := range group {
		iv := InstanceView{Stats: p.Stats()}
		if h.store != nil {
			iv.Counters = h.store.Snapshot(p.ID())
		}
		v.Instances = append(v.Instances, iv)
	}
	return v
}

func (h *handlers) listGroups(c echo.Context) error {
	instances := h.host.ProcessorInstances()
	groups := make([]GroupView, 0, len(instances))
	for _, name := range h.host.Groups() {
		if group, ok := instances[name]; ok {
			groups = append(groups, h.view(name, group))
		}
	}
	return SuccessResponse(c, http.StatusOK, groups, "Processors retrieved")
}

func (h *handlers) getGroup(c echo.Context) error {
	name := c.Param("name")
	group, ok := h.host.ProcessorInstances()[name]
	if !ok {
		return ErrorResponse(c, http.StatusNotFound, host.ErrGroupNotFound.Error(), "Processor group not found")
	}
	return SuccessResponse(c, http.StatusOK, h.view(name, group), "Processor group retrieved")
}

func (h *handlers) stopGroup(c echo.Context) error {
	name := c.Param("name")
	if err := h.host.StopGroup(c.Request().Context(), name); err != nil {
		if errors.Is(err, host.ErrGroupNotFound) {
			return ErrorResponse(c, http.StatusNotFound, err.Error(), "Processor group not found")
		}
		h.logger.Warn("Processor group stopped with errors", zap.String("group", name), zap.Error(err))
		return ErrorResponse(c, http.StatusGatewayTimeout, err.Error(), "Processor group did not stop in time")
	}
	return SuccessResponse(c, http.StatusOK, nil, "Processor group stopped")
}

func (h *handlers) configuration(c echo.Context) error {
	return SuccessResponse(c, http.StatusOK, h.host.Configuration(), "Host configuration retrieved")
}

func (h *handlers) plan(c echo.Context) error {
	return SuccessResponse(c, http.StatusOK, h.host.Plan(), "Host plan computed")
}

func (h *handlers) start(c echo.Context) error {
	h.host.Start()
	return SuccessResponse(c, http.StatusOK, map[string]bool{"started": h.host.Started()}, "Host started")
}

func (h *handlers) stop(c echo.Context) error {
	h.host.Stop()
	return SuccessResponse(c, http.StatusOK, map[string]bool{"started": h.host.Started()}, "Host stopped")
}
