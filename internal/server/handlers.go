package server

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/errander/internal/executor"
	"github.com/mohammad-safakhou/errander/internal/jobs"
	"github.com/mohammad-safakhou/errander/internal/planner"
	"github.com/mohammad-safakhou/errander/internal/step"
)

// PlanHandler exposes the planner: pure translation, no side effects.
type PlanHandler struct {
	Planner *planner.Planner
}

func (h *PlanHandler) Register(e *echo.Echo) {
	e.POST("/plan", h.plan)
}

type planRequest struct {
	Prompt string `json:"prompt"`
}

type planResponse struct {
	OK    bool        `json:"ok"`
	Plan  step.Plan   `json:"plan"`
	Steps []step.Step `json:"steps"`
}

func (h *PlanHandler) plan(c echo.Context) error {
	var req planRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Prompt == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "prompt is required")
	}
	plan := h.Planner.Plan(c.Request().Context(), req.Prompt)
	return c.JSON(http.StatusOK, planResponse{OK: !plan.Empty(), Plan: plan, Steps: plan.Steps})
}

// RunsHandler accepts step sequences for execution and exposes run records
// for polling.
type RunsHandler struct {
	Exec *executor.Executor
	Repo executor.RunRepository
}

func (h *RunsHandler) Register(e *echo.Echo) {
	e.POST("/run", h.run)
	e.GET("/run/:id", h.get)
	e.GET("/runs", h.list)
}

type runRequest struct {
	Steps []step.Step `json:"steps"`
}

type runSyncResponse struct {
	OK      bool                `json:"ok"`
	Results *executor.RunRecord `json:"results"`
}

func (h *RunsHandler) run(c echo.Context) error {
	var req runRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if len(req.Steps) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "steps are required")
	}
	plan := step.Plan{Steps: req.Steps}

	if c.QueryParam("wait") == "1" {
		rec, err := h.Exec.ExecuteSync(c.Request().Context(), plan)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, runSyncResponse{OK: rec.Status == executor.StatusDone, Results: rec})
	}

	id, err := h.Exec.Execute(c.Request().Context(), plan)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusAccepted, map[string]string{"id": id, "status": string(executor.StatusRunning)})
}

func (h *RunsHandler) get(c echo.Context) error {
	rec, ok, err := h.Repo.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "run not found")
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *RunsHandler) list(c echo.Context) error {
	limit := 50
	if v := c.QueryParam("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	recs, err := h.Repo.List(c.Request().Context(), limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, recs)
}

// SweepHandler triggers scheduler sweeps: one endpoint per job type, no
// body, summary counts back.
type SweepHandler struct {
	Sweeper *jobs.Sweeper
}

func (h *SweepHandler) Register(e *echo.Echo) {
	e.POST("/sweep/monitors", h.monitors)
	e.POST("/sweep/briefings", h.briefings)
	e.POST("/sweep/watches", h.watches)
	e.POST("/sweep/alerts", h.alerts)
}

type sweepResponse struct {
	OK        bool `json:"ok"`
	Processed int  `json:"processed"`
	Changed   int  `json:"changed"`
}

func (h *SweepHandler) respond(c echo.Context, sum jobs.Summary, err error) error {
	if err != nil {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return c.JSON(http.StatusOK, sweepResponse{OK: true, Processed: sum.Processed, Changed: sum.Changed})
}

func (h *SweepHandler) monitors(c echo.Context) error {
	sum, err := h.Sweeper.SweepMonitors(c.Request().Context())
	return h.respond(c, sum, err)
}

func (h *SweepHandler) briefings(c echo.Context) error {
	sum, err := h.Sweeper.SweepBriefings(c.Request().Context())
	return h.respond(c, sum, err)
}

func (h *SweepHandler) watches(c echo.Context) error {
	sum, err := h.Sweeper.SweepCompetitorWatches(c.Request().Context())
	return h.respond(c, sum, err)
}

func (h *SweepHandler) alerts(c echo.Context) error {
	sum, err := h.Sweeper.SweepJobAlerts(c.Request().Context())
	return h.respond(c, sum, err)
}
