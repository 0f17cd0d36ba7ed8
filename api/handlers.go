// Package api serves the planner's remote data API over HTTP.
package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"weekplan/blob"
	"weekplan/domain"
)

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, d Deps) {
	if d.Store == nil || d.Auth == nil {
		panic("api.Register: store and auth are required")
	}
	if d.Logger == nil {
		panic("Logger is not initialized")
	}
	if d.MaxImageBytes <= 0 {
		d.MaxImageBytes = blob.DefaultMaxBytes
	}
	h := &handlers{Deps: d}

	e.JSONSerializer = sonicSerializer{}
	e.GET("/healthz", healthz())

	g := e.Group("/api", RequestMetrics(d.Logger), GzipRequestMiddleware(), RequireUser(d.Auth))
	g.GET("/me", h.me)

	g.GET("/tasks", h.getTasks)
	g.POST("/tasks", h.createTask)
	g.PATCH("/tasks/:id", h.updateTask)
	g.DELETE("/tasks/:id", h.deleteTask)

	g.GET("/notes/:weekId", h.getNote)
	g.PUT("/notes/:weekId", h.putNote)

	g.GET("/summaries/:weekId", h.getSummary)
	g.PATCH("/summaries/:weekId", h.patchSummary)

	g.GET("/week-settings/:weekId", h.getWeekSettings)
	g.PATCH("/week-settings/:weekId/layout", h.patchLayout)
	g.PATCH("/week-settings/:weekId/custom-content", h.patchCustomContent)
	g.POST("/week-settings/:weekId/image", h.uploadImage)
}

type handlers struct {
	Deps
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

func (h *handlers) me(c echo.Context) error {
	return c.JSON(http.StatusOK, meResponse{ID: userIDFrom(c)})
}

// decodeBody reads a JSON body of at most limit bytes, rejecting unknown fields.
func decodeBody(c echo.Context, dst any, limit int64) error {
	lr := io.LimitReader(c.Request().Body, limit)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return &domain.ValidationError{Field: "body", Reason: "invalid body"}
	}
	return nil
}

// fail maps err onto a response: validation 400, not found 404, anything
// else 500 attributed to stage.
func (h *handlers) fail(c echo.Context, stage string, err error) error {
	m := metricsFrom(c)
	m.RecordError(err)
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		m.SetErrorStage("validation")
		return c.JSON(http.StatusBadRequest, errorResponse{Error: ve.Error()})
	case errors.Is(err, domain.ErrNotFound):
		m.SetErrorStage("not_found")
		return c.JSON(http.StatusNotFound, errorResponse{Error: domain.ErrNotFound.Error()})
	}
	m.SetErrorStage(stage)
	h.Logger.WithFields(log.Fields{
		"stage": stage,
		"path":  c.Request().URL.Path,
		"user":  userIDFrom(c),
	}).WithError(err).Error("request failed")
	return c.JSON(http.StatusInternalServerError, errorResponse{Error: stage + " failure"})
}

// respond encodes v and records the encode time.
func respond(c echo.Context, status int, v any) error {
	m := metricsFrom(c)
	start := time.Now()
	err := c.JSON(status, v)
	m.ObserveEncode(time.Since(start))
	if err != nil {
		m.SetErrorStage("encode_response")
	}
	return err
}

// publish hands a change event to the publisher, if any. Publishing never
// fails the request.
func (h *handlers) publish(userID, entityType, typ, entityID string, weekIDs []string) {
	if h.Events == nil {
		return
	}
	ev := domain.ChangeEvent{
		ID:         uuid.NewString(),
		UserID:     userID,
		EntityType: entityType,
		Type:       typ,
		EntityID:   entityID,
		WeekIDs:    weekIDs,
		Timestamp:  nextTimestamp(),
	}
	if !h.Events.Publish(ev) {
		h.Logger.WithFields(log.Fields{"event": typ, "user": userID}).Debug("change event not published")
	}
}

// timed runs a storage call and records its duration.
func timed(c echo.Context, fn func() error) error {
	start := time.Now()
	err := fn()
	metricsFrom(c).ObserveStorage(time.Since(start))
	return err
}
