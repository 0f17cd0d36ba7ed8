package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"

	"weekplan/domain"
	"weekplan/storage"
)

func (h *handlers) getTasks(c echo.Context) error {
	start, end := c.QueryParam("startDate"), c.QueryParam("endDate")
	if err := domain.ValidateDate(start); err != nil {
		return h.fail(c, "validation", &domain.ValidationError{Field: "startDate", Reason: "must be YYYY-MM-DD"})
	}
	if err := domain.ValidateDate(end); err != nil {
		return h.fail(c, "validation", &domain.ValidationError{Field: "endDate", Reason: "must be YYYY-MM-DD"})
	}
	if end < start {
		return h.fail(c, "validation", &domain.ValidationError{Field: "endDate", Reason: "must not precede startDate"})
	}

	var tasks []domain.Task
	err := timed(c, func() (err error) {
		tasks, err = h.Store.TasksInRange(c.Request().Context(), userIDFrom(c), start, end)
		return err
	})
	if err != nil {
		return h.fail(c, "storage", err)
	}
	if tasks == nil {
		tasks = []domain.Task{}
	}
	metricsFrom(c).SetItems(len(tasks))
	return respond(c, http.StatusOK, tasks)
}

func (h *handlers) createTask(c echo.Context) error {
	ctx := c.Request().Context()
	userID := userIDFrom(c)

	var req domain.NewTask
	if err := decodeBody(c, &req, jsonBodyMaxSize); err != nil {
		return h.fail(c, "decode", err)
	}
	if err := req.Validate(); err != nil {
		return h.fail(c, "validation", err)
	}

	key := c.Request().Header.Get(headerIdempotencyKey)
	if len(key) > idempotencyKeyLimit {
		return h.fail(c, "validation", &domain.ValidationError{Field: headerIdempotencyKey, Reason: "too long"})
	}
	claimed := false
	if key != "" && h.Idempotency != nil {
		replay, fresh, err := h.Idempotency.Begin(ctx, userID, key)
		switch {
		case err != nil:
			// fall through without replay protection
			h.Logger.WithError(err).Warn("idempotency lookup failed")
		case replay != nil:
			return c.JSONBlob(replay.Status, replay.Body)
		case !fresh:
			metricsFrom(c).SetErrorStage("in_progress")
			return c.JSON(http.StatusConflict, errorResponse{Error: "request with this idempotency key is in progress"})
		default:
			claimed = true
		}
	}

	var task domain.Task
	err := timed(c, func() (err error) {
		task, err = h.Store.CreateTask(ctx, userID, req)
		return err
	})
	if err != nil {
		if claimed {
			h.abort(ctx, userID, key)
		}
		return h.fail(c, "storage", err)
	}

	h.publish(userID, domain.EntityTask, domain.TaskCreated, strconv.FormatInt(task.ID, 10), weekIDsOf(task.Date))

	body, err := sonic.ConfigStd.Marshal(task)
	if err != nil {
		return h.fail(c, "encode_response", err)
	}
	if claimed {
		if err := h.Idempotency.Complete(ctx, userID, key, StoredResponse{Status: http.StatusCreated, Body: body}); err != nil {
			h.Logger.WithError(err).Warn("idempotency store failed")
		}
	}
	metricsFrom(c).SetItems(1)
	return c.JSONBlob(http.StatusCreated, body)
}

func (h *handlers) abort(ctx context.Context, userID, key string) {
	if err := h.Idempotency.Abort(ctx, userID, key); err != nil {
		h.Logger.WithError(err).Errorf("idempotency rollback failed, key: %s, user: %s", key, userID)
	}
}

func taskID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, &domain.ValidationError{Field: "id", Reason: "must be a positive integer"}
	}
	return id, nil
}

func (h *handlers) updateTask(c echo.Context) error {
	id, err := taskID(c)
	if err != nil {
		return h.fail(c, "validation", err)
	}
	var patch domain.TaskPatch
	if err := decodeBody(c, &patch, jsonBodyMaxSize); err != nil {
		return h.fail(c, "decode", err)
	}
	if err := patch.Validate(); err != nil {
		return h.fail(c, "validation", err)
	}

	userID := userIDFrom(c)
	var ch storage.TaskChange
	err = timed(c, func() (err error) {
		ch, err = h.Store.UpdateTask(c.Request().Context(), userID, id, patch)
		return err
	})
	if err != nil {
		return h.fail(c, "storage", err)
	}
	h.publish(userID, domain.EntityTask, domain.TaskUpdated, strconv.FormatInt(id, 10), weekIDsOf(ch.Before.Date, ch.After.Date))
	return respond(c, http.StatusOK, ch.After)
}

func (h *handlers) deleteTask(c echo.Context) error {
	id, err := taskID(c)
	if err != nil {
		return h.fail(c, "validation", err)
	}
	userID := userIDFrom(c)
	var removed domain.Task
	err = timed(c, func() (err error) {
		removed, err = h.Store.DeleteTask(c.Request().Context(), userID, id)
		return err
	})
	if err != nil {
		return h.fail(c, "storage", err)
	}
	h.publish(userID, domain.EntityTask, domain.TaskDeleted, strconv.FormatInt(id, 10), weekIDsOf(removed.Date))
	return c.NoContent(http.StatusNoContent)
}
