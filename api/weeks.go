package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"weekplan/domain"
)

// weekParam returns the validated :weekId path parameter.
func weekParam(c echo.Context) (string, error) {
	id := c.Param("weekId")
	if err := domain.ValidateWeekID(id); err != nil {
		return "", err
	}
	return id, nil
}

func (h *handlers) getNote(c echo.Context) error {
	weekID, err := weekParam(c)
	if err != nil {
		return h.fail(c, "validation", err)
	}
	var note *domain.Note
	err = timed(c, func() (err error) {
		note, err = h.Store.Note(c.Request().Context(), userIDFrom(c), weekID)
		return err
	})
	if err != nil {
		return h.fail(c, "storage", err)
	}
	return respond(c, http.StatusOK, note)
}

func (h *handlers) putNote(c echo.Context) error {
	weekID, err := weekParam(c)
	if err != nil {
		return h.fail(c, "validation", err)
	}
	var req noteRequest
	if err := decodeBody(c, &req, jsonBodyMaxSize); err != nil {
		return h.fail(c, "decode", err)
	}
	userID := userIDFrom(c)
	var note domain.Note
	err = timed(c, func() (err error) {
		note, err = h.Store.UpsertNote(c.Request().Context(), userID, weekID, req.Content)
		return err
	})
	if err != nil {
		return h.fail(c, "storage", err)
	}
	h.publish(userID, domain.EntityNote, domain.NoteUpserted, weekID, []string{weekID})
	return respond(c, http.StatusOK, note)
}

func (h *handlers) getSummary(c echo.Context) error {
	weekID, err := weekParam(c)
	if err != nil {
		return h.fail(c, "validation", err)
	}
	var sum *domain.WeeklySummary
	err = timed(c, func() (err error) {
		sum, err = h.Store.Summary(c.Request().Context(), userIDFrom(c), weekID)
		return err
	})
	if err != nil {
		return h.fail(c, "storage", err)
	}
	return respond(c, http.StatusOK, sum)
}

func (h *handlers) patchSummary(c echo.Context) error {
	weekID, err := weekParam(c)
	if err != nil {
		return h.fail(c, "validation", err)
	}
	var patch domain.SummaryPatch
	if err := decodeBody(c, &patch, jsonBodyMaxSize); err != nil {
		return h.fail(c, "decode", err)
	}
	if err := patch.Validate(); err != nil {
		return h.fail(c, "validation", err)
	}
	userID := userIDFrom(c)
	var sum domain.WeeklySummary
	err = timed(c, func() (err error) {
		sum, err = h.Store.UpsertSummary(c.Request().Context(), userID, weekID, patch)
		return err
	})
	if err != nil {
		return h.fail(c, "storage", err)
	}
	h.publish(userID, domain.EntitySummary, domain.SummaryUpserted, weekID, []string{weekID})
	return respond(c, http.StatusOK, sum)
}

func (h *handlers) getWeekSettings(c echo.Context) error {
	weekID, err := weekParam(c)
	if err != nil {
		return h.fail(c, "validation", err)
	}
	var s *domain.WeekSettings
	err = timed(c, func() (err error) {
		s, err = h.Store.WeekSettings(c.Request().Context(), userIDFrom(c), weekID)
		return err
	})
	if err != nil {
		return h.fail(c, "storage", err)
	}
	return respond(c, http.StatusOK, s)
}

// updateSettings applies patch and publishes typ on success.
func (h *handlers) updateSettings(c echo.Context, weekID, typ string, patch domain.SettingsPatch) (domain.WeekSettings, error) {
	userID := userIDFrom(c)
	var s domain.WeekSettings
	err := timed(c, func() (err error) {
		s, err = h.Store.UpdateWeekSettings(c.Request().Context(), userID, weekID, patch)
		return err
	})
	if err != nil {
		return domain.WeekSettings{}, err
	}
	h.publish(userID, domain.EntitySettings, typ, weekID, []string{weekID})
	return s, nil
}

func (h *handlers) patchLayout(c echo.Context) error {
	weekID, err := weekParam(c)
	if err != nil {
		return h.fail(c, "validation", err)
	}
	var patch domain.LayoutPatch
	if err := decodeBody(c, &patch, jsonBodyMaxSize); err != nil {
		return h.fail(c, "decode", err)
	}
	if err := patch.Validate(); err != nil {
		return h.fail(c, "validation", err)
	}
	s, err := h.updateSettings(c, weekID, domain.SettingsUpdated, domain.SettingsPatch{Layout: patch.Normalize()})
	if err != nil {
		return h.fail(c, "storage", err)
	}
	return respond(c, http.StatusOK, s)
}

func (h *handlers) patchCustomContent(c echo.Context) error {
	weekID, err := weekParam(c)
	if err != nil {
		return h.fail(c, "validation", err)
	}
	var patch domain.CustomContentPatch
	if err := decodeBody(c, &patch, jsonBodyMaxSize); err != nil {
		return h.fail(c, "decode", err)
	}
	if patch.Empty() {
		return h.fail(c, "validation", &domain.ValidationError{Field: "patch", Reason: "no fields to update"})
	}
	s, err := h.updateSettings(c, weekID, domain.SettingsUpdated, domain.SettingsPatch{Content: patch})
	if err != nil {
		return h.fail(c, "storage", err)
	}
	return respond(c, http.StatusOK, s)
}

func (h *handlers) uploadImage(c echo.Context) error {
	if h.Images == nil {
		metricsFrom(c).SetErrorStage("images_disabled")
		return c.JSON(http.StatusServiceUnavailable, errorResponse{Error: "image storage is not configured"})
	}
	weekID, err := weekParam(c)
	if err != nil {
		return h.fail(c, "validation", err)
	}
	// base64 inflates by 4/3; leave room for the data URL prefix and mime type
	limit := int64(h.MaxImageBytes)/3*4 + 4*1024
	var req imageRequest
	if err := decodeBody(c, &req, limit); err != nil {
		return h.fail(c, "decode", err)
	}

	userID := userIDFrom(c)
	var url string
	err = timed(c, func() (err error) {
		url, err = h.Images.Upload(c.Request().Context(), userID, weekID, req.ImageBase64, req.MimeType)
		return err
	})
	if err != nil {
		return h.fail(c, "blob", err)
	}
	patch := domain.SettingsPatch{Content: domain.CustomContentPatch{CustomImageURL: domain.Some(url)}}
	if _, err := h.updateSettings(c, weekID, domain.CustomImageUploaded, patch); err != nil {
		return h.fail(c, "storage", err)
	}
	return respond(c, http.StatusOK, imageResponse{URL: url})
}
