package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/snipd/internal/entry"
	"github.com/fyrsmithlabs/snipd/internal/store"
)

// CaptureRequest is the request body for POST /api/v1/entries.
type CaptureRequest struct {
	Kind    string `json:"kind"`
	Content string `json:"content"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleCapture(c echo.Context) error {
	var req CaptureRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	e := &entry.Entry{
		ID:        uuid.NewString(),
		Kind:      entry.Kind(req.Kind),
		Content:   req.Content,
		CreatedAt: time.Now().UTC(),
		Status:    entry.StatusUnprocessed,
		Metadata:  &entry.Metadata{},
	}
	if err := e.Validate(); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := s.repo.Insert(c.Request().Context(), e); err != nil {
		s.logger.Error("capture failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to store entry")
	}
	s.logger.Info("entry captured",
		zap.String("entry_id", e.ID), zap.String("kind", string(e.Kind)))
	if s.nudge != nil {
		s.nudge.Nudge()
	}
	return c.JSON(http.StatusCreated, e)
}

func (s *Server) handleList(c echo.Context) error {
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}
		limit = n
	}
	entries, err := s.repo.List(c.Request().Context(), limit)
	if err != nil {
		s.logger.Error("list failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list entries")
	}
	if entries == nil {
		entries = []*entry.Entry{}
	}
	return c.JSON(http.StatusOK, entries)
}

func (s *Server) handleGet(c echo.Context) error {
	e, err := s.repo.GetEntry(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "entry not found")
		}
		s.logger.Error("get failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load entry")
	}
	return c.JSON(http.StatusOK, e)
}

func (s *Server) handleReverse(c echo.Context) error {
	ctx := c.Request().Context()
	entryID := c.Param("id")
	actionID := c.Param("actionID")

	md, err := s.state.Metadata(ctx, entryID)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "entry not found")
	}
	act := md.Action(actionID)
	if act == nil {
		return echo.NewHTTPError(http.StatusNotFound, "action not found")
	}
	if act.Status != entry.ActionExecuted {
		return echo.NewHTTPError(http.StatusConflict,
			fmt.Sprintf("action is %s, only executed actions can be reversed", act.Status))
	}
	if err := s.reverser.Reverse(ctx, entryID, actionID); err != nil {
		s.logger.Error("reverse failed",
			zap.String("entry_id", entryID), zap.String("action_id", actionID), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to reverse action")
	}
	updated, err := s.state.Metadata(ctx, entryID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load entry")
	}
	return c.JSON(http.StatusOK, updated)
}

// handleEvents streams metadata snapshots for one entry as SSE. The
// current state is sent immediately, then every subsequent write.
func (s *Server) handleEvents(c echo.Context) error {
	ctx := c.Request().Context()
	entryID := c.Param("id")

	if _, err := s.repo.GetEntry(ctx, entryID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "entry not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load entry")
	}

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.WriteHeader(http.StatusOK)
	res.Flush()

	snaps, cancel, err := s.state.Observe(ctx, entryID)
	if err != nil {
		return nil
	}
	defer cancel()

	// Initial snapshot so clients do not wait for the next write.
	if md, err := s.state.Metadata(ctx, entryID); err == nil {
		if err := writeEvent(res, md); err != nil {
			return nil
		}
	}

	keepalive := time.NewTicker(15 * time.Second)
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-keepalive.C:
			if _, err := res.Write([]byte(":keepalive\n\n")); err != nil {
				return nil
			}
			res.Flush()
		case snap, ok := <-snaps:
			if !ok {
				return nil
			}
			if err := writeEvent(res, snap.Metadata); err != nil {
				return nil
			}
		}
	}
}

func writeEvent(res *echo.Response, md *entry.Metadata) error {
	raw, err := json.Marshal(md)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(res, "data: %s\n\n", raw); err != nil {
		return err
	}
	res.Flush()
	return nil
}
