package server

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/abhisek/mnemo/internal/due"
	"github.com/abhisek/mnemo/internal/review"
	"github.com/abhisek/mnemo/internal/session"
	"github.com/abhisek/mnemo/internal/store"
	"github.com/abhisek/mnemo/internal/validate"
)

const (
	defaultDueLimit   = 20
	maxDueLimit       = 500
	defaultWindowDays = 7
	maxBodyBytes      = 64 << 10
)

var (
	//go:embed review_request.json
	reviewRequestJSON []byte
	//go:embed session_request.json
	sessionRequestJSON []byte

	reviewRequestSchema  = validate.MustCompile("review request", reviewRequestJSON)
	sessionRequestSchema = validate.MustCompile("session request", sessionRequestJSON)
)

// bindJSON reads the body, checks it against schema and decodes it into v.
func bindJSON(c echo.Context, schema *validate.Schema, v any) error {
	raw, err := io.ReadAll(io.LimitReader(c.Request().Body, maxBodyBytes+1))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if len(raw) > maxBodyBytes {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "request body too large")
	}
	if err := schema.ValidateJSON(raw); err != nil {
		return fmt.Errorf("%w: %w", review.ErrValidation, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %w", review.ErrValidation, err)
	}
	return nil
}

// POST /reviews
func (s *Server) postReview(c echo.Context) error {
	var req review.Request
	if err := bindJSON(c, reviewRequestSchema, &req); err != nil {
		return err
	}
	resp, err := s.deps.Reviews.HandleReview(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

type sessionRequest struct {
	StudentID string `json:"studentId"`
}

type sessionResponse struct {
	SessionID string    `json:"sessionId"`
	StudentID string    `json:"studentId"`
	StartedAt time.Time `json:"startedAt"`
}

// POST /sessions
func (s *Server) postSession(c echo.Context) error {
	var req sessionRequest
	if err := bindJSON(c, sessionRequestSchema, &req); err != nil {
		return err
	}
	sess, err := s.deps.Reviews.StartSession(c.Request().Context(), req.StudentID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, sessionResponse{
		SessionID: sess.ID,
		StudentID: sess.StudentID,
		StartedAt: sess.StartedAt,
	})
}

// GET /items/due?studentId=&limit=
func (s *Server) getDue(c echo.Context) error {
	studentID := c.QueryParam("studentId")
	if studentID == "" {
		return fmt.Errorf("%w: studentId is required", review.ErrValidation)
	}
	limit := defaultDueLimit
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxDueLimit {
			return fmt.Errorf("%w: limit must be between 1 and %d", review.ErrValidation, maxDueLimit)
		}
		limit = n
	}

	items, err := due.Collect(s.deps.Due.ListDue(c.Request().Context(), studentID, s.deps.Now(), limit))
	if err != nil {
		return err
	}
	if items == nil {
		items = []due.Item{}
	}
	s.deps.Metrics.DueServed(len(items))
	return c.JSON(http.StatusOK, items)
}

// GET /mastery/:studentId/:unitId
func (s *Server) getMastery(c echo.Context) error {
	st, err := s.deps.Reviews.Mastery(c.Request().Context(), c.Param("studentId"), c.Param("unitId"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, st)
}

// GET /students/:studentId/summary?from=&to=
func (s *Server) getSummary(c echo.Context) error {
	w, err := s.window(c)
	if err != nil {
		return err
	}
	st, err := s.deps.Stats.Summarize(c.Request().Context(), c.Param("studentId"), w)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, st)
}

// GET /students/:studentId/activity?from=&to=
func (s *Server) getActivity(c echo.Context) error {
	w, err := s.window(c)
	if err != nil {
		return err
	}
	rows, err := s.deps.Stats.Daily(c.Request().Context(), c.Param("studentId"), w)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rows)
}

// GET /students/:studentId/cards/:cardId/audit
func (s *Server) getAudit(c echo.Context) error {
	rep, err := s.deps.Reviews.Audit(c.Request().Context(), c.Param("studentId"), c.Param("cardId"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rep)
}

// window parses the inclusive from/to days (YYYY-MM-DD) in the server's
// location. Missing bounds default to the last seven days.
func (s *Server) window(c echo.Context) (session.Window, error) {
	w := session.LastDays(s.deps.Now(), defaultWindowDays, s.deps.Location)
	if v := c.QueryParam("to"); v != "" {
		day, err := time.ParseInLocation(store.DayLayout, v, s.deps.Location)
		if err != nil {
			return w, fmt.Errorf("%w: to %q is not a date", review.ErrValidation, v)
		}
		w.To = day.AddDate(0, 0, 1)
		w.From = w.To.AddDate(0, 0, -defaultWindowDays)
	}
	if v := c.QueryParam("from"); v != "" {
		day, err := time.ParseInLocation(store.DayLayout, v, s.deps.Location)
		if err != nil {
			return w, fmt.Errorf("%w: from %q is not a date", review.ErrValidation, v)
		}
		w.From = day
	}
	return w, nil
}
