package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"aqualog/internal/export"
	"aqualog/internal/models"
	"aqualog/internal/streak"

	"github.com/go-chi/chi/v5"
)

// defaultHistoryDays is the range of GET /history without parameters.
const defaultHistoryDays = 30

// maxHistoryDays bounds a single history request.
const maxHistoryDays = 366

func (s *Server) handleToday(w http.ResponseWriter, r *http.Request) {
	st, err := s.deps.Dashboard.Snapshot(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// AddIntakeRequest is the body of POST /api/v1/intake.
type AddIntakeRequest struct {
	AmountMl    int   `json:"amount_ml"`
	TimestampMs int64 `json:"timestamp_ms,omitempty"` // optional, defaults to now
}

func (s *Server) handleAddIntake(w http.ResponseWriter, r *http.Request) {
	var req AddIntakeRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if req.AmountMl <= 0 {
		writeError(w, http.StatusBadRequest, "amount_ml must be positive")
		return
	}

	ts := s.deps.Intake.Now()
	if req.TimestampMs > 0 {
		ts = time.UnixMilli(req.TimestampMs)
	}

	id, err := s.deps.Intake.Insert(r.Context(), req.AmountMl, ts)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":           id,
		"amount_ml":    req.AmountMl,
		"timestamp_ms": ts.UnixMilli(),
		"calendar_day": models.DayOf(ts, s.deps.Intake.Location()),
	})
}

func (s *Server) handleDeleteIntake(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid intake id")
		return
	}
	if err := s.deps.Intake.DeleteByID(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUndo(w http.ResponseWriter, r *http.Request) {
	undone, err := s.deps.Intake.UndoLastEntry(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"undone": undone})
}

func (s *Server) handleResetDay(w http.ResponseWriter, r *http.Request) {
	day := chi.URLParam(r, "day")
	if _, err := models.ParseDay(day, s.deps.Intake.Location()); err != nil {
		writeError(w, http.StatusBadRequest, "day must be YYYY-MM-DD")
		return
	}
	removed, err := s.deps.Intake.DeleteAllForDay(r.Context(), day)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"day": day, "removed": removed})
}

// HistoryDay is one row of GET /api/v1/history.
type HistoryDay struct {
	Day     string `json:"day"`
	TotalMl int    `json:"total_ml"`
	GoalMet bool   `json:"goal_met"`
}

// HistoryResponse is the body of GET /api/v1/history.
type HistoryResponse struct {
	From   string       `json:"from"`
	To     string       `json:"to"`
	GoalMl int          `json:"goal_ml"`
	Days   []HistoryDay `json:"days"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	from, to, err := s.historyRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	goal, err := s.deps.Settings.DailyGoal(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	totals, err := s.deps.Intake.DailyTotals(r.Context(), from, to)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	resp := HistoryResponse{From: from, To: to, GoalMl: goal, Days: make([]HistoryDay, 0, len(totals))}
	for _, t := range totals {
		resp.Days = append(resp.Days, HistoryDay{Day: t.Day, TotalMl: t.TotalMl, GoalMet: t.TotalMl >= goal})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	from, to, err := s.historyRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	goal, err := s.deps.Settings.DailyGoal(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	totals, err := s.deps.Intake.DailyTotals(r.Context(), from, to)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="aqualog_%s_%s.xlsx"`, from, to))
	if err := export.DailyTotalsXLSX(w, totals, goal); err != nil {
		s.logger.Error().Err(err).Msg("history export failed")
	}
}

// StreakResponse is the body of GET /api/v1/streak.
type StreakResponse struct {
	Current int    `json:"current"`
	Longest int    `json:"longest"`
	GoalMl  int    `json:"goal_ml"`
	Today   string `json:"today"`
}

func (s *Server) handleStreak(w http.ResponseWriter, r *http.Request) {
	goal, err := s.deps.Settings.DailyGoal(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	met, err := s.deps.Intake.DaysMeetingGoal(r.Context(), goal)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	days := streak.FromTotals(met)
	today := s.deps.Intake.Today()
	writeJSON(w, http.StatusOK, StreakResponse{
		Current: streak.Calculate(days, today),
		Longest: streak.Longest(days),
		GoalMl:  goal,
		Today:   today,
	})
}

// historyRange reads ?from=&to=, defaulting to the last defaultHistoryDays
// days ending today.
func (s *Server) historyRange(r *http.Request) (from, to string, err error) {
	loc := s.deps.Intake.Location()
	to = r.URL.Query().Get("to")
	if to == "" {
		to = s.deps.Intake.Today()
	}
	end, err := models.ParseDay(to, loc)
	if err != nil {
		return "", "", errors.New("to must be YYYY-MM-DD")
	}

	from = r.URL.Query().Get("from")
	if from == "" {
		if from, err = models.AddDays(to, -(defaultHistoryDays - 1)); err != nil {
			return "", "", err
		}
	}
	start, err := models.ParseDay(from, loc)
	if err != nil {
		return "", "", errors.New("from must be YYYY-MM-DD")
	}

	if start.After(end) {
		return "", "", errors.New("from must be before or equal to to")
	}
	days := int(end.Sub(start).Round(24*time.Hour)/(24*time.Hour)) + 1
	if days > maxHistoryDays {
		return "", "", fmt.Errorf("range exceeds %d days", maxHistoryDays)
	}
	return from, to, nil
}
