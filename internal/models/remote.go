package models

import "time"

// RemoteProfile mirrors the user identity stored by the backend.
type RemoteProfile struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	DailyGoalMl int        `json:"daily_goal_ml"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
}

// RemoteHydrationLog mirrors an IntakeEvent on the backend.
type RemoteHydrationLog struct {
	ID          string `json:"id"`
	UserID      string `json:"user_id"`
	AmountMl    int    `json:"amount_ml"`
	TimestampMs int64  `json:"timestamp_ms"`
	CalendarDay string `json:"calendar_day"`
}
