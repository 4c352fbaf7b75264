package progress

import "encoding/json"

// WeekProgress holds running totals for the current week only.
type WeekProgress struct {
	Minutes           float64 `json:"minutes"`
	WorkoutsCompleted int     `json:"workoutsCompleted"`
	Calories          float64 `json:"calories"`
}

// DateEntry maps a single ISO date (YYYY-MM-DD) to an accumulated value.
type DateEntry map[string]float64

type WeekLedger struct {
	Minutes  []DateEntry `json:"minutes"`
	Calories []DateEntry `json:"calories"`
}

func NewWeekLedger() WeekLedger {
	return WeekLedger{
		Minutes:  []DateEntry{},
		Calories: []DateEntry{},
	}
}

type weekLedgerAlias WeekLedger

// MarshalJSON writes empty sequences as [], also for ledgers decoded from null.
func (w WeekLedger) MarshalJSON() ([]byte, error) {
	if w.Minutes == nil {
		w.Minutes = []DateEntry{}
	}
	if w.Calories == nil {
		w.Calories = []DateEntry{}
	}
	return json.Marshal(weekLedgerAlias(w))
}

// Settings is the account/progress record of a user.
type Settings struct {
	WeekProgress      WeekProgress `json:"weekProgress"`
	CaloriesBurned    float64      `json:"caloriesBurned"`
	CompletedWorkouts int          `json:"completedWorkouts"`
	Progress          []WeekLedger `json:"progress"`

	Extra map[string]json.RawMessage `json:"-"`
}

type settingsAlias Settings

func (s *Settings) UnmarshalJSON(data []byte) error {
	var a settingsAlias
	if err := unmarshalWithExtra(data, &a, &a.Extra,
		"weekProgress", "caloriesBurned", "completedWorkouts", "progress",
	); err != nil {
		return err
	}
	*s = Settings(a)
	return nil
}

func (s Settings) MarshalJSON() ([]byte, error) {
	if s.Progress == nil {
		s.Progress = []WeekLedger{}
	}
	return marshalWithExtra(settingsAlias(s), s.Extra)
}

// StatData describes one completed session.
type StatData struct {
	Time     float64 `json:"time"`
	Calories float64 `json:"calories"`
}

// Identity is the authenticated user reference gating remote sync.
type Identity struct {
	UserID string `json:"userID"`
	Token  string `json:"token,omitempty"`
}
