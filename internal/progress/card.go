package progress

import "encoding/json"

// WorkoutMetadata describes the exercise session behind a card.
type WorkoutMetadata struct {
	Title     string  `json:"title"`
	Type      string  `json:"type,omitempty"`
	Equipment string  `json:"equipment,omitempty"`
	Level     string  `json:"level,omitempty"`
	Duration  float64 `json:"duration,omitempty"`
	Calories  float64 `json:"calories,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

type workoutMetadataAlias WorkoutMetadata

func (m *WorkoutMetadata) UnmarshalJSON(data []byte) error {
	var a workoutMetadataAlias
	if err := unmarshalWithExtra(data, &a, &a.Extra,
		"title", "type", "equipment", "level", "duration", "calories",
	); err != nil {
		return err
	}
	*m = WorkoutMetadata(a)
	return nil
}

func (m WorkoutMetadata) MarshalJSON() ([]byte, error) {
	return marshalWithExtra(workoutMetadataAlias(m), m.Extra)
}

// Card is one schedulable workout session. Its ID matches the _id of the
// program entry for the same workout.
type Card struct {
	ID        string          `json:"id"`
	Data      WorkoutMetadata `json:"data"`
	Completed bool            `json:"completed"`
}

func (c Card) clone() Card {
	c.Data.Extra = cloneExtra(c.Data.Extra)
	return c
}

// CardWeeks groups cards by program week, in order.
type CardWeeks [][]Card
