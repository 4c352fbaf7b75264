package progress

import "encoding/json"

type WorkoutEntry struct {
	ID        string `json:"_id"`
	Completed bool   `json:"completed"`

	Extra map[string]json.RawMessage `json:"-"`
}

type workoutEntryAlias WorkoutEntry

func (e *WorkoutEntry) UnmarshalJSON(data []byte) error {
	var a workoutEntryAlias
	if err := unmarshalWithExtra(data, &a, &a.Extra, "_id", "completed"); err != nil {
		return err
	}
	*e = WorkoutEntry(a)
	return nil
}

func (e WorkoutEntry) MarshalJSON() ([]byte, error) {
	return marshalWithExtra(workoutEntryAlias(e), e.Extra)
}

// Program is the weekly workout schedule of a user.
type Program [][]WorkoutEntry

// MarkCompleted sets completed on every entry with the given id, in every
// week, and returns how many entries matched. Entries are never un-completed.
func (p Program) MarkCompleted(id string) int {
	matched := 0
	for w := range p {
		for i := range p[w] {
			if p[w][i].ID == id {
				p[w][i].Completed = true
				matched++
			}
		}
	}
	return matched
}

func (p Program) Clone() Program {
	if p == nil {
		return nil
	}
	c := make(Program, len(p))
	for w, week := range p {
		c[w] = make([]WorkoutEntry, len(week))
		for i, entry := range week {
			entry.Extra = cloneExtra(entry.Extra)
			c[w][i] = entry
		}
	}
	return c
}
