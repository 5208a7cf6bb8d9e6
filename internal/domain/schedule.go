package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Schedule is either OneTime or Recurring. Code switching over it must
// handle both and fail on anything else.
type Schedule interface {
	isSchedule()
	String() string
}

// OneTime fires once at At.
type OneTime struct {
	At time.Time
}

// Recurring fires on every activation of a six-field cron expression.
type Recurring struct {
	Expr string
}

func (OneTime) isSchedule()   {}
func (Recurring) isSchedule() {}

func (s OneTime) String() string   { return "once at " + s.At.Format("2006-01-02 15:04") }
func (s Recurring) String() string { return "cron " + s.Expr }

const (
	scheduleTypeOneTime = "one_time"
	scheduleTypeCron    = "cron"
)

type scheduleJSON struct {
	Type string     `json:"type"`
	At   *time.Time `json:"at,omitempty"`
	Expr string     `json:"expr,omitempty"`
}

func marshalSchedule(s Schedule) (scheduleJSON, error) {
	switch v := s.(type) {
	case OneTime:
		at := v.At
		return scheduleJSON{Type: scheduleTypeOneTime, At: &at}, nil
	case Recurring:
		return scheduleJSON{Type: scheduleTypeCron, Expr: v.Expr}, nil
	default:
		return scheduleJSON{}, fmt.Errorf("%w: %T", ErrUnknownSchedule, s)
	}
}

func (j scheduleJSON) schedule() (Schedule, error) {
	switch j.Type {
	case scheduleTypeOneTime:
		if j.At == nil {
			return nil, fmt.Errorf("one_time schedule without \"at\"")
		}
		return OneTime{At: *j.At}, nil
	case scheduleTypeCron:
		if j.Expr == "" {
			return nil, fmt.Errorf("cron schedule without \"expr\"")
		}
		return Recurring{Expr: j.Expr}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSchedule, j.Type)
	}
}

// MarshalSchedule renders s in its stored JSON form.
func MarshalSchedule(s Schedule) ([]byte, error) {
	j, err := marshalSchedule(s)
	if err != nil {
		return nil, err
	}
	return json.Marshal(j)
}
