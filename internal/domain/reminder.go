package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/google/uuid"
)

// ShortIDLen is how many leading characters of an id are shown to users.
const ShortIDLen = 8

// MaxTitleLen bounds reminder titles.
const MaxTitleLen = 256

// Status is derived from the completed and paused flags.
type Status int

const (
	StatusActive Status = iota
	StatusPaused
	StatusCompleted
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusPaused:
		return "paused"
	case StatusCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// Reminder is the unit of scheduling.
type Reminder struct {
	ID          uuid.UUID
	Title       string
	Description *string
	Schedule    Schedule
	CreatedAt   time.Time
	NextTrigger *time.Time
	Completed   bool
	Paused      bool
	Tags        Tags
}

// ShortID returns the display prefix of id.
func ShortID(id uuid.UUID) string {
	return id.String()[:ShortIDLen]
}

// NewOneTime creates an active reminder firing once at at.
func NewOneTime(title string, description *string, at time.Time, tags []string, now time.Time) (Reminder, error) {
	r := Reminder{
		ID:          uuid.New(),
		Title:       title,
		Description: description,
		Schedule:    OneTime{At: at},
		CreatedAt:   now,
		NextTrigger: &at,
		Tags:        NewTags(tags...),
	}
	if err := r.Validate(); err != nil {
		return Reminder{}, err
	}
	return r, nil
}

// NewRecurring creates an active reminder on a cron rule; the first trigger
// is the rule's next activation after now.
func NewRecurring(title string, description *string, expr string, tags []string, now time.Time) (Reminder, error) {
	next, err := NextOccurrence(expr, now)
	if err != nil {
		return Reminder{}, fmt.Errorf("%w: cron %q: %v", ErrInvalidInput, expr, err)
	}
	r := Reminder{
		ID:          uuid.New(),
		Title:       title,
		Description: description,
		Schedule:    Recurring{Expr: expr},
		CreatedAt:   now,
		NextTrigger: &next,
		Tags:        NewTags(tags...),
	}
	if err := r.Validate(); err != nil {
		return Reminder{}, err
	}
	return r, nil
}

func (r Reminder) Validate() error {
	err := validation.ValidateStruct(&r,
		validation.Field(&r.ID, validation.By(notNilUUID)),
		validation.Field(&r.Title, validation.Required, validation.Length(1, MaxTitleLen)),
		validation.Field(&r.Schedule, validation.Required),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}

func notNilUUID(v interface{}) error {
	if id, ok := v.(uuid.UUID); ok && id == uuid.Nil {
		return errors.New("must not be nil")
	}
	return nil
}

// Status reports the lifecycle state; completed wins over paused.
func (r *Reminder) Status() Status {
	switch {
	case r.Completed:
		return StatusCompleted
	case r.Paused:
		return StatusPaused
	default:
		return StatusActive
	}
}

// IsDue reports whether the reminder should fire at now.
func (r *Reminder) IsDue(now time.Time) bool {
	if r.Completed || r.Paused || r.NextTrigger == nil {
		return false
	}
	return !now.Before(*r.NextTrigger)
}

// CalculateNextTrigger advances the reminder after it fired at now. A one-time
// reminder becomes completed. A recurring reminder moves to the next
// activation after now; when the rule no longer parses NextTrigger is cleared
// and a *ScheduleError is returned.
func (r *Reminder) CalculateNextTrigger(now time.Time) error {
	switch s := r.Schedule.(type) {
	case OneTime:
		r.Completed = true
		r.NextTrigger = nil
		return nil
	case Recurring:
		next, err := NextOccurrence(s.Expr, now)
		if err != nil {
			r.NextTrigger = nil
			return &ScheduleError{ID: r.ID, Expr: s.Expr, Err: err}
		}
		r.NextTrigger = &next
		return nil
	default:
		return fmt.Errorf("%w: %T", ErrUnknownSchedule, r.Schedule)
	}
}

// Pause suppresses due evaluation. NextTrigger is kept.
func (r *Reminder) Pause() {
	r.Paused = true
}

// Resume clears the pause. Recurring reminders skip the occurrences missed
// while paused; one-time reminders keep their instant.
func (r *Reminder) Resume(now time.Time) error {
	r.Paused = false
	switch s := r.Schedule.(type) {
	case OneTime:
		return nil
	case Recurring:
		next, err := NextOccurrence(s.Expr, now)
		if err != nil {
			r.NextTrigger = nil
			return &ScheduleError{ID: r.ID, Expr: s.Expr, Err: err}
		}
		r.NextTrigger = &next
		return nil
	default:
		return fmt.Errorf("%w: %T", ErrUnknownSchedule, r.Schedule)
	}
}

// Reschedule replaces the schedule and reactivates a completed reminder.
func (r *Reminder) Reschedule(s Schedule, now time.Time) error {
	switch v := s.(type) {
	case OneTime:
		at := v.At
		r.NextTrigger = &at
	case Recurring:
		next, err := NextOccurrence(v.Expr, now)
		if err != nil {
			return fmt.Errorf("%w: cron %q: %v", ErrInvalidInput, v.Expr, err)
		}
		r.NextTrigger = &next
	default:
		return fmt.Errorf("%w: %T", ErrUnknownSchedule, s)
	}
	r.Schedule = s
	r.Completed = false
	return nil
}

func (r *Reminder) AddTag(label string) {
	if r.Tags == nil {
		r.Tags = NewTags()
	}
	r.Tags.Add(label)
}

type reminderJSON struct {
	ID          uuid.UUID    `json:"id"`
	Title       string       `json:"title"`
	Description *string      `json:"description"`
	Schedule    scheduleJSON `json:"schedule"`
	CreatedAt   time.Time    `json:"created_at"`
	NextTrigger *time.Time   `json:"next_trigger"`
	Completed   bool         `json:"completed"`
	Paused      bool         `json:"paused"`
	Tags        Tags         `json:"tags"`
}

func (r Reminder) MarshalJSON() ([]byte, error) {
	s, err := marshalSchedule(r.Schedule)
	if err != nil {
		return nil, err
	}
	tags := r.Tags
	if tags == nil {
		tags = NewTags()
	}
	return json.Marshal(reminderJSON{
		ID:          r.ID,
		Title:       r.Title,
		Description: r.Description,
		Schedule:    s,
		CreatedAt:   r.CreatedAt,
		NextTrigger: r.NextTrigger,
		Completed:   r.Completed,
		Paused:      r.Paused,
		Tags:        tags,
	})
}

func (r *Reminder) UnmarshalJSON(b []byte) error {
	var j reminderJSON
	if err := json.Unmarshal(b, &j); err != nil {
		return err
	}
	s, err := j.Schedule.schedule()
	if err != nil {
		return fmt.Errorf("reminder %s: %w", j.ID, err)
	}
	if j.Tags == nil {
		j.Tags = NewTags()
	}
	*r = Reminder{
		ID:          j.ID,
		Title:       j.Title,
		Description: j.Description,
		Schedule:    s,
		CreatedAt:   j.CreatedAt,
		NextTrigger: j.NextTrigger,
		Completed:   j.Completed,
		Paused:      j.Paused,
		Tags:        j.Tags,
	}
	return nil
}
