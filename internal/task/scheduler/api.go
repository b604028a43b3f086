package scheduler

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"
)

// AddDaily runs job every day at hh:mm in the scheduler time zone.
func (s *Service) AddDaily(name string, hour, minute int, timeout time.Duration, job Job) error {
	if err := checkClock(hour, minute); err != nil {
		return err
	}
	return s.AddCron(name, fmt.Sprintf("%d %d * * *", minute, hour), timeout, job)
}

// AddWeekly runs job every week on day at hh:mm in the scheduler time zone.
func (s *Service) AddWeekly(name string, day time.Weekday, hour, minute int, timeout time.Duration, job Job) error {
	if err := checkClock(hour, minute); err != nil {
		return err
	}
	return s.AddCron(name, fmt.Sprintf("%d %d * * %d", minute, hour, int(day)), timeout, job)
}

// AddCron registers job under name, replacing any schedule with the same name.
func (s *Service) AddCron(name, spec string, timeout time.Duration, job Job) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("name required")
	}
	if job == nil {
		return errors.New("job required")
	}
	if _, err := s.parser.Parse(spec); err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(name)
	s.defs = append(s.defs, scheduleDef{name: name, spec: spec, timeout: timeout, job: job, running: new(atomic.Bool)})
	if s.c == nil {
		// Registered when Start runs.
		return nil
	}
	return s.addCronLocked(&s.defs[len(s.defs)-1])
}

func (s *Service) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(name)
}

func (s *Service) removeLocked(name string) bool {
	n := 0
	removed := false
	for _, d := range s.defs {
		if d.name == name {
			if s.c != nil && d.entryID != 0 {
				s.c.Remove(d.entryID)
			}
			removed = true
			continue
		}
		s.defs[n] = d
		n++
	}
	s.defs = s.defs[:n]
	return removed
}

// Next returns the next trigger time of name. Before Start it is computed from the spec.
func (s *Service) Next(name string) (time.Time, bool) {
	for _, it := range s.Schedules() {
		if it.Name == name {
			return it.Next, !it.Next.IsZero()
		}
	}
	return time.Time{}, false
}

func (s *Service) Schedules() []ScheduleInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	out := make([]ScheduleInfo, 0, len(s.defs))
	for _, d := range s.defs {
		it := ScheduleInfo{Name: d.name, Spec: d.spec, Timeout: d.timeout, Running: d.running.Load(), Next: s.nextLocked(d, now)}
		if s.c != nil && d.entryID != 0 {
			it.Prev = s.c.Entry(d.entryID).Prev
		}
		out = append(out, it)
	}
	return out
}

func checkClock(hour, minute int) error {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return fmt.Errorf("invalid time %02d:%02d", hour, minute)
	}
	return nil
}
