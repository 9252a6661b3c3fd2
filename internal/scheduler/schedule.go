package scheduler

import "time"

// Schedule yields the next fire time strictly after base.
type Schedule interface {
	Next(base time.Time) time.Time
}

// Every fires at a fixed interval.
type Every time.Duration

func (e Every) Next(base time.Time) time.Time { return base.Add(time.Duration(e)) }

// Daily fires once a day at a wall-clock time in Loc.
type Daily struct {
	Hour   int
	Minute int
	Loc    *time.Location
}

func (d Daily) Next(base time.Time) time.Time {
	loc := d.Loc
	if loc == nil {
		loc = time.Local
	}
	b := base.In(loc)
	next := time.Date(b.Year(), b.Month(), b.Day(), d.Hour, d.Minute, 0, 0, loc)
	if !next.After(b) {
		next = time.Date(b.Year(), b.Month(), b.Day()+1, d.Hour, d.Minute, 0, 0, loc)
	}
	return next
}
