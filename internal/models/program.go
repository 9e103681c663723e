package models

import "time"

// ProgramEntry is one planned study block inside a weekly program.
type ProgramEntry struct {
	Day         int    `json:"day"          bson:"day"` // 0 = Monday
	Subject     string `json:"subject"      bson:"subject"`
	Topic       string `json:"topic,omitempty" bson:"topic,omitempty"`
	DurationMin int    `json:"duration_min" bson:"duration_min"`
	Done        bool   `json:"done"         bson:"done"`
}

// ProgramModel is one student's study program for one week.
type ProgramModel struct {
	Base      `bson:",inline"`
	StudentID string         `json:"student_id" bson:"student_id"`
	WeekStart time.Time      `json:"week_start" bson:"week_start"`
	Entries   []ProgramEntry `json:"entries"    bson:"entries"`
}

func (ProgramModel) Collection() string { return "programs" }
