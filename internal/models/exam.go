package models

import "time"

// ExamSection holds the raw answer counts for one section of an exam. Score
// derivation from these counts happens outside this service.
type ExamSection struct {
	Name    string `json:"name"    bson:"name"`
	Correct int    `json:"correct" bson:"correct"`
	Wrong   int    `json:"wrong"   bson:"wrong"`
	Blank   int    `json:"blank"   bson:"blank"`
}

// ExamModel is one recorded exam attempt for a student.
type ExamModel struct {
	Base      `bson:",inline"`
	StudentID string        `json:"student_id" bson:"student_id"`
	Name      string        `json:"name"       bson:"name"`
	TakenAt   time.Time     `json:"taken_at"   bson:"taken_at"`
	Sections  []ExamSection `json:"sections"   bson:"sections"`
	Score     *float64      `json:"score,omitempty" bson:"score,omitempty"` // supplied by the scoring collaborator
}

func (ExamModel) Collection() string { return "exams" }
