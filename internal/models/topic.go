package models

import "time"

// TopicState tracks a student's progress through one curriculum topic.
type TopicState string

const (
	TopicNotStarted TopicState = "not_started"
	TopicInProgress TopicState = "in_progress"
	TopicCompleted  TopicState = "completed"
)

// Valid reports whether s is a known topic state.
func (s TopicState) Valid() bool {
	switch s {
	case TopicNotStarted, TopicInProgress, TopicCompleted:
		return true
	}
	return false
}

// TopicModel is one (student, topic) progress record.
type TopicModel struct {
	Base        `bson:",inline"`
	StudentID   string     `json:"student_id"   bson:"student_id"`
	Subject     string     `json:"subject"      bson:"subject"`
	Name        string     `json:"name"         bson:"name"`
	State       TopicState `json:"state"        bson:"state"`
	CompletedAt *time.Time `json:"completed_at,omitempty" bson:"completed_at,omitempty"`
}

func (TopicModel) Collection() string { return "topics" }
