package models

// StudentModel is one tracked student.
type StudentModel struct {
	Base      `bson:",inline"`
	UserID    string `json:"user_id,omitempty" bson:"user_id,omitempty"` // identity-system id; opaque, absent when unlinked
	Name      string `json:"name"       bson:"name"`
	Email     string `json:"email,omitempty" bson:"email,omitempty"`
	Grade     string `json:"grade,omitempty" bson:"grade,omitempty"`
	TeacherID string `json:"teacher_id" bson:"teacher_id"`
	Archived  bool   `json:"archived"   bson:"archived"`
}

func (StudentModel) Collection() string { return "students" }
