package catalog

import "time"

// Subject codes form a fixed set; ClassOffering.SubjectCode must be one of them.
const (
	SubjectMath          = "math"
	SubjectScience       = "science"
	SubjectEnglish       = "english"
	SubjectSocialStudies = "social_studies"
	SubjectWorldLanguage = "world_language"
	SubjectArts          = "arts"
	SubjectElective      = "elective"
)

var subjectNames = map[string]string{
	SubjectMath:          "Math",
	SubjectScience:       "Science",
	SubjectEnglish:       "English",
	SubjectSocialStudies: "Social Studies",
	SubjectWorldLanguage: "World Language",
	SubjectArts:          "Arts",
	SubjectElective:      "Elective",
}

type Subject struct {
	Code      string    `gorm:"column:code;primaryKey" json:"code"`
	Name      string    `gorm:"column:name;not null" json:"name"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

func (Subject) TableName() string { return "subject" }

// Subjects returns the fixed subject set in a stable order.
func Subjects() []Subject {
	codes := []string{SubjectMath, SubjectScience, SubjectEnglish, SubjectSocialStudies, SubjectWorldLanguage, SubjectArts, SubjectElective}
	out := make([]Subject, 0, len(codes))
	for _, c := range codes {
		out = append(out, Subject{Code: c, Name: subjectNames[c]})
	}
	return out
}

func IsSubject(code string) bool {
	_, ok := subjectNames[code]
	return ok
}

func SubjectName(code string) string {
	return subjectNames[code]
}
