package calibration

import (
	"fmt"

	"gradecard/pkg/models"
)

// MatchCountMismatch is the warning raised when the subject and grade columns
// produced different counts. Pairing by rank is then unreliable past the first
// dropped or split row.
type MatchCountMismatch struct {
	Subjects int
	Grades   int
}

func (m *MatchCountMismatch) Error() string {
	return fmt.Sprintf("detected %d subjects but %d grades; pairs past the shorter list were dropped", m.Subjects, m.Grades)
}

// MatchResult holds the rank-paired rows and an optional mismatch warning.
type MatchResult struct {
	Pairs    []models.Pair
	Mismatch *MatchCountMismatch
}

// Match pairs subjects and grades by rank, truncated to the shorter list.
// Content is not compared.
func Match(subjects []models.Field, grades []models.GradeBox) MatchResult {
	n := min(len(subjects), len(grades))
	res := MatchResult{Pairs: make([]models.Pair, 0, n)}
	for i := 0; i < n; i++ {
		res.Pairs = append(res.Pairs, models.Pair{Subject: subjects[i], Grade: grades[i]})
	}
	if len(subjects) != len(grades) {
		res.Mismatch = &MatchCountMismatch{Subjects: len(subjects), Grades: len(grades)}
	}
	return res
}
