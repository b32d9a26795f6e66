package extraction_test

import (
	"fmt"

	"gradecard/internal/extraction"
	"gradecard/pkg/models"
)

func ExampleParseGrade() {
	for _, text := range []string{"7,5", "Nota: 10", "--"} {
		fmt.Println(extraction.ParseGrade(text).Or(models.NotAvailable))
	}
	// Output:
	// 7.5
	// 10
	// N/A
}
