package cmd

import (
	"errors"
	"testing"

	"gradecard/pkg/models"
)

func TestCalibrationPage(t *testing.T) {
	tests := []struct {
		name    string
		index   int
		pages   int
		want    int
		wantErr bool
	}{
		{"first page", 0, 3, 1, false},
		{"last page", 2, 3, 3, false},
		{"one past the end", 3, 3, 0, true},
		{"negative", -1, 3, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := calibrationPage(tt.index, tt.pages)
			if tt.wantErr {
				if !errors.Is(err, models.ErrInput) {
					t.Fatalf("calibrationPage(%d, %d) error = %v, want ErrInput", tt.index, tt.pages, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("calibrationPage(%d, %d) error = %v", tt.index, tt.pages, err)
			}
			if got != tt.want {
				t.Errorf("calibrationPage(%d, %d) = %d, want %d", tt.index, tt.pages, got, tt.want)
			}
		})
	}
}
