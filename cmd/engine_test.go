package cmd

import (
	"context"
	"errors"
	"testing"

	"gradecard/internal/logger"
	"gradecard/internal/ocr"
)

func TestNewEngineRejectsUnknownName(t *testing.T) {
	engine, release, err := newEngine(context.Background(), "bogus", logger.Nop())
	if !errors.Is(err, ocr.ErrUnknownEngine) {
		t.Fatalf("newEngine() error = %v, want ErrUnknownEngine", err)
	}
	if engine != nil || release != nil {
		t.Error("newEngine() returned an engine for an unknown name")
	}
}
