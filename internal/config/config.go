package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gradecard/internal/logger"
)

type Config struct {
	// OCR Configuration
	OCREngine        string   // tesseract or vision
	SubjectLanguages []string // language packs for subject rows
	PageLanguages    []string // language packs for metadata and grade reads

	// Rendering Configuration
	CalibrationDPI int
	ExtractionDPI  int
	RenderFormat   string // png, jpeg, tiff
	PopplerPath    string // directory holding pdftoppm, empty means $PATH

	// Layout and batching
	LayoutFile string
	BatchSize  int

	// Google Sheets Configuration
	GoogleSheetURL       string
	GoogleSheetWorksheet string

	// Logging Configuration
	LogLevel      string
	LogFormat     string
	LogTimeFormat string
	LogOutput     string
}

func Load() (*Config, error) {
	config := &Config{
		OCREngine:            strings.ToLower(getEnv("OCR_ENGINE", "tesseract")),
		SubjectLanguages:     getEnvList("OCR_SUBJECT_LANGUAGES", "por"),
		PageLanguages:        getEnvList("OCR_PAGE_LANGUAGES", "por,eng"),
		CalibrationDPI:       getEnvInt("CALIBRATION_DPI", 500),
		ExtractionDPI:        getEnvInt("EXTRACTION_DPI", 400),
		RenderFormat:         strings.ToLower(getEnv("RENDER_FORMAT", "png")),
		PopplerPath:          getEnv("POPPLER_PATH", ""),
		LayoutFile:           getEnv("LAYOUT_FILE", ""),
		BatchSize:            getEnvInt("BATCH_SIZE", 3),
		GoogleSheetURL:       getEnv("GOOGLE_SHEET_URL", ""),
		GoogleSheetWorksheet: getEnv("GOOGLE_SHEET_WORKSHEET", "Boletins"),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		LogFormat:            getEnv("LOG_FORMAT", "console"),
		LogTimeFormat:        getEnv("LOG_TIME_FORMAT", "2006-01-02T15:04:05Z07:00"),
		LogOutput:            getEnv("LOG_OUTPUT", "stderr"),
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Default returns the configuration Load produces with an empty environment.
func Default() *Config {
	return &Config{
		OCREngine:            "tesseract",
		SubjectLanguages:     []string{"por"},
		PageLanguages:        []string{"por", "eng"},
		CalibrationDPI:       500,
		ExtractionDPI:        400,
		RenderFormat:         "png",
		BatchSize:            3,
		GoogleSheetWorksheet: "Boletins",
		LogLevel:             "info",
		LogFormat:            "console",
		LogTimeFormat:        "2006-01-02T15:04:05Z07:00",
		LogOutput:            "stderr",
	}
}

func (c *Config) validate() error {
	switch c.OCREngine {
	case "tesseract", "vision":
	default:
		return fmt.Errorf("OCR_ENGINE must be tesseract or vision, got %q", c.OCREngine)
	}
	switch c.RenderFormat {
	case "png", "jpeg", "tiff":
	default:
		return fmt.Errorf("RENDER_FORMAT must be png, jpeg or tiff, got %q", c.RenderFormat)
	}
	if c.CalibrationDPI <= 0 {
		return fmt.Errorf("CALIBRATION_DPI must be positive")
	}
	if c.ExtractionDPI <= 0 {
		return fmt.Errorf("EXTRACTION_DPI must be positive")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("BATCH_SIZE must be positive")
	}
	if len(c.SubjectLanguages) == 0 || len(c.PageLanguages) == 0 {
		return fmt.Errorf("OCR language lists must not be empty")
	}
	return nil
}

// GetLoggerConfig returns a logger configuration from the main config
func (c *Config) GetLoggerConfig() logger.LogConfig {
	return logger.LogConfig{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		TimeFormat: c.LogTimeFormat,
		Output:     c.LogOutput,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns -1 for unparsable values so validate rejects them.
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return -1
	}
	return n
}

func getEnvList(key, defaultValue string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, defaultValue), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
