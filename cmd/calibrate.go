package cmd

import (
	"bytes"
	"fmt"
	"image/png"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"gradecard/internal/calibration"
	"gradecard/internal/checkpoint"
	"gradecard/internal/layout"
	"gradecard/internal/logger"
	"gradecard/internal/render"
	"gradecard/pkg/models"
)

var calibrateCmd = &cobra.Command{
	Use:   "calibrate [pdf-file]",
	Short: "Build a coordinate template from an exemplar page",
	Long: `Render one page of a report-card PDF, read the subject names and the grades
next to them, and save where each grade sits as a resolution-independent
template for the extract command.

The page should be a clean, fully filled-in card: every subject with a grade
becomes a template entry.`,
	Example: `  # Calibrate on the first page
  gradecard calibrate boletins.pdf -o template.json

  # Use the third page (0-based), wider grade boxes and write an annotated preview
  gradecard calibrate boletins.pdf -p 2 --padding 15 --preview calibration.png`,
	Args: cobra.ExactArgs(1),
	RunE: runCalibrate,
}

func init() {
	rootCmd.AddCommand(calibrateCmd)

	calibrateCmd.Flags().StringP("output", "o", "template.json", "Template output path")
	calibrateCmd.Flags().IntP("page", "p", 0, "0-based index of the page to calibrate on")
	calibrateCmd.Flags().Int("padding", calibration.DefaultPadding, "Pixels added around each detected grade")
	calibrateCmd.Flags().Int("dpi", 0, "Render resolution (default CALIBRATION_DPI)")
	calibrateCmd.Flags().String("preview", "", "Write an annotated PNG of the detected pairs")
}

func runCalibrate(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("calibrate")

	outputPath, _ := cmd.Flags().GetString("output")
	pageIndex, _ := cmd.Flags().GetInt("page")
	padding, _ := cmd.Flags().GetInt("padding")
	dpi, _ := cmd.Flags().GetInt("dpi")
	previewPath, _ := cmd.Flags().GetString("preview")
	pdfPath := args[0]

	l, err := layout.Load(layoutPath(cmd))
	if err != nil {
		return err
	}

	pages, err := render.PageCount(pdfPath)
	if err != nil {
		return err
	}
	pageNum, err := calibrationPage(pageIndex, pages)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(log)
	defer cancel()

	engine, release, err := newEngine(ctx, cfg.OCREngine, log)
	if err != nil {
		return err
	}
	defer release()

	log.Info().
		Str("file", pdfPath).
		Int("page", pageNum).
		Str("layout", l.Name).
		Str("engine", engine.Name()).
		Msg("Starting calibration")

	images, err := newRasterizer(dpi, cfg.CalibrationDPI).Render(ctx, pdfPath, pageNum, pageNum)
	if err != nil {
		return err
	}
	if len(images) == 0 {
		return models.NewExtractionError(models.KindInput, "Calibrate", nil, fmt.Sprintf("page %d rendered no image", pageNum))
	}
	page := images[0]

	c := calibration.New(l, engine, calibration.Options{
		Padding:          padding,
		SubjectLanguages: cfg.SubjectLanguages,
		Log:              log,
	})
	res, err := c.Calibrate(ctx, page)
	if err != nil {
		return err
	}

	if err := res.Template.Save(outputPath); err != nil {
		return err
	}

	if previewPath != "" {
		preview, err := calibration.Annotate(page, res.Pairs)
		if err != nil {
			return fmt.Errorf("draw preview: %w", err)
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, preview); err != nil {
			return fmt.Errorf("encode preview: %w", err)
		}
		if err := checkpoint.WriteFile(previewPath, buf.Bytes(), 0o644); err != nil {
			return fmt.Errorf("write preview: %w", err)
		}
	}

	printCalibration(res, outputPath)
	return nil
}

// calibrationPage maps the 0-based page index of the command line onto the
// 1-based page number the rasterizer takes.
func calibrationPage(index, pages int) (int, error) {
	if index < 0 || index >= pages {
		return 0, models.NewExtractionError(models.KindInput, "Calibrate", nil,
			fmt.Sprintf("page index %d out of range, document has %d pages", index, pages))
	}
	return index + 1, nil
}

func printCalibration(res *calibration.Result, outputPath string) {
	fmt.Println(strings.Repeat("=", 60))
	fmt.Println("                    CALIBRAÇÃO")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("Disciplinas detectadas: %d\n", len(res.Subjects))
	fmt.Printf("Notas detectadas: %d\n", len(res.Grades))
	if res.Mismatch != nil {
		fmt.Printf("Aviso: %v\n", res.Mismatch)
	}
	if len(res.Duplicates) > 0 {
		fmt.Printf("Disciplinas repetidas: %s\n", strings.Join(res.Duplicates, ", "))
	}
	fmt.Println()

	names := make([]string, 0, len(res.Template.Grades))
	for name := range res.Template.Grades {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		var values []string
		for _, g := range res.Template.Grades[name] {
			values = append(values, g.Value)
		}
		fmt.Printf("  %-30s %s\n", name, strings.Join(values, " / "))
	}
	fmt.Println()
	fmt.Printf("Template: %s\n", outputPath)
	fmt.Println(strings.Repeat("=", 60))
}
