package cmd

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"gradecard/internal/checkpoint"
	"gradecard/internal/extraction"
	"gradecard/internal/layout"
	"gradecard/internal/logger"
	"gradecard/internal/render"
	"gradecard/internal/template"
	"gradecard/pkg/models"
)

var extractCmd = &cobra.Command{
	Use:   "extract [pdf-file]",
	Short: "Extract grades from every page using a calibration template",
	Long: `Render the document in batches, read the student metadata and every
template subject's grade on each page, and write the results as a JSON array.

The output file is rewritten after every page, so an interrupted or failed run
keeps everything processed so far. Fields that cannot be read are stored as
"N/A"; pages that fail entirely become {"error": ...} entries.`,
	Example: `  # Extract with the default batch size
  gradecard extract boletins.pdf -c template.json -o notas.json

  # Render five pages at a time and keep intermediate images
  gradecard extract boletins.pdf -c template.json -b 5 --debug --debug-path debug_output`,
	Args: cobra.ExactArgs(1),
	RunE: runExtract,
}

func init() {
	rootCmd.AddCommand(extractCmd)

	extractCmd.Flags().StringP("output", "o", "output.json", "JSON output path")
	extractCmd.Flags().StringP("template", "c", "template.json", "Calibration template")
	extractCmd.Flags().IntP("batch-size", "b", 0, "Pages rendered at once (default BATCH_SIZE)")
	extractCmd.Flags().Bool("debug", false, "Save intermediate images per page")
	extractCmd.Flags().String("debug-path", "debug_output", "Directory for debug images")
	extractCmd.Flags().Int("dpi", 0, "Render resolution (default EXTRACTION_DPI)")
}

func runExtract(cmd *cobra.Command, args []string) error {
	runID := uuid.NewString()
	log := logger.WithRun("extract", runID)

	outputPath, _ := cmd.Flags().GetString("output")
	templatePath, _ := cmd.Flags().GetString("template")
	batchSize, _ := cmd.Flags().GetInt("batch-size")
	debug, _ := cmd.Flags().GetBool("debug")
	debugPath, _ := cmd.Flags().GetString("debug-path")
	dpi, _ := cmd.Flags().GetInt("dpi")
	pdfPath := args[0]

	if batchSize <= 0 {
		batchSize = cfg.BatchSize
	}

	l, err := layout.Load(layoutPath(cmd))
	if err != nil {
		return err
	}
	tpl, err := template.Load(templatePath)
	if err != nil {
		return err
	}
	if len(tpl.SubjectNames()) == 0 {
		log.Warn().Str("template", templatePath).Msg("Template has no subjects, only metadata will be extracted")
	}

	pages, err := render.PageCount(pdfPath)
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

	extractor, err := extraction.NewPageExtractor(l, tpl, engine, cfg.PageLanguages, log)
	if err != nil {
		return err
	}

	var sink extraction.Debug
	if debug {
		sink = extraction.DirSink{Root: debugPath}
	}

	batch := &extraction.BatchExtractor{
		Rasterizer: newRasterizer(dpi, cfg.ExtractionDPI),
		Pages:      extractor,
		Checkpoint: checkpoint.NewWriter(&checkpoint.FileStore{Path: outputPath}),
		BatchSize:  batchSize,
		Debug:      sink,
		Log:        log,
		RunID:      runID,
		OnState: func(s extraction.State) {
			log.Debug().Stringer("state", s).Msg("Batch state changed")
		},
	}

	fmt.Printf("Processando %d páginas de %s em lotes de %d...\n", pages, pdfPath, batchSize)
	summary, runErr := batch.Run(ctx, pdfPath, pages)
	if summary != nil {
		printSummary(summary, outputPath, debug, debugPath)
	}
	if runErr != nil {
		if errors.Is(runErr, models.ErrBatchRender) {
			return fmt.Errorf("rendering stopped the run, %d pages were saved to %s: %w", batch.Checkpoint.Len(), outputPath, runErr)
		}
		return runErr
	}
	return nil
}

func printSummary(s *extraction.Summary, outputPath string, debug bool, debugPath string) {
	fmt.Println()
	fmt.Println(strings.Repeat("=", 50))
	fmt.Println("                 RESULTADO")
	fmt.Println(strings.Repeat("=", 50))
	fmt.Printf("Páginas no documento: %d\n", s.Pages)
	fmt.Printf("Páginas processadas: %d\n", s.Entries())
	fmt.Printf("Com sucesso: %d\n", s.Extracted)
	if s.Failed > 0 {
		fmt.Printf("Com erro: %d\n", s.Failed)
	}
	fmt.Printf("Duração: %s\n", s.Duration.Round(time.Millisecond))
	fmt.Printf("Saída: %s\n", outputPath)
	if debug {
		fmt.Printf("Imagens de depuração: %s\n", debugPath)
	}
	if s.Entries() != s.Pages {
		fmt.Printf("Aviso: %d registros salvos para %d páginas\n", s.Entries(), s.Pages)
	}
	fmt.Println(strings.Repeat("=", 50))
}
