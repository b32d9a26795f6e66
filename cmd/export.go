package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"gradecard/internal/checkpoint"
	"gradecard/internal/logger"
	"gradecard/internal/sheets"
)

var exportCmd = &cobra.Command{
	Use:   "export [output-json]",
	Short: "Append extracted page records to a Google Sheet",
	Long: `Read the JSON written by extract (complete or partial) and append one row
per page to a Google Sheet. The sheet is created with a header row when it
does not exist.

Required environment variables:
  GOOGLE_APPLICATION_CREDENTIALS - Path to service account JSON file, OR
  GOOGLE_CREDENTIALS - Inline JSON credentials string`,
	Example: `  gradecard export notas.json --sheet-url https://docs.google.com/spreadsheets/d/ID/edit --sheet 2024`,
	Args:    cobra.ExactArgs(1),
	RunE:    runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().String("sheet-url", "", "Google Sheet URL (default GOOGLE_SHEET_URL)")
	exportCmd.Flags().String("sheet", "", "Worksheet name (default GOOGLE_SHEET_WORKSHEET)")
}

func runExport(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("export")

	sheetURL, _ := cmd.Flags().GetString("sheet-url")
	sheetName, _ := cmd.Flags().GetString("sheet")
	if sheetURL == "" {
		sheetURL = cfg.GoogleSheetURL
	}
	if sheetName == "" {
		sheetName = cfg.GoogleSheetWorksheet
	}
	if sheetURL == "" {
		return fmt.Errorf("no sheet URL: pass --sheet-url or set GOOGLE_SHEET_URL")
	}

	entries, err := checkpoint.Load(args[0])
	if err != nil {
		return err
	}
	log.Info().Str("file", args[0]).Int("entries", len(entries)).Msg("Loaded page records")

	ctx, cancel := signalContext(log)
	defer cancel()

	svc, err := sheets.NewSheetsService(ctx, sheetURL)
	if err != nil {
		return err
	}
	if err := svc.WriteRecords(ctx, entries, sheetName); err != nil {
		return err
	}

	fmt.Printf("Sheet: %s\n", sheetName)
	fmt.Printf("Linhas adicionadas: %d\n", len(entries))
	fmt.Printf("URL: %s\n", sheetURL)
	return nil
}
