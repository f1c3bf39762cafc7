package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"vivarium/internal/infra/persistence"
	_ "vivarium/internal/infra/persistence/postgres" // register postgres backend
	_ "vivarium/internal/infra/persistence/sqlite"   // register sqlite backend
)

var (
	exportKind   string
	exportCohort string
	exportOut    string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Render a CSV export from the persisted snapshot",
	RunE:  runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportKind, "kind", "animals", "export kind: animals|compliance|blind")
	exportCmd.Flags().StringVar(&exportCohort, "cohort", "", "cohort id for the blind export")
	exportCmd.Flags().StringVar(&exportOut, "out", "", "output file (default stdout)")
	rootCmd.AddCommand(exportCmd)
}

func runExport(_ *cobra.Command, _ []string) error {
	log := newLogger()
	ctx := context.Background()

	backend, err := persistence.Open()
	if err != nil {
		return err
	}
	defer func() { _ = backend.Close() }()

	svc, err := buildService(ctx, backend, log)
	if err != nil {
		return err
	}

	var body string
	switch exportKind {
	case "animals":
		body = svc.ExportAnimalsCSV()
	case "compliance":
		body = svc.ExportComplianceCSV()
	case "blind":
		if exportCohort == "" {
			return fmt.Errorf("--cohort required for the blind export")
		}
		body = svc.ExportCohortBlindCSV(exportCohort)
	default:
		return fmt.Errorf("unknown export kind %s", exportKind)
	}

	if exportOut == "" {
		fmt.Print(body)
		return nil
	}
	return os.WriteFile(exportOut, []byte(body), 0o644)
}
