package admin

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"intake/internal/solicitud/models"
)

var exportHeader = []string{
	"ID", "Fecha", "Nombre", "Documento", "Email", "Teléfono",
	"Monto Solicitado", "Plazo", "Empresa", "Ingresos",
}

// exportDateLayout renders fechaSolicitud the way the back office reads it.
const exportDateLayout = "02/01/2006 15:04"

// ExportFilename is the attachment name for an export taken at now.
func ExportFilename(now time.Time) string {
	return fmt.Sprintf("solicitudes_%s.csv", now.UTC().Format("2006-01-02"))
}

// Export writes the filtered listing as CSV.
func (s *Service) Export(ctx context.Context, authorization, q string, w io.Writer) (Source, error) {
	snap, err := s.Fetch(ctx, authorization)
	if err != nil {
		return "", err
	}
	if err := WriteCSV(w, Filter(snap.Records, q), s.now().Location()); err != nil {
		return "", fmt.Errorf("write export: %w", err)
	}
	return snap.Source, nil
}

// WriteCSV writes records with the back-office header. Dates are shown in loc.
func WriteCSV(w io.Writer, records []models.Application, loc *time.Location) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return err
	}
	for _, r := range records {
		fecha := "N/A"
		if t, ok := submittedAt(r); ok {
			fecha = t.In(loc).Format(exportDateLayout)
		}
		row := []string{
			r.ID,
			fecha,
			r.NombreCompleto,
			r.NumeroDocumento,
			r.Email,
			r.Telefono,
			string(r.MontoSolicitado),
			string(r.PlazoMeses),
			r.Empresa,
			string(r.IngresosMensuales),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
