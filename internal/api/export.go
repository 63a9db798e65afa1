package api

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"pagemirror/internal/metrics"
	"pagemirror/internal/models"

	"github.com/xuri/excelize/v2"
)

const exportSheet = "Sync Jobs"

// GET /api/v1/sync/jobs/export — streams the job history as an xlsx report.
// When an exports path is configured a copy is kept on disk for audits.
func (s *HTTPServer) handleExportJobs(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("sync_export")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	jobs, err := s.syncer.ListRecent(r.Context(), 1000)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}

	f, err := buildJobsWorkbook(jobs)
	if err != nil {
		s.log.Error().Err(err).Msg("building export workbook failed")
		writeError(w, http.StatusInternalServerError, "failed to build export")
		return
	}
	defer f.Close()

	fileName := fmt.Sprintf("sync_jobs_%s.xlsx", time.Now().Format("2006-01-02_15-04-05"))

	if s.exports.Path != "" {
		if err := s.saveAuditCopy(f, fileName); err != nil {
			s.log.Warn().Err(err).Msg("saving export audit copy failed")
		}
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))
	if err := f.Write(w); err != nil {
		s.log.Error().Err(err).Msg("writing export response failed")
	}
}

func (s *HTTPServer) saveAuditCopy(f *excelize.File, fileName string) error {
	if err := os.MkdirAll(s.exports.Path, 0o755); err != nil {
		return fmt.Errorf("error creating export directory: %v", err)
	}

	filePath := filepath.Join(s.exports.Path, fileName)
	if err := f.SaveAs(filePath); err != nil {
		return fmt.Errorf("error saving file: %v", err)
	}

	s.log.Info().Str("file_path", filePath).Msg("export file created")
	return nil
}

func buildJobsWorkbook(jobs []models.SyncJob) (*excelize.File, error) {
	f := excelize.NewFile()

	index, err := f.NewSheet(exportSheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("error creating sheet: %v", err)
	}
	f.SetActiveSheet(index)

	headers := []string{
		"ID", "Page ID", "Trigger", "Status", "Attempt", "Max Attempts",
		"Next Run", "Locked By", "Error", "Created", "Updated",
	}
	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(exportSheet, cell, header)
		_ = f.SetCellStyle(exportSheet, cell, cell, headerStyle)
	}

	for i, job := range jobs {
		row := i + 2
		_ = f.SetCellValue(exportSheet, fmt.Sprintf("A%d", row), job.ID)
		_ = f.SetCellValue(exportSheet, fmt.Sprintf("B%d", row), job.PageID)
		_ = f.SetCellValue(exportSheet, fmt.Sprintf("C%d", row), job.TriggerType)
		_ = f.SetCellValue(exportSheet, fmt.Sprintf("D%d", row), job.Status)
		_ = f.SetCellValue(exportSheet, fmt.Sprintf("E%d", row), job.Attempt)
		_ = f.SetCellValue(exportSheet, fmt.Sprintf("F%d", row), job.MaxAttempts)
		_ = f.SetCellValue(exportSheet, fmt.Sprintf("G%d", row), formatOptionalTime(job.NextRunAt))
		_ = f.SetCellValue(exportSheet, fmt.Sprintf("H%d", row), derefString(job.LockedBy))
		_ = f.SetCellValue(exportSheet, fmt.Sprintf("I%d", row), derefString(job.ErrorMessage))
		_ = f.SetCellValue(exportSheet, fmt.Sprintf("J%d", row), job.CreatedAt.Format("02.01.2006 15:04:05"))
		_ = f.SetCellValue(exportSheet, fmt.Sprintf("K%d", row), job.UpdatedAt.Format("02.01.2006 15:04:05"))
	}

	_ = f.SetColWidth(exportSheet, "A", "A", 8)
	_ = f.SetColWidth(exportSheet, "B", "B", 30)
	_ = f.SetColWidth(exportSheet, "C", "D", 12)
	_ = f.SetColWidth(exportSheet, "E", "F", 10)
	_ = f.SetColWidth(exportSheet, "G", "H", 22)
	_ = f.SetColWidth(exportSheet, "I", "I", 40)
	_ = f.SetColWidth(exportSheet, "J", "K", 20)

	_ = f.DeleteSheet("Sheet1")

	return f, nil
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("02.01.2006 15:04:05")
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
