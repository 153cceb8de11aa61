package document

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/kelurahan-portal/internal/application/port"
	domaindoc "github.com/garyjia/kelurahan-portal/internal/domain/document"
	"github.com/garyjia/kelurahan-portal/internal/domain/entity"
)

const sheetName = "Surat"

// LetterRenderer writes the official letter as a workbook and returns its public URL
type LetterRenderer struct {
	storage     port.FileStorage
	baseURL     string
	villageName string
	logger      *zap.Logger
}

// NewLetterRenderer creates a renderer that stores letters under documents/{id}/
func NewLetterRenderer(storage port.FileStorage, baseURL, villageName string, logger *zap.Logger) *LetterRenderer {
	return &LetterRenderer{
		storage:     storage,
		baseURL:     strings.TrimRight(baseURL, "/"),
		villageName: villageName,
		logger:      logger,
	}
}

// RelativePath returns where the letter for an application and number is stored
func RelativePath(applicationID int64, documentNumber string) string {
	return path.Join("documents", strconv.FormatInt(applicationID, 10), domaindoc.FileName(documentNumber)+".xlsx")
}

// Discard implements port.DocumentRenderer
func (r *LetterRenderer) Discard(ctx context.Context, req port.RenderRequest) error {
	if req.Application == nil || req.DocumentNumber == "" {
		return nil
	}
	rel := RelativePath(req.Application.ID, req.DocumentNumber)
	if err := r.storage.Delete(ctx, rel); err != nil {
		return fmt.Errorf("failed to discard letter %s: %w", rel, err)
	}
	r.logger.Info("Discarded letter",
		zap.Int64("application_id", req.Application.ID),
		zap.String("document_number", req.DocumentNumber))
	return nil
}

// Render implements port.DocumentRenderer
func (r *LetterRenderer) Render(ctx context.Context, req port.RenderRequest) (string, error) {
	if req.Application == nil || req.Template == nil {
		return "", fmt.Errorf("render request needs an application and a template")
	}
	if req.DocumentNumber == "" {
		return "", fmt.Errorf("render request needs a document number")
	}

	rel := RelativePath(req.Application.ID, req.DocumentNumber)

	r.logger.Info("Rendering letter",
		zap.Int64("application_id", req.Application.ID),
		zap.String("document_number", req.DocumentNumber),
		zap.String("path", rel))

	content, err := r.build(req)
	if err != nil {
		return "", err
	}

	if err := r.storage.Save(ctx, rel, content); err != nil {
		return "", fmt.Errorf("failed to store letter: %w", err)
	}

	return r.baseURL + "/" + rel, nil
}

func (r *LetterRenderer) build(req port.RenderRequest) ([]byte, error) {
	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			r.logger.Warn("Failed to close workbook", zap.Error(err))
		}
	}()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}

	app := req.Application
	w := &sheetWriter{f: f}

	w.set("A1", strings.ToUpper(req.Template.Name))
	w.set("A2", r.villageName)
	w.row(4, "Nomor", req.DocumentNumber)
	w.row(5, "Kode Layanan", domaindoc.CodeFor(req.Template.ServiceType))
	w.row(6, "Pemohon", app.CitizenID)
	w.row(7, "Tanggal Pengajuan", app.CreatedAt.Format("02-01-2006"))
	w.row(8, "Tanggal Terbit", issueDate(app).Format("02-01-2006"))

	next := 10
	w.set(cell(1, next), "Data Permohonan")
	next++
	for _, key := range sortedKeys(app.FormData) {
		w.row(next, key, fmt.Sprint(app.FormData[key]))
		next++
	}

	next++
	w.set(cell(1, next), "Persetujuan")
	next++
	for _, stage := range []struct {
		label string
		audit entity.StageAudit
	}{
		{"RT/RW", app.RTRWReview},
		{"Staf Kelurahan", app.VillageProcessing},
		{"Kepala Kelurahan", app.VillageHeadReview},
	} {
		w.row(next, stage.label, approvalLine(stage.audit))
		next++
	}

	if err := w.err; err != nil {
		return nil, fmt.Errorf("failed to fill letter: %w", err)
	}

	if err := f.SetColWidth(sheetName, "A", "A", 24); err != nil {
		return nil, fmt.Errorf("failed to size columns: %w", err)
	}
	if err := f.SetColWidth(sheetName, "B", "B", 48); err != nil {
		return nil, fmt.Errorf("failed to size columns: %w", err)
	}

	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true, Size: 14}})
	if err != nil {
		return nil, fmt.Errorf("failed to create style: %w", err)
	}
	if err := f.SetCellStyle(sheetName, "A1", "A1", style); err != nil {
		return nil, fmt.Errorf("failed to style title: %w", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// sheetWriter keeps the first error so cell writes read as a list
type sheetWriter struct {
	f   *excelize.File
	err error
}

func (w *sheetWriter) set(ref string, value interface{}) {
	if w.err != nil {
		return
	}
	w.err = w.f.SetCellValue(sheetName, ref, value)
}

func (w *sheetWriter) row(n int, label string, value interface{}) {
	w.set(cell(1, n), label)
	w.set(cell(2, n), value)
}

func cell(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}

func issueDate(app *entity.Application) time.Time {
	if app.VillageHeadReview.At != nil {
		return *app.VillageHeadReview.At
	}
	return app.UpdatedAt
}

func approvalLine(audit entity.StageAudit) string {
	if !audit.IsStamped() {
		return "-"
	}
	line := fmt.Sprintf("%s (%s)", *audit.ActorID, audit.At.Format("02-01-2006"))
	if audit.Notes != nil {
		line += ": " + *audit.Notes
	}
	return line
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
