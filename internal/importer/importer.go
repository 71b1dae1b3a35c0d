// Package importer loads the legacy semicolon-separated inventory export.
package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/rl1809/patrion/internal/core/domain"
	"github.com/rl1809/patrion/internal/core/service"
)

// Column order of the export. The first line is a header and is ignored.
const (
	colPreviousAssetNumber = iota
	colAssetNumber
	colDescription
	colClassification
	colSector
	colOtherIdentification
	colNotes
	colPhoto
	columnCount
)

type ItemCreator interface {
	Create(ctx context.Context, in service.ItemInput, photo *service.Photo, idempotencyKey string) (*domain.ValuedItem, error)
}

type SectorEnsurer interface {
	Ensure(ctx context.Context, name string) (*domain.Sector, bool, error)
}

// RowError describes a row that could not be imported.
type RowError struct {
	Line        int
	AssetNumber string
	Err         error
}

func (e RowError) Error() string {
	if e.AssetNumber == "" {
		return fmt.Sprintf("line %d: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("line %d (asset %s): %v", e.Line, e.AssetNumber, e.Err)
}

func (e RowError) Unwrap() error { return e.Err }

type Report struct {
	Imported       int
	Skipped        int
	SectorsCreated int
	Errors         []RowError
}

type Importer struct {
	items   ItemCreator
	sectors SectorEnsurer
	logger  *zap.Logger
}

func New(items ItemCreator, sectors SectorEnsurer, logger *zap.Logger) *Importer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Importer{items: items, sectors: sectors, logger: logger}
}

// Import reads every row of r. Blank rows and rows whose asset number is
// already registered are skipped; other row failures are collected in the
// report. Only a read failure or a cancelled context aborts the run.
func (im *Importer) Import(ctx context.Context, r io.Reader) (*Report, error) {
	reader := csv.NewReader(r)
	reader.Comma = ';'
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.ReuseRecord = true

	report := &Report{}
	sectorIDs := make(map[string]string)

	if _, err := reader.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return report, nil
		}
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	for {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			report.Errors = append(report.Errors, RowError{Line: parseErr.Line, Err: err})
			continue
		}
		if err != nil {
			return report, fmt.Errorf("failed to read input: %w", err)
		}
		line, _ := reader.FieldPos(0)

		row := padded(record)
		assetNumber := row[colAssetNumber]
		description := row[colDescription]
		sectorName := row[colSector]

		if assetNumber == "" || description == "" || sectorName == "" {
			im.logger.Warn("skipping incomplete row",
				zap.Int("line", line),
				zap.String("asset_number", assetNumber))
			report.Skipped++
			continue
		}

		sectorID, ok := sectorIDs[sectorName]
		if !ok {
			sector, created, err := im.sectors.Ensure(ctx, sectorName)
			if err != nil {
				report.Errors = append(report.Errors, RowError{Line: line, AssetNumber: assetNumber, Err: err})
				continue
			}
			if created {
				report.SectorsCreated++
			}
			sectorID = sector.ID
			sectorIDs[sectorName] = sectorID
		}

		_, err = im.items.Create(ctx, service.ItemInput{
			AssetNumber:         assetNumber,
			PreviousAssetNumber: row[colPreviousAssetNumber],
			Description:         description,
			Classification:      row[colClassification],
			SectorID:            sectorID,
			OtherIdentification: row[colOtherIdentification],
			Notes:               row[colNotes],
			PhotoURL:            row[colPhoto],
		}, nil, "")
		switch {
		case err == nil:
			report.Imported++
		case errors.Is(err, service.ErrConflict):
			im.logger.Info("asset number already registered",
				zap.Int("line", line),
				zap.String("asset_number", assetNumber))
			report.Skipped++
		default:
			report.Errors = append(report.Errors, RowError{Line: line, AssetNumber: assetNumber, Err: err})
		}
	}

	im.logger.Info("import finished",
		zap.Int("imported", report.Imported),
		zap.Int("skipped", report.Skipped),
		zap.Int("sectors_created", report.SectorsCreated),
		zap.Int("errors", len(report.Errors)))
	return report, nil
}

// padded copies record into a slice with one entry per known column.
func padded(record []string) []string {
	row := make([]string, columnCount)
	copy(row, record)
	for i := range row {
		row[i] = strings.TrimSpace(row[i])
	}
	return row
}
