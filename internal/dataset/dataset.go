// Package dataset loads licensed establishments from the BC licence workbook
// (or a CSV export of it) into an ordered model.Dataset.
package dataset

import (
	"context"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/license-map/internal/fetcher"
	"github.com/sells-group/license-map/internal/model"
)

const (
	// DefaultSourceURL is the published BC licensed establishments workbook.
	DefaultSourceURL = "https://www2.gov.bc.ca/assets/gov/employment-business/business/liquor-regulation-licensing/liquor/licensed-establishments.xlsx"
	// DefaultMainSheet holds one row per active licence.
	DefaultMainSheet = "Liquor Web Stats Active Lic..."
	// DefaultServiceSheet holds capacity and area per licence.
	DefaultServiceSheet = "Service Areas"
)

var (
	// ErrNoRecords is returned when a source yields no usable rows.
	ErrNoRecords = eris.New("dataset: no records")
	// ErrMissingColumn is returned when a required header is absent.
	ErrMissingColumn = eris.New("dataset: missing column")
)

// Source describes where to load the dataset from.
type Source struct {
	// Location is a local file path or an http(s) URL. Files ending in .csv
	// are read as CSV; everything else as an XLSX workbook.
	Location string

	MainSheet    string // default DefaultMainSheet, falling back to the first sheet
	ServiceSheet string // default DefaultServiceSheet; skipped when absent

	Columns *Columns        // default DefaultColumns()
	Fetcher fetcher.Fetcher // used for URLs; default fetcher.NewHTTPFetcher
	Now     func() time.Time
}

// Load reads the source into a dataset. Rows without a licence number or a
// street address are dropped; a repeated licence number keeps its first row.
func Load(ctx context.Context, src Source) (*model.Dataset, error) {
	if strings.TrimSpace(src.Location) == "" {
		return nil, eris.New("dataset: empty source")
	}
	cols := DefaultColumns()
	if src.Columns != nil {
		cols = *src.Columns
	}
	now := time.Now
	if src.Now != nil {
		now = src.Now
	}

	local, cleanup, err := localize(ctx, src)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	var records []*model.Record
	if strings.EqualFold(filepath.Ext(local), ".csv") {
		records, err = loadCSV(ctx, local, cols)
	} else {
		records, err = loadXLSX(ctx, local, src, cols)
	}
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, eris.Wrapf(ErrNoRecords, "source %s", src.Location)
	}

	zap.L().Info("dataset: loaded",
		zap.String("source", src.Location),
		zap.Int("records", len(records)),
	)
	return &model.Dataset{
		Meta:    model.DatasetMeta{Source: src.Location, UpdatedAt: now().UTC()},
		Records: records,
	}, nil
}

// localize downloads URL sources into a temporary file. The returned cleanup
// removes anything it created.
func localize(ctx context.Context, src Source) (string, func(), error) {
	u, err := url.Parse(src.Location)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return src.Location, func() {}, nil
	}

	f := src.Fetcher
	if f == nil {
		f = fetcher.NewHTTPFetcher(fetcher.HTTPOptions{})
	}

	ext := path.Ext(u.Path)
	if ext == "" {
		ext = ".xlsx"
	}
	dir, err := os.MkdirTemp("", "license-map-*")
	if err != nil {
		return "", nil, eris.Wrap(err, "dataset: create temp dir")
	}
	cleanup := func() { _ = os.RemoveAll(dir) }

	dest := filepath.Join(dir, "source"+ext)
	n, err := f.DownloadToFile(ctx, src.Location, dest)
	if err != nil {
		cleanup()
		return "", nil, eris.Wrapf(err, "dataset: download %s", src.Location)
	}
	zap.L().Info("dataset: downloaded source", zap.String("url", src.Location), zap.Int64("bytes", n))
	return dest, cleanup, nil
}

func loadCSV(ctx context.Context, file string, cols Columns) ([]*model.Record, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, eris.Wrapf(err, "dataset: open %s", file)
	}
	defer f.Close() //nolint:errcheck

	rows, err := fetcher.ReadCSV(ctx, f, fetcher.CSVOptions{TrimSpace: true, LazyQuotes: true})
	if err != nil {
		return nil, eris.Wrapf(err, "dataset: read %s", file)
	}
	if len(rows) == 0 {
		return nil, eris.Wrapf(ErrNoRecords, "%s is empty", file)
	}
	return buildRecords(file, rows, cols.Main, false)
}

func loadXLSX(ctx context.Context, file string, src Source, cols Columns) ([]*model.Record, error) {
	wb, err := fetcher.OpenXLSX(file)
	if err != nil {
		return nil, eris.Wrap(err, "dataset: open workbook")
	}
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "dataset: load cancelled")
	}
	log := zap.L().With(zap.String("component", "dataset"), zap.String("file", file))

	mainOpts := fetcher.XLSXOptions{SheetName: src.MainSheet}
	if mainOpts.SheetName == "" {
		mainOpts.SheetName = DefaultMainSheet
	}
	if !wb.HasSheet(mainOpts.SheetName) {
		if src.MainSheet != "" {
			return nil, eris.Errorf("dataset: sheet %q not found (have %s)", src.MainSheet, strings.Join(wb.SheetNames(), ", "))
		}
		log.Info("dataset: main sheet not found, using first sheet", zap.String("sheet", mainOpts.SheetName))
		mainOpts = fetcher.XLSXOptions{SheetIndex: 0}
	}

	serviceSheet := src.ServiceSheet
	if serviceSheet == "" {
		serviceSheet = DefaultServiceSheet
	}

	var (
		records  []*model.Record
		services map[string]serviceInfo
	)
	var g errgroup.Group
	g.Go(func() error {
		rows, err := wb.Rows(mainOpts)
		if err != nil {
			return eris.Wrap(err, "dataset: read main sheet")
		}
		if len(rows) == 0 {
			return eris.Wrap(ErrNoRecords, "main sheet is empty")
		}
		records, err = buildRecords(file, rows, cols.Main, wb.Date1904())
		return err
	})
	g.Go(func() error {
		if !wb.HasSheet(serviceSheet) {
			log.Info("dataset: no service-area sheet", zap.String("sheet", serviceSheet))
			return nil
		}
		rows, err := wb.Rows(fetcher.XLSXOptions{SheetName: serviceSheet})
		if err != nil {
			return eris.Wrap(err, "dataset: read service sheet")
		}
		services, err = buildServices(rows, cols.ServiceAreas)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	mergeServices(records, services)
	return records, nil
}
