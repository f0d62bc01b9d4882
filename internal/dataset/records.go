package dataset

import (
	"math"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/license-map/internal/fetcher"
	"github.com/sells-group/license-map/internal/model"
)

// sourceProvider marks coordinates that came with the data.
const sourceProvider = "source"

// buildRecords turns a header row plus data rows into records.
func buildRecords(sheet string, rows [][]string, cols MainColumns, date1904 bool) ([]*model.Record, error) {
	idx := newHeaderIndex(rows[0])

	licenseCol, err := idx.require(sheet, cols.License)
	if err != nil {
		return nil, err
	}
	streetCol, err := idx.require(sheet, cols.Street)
	if err != nil {
		return nil, err
	}
	cityCol, err := idx.require(sheet, cols.City)
	if err != nil {
		return nil, err
	}
	var (
		nameCol   = idx.find(cols.Name)
		typeCol   = idx.find(cols.LicenseType)
		expiryCol = idx.find(cols.ExpiryDate)
		latCol    = idx.find(cols.Latitude)
		lonCol    = idx.find(cols.Longitude)
	)

	log := zap.L().With(zap.String("component", "dataset"))
	seen := make(map[string]bool, len(rows))
	records := make([]*model.Record, 0, len(rows)-1)
	var noStreet, duplicates int

	for i, row := range rows[1:] {
		license := normalizeLicense(cell(row, licenseCol))
		if license == "" {
			continue
		}
		street := cell(row, streetCol)
		if street == "" {
			noStreet++
			continue
		}
		if seen[license] {
			duplicates++
			log.Debug("dataset: duplicate licence, keeping first", zap.String("license", license), zap.Int("row", i+2))
			continue
		}
		seen[license] = true

		r := &model.Record{
			LicenseNumber: license,
			Name:          cell(row, nameCol),
			Street:        street,
			City:          cell(row, cityCol),
			LicenseType:   cell(row, typeCol),
			Geocode:       model.GeocodeState{Status: model.GeocodeStatusPending},
		}
		if v := cell(row, expiryCol); v != "" {
			if t, ok := parseDate(v, date1904); ok {
				r.ExpiryDate = &t
			} else {
				log.Debug("dataset: unparseable expiry date", zap.String("license", license), zap.String("value", v))
			}
		}
		if c, ok := parseCoordinate(cell(row, latCol), cell(row, lonCol)); ok {
			r.SetCoordinate(c, sourceProvider, "", time.Time{})
		}
		records = append(records, r)
	}

	if noStreet > 0 || duplicates > 0 {
		log.Info("dataset: dropped rows",
			zap.Int("without_street", noStreet),
			zap.Int("duplicate_licence", duplicates),
		)
	}
	return records, nil
}

// serviceInfo is what the service-area sheet adds to a licence.
type serviceInfo struct {
	capacity *int
	area     string
}

// buildServices indexes the service-area sheet by licence number. The first
// row for a licence wins.
func buildServices(rows [][]string, cols ServiceColumns) (map[string]serviceInfo, error) {
	out := make(map[string]serviceInfo)
	if len(rows) == 0 {
		return out, nil
	}
	idx := newHeaderIndex(rows[0])

	licenseCol, err := idx.require("service areas", cols.License)
	if err != nil {
		return nil, err
	}
	capacityCol := idx.find(cols.Capacity)
	areaCol := idx.find(cols.AreaLocation)

	for _, row := range rows[1:] {
		license := normalizeLicense(cell(row, licenseCol))
		if license == "" {
			continue
		}
		if _, ok := out[license]; ok {
			continue
		}
		info := serviceInfo{area: cell(row, areaCol)}
		if n, ok := parseCapacity(cell(row, capacityCol)); ok {
			info.capacity = &n
		}
		out[license] = info
	}
	return out, nil
}

// mergeServices left-joins service-area details onto records.
func mergeServices(records []*model.Record, services map[string]serviceInfo) {
	for _, r := range records {
		info, ok := services[r.LicenseNumber]
		if !ok {
			continue
		}
		r.Capacity = info.capacity
		r.AreaLocation = info.area
	}
}

// normalizeLicense strips the ".0" spreadsheets add to numeric cells.
func normalizeLicense(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasSuffix(s, ".0") {
		if _, err := strconv.Atoi(strings.TrimSuffix(s, ".0")); err == nil {
			return strings.TrimSuffix(s, ".0")
		}
	}
	return s
}

func parseCapacity(s string) (int, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int(math.Round(f)), true
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006/01/02",
	"01-02-06",
	"1/2/2006",
	"1/2/06",
	"02-Jan-2006",
	"Jan 2, 2006",
	"January 2, 2006",
}

// parseDate accepts the text forms spreadsheets produce and Excel serial numbers.
func parseDate(s string, date1904 bool) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	if serial, err := strconv.ParseFloat(s, 64); err == nil && serial > 0 && serial < 2958466 {
		t := fetcher.ExcelSerialTime(math.Floor(serial), date1904)
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
	}
	return time.Time{}, false
}

func parseCoordinate(latStr, lonStr string) (model.Coordinate, bool) {
	if latStr == "" || lonStr == "" {
		return model.Coordinate{}, false
	}
	lat, err1 := strconv.ParseFloat(latStr, 64)
	lon, err2 := strconv.ParseFloat(lonStr, 64)
	if err1 != nil || err2 != nil {
		return model.Coordinate{}, false
	}
	if math.IsNaN(lat) || math.IsNaN(lon) || lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return model.Coordinate{}, false
	}
	// An all-zero pair is a placeholder, not a location.
	if lat == 0 && lon == 0 {
		return model.Coordinate{}, false
	}
	return model.Coordinate{Lat: lat, Lon: lon}, true
}
