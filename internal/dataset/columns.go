package dataset

import (
	_ "embed"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed columns.yaml
var defaultColumnsYAML []byte

// MainColumns names the headers of the licence sheet.
type MainColumns struct {
	License     string `yaml:"license"`
	Name        string `yaml:"name"`
	Street      string `yaml:"street"`
	City        string `yaml:"city"`
	LicenseType string `yaml:"license_type"`
	ExpiryDate  string `yaml:"expiry_date"`
	Latitude    string `yaml:"latitude"`
	Longitude   string `yaml:"longitude"`
}

// ServiceColumns names the headers of the service-area sheet.
type ServiceColumns struct {
	License      string `yaml:"license"`
	Capacity     string `yaml:"capacity"`
	AreaLocation string `yaml:"area_location"`
}

// Columns maps source headers to record fields.
type Columns struct {
	Main         MainColumns    `yaml:"main"`
	ServiceAreas ServiceColumns `yaml:"service_areas"`
}

// DefaultColumns returns the mapping for the BC licensed establishments workbook.
func DefaultColumns() Columns {
	var c Columns
	if err := yaml.Unmarshal(defaultColumnsYAML, &c); err != nil {
		panic("dataset: embedded columns.yaml: " + err.Error())
	}
	return c
}

// LoadColumns reads a YAML column map from path. Keys it omits keep their
// default header names.
func LoadColumns(path string) (Columns, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Columns{}, eris.Wrapf(err, "dataset: read columns %s", path)
	}

	c := DefaultColumns()
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Columns{}, eris.Wrapf(err, "dataset: parse columns %s", path)
	}
	return c, nil
}

// headerIndex maps normalized header names to their column position. The
// first occurrence of a repeated header wins.
type headerIndex map[string]int

func newHeaderIndex(header []string) headerIndex {
	idx := make(headerIndex, len(header))
	for i, h := range header {
		key := normalizeHeader(h)
		if _, ok := idx[key]; !ok && key != "" {
			idx[key] = i
		}
	}
	return idx
}

// find returns the column for name, or -1 when name is empty or absent.
func (h headerIndex) find(name string) int {
	if name == "" {
		return -1
	}
	if i, ok := h[normalizeHeader(name)]; ok {
		return i
	}
	return -1
}

// require returns the column for name or a wrapped ErrMissingColumn.
func (h headerIndex) require(sheet, name string) (int, error) {
	i := h.find(name)
	if i < 0 {
		return -1, eris.Wrapf(ErrMissingColumn, "%s: %q", sheet, name)
	}
	return i, nil
}

func normalizeHeader(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// cell returns row[i] or "" when the row is short or i is -1.
func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
