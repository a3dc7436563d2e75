// Package query builds batched GraphQL documents for the pricing query service.
//
// A single document can request several resource classes at once. Aliases tell apart
// requests of the same kind, for example the control plane and the worker nodes both
// asking for onDemand rows with different minimums.
package query

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf16"
	"unicode/utf8"
)

const (
	SortAscending  = "asc"
	SortDescending = "desc"
)

var aliasPattern = regexp.MustCompile(`^[_A-Za-z][_0-9A-Za-z]*$`)

var (
	onDemandFields     = []string{"architecture", "instanceType", "memory", "pricePerHour", "region", "vcpuCount"}
	spotFields         = []string{"availabilityZone", "instanceType", "pricePerHour", "region"}
	blockStorageFields = []string{"pricePerGbMonth", "region", "storageMedia", "volumeApiName"}
	externalFields     = []string{"endRange", "fromRegionCode", "pricePerGb", "startRange"}
	interRegionFields  = []string{"fromRegionCode", "pricePerGb", "toRegionCode"}
)

type OnDemandFilter struct {
	Regions         []string
	InstanceTypes   []string
	MinVCPU         *float64
	MaxVCPU         *float64
	MinMemory       *float64
	MaxMemory       *float64
	MinPricePerHour *float64
	MaxPricePerHour *float64
	SortBy          string
	SortOrder       string
	Limit           *int
}

type SpotFilter struct {
	Regions           []string
	AvailabilityZones []string
	InstanceTypes     []string
	MinPricePerHour   *float64
	MaxPricePerHour   *float64
	SortBy            string
	SortOrder         string
	Limit             *int
}

type BlockStorageFilter struct {
	Regions       []string
	VolumeAPIName string
	StorageMedia  string
	SortBy        string
	SortOrder     string
}

type ExternalDataTransferFilter struct {
	FromRegionCode string
	StartRange     *float64
	SortBy         string
	SortOrder      string
}

type InterRegionDataTransferFilter struct {
	FromRegionCode string
	ToRegionCode   string
	SortBy         string
	SortOrder      string
}

// Float returns a pointer to v, for optional filter fields.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v, for optional filter fields.
func Int(v int) *int { return &v }

// Builder accumulates selections of one query document. The zero value is ready to use.
type Builder struct {
	selections []string
	keys       map[string]bool
	errs       []error
}

func New() *Builder {
	return &Builder{}
}

func (b *Builder) OnDemand(alias string, f OnDemandFilter) *Builder {
	var a arguments
	a.list("instanceTypes", f.InstanceTypes)
	a.float("maxMemory", f.MaxMemory)
	a.float("maxPricePerHour", f.MaxPricePerHour)
	a.float("maxVcpu", f.MaxVCPU)
	a.float("minMemory", f.MinMemory)
	a.float("minPricePerHour", f.MinPricePerHour)
	a.float("minVcpu", f.MinVCPU)
	a.list("regions", f.Regions)
	a.str("sortBy", f.SortBy)
	a.str("sortOrder", f.SortOrder)
	a.integer("limit", f.Limit)
	return b.add(alias, "onDemand", a, onDemandFields)
}

func (b *Builder) Spot(alias string, f SpotFilter) *Builder {
	var a arguments
	a.list("availabilityZones", f.AvailabilityZones)
	a.list("instanceTypes", f.InstanceTypes)
	a.float("maxPricePerHour", f.MaxPricePerHour)
	a.float("minPricePerHour", f.MinPricePerHour)
	a.list("regions", f.Regions)
	a.str("sortBy", f.SortBy)
	a.str("sortOrder", f.SortOrder)
	a.integer("limit", f.Limit)
	return b.add(alias, "spot", a, spotFields)
}

func (b *Builder) BlockStorage(alias string, f BlockStorageFilter) *Builder {
	var a arguments
	a.list("regions", f.Regions)
	a.str("sortBy", f.SortBy)
	a.str("sortOrder", f.SortOrder)
	a.str("storageMedia", f.StorageMedia)
	a.str("volumeApiName", f.VolumeAPIName)
	return b.add(alias, "blockStorage", a, blockStorageFields)
}

func (b *Builder) ExternalDataTransfer(alias string, f ExternalDataTransferFilter) *Builder {
	var a arguments
	a.str("fromRegionCode", f.FromRegionCode)
	a.str("sortBy", f.SortBy)
	a.str("sortOrder", f.SortOrder)
	a.float("startRange", f.StartRange)
	return b.add(alias, "externalDataTransfer", a, externalFields)
}

func (b *Builder) InterRegionDataTransfer(alias string, f InterRegionDataTransferFilter) *Builder {
	var a arguments
	a.str("fromRegionCode", f.FromRegionCode)
	a.str("toRegionCode", f.ToRegionCode)
	a.str("sortBy", f.SortBy)
	a.str("sortOrder", f.SortOrder)
	return b.add(alias, "interRegionDataTransfer", a, interRegionFields)
}

func (b *Builder) add(alias, field string, a arguments, fields []string) *Builder {
	key := field
	if alias != "" {
		if !aliasPattern.MatchString(alias) {
			b.errs = append(b.errs, fmt.Errorf("invalid alias %q for %s", alias, field))
			return b
		}
		key = alias
	}
	if b.keys == nil {
		b.keys = map[string]bool{}
	}
	if b.keys[key] {
		b.errs = append(b.errs, fmt.Errorf("duplicate response key %q", key))
		return b
	}
	b.keys[key] = true

	var sb strings.Builder
	if alias != "" {
		sb.WriteString(alias)
		sb.WriteString(": ")
	}
	fmt.Fprintf(&sb, "%s(request: {%s}) { %s }", field, strings.Join(a, ", "), strings.Join(fields, " "))
	b.selections = append(b.selections, sb.String())
	return b
}

// String renders the document. Selections rejected by an invalid alias are left out; use
// Build to see those errors.
func (b *Builder) String() string {
	return "query { " + strings.Join(b.selections, " ") + " }"
}

// Build renders the document, or reports every selection that could not be added.
func (b *Builder) Build() (string, error) {
	if len(b.errs) > 0 {
		return "", errors.Join(b.errs...)
	}
	if len(b.selections) == 0 {
		return "", errors.New("query has no selections")
	}
	return b.String(), nil
}

// arguments holds rendered "name: value" pairs in insertion order.
type arguments []string

func (a *arguments) str(name, v string) {
	if v == "" {
		return
	}
	*a = append(*a, name+": "+quote(v))
}

func (a *arguments) list(name string, vs []string) {
	if vs == nil {
		return
	}
	quoted := make([]string, len(vs))
	for i, v := range vs {
		quoted[i] = quote(v)
	}
	*a = append(*a, name+": ["+strings.Join(quoted, ", ")+"]")
}

func (a *arguments) float(name string, v *float64) {
	if v == nil {
		return
	}
	*a = append(*a, name+": "+strconv.FormatFloat(*v, 'f', -1, 64))
}

func (a *arguments) integer(name string, v *int) {
	if v == nil {
		return
	}
	*a = append(*a, name+": "+strconv.Itoa(*v))
}

// quote renders v as a GraphQL string value. Only the escapes GraphQL defines are used;
// other control and non-printable runes become \uXXXX (surrogate pairs above U+FFFF).
func quote(v string) string {
	var sb strings.Builder
	sb.Grow(len(v) + 2)
	sb.WriteByte('"')
	for _, r := range v {
		switch r {
		case '"':
			sb.WriteString(`\"`)
		case '\\':
			sb.WriteString(`\\`)
		case '\b':
			sb.WriteString(`\b`)
		case '\f':
			sb.WriteString(`\f`)
		case '\n':
			sb.WriteString(`\n`)
		case '\r':
			sb.WriteString(`\r`)
		case '\t':
			sb.WriteString(`\t`)
		default:
			if r != utf8.RuneError && unicode.IsPrint(r) {
				sb.WriteRune(r)
				continue
			}
			if r > 0xffff {
				hi, lo := utf16.EncodeRune(r)
				fmt.Fprintf(&sb, `\u%04X\u%04X`, hi, lo)
				continue
			}
			fmt.Fprintf(&sb, `\u%04X`, r)
		}
	}
	sb.WriteByte('"')
	return sb.String()
}
