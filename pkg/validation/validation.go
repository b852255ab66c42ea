package validation

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/OldStager01/car-price-predictor/pkg/models"
)

const (
	MinYearModel  = 1900
	MaxYearModel  = 2100
	MaxEngineSize = 20.0
)

var (
	// ErrInvalidInput indicates the input failed validation
	ErrInvalidInput = errors.New("invalid input")

	// Brand names as found in the FIPE tables: letters, digits, spaces, dots, hyphens.
	brandRegex = regexp.MustCompile(`^[\p{L}0-9][\p{L}0-9 .&'-]{0,63}$`)
)

// ValidationError describes a single field that is missing or cannot be
// coerced to its expected type.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("%s %q: %s", e.Field, e.Value, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

func fieldError(field, value, reason string) error {
	return &ValidationError{Field: field, Value: value, Reason: reason}
}

// SanitizeString removes potentially dangerous characters and trims whitespace
func SanitizeString(input string) string {
	input = strings.TrimSpace(input)
	input = strings.ReplaceAll(input, "\x00", "")

	var builder strings.Builder
	for _, r := range input {
		if !unicode.IsControl(r) {
			builder.WriteRune(r)
		}
	}

	return builder.String()
}

// NormalizeBrand lower-cases a brand the way the model was trained on it.
func NormalizeBrand(brand string) string {
	return strings.ToLower(SanitizeString(brand))
}

func ValidateBrand(brand string) error {
	if brand == "" {
		return fieldError(models.ColumnBrand, "", "is required")
	}
	if !brandRegex.MatchString(brand) {
		return fieldError(models.ColumnBrand, brand, "contains unsupported characters")
	}
	return nil
}

func ParseFuel(raw string) (models.Fuel, error) {
	v := strings.ToLower(SanitizeString(raw))
	if v == "" {
		return "", fieldError(models.ColumnFuel, "", "is required")
	}
	fuel := models.Fuel(v)
	if !fuel.IsValid() {
		return "", fieldError(models.ColumnFuel, raw, "must be one of: diesel, gasoline")
	}
	return fuel, nil
}

func ParseGear(raw string) (models.Gear, error) {
	v := strings.ToLower(SanitizeString(raw))
	if v == "" {
		return "", fieldError(models.ColumnGear, "", "is required")
	}
	gear := models.Gear(v)
	if !gear.IsValid() {
		return "", fieldError(models.ColumnGear, raw, "must be one of: auto, manual")
	}
	return gear, nil
}

func ParseEngineSize(raw string) (float64, error) {
	v := SanitizeString(raw)
	if v == "" {
		return 0, fieldError(models.ColumnEngineSize, "", "is required")
	}
	size, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fieldError(models.ColumnEngineSize, raw, "must be a number")
	}
	if err := ValidateEngineSize(size); err != nil {
		return 0, err
	}
	return size, nil
}

func ValidateEngineSize(size float64) error {
	if math.IsNaN(size) || math.IsInf(size, 0) || size <= 0 || size > MaxEngineSize {
		return fieldError(models.ColumnEngineSize, strconv.FormatFloat(size, 'f', -1, 64),
			fmt.Sprintf("must be greater than 0 and at most %.0f", MaxEngineSize))
	}
	return nil
}

// ParseYearModel coerces a raw year to an integer. Spreadsheet exports often
// carry years as "2019.0", so integral floats are accepted too.
func ParseYearModel(raw string) (int, error) {
	v := SanitizeString(raw)
	if v == "" {
		return 0, fieldError(models.ColumnYearModel, "", "is required")
	}

	year, err := strconv.Atoi(v)
	if err != nil {
		f, ferr := strconv.ParseFloat(v, 64)
		if ferr != nil || f != math.Trunc(f) || math.IsInf(f, 0) {
			return 0, fieldError(models.ColumnYearModel, raw, "must be an integer year")
		}
		year = int(f)
	}

	if err := ValidateYearModel(year); err != nil {
		return 0, err
	}
	return year, nil
}

func ValidateYearModel(year int) error {
	if year < MinYearModel || year > MaxYearModel {
		return fieldError(models.ColumnYearModel, strconv.Itoa(year),
			fmt.Sprintf("must be between %d and %d", MinYearModel, MaxYearModel))
	}
	return nil
}

// ValidateAttributes checks an already-typed request.
func ValidateAttributes(a models.CarAttributes) error {
	if err := ValidateBrand(a.Brand); err != nil {
		return err
	}
	if !a.Fuel.IsValid() {
		return fieldError(models.ColumnFuel, string(a.Fuel), "must be one of: diesel, gasoline")
	}
	if !a.Gear.IsValid() {
		return fieldError(models.ColumnGear, string(a.Gear), "must be one of: auto, manual")
	}
	if err := ValidateEngineSize(a.EngineSize); err != nil {
		return err
	}
	return ValidateYearModel(a.YearModel)
}

// AttributesFromRow projects the scoring columns out of a raw row. Any other
// columns are ignored. The year is parsed first; on a later failure the
// returned attributes still carry it.
func AttributesFromRow(values map[string]string) (models.CarAttributes, error) {
	var a models.CarAttributes
	var err error

	if a.YearModel, err = ParseYearModel(values[models.ColumnYearModel]); err != nil {
		return a, err
	}
	a.Brand = NormalizeBrand(values[models.ColumnBrand])
	if err = ValidateBrand(a.Brand); err != nil {
		return a, err
	}
	if a.Fuel, err = ParseFuel(values[models.ColumnFuel]); err != nil {
		return a, err
	}
	if a.Gear, err = ParseGear(values[models.ColumnGear]); err != nil {
		return a, err
	}
	if a.EngineSize, err = ParseEngineSize(values[models.ColumnEngineSize]); err != nil {
		return a, err
	}
	return a, nil
}
