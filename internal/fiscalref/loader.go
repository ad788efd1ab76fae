package fiscalref

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// ValidationError reports an invalid reference entry
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

var iso3 = regexp.MustCompile(`^[A-Z]{3}$`)

// Load reads a YAML book from path and layers it over the built-in book.
// KnownFields(true): typos in the file fail instead of silently keeping defaults.
func Load(path string) (*Book, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read reference file: %w", err)
	}

	return Parse(data)
}

// Parse decodes YAML data and layers it over the built-in book
func Parse(data []byte) (*Book, error) {
	var overrides Book
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&overrides); err != nil {
		return nil, fmt.Errorf("decode reference file: %w", err)
	}

	book := DefaultBook()
	for code, ref := range overrides.Countries {
		book.Countries[strings.ToUpper(code)] = ref
	}
	if overrides.Default != "" {
		book.Default = strings.ToUpper(overrides.Default)
	}

	if err := Validate(book); err != nil {
		return nil, err
	}

	return book, nil
}

// Validate checks every entry of the book
func Validate(b *Book) error {
	if _, ok := b.Countries[b.Default]; !ok {
		return ValidationError{"default", fmt.Sprintf("no entry for %q", b.Default)}
	}

	for code, ref := range b.Countries {
		if !iso3.MatchString(code) {
			return ValidationError{"countries." + code, "must be an ISO3 code"}
		}
		if err := validateReference(ref); err != nil {
			return ValidationError{"countries." + code + "." + err.Field, err.Message}
		}
	}

	return nil
}

func validateReference(r Reference) *ValidationError {
	checks := []struct {
		field    string
		value    float64
		min, max float64
	}{
		{"alpha_t", r.AlphaT, 0, 1},
		{"alpha_g", r.AlphaG, 0, 1},
		{"initial_debt_ratio", r.InitialDebtRatio, 0, 5},
		{"initial_foreign_debt_ratio", r.InitialForeignDebtRatio, 0, 1},
		// net external issuance can exceed total issuance or be negative
		{"zeta_d", r.ZetaD, -5, 5},
	}

	for _, c := range checks {
		if math.IsNaN(c.value) || math.IsInf(c.value, 0) {
			return &ValidationError{c.field, "must be finite"}
		}
		if c.value < c.min || c.value > c.max {
			return &ValidationError{c.field, fmt.Sprintf("must be in [%g, %g], got %g", c.min, c.max, c.value)}
		}
	}

	return nil
}

// Hash returns the SHA-256 of the book's canonical JSON.
// Archived calibration runs record it to show which constants were in force.
func Hash(b *Book) (string, error) {
	// encoding/json sorts map keys, so the encoding is deterministic
	jsonBytes, err := json.Marshal(b)
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256(jsonBytes)
	return hex.EncodeToString(sum[:]), nil
}
