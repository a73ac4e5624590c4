// Package routes classifies request paths into the public, admin and user
// route classes used by the access gate.
package routes

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var ErrOverlappingPrefixes = errors.New("route classes overlap")

// Class is the classification of a single path
type Class struct {
	Public bool
	Admin  bool
	User   bool
}

// Table is the immutable route-class configuration.
// Build one with Default, New or LoadFile; the zero value classifies nothing.
type Table struct {
	public   []string
	admin    []string
	user     []string
	matchers []string
}

// Spec is the serialisable form of a Table (used for YAML files)
type Spec struct {
	Public   []string `yaml:"public" validate:"required,min=1,dive,pathprefix"`
	Admin    []string `yaml:"admin" validate:"required,min=1,dive,pathprefix"`
	User     []string `yaml:"user" validate:"required,min=1,dive,pathprefix"`
	Matchers []string `yaml:"matchers" validate:"omitempty,dive,matcher"`
}

// DefaultSpec returns the compiled-in route table
func DefaultSpec() Spec {
	return Spec{
		Public: []string{"/donor_login", "/volunteer_login", "/register", "/forgot-password"},
		Admin:  []string{"/admin"},
		User:   []string{"/user"},
	}
}

// Default returns the compiled-in table. It never fails.
func Default() *Table {
	t, err := New(DefaultSpec())
	if err != nil {
		panic(fmt.Sprintf("default route table is invalid: %v", err))
	}
	return t
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()

	// Absolute path, no whitespace, no query or fragment
	v.RegisterValidation("pathprefix", func(fl validator.FieldLevel) bool {
		return validPrefix(fl.Field().String())
	})

	// Either an exact path or "prefix/*"
	v.RegisterValidation("matcher", func(fl validator.FieldLevel) bool {
		value := fl.Field().String()
		return validPrefix(strings.TrimSuffix(value, "/*"))
	})

	return v
}

func validPrefix(value string) bool {
	if !strings.HasPrefix(value, "/") {
		return false
	}
	return !strings.ContainsAny(value, " \t\r\n?#*")
}

// New validates a Spec and builds a Table from it.
// When spec.Matchers is empty the matchers are derived from the prefixes:
// admin and user prefixes match their whole subtree, public entries match exactly.
func New(spec Spec) (*Table, error) {
	if err := validate.Struct(spec); err != nil {
		return nil, fmt.Errorf("invalid route table: %w", err)
	}

	sets := []struct {
		name     string
		prefixes []string
	}{
		{"public", spec.Public},
		{"admin", spec.Admin},
		{"user", spec.User},
	}
	for i := range sets {
		for j := i + 1; j < len(sets); j++ {
			for _, a := range sets[i].prefixes {
				for _, b := range sets[j].prefixes {
					if strings.HasPrefix(a, b) || strings.HasPrefix(b, a) {
						return nil, fmt.Errorf("%w: %s prefix %q and %s prefix %q",
							ErrOverlappingPrefixes, sets[i].name, a, sets[j].name, b)
					}
				}
			}
		}
	}

	matchers := spec.Matchers
	if len(matchers) == 0 {
		for _, p := range spec.Admin {
			matchers = append(matchers, strings.TrimSuffix(p, "/")+"/*")
		}
		for _, p := range spec.User {
			matchers = append(matchers, strings.TrimSuffix(p, "/")+"/*")
		}
		matchers = append(matchers, spec.Public...)
	}

	return &Table{
		public:   clone(spec.Public),
		admin:    clone(spec.Admin),
		user:     clone(spec.User),
		matchers: clone(matchers),
	}, nil
}

// LoadFile reads a YAML route table. Unknown keys are rejected.
func LoadFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read route table: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var spec Spec
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("failed to parse route table %s: %w", path, err)
	}
	return New(spec)
}

// Classify reports which route classes the path belongs to.
// Each flag is true iff the path starts with one of the class prefixes.
func (t *Table) Classify(path string) Class {
	return Class{
		Public: hasAnyPrefix(path, t.public),
		Admin:  hasAnyPrefix(path, t.admin),
		User:   hasAnyPrefix(path, t.user),
	}
}

// Matches reports whether the gate applies to path at all
func (t *Table) Matches(path string) bool {
	for _, m := range t.matchers {
		if base, ok := strings.CutSuffix(m, "/*"); ok {
			if path == base || strings.HasPrefix(path, base+"/") {
				return true
			}
			continue
		}
		if path == m {
			return true
		}
	}
	return false
}

// Spec returns a copy of the table's configuration
func (t *Table) Spec() Spec {
	return Spec{
		Public:   clone(t.public),
		Admin:    clone(t.admin),
		User:     clone(t.user),
		Matchers: clone(t.matchers),
	}
}

// MarshalYAML renders the table in the same shape LoadFile accepts
func (t *Table) MarshalYAML() (interface{}, error) {
	return t.Spec(), nil
}

func hasAnyPrefix(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

func clone(s []string) []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}
