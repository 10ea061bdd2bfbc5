package walk

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/koustreak/pgtree/internal/errs"
)

// Mode says how Selector.Value is matched against schema names.
type Mode int

const (
	ModeExact     Mode = iota // Value is a literal schema name
	ModeSubstring             // names containing Value
	ModeRegex                 // names where Value matches anywhere (unanchored)
)

func (m Mode) String() string {
	switch m {
	case ModeSubstring:
		return "substring"
	case ModeRegex:
		return "regex"
	default:
		return "exact"
	}
}

// ParseMode accepts "exact", "substring" and "regex".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "exact":
		return ModeExact, nil
	case "substring":
		return ModeSubstring, nil
	case "regex", "regexp":
		return ModeRegex, nil
	}
	return ModeExact, errs.New(errs.ErrKindInvalidInput, fmt.Sprintf("unknown match mode %q", s))
}

// Selector chooses the schemas to walk. An empty Value selects every schema
// outside the system namespaces, or every schema when IncludeSystem is set.
type Selector struct {
	Value         string
	Mode          Mode
	IncludeSystem bool
}

// literal reports whether the selector names a single schema. A literal
// name is looked up directly and is never hidden by the system filter.
func (s Selector) literal() bool {
	return s.Value != "" && s.Mode == ModeExact
}

// matcher compiles the selector into a name predicate. It fails with an
// invalid-input error for a malformed regular expression.
func (s Selector) matcher() (func(string) bool, error) {
	switch {
	case s.Value == "":
		return func(string) bool { return true }, nil
	case s.Mode == ModeSubstring:
		return func(name string) bool { return strings.Contains(name, s.Value) }, nil
	case s.Mode == ModeRegex:
		re, err := regexp.Compile(s.Value)
		if err != nil {
			return nil, errs.Selector(s.Value, err)
		}
		return re.MatchString, nil
	default:
		return func(name string) bool { return name == s.Value }, nil
	}
}

// Validate checks the selector without touching the database.
func (s Selector) Validate() error {
	_, err := s.matcher()
	return err
}
