package schema

import "fmt"

// CompatibilityError reports a declared field that the actual schema cannot
// serve. Actual is empty when the field does not exist remotely.
type CompatibilityError struct {
	Field    string
	Actual   string
	Declared string
}

func (e *CompatibilityError) Error() string {
	if e.Actual == "" {
		return fmt.Sprintf("schema: declared field %q (%s) does not exist in the remote object", e.Field, e.Declared)
	}
	return fmt.Sprintf("schema: field %q is %s remotely but declared as %s", e.Field, e.Actual, e.Declared)
}

// CheckCompatibility verifies every declared field exists in actual with
// exactly the same type. Extra actual fields are allowed. Nullability is not
// compared.
func CheckCompatibility(actual, declared Schema) error {
	for _, d := range declared.Fields {
		a, ok := actual.Field(d.Name)
		if !ok {
			return &CompatibilityError{Field: d.Name, Declared: d.TypeString()}
		}
		if !a.SameType(d) {
			return &CompatibilityError{Field: d.Name, Actual: a.TypeString(), Declared: d.TypeString()}
		}
	}
	return nil
}
