package metadata

import "fmt"

// Schema maps field names to the kind their values must have. Fields not in
// the schema are unconstrained; null is accepted for every field.
type Schema map[string]Kind

// Validate checks doc against the schema.
func (s Schema) Validate(doc Document) error {
	for k, v := range doc {
		want, ok := s[k]
		if !ok || v.Kind == KindNull || v.Kind == want {
			continue
		}
		if want == KindFloat && v.Kind == KindInt {
			continue
		}
		return fmt.Errorf("%w: field %q has kind %s, expected %s", ErrSchemaViolation, k, v.Kind, want)
	}
	return nil
}
