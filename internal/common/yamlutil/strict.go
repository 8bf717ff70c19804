// Package yamlutil provides the strict YAML decoding the config loader
// is built on.
package yamlutil

import (
	"bytes"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

// UnmarshalStrict decodes YAML into v and rejects any field the target
// struct does not declare. A mistyped key in a config file must fail the
// load loudly instead of silently falling back to a default.
//
// yaml.v3 reports undeclared fields through a TypeError; that case gets a
// hint prepended so the operator knows to look for a typo.
func UnmarshalStrict(data []byte, v interface{}) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(v); err != nil {
		var typeErr *yaml.TypeError
		if errors.As(err, &typeErr) {
			return fmt.Errorf("configuration does not match the expected schema (check for typos): %w", err)
		}
		return err
	}
	return nil
}
