// Package expansion expands "${target}" placeholders in the string fields of settings
// structs, such as the connection settings of secret providers.
package expansion

import (
	"os"
	"reflect"
	"strings"

	"github.com/pkg/errors"
)

// Expander returns the value of a placeholder target.
type Expander func(target string) (string, error)

// ExpandVariables recursively traverses the fields of a struct and expands placeholders
// in string fields with expand. It handles nested structs, pointers, slices and maps.
// The toExpand parameter must be a pointer to the value to expand. Expansion stops at
// the first target that fails.
func ExpandVariables(toExpand any, expand Expander) error {
	if toExpand == nil {
		return nil
	}

	v := reflect.ValueOf(toExpand)
	if v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return nil
		}
		return expandValue(v.Elem(), expand)
	}
	return expandValue(v, expand)
}

func expandValue(val reflect.Value, expand Expander) error {
	switch val.Kind() {
	case reflect.String:
		if !val.CanSet() {
			return nil
		}
		var expandErr error
		expanded := os.Expand(strings.TrimSpace(val.String()), func(target string) string {
			if expandErr != nil {
				return ""
			}
			value, err := expand(target)
			if err != nil {
				expandErr = errors.Wrapf(err, "error expanding %q", target)
				return ""
			}
			return value
		})
		if expandErr != nil {
			return expandErr
		}
		val.SetString(expanded)

	case reflect.Struct:
		for i := 0; i < val.NumField(); i++ {
			if err := expandValue(val.Field(i), expand); err != nil {
				return err
			}
		}

	case reflect.Ptr:
		if !val.IsNil() {
			return expandValue(val.Elem(), expand)
		}

	case reflect.Slice:
		for j := 0; j < val.Len(); j++ {
			if err := expandValue(val.Index(j), expand); err != nil {
				return err
			}
		}

	case reflect.Map:
		for _, key := range val.MapKeys() {
			// map values are not addressable
			newVal := reflect.New(val.Type().Elem()).Elem()
			newVal.Set(val.MapIndex(key))
			if err := expandValue(newVal, expand); err != nil {
				return err
			}
			val.SetMapIndex(key, newVal)
		}
	}

	return nil
}
