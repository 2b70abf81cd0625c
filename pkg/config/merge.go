package config

import "dario.cat/mergo"

// mergeOverlay merges a user-supplied YAML overlay onto a base config value,
// in place. Non-zero fields on overlay win, matching the established
// mergo.WithOverride convention for layering user config on top of
// built-in defaults.
func mergeOverlay[T any](base *T, overlay *T) error {
	if overlay == nil {
		return nil
	}
	return mergo.Merge(base, overlay, mergo.WithOverride)
}
