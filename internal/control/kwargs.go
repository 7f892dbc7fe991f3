package control

import (
	"fmt"
	"strconv"
)

func floatKwarg(kwargs map[string]string, key string) (float64, error) {
	raw, ok := kwargs[key]
	if !ok {
		return 0, fmt.Errorf("control: missing required kwarg %q", key)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("control: kwarg %q: %w", key, err)
	}
	return v, nil
}

func optionalFloatKwarg(kwargs map[string]string, key string) (float64, bool) {
	raw, ok := kwargs[key]
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
