package utils

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// SafeEnv returns the environment variable value for key, or fallback if empty.
func SafeEnv(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func EnvInt(key string, fallback int) (int, error) {
	v := SafeEnv(key, "")
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback, fmt.Errorf("%s: %q is not an integer", key, v)
	}
	return n, nil
}

func EnvBool(key string, fallback bool) (bool, error) {
	v := SafeEnv(key, "")
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback, fmt.Errorf("%s: %q is not a boolean", key, v)
	}
	return b, nil
}

func EnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := SafeEnv(key, "")
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback, fmt.Errorf("%s: %q is not a duration", key, v)
	}
	return d, nil
}

// EnvList splits a comma-separated value, dropping blank items.
func EnvList(key string, fallback []string) []string {
	v := SafeEnv(key, "")
	if v == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
