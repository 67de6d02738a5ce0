package utils

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

func GetStringEnv(envVar string, defaultValue string) string {
	envValue, ok := os.LookupEnv(envVar)
	if !ok || envValue == "" {
		return defaultValue
	}
	return envValue
}

func GetIntEnv(envVar string, defaultValue int) (int, error) {
	envValue, ok := os.LookupEnv(envVar)
	if !ok || envValue == "" {
		return defaultValue, nil
	}
	intValue, err := strconv.Atoi(envValue)
	if err != nil {
		return defaultValue, errors.Newf("environment variable %s is not valid: '%s' is not an integer", envVar, envValue)
	}
	return intValue, nil
}

func GetFloatEnv(envVar string, defaultValue float64) (float64, error) {
	envValue, ok := os.LookupEnv(envVar)
	if !ok || envValue == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(envValue, 64)
	if err != nil {
		return defaultValue, errors.Newf("environment variable %s is not valid: '%s' is not a number", envVar, envValue)
	}
	return value, nil
}

func GetDurationEnv(envVar string, defaultValue time.Duration) (time.Duration, error) {
	envValue, ok := os.LookupEnv(envVar)
	if !ok || envValue == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(envValue)
	if err != nil {
		return defaultValue, errors.Newf("environment variable %s is not valid: '%s' is not a duration", envVar, envValue)
	}
	return d, nil
}

// GetListEnv splits a comma separated variable, dropping empty items
func GetListEnv(envVar string) []string {
	envValue, ok := os.LookupEnv(envVar)
	if !ok || envValue == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(envValue, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func GetBoolEnv(envVar string, defaultValue bool) (bool, error) {
	envValue, ok := os.LookupEnv(envVar)
	if !ok || envValue == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseBool(envValue)
	if err != nil {
		return defaultValue, errors.Newf("environment variable %s is not valid: '%s' is not a boolean", envVar, envValue)
	}
	return value, nil
}
