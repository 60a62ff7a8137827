package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// lookup parses the variable named key, falling back to def when it is
// unset or does not parse.
func lookup[T any](key string, def T, parse func(string) (T, error)) T {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	v, err := parse(strings.TrimSpace(raw))
	if err != nil {
		return def
	}
	return v
}

func getEnv(key, defaultVal string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	return lookup(key, defaultVal, strconv.Atoi)
}

func getEnvAsBool(key string, defaultVal bool) bool {
	return lookup(key, defaultVal, strconv.ParseBool)
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	return lookup(key, defaultVal, time.ParseDuration)
}

// Amounts are never parsed as floats.
func getEnvAsDecimal(key string, defaultVal decimal.Decimal) decimal.Decimal {
	return lookup(key, defaultVal, decimal.NewFromString)
}

func getEnvAsStringSlice(key string, defaults []string) []string {
	return lookup(key, defaults, func(raw string) ([]string, error) {
		var out []string
		for _, part := range strings.Split(raw, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
		if len(out) == 0 {
			return nil, strconv.ErrSyntax
		}
		return out, nil
	})
}
