package blueprint

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/duke-git/lancet/v2/convertor"

	apperrors "github.com/CSC-IT-Center-for-Science/resource-cloud/internal/pkg/errors"
)

const (
	// DefaultMaximumLifetime is used when maximum_lifetime is missing or empty, in seconds.
	DefaultMaximumLifetime int64 = 3600
	DefaultCostMultiplier        = 1.0
)

// lifetimeRe is the maximum_lifetime grammar, e.g. "1d 2h 30m", "0d2h 30m", "45m".
var lifetimeRe = regexp.MustCompile(`^(\d+d\s?)?(\d{1,2}h\s?)?(\d{1,2}m\s?)?$`)

// ParseMaximumLifetime converts a lifetime string to seconds. The empty
// string means "use the default"; anything outside the grammar is rejected.
func ParseMaximumLifetime(s string) (int64, error) {
	if s == "" {
		return DefaultMaximumLifetime, nil
	}
	m := lifetimeRe.FindStringSubmatch(s)
	if m == nil {
		return 0, invalidDuration(s)
	}

	var total int64
	for i, unit := range []int64{86400, 3600, 60} {
		part := strings.TrimSpace(m[i+1])
		if part == "" {
			continue
		}
		n, err := strconv.ParseInt(part[:len(part)-1], 10, 64)
		if err != nil || n > (1<<62)/unit {
			return 0, invalidDuration(s)
		}
		total += n * unit
	}
	return total, nil
}

func invalidDuration(s string) error {
	return apperrors.Validation(apperrors.CodeInvalidDuration,
		fmt.Sprintf("maximum_lifetime %q must look like \"1d 2h 30m\"", s)).
		WithParams(map[string]interface{}{"value": s})
}

// MaximumLifetime returns the configured lifetime in seconds. A missing key,
// nil or empty value yields DefaultMaximumLifetime; a malformed value is an
// error, never a silent default.
func MaximumLifetime(cfg Config) (int64, error) {
	v, ok := cfg[KeyMaximumLifetime]
	if !ok || v == nil {
		return DefaultMaximumLifetime, nil
	}
	return ParseMaximumLifetime(fmt.Sprint(v))
}

// CostMultiplier returns the configured multiplier, or DefaultCostMultiplier
// when the key is missing or does not parse as a decimal.
func CostMultiplier(cfg Config) float64 {
	v, ok := cfg[KeyCostMultiplier]
	if !ok || v == nil {
		return DefaultCostMultiplier
	}
	if s, isStr := v.(string); isStr {
		v = strings.TrimSpace(s)
	}
	f, err := convertor.ToFloat(v)
	if err != nil {
		return DefaultCostMultiplier
	}
	return f
}

// PreallocatedCredits reports the preallocated_credits flag, false unless it
// coerces cleanly to true.
func PreallocatedCredits(cfg Config) bool {
	return boolField(cfg, KeyPreallocatedCredits)
}

// AllowUpdateConnectivity reports whether users may push a new client address
// for instances of this configuration.
func AllowUpdateConnectivity(cfg Config) bool {
	return boolField(cfg, KeyAllowUpdateClientConnectivity)
}

func boolField(cfg Config, key string) bool {
	switch v := cfg[key].(type) {
	case bool:
		return v
	case string:
		b, err := convertor.ToBool(strings.TrimSpace(v))
		return err == nil && b
	case nil:
		return false
	default:
		f, err := convertor.ToFloat(v)
		return err == nil && f != 0
	}
}

// maxDurationSeconds is the longest lifetime time.Duration can hold.
const maxDurationSeconds = int64(math.MaxInt64 / int64(time.Second))

// LifetimeLeft is the time remaining before an instance provisioned at
// provisionedAt exceeds its maximum lifetime, never negative. An instance
// that never reached running has its full lifetime left. Lifetimes beyond
// the range of time.Duration saturate at math.MaxInt64.
func LifetimeLeft(cfg Config, provisionedAt *time.Time, now time.Time) (time.Duration, error) {
	maxLife, err := MaximumLifetime(cfg)
	if err != nil {
		return 0, err
	}
	age := instanceAge(provisionedAt, now)
	if maxLife > maxDurationSeconds {
		left := maxLife - int64(age/time.Second)
		if left > maxDurationSeconds {
			return time.Duration(math.MaxInt64), nil
		}
		return time.Duration(left) * time.Second, nil
	}
	left := time.Duration(maxLife)*time.Second - age
	if left < 0 {
		return 0, nil
	}
	return left, nil
}

// LifetimeLeftSeconds is LifetimeLeft rounded to whole seconds, without the
// time.Duration range limit.
func LifetimeLeftSeconds(cfg Config, provisionedAt *time.Time, now time.Time) (int64, error) {
	maxLife, err := MaximumLifetime(cfg)
	if err != nil {
		return 0, err
	}
	left := maxLife - int64(math.Round(instanceAge(provisionedAt, now).Seconds()))
	return max(left, 0), nil
}

func instanceAge(provisionedAt *time.Time, now time.Time) time.Duration {
	if provisionedAt == nil {
		return 0
	}
	return max(now.Sub(*provisionedAt), 0)
}
