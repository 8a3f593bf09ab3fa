package adapter

import (
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/elliotchance/phpserialize"
)

// HoursWorkedKey is the entry of the serialized resource details holding the
// day of month to hours mapping.
const HoursWorkedKey = "hoursWorked"

// ParseHoursWorked decodes a PHP-serialized details payload and returns its
// day to hours mapping. A malformed payload, or one without the hoursWorked
// entry, yields an empty map and a non-nil error describing why.
func ParseHoursWorked(payload string) (map[int]float64, error) {
	hours := map[int]float64{}
	if payload == "" {
		return hours, errors.New("empty payload")
	}
	content, err := phpserialize.UnmarshalAssociativeArray([]byte(payload))
	if err != nil {
		return hours, fmt.Errorf("unserialize details: %w", err)
	}
	raw, ok := content[HoursWorkedKey]
	if !ok {
		return hours, fmt.Errorf("details have no %s entry", HoursWorkedKey)
	}
	days, ok := raw.(map[interface{}]interface{})
	if !ok {
		return hours, fmt.Errorf("%s is %T, not an array", HoursWorkedKey, raw)
	}

	parsed := make(map[int]float64, len(days))
	for key, value := range days {
		day, ok := toInt(key)
		if !ok {
			return hours, fmt.Errorf("invalid day %v", key)
		}
		h, ok := toFloat(value)
		if !ok {
			return hours, fmt.Errorf("invalid hours %v for day %d", value, day)
		}
		parsed[day] = h
	}
	return parsed, nil
}

// SortedDays returns the days of hours in ascending order.
func SortedDays(hours map[int]float64) []int {
	days := make([]int, 0, len(hours))
	for day := range hours {
		days = append(days, day)
	}
	sort.Ints(days)
	return days
}

func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int64:
		return int(n), true
	case int:
		return n, true
	case string:
		i, err := strconv.Atoi(n)
		return i, err == nil
	default:
		return 0, false
	}
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	case nil:
		return 0, true
	default:
		return 0, false
	}
}
