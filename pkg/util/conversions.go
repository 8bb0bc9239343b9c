package util

import (
	"fmt"
	"strconv"
	"strings"
)

// Uint64ToString converts a snowflake to its decimal string form.
func Uint64ToString(n uint64) string {
	return strconv.FormatUint(n, 10)
}

// StringToUint64 parses a decimal snowflake.
func StringToUint64(s string) (uint64, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse uint64: %w", err)
	}
	return n, nil
}

// ParseIDList parses a comma separated list of snowflakes, skipping blanks.
func ParseIDList(s string) ([]uint64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	ids := make([]uint64, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := StringToUint64(part)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// JoinIDs renders snowflakes as a comma separated list.
func JoinIDs(ids []uint64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = Uint64ToString(id)
	}
	return strings.Join(parts, ",")
}

// Mention renders a user mention.
func Mention(userID uint64) string {
	return "<@" + Uint64ToString(userID) + ">"
}
