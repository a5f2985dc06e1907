package utils

import (
	"time"
)

// FormatDuration - продолжительность с точностью до секунды, знак отбрасывается.
//
//	45s, 5m30s, 2h15m0s
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = -d
	}
	return d.Truncate(time.Second).String()
}

// FormatUTC - время в RFC3339 UTC, как оно уходит в алерты
func FormatUTC(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// FormatUTCNano - RFC3339Nano UTC, для ключей дедупликации
func FormatUTCNano(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
