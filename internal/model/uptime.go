package model

import "fmt"

// secondsPerYear is the mean Gregorian year.
const secondsPerYear = 31556952

// SplitUptime breaks seconds into days, hours, minutes and seconds.
// Whole years are discarded.
func SplitUptime(seconds int64) (days, hours, minutes, secs int64) {
	if seconds < 0 {
		seconds = 0
	}
	s := seconds % secondsPerYear
	minutes, secs = s/60, s%60
	hours, minutes = minutes/60, minutes%60
	days, hours = hours/24, hours%24
	return days, hours, minutes, secs
}

// FormatUptime renders seconds as "<days> days <h>:<m>:<s>".
func FormatUptime(seconds int64) string {
	d, h, m, s := SplitUptime(seconds)
	return fmt.Sprintf("%d days %d:%d:%d", d, h, m, s)
}
