package usagetimer

import "fmt"

// FormatClock renders elapsed seconds as zero-padded HH:MM.
func FormatClock(elapsedSeconds int) string {
	hours := elapsedSeconds / 3600
	minutes := (elapsedSeconds % 3600) / 60
	return fmt.Sprintf("%02d:%02d", hours, minutes)
}
