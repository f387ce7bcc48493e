// Package clifmt renders terminal output for the offline CLI.
package clifmt

import (
	"fmt"

	"github.com/fatih/color"
)

var (
	headerColor  = color.New(color.FgCyan, color.Bold)
	keyColor     = color.New(color.Bold)
	dimColor     = color.New(color.Faint)
	successColor = color.New(color.FgGreen)
	warnColor    = color.New(color.FgYellow)
	failureColor = color.New(color.FgRed)
)

// SetColor forces colors on or off. By default fatih/color disables them
// when stdout is not a terminal or NO_COLOR is set.
func SetColor(enabled bool) {
	color.NoColor = !enabled
}

func Headerf(format string, args ...any) string {
	return headerColor.Sprintf(format, args...)
}

func Key(s string) string {
	return keyColor.Sprint(s)
}

func Dim(s string) string {
	return dimColor.Sprint(s)
}

func Success(s string) string {
	return successColor.Sprint(s)
}

func Warn(s string) string {
	return warnColor.Sprint(s)
}

func Failure(s string) string {
	return failureColor.Sprint(s)
}

// Pair renders "key: value" with the key emphasized.
func Pair(key string, value any) string {
	return Key(key+":") + " " + fmt.Sprint(value)
}
