package expect

import "regexp"

// colorCodeRe matches ANSI SGR sequences such as "\x1b[1;32m".
var colorCodeRe = regexp.MustCompile("\x1b[^m]*m")

// Sanitize strips terminal colour sequences from line.
func Sanitize(line string) string {
	return colorCodeRe.ReplaceAllString(line, "")
}
