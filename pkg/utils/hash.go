package utils

import (
	"crypto/md5"
	"fmt"
	"strings"
)

func HashString(input string) string {
	hash := md5.Sum([]byte(input))
	return fmt.Sprintf("%x", hash)
}

// HashLines produces a stable key for a set of sample lines.
func HashLines(prefix string, lines []string) string {
	return HashString(prefix + "\n" + strings.Join(lines, "\n"))
}
