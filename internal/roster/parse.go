package roster

import (
	"bufio"
	"io"
	"os"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"rollcall/internal/errors"
)

// ParseNames reads one name per line. Lines are trimmed, blank lines are
// skipped, and a leading UTF-8 or UTF-16 byte order mark is honoured.
func ParseNames(r io.Reader) ([]string, error) {
	decoded := transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))

	names := []string{}
	scanner := bufio.NewScanner(decoded)
	for scanner.Scan() {
		if name := strings.TrimSpace(scanner.Text()); name != "" {
			names = append(names, name)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.IOFailure(err, "read names")
	}
	return names, nil
}

// ParseFile opens path and parses it with ParseNames.
func ParseFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.IOFailure(err, "open name list")
	}
	defer f.Close()
	return ParseNames(f)
}
