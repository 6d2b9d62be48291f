package pipeline

import (
	"fmt"
	"regexp"
)

// FallbackPatternText matches any line, capturing it whole. It is the
// terminal answer when no acceptable pattern can be established.
const FallbackPatternText = `(?s)^(?P<message>.*)$`

// CompiledPattern is a validated extraction rule: a regular expression
// whose named capture groups become the fields of a parsed document.
type CompiledPattern struct {
	re     *regexp.Regexp
	groups []string
}

// CompilePattern compiles a pattern string and checks it is usable for
// extraction. A pattern without named capture groups is rejected: it
// could match but would never extract anything.
func CompilePattern(text string) (*CompiledPattern, error) {
	re, err := regexp.Compile(text)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern syntax: %w", err)
	}

	var groups []string
	for _, name := range re.SubexpNames() {
		if name != "" {
			groups = append(groups, name)
		}
	}
	if len(groups) == 0 {
		return nil, fmt.Errorf("pattern has no named capture groups")
	}

	return &CompiledPattern{re: re, groups: groups}, nil
}

// Groups returns the capture names, in pattern order.
func (p *CompiledPattern) Groups() []string {
	return p.groups
}

// Extract applies the pattern to one line. The second return is false
// when the line does not match.
func (p *CompiledPattern) Extract(line string) (map[string]string, bool) {
	matches := p.re.FindStringSubmatch(line)
	if matches == nil {
		return nil, false
	}

	fields := make(map[string]string, len(p.groups))
	for i, name := range p.re.SubexpNames() {
		if i == 0 || name == "" {
			continue
		}
		fields[name] = matches[i]
	}

	return fields, true
}
