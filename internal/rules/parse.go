package rules

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

type rule interface {
	rewrite(input string) (output string, changed bool)
}

// LineParser turns one rules-file line into a rule.
type LineParser interface {
	Matches(line string) bool
	Parse(line string) (rule, error)
}

// DefaultParsers returns the sed style parser followed by the literal one.
func DefaultParsers() []LineParser {
	return []LineParser{sedParser{}, literalParser{}}
}

func parse(contents string, parsers []LineParser) ([]rule, error) {
	lines := strings.Split(contents, "\n")
	out := make([]rule, 0, len(lines))

	for index, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		var parsed rule
		for _, parser := range parsers {
			if !parser.Matches(line) {
				continue
			}
			r, err := parser.Parse(line)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", index+1, err)
			}
			parsed = r
			break
		}
		if parsed == nil {
			return nil, fmt.Errorf("line %d: unsupported rule format", index+1)
		}
		out = append(out, parsed)
	}

	return out, nil
}

type literalParser struct{}

func (literalParser) Matches(line string) bool {
	return strings.Contains(line, "=>")
}

func (literalParser) Parse(line string) (rule, error) {
	return parseLiteral(line)
}

// literal replaces every case-insensitive occurrence of a phrase.
type literal struct {
	re *regexp.Regexp
	to string
}

func parseLiteral(line string) (rule, error) {
	from, to, ok := strings.Cut(line, "=>")
	if !ok {
		return nil, errors.New("invalid literal rule")
	}
	from = strings.TrimSpace(from)
	if from == "" {
		return nil, errors.New("literal rule source cannot be empty")
	}

	re, err := regexp.Compile("(?i)" + regexp.QuoteMeta(from))
	if err != nil {
		return nil, fmt.Errorf("invalid literal source: %w", err)
	}
	return literal{re: re, to: strings.TrimSpace(to)}, nil
}

func (l literal) rewrite(input string) (string, bool) {
	output := l.re.ReplaceAllLiteralString(input, l.to)
	return output, output != input
}

type sedParser struct{}

func (sedParser) Matches(line string) bool {
	return len(line) > 1 && line[0] == 's' && !isWordOrSpace(line[1])
}

func (sedParser) Parse(line string) (rule, error) {
	return parseSed(line)
}

// sed is an s/pattern/replacement/flags rule. Matching is case-insensitive
// unless the pattern says otherwise; without g only the first match changes.
type sed struct {
	re          *regexp.Regexp
	replacement string
	global      bool
}

func parseSed(line string) (rule, error) {
	if len(line) < 2 {
		return nil, errors.New("invalid regex rule")
	}
	delim := line[1]
	if isWordOrSpace(delim) {
		return nil, errors.New("regex delimiter must be non-alphanumeric")
	}

	pattern, pos, err := readDelimited(line, 2, delim)
	if err != nil {
		return nil, fmt.Errorf("invalid regex pattern: %w", err)
	}
	replacement, pos, err := readDelimited(line, pos, delim)
	if err != nil {
		return nil, fmt.Errorf("invalid regex replacement: %w", err)
	}

	inline := "i"
	global := false
	for _, flag := range strings.TrimSpace(line[pos:]) {
		switch flag {
		case 'i':
		case 'g':
			global = true
		case 'm', 's':
			if !strings.ContainsRune(inline, flag) {
				inline += string(flag)
			}
		case ' ':
		default:
			return nil, fmt.Errorf("unsupported regex flag %q", flag)
		}
	}

	re, err := regexp.Compile("(?" + inline + ")" + pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regex: %w", err)
	}
	return sed{re: re, replacement: replacement, global: global}, nil
}

func (s sed) rewrite(input string) (string, bool) {
	if s.global {
		output := s.re.ReplaceAllString(input, s.replacement)
		return output, output != input
	}

	loc := s.re.FindStringSubmatchIndex(input)
	if loc == nil {
		return input, false
	}
	expanded := s.re.ExpandString(nil, s.replacement, input, loc)
	output := input[:loc[0]] + string(expanded) + input[loc[1]:]
	return output, output != input
}

func readDelimited(line string, start int, delim byte) (string, int, error) {
	if start >= len(line) {
		return "", 0, errors.New("unexpected end of expression")
	}

	var b strings.Builder
	escaped := false
	for index := start; index < len(line); index++ {
		char := line[index]
		switch {
		case escaped:
			escaped = false
		case char == '\\':
			escaped = true
		case char == delim:
			return b.String(), index + 1, nil
		}
		b.WriteByte(char)
	}
	return "", 0, errors.New("unterminated expression")
}

func isWordOrSpace(char byte) bool {
	return (char >= 'a' && char <= 'z') ||
		(char >= 'A' && char <= 'Z') ||
		(char >= '0' && char <= '9') ||
		char == ' ' || char == '\t'
}
