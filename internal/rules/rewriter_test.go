package rules

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeRules(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fragments.rules")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("failed to write rules file: %v", err)
	}
	return path
}

func TestRewriterLiteralAndSedRules(t *testing.T) {
	t.Parallel()

	path := writeRules(t, `
# punctuation spoken aloud
question mark => ?
s/\bdeep\s*gram\b/Deepgram/g
`)

	rewriter, err := New(path, 30)
	if err != nil {
		t.Fatalf("failed to create rewriter: %v", err)
	}
	if rewriter.Len() != 2 {
		t.Fatalf("expected 2 rules, got %d", rewriter.Len())
	}

	output, err := rewriter.Apply("is deep gram live question mark")
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if output != "is Deepgram live ?" {
		t.Fatalf("unexpected output: %q", output)
	}
}

func TestRewriterIteratesUntilStable(t *testing.T) {
	t.Parallel()

	path := writeRules(t, "a => b\nb => c\n")
	rewriter, err := New(path, 5)
	if err != nil {
		t.Fatalf("failed to create rewriter: %v", err)
	}

	output, _ := rewriter.Apply("a")
	if output != "c" {
		t.Fatalf("expected c, got %q", output)
	}
}

func TestRewriterIterationLimitStopsCycles(t *testing.T) {
	t.Parallel()

	path := writeRules(t, "ping => pong\npong => ping\n")
	rewriter, err := New(path, 3)
	if err != nil {
		t.Fatalf("failed to create rewriter: %v", err)
	}

	if _, err := rewriter.Apply("ping"); err != nil {
		t.Fatalf("apply failed: %v", err)
	}
}

func TestRewriterLiteralRuleStartingWithS(t *testing.T) {
	t.Parallel()

	path := writeRules(t, "send it => submit\n")
	rewriter, err := New(path, 30)
	if err != nil {
		t.Fatalf("failed to create rewriter: %v", err)
	}

	output, _ := rewriter.Apply("Send it now")
	if output != "submit now" {
		t.Fatalf("unexpected output: %q", output)
	}
}

func TestRewriterLiteralReplacementIsNotExpanded(t *testing.T) {
	t.Parallel()

	path := writeRules(t, "dollar sign => $1\n")
	rewriter, err := New(path, 30)
	if err != nil {
		t.Fatalf("failed to create rewriter: %v", err)
	}

	output, _ := rewriter.Apply("a dollar sign")
	if output != "a $1" {
		t.Fatalf("unexpected output: %q", output)
	}
}

func TestRewriterMissingOrEmptyPathIsIdentity(t *testing.T) {
	t.Parallel()

	for _, path := range []string{"", filepath.Join(t.TempDir(), "absent.rules")} {
		rewriter, err := New(path, 0)
		if err != nil {
			t.Fatalf("path %q: unexpected error %v", path, err)
		}
		if output, _ := rewriter.Apply("unchanged"); output != "unchanged" {
			t.Fatalf("path %q: unexpected output %q", path, output)
		}
	}
}

func TestRewriterParseErrorFailsConstruction(t *testing.T) {
	t.Parallel()

	path := writeRules(t, "not-a-rule\n")
	if _, err := New(path, 0); err == nil || !strings.Contains(err.Error(), "line 1") {
		t.Fatalf("expected line error, got %v", err)
	}
}

func TestRewriterReloadKeepsPreviousRulesOnError(t *testing.T) {
	t.Parallel()

	path := writeRules(t, "hello => hi\n")
	rewriter, err := New(path, 0)
	if err != nil {
		t.Fatalf("failed to create rewriter: %v", err)
	}

	if err := os.WriteFile(path, []byte("s/broken\n"), 0o600); err != nil {
		t.Fatalf("rewrite rules: %v", err)
	}
	if err := rewriter.Reload(); err == nil {
		t.Fatalf("expected reload error")
	}

	output, _ := rewriter.Apply("hello")
	if output != "hi" {
		t.Fatalf("expected previous rules to stay active, got %q", output)
	}
}

func TestRewriterSupportsParserExtension(t *testing.T) {
	t.Parallel()

	path := writeRules(t, "prefix:Hello=>Howdy\n")
	parsers := append([]LineParser{prefixParser{}}, DefaultParsers()...)
	rewriter, err := NewWithParsers(path, 5, parsers)
	if err != nil {
		t.Fatalf("failed to create rewriter: %v", err)
	}

	output, _ := rewriter.Apply("hello world")
	if output != "Howdy world" {
		t.Fatalf("unexpected output: %q", output)
	}
}

func TestSedRuleWithoutGlobalReplacesFirstMatchOnly(t *testing.T) {
	t.Parallel()

	r, err := parseSed(`s/(\w+) mark/$1!/`)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	output, changed := r.rewrite("exclamation mark exclamation mark")
	if !changed {
		t.Fatalf("expected change")
	}
	if output != "exclamation! exclamation mark" {
		t.Fatalf("unexpected output: %q", output)
	}
}

func TestParseSedUnsupportedFlag(t *testing.T) {
	t.Parallel()

	if _, err := parseSed(`s/foo/bar/x`); err == nil {
		t.Fatalf("expected unsupported flag error")
	}
}

func TestParseSedUnterminated(t *testing.T) {
	t.Parallel()

	if _, err := parseSed(`s/foo/bar`); err == nil {
		t.Fatalf("expected unterminated expression error")
	}
}

type prefixParser struct{}

func (prefixParser) Matches(line string) bool {
	return strings.HasPrefix(line, "prefix:")
}

func (prefixParser) Parse(line string) (rule, error) {
	from, to, ok := strings.Cut(strings.TrimPrefix(line, "prefix:"), "=>")
	if !ok {
		return nil, fmt.Errorf("invalid prefix rule")
	}
	return parseLiteral(from + " => " + to)
}
