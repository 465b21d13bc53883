package domain

import (
	"os"
	"strings"
	"testing"
)

// TestDomainStaysDependencyFree enforces the rule that the domain layer has
// no implementation dependencies: no internal packages, no third-party
// imports, standard library only.
func TestDomainStaysDependencyFree(t *testing.T) {
	entries, err := os.ReadDir(".")
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}
		data, err := os.ReadFile(name)
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		inBlock := false
		for _, raw := range strings.Split(string(data), "\n") {
			line := strings.TrimSpace(raw)
			switch {
			case !inBlock && strings.HasPrefix(line, "import ("):
				inBlock = true
				continue
			case inBlock && line == ")":
				inBlock = false
				continue
			case !inBlock && !strings.HasPrefix(line, "import "):
				continue
			}
			path := extractQuoted(line)
			if path == "" {
				continue
			}
			if strings.Contains(path, "/internal/") || strings.HasPrefix(path, "fieldlog/") {
				t.Errorf("%s: domain must not import %s", name, path)
			}
			if i := strings.Index(path, "/"); i > 0 && strings.Contains(path[:i], ".") {
				t.Errorf("%s: domain must not import third-party package %s", name, path)
			}
		}
	}
}

// extractQuoted returns the first double-quoted literal in a line, or "".
func extractQuoted(line string) string {
	start := strings.Index(line, "\"")
	if start == -1 {
		return ""
	}
	end := strings.Index(line[start+1:], "\"")
	if end == -1 {
		return ""
	}
	return line[start+1 : start+1+end]
}
