package main

import (
	"fmt"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const modulePath = "sntportal"

type violation struct {
	File   string
	Line   int
	Import string
	Rule   string
}

// layerRule lists what a layer inside a context may import besides the
// standard library. Paths are relative to the context root.
type layerRule struct {
	noAdapters bool
	noRuntime  bool
	// allowed nil means any third-party import is fine.
	allowed []string
	shared  []string
}

var layerRules = map[string]layerRule{
	"domain": {
		noAdapters: true,
		noRuntime:  true,
		allowed:    []string{"domain"},
	},
	"ports": {
		noAdapters: true,
		noRuntime:  true,
		allowed:    []string{"domain", "ports"},
		shared:     []string{"contracts"},
	},
	"application": {
		noAdapters: true,
		noRuntime:  true,
		allowed:    []string{"application", "domain", "ports"},
		shared:     []string{"contracts"},
	},
	"transport": {
		noAdapters: true,
		noRuntime:  true,
		allowed:    []string{"transport"},
	},
	"adapters": {
		noRuntime: true,
	},
}

func main() {
	violations := collectViolations("contexts")
	if len(violations) == 0 {
		fmt.Println("boundary checks passed")
		return
	}

	sort.Slice(violations, func(i, j int) bool {
		if violations[i].File != violations[j].File {
			return violations[i].File < violations[j].File
		}
		if violations[i].Line != violations[j].Line {
			return violations[i].Line < violations[j].Line
		}
		return violations[i].Import < violations[j].Import
	})

	fmt.Println("boundary violations found:")
	for _, v := range violations {
		fmt.Printf("- %s:%d imports %q (%s)\n", v.File, v.Line, v.Import, v.Rule)
	}
	os.Exit(1)
}

func collectViolations(root string) []violation {
	var violations []violation

	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
			return nil
		}

		parts := strings.Split(filepath.ToSlash(path), "/")
		if len(parts) < 4 || parts[0] != "contexts" {
			return nil
		}
		contextRoot := fmt.Sprintf("%s/contexts/%s/%s", modulePath, parts[1], parts[2])
		violations = append(violations, validateFile(path, parts[3], contextRoot)...)
		return nil
	})

	return violations
}

func validateFile(path string, layer string, contextRoot string) []violation {
	file := filepath.ToSlash(path)
	fset := token.NewFileSet()
	parsed, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
	if err != nil {
		return []violation{{File: file, Line: 1, Rule: "file must parse"}}
	}

	rule, ruled := layerRules[layer]
	var violations []violation
	report := func(line int, importPath string, msg string) {
		violations = append(violations, violation{File: file, Line: line, Import: importPath, Rule: msg})
	}

	for _, imp := range parsed.Imports {
		importPath := strings.Trim(imp.Path.Value, "\"")
		line := fset.Position(imp.Pos()).Line

		if strings.HasPrefix(importPath, modulePath+"/contexts/") && !hasPrefix(importPath, contextRoot) {
			report(line, importPath, "cross-context imports are forbidden")
		}
		if !ruled {
			continue
		}
		if rule.noAdapters && strings.Contains(importPath, "/adapters/") {
			report(line, importPath, layer+" must not import adapters")
		}
		if rule.noRuntime && isRuntimeImport(importPath) {
			report(line, importPath, layer+" must not import runtime infrastructure")
		}
		if rule.allowed != nil && !isStdlib(importPath) && !isAllowed(importPath, allowedPrefixes(rule, contextRoot)) {
			report(line, importPath, layer+" import is outside explicit allowlist")
		}
	}

	return violations
}

func allowedPrefixes(rule layerRule, contextRoot string) []string {
	prefixes := make([]string, 0, len(rule.allowed)+len(rule.shared))
	for _, sub := range rule.allowed {
		prefixes = append(prefixes, contextRoot+"/"+sub)
	}
	for _, sub := range rule.shared {
		prefixes = append(prefixes, modulePath+"/"+sub)
	}
	return prefixes
}

func isRuntimeImport(importPath string) bool {
	return strings.HasPrefix(importPath, modulePath+"/internal/") ||
		strings.HasPrefix(importPath, modulePath+"/cmd/")
}

func hasPrefix(path string, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

func isAllowed(importPath string, allowedPrefixes []string) bool {
	for _, p := range allowedPrefixes {
		if hasPrefix(importPath, p) {
			return true
		}
	}
	return false
}

func isStdlib(importPath string) bool {
	if hasPrefix(importPath, modulePath) {
		return false
	}
	first := importPath
	if idx := strings.Index(first, "/"); idx != -1 {
		first = first[:idx]
	}
	return !strings.Contains(first, ".")
}
