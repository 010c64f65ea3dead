// Package archcheck backs the import-boundary and interface-shape tests.
package archcheck

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"io/fs"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"testing"
)

// Rule names why an import is refused; it returns "" for allowed paths.
type Rule func(importPath string) string

// Forbid refuses importPath and everything below it.
func Forbid(reason string, prefixes ...string) Rule {
	return func(importPath string) string {
		for _, prefix := range prefixes {
			if importPath == prefix || strings.HasPrefix(importPath, prefix+"/") {
				return reason
			}
		}
		return ""
	}
}

// CallerDir is the directory of the test file that calls it.
func CallerDir(t testing.TB) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(1)
	if !ok {
		t.Fatal("failed to resolve caller file path")
	}
	return filepath.Dir(file)
}

// CheckImports parses the non-test Go files under dir (recursively when
// recursive is set) and fails t listing every import a rule refuses.
func CheckImports(t testing.TB, dir string, recursive bool, rules ...Rule) {
	t.Helper()
	fset := token.NewFileSet()
	var violations []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && !recursive {
				return fs.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
			return nil
		}
		parsed, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
		if err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		rel, _ := filepath.Rel(dir, path)
		for _, imp := range parsed.Imports {
			importPath := strings.Trim(imp.Path.Value, `"`)
			for _, rule := range rules {
				if reason := rule(importPath); reason != "" {
					violations = append(violations, fmt.Sprintf("%s:%d imports %q (%s)",
						rel, fset.Position(imp.Path.Pos()).Line, importPath, reason))
					break
				}
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("walk %s: %v", dir, err)
	}
	if len(violations) > 0 {
		t.Fatalf("import boundary violations:\n- %s", strings.Join(violations, "\n- "))
	}
}

// Interface finds the named interface declared in file.
func Interface(t testing.TB, file *ast.File, name string) *ast.InterfaceType {
	t.Helper()
	for _, decl := range file.Decls {
		gen, ok := decl.(*ast.GenDecl)
		if !ok || gen.Tok != token.TYPE {
			continue
		}
		for _, spec := range gen.Specs {
			ts, ok := spec.(*ast.TypeSpec)
			if !ok || ts.Name.Name != name {
				continue
			}
			iface, ok := ts.Type.(*ast.InterfaceType)
			if !ok {
				t.Fatalf("type %q is not an interface", name)
			}
			return iface
		}
	}
	t.Fatalf("interface %q not found", name)
	return nil
}

// Shape returns the sorted embedded interface names and declared method names.
func Shape(iface *ast.InterfaceType) (embeds, methods []string) {
	for _, field := range iface.Methods.List {
		if len(field.Names) == 0 {
			switch v := field.Type.(type) {
			case *ast.Ident:
				embeds = append(embeds, v.Name)
			case *ast.SelectorExpr:
				if pkg, ok := v.X.(*ast.Ident); ok {
					embeds = append(embeds, pkg.Name+"."+v.Sel.Name)
				}
			}
			continue
		}
		for _, name := range field.Names {
			methods = append(methods, name.Name)
		}
	}
	slices.Sort(embeds)
	slices.Sort(methods)
	return embeds, methods
}
