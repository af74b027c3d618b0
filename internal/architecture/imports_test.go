package architecture_test

import (
	"bufio"
	"fmt"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

type violation struct {
	file string
	imp  string
	rule string
}

// walkImports calls fn for every import of every .go file under internal/.
func walkImports(t *testing.T, fn func(rel, modulePath, imp string) (rule string, bad bool)) []violation {
	t.Helper()
	start, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	root, err := findModuleRoot(start)
	if err != nil {
		t.Fatalf("find module root: %v", err)
	}
	modulePath, err := readModulePath(filepath.Join(root, "go.mod"))
	if err != nil {
		t.Fatalf("read module path: %v", err)
	}

	fset := token.NewFileSet()
	var out []violation
	walkErr := filepath.WalkDir(filepath.Join(root, "internal"), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".go") {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		f, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
		if err != nil {
			return err
		}
		for _, spec := range f.Imports {
			imp, err := strconv.Unquote(spec.Path.Value)
			if err != nil {
				continue
			}
			if rule, bad := fn(rel, modulePath, imp); bad {
				out = append(out, violation{file: rel, imp: imp, rule: rule})
			}
		}
		return nil
	})
	if walkErr != nil {
		t.Fatalf("walk internal/: %v", walkErr)
	}
	return out
}

func report(t *testing.T, title string, vs []violation) {
	t.Helper()
	if len(vs) == 0 {
		return
	}
	var b strings.Builder
	b.WriteString(title + ":\n")
	for _, v := range vs {
		fmt.Fprintf(&b, "- %s imports %q (rule: %s)\n", v.file, v.imp, v.rule)
	}
	t.Fatal(b.String())
}

func TestImportBoundaries(t *testing.T) {
	vs := walkImports(t, func(rel, modulePath, imp string) (string, bool) {
		for _, bad := range disallowedImports(modulePath, layerFor(rel)) {
			if strings.HasPrefix(imp, bad) {
				return bad, true
			}
		}
		return "", false
	})
	report(t, "import boundary violations", vs)
}

// Infrastructure libraries stay behind their adapters.
func TestDriversStayInAdapters(t *testing.T) {
	allowed := map[string][]string{
		"github.com/gin-gonic/":       {"internal/http/"},
		"github.com/redis/go-redis/":  {"internal/realtime/bus/", "internal/jobs/state/", "internal/platform/search/", "internal/app/"},
		"github.com/nats-io/":         {"internal/realtime/bus/"},
		"cloud.google.com/go/storage": {"internal/platform/objectstore/"},
		"go.temporal.io/":             {"internal/temporalx/", "internal/app/"},
		"github.com/golang-jwt/":      {"internal/services/"},
		"github.com/prometheus/":      {"internal/observability/"},
	}
	vs := walkImports(t, func(rel, _, imp string) (string, bool) {
		for prefix, dirs := range allowed {
			if !strings.HasPrefix(imp, prefix) {
				continue
			}
			for _, d := range dirs {
				if strings.HasPrefix(rel, d) {
					return "", false
				}
			}
			return prefix + " only in " + strings.Join(dirs, ", "), true
		}
		return "", false
	})
	report(t, "driver imports outside their adapters", vs)
}

func layerFor(rel string) string {
	for _, l := range []string{"platform", "domain", "data", "generation", "jobs", "services", "http", "temporalx"} {
		if strings.HasPrefix(rel, "internal/"+l+"/") {
			return l
		}
	}
	return ""
}

func disallowedImports(modulePath, layer string) []string {
	p := func(names ...string) []string {
		out := make([]string, len(names))
		for i, n := range names {
			out[i] = modulePath + "/internal/" + n + "/"
		}
		return out
	}
	switch layer {
	case "platform":
		return p("domain", "data", "generation", "jobs", "services", "http", "app", "billing", "realtime", "temporalx")
	case "domain":
		return p("platform", "data", "generation", "jobs", "services", "http", "app", "billing")
	case "data":
		return p("generation", "jobs", "services", "http", "app")
	case "generation":
		return p("data", "services", "http", "app", "billing", "temporalx")
	case "jobs":
		return p("services", "http", "app", "temporalx")
	case "services":
		return p("http", "app", "temporalx", "jobs/pipeline")
	case "http", "temporalx":
		return p("app")
	}
	return nil
}

func findModuleRoot(start string) (string, error) {
	dir := start
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found from %s", start)
		}
		dir = parent
	}
}

func readModulePath(goModPath string) (string, error) {
	f, err := os.Open(goModPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "module ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "module ")), nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", fmt.Errorf("module directive not found in %s", goModPath)
}
