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

// layer rules: files under any of dirs must not import any of forbidden.
// Paths are relative to the module's internal/ directory.
var layers = []struct {
	name      string
	dirs      []string
	forbidden []string
}{
	{
		name:      "platform",
		dirs:      []string{"platform/"},
		forbidden: []string{"frame", "aggregations", "aggregator", "formula", "locks", "data/", "services/", "app/", "observability/"},
	},
	{
		name:      "engine",
		dirs:      []string{"frame/", "aggregations/"},
		forbidden: []string{"aggregator", "formula", "locks", "data/", "services/", "app/", "observability/"},
	},
	{
		// The aggregator sees storage only through its Dataset interface.
		name:      "aggregator",
		dirs:      []string{"aggregator/"},
		forbidden: []string{"formula", "data/", "services/", "app/", "observability/"},
	},
	{
		name:      "data",
		dirs:      []string{"data/"},
		forbidden: []string{"services/", "app/"},
	},
	{
		name:      "services",
		dirs:      []string{"services/"},
		forbidden: []string{"app/"},
	},
}

type sourceFile struct {
	rel     string // relative to internal/, slash separated
	test    bool
	imports []string
}

func TestImportBoundaries(t *testing.T) {
	module, files := scanInternal(t)

	var report []string
	for _, f := range files {
		if f.test {
			continue
		}
		for _, l := range layers {
			if !hasAnyPrefix(f.rel, l.dirs) {
				continue
			}
			for _, imp := range f.imports {
				for _, bad := range l.forbidden {
					if strings.HasPrefix(imp, module+"/internal/"+bad) {
						report = append(report, fmt.Sprintf("%s layer: internal/%s imports %q", l.name, f.rel, imp))
					}
				}
			}
		}
	}
	if len(report) > 0 {
		t.Fatalf("import boundary violations:\n- %s", strings.Join(report, "\n- "))
	}
}

// Configuration is resolved once at the edge and handed down as values.
func TestConfigImportedOnlyByWiring(t *testing.T) {
	module, files := scanInternal(t)
	cfgPkg := module + "/internal/config"

	var offenders []string
	for _, f := range files {
		if hasAnyPrefix(f.rel, []string{"app/", "config/"}) {
			continue
		}
		for _, imp := range f.imports {
			if imp == cfgPkg {
				offenders = append(offenders, "internal/"+f.rel)
			}
		}
	}
	if len(offenders) > 0 {
		t.Fatalf("internal/config imported outside internal/app: %v", offenders)
	}
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// scanInternal parses the import block of every Go file under internal/.
func scanInternal(t *testing.T) (string, []sourceFile) {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	root, err := findModuleRoot(wd)
	if err != nil {
		t.Fatalf("find module root: %v", err)
	}
	module, err := readModulePath(filepath.Join(root, "go.mod"))
	if err != nil {
		t.Fatalf("read module path: %v", err)
	}

	internal := filepath.Join(root, "internal")
	fset := token.NewFileSet()
	var files []sourceFile
	err = filepath.WalkDir(internal, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") || d.Name() == "vendor" {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) != ".go" {
			return nil
		}
		parsed, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(internal, path)
		if err != nil {
			return err
		}
		sf := sourceFile{rel: filepath.ToSlash(rel), test: strings.HasSuffix(path, "_test.go")}
		for _, is := range parsed.Imports {
			if imp, err := strconv.Unquote(is.Path.Value); err == nil {
				sf.imports = append(sf.imports, imp)
			}
		}
		files = append(files, sf)
		return nil
	})
	if err != nil {
		t.Fatalf("walk internal/: %v", err)
	}
	return module, files
}

func findModuleRoot(dir string) (string, error) {
	for start := dir; ; {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found above %s", start)
		}
		dir = parent
	}
}

func readModulePath(goMod string) (string, error) {
	f, err := os.Open(goMod)
	if err != nil {
		return "", err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 2 && fields[0] == "module" {
			return fields[1], nil
		}
	}
	if err := sc.Err(); err != nil {
		return "", err
	}
	return "", fmt.Errorf("no module directive in %s", goMod)
}
