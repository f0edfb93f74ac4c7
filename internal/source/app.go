package source

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sbenjam1n/hlsopt/internal/hls"
)

const (
	KernelInfoFile = "Kernel-Info.txt"
	MappingFile    = "ActionPoint-Label-Mapping.txt"
)

// support files that never hold the top function
var supportFiles = map[string]bool{
	"support.c":       true,
	"local_support.c": true,
}

// Application is a target kernel ready for directive injection.
type Application struct {
	Name   string
	Dir    string
	Top    string // top-level function
	Source string // kernel file name inside Dir
	Sites  []Site
}

// Ext returns the source extension, ".c" or ".cpp".
func (a *Application) Ext() string {
	if strings.HasSuffix(a.Source, ".cpp") {
		return ".cpp"
	}
	return ".c"
}

// OptimizedName is the file name directives are written to in an attempt
// directory.
func (a *Application) OptimizedName() string {
	return "optimized" + a.Ext()
}

// LoadApplication reads <appsDir>/<name>: the top function from
// Kernel-Info.txt, the sites from the mapping file and the kernel source.
func LoadApplication(appsDir, name string, catalog *hls.Catalog) (*Application, error) {
	dir := filepath.Join(appsDir, name)
	app := &Application{Name: name, Dir: dir}

	top, err := readFirstLine(filepath.Join(dir, KernelInfoFile))
	if err != nil {
		return nil, fmt.Errorf("read kernel info for %s: %w", name, err)
	}
	if top == "" {
		return nil, fmt.Errorf("kernel info for %s names no top function", name)
	}
	app.Top = top

	app.Sites, err = LoadSites(filepath.Join(dir, MappingFile), catalog)
	if err != nil {
		return nil, fmt.Errorf("load sites for %s: %w", name, err)
	}

	app.Source, err = findKernel(dir)
	if err != nil {
		return nil, fmt.Errorf("find kernel for %s: %w", name, err)
	}
	return app, nil
}

func readFirstLine(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	if scanner.Scan() {
		return strings.TrimSpace(scanner.Text()), nil
	}
	return "", scanner.Err()
}

func findKernel(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	var names []string
	for _, e := range entries {
		n := e.Name()
		if e.IsDir() || supportFiles[n] || strings.HasPrefix(n, "optimized.") {
			continue
		}
		if strings.HasSuffix(n, ".c") || strings.HasSuffix(n, ".cpp") {
			names = append(names, n)
		}
	}
	if len(names) == 0 {
		return "", fmt.Errorf("no .c or .cpp kernel in %s", dir)
	}
	sort.Strings(names)
	return names[0], nil
}

// Stage mirrors the application into dst, replacing anything already there,
// and writes the kernel with directives applied as dst/optimized.<ext>.
// It returns the path of the optimized file.
func (a *Application) Stage(dst string, directives map[string]string) (string, error) {
	if err := os.RemoveAll(dst); err != nil {
		return "", fmt.Errorf("clear %s: %w", dst, err)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return "", fmt.Errorf("create %s: %w", filepath.Dir(dst), err)
	}
	if err := os.CopyFS(dst, os.DirFS(a.Dir)); err != nil {
		return "", fmt.Errorf("copy %s: %w", a.Dir, err)
	}
	out := filepath.Join(dst, a.OptimizedName())
	if _, err := ApplyFile(out, filepath.Join(dst, a.Source), directives); err != nil {
		return "", err
	}
	return out, nil
}
