package generator

import (
	"bytes"
	"embed"
	"fmt"
	"go/format"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/template"
	"unicode"
	"unicode/utf8"

	"golang.org/x/tools/go/packages"
	"gopkg.in/yaml.v3"
)

var (
	//go:embed templates/*
	templates embed.FS
)

// Manifest describes the bindings a package declares: the classes, enums,
// public symbols and constants it exposes to the object model. The generator
// turns it into typed Go accessors.
type Manifest struct {
	// Package is the package pattern the bindings belong to, relative to
	// the working directory.
	Package string `yaml:"package"`
	// Output is the generated file name, <package>_generated.go when empty.
	Output    string     `yaml:"output"`
	Functions []Function `yaml:"functions"`
	Classes   []Class    `yaml:"classes"`
	Enums     []Enum     `yaml:"enums"`
	Constants []Constant `yaml:"constants"`
}

type Argument struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Optional bool   `yaml:"optional"`
}

type Function struct {
	Name     string     `yaml:"name"`
	GoName   string     `yaml:"goName"`
	Result   string     `yaml:"result"`
	Args     []Argument `yaml:"args"`
	Variadic bool       `yaml:"variadic"`
}

type Class struct {
	Name       string     `yaml:"name"`
	Type       string     `yaml:"type"`
	Methods    []Function `yaml:"methods"`
	Properties []Property `yaml:"properties"`
}

type Property struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Writable bool   `yaml:"writable"`
}

type Enum struct {
	Name   string           `yaml:"name"`
	Type   string           `yaml:"type"`
	Values map[string]int64 `yaml:"values"`
}

type Constant struct {
	Name  string `yaml:"name"`
	Type  string `yaml:"type"`
	Value string `yaml:"value"`
}

type enumValue struct {
	Name  string
	Value int64
}

type templateData struct {
	Pkg        string
	ModulePath string
	Manifest   *Manifest
}

const modulePath = "github.com/microsoft/WinDbg-Libraries"

// LoadManifest reads and validates a yaml binding manifest.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read manifest: %w", err)
	}

	m := &Manifest{}
	if err := yaml.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("could not parse manifest: %w", err)
	}

	for i := range m.Classes {
		if m.Classes[i].Type == "" {
			m.Classes[i].Type = m.Classes[i].Name
		}
	}
	for i := range m.Enums {
		if m.Enums[i].Type == "" {
			m.Enums[i].Type = goName(m.Enums[i].Name)
		}
	}

	sort.Slice(m.Functions, func(i, j int) bool { return m.Functions[i].Name < m.Functions[j].Name })
	sort.Slice(m.Classes, func(i, j int) bool { return m.Classes[i].Name < m.Classes[j].Name })
	sort.Slice(m.Enums, func(i, j int) bool { return m.Enums[i].Name < m.Enums[j].Name })
	sort.Slice(m.Constants, func(i, j int) bool { return m.Constants[i].Name < m.Constants[j].Name })

	return m, nil
}

// Generate resolves the target package, validates the manifest against its
// declared types, renders the accessors and writes the formatted result next
// to the package sources.
func Generate(dir string, manifestPath string, verbose bool) error {
	m, err := LoadManifest(manifestPath)
	if err != nil {
		return err
	}

	pattern := m.Package
	if pattern == "" {
		pattern = "."
	}

	pkgs, err := packages.Load(&packages.Config{
		Mode: packages.NeedName | packages.NeedTypes | packages.NeedModule,
		Dir:  dir,
	}, pattern)
	if err != nil {
		return fmt.Errorf("could not load package %s: %w", pattern, err)
	}
	if len(pkgs) == 0 || pkgs[0].Types == nil {
		return fmt.Errorf("pattern %s did not resolve to a package", pattern)
	}

	pkg := pkgs[0]
	scope := pkg.Types.Scope()
	for i := range m.Classes {
		if scope.Lookup(m.Classes[i].Type) == nil {
			return fmt.Errorf("class %s: type %s is not declared in package %s", m.Classes[i].Name, m.Classes[i].Type, pkg.Name)
		}
	}
	for i := range m.Enums {
		if scope.Lookup(m.Enums[i].Type) == nil {
			return fmt.Errorf("enum %s: type %s is not declared in package %s", m.Enums[i].Name, m.Enums[i].Type, pkg.Name)
		}
	}

	rendered, err := Render(m, pkg.Name)
	if err != nil {
		return err
	}

	formatted, err := format.Source(rendered)
	if err != nil {
		return fmt.Errorf("could not format generated bindings: %w", err)
	}

	output := m.Output
	if output == "" {
		output = pkg.Name + "_generated.go"
	}
	target := filepath.Join(dir, output)

	if verbose {
		log.Printf("writing %d bindings to %s", len(m.Functions)+len(m.Classes)+len(m.Enums)+len(m.Constants), target)
	}

	return os.WriteFile(target, formatted, 0644)
}

// Render produces the raw generated source for a manifest.
func Render(m *Manifest, pkgName string) ([]byte, error) {
	tmpl, err := template.New("").Funcs(templateFunctions).ParseFS(templates, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("could not parse templates: %w", err)
	}

	buf := &bytes.Buffer{}
	err = tmpl.ExecuteTemplate(buf, "bindings.tmpl", templateData{
		Pkg:        pkgName,
		ModulePath: modulePath,
		Manifest:   m,
	})
	if err != nil {
		return nil, fmt.Errorf("could not render bindings: %w", err)
	}

	return buf.Bytes(), nil
}

var templateFunctions = template.FuncMap{
	"goName":     goName,
	"fnName":     fnName,
	"zero":       zeroValue,
	"params":     params,
	"callArgs":   callArgs,
	"argList":    argList,
	"enumValues": sortedEnumValues,
	"argType":    argType,
}

func goName(name string) string {
	r, size := utf8.DecodeRuneInString(name)
	if r == utf8.RuneError {
		return name
	}
	return string(unicode.ToUpper(r)) + name[size:]
}

func fnName(f Function) string {
	if f.GoName != "" {
		return f.GoName
	}
	return goName(f.Name)
}

func argType(a Argument) string {
	if a.Optional {
		return "*" + a.Type
	}
	return a.Type
}

// zeroValue is the expression a wrapper returns alongside an error.
func zeroValue(typeName string) string {
	switch {
	case typeName == "", typeName == "any":
		return "nil"
	case typeName == "string":
		return `""`
	case typeName == "bool":
		return "false"
	case strings.HasPrefix(typeName, "*"),
		strings.HasPrefix(typeName, "[]"),
		strings.HasPrefix(typeName, "map["):
		return "nil"
	}
	return typeName + "(0)"
}

// params renders the typed parameter list fragment after the fixed leading
// parameters, including the leading comma.
func params(f Function) string {
	parts := make([]string, 0, len(f.Args)+1)
	for _, a := range f.Args {
		parts = append(parts, a.Name+" "+argType(a))
	}
	if f.Variadic {
		parts = append(parts, "rest ...any")
	}
	if len(parts) == 0 {
		return ""
	}
	return ", " + strings.Join(parts, ", ")
}

// callArgs renders the argument forwarding fragment, including the leading
// comma.
func callArgs(f Function) string {
	parts := make([]string, 0, len(f.Args))
	for _, a := range f.Args {
		parts = append(parts, a.Name)
	}
	if len(parts) == 0 {
		return ""
	}
	return ", " + strings.Join(parts, ", ")
}

// argList renders the bare argument names, without a leading comma.
func argList(f Function) string {
	parts := make([]string, 0, len(f.Args))
	for _, a := range f.Args {
		parts = append(parts, a.Name)
	}
	return strings.Join(parts, ", ")
}

func sortedEnumValues(values map[string]int64) []enumValue {
	out := make([]enumValue, 0, len(values))
	for name, value := range values {
		out = append(out, enumValue{Name: name, Value: value})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
