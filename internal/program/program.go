// Package program loads analysable programs from YAML files.
//
// A program file declares the class hierarchy, fields and methods known to
// the analysis, and one or more functions written in a small textual
// instruction syntax:
//
//	fields:
//	  next: {type: Node, null: nullable}
//	methods:
//	  requireNonNull: {returns: Node, contracts: "null -> fail; _ -> $0"}
//	functions:
//	  - name: last
//	    params: [{name: n, type: Node, null: nullable}]
//	    code:
//	      - "loop: push n"
//	      - field next catch out
//	      - ...
//
// Every instruction keeps the position of its line so that issues point
// back into the file.
package program

import (
	"errors"
	"fmt"
	"go/token"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/gnolang/dfa/internal/analysis/instr"
	"github.com/gnolang/dfa/internal/analysis/lattice"
	"github.com/gnolang/dfa/internal/analysis/value"
)

// Ext is the extension of program files.
const Ext = ".dfa"

// ErrInvalidProgram is returned for files that do not describe a valid
// program.
var ErrInvalidProgram = errors.New("invalid program")

// File is a loaded program file.
type File struct {
	Name      string
	Functions []*instr.Program
	Model     *instr.StaticModel
}

// Function returns the function called name.
func (f *File) Function(name string) (*instr.Program, bool) {
	for _, fn := range f.Functions {
		if fn.Name == name {
			return fn, true
		}
	}
	return nil, false
}

type fileSpec struct {
	Classes   map[string][]string   `yaml:"classes"`
	Fields    map[string]varSpec    `yaml:"fields"`
	Methods   map[string]methodSpec `yaml:"methods"`
	Functions []funcSpec            `yaml:"functions"`
}

type varSpec struct {
	Name   string `yaml:"name"`
	Type   string `yaml:"type"`
	Null   string `yaml:"null"`
	Stable bool   `yaml:"stable"`
}

type methodSpec struct {
	Returns   string `yaml:"returns"`
	Null      string `yaml:"null"`
	Pure      bool   `yaml:"pure"`
	Contracts string `yaml:"contracts"`
}

type funcSpec struct {
	Name     string      `yaml:"name"`
	This     string      `yaml:"this"`
	Params   []varSpec   `yaml:"params"`
	Locals   []varSpec   `yaml:"locals"`
	Code     []yaml.Node `yaml:"code"`
	Closures []funcSpec  `yaml:"closures"`
}

// Load reads and parses the program file at filename.
func Load(filename string) (*File, error) {
	src, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading program file: %w", err)
	}
	return Parse(filename, src)
}

// Parse parses the program file contents src.
func Parse(filename string, src []byte) (*File, error) {
	var spec fileSpec
	if err := yaml.Unmarshal(src, &spec); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidProgram, filename, err)
	}
	if len(spec.Functions) == 0 {
		return nil, fmt.Errorf("%w: %s: no functions", ErrInvalidProgram, filename)
	}

	l := &loader{
		filename: filename,
		fields:   make(map[string]*value.Descriptor),
		model:    instr.NewStaticModel(),
	}
	for class, supers := range spec.Classes {
		l.model.Supers[class] = supers
	}
	for name, fs := range spec.Fields {
		t, err := parseType(fs.Type)
		if err != nil {
			return nil, l.errorf(0, 0, "field %s: %v", name, err)
		}
		l.fields[name] = &value.Descriptor{
			Name:        name,
			Kind:        value.DescField,
			Type:        t,
			Nullability: nullability(t, fs.Null),
			Stable:      fs.Stable,
		}
	}
	for name, ms := range spec.Methods {
		m, err := l.method(name, ms)
		if err != nil {
			return nil, err
		}
		l.model.Methods[name] = m
	}

	file := &File{Name: filename, Model: l.model}
	seen := make(map[string]bool)
	for _, fs := range spec.Functions {
		if fs.Name == "" {
			return nil, l.errorf(0, 0, "function without a name")
		}
		if seen[fs.Name] {
			return nil, l.errorf(0, 0, "duplicate function %s", fs.Name)
		}
		seen[fs.Name] = true
		p, err := l.function(fs, fs.Name, nil)
		if err != nil {
			return nil, err
		}
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidProgram, filename, err)
		}
		file.Functions = append(file.Functions, p)
	}
	return file, nil
}

type loader struct {
	filename string
	fields   map[string]*value.Descriptor
	model    *instr.StaticModel
}

func (l *loader) errorf(line, col int, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if line == 0 {
		return fmt.Errorf("%w: %s: %s", ErrInvalidProgram, l.filename, msg)
	}
	return fmt.Errorf("%w: %s:%d:%d: %s", ErrInvalidProgram, l.filename, line, col, msg)
}

func (l *loader) method(name string, ms methodSpec) (instr.Method, error) {
	ret := lattice.AnyType
	if ms.Returns != "" {
		t, err := parseType(ms.Returns)
		if err != nil {
			return instr.Method{}, l.errorf(0, 0, "method %s: %v", name, err)
		}
		ret = t
	}
	contracts, err := instr.ParseContracts(ms.Contracts)
	if err != nil {
		return instr.Method{}, l.errorf(0, 0, "method %s: %v", name, err)
	}
	return instr.Method{
		Name:      name,
		Return:    ret,
		Null:      nullability(ret, ms.Null),
		Pure:      ms.Pure,
		Contracts: contracts,
	}, nil
}

// scope resolves variable names; closures see the variables of every
// enclosing function.
type scope struct {
	vars   map[string]*value.Descriptor
	parent *scope
}

func (s *scope) lookup(name string) (*value.Descriptor, bool) {
	for ; s != nil; s = s.parent {
		if d, ok := s.vars[name]; ok {
			return d, true
		}
	}
	return nil, false
}

func (l *loader) declare(sc *scope, vs varSpec, kind value.DescKind) error {
	if vs.Name == "" {
		return l.errorf(0, 0, "variable without a name")
	}
	if _, dup := sc.vars[vs.Name]; dup {
		return l.errorf(0, 0, "duplicate variable %s", vs.Name)
	}
	t, err := parseType(vs.Type)
	if err != nil {
		return l.errorf(0, 0, "variable %s: %v", vs.Name, err)
	}
	sc.vars[vs.Name] = &value.Descriptor{
		Name:        vs.Name,
		Kind:        kind,
		Type:        t,
		Nullability: nullability(t, vs.Null),
		Stable:      vs.Stable,
	}
	return nil
}

func (l *loader) function(fs funcSpec, name string, parent *scope) (*instr.Program, error) {
	sc := &scope{vars: make(map[string]*value.Descriptor), parent: parent}
	p := &instr.Program{Name: name}
	if fs.This != "" {
		t, err := parseType(fs.This)
		if err != nil {
			return nil, l.errorf(0, 0, "function %s: this: %v", name, err)
		}
		sc.vars["this"] = &value.Descriptor{
			Name:        "this",
			Kind:        value.DescThis,
			Type:        t,
			Nullability: lattice.NotNull,
			Stable:      true,
		}
	}
	for _, vs := range fs.Params {
		if err := l.declare(sc, vs, value.DescParam); err != nil {
			return nil, err
		}
		p.Params = append(p.Params, sc.vars[vs.Name])
	}
	for _, vs := range fs.Locals {
		if err := l.declare(sc, vs, value.DescLocal); err != nil {
			return nil, err
		}
	}

	closures := make(map[string]int, len(fs.Closures))
	for i, cs := range fs.Closures {
		cname := cs.Name
		if cname == "" {
			cname = fmt.Sprintf("%s$%d", name, i)
		}
		closures[cname] = i
		cp, err := l.function(cs, cname, sc)
		if err != nil {
			return nil, err
		}
		p.Closures = append(p.Closures, cp)
	}

	a := &assembler{loader: l, scope: sc, closures: closures, labels: make(map[string]int)}
	if err := a.assemble(p, fs.Code); err != nil {
		return nil, err
	}
	return p, nil
}

func nullability(t lattice.Type, s string) lattice.Nullability {
	if t.Primitive() {
		return lattice.NotNull
	}
	return lattice.ParseNullability(s)
}

func position(filename string, n *yaml.Node) token.Position {
	return token.Position{Filename: filename, Line: n.Line, Column: n.Column}
}
