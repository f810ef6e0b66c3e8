package templates

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// ParseError reports a malformed template file.
type ParseError struct {
	Path   string
	Line   int
	Column int
	Err    error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d:%d: %v", e.Path, e.Line, e.Column, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

type fileSpec struct {
	Languages []string       `toml:"languages"`
	Templates []templateSpec `toml:"template"`
}

type templateSpec struct {
	Abbreviation string         `toml:"abbreviation"`
	Description  string         `toml:"description"`
	Text         string         `toml:"text"`
	Languages    []string       `toml:"languages"`
	Imports      []string       `toml:"imports"`
	ImportAfter  string         `toml:"import_after"`
	Deprecated   bool           `toml:"deprecated"`
	Variables    []variableSpec `toml:"variable"`
}

type variableSpec struct {
	Name    string `toml:"name"`
	Default string `toml:"default"`
}

// ParseFile reads and parses a template file relative to root.
func ParseFile(filePath, root string) (*FileInfo, error) {
	absPath := filepath.Join(root, filePath)

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	tmpls, err := Parse(data, filePath)
	if err != nil {
		return nil, err
	}
	return &FileInfo{
		Path:      filePath,
		Root:      root,
		ModTime:   info.ModTime(),
		Templates: tmpls,
	}, nil
}

// Parse decodes a template file. source names the file in errors.
func Parse(data []byte, source string) ([]*Template, error) {
	var spec fileSpec
	if err := toml.Unmarshal(data, &spec); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			line, col := derr.Position()
			return nil, &ParseError{Path: source, Line: line, Column: col, Err: err}
		}
		return nil, &ParseError{Path: source, Err: err}
	}

	out := make([]*Template, 0, len(spec.Templates))
	for i, ts := range spec.Templates {
		t, err := compile(ts, spec.Languages)
		if err != nil {
			return nil, &ParseError{Path: source, Err: fmt.Errorf("template %d (%q): %w", i, ts.Abbreviation, err)}
		}
		t.Source = source
		out = append(out, t)
	}
	return out, nil
}

func compile(ts templateSpec, fileLanguages []string) (*Template, error) {
	if strings.TrimSpace(ts.Abbreviation) == "" {
		return nil, errors.New("missing abbreviation")
	}
	parts, err := splitText(ts.Text)
	if err != nil {
		return nil, err
	}

	langs := ts.Languages
	if len(langs) == 0 {
		langs = fileLanguages
	}

	t := &Template{
		Abbreviation: ts.Abbreviation,
		Description:  ts.Description,
		Text:         ts.Text,
		Languages:    langs,
		Imports:      ts.Imports,
		ImportAfter:  ts.ImportAfter,
		Deprecated:   ts.Deprecated,
		parts:        parts,
	}

	declared := make(map[string]bool)
	for _, v := range ts.Variables {
		if v.Name == "" || v.Name == "END" {
			return nil, fmt.Errorf("invalid variable name %q", v.Name)
		}
		if declared[v.Name] {
			return nil, fmt.Errorf("variable %q declared twice", v.Name)
		}
		declared[v.Name] = true
		t.Variables = append(t.Variables, Variable{Name: v.Name, Default: v.Default})
	}
	// Variables only used in the text follow in order of appearance.
	for _, p := range parts {
		if p.variable == "" || p.variable == "END" || declared[p.variable] {
			continue
		}
		declared[p.variable] = true
		t.Variables = append(t.Variables, Variable{Name: p.variable, Default: p.variable})
	}
	return t, nil
}

// splitText cuts template text at $NAME$ references. $$ is a literal dollar.
func splitText(text string) ([]part, error) {
	var (
		parts []part
		lit   strings.Builder
	)
	for i := 0; i < len(text); i++ {
		if text[i] != '$' {
			lit.WriteByte(text[i])
			continue
		}
		if i+1 < len(text) && text[i+1] == '$' {
			lit.WriteByte('$')
			i++
			continue
		}
		end := strings.IndexByte(text[i+1:], '$')
		if end < 0 {
			return nil, fmt.Errorf("unterminated variable at offset %d", i)
		}
		name := text[i+1 : i+1+end]
		if !validName(name) {
			return nil, fmt.Errorf("invalid variable name %q at offset %d", name, i)
		}
		if lit.Len() > 0 {
			parts = append(parts, part{literal: lit.String()})
			lit.Reset()
		}
		parts = append(parts, part{variable: name})
		i += end + 1
	}
	if lit.Len() > 0 {
		parts = append(parts, part{literal: lit.String()})
	}
	return parts, nil
}

func validName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		if r != '_' && (r < 'A' || r > 'Z') && (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}
