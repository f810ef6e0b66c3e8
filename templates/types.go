// Package templates loads live templates from TOML files and offers them as
// completion candidates whose insertion expands the template.
package templates

import (
	"time"
)

// AnyLanguage keys templates that apply to every language.
const AnyLanguage = "*"

// Variable is a template stop with the text it is pre-filled with.
type Variable struct {
	Name    string
	Default string
}

// Template is one parsed live template.
type Template struct {
	Abbreviation string
	Description  string
	Text         string
	Languages    []string
	// Variables in declaration order, which is the tab order.
	Variables   []Variable
	Imports     []string
	ImportAfter string
	Deprecated  bool
	Source      string

	parts []part
}

// part is either literal text or a reference to a variable.
type part struct {
	literal  string
	variable string
}

// FileInfo describes one template file found on disk.
type FileInfo struct {
	Path      string
	Root      string
	ModTime   time.Time
	Templates []*Template
}

// Action is what an incremental scan decided to do with a file.
type Action int

const (
	ShouldParse Action = iota
	ShouldDelete
)

type FileMessage struct {
	Action Action
	Info   FileInfo
}
