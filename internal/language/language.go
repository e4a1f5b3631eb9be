// Package language holds the build/run recipe of every supported language.
//
// The set of languages is closed: each one is an ID constant plus a case in
// profileFor. Profiles are plain values built once at startup, so a Registry
// can be shared by any number of concurrent requests without locking.
package language

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/shlex"
)

// ID identifies a supported language.
type ID string

const (
	Python ID = "python"
	C      ID = "c"
	Java   ID = "java"
)

// All lists every supported language in display order.
var All = []ID{Python, C, Java}

// SourceBase is the file name (without extension) of the assembled source.
const SourceBase = "user_code"

var ErrUnsupportedLanguage = errors.New("unsupported language")

// Order decides where the user's code goes relative to the template.
type Order int

const (
	// UserFirst places user code before the template, so an interpreted
	// template can call functions the user defined.
	UserFirst Order = iota
	// TemplateFirst places the template first, so declarations precede use.
	TemplateFirst
)

// Profile is the recipe for one language.
//
// CompileCmd and RunCmd are command templates. {dir} expands to the
// workspace mount point inside the container and {src} to the source path.
type Profile struct {
	ID        ID
	Image     string
	Extension string
	Order     Order

	CompileCmd string // empty for interpreted languages
	RunCmd     string

	// Artifact is the file a successful compile must leave in the workspace.
	// Empty disables the check.
	Artifact      string
	ArtifactLabel string
}

// Compiled reports whether the language has a compile step.
func (p Profile) Compiled() bool {
	return p.CompileCmd != ""
}

// SourceName is the file name the assembled source is written to.
func (p Profile) SourceName() string {
	return SourceBase + p.Extension
}

// Assemble joins user code and template into one compilable unit.
func (p Profile) Assemble(userCode, template string) string {
	if p.Order == TemplateFirst {
		return template + "\n" + userCode
	}
	return userCode + "\n" + template
}

// CompileArgs expands the compile template against dir. It returns nil for
// interpreted languages.
func (p Profile) CompileArgs(dir string) ([]string, error) {
	if !p.Compiled() {
		return nil, nil
	}
	return p.expand(p.CompileCmd, dir)
}

// RunArgs expands the run template against dir.
func (p Profile) RunArgs(dir string) ([]string, error) {
	return p.expand(p.RunCmd, dir)
}

func (p Profile) expand(tmpl, dir string) ([]string, error) {
	r := strings.NewReplacer(
		"{dir}", dir,
		"{src}", dir+"/"+p.SourceName(),
	)
	args, err := shlex.Split(r.Replace(tmpl))
	if err != nil {
		return nil, fmt.Errorf("language %s: parsing command %q: %w", p.ID, tmpl, err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("language %s: empty command", p.ID)
	}
	return args, nil
}
