package engine

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

var (
	ErrUnknownLanguage = errors.New("engine: unsupported language")
	ErrEmptyCode       = errors.New("engine: empty code block")
	ErrInvalidEncoding = errors.New("engine: code is not valid UTF-8")
)

// language describes how to launch an interpreter. When stdin is true the
// code is piped to the process; otherwise it is appended as the last argument.
type language struct {
	name  string
	bin   string
	args  []string
	stdin bool
}

var languages = map[string]language{
	"python":      {name: "python", bin: "python3", args: []string{"-u", "-"}, stdin: true},
	"shell":       {name: "shell", bin: "bash", args: []string{"-c"}},
	"sh":          {name: "sh", bin: "sh", args: []string{"-c"}},
	"zsh":         {name: "zsh", bin: "zsh", args: []string{"-c"}},
	"javascript":  {name: "javascript", bin: "node", args: []string{"-"}, stdin: true},
	"ruby":        {name: "ruby", bin: "ruby", args: []string{"-"}, stdin: true},
	"applescript": {name: "applescript", bin: "osascript", args: []string{"-"}, stdin: true},
}

var languageAliases = map[string]string{
	"py":      "python",
	"python3": "python",
	"bash":    "shell",
	"console": "shell",
	"js":      "javascript",
	"node":    "javascript",
	"rb":      "ruby",
}

// NormalizeLanguage maps a fence tag such as "Python3" or "bash title=x" onto
// a canonical language name. Unknown tags are returned lowercased.
func NormalizeLanguage(tag string) string {
	tag = strings.ToLower(strings.TrimSpace(tag))
	if i := strings.IndexAny(tag, " \t{"); i >= 0 {
		tag = tag[:i]
	}
	if canonical, ok := languageAliases[tag]; ok {
		return canonical
	}
	return tag
}

// Runnable reports whether the engine can execute code in lang.
func Runnable(lang string) bool {
	_, ok := languages[NormalizeLanguage(lang)]
	return ok
}

// Precheck rejects code the engine must not try to run.
func Precheck(lang, code string) error {
	if !utf8.ValidString(code) || strings.ContainsRune(code, 0) {
		return ErrInvalidEncoding
	}
	if strings.TrimSpace(code) == "" {
		return ErrEmptyCode
	}
	if !Runnable(lang) {
		return fmt.Errorf("%w: %q", ErrUnknownLanguage, lang)
	}
	return nil
}
