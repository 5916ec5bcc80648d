package models

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Problem is one failed check, located by a path such as
// "stages[1].layout" or "panes[2].position.width".
type Problem struct {
	Path    string
	Message string
}

func (p Problem) String() string {
	if p.Path == "" {
		return p.Message
	}
	return p.Path + ": " + p.Message
}

// Problems collects the failed checks of one Validate call in the order they
// were found. It is returned as the error itself so callers can list every
// offending pane or stage.
type Problems []Problem

// Addf records a problem at path.
func (ps *Problems) Addf(path, format string, args ...any) {
	*ps = append(*ps, Problem{Path: path, Message: fmt.Sprintf(format, args...)})
}

// Nest records err under path. Problems from a nested Validate keep their
// own paths, prefixed by path.
func (ps *Problems) Nest(path string, err error) {
	if err == nil {
		return
	}
	var nested Problems
	if !errors.As(err, &nested) {
		*ps = append(*ps, Problem{Path: path, Message: err.Error()})
		return
	}
	for _, p := range nested {
		*ps = append(*ps, Problem{Path: joinPath(path, p.Path), Message: p.Message})
	}
}

// Err returns ps as an error, or nil when nothing failed.
func (ps Problems) Err() error {
	if len(ps) == 0 {
		return nil
	}
	return ps
}

func (ps Problems) Error() string {
	parts := make([]string, len(ps))
	for i, p := range ps {
		parts[i] = p.String()
	}
	return strings.Join(parts, "; ")
}

// Paths lists where each problem was found.
func (ps Problems) Paths() []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.Path
	}
	return out
}

// Indexed returns the path of element i of the list at path.
func Indexed(path string, i int) string {
	return path + "[" + strconv.Itoa(i) + "]"
}

func joinPath(prefix, path string) string {
	switch {
	case prefix == "":
		return path
	case path == "":
		return prefix
	default:
		return prefix + "." + path
	}
}
