package models

import (
	"errors"
	"fmt"
	"slices"
	"testing"
)

func TestProblemsErrIsNilWhenEmpty(t *testing.T) {
	var ps Problems
	if err := ps.Err(); err != nil {
		t.Fatalf("Err() = %v, want nil", err)
	}
	ps.Nest("panes[0]", nil)
	if err := ps.Err(); err != nil {
		t.Fatalf("Err() after nil Nest = %v, want nil", err)
	}
}

func TestProblemsNestPrefixesPaths(t *testing.T) {
	err := Position{X: 0.5, Width: 0.75, Height: 1}.Validate()

	var ps Problems
	ps.Nest(Indexed("stages", 1)+".layout", err)
	ps.Nest("panes[3]", errors.New("no content"))

	want := []string{"stages[1].layout.width", "panes[3]"}
	if got := ps.Paths(); !slices.Equal(got, want) {
		t.Fatalf("Paths() = %v, want %v", got, want)
	}
	if got := ps.Err().Error(); got != "stages[1].layout.width: x+width exceeds 1; panes[3]: no content" {
		t.Fatalf("Error() = %q", got)
	}
}

func TestProblemsSurviveWrapping(t *testing.T) {
	var ps Problems
	ps.Addf("", "origin must be non-negative")
	wrapped := fmt.Errorf("load protocol: %w", ps.Err())

	var got Problems
	if !errors.As(wrapped, &got) {
		t.Fatalf("errors.As did not find Problems in %v", wrapped)
	}
	if len(got) != 1 || got[0].String() != "origin must be non-negative" {
		t.Fatalf("unexpected problems %v", got)
	}
}
