package main

import "testing"

func TestCorpusLabel(t *testing.T) {
	if got := corpusLabel(""); got != "(not configured)" {
		t.Errorf("corpusLabel(empty) = %q, want (not configured)", got)
	}
	if got := corpusLabel("postgres://localhost/replique"); got != "postgres" {
		t.Errorf("corpusLabel(dsn) = %q, want postgres", got)
	}
}
