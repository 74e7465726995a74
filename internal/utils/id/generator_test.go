package id

import (
	"strings"
	"testing"
	"time"
)

func TestNewQuestionIDHasPrefixAndIsUnique(t *testing.T) {
	a := NewQuestionID()
	b := NewQuestionID()

	if !strings.HasPrefix(a, "question-") {
		t.Fatalf("expected question- prefix, got %q", a)
	}
	if a == b {
		t.Fatalf("two generated ids collided: %q", a)
	}
}

func TestSynthesizeMessageIDIsDeterministic(t *testing.T) {
	at := time.Unix(1700000000, 42)

	first := SynthesizeMessageID("call-1", SourcePlain, 0, at)
	same := SynthesizeMessageID("call-1", SourcePlain, 0, at)
	if first != same {
		t.Fatalf("same inputs produced different ids: %q vs %q", first, same)
	}

	debug := SynthesizeMessageID("call-1", SourceDebug, 0, at)
	if debug == first {
		t.Fatal("source tag should separate ids")
	}

	next := SynthesizeMessageID("call-1", SourcePlain, 1, at)
	if next == first {
		t.Fatal("batch ordinal should separate ids")
	}
}
