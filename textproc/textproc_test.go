package textproc

import (
	"errors"
	"reflect"
	"testing"
)

func TestTokenizerFit(t *testing.T) {
	tok := NewTokenizer(0)
	tok.Fit([]string{"Hello, world!", "hello again", "World of HELLO"})

	// hello x3, world x2, then first-appearance order for the rest
	want := map[string]int{"hello": 1, "world": 2, "again": 3, "of": 4}
	if !reflect.DeepEqual(tok.WordIndex, want) {
		t.Errorf("WordIndex = %v, want %v", tok.WordIndex, want)
	}
	if tok.DocumentCount != 3 {
		t.Errorf("DocumentCount = %d, want 3", tok.DocumentCount)
	}
}

func TestTokenizerNumWordsCap(t *testing.T) {
	tok := NewTokenizer(3)
	tok.Fit([]string{"a a a b b c d"})

	got := tok.TextsToSequences([]string{"d c b a unknown"})
	// only indices 1 and 2 survive a cap of 3
	want := [][]int{{2, 1}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("TextsToSequences = %v, want %v", got, want)
	}
	if tok.VocabularySize() != 3 {
		t.Errorf("VocabularySize = %d, want 3", tok.VocabularySize())
	}
}

func TestTextToWordsUnicode(t *testing.T) {
	got := TextToWords("Họp NHÓM, ngày-mai!", DefaultFilters)
	want := []string{"họp", "nhóm", "ngày", "mai"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("TextToWords = %v, want %v", got, want)
	}
}

func TestPadSequencesPost(t *testing.T) {
	got := PadSequences([][]int{{1, 2}, {1, 2, 3, 4, 5}, {}}, 4)
	want := [][]int{{1, 2, 0, 0}, {1, 2, 3, 4}, {0, 0, 0, 0}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("PadSequences = %v, want %v", got, want)
	}
}

func TestLabelEncoder(t *testing.T) {
	var enc LabelEncoder
	enc.Fit([]string{"work", "spam", "work", "family"})

	if !reflect.DeepEqual(enc.Classes, []string{"family", "spam", "work"}) {
		t.Fatalf("Classes = %v", enc.Classes)
	}

	idx, err := enc.Transform([]string{"work", "family"})
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if !reflect.DeepEqual(idx, []int{2, 0}) {
		t.Errorf("Transform = %v", idx)
	}

	if _, err := enc.Transform([]string{"nope"}); !errors.Is(err, ErrUnknownLabel) {
		t.Errorf("Transform unknown label err = %v", err)
	}

	name, err := enc.InverseTransform(1)
	if err != nil || name != "spam" {
		t.Errorf("InverseTransform(1) = %q, %v", name, err)
	}
	if _, err := enc.InverseTransform(3); err == nil {
		t.Error("InverseTransform(3) should fail")
	}
}

func TestOneHot(t *testing.T) {
	got := OneHot([]int{1, 0}, 3)
	want := [][]float64{{0, 1, 0}, {1, 0, 0}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("OneHot = %v, want %v", got, want)
	}
}
