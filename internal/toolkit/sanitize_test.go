package toolkit_test

import (
	"strings"
	"testing"

	"github.com/vocegate/vocegate/internal/toolkit"
)

func TestSanitizeResult_StripsControlChars(t *testing.T) {
	t.Parallel()
	in := "hello\x00world\x07\tkeep\nme\r\x1f"
	got := toolkit.SanitizeResult(in)
	want := "helloworld\tkeep\nme\r"
	if got != want {
		t.Fatalf("SanitizeResult(%q) = %q, want %q", in, got, want)
	}
}

func TestSanitizeResult_TruncatesLongResults(t *testing.T) {
	t.Parallel()
	in := strings.Repeat("a", toolkit.MaxResultRunes+500)
	got := toolkit.SanitizeResult(in)

	if len([]rune(got)) != toolkit.MaxResultRunes {
		t.Fatalf("got length %d, want %d", len([]rune(got)), toolkit.MaxResultRunes)
	}
	if !strings.HasSuffix(got, "... (truncated)") {
		t.Fatalf("expected truncation suffix, got suffix %q", got[len(got)-20:])
	}
}

func TestSanitizeResult_ShortInputUnchanged(t *testing.T) {
	t.Parallel()
	in := "just a normal tool result"
	if got := toolkit.SanitizeResult(in); got != in {
		t.Fatalf("SanitizeResult(%q) = %q, want unchanged", in, got)
	}
}
