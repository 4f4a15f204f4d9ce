// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package term

import (
	"fmt"
	"strings"
	"testing"
)

func feedString(s *Screen, text string) {
	s.Feed([]byte(text))
}

func TestScreenPlainText(t *testing.T) {
	screen := NewScreen(80, 24)
	feedString(screen, "hello world")
	if got := screen.Content(); got != "hello world" {
		t.Fatalf("Content() = %q, want %q", got, "hello world")
	}
}

func TestScreenNewlines(t *testing.T) {
	screen := NewScreen(80, 24)
	feedString(screen, "line one\r\nline two\r\nline three")
	want := "line one\nline two\nline three"
	if got := screen.Content(); got != want {
		t.Fatalf("Content() = %q, want %q", got, want)
	}
}

func TestScreenBareLineFeed(t *testing.T) {
	// LF without CR keeps the column, like a real terminal.
	screen := NewScreen(80, 24)
	feedString(screen, "ab\ncd")
	want := "ab\n  cd"
	if got := screen.Content(); got != want {
		t.Fatalf("Content() = %q, want %q", got, want)
	}
}

func TestScreenCarriageReturnOverwrite(t *testing.T) {
	screen := NewScreen(80, 24)
	feedString(screen, "progress 10%\rprogress 99%")
	if got := screen.Content(); got != "progress 99%" {
		t.Fatalf("Content() = %q, want %q", got, "progress 99%")
	}
}

func TestScreenBackspace(t *testing.T) {
	screen := NewScreen(80, 24)
	feedString(screen, "abX\bc")
	if got := screen.Content(); got != "abc" {
		t.Fatalf("Content() = %q, want %q", got, "abc")
	}
}

func TestScreenTab(t *testing.T) {
	screen := NewScreen(80, 24)
	feedString(screen, "a\tb")
	if got := screen.Content(); got != "a       b" {
		t.Fatalf("Content() = %q, want %q", got, "a       b")
	}
}

func TestScreenCursorPosition(t *testing.T) {
	screen := NewScreen(80, 24)
	feedString(screen, "\x1b[3;5Hhere")
	want := "\n\n    here"
	if got := screen.Content(); got != want {
		t.Fatalf("Content() = %q, want %q", got, want)
	}
}

func TestScreenCursorMovement(t *testing.T) {
	screen := NewScreen(80, 24)
	// Write, move up and to column 1, overwrite.
	feedString(screen, "aaaa\r\nbbbb\x1b[1A\x1b[1Gcccc")
	want := "cccc\nbbbb"
	if got := screen.Content(); got != want {
		t.Fatalf("Content() = %q, want %q", got, want)
	}
}

func TestScreenCursorMovementClamped(t *testing.T) {
	screen := NewScreen(10, 5)
	feedString(screen, "\x1b[99A\x1b[99Dx")
	if got := screen.Content(); got != "x" {
		t.Fatalf("Content() = %q, want %q", got, "x")
	}
	feedString(screen, "\x1b[99;99Hy")
	row, col := screen.Cursor()
	if row != 4 || col != 10 {
		t.Fatalf("cursor after clamped move+write = (%d,%d), want (4,10)", row, col)
	}
}

func TestScreenEraseDisplay(t *testing.T) {
	screen := NewScreen(80, 24)
	feedString(screen, "old content\r\nmore old")
	feedString(screen, "\x1b[2J\x1b[Hfresh")
	if got := screen.Content(); got != "fresh" {
		t.Fatalf("Content() after clear = %q, want %q", got, "fresh")
	}
}

func TestScreenEraseToEndOfScreen(t *testing.T) {
	screen := NewScreen(80, 24)
	feedString(screen, "keep\r\ndrop\r\ndrop too")
	feedString(screen, "\x1b[2;1H\x1b[0J")
	if got := screen.Content(); got != "keep" {
		t.Fatalf("Content() = %q, want %q", got, "keep")
	}
}

func TestScreenEraseLine(t *testing.T) {
	screen := NewScreen(80, 24)
	feedString(screen, "hello world\x1b[1;6H\x1b[K")
	if got := screen.Content(); got != "hello" {
		t.Fatalf("Content() = %q, want %q", got, "hello")
	}
}

func TestScreenEraseWholeLine(t *testing.T) {
	screen := NewScreen(80, 24)
	feedString(screen, "one\r\ntwo\r\nthree\x1b[2;1H\x1b[2K")
	want := "one\n\nthree"
	if got := screen.Content(); got != want {
		t.Fatalf("Content() = %q, want %q", got, want)
	}
}

func TestScreenScrollOnBottomLineFeed(t *testing.T) {
	screen := NewScreen(20, 3)
	feedString(screen, "one\r\ntwo\r\nthree\r\nfour")
	want := "two\nthree\nfour"
	if got := screen.Content(); got != want {
		t.Fatalf("Content() = %q, want %q", got, want)
	}
}

func TestScreenLineWrap(t *testing.T) {
	screen := NewScreen(10, 4)
	feedString(screen, "abcdefghijKLM")
	want := "abcdefghij\nKLM"
	if got := screen.Content(); got != want {
		t.Fatalf("Content() = %q, want %q", got, want)
	}
}

func TestScreenSaveRestoreCursor(t *testing.T) {
	screen := NewScreen(80, 24)
	feedString(screen, "abc\x1b7xyz\x1b8XYZ")
	if got := screen.Content(); got != "abcXYZ" {
		t.Fatalf("Content() = %q, want %q", got, "abcXYZ")
	}
}

func TestScreenIgnoresStyling(t *testing.T) {
	screen := NewScreen(80, 24)
	feedString(screen, "\x1b[1;31mred bold\x1b[0m plain")
	if got := screen.Content(); got != "red bold plain" {
		t.Fatalf("Content() = %q, want %q", got, "red bold plain")
	}
}

func TestScreenIgnoresPrivateModes(t *testing.T) {
	screen := NewScreen(80, 24)
	feedString(screen, "\x1b[?25l\x1b[?1049hvisible\x1b[?25h")
	if got := screen.Content(); got != "visible" {
		t.Fatalf("Content() = %q, want %q", got, "visible")
	}
}

func TestScreenIgnoresOSC(t *testing.T) {
	screen := NewScreen(80, 24)
	feedString(screen, "\x1b]0;window title\x07text")
	if got := screen.Content(); got != "text" {
		t.Fatalf("Content() = %q, want %q", got, "text")
	}
	feedString(screen, "\x1b]8;;http://example.com\x1b\\!")
	if got := screen.Content(); got != "text!" {
		t.Fatalf("Content() after ST-terminated OSC = %q, want %q", got, "text!")
	}
}

func TestScreenUTF8(t *testing.T) {
	screen := NewScreen(80, 24)
	feedString(screen, "héllo ✓ 日本")
	if got := screen.Content(); got != "héllo ✓ 日本" {
		t.Fatalf("Content() = %q, want %q", got, "héllo ✓ 日本")
	}
}

func TestScreenUTF8SplitAcrossFeeds(t *testing.T) {
	screen := NewScreen(80, 24)
	data := []byte("a✓b")
	// Feed one byte at a time so the multibyte rune splits.
	for _, b := range data {
		screen.Feed([]byte{b})
	}
	if got := screen.Content(); got != "a✓b" {
		t.Fatalf("Content() = %q, want %q", got, "a✓b")
	}
}

func TestScreenInvalidUTF8Replaced(t *testing.T) {
	screen := NewScreen(80, 24)
	screen.Feed([]byte{'a', 0xff, 'b'})
	if got := screen.Content(); got != "a�b" {
		t.Fatalf("Content() = %q, want %q", got, "a�b")
	}
}

func TestScreenFullReset(t *testing.T) {
	screen := NewScreen(80, 24)
	feedString(screen, "before\x1bcafter")
	if got := screen.Content(); got != "after" {
		t.Fatalf("Content() = %q, want %q", got, "after")
	}
}

func TestScreenScrollUpSequence(t *testing.T) {
	screen := NewScreen(20, 3)
	feedString(screen, "one\r\ntwo\r\nthree\x1b[1S")
	want := "two\nthree"
	if got := screen.Content(); got != want {
		t.Fatalf("Content() = %q, want %q", got, want)
	}
}

func TestStatusbarDetected(t *testing.T) {
	keywordLines := []string{
		"claude-sonnet-4 | 12,345 tokens",
		"Cost: $0.42",
		"Model: opus",
		"context left: 38%",
		"haiku ready",
	}
	for _, line := range keywordLines {
		t.Run(line, func(t *testing.T) {
			screen := NewScreen(80, 24)
			// Paint the status line on the bottom row, the way
			// interactive tools do.
			feedString(screen, "output\x1b[24;1H"+line)
			status, ok := screen.Statusbar()
			if !ok {
				t.Fatalf("Statusbar() not detected for %q", line)
			}
			if status != line {
				t.Fatalf("Statusbar() = %q, want %q", status, line)
			}
		})
	}
}

func TestStatusbarAbsentWithoutKeywords(t *testing.T) {
	screen := NewScreen(80, 24)
	feedString(screen, "output\x1b[24;1Hjust some text")
	if status, ok := screen.Statusbar(); ok {
		t.Fatalf("Statusbar() = %q, want none", status)
	}
}

func TestStatusbarAbsentWhenBottomRowBlank(t *testing.T) {
	screen := NewScreen(80, 24)
	feedString(screen, "model: opus") // top row, not the bottom
	if status, ok := screen.Statusbar(); ok {
		t.Fatalf("Statusbar() = %q, want none", status)
	}
}

func TestScreenRedrawProducesStableContent(t *testing.T) {
	// An app that repaints the same frame twice must yield identical
	// content, which is what makes delta computation possible.
	screen := NewScreen(40, 10)
	frame := "\x1b[H\x1b[2Jheader\r\nbody line\r\nfooter"
	feedString(screen, frame)
	first := screen.Content()
	feedString(screen, frame)
	if got := screen.Content(); got != first {
		t.Fatalf("redraw changed content: %q vs %q", first, got)
	}
}

func TestScreenContentTrimsTrailingBlanks(t *testing.T) {
	screen := NewScreen(80, 24)
	feedString(screen, "text   \r\n\r\n\r\n")
	if got := screen.Content(); got != "text" {
		t.Fatalf("Content() = %q, want %q", got, "text")
	}
}

func TestScreenManyLinesScrollHistory(t *testing.T) {
	screen := NewScreen(20, 5)
	for i := 1; i <= 10; i++ {
		feedString(screen, fmt.Sprintf("line %d\r\n", i))
	}
	got := screen.Content()
	if strings.Contains(got, "line 5") {
		t.Errorf("scrolled-out line still visible:\n%s", got)
	}
	if !strings.Contains(got, "line 10") {
		t.Errorf("latest line missing:\n%s", got)
	}
}

func TestStripANSI(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"\x1b[31mred\x1b[0m", "red"},
		{"\x1b[2J\x1b[Hcleared", "cleared"},
		{"\x1b]0;title\x07text", "text"},
		{"a\x1b[1;2Hb", "ab"},
	}
	for _, c := range cases {
		if got := StripANSI(c.in); got != c.want {
			t.Errorf("StripANSI(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
