// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package term

import (
	"strings"
	"unicode/utf8"
)

// parseState is the escape-sequence interpreter state.
type parseState int

const (
	stateGround parseState = iota
	stateEscape
	stateCSI
	stateOSC
	stateOSCEscape
	stateCharset
)

// Screen is a fixed-size virtual terminal display fed byte-by-byte
// with a raw PTY stream. It tracks cursor position and cell contents,
// interpreting enough of the escape-sequence protocol to recover what
// a human terminal would show. Not safe for concurrent use.
type Screen struct {
	cols int
	rows int

	cells [][]rune
	row   int
	col   int

	savedRow int
	savedCol int

	state  parseState
	params []byte

	// pending holds an incomplete UTF-8 sequence split across feeds.
	pending []byte
}

// NewScreen creates a blank screen with the given geometry.
func NewScreen(cols, rows int) *Screen {
	if cols < 1 {
		cols = 1
	}
	if rows < 1 {
		rows = 1
	}
	screen := &Screen{cols: cols, rows: rows}
	screen.Reset()
	return screen
}

// Reset clears the grid, cursor, and interpreter state.
func (s *Screen) Reset() {
	s.cells = make([][]rune, s.rows)
	for i := range s.cells {
		s.cells[i] = blankRow(s.cols)
	}
	s.row, s.col = 0, 0
	s.savedRow, s.savedCol = 0, 0
	s.state = stateGround
	s.params = s.params[:0]
	s.pending = nil
}

func blankRow(cols int) []rune {
	row := make([]rune, cols)
	for i := range row {
		row[i] = ' '
	}
	return row
}

// Feed interprets raw bytes into the screen. Undecodable byte
// sequences become replacement characters rather than errors.
func (s *Screen) Feed(data []byte) {
	for _, b := range data {
		s.feedByte(b)
	}
}

func (s *Screen) feedByte(b byte) {
	switch s.state {
	case stateGround:
		s.feedGround(b)
	case stateEscape:
		s.feedEscape(b)
	case stateCSI:
		s.feedCSI(b)
	case stateOSC:
		if b == 0x07 {
			s.state = stateGround
		} else if b == 0x1b {
			s.state = stateOSCEscape
		}
	case stateOSCEscape:
		// ESC \ (ST) ends the OSC string; anything else means the
		// ESC belonged to the string body.
		if b == '\\' {
			s.state = stateGround
		} else {
			s.state = stateOSC
		}
	case stateCharset:
		// Charset designation byte, consumed and ignored.
		s.state = stateGround
	}
}

func (s *Screen) feedGround(b byte) {
	switch {
	case b == 0x1b:
		s.flushPending()
		s.state = stateEscape
	case b == '\n', b == 0x0b, b == 0x0c:
		s.flushPending()
		s.lineFeed()
	case b == '\r':
		s.flushPending()
		s.col = 0
	case b == '\b':
		s.flushPending()
		if s.col > 0 {
			s.col--
		}
	case b == '\t':
		s.flushPending()
		next := (s.col/8 + 1) * 8
		if next > s.cols-1 {
			next = s.cols - 1
		}
		s.col = next
	case b < 0x20 || b == 0x7f:
		// Other control bytes (BEL, SO, SI, DEL, ...) are ignored.
		s.flushPending()
	default:
		s.pending = append(s.pending, b)
		s.drainPending(false)
	}
}

// drainPending decodes complete runes out of the pending UTF-8 buffer.
// With force set, a trailing incomplete sequence is decoded as
// replacement characters instead of being held for the next feed.
func (s *Screen) drainPending(force bool) {
	for len(s.pending) > 0 {
		if !utf8.FullRune(s.pending) && !force {
			return
		}
		r, size := utf8.DecodeRune(s.pending)
		s.pending = s.pending[size:]
		s.putRune(r)
	}
}

// flushPending force-decodes any held bytes before a control byte or
// escape sequence interrupts a multibyte character.
func (s *Screen) flushPending() {
	s.drainPending(true)
}

func (s *Screen) feedEscape(b byte) {
	switch b {
	case '[':
		s.params = s.params[:0]
		s.state = stateCSI
	case ']':
		s.state = stateOSC
	case '(', ')':
		s.state = stateCharset
	case '7':
		s.savedRow, s.savedCol = s.row, s.col
		s.state = stateGround
	case '8':
		s.row, s.col = s.savedRow, s.savedCol
		s.state = stateGround
	case 'D':
		s.lineFeed()
		s.state = stateGround
	case 'E':
		s.col = 0
		s.lineFeed()
		s.state = stateGround
	case 'M':
		s.reverseLineFeed()
		s.state = stateGround
	case 'c':
		s.Reset()
	default:
		s.state = stateGround
	}
}

func (s *Screen) feedCSI(b byte) {
	switch {
	case b >= 0x30 && b <= 0x3f:
		// Parameter bytes: digits, ';', '?', ':'.
		s.params = append(s.params, b)
	case b >= 0x20 && b <= 0x2f:
		// Intermediate bytes, ignored.
	case b >= 0x40 && b <= 0x7e:
		s.dispatchCSI(b)
		s.state = stateGround
	default:
		// Malformed sequence; abandon it.
		s.state = stateGround
	}
}

// dispatchCSI executes a complete CSI sequence.
func (s *Screen) dispatchCSI(final byte) {
	// Private-mode sequences (DECSET/DECRST and friends) carry a '?'
	// prefix and only change modes this screen does not model.
	if len(s.params) > 0 && s.params[0] == '?' {
		return
	}
	params := csiParams(s.params)

	switch final {
	case 'A':
		s.row = clamp(s.row-param(params, 0, 1), 0, s.rows-1)
	case 'B':
		s.row = clamp(s.row+param(params, 0, 1), 0, s.rows-1)
	case 'C':
		s.col = clamp(s.col+param(params, 0, 1), 0, s.cols-1)
	case 'D':
		s.col = clamp(s.col-param(params, 0, 1), 0, s.cols-1)
	case 'E':
		s.row = clamp(s.row+param(params, 0, 1), 0, s.rows-1)
		s.col = 0
	case 'F':
		s.row = clamp(s.row-param(params, 0, 1), 0, s.rows-1)
		s.col = 0
	case 'G':
		s.col = clamp(param(params, 0, 1)-1, 0, s.cols-1)
	case 'H', 'f':
		s.row = clamp(param(params, 0, 1)-1, 0, s.rows-1)
		s.col = clamp(param(params, 1, 1)-1, 0, s.cols-1)
	case 'd':
		s.row = clamp(param(params, 0, 1)-1, 0, s.rows-1)
	case 'J':
		s.eraseDisplay(param(params, 0, 0))
	case 'K':
		s.eraseLine(param(params, 0, 0))
	case 'S':
		for i := 0; i < param(params, 0, 1); i++ {
			s.scrollUp()
		}
	case 'T':
		for i := 0; i < param(params, 0, 1); i++ {
			s.scrollDown()
		}
	case 's':
		s.savedRow, s.savedCol = s.row, s.col
	case 'u':
		s.row, s.col = s.savedRow, s.savedCol
	}
	// SGR ('m'), mode set/reset ('h'/'l'), scroll region ('r'), and
	// the rest do not affect recoverable text.
}

func (s *Screen) putRune(r rune) {
	if s.col >= s.cols {
		// Deferred wrap: the previous write filled the line.
		s.col = 0
		s.lineFeed()
	}
	s.cells[s.row][s.col] = r
	s.col++
}

func (s *Screen) lineFeed() {
	if s.row == s.rows-1 {
		s.scrollUp()
		return
	}
	s.row++
}

func (s *Screen) reverseLineFeed() {
	if s.row == 0 {
		s.scrollDown()
		return
	}
	s.row--
}

func (s *Screen) scrollUp() {
	copy(s.cells, s.cells[1:])
	s.cells[s.rows-1] = blankRow(s.cols)
}

func (s *Screen) scrollDown() {
	copy(s.cells[1:], s.cells[:s.rows-1])
	s.cells[0] = blankRow(s.cols)
}

func (s *Screen) eraseDisplay(mode int) {
	switch mode {
	case 0: // Cursor to end of screen.
		s.eraseLine(0)
		for r := s.row + 1; r < s.rows; r++ {
			s.cells[r] = blankRow(s.cols)
		}
	case 1: // Start of screen to cursor.
		for r := 0; r < s.row; r++ {
			s.cells[r] = blankRow(s.cols)
		}
		s.eraseLine(1)
	case 2, 3: // Entire screen.
		for r := range s.cells {
			s.cells[r] = blankRow(s.cols)
		}
	}
}

func (s *Screen) eraseLine(mode int) {
	row := s.cells[s.row]
	switch mode {
	case 0:
		for c := s.col; c < s.cols; c++ {
			row[c] = ' '
		}
	case 1:
		for c := 0; c <= s.col && c < s.cols; c++ {
			row[c] = ' '
		}
	case 2:
		s.cells[s.row] = blankRow(s.cols)
	}
}

// Content renders the grid as text: trailing whitespace trimmed from
// each row, trailing all-blank rows dropped.
func (s *Screen) Content() string {
	lines := make([]string, s.rows)
	for i, row := range s.cells {
		lines[i] = strings.TrimRight(string(row), " ")
	}
	end := len(lines)
	for end > 0 && lines[end-1] == "" {
		end--
	}
	return strings.Join(lines[:end], "\n")
}

// statusbarKeywords are content markers that distinguish a live status
// line from ordinary output. The check is a heuristic over translated
// and abbreviated labels; false negatives are tolerated.
var statusbarKeywords = []string{
	"token", "cost", "model", "context", "$", "sonnet", "opus", "haiku",
}

// Statusbar returns the bottom row of the screen when it looks like a
// status line, that is, when it contains any of the known cost,
// token, model, or context-window indicators.
func (s *Screen) Statusbar() (string, bool) {
	last := strings.TrimSpace(string(s.cells[s.rows-1]))
	if last == "" {
		return "", false
	}
	lower := strings.ToLower(last)
	for _, keyword := range statusbarKeywords {
		if strings.Contains(lower, keyword) {
			return last, true
		}
	}
	return "", false
}

// Cursor returns the current cursor position (zero-based row, column).
func (s *Screen) Cursor() (row, col int) {
	return s.row, s.col
}

// csiParams splits a CSI parameter byte string into integers. Empty
// slots keep the value -1 so callers can apply per-command defaults.
func csiParams(raw []byte) []int {
	if len(raw) == 0 {
		return nil
	}
	parts := strings.Split(string(raw), ";")
	values := make([]int, len(parts))
	for i, part := range parts {
		values[i] = -1
		n := 0
		ok := false
		for _, r := range part {
			if r < '0' || r > '9' {
				ok = false
				break
			}
			n = n*10 + int(r-'0')
			ok = true
		}
		if ok {
			values[i] = n
		}
	}
	return values
}

// param returns parameter i with a default for missing or empty slots.
// A zero value also takes the default, matching terminal convention
// for cursor motion counts and positions.
func param(params []int, i, def int) int {
	if i >= len(params) || params[i] <= 0 {
		return def
	}
	return params[i]
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
