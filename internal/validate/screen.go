package validate

import "unicode/utf8"

// Screen releases streamed text only once no banned term can still complete inside
// it. The last few runes, shorter than the longest banned term, are held back until
// more text arrives or Flush is called. After a banned term is seen nothing more is
// released.
type Screen struct {
	v        *Validator
	hold     int
	text     []rune
	released int
	blocked  bool
}

// Screen starts a new stream screen.
func (v *Validator) Screen() *Screen {
	longest := 0
	for _, b := range v.banned {
		if n := utf8.RuneCountInString(b); n > longest {
			longest = n
		}
	}
	hold := longest - 1
	if hold < 0 {
		hold = 0
	}
	return &Screen{v: v, hold: hold}
}

// Write adds a fragment and returns the text that is now safe to show, possibly "".
func (s *Screen) Write(fragment string) string {
	if s.blocked {
		return ""
	}
	s.text = append(s.text, []rune(fragment)...)
	if !s.v.Validate(string(s.text)).Valid {
		s.blocked = true
		return ""
	}
	end := len(s.text) - s.hold
	if end <= s.released {
		return ""
	}
	out := string(s.text[s.released:end])
	s.released = end
	return out
}

// Flush returns the held-back remainder when the whole text passed validation.
func (s *Screen) Flush() string {
	if s.blocked || s.released >= len(s.text) {
		return ""
	}
	out := string(s.text[s.released:])
	s.released = len(s.text)
	return out
}

// Blocked reports whether a banned term was seen.
func (s *Screen) Blocked() bool { return s.blocked }
