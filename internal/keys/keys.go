package keys

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidHotkey is returned for accelerator strings that cannot be parsed
var ErrInvalidHotkey = errors.New("invalid hotkey")

// Mod is a bitmask of modifier keys
type Mod uint8

const (
	ModCtrl Mod = 1 << iota
	ModAlt
	ModShift
	ModSuper
)

// Accel is a parsed hotkey such as Ctrl+Shift+F1
type Accel struct {
	Mods Mod
	Key  string // canonical key name, e.g. "A", "F1", "Space"
}

var modNames = []struct {
	mod  Mod
	name string
}{
	{ModCtrl, "Ctrl"},
	{ModAlt, "Alt"},
	{ModShift, "Shift"},
	{ModSuper, "Super"},
}

var modAliases = map[string]Mod{
	"ctrl":    ModCtrl,
	"control": ModCtrl,
	"alt":     ModAlt,
	"option":  ModAlt,
	"opt":     ModAlt,
	"shift":   ModShift,
	"super":   ModSuper,
	"cmd":     ModSuper,
	"command": ModSuper,
	"meta":    ModSuper,
	"win":     ModSuper,
}

// named keys, lowercase alias -> canonical
var keyAliases = map[string]string{
	"space":     "Space",
	"spc":       "Space",
	"enter":     "Enter",
	"return":    "Enter",
	"tab":       "Tab",
	"esc":       "Escape",
	"escape":    "Escape",
	"backspace": "Backspace",
	"bksp":      "Backspace",
	"del":       "Delete",
	"delete":    "Delete",
	"ins":       "Insert",
	"insert":    "Insert",
	"home":      "Home",
	"end":       "End",
	"pgup":      "PageUp",
	"pageup":    "PageUp",
	"pgdown":    "PageDown",
	"pagedown":  "PageDown",
	"up":        "Up",
	"down":      "Down",
	"left":      "Left",
	"right":     "Right",
	"pause":     "Pause",
	"print":     "Print",
	"minus":     "Minus",
	"-":         "Minus",
	"equal":     "Equal",
	"=":         "Equal",
	"comma":     "Comma",
	",":         "Comma",
	"period":    "Period",
	".":         "Period",
	"slash":     "Slash",
	"/":         "Slash",
	"backslash": "Backslash",
	"\\":        "Backslash",
	"semicolon": "Semicolon",
	";":         "Semicolon",
	"quote":     "Quote",
	"'":         "Quote",
	"grave":     "Grave",
	"`":         "Grave",

	"bracketleft":  "BracketLeft",
	"[":            "BracketLeft",
	"bracketright": "BracketRight",
	"]":            "BracketRight",
}

// Shifted symbols are stored as Shift plus the US-layout key that types them,
// so "*" and "Shift+8" name the same binding
var shiftedKeys = map[string]string{
	"!": "1", "@": "2", "#": "3", "$": "4", "%": "5",
	"^": "6", "&": "7", "*": "8", "(": "9", ")": "0",
	"_": "Minus", "+": "Equal", ":": "Semicolon", "\"": "Quote",
	"<": "Comma", ">": "Period", "?": "Slash", "|": "Backslash",
	"~": "Grave", "{": "BracketLeft", "}": "BracketRight",

	"exclam": "1", "at": "2", "numbersign": "3", "hash": "3", "dollar": "4",
	"percent": "5", "caret": "6", "ampersand": "7", "asterisk": "8",
	"parenleft": "9", "parenright": "0", "underscore": "Minus",
	"plus": "Equal", "colon": "Semicolon", "less": "Comma",
	"greater": "Period", "question": "Slash", "bar": "Backslash",
	"tilde": "Grave", "braceleft": "BracketLeft", "braceright": "BracketRight",
}

// Parse parses an accelerator string. Separators are "+"; whitespace around
// tokens is ignored and matching is case-insensitive
func Parse(s string) (Accel, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Accel{}, fmt.Errorf("%w: empty", ErrInvalidHotkey)
	}

	tokens := splitTokens(s)

	var a Accel
	for i, tok := range tokens {
		if tok == "" {
			return Accel{}, fmt.Errorf("%w: empty key in %q", ErrInvalidHotkey, s)
		}

		last := i == len(tokens)-1
		lower := strings.ToLower(tok)

		if mod, ok := modAliases[lower]; ok && !last {
			if a.Mods&mod != 0 {
				return Accel{}, fmt.Errorf("%w: duplicate modifier %q in %q", ErrInvalidHotkey, tok, s)
			}
			a.Mods |= mod
			continue
		}

		if !last {
			return Accel{}, fmt.Errorf("%w: %q is not a modifier in %q", ErrInvalidHotkey, tok, s)
		}

		if base, ok := shiftedKeys[lower]; ok {
			a.Mods |= ModShift
			a.Key = base
			continue
		}

		key, ok := canonicalKey(tok)
		if !ok {
			return Accel{}, fmt.Errorf("%w: unknown key %q", ErrInvalidHotkey, tok)
		}
		a.Key = key
	}

	return a, nil
}

// splitTokens splits on "+". A trailing "++" (or a lone "+") is the plus key.
func splitTokens(s string) []string {
	parts := strings.Split(s, "+")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	if n := len(parts); n >= 2 && parts[n-1] == "" && parts[n-2] == "" {
		parts = append(parts[:n-2], "+")
	}
	return parts
}

func canonicalKey(tok string) (string, bool) {
	lower := strings.ToLower(tok)

	if name, ok := keyAliases[lower]; ok {
		return name, true
	}

	if len(tok) == 1 {
		c := tok[0]
		switch {
		case c >= 'a' && c <= 'z':
			return string(c - 32), true
		case c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			return string(c), true
		}
		return "", false
	}

	// F1..F24
	if lower[0] == 'f' {
		if n, ok := number(lower[1:]); ok && n >= 1 && n <= 24 {
			return fmt.Sprintf("F%d", n), true
		}
	}

	// Num0..Num9, also "kp0" / "numpad0"
	for _, prefix := range []string{"numpad", "num", "kp"} {
		if rest, ok := strings.CutPrefix(lower, prefix); ok {
			if n, ok := number(rest); ok && n <= 9 {
				return fmt.Sprintf("Num%d", n), true
			}
		}
	}

	return "", false
}

func number(s string) (int, bool) {
	if s == "" || len(s) > 2 {
		return 0, false
	}
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	return n, true
}

// String returns the canonical form, modifiers in Ctrl, Alt, Shift, Super order
func (a Accel) String() string {
	var b strings.Builder
	for _, m := range modNames {
		if a.Mods&m.mod != 0 {
			b.WriteString(m.name)
			b.WriteByte('+')
		}
	}
	b.WriteString(a.Key)
	return b.String()
}

// Has reports whether the modifier is set
func (a Accel) Has(m Mod) bool {
	return a.Mods&m != 0
}

// Normalize returns the canonical form of s. The empty string normalizes to
// itself, meaning "unbound"
func Normalize(s string) (string, error) {
	if strings.TrimSpace(s) == "" {
		return "", nil
	}
	a, err := Parse(s)
	if err != nil {
		return "", err
	}
	return a.String(), nil
}

// Presets are the keys offered for quick binding in menus
var Presets = []string{
	"F1", "F2", "F3", "F4", "F5", "F6", "F7", "F8", "F9", "F10", "F11", "F12",
	"Num0", "Num1", "Num2", "Num3", "Num4", "Num5", "Num6", "Num7", "Num8", "Num9",
}
