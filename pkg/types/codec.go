package types

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"unicode/utf16"
	"unicode/utf8"
)

// ErrNonFinite is returned when a NaN or infinite number is met in strict mode.
var ErrNonFinite = errors.New("non-finite number")

// ParseError describes a document that could not be decoded.
type ParseError struct {
	Offset int    // byte offset of the failure
	Msg    string // what the parser expected or found
	Err    error  // optional cause, e.g. ErrNonFinite
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("types: parse error at offset %d: %s: %v", e.Offset, e.Msg, e.Err)
	}
	return fmt.Sprintf("types: parse error at offset %d: %s", e.Offset, e.Msg)
}

func (e *ParseError) Unwrap() error { return e.Err }

// --- encoding ---

// Marshal encodes v as JSON. Object members are written in key order.
// Non-finite numbers fail with ErrNonFinite unless allowNonFinite is set,
// in which case they are written as NaN, Infinity or -Infinity.
func Marshal(v Value, allowNonFinite bool) ([]byte, error) {
	var buf bytes.Buffer
	if err := encode(&buf, v, allowNonFinite, ""); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encode(buf *bytes.Buffer, v Value, allow bool, path string) error {
	switch v.kind {
	case KindNull:
		buf.WriteString("null")
	case KindBool:
		buf.WriteString(strconv.FormatBool(v.b))
	case KindNumber:
		switch {
		case math.IsNaN(v.n):
			if !allow {
				return fmt.Errorf("types: encode %s: %w", pathOrRoot(path), ErrNonFinite)
			}
			buf.WriteString("NaN")
		case math.IsInf(v.n, 1):
			if !allow {
				return fmt.Errorf("types: encode %s: %w", pathOrRoot(path), ErrNonFinite)
			}
			buf.WriteString("Infinity")
		case math.IsInf(v.n, -1):
			if !allow {
				return fmt.Errorf("types: encode %s: %w", pathOrRoot(path), ErrNonFinite)
			}
			buf.WriteString("-Infinity")
		default:
			b, err := json.Marshal(v.n)
			if err != nil {
				return fmt.Errorf("types: encode %s: %w", pathOrRoot(path), err)
			}
			buf.Write(b)
		}
	case KindString:
		b, err := json.Marshal(v.s)
		if err != nil {
			return fmt.Errorf("types: encode %s: %w", pathOrRoot(path), err)
		}
		buf.Write(b)
	case KindArray:
		buf.WriteByte('[')
		for i, e := range v.arr {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encode(buf, e, allow, fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case KindObject:
		buf.WriteByte('{')
		for i, k := range v.Keys() {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return fmt.Errorf("types: encode key %q: %w", k, err)
			}
			buf.Write(kb)
			buf.WriteByte(':')
			if err := encode(buf, v.obj[k], allow, path+"."+k); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("types: encode %s: unknown kind %v", pathOrRoot(path), v.kind)
	}
	return nil
}

func pathOrRoot(p string) string {
	if p == "" {
		return "value"
	}
	return "value" + p
}

// MarshalJSON implements json.Marshaler in lenient mode so that Values can
// be embedded in API responses. Non-finite numbers are rendered as null.
func (v Value) MarshalJSON() ([]byte, error) {
	if !v.Finite() {
		return Marshal(nullNonFinite(v), false)
	}
	return Marshal(v, false)
}

// UnmarshalJSON implements json.Unmarshaler in strict mode.
func (v *Value) UnmarshalJSON(data []byte) error {
	out, err := Unmarshal(data, false)
	if err != nil {
		return err
	}
	*v = out
	return nil
}

func nullNonFinite(v Value) Value {
	switch v.kind {
	case KindNumber:
		if math.IsNaN(v.n) || math.IsInf(v.n, 0) {
			return Null()
		}
	case KindArray:
		out := make([]Value, len(v.arr))
		for i, e := range v.arr {
			out[i] = nullNonFinite(e)
		}
		return Value{kind: KindArray, arr: out}
	case KindObject:
		out := make(map[string]Value, len(v.obj))
		for k, e := range v.obj {
			out[k] = nullNonFinite(e)
		}
		return Value{kind: KindObject, obj: out}
	}
	return v
}

// --- decoding ---

// Unmarshal decodes a single JSON document. The bare tokens NaN, Infinity
// and -Infinity are accepted only when allowNonFinite is set; otherwise
// they produce a *ParseError wrapping ErrNonFinite.
func Unmarshal(data []byte, allowNonFinite bool) (Value, error) {
	p := &parser{data: data, allow: allowNonFinite}
	p.skipSpace()
	v, err := p.value(0)
	if err != nil {
		return Value{}, err
	}
	p.skipSpace()
	if p.pos != len(p.data) {
		return Value{}, p.fail("trailing data after document")
	}
	return v, nil
}

const maxDepth = 512

type parser struct {
	data  []byte
	pos   int
	allow bool
}

func (p *parser) fail(msg string) *ParseError {
	return &ParseError{Offset: p.pos, Msg: msg}
}

func (p *parser) skipSpace() {
	for p.pos < len(p.data) {
		switch p.data[p.pos] {
		case ' ', '\t', '\n', '\r':
			p.pos++
		default:
			return
		}
	}
}

func (p *parser) value(depth int) (Value, error) {
	if depth > maxDepth {
		return Value{}, p.fail("nesting too deep")
	}
	if p.pos >= len(p.data) {
		return Value{}, p.fail("unexpected end of input")
	}
	switch c := p.data[p.pos]; {
	case c == '{':
		return p.object(depth)
	case c == '[':
		return p.array(depth)
	case c == '"':
		s, err := p.str()
		if err != nil {
			return Value{}, err
		}
		return String(s), nil
	case c == 't':
		return p.literal("true", Bool(true))
	case c == 'f':
		return p.literal("false", Bool(false))
	case c == 'n':
		return p.literal("null", Null())
	case c == 'N':
		return p.nonFinite("NaN", math.NaN())
	case c == 'I':
		return p.nonFinite("Infinity", math.Inf(1))
	case c == '-' && bytes.HasPrefix(p.data[p.pos:], []byte("-Infinity")):
		return p.nonFinite("-Infinity", math.Inf(-1))
	case c == '-' || (c >= '0' && c <= '9'):
		return p.number()
	default:
		return Value{}, p.fail(fmt.Sprintf("unexpected character %q", c))
	}
}

func (p *parser) literal(tok string, v Value) (Value, error) {
	if !bytes.HasPrefix(p.data[p.pos:], []byte(tok)) {
		return Value{}, p.fail("invalid literal")
	}
	p.pos += len(tok)
	return v, nil
}

func (p *parser) nonFinite(tok string, n float64) (Value, error) {
	if !bytes.HasPrefix(p.data[p.pos:], []byte(tok)) {
		return Value{}, p.fail("invalid literal")
	}
	if !p.allow {
		return Value{}, &ParseError{Offset: p.pos, Msg: "token " + tok, Err: ErrNonFinite}
	}
	p.pos += len(tok)
	return Number(n), nil
}

func (p *parser) number() (Value, error) {
	start := p.pos
	if p.data[p.pos] == '-' {
		p.pos++
	}
	digits := func() int {
		n := 0
		for p.pos < len(p.data) && p.data[p.pos] >= '0' && p.data[p.pos] <= '9' {
			p.pos++
			n++
		}
		return n
	}
	if p.pos < len(p.data) && p.data[p.pos] == '0' {
		p.pos++
	} else if digits() == 0 {
		return Value{}, p.fail("invalid number")
	}
	if p.pos < len(p.data) && p.data[p.pos] == '.' {
		p.pos++
		if digits() == 0 {
			return Value{}, p.fail("invalid number fraction")
		}
	}
	if p.pos < len(p.data) && (p.data[p.pos] == 'e' || p.data[p.pos] == 'E') {
		p.pos++
		if p.pos < len(p.data) && (p.data[p.pos] == '+' || p.data[p.pos] == '-') {
			p.pos++
		}
		if digits() == 0 {
			return Value{}, p.fail("invalid number exponent")
		}
	}
	n, err := strconv.ParseFloat(string(p.data[start:p.pos]), 64)
	if err != nil {
		// ParseFloat reports overflow as ±Inf with ErrRange.
		if errors.Is(err, strconv.ErrRange) && math.IsInf(n, 0) && !p.allow {
			return Value{}, &ParseError{Offset: start, Msg: "number out of range", Err: ErrNonFinite}
		}
		if !errors.Is(err, strconv.ErrRange) {
			return Value{}, &ParseError{Offset: start, Msg: "invalid number", Err: err}
		}
	}
	return Number(n), nil
}

func (p *parser) str() (string, error) {
	p.pos++ // opening quote
	var sb []byte
	for {
		if p.pos >= len(p.data) {
			return "", p.fail("unterminated string")
		}
		c := p.data[p.pos]
		switch {
		case c == '"':
			p.pos++
			return string(sb), nil
		case c == '\\':
			p.pos++
			if p.pos >= len(p.data) {
				return "", p.fail("unterminated escape")
			}
			e := p.data[p.pos]
			p.pos++
			switch e {
			case '"', '\\', '/':
				sb = append(sb, e)
			case 'b':
				sb = append(sb, '\b')
			case 'f':
				sb = append(sb, '\f')
			case 'n':
				sb = append(sb, '\n')
			case 'r':
				sb = append(sb, '\r')
			case 't':
				sb = append(sb, '\t')
			case 'u':
				r, err := p.hex4()
				if err != nil {
					return "", err
				}
				if utf16.IsSurrogate(r) {
					r = p.lowSurrogate(r)
				}
				sb = utf8.AppendRune(sb, r)
			default:
				return "", p.fail(fmt.Sprintf("invalid escape %q", e))
			}
		case c < 0x20:
			return "", p.fail("control character in string")
		case c < utf8.RuneSelf:
			sb = append(sb, c)
			p.pos++
		default:
			r, size := utf8.DecodeRune(p.data[p.pos:])
			if r == utf8.RuneError && size == 1 {
				return "", p.fail("invalid UTF-8 in string")
			}
			sb = append(sb, p.data[p.pos:p.pos+size]...)
			p.pos += size
		}
	}
}

// lowSurrogate completes the pair started by hi. The following escape is
// consumed only when it forms a valid pair; otherwise hi decodes to U+FFFD
// and the next escape is parsed on its own.
func (p *parser) lowSurrogate(hi rune) rune {
	if !bytes.HasPrefix(p.data[p.pos:], []byte(`\u`)) || p.pos+6 > len(p.data) {
		return utf8.RuneError
	}
	lo, err := strconv.ParseUint(string(p.data[p.pos+2:p.pos+6]), 16, 32)
	if err != nil {
		return utf8.RuneError
	}
	r := utf16.DecodeRune(hi, rune(lo))
	if r == utf8.RuneError {
		return r
	}
	p.pos += 6
	return r
}

func (p *parser) hex4() (rune, error) {
	if p.pos+4 > len(p.data) {
		return 0, p.fail("short unicode escape")
	}
	n, err := strconv.ParseUint(string(p.data[p.pos:p.pos+4]), 16, 32)
	if err != nil {
		return 0, &ParseError{Offset: p.pos, Msg: "invalid unicode escape", Err: err}
	}
	p.pos += 4
	return rune(n), nil
}

func (p *parser) array(depth int) (Value, error) {
	p.pos++ // [
	out := []Value{}
	p.skipSpace()
	if p.pos < len(p.data) && p.data[p.pos] == ']' {
		p.pos++
		return Value{kind: KindArray, arr: out}, nil
	}
	for {
		p.skipSpace()
		e, err := p.value(depth + 1)
		if err != nil {
			return Value{}, err
		}
		out = append(out, e)
		p.skipSpace()
		if p.pos >= len(p.data) {
			return Value{}, p.fail("unterminated array")
		}
		switch p.data[p.pos] {
		case ',':
			p.pos++
		case ']':
			p.pos++
			return Value{kind: KindArray, arr: out}, nil
		default:
			return Value{}, p.fail("expected ',' or ']'")
		}
	}
}

func (p *parser) object(depth int) (Value, error) {
	p.pos++ // {
	out := map[string]Value{}
	p.skipSpace()
	if p.pos < len(p.data) && p.data[p.pos] == '}' {
		p.pos++
		return Value{kind: KindObject, obj: out}, nil
	}
	for {
		p.skipSpace()
		if p.pos >= len(p.data) || p.data[p.pos] != '"' {
			return Value{}, p.fail("expected object key")
		}
		k, err := p.str()
		if err != nil {
			return Value{}, err
		}
		p.skipSpace()
		if p.pos >= len(p.data) || p.data[p.pos] != ':' {
			return Value{}, p.fail("expected ':'")
		}
		p.pos++
		p.skipSpace()
		e, err := p.value(depth + 1)
		if err != nil {
			return Value{}, err
		}
		out[k] = e
		p.skipSpace()
		if p.pos >= len(p.data) {
			return Value{}, p.fail("unterminated object")
		}
		switch p.data[p.pos] {
		case ',':
			p.pos++
		case '}':
			p.pos++
			return Value{kind: KindObject, obj: out}, nil
		default:
			return Value{}, p.fail("expected ',' or '}'")
		}
	}
}
