package parser

import (
	"encoding/json"
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/sgrlab/deepresearch/schema"
)

type state int

const (
	stBeforeRoot state = iota
	stObjKey           // inside an object, expecting a key or closer
	stKeyStr           // reading a key string
	stColon            // expecting ':' after a key
	stValue            // expecting a value start
	stStr              // inside a string value
	stLit              // inside a number / true / false / null literal
	stAfterVal         // expecting ',' or a closing bracket
	stDone             // root object closed
	stFailed           // terminal error, no further deltas
)

// frame tracks one open container on the nesting stack. key is the
// top-level field name the container was assigned to (empty for nested
// containers below the emission depth).
type frame struct {
	isArray bool
	key     string
	curKey  string
	index   int
}

// Parser is an incremental scanner over a single JSON action payload. It is
// not safe for concurrent use; one Parser serves one model call.
type Parser struct {
	allowed []string

	raw   strings.Builder
	stack []frame
	st    state
	pos   int

	// string scanning
	inKey     bool
	esc       bool
	escBuf    []byte
	surrogate rune
	pending   []byte // incomplete UTF-8 sequence split across fragments

	keyBuf  strings.Builder
	valBuf  strings.Builder
	textBuf strings.Builder // decoded-but-unemitted text of the current top-level string field
	litBuf  strings.Builder

	tag        string
	tagEmitted bool
	done       bool
	failed     bool

	out []Delta
}

// New constructs a parser constrained to the allowed action set. A streamed
// tag that cannot belong to the set terminates the parse with a DeltaError.
func New(allowed []schema.Kind) *Parser {
	tags := make([]string, len(allowed))
	for i, k := range allowed {
		tags[i] = string(k)
	}
	return &Parser{allowed: tags, st: stBeforeRoot}
}

// Raw returns the accumulated payload, complete or not. The reasoning loop
// validates it via schema.Validate once the stream closes.
func (p *Parser) Raw() string { return p.raw.String() }

// Done reports whether the root object has closed cleanly.
func (p *Parser) Done() bool { return p.done }

// Failed reports whether the parse terminated with a DeltaError.
func (p *Parser) Failed() bool { return p.failed }

// Tag returns the identified action tag, or "" before disambiguation.
func (p *Parser) Tag() string { return p.tag }

// Feed consumes the next raw fragment and returns the deltas it produced.
// After a DeltaError the parser stays terminal and returns nothing.
func (p *Parser) Feed(fragment string) []Delta {
	if p.failed {
		return nil
	}
	p.raw.WriteString(fragment)
	p.out = p.out[:0]

	data := fragment
	if len(p.pending) > 0 {
		data = string(p.pending) + fragment
		p.pending = p.pending[:0]
	}

	i := 0
	for i < len(data) && !p.failed {
		c := data[i]
		if p.st == stStr || p.st == stKeyStr {
			n := p.stringByte(data[i:])
			if n == 0 {
				// incomplete UTF-8 or escape tail, keep for the next fragment
				p.pending = append(p.pending, data[i:]...)
				i = len(data)
				break
			}
			i += n
			p.pos += n
			continue
		}
		p.structuralByte(c)
		i++
		p.pos++
	}

	p.flushText()
	return p.out
}

// Close signals end of stream. If the root object has not closed, a
// truncated-stream DeltaError is emitted.
func (p *Parser) Close() []Delta {
	if p.failed {
		return nil
	}
	p.out = p.out[:0]
	if !p.done {
		p.fail("truncated stream: root object not closed")
	}
	return p.out
}

// stringByte consumes bytes of an in-progress string (key or value).
// Returns the number of bytes consumed, or 0 when the remaining bytes form
// an incomplete escape or UTF-8 sequence.
func (p *Parser) stringByte(rest string) int {
	c := rest[0]

	if p.esc {
		return p.escapeByte(rest)
	}

	switch {
	case c == '\\':
		p.esc = true
		p.escBuf = p.escBuf[:0]
		return 1
	case c == '"':
		p.endString()
		return 1
	case c < 0x20:
		p.fail("unescaped control character in string")
		return 1
	case c < utf8.RuneSelf:
		p.appendStringText(string(c))
		return 1
	default:
		r, size := utf8.DecodeRuneInString(rest)
		if r == utf8.RuneError && size == 1 {
			if !utf8.FullRuneInString(rest) {
				return 0 // split multi-byte rune, wait for more input
			}
			p.fail("invalid UTF-8 in string")
			return 1
		}
		p.appendStringText(rest[:size])
		return size
	}
}

// escapeByte consumes bytes of an escape sequence started by a backslash.
func (p *Parser) escapeByte(rest string) int {
	c := rest[0]
	if len(p.escBuf) == 0 && c != 'u' {
		p.esc = false
		switch c {
		case '"', '\\', '/':
			p.appendStringText(string(c))
		case 'b':
			p.appendStringText("\b")
		case 'f':
			p.appendStringText("\f")
		case 'n':
			p.appendStringText("\n")
		case 'r':
			p.appendStringText("\r")
		case 't':
			p.appendStringText("\t")
		default:
			p.fail("invalid escape sequence")
		}
		return 1
	}

	// \uXXXX path: buffer 'u' plus four hex digits.
	p.escBuf = append(p.escBuf, c)
	if len(p.escBuf) < 5 {
		return 1
	}
	p.esc = false
	var r rune
	for _, h := range p.escBuf[1:] {
		d := hexDigit(h)
		if d < 0 {
			p.fail("invalid unicode escape")
			return 1
		}
		r = r<<4 | rune(d)
	}
	switch {
	case utf16.IsSurrogate(r) && p.surrogate == 0:
		p.surrogate = r
	case p.surrogate != 0:
		p.appendStringText(string(utf16.DecodeRune(p.surrogate, r)))
		p.surrogate = 0
	default:
		p.appendStringText(string(r))
	}
	return 1
}

func hexDigit(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10
	}
	return -1
}

// appendStringText routes decoded string content to the right accumulator
// depending on whether the parser is inside a key or a value.
func (p *Parser) appendStringText(s string) {
	if p.inKey {
		p.keyBuf.WriteString(s)
		return
	}
	p.valBuf.WriteString(s)
	if p.topLevelField() {
		key := p.stack[0].curKey
		if key == "tool" {
			p.tryDisambiguate()
			return
		}
		p.textBuf.WriteString(s)
	}
}

// tryDisambiguate emits the DeltaTag once the streamed "tool" prefix
// matches exactly one allowed variant, or fails when it can match none.
func (p *Parser) tryDisambiguate() {
	if p.tagEmitted {
		return
	}
	prefix := p.valBuf.String()
	var match string
	count := 0
	for _, tag := range p.allowed {
		if strings.HasPrefix(tag, prefix) {
			match = tag
			count++
		}
	}
	switch count {
	case 0:
		p.fail("action tag " + quote(prefix) + " not in the allowed set")
	case 1:
		p.tag = match
		p.tagEmitted = true
		p.emit(Delta{Kind: DeltaTag, Action: match})
	}
}

func quote(s string) string { b, _ := json.Marshal(s); return string(b) }

// endString finishes the current key or value string.
func (p *Parser) endString() {
	if p.inKey {
		p.inKey = false
		p.st = stColon
		return
	}

	val := p.valBuf.String()
	if p.topLevelField() {
		key := p.stack[0].curKey
		if key == "tool" {
			p.finishTag(val)
		} else {
			p.flushText()
			p.emit(Delta{Kind: DeltaFieldDone, Action: p.tag, Field: key, Value: val})
		}
	} else if p.topLevelItem() {
		fr := &p.stack[1]
		p.emit(Delta{Kind: DeltaItem, Action: p.tag, Field: fr.key, Index: fr.index, Value: val})
	}
	p.closeValue()
}

// finishTag validates the completed tag against the allowed set.
func (p *Parser) finishTag(val string) {
	for _, tag := range p.allowed {
		if tag == val {
			if !p.tagEmitted {
				p.tag = val
				p.tagEmitted = true
				p.emit(Delta{Kind: DeltaTag, Action: val})
			}
			return
		}
	}
	p.fail("action tag " + quote(val) + " not in the allowed set")
}

// structuralByte consumes one byte outside of strings.
func (p *Parser) structuralByte(c byte) {
	if p.st == stLit {
		switch c {
		case ',', '}', ']':
			p.endLiteral()
			// fall through to structural handling below
		case ' ', '\t', '\n', '\r':
			p.endLiteral()
			return
		default:
			p.litBuf.WriteByte(c)
			return
		}
		if p.failed {
			return
		}
	}

	if isSpace(c) {
		return
	}

	switch p.st {
	case stBeforeRoot:
		if c != '{' {
			p.fail("payload must start with an object")
			return
		}
		p.stack = append(p.stack, frame{})
		p.st = stObjKey
	case stObjKey:
		switch c {
		case '"':
			p.inKey = true
			p.keyBuf.Reset()
			p.st = stKeyStr
		case '}':
			p.closeContainer(false)
		default:
			p.fail("expected object key")
		}
	case stColon:
		if c != ':' {
			p.fail("expected ':' after object key")
			return
		}
		p.top().curKey = p.keyBuf.String()
		p.st = stValue
	case stValue:
		p.startValue(c)
	case stAfterVal:
		switch c {
		case ',':
			if p.top().isArray {
				p.st = stValue
			} else {
				p.st = stObjKey
			}
		case '}':
			if p.top().isArray {
				p.fail("mismatched closing bracket")
				return
			}
			p.closeContainer(false)
		case ']':
			if !p.top().isArray {
				p.fail("mismatched closing bracket")
				return
			}
			p.closeContainer(true)
		default:
			p.fail("expected ',' or closing bracket")
		}
	case stDone:
		p.fail("unexpected content after payload")
	}
}

func (p *Parser) startValue(c byte) {
	switch c {
	case '"':
		p.valBuf.Reset()
		p.st = stStr
	case '{':
		p.stack = append(p.stack, frame{})
		p.st = stObjKey
	case '[':
		key := ""
		if len(p.stack) == 1 {
			key = p.stack[0].curKey
		}
		p.stack = append(p.stack, frame{isArray: true, key: key})
		p.st = stValue
	case ']':
		// empty array
		if !p.top().isArray {
			p.fail("unexpected ']'")
			return
		}
		p.closeContainer(true)
	case 't', 'f', 'n', '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		p.litBuf.Reset()
		p.litBuf.WriteByte(c)
		p.st = stLit
	default:
		p.fail("unexpected value start")
	}
}

// endLiteral completes a number / boolean / null value.
func (p *Parser) endLiteral() {
	lit := p.litBuf.String()
	if !json.Valid([]byte(lit)) {
		p.fail("invalid literal " + quote(lit))
		return
	}
	if p.topLevelField() {
		p.emit(Delta{Kind: DeltaFieldDone, Action: p.tag, Field: p.stack[0].curKey, Value: lit})
	} else if p.topLevelItem() {
		fr := &p.stack[1]
		p.emit(Delta{Kind: DeltaItem, Action: p.tag, Field: fr.key, Index: fr.index, Value: lit})
	}
	p.closeValue()
}

// closeValue advances bookkeeping after any completed value.
func (p *Parser) closeValue() {
	if p.top().isArray {
		p.top().index++
	}
	p.st = stAfterVal
}

// closeContainer pops the stack for '}' or ']'.
func (p *Parser) closeContainer(isArray bool) {
	if len(p.stack) == 0 || p.top().isArray != isArray {
		p.fail("mismatched closing bracket")
		return
	}
	p.stack = p.stack[:len(p.stack)-1]
	if len(p.stack) == 0 {
		p.done = true
		p.st = stDone
		return
	}
	p.closeValue()
}

// topLevelField reports whether the current value belongs directly to the
// root object.
func (p *Parser) topLevelField() bool { return len(p.stack) == 1 }

// topLevelItem reports whether the current value is a scalar element of a
// root-level list field.
func (p *Parser) topLevelItem() bool {
	return len(p.stack) == 2 && p.stack[1].isArray
}

func (p *Parser) top() *frame { return &p.stack[len(p.stack)-1] }

func (p *Parser) flushText() {
	if p.textBuf.Len() == 0 {
		return
	}
	p.emit(Delta{Kind: DeltaFieldText, Action: p.tag, Field: p.stack[0].curKey, Value: p.textBuf.String()})
	p.textBuf.Reset()
}

func (p *Parser) emit(d Delta) { p.out = append(p.out, d) }

func (p *Parser) fail(msg string) {
	if p.failed {
		return
	}
	p.textBuf.Reset()
	p.failed = true
	perr := &ParseError{Pos: p.pos, Message: msg}
	p.out = append(p.out, Delta{Kind: DeltaError, Action: p.tag, Err: perr})
}

func isSpace(c byte) bool { return c == ' ' || c == '\t' || c == '\n' || c == '\r' }
