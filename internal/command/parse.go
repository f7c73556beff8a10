// Package command resolves the template language used in snippet
// expansions.
//
// A template is plain text with commands in braces:
//
//	{date} {date:%d/%m/%Y} {time} {datetime}
//	{clipboard} {cursor} {uuid}
//	{enter} {tab} {key:Ctrl+b} {wait:200}
//	{form:name} {form:team=core}
//	{lua:string.upper(vars.name)}
//	{snippet:sig}
//
// "{{" and "}}" produce literal braces. Unknown commands are left as
// written.
package command

import (
	"strings"
)

// segment is either literal text or one command.
type segment struct {
	literal string
	name    string
	arg     string
	hasArg  bool
	raw     string
}

func (s segment) isCommand() bool { return s.name != "" }

// parse splits a template into segments.
func parse(template string) []segment {
	var segs []segment
	var lit strings.Builder
	flush := func() {
		if lit.Len() > 0 {
			segs = append(segs, segment{literal: lit.String()})
			lit.Reset()
		}
	}

	for i := 0; i < len(template); {
		c := template[i]
		switch {
		case c == '{' && strings.HasPrefix(template[i:], "{{"):
			lit.WriteByte('{')
			i += 2
		case c == '}' && strings.HasPrefix(template[i:], "}}"):
			lit.WriteByte('}')
			i += 2
		case c == '{':
			end := strings.IndexByte(template[i+1:], '}')
			if end < 0 {
				lit.WriteString(template[i:])
				i = len(template)
				continue
			}
			raw := template[i : i+end+2]
			body := template[i+1 : i+1+end]
			name, arg, hasArg := strings.Cut(body, ":")
			if !validName(name) {
				lit.WriteString(raw)
				i += len(raw)
				continue
			}
			flush()
			segs = append(segs, segment{name: name, arg: arg, hasArg: hasArg, raw: raw})
			i += len(raw)
		default:
			lit.WriteByte(c)
			i++
		}
	}
	flush()
	return segs
}

func validName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		if r < 'a' || r > 'z' {
			return false
		}
	}
	return true
}
