// Package parser reads tag-definition documents (.ents) into a Definition.
//
// Grammar, one tag per line:
//
//	<indent> <marker> <name> [(alias)] [:]
//
// where indent is a multiple of four spaces giving the nesting level and
// marker is "-" (normal), "+" (dud), or "+-"/"-+" (exclusive). Parentheses
// and colons inside names are escaped with a backslash. Blank lines are
// skipped. Ancestry is computed strictly from the open-node stack, so the
// result is always a forest.
package parser

import (
	"fmt"
	"os"
	"strings"

	"github.com/starford/eihwaz/internal/models"
)

const indentWidth = 4

type parsedLine struct {
	level int
	kind  models.TagKind
	name  string
	alias string
}

// ParseFile reads and parses the definition document at path.
func ParseFile(path string) (*models.Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("parser: read %s: %w", path, err)
	}
	def, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parser: %s: %w", path, err)
	}
	return def, nil
}

// Parse parses raw definition bytes into a Definition.
func Parse(data []byte) (*models.Definition, error) {
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	var lines []parsedLine
	for i, raw := range strings.Split(text, "\n") {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		pl, err := parseLine(raw)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		lines = append(lines, pl)
	}
	return buildForest(lines)
}

func parseLine(raw string) (parsedLine, error) {
	var pl parsedLine

	indent := 0
	for indent < len(raw) && raw[indent] == ' ' {
		indent++
	}
	if indent%indentWidth != 0 {
		return pl, fmt.Errorf("indent of %d spaces is not a multiple of %d", indent, indentWidth)
	}
	pl.level = indent / indentWidth

	rest := raw[indent:]
	switch {
	case strings.HasPrefix(rest, "+-"), strings.HasPrefix(rest, "-+"):
		pl.kind = models.KindExclusive
		rest = rest[2:]
	case strings.HasPrefix(rest, "+"):
		pl.kind = models.KindDud
		rest = rest[1:]
	case strings.HasPrefix(rest, "-"):
		pl.kind = models.KindNormal
		rest = rest[1:]
	default:
		return pl, fmt.Errorf("expected tag marker (-, + or +-), got %q", rest)
	}

	if !strings.HasPrefix(rest, " ") {
		return pl, fmt.Errorf("expected space after tag marker in %q", raw)
	}

	name, rest, err := scanName(strings.TrimLeft(rest, " "))
	if err != nil {
		return pl, err
	}
	pl.name = name

	rest = strings.TrimLeft(rest, " ")
	if strings.HasPrefix(rest, "(") {
		end := strings.IndexByte(rest, ')')
		if end < 0 {
			return pl, fmt.Errorf("unterminated alias in %q", raw)
		}
		pl.alias = strings.TrimSpace(rest[1:end])
		rest = rest[end+1:]
	}

	rest = strings.TrimLeft(rest, " ")
	rest = strings.TrimPrefix(rest, ":")
	if strings.TrimSpace(rest) != "" {
		return pl, fmt.Errorf("unexpected trailing content %q", strings.TrimSpace(rest))
	}
	return pl, nil
}

// scanName consumes the tag name up to an unescaped '(', ':' or end of
// line, unescaping \(, \) and \:.
func scanName(in string) (string, string, error) {
	var b strings.Builder
	i := 0
	for i < len(in) {
		c := in[i]
		if c == '\\' && i+1 < len(in) {
			switch in[i+1] {
			case '(', ')', ':':
				b.WriteByte(in[i+1])
				i += 2
				continue
			}
		}
		if c == '(' || c == ':' {
			break
		}
		b.WriteByte(c)
		i++
	}
	name := strings.TrimSpace(b.String())
	if name == "" {
		return "", "", fmt.Errorf("empty tag name")
	}
	return name, in[i:], nil
}

// buildForest turns the flat line list into a Definition: ancestry from
// the open-node stack, children recorded on the parent, tags flattened in
// document order.
func buildForest(lines []parsedLine) (*models.Definition, error) {
	def := &models.Definition{Aliases: map[string]string{}}

	// stack[i] is the most recent tag at nesting level i.
	var stack []*models.Tag

	for _, pl := range lines {
		if pl.level > len(stack) {
			return nil, fmt.Errorf("tag %q skips from level %d to %d", pl.name, len(stack), pl.level)
		}
		stack = stack[:pl.level]

		ancestry := make([]string, len(stack))
		for i, a := range stack {
			ancestry[i] = a.Name
		}

		t := &models.Tag{
			Name:     pl.name,
			Kind:     pl.kind,
			Children: []string{},
			Ancestry: ancestry,
		}
		if len(stack) > 0 {
			parent := stack[len(stack)-1]
			parent.Children = append(parent.Children, t.Name)
		}
		if pl.alias != "" {
			def.Aliases[pl.alias] = t.Name
		}
		def.Tags = append(def.Tags, t)
		stack = append(stack, t)
	}
	return def, nil
}
