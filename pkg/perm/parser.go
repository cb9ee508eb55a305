// pkg/perm/parser.go

package perm

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

var (
	chmodOctal    = regexp.MustCompile(`^\s*\+?([01]?)([0-7]{3})\s*$`)
	chmodSymbolic = regexp.MustCompile(`^\s*([ugoa]*)([+=-]+)([rwxXt]+)([,\s]*)`)
	// a umask never carries a sticky digit, X or t
	umaskOctal    = regexp.MustCompile(`^\s*\+?()([0-7]{3})\s*$`)
	umaskSymbolic = regexp.MustCompile(`^\s*([ugoa]*)([+=-]+)([rwx]*)([,\s]*)`)
)

// condX marks a conditional X: execute only where something already
// executes or for directories.
const condX = 8

type segment struct {
	mode byte
	typ  byte
}

// Chmod is a parsed chmod mode expression, octal or symbolic.
// Symbolic pieces are comma separated; segments a piece does not name
// keep their current bits. When a piece carries several of +-= only
// the last one counts.
type Chmod struct {
	user     segment
	group    segment
	others   segment
	sticky   segment
	symbolic bool
}

func ParseChmod(spec string) (*Chmod, error) {
	return parseMode(spec, chmodSymbolic, chmodOctal)
}

func parseMode(spec string, symbolic, octal *regexp.Regexp) (*Chmod, error) {
	c := &Chmod{
		user:   segment{typ: '+'},
		group:  segment{typ: '+'},
		others: segment{typ: '+'},
		sticky: segment{typ: '+'},
	}
	if symbolic.MatchString(spec) {
		if err := c.applySymbolic(spec, symbolic); err != nil {
			return nil, err
		}
		c.symbolic = true
		return c, nil
	}
	if m := octal.FindStringSubmatch(spec); m != nil {
		c.applyOctal(m)
		return c, nil
	}
	return nil, fmt.Errorf("invalid mode %q", spec)
}

func (c *Chmod) applySymbolic(spec string, re *regexp.Regexp) error {
	rest := spec
	for {
		m := re.FindStringSubmatch(rest)
		if m == nil {
			return fmt.Errorf("invalid mode %q", spec)
		}
		typ := m[2][len(m[2])-1]

		var user, group, others bool
		for _, ch := range m[1] {
			switch ch {
			case 'u':
				user = true
			case 'g':
				group = true
			case 'o':
				others = true
			}
		}
		if !user && !group && !others {
			user, group, others = true, true, true
		}

		var mode, sticky byte
		for _, ch := range m[3] {
			switch ch {
			case 'r':
				mode |= 4
			case 'w':
				mode |= 2
			case 'x':
				mode |= 1
			case 'X':
				mode |= condX
			case 't':
				sticky = 1
			}
		}

		if user {
			c.user = segment{mode, typ}
		}
		if group {
			c.group = segment{mode, typ}
		}
		if others {
			c.others = segment{mode, typ}
			c.sticky = segment{sticky, typ}
		}

		rest = rest[len(m[0]):]
		if rest == "" {
			return nil
		}
		if !strings.Contains(m[4], ",") {
			return fmt.Errorf("invalid mode %q", spec)
		}
	}
}

func (c *Chmod) applyOctal(m []string) {
	c.user.typ, c.group.typ, c.others.typ = '=', '=', '='
	if m[1] != "" {
		c.sticky = segment{m[1][0] - '0', '='}
	}
	c.user.mode = m[2][0] - '0'
	c.group.mode = m[2][1] - '0'
	c.others.mode = m[2][2] - '0'
}

// Apply computes the new mode bits for a file whose mode is existing.
// A conditional X grants execute for directories and for files that
// already execute somewhere.
func (c *Chmod) Apply(existing uint16, isDir bool) uint16 {
	exeOk := isDir || existing&0111 != 0
	return c.combine(existing, exeOk)
}

// ApplyTo computes the new file mode for info.
func (c *Chmod) ApplyTo(info os.FileInfo) os.FileMode {
	p := FromFileMode(info.Mode())
	return FromMode(c.Apply(p.Mode(), info.IsDir())).FileMode()
}

func (c *Chmod) combine(existing uint16, exeOk bool) uint16 {
	return combineSegment(c.sticky, byte(existing>>9), false)<<9 |
		combineSegment(c.user, byte(existing>>6&7), exeOk)<<6 |
		combineSegment(c.group, byte(existing>>3&7), exeOk)<<3 |
		combineSegment(c.others, byte(existing&7), exeOk)
}

func combineSegment(s segment, existing byte, exeOk bool) uint16 {
	mode := s.mode
	capX := mode&condX != 0
	if capX {
		mode &^= condX
		mode |= 1
	}
	switch s.typ {
	case '+':
		mode |= existing
	case '-':
		mode = ^mode & existing
	case '=':
	}
	// X may not introduce execute where nothing executed before
	if capX && !exeOk && mode&1 != 0 && existing&1 == 0 {
		mode &^= 1
	}
	return uint16(mode)
}

// ParseUmask parses an octal or symbolic umask. The octal form names
// the bits to clear, the symbolic form the permissions to keep.
func ParseUmask(spec string) (Permission, error) {
	c, err := parseMode(spec, umaskSymbolic, umaskOctal)
	if err != nil {
		return Permission{}, err
	}
	mask := c.combine(0, false)
	if c.symbolic {
		mask ^= 0777
	}
	return FromMode(mask & 0777), nil
}
