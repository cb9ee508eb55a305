// pkg/perm/perm.go

// Package perm models POSIX style permissions as a small bit algebra
// and parses chmod and umask mode expressions.
package perm

import "os"

// Action is one rwx triad. The zero value permits nothing.
type Action uint8

const (
	None Action = iota
	Execute
	Write
	WriteExecute
	Read
	ReadExecute
	ReadWrite
	All
)

var symbols = [8]string{"---", "--x", "-w-", "-wx", "r--", "r-x", "rw-", "rwx"}

func (a Action) String() string { return symbols[a&7] }

// Implies reports whether a permits everything b permits.
func (a Action) Implies(b Action) bool { return a&b == b }

func (a Action) And(b Action) Action { return a & b }

func (a Action) Or(b Action) Action { return a | b }

func (a Action) Not() Action { return All &^ a }

// Permission is a permission triple plus the sticky bit.
type Permission struct {
	User   Action
	Group  Action
	Other  Action
	Sticky bool
}

// FromMode builds a Permission from Unix mode bits; bit 9 carries the
// sticky bit.
func FromMode(mode uint16) Permission {
	return Permission{
		User:   Action(mode >> 6 & 7),
		Group:  Action(mode >> 3 & 7),
		Other:  Action(mode & 7),
		Sticky: mode>>9&1 == 1,
	}
}

// Mode returns the Unix mode bits, the sticky bit at bit 9.
func (p Permission) Mode() uint16 {
	mode := uint16(p.User)<<6 | uint16(p.Group)<<3 | uint16(p.Other)
	if p.Sticky {
		mode |= 1 << 9
	}
	return mode
}

// FromFileMode converts from the os.FileMode representation.
func FromFileMode(m os.FileMode) Permission {
	p := FromMode(uint16(m.Perm()))
	p.Sticky = m&os.ModeSticky != 0
	return p
}

// FileMode converts to the os.FileMode representation.
func (p Permission) FileMode() os.FileMode {
	m := os.FileMode(p.Mode() & 0777)
	if p.Sticky {
		m |= os.ModeSticky
	}
	return m
}

// String renders ls style permissions, with t or T in the last column
// when the sticky bit is set.
func (p Permission) String() string {
	s := p.User.String() + p.Group.String() + p.Other.String()
	if p.Sticky {
		last := "T"
		if p.Other.Implies(Execute) {
			last = "t"
		}
		s = s[:8] + last
	}
	return s
}

// ApplyUmask clears the bits the umask masks out; the result carries
// no sticky bit.
func (p Permission) ApplyUmask(umask Permission) Permission {
	return Permission{
		User:  p.User.And(umask.User.Not()),
		Group: p.Group.And(umask.Group.Not()),
		Other: p.Other.And(umask.Other.Not()),
	}
}

// Default is the permission given to new directories before the umask.
func Default() Permission {
	return FromMode(0777)
}

// FileDefault is the permission given to new files before the umask.
func FileDefault() Permission {
	return FromMode(0666)
}
