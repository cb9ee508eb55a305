// pkg/shell/command.go

// Package shell parses flat fs-shell style command lines: positional
// parameters mixed with -opt boolean switches.
package shell

import "fmt"

// UnknownOptionError reports a switch the command does not take.
type UnknownOptionError struct {
	Option string
}

func (e *UnknownOptionError) Error() string {
	return fmt.Sprintf("illegal option -%s", e.Option)
}

// ArgCountError reports the wrong number of positional parameters.
type ArgCountError struct {
	Name     string
	Got      int
	Min, Max int
}

func (e *ArgCountError) Error() string {
	return fmt.Sprintf("%s: expected %d to %d arguments but got %d", e.Name, e.Min, e.Max, e.Got)
}

// CommandFormat describes what a command accepts: between Min and Max
// positional parameters and a fixed set of -opt switches.
type CommandFormat struct {
	name     string
	min, max int
	options  map[string]bool
}

func New(name string, min, max int, opts ...string) *CommandFormat {
	f := &CommandFormat{name: name, min: min, max: max, options: make(map[string]bool)}
	for _, o := range opts {
		f.options[o] = false
	}
	return f
}

// Parse splits args into positional parameters, recording switches on
// the way. Anything starting with a dash must be a known switch; a
// lone dash counts as a parameter. Switches may come before, between
// or after parameters.
func (f *CommandFormat) Parse(args []string) ([]string, error) {
	var parameters []string
	for _, arg := range args {
		if len(arg) > 1 && arg[0] == '-' {
			opt := arg[1:]
			if _, ok := f.options[opt]; !ok {
				return nil, &UnknownOptionError{Option: opt}
			}
			f.options[opt] = true
		} else {
			parameters = append(parameters, arg)
		}
	}
	if len(parameters) < f.min || len(parameters) > f.max {
		return nil, &ArgCountError{Name: f.name, Got: len(parameters), Min: f.min, Max: f.max}
	}
	return parameters, nil
}

// Opt reports whether the switch was seen during Parse.
func (f *CommandFormat) Opt(option string) bool {
	return f.options[option]
}
