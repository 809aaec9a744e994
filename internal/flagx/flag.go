// Package flagx helps several configuration layers share os.Args without
// tripping over each other's flags.
package flagx

import (
	"flag"
	"os"
	"strings"
)

// FilterArgs returns the subset of args made of allowedFlags and their values.
//
// Supported formats:
//  1. Flag and value as separate arguments:  -c conf.json
//  2. Flag and value combined with '=':      -config=conf.json
func FilterArgs(args []string, allowedFlags []string) []string {
	allowed := make(map[string]struct{}, len(allowedFlags))
	for _, f := range allowedFlags {
		allowed[f] = struct{}{}
	}

	filtered := make([]string, 0, len(args))

	for i := 0; i < len(args); i++ {
		arg := args[i]

		if strings.HasPrefix(arg, "-") && strings.Contains(arg, "=") {
			name, _, _ := strings.Cut(arg, "=")
			if _, ok := allowed[name]; ok {
				filtered = append(filtered, arg)
			}
			continue
		}

		if _, ok := allowed[arg]; ok {
			filtered = append(filtered, arg)
			// a following non-flag argument is this flag's value
			if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
				filtered = append(filtered, args[i+1])
				i++
			}
		}
	}

	return filtered
}

// LookupString returns the value of the first of names found in os.Args,
// or "" when none is present. Every name is registered as an alias of the
// same string flag, e.g. LookupString("-c", "-config").
func LookupString(names ...string) string {
	var value string

	args := FilterArgs(os.Args[1:], names)

	fs := flag.NewFlagSet("lookup", flag.ContinueOnError)
	fs.SetOutput(discard{})
	for _, n := range names {
		fs.StringVar(&value, strings.TrimLeft(n, "-"), "", "")
	}
	_ = fs.Parse(args)

	return value
}

// JsonConfigFile returns the JSON config path given with -c or -config.
func JsonConfigFile() string {
	return LookupString("-c", "-config")
}

// EnvFile returns the dotenv path given with -env, defaulting to ".env".
func EnvFile() string {
	if f := LookupString("-env"); f != "" {
		return f
	}
	return ".env"
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
