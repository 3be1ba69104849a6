// Package flagx filters command lines so that independent flag sets can
// coexist: each command parses only the flags it declared and never chokes
// on positionals or on flags that belong to someone else.
package flagx

import (
	"flag"
	"os"
	"strings"
)

// FilterArgs keeps only the allowed flags and their values from args
// (usually os.Args[1:]). Two spellings are understood: "-name value" as two
// tokens and "-name=value" as one. Everything else, positionals included,
// is dropped. The result is never nil, so it can go straight into
// flag.FlagSet.Parse.
func FilterArgs(args []string, allowedFlags []string) []string {
	keep := make(map[string]struct{}, len(allowedFlags))
	for _, name := range allowedFlags {
		keep[name] = struct{}{}
	}

	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]

		// "-name=value" travels as one token; keep or drop it whole.
		if eq := strings.IndexByte(arg, '='); eq >= 0 && strings.HasPrefix(arg, "-") {
			if _, ok := keep[arg[:eq]]; ok {
				out = append(out, arg)
			}
			continue
		}

		if _, ok := keep[arg]; !ok {
			continue
		}
		out = append(out, arg)
		// The next token is this flag's value unless it is itself a flag.
		if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
			i++
			out = append(out, args[i])
		}
	}
	return out
}

// JsonConfigFlags extracts the config file path given via -c or -config,
// ignoring every other argument. Subcommands define their own flag sets, so
// the arguments are filtered first; parsing the raw command line here would
// fail on flags this package has never heard of.
//
// Returns "" when neither flag is present.
func JsonConfigFlags() string {
	var config string

	args := FilterArgs(os.Args[1:], []string{"-c", "-config"})

	fs := flag.NewFlagSet("json", flag.ContinueOnError)
	fs.StringVar(&config, "config", "", "Path to config file")
	fs.StringVar(&config, "c", "", "Path to config file (short)")
	_ = fs.Parse(args)

	return config
}
