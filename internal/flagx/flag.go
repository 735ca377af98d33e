// Package flagx contains helpers for binaries whose flags are parsed in
// more than one pass.
package flagx

import (
	"strings"

	"github.com/spf13/pflag"
)

// FilterArgs returns the subset of args made of the allowed flags and their
// values. Both "-c file" and "--config=file" forms are recognized; a value is
// only taken from the next argument if it does not start with '-'.
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
			if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
				filtered = append(filtered, args[i+1])
				i++
			}
		}
	}

	return filtered
}

// ConfigPath extracts the config file path given with -c or --config.
// Other arguments are ignored so the caller can parse its own flags later.
// It returns "" when no path was given.
func ConfigPath(args []string) string {
	var config string

	fs := pflag.NewFlagSet("config", pflag.ContinueOnError)
	fs.StringVarP(&config, "config", "c", "", "path to config file (.json, .jsonc, .yaml)")
	_ = fs.Parse(FilterArgs(args, []string{"-c", "--config"}))

	return config
}
