// Package config loads optional default CLI values from an INI file, in
// the teacher's style of using gopkg.in/ini.v1 for structured config
// parsing (there, EDS object-dictionary files; here, STP defaults).
package config

import "gopkg.in/ini.v1"

// Defaults holds the flag-style settings an INI file may prefill. The
// spec's positional arguments (ports, file, max_win, rto, flp, rlp) are
// always read from the command line, never the config file, so they're
// not modeled here; Seed and Metrics are the two settings a user might
// reasonably want to pin once in a file instead of retyping on every run
// of a loss-probability sweep.
type Defaults struct {
	Seed    int64
	Metrics string
}

// Load reads section [stp] from path. An empty path is not an error —
// callers pass "" when no -config flag was given — but a file that is
// missing or malformed is reported so a typo doesn't silently fall back to
// built-in defaults.
func Load(path string) (Defaults, error) {
	var d Defaults
	if path == "" {
		return d, nil
	}
	cfg, err := ini.Load(path)
	if err != nil {
		return d, err
	}
	section := cfg.Section("stp")
	d.Seed = section.Key("seed").MustInt64(0)
	d.Metrics = section.Key("metrics_addr").MustString("")
	return d, nil
}
