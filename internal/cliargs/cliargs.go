// Package cliargs parses and validates the positional STP command-line
// arguments spec.md §6 defines, in the shape of the original Python
// source's parser.py: one function per argument, each returning a
// stp.ConfigError describing exactly what was wrong rather than panicking.
package cliargs

import (
	"os"
	"strconv"

	"github.com/stp-proto/gostp/pkg/stp"
)

// ParsePort validates a port string against spec.md §6's [49152, 65535]
// range.
func ParsePort(s string) (int, error) {
	port, err := strconv.Atoi(s)
	if err != nil {
		return 0, &stp.ConfigError{Reason: "port must be numerical: " + s}
	}
	if port < 49152 || port > 65535 {
		return 0, &stp.ConfigError{Reason: "port must be between 49152 and 65535: " + s}
	}
	return port, nil
}

// ParseFileToSend checks that path exists and is readable.
func ParseFileToSend(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", &stp.ConfigError{Reason: err.Error()}
	}
	f.Close()
	return path, nil
}

// ParseMaxWin validates max_win >= 1000 and a multiple of 1000.
func ParseMaxWin(s string) (int, error) {
	maxWin, err := strconv.Atoi(s)
	if err != nil {
		return 0, &stp.ConfigError{Reason: "max_win must be numerical: " + s}
	}
	if maxWin < stp.MSS || maxWin%stp.MSS != 0 {
		return 0, &stp.ConfigError{Reason: "max_win must be >= 1000 and a multiple of 1000 bytes: " + s}
	}
	return maxWin, nil
}

// ParseRto validates rto >= 0 (milliseconds).
func ParseRto(s string) (int, error) {
	rto, err := strconv.Atoi(s)
	if err != nil {
		return 0, &stp.ConfigError{Reason: "rto must be an integer: " + s}
	}
	if rto < 0 {
		return 0, &stp.ConfigError{Reason: "rto must be an unsigned integer: " + s}
	}
	return rto, nil
}

// ParseProb validates a flp/rlp probability in [0.0, 1.0].
func ParseProb(s string) (float64, error) {
	p, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, &stp.ConfigError{Reason: "probability must be numerical: " + s}
	}
	if p < 0.0 || p > 1.0 {
		return 0, &stp.ConfigError{Reason: "probability must be between 0 and 1 (inclusive): " + s}
	}
	return p, nil
}
