// Package sshconfig implements the Config Resolver: given a user-supplied
// host alias and an ordered list of OpenSSH-style configuration files,
// answer what real host and port should be dialed.
//
// The grammar is deliberately small: lines are either blank, comments, or
// keyword/value directives; the sentinel keyword "host" opens a new section
// whose glob patterns gate every directive until the next "host" line or end
// of file. Precedence is first-write-wins across the whole walk — the
// earliest file in the list, and the earliest matching section within it,
// determines a keyword's value; later matches may only fill in keys that
// are still unset.
package sshconfig

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/kbowden/redirtun/internal/model"
	"github.com/kbowden/redirtun/internal/netutil"
)

const defaultPort = 22

// Resolve returns the real dial address for alias, walking files in order.
// It never fails outright: unreadable files and malformed directives are
// skipped and a default result (the alias itself, port 22) is returned if
// nothing matched. Use ResolveWithWarnings to observe what was skipped.
func Resolve(alias string, files []string) model.NetworkAddress {
	addr, _ := ResolveWithWarnings(alias, files)
	return addr
}

// ResolveWithWarnings behaves like Resolve but also returns a human-readable
// warning for every ConfigUnreadable or ConfigMalformed condition
// encountered along the way, in the order they occurred.
func ResolveWithWarnings(alias string, files []string) (model.NetworkAddress, []string) {
	original := alias
	target := alias
	if idx := strings.LastIndex(alias, "@"); idx >= 0 {
		rest := alias[idx+1:]
		if rest == "" {
			// Malformed alias — still dialable verbatim, by convention.
			return model.NetworkAddress{Host: original, Port: defaultPort}, nil
		}
		target = rest
	}

	values := map[string]string{}
	var warnings []string
	for _, path := range files {
		warnings = append(warnings, walkFile(path, target, values)...)
	}

	hostname := target
	if v, ok := values["hostname"]; ok {
		hostname = v
	}
	port := defaultPort
	if v, ok := values["port"]; ok {
		// walkFile only ever stores syntactically valid ports.
		if p, err := strconv.Atoi(v); err == nil {
			port = p
		}
	}
	return model.NetworkAddress{Host: hostname, Port: port}, warnings
}

// walkFile reads one config file and folds any directive from a section
// matching alias into values, honoring first-write-wins: a key already
// present is never overwritten.
func walkFile(path, alias string, values map[string]string) []string {
	f, err := os.Open(path)
	if err != nil {
		return []string{fmt.Sprintf("%s: unreadable: %v", path, err)}
	}
	defer f.Close()

	var warnings []string
	currentPatterns := []string{"*"}

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line[0] == '#' {
			continue
		}

		keyword, value, ok := splitDirective(line)
		if !ok {
			warnings = append(warnings, fmt.Sprintf("%s:%d: malformed directive", path, lineNo))
			continue
		}
		keyword = strings.ToLower(keyword)

		if keyword == "host" {
			patterns := strings.Fields(value)
			if len(patterns) == 0 {
				warnings = append(warnings, fmt.Sprintf("%s:%d: host directive has no patterns", path, lineNo))
				patterns = []string{"*"}
			}
			currentPatterns = patterns
			continue
		}

		if !matchHost(alias, currentPatterns) {
			continue
		}

		switch keyword {
		case "hostname":
			setFirst(values, "hostname", value)
		case "port":
			p, convErr := strconv.Atoi(value)
			if convErr != nil || netutil.ValidatePort(p) != nil {
				warnings = append(warnings, fmt.Sprintf("%s:%d: malformed port %q", path, lineNo, value))
				continue
			}
			setFirst(values, "port", value)
		}
	}
	if err := scanner.Err(); err != nil {
		warnings = append(warnings, fmt.Sprintf("%s: read error: %v", path, err))
	}
	return warnings
}

// splitDirective parses "keyword [=] value", honoring the rule that a value
// opening with a double quote runs to the last double quote on the line.
func splitDirective(line string) (keyword, value string, ok bool) {
	i := 0
	for i < len(line) && line[i] != ' ' && line[i] != '\t' && line[i] != '=' {
		i++
	}
	keyword = line[:i]
	if keyword == "" {
		return "", "", false
	}
	rest := strings.TrimLeft(line[i:], " \t")
	rest = strings.TrimPrefix(rest, "=")
	rest = strings.TrimLeft(rest, " \t")
	if rest == "" {
		return "", "", false
	}
	if rest[0] == '"' {
		if last := strings.LastIndex(rest, `"`); last > 0 {
			rest = rest[1:last]
		} else {
			rest = rest[1:]
		}
	}
	return keyword, rest, true
}

func setFirst(values map[string]string, key, value string) {
	if _, ok := values[key]; !ok {
		values[key] = value
	}
}

func matchHost(alias string, patterns []string) bool {
	for _, p := range patterns {
		if ok, err := filepath.Match(p, alias); err == nil && ok {
			return true
		}
	}
	return false
}

// ProbeFiles reports, without resolving any particular alias, which of
// files cannot be opened. Used by preflight diagnostics.
func ProbeFiles(files []string) []string {
	var warnings []string
	for _, path := range files {
		f, err := os.Open(path)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: unreadable: %v", path, err))
			continue
		}
		f.Close()
	}
	return warnings
}
