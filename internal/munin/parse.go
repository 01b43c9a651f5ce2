// Package munin reads Munin's datafile and drives munin-graph.
package munin

import (
	"bufio"
	"io"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/user/monitoring/internal/util"
)

// Entry is one "category.label value" line of a node.
type Entry struct {
	Category string `json:"category"`
	Label    string `json:"label"`
	Value    string `json:"value"`
}

// Stats is the parsed datafile: domain -> node -> entries.
type Stats struct {
	Version string                        `json:"version"`
	Domains map[string]map[string][]Entry `json:"domains"`
}

// Parse reads a datafile. The first line is "<ignored> <version>"; every
// further line is "domain;node:category.label value". Malformed lines are
// logged and skipped.
func Parse(r io.Reader, log *util.Logger) (*Stats, error) {
	if log == nil {
		log = util.NopLogger()
	}
	stats := &Stats{Domains: make(map[string]map[string][]Entry)}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)

	first := true
	for sc.Scan() {
		line := sc.Text()
		if first {
			first = false
			if fields := strings.Fields(line); len(fields) > 1 {
				stats.Version = fields[1]
			} else {
				log.Warn("Datafile header has no version: %q", line)
			}
			continue
		}
		if strings.TrimSpace(line) == "" {
			continue
		}

		dom, rest, ok := strings.Cut(line, ";")
		if !ok {
			log.Warn("Failed to convert line: %s", line)
			continue
		}
		node, graph, ok := strings.Cut(rest, ":")
		if !ok {
			log.Warn("Failed to convert line: %s", line)
			continue
		}
		if _, ok := stats.Domains[dom]; !ok {
			stats.Domains[dom] = make(map[string][]Entry)
		}

		cat, label, ok := strings.Cut(graph, ".")
		if !ok {
			log.Warn("Failed to convert line: %s", line)
			continue
		}
		label, value, ok := strings.Cut(label, " ")
		if !ok {
			log.Warn("Failed to convert line: %s", line)
			continue
		}
		stats.Domains[dom][node] = append(stats.Domains[dom][node], Entry{
			Category: cat,
			Label:    label,
			Value:    strings.TrimSpace(value),
		})
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to read datafile")
	}
	return stats, nil
}

// DomainNames returns the known domains in sorted order.
func (s *Stats) DomainNames() []string {
	names := make([]string, 0, len(s.Domains))
	for d := range s.Domains {
		names = append(names, d)
	}
	sort.Strings(names)
	return names
}

// Hosts returns the nodes of a domain in sorted order.
func (s *Stats) Hosts(domain string) []string {
	nodes := s.Domains[domain]
	names := make([]string, 0, len(nodes))
	for n := range nodes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Categories returns the distinct categories of a node in sorted order.
func (s *Stats) Categories(domain, host string) []string {
	seen := make(map[string]bool)
	var cats []string
	for _, e := range s.Domains[domain][host] {
		if !seen[e.Category] {
			seen[e.Category] = true
			cats = append(cats, e.Category)
		}
	}
	sort.Strings(cats)
	return cats
}

// Details returns the label/value pairs of one category of a node.
func (s *Stats) Details(domain, host, category string) []map[string]string {
	details := []map[string]string{}
	for _, e := range s.Domains[domain][host] {
		if e.Category == category {
			details = append(details, map[string]string{e.Label: e.Value})
		}
	}
	return details
}
