// Package router decides which destination calendar a message belongs to.
package router

import (
	"fmt"
	"log/slog"
	"strings"
)

// RoutingTable maps normalized email addresses to destination identifiers.
type RoutingTable map[string]string

// ParseTable reads a mapping serialized as "addr:dest|addr:dest".
// Addresses are normalized the same way recipients are, so lookups are
// case-insensitive. Empty segments are ignored; a segment without a colon,
// with an empty side, or repeating an address is an error.
func ParseTable(s string) (RoutingTable, error) {
	table := make(RoutingTable)
	for _, pair := range strings.Split(s, "|") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		addr, dest, ok := strings.Cut(pair, ":")
		if !ok {
			return nil, fmt.Errorf("invalid mapping %q: expected address:destination", pair)
		}
		addr = NormalizeAddress(addr)
		dest = strings.TrimSpace(dest)
		if addr == "" || dest == "" {
			return nil, fmt.Errorf("invalid mapping %q: empty address or destination", pair)
		}
		if prev, exists := table[addr]; exists {
			return nil, fmt.Errorf("duplicate mapping for %s (%s and %s)", addr, prev, dest)
		}
		table[addr] = dest
	}
	return table, nil
}

// Destinations returns the distinct destination identifiers in the table plus def.
func (t RoutingTable) Destinations(def string) []string {
	seen := map[string]bool{def: true}
	out := []string{def}
	for _, dest := range t {
		if !seen[dest] {
			seen[dest] = true
			out = append(out, dest)
		}
	}
	return out
}

// Router resolves recipients against a fixed table.
type Router struct {
	logger      *slog.Logger
	table       RoutingTable
	defaultDest string
}

// New creates a Router. The table is copied; later changes to the argument
// have no effect.
func New(logger *slog.Logger, table RoutingTable, defaultDest string) *Router {
	own := make(RoutingTable, len(table))
	for k, v := range table {
		own[NormalizeAddress(k)] = v
	}
	return &Router{logger: logger, table: own, defaultDest: defaultDest}
}

// Resolve returns the destination for a recipient field. Unmapped addresses
// resolve to the default destination.
func (r *Router) Resolve(recipient string) string {
	addr := NormalizeAddress(recipient)
	dest, ok := r.table[addr]
	if !ok {
		dest = r.defaultDest
	}
	r.logger.Debug("Routing recipient", "address", addr, "destination", dest, "mapped", ok)
	return dest
}

// NormalizeAddress reduces "Display Name <User@Host>" to "user@host".
// Anything else is trimmed and lower-cased as is.
func NormalizeAddress(s string) string {
	if open := strings.Index(s, "<"); open >= 0 {
		if end := strings.Index(s[open+1:], ">"); end >= 0 {
			s = s[open+1 : open+1+end]
		}
	}
	return strings.ToLower(strings.TrimSpace(s))
}
