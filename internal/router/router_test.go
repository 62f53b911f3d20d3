package router

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNormalizeAddress(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "bare address", input: "jane@x.org", expected: "jane@x.org"},
		{name: "display name", input: "Jane Doe <jane@x.org>", expected: "jane@x.org"},
		{name: "upper case", input: "Jane Doe <Jane@X.Org>", expected: "jane@x.org"},
		{name: "quoted display name", input: `"Doe, Jane" <jane@x.org>`, expected: "jane@x.org"},
		{name: "surrounding space", input: "  music@example.com ", expected: "music@example.com"},
		{name: "unclosed bracket", input: "Jane <jane@x.org", expected: "jane <jane@x.org"},
		{name: "empty", input: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeAddress(tt.input))
		})
	}
}

func TestParseTable(t *testing.T) {
	table, err := ParseTable("music@example.com:music| Tech@Example.com : tech ||")
	require.NoError(t, err)
	assert.Equal(t, RoutingTable{
		"music@example.com": "music",
		"tech@example.com":  "tech",
	}, table)
}

func TestParseTable_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "missing colon", input: "music@example.com"},
		{name: "empty destination", input: "music@example.com:"},
		{name: "empty address", input: ":music"},
		{name: "duplicate", input: "a@x.org:one|A@X.org:two"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTable(tt.input)
			assert.Error(t, err)
		})
	}
}

func TestParseTable_Empty(t *testing.T) {
	table, err := ParseTable("")
	require.NoError(t, err)
	assert.Empty(t, table)
}

func TestResolve(t *testing.T) {
	table, err := ParseTable("music@example.com:music|jane@x.org:jane")
	require.NoError(t, err)
	r := New(discardLogger(), table, "admin")

	tests := []struct {
		recipient string
		expected  string
	}{
		{recipient: "music@example.com", expected: "music"},
		{recipient: "Jane Doe <JANE@x.org>", expected: "jane"},
		{recipient: "nobody@example.com", expected: "admin"},
		{recipient: "", expected: "admin"},
		{recipient: "<>", expected: "admin"},
	}

	for _, tt := range tests {
		t.Run(tt.recipient, func(t *testing.T) {
			assert.Equal(t, tt.expected, r.Resolve(tt.recipient))
		})
	}
}

func TestNew_CopiesTable(t *testing.T) {
	table := RoutingTable{"a@x.org": "a"}
	r := New(discardLogger(), table, "admin")
	table["b@x.org"] = "b"

	assert.Equal(t, "admin", r.Resolve("b@x.org"))
	assert.Equal(t, "a", r.Resolve("A@X.ORG"))
}

func TestDestinations(t *testing.T) {
	table := RoutingTable{"a@x.org": "a", "b@x.org": "a", "c@x.org": "admin"}
	assert.ElementsMatch(t, []string{"admin", "a"}, table.Destinations("admin"))
}
