package inbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSender(t *testing.T) {
	cases := []struct {
		raw  string
		want Sender
	}{
		{"db <db@example.com>", ParsedSender{Name: "db", Address: "db@example.com"}},
		{`"Doe, John" <john@example.com>`, ParsedSender{Name: "Doe, John", Address: "john@example.com"}},
		{"plain@example.com", ParsedSender{Address: "plain@example.com"}},
		{"<bare@example.com>", ParsedSender{Address: "bare@example.com"}},
		{"=?UTF-8?B?Wm/Dqw==?= <zoe@example.com>", ParsedSender{Name: "Zoë", Address: "zoe@example.com"}},
	}
	for _, tc := range cases {
		t.Run(tc.raw, func(t *testing.T) {
			assert.Equal(t, tc.want, ParseSender(tc.raw))
		})
	}
}

func TestParseSenderUnparseable(t *testing.T) {
	for _, raw := range []string{"", "Just A Name", "broken <not-closed@example.com"} {
		got := ParseSender(raw)
		u, ok := got.(UnparseableSender)
		require.True(t, ok, "raw %q parsed as %#v", raw, got)
		assert.Error(t, u.Err)
	}
}

func TestAllowList(t *testing.T) {
	list, err := ParseAllowList([]string{"db <db@example.com>", "Ops Team <ops@example.com>"})
	require.NoError(t, err)
	assert.Equal(t, 2, list.Len())

	assert.True(t, list.Allows(ParsedSender{Name: "db", Address: "db@example.com"}))
	assert.False(t, list.Allows(ParsedSender{Name: "db", Address: "DB@Example.com"}))
	assert.False(t, list.Allows(ParsedSender{Name: "db", Address: "db@example.com.evil.test"}))
	assert.False(t, list.Allows(ParsedSender{Name: "DB", Address: "db@example.com"}))
	assert.False(t, list.Allows(ParsedSender{Address: "db@example.com"}))
	assert.False(t, list.Allows(ParsedSender{Name: "db", Address: "ops@example.com"}))
	assert.False(t, list.Allows(UnparseableSender{Raw: "db <db@example.com"}))
}

func TestParseAllowListRejectsGarbage(t *testing.T) {
	_, err := ParseAllowList([]string{"db <db@example.com>", "nobody"})
	assert.Error(t, err)
}

func TestEmptyAllowListRejectsEveryone(t *testing.T) {
	var list AllowList
	assert.False(t, list.Allows(ParsedSender{Name: "db", Address: "db@example.com"}))
}
