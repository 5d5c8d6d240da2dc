package xdiscover

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func urls(cands []Candidate) []string {
	out := make([]string, 0, len(cands))
	for _, c := range cands {
		out = append(out, c.URL)
	}
	return out
}

func TestExpand(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{
			name: "bare public hostname https only",
			raw:  "media.example.com",
			want: []string{
				"https://media.example.com:8920",
				"https://media.example.com",
			},
		},
		{
			name: "bare local hostname adds http candidates",
			raw:  "192.168.1.10",
			want: []string{
				"https://192.168.1.10:8920",
				"https://192.168.1.10",
				"http://192.168.1.10:8096",
				"http://192.168.1.10",
			},
		},
		{
			name: "explicit https scheme",
			raw:  "https://media.example.com",
			want: []string{
				"https://media.example.com:8920",
				"https://media.example.com",
			},
		},
		{
			name: "explicit http to public host is honored",
			raw:  "http://media.example.com",
			want: []string{
				"http://media.example.com:8096",
				"http://media.example.com",
			},
		},
		{
			name: "explicit port is preserved",
			raw:  "media.example.com:9999",
			want: []string{
				"https://media.example.com:9999",
			},
		},
		{
			name: "explicit scheme and port single candidate",
			raw:  "https://media.example.com:8443",
			want: []string{
				"https://media.example.com:8443",
			},
		},
		{
			name: "path prefix preserved with bare fallback",
			raw:  "https://proxy.example.com/media/",
			want: []string{
				"https://proxy.example.com:8920/media",
				"https://proxy.example.com/media",
				"https://proxy.example.com:8920",
				"https://proxy.example.com",
			},
		},
		{
			name: "localhost gets http candidates",
			raw:  "localhost",
			want: []string{
				"https://localhost:8920",
				"https://localhost",
				"http://localhost:8096",
				"http://localhost",
			},
		},
		{
			name: "ipv6 literal",
			raw:  "http://[fe80::1]:8096",
			want: []string{
				"http://[fe80::1]:8096",
			},
		},
		{
			name: "surrounding whitespace trimmed",
			raw:  "  https://media.example.com:8443  ",
			want: []string{
				"https://media.example.com:8443",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Expand(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, urls(got))
		})
	}
}

func TestExpandPriorityOrder(t *testing.T) {
	got, err := Expand("192.168.1.10")
	require.NoError(t, err)
	for i := 1; i < len(got); i++ {
		assert.Greater(t, got[i].Priority, got[i-1].Priority)
	}
}

func TestExpandInvalid(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"whitespace only", "   "},
		{"unsupported scheme", "ftp://media.example.com"},
		{"scheme only", "https://"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Expand(tt.raw)
			assert.ErrorIs(t, err, ErrInvalidAddress)
		})
	}
}

func FuzzExpand(f *testing.F) {
	f.Add("media.example.com")
	f.Add("http://192.168.1.10:8096/media")
	f.Add("https://[::1]:8920")
	f.Add("localhost")
	f.Add("ftp://x")
	f.Add("://")

	f.Fuzz(func(t *testing.T, raw string) {
		cands, err := Expand(raw)
		if err != nil {
			return
		}
		for _, c := range cands {
			if c.URL == "" {
				t.Fatalf("empty candidate URL for input %q", raw)
			}
			if !strings.HasPrefix(c.URL, "https://") && !strings.HasPrefix(c.URL, "http://") {
				t.Fatalf("candidate %q lacks scheme for input %q", c.URL, raw)
			}
		}
	})
}
