package cache

import (
	"strings"
	"testing"
)

func TestNewKey_StripsCredential(t *testing.T) {
	key := NewKey("https://api.polygon.io/v3/reference/tickers?active=true&apiKey=secret123&limit=100", "apiKey")

	if strings.Contains(key.String(), "secret123") {
		t.Errorf("key %q leaks the credential", key.String())
	}
}

func TestNewKey_Deterministic(t *testing.T) {
	tests := []struct {
		name string
		a    string
		b    string
		same bool
	}{
		{
			name: "query order does not matter",
			a:    "https://api.polygon.io/v3/reference/tickers?active=true&limit=100",
			b:    "https://api.polygon.io/v3/reference/tickers?limit=100&active=true",
			same: true,
		},
		{
			name: "credential does not matter",
			a:    "https://api.polygon.io/v3/reference/tickers?limit=100&apiKey=aaa",
			b:    "https://api.polygon.io/v3/reference/tickers?limit=100&apiKey=bbb",
			same: true,
		},
		{
			name: "different limit differs",
			a:    "https://api.polygon.io/v3/reference/tickers?limit=100",
			b:    "https://api.polygon.io/v3/reference/tickers?limit=50",
			same: false,
		},
		{
			name: "different path differs",
			a:    "https://api.polygon.io/v3/reference/tickers?limit=100",
			b:    "https://api.polygon.io/v3/reference/exchanges?limit=100",
			same: false,
		},
		{
			name: "cursor URLs differ by cursor",
			a:    "https://api.polygon.io/v3/reference/tickers?cursor=abc",
			b:    "https://api.polygon.io/v3/reference/tickers?cursor=def",
			same: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ka := NewKey(tt.a, "apiKey")
			kb := NewKey(tt.b, "apiKey")
			if (ka.String() == kb.String()) != tt.same {
				t.Errorf("key(%q) == key(%q) is %v, want %v", tt.a, tt.b, ka.String() == kb.String(), tt.same)
			}
		})
	}
}

func TestKey_Prefix(t *testing.T) {
	key := NewKey("https://api.polygon.io/v3/reference/tickers", "apiKey")
	if !strings.HasPrefix(key.String(), "refharvest:page:") {
		t.Errorf("key %q missing namespace prefix", key.String())
	}
}
