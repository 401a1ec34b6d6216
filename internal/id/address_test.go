package id

import (
	"strings"
	"testing"

	clierr "github.com/ggonzalez94/custody-cli/internal/errors"
)

func TestParseAddressCanonicalizes(t *testing.T) {
	checksummed := "0x52908400098527886E0F7030069857D2E4169EE7"

	got, err := ParseAddress(strings.ToLower(checksummed))
	if err != nil {
		t.Fatalf("ParseAddress lowercase failed: %v", err)
	}
	if got != checksummed {
		t.Fatalf("expected canonical %s, got %s", checksummed, got)
	}

	got, err = ParseAddress("0x" + strings.ToUpper(strings.TrimPrefix(checksummed, "0x")))
	if err != nil {
		t.Fatalf("ParseAddress uppercase failed: %v", err)
	}
	if got != checksummed {
		t.Fatalf("expected canonical %s, got %s", checksummed, got)
	}

	got, err = ParseAddress(checksummed)
	if err != nil {
		t.Fatalf("ParseAddress checksummed failed: %v", err)
	}
	if got != checksummed {
		t.Fatalf("expected canonical %s, got %s", checksummed, got)
	}
}

func TestParseAddressRejectsBadChecksum(t *testing.T) {
	// Valid hex, but the mixed-case pattern does not match the checksum.
	_, err := ParseAddress("0x52908400098527886E0F7030069857D2E4169Ee7")
	if !clierr.Is(err, clierr.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestParseAddressRejectsGarbage(t *testing.T) {
	for _, input := range []string{"", "alice", "0x1234", "52908400098527886E0F7030069857D2E4169EE7ZZ"} {
		if _, err := ParseAddress(input); err == nil {
			t.Fatalf("expected error for %q", input)
		}
	}
}

func TestIsDomainReference(t *testing.T) {
	cases := []struct {
		input string
		want  bool
	}{
		{"alice.eth", true},
		{"Alice.ETH", true},
		{"sub.name.eth", true},
		{".eth", false},
		{"alice", false},
		{"alice.ens", false},
		{"alice.eth.backup", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := IsDomainReference(tc.input, DefaultDomainSuffix); got != tc.want {
			t.Fatalf("IsDomainReference(%q) = %v, want %v", tc.input, got, tc.want)
		}
	}
}

func TestParseAmount(t *testing.T) {
	if _, err := ParseAmount("1000000000"); err != nil {
		t.Fatalf("ParseAmount failed: %v", err)
	}
	for _, input := range []string{"", "0", "-5", "1.5", "abc"} {
		if _, err := ParseAmount(input); !clierr.Is(err, clierr.CodeValidation) {
			t.Fatalf("expected validation error for %q, got %v", input, err)
		}
	}
}

func TestNormalizeAmount(t *testing.T) {
	base, dec, err := NormalizeAmount("", "1.5", 9)
	if err != nil {
		t.Fatalf("NormalizeAmount failed: %v", err)
	}
	if base != "1500000000" || dec != "1.5" {
		t.Fatalf("unexpected normalization: base=%s dec=%s", base, dec)
	}

	base, dec, err = NormalizeAmount("2000000000", "", 9)
	if err != nil {
		t.Fatalf("NormalizeAmount base units failed: %v", err)
	}
	if base != "2000000000" || dec != "2" {
		t.Fatalf("unexpected normalization: base=%s dec=%s", base, dec)
	}

	if _, _, err := NormalizeAmount("1", "1", 9); !clierr.Is(err, clierr.CodeUsage) {
		t.Fatalf("expected usage error for both forms, got %v", err)
	}
}
