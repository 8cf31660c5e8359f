package cryptoutil

import (
	"strings"
	"testing"
)

func TestSHA256Hex(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want string
	}{
		{
			name: "empty input",
			in:   nil,
			want: "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		},
		{
			name: "abc",
			in:   []byte("abc"),
			want: "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad",
		},
		{
			name: "json document",
			in:   []byte(`{"title":"Contact"}`),
			want: SHA256Hex([]byte(`{"title":"Contact"}`)),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SHA256Hex(tt.in)
			if got != tt.want {
				t.Fatalf("SHA256Hex = %s, want %s", got, tt.want)
			}
			if len(got) != 64 {
				t.Fatalf("digest length = %d, want 64", len(got))
			}
			if got != strings.ToLower(got) {
				t.Fatalf("digest not lowercase: %s", got)
			}
		})
	}
}

func TestSHA256Hex_DistinctInputsDistinctDigests(t *testing.T) {
	a := SHA256Hex([]byte("body version one"))
	b := SHA256Hex([]byte("body version two"))
	if a == b {
		t.Fatal("different inputs produced the same digest")
	}
}

func TestHashEqual(t *testing.T) {
	d := SHA256Hex([]byte("payload"))
	tests := []struct {
		name string
		a, b string
		want bool
	}{
		{"equal digests", d, d, true},
		{"different digests", d, SHA256Hex([]byte("other")), false},
		{"different lengths", d, d[:32], false},
		{"both empty", "", "", true},
		{"one empty", d, "", false},
		{"case differs", d, strings.ToUpper(d), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HashEqual(tt.a, tt.b); got != tt.want {
				t.Fatalf("HashEqual(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestHashEqual_Symmetric(t *testing.T) {
	a := SHA256Hex([]byte("x"))
	b := SHA256Hex([]byte("y"))
	if HashEqual(a, b) != HashEqual(b, a) {
		t.Fatal("HashEqual is not symmetric")
	}
}
