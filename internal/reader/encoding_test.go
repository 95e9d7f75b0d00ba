package reader

import (
	"bytes"
	"testing"
)

// ============================================================================
// sanitizeUTF8 Tests
// ============================================================================

func TestSanitizeUTF8(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		want  []byte
	}{
		{name: "valid ascii unchanged", input: []byte("id,name"), want: []byte("id,name")},
		{name: "empty input", input: []byte{}, want: []byte{}},
		{name: "multibyte unchanged", input: []byte("caf\xc3\xa9"), want: []byte("caf\xc3\xa9")},
		{name: "lone high byte", input: []byte{0x80}, want: []byte("�")},
		{name: "truncated sequence", input: []byte{0xc3}, want: []byte("�")},
		{name: "cp1252 smart quotes", input: []byte("\x93quoted\x94"), want: []byte("�quoted�")},
		{name: "latin-1 accent", input: []byte("Jos\xe9"), want: []byte("Jos�")},
		{name: "overlong encoding", input: []byte{0xc0, 0x80}, want: []byte("��")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitizeUTF8(tt.input); !bytes.Equal(got, tt.want) {
				t.Errorf("sanitizeUTF8(%v) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// ============================================================================
// stripBOM Tests
// ============================================================================

func TestStripBOM(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		want  []byte
	}{
		{name: "no BOM", input: []byte("a,b"), want: []byte("a,b")},
		{name: "BOM removed", input: []byte("\xEF\xBB\xBFa,b"), want: []byte("a,b")},
		{name: "only BOM", input: []byte{0xEF, 0xBB, 0xBF}, want: []byte{}},
		{name: "partial BOM kept", input: []byte{0xEF, 0xBB, 'a'}, want: []byte{0xEF, 0xBB, 'a'}},
		{name: "BOM bytes mid-file kept", input: []byte("a\xEF\xBB\xBFb"), want: []byte("a\xEF\xBB\xBFb")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stripBOM(tt.input); !bytes.Equal(got, tt.want) {
				t.Errorf("stripBOM(%v) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

// ============================================================================
// candidateEncodings Tests
// ============================================================================

func TestCandidateEncodings(t *testing.T) {
	names := make([]string, len(candidateEncodings))
	for i, enc := range candidateEncodings {
		names[i] = enc.name
	}
	want := []string{"utf-8", "latin-1", "cp1252", "iso-8859-1"}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("encoding order = %v, want %v", names, want)
		}
	}

	t.Run("utf-8 rejects invalid bytes", func(t *testing.T) {
		if _, err := candidateEncodings[0].decode([]byte("caf\xe9")); err == nil {
			t.Error("expected error for invalid UTF-8")
		}
	})

	t.Run("cp1252 maps smart quotes", func(t *testing.T) {
		got, err := candidateEncodings[2].decode([]byte("\x93hi\x94"))
		if err != nil {
			t.Fatal(err)
		}
		if string(got) != "“hi”" {
			t.Errorf("decode = %q, want curly quotes", got)
		}
	})

	t.Run("latin-1 maps accents", func(t *testing.T) {
		got, err := candidateEncodings[1].decode([]byte("caf\xe9"))
		if err != nil {
			t.Fatal(err)
		}
		if string(got) != "café" {
			t.Errorf("decode = %q, want café", got)
		}
	})
}
