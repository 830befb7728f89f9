package compress

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

var sampleReport = []byte(`<OWASPZAPReport><site host="example.com" port="80"><alerts></alerts></site></OWASPZAPReport>`)

func TestCompressor_RoundTrip(t *testing.T) {
	for _, alg := range []Algorithm{AlgorithmZSTD, AlgorithmGzip, AlgorithmNone} {
		t.Run(string(alg), func(t *testing.T) {
			compressor := NewCompressor(alg, LevelDefault)

			compressed, err := compressor.Compress(sampleReport)
			if err != nil {
				t.Fatalf("Compress failed: %v", err)
			}

			decompressed, err := compressor.Decompress(compressed, 0)
			if err != nil {
				t.Fatalf("Decompress failed: %v", err)
			}

			if !bytes.Equal(sampleReport, decompressed) {
				t.Errorf("Decompressed data doesn't match original")
			}
		})
	}
}

func TestCompressor_ContentEncoding(t *testing.T) {
	tests := []struct {
		algorithm Algorithm
		expected  string
	}{
		{AlgorithmZSTD, "zstd"},
		{AlgorithmGzip, "gzip"},
		{AlgorithmNone, ""},
	}

	for _, tt := range tests {
		t.Run(string(tt.algorithm), func(t *testing.T) {
			c := NewCompressor(tt.algorithm, LevelDefault)
			if got := c.ContentEncoding(); got != tt.expected {
				t.Errorf("ContentEncoding() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestDetect(t *testing.T) {
	zstdData, _ := DefaultZSTD.Compress(sampleReport)
	gzipData, _ := DefaultGzip.Compress(sampleReport)

	tests := []struct {
		name     string
		data     []byte
		expected Algorithm
	}{
		{"zstd", zstdData, AlgorithmZSTD},
		{"gzip", gzipData, AlgorithmGzip},
		{"plain xml", sampleReport, AlgorithmNone},
		{"empty", nil, AlgorithmNone},
		{"single magic byte", []byte{0x1f}, AlgorithmNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Detect(tt.data); got != tt.expected {
				t.Errorf("Detect() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestFromContentEncoding(t *testing.T) {
	tests := []struct {
		encoding string
		expected Algorithm
		wantErr  bool
	}{
		{"", AlgorithmNone, false},
		{"identity", AlgorithmNone, false},
		{"gzip", AlgorithmGzip, false},
		{"X-Gzip", AlgorithmGzip, false},
		{" zstd ", AlgorithmZSTD, false},
		{"br", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.encoding, func(t *testing.T) {
			got, err := FromContentEncoding(tt.encoding)
			if (err != nil) != tt.wantErr {
				t.Fatalf("FromContentEncoding() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.expected {
				t.Errorf("FromContentEncoding() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestDecode(t *testing.T) {
	for _, c := range []*Compressor{DefaultZSTD, DefaultGzip, NewCompressor(AlgorithmNone, LevelDefault)} {
		t.Run(string(c.Algorithm()), func(t *testing.T) {
			compressed, err := c.Compress(sampleReport)
			if err != nil {
				t.Fatalf("Compress failed: %v", err)
			}

			data, alg, err := Decode(compressed, DefaultMaxDecodedSize)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if alg != c.Algorithm() {
				t.Errorf("algorithm = %v, want %v", alg, c.Algorithm())
			}
			if !bytes.Equal(data, sampleReport) {
				t.Error("Data mismatch")
			}
		})
	}
}

func TestDecode_SizeLimit(t *testing.T) {
	large := []byte(strings.Repeat("A", 10000))

	for _, c := range []*Compressor{DefaultZSTD, DefaultGzip, NewCompressor(AlgorithmNone, LevelDefault)} {
		t.Run(string(c.Algorithm()), func(t *testing.T) {
			compressed, _ := c.Compress(large)
			if _, _, err := Decode(compressed, 1000); !errors.Is(err, ErrTooLarge) {
				t.Errorf("Decode() error = %v, want ErrTooLarge", err)
			}
			if _, _, err := Decode(compressed, int64(len(large))); err != nil {
				t.Errorf("Decode() at exact limit error = %v", err)
			}
		})
	}
}

func TestDecode_Corrupt(t *testing.T) {
	corrupt := append([]byte{0x1f, 0x8b}, []byte("not gzip at all")...)
	if _, alg, err := Decode(corrupt, 0); err == nil || alg != AlgorithmGzip {
		t.Errorf("Decode() = %v, %v; want gzip error", alg, err)
	}
}

func TestFor(t *testing.T) {
	if c, err := For(""); err != nil || c.Algorithm() != AlgorithmNone {
		t.Errorf("For(\"\") = %v, %v", c, err)
	}
	if _, err := For("lz4"); err == nil {
		t.Error("For(lz4) should fail")
	}
}

func BenchmarkCompressor_ZSTD(b *testing.B) {
	compressor := NewCompressor(AlgorithmZSTD, LevelDefault)

	var sb strings.Builder
	for i := 0; i < 1000; i++ {
		sb.WriteString(`<alertitem><alert>Cross Site Scripting</alert><riskcode>3</riskcode></alertitem>`)
	}
	testData := []byte(sb.String())
	compressed, _ := compressor.Compress(testData)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := compressor.Decompress(compressed, 0); err != nil {
			b.Fatal(err)
		}
	}

	b.SetBytes(int64(len(testData)))
}
