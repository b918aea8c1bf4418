package types

import (
	"errors"
	"fmt"
	"io"
	"testing"
)

func TestParseSize(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int64
		wantErr bool
	}{
		{name: "plain bytes", input: "4096", want: 4096},
		{name: "zero", input: "0", want: 0},
		{name: "byte suffix", input: "512b", want: 512},
		{name: "kibibytes", input: "64KiB", want: 64 * 1024},
		{name: "short kilobytes", input: "64k", want: 64 * 1024},
		{name: "megabytes", input: "100MB", want: 100 * 1024 * 1024},
		{name: "mebibytes with space", input: "100 MiB", want: 100 * 1024 * 1024},
		{name: "gigabytes", input: "2G", want: 2 * 1024 * 1024 * 1024},
		{name: "terabytes", input: "1TiB", want: 1024 * 1024 * 1024 * 1024},
		{name: "surrounding whitespace", input: "  8M  ", want: 8 * 1024 * 1024},
		{name: "decimal truncated", input: "1.5K", want: 1536},

		{name: "empty", input: "", wantErr: true},
		{name: "whitespace only", input: "  ", wantErr: true},
		{name: "unknown suffix", input: "10X", wantErr: true},
		{name: "negative", input: "-1M", wantErr: true},
		{name: "suffix only", input: "G", wantErr: true},
		{name: "trailing garbage", input: "10M10", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSize(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseSize(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
				return
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseSize(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseSize_ErrorKinds(t *testing.T) {
	if _, err := ParseSize("-5"); !errors.Is(err, ErrNegativeSize) {
		t.Errorf("ParseSize(-5) error = %v, want ErrNegativeSize", err)
	}
	if _, err := ParseSize("lots"); !errors.Is(err, ErrInvalidSize) {
		t.Errorf("ParseSize(lots) error = %v, want ErrInvalidSize", err)
	}
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		bytes int64
		want  string
	}{
		{bytes: 0, want: "0 B"},
		{bytes: 500, want: "500 B"},
		{bytes: 64 * 1024, want: "64 KiB"},
		{bytes: 100 * 1024 * 1024, want: "100 MiB"},
		{bytes: 1536 * 1024, want: "1.5 MiB"},
	}

	for _, tt := range tests {
		if got := FormatSize(tt.bytes); got != tt.want {
			t.Errorf("FormatSize(%d) = %q, want %q", tt.bytes, got, tt.want)
		}
	}
}

func TestByteSize(t *testing.T) {
	b := ByteSize(64 * KiB)
	if b.Int64() != 65536 {
		t.Errorf("Int64() = %d, want 65536", b.Int64())
	}
	if b.String() != "64 KiB" {
		t.Errorf("String() = %q, want %q", b.String(), "64 KiB")
	}
	v, err := b.MarshalYAML()
	if err != nil {
		t.Fatalf("MarshalYAML() error = %v", err)
	}
	if v != int64(65536) {
		t.Errorf("MarshalYAML() = %v, want 65536", v)
	}
}

func TestConfigError(t *testing.T) {
	err := NewConfigError("paths.include", "[", "bad pattern")
	if err.Error() != `config paths.include "[": bad pattern` {
		t.Errorf("Error() = %q", err.Error())
	}

	wrapped := fmt.Errorf("loading: %w", err)
	if !IsConfigError(wrapped) {
		t.Error("IsConfigError(wrapped) = false, want true")
	}
	if IsFormatError(wrapped) {
		t.Error("IsFormatError(wrapped) = true, want false")
	}

	noValue := &ConfigError{Field: "mode", Err: errors.New("unknown")}
	if noValue.Error() != "config mode: unknown" {
		t.Errorf("Error() = %q", noValue.Error())
	}
}

func TestFormatError(t *testing.T) {
	err := &FormatError{Source: "before.tar.gz", Err: io.ErrUnexpectedEOF}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Error("FormatError does not unwrap to its cause")
	}
	if !IsFormatError(fmt.Errorf("compare: %w", err)) {
		t.Error("IsFormatError(wrapped) = false, want true")
	}
	if got := (&FormatError{Err: io.EOF}).Error(); got != "invalid archive: EOF" {
		t.Errorf("Error() = %q", got)
	}
}

func TestCapacityError(t *testing.T) {
	err := &CapacityError{Size: 200 * MiB, Limit: 100 * MiB}
	if err.Error() != "upload of 200 MiB exceeds limit of 100 MiB" {
		t.Errorf("Error() = %q", err.Error())
	}
	if !IsCapacityError(fmt.Errorf("upload: %w", err)) {
		t.Error("IsCapacityError(wrapped) = false, want true")
	}
	unknown := &CapacityError{Size: -1, Limit: MiB}
	if unknown.Error() != "upload exceeds limit of 1.0 MiB" {
		t.Errorf("Error() = %q", unknown.Error())
	}
}

func TestByteSize_UnmarshalText(t *testing.T) {
	var b ByteSize
	if err := b.UnmarshalText([]byte("64KiB")); err != nil {
		t.Fatalf("UnmarshalText() error = %v", err)
	}
	if b != ByteSize(64*KiB) {
		t.Errorf("UnmarshalText(64KiB) = %d, want %d", b, 64*KiB)
	}
	if err := b.UnmarshalText([]byte("lots")); !errors.Is(err, ErrInvalidSize) {
		t.Errorf("UnmarshalText(lots) error = %v, want ErrInvalidSize", err)
	}
}

func TestByteSize_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		in   string
		want ByteSize
	}{
		{`4096`, 4096},
		{`"1MiB"`, ByteSize(MiB)},
		{`"512"`, 512},
	}
	for _, tt := range tests {
		var b ByteSize
		if err := b.UnmarshalJSON([]byte(tt.in)); err != nil {
			t.Fatalf("UnmarshalJSON(%s) error = %v", tt.in, err)
		}
		if b != tt.want {
			t.Errorf("UnmarshalJSON(%s) = %d, want %d", tt.in, b, tt.want)
		}
	}

	var b ByteSize
	if err := b.UnmarshalJSON([]byte(`"huge"`)); !errors.Is(err, ErrInvalidSize) {
		t.Errorf("UnmarshalJSON(huge) error = %v, want ErrInvalidSize", err)
	}
}
