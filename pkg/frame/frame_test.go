package frame

import (
	"bytes"
	"errors"
	"testing"
)

var (
	formatA = Format{WakePattern: 0xD5AA, WakeBits: 16, PayloadBits: 32, ChecksumBits: 16}
	formatB = Format{WakePattern: 0xAA, WakeBits: 8, PayloadBits: 32, ChecksumBits: 16}
)

func TestChecksum(t *testing.T) {
	tests := []struct {
		name   string
		format Format
		data   uint64
		want   uint64
	}{
		{"q7.8 pair", formatA, 0x014D00CD, 0x0180},
		{"raw literal", formatB, 0x56DD599D, 0x0F40},
		{"equal halves", formatA, 0xABCDABCD, 0x0000},
		{"zero", formatA, 0, 0},
		{"truncated", Format{WakeBits: 4, PayloadBits: 32, ChecksumBits: 4}, 0x00F0000F, 0xF},
		{"zero extended", Format{WakeBits: 8, PayloadBits: 16, ChecksumBits: 16}, 0x12F0, 0x00E2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Checksum(tt.data, tt.format)
			if got != tt.want {
				t.Errorf("Checksum(0x%X) = 0x%X, want 0x%X", tt.data, got, tt.want)
			}
		})
	}
}

func TestBuild_PresetA(t *testing.T) {
	b, err := BuildBytes(formatA, 0x014D00CD)
	if err != nil {
		t.Fatalf("BuildBytes() error = %v", err)
	}

	want := []byte{0xD5, 0xAA, 0x01, 0x4D, 0x00, 0xCD, 0x01, 0x80}
	if !bytes.Equal(b, want) {
		t.Errorf("expected % X, got % X", want, b)
	}
	if len(b)*8 != 64 {
		t.Errorf("expected 64 bits, got %d", len(b)*8)
	}
}

func TestBuild_PresetB(t *testing.T) {
	b, err := BuildBytes(formatB, 0b01010110110111010101100110011101)
	if err != nil {
		t.Fatalf("BuildBytes() error = %v", err)
	}

	want := []byte{0xAA, 0x56, 0xDD, 0x59, 0x9D, 0x0F, 0x40}
	if !bytes.Equal(b, want) {
		t.Errorf("expected % X, got % X", want, b)
	}
}

func TestBuild_UnalignedFields(t *testing.T) {
	// 4 + 40 + 20 = 64 bits, none of the field boundaries on a byte.
	f := Format{WakePattern: 0xA, WakeBits: 4, PayloadBits: 40, ChecksumBits: 20}
	fr, err := Build(f, 0x12345ABCDE)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	// halves 0x12345 ^ 0xABCDE = 0xB9F9B
	if fr.Checksum != 0xB9F9B {
		t.Fatalf("expected checksum 0xB9F9B, got 0x%X", fr.Checksum)
	}

	want := []byte{0xA1, 0x23, 0x45, 0xAB, 0xCD, 0xEB, 0x9F, 0x9B}
	if got := fr.Bytes(); !bytes.Equal(got, want) {
		t.Errorf("expected % X, got % X", want, got)
	}
}

func TestBuild_PayloadRange(t *testing.T) {
	f := Format{WakePattern: 0xAA, WakeBits: 8, PayloadBits: 16, ChecksumBits: 8}
	_, err := Build(f, 0x10000)
	if !errors.Is(err, ErrPayloadRange) {
		t.Errorf("expected ErrPayloadRange, got %v", err)
	}
}

func TestFormatValidate(t *testing.T) {
	tests := []struct {
		name    string
		format  Format
		field   string
		wantErr bool
	}{
		{"preset a", formatA, "", false},
		{"preset b", formatB, "", false},
		{"odd payload", Format{WakeBits: 9, PayloadBits: 31, ChecksumBits: 16}, "payload_bits", true},
		{"zero wake", Format{WakeBits: 0, PayloadBits: 32, ChecksumBits: 16}, "wake_bits", true},
		{"wide wake", Format{WakeBits: 65, PayloadBits: 32, ChecksumBits: 16}, "wake_bits", true},
		{"zero checksum", Format{WakeBits: 8, PayloadBits: 32, ChecksumBits: 0}, "checksum_bits", true},
		{"pattern too wide", Format{WakePattern: 0x1AA, WakeBits: 8, PayloadBits: 32, ChecksumBits: 16}, "wake_pattern", true},
		{"not byte aligned", Format{WakeBits: 8, PayloadBits: 32, ChecksumBits: 12}, "widths", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.format.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil {
				return
			}
			if !errors.Is(err, ErrInvalidFormat) {
				t.Errorf("expected ErrInvalidFormat, got %v", err)
			}
			var fe *FormatError
			if !errors.As(err, &fe) || fe.Field != tt.field {
				t.Errorf("expected field %q, got %v", tt.field, err)
			}
		})
	}
}

func TestBitString(t *testing.T) {
	fr, err := Build(formatB, 0x56DD599D)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	want := "10101010" + "01010110110111010101100110011101" + "0000111101000000"
	if got := fr.BitString(); got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func BenchmarkBuild(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_, _ = BuildBytes(formatA, 0x014D00CD)
	}
}
