package directive

import (
	"errors"
	"testing"

	"github.com/sbenjam1n/hlsopt/internal/hls"
	"github.com/stretchr/testify/require"
)

func TestCanonical(t *testing.T) {
	tests := []struct {
		raw  string
		kind hls.Kind
		want string
	}{
		{"NDIR", hls.Array, "NDIR"},
		{"NDIR", hls.Loop, "NDIR"},
		{"#pragma HLS array_partition variable=buf complete dim=1", hls.Array, "complete_1"},
		{"#pragma HLS array_partition variable=buf cyclic factor=8 dim=2", hls.Array, "cyclic_8_2"},
		{"#pragma HLS array_partition variable=buf block factor=4 dim=1", hls.Array, "block_4_1"},
		{"#pragma HLS unroll", hls.Loop, "unroll"},
		{"#pragma HLS unroll factor=16", hls.Loop, "unroll_16"},
		{"#pragma HLS pipeline", hls.Loop, "pipeline"},
		{"#pragma HLS pipeline II=1", hls.Loop, "pipeline_1"},
		{"  #pragma HLS pipeline II=2 ", hls.Loop, "pipeline_1"},
		{"#pragma HLS pipeline off", hls.Loop, "pipeline_1"},
		{"#pragma HLS pipeline II=4 rewind", hls.Loop, "pipeline_1"},
	}
	for _, tt := range tests {
		got, err := Canonical(tt.raw, tt.kind)
		if err != nil {
			t.Errorf("Canonical(%q) error: %v", tt.raw, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Canonical(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestParseMalformed(t *testing.T) {
	tests := []struct {
		raw  string
		kind hls.Kind
	}{
		{"pragma HLS pipeline", hls.Loop},
		{"#pragma HLS array_partition variable=buf cyclic dim=1", hls.Array},
		{"#pragma HLS array_partition variable=buf complete", hls.Array},
		{"#pragma HLS array_partition variable=buf cyclic factor=x dim=1", hls.Array},
		{"#pragma HLS unroll factor=4 skip_exit_check", hls.Loop},
		{"#pragma HLS dataflow", hls.Loop},
	}
	for _, tt := range tests {
		_, err := Parse(tt.raw, tt.kind)
		if !errors.Is(err, ErrMalformed) {
			t.Errorf("Parse(%q) error = %v, want ErrMalformed", tt.raw, err)
		}
	}
}

func TestParseLabelRoundTrip(t *testing.T) {
	for _, label := range []string{"NDIR", "complete_2", "cyclic_8_1", "block_2_2", "unroll", "unroll_4", "pipeline", "pipeline_1"} {
		d, err := ParseLabel(label)
		require.NoError(t, err, label)
		require.Equal(t, label, d.Label())
	}
	for _, bad := range []string{"complete", "complete_1_1", "cyclic_x_1", "fold_2", "unroll_0"} {
		_, err := ParseLabel(bad)
		if !errors.Is(err, ErrMalformed) {
			t.Errorf("ParseLabel(%q) error = %v, want ErrMalformed", bad, err)
		}
	}
}

func TestPragma(t *testing.T) {
	tests := []struct {
		label string
		want  string
	}{
		{"cyclic_8_1", "#pragma HLS array_partition variable=A cyclic factor=8 dim=1"},
		{"complete_2", "#pragma HLS array_partition variable=A complete dim=2"},
		{"pipeline_1", "#pragma HLS pipeline II=1"},
		{"pipeline", "#pragma HLS pipeline"},
		{"unroll_4", "#pragma HLS unroll factor=4"},
		{"unroll", "#pragma HLS unroll"},
		{"NDIR", ""},
	}
	for _, tt := range tests {
		d, err := ParseLabel(tt.label)
		require.NoError(t, err)
		if got := d.Pragma("A"); got != tt.want {
			t.Errorf("Pragma(%q) = %q, want %q", tt.label, got, tt.want)
		}
	}
}
