package packet

import "testing"

func TestClassifyNALUH264(t *testing.T) {
	cases := []struct {
		name string
		b    byte
		want NALUKind
	}{
		{"idr", 0x65, NALUIDRSlice},
		{"sps", 0x67, NALUSPS},
		{"pps", 0x68, NALUPPS},
		{"slice", 0x61, NALUNonIDRSlice},
		{"sei", 0x66, NALUAux},
	}
	for _, c := range cases {
		got := ClassifyNALU(CodecH264, []byte{c.b, 0x00})
		if got != c.want {
			t.Errorf("%s: ClassifyNALU(%#x) = %v, want %v", c.name, c.b, got, c.want)
		}
	}
}

func TestClassifyNALUH265(t *testing.T) {
	idrw := byte(19 << 1)
	vps := byte(32 << 1)
	sps := byte(33 << 1)
	pps := byte(34 << 1)

	if got := ClassifyNALU(CodecH265, []byte{idrw, 0x01}); got != NALUIDRSlice {
		t.Errorf("idr: got %v", got)
	}
	if got := ClassifyNALU(CodecH265, []byte{vps, 0x01}); got != NALUVPS {
		t.Errorf("vps: got %v", got)
	}
	if got := ClassifyNALU(CodecH265, []byte{sps, 0x01}); got != NALUSPS {
		t.Errorf("sps: got %v", got)
	}
	if got := ClassifyNALU(CodecH265, []byte{pps, 0x01}); got != NALUPPS {
		t.Errorf("pps: got %v", got)
	}
}

func TestClassifyNALUEmptyIsOther(t *testing.T) {
	if got := ClassifyNALU(CodecH264, nil); got != NALUOther {
		t.Errorf("got %v, want NALUOther", got)
	}
}

func TestCloneDeepCopiesData(t *testing.T) {
	orig := Encoded{Data: []byte{1, 2, 3}}
	clone := orig.Clone()
	clone.Data[0] = 0xff
	if orig.Data[0] == 0xff {
		t.Fatal("Clone must not alias the original Data slice")
	}
}
