package packet

import (
	"bytes"
	"testing"

	"github.com/inobulles/aqua/pkg/vdev"
	"github.com/inobulles/aqua/pkg/wire"
)

func TestELPRoundTrip(t *testing.T) {
	p := ELPPacket{Vers: ElpVersion, Unique: 0x00AABBCCDDEEFF, HostID: 42, Name: "test-node"}
	got, err := UnmarshalELP(p.Marshal())
	if err != nil {
		t.Fatal(err)
	}
	if got != p {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, p)
	}
}

func TestELPFitsUDPBudget(t *testing.T) {
	p := ELPPacket{Vers: ElpVersion, HostID: 1, Name: "x"}
	if n := len(p.Marshal()); n >= UDPBudget {
		t.Fatalf("ELP packet is %d bytes, want < %d", n, UDPBudget)
	}
}

func TestQueryResRoundTrip(t *testing.T) {
	p := QueryResPacket{VDEVs: []vdev.Descriptor{
		{HostID: 1, VDEVID: 2, Spec: "aqua.test", Version: 1, Human: "test vdev", VDriverHuman: "test driver", Kind: vdev.KindGV, Preference: 0},
	}}
	got, err := UnmarshalQueryRes(p.Marshal())
	if err != nil {
		t.Fatal(err)
	}
	if len(got.VDEVs) != 1 || got.VDEVs[0] != p.VDEVs[0] {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, p)
	}
}

func TestConnVDEVRoundTrip(t *testing.T) {
	p := ConnVDEVPacket{VDEVID: 0xdeadbeef}
	got, err := UnmarshalConnVDEV(p.Marshal())
	if err != nil {
		t.Fatal(err)
	}
	if got != p {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, p)
	}
}

func TestConnVDEVResRoundTrip(t *testing.T) {
	p := ConnVDEVResPacket{
		ConnID: 7,
		Fns: []wire.Function{
			{Name: "add", RetType: wire.U64, Params: []wire.Param{{Type: wire.U64, Name: "a"}, {Type: wire.U64, Name: "b"}}},
		},
	}
	got, err := UnmarshalConnVDEVRes(p.Marshal())
	if err != nil {
		t.Fatal(err)
	}
	if got.ConnID != p.ConnID || len(got.Fns) != 1 || got.Fns[0].Name != "add" {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, p)
	}
}

func TestKOSCallRoundTrip(t *testing.T) {
	p := KOSCallPacket{ConnID: 3, FnID: 0, Args: []wire.Value{wire.U64Value(420), wire.U64Value(69)}}
	got, err := UnmarshalKOSCall(p.Marshal(), []wire.Type{wire.U64, wire.U64})
	if err != nil {
		t.Fatal(err)
	}
	if got.ConnID != p.ConnID || got.FnID != p.FnID || len(got.Args) != 2 {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, p)
	}
	a0, _ := got.Args[0].U64()
	a1, _ := got.Args[1].U64()
	if a0 != 420 || a1 != 69 {
		t.Fatalf("arg mismatch: %+v", got.Args)
	}
}

func TestKOSCallRetRoundTrip(t *testing.T) {
	p := KOSCallRetPacket{Return: wire.U64Value(489)}
	got, err := UnmarshalKOSCallRet(p.Marshal(), wire.U64)
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := got.Return.U64(); v != 489 {
		t.Fatalf("return value mismatch: got %+v, want %+v", got, p)
	}
}

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := ConnVDEVPacket{VDEVID: 99}.Marshal()

	if err := WriteFrame(&buf, payload); err != nil {
		t.Fatal(err)
	}

	got, err := ReadFrame(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("frame round trip mismatch: got %v, want %v", got, payload)
	}
}
