package sim

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/ystepanoff/otplat/engine"
)

func TestFrameEncoding(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		wantLen int
		wantErr bool
	}{
		{name: "empty payload", payload: []byte{}, wantLen: frameHeaderSize + fcsSize},
		{name: "small payload", payload: []byte{1, 2, 3, 4, 5}, wantLen: frameHeaderSize + 5 + fcsSize},
		{name: "maximum payload", payload: bytes.Repeat([]byte{0xAA}, MaxFramePayload), wantLen: engine.MaxPSDU},
		{name: "too large payload", payload: bytes.Repeat([]byte{0xAA}, MaxFramePayload+1), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := make([]byte, engine.MaxPSDU)
			n, err := EncodeFrame(&Frame{Seq: 7, PanID: 0x1234, DstShort: broadcastShort, SrcExt: 0x1122334455667788, Payload: tt.payload}, buf)

			if tt.wantErr {
				if err != ErrFrameTooLarge {
					t.Fatalf("EncodeFrame() error = %v, want %v", err, ErrFrameTooLarge)
				}
				return
			}
			if err != nil {
				t.Fatalf("EncodeFrame() error = %v", err)
			}
			if n != tt.wantLen {
				t.Errorf("EncodeFrame() length = %d, want %d", n, tt.wantLen)
			}
			if fcf := binary.LittleEndian.Uint16(buf[0:2]); fcf != 0xD841 {
				t.Errorf("FCF = %#04x, want 0xd841", fcf)
			}
			if buf[2] != 7 {
				t.Errorf("Seq = %d, want 7", buf[2])
			}
			if pan := binary.LittleEndian.Uint16(buf[3:5]); pan != 0x1234 {
				t.Errorf("DstPAN = %#04x, want 0x1234", pan)
			}
		})
	}
}

func TestFrameRoundTrip(t *testing.T) {
	in := &Frame{
		Seq:      200,
		PanID:    0xface,
		DstShort: broadcastShort,
		SrcExt:   0xdeadbeef00000001,
		Src:      [16]byte{0: 0xfe, 1: 0x80, 15: 1},
		Dst:      [16]byte{0: 0xff, 1: 0x02, 15: 1},
		SrcPort:  49152,
		DstPort:  1212,
		Payload:  []byte("hello thread"),
	}
	buf := make([]byte, engine.MaxPSDU)
	n, err := EncodeFrame(in, buf)
	if err != nil {
		t.Fatalf("EncodeFrame() error = %v", err)
	}

	out := DecodeFrame(buf[:n])
	if out == nil {
		t.Fatal("DecodeFrame() returned nil, want successful decode")
	}
	if out.Seq != in.Seq || out.PanID != in.PanID || out.DstShort != in.DstShort || out.SrcExt != in.SrcExt {
		t.Errorf("MAC header = %+v, want %+v", out, in)
	}
	if out.Src != in.Src || out.Dst != in.Dst {
		t.Errorf("addresses = %x -> %x, want %x -> %x", out.Src, out.Dst, in.Src, in.Dst)
	}
	if out.SrcPort != in.SrcPort || out.DstPort != in.DstPort {
		t.Errorf("ports = %d -> %d, want %d -> %d", out.SrcPort, out.DstPort, in.SrcPort, in.DstPort)
	}
	if !bytes.Equal(out.Payload, in.Payload) {
		t.Errorf("Payload = %q, want %q", out.Payload, in.Payload)
	}
}

func TestFrameDecodeRejects(t *testing.T) {
	buf := make([]byte, engine.MaxPSDU)
	n, _ := EncodeFrame(&Frame{Payload: []byte{1}}, buf)

	tests := []struct {
		name string
		data []byte
	}{
		{"too short", buf[:frameHeaderSize]},
		{"wrong fcf", append([]byte{0x41, 0x88}, buf[2:n]...)},
		{"wrong dispatch", func() []byte {
			b := bytes.Clone(buf[:n])
			b[15] = 0x41
			return b
		}()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if f := DecodeFrame(tt.data); f != nil {
				t.Errorf("DecodeFrame() = %+v, want nil", f)
			}
		})
	}
}
