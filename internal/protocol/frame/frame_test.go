package frame

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/danmuck/netcore/internal/protocol"
	"github.com/danmuck/netcore/internal/protocol/security"
)

func providers(t *testing.T) map[string]*security.Provider {
	t.Helper()
	keys, err := security.GenerateKeys()
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	out := map[string]*security.Provider{"none": nil, "empty": {}}
	for _, mode := range []security.Mode{security.ModeCipher, security.ModeIntegrity, security.ModeBoth} {
		p, err := security.ProviderFromKeys(mode, security.CipherAESGCM, keys)
		if err != nil {
			t.Fatalf("provider %s: %v", mode, err)
		}
		out[string(mode)] = p
	}
	return out
}

func TestPackUnpackRoundTrip(t *testing.T) {
	payloads := [][]byte{nil, []byte("hello"), bytes.Repeat([]byte{0x03, 0x00, ':', ')'}, 1024)}
	for name, sec := range providers(t) {
		for _, p := range payloads {
			raw, err := Pack(p, sec)
			if err != nil {
				t.Fatalf("%s: pack: %v", name, err)
			}
			out, err := Unpack(raw, sec)
			if err != nil {
				t.Fatalf("%s: unpack: %v", name, err)
			}
			if !bytes.Equal(out, p) {
				t.Fatalf("%s: payload mismatch", name)
			}
		}
	}
}

func TestPackLayout(t *testing.T) {
	raw, err := Pack([]byte("abc"), nil)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	want := []byte{0x4E, 0x43, 0, 0, 0, 0, 0, 3, 'a', 'b', 'c', EndMarker}
	if !bytes.Equal(raw, want) {
		t.Fatalf("layout: got %x want %x", raw, want)
	}
}

func TestUnpackShortBufferIsFramingError(t *testing.T) {
	raw, _ := Pack([]byte("hello"), nil)
	for _, cut := range []int{0, 3, HeaderLen, len(raw) - 1} {
		_, err := Unpack(raw[:cut], nil)
		if !errors.Is(err, protocol.ErrFraming) {
			t.Fatalf("cut=%d: expected framing error, got %v", cut, err)
		}
	}
	_, err := Unpack(append(raw, 0), nil)
	if !errors.Is(err, ErrLengthMismatch) {
		t.Fatalf("expected ErrLengthMismatch for trailing byte, got %v", err)
	}
}

func TestUnpackChecksMarkerAtDeclaredOffset(t *testing.T) {
	raw, _ := Pack([]byte{EndMarker, EndMarker}, nil)
	raw[len(raw)-1] = 'x'
	if _, err := Unpack(raw, nil); !errors.Is(err, ErrMissingEndMarker) {
		t.Fatalf("expected ErrMissingEndMarker, got %v", err)
	}
}

func TestUnpackBadMagic(t *testing.T) {
	raw, _ := Pack([]byte("x"), nil)
	raw[0] = 0
	if _, err := Unpack(raw, nil); !errors.Is(err, ErrBadMagic) {
		t.Fatalf("expected ErrBadMagic, got %v", err)
	}
}

func TestUnpackFlagMismatchIsSecurityError(t *testing.T) {
	ps := providers(t)
	raw, err := Pack([]byte("secret"), ps["both"])
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	_, err = Unpack(raw, nil)
	if !errors.Is(err, protocol.ErrSecurity) {
		t.Fatalf("expected security error, got %v", err)
	}
	plain, _ := Pack([]byte("plain"), nil)
	if _, err := Unpack(plain, ps["integrity"]); !errors.Is(err, ErrFlagMismatch) {
		t.Fatalf("expected ErrFlagMismatch, got %v", err)
	}
}

func TestUnpackTamperedIsSecurityError(t *testing.T) {
	sec := providers(t)["integrity"]
	raw, err := Pack([]byte("signed"), sec)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	raw[len(raw)-2] ^= 0xff
	_, err = Unpack(raw, sec)
	if !errors.Is(err, security.ErrIntegrity) || protocol.Classify(err) != protocol.ClassSecurity {
		t.Fatalf("expected integrity failure, got %v", err)
	}
}

func TestReadFrameStream(t *testing.T) {
	var stream bytes.Buffer
	for _, p := range []string{"one", "two", ""} {
		raw, _ := Pack([]byte(p), nil)
		stream.Write(raw)
	}
	for _, want := range []string{"one", "two", ""} {
		raw, h, err := ReadFrame(&stream, DefaultLimits())
		if err != nil {
			t.Fatalf("read frame: %v", err)
		}
		if int(h.Length) != len(want) {
			t.Fatalf("header length %d want %d", h.Length, len(want))
		}
		out, err := Unpack(raw, nil)
		if err != nil || string(out) != want {
			t.Fatalf("unpack: got (%q,%v) want %q", out, err, want)
		}
	}
	if _, _, err := ReadFrame(&stream, DefaultLimits()); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF at stream end, got %v", err)
	}
}

func TestReadFrameRejectsOversizedBeforeBody(t *testing.T) {
	head := EncodeHeader(Header{Length: 2048})
	_, _, err := ReadFrame(bytes.NewReader(head), Limits{MaxPayloadBytes: 1024})
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
}

func TestReadFrameTruncated(t *testing.T) {
	raw, _ := Pack([]byte("hello"), nil)
	if _, _, err := ReadFrame(bytes.NewReader(raw[:4]), DefaultLimits()); !errors.Is(err, ErrShortHeader) {
		t.Fatalf("expected ErrShortHeader, got %v", err)
	}
	if _, _, err := ReadFrame(bytes.NewReader(raw[:10]), DefaultLimits()); !errors.Is(err, ErrLengthMismatch) {
		t.Fatalf("expected ErrLengthMismatch, got %v", err)
	}
}

func TestReadFramePreservesReservedByte(t *testing.T) {
	raw, err := Pack([]byte("hello"), nil)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	raw[3] = 0x7F
	got, h, err := ReadFrame(bytes.NewReader(raw), DefaultLimits())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if h.Reserved != 0x7F {
		t.Fatalf("reserved %#x want 0x7f", h.Reserved)
	}
	if !bytes.Equal(got, raw) {
		t.Fatalf("frame bytes changed: got %x want %x", got, raw)
	}
}
