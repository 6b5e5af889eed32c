package protocol

import (
	"bytes"
	"errors"
	"math"
	"strconv"
	"testing"

	"p4rpc/message"
)

func TestEncodeHeader(t *testing.T) {
	h := EncodeHeader(0x04030201)
	want := [HeaderSize]byte{0x01 ^ 0x02 ^ 0x03 ^ 0x04, 0x01, 0x02, 0x03, 0x04}
	if h != want {
		t.Fatalf("header mismatch: got % x, want % x", h, want)
	}

	length, ok, err := DecodeHeader(h[:])
	if err != nil || !ok {
		t.Fatalf("DecodeHeader failed: ok=%v err=%v", ok, err)
	}
	if length != 0x04030201 {
		t.Fatalf("length mismatch: got %#x", length)
	}
}

func TestDecodeHeaderShort(t *testing.T) {
	for i := 0; i < HeaderSize; i++ {
		_, ok, err := DecodeHeader(make([]byte, i))
		if ok || err != nil {
			t.Fatalf("len %d: expect need-more-data, got ok=%v err=%v", i, ok, err)
		}
	}
}

func TestEncodeProtocolVector(t *testing.T) {
	data, err := EncodePacket(message.New("protocol", nil, nil))
	if err != nil {
		t.Fatalf("EncodePacket failed: %v", err)
	}

	// body: "func\x00" + len(8) + "protocol" + "\x00" = 18 bytes
	want := []byte{18, 18, 0, 0, 0}
	want = append(want, "func\x00\x08\x00\x00\x00protocol\x00"...)
	if !bytes.Equal(data, want) {
		t.Fatalf("vector mismatch:\n got % x\nwant % x", data, want)
	}
}

func TestEncodeDecode(t *testing.T) {
	packets := []*message.Packet{
		message.New("protocol", nil, nil),
		message.New("client-Message", message.Strings("a", "", "c"), nil),
		message.New("user-info", nil, map[string][]byte{"user": []byte("bob"), "host": {0, 1, 2}}),
		message.New("x", [][]byte{bytes.Repeat([]byte{0xab}, 1<<20)}, map[string][]byte{"k": {}}),
	}

	for _, p := range packets {
		data, err := EncodePacket(p)
		if err != nil {
			t.Fatalf("EncodePacket(%s) failed: %v", p.Func, err)
		}

		tail := []byte("next")
		res, err := DecodePacket(append(data, tail...))
		if err != nil {
			t.Fatalf("DecodePacket(%s) failed: %v", p.Func, err)
		}
		if !res.Complete() {
			t.Fatalf("DecodePacket(%s): expect complete, need %d", p.Func, res.Need)
		}
		if !p.Equal(res.Packet) {
			t.Errorf("Packet mismatch: got %s, want %s", res.Packet.Func, p.Func)
		}
		if !bytes.Equal(res.Tail, tail) {
			t.Errorf("Tail mismatch: got %q, want %q", res.Tail, tail)
		}
	}
}

func TestDecodeChecksumBitFlip(t *testing.T) {
	data, err := EncodePacket(message.New("protocol", message.Strings("arg"), nil))
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < HeaderSize; i++ {
		for bit := 0; bit < 8; bit++ {
			corrupt := append([]byte(nil), data...)
			corrupt[i] ^= 1 << bit
			_, err := DecodePacket(corrupt)
			if !errors.Is(err, ErrInvalidChecksum) {
				t.Fatalf("byte %d bit %d: expect ErrInvalidChecksum, got %v", i, bit, err)
			}
			if !IsFatal(err) {
				t.Fatalf("checksum error must be fatal")
			}
		}
	}
}

func TestDecodePrefix(t *testing.T) {
	data, err := EncodePacket(message.New("client-Message", message.Strings("hello"), map[string][]byte{"k": []byte("v")}))
	if err != nil {
		t.Fatal(err)
	}

	for i := 1; i < len(data); i++ {
		res, err := DecodePacket(data[:i])
		if err != nil {
			t.Fatalf("prefix %d: unexpected error %v", i, err)
		}
		if res.Complete() {
			t.Fatalf("prefix %d: unexpected packet", i)
		}
		if res.Need <= i || res.Need > len(data) {
			t.Fatalf("prefix %d: need %d out of range", i, res.Need)
		}

		res, err = DecodePacket(data[:res.Need])
		for err == nil && !res.Complete() {
			res, err = DecodePacket(data[:res.Need])
		}
		if err != nil || !res.Complete() {
			t.Fatalf("prefix %d: retry at need failed: %v", i, err)
		}
	}
}

func TestMaxLength(t *testing.T) {
	if _, err := bodyLength(math.MaxUint32 + 1); !errors.Is(err, ErrPacketTooLarge) {
		t.Fatalf("expect ErrPacketTooLarge, got %v", err)
	}
	if n, err := bodyLength(math.MaxUint32); err != nil || n != math.MaxUint32 {
		t.Fatalf("expect MaxUint32 accepted, got %d, %v", n, err)
	}

	h := EncodeHeader(math.MaxUint32)
	res, err := DecodePacket(h[:])
	if strconv.IntSize == 32 {
		if !errors.Is(err, ErrPacketTooLarge) {
			t.Fatalf("expect ErrPacketTooLarge, got %v", err)
		}
		return
	}
	if err != nil {
		t.Fatal(err)
	}
	if uint64(res.Need) != HeaderSize+math.MaxUint32 {
		t.Fatalf("expect need %d, got %d", uint64(HeaderSize+math.MaxUint32), res.Need)
	}
}

func TestDecodeMalformedBody(t *testing.T) {
	body := []byte("func\x00\x08\x00\x00\x00proto") // value cut short
	h := EncodeHeader(uint32(len(body)))
	_, err := DecodePacket(append(h[:], body...))
	if !errors.Is(err, ErrMalformedPayload) {
		t.Fatalf("expect ErrMalformedPayload, got %v", err)
	}
	if !IsFatal(err) {
		t.Fatal("malformed payload must be fatal")
	}
}

func TestWrite(t *testing.T) {
	var buf bytes.Buffer
	p := message.New("protocol", nil, nil)
	if err := Write(&buf, p); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	res, err := DecodePacket(buf.Bytes())
	if err != nil || !res.Complete() || !p.Equal(res.Packet) {
		t.Fatalf("Write produced undecodable packet: %v", err)
	}

	if err := Write(&buf, message.New("", nil, nil)); !errors.Is(err, message.ErrEmptyFunc) {
		t.Fatalf("expect ErrEmptyFunc, got %v", err)
	}
}
