package protocol

import (
	"encoding/json"
	"testing"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	env, err := Encode(KindJoinRoom, JoinRoom{Code: "ABC123"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	raw, _ := json.Marshal(env)
	var back Envelope
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	var jr JoinRoom
	if err := back.Decode(&jr); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if back.Kind != KindJoinRoom || jr.Code != "ABC123" {
		t.Fatalf("unexpected round trip %+v %+v", back, jr)
	}
}

func TestDecodeEmptyPayload(t *testing.T) {
	env := MustEncode(KindLeaveRoom, nil)
	var v JoinRoom
	if err := env.Decode(&v); err == nil {
		t.Fatalf("expected error decoding empty payload")
	}
}

func TestPropsGetSet(t *testing.T) {
	p := Props{}
	if err := p.Set(PropPlayerColors, []int{0, -1, -1, -1}); err != nil {
		t.Fatalf("set: %v", err)
	}
	var colors []int
	ok, err := p.Get(PropPlayerColors, &colors)
	if !ok || err != nil || len(colors) != 4 || colors[0] != 0 {
		t.Fatalf("get = %v %v %v", colors, ok, err)
	}
	if ok, _ := p.Get(PropQuickMatch, new(bool)); ok {
		t.Fatalf("missing key reported present")
	}
	c := p.Clone()
	delete(c, PropPlayerColors)
	if _, ok := p[PropPlayerColors]; !ok {
		t.Fatalf("clone shares storage with original")
	}
}
