package postgres

import (
	"encoding/json"
	"testing"
)

func TestStringOrDash(t *testing.T) {
	if stringOrDash("  ") != "-" || stringOrDash("acme") != "acme" {
		t.Fatal("stringOrDash")
	}
}

func TestJSONOrEmpty(t *testing.T) {
	if got := jsonOrEmpty(""); got != "{}" {
		t.Errorf("empty -> %s", got)
	}
	if got := jsonOrEmpty(`{"a":1}`); got != `{"a":1}` {
		t.Errorf("valid -> %s", got)
	}
	if got := jsonOrEmpty("not json"); got != `{"raw":"not json"}` {
		t.Errorf("invalid -> %s", got)
	}
}

func TestMetadataRoundTrip(t *testing.T) {
	enc := encodeMetadata(map[string]string{"build": "42"})
	if enc != `{"build":"42"}` {
		t.Fatalf("encode = %s", enc)
	}
	dec, ok := decodeMetadata(enc).(json.RawMessage)
	if !ok || string(dec) != enc {
		t.Fatalf("decode = %v", dec)
	}
	if encodeMetadata(nil) != "{}" || decodeMetadata("{}") != nil {
		t.Error("empty metadata")
	}
}
