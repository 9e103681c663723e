package gateway

import (
	"reflect"
	"testing"
)

func TestParseInboundWebMessage(t *testing.T) {
	tests := []struct {
		name     string
		arg      any
		wantType string
		wantOK   bool
	}{
		{"nil", nil, "", false},
		{"empty type", map[string]interface{}{"payload": map[string]interface{}{}}, "", false},
		{
			"map form",
			map[string]interface{}{"type": "presence_register", "payload": map[string]interface{}{"sessionId": "s1"}},
			"presence_register", true,
		},
		{"json string", `{"type":"presence_heartbeat","payload":{"sessionId":"s1"}}`, "presence_heartbeat", true},
		{"json bytes", []byte(`{"type":"presence_subscribe"}`), "presence_subscribe", true},
		{"garbage string", "{not json", "", false},
		{"whitespace type", map[string]interface{}{"type": "  "}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, ok := parseInboundWebMessage(tt.arg)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && msg.Type != tt.wantType {
				t.Errorf("type = %q, want %q", msg.Type, tt.wantType)
			}
			if ok && msg.Payload == nil {
				t.Error("payload not defaulted to empty map")
			}
		})
	}
}

func TestNormalizeToken(t *testing.T) {
	tests := []struct{ in, want string }{
		{"", ""},
		{"  ", ""},
		{"abc", "abc"},
		{"Bearer abc", "abc"},
		{"bearer   abc  ", "abc"},
	}
	for _, tt := range tests {
		if got := normalizeToken(tt.in); got != tt.want {
			t.Errorf("normalizeToken(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFirstValueFromMultiMap(t *testing.T) {
	values := map[string][]string{
		"Authorization": {" Bearer tok "},
		"empty":         {},
	}
	if got := firstValueFromMultiMap(values, "authorization"); got != "Bearer tok" {
		t.Errorf("case-insensitive lookup = %q", got)
	}
	if got := firstValueFromMultiMap(values, "missing"); got != "" {
		t.Errorf("missing key = %q, want empty", got)
	}
	if got := firstValueFromMultiMap(nil, "any"); got != "" {
		t.Errorf("nil map = %q, want empty", got)
	}
}

func TestStrSliceFromAny(t *testing.T) {
	got := strSliceFromAny([]interface{}{"a", " b ", "", 7, "c"})
	want := []string{"a", "b", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("strSliceFromAny = %v, want %v", got, want)
	}
	if got := strSliceFromAny("not a list"); got != nil {
		t.Errorf("non-list input = %v, want nil", got)
	}
}
