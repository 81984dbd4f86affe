package emitter

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
)

func TestPresenceEvent_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []PresenceInfo
	}{
		{
			name: "status lists every subscriber",
			in:   `{"time":1589626821,"event":"status","channel":"chat/","who":[{"id":"a","username":"alice"},{"id":"b"}]}`,
			want: []PresenceInfo{{ID: "a", Username: "alice"}, {ID: "b"}},
		},
		{
			name: "subscribe carries one subscriber",
			in:   `{"time":1589626821,"event":"subscribe","channel":"chat/","who":{"id":"c"}}`,
			want: []PresenceInfo{{ID: "c"}},
		},
		{
			name: "missing who",
			in:   `{"time":1589626821,"event":"status","channel":"chat/"}`,
			want: nil,
		},
		{
			name: "null who",
			in:   `{"event":"status","who":null}`,
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var e PresenceEvent
			if err := json.Unmarshal([]byte(tt.in), &e); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			if !reflect.DeepEqual(e.Who, tt.want) {
				t.Errorf("Who = %+v, want %+v", e.Who, tt.want)
			}
		})
	}
}

func TestPresenceEvent_UnmarshalJSON_Invalid(t *testing.T) {
	for _, in := range []string{`{"who":"bob"}`, `{"who":[1,2]}`, `[]`} {
		var e PresenceEvent
		if err := json.Unmarshal([]byte(in), &e); err == nil {
			t.Errorf("Unmarshal(%s) expected error", in)
		}
	}
}

func TestMessage(t *testing.T) {
	msg := Message{Channel: "chat/", Payload: []byte(`{"text":"hi"}`)}

	if msg.String() != `{"text":"hi"}` {
		t.Errorf("String() = %q", msg.String())
	}
	if string(msg.Bytes()) != `{"text":"hi"}` {
		t.Errorf("Bytes() = %q", msg.Bytes())
	}

	var body struct {
		Text string `json:"text"`
	}
	if err := msg.Unmarshal(&body); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if body.Text != "hi" {
		t.Errorf("Text = %q, want hi", body.Text)
	}

	bad := Message{Payload: []byte("plain text")}
	if err := bad.Unmarshal(&body); !errors.Is(err, ErrInvalidPayload) {
		t.Errorf("Unmarshal() error = %v, want ErrInvalidPayload", err)
	}
}

func TestErrorResponse(t *testing.T) {
	var err error = &ErrorResponse{Status: 403, Message: "forbidden"}
	if err.Error() != "emitter: broker error 403: forbidden" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestRoutePath(t *testing.T) {
	tests := map[string]string{
		"chat":                "chat/",
		"/chat/room/?last=5":  "chat/room/",
		"$share/workers/jobs": "jobs/",
		"$share/workers/a/b/": "a/b/",
		"$share/onlygroup":    "$share/onlygroup/",
	}

	for in, want := range tests {
		if got := routePath(in); got != want {
			t.Errorf("routePath(%q) = %q, want %q", in, got, want)
		}
	}
}
