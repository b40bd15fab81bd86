package version

import (
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		input   string
		want    Version
		wantErr bool
	}{
		{input: "1.0", want: Version{1, 0}},
		{input: "2.7", want: Version{2, 7}},
		{input: "10.23", want: Version{10, 23}},
		{input: "", wantErr: true},
		{input: "1", wantErr: true},
		{input: "1.0.0", wantErr: true},
		{input: "1.x", wantErr: true},
		{input: "-1.0", wantErr: true},
		{input: "70000.0", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := Parse(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Parse(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Parse(%q) = %v, want %v", tt.input, got, tt.want)
			}
			if !tt.wantErr && got.String() != tt.input {
				t.Errorf("String() = %q, want %q", got.String(), tt.input)
			}
		})
	}
}

func TestCompatible(t *testing.T) {
	tests := []struct {
		a, b Version
		want bool
	}{
		{Version{1, 0}, Version{1, 0}, true},
		{Version{1, 0}, Version{1, 4}, true},
		{Version{1, 4}, Version{1, 0}, true},
		{Version{1, 0}, Version{2, 0}, false},
		{Version{3, 1}, Version{2, 1}, false},
	}

	for _, tt := range tests {
		if got := tt.a.Compatible(tt.b); got != tt.want {
			t.Errorf("%s.Compatible(%s) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestUserAgent(t *testing.T) {
	if got := UserAgent(); got != "tether-go/"+Current {
		t.Errorf("UserAgent() = %q", got)
	}
}

func TestFromUserAgent(t *testing.T) {
	tests := []struct {
		input   string
		want    Version
		wantErr bool
	}{
		{UserAgent(), Version{1, 0}, false},
		{"tether-go/2.3", Version{2, 3}, false},
		{"tether-go/1.4 (linux)", Version{1, 4}, false},
		{"Go-http-client/1.1", Version{}, true},
		{"tether-go/", Version{}, true},
		{"", Version{}, true},
		{"tether-go/abc", Version{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := FromUserAgent(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("FromUserAgent(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
				return
			}
			if got != tt.want {
				t.Errorf("FromUserAgent(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestCurrent(t *testing.T) {
	v, err := Parse(Current)
	if err != nil {
		t.Fatalf("Parse(Current) returned error: %v", err)
	}
	if !v.Compatible(Version{1, 0}) {
		t.Errorf("Current version %s is not a 1.x release", v)
	}
}
