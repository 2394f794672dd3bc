package main

import "testing"

func TestProfileAddr(t *testing.T) {
	tests := []struct {
		env  string
		want string
	}{
		{env: "", want: ""},
		{env: "1", want: defaultProfileAddr},
		{env: "127.0.0.1:7070", want: "127.0.0.1:7070"},
		{env: ":7070", want: ":7070"},
	}
	for _, tt := range tests {
		if got := profileAddr(tt.env); got != tt.want {
			t.Errorf("profileAddr(%q) = %q, want %q", tt.env, got, tt.want)
		}
	}
}
