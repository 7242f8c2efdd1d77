package model

import "testing"

func TestSubjectTypeValid(t *testing.T) {
	tests := []struct {
		in   SubjectType
		want bool
	}{
		{SubjectClient, true},
		{SubjectService, true},
		{SubjectUser, true},
		{"admin", false},
		{"", false},
		{"Service", false}, // case-sensitive
	}
	for _, tt := range tests {
		if got := tt.in.Valid(); got != tt.want {
			t.Errorf("SubjectType(%q).Valid() = %v, want %v", tt.in, got, tt.want)
		}
	}
}
