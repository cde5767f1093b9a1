package log

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeField(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
		want  string
	}{
		{
			name:  "password masked",
			key:   "password",
			value: "supersecret123",
			want:  "supe******t123",
		},
		{
			name:  "api key masked case insensitive",
			key:   "X-API-Key",
			value: "sk-1234567890abcdef",
			want:  "sk-1***********cdef",
		},
		{
			name:  "short secret fully masked",
			key:   "secret",
			value: "ab",
			want:  "**",
		},
		{
			name:  "database source masked",
			key:   "source",
			value: "user:pass@tcp(localhost:3306)/shiftguard",
			want:  "user********************************uard",
		},
		{
			name:  "email keeps local prefix and domain",
			key:   "email",
			value: "operator@example.com",
			want:  "ope***@example.com",
		},
		{
			name:  "plain field untouched",
			key:   "breaker",
			value: "email-service",
			want:  "email-service",
		},
		{
			name:  "empty value untouched",
			key:   "token",
			value: "",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeField(tt.key, tt.value))
		})
	}
}
