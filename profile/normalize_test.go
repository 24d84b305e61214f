package profile

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		userID string
		want   bool
	}{
		{"profiles match", `{"profiles":[{"user_id":7}]}`, "7", true},
		{"profiles string id", `{"profiles":[{"user_id":"7"}]}`, "7", true},
		{"profiles no match", `{"profiles":[{"user_id":9}]}`, "7", false},
		{"profiles second element", `{"profiles":[{"user_id":3},{"user_id":7}]}`, "7", true},
		{"profiles empty", `{"profiles":[]}`, "7", false},
		{"profiles null", `{"profiles":null}`, "7", false},
		{"profiles without user", `{"profiles":[{"user_id":7}]}`, "", false},
		{"profiles with extra keys", `{"status":"success","total":1,"profiles":[{"user_id":7,"farm_name":"x"}]}`, "7", true},
		{"capitalized key", `{"Status":"ok","Profiles":[{"USER_ID":7}]}`, "7", true},
		{"profile present", `{"status":"success","profile":{"id":1}}`, "7", true},
		{"profile null", `{"profile":null}`, "7", false},
		{"profile key capitalized", `{"Profile":{"id":1}}`, "", true},
		{"profile wins over empty profiles", `{"profile":{"id":1},"profiles":[]}`, "7", true},
		{"null profile falls through to profiles", `{"profile":null,"profiles":[{"user_id":7}]}`, "7", true},
		{"null profile and no match", `{"profile":null,"profiles":[{"user_id":9}]}`, "7", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize([]byte(tt.body), tt.userID)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalize_Malformed(t *testing.T) {
	bodies := map[string]string{
		"not json":          `<html>`,
		"no profile key":    `{"status":"success"}`,
		"profiles not list": `{"profiles":{"user_id":7}}`,
		"array top level":   `[{"user_id":7}]`,
		"empty":             ``,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			_, err := Normalize([]byte(body), "7")
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedBody))
		})
	}
}
