package utils

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain object", `{"a":1}`, `{"a":1}`},
		{"fenced block", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"prose around object", `Sure! Here it is: {"a":{"b":"}"}} hope that helps`, `{"a":{"b":"}"}}`},
		{"array first", `result: [1,2,3] done`, `[1,2,3]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.input)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, got)
		})
	}
}

func TestExtractJSON_NoJSON(t *testing.T) {
	_, err := ExtractJSON("nothing to see here")
	assert.True(t, errors.Is(err, ErrNoJSONFound))

	_, err = ExtractJSON("   ")
	assert.True(t, errors.Is(err, ErrNoJSONFound))
}

func TestExtractJSONTo(t *testing.T) {
	var out struct {
		Name   string   `json:"name"`
		Skills []string `json:"skills"`
	}
	err := ExtractJSONTo("```\n{\"name\":\"Jane Doe\",\"skills\":[\"go\",\"sql\"]}\n```", &out)
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", out.Name)
	assert.Equal(t, []string{"go", "sql"}, out.Skills)
}
