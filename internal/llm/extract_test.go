package llm

import (
	"reflect"
	"testing"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    any
		wantErr bool
	}{
		{
			name: "bare object",
			in:   `{"a": 1}`,
			want: map[string]any{"a": 1.0},
		},
		{
			name: "fenced",
			in:   "```json\n{\"a\": 1}\n```",
			want: map[string]any{"a": 1.0},
		},
		{
			name: "surrounding prose",
			in:   "Here is the result:\n{\"a\": 1}\nHope that helps!",
			want: map[string]any{"a": 1.0},
		},
		{
			name: "array",
			in:   `[1, 2, 3]`,
			want: []any{1.0, 2.0, 3.0},
		},
		{
			name: "fenced with prose inside",
			in:   "```\nThe JSON: {\"a\": 1}\n```",
			want: map[string]any{"a": 1.0},
		},
		{
			name:    "empty",
			in:      "",
			wantErr: true,
		},
		{
			name:    "no json",
			in:      "I could not produce output.",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := extractJSON(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("extractJSON() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("extractJSON() = %#v, want %#v", got, tt.want)
			}
		})
	}
}
