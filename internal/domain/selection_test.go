package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAccountSelectionValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		selection AccountSelection
		wantErr   string
	}{
		{name: "empty", selection: AccountSelection{}},
		{name: "include and exclude disjoint", selection: AccountSelection{Include: []string{"a"}, Exclude: []string{"b"}}},
		{name: "negative limit", selection: AccountSelection{Limit: -1}, wantErr: "limit must not be negative"},
		{
			name:      "overlap",
			selection: AccountSelection{Include: []string{"a", " b "}, Exclude: []string{"b"}},
			wantErr:   "both included and excluded",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.selection.Validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestAccountSelectionApply(t *testing.T) {
	t.Parallel()

	loaded := []string{"c", "a", "b", "d"}

	assert.Equal(t, []string{"a", "b", "c", "d"}, AccountSelection{}.Apply(loaded))
	assert.Equal(t, []string{"a", "c"}, AccountSelection{Exclude: []string{"b", "d"}}.Apply(loaded))
	assert.Equal(t, []string{"d", "a"}, AccountSelection{Include: []string{"d", "", "a", "d", "zz"}}.Apply(loaded))
	assert.Equal(t, []string{"a", "b"}, AccountSelection{Limit: 2}.Apply(loaded))
}
