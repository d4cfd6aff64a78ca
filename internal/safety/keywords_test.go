package safety

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContainsDanger(t *testing.T) {
	cases := []struct {
		name  string
		texts []string
		want  bool
	}{
		{"empty", nil, false},
		{"benign", []string{"when can I shower after surgery?"}, false},
		{"direct keyword", []string{"I have chest pain"}, true},
		{"case insensitive", []string{"CALL 911 NOW"}, true},
		{"keyword inside word boundary", []string{"this is urgent please"}, true},
		{"second text carries keyword", []string{"all fine", "patient is unconscious"}, true},
		{"british spelling", []string{"signs of haemorrhage"}, true},
		{"apostrophe form", []string{"I can't breathe properly"}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ContainsDanger(tc.texts...))
		})
	}
}

func TestKeywordsReturnsCopy(t *testing.T) {
	ks := Keywords()
	assert.NotEmpty(t, ks)

	ks[0] = "mutated"
	assert.NotEqual(t, "mutated", Keywords()[0])
}
