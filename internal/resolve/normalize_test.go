package resolve

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/alma-cli/internal/config"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Youth Bridge Inc.", "youth bridge inc"},
		{"  A&B  Services ", "a and b services"},
		{"Ngaala-Kaaditj (WA)", "ngaala kaaditj wa"},
		{"Café Youth", "caf youth"},
		{"!!!", ""},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestCoreName_DefaultStopwords(t *testing.T) {
	n := NewNormalizer(config.DefaultOrgStopwords)
	assert.Equal(t, "youth bridge", n.CoreName("The Youth Bridge Foundation Inc"))
	assert.Equal(t, "oochiumpa youth", n.CoreName("Oochiumpa Youth Services"))
}

func TestCoreName_AllStopwords(t *testing.T) {
	n := NewNormalizer(config.DefaultOrgStopwords)
	assert.Equal(t, "", n.CoreName("Services Pty Ltd"))
}

func TestCoreName_Empty(t *testing.T) {
	n := NewNormalizer(config.DefaultOrgStopwords)
	assert.Equal(t, "", n.CoreName(""))
}

func TestCoreName_InjectedStopwords(t *testing.T) {
	n := NewNormalizer([]string{"Youth", " "})
	assert.Equal(t, "bridge services", n.CoreName("Youth Bridge Services"))
}

func TestNormalizer_NormalizeMatchesPackageFunc(t *testing.T) {
	n := NewNormalizer(nil)
	assert.Equal(t, Normalize("Youth & Family"), n.Normalize("Youth & Family"))
}
