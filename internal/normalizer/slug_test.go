package normalizer

import (
	"testing"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
)

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Travel", "travel"},
		{"Hot Springs", "hot-springs"},
		{"  Mt. Fuji!! ", "mt-fuji"},
		{"snake_case_tag", "snakecasetag"},
		{"a - b -- c", "a-b-c"},
		{"--edge--", "edge"},
		{"tokyo\u3000tower", "tokyo-tower"},
		{"tokyo\u00a0 tower", "tokyo-tower"},
		{"東京", "東京"},
		{"東京 Tower", "tower"},
		{"ÉTÉ", "t"},
		{"!!!", "!!!"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Slugify(tt.in))
		})
	}
}

func TestSlugify_Idempotent(t *testing.T) {
	faker := gofakeit.New(42)
	inputs := []string{"Kyoto Temples", "東京 タワー", "  --  ", "Ünïcödé", "a_b-c d", "Tokyo\u3000Tower", "\u3000東京\u3000"}
	for i := 0; i < 200; i++ {
		inputs = append(inputs, faker.Sentence(3), faker.City(), faker.LoremIpsumWord()+"_"+faker.Emoji())
	}

	for _, in := range inputs {
		once := Slugify(in)
		assert.Equal(t, once, Slugify(once), "input %q", in)
	}
}

func TestCleanTagNames(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, CleanTagNames([]string{" a", "b", "a", "  "}))
	assert.Empty(t, CleanTagNames(nil))
}
