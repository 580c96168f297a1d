package chunker

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = "Parenteral nutrition should start within the first hours of life. " +
	"Amino acids are given from day one at 1.5 to 2 g/kg/day. " +
	"Lipid emulsions are introduced at 1 g/kg/day and increased gradually. " +
	"Glucose infusion rates begin at 4 to 6 mg/kg/min. " +
	"Blood glucose is monitored every six hours during the first week. " +
	"Phosphorus supplementation follows calcium intake closely. " +
	"Albumin levels guide the interpretation of total protein values."

func Test_Split(t *testing.T) {
	var cases = []struct {
		input   string
		size    int
		overlap int
		output  []string
	}{
		{input: "", size: 10, overlap: 2, output: nil},
		{input: "   \n\t ", size: 10, overlap: 2, output: nil},
		{input: "short text", size: 20, overlap: 5, output: []string{"short text"}},
		{input: "abcdefghij", size: 4, overlap: 0, output: []string{"abcd", "efgh", "ij"}},
		{input: "abcdefghij", size: 4, overlap: 1, output: []string{"abcd", "defg", "ghij"}},
		{input: "aaa bbb ccc ddd", size: 8, overlap: 0, output: []string{"aaa bbb", "ccc ddd"}},
		{input: "anything", size: 0, overlap: 0, output: nil},
	}

	for i, c := range cases {
		t.Run(fmt.Sprintf("case_%d", i), func(t *testing.T) {
			assert.Equal(t, c.output, Split(c.input, c.size, c.overlap))
		})
	}
}

func Test_Split_Deterministic(t *testing.T) {
	first := Split(sample, 120, 30)
	second := Split(sample, 120, 30)
	assert.Equal(t, first, second)
	assert.Greater(t, len(first), 1)
}

func Test_Split_LengthAndOverlap(t *testing.T) {
	for _, params := range [][2]int{{60, 10}, {120, 30}, {200, 40}, {90, 0}} {
		size, overlap := params[0], params[1]
		t.Run(fmt.Sprintf("size_%d_overlap_%d", size, overlap), func(t *testing.T) {
			chunks := Split(sample, size, overlap)
			require.NotEmpty(t, chunks)

			for _, c := range chunks {
				assert.LessOrEqual(t, utf8.RuneCountInString(c), size)
				assert.NotEmpty(t, strings.TrimSpace(c))
			}

			if overlap == 0 {
				return
			}
			for i := 0; i < len(chunks)-1; i++ {
				runes := []rune(chunks[i])
				tail := strings.TrimSpace(string(runes[len(runes)-overlap/2:]))
				assert.Contains(t, chunks[i+1], tail, "chunk %d tail missing from chunk %d", i, i+1)
			}
		})
	}
}

func Test_Split_PrefersSentenceBoundary(t *testing.T) {
	chunks := Split(sample, 120, 20)
	require.Greater(t, len(chunks), 1)
	assert.True(t, strings.HasSuffix(chunks[0], "."), "first chunk %q should end at a sentence", chunks[0])
}

func Test_Split_MultiByte(t *testing.T) {
	text := strings.Repeat("신생아 영양 지침 ", 40)
	chunks := Split(text, 50, 10)
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.True(t, utf8.ValidString(c))
		assert.LessOrEqual(t, utf8.RuneCountInString(c), 50)
	}
}

func Test_New_ClampsOverlap(t *testing.T) {
	c := New(100, 150)
	assert.Equal(t, 100, c.Size())
	assert.Equal(t, 25, c.Overlap())

	c = New(0, -1)
	assert.Equal(t, DefaultChunkSize, c.Size())
	assert.Equal(t, DefaultChunkOverlap, c.Overlap())
}

func Test_Chunker_Recursive(t *testing.T) {
	c := ForStrategy("recursive", 120, 20)
	chunks := c.Split(sample)
	require.NotEmpty(t, chunks)
	for _, ch := range chunks {
		assert.NotEmpty(t, strings.TrimSpace(ch))
	}
	assert.Empty(t, c.Split("   "))
}
