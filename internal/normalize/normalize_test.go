package normalize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTextCollapsesWhitespace(t *testing.T) {
	in := "Hello   world\t!\r\nSecond  line\n\n\n\nThird"
	assert.Equal(t, "Hello world !\nSecond line\n\nThird", Text(in))
}

func TestTextRemovesZeroWidthRunes(t *testing.T) {
	in := "re\u200Blease\u200D is \uFEFFout"
	assert.Equal(t, "release is out", Text(in))
}

func TestTextStripsPromoTail(t *testing.T) {
	in := "Большой релиз модели.\n\nПодписывайтесь на канал!\nt.me/somechannel"
	assert.Equal(t, "Большой релиз модели.", Text(in))
}

func TestTextKeepsPromoWordInsideBody(t *testing.T) {
	in := "Реклама теперь размечается в постах.\nЭто важное изменение."
	assert.Equal(t, in, Text(in))
}

func TestContentHashStableAcrossWhitespace(t *testing.T) {
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	a := ContentHash(Text("Some  news\n\n\ntoday"), false, "https://t.me/a/1", at)
	b := ContentHash(Text("Some news\ntoday"), false, "https://t.me/b/2", at.Add(time.Hour))
	assert.Equal(t, a, b)
}

func TestContentHashMediaOnlyNeverCollides(t *testing.T) {
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	a := ContentHash("", true, "https://t.me/a/1", at)
	b := ContentHash("", true, "https://t.me/a/2", at)
	assert.NotEqual(t, a, b)

	// Same permalink and timestamp but different media flag.
	c := ContentHash("", false, "https://t.me/a/1", at)
	assert.NotEqual(t, a, c)
}
