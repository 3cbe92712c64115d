package scraper

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestByRefSelectorsEscapeQuotes(t *testing.T) {
	assert.Equal(t, `div[id='it\'s']`, CommentByRef("it's"))
	assert.Equal(t, `div#postinglist div.posting[data-postingid='a\\b']`, PostingByRef(`a\b`))
	assert.Equal(t, `div[id='1001']`, CommentByRef("1001"))
}
