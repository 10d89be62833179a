package session

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"ragchat/internal/chat"
)

func ids(sources []chat.Source) []string {
	out := make([]string, len(sources))
	for i, s := range sources {
		out[i] = s.ID
	}
	return out
}

func TestRegistry_ListPutsActiveFirst(t *testing.T) {
	var r Registry
	r.Replace([]chat.Source{docSrc, videoSrc, tableSrc})

	assert.Equal(t, []string{"doc.pdf", "video.txt", "data.csv"}, ids(r.List("")))
	assert.Equal(t, []string{"data.csv", "doc.pdf", "video.txt"}, ids(r.List("data.csv")))
	assert.Equal(t, []string{"doc.pdf", "video.txt", "data.csv"}, ids(r.List("missing")))
}

func TestRegistry_RegisterReplacesDuplicate(t *testing.T) {
	var r Registry
	r.Replace([]chat.Source{docSrc, videoSrc})

	r.Register(chat.Source{ID: "doc.pdf", Kind: chat.KindTabular})
	r.Register(tableSrc)

	assert.Equal(t, 3, r.Len())
	got, ok := r.Lookup("doc.pdf")
	assert.True(t, ok)
	assert.Equal(t, chat.KindTabular, got.Kind)
}

func TestRegistry_Remove(t *testing.T) {
	var r Registry
	r.Replace([]chat.Source{docSrc, videoSrc})

	assert.True(t, r.Remove("doc.pdf"))
	assert.False(t, r.Remove("doc.pdf"))
	_, ok := r.Lookup("doc.pdf")
	assert.False(t, ok)
	assert.Equal(t, []string{"video.txt"}, ids(r.List("")))
}
