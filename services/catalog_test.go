package services

import (
	"testing"

	"github.com/stretchr/testify/require"

	"lanmeet/domain"
)

func TestFileCatalog_ListReturnsCopy(t *testing.T) {
	req := require.New(t)
	catalog := NewFileCatalog()
	req.Empty(catalog.List())

	catalog.Offer(domain.FileOffer{FileID: "f1", Filename: "slides.pdf", TotalSize: 2048, Uploader: "alice"})
	catalog.Offer(domain.FileOffer{FileID: "f2", Filename: "notes.txt", TotalSize: 64, Uploader: "bob"})

	offers := catalog.List()
	req.Len(offers, 2)

	// Mutating the returned slice must not corrupt the catalog
	offers[0].Filename = "tampered"
	req.Equal("slides.pdf", catalog.List()[0].Filename)
}
