// Package services hosts the small collaborator implementations the control
// plane delegates to through the contract interfaces.
package services

import (
	"sync"

	"lanmeet/domain"
)

// FileCatalog keeps announced file offers in memory for the lifetime of the
// meeting. Chunk upload/download lives outside the control plane; only the
// announcements travel through it.
type FileCatalog struct {
	mu     sync.RWMutex
	offers []domain.FileOffer
}

func NewFileCatalog() *FileCatalog {
	return &FileCatalog{}
}

func (c *FileCatalog) Offer(offer domain.FileOffer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offers = append(c.offers, offer)
}

func (c *FileCatalog) List() []domain.FileOffer {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.FileOffer, len(c.offers))
	copy(out, c.offers)
	return out
}
