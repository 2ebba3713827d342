package engine

import (
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"

	"psxvault/interfaces"
)

// maxDownloads bounds how many offered files are kept for the view to fetch.
const maxDownloads = 16

type Downloads struct {
	lock  sync.Mutex
	seq   uint64
	order []string
	byID  map[string]*interfaces.Download
}

func NewDownloads() *Downloads {
	return &Downloads{byID: make(map[string]*interfaces.Download)}
}

// Offer registers data under name and returns the download descriptor.
// The oldest download is evicted once maxDownloads are held.
func (d *Downloads) Offer(name string, data []byte) *interfaces.Download {
	hash := xxhash.Sum64(data)

	d.lock.Lock()
	defer d.lock.Unlock()

	d.seq++
	dl := &interfaces.Download{
		ID:   fmt.Sprintf("%d-%016x", d.seq, hash),
		Name: name,
		Size: len(data),
		Hash: fmt.Sprintf("%016x", hash),
		Data: data,
	}
	d.byID[dl.ID] = dl
	d.order = append(d.order, dl.ID)

	for len(d.order) > maxDownloads {
		delete(d.byID, d.order[0])
		d.order = d.order[1:]
	}
	return dl
}

// Download implements interfaces.DownloadProvider.
func (d *Downloads) Download(id string) (*interfaces.Download, bool) {
	d.lock.Lock()
	defer d.lock.Unlock()
	dl, ok := d.byID[id]
	return dl, ok
}
