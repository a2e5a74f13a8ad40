package services

import (
	"github.com/shashiranjanraj/veritas/pkg/queue"
	"github.com/shashiranjanraj/veritas/pkg/storage"
)

// ArchiveLabelJob writes an encoded label to the archive disk in the
// background, so a slow or flaky archive never delays registration.
type ArchiveLabelJob struct {
	ProductID uint64 `json:"productId"`
	Raw       []byte `json:"raw"`
}

func (j *ArchiveLabelJob) Handle() error {
	return storage.Put(labelPath(j.ProductID), j.Raw)
}

func init() {
	queue.Register("*services.ArchiveLabelJob", func() queue.Job { return &ArchiveLabelJob{} })
}
