package archive

import (
	"bytes"
	"sync"

	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"

	"github.com/kiranshivaraju/issuehound/pkg/models"
)

var bufferPool = sync.Pool{
	New: func() any {
		return bytes.NewBuffer(make([]byte, 0, 256*1024))
	},
}

var gzipPool = sync.Pool{
	New: func() any {
		w, _ := gzip.NewWriterLevel(nil, gzip.BestSpeed)
		return w
	},
}

// encodeJSONLGZ serializes a batch of events as gzip-compressed JSONL.
// The returned slice is owned by the caller; pooled buffers are recycled.
func encodeJSONLGZ(events []*models.Event) ([]byte, error) {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer bufferPool.Put(buf)

	gz := gzipPool.Get().(*gzip.Writer)
	gz.Reset(buf)

	enc := json.NewEncoder(gz)
	for _, ev := range events {
		if err := enc.Encode(ev); err != nil {
			_ = gz.Close()
			gzipPool.Put(gz)
			return nil, err
		}
	}

	if err := gz.Close(); err != nil {
		gzipPool.Put(gz)
		return nil, err
	}
	gzipPool.Put(gz)

	data := make([]byte, buf.Len())
	copy(data, buf.Bytes())
	return data, nil
}
