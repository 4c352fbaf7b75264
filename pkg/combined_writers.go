package pkg

import (
	"io"

	"go.uber.org/multierr"
)

// CombinedWriter fans every write out to all of its writers. A write counts as
// done when at least one writer took it; failures of the others are returned.
type CombinedWriter struct {
	Writers []io.Writer
}

func NewCombinedWriter(writers ...io.Writer) *CombinedWriter {
	return &CombinedWriter{
		Writers: writers,
	}
}

func (cw *CombinedWriter) Write(p []byte) (int, error) {
	var (
		errs    error
		written bool
	)
	for _, w := range cw.Writers {
		if _, err := w.Write(p); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		written = true
	}
	if !written && len(cw.Writers) > 0 {
		return 0, errs
	}
	return len(p), errs
}
