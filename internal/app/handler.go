package app

import (
	"io"

	"github.com/msaeedsaeedi/serialsoak/internal/domain"
)

type ResultHandler interface {
	OnStart(cycle int)
	OnComplete(result domain.CycleResult)
	OnFinish(summary domain.Summary)
	GetOutputWriters() (stdout, stderr io.Writer)
}

// multiHandler fans events out in order. Output writers come from the first
// handler, which is always the formatter.
type multiHandler []ResultHandler

func (m multiHandler) OnStart(cycle int) {
	for _, h := range m {
		h.OnStart(cycle)
	}
}

func (m multiHandler) OnComplete(result domain.CycleResult) {
	for _, h := range m {
		h.OnComplete(result)
	}
}

func (m multiHandler) OnFinish(summary domain.Summary) {
	for _, h := range m {
		h.OnFinish(summary)
	}
}

func (m multiHandler) GetOutputWriters() (stdout, stderr io.Writer) {
	if len(m) == 0 {
		return nil, nil
	}
	return m[0].GetOutputWriters()
}
