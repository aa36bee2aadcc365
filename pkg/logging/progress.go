// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package logging

import (
	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

// ProgressSteps is the number of progress records logged over a whole transfer.
const ProgressSteps = 20

// Progress logs the advance of a long byte transfer in fixed steps.
type Progress struct {
	logger *zap.Logger
	msg    string
	total  uint64
	step   uint64
	next   uint64
}

// NewProgress returns a Progress for a transfer of total bytes.
func NewProgress(logger *zap.Logger, msg string, total uint64) *Progress {
	step := max(total/ProgressSteps, 1)

	return &Progress{
		logger: logger,
		msg:    msg,
		total:  total,
		step:   step,
		next:   step,
	}
}

// Update records that done bytes were transferred so far.
func (p *Progress) Update(done uint64) {
	if p.total == 0 || done < p.next {
		return
	}

	p.logger.Info(p.msg,
		zap.String("done", humanize.IBytes(done)),
		zap.String("total", humanize.IBytes(p.total)),
		zap.Uint64("percent", min(done*100/p.total, 100)),
	)

	p.next = (done/p.step + 1) * p.step

	if done < p.total && p.next > p.total {
		p.next = p.total
	}
}
