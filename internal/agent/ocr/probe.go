package ocr

import (
	"context"
	"os/exec"
	"sync"
	"time"
)

const probeTimeout = 10 * time.Second

var defaultProber = NewProber(runVersion)

// Prober memoizes "is this binary runnable" per path for the process
// lifetime. Each path is probed at most once, even under concurrent first
// use.
type Prober struct {
	cells sync.Map // binary path -> *probeCell
	run   func(ctx context.Context, binary string) error
}

type probeCell struct {
	once      sync.Once
	available bool
}

// NewProber builds a Prober around run, which must return nil when the
// binary answered its version flag successfully.
func NewProber(run func(ctx context.Context, binary string) error) *Prober {
	return &Prober{run: run}
}

// Available runs the probe for binary on first use and returns the cached
// answer afterwards.
func (p *Prober) Available(ctx context.Context, binary string) bool {
	v, _ := p.cells.LoadOrStore(binary, &probeCell{})
	cell := v.(*probeCell)
	cell.once.Do(func() {
		// the cached answer must not depend on the first caller's deadline
		probeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), probeTimeout)
		defer cancel()
		cell.available = p.run(probeCtx, binary) == nil
	})
	return cell.available
}

// runVersion treats spawn failures and non-zero exits alike as unavailable.
func runVersion(ctx context.Context, binary string) error {
	return exec.CommandContext(ctx, binary, "--version").Run()
}
