package submit

import (
	"context"
	"time"

	"actorsub/internal/config"
)

// Component adapts a Submitter to the teacher's generic component
// lifecycle (pkg/lib/component.IComponent), so a component manager can
// start and stop it. cmd/worker-demo registers it as the only component;
// the directory and transport there are closed directly, not through the
// manager.
type Component struct {
	Submitter     *Submitter
	SweepInterval time.Duration
}

func NewComponent(sub *Submitter, sweepInterval time.Duration) *Component {
	return &Component{Submitter: sub, SweepInterval: sweepInterval}
}

func (c *Component) Name() string { return "submitter" }

func (c *Component) Init(cfg *config.Config) error { return nil }

func (c *Component) Start(ctx context.Context, cfg *config.Config) error {
	c.Submitter.Start(c.SweepInterval)
	return nil
}

func (c *Component) Stop(ctx context.Context) error {
	c.Submitter.Stop()
	return nil
}
