package httpaas

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// runPollLoop implements spec.md §4.7's polling ingestion mode: for every
// control-direction mapping, GET the current value and compare it against
// the last observed value, yielding a write when it changed. The value is
// the decoded JSON as the repository returned it; it is not coerced to the
// element's xsd type before the comparison or the write.
func (p *Provider) runPollLoop(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.pollOnce(ctx)
		}
	}
}

func (p *Provider) pollOnce(ctx context.Context) {
	p.mu.Lock()
	targets := make([]*pollableElement, len(p.pollable))
	copy(targets, p.pollable)
	p.mu.Unlock()

	for _, target := range targets {
		select {
		case <-ctx.Done():
			return
		default:
		}
		p.pollElement(ctx, target)
	}
}

func (p *Provider) pollElement(ctx context.Context, target *pollableElement) {
	raw, found, err := p.rest.getValue(ctx, target.submodelID, target.idShort)
	if err != nil {
		p.logger.Warn("poll GET failed",
			zap.String("submodel_id", target.submodelID), zap.String("id_short", target.idShort), zap.Error(err))
		return
	}
	if !found {
		return
	}

	target.mu.Lock()
	unchanged := target.hasLast && target.lastSeen == raw
	target.hasLast = true
	target.lastSeen = raw
	target.mu.Unlock()

	if unchanged {
		return
	}
	p.enqueueWrite(target.submodelID, target.idShort, raw)
}
