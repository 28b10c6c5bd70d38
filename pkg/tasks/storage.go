package tasks

import (
	"context"
	"strconv"

	"github.com/davidthor/platctl/pkg/deploy"
)

// revokeACLEntries removes the requested entries. Removal always propagates
// to descendants. Without revocations it does nothing.
type revokeACLEntries struct{ c Components }

func (t *revokeACLEntries) Name() string { return RevokeACLEntries }

func (t *revokeACLEntries) Run(ctx context.Context, req *deploy.Request) error {
	s := req.Storage
	if s == nil {
		return missingBlock(t.Name(), "storage")
	}

	for i, r := range s.Revoke {
		if err := t.c.Propagator.Remove(ctx, s.Location(r.Path), r.Principal); err != nil {
			req.SetOutput(deploy.OutputACLRevoked, strconv.Itoa(i))
			return err
		}
	}
	req.SetOutput(deploy.OutputACLRevoked, strconv.Itoa(len(s.Revoke)))
	return nil
}

type applyACLEntries struct{ c Components }

func (t *applyACLEntries) Name() string { return ApplyACLEntries }

func (t *applyACLEntries) Run(ctx context.Context, req *deploy.Request) error {
	s := req.Storage
	if s == nil {
		return missingBlock(t.Name(), "storage")
	}

	for i, g := range s.Grant {
		if _, err := t.c.Propagator.Apply(ctx, s.Location(g.Path), g.Principal, g.Permissions, req.IsRecursive(g)); err != nil {
			req.SetOutput(deploy.OutputACLGranted, strconv.Itoa(i))
			return err
		}
	}
	req.SetOutput(deploy.OutputACLGranted, strconv.Itoa(len(s.Grant)))
	return nil
}
