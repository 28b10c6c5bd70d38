package tasks

import (
	"context"
	"strconv"

	"github.com/davidthor/platctl/pkg/command"
	"github.com/davidthor/platctl/pkg/deploy"
	"github.com/davidthor/platctl/pkg/errors"
	"github.com/davidthor/platctl/pkg/identity"
)

// created is the directory's answer to a create command.
type created struct {
	ID    string `json:"id"`
	AppID string `json:"appId"`
}

// ensureAppRegistration finds the app registration by display name and
// registers it when absent.
type ensureAppRegistration struct{ c Components }

func (t *ensureAppRegistration) Name() string { return EnsureAppRegistration }

func (t *ensureAppRegistration) Run(ctx context.Context, req *deploy.Request) error {
	spec := req.Identity
	if spec == nil {
		return missingBlock(t.Name(), "identity")
	}

	l := t.c.Resolver.Lookup(ctx, identity.Ref{Kind: identity.KindAppRegistration, Value: spec.DisplayName})
	switch l.Status {
	case identity.StatusFound:
		t.c.Logger.Info("app registration exists", "display_name", spec.DisplayName, "app_id", l.Principal.AppID)
		t.record(req, string(l.Principal.ObjectID), l.Principal.AppID)
		return nil
	case identity.StatusFailed:
		return l.Err
	}

	var app created
	cmd := command.New(command.VerbAppCreate).With(command.FlagDisplayName, spec.DisplayName)
	if err := command.RunInto(ctx, t.c.Executor, cmd, &app); err != nil {
		return err
	}
	if app.ID == "" || app.AppID == "" {
		return errors.New(errors.ErrCodeParse, "app registration create returned no id")
	}
	t.c.Logger.Info("registered app", "display_name", spec.DisplayName, "app_id", app.AppID)
	t.record(req, app.ID, app.AppID)
	return nil
}

func (t *ensureAppRegistration) record(req *deploy.Request, objectID, appID string) {
	req.Identity.ObjectID = objectID
	req.Identity.AppID = appID
	req.SetOutput(deploy.OutputAppObjectID, objectID)
	req.SetOutput(deploy.OutputAppID, appID)
}

// ensureServicePrincipal creates the app registration's service principal
// when it does not exist yet.
type ensureServicePrincipal struct{ c Components }

func (t *ensureServicePrincipal) Name() string { return EnsureServicePrincipal }

func (t *ensureServicePrincipal) Run(ctx context.Context, req *deploy.Request) error {
	spec := req.Identity
	if spec == nil {
		return missingBlock(t.Name(), "identity")
	}
	if spec.SkipServicePrincipal {
		return nil
	}
	if spec.AppID == "" {
		return missingOutput(t.Name(), "the app id", EnsureAppRegistration)
	}

	// the value is an app id, so the display name probe misses and the
	// lookup falls through to get-by-id
	l := t.c.Resolver.Lookup(ctx, identity.Ref{Kind: identity.KindServicePrincipal, Value: spec.AppID})
	switch l.Status {
	case identity.StatusFound:
		t.record(req, string(l.Principal.ObjectID))
		return nil
	case identity.StatusFailed:
		return l.Err
	}

	var sp created
	cmd := command.New(command.VerbSPCreate).With(command.FlagID, spec.AppID)
	if err := command.RunInto(ctx, t.c.Executor, cmd, &sp); err != nil {
		return err
	}
	if sp.ID == "" {
		return errors.New(errors.ErrCodeParse, "service principal create returned no id")
	}
	t.c.Logger.Info("created service principal", "app_id", spec.AppID, "object_id", sp.ID)
	t.record(req, sp.ID)
	return nil
}

func (t *ensureServicePrincipal) record(req *deploy.Request, objectID string) {
	req.Identity.ServicePrincipalID = objectID
	req.SetOutput(deploy.OutputServicePrincipalID, objectID)
}

// grantGroupOwners makes the user members of each owner group owners of the
// app registration.
type grantGroupOwners struct{ c Components }

func (t *grantGroupOwners) Name() string { return GrantGroupOwners }

func (t *grantGroupOwners) Run(ctx context.Context, req *deploy.Request) error {
	app, err := appRef(t.Name(), req)
	if err != nil {
		return err
	}

	total := 0
	for _, group := range req.Identity.OwnerGroups {
		n, err := t.c.Propagator.GrantOwnerToGroupMembers(ctx, app, group)
		total += n
		if err != nil {
			req.SetOutput(deploy.OutputOwnerGrants, strconv.Itoa(total))
			return err
		}
	}
	req.SetOutput(deploy.OutputOwnerGrants, strconv.Itoa(total))
	return nil
}

type grantOwners struct{ c Components }

func (t *grantOwners) Name() string { return GrantOwners }

func (t *grantOwners) Run(ctx context.Context, req *deploy.Request) error {
	app, err := appRef(t.Name(), req)
	if err != nil {
		return err
	}
	for _, owner := range req.Identity.Owners {
		if err := t.c.Propagator.GrantOwner(ctx, app, owner); err != nil {
			return err
		}
	}
	return nil
}

func appRef(task string, req *deploy.Request) (identity.Ref, error) {
	if req.Identity == nil {
		return identity.Ref{}, missingBlock(task, "identity")
	}
	if req.Identity.ObjectID == "" {
		return identity.Ref{}, missingOutput(task, "the app object id", EnsureAppRegistration)
	}
	return identity.Ref{Kind: identity.KindObjectID, Value: req.Identity.ObjectID}, nil
}
