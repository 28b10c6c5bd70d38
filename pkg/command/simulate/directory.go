package simulate

import (
	"strings"

	"github.com/davidthor/platctl/pkg/command"
	"github.com/google/uuid"
)

const graphTypePrefix = "#microsoft.graph."

func (u *User) payload() map[string]interface{} {
	return map[string]interface{}{
		"id":                u.ID,
		"displayName":       u.DisplayName,
		"mail":              u.Mail,
		"userPrincipalName": u.UserPrincipalName,
	}
}

func (g *Group) payload() map[string]interface{} {
	return map[string]interface{}{
		"id":          g.ID,
		"displayName": g.DisplayName,
	}
}

func (sp *ServicePrincipal) payload() map[string]interface{} {
	return map[string]interface{}{
		"id":          sp.ID,
		"appId":       sp.AppID,
		"displayName": sp.DisplayName,
	}
}

func (a *Application) payload() map[string]interface{} {
	return map[string]interface{}{
		"id":          a.ID,
		"appId":       a.AppID,
		"displayName": a.DisplayName,
	}
}

func (cp *ControlPlane) findUser(key string) *User {
	for _, u := range cp.users {
		if u.ID == key || strings.EqualFold(u.Mail, key) || strings.EqualFold(u.UserPrincipalName, key) {
			return u
		}
	}
	return nil
}

func (cp *ControlPlane) findGroup(key string) *Group {
	for _, g := range cp.groups {
		if g.ID == key || g.DisplayName == key {
			return g
		}
	}
	return nil
}

func (cp *ControlPlane) findSP(key string) *ServicePrincipal {
	for _, sp := range cp.sps {
		if sp.ID == key || sp.AppID == key {
			return sp
		}
	}
	return nil
}

func (cp *ControlPlane) findApp(key string) *Application {
	for _, a := range cp.apps {
		if a.ID == key || a.AppID == key {
			return a
		}
	}
	return nil
}

func (cp *ControlPlane) userShow(cmd command.Command) (*command.Result, error) {
	id, bad := flag(cmd, command.FlagID)
	if bad != nil {
		return bad, nil
	}
	u := cp.findUser(id)
	if u == nil {
		return command.Failed("Resource '%s' does not exist or one of its queried reference-property objects are not present.", id), nil
	}
	return command.OK(u.payload())
}

func (cp *ControlPlane) signedInUserShow(command.Command) (*command.Result, error) {
	u := cp.findUser(cp.signedInUser)
	if u == nil {
		return command.Failed("no signed-in user; run login first"), nil
	}
	return command.OK(u.payload())
}

func (cp *ControlPlane) groupShow(cmd command.Command) (*command.Result, error) {
	key, bad := flag(cmd, command.FlagGroup)
	if bad != nil {
		return bad, nil
	}
	g := cp.findGroup(key)
	if g == nil {
		return command.Failed("Resource '%s' does not exist or one of its queried reference-property objects are not present.", key), nil
	}
	return command.OK(g.payload())
}

func (cp *ControlPlane) groupMemberList(cmd command.Command) (*command.Result, error) {
	key, bad := flag(cmd, command.FlagGroup)
	if bad != nil {
		return bad, nil
	}
	g := cp.findGroup(key)
	if g == nil {
		return command.Failed("Resource '%s' does not exist or one of its queried reference-property objects are not present.", key), nil
	}

	rows := make([]map[string]interface{}, 0, len(g.Members))
	for _, id := range g.Members {
		row := map[string]interface{}{"objectId": id}
		switch {
		case cp.findUser(id) != nil:
			row["displayName"] = cp.findUser(id).DisplayName
			row["objectType"] = graphTypePrefix + "user"
		case cp.findGroup(id) != nil:
			row["displayName"] = cp.findGroup(id).DisplayName
			row["objectType"] = graphTypePrefix + "group"
		case cp.findSP(id) != nil:
			row["displayName"] = cp.findSP(id).DisplayName
			row["objectType"] = graphTypePrefix + "servicePrincipal"
		default:
			row["objectType"] = graphTypePrefix + "directoryObject"
		}
		rows = append(rows, row)
	}
	return command.OK(rows)
}

// spList filters by display name prefix, as the directory does.
func (cp *ControlPlane) spList(cmd command.Command) (*command.Result, error) {
	prefix, _ := cmd.Flag(command.FlagDisplayName)
	rows := []map[string]interface{}{}
	for _, sp := range cp.sps {
		if strings.HasPrefix(sp.DisplayName, prefix) {
			rows = append(rows, sp.payload())
		}
	}
	return command.OK(rows)
}

func (cp *ControlPlane) spShow(cmd command.Command) (*command.Result, error) {
	id, bad := flag(cmd, command.FlagID)
	if bad != nil {
		return bad, nil
	}
	sp := cp.findSP(id)
	if sp == nil {
		return command.Failed("Service principal '%s' doesn't exist", id), nil
	}
	return command.OK(sp.payload())
}

// spCreate creates the service principal of an app registration.
func (cp *ControlPlane) spCreate(cmd command.Command) (*command.Result, error) {
	id, bad := flag(cmd, command.FlagID)
	if bad != nil {
		return bad, nil
	}
	app := cp.findApp(id)
	if app == nil {
		return command.Failed("application '%s' does not exist", id), nil
	}
	for _, sp := range cp.sps {
		if sp.AppID == app.AppID {
			return command.Failed("service principal for application '%s' already exists", app.AppID), nil
		}
	}

	sp := &ServicePrincipal{ID: uuid.NewString(), AppID: app.AppID, DisplayName: app.DisplayName}
	cp.sps = append(cp.sps, sp)
	return command.OK(sp.payload())
}

func (cp *ControlPlane) appList(cmd command.Command) (*command.Result, error) {
	prefix, _ := cmd.Flag(command.FlagDisplayName)
	rows := []map[string]interface{}{}
	for _, a := range cp.apps {
		if strings.HasPrefix(a.DisplayName, prefix) {
			rows = append(rows, a.payload())
		}
	}
	return command.OK(rows)
}

func (cp *ControlPlane) appShow(cmd command.Command) (*command.Result, error) {
	id, bad := flag(cmd, command.FlagID)
	if bad != nil {
		return bad, nil
	}
	a := cp.findApp(id)
	if a == nil {
		return command.Failed("Resource '%s' does not exist or one of its queried reference-property objects are not present.", id), nil
	}
	return command.OK(a.payload())
}

func (cp *ControlPlane) appCreate(cmd command.Command) (*command.Result, error) {
	name, bad := flag(cmd, command.FlagDisplayName)
	if bad != nil {
		return bad, nil
	}
	a := &Application{ID: uuid.NewString(), AppID: uuid.NewString(), DisplayName: name}
	cp.apps = append(cp.apps, a)
	return command.OK(a.payload())
}

func (cp *ControlPlane) appOwnerAdd(cmd command.Command) (*command.Result, error) {
	id, bad := flag(cmd, command.FlagID)
	if bad != nil {
		return bad, nil
	}
	owner, bad := flag(cmd, command.FlagOwnerObjectID)
	if bad != nil {
		return bad, nil
	}
	a := cp.findApp(id)
	if a == nil {
		return command.Failed("application '%s' does not exist", id), nil
	}
	if cp.findUser(owner) == nil && cp.findSP(owner) == nil {
		return command.Failed("owner '%s' does not exist", owner), nil
	}
	for _, o := range a.Owners {
		if o == owner {
			return command.OK(nil)
		}
	}
	a.Owners = append(a.Owners, owner)
	return command.OK(nil)
}

// AppOwners returns the owner object ids of an app registration.
func (cp *ControlPlane) AppOwners(id string) []string {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	a := cp.findApp(id)
	if a == nil {
		return nil
	}
	return append([]string(nil), a.Owners...)
}
