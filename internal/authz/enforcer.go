// Package authz decides what a collaborator role may do on a snippet.
//
// The rules live in a casbin RBAC model embedded in the binary: each role
// inherits the permissions of the one below it (viewer < commenter < editor <
// owner). Working out which role a user holds on a given snippet (ownership,
// an accepted invitation, team membership, public visibility) is the snippet
// service's job; this package only answers "may this role do that".
package authz

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	casbinmodel "github.com/casbin/casbin/v2/model"

	"github.com/sakif/vinstackcode/internal/model"
)

//go:embed model.conf
var embeddedModel string

//go:embed policy.csv
var embeddedPolicy string

// Action is something a user can do to a snippet.
type Action string

const (
	ActionRead    Action = "read"
	ActionComment Action = "comment"
	ActionEdit    Action = "edit"
	// ActionManage covers inviting and removing collaborators.
	ActionManage Action = "manage"
	ActionDelete Action = "delete"
)

const objectSnippet = "snippet"

// Enforcer answers role/action questions.
type Enforcer struct {
	enforcer *casbin.SyncedEnforcer
}

// NewEnforcer loads the embedded model and policy.
func NewEnforcer() (*Enforcer, error) {
	m, err := casbinmodel.NewModelFromString(embeddedModel)
	if err != nil {
		return nil, fmt.Errorf("failed to load casbin model: %w", err)
	}

	e, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("failed to create casbin enforcer: %w", err)
	}
	if err := loadPolicy(e, embeddedPolicy); err != nil {
		return nil, err
	}
	return &Enforcer{enforcer: e}, nil
}

func loadPolicy(e *casbin.SyncedEnforcer, policy string) error {
	for _, line := range strings.Split(policy, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Split(line, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}

		switch parts[0] {
		case "p":
			if len(parts) != 4 {
				return fmt.Errorf("malformed policy line %q", line)
			}
			if _, err := e.AddPolicy(parts[1], parts[2], parts[3]); err != nil {
				return fmt.Errorf("failed to add policy %v: %w", parts[1:], err)
			}
		case "g":
			if len(parts) != 3 {
				return fmt.Errorf("malformed grouping line %q", line)
			}
			if _, err := e.AddGroupingPolicy(parts[1], parts[2]); err != nil {
				return fmt.Errorf("failed to add grouping policy %v: %w", parts[1:], err)
			}
		default:
			return fmt.Errorf("unknown policy type %q", parts[0])
		}
	}
	return nil
}

// Can reports whether role permits action. An empty or unknown role permits
// nothing.
func (e *Enforcer) Can(role model.Role, action Action) bool {
	if !role.Valid() {
		return false
	}
	ok, err := e.enforcer.Enforce(string(role), objectSnippet, string(action))
	return err == nil && ok
}

// Actions lists what role may do, in a stable order.
func (e *Enforcer) Actions(role model.Role) []Action {
	var out []Action
	for _, a := range []Action{ActionRead, ActionComment, ActionEdit, ActionManage, ActionDelete} {
		if e.Can(role, a) {
			out = append(out, a)
		}
	}
	return out
}
