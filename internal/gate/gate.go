// Package gate decides whether a request may reach its handler or must be
// redirected, based on the route class of its path and its session.
package gate

import (
	"github.com/givebridge/givebridge/internal/auth"
	"github.com/givebridge/givebridge/internal/routes"
	"github.com/givebridge/givebridge/internal/session"
)

// Redirect targets
const (
	PathLogin              = "/donor_login"
	PathRoot               = "/"
	PathAdminDashboard     = "/admin/dashboard"
	PathDonorDashboard     = "/user/donor/dashboard"
	PathVolunteerDashboard = "/user/volunteer/dashboard"
)

// Action is what the gate does with a request
type Action int

const (
	Allow Action = iota
	Redirect
)

func (a Action) String() string {
	if a == Redirect {
		return "redirect"
	}
	return "allow"
}

// Rule names the precedence rule that produced a decision
type Rule string

const (
	RuleNone              Rule = ""
	RuleUnauthenticated   Rule = "unauthenticated"
	RuleUnresolvedSession Rule = "unresolved_session"
	RuleAdminOnly         Rule = "admin_only"
	RuleUnrecognizedRole  Rule = "unrecognized_role"
	RuleAlreadySignedIn   Rule = "already_signed_in"
)

// Decision is the outcome for one request
type Decision struct {
	Action   Action
	Location string
	Rule     Rule
}

func allow() Decision {
	return Decision{Action: Allow}
}

func redirect(location string, rule Rule) Decision {
	return Decision{Action: Redirect, Location: location, Rule: rule}
}

// DashboardFor returns the landing page of a role
func DashboardFor(role auth.Role) string {
	switch role {
	case auth.RoleAdmin:
		return PathAdminDashboard
	case auth.RoleDonor:
		return PathDonorDashboard
	case auth.RoleVolunteer:
		return PathVolunteerDashboard
	default:
		return PathRoot
	}
}

// Decide applies the access rules in order; the first match wins.
//
//  1. no token on a non-public route: sign in first
//  2. token whose user could not be resolved on a non-public route: sign in again
//  3. admin route for a non-admin: site root
//  4. user route for a role outside admin/donor/volunteer: site root
//  5. public route for a signed-in user: the role's dashboard
//
// Anything else is allowed. Admins may enter user routes.
func Decide(class routes.Class, sess session.Session) Decision {
	if !sess.Authenticated() {
		if !class.Public {
			return redirect(PathLogin, RuleUnauthenticated)
		}
		return allow()
	}

	if !sess.Resolved() {
		if !class.Public {
			return redirect(PathLogin, RuleUnresolvedSession)
		}
		return allow()
	}

	role := sess.User.Role

	if class.Admin && role != auth.RoleAdmin {
		return redirect(PathRoot, RuleAdminOnly)
	}

	if class.User && !role.Known() {
		return redirect(PathRoot, RuleUnrecognizedRole)
	}

	if class.Public {
		return redirect(DashboardFor(role), RuleAlreadySignedIn)
	}

	return allow()
}
