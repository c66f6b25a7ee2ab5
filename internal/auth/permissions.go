package auth

import "tvshelf.org/internal/catalog"

// Operations guarded by the account services. Show operations are named by the catalog package.
const (
	OpListAccounts     = "accounts.list"
	OpReadAccount      = "accounts.read"
	OpUpdateAccount    = "accounts.update"
	OpDeleteAccount    = "accounts.delete"
	OpAssignRole       = "accounts.roles.assign"
	OpRevokeRole       = "accounts.roles.revoke"
	OpListAccountShows = "accounts.shows.list"
	OpLinkShow         = "accounts.shows.link"
	OpUnlinkShow       = "accounts.shows.unlink"
)

// Policy describes who may run an operation: anyone whose rank reaches MinimumRank, or,
// when SelfService is set, a holder of one of SelfServiceRoles acting on their own account.
type Policy struct {
	MinimumRank      int
	SelfService      bool
	SelfServiceRoles []Role
}

var ownerRoles = []Role{RoleNewUser, RoleClient, RoleProvider}

// DefaultPolicies returns a fresh copy of the built-in policy table.
func DefaultPolicies() map[string]Policy {
	privileged := RoleAdmin.Rank()
	selfService := func() Policy {
		return Policy{MinimumRank: privileged, SelfService: true, SelfServiceRoles: append([]Role(nil), ownerRoles...)}
	}
	return map[string]Policy{
		OpListAccounts:     {MinimumRank: privileged},
		OpReadAccount:      selfService(),
		OpUpdateAccount:    selfService(),
		OpDeleteAccount:    {MinimumRank: privileged},
		OpAssignRole:       {MinimumRank: privileged},
		OpRevokeRole:       {MinimumRank: privileged},
		OpListAccountShows: selfService(),
		OpLinkShow:         selfService(),
		OpUnlinkShow:       selfService(),

		catalog.OpListShows:  {MinimumRank: RoleNewUser.Rank()},
		catalog.OpReadShow:   {MinimumRank: RoleNewUser.Rank()},
		catalog.OpCreateShow: {MinimumRank: privileged},
		catalog.OpUpdateShow: {MinimumRank: privileged},
		catalog.OpDeleteShow: {MinimumRank: privileged},
	}
}
