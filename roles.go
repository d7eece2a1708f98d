package credentials

// AdminRole is the role carried by admin principals.
type AdminRole string

const (
	RoleAdmin      AdminRole = "admin"
	RoleSuperAdmin AdminRole = "super_admin"
	RoleModerator  AdminRole = "moderator"
)

// IsValid checks if the role is one of the predefined roles
func (r AdminRole) IsValid() bool {
	_, ok := roleCapabilities[r]
	return ok
}

// Capability is a single admin permission.
type Capability string

const (
	CapManageUsers              Capability = "manage_users"
	CapManageContent            Capability = "manage_content"
	CapManagePayments           Capability = "manage_payments"
	CapViewReports              Capability = "view_reports"
	CapApproveNewAdmins         Capability = "approve_new_admins"
	CapSuspendUsers             Capability = "suspend_users"
	CapDeleteData               Capability = "delete_data"
	CapExportData               Capability = "export_data"
	CapPromoteDemoteAdmins      Capability = "promote_demote_admins"
	CapModifyAdminPermissions   Capability = "modify_admin_permissions"
	CapOverrideSecuritySettings Capability = "override_security_settings"
)

var allCapabilities = []Capability{
	CapManageUsers,
	CapManageContent,
	CapManagePayments,
	CapViewReports,
	CapApproveNewAdmins,
	CapSuspendUsers,
	CapDeleteData,
	CapExportData,
	CapPromoteDemoteAdmins,
	CapModifyAdminPermissions,
	CapOverrideSecuritySettings,
}

var roleCapabilities = map[AdminRole][]Capability{
	RoleModerator: {
		CapManageContent,
		CapViewReports,
		CapSuspendUsers,
	},
	RoleAdmin: {
		CapManageUsers,
		CapManageContent,
		CapManagePayments,
		CapViewReports,
		CapSuspendUsers,
		CapExportData,
	},
	RoleSuperAdmin: {
		CapManageUsers,
		CapManageContent,
		CapManagePayments,
		CapViewReports,
		CapApproveNewAdmins,
		CapSuspendUsers,
		CapDeleteData,
		CapExportData,
		CapPromoteDemoteAdmins,
		CapModifyAdminPermissions,
		CapOverrideSecuritySettings,
	},
}

// Capabilities returns the capabilities granted by the role.
func (r AdminRole) Capabilities() []Capability {
	caps := roleCapabilities[r]
	out := make([]Capability, len(caps))
	copy(out, caps)
	return out
}

// Has reports whether the role grants c.
func (r AdminRole) Has(c Capability) bool {
	for _, granted := range roleCapabilities[r] {
		if granted == c {
			return true
		}
	}
	return false
}

// Can reports whether the principal holds c, either through its role or an
// explicit grant. Users hold no capabilities.
func (p *Principal) Can(c Capability) bool {
	if p == nil || p.Kind != KindAdmin {
		return false
	}
	if p.Role.Has(c) {
		return true
	}
	for _, granted := range p.Capabilities {
		if granted == c {
			return true
		}
	}
	return false
}

// EffectiveCapabilities merges role and explicit grants without duplicates.
func (p *Principal) EffectiveCapabilities() []Capability {
	if p == nil || p.Kind != KindAdmin {
		return nil
	}
	seen := map[Capability]bool{}
	out := []Capability{}
	for _, c := range append(p.Role.Capabilities(), p.Capabilities...) {
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

// Permissions maps every known capability to whether the principal holds
// it. Users get nil.
func (p *Principal) Permissions() map[Capability]bool {
	if p == nil || p.Kind != KindAdmin {
		return nil
	}
	out := make(map[Capability]bool, len(allCapabilities))
	for _, c := range allCapabilities {
		out[c] = p.Can(c)
	}
	return out
}
