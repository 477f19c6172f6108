package rbac

// Permission keys understood by the console.
const (
	PermLoanCreate         = "loan_create"
	PermLoanApprove        = "loan_approve"
	PermLoanEdit           = "loan_edit"
	PermViewDocs           = "view_docs"
	PermDownloadDocs       = "download_docs"
	PermEditPolicies       = "edit_policies"
	PermAuditLogs          = "audit_logs"
	PermManageOrganization = "manage_organization"
	PermManageUsers        = "manage_users"
	PermManageRoles        = "manage_roles"
	PermManageWorkflow     = "manage_workflow"
)

// Permission describes one grantable capability.
type Permission struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Group string `json:"group"`
}

// Catalog lists every permission in display order.
var Catalog = []Permission{
	{Key: PermLoanCreate, Label: "Create Loan", Group: "loans"},
	{Key: PermLoanApprove, Label: "Approve Loan", Group: "loans"},
	{Key: PermLoanEdit, Label: "Edit Loan", Group: "loans"},
	{Key: PermViewDocs, Label: "View Documents", Group: "documents"},
	{Key: PermDownloadDocs, Label: "Download Documents", Group: "documents"},
	{Key: PermEditPolicies, Label: "Edit Policies", Group: "administration"},
	{Key: PermAuditLogs, Label: "View Audit Logs", Group: "administration"},
	{Key: PermManageOrganization, Label: "Manage Organization", Group: "administration"},
	{Key: PermManageUsers, Label: "Manage Users", Group: "administration"},
	{Key: PermManageRoles, Label: "Manage Roles", Group: "administration"},
	{Key: PermManageWorkflow, Label: "Manage Workflow", Group: "administration"},
}

// Known reports whether key is in the catalog.
func Known(key string) bool {
	for _, p := range Catalog {
		if p.Key == key {
			return true
		}
	}
	return false
}

// AllGranted returns a permission map granting every catalog key.
func AllGranted() map[string]bool {
	out := make(map[string]bool, len(Catalog))
	for _, p := range Catalog {
		out[p.Key] = true
	}
	return out
}
