package domain

import "sort"

// Role is the acting user's role. Levels are ordered; a higher level implies
// at least the authority of every lower one.
type Role string

const (
	RoleResearcher Role = "researcher"
	RolePI         Role = "principal_investigator"
	RoleAdmin      Role = "admin"
)

// Level returns the authority level of the role. Unknown roles get the lowest.
func (r Role) Level() int {
	switch r {
	case RoleAdmin:
		return 2
	case RolePI:
		return 1
	default:
		return 0
	}
}

// Capability names one gated operation family.
type Capability string

const (
	CapTaskComplete             Capability = "TaskComplete"
	CapMoveAnimal               Capability = "MoveAnimal"
	CapUpdateAnimalStatus       Capability = "UpdateAnimalStatus"
	CapWriteAnimalEvent         Capability = "WriteAnimalEvent"
	CapWriteAnimalAttachment    Capability = "WriteAnimalAttachment"
	CapBreedingWrite            Capability = "BreedingWrite"
	CapGenotypingWrite          Capability = "GenotypingWrite"
	CapCohortWrite              Capability = "CohortWrite"
	CapExperimentWrite          Capability = "ExperimentWrite"
	CapTaskManage               Capability = "TaskManage"
	CapMasterDataEdit           Capability = "MasterDataEdit"
	CapCreateResources          Capability = "CreateResources"
	CapProtocolManage           Capability = "ProtocolManage"
	CapTrainingManage           Capability = "TrainingManage"
	CapNotificationPolicyManage Capability = "NotificationPolicyManage"
	CapSyncManage               Capability = "SyncManage"
	CapImportExportManage       Capability = "ImportExportManage"
	CapRbacManage               Capability = "RbacManage"
)

var capabilityMinRole = map[Capability]Role{
	CapTaskComplete:             RoleResearcher,
	CapMoveAnimal:               RoleResearcher,
	CapUpdateAnimalStatus:       RoleResearcher,
	CapWriteAnimalEvent:         RoleResearcher,
	CapWriteAnimalAttachment:    RoleResearcher,
	CapBreedingWrite:            RoleResearcher,
	CapGenotypingWrite:          RoleResearcher,
	CapCohortWrite:              RoleResearcher,
	CapExperimentWrite:          RoleResearcher,
	CapTaskManage:               RoleAdmin,
	CapMasterDataEdit:           RoleAdmin,
	CapCreateResources:          RoleAdmin,
	CapProtocolManage:           RoleAdmin,
	CapTrainingManage:           RoleAdmin,
	CapNotificationPolicyManage: RoleAdmin,
	CapSyncManage:               RoleAdmin,
	CapImportExportManage:       RoleAdmin,
	CapRbacManage:               RoleAdmin,
}

// MinRole returns the lowest role level entitled to the capability by default.
// Unknown capabilities require Admin.
func (c Capability) MinRole() Role {
	if r, ok := capabilityMinRole[c]; ok {
		return r
	}
	return RoleAdmin
}

// Capabilities returns every defined capability in a stable order.
func Capabilities() []Capability {
	out := make([]Capability, 0, len(capabilityMinRole))
	for c := range capabilityMinRole {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// RolePermissionOverrides stores per-role denied capability names on top of
// the role-level defaults. The zero value denies nothing.
type RolePermissionOverrides struct {
	ResearcherDenied []string `json:"researcher_denied,omitempty"`
	PIDenied         []string `json:"pi_denied,omitempty"`
	AdminDenied      []string `json:"admin_denied,omitempty"`
}

func (o RolePermissionOverrides) denied(role Role) []string {
	switch role {
	case RoleAdmin:
		return o.AdminDenied
	case RolePI:
		return o.PIDenied
	default:
		return o.ResearcherDenied
	}
}

// Granted reports whether the role holds the capability: its level must meet
// the capability's minimum and the capability must not be denied for the role.
// RbacManage can never be denied to Admin, so the matrix stays editable.
func (o RolePermissionOverrides) Granted(role Role, cap Capability) bool {
	if role.Level() < cap.MinRole().Level() {
		return false
	}
	if role == RoleAdmin && cap == CapRbacManage {
		return true
	}
	for _, name := range o.denied(role) {
		if name == string(cap) {
			return false
		}
	}
	return true
}

// WithCapability returns a copy with the capability enabled or denied for the
// role. Denying RbacManage for Admin is ignored.
func (o RolePermissionOverrides) WithCapability(role Role, cap Capability, enabled bool) RolePermissionOverrides {
	if role == RoleAdmin && cap == CapRbacManage {
		return o
	}
	current := map[string]bool{}
	for _, name := range o.denied(role) {
		current[name] = true
	}
	if enabled {
		delete(current, string(cap))
	} else {
		current[string(cap)] = true
	}
	next := make([]string, 0, len(current))
	for name := range current {
		next = append(next, name)
	}
	sort.Strings(next)
	out := o
	switch role {
	case RoleAdmin:
		out.AdminDenied = next
	case RolePI:
		out.PIDenied = next
	default:
		out.ResearcherDenied = next
	}
	return out
}
