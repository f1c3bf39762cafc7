package core

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"vivarium/pkg/domain"
)

// SwitchRole changes the acting role. The switch itself is never gated, so a
// locked-down role can always hand back to another one.
func (s *Service) SwitchRole(role domain.Role) domain.Outcome {
	return s.apply("", "system", "role.switch", func(next *domain.Snapshot, now time.Time) (audit, *syncMsg, domain.Outcome) {
		next.CurrentRole = role
		a := audit{
			action:   "ROLE_SWITCH",
			entity:   domain.EntityUser,
			entityID: "current",
			summary:  "当前角色切换为 " + role.DisplayName(),
		}
		return a, nil, domain.Success()
	})
}

// SetProtocolState enables or disables a protocol.
func (s *Service) SetProtocolState(protocolId string, active bool, operator string) domain.Outcome {
	return s.apply(domain.CapProtocolManage, operator, "protocol.toggle", func(next *domain.Snapshot, now time.Time) (audit, *syncMsg, domain.Outcome) {
		existing, ok := next.FindProtocol(protocolId)
		if !ok {
			return audit{}, nil, domain.Fail(domain.KindNotFound, "协议不存在")
		}
		for i := range next.Protocols {
			if next.Protocols[i].ID == protocolId {
				next.Protocols[i].Active = active
			}
		}

		state := "停用"
		if active {
			state = "启用"
		}
		a := audit{
			action:   "PROTOCOL_TOGGLE",
			entity:   domain.EntityProtocol,
			entityID: protocolId,
			summary:  "协议状态更新为 " + state,
			before:   map[string]string{"active": strconv.FormatBool(existing.Active)},
			after:    map[string]string{"active": strconv.FormatBool(active)},
		}
		return a, &syncMsg{event: "protocol.toggle", payload: fmt.Sprintf("protocol=%s active=%t", protocolId, active)}, domain.Success()
	})
}

// UpsertTrainingRecord creates or replaces the operator's training record,
// matched by username case-insensitively.
func (s *Service) UpsertTrainingRecord(record domain.TrainingRecord, operator string) domain.Outcome {
	return s.apply(domain.CapTrainingManage, operator, "training.upsert", func(next *domain.Snapshot, now time.Time) (audit, *syncMsg, domain.Outcome) {
		username := strings.TrimSpace(record.Username)
		if username == "" {
			return audit{}, nil, domain.Fail(domain.KindMalformedInput, "用户名不能为空")
		}
		if record.ExpiresAt.IsZero() {
			return audit{}, nil, domain.Fail(domain.KindMalformedInput, "培训有效期不合法")
		}
		normalized := record
		normalized.Username = username

		before := map[string]string{"active": "", "expires_at": "", "note": ""}
		replaced := false
		for i, r := range next.TrainingRecords {
			if strings.EqualFold(r.Username, username) {
				before["active"] = strconv.FormatBool(r.Active)
				before["expires_at"] = r.ExpiresAt.Format(time.RFC3339)
				before["note"] = r.Note
				next.TrainingRecords[i] = normalized
				replaced = true
			}
		}
		if !replaced {
			next.TrainingRecords = append([]domain.TrainingRecord{normalized}, next.TrainingRecords...)
		}

		a := audit{
			action:   "TRAINING_RECORD_UPSERT",
			entity:   domain.EntityTraining,
			entityID: username,
			summary:  "更新培训资质：" + username,
			before:   before,
			after: map[string]string{
				"active":     strconv.FormatBool(normalized.Active),
				"expires_at": normalized.ExpiresAt.Format(time.RFC3339),
				"note":       normalized.Note,
			},
		}
		return a, &syncMsg{event: "training.upsert", payload: "user=" + username}, domain.Success()
	})
}

// RemoveTrainingRecord deletes the operator's training record.
func (s *Service) RemoveTrainingRecord(username, operator string) domain.Outcome {
	return s.apply(domain.CapTrainingManage, operator, "training.remove", func(next *domain.Snapshot, now time.Time) (audit, *syncMsg, domain.Outcome) {
		clean := strings.TrimSpace(username)
		if clean == "" {
			return audit{}, nil, domain.Fail(domain.KindMalformedInput, "用户名不能为空")
		}
		found := false
		kept := next.TrainingRecords[:0]
		for _, r := range next.TrainingRecords {
			if strings.EqualFold(r.Username, clean) {
				found = true
				continue
			}
			kept = append(kept, r)
		}
		if !found {
			return audit{}, nil, domain.Fail(domain.KindNotFound, "培训记录不存在")
		}
		next.TrainingRecords = kept

		a := audit{
			action:   "TRAINING_RECORD_REMOVE",
			entity:   domain.EntityTraining,
			entityID: clean,
			summary:  "删除培训资质：" + clean,
		}
		return a, &syncMsg{event: "training.remove", payload: "user=" + clean}, domain.Success()
	})
}

// SetNotificationPolicy replaces the notification rule toggles. The protocol
// expiry lead window is bounded to 1-60 days.
func (s *Service) SetNotificationPolicy(policy domain.NotificationPolicy, operator string) domain.Outcome {
	return s.apply(domain.CapNotificationPolicyManage, operator, "notification.policy.update", func(next *domain.Snapshot, now time.Time) (audit, *syncMsg, domain.Outcome) {
		if policy.ProtocolExpiryLeadDays < 1 || policy.ProtocolExpiryLeadDays > 60 {
			return audit{}, nil, domain.Fail(domain.KindMalformedInput, "协议提醒天数需在 1-60 之间")
		}
		before := next.Notification
		next.Notification = policy

		a := audit{
			action:   "NOTIFICATION_POLICY_UPDATE",
			entity:   domain.EntityConfig,
			entityID: "global",
			summary:  fmt.Sprintf("更新通知策略：协议%d天提醒", policy.ProtocolExpiryLeadDays),
			before:   notificationPolicyFields(before),
			after:    notificationPolicyFields(policy),
		}
		return a, &syncMsg{event: "notification.policy.update", payload: fmt.Sprintf("leadDays=%d", policy.ProtocolExpiryLeadDays)}, domain.Success()
	})
}

// SetRolePermission enables or denies one capability for a role. Setting the
// current value again is a no-op success. Denying RbacManage to Admin is
// rejected by the override table itself, which keeps the matrix editable.
func (s *Service) SetRolePermission(role domain.Role, cap domain.Capability, enabled bool, operator string) domain.Outcome {
	snap := s.store.Snapshot()
	if overridesEqual(snap.Overrides.WithCapability(role, cap, enabled), snap.Overrides) && s.granted(domain.CapRbacManage) {
		return domain.Success()
	}
	return s.apply(domain.CapRbacManage, operator, "rbac.permission.update", func(next *domain.Snapshot, now time.Time) (audit, *syncMsg, domain.Outcome) {
		before := next.Overrides
		after := before.WithCapability(role, cap, enabled)
		next.Overrides = after

		state := "禁用"
		if enabled {
			state = "启用"
		}
		a := audit{
			action:   "RBAC_PERMISSION_UPDATE",
			entity:   domain.EntityRBAC,
			entityID: string(role) + ":" + string(cap),
			summary:  fmt.Sprintf("权限点更新 %s · %s -> %s", role.DisplayName(), cap.DisplayName(), state),
			before:   map[string]string{"enabled": strconv.FormatBool(before.Granted(role, cap))},
			after:    map[string]string{"enabled": strconv.FormatBool(after.Granted(role, cap))},
		}
		return a, &syncMsg{event: "rbac.permission.update", payload: fmt.Sprintf("role=%s permission=%s enabled=%t", role, cap, enabled)}, domain.Success()
	})
}

func overridesEqual(a, b domain.RolePermissionOverrides) bool {
	return stringSlicesEqual(a.ResearcherDenied, b.ResearcherDenied) &&
		stringSlicesEqual(a.PIDenied, b.PIDenied) &&
		stringSlicesEqual(a.AdminDenied, b.AdminDenied)
}

func stringSlicesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func notificationPolicyFields(p domain.NotificationPolicy) map[string]string {
	return map[string]string{
		"enable_protocol_expiry":    strconv.FormatBool(p.EnableProtocolExpiry),
		"protocol_expiry_lead_days": strconv.Itoa(p.ProtocolExpiryLeadDays),
		"enable_overdue_task":       strconv.FormatBool(p.EnableOverdueTask),
		"enable_cage_capacity":      strconv.FormatBool(p.EnableCageCapacity),
		"enable_sync_failure":       strconv.FormatBool(p.EnableSyncFailure),
	}
}
