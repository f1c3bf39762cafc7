package core

import (
	"fmt"
	"strings"
	"time"

	"vivarium/pkg/domain"
)

// CreateAnimal registers a new animal in the target cage. The identifier is
// normalized to upper case and must be unique case-insensitively. Strain and
// genotype must pass the master-data whitelists, the cage must be active with
// room left, and a bound protocol must be usable.
func (s *Service) CreateAnimal(identifier string, sex domain.Sex, strain, genotype, cageId string, protocolId *string, operator string) domain.Outcome {
	return s.apply(domain.CapCreateResources, operator, "animal.create", func(next *domain.Snapshot, now time.Time) (audit, *syncMsg, domain.Outcome) {
		cleanIdentifier := strings.ToUpper(strings.TrimSpace(identifier))
		if cleanIdentifier == "" {
			return audit{}, nil, domain.Fail(domain.KindMalformedInput, "耳号/RFID 不能为空")
		}
		for _, a := range next.Animals {
			if strings.EqualFold(a.Identifier, cleanIdentifier) {
				return audit{}, nil, domain.Fail(domain.KindDuplicate, "耳号/RFID 已存在")
			}
		}
		cleanStrain := strings.TrimSpace(strain)
		if cleanStrain == "" {
			return audit{}, nil, domain.Fail(domain.KindMalformedInput, "品系不能为空")
		}
		if !next.StrainAllowed(cleanStrain) {
			return audit{}, nil, domain.Fail(domain.KindInvalidState, "品系不在主数据字典中")
		}
		cleanGenotype := strings.TrimSpace(genotype)
		if cleanGenotype == "" {
			return audit{}, nil, domain.Fail(domain.KindMalformedInput, "基因型不能为空")
		}
		if !next.GenotypeAllowed(cleanGenotype) {
			return audit{}, nil, domain.Fail(domain.KindInvalidState, "基因型不在模板字典中")
		}

		var targetCage domain.Cage
		found := false
		for _, c := range next.Cages {
			if strings.EqualFold(c.ID, cageId) {
				targetCage = c
				found = true
				break
			}
		}
		if !found {
			return audit{}, nil, domain.Fail(domain.KindNotFound, "目标笼不存在")
		}
		if targetCage.Status != domain.CageActive {
			return audit{}, nil, domain.Fail(domain.KindInvalidState, "目标笼非活跃状态")
		}
		if len(targetCage.AnimalIDs) >= targetCage.CapacityLimit {
			return audit{}, nil, domain.Fail(domain.KindCapacityExceeded, "目标笼容量不足")
		}

		normalizedProtocol := normalizeOptional(protocolId)
		if normalizedProtocol != nil {
			p, ok := next.FindProtocol(*normalizedProtocol)
			if !ok {
				return audit{}, nil, domain.Fail(domain.KindNotFound, "协议不存在")
			}
			if !p.Usable(now) {
				return audit{}, nil, domain.Fail(domain.KindProtocolInvalid, "协议不可用或已过期")
			}
		}

		animal := domain.Animal{
			ID:         s.ids.Next("A"),
			Identifier: cleanIdentifier,
			Sex:        sex,
			BornAt:     now,
			Strain:     cleanStrain,
			Genotype:   cleanGenotype,
			Status:     domain.AnimalActive,
			CageID:     targetCage.ID,
			ProtocolID: normalizedProtocol,
		}
		next.Animals = append([]domain.Animal{animal}, next.Animals...)
		for i := range next.Cages {
			if next.Cages[i].ID == targetCage.ID {
				next.Cages[i].AnimalIDs = append(next.Cages[i].AnimalIDs, animal.ID)
			}
		}

		a := audit{
			action:   "ANIMAL_CREATE",
			entity:   domain.EntityAnimal,
			entityID: animal.ID,
			summary:  fmt.Sprintf("创建个体 %s 并入笼 %s", animal.Identifier, targetCage.ID),
		}
		return a, &syncMsg{event: "animal.create", payload: "animal=" + animal.ID}, domain.Success()
	})
}

// UpdateAnimalStatus moves an animal along the status graph. Setting the
// current status again is a no-op success. Entering a breeding or experiment
// state requires a bound, usable protocol.
func (s *Service) UpdateAnimalStatus(animalId string, status domain.AnimalStatus, operator string) domain.Outcome {
	if a, ok := s.store.Snapshot().FindAnimal(animalId); ok && a.Status == status && s.granted(domain.CapUpdateAnimalStatus) {
		return domain.Success()
	}
	return s.apply(domain.CapUpdateAnimalStatus, operator, "animal.status", func(next *domain.Snapshot, now time.Time) (audit, *syncMsg, domain.Outcome) {
		animal, ok := next.FindAnimal(animalId)
		if !ok {
			return audit{}, nil, domain.Fail(domain.KindNotFound, "个体不存在")
		}
		if !domain.CanTransition(animal.Status, status) {
			return audit{}, nil, domain.Failf(domain.KindInvalidState, "状态流转不合法：%s -> %s", animal.Status.DisplayName(), status.DisplayName())
		}
		if status == domain.AnimalBreeding || status == domain.AnimalInExperiment {
			if animal.ProtocolID == nil {
				return audit{}, nil, domain.Fail(domain.KindProtocolInvalid, "关键状态变更需要绑定有效协议")
			}
			p, ok := next.FindProtocol(*animal.ProtocolID)
			if !ok {
				return audit{}, nil, domain.Fail(domain.KindNotFound, "协议不存在")
			}
			if !p.Usable(now) {
				return audit{}, nil, domain.Fail(domain.KindProtocolInvalid, "协议不可用或已过期，无法进入关键状态")
			}
		}

		for i := range next.Animals {
			if next.Animals[i].ID == animalId {
				next.Animals[i].Status = status
			}
		}

		a := audit{
			action:   "ANIMAL_STATUS_UPDATE",
			entity:   domain.EntityAnimal,
			entityID: animalId,
			summary:  fmt.Sprintf("%s 状态 %s -> %s", animal.Identifier, animal.Status.DisplayName(), status.DisplayName()),
			before:   map[string]string{"status": string(animal.Status)},
			after:    map[string]string{"status": string(status)},
		}
		return a, &syncMsg{event: "animal.status", payload: fmt.Sprintf("animal=%s status=%s", animalId, status)}, domain.Success()
	})
}

// AddAnimalEvent appends an observation to the animal's event log. Blank
// fields fall back to defaults and non-positive weights are dropped.
func (s *Service) AddAnimalEvent(animalId, eventType, note string, weightGram *float64, operator string) domain.Outcome {
	return s.apply(domain.CapWriteAnimalEvent, operator, "animal.event.add", func(next *domain.Snapshot, now time.Time) (audit, *syncMsg, domain.Outcome) {
		animal, ok := next.FindAnimal(animalId)
		if !ok {
			return audit{}, nil, domain.Fail(domain.KindNotFound, "个体不存在")
		}
		cleanType := strings.TrimSpace(eventType)
		if cleanType == "" {
			cleanType = "record"
		}
		cleanNote := strings.TrimSpace(note)
		if cleanNote == "" {
			cleanNote = "无备注"
		}
		var normalizedWeight *float64
		if weightGram != nil && *weightGram > 0 {
			w := *weightGram
			normalizedWeight = &w
		}
		event := domain.AnimalEvent{
			ID:         s.ids.Next("AEV-"),
			AnimalID:   animalId,
			EventType:  cleanType,
			Note:       cleanNote,
			WeightGram: normalizedWeight,
			CreatedAt:  now,
			Operator:   operator,
		}
		next.AnimalEvents = append([]domain.AnimalEvent{event}, next.AnimalEvents...)

		a := audit{
			action:   "ANIMAL_EVENT_ADD",
			entity:   domain.EntityAnimalEvent,
			entityID: event.ID,
			summary:  fmt.Sprintf("为 %s 新增事件 %s", animal.Identifier, cleanType),
		}
		return a, &syncMsg{event: "animal.event.add", payload: fmt.Sprintf("animal=%s event=%s", animalId, event.ID)}, domain.Success()
	})
}

// AddAnimalAttachment records a stored blob against the animal. The caller is
// expected to have written the blob already; blobKey references it.
func (s *Service) AddAnimalAttachment(animalId, label, blobKey, operator string) domain.Outcome {
	return s.apply(domain.CapWriteAnimalAttachment, operator, "animal.attachment.add", func(next *domain.Snapshot, now time.Time) (audit, *syncMsg, domain.Outcome) {
		animal, ok := next.FindAnimal(animalId)
		if !ok {
			return audit{}, nil, domain.Fail(domain.KindNotFound, "个体不存在")
		}
		cleanLabel := strings.TrimSpace(label)
		if cleanLabel == "" {
			return audit{}, nil, domain.Fail(domain.KindMalformedInput, "附件名称不能为空")
		}
		cleanKey := strings.TrimSpace(blobKey)
		if cleanKey == "" {
			return audit{}, nil, domain.Fail(domain.KindMalformedInput, "附件路径不能为空")
		}
		attachment := domain.AnimalAttachment{
			ID:        s.ids.Next("ATT-"),
			AnimalID:  animalId,
			Label:     cleanLabel,
			BlobKey:   cleanKey,
			CreatedAt: now,
			Operator:  operator,
		}
		next.Attachments = append([]domain.AnimalAttachment{attachment}, next.Attachments...)

		a := audit{
			action:   "ANIMAL_ATTACHMENT_ADD",
			entity:   domain.EntityAttachment,
			entityID: attachment.ID,
			summary:  fmt.Sprintf("为 %s 添加附件 %s", animal.Identifier, cleanLabel),
		}
		return a, &syncMsg{event: "animal.attachment.add", payload: fmt.Sprintf("animal=%s attachment=%s", animalId, attachment.ID)}, domain.Success()
	})
}

func normalizeOptional(value *string) *string {
	if value == nil {
		return nil
	}
	clean := strings.TrimSpace(*value)
	if clean == "" {
		return nil
	}
	return &clean
}
