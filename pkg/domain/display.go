package domain

// Display strings for user-facing surfaces. These live in lookup tables
// rather than on the enum values so the wire representation stays
// language-neutral.

var roleDisplayNames = map[Role]string{
	RoleResearcher: "博士生/实验员",
	RolePI:         "PI",
	RoleAdmin:      "管理员",
}

var capabilityDisplayNames = map[Capability]string{
	CapTaskComplete:             "完成任务",
	CapMoveAnimal:               "转笼并笼拆笼",
	CapUpdateAnimalStatus:       "更新个体状态",
	CapWriteAnimalEvent:         "记录个体事件",
	CapWriteAnimalAttachment:    "添加个体附件",
	CapBreedingWrite:            "繁育写操作",
	CapGenotypingWrite:          "分型写操作",
	CapCohortWrite:              "Cohort写操作",
	CapExperimentWrite:          "实验写操作",
	CapTaskManage:               "任务模板与升级规则",
	CapMasterDataEdit:           "主数据维护",
	CapCreateResources:          "创建笼位与个体",
	CapProtocolManage:           "协议管理",
	CapTrainingManage:           "培训资质管理",
	CapNotificationPolicyManage: "通知策略管理",
	CapSyncManage:               "同步与重试",
	CapImportExportManage:       "导入导出",
	CapRbacManage:               "权限矩阵管理",
}

var animalStatusDisplayNames = map[AnimalStatus]string{
	AnimalActive:       "在笼",
	AnimalBreeding:     "繁育中",
	AnimalInExperiment: "实验中",
	AnimalRetired:      "退役",
	AnimalDead:         "死亡",
}

var taskPriorityDisplayNames = map[TaskPriority]string{
	PriorityCritical: "关键",
	PriorityHigh:     "高",
	PriorityMedium:   "中",
	PriorityLow:      "低",
}

var sampleTypeDisplayNames = map[SampleType]string{
	SampleEar:   "耳组织",
	SampleTail:  "尾组织",
	SampleBlood: "血液",
}

var batchStatusDisplayNames = map[BatchStatus]string{
	BatchDraft:     "草稿",
	BatchSubmitted: "已送检",
	BatchCompleted: "已完成",
}

var experimentStatusDisplayNames = map[ExperimentStatus]string{
	ExperimentActive:   "进行中",
	ExperimentArchived: "已归档",
}

var severityDisplayNames = map[Severity]string{
	SeverityCritical: "关键",
	SeverityHigh:     "高",
	SeverityMedium:   "中",
	SeverityLow:      "低",
}

func displayOf[K comparable](table map[K]string, key K, fallback string) string {
	if name, ok := table[key]; ok {
		return name
	}
	return fallback
}

// DisplayName returns the role's user-facing name.
func (r Role) DisplayName() string { return displayOf(roleDisplayNames, r, string(r)) }

// DisplayName returns the capability's user-facing name.
func (c Capability) DisplayName() string { return displayOf(capabilityDisplayNames, c, string(c)) }

// DisplayName returns the status's user-facing name.
func (s AnimalStatus) DisplayName() string { return displayOf(animalStatusDisplayNames, s, string(s)) }

// DisplayName returns the priority's user-facing name.
func (p TaskPriority) DisplayName() string { return displayOf(taskPriorityDisplayNames, p, string(p)) }

// DisplayName returns the sample type's user-facing name.
func (t SampleType) DisplayName() string { return displayOf(sampleTypeDisplayNames, t, string(t)) }

// DisplayName returns the batch status's user-facing name.
func (b BatchStatus) DisplayName() string { return displayOf(batchStatusDisplayNames, b, string(b)) }

// DisplayName returns the experiment status's user-facing name.
func (e ExperimentStatus) DisplayName() string {
	return displayOf(experimentStatusDisplayNames, e, string(e))
}

// DisplayName returns the severity's user-facing name.
func (s Severity) DisplayName() string { return displayOf(severityDisplayNames, s, string(s)) }
