package core

import "printvault/pkg/domain"

type (
	EntityType          = domain.EntityType
	Severity            = domain.Severity
	Base                = domain.Base
	Record              = domain.Record
	Brand               = domain.Brand
	PartType            = domain.PartType
	Location            = domain.Location
	Vendor              = domain.Vendor
	MaterialFeature     = domain.MaterialFeature
	Material            = domain.Material
	MaterialFeatureLink = domain.MaterialFeatureLink
	InventoryItem       = domain.InventoryItem
	Printer             = domain.Printer
	Mod                 = domain.Mod
	ModFile             = domain.ModFile
	Project             = domain.Project
	ProjectMaterial     = domain.ProjectMaterial
	ProjectLink         = domain.ProjectLink
	ProjectFile         = domain.ProjectFile
	ProjectInventory    = domain.ProjectInventory
	ProjectPrinter      = domain.ProjectPrinter
	Tracker             = domain.Tracker
	TrackerFile         = domain.TrackerFile
	Change              = domain.Change
	Action              = domain.Action
	Violation           = domain.Violation
	Result              = domain.Result
	RuleViolationError  = domain.RuleViolationError
)

const (
	EntityBrand               = domain.EntityBrand
	EntityPartType            = domain.EntityPartType
	EntityLocation            = domain.EntityLocation
	EntityVendor              = domain.EntityVendor
	EntityMaterialFeature     = domain.EntityMaterialFeature
	EntityMaterial            = domain.EntityMaterial
	EntityMaterialFeatureLink = domain.EntityMaterialFeatureLink
	EntityInventoryItem       = domain.EntityInventoryItem
	EntityPrinter             = domain.EntityPrinter
	EntityMod                 = domain.EntityMod
	EntityModFile             = domain.EntityModFile
	EntityProject             = domain.EntityProject
	EntityProjectMaterial     = domain.EntityProjectMaterial
	EntityProjectLink         = domain.EntityProjectLink
	EntityProjectFile         = domain.EntityProjectFile
	EntityProjectInventory    = domain.EntityProjectInventory
	EntityProjectPrinter      = domain.EntityProjectPrinter
	EntityTracker             = domain.EntityTracker
	EntityTrackerFile         = domain.EntityTrackerFile
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)

const (
	ActionCreate = domain.ActionCreate
	ActionUpdate = domain.ActionUpdate
	ActionDelete = domain.ActionDelete
)
