// Package domain defines the core persistent entities, value types, and
// rule evaluation primitives used by printvault.
package domain

import "time"

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records, persistence
// buckets, and archive tables.
const (
	// EntityBrand identifies a manufacturer/brand lookup record.
	EntityBrand EntityType = "brand"
	// EntityPartType identifies a part type lookup record.
	EntityPartType EntityType = "part_type"
	// EntityLocation identifies a storage location lookup record.
	EntityLocation EntityType = "location"
	// EntityVendor identifies a vendor lookup record.
	EntityVendor EntityType = "vendor"
	// EntityMaterialFeature identifies a material feature lookup record.
	EntityMaterialFeature EntityType = "material_feature"
	// EntityMaterial identifies a material blueprint or spool record.
	EntityMaterial EntityType = "material"
	// EntityMaterialFeatureLink joins a material to one of its features.
	EntityMaterialFeatureLink EntityType = "material_feature_link"
	// EntityInventoryItem identifies a physical inventory item record.
	EntityInventoryItem EntityType = "inventory_item"
	// EntityPrinter identifies a printer record.
	EntityPrinter EntityType = "printer"
	// EntityMod identifies a printer modification record.
	EntityMod EntityType = "mod"
	// EntityModFile identifies a file attached to a printer mod.
	EntityModFile EntityType = "mod_file"
	// EntityProject identifies a project record.
	EntityProject EntityType = "project"
	// EntityProjectMaterial identifies a material requirement of a project.
	EntityProjectMaterial EntityType = "project_material"
	// EntityProjectLink identifies an external link attached to a project.
	EntityProjectLink EntityType = "project_link"
	// EntityProjectFile identifies a file attached to a project.
	EntityProjectFile EntityType = "project_file"
	// EntityProjectInventory joins a project to an inventory item.
	EntityProjectInventory EntityType = "project_inventory"
	// EntityProjectPrinter joins a project to a printer.
	EntityProjectPrinter EntityType = "project_printer"
	// EntityTracker identifies a print tracker record.
	EntityTracker EntityType = "tracker"
	// EntityTrackerFile identifies a file tracked by a print tracker.
	EntityTrackerFile EntityType = "tracker_file"
)

// EntityTypes returns every supported entity type in declaration order.
// Persistence buckets and the export catalog both iterate this list; the
// catalog additionally derives the dependency ordering from it.
func EntityTypes() []EntityType {
	return []EntityType{
		EntityBrand,
		EntityPartType,
		EntityLocation,
		EntityVendor,
		EntityMaterialFeature,
		EntityMaterial,
		EntityMaterialFeatureLink,
		EntityInventoryItem,
		EntityPrinter,
		EntityMod,
		EntityModFile,
		EntityProject,
		EntityProjectMaterial,
		EntityProjectLink,
		EntityProjectFile,
		EntityProjectInventory,
		EntityProjectPrinter,
		EntityTracker,
		EntityTrackerFile,
	}
}

// MaterialKind distinguishes reusable blueprints from physical spools.
type MaterialKind string

// Material kinds.
const (
	// MaterialBlueprint is a reusable material definition other records reference.
	MaterialBlueprint MaterialKind = "blueprint"
	// MaterialSpool is a physical spool on the shelf.
	MaterialSpool MaterialKind = "spool"
)

// ModStatus enumerates printer mod workflow states.
type ModStatus string

// Canonical mod statuses.
const (
	ModPlanned    ModStatus = "planned"
	ModInProgress ModStatus = "in_progress"
	ModComplete   ModStatus = "complete"
)

// ProjectStatus enumerates project workflow states.
type ProjectStatus string

// Canonical project statuses.
const (
	ProjectPlanned    ProjectStatus = "planned"
	ProjectInProgress ProjectStatus = "in_progress"
	ProjectCompleted  ProjectStatus = "completed"
	ProjectOnHold     ProjectStatus = "on_hold"
)

// TrackerStorage flags whether a tracker only links out to its sources or
// stores the files locally.
type TrackerStorage string

// Tracker storage modes.
const (
	TrackerStorageLink  TrackerStorage = "link"
	TrackerStorageLocal TrackerStorage = "local"
)

// TrackerFileStatus enumerates print completion states for a tracked file.
type TrackerFileStatus string

// Canonical tracker file statuses.
const (
	TrackerFileNotStarted TrackerFileStatus = "not_started"
	TrackerFileInProgress TrackerFileStatus = "in_progress"
	TrackerFileCompleted  TrackerFileStatus = "completed"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Base contains common fields for all domain records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Record is the contract every domain entity fulfills so that persistence,
// rules, and the backup engine can handle records generically. Entities
// implement it with pointer receivers; stores clone before sharing.
type Record interface {
	// EntityType reports which entity family the record belongs to.
	EntityType() EntityType
	// RecordID returns the record's internal identifier.
	RecordID() string
	// Meta exposes the mutable Base for stores to stamp IDs and timestamps.
	Meta() *Base
	// CloneRecord returns a deep copy detached from the receiver.
	CloneRecord() Record
}

// Brand is a filament or hardware manufacturer.
type Brand struct {
	Base
	Name string `json:"name"`
}

// PartType categorizes inventory items (nozzle, belt, bearing, ...).
type PartType struct {
	Base
	Name string `json:"name"`
}

// Location is a physical storage location.
type Location struct {
	Base
	Name string `json:"name"`
}

// Vendor is a seller inventory items were purchased from.
type Vendor struct {
	Base
	Name string `json:"name"`
}

// MaterialFeature is a property a material can carry (silk, glow, matte, ...).
type MaterialFeature struct {
	Base
	Name string `json:"name"`
}

// Material is either a reusable blueprint referenced by printers and
// projects, or a physical spool derived from a blueprint.
type Material struct {
	Base
	Name           string       `json:"name"`
	Kind           MaterialKind `json:"kind"`
	BrandID        *string      `json:"brand_id"`
	BaseMaterialID *string      `json:"base_material_id"`
	Diameter       *float64     `json:"diameter"`
	Colors         []string     `json:"colors"`
}

// MaterialFeatureLink joins a material to one feature.
type MaterialFeatureLink struct {
	Base
	MaterialID string `json:"material_id"`
	FeatureID  string `json:"feature_id"`
}

// InventoryItem is a physical part on the shelf.
type InventoryItem struct {
	Base
	Title      string  `json:"title"`
	BrandID    *string `json:"brand_id"`
	PartTypeID *string `json:"part_type_id"`
	LocationID *string `json:"location_id"`
	VendorID   *string `json:"vendor_id"`
	Quantity   int     `json:"quantity"`
	Cost       float64 `json:"cost"`
	Notes      string  `json:"notes"`
	PhotoPath  *string `json:"photo_path"`
}

// Printer is a tracked 3D printer. Filament slots carry free text plus an
// optional reference to a material blueprint; either side may be empty.
type Printer struct {
	Base
	Title             string     `json:"title"`
	ManufacturerID    *string    `json:"manufacturer_id"`
	PrimaryFilament   string     `json:"primary_filament"`
	PrimaryMaterialID *string    `json:"primary_material_id"`
	AccentFilament    string     `json:"accent_filament"`
	AccentMaterialID  *string    `json:"accent_material_id"`
	LastMaintenance   *time.Time `json:"last_maintenance"`
	NextMaintenance   *time.Time `json:"next_maintenance"`
	Notes             string     `json:"notes"`
}

// Mod is a modification applied to a printer.
type Mod struct {
	Base
	PrinterID string    `json:"printer_id"`
	Name      string    `json:"name"`
	Status    ModStatus `json:"status"`
}

// ModFile is a file attached to a printer mod.
type ModFile struct {
	Base
	ModID    string  `json:"mod_id"`
	Name     string  `json:"name"`
	FilePath *string `json:"file_path"`
}

// Project is a print project.
type Project struct {
	Base
	Name   string        `json:"name"`
	Status ProjectStatus `json:"status"`
	Notes  string        `json:"notes"`
}

// ProjectMaterial records one material a project needs, either as a
// blueprint reference or as free text.
type ProjectMaterial struct {
	Base
	ProjectID  string  `json:"project_id"`
	MaterialID *string `json:"material_id"`
	Custom     string  `json:"custom"`
}

// ProjectLink is an external reference attached to a project.
type ProjectLink struct {
	Base
	ProjectID string `json:"project_id"`
	Title     string `json:"title"`
	URL       string `json:"url"`
}

// ProjectFile is a file attached to a project.
type ProjectFile struct {
	Base
	ProjectID string  `json:"project_id"`
	Name      string  `json:"name"`
	FilePath  *string `json:"file_path"`
}

// ProjectInventory joins a project to an inventory item it uses.
type ProjectInventory struct {
	Base
	ProjectID string `json:"project_id"`
	ItemID    string `json:"item_id"`
}

// ProjectPrinter joins a project to a printer it runs on.
type ProjectPrinter struct {
	Base
	ProjectID string `json:"project_id"`
	PrinterID string `json:"printer_id"`
}

// Tracker follows a set of printable files, optionally bound to a project.
type Tracker struct {
	Base
	Name      string         `json:"name"`
	ProjectID *string        `json:"project_id"`
	Storage   TrackerStorage `json:"storage"`
}

// TrackerFile is one printable file followed by a tracker. FilePath is set
// only for trackers with local storage.
type TrackerFile struct {
	Base
	TrackerID string            `json:"tracker_id"`
	Name      string            `json:"name"`
	SourceURL string            `json:"source_url"`
	Category  string            `json:"category"`
	Color     string            `json:"color"`
	Material  string            `json:"material"`
	Quantity  int               `json:"quantity"`
	Status    TrackerFileStatus `json:"status"`
	FilePath  *string           `json:"file_path"`
}

// Change captures a single entity mutation applied inside a transaction.
// Before and After hold record clones; Before is nil for creates and After
// is nil for deletes.
type Change struct {
	Entity EntityType
	Action Action
	Before Record
	After  Record
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported mutations captured per transaction.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	return "transaction blocked by rules"
}
