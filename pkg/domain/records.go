package domain

// clonePtr copies a pointer field so clones never alias the original.
func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s...)
}

// NewRecord returns a zero record of the given entity type. The second
// return is false for unknown types.
func NewRecord(t EntityType) (Record, bool) {
	switch t {
	case EntityBrand:
		return &Brand{}, true
	case EntityPartType:
		return &PartType{}, true
	case EntityLocation:
		return &Location{}, true
	case EntityVendor:
		return &Vendor{}, true
	case EntityMaterialFeature:
		return &MaterialFeature{}, true
	case EntityMaterial:
		return &Material{}, true
	case EntityMaterialFeatureLink:
		return &MaterialFeatureLink{}, true
	case EntityInventoryItem:
		return &InventoryItem{}, true
	case EntityPrinter:
		return &Printer{}, true
	case EntityMod:
		return &Mod{}, true
	case EntityModFile:
		return &ModFile{}, true
	case EntityProject:
		return &Project{}, true
	case EntityProjectMaterial:
		return &ProjectMaterial{}, true
	case EntityProjectLink:
		return &ProjectLink{}, true
	case EntityProjectFile:
		return &ProjectFile{}, true
	case EntityProjectInventory:
		return &ProjectInventory{}, true
	case EntityProjectPrinter:
		return &ProjectPrinter{}, true
	case EntityTracker:
		return &Tracker{}, true
	case EntityTrackerFile:
		return &TrackerFile{}, true
	default:
		return nil, false
	}
}

// EntityType implements Record.
func (b *Brand) EntityType() EntityType { return EntityBrand }

// RecordID implements Record.
func (b *Brand) RecordID() string { return b.ID }

// Meta implements Record.
func (b *Brand) Meta() *Base { return &b.Base }

// CloneRecord implements Record.
func (b *Brand) CloneRecord() Record {
	cp := *b
	return &cp
}

func (p *PartType) EntityType() EntityType { return EntityPartType }
func (p *PartType) RecordID() string       { return p.ID }
func (p *PartType) Meta() *Base            { return &p.Base }
func (p *PartType) CloneRecord() Record {
	cp := *p
	return &cp
}

func (l *Location) EntityType() EntityType { return EntityLocation }
func (l *Location) RecordID() string       { return l.ID }
func (l *Location) Meta() *Base            { return &l.Base }
func (l *Location) CloneRecord() Record {
	cp := *l
	return &cp
}

func (v *Vendor) EntityType() EntityType { return EntityVendor }
func (v *Vendor) RecordID() string       { return v.ID }
func (v *Vendor) Meta() *Base            { return &v.Base }
func (v *Vendor) CloneRecord() Record {
	cp := *v
	return &cp
}

func (f *MaterialFeature) EntityType() EntityType { return EntityMaterialFeature }
func (f *MaterialFeature) RecordID() string       { return f.ID }
func (f *MaterialFeature) Meta() *Base            { return &f.Base }
func (f *MaterialFeature) CloneRecord() Record {
	cp := *f
	return &cp
}

func (m *Material) EntityType() EntityType { return EntityMaterial }
func (m *Material) RecordID() string       { return m.ID }
func (m *Material) Meta() *Base            { return &m.Base }
func (m *Material) CloneRecord() Record {
	cp := *m
	cp.BrandID = clonePtr(m.BrandID)
	cp.BaseMaterialID = clonePtr(m.BaseMaterialID)
	cp.Diameter = clonePtr(m.Diameter)
	cp.Colors = cloneStrings(m.Colors)
	return &cp
}

func (l *MaterialFeatureLink) EntityType() EntityType { return EntityMaterialFeatureLink }
func (l *MaterialFeatureLink) RecordID() string       { return l.ID }
func (l *MaterialFeatureLink) Meta() *Base            { return &l.Base }
func (l *MaterialFeatureLink) CloneRecord() Record {
	cp := *l
	return &cp
}

func (i *InventoryItem) EntityType() EntityType { return EntityInventoryItem }
func (i *InventoryItem) RecordID() string       { return i.ID }
func (i *InventoryItem) Meta() *Base            { return &i.Base }
func (i *InventoryItem) CloneRecord() Record {
	cp := *i
	cp.BrandID = clonePtr(i.BrandID)
	cp.PartTypeID = clonePtr(i.PartTypeID)
	cp.LocationID = clonePtr(i.LocationID)
	cp.VendorID = clonePtr(i.VendorID)
	cp.PhotoPath = clonePtr(i.PhotoPath)
	return &cp
}

func (p *Printer) EntityType() EntityType { return EntityPrinter }
func (p *Printer) RecordID() string       { return p.ID }
func (p *Printer) Meta() *Base            { return &p.Base }
func (p *Printer) CloneRecord() Record {
	cp := *p
	cp.ManufacturerID = clonePtr(p.ManufacturerID)
	cp.PrimaryMaterialID = clonePtr(p.PrimaryMaterialID)
	cp.AccentMaterialID = clonePtr(p.AccentMaterialID)
	cp.LastMaintenance = clonePtr(p.LastMaintenance)
	cp.NextMaintenance = clonePtr(p.NextMaintenance)
	return &cp
}

func (m *Mod) EntityType() EntityType { return EntityMod }
func (m *Mod) RecordID() string       { return m.ID }
func (m *Mod) Meta() *Base            { return &m.Base }
func (m *Mod) CloneRecord() Record {
	cp := *m
	return &cp
}

func (f *ModFile) EntityType() EntityType { return EntityModFile }
func (f *ModFile) RecordID() string       { return f.ID }
func (f *ModFile) Meta() *Base            { return &f.Base }
func (f *ModFile) CloneRecord() Record {
	cp := *f
	cp.FilePath = clonePtr(f.FilePath)
	return &cp
}

func (p *Project) EntityType() EntityType { return EntityProject }
func (p *Project) RecordID() string       { return p.ID }
func (p *Project) Meta() *Base            { return &p.Base }
func (p *Project) CloneRecord() Record {
	cp := *p
	return &cp
}

func (m *ProjectMaterial) EntityType() EntityType { return EntityProjectMaterial }
func (m *ProjectMaterial) RecordID() string       { return m.ID }
func (m *ProjectMaterial) Meta() *Base            { return &m.Base }
func (m *ProjectMaterial) CloneRecord() Record {
	cp := *m
	cp.MaterialID = clonePtr(m.MaterialID)
	return &cp
}

func (l *ProjectLink) EntityType() EntityType { return EntityProjectLink }
func (l *ProjectLink) RecordID() string       { return l.ID }
func (l *ProjectLink) Meta() *Base            { return &l.Base }
func (l *ProjectLink) CloneRecord() Record {
	cp := *l
	return &cp
}

func (f *ProjectFile) EntityType() EntityType { return EntityProjectFile }
func (f *ProjectFile) RecordID() string       { return f.ID }
func (f *ProjectFile) Meta() *Base            { return &f.Base }
func (f *ProjectFile) CloneRecord() Record {
	cp := *f
	cp.FilePath = clonePtr(f.FilePath)
	return &cp
}

func (j *ProjectInventory) EntityType() EntityType { return EntityProjectInventory }
func (j *ProjectInventory) RecordID() string       { return j.ID }
func (j *ProjectInventory) Meta() *Base            { return &j.Base }
func (j *ProjectInventory) CloneRecord() Record {
	cp := *j
	return &cp
}

func (j *ProjectPrinter) EntityType() EntityType { return EntityProjectPrinter }
func (j *ProjectPrinter) RecordID() string       { return j.ID }
func (j *ProjectPrinter) Meta() *Base            { return &j.Base }
func (j *ProjectPrinter) CloneRecord() Record {
	cp := *j
	return &cp
}

func (t *Tracker) EntityType() EntityType { return EntityTracker }
func (t *Tracker) RecordID() string       { return t.ID }
func (t *Tracker) Meta() *Base            { return &t.Base }
func (t *Tracker) CloneRecord() Record {
	cp := *t
	cp.ProjectID = clonePtr(t.ProjectID)
	return &cp
}

func (f *TrackerFile) EntityType() EntityType { return EntityTrackerFile }
func (f *TrackerFile) RecordID() string       { return f.ID }
func (f *TrackerFile) Meta() *Base            { return &f.Base }
func (f *TrackerFile) CloneRecord() Record {
	cp := *f
	cp.FilePath = clonePtr(f.FilePath)
	return &cp
}
