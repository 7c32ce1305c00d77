package catalog

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"printvault/pkg/domain"
)

func cellString(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func cellInt(v int) string { return strconv.Itoa(v) }

func cellFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func cellFloatPtr(p *float64) string {
	if p == nil {
		return ""
	}
	return cellFloat(*p)
}

func cellDatePtr(p *time.Time) string {
	if p == nil {
		return ""
	}
	return p.Format(time.DateOnly)
}

func cellList(s []string) string {
	if len(s) == 0 {
		return ""
	}
	b, _ := json.Marshal(s)
	return string(b)
}

func parseIntCell(col, v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", col, v)
	}
	return n, nil
}

func parseFloatCell(col, v string) (float64, error) {
	if v == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", col, v)
	}
	return f, nil
}

func parseFloatPtrCell(col, v string) (*float64, error) {
	if v == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q", col, v)
	}
	return &f, nil
}

func parseDatePtrCell(col, v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q", col, v)
	}
	return &t, nil
}

func parseListCell(col, v string) ([]string, error) {
	if v == "" {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(v), &out); err != nil {
		return nil, fmt.Errorf("invalid %s %q", col, v)
	}
	return out, nil
}

func enumOrDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func lookupDescriptor(t domain.EntityType, display, table string, make func() domain.Record, name func(domain.Record) *string) Descriptor {
	return Descriptor{
		Type:       t,
		Display:    display,
		Table:      table,
		NaturalKey: "name",
		Fields: []Field{
			{Column: "name", Kind: KindString, Required: true},
		},
		Encode: func(rec domain.Record) map[string]string {
			return map[string]string{"id": rec.RecordID(), "name": *name(rec)}
		},
		Decode: func(cells map[string]string, _ map[string]*string, _ map[string]*string) (domain.Record, error) {
			rec := make()
			*name(rec) = cells["name"]
			return rec, nil
		},
	}
}

func init() {
	register(lookupDescriptor(domain.EntityBrand, "Brand", "brands.csv",
		func() domain.Record { return &domain.Brand{} },
		func(r domain.Record) *string { return &r.(*domain.Brand).Name }))
	register(lookupDescriptor(domain.EntityPartType, "PartType", "part_types.csv",
		func() domain.Record { return &domain.PartType{} },
		func(r domain.Record) *string { return &r.(*domain.PartType).Name }))
	register(lookupDescriptor(domain.EntityLocation, "Location", "locations.csv",
		func() domain.Record { return &domain.Location{} },
		func(r domain.Record) *string { return &r.(*domain.Location).Name }))
	register(lookupDescriptor(domain.EntityVendor, "Vendor", "vendors.csv",
		func() domain.Record { return &domain.Vendor{} },
		func(r domain.Record) *string { return &r.(*domain.Vendor).Name }))
	register(lookupDescriptor(domain.EntityMaterialFeature, "MaterialFeature", "material_features.csv",
		func() domain.Record { return &domain.MaterialFeature{} },
		func(r domain.Record) *string { return &r.(*domain.MaterialFeature).Name }))

	register(Descriptor{
		Type:       domain.EntityMaterial,
		Display:    "Material",
		Table:      "materials.csv",
		NaturalKey: "id",
		Fields: []Field{
			{Column: "name", Kind: KindString, Required: true},
			{Column: "kind", Kind: KindEnum, Enum: []string{string(domain.MaterialBlueprint), string(domain.MaterialSpool)}, Default: string(domain.MaterialBlueprint)},
			{Column: "diameter", Kind: KindFloat},
			{Column: "colors", Kind: KindStringList},
		},
		Refs: []Ref{
			{Column: "brand", Target: domain.EntityBrand},
			{Column: "base_material", Target: domain.EntityMaterial},
		},
		Encode: func(rec domain.Record) map[string]string {
			m := rec.(*domain.Material)
			return map[string]string{
				"id":            m.ID,
				"name":          m.Name,
				"kind":          string(m.Kind),
				"diameter":      cellFloatPtr(m.Diameter),
				"colors":        cellList(m.Colors),
				"brand":         cellString(m.BrandID),
				"base_material": cellString(m.BaseMaterialID),
			}
		},
		Decode: func(cells map[string]string, refs map[string]*string, _ map[string]*string) (domain.Record, error) {
			diameter, err := parseFloatPtrCell("diameter", cells["diameter"])
			if err != nil {
				return nil, err
			}
			colors, err := parseListCell("colors", cells["colors"])
			if err != nil {
				return nil, err
			}
			return &domain.Material{
				Name:           cells["name"],
				Kind:           domain.MaterialKind(enumOrDefault(cells["kind"], string(domain.MaterialBlueprint))),
				BrandID:        refs["brand"],
				BaseMaterialID: refs["base_material"],
				Diameter:       diameter,
				Colors:         colors,
			}, nil
		},
	})

	register(Descriptor{
		Type:       domain.EntityMaterialFeatureLink,
		Display:    "MaterialFeatureLink",
		Table:      "material_feature_links.csv",
		NaturalKey: "id",
		Refs: []Ref{
			{Column: "material", Target: domain.EntityMaterial, Required: true},
			{Column: "feature", Target: domain.EntityMaterialFeature, Required: true},
		},
		Encode: func(rec domain.Record) map[string]string {
			l := rec.(*domain.MaterialFeatureLink)
			return map[string]string{
				"id":       l.ID,
				"material": l.MaterialID,
				"feature":  l.FeatureID,
			}
		},
		Decode: func(_ map[string]string, refs map[string]*string, _ map[string]*string) (domain.Record, error) {
			return &domain.MaterialFeatureLink{
				MaterialID: cellString(refs["material"]),
				FeatureID:  cellString(refs["feature"]),
			}, nil
		},
	})

	register(Descriptor{
		Type:       domain.EntityInventoryItem,
		Display:    "InventoryItem",
		Table:      "inventory_items.csv",
		NaturalKey: "id",
		Fields: []Field{
			{Column: "title", Kind: KindString, Required: true},
			{Column: "quantity", Kind: KindInt},
			{Column: "cost", Kind: KindFloat},
			{Column: "notes", Kind: KindString},
		},
		Refs: []Ref{
			{Column: "brand", Target: domain.EntityBrand},
			{Column: "part_type", Target: domain.EntityPartType},
			{Column: "location", Target: domain.EntityLocation},
			{Column: "vendor", Target: domain.EntityVendor},
		},
		Media: []MediaField{{Column: "photo"}},
		Encode: func(rec domain.Record) map[string]string {
			i := rec.(*domain.InventoryItem)
			return map[string]string{
				"id":        i.ID,
				"title":     i.Title,
				"quantity":  cellInt(i.Quantity),
				"cost":      cellFloat(i.Cost),
				"notes":     i.Notes,
				"brand":     cellString(i.BrandID),
				"part_type": cellString(i.PartTypeID),
				"location":  cellString(i.LocationID),
				"vendor":    cellString(i.VendorID),
				"photo":     cellString(i.PhotoPath),
			}
		},
		Decode: func(cells map[string]string, refs map[string]*string, media map[string]*string) (domain.Record, error) {
			qty, err := parseIntCell("quantity", cells["quantity"])
			if err != nil {
				return nil, err
			}
			cost, err := parseFloatCell("cost", cells["cost"])
			if err != nil {
				return nil, err
			}
			return &domain.InventoryItem{
				Title:      cells["title"],
				Quantity:   qty,
				Cost:       cost,
				Notes:      cells["notes"],
				BrandID:    refs["brand"],
				PartTypeID: refs["part_type"],
				LocationID: refs["location"],
				VendorID:   refs["vendor"],
				PhotoPath:  media["photo"],
			}, nil
		},
		SetMedia: func(rec domain.Record, column string, value *string) error {
			if column != "photo" {
				return fmt.Errorf("inventory_item: unknown media column %q", column)
			}
			rec.(*domain.InventoryItem).PhotoPath = value
			return nil
		},
	})

	register(Descriptor{
		Type:       domain.EntityPrinter,
		Display:    "Printer",
		Table:      "printers.csv",
		NaturalKey: "id",
		Fields: []Field{
			{Column: "title", Kind: KindString, Required: true},
			{Column: "primary_filament", Kind: KindString},
			{Column: "accent_filament", Kind: KindString},
			{Column: "last_maintenance", Kind: KindDate},
			{Column: "next_maintenance", Kind: KindDate},
			{Column: "notes", Kind: KindString},
		},
		Refs: []Ref{
			{Column: "manufacturer", Target: domain.EntityBrand},
			{Column: "primary_material", Target: domain.EntityMaterial},
			{Column: "accent_material", Target: domain.EntityMaterial},
		},
		Encode: func(rec domain.Record) map[string]string {
			p := rec.(*domain.Printer)
			return map[string]string{
				"id":               p.ID,
				"title":            p.Title,
				"primary_filament": p.PrimaryFilament,
				"accent_filament":  p.AccentFilament,
				"last_maintenance": cellDatePtr(p.LastMaintenance),
				"next_maintenance": cellDatePtr(p.NextMaintenance),
				"notes":            p.Notes,
				"manufacturer":     cellString(p.ManufacturerID),
				"primary_material": cellString(p.PrimaryMaterialID),
				"accent_material":  cellString(p.AccentMaterialID),
			}
		},
		Decode: func(cells map[string]string, refs map[string]*string, _ map[string]*string) (domain.Record, error) {
			last, err := parseDatePtrCell("last_maintenance", cells["last_maintenance"])
			if err != nil {
				return nil, err
			}
			next, err := parseDatePtrCell("next_maintenance", cells["next_maintenance"])
			if err != nil {
				return nil, err
			}
			return &domain.Printer{
				Title:             cells["title"],
				PrimaryFilament:   cells["primary_filament"],
				AccentFilament:    cells["accent_filament"],
				LastMaintenance:   last,
				NextMaintenance:   next,
				Notes:             cells["notes"],
				ManufacturerID:    refs["manufacturer"],
				PrimaryMaterialID: refs["primary_material"],
				AccentMaterialID:  refs["accent_material"],
			}, nil
		},
	})

	register(Descriptor{
		Type:       domain.EntityMod,
		Display:    "Mod",
		Table:      "mods.csv",
		NaturalKey: "id",
		Fields: []Field{
			{Column: "name", Kind: KindString, Required: true},
			{Column: "status", Kind: KindEnum, Enum: []string{string(domain.ModPlanned), string(domain.ModInProgress), string(domain.ModComplete)}, Default: string(domain.ModPlanned)},
		},
		Refs: []Ref{
			{Column: "printer", Target: domain.EntityPrinter, Required: true},
		},
		Encode: func(rec domain.Record) map[string]string {
			m := rec.(*domain.Mod)
			return map[string]string{
				"id":      m.ID,
				"name":    m.Name,
				"status":  string(m.Status),
				"printer": m.PrinterID,
			}
		},
		Decode: func(cells map[string]string, refs map[string]*string, _ map[string]*string) (domain.Record, error) {
			return &domain.Mod{
				Name:      cells["name"],
				Status:    domain.ModStatus(enumOrDefault(cells["status"], string(domain.ModPlanned))),
				PrinterID: cellString(refs["printer"]),
			}, nil
		},
	})

	register(Descriptor{
		Type:       domain.EntityModFile,
		Display:    "ModFile",
		Table:      "mod_files.csv",
		NaturalKey: "id",
		Fields: []Field{
			{Column: "name", Kind: KindString, Required: true},
		},
		Refs: []Ref{
			{Column: "mod", Target: domain.EntityMod, Required: true},
		},
		Media: []MediaField{{Column: "file"}},
		Encode: func(rec domain.Record) map[string]string {
			f := rec.(*domain.ModFile)
			return map[string]string{
				"id":   f.ID,
				"name": f.Name,
				"mod":  f.ModID,
				"file": cellString(f.FilePath),
			}
		},
		Decode: func(cells map[string]string, refs map[string]*string, media map[string]*string) (domain.Record, error) {
			return &domain.ModFile{
				Name:     cells["name"],
				ModID:    cellString(refs["mod"]),
				FilePath: media["file"],
			}, nil
		},
		SetMedia: func(rec domain.Record, column string, value *string) error {
			if column != "file" {
				return fmt.Errorf("mod_file: unknown media column %q", column)
			}
			rec.(*domain.ModFile).FilePath = value
			return nil
		},
	})

	register(Descriptor{
		Type:       domain.EntityProject,
		Display:    "Project",
		Table:      "projects.csv",
		NaturalKey: "id",
		Fields: []Field{
			{Column: "name", Kind: KindString, Required: true},
			{Column: "status", Kind: KindEnum, Enum: []string{string(domain.ProjectPlanned), string(domain.ProjectInProgress), string(domain.ProjectCompleted), string(domain.ProjectOnHold)}, Default: string(domain.ProjectPlanned)},
			{Column: "notes", Kind: KindString},
		},
		Encode: func(rec domain.Record) map[string]string {
			p := rec.(*domain.Project)
			return map[string]string{
				"id":     p.ID,
				"name":   p.Name,
				"status": string(p.Status),
				"notes":  p.Notes,
			}
		},
		Decode: func(cells map[string]string, _ map[string]*string, _ map[string]*string) (domain.Record, error) {
			return &domain.Project{
				Name:   cells["name"],
				Status: domain.ProjectStatus(enumOrDefault(cells["status"], string(domain.ProjectPlanned))),
				Notes:  cells["notes"],
			}, nil
		},
	})

	register(Descriptor{
		Type:       domain.EntityProjectMaterial,
		Display:    "ProjectMaterial",
		Table:      "project_materials.csv",
		NaturalKey: "id",
		Fields: []Field{
			{Column: "custom", Kind: KindString},
		},
		Refs: []Ref{
			{Column: "project", Target: domain.EntityProject, Required: true},
			{Column: "material", Target: domain.EntityMaterial},
		},
		Encode: func(rec domain.Record) map[string]string {
			m := rec.(*domain.ProjectMaterial)
			return map[string]string{
				"id":       m.ID,
				"custom":   m.Custom,
				"project":  m.ProjectID,
				"material": cellString(m.MaterialID),
			}
		},
		Decode: func(cells map[string]string, refs map[string]*string, _ map[string]*string) (domain.Record, error) {
			if refs["material"] == nil && cells["custom"] == "" {
				return nil, fmt.Errorf("needs a material reference or custom text")
			}
			return &domain.ProjectMaterial{
				Custom:     cells["custom"],
				ProjectID:  cellString(refs["project"]),
				MaterialID: refs["material"],
			}, nil
		},
	})

	register(Descriptor{
		Type:       domain.EntityProjectLink,
		Display:    "ProjectLink",
		Table:      "project_links.csv",
		NaturalKey: "id",
		Fields: []Field{
			{Column: "title", Kind: KindString, Required: true},
			{Column: "url", Kind: KindString, Required: true},
		},
		Refs: []Ref{
			{Column: "project", Target: domain.EntityProject, Required: true},
		},
		Encode: func(rec domain.Record) map[string]string {
			l := rec.(*domain.ProjectLink)
			return map[string]string{
				"id":      l.ID,
				"title":   l.Title,
				"url":     l.URL,
				"project": l.ProjectID,
			}
		},
		Decode: func(cells map[string]string, refs map[string]*string, _ map[string]*string) (domain.Record, error) {
			return &domain.ProjectLink{
				Title:     cells["title"],
				URL:       cells["url"],
				ProjectID: cellString(refs["project"]),
			}, nil
		},
	})

	register(Descriptor{
		Type:       domain.EntityProjectFile,
		Display:    "ProjectFile",
		Table:      "project_files.csv",
		NaturalKey: "id",
		Fields: []Field{
			{Column: "name", Kind: KindString, Required: true},
		},
		Refs: []Ref{
			{Column: "project", Target: domain.EntityProject, Required: true},
		},
		Media: []MediaField{{Column: "file"}},
		Encode: func(rec domain.Record) map[string]string {
			f := rec.(*domain.ProjectFile)
			return map[string]string{
				"id":      f.ID,
				"name":    f.Name,
				"project": f.ProjectID,
				"file":    cellString(f.FilePath),
			}
		},
		Decode: func(cells map[string]string, refs map[string]*string, media map[string]*string) (domain.Record, error) {
			return &domain.ProjectFile{
				Name:      cells["name"],
				ProjectID: cellString(refs["project"]),
				FilePath:  media["file"],
			}, nil
		},
		SetMedia: func(rec domain.Record, column string, value *string) error {
			if column != "file" {
				return fmt.Errorf("project_file: unknown media column %q", column)
			}
			rec.(*domain.ProjectFile).FilePath = value
			return nil
		},
	})

	register(Descriptor{
		Type:       domain.EntityProjectInventory,
		Display:    "ProjectInventory",
		Table:      "project_inventory.csv",
		NaturalKey: "id",
		Refs: []Ref{
			{Column: "project", Target: domain.EntityProject, Required: true},
			{Column: "item", Target: domain.EntityInventoryItem, Required: true},
		},
		Encode: func(rec domain.Record) map[string]string {
			j := rec.(*domain.ProjectInventory)
			return map[string]string{
				"id":      j.ID,
				"project": j.ProjectID,
				"item":    j.ItemID,
			}
		},
		Decode: func(_ map[string]string, refs map[string]*string, _ map[string]*string) (domain.Record, error) {
			return &domain.ProjectInventory{
				ProjectID: cellString(refs["project"]),
				ItemID:    cellString(refs["item"]),
			}, nil
		},
	})

	register(Descriptor{
		Type:       domain.EntityProjectPrinter,
		Display:    "ProjectPrinter",
		Table:      "project_printers.csv",
		NaturalKey: "id",
		Refs: []Ref{
			{Column: "project", Target: domain.EntityProject, Required: true},
			{Column: "printer", Target: domain.EntityPrinter, Required: true},
		},
		Encode: func(rec domain.Record) map[string]string {
			j := rec.(*domain.ProjectPrinter)
			return map[string]string{
				"id":      j.ID,
				"project": j.ProjectID,
				"printer": j.PrinterID,
			}
		},
		Decode: func(_ map[string]string, refs map[string]*string, _ map[string]*string) (domain.Record, error) {
			return &domain.ProjectPrinter{
				ProjectID: cellString(refs["project"]),
				PrinterID: cellString(refs["printer"]),
			}, nil
		},
	})

	register(Descriptor{
		Type:       domain.EntityTracker,
		Display:    "Tracker",
		Table:      "trackers.csv",
		NaturalKey: "id",
		Fields: []Field{
			{Column: "name", Kind: KindString, Required: true},
			{Column: "storage", Kind: KindEnum, Enum: []string{string(domain.TrackerStorageLink), string(domain.TrackerStorageLocal)}, Default: string(domain.TrackerStorageLink)},
		},
		Refs: []Ref{
			{Column: "project", Target: domain.EntityProject},
		},
		Encode: func(rec domain.Record) map[string]string {
			t := rec.(*domain.Tracker)
			return map[string]string{
				"id":      t.ID,
				"name":    t.Name,
				"storage": string(t.Storage),
				"project": cellString(t.ProjectID),
			}
		},
		Decode: func(cells map[string]string, refs map[string]*string, _ map[string]*string) (domain.Record, error) {
			return &domain.Tracker{
				Name:      cells["name"],
				Storage:   domain.TrackerStorage(enumOrDefault(cells["storage"], string(domain.TrackerStorageLink))),
				ProjectID: refs["project"],
			}, nil
		},
	})

	register(Descriptor{
		Type:       domain.EntityTrackerFile,
		Display:    "TrackerFile",
		Table:      "tracker_files.csv",
		NaturalKey: "id",
		Fields: []Field{
			{Column: "name", Kind: KindString, Required: true},
			{Column: "source_url", Kind: KindString},
			{Column: "category", Kind: KindString},
			{Column: "color", Kind: KindString},
			{Column: "material", Kind: KindString},
			{Column: "quantity", Kind: KindInt},
			{Column: "status", Kind: KindEnum, Enum: []string{string(domain.TrackerFileNotStarted), string(domain.TrackerFileInProgress), string(domain.TrackerFileCompleted)}, Default: string(domain.TrackerFileNotStarted)},
		},
		Refs: []Ref{
			{Column: "tracker", Target: domain.EntityTracker, Required: true},
		},
		Media: []MediaField{{Column: "file"}},
		Encode: func(rec domain.Record) map[string]string {
			f := rec.(*domain.TrackerFile)
			return map[string]string{
				"id":         f.ID,
				"name":       f.Name,
				"source_url": f.SourceURL,
				"category":   f.Category,
				"color":      f.Color,
				"material":   f.Material,
				"quantity":   cellInt(f.Quantity),
				"status":     string(f.Status),
				"tracker":    f.TrackerID,
				"file":       cellString(f.FilePath),
			}
		},
		Decode: func(cells map[string]string, refs map[string]*string, media map[string]*string) (domain.Record, error) {
			qty, err := parseIntCell("quantity", cells["quantity"])
			if err != nil {
				return nil, err
			}
			return &domain.TrackerFile{
				Name:      cells["name"],
				SourceURL: cells["source_url"],
				Category:  cells["category"],
				Color:     cells["color"],
				Material:  cells["material"],
				Quantity:  qty,
				Status:    domain.TrackerFileStatus(enumOrDefault(cells["status"], string(domain.TrackerFileNotStarted))),
				TrackerID: cellString(refs["tracker"]),
				FilePath:  media["file"],
			}, nil
		},
		SetMedia: func(rec domain.Record, column string, value *string) error {
			if column != "file" {
				return fmt.Errorf("tracker_file: unknown media column %q", column)
			}
			rec.(*domain.TrackerFile).FilePath = value
			return nil
		},
	})
}
