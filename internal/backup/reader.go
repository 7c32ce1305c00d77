package backup

import (
	"archive/zip"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"slices"
	"strings"

	"printvault/internal/catalog"
	"printvault/pkg/domain"
)

// Archive is a validated, readable export archive. OpenArchive performs all
// structural checks up front; a non-nil Archive is safe to iterate without
// further shape errors, leaving only per-record semantic validation.
type Archive struct {
	manifest Manifest
	limits   Limits
	tables   map[domain.EntityType]*zip.File
	entities map[domain.EntityType]ManifestEntity
	media    []MediaFile
	mediaIdx map[string]int
	rows     map[domain.EntityType][]Row
}

// Row is one data row of an archive table.
type Row struct {
	// Num is the 1-based data row number, excluding the header.
	Num   int
	Cells map[string]string
}

// Key returns the row's portable identifier: the natural-key cell.
func (r Row) Key(desc catalog.Descriptor) string {
	return r.Cells[desc.NaturalKey]
}

// MediaFile is one media payload inside an archive.
type MediaFile struct {
	// Key is the archive path below media/, also the blob key the payload
	// was exported from: entity_type/record_id/filename.
	Key      string
	Type     domain.EntityType
	RecordID string
	Name     string
	Size     int64

	file *zip.File
	cap  int64
}

// Open returns the payload reader, capped at the archive's per-member limit.
func (m MediaFile) Open() (io.ReadCloser, error) {
	rc, err := m.file.Open()
	if err != nil {
		return nil, err
	}
	return &cappedReadCloser{rc: rc, remaining: m.cap, member: m.file.Name}, nil
}

// OpenArchive parses and structurally validates an export archive. Every
// failure is a StructuralError: the archive is rejected as a whole and
// nothing has been read beyond its header and member table.
func OpenArchive(r io.ReaderAt, size int64, limits Limits) (*Archive, error) {
	limits = limits.withDefaults()
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, structural("not a zip archive: %v", err)
	}
	if len(zr.File) > limits.MaxFiles {
		return nil, structural("archive has %d members, limit is %d", len(zr.File), limits.MaxFiles)
	}

	a := &Archive{
		limits:   limits,
		tables:   make(map[domain.EntityType]*zip.File),
		entities: make(map[domain.EntityType]ManifestEntity),
		mediaIdx: make(map[string]int),
		rows:     make(map[domain.EntityType][]Row),
	}

	var manifestFile *zip.File
	var total int64
	seen := make(map[string]bool, len(zr.File))
	var tableFiles []*zip.File
	var mediaFiles []*zip.File
	for _, f := range zr.File {
		name := f.Name
		isDir := strings.HasSuffix(name, "/")
		if err := checkMemberName(name, isDir); err != nil {
			return nil, err
		}
		if seen[name] {
			return nil, &StructuralError{Path: name, Reason: "duplicate member"}
		}
		seen[name] = true
		if isDir {
			continue
		}
		declared := int64(f.UncompressedSize64)
		if declared > limits.MaxFileBytes {
			return nil, &StructuralError{Path: name, Reason: fmt.Sprintf("member declares %d bytes, limit is %d", declared, limits.MaxFileBytes)}
		}
		total += declared
		if total > limits.MaxTotalBytes {
			return nil, structural("archive declares more than %d decompressed bytes", limits.MaxTotalBytes)
		}
		switch {
		case name == ManifestName:
			manifestFile = f
		case strings.HasPrefix(name, TablesPrefix):
			tableFiles = append(tableFiles, f)
		case strings.HasPrefix(name, MediaPrefix):
			mediaFiles = append(mediaFiles, f)
		default:
			return nil, &StructuralError{Path: name, Reason: "unexpected member"}
		}
	}

	if manifestFile == nil {
		return nil, structural("missing %s", ManifestName)
	}
	if err := a.readManifest(manifestFile); err != nil {
		return nil, err
	}
	if err := a.bindTables(tableFiles); err != nil {
		return nil, err
	}
	if err := a.bindMedia(mediaFiles); err != nil {
		return nil, err
	}
	return a, nil
}

// Manifest returns the parsed archive header.
func (a *Archive) Manifest() Manifest {
	return a.manifest
}

// Media lists the archive's media payloads in member order.
func (a *Archive) Media() []MediaFile {
	return a.media
}

// MediaByKey finds a media payload by its entity_type/record_id/filename key.
func (a *Archive) MediaByKey(key string) (MediaFile, bool) {
	i, ok := a.mediaIdx[key]
	if !ok {
		return MediaFile{}, false
	}
	return a.media[i], true
}

// TotalRows sums the manifest row counts across all tables.
func (a *Archive) TotalRows() int {
	n := 0
	for _, ent := range a.manifest.Entities {
		n += ent.Rows
	}
	return n
}

// Rows reads and caches one table. The header and row counts were declared
// in the manifest; any disagreement in the actual CSV is structural.
func (a *Archive) Rows(t domain.EntityType) ([]Row, error) {
	if rows, ok := a.rows[t]; ok {
		return rows, nil
	}
	desc, ok := catalog.Get(t)
	if !ok {
		return nil, structural("unknown entity type %q", t)
	}
	f := a.tables[t]
	ent := a.entities[t]
	rc, err := f.Open()
	if err != nil {
		return nil, &StructuralError{Path: f.Name, Reason: err.Error()}
	}
	defer func() { _ = rc.Close() }()

	rows, err := readTable(&cappedReadCloser{rc: rc, remaining: a.limits.MaxFileBytes, member: f.Name}, desc, ent, f.Name)
	if err != nil {
		return nil, err
	}
	a.rows[t] = rows
	return rows, nil
}

func readTable(r io.Reader, desc catalog.Descriptor, ent ManifestEntity, member string) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = false
	header, err := cr.Read()
	if err == io.EOF {
		return nil, &StructuralError{Path: member, Reason: "table has no header row"}
	}
	if err != nil {
		return nil, asStructural(err, member)
	}
	columns := desc.Columns()
	if !slices.Equal(header, columns) {
		return nil, &StructuralError{Path: member, Reason: "header does not match manifest columns"}
	}
	var rows []Row
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, asStructural(fmt.Errorf("malformed csv: %w", err), member)
		}
		cells := make(map[string]string, len(columns))
		for i, col := range columns {
			cells[col] = record[i]
		}
		rows = append(rows, Row{Num: len(rows) + 1, Cells: cells})
	}
	if len(rows) != ent.Rows {
		return nil, &StructuralError{Path: member, Reason: fmt.Sprintf("manifest declares %d rows, table has %d", ent.Rows, len(rows))}
	}
	return rows, nil
}

func (a *Archive) readManifest(f *zip.File) error {
	rc, err := f.Open()
	if err != nil {
		return &StructuralError{Path: f.Name, Reason: err.Error()}
	}
	defer func() { _ = rc.Close() }()
	data, err := io.ReadAll(&cappedReadCloser{rc: rc, remaining: a.limits.MaxFileBytes, member: f.Name})
	if err != nil {
		return asStructural(err, f.Name)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return &StructuralError{Path: f.Name, Reason: "malformed manifest: " + err.Error()}
	}
	if m.FormatVersion != FormatVersion {
		return structural("unsupported format version %d, this build reads version %d", m.FormatVersion, FormatVersion)
	}
	if m.Application != ApplicationName {
		return structural("archive was produced by %q, expected %q", m.Application, ApplicationName)
	}
	for _, ent := range m.Entities {
		t := domain.EntityType(ent.Type)
		desc, ok := catalog.Get(t)
		if !ok {
			return structural("manifest declares unknown entity type %q", ent.Type)
		}
		if _, dup := a.entities[t]; dup {
			return structural("manifest declares entity type %q twice", ent.Type)
		}
		if ent.Table != TablesPrefix+desc.Table {
			return structural("entity %s table is %q, expected %q", ent.Type, ent.Table, TablesPrefix+desc.Table)
		}
		if ent.NaturalKey != desc.NaturalKey {
			return structural("entity %s natural key is %q, expected %q", ent.Type, ent.NaturalKey, desc.NaturalKey)
		}
		if !slices.Equal(ent.Columns, desc.Columns()) {
			return structural("entity %s columns do not match this build", ent.Type)
		}
		if ent.Rows < 0 {
			return structural("entity %s declares negative row count", ent.Type)
		}
		a.entities[t] = ent
	}
	for _, desc := range catalog.Descriptors() {
		if _, ok := a.entities[desc.Type]; !ok {
			return structural("manifest is missing entity type %q", desc.Type)
		}
	}
	a.manifest = m
	return nil
}

func (a *Archive) bindTables(files []*zip.File) error {
	for _, f := range files {
		desc, ok := catalog.ByTable(strings.TrimPrefix(f.Name, TablesPrefix))
		if !ok {
			return &StructuralError{Path: f.Name, Reason: "table does not match any entity type"}
		}
		a.tables[desc.Type] = f
	}
	for t := range a.entities {
		if _, ok := a.tables[t]; !ok {
			return structural("archive is missing table for entity type %q", t)
		}
	}
	return nil
}

func (a *Archive) bindMedia(files []*zip.File) error {
	for _, f := range files {
		key := strings.TrimPrefix(f.Name, MediaPrefix)
		parts := strings.Split(key, "/")
		if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
			return &StructuralError{Path: f.Name, Reason: "media path must be entity_type/record_id/filename"}
		}
		t := domain.EntityType(parts[0])
		if _, ok := catalog.Get(t); !ok {
			return &StructuralError{Path: f.Name, Reason: fmt.Sprintf("unknown entity type %q", parts[0])}
		}
		if _, dup := a.mediaIdx[key]; dup {
			return &StructuralError{Path: f.Name, Reason: "duplicate media key"}
		}
		a.mediaIdx[key] = len(a.media)
		a.media = append(a.media, MediaFile{
			Key:      key,
			Type:     t,
			RecordID: parts[1],
			Name:     parts[2],
			Size:     int64(f.UncompressedSize64),
			file:     f,
			cap:      a.limits.MaxFileBytes,
		})
	}
	if len(a.media) != a.manifest.MediaFiles {
		return structural("manifest declares %d media files, archive has %d", a.manifest.MediaFiles, len(a.media))
	}
	return nil
}

// checkMemberName rejects member paths that could escape an extraction root
// or smuggle duplicate spellings: absolute paths, backslashes, traversal
// segments, and any path that does not survive Clean unchanged.
func checkMemberName(name string, isDir bool) error {
	if name == "" {
		return structural("empty member name")
	}
	if strings.Contains(name, `\`) {
		return &StructuralError{Path: name, Reason: "backslash in member path"}
	}
	if strings.HasPrefix(name, "/") {
		return &StructuralError{Path: name, Reason: "absolute member path"}
	}
	check := name
	if isDir {
		check = strings.TrimSuffix(name, "/")
	}
	if check == "" || path.Clean(check) != check {
		return &StructuralError{Path: name, Reason: "unnormalized member path"}
	}
	for _, seg := range strings.Split(check, "/") {
		if seg == ".." || seg == "." {
			return &StructuralError{Path: name, Reason: "path traversal in member path"}
		}
	}
	return nil
}

// asStructural passes StructuralErrors through and wraps anything else.
func asStructural(err error, member string) error {
	if IsStructural(err) {
		return err
	}
	return &StructuralError{Path: member, Reason: err.Error()}
}

// cappedReadCloser enforces the per-member decompression cap while reading.
// Declared sizes are checked before reading; this guards against members
// whose streams are longer than they declare.
type cappedReadCloser struct {
	rc        io.ReadCloser
	remaining int64
	member    string
}

func (c *cappedReadCloser) Read(p []byte) (int, error) {
	if c.remaining <= 0 {
		return 0, &StructuralError{Path: c.member, Reason: "decompressed member exceeds size limit"}
	}
	if int64(len(p)) > c.remaining {
		p = p[:c.remaining]
	}
	n, err := c.rc.Read(p)
	c.remaining -= int64(n)
	return n, err
}

func (c *cappedReadCloser) Close() error {
	return c.rc.Close()
}
