// Package schemadef loads declared schema models from YAML definition files.
//
// A definition file holds a set of tables and views in the form consumed by
// dialect/sql/schema:
//
//	schema: public
//	tables:
//	  - name: users
//	    columns:
//	      - name: id
//	        type: bigint
//	        primary: true
//	        generated: increment
//	      - name: email
//	        type: varchar
//	        length: 255
//	        unique: true
//	    indexes:
//	      - columns: [email]
//	views:
//	  - name: active_users
//	    definition: SELECT * FROM users WHERE deleted_at IS NULL
//
// Definitions may be split across several files in one directory; LoadDir
// reads them concurrently and merges the result.
package schemadef

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/syssam/strata/dialect/sql/schema"
)

// Definition is the declared schema model of one file or directory.
type Definition struct {
	// Schema is the default schema name applied to tables and views that
	// do not declare one.
	Schema string
	Tables []*schema.Table
	Views  []*schema.View
}

// Validate runs structural validation over the declared tables.
func (d *Definition) Validate() error {
	result := schema.ValidateSchema(d.Tables)
	if result.HasErrors() {
		return fmt.Errorf("schemadef: invalid definition:\n%s", result)
	}
	return nil
}

type fileDef struct {
	Schema string      `yaml:"schema"`
	Tables []*tableDef `yaml:"tables"`
	Views  []*viewDef  `yaml:"views"`
}

type tableDef struct {
	Name        string       `yaml:"name"`
	Schema      string       `yaml:"schema"`
	Comment     string       `yaml:"comment"`
	PKName      string       `yaml:"pk_name"`
	Columns     []*columnDef `yaml:"columns"`
	Indexes     []*indexDef  `yaml:"indexes"`
	Uniques     []*uniqueDef `yaml:"uniques"`
	Checks      []*checkDef  `yaml:"checks"`
	ForeignKeys []*fkDef     `yaml:"foreign_keys"`
}

type columnDef struct {
	Name          string   `yaml:"name"`
	Type          string   `yaml:"type"`
	Primary       bool     `yaml:"primary"`
	Nullable      bool     `yaml:"nullable"`
	Unique        bool     `yaml:"unique"`
	Length        string   `yaml:"length"`
	Precision     *int     `yaml:"precision"`
	Scale         *int     `yaml:"scale"`
	Default       *string  `yaml:"default"`
	Generated     string   `yaml:"generated"`
	GeneratedAs   string   `yaml:"generated_as"`
	GeneratedType string   `yaml:"generated_type"`
	Enums         []string `yaml:"enum"`
	EnumName      string   `yaml:"enum_name"`
	Charset       string   `yaml:"charset"`
	Collation     string   `yaml:"collation"`
	Comment       string   `yaml:"comment"`
}

type indexDef struct {
	Name    string   `yaml:"name"`
	Columns []string `yaml:"columns"`
	Unique  bool     `yaml:"unique"`
	Where   string   `yaml:"where"`
}

type uniqueDef struct {
	Name    string   `yaml:"name"`
	Columns []string `yaml:"columns"`
}

type checkDef struct {
	Name       string `yaml:"name"`
	Expression string `yaml:"expr"`
}

type fkDef struct {
	Name       string   `yaml:"name"`
	Columns    []string `yaml:"columns"`
	RefSchema  string   `yaml:"ref_schema"`
	RefTable   string   `yaml:"ref_table"`
	RefColumns []string `yaml:"ref_columns"`
	OnDelete   string   `yaml:"on_delete"`
	OnUpdate   string   `yaml:"on_update"`
	Deferrable string   `yaml:"deferrable"`
}

type viewDef struct {
	Name         string      `yaml:"name"`
	Schema       string      `yaml:"schema"`
	Definition   string      `yaml:"definition"`
	Materialized bool        `yaml:"materialized"`
	Indexes      []*indexDef `yaml:"indexes"`
}

// Load reads one YAML definition. Unknown fields are rejected so typos in
// definition files fail loudly instead of silently dropping a constraint.
func Load(r io.Reader) (*Definition, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var fd fileDef
	if err := dec.Decode(&fd); err != nil {
		if err == io.EOF {
			return &Definition{}, nil
		}
		return nil, fmt.Errorf("schemadef: decode: %w", err)
	}
	return convert(&fd)
}

// LoadFile reads the YAML definition at path.
func LoadFile(path string) (*Definition, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("schemadef: %w", err)
	}
	defer f.Close()
	def, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("schemadef: %s: %w", filepath.Base(path), err)
	}
	return def, nil
}

// LoadDir reads every .yaml/.yml file in dir (non-recursive) concurrently
// and merges the results. Table and view names must be unique across the
// whole directory; the merged order follows the lexical file order so that
// loads are deterministic.
func LoadDir(dir string) (*Definition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("schemadef: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch filepath.Ext(e.Name()) {
		case ".yaml", ".yml":
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)

	defs := make([]*Definition, len(paths))
	var g errgroup.Group
	for i, path := range paths {
		g.Go(func() error {
			def, err := LoadFile(path)
			if err != nil {
				return err
			}
			defs[i] = def
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return merge(defs)
}

// LoadFS is LoadDir over an fs.FS, for embedded definitions.
func LoadFS(fsys fs.FS, dir string) (*Definition, error) {
	var paths []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := fs.Glob(fsys, path.Join(dir, pattern))
		if err != nil {
			return nil, fmt.Errorf("schemadef: %w", err)
		}
		paths = append(paths, matches...)
	}
	sort.Strings(paths)

	defs := make([]*Definition, len(paths))
	var g errgroup.Group
	for i, path := range paths {
		g.Go(func() error {
			f, err := fsys.Open(path)
			if err != nil {
				return fmt.Errorf("schemadef: %w", err)
			}
			defer f.Close()
			def, err := Load(f)
			if err != nil {
				return fmt.Errorf("schemadef: %s: %w", filepath.Base(path), err)
			}
			defs[i] = def
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return merge(defs)
}

func merge(defs []*Definition) (*Definition, error) {
	merged := &Definition{}
	tables := make(map[string]bool)
	views := make(map[string]bool)
	for _, def := range defs {
		if def.Schema != "" {
			if merged.Schema != "" && merged.Schema != def.Schema {
				return nil, fmt.Errorf("schemadef: conflicting schema names %q and %q", merged.Schema, def.Schema)
			}
			merged.Schema = def.Schema
		}
		for _, t := range def.Tables {
			if tables[t.QualifiedName()] {
				return nil, fmt.Errorf("schemadef: table %q defined twice", t.QualifiedName())
			}
			tables[t.QualifiedName()] = true
			merged.Tables = append(merged.Tables, t)
		}
		for _, v := range def.Views {
			if views[v.QualifiedName()] {
				return nil, fmt.Errorf("schemadef: view %q defined twice", v.QualifiedName())
			}
			views[v.QualifiedName()] = true
			merged.Views = append(merged.Views, v)
		}
	}
	return merged, nil
}

func convert(fd *fileDef) (*Definition, error) {
	def := &Definition{Schema: fd.Schema}
	for _, td := range fd.Tables {
		t, err := convertTable(td, fd.Schema)
		if err != nil {
			return nil, err
		}
		def.Tables = append(def.Tables, t)
	}
	for _, vd := range fd.Views {
		if vd.Name == "" {
			return nil, fmt.Errorf("schemadef: view without a name")
		}
		if vd.Definition == "" {
			return nil, fmt.Errorf("schemadef: view %q without a definition", vd.Name)
		}
		v := schema.NewView(vd.Name, strings.TrimSpace(vd.Definition))
		v.Materialized = vd.Materialized
		v.Schema = vd.Schema
		if v.Schema == "" {
			v.Schema = fd.Schema
		}
		for _, id := range vd.Indexes {
			v.Indexes = append(v.Indexes, &schema.Index{
				Name:    id.Name,
				Columns: id.Columns,
				Unique:  id.Unique,
				Where:   id.Where,
			})
		}
		def.Views = append(def.Views, v)
	}
	return def, nil
}

func convertTable(td *tableDef, defaultSchema string) (*schema.Table, error) {
	if td.Name == "" {
		return nil, fmt.Errorf("schemadef: table without a name")
	}
	t := schema.NewTable(td.Name)
	t.Schema = td.Schema
	if t.Schema == "" {
		t.Schema = defaultSchema
	}
	t.Comment = td.Comment
	t.PKName = td.PKName
	if len(td.Columns) == 0 {
		return nil, fmt.Errorf("schemadef: table %q has no columns", td.Name)
	}
	for _, cd := range td.Columns {
		c, err := convertColumn(td.Name, cd)
		if err != nil {
			return nil, err
		}
		t.AddColumn(c)
	}
	for _, id := range td.Indexes {
		if len(id.Columns) == 0 {
			return nil, fmt.Errorf("schemadef: table %q: index %q has no columns", td.Name, id.Name)
		}
		t.Indexes = append(t.Indexes, &schema.Index{
			Name:    id.Name,
			Columns: id.Columns,
			Unique:  id.Unique,
			Where:   id.Where,
		})
	}
	for _, ud := range td.Uniques {
		if len(ud.Columns) == 0 {
			return nil, fmt.Errorf("schemadef: table %q: unique %q has no columns", td.Name, ud.Name)
		}
		t.AddUnique(ud.Name, ud.Columns)
	}
	for _, ck := range td.Checks {
		if ck.Expression == "" {
			return nil, fmt.Errorf("schemadef: table %q: check %q has no expression", td.Name, ck.Name)
		}
		t.AddCheck(ck.Name, ck.Expression)
	}
	for _, fd := range td.ForeignKeys {
		fk, err := convertForeignKey(td.Name, fd)
		if err != nil {
			return nil, err
		}
		t.AddForeignKey(fk)
	}
	return t, nil
}

func convertColumn(table string, cd *columnDef) (*schema.Column, error) {
	if cd.Name == "" {
		return nil, fmt.Errorf("schemadef: table %q: column without a name", table)
	}
	if cd.Type == "" && cd.GeneratedAs == "" {
		return nil, fmt.Errorf("schemadef: table %q: column %q without a type", table, cd.Name)
	}
	gen, err := generation(cd.Generated)
	if err != nil {
		return nil, fmt.Errorf("schemadef: table %q: column %q: %w", table, cd.Name, err)
	}
	gt, err := generatedType(cd.GeneratedType)
	if err != nil {
		return nil, fmt.Errorf("schemadef: table %q: column %q: %w", table, cd.Name, err)
	}
	if len(cd.Enums) > 0 && cd.EnumName == "" {
		cd.EnumName = table + "_" + cd.Name + "_enum"
	}
	return &schema.Column{
		Name:          cd.Name,
		Type:          cd.Type,
		Primary:       cd.Primary,
		Nullable:      cd.Nullable,
		Unique:        cd.Unique,
		Length:        cd.Length,
		Precision:     cd.Precision,
		Scale:         cd.Scale,
		Default:       cd.Default,
		Generated:     gen,
		GeneratedAs:   cd.GeneratedAs,
		GeneratedType: gt,
		Enums:         cd.Enums,
		EnumName:      cd.EnumName,
		Charset:       cd.Charset,
		Collation:     cd.Collation,
		Comment:       cd.Comment,
	}, nil
}

func convertForeignKey(table string, fd *fkDef) (*schema.ForeignKey, error) {
	if fd.RefTable == "" {
		return nil, fmt.Errorf("schemadef: table %q: foreign key %q without ref_table", table, fd.Name)
	}
	if len(fd.Columns) == 0 {
		return nil, fmt.Errorf("schemadef: table %q: foreign key %q without columns", table, fd.Name)
	}
	if len(fd.RefColumns) != 0 && len(fd.RefColumns) != len(fd.Columns) {
		return nil, fmt.Errorf("schemadef: table %q: foreign key %q: %d columns but %d ref_columns",
			table, fd.Name, len(fd.Columns), len(fd.RefColumns))
	}
	onDelete, err := refOption(fd.OnDelete)
	if err != nil {
		return nil, fmt.Errorf("schemadef: table %q: foreign key %q: on_delete: %w", table, fd.Name, err)
	}
	onUpdate, err := refOption(fd.OnUpdate)
	if err != nil {
		return nil, fmt.Errorf("schemadef: table %q: foreign key %q: on_update: %w", table, fd.Name, err)
	}
	deferrable, err := deferrableMode(fd.Deferrable)
	if err != nil {
		return nil, fmt.Errorf("schemadef: table %q: foreign key %q: %w", table, fd.Name, err)
	}
	return &schema.ForeignKey{
		Name:       fd.Name,
		Columns:    fd.Columns,
		RefSchema:  fd.RefSchema,
		RefTable:   fd.RefTable,
		RefColumns: fd.RefColumns,
		OnDelete:   onDelete,
		OnUpdate:   onUpdate,
		Deferrable: deferrable,
	}, nil
}

func generation(s string) (schema.Generation, error) {
	switch strings.ToLower(s) {
	case "":
		return schema.GenerationNone, nil
	case "increment":
		return schema.GenerationIncrement, nil
	case "uuid":
		return schema.GenerationUUID, nil
	case "identity":
		return schema.GenerationIdentity, nil
	default:
		return "", fmt.Errorf("unknown generation strategy %q", s)
	}
}

func generatedType(s string) (string, error) {
	switch strings.ToUpper(s) {
	case "":
		return "", nil
	case schema.GeneratedStored:
		return schema.GeneratedStored, nil
	case schema.GeneratedVirtual:
		return schema.GeneratedVirtual, nil
	default:
		return "", fmt.Errorf("unknown generated type %q", s)
	}
}

func refOption(s string) (schema.ReferenceOption, error) {
	switch strings.ToUpper(strings.ReplaceAll(s, "_", " ")) {
	case "":
		return "", nil
	case string(schema.NoAction):
		return schema.NoAction, nil
	case string(schema.Restrict):
		return schema.Restrict, nil
	case string(schema.Cascade):
		return schema.Cascade, nil
	case string(schema.SetNull):
		return schema.SetNull, nil
	case string(schema.SetDefault):
		return schema.SetDefault, nil
	default:
		return "", fmt.Errorf("unknown reference option %q", s)
	}
}

func deferrableMode(s string) (string, error) {
	switch strings.ToUpper(strings.ReplaceAll(s, "_", " ")) {
	case "":
		return "", nil
	case schema.DeferrableImmediate, "DEFERRABLE INITIALLY IMMEDIATE":
		return schema.DeferrableImmediate, nil
	case schema.DeferrableDeferred, "DEFERRABLE INITIALLY DEFERRED":
		return schema.DeferrableDeferred, nil
	default:
		return "", fmt.Errorf("unknown deferrable mode %q", s)
	}
}
