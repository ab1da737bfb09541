// Program descriptorsgenerate inspects the tracked entity structs of a target
// package and emits descriptor registration code for them.
//
// A struct participates when it embeds track.Tracking. Fields classify as:
// *track.Collection with a `kind` struct tag becomes a collection property,
// a pointer to another tracked struct of the same package becomes a reference
// property (kind derived from the type name unless a `kind` tag overrides it),
// and exported scalar fields become scalar properties named after their json
// tag. Fields tagged json:"-" that are not graph fields are skipped.
package main

import (
	"flag"
	"fmt"
	"go/types"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/tools/go/packages"
)

const trackImportPath = "trackable/pkg/track"

var exitFunc = os.Exit

type entityModel struct {
	TypeName    string
	Kind        string
	Ctor        string // New<Type> constructor when the package declares one
	Scalars     []scalarModel
	References  []referenceModel
	Collections []collectionModel
}

type scalarModel struct {
	Name   string
	Field  string
	Type   string // Go type expression used in the emitted assertion
	Setter string // recording setter method; empty means direct assignment
}

type referenceModel struct {
	Name  string
	Field string
	Kind  string
	Type  string // pointee type name
}

type collectionModel struct {
	Name  string
	Field string
	Kind  string
}

func main() {
	pkgPattern := flag.String("pkg", ".", "package pattern containing the tracked entity structs")
	outPath := flag.String("out", "descriptors_gen.go", "output file for the generated registration code")
	registryFunc := flag.String("registry-func", "BuildRegistry", "name of the emitted registry constructor")
	flag.Parse()

	pkg, err := loadTargetPackage(*pkgPattern)
	if err != nil {
		exitErr(err)
	}
	entities, err := analyze(pkg)
	if err != nil {
		exitErr(err)
	}
	code, err := generateCode(pkg.Name, *registryFunc, entities)
	if err != nil {
		exitErr(err)
	}
	if err := writeFile(*outPath, code); err != nil {
		exitErr(err)
	}
	fmt.Printf("generated %s from %s\n", *outPath, pkg.PkgPath)
}

func loadTargetPackage(pattern string) (*packages.Package, error) {
	cfg := &packages.Config{Mode: packages.NeedName | packages.NeedTypes | packages.NeedImports}
	pkgs, err := packages.Load(cfg, pattern)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", pattern, err)
	}
	if len(pkgs) != 1 {
		return nil, fmt.Errorf("pattern %s matched %d packages, want exactly one", pattern, len(pkgs))
	}
	pkg := pkgs[0]
	if len(pkg.Errors) > 0 {
		return nil, fmt.Errorf("load %s: %v", pattern, pkg.Errors[0])
	}
	if pkg.Types == nil {
		return nil, fmt.Errorf("load %s: no type information", pattern)
	}
	return pkg, nil
}

// analyze collects every exported struct embedding track.Tracking and
// classifies its fields, in lexical type-name order.
func analyze(pkg *packages.Package) ([]entityModel, error) {
	scope := pkg.Types.Scope()
	tracked := make(map[string]*types.Named)
	var names []string
	for _, name := range scope.Names() {
		tn, ok := scope.Lookup(name).(*types.TypeName)
		if !ok || !tn.Exported() || tn.IsAlias() {
			continue
		}
		named, ok := tn.Type().(*types.Named)
		if !ok {
			continue
		}
		st, ok := named.Underlying().(*types.Struct)
		if !ok || !embedsTracking(st) {
			continue
		}
		tracked[name] = named
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) == 0 {
		return nil, fmt.Errorf("package %s declares no structs embedding track.Tracking", pkg.PkgPath)
	}
	entities := make([]entityModel, 0, len(names))
	for _, name := range names {
		st := tracked[name].Underlying().(*types.Struct)
		ent, err := classifyStruct(name, st, tracked, scope)
		if err != nil {
			return nil, err
		}
		entities = append(entities, ent)
	}
	return entities, nil
}

func classifyStruct(name string, st *types.Struct, tracked map[string]*types.Named, scope *types.Scope) (entityModel, error) {
	ent := entityModel{TypeName: name, Kind: snakeCase(name)}
	for i := 0; i < st.NumFields(); i++ {
		f := st.Field(i)
		tag := reflect.StructTag(st.Tag(i))
		if f.Embedded() && isTrackType(f.Type(), "Tracking") {
			continue
		}
		if !f.Exported() {
			continue
		}
		switch {
		case isCollectionField(f.Type()):
			kind := tag.Get("kind")
			if kind == "" {
				return entityModel{}, fmt.Errorf("%s.%s: collection fields require a kind struct tag", name, f.Name())
			}
			ent.Collections = append(ent.Collections, collectionModel{
				Name:  propertyName(tag, f.Name()),
				Field: f.Name(),
				Kind:  kind,
			})
		case trackedPointee(f.Type(), tracked) != "":
			pointee := trackedPointee(f.Type(), tracked)
			kind := tag.Get("kind")
			if kind == "" {
				kind = snakeCase(pointee)
			}
			ent.References = append(ent.References, referenceModel{
				Name:  propertyName(tag, f.Name()),
				Field: f.Name(),
				Kind:  kind,
				Type:  pointee,
			})
		default:
			if jsonTagName(tag) == "-" {
				continue
			}
			typeExpr, ok := scalarTypeExpr(f.Type())
			if !ok {
				return entityModel{}, fmt.Errorf("%s.%s: unsupported field type %s", name, f.Name(), f.Type())
			}
			ent.Scalars = append(ent.Scalars, scalarModel{
				Name:   propertyName(tag, f.Name()),
				Field:  f.Name(),
				Type:   typeExpr,
				Setter: setterFor(tracked[name], f),
			})
		}
	}
	if obj := scope.Lookup("New" + name); obj != nil {
		if fn, ok := obj.(*types.Func); ok && ctorReturns(fn, tracked[name]) {
			ent.Ctor = "New" + name
		}
	}
	return ent, nil
}

func embedsTracking(st *types.Struct) bool {
	for i := 0; i < st.NumFields(); i++ {
		f := st.Field(i)
		if f.Embedded() && isTrackType(f.Type(), "Tracking") {
			return true
		}
	}
	return false
}

func isTrackType(t types.Type, name string) bool {
	named, ok := t.(*types.Named)
	if !ok {
		return false
	}
	obj := named.Obj()
	return obj.Name() == name && obj.Pkg() != nil && obj.Pkg().Path() == trackImportPath
}

func isCollectionField(t types.Type) bool {
	ptr, ok := t.(*types.Pointer)
	if !ok {
		return false
	}
	return isTrackType(ptr.Elem(), "Collection")
}

// trackedPointee returns the type name when t is a pointer to a tracked
// struct of the target package, and "" otherwise.
func trackedPointee(t types.Type, tracked map[string]*types.Named) string {
	ptr, ok := t.(*types.Pointer)
	if !ok {
		return ""
	}
	named, ok := ptr.Elem().(*types.Named)
	if !ok {
		return ""
	}
	if tracked[named.Obj().Name()] != named {
		return ""
	}
	return named.Obj().Name()
}

func scalarTypeExpr(t types.Type) (string, bool) {
	const scalarInfo = types.IsBoolean | types.IsInteger | types.IsFloat | types.IsString
	switch u := t.(type) {
	case *types.Basic:
		if u.Info()&scalarInfo != 0 {
			return u.Name(), true
		}
	case *types.Pointer:
		if b, ok := u.Elem().(*types.Basic); ok && b.Info()&scalarInfo != 0 {
			return "*" + b.Name(), true
		}
	case *types.Named:
		obj := u.Obj()
		if obj.Pkg() != nil && obj.Pkg().Path() == "time" && obj.Name() == "Time" {
			return "time.Time", true
		}
	}
	return "", false
}

// setterFor reports the Set<Field> method when it takes exactly the field's
// type, so the emitted Set closure records the change like handwritten code.
func setterFor(named *types.Named, f *types.Var) string {
	name := "Set" + f.Name()
	obj, _, _ := types.LookupFieldOrMethod(types.NewPointer(named), true, named.Obj().Pkg(), name)
	fn, ok := obj.(*types.Func)
	if !ok {
		return ""
	}
	sig, ok := fn.Type().(*types.Signature)
	if !ok || sig.Params().Len() != 1 || sig.Results().Len() != 0 {
		return ""
	}
	if !types.Identical(sig.Params().At(0).Type(), f.Type()) {
		return ""
	}
	return name
}

func ctorReturns(fn *types.Func, named *types.Named) bool {
	sig, ok := fn.Type().(*types.Signature)
	if !ok || sig.Params().Len() != 0 || sig.Results().Len() != 1 {
		return false
	}
	ptr, ok := sig.Results().At(0).Type().(*types.Pointer)
	return ok && types.Identical(ptr.Elem(), named)
}

func propertyName(tag reflect.StructTag, field string) string {
	if name := jsonTagName(tag); name != "" && name != "-" {
		return name
	}
	return snakeCase(field)
}

func jsonTagName(tag reflect.StructTag) string {
	v, ok := tag.Lookup("json")
	if !ok {
		return ""
	}
	return strings.Split(v, ",")[0]
}

func snakeCase(s string) string {
	var b strings.Builder
	rs := []rune(s)
	for i, r := range rs {
		if unicode.IsUpper(r) {
			if i > 0 && (unicode.IsLower(rs[i-1]) || unicode.IsDigit(rs[i-1]) || (i+1 < len(rs) && unicode.IsLower(rs[i+1]))) {
				b.WriteRune('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func writeFile(path string, data []byte) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("output path must not be empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}

func exitErr(err error) {
	if err == nil {
		return
	}
	fmt.Fprintln(os.Stderr, err)
	exitFunc(1)
}
