package main

import (
	"fmt"
	"go/format"
	"strings"
)

// generateCode renders the registration file for the analyzed entities and
// gofmt-formats it.
func generateCode(pkgName, registryFunc string, entities []entityModel) ([]byte, error) {
	if strings.TrimSpace(registryFunc) == "" {
		return nil, fmt.Errorf("registry function name must not be empty")
	}
	usesTime := false
	for _, ent := range entities {
		for _, s := range ent.Scalars {
			if strings.HasPrefix(s.Type, "time.") {
				usesTime = true
			}
		}
	}

	var b strings.Builder
	b.WriteString("// Code generated by internal/tools/descriptors/generate. DO NOT EDIT.\n\n")
	fmt.Fprintf(&b, "package %s\n\n", pkgName)
	if usesTime {
		b.WriteString("import (\n\t\"time\"\n\n\t\"trackable/pkg/track\"\n)\n\n")
	} else {
		b.WriteString("import \"trackable/pkg/track\"\n\n")
	}
	fmt.Fprintf(&b, "// %s builds a registry for the tracked entity kinds declared in\n", registryFunc)
	b.WriteString("// this package.\n")
	fmt.Fprintf(&b, "func %s() *track.Registry {\n", registryFunc)
	b.WriteString("\treg := track.NewRegistry()\n")
	for _, ent := range entities {
		writeDescriptor(&b, ent)
	}
	b.WriteString("\treturn reg\n")
	b.WriteString("}\n")

	formatted, err := format.Source([]byte(b.String()))
	if err != nil {
		return nil, fmt.Errorf("format generated code: %w", err)
	}
	return formatted, nil
}

func writeDescriptor(b *strings.Builder, ent entityModel) {
	b.WriteString("\treg.MustRegister(track.Descriptor{\n")
	fmt.Fprintf(b, "\t\tKind: %q,\n", ent.Kind)
	fmt.Fprintf(b, "\t\tNew:  func() track.Trackable { return %s },\n", ctorExpr(ent))
	if len(ent.Scalars) > 0 {
		b.WriteString("\t\tScalars: []track.ScalarProperty{\n")
		for _, s := range ent.Scalars {
			writeScalar(b, ent.TypeName, s)
		}
		b.WriteString("\t\t},\n")
	}
	if len(ent.References) > 0 {
		b.WriteString("\t\tReferences: []track.ReferenceProperty{\n")
		for _, r := range ent.References {
			writeReference(b, ent.TypeName, r)
		}
		b.WriteString("\t\t},\n")
	}
	if len(ent.Collections) > 0 {
		b.WriteString("\t\tCollections: []track.CollectionProperty{\n")
		for _, c := range ent.Collections {
			writeCollection(b, ent.TypeName, c)
		}
		b.WriteString("\t\t},\n")
	}
	b.WriteString("\t})\n")
}

func ctorExpr(ent entityModel) string {
	if ent.Ctor != "" {
		return ent.Ctor + "()"
	}
	if len(ent.Collections) == 0 {
		return "&" + ent.TypeName + "{}"
	}
	inits := make([]string, 0, len(ent.Collections))
	for _, c := range ent.Collections {
		inits = append(inits, fmt.Sprintf("%s: track.NewCollection(%q)", c.Field, c.Kind))
	}
	return fmt.Sprintf("&%s{%s}", ent.TypeName, strings.Join(inits, ", "))
}

func writeScalar(b *strings.Builder, typeName string, s scalarModel) {
	b.WriteString("\t\t\t{\n")
	fmt.Fprintf(b, "\t\t\t\tName: %q,\n", s.Name)
	fmt.Fprintf(b, "\t\t\t\tGet:  func(e track.Trackable) any { return e.(*%s).%s },\n", typeName, s.Field)
	if s.Setter != "" {
		fmt.Fprintf(b, "\t\t\t\tSet:  func(e track.Trackable, v any) { e.(*%s).%s(v.(%s)) },\n", typeName, s.Setter, s.Type)
	} else {
		fmt.Fprintf(b, "\t\t\t\tSet:  func(e track.Trackable, v any) { e.(*%s).%s = v.(%s) },\n", typeName, s.Field, s.Type)
	}
	b.WriteString("\t\t\t},\n")
}

func writeReference(b *strings.Builder, typeName string, r referenceModel) {
	recv := receiverVar(typeName)
	b.WriteString("\t\t\t{\n")
	fmt.Fprintf(b, "\t\t\t\tName: %q,\n", r.Name)
	fmt.Fprintf(b, "\t\t\t\tKind: %q,\n", r.Kind)
	b.WriteString("\t\t\t\tGet: func(e track.Trackable) track.Trackable {\n")
	fmt.Fprintf(b, "\t\t\t\t\t%s := e.(*%s)\n", recv, typeName)
	fmt.Fprintf(b, "\t\t\t\t\tif %s.%s == nil {\n", recv, r.Field)
	b.WriteString("\t\t\t\t\t\treturn nil\n")
	b.WriteString("\t\t\t\t\t}\n")
	fmt.Fprintf(b, "\t\t\t\t\treturn %s.%s\n", recv, r.Field)
	b.WriteString("\t\t\t\t},\n")
	b.WriteString("\t\t\t\tSet: func(e track.Trackable, v track.Trackable) {\n")
	fmt.Fprintf(b, "\t\t\t\t\t%s := e.(*%s)\n", recv, typeName)
	b.WriteString("\t\t\t\t\tif v == nil {\n")
	fmt.Fprintf(b, "\t\t\t\t\t\t%s.%s = nil\n", recv, r.Field)
	b.WriteString("\t\t\t\t\t\treturn\n")
	b.WriteString("\t\t\t\t\t}\n")
	fmt.Fprintf(b, "\t\t\t\t\t%s.%s = v.(*%s)\n", recv, r.Field, r.Type)
	b.WriteString("\t\t\t\t},\n")
	b.WriteString("\t\t\t},\n")
}

func writeCollection(b *strings.Builder, typeName string, c collectionModel) {
	b.WriteString("\t\t\t{\n")
	fmt.Fprintf(b, "\t\t\t\tName: %q,\n", c.Name)
	fmt.Fprintf(b, "\t\t\t\tKind: %q,\n", c.Kind)
	fmt.Fprintf(b, "\t\t\t\tGet:  func(e track.Trackable) *track.Collection { return e.(*%s).%s },\n", typeName, c.Field)
	b.WriteString("\t\t\t},\n")
}

// receiverVar picks the local variable name for reference closures, avoiding
// the closure parameter names.
func receiverVar(typeName string) string {
	r := strings.ToLower(typeName[:1])
	if r == "e" || r == "v" {
		return "x"
	}
	return r
}
