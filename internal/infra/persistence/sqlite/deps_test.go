package sqlite

import (
	"go/build"
	"strings"
	"testing"
)

var allowedEngineImports = map[string]struct{}{
	"trackable/pkg/track": {},
}

func TestImportsAreEngineOrStdlib(t *testing.T) {
	pkg, err := build.Default.ImportDir(".", 0)
	if err != nil {
		t.Fatalf("import dir: %v", err)
	}
	for _, imp := range pkg.Imports {
		if !strings.HasPrefix(imp, "trackable/") {
			continue
		}
		if _, ok := allowedEngineImports[imp]; ok {
			continue
		}
		t.Fatalf("unexpected dependency: %s", imp)
	}
}
