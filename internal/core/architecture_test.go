package core

import (
	"testing"

	"mofgen/testutil"
)

func TestCoreDoesNotImportAdapters(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.AdapterImport, "adapters and commands depend on core, not the reverse")
}
