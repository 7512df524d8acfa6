package colony

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSymbols(t *testing.T) {
	table := DefaultSymbols()

	assert.Equal(t, "BLNY", table.Symbol("0x0dd7b8f3d1fa88FAbAa8a04A0c7B52FC35D4312c"))
	assert.Equal(t, "DAI", table.Symbol("0x6B175474E89094C44Da98b954EedeAC495271d0F"))
}

func TestSymbol_UnknownAddressPassesThrough(t *testing.T) {
	table := DefaultSymbols()

	addr := "0x4242424242424242424242424242424242424242"
	assert.Equal(t, addr, table.Symbol(addr))
}

func TestLoadSymbols(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.yaml")
	contents := `
"0x4242424242424242424242424242424242424242": CLNY
"0x6B175474E89094C44Da98b954EedeAC495271d0F": XDAI
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	table, err := LoadSymbols(path)
	require.NoError(t, err)

	// New entries merge in, file entries override defaults, untouched
	// defaults survive
	assert.Equal(t, "CLNY", table.Symbol("0x4242424242424242424242424242424242424242"))
	assert.Equal(t, "XDAI", table.Symbol("0x6B175474E89094C44Da98b954EedeAC495271d0F"))
	assert.Equal(t, "BLNY", table.Symbol("0x0dd7b8f3d1fa88FAbAa8a04A0c7B52FC35D4312c"))
}

func TestLoadSymbols_MissingFile(t *testing.T) {
	_, err := LoadSymbols(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestLoadSymbols_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.yaml")
	require.NoError(t, os.WriteFile(path, []byte("[not a map"), 0o644))

	_, err := LoadSymbols(path)
	require.Error(t, err)
}
