package colony

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SymbolTable maps token contract addresses to display tickers. It is an
// explicit non-exhaustive allow-list: an address with no entry renders as
// the raw address, which is not a failure.
type SymbolTable map[string]string

// DefaultSymbols returns the built-in token ticker table.
func DefaultSymbols() SymbolTable {
	return SymbolTable{
		"0x0dd7b8f3d1fa88FAbAa8a04A0c7B52FC35D4312c": "BLNY",
		"0x6B175474E89094C44Da98b954EedeAC495271d0F": "DAI",
	}
}

// LoadSymbols reads a token ticker table from a YAML file mapping token
// addresses to tickers, merged over the built-in defaults. File entries win
// on conflict.
func LoadSymbols(path string) (SymbolTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read token map %s: %w", path, err)
	}

	var fromFile map[string]string
	if err := yaml.Unmarshal(data, &fromFile); err != nil {
		return nil, fmt.Errorf("parse token map %s: %w", path, err)
	}

	table := DefaultSymbols()
	for addr, ticker := range fromFile {
		table[addr] = ticker
	}
	return table, nil
}

// Symbol returns the ticker for a token address, or the address itself when
// it has no entry.
func (t SymbolTable) Symbol(address string) string {
	if ticker, ok := t[address]; ok {
		return ticker
	}
	return address
}
