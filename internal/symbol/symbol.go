// Package symbol defines static instrument metadata and the trade-mode /
// margin-mode enums the engine needs to validate orders and price them.
package symbol

// CalcMode selects which margin/profit formula family a symbol uses.
type CalcMode int

const (
	CalcForex CalcMode = iota
	CalcForexNoLeverage
	CalcCFD
	CalcCFDIndex
	CalcCFDLeverage
	CalcFutures
)

// TradeMode restricts which directions may be opened on a symbol.
type TradeMode int

const (
	TradeFull TradeMode = iota
	TradeLongOnly
	TradeShortOnly
	TradeCloseOnly
	TradeDisabled
)

// Info is the static metadata for one tradable instrument, analogous to a
// live terminal's SYMBOL_INFO structure.
type Info struct {
	Name         string
	Digits       int
	TickSize     float64
	ContractSize float64
	VolumeMin    float64
	VolumeMax    float64
	VolumeStep   float64
	CalcMode     CalcMode
	TradeMode    TradeMode
	TradeTickValue float64
	TradeTickSize  float64
	StopsLevel   float64 // minimum SL/TP distance from current price, in price units
	BaseCurrency string
	QuoteCurrency string
	Leverage     float64 // overrides account leverage when > 0
	Group        string  // broker classification path, e.g. "Forex\\Majors"
}

// Catalog is a read-only mapping of symbol name to Info, built once at data
// load time and shared freely across strategies thereafter.
type Catalog struct {
	symbols map[string]Info
}

// NewCatalog builds a Catalog from the given symbol infos.
func NewCatalog(infos ...Info) *Catalog {
	c := &Catalog{symbols: make(map[string]Info, len(infos))}
	for _, info := range infos {
		c.symbols[info.Name] = info
	}
	return c
}

// Get returns the Info for name and whether it is known to the catalog.
func (c *Catalog) Get(name string) (Info, bool) {
	info, ok := c.symbols[name]
	return info, ok
}

// Names returns every known symbol name; order is unspecified.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.symbols))
	for name := range c.symbols {
		names = append(names, name)
	}
	return names
}

// Total returns the number of symbols in the catalog.
func (c *Catalog) Total() int { return len(c.symbols) }

// VolumeValid reports whether volume is within [VolumeMin, VolumeMax] and a
// multiple of VolumeStep within a small floating-point tolerance.
func (info Info) VolumeValid(volume float64) bool {
	if volume < info.VolumeMin-1e-9 || volume > info.VolumeMax+1e-9 {
		return false
	}
	if info.VolumeStep <= 0 {
		return true
	}
	steps := (volume - info.VolumeMin) / info.VolumeStep
	nearest := float64(int64(steps + 0.5))
	return abs(steps-nearest) < 1e-6
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
