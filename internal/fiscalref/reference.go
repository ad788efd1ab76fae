// Package fiscalref holds the hand-maintained fiscal reference constants
// written by the calibration pipeline. The values are published figures
// (IMF GFS/WEO, national debt bulletins) that are refreshed by hand; a YAML
// file can override or extend the built-in book without a rebuild.
package fiscalref

// Reference is the fiscal block for one country
type Reference struct {
	// AlphaT: non-social-security transfers plus social benefits, share of GDP
	AlphaT float64 `yaml:"alpha_t" json:"alpha_t"`
	// AlphaG: total government expenditure, share of GDP
	AlphaG float64 `yaml:"alpha_g" json:"alpha_g"`
	// InitialDebtRatio: gross general government debt, share of GDP
	InitialDebtRatio float64 `yaml:"initial_debt_ratio" json:"initial_debt_ratio"`
	// InitialForeignDebtRatio: external share of total public debt
	InitialForeignDebtRatio float64 `yaml:"initial_foreign_debt_ratio" json:"initial_foreign_debt_ratio"`
	// ZetaD: share of new debt issues purchased by foreign creditors
	ZetaD float64 `yaml:"zeta_d" json:"zeta_d"`

	AsOf    string   `yaml:"as_of" json:"as_of"`
	Sources []string `yaml:"sources,omitempty" json:"sources,omitempty"`
}

// Ethiopia 2023/24 reference values.
const (
	// IMF GFS G271_T 2023 = 3.38% of GDP, plus social benefits of 1.6% of GDP
	EthiopiaAlphaT = 0.034 + 0.016
	// IMF WEO GGX 2024 = 9.538% of GDP
	EthiopiaAlphaG = 0.095
	// IMF WEO GGXWDG_NGDP, FY2023/24 mapped to CY2024 = 32.66% of GDP
	EthiopiaInitialDebtRatio = 0.327
	// MoF Public Sector Debt Portfolio Analysis No. 25: external USD 28.89bn of 68.86bn
	EthiopiaInitialForeignDebtRatio = 0.42
	// Same bulletin, Table 1: external share of the FY2023/24 debt increase (+0.64bn of +5.53bn).
	// Highly volatile year to year (49.9%, -152.5%, 5.0%, 11.6%); latest year is used.
	EthiopiaZetaD = 0.12
)

// Ethiopia returns the built-in Ethiopia reference
func Ethiopia() Reference {
	return Reference{
		AlphaT:                  EthiopiaAlphaT,
		AlphaG:                  EthiopiaAlphaG,
		InitialDebtRatio:        EthiopiaInitialDebtRatio,
		InitialForeignDebtRatio: EthiopiaInitialForeignDebtRatio,
		ZetaD:                   EthiopiaZetaD,
		AsOf:                    "2023/24",
		Sources: []string{
			"https://data.imf.org/en/Data-Explorer?datasetUrn=IMF.STA:GFS_SOO(12.0.0)&INDICATOR=G271_T",
			"https://data.imf.org/en/Data-Explorer?datasetUrn=IMF.RES:WEO(9.0.0)&INDICATOR=GGX",
			"https://www.mofed.gov.et/resources/bulletin/",
		},
	}
}

// Book maps ISO3 country codes to references.
// Lookups for countries without an entry fall back to the Default entry.
type Book struct {
	Default   string               `yaml:"default" json:"default"`
	Countries map[string]Reference `yaml:"countries" json:"countries"`
}

// DefaultBook returns the built-in book
func DefaultBook() *Book {
	return &Book{
		Default: "ETH",
		Countries: map[string]Reference{
			"ETH": Ethiopia(),
		},
	}
}

// Lookup returns the reference for country and whether it was an exact match
func (b *Book) Lookup(country string) (Reference, bool) {
	if ref, ok := b.Countries[country]; ok {
		return ref, true
	}
	return b.Countries[b.Default], false
}
