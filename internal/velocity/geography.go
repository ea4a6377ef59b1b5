package velocity

// GeoRiskTier grades a jurisdiction for AML purposes. Higher is riskier.
type GeoRiskTier int

const (
	GeoTierStandard GeoRiskTier = iota
	GeoTierMonitored
	GeoTierHighRisk
	GeoTierSanctioned
)

// countryRiskTiers maps ISO 3166-1 alpha-2 codes to risk tiers, following
// the FATF high-risk and increased-monitoring jurisdiction lists.
var countryRiskTiers = map[string]GeoRiskTier{
	// FATF call-for-action jurisdictions
	"IR": GeoTierSanctioned,
	"KP": GeoTierSanctioned,
	"MM": GeoTierSanctioned,

	// Comprehensively sanctioned or embargoed
	"CU": GeoTierSanctioned,
	"SY": GeoTierSanctioned,
	"RU": GeoTierHighRisk,
	"BY": GeoTierHighRisk,

	// Elevated-risk jurisdictions
	"AF": GeoTierHighRisk,
	"SO": GeoTierHighRisk,
	"VE": GeoTierHighRisk,
	"SD": GeoTierHighRisk,
	"LY": GeoTierHighRisk,
	"IQ": GeoTierHighRisk,
	"YE": GeoTierHighRisk,
	"SS": GeoTierHighRisk,

	// FATF increased-monitoring list
	"AL": GeoTierMonitored,
	"BB": GeoTierMonitored,
	"BF": GeoTierMonitored,
	"CM": GeoTierMonitored,
	"CD": GeoTierMonitored,
	"GI": GeoTierMonitored,
	"HT": GeoTierMonitored,
	"JM": GeoTierMonitored,
	"JO": GeoTierMonitored,
	"ML": GeoTierMonitored,
	"MZ": GeoTierMonitored,
	"NI": GeoTierMonitored,
	"PA": GeoTierMonitored,
	"PH": GeoTierMonitored,
	"PK": GeoTierMonitored,
	"SN": GeoTierMonitored,
	"TR": GeoTierMonitored,
	"TZ": GeoTierMonitored,
	"UG": GeoTierMonitored,
	"VU": GeoTierMonitored,
	"ZW": GeoTierMonitored,
}

// CountryRiskTier returns the risk tier for an ISO country code. Unknown or
// empty codes are standard risk.
func CountryRiskTier(code string) GeoRiskTier {
	if tier, ok := countryRiskTiers[code]; ok {
		return tier
	}
	return GeoTierStandard
}

// IsHighRiskCountry reports whether the country sits at or above the
// high-risk tier.
func IsHighRiskCountry(code string) bool {
	return CountryRiskTier(code) >= GeoTierHighRisk
}
