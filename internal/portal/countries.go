package portal

// Countries maps the portal's two-letter country codes to display names.
// The set is fixed upstream; the code becomes part of every URL
// (https://{host}/en-{code}/niv).
var Countries = map[string]string{
	"ar": "Argentina",
	"ec": "Ecuador",
	"bs": "The Bahamas",
	"gy": "Guyana",
	"bb": "Barbados",
	"jm": "Jamaica",
	"bz": "Belize",
	"mx": "Mexico",
	"br": "Brazil",
	"py": "Paraguay",
	"bo": "Bolivia",
	"pe": "Peru",
	"ca": "Canada",
	"sr": "Suriname",
	"cl": "Chile",
	"tt": "Trinidad and Tobago",
	"co": "Colombia",
	"uy": "Uruguay",
	"cw": "Curacao",
	"us": "United States (Domestic Visa Renewal)",
	"al": "Albania",
	"ie": "Ireland",
	"am": "Armenia",
	"kv": "Kosovo",
	"az": "Azerbaijan",
	"mk": "North Macedonia",
	"be": "Belgium",
	"nl": "The Netherlands",
	"ba": "Bosnia and Herzegovina",
	"pt": "Portugal",
	"hr": "Croatia",
	"rs": "Serbia",
	"cy": "Cyprus",
	"es": "Spain and Andorra",
	"fr": "France",
	"tr": "Turkiye",
	"gr": "Greece",
	"gb": "United Kingdom",
	"it": "Italy",
	"il": "Israel, Jerusalem, The West Bank, and Gaza",
	"ae": "United Arab Emirates",
	"ir": "Iran",
	"ao": "Angola",
	"rw": "Rwanda",
	"cm": "Cameroon",
	"sn": "Senegal",
	"cv": "Cabo Verde",
	"tz": "Tanzania",
	"cd": "The Democratic Republic of the Congo",
	"za": "South Africa",
	"et": "Ethiopia",
	"ug": "Uganda",
	"ke": "Kenya",
	"zm": "Zambia",
}

// ValidCountry reports whether code is one of the portal's country codes.
func ValidCountry(code string) bool {
	_, ok := Countries[code]
	return ok
}
