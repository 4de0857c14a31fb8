package category

import "github.com/joseph-ayodele/invoice-pipeline/constants"

// keywordSets maps each category to the lowercase substrings that vote for it.
var keywordSets = map[constants.Category][]string{
	constants.AdvertisingMarketing: {
		"advertising", "marketing", "google ads", "facebook ads", "meta ads", "linkedin",
		"promotion", "campaign", "signage", "flyer",
	},
	constants.BankFees: {
		"bank", "fees", "merchant", "stripe", "paypal", "square", "transaction",
		"overdraft", "commonwealth", "westpac",
	},
	constants.Communications: {
		"telstra", "optus", "vodafone", "mobile", "phone", "internet", "telecom", "broadband", "nbn",
	},
	constants.Equipment: {
		"equipment", "hardware", "laptop", "computer", "monitor", "printer", "jb hi-fi",
		"harvey norman", "dell", "lenovo", "apple store",
	},
	constants.Insurance: {
		"insurance", "insure", "policy", "premium", "nrma", "allianz", "qbe", "aami", "suncorp",
	},
	constants.MealsEntertainment: {
		"restaurant", "cafe", "coffee", "catering", "dinner", "lunch", "breakfast",
		"uber eats", "menulog", "doordash", "mcdonald",
	},
	constants.OfficeSupplies: {
		"officeworks", "office", "stationery", "paper", "toner", "supplies", "staples",
	},
	constants.ProfessionalServices: {
		"consulting", "consultant", "legal", "lawyer", "solicitor", "accounting", "accountant",
		"bookkeeping", "audit", "advisory", "professional", "services",
	},
	constants.Rent: {
		"rent", "lease", "property", "real estate", "tenancy", "coworking", "wework", "regus",
	},
	constants.SoftwareSubscriptions: {
		"software", "subscription", "saas", "license", "licence", "microsoft", "adobe",
		"atlassian", "xero", "myob", "github", "google workspace", "slack", "zoom",
		"dropbox", "cloud",
	},
	constants.Travel: {
		"qantas", "virgin", "jetstar", "airline", "flight", "hotel", "airbnb", "uber", "taxi",
		"travel", "booking", "fuel", "petrol", "parking", "toll", "caltex", "ampol", "shell",
	},
	constants.Utilities: {
		"electricity", "energy", "power", "water", "agl", "origin", "energyaustralia",
		"utility", "utilities",
	},
	constants.Other: {},
}
