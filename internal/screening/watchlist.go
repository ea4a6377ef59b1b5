package screening

import "github.com/waqiti/amlguard/internal/model"

// BuiltinWatchlist returns the bundled consolidated reference list, wired as
// the failover behind the redis-maintained list so screening still answers
// when the list feed is down or not yet loaded.
func BuiltinWatchlist() []model.ScreeningCandidate {
	return []model.ScreeningCandidate{
		{
			ID:          "OFAC-16892",
			Name:        "Vladimir Putin",
			Aliases:     []string{"Vladimir Vladimirovich Putin", "Vladimir V. Putin"},
			DateOfBirth: "1952-10-07",
			Nationality: "RU",
			Category:    model.CategoryHeadOfState,
			Position:    "President",
			Active:      true,
			ListSource:  "OFAC SDN",
		},
		{
			ID:          "OFAC-21309",
			Name:        "Kim Jong Un",
			Aliases:     []string{"Kim Jong-un", "Kim Chong Un"},
			DateOfBirth: "1984-01-08",
			Nationality: "KP",
			Category:    model.CategoryHeadOfState,
			Position:    "Head of State",
			Active:      true,
			ListSource:  "OFAC SDN",
		},
		{
			ID:          "UN-0482",
			Name:        "Ali Akbar Tabrizi",
			Aliases:     []string{"A. Tabrizi"},
			Nationality: "IR",
			Category:    model.CategorySanctioned,
			Active:      true,
			ListSource:  "UN Consolidated",
		},
		{
			ID:          "EU-1174",
			Name:        "Sergei Lavrov",
			Aliases:     []string{"Sergey Lavrov", "Sergei Viktorovich Lavrov"},
			DateOfBirth: "1950-03-21",
			Nationality: "RU",
			Category:    model.CategoryPEP,
			Position:    "Minister of Foreign Affairs",
			Active:      true,
			ListSource:  "EU Consolidated",
		},
		{
			ID:          "EU-1175",
			Name:        "Maria Lavrova",
			Nationality: "RU",
			Category:    model.CategoryRelative,
			Active:      true,
			ListSource:  "EU Consolidated",
		},
		{
			ID:          "OFAC-30771",
			Name:        "Viktor Bout",
			Aliases:     []string{"Victor Bout", "Viktor Anatolyevich Bout"},
			DateOfBirth: "1967-01-13",
			Nationality: "RU",
			Category:    model.CategorySanctioned,
			Active:      true,
			ListSource:  "OFAC SDN",
		},
	}
}
