package ingest

import "strings"

var labelReplacer = strings.NewReplacer(
	" ", "",
	"(", "",
	")", "",
	"%", "percent",
	"/", "",
)

// Normalize maps a raw category label to its canonical key.
//
// It trims and lowercases the label, removes spaces, parentheses and
// slashes, and spells out "%" as "percent":
//
//	Normalize("Wind Speed (kmh)") == "windspeedkmh"
//	Normalize("Soil Mosture(%)")  == "soilmosturepercent"
//
// Normalize is idempotent.
func Normalize(label string) string {
	return labelReplacer.Replace(strings.ToLower(strings.TrimSpace(label)))
}
