package enrich

import "github.com/cellarworks/enrich-cli/internal/model"

// DefaultFieldSets is the built-in extraction vocabulary. Production
// runs load these from configuration; nothing in the pipeline depends
// on the specific names.
func DefaultFieldSets() FieldSets {
	common := []model.FieldDescriptor{
		{Name: "name", Type: "string", Description: "Full product name as printed on the label."},
		{Name: "brand", Type: "string", Description: "Producer or bottler brand name."},
		{Name: "abv", Type: "number", Description: "Alcohol by volume as a percentage.", Examples: []string{"40", "46.3"}},
		{Name: "description", Type: "string", Description: "Producer's description of the product."},
		{Name: "tasting_notes", Type: "list", Description: "Individual tasting notes (nose, palate, finish descriptors)."},
		{Name: "volume_ml", Type: "number", Description: "Bottle volume in milliliters.", Examples: []string{"700", "750"}},
		{Name: "country", Type: "string", Description: "Country of origin."},
		{Name: "region", Type: "string", Description: "Production region within the country."},
		{Name: "image_url", Type: "string", Description: "URL of the primary product image."},
	}

	whiskey := append(append([]model.FieldDescriptor{}, common...),
		model.FieldDescriptor{Name: "distillery", Type: "string", Description: "Distillery that produced the spirit."},
		model.FieldDescriptor{Name: "bottler", Type: "string", Description: "Independent bottler, if not the distillery."},
		model.FieldDescriptor{Name: "age_statement", Type: "string", Description: "Stated age, or NAS if explicitly no age statement.", Examples: []string{"12", "18", "NAS"}},
		model.FieldDescriptor{Name: "cask_types", Type: "list", Description: "Cask types used for maturation or finishing.", Examples: []string{"ex-bourbon", "oloroso sherry"}},
	)

	port := append(append([]model.FieldDescriptor{}, common...),
		model.FieldDescriptor{Name: "style", Type: "string", Description: "Port style.", Enum: []string{"ruby", "tawny", "vintage", "late-bottled vintage", "white", "rose", "crusted", "colheita"}},
		model.FieldDescriptor{Name: "vintage", Type: "number", Description: "Harvest year for vintage-dated ports."},
		model.FieldDescriptor{Name: "bottling_year", Type: "number", Description: "Year the port was bottled."},
		model.FieldDescriptor{Name: "grape_varieties", Type: "list", Description: "Grape varieties used.", Examples: []string{"Touriga Nacional", "Tinta Roriz"}},
	)

	return FieldSets{
		Fallback: "whiskey",
		Sets: map[string][]model.FieldDescriptor{
			"whiskey": whiskey,
			"port":    port,
		},
	}
}
