package inference

// classNames maps the provider's lesion class codes to display names.
var classNames = map[string]string{
	"AKIEC": "Actinic Keratosis",
	"BCC":   "Basal Cell Carcinoma",
	"BKL":   "Pigmented Benign Keratosis",
	"DF":    "Dermatofibroma",
	"MEL":   "Melanoma",
	"NV":    "Nevus",
	"VASC":  "Vascular Lesion",
}

// DisplayName returns the display name for code, or code itself when it is unknown.
func DisplayName(code string) string {
	if name, ok := classNames[code]; ok {
		return name
	}
	return code
}

// Translate maps every prediction's class code to its display name, preserving order.
func Translate(predictions []Prediction) []string {
	return TranslateCodes(Codes(predictions))
}

// TranslateCodes maps class codes to display names, preserving order.
func TranslateCodes(codes []string) []string {
	names := make([]string, 0, len(codes))
	for _, code := range codes {
		names = append(names, DisplayName(code))
	}
	return names
}

// Codes returns the raw class codes in provider order.
func Codes(predictions []Prediction) []string {
	codes := make([]string, 0, len(predictions))
	for _, p := range predictions {
		codes = append(codes, p.Class)
	}
	return codes
}
