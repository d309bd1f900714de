package papergen

// Curriculum is the closed hierarchy class -> subject -> chapter -> topics
// the front-end offers for selection.
type Curriculum map[string]map[string]map[string][]string

// CurriculumOptions returns the supported curriculum hierarchy.
func CurriculumOptions() Curriculum {
	return Curriculum{
		"Class 10": {
			"Math": {
				"Algebra":      {"Quadratic Equations", "Polynomials", "Linear Equations"},
				"Geometry":     {"Triangles", "Circles", "Coordinate Geometry"},
				"Trigonometry": {"Trigonometric Ratios", "Heights and Distances"},
				"Statistics":   {"Central Tendency", "Probability"},
			},
			"Science": {
				"Physics":   {"Motion and Force", "Light", "Sound"},
				"Chemistry": {"Acids and Bases", "Metals and Non-metals", "Chemical Reactions"},
				"Biology":   {"Cell Structure", "Heredity", "Life Processes"},
			},
		},
		"Class 12": {
			"Math": {
				"Calculus":    {"Derivatives", "Integration", "Differential Equations"},
				"Vectors":     {"Vector Operations", "3D Geometry"},
				"Probability": {"Conditional Probability", "Distributions"},
			},
			"Science": {
				"Physics":   {"Electricity", "Magnetism", "Optics", "Modern Physics"},
				"Chemistry": {"Organic Chemistry", "Chemical Kinetics", "Electrochemistry"},
				"Biology":   {"Genetics", "Evolution", "Ecology"},
			},
		},
	}
}
